package routes

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"assettracker/internal/config"
	"assettracker/internal/decoder"
	"assettracker/internal/history"
	"assettracker/internal/hub"
	"assettracker/internal/ingest"
	"assettracker/internal/service/fleet"
	"assettracker/internal/service/position"
	"assettracker/internal/simulator"
)

// Deps are the services the HTTP layer talks to
type Deps struct {
	Hub       *hub.Hub
	Positions *position.PositionService
	Pipeline  *ingest.Pipeline
	Fleet     *fleet.Index
	History   *history.Adapter
	Simulator *simulator.Simulator // nil when no scenario is loaded

	Segments          int
	HistoryMaxRange   time.Duration
	StreamRatePerSec  int
	HeartbeatInterval time.Duration
	Logger            *slog.Logger
}

type Handlers struct {
	deps Deps
}

func New(deps Deps) *Handlers {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.HeartbeatInterval <= 0 {
		deps.HeartbeatInterval = config.StreamHeartbeatInterval
	}
	if deps.StreamRatePerSec <= 0 {
		deps.StreamRatePerSec = 5
	}
	if deps.HistoryMaxRange <= 0 {
		deps.HistoryMaxRange = 30 * 24 * time.Hour
	}
	return &Handlers{deps: deps}
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, errorResponse{Error: msg})
}

// writeIngestError maps decode failures to 400 and everything else to a
// server side status
func writeIngestError(c *gin.Context, err error) {
	var de *decoder.DecodeError
	switch {
	case errors.As(err, &de):
		c.JSON(http.StatusBadRequest, errorResponse{Error: de.Error(), Field: de.Field})
	case errors.Is(err, ingest.ErrUnresolved):
		writeError(c, http.StatusBadGateway, err.Error())
	case errors.Is(err, hub.ErrClosed):
		writeError(c, http.StatusServiceUnavailable, "shutting down")
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
