package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	routes "assettracker/internal/api/handlers"
	"assettracker/internal/util"
)

// SetupRouter initializes all application routes
func SetupRouter(r *gin.Engine, deps routes.Deps) {
	h := routes.New(deps)

	// API group
	api := r.Group("/api")

	h.SetupMainHandlers(r.Group(""))
	h.SetupTelemetryHandlers(api)
	h.SetupDeviceHandlers(api)
	h.SetupSimulationHandlers(api)
}

const requestIDHeader = "X-Request-ID"

// RequestLogger tags each request with an id and logs one line for it
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = util.ShortID()
		}
		c.Header(requestIDHeader, id)
		c.Next()

		level := slog.LevelDebug
		if c.Writer.Status() >= 500 {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "http request",
			"requestId", id,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"took", time.Since(start),
		)
	}
}
