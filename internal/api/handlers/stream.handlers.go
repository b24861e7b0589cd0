package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/ratelimit"

	"assettracker/internal/model"
	"assettracker/internal/observability"
	"assettracker/internal/tracker"
)

const streamGeofenceBuffer = 8

// StreamDevice pushes the live view of one device as server-sent events:
// "position" frames carry a GeoJSON FeatureCollection, "geofence" frames
// the raw event.
func (h *Handlers) StreamDevice(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	geofences := make(chan model.GeofenceEvent, streamGeofenceBuffer)
	tr, err := tracker.New(h.deps.Hub, tracker.Options{
		Segments: h.deps.Segments,
		Devices:  []string{id},
		Logger:   h.deps.Logger,
		OnGeofence: func(_ context.Context, ev model.GeofenceEvent) {
			select {
			case geofences <- ev:
			default:
			}
		},
	})
	if err != nil {
		writeIngestError(c, err)
		return
	}
	defer tr.Close()

	observability.ActiveStreams.Inc()
	defer observability.ActiveStreams.Dec()

	if u, ok := h.deps.Positions.Latest(id); ok {
		tr.Seed(u)
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	limiter := ratelimit.New(h.deps.StreamRatePerSec)
	heartbeat := time.NewTicker(h.deps.HeartbeatInterval)
	defer heartbeat.Stop()

	send := func(event string, data any) {
		c.SSEvent(event, data)
		c.Writer.Flush()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tr.Done():
			return
		case now := <-heartbeat.C:
			send("heartbeat", now.UTC().Format(time.RFC3339))
		case ev := <-geofences:
			send("geofence", ev)
		case <-tr.Changes():
			limiter.Take()
			drain(tr.Changes())
			if view, ok := tr.View(id); ok {
				send("position", view.FeatureCollection())
			}
		}
	}
}

// drain coalesces queued notifications into the frame about to be sent
func drain(ch <-chan string) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
