package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"assettracker/internal/decoder"
	"assettracker/internal/model"
)

// SetupTelemetryHandlers registers the inbound data endpoints
func (h *Handlers) SetupTelemetryHandlers(router *gin.RouterGroup) {
	router.POST("/telemetry", h.PostTelemetry)
	router.POST("/uplink", h.PostUplink)
	router.POST("/geofence-events", h.PostGeofenceEvent)
}

// PostTelemetry accepts one raw tracker document
func (h *Handlers) PostTelemetry(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		writeError(c, http.StatusBadRequest, "unreadable body")
		return
	}

	u, err := h.deps.Pipeline.HandleMessage(c.Request.Context(), body)
	if err != nil {
		writeIngestError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "deviceId": u.DeviceID})
}

type uplinkRequest struct {
	AtUplink *decoder.UplinkEnvelope `json:"at_uplink" binding:"required"`
}

// PostUplink decodes a network server uplink. Frames that resolve to a
// position answer 200 with it; fragments and status frames answer 202.
func (h *Handlers) PostUplink(c *gin.Context) {
	var req uplinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "unsupported request, only at_uplink is supported")
		return
	}

	res, err := h.deps.Pipeline.HandleUplink(c.Request.Context(), *req.AtUplink, time.Now().UTC())
	if err != nil {
		writeIngestError(c, err)
		return
	}
	if res.Position == nil {
		c.JSON(http.StatusAccepted, gin.H{"uplink": res.Uplink})
		return
	}
	c.JSON(http.StatusOK, gin.H{"uplink": res.Uplink, "position": res.Position})
}

type geofenceRequest struct {
	DeviceID   string    `json:"deviceId" binding:"required"`
	GeofenceID string    `json:"geofenceId" binding:"required"`
	EventType  string    `json:"eventType" binding:"required"`
	SampleTime time.Time `json:"sampleTime" binding:"required"`
}

// PostGeofenceEvent relays an event from the external geofence evaluator
func (h *Handlers) PostGeofenceEvent(c *gin.Context) {
	var req geofenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	typ, err := model.ParseGeofenceEventType(req.EventType)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	ev, err := model.NewGeofenceEvent(req.DeviceID, req.GeofenceID, typ, req.SampleTime)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.deps.Hub.PublishGeofence(c.Request.Context(), ev); err != nil {
		writeIngestError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, ev)
}
