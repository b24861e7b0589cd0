package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupMainHandlers registers service level endpoints
func (h *Handlers) SetupMainHandlers(router *gin.RouterGroup) {
	router.GET("/", h.Info)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Info reports device and subscription counts
func (h *Handlers) Info(c *gin.Context) {
	subs := gin.H{}
	for topic, n := range h.deps.Hub.Stats() {
		subs[string(topic)] = n
	}
	c.JSON(http.StatusOK, gin.H{
		"devices":        h.deps.Positions.DeviceCount(),
		"subscriptions":  subs,
		"pendingHistory": h.deps.Positions.PendingHistory(),
	})
}
