package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupSimulationHandlers registers controls for the simulated fleet
func (h *Handlers) SetupSimulationHandlers(router *gin.RouterGroup) {
	sim := router.Group("/simulation")
	sim.Use(h.requireSimulator)

	sim.GET("", h.SimulationStatus)
	sim.POST("/start", h.StartSimulation)
	sim.POST("/pause", h.PauseSimulation)
	sim.POST("/stop", h.StopSimulation)
}

func (h *Handlers) requireSimulator(c *gin.Context) {
	if h.deps.Simulator == nil {
		writeError(c, http.StatusNotFound, "no simulation loaded")
		c.Abort()
		return
	}
	c.Next()
}

func (h *Handlers) SimulationStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"paused":  h.deps.Simulator.Paused(),
		"devices": h.deps.Simulator.DeviceIDs(),
	})
}

// StartSimulation resumes a paused or stopped simulation
func (h *Handlers) StartSimulation(c *gin.Context) {
	h.deps.Simulator.Resume()
	h.deps.Logger.Info("simulation started")
	h.SimulationStatus(c)
}

// PauseSimulation freezes devices where they are
func (h *Handlers) PauseSimulation(c *gin.Context) {
	h.deps.Simulator.Pause()
	h.deps.Logger.Info("simulation paused")
	h.SimulationStatus(c)
}

// StopSimulation pauses and sends every device back to its route start
func (h *Handlers) StopSimulation(c *gin.Context) {
	h.deps.Simulator.Pause()
	h.deps.Simulator.Reset()
	h.deps.Logger.Info("simulation stopped")
	h.SimulationStatus(c)
}
