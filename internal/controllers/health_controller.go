package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fleet_tracker/internal/tracking"
)

type HealthController struct {
	hub *tracking.Hub
}

func NewHealthController(hub *tracking.Hub) *HealthController {
	return &HealthController{hub: hub}
}

func (h *HealthController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"tracking_clients": h.hub.ClientCount(),
		"live_channels":    h.hub.ChannelCount(),
	})
}
