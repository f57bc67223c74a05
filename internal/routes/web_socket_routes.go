package routes

import (
	"github.com/gin-gonic/gin"

	"fleet_tracker/internal/controllers"
)

// WebSocketRoutes authenticates inside the handler since the token arrives
// as a query parameter.
func WebSocketRoutes(r *gin.Engine, d Deps) {
	ctrl := controllers.NewTrackingController(d.Hub, d.Fleet, d.Auth, d.AllowedOrigins, d.SendBuffer, d.Log)
	ws := r.Group("/ws")
	{
		ws.GET("/tracking", ctrl.HandleTracking)
	}
}

func HealthRoutes(r *gin.Engine, d Deps) {
	ctrl := controllers.NewHealthController(d.Hub)
	r.GET("/health", ctrl.Health)
}
