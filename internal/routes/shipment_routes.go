package routes

import (
	"github.com/gin-gonic/gin"

	"fleet_tracker/internal/controllers"
	"fleet_tracker/internal/middleware"
	"fleet_tracker/internal/models"
)

func ShipmentRoutes(r *gin.RouterGroup, d Deps) {
	ctrl := controllers.NewShipmentController(d.Fleet, d.Log)
	proof := controllers.NewProofController(d.Fleet, d.Log)
	admin := middleware.RequireRole(models.RoleAdmin)

	shipments := r.Group("/shipments")
	{
		shipments.GET("", ctrl.ListShipments)
		shipments.POST("", admin, ctrl.CreateShipment)
		shipments.GET("/stats", admin, ctrl.Stats)
		shipments.GET("/track/:ref", ctrl.TrackShipment)
		shipments.GET("/:id", ctrl.GetShipment)
		shipments.GET("/:id/route", ctrl.GetRoute)
		shipments.PUT("/:id", admin, ctrl.UpdateShipment)
		shipments.DELETE("/:id", admin, ctrl.DeleteShipment)
		shipments.PUT("/:id/status", admin, ctrl.UpdateStatus)
		shipments.PUT("/:id/start-trip", middleware.RequireRole(models.RoleDriver, models.RoleAdmin), ctrl.StartTrip)
		shipments.POST("/:id/pod", middleware.RequireRole(models.RoleDriver, models.RoleAdmin), proof.SubmitPOD)
		shipments.POST("/:id/epod", middleware.RequireRole(models.RoleCustomer, models.RoleAdmin), proof.SubmitEPOD)
	}
}
