package routes

import (
	"github.com/gin-gonic/gin"

	"fleet_tracker/internal/controllers"
	"fleet_tracker/internal/middleware"
	"fleet_tracker/internal/models"
)

func VehicleRoutes(r *gin.RouterGroup, d Deps) {
	ctrl := controllers.NewVehicleController(d.Fleet, d.Log)
	admin := middleware.RequireRole(models.RoleAdmin)

	vehicles := r.Group("/vehicles")
	{
		vehicles.GET("/active", ctrl.Active)
		vehicles.GET("/stats", admin, ctrl.Stats)
		vehicles.GET("", admin, ctrl.ListVehicles)
		vehicles.POST("", admin, ctrl.CreateVehicle)
		vehicles.POST("/assign", admin, ctrl.Assign)
		vehicles.GET("/:id", admin, ctrl.GetVehicle)
		vehicles.PUT("/:id", admin, ctrl.UpdateVehicle)
		vehicles.DELETE("/:id", admin, ctrl.DeleteVehicle)
		vehicles.PUT("/unassign/:id", admin, ctrl.Unassign)
		vehicles.PUT("/:id/location", middleware.RequireRole(models.RoleAdmin, models.RoleDriver), ctrl.UpdateLocation)
	}
}
