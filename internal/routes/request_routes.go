package routes

import (
	"github.com/gin-gonic/gin"

	"fleet_tracker/internal/controllers"
	"fleet_tracker/internal/middleware"
	"fleet_tracker/internal/models"
)

func RequestRoutes(r *gin.RouterGroup, d Deps) {
	ctrl := controllers.NewRequestController(d.Requests, d.Log)
	admin := middleware.RequireRole(models.RoleAdmin)

	reqs := r.Group("/requests")
	{
		reqs.POST("", middleware.RequireRole(models.RoleCustomer, models.RoleAdmin), ctrl.CreateRequest)
		reqs.GET("", ctrl.ListRequests)
		reqs.GET("/:id", ctrl.GetRequest)
		reqs.PUT("/:id/approve", admin, ctrl.ApproveRequest)
		reqs.PUT("/:id/reject", admin, ctrl.RejectRequest)
	}
}
