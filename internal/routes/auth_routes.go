package routes

import (
	"github.com/gin-gonic/gin"

	"fleet_tracker/internal/controllers"
)

func AuthRoutes(r *gin.RouterGroup, d Deps) {
	ctrl := controllers.NewAuthController(d.Users, d.Auth, d.Log)
	auth := r.Group("/auth")
	{
		auth.POST("/signup", ctrl.SignupUser)
		auth.POST("/login", ctrl.LoginUser)
	}
}
