package routes

import (
	"io"

	ginlog "github.com/gin-contrib/logger"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/fleet"
	"fleet_tracker/internal/middleware"
	"fleet_tracker/internal/requests"
	"fleet_tracker/internal/store"
	"fleet_tracker/internal/tracking"
)

// Deps are the services the HTTP layer is built on.
type Deps struct {
	Users          store.UserStore
	Fleet          *fleet.Manager
	Requests       *requests.Service
	Hub            *tracking.Hub
	Auth           *middleware.Auth
	AllowedOrigins []string
	SendBuffer     int
	Log            *logrus.Logger
	// AccessLog receives one line per request. Nil disables request logging.
	AccessLog io.Writer
}

func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	if d.AccessLog != nil {
		r.Use(ginlog.SetLogger(ginlog.WithWriter(d.AccessLog)))
	}
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(d.AllowedOrigins))

	HealthRoutes(r, d)
	WebSocketRoutes(r, d)

	api := r.Group("/api")
	AuthRoutes(api, d)

	secured := api.Group("")
	secured.Use(d.Auth.RequireAuth())
	ShipmentRoutes(secured, d)
	VehicleRoutes(secured, d)
	RequestRoutes(secured, d)

	return r
}
