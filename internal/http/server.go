// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tripshare/internal/http/handlers"
	"tripshare/internal/http/middleware"
	"tripshare/internal/infra"
)

// TripService is everything the passenger and driver routes need.
type TripService interface {
	handlers.TripService
	handlers.DriverService
}

type ServerDeps struct {
	Trips    TripService
	Devices  handlers.DeviceTokens
	Verifier infra.TokenVerifier
	Log      *logrus.Logger
}

type Server struct {
	trips    *handlers.TripHandler
	drivers  *handlers.DriverHandler
	devices  *handlers.DeviceHandler
	verifier infra.TokenVerifier
	log      *logrus.Logger
}

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		trips:    handlers.NewTripHandler(deps.Trips),
		drivers:  handlers.NewDriverHandler(deps.Trips),
		verifier: deps.Verifier,
		log:      deps.Log,
	}
	if deps.Devices != nil {
		s.devices = handlers.NewDeviceHandler(deps.Devices)
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(middleware.Logging(s.log), middleware.Recovery(s.log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api", middleware.Auth(s.verifier))

	trips := api.Group("/trips")
	trips.POST("/request", s.trips.Request)
	trips.POST("/fare", s.trips.Fare)
	trips.POST("/nearby", s.trips.Nearby)
	trips.GET("/:id", s.trips.Get)
	trips.POST("/:id/join", s.trips.Join)
	trips.POST("/:id/leave", s.trips.Leave)

	driver := api.Group("/driver", middleware.RequireRole(middleware.RoleDriver))
	driver.GET("/trips/full", s.drivers.ListFull)
	driver.POST("/trips/:id/assign", s.drivers.Assign)
	driver.POST("/trips/:id/start", s.drivers.Start)
	driver.POST("/trips/:id/end", s.drivers.End)
	driver.POST("/trips/:id/leave", s.drivers.Leave)

	if s.devices != nil {
		api.PUT("/me/devices", s.devices.Register)
		api.DELETE("/me/devices", s.devices.Unregister)
	}
	return r
}
