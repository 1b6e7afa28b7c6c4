// Package api serves the miner registry, connection state, telemetry and
// discovery over http
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/robgonnella/hashwatch/internal/logger"
)

// Server http front end for a Service
type Server struct {
	log     logger.Logger
	service Service
	buffer  int
	echo    *echo.Echo
}

// New returns a new Server with every route registered. buffer is the
// per-client live-update queue size.
func New(service Service, buffer int) *Server {
	s := &Server{
		log:     logger.New().Component("api"),
		service: service,
		buffer:  buffer,
		echo:    echo.New(),
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = NewHTTPErrorHandler().Handler

	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.log.Debug().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")

			return nil
		},
	}))

	s.routes()

	return s
}

func (s *Server) routes() {
	v1 := s.echo.Group("/v1")

	v1.GET("/miners", s.listMiners)
	v1.POST("/miners", s.addMiner)
	v1.GET("/miners/:id", s.getMiner)
	v1.PUT("/miners/:id", s.updateMiner)
	v1.DELETE("/miners/:id", s.removeMiner)
	v1.GET("/miners/:id/state", s.minerState)
	v1.POST("/miners/:id/settings", s.applySettings)
	v1.GET("/miners/:id/snapshots", s.snapshots)
	v1.GET("/miners/:id/events", s.connectionEvents)

	v1.GET("/events", s.events)

	v1.POST("/scans", s.startScan)
	v1.DELETE("/scans/:id", s.stopScan)
}

// Handler returns the http handler serving every route
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown
func (s *Server) Start(addr string) error {
	s.log.Info().Str("addr", addr).Msg("starting http server")

	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown gracefully stops the server. Open event streams end when ctx
// expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
