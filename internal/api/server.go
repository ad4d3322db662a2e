// Package api exposes the HTTP surface: sync control, approvals, routing
// rules, instances, users, notifications, and system health.
package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/helmarr/helmarr/internal/arr"
	"github.com/helmarr/helmarr/internal/config"
	"github.com/helmarr/helmarr/internal/gate"
	"github.com/helmarr/helmarr/internal/health"
	"github.com/helmarr/helmarr/internal/notification"
	"github.com/helmarr/helmarr/internal/scheduler"
	"github.com/helmarr/helmarr/internal/store"
	"github.com/helmarr/helmarr/internal/sync"
	"github.com/helmarr/helmarr/internal/websocket"
)

// Server handles HTTP requests for the Helmarr API.
type Server struct {
	echo   *echo.Echo
	logger zerolog.Logger
	cfg    *config.Config

	store               *store.Store
	orchestrator        *sync.Orchestrator
	gate                *gate.Gate
	registry            *arr.Registry
	healthService       *health.Service
	notificationService *notification.Service
	scheduler           *scheduler.Scheduler
	hub                 *websocket.Hub
}

// Services bundles the server's collaborators.
type Services struct {
	Store         *store.Store
	Orchestrator  *sync.Orchestrator
	Gate          *gate.Gate
	Registry      *arr.Registry
	Health        *health.Service
	Notifications *notification.Service
	Scheduler     *scheduler.Scheduler
	Hub           *websocket.Hub
}

// NewServer creates a new API server instance.
func NewServer(cfg *config.Config, svc Services, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:                e,
		logger:              logger.With().Str("component", "api").Logger(),
		cfg:                 cfg,
		store:               svc.Store,
		orchestrator:        svc.Orchestrator,
		gate:                svc.Gate,
		registry:            svc.Registry,
		healthService:       svc.Health,
		notificationService: svc.Notifications,
		scheduler:           svc.Scheduler,
		hub:                 svc.Hub,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Start begins serving HTTP requests on the given address.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"version":     config.Version,
		"syncRunning": s.orchestrator.IsRunning(),
		"wsClients":   s.hub.ClientCount(),
	})
}

func errorJSON(c echo.Context, status int, err error) error {
	return c.JSON(status, map[string]string{"error": err.Error()})
}
