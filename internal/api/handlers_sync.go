package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// getSyncStatus returns the outcome of the last sync cycle.
// GET /api/v1/sync/status
func (s *Server) getSyncStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.orchestrator.LastStatus())
}

// triggerSync starts a manual sync cycle in the background.
// POST /api/v1/sync/run
func (s *Server) triggerSync(c echo.Context) error {
	if s.orchestrator.IsRunning() {
		return c.JSON(http.StatusConflict, map[string]string{
			"error": "sync already in progress",
		})
	}

	go func() {
		if err := s.orchestrator.RunOnce(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("manual sync failed")
		}
	}()

	return c.JSON(http.StatusAccepted, map[string]string{
		"message": "sync started",
	})
}

// getQueueStatus returns the deferred queue depth.
// GET /api/v1/sync/queue
func (s *Server) getQueueStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]int{
		"depth": s.orchestrator.LastStatus().QueueDepth,
	})
}
