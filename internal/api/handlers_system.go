package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// getHealth returns all tracked health items grouped by category.
// GET /api/v1/system/health
func (s *Server) getHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, s.healthService.GetAll())
}

// getHealthSummary returns aggregate counts per category.
// GET /api/v1/system/health/summary
func (s *Server) getHealthSummary(c echo.Context) error {
	return c.JSON(http.StatusOK, s.healthService.GetSummary())
}

// listTasks returns all scheduled tasks.
// GET /api/v1/system/tasks
func (s *Server) listTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.scheduler.ListTasks())
}

// runTask manually triggers a scheduled task.
// POST /api/v1/system/tasks/:id/run
func (s *Server) runTask(c echo.Context) error {
	taskID := c.Param("id")
	if err := s.scheduler.RunNow(taskID); err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"message": "task started",
		"taskId":  taskID,
	})
}
