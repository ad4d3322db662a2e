package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/helmarr/helmarr/internal/store"
)

// listNotifications returns every notifier configuration.
// GET /api/v1/notifications
func (s *Server) listNotifications(c echo.Context) error {
	configs, err := s.store.ListNotifications(c.Request().Context())
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	if configs == nil {
		configs = []store.NotificationConfig{}
	}
	return c.JSON(http.StatusOK, configs)
}

// createNotification inserts a notifier configuration.
// POST /api/v1/notifications
func (s *Server) createNotification(c echo.Context) error {
	var cfg store.NotificationConfig
	if err := c.Bind(&cfg); err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	if cfg.Name == "" {
		return errorJSON(c, http.StatusBadRequest, errors.New("notification name is required"))
	}

	ctx := c.Request().Context()
	id, err := s.store.CreateNotification(ctx, cfg)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	created, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// updateNotification replaces a notifier configuration.
// PUT /api/v1/notifications/:id
func (s *Server) updateNotification(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}

	var cfg store.NotificationConfig
	if err := c.Bind(&cfg); err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	cfg.ID = id

	ctx := c.Request().Context()
	if err := s.store.UpdateNotification(ctx, cfg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errorJSON(c, http.StatusNotFound, errors.New("notification not found"))
		}
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	updated, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// deleteNotification removes a notifier configuration.
// DELETE /api/v1/notifications/:id
func (s *Server) deleteNotification(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	if err := s.store.DeleteNotification(c.Request().Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errorJSON(c, http.StatusNotFound, errors.New("notification not found"))
		}
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// testNotification sends a test event through a notifier configuration
// without persisting it.
// POST /api/v1/notifications/test
func (s *Server) testNotification(c echo.Context) error {
	var cfg store.NotificationConfig
	if err := c.Bind(&cfg); err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}

	if err := s.notificationService.Test(c.Request().Context(), cfg); err != nil {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"success": false,
			"message": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}
