package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/helmarr/helmarr/internal/store"
)

// listInstances returns all configured manager instances.
// GET /api/v1/instances
func (s *Server) listInstances(c echo.Context) error {
	instances, err := s.store.ListInstances(c.Request().Context())
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	if instances == nil {
		instances = []store.Instance{}
	}
	return c.JSON(http.StatusOK, instances)
}

// getInstance returns one manager instance.
// GET /api/v1/instances/:id
func (s *Server) getInstance(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	inst, err := s.store.GetInstance(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errorJSON(c, http.StatusNotFound, errors.New("instance not found"))
		}
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, inst)
}

// instanceRequest is the write shape for instances. The API key is accepted
// on writes but never echoed back in responses.
type instanceRequest struct {
	Name           string           `json:"name"`
	Type           store.TargetType `json:"type"`
	URL            string           `json:"url"`
	APIKey         string           `json:"apiKey"`
	QualityProfile string           `json:"qualityProfile"`
	RootFolder     string           `json:"rootFolder"`
	IsDefault      bool             `json:"isDefault"`
	Enabled        bool             `json:"enabled"`
}

func (r instanceRequest) toInstance() store.Instance {
	return store.Instance{
		Name:           r.Name,
		Type:           r.Type,
		URL:            r.URL,
		APIKey:         r.APIKey,
		QualityProfile: r.QualityProfile,
		RootFolder:     r.RootFolder,
		IsDefault:      r.IsDefault,
		Enabled:        r.Enabled,
	}
}

// createInstance inserts a manager instance and reloads the client registry.
// POST /api/v1/instances
func (s *Server) createInstance(c echo.Context) error {
	var req instanceRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	inst := req.toInstance()
	if err := validateInstance(inst); err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}

	ctx := c.Request().Context()
	id, err := s.store.CreateInstance(ctx, inst)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	s.reloadRegistry(c)

	created, err := s.store.GetInstance(ctx, id)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// updateInstance replaces a manager instance and reloads the client registry.
// PUT /api/v1/instances/:id
func (s *Server) updateInstance(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}

	var req instanceRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}

	ctx := c.Request().Context()
	inst := req.toInstance()
	inst.ID = id
	if inst.APIKey == "" {
		// An omitted key on update keeps the stored one.
		existing, err := s.store.GetInstance(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errorJSON(c, http.StatusNotFound, errors.New("instance not found"))
			}
			return errorJSON(c, http.StatusInternalServerError, err)
		}
		inst.APIKey = existing.APIKey
	}
	if err := validateInstance(inst); err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}

	if err := s.store.UpdateInstance(ctx, inst); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errorJSON(c, http.StatusNotFound, errors.New("instance not found"))
		}
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	s.reloadRegistry(c)

	updated, err := s.store.GetInstance(ctx, id)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// deleteInstance removes a manager instance and reloads the client registry.
// DELETE /api/v1/instances/:id
func (s *Server) deleteInstance(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	if err := s.store.DeleteInstance(c.Request().Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errorJSON(c, http.StatusNotFound, errors.New("instance not found"))
		}
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	s.reloadRegistry(c)
	return c.NoContent(http.StatusNoContent)
}

// testInstance pings a manager instance through its registered client.
// POST /api/v1/instances/:id/test
func (s *Server) testInstance(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	client, ok := s.registry.Get(id)
	if !ok {
		return errorJSON(c, http.StatusNotFound, errors.New("instance not registered"))
	}
	if err := client.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"success": false,
			"message": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) reloadRegistry(c echo.Context) {
	if err := s.registry.Reload(c.Request().Context(), s.store); err != nil {
		s.logger.Error().Err(err).Msg("failed to reload instance registry")
	}
}

func validateInstance(inst store.Instance) error {
	if inst.Name == "" {
		return errors.New("instance name is required")
	}
	if inst.URL == "" {
		return errors.New("instance url is required")
	}
	if inst.APIKey == "" {
		return errors.New("instance api key is required")
	}
	switch inst.Type {
	case store.TargetSonarr, store.TargetRadarr:
	default:
		return errors.New("unknown instance type")
	}
	return nil
}
