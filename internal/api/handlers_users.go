package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/helmarr/helmarr/internal/store"
	"github.com/helmarr/helmarr/internal/watchlist"
)

// userRequest is the write shape for users. The Plex token is accepted on
// writes but never echoed back in responses.
type userRequest struct {
	Name             string `json:"name"`
	PlexToken        string `json:"plexToken"`
	CanSync          bool   `json:"canSync"`
	RequiresApproval bool   `json:"requiresApproval"`
}

// listUsers returns every configured user.
// GET /api/v1/users
func (s *Server) listUsers(c echo.Context) error {
	users, err := s.store.ListUsers(c.Request().Context())
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	if users == nil {
		users = []store.User{}
	}
	return c.JSON(http.StatusOK, users)
}

// getUser returns one user.
// GET /api/v1/users/:id
func (s *Server) getUser(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	user, err := s.store.GetUser(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errorJSON(c, http.StatusNotFound, errors.New("user not found"))
		}
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, user)
}

// createUser inserts a user row.
// POST /api/v1/users
func (s *Server) createUser(c echo.Context) error {
	var req userRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	if req.Name == "" {
		return errorJSON(c, http.StatusBadRequest, errors.New("user name is required"))
	}

	user, err := s.store.CreateUser(c.Request().Context(), req.Name, req.PlexToken, req.CanSync, req.RequiresApproval)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusCreated, user)
}

// updateUser replaces a user's mutable fields. New feed membership takes
// effect on the next pipeline restart or manual sync.
// PUT /api/v1/users/:id
func (s *Server) updateUser(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}

	var req userRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	if req.Name == "" {
		return errorJSON(c, http.StatusBadRequest, errors.New("user name is required"))
	}

	ctx := c.Request().Context()
	token := req.PlexToken
	if token == "" {
		existing, err := s.store.GetUser(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errorJSON(c, http.StatusNotFound, errors.New("user not found"))
			}
			return errorJSON(c, http.StatusInternalServerError, err)
		}
		token = existing.PlexToken
	}

	user, err := s.store.UpdateUser(ctx, store.User{
		ID:               id,
		Name:             req.Name,
		PlexToken:        token,
		CanSync:          req.CanSync,
		RequiresApproval: req.RequiresApproval,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errorJSON(c, http.StatusNotFound, errors.New("user not found"))
		}
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, user)
}

// deleteUser removes a user and its quota configuration.
// DELETE /api/v1/users/:id
func (s *Server) deleteUser(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	if err := s.store.DeleteUser(c.Request().Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errorJSON(c, http.StatusNotFound, errors.New("user not found"))
		}
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// listUserQuotas returns a user's quota configuration.
// GET /api/v1/users/:id/quotas
func (s *Server) listUserQuotas(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	quotas, err := s.store.ListUserQuotas(c.Request().Context(), id)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	if quotas == nil {
		quotas = []store.QuotaConfig{}
	}
	return c.JSON(http.StatusOK, quotas)
}

// setUserQuota inserts or replaces a quota for one content type.
// PUT /api/v1/users/:id/quotas
func (s *Server) setUserQuota(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}

	var quota store.QuotaConfig
	if err := c.Bind(&quota); err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	quota.UserID = id
	if err := validateQuota(quota); err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}

	if err := s.store.UpsertUserQuota(c.Request().Context(), quota); err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, quota)
}

// getQuotaStatus reports current usage against a user's quota window.
// GET /api/v1/users/:id/quotas/:contentType/status
func (s *Server) getQuotaStatus(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	contentType := watchlist.ContentType(c.Param("contentType"))
	if contentType != watchlist.ContentTypeMovie && contentType != watchlist.ContentTypeShow {
		return errorJSON(c, http.StatusBadRequest, errors.New("unknown content type"))
	}

	status, err := s.gate.QuotaStatus(c.Request().Context(), id, contentType)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, status)
}

func validateQuota(q store.QuotaConfig) error {
	if q.ContentType != watchlist.ContentTypeMovie && q.ContentType != watchlist.ContentTypeShow {
		return errors.New("unknown content type")
	}
	switch q.QuotaType {
	case store.QuotaDaily, store.QuotaWeeklyRolling, store.QuotaMonthly:
	default:
		return errors.New("unknown quota type")
	}
	return nil
}
