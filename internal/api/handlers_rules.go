package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/helmarr/helmarr/internal/store"
)

// listRules returns all routing rules in evaluation order.
// GET /api/v1/rules
func (s *Server) listRules(c echo.Context) error {
	rules, err := s.store.ListRules(c.Request().Context())
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	if rules == nil {
		rules = []store.RoutingRule{}
	}
	return c.JSON(http.StatusOK, rules)
}

// getRule returns one routing rule.
// GET /api/v1/rules/:id
func (s *Server) getRule(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	rule, err := s.store.GetRule(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errorJSON(c, http.StatusNotFound, errors.New("rule not found"))
		}
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, rule)
}

// createRule inserts a routing rule. Edits take effect on the next sync cycle.
// POST /api/v1/rules
func (s *Server) createRule(c echo.Context) error {
	var rule store.RoutingRule
	if err := c.Bind(&rule); err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	if err := validateRule(rule); err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}

	id, err := s.store.CreateRule(c.Request().Context(), rule)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	created, err := s.store.GetRule(c.Request().Context(), id)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// updateRule replaces a routing rule.
// PUT /api/v1/rules/:id
func (s *Server) updateRule(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}

	var rule store.RoutingRule
	if err := c.Bind(&rule); err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	rule.ID = id
	if err := validateRule(rule); err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}

	if err := s.store.UpdateRule(c.Request().Context(), rule); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errorJSON(c, http.StatusNotFound, errors.New("rule not found"))
		}
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	updated, err := s.store.GetRule(c.Request().Context(), id)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// deleteRule removes a routing rule.
// DELETE /api/v1/rules/:id
func (s *Server) deleteRule(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err)
	}
	if err := s.store.DeleteRule(c.Request().Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errorJSON(c, http.StatusNotFound, errors.New("rule not found"))
		}
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func validateRule(r store.RoutingRule) error {
	if r.Name == "" {
		return errors.New("rule name is required")
	}
	switch r.Kind {
	case store.RuleKindUser, store.RuleKindGenre, store.RuleKindYear,
		store.RuleKindLanguage, store.RuleKindConditional:
	default:
		return errors.New("unknown rule kind")
	}
	switch r.TargetType {
	case store.TargetSonarr, store.TargetRadarr:
	default:
		return errors.New("unknown target type")
	}
	return nil
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errors.New("invalid id")
	}
	return id, nil
}
