package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/helmarr/helmarr/internal/store"
)

// listApprovals returns approval requests, optionally filtered by status.
// GET /api/v1/approvals?status=pending
func (s *Server) listApprovals(c echo.Context) error {
	requests, err := s.store.ListApprovals(c.Request().Context(), c.QueryParam("status"))
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	if requests == nil {
		requests = []store.ApprovalRequest{}
	}
	return c.JSON(http.StatusOK, requests)
}

// getApproval returns one approval request by ID.
// GET /api/v1/approvals/:id
func (s *Server) getApproval(c echo.Context) error {
	req, err := s.store.GetApproval(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrApprovalNotFound) {
			return errorJSON(c, http.StatusNotFound, err)
		}
		return errorJSON(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, req)
}

// approveRequest resolves a pending request and dispatches its held decisions.
// POST /api/v1/approvals/:id/approve
func (s *Server) approveRequest(c echo.Context) error {
	req, err := s.gate.Approve(c.Request().Context(), c.Param("id"))
	if err != nil {
		return approvalError(c, err)
	}
	return c.JSON(http.StatusOK, req)
}

// rejectRequest resolves a pending request without dispatching.
// POST /api/v1/approvals/:id/reject
func (s *Server) rejectRequest(c echo.Context) error {
	req, err := s.gate.Reject(c.Request().Context(), c.Param("id"))
	if err != nil {
		return approvalError(c, err)
	}
	return c.JSON(http.StatusOK, req)
}

func approvalError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, store.ErrApprovalNotFound):
		return errorJSON(c, http.StatusNotFound, err)
	case errors.Is(err, store.ErrInvalidTransition):
		return errorJSON(c, http.StatusConflict, err)
	default:
		return errorJSON(c, http.StatusInternalServerError, err)
	}
}
