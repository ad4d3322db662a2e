package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/helmarr/helmarr/internal/watchlist"
)

// Approval request statuses. Pending is the only non-terminal state.
const (
	ApprovalPending      = "pending"
	ApprovalApproved     = "approved"
	ApprovalRejected     = "rejected"
	ApprovalExpired      = "expired"
	ApprovalAutoApproved = "auto_approved"
)

// Approval trigger reasons.
const (
	TriggerQuotaExceeded   = "quota_exceeded"
	TriggerRouterRule      = "router_rule"
	TriggerManualFlag      = "manual_flag"
	TriggerContentCriteria = "content_criteria"
)

var (
	// ErrDuplicateApproval means a pending request already exists for the
	// (user, content) pair. Callers treat it as an idempotent no-op.
	ErrDuplicateApproval = errors.New("pending approval request already exists")

	// ErrApprovalNotFound means no request matched the given ID.
	ErrApprovalNotFound = errors.New("approval request not found")

	// ErrInvalidTransition means the request already reached a terminal state.
	ErrInvalidTransition = errors.New("approval request is not pending")
)

// ApprovalRequest is a routing decision held for human sign-off.
type ApprovalRequest struct {
	ID          string                `json:"id"`
	UserID      int64                 `json:"userId"`
	ContentKey  string                `json:"contentKey"`
	ContentType watchlist.ContentType `json:"contentType"`
	Title       string                `json:"title"`
	Decisions   json.RawMessage       `json:"decisions"`
	TriggeredBy string                `json:"triggeredBy"`
	Status      string                `json:"status"`
	ExpiresAt   *time.Time            `json:"expiresAt,omitempty"`
	ResolvedAt  *time.Time            `json:"resolvedAt,omitempty"`
	CreatedAt   time.Time             `json:"createdAt"`
	UpdatedAt   time.Time             `json:"updatedAt"`
}

// CreateApprovalInput carries the fields for a new approval request.
type CreateApprovalInput struct {
	UserID      int64
	ContentKey  string
	ContentType watchlist.ContentType
	Title       string
	Decisions   json.RawMessage
	TriggeredBy string
	ExpiresAt   *time.Time
}

// CreateApprovalRequest materializes a pending request. At most one pending
// request may exist per (user, content key); the partial unique index enforces
// this under concurrent creates. When a pending request already exists the
// existing row is returned along with ErrDuplicateApproval.
func (s *Store) CreateApprovalRequest(ctx context.Context, in CreateApprovalInput) (*ApprovalRequest, error) {
	if existing, err := s.GetPendingApproval(ctx, in.UserID, in.ContentKey); err == nil && existing != nil {
		return existing, ErrDuplicateApproval
	}

	id := uuid.NewString()
	decisions := in.Decisions
	if decisions == nil {
		decisions = json.RawMessage("[]")
	}

	var expires any
	if in.ExpiresAt != nil {
		expires = in.ExpiresAt.UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approval_requests
			(id, user_id, content_key, content_type, title, decisions, triggered_by, status, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?)`,
		id, in.UserID, in.ContentKey, string(in.ContentType), in.Title, string(decisions), in.TriggeredBy, expires)
	if err != nil {
		// Lost the race against a concurrent create for the same pair.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			if existing, gerr := s.GetPendingApproval(ctx, in.UserID, in.ContentKey); gerr == nil && existing != nil {
				return existing, ErrDuplicateApproval
			}
		}
		return nil, err
	}

	return s.GetApproval(ctx, id)
}

// GetApproval returns a request by ID.
func (s *Store) GetApproval(ctx context.Context, id string) (*ApprovalRequest, error) {
	row := s.db.QueryRowContext(ctx, selectApproval+` WHERE id = ?`, id)
	req, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrApprovalNotFound
	}
	return req, err
}

// GetPendingApproval returns the pending request for a (user, content key)
// pair, or nil if none exists.
func (s *Store) GetPendingApproval(ctx context.Context, userID int64, contentKey string) (*ApprovalRequest, error) {
	row := s.db.QueryRowContext(ctx,
		selectApproval+` WHERE user_id = ? AND content_key = ? AND status = 'pending'`,
		userID, contentKey)
	req, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return req, err
}

// ListApprovals returns requests filtered by status ("" for all), newest first.
func (s *Store) ListApprovals(ctx context.Context, status string) ([]ApprovalRequest, error) {
	query := selectApproval
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ApprovalRequest
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

// ResolveApproval transitions a pending request to a terminal status.
// Terminal states are final: resolving a non-pending request fails with
// ErrInvalidTransition.
func (s *Store) ResolveApproval(ctx context.Context, id, status string) (*ApprovalRequest, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE approval_requests
		SET status = ?, resolved_at = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'`,
		status, now, now, id)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if _, gerr := s.GetApproval(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, ErrInvalidTransition
	}
	return s.GetApproval(ctx, id)
}

// ExpirePendingBefore transitions pending requests past their expiry to the
// given terminal status (expired or auto_approved). Returns the transitioned
// requests so callers can act on them.
func (s *Store) ExpirePendingBefore(ctx context.Context, cutoff time.Time, status string) ([]ApprovalRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		selectApproval+` WHERE status = 'pending' AND expires_at IS NOT NULL AND expires_at <= ?`,
		cutoff.UTC())
	if err != nil {
		return nil, err
	}
	var due []ApprovalRequest
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		due = append(due, *req)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var transitioned []ApprovalRequest
	for _, req := range due {
		resolved, err := s.ResolveApproval(ctx, req.ID, status)
		if err != nil {
			// Raced with an approver; the request is no longer pending.
			if errors.Is(err, ErrInvalidTransition) {
				continue
			}
			return transitioned, err
		}
		transitioned = append(transitioned, *resolved)
	}
	return transitioned, nil
}

// PurgeResolvedBefore deletes resolved requests older than the cutoff.
func (s *Store) PurgeResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM approval_requests
		WHERE status != 'pending' AND resolved_at IS NOT NULL AND resolved_at < ?`,
		cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const selectApproval = `
	SELECT id, user_id, content_key, content_type, title, decisions, triggered_by,
	       status, expires_at, resolved_at, created_at, updated_at
	FROM approval_requests`

func scanApproval(row rowScanner) (*ApprovalRequest, error) {
	var req ApprovalRequest
	var decisions string
	var expiresAt, resolvedAt sql.NullTime
	err := row.Scan(&req.ID, &req.UserID, &req.ContentKey, &req.ContentType, &req.Title,
		&decisions, &req.TriggeredBy, &req.Status, &expiresAt, &resolvedAt,
		&req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}
	req.Decisions = json.RawMessage(decisions)
	if expiresAt.Valid {
		t := expiresAt.Time
		req.ExpiresAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		req.ResolvedAt = &t
	}
	return &req, nil
}
