package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/helmarr/helmarr/internal/watchlist"
)

// QuotaType identifies how a quota period is measured.
type QuotaType string

const (
	QuotaDaily         QuotaType = "daily"
	QuotaWeeklyRolling QuotaType = "weekly_rolling"
	QuotaMonthly       QuotaType = "monthly"
)

// User is a watchlist owner. Owned by the admin surface; read-only here.
type User struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	PlexToken        string    `json:"-"`
	CanSync          bool      `json:"canSync"`
	RequiresApproval bool      `json:"requiresApproval"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// QuotaConfig is a per-user, per-content-type request quota.
// QuotaLimit <= 0 means unlimited.
type QuotaConfig struct {
	UserID         int64                 `json:"userId"`
	ContentType    watchlist.ContentType `json:"contentType"`
	QuotaType      QuotaType             `json:"quotaType"`
	QuotaLimit     int64                 `json:"quotaLimit"`
	BypassApproval bool                  `json:"bypassApproval"`
}

// GetUser returns a user by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, plex_token, can_sync, requires_approval, created_at, updated_at
		FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// ListSyncUsers returns all users with watchlist sync enabled.
func (s *Store) ListSyncUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, plex_token, can_sync, requires_approval, created_at, updated_at
		FROM users WHERE can_sync = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// ListUsers returns every user, sync-enabled or not.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, plex_token, can_sync, requires_approval, created_at, updated_at
		FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// CreateUser inserts a user row and returns it.
func (s *Store) CreateUser(ctx context.Context, name, plexToken string, canSync, requiresApproval bool) (*User, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (name, plex_token, can_sync, requires_approval) VALUES (?, ?, ?, ?)`,
		name, plexToken, boolToInt(canSync), boolToInt(requiresApproval))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

// UpdateUser updates a user's mutable fields and returns the fresh row.
func (s *Store) UpdateUser(ctx context.Context, u User) (*User, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET name = ?, plex_token = ?, can_sync = ?, requires_approval = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		u.Name, u.PlexToken, boolToInt(u.CanSync), boolToInt(u.RequiresApproval), u.ID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, sql.ErrNoRows
	}
	return s.GetUser(ctx, u.ID)
}

// DeleteUser removes a user and its quota rows.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_quotas WHERE user_id = ?`, id); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListUserQuotas returns all quota configs for one user.
func (s *Store) ListUserQuotas(ctx context.Context, userID int64) ([]QuotaConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, content_type, quota_type, quota_limit, bypass_approval
		FROM user_quotas WHERE user_id = ? ORDER BY content_type`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quotas []QuotaConfig
	for rows.Next() {
		var q QuotaConfig
		var bypass int64
		if err := rows.Scan(&q.UserID, &q.ContentType, &q.QuotaType, &q.QuotaLimit, &bypass); err != nil {
			return nil, err
		}
		q.BypassApproval = bypass != 0
		quotas = append(quotas, q)
	}
	return quotas, rows.Err()
}

// GetUserQuota returns the quota config for a user and content type, or nil
// if no quota is configured.
func (s *Store) GetUserQuota(ctx context.Context, userID int64, contentType watchlist.ContentType) (*QuotaConfig, error) {
	var q QuotaConfig
	var bypass int64
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, content_type, quota_type, quota_limit, bypass_approval
		FROM user_quotas WHERE user_id = ? AND content_type = ?`,
		userID, string(contentType)).
		Scan(&q.UserID, &q.ContentType, &q.QuotaType, &q.QuotaLimit, &bypass)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	q.BypassApproval = bypass != 0
	return &q, nil
}

// UpsertUserQuota inserts or replaces a user's quota config.
func (s *Store) UpsertUserQuota(ctx context.Context, q QuotaConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_quotas (user_id, content_type, quota_type, quota_limit, bypass_approval)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, content_type) DO UPDATE SET
			quota_type = excluded.quota_type,
			quota_limit = excluded.quota_limit,
			bypass_approval = excluded.bypass_approval`,
		q.UserID, string(q.ContentType), string(q.QuotaType), q.QuotaLimit, boolToInt(q.BypassApproval))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	var canSync, requiresApproval int64
	err := row.Scan(&u.ID, &u.Name, &u.PlexToken, &canSync, &requiresApproval, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.CanSync = canSync != 0
	u.RequiresApproval = requiresApproval != 0
	return &u, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
