package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// NotificationConfig is a notifier configuration row.
type NotificationConfig struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Enabled  bool            `json:"enabled"`
	Settings json.RawMessage `json:"settings"`

	OnDispatch         bool `json:"onDispatch"`
	OnDispatchFailed   bool `json:"onDispatchFailed"`
	OnApprovalCreated  bool `json:"onApprovalCreated"`
	OnApprovalResolved bool `json:"onApprovalResolved"`
	OnHealthIssue      bool `json:"onHealthIssue"`
	OnHealthRestored   bool `json:"onHealthRestored"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

const notificationColumns = `id, name, type, enabled, settings,
	on_dispatch, on_dispatch_failed, on_approval_created,
	on_approval_resolved, on_health_issue, on_health_restored,
	created_at, updated_at`

// ListNotifications returns every notifier configuration.
func (s *Store) ListNotifications(ctx context.Context) ([]NotificationConfig, error) {
	return s.queryNotifications(ctx, `SELECT `+notificationColumns+` FROM notifications ORDER BY id`)
}

// ListEnabledNotifications returns all enabled notifier configurations.
func (s *Store) ListEnabledNotifications(ctx context.Context) ([]NotificationConfig, error) {
	return s.queryNotifications(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE enabled = 1 ORDER BY id`)
}

// GetNotification returns one notifier configuration by ID.
func (s *Store) GetNotification(ctx context.Context, id int64) (*NotificationConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	return scanNotification(row)
}

func (s *Store) queryNotifications(ctx context.Context, query string, args ...any) ([]NotificationConfig, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []NotificationConfig
	for rows.Next() {
		cfg, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

// CreateNotification inserts a notifier configuration and returns its ID.
func (s *Store) CreateNotification(ctx context.Context, cfg NotificationConfig) (int64, error) {
	settings := cfg.Settings
	if settings == nil {
		settings = json.RawMessage("{}")
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications
			(name, type, enabled, settings, on_dispatch, on_dispatch_failed,
			 on_approval_created, on_approval_resolved, on_health_issue, on_health_restored)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.Name, cfg.Type, boolToInt(cfg.Enabled), string(settings),
		boolToInt(cfg.OnDispatch), boolToInt(cfg.OnDispatchFailed),
		boolToInt(cfg.OnApprovalCreated), boolToInt(cfg.OnApprovalResolved),
		boolToInt(cfg.OnHealthIssue), boolToInt(cfg.OnHealthRestored))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateNotification replaces a notifier configuration's fields.
func (s *Store) UpdateNotification(ctx context.Context, cfg NotificationConfig) error {
	settings := cfg.Settings
	if settings == nil {
		settings = json.RawMessage("{}")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET name = ?, type = ?, enabled = ?, settings = ?,
		    on_dispatch = ?, on_dispatch_failed = ?, on_approval_created = ?,
		    on_approval_resolved = ?, on_health_issue = ?, on_health_restored = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		cfg.Name, cfg.Type, boolToInt(cfg.Enabled), string(settings),
		boolToInt(cfg.OnDispatch), boolToInt(cfg.OnDispatchFailed),
		boolToInt(cfg.OnApprovalCreated), boolToInt(cfg.OnApprovalResolved),
		boolToInt(cfg.OnHealthIssue), boolToInt(cfg.OnHealthRestored), cfg.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteNotification removes a notifier configuration.
func (s *Store) DeleteNotification(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanNotification(row rowScanner) (*NotificationConfig, error) {
	var cfg NotificationConfig
	var settings string
	var enabled, onDispatch, onFailed, onCreated, onResolved, onIssue, onRestored int64
	if err := row.Scan(&cfg.ID, &cfg.Name, &cfg.Type, &enabled, &settings,
		&onDispatch, &onFailed, &onCreated, &onResolved, &onIssue, &onRestored,
		&cfg.CreatedAt, &cfg.UpdatedAt); err != nil {
		return nil, err
	}
	cfg.Enabled = enabled != 0
	cfg.Settings = json.RawMessage(settings)
	cfg.OnDispatch = onDispatch != 0
	cfg.OnDispatchFailed = onFailed != 0
	cfg.OnApprovalCreated = onCreated != 0
	cfg.OnApprovalResolved = onResolved != 0
	cfg.OnHealthIssue = onIssue != 0
	cfg.OnHealthRestored = onRestored != 0
	return &cfg, nil
}
