package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// RuleKind identifies which evaluator owns a routing rule.
type RuleKind string

const (
	RuleKindUser        RuleKind = "user"
	RuleKindGenre       RuleKind = "genre"
	RuleKindYear        RuleKind = "year"
	RuleKindLanguage    RuleKind = "language"
	RuleKindConditional RuleKind = "conditional"
)

// TargetType identifies which manager type a rule routes to.
type TargetType string

const (
	TargetSonarr TargetType = "sonarr"
	TargetRadarr TargetType = "radarr"
)

// RoutingRule routes matching content to a target instance.
// SortOrder is a stable sort key; ties break by rule ID ascending.
type RoutingRule struct {
	ID                    int64           `json:"id"`
	Name                  string          `json:"name"`
	Kind                  RuleKind        `json:"kind"`
	Criteria              json.RawMessage `json:"criteria"`
	TargetType            TargetType      `json:"targetType"`
	TargetInstanceID      int64           `json:"targetInstanceId"`
	RootFolder            string          `json:"rootFolder,omitempty"`
	QualityProfile        string          `json:"qualityProfile,omitempty"`
	SortOrder             int64           `json:"order"`
	Enabled               bool            `json:"enabled"`
	Tags                  []string        `json:"tags"`
	AlwaysRequireApproval bool            `json:"alwaysRequireApproval"`
	BypassUserQuotas      bool            `json:"bypassUserQuotas"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// ListEnabledRules returns all enabled routing rules in stable evaluation
// order (sort_order, then ID).
func (s *Store) ListEnabledRules(ctx context.Context) ([]RoutingRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, kind, criteria, target_type, target_instance_id,
		       COALESCE(root_folder, ''), COALESCE(quality_profile, ''),
		       sort_order, enabled, tags, always_require_approval, bypass_user_quotas,
		       created_at, updated_at
		FROM routing_rules
		WHERE enabled = 1
		ORDER BY sort_order, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []RoutingRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

// CreateRule inserts a routing rule and returns its ID.
func (s *Store) CreateRule(ctx context.Context, r RoutingRule) (int64, error) {
	criteria := r.Criteria
	if criteria == nil {
		criteria = json.RawMessage("{}")
	}
	tags, err := json.Marshal(r.Tags)
	if err != nil {
		return 0, err
	}
	if r.Tags == nil {
		tags = []byte("[]")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO routing_rules
			(name, kind, criteria, target_type, target_instance_id, root_folder,
			 quality_profile, sort_order, enabled, tags, always_require_approval, bypass_user_quotas)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Name, string(r.Kind), string(criteria), string(r.TargetType), r.TargetInstanceID,
		nullIfEmpty(r.RootFolder), nullIfEmpty(r.QualityProfile), r.SortOrder,
		boolToInt(r.Enabled), string(tags), boolToInt(r.AlwaysRequireApproval), boolToInt(r.BypassUserQuotas))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListRules returns every routing rule, disabled ones included.
func (s *Store) ListRules(ctx context.Context) ([]RoutingRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, kind, criteria, target_type, target_instance_id,
		       COALESCE(root_folder, ''), COALESCE(quality_profile, ''),
		       sort_order, enabled, tags, always_require_approval, bypass_user_quotas,
		       created_at, updated_at
		FROM routing_rules
		ORDER BY sort_order, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []RoutingRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

// GetRule returns one routing rule by ID.
func (s *Store) GetRule(ctx context.Context, id int64) (*RoutingRule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, kind, criteria, target_type, target_instance_id,
		       COALESCE(root_folder, ''), COALESCE(quality_profile, ''),
		       sort_order, enabled, tags, always_require_approval, bypass_user_quotas,
		       created_at, updated_at
		FROM routing_rules WHERE id = ?`, id)
	return scanRule(row)
}

// UpdateRule replaces a routing rule's fields.
func (s *Store) UpdateRule(ctx context.Context, r RoutingRule) error {
	criteria := r.Criteria
	if criteria == nil {
		criteria = json.RawMessage("{}")
	}
	tags, err := json.Marshal(r.Tags)
	if err != nil {
		return err
	}
	if r.Tags == nil {
		tags = []byte("[]")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE routing_rules
		SET name = ?, kind = ?, criteria = ?, target_type = ?, target_instance_id = ?,
		    root_folder = ?, quality_profile = ?, sort_order = ?, enabled = ?, tags = ?,
		    always_require_approval = ?, bypass_user_quotas = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		r.Name, string(r.Kind), string(criteria), string(r.TargetType), r.TargetInstanceID,
		nullIfEmpty(r.RootFolder), nullIfEmpty(r.QualityProfile), r.SortOrder,
		boolToInt(r.Enabled), string(tags), boolToInt(r.AlwaysRequireApproval),
		boolToInt(r.BypassUserQuotas), r.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteRule removes a routing rule.
func (s *Store) DeleteRule(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM routing_rules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountRules returns the total number of routing rules.
func (s *Store) CountRules(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM routing_rules`).Scan(&n)
	return n, err
}

func scanRule(row rowScanner) (*RoutingRule, error) {
	var r RoutingRule
	var criteria, tags string
	var enabled, alwaysApproval, bypassQuotas int64
	err := row.Scan(&r.ID, &r.Name, &r.Kind, &criteria, &r.TargetType, &r.TargetInstanceID,
		&r.RootFolder, &r.QualityProfile, &r.SortOrder, &enabled, &tags,
		&alwaysApproval, &bypassQuotas, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Criteria = json.RawMessage(criteria)
	r.Enabled = enabled != 0
	r.AlwaysRequireApproval = alwaysApproval != 0
	r.BypassUserQuotas = bypassQuotas != 0
	if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
		r.Tags = nil
	}
	return &r, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
