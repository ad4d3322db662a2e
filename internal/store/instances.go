package store

import (
	"context"
	"database/sql"
	"time"
)

// Instance is a configured downstream manager (Sonarr or Radarr).
type Instance struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	Type           TargetType `json:"type"`
	URL            string     `json:"url"`
	APIKey         string     `json:"-"`
	QualityProfile string     `json:"qualityProfile"`
	RootFolder     string     `json:"rootFolder"`
	IsDefault      bool       `json:"isDefault"`
	Enabled        bool       `json:"enabled"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// ListEnabledInstances returns all enabled manager instances.
func (s *Store) ListEnabledInstances(ctx context.Context) ([]Instance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, url, api_key, quality_profile, root_folder,
		       is_default, enabled, created_at, updated_at
		FROM arr_instances WHERE enabled = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []Instance
	for rows.Next() {
		var inst Instance
		var isDefault, enabled int64
		if err := rows.Scan(&inst.ID, &inst.Name, &inst.Type, &inst.URL, &inst.APIKey,
			&inst.QualityProfile, &inst.RootFolder, &isDefault, &enabled,
			&inst.CreatedAt, &inst.UpdatedAt); err != nil {
			return nil, err
		}
		inst.IsDefault = isDefault != 0
		inst.Enabled = enabled != 0
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// ListInstances returns every manager instance, disabled ones included.
func (s *Store) ListInstances(ctx context.Context) ([]Instance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, url, api_key, quality_profile, root_folder,
		       is_default, enabled, created_at, updated_at
		FROM arr_instances ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []Instance
	for rows.Next() {
		var inst Instance
		var isDefault, enabled int64
		if err := rows.Scan(&inst.ID, &inst.Name, &inst.Type, &inst.URL, &inst.APIKey,
			&inst.QualityProfile, &inst.RootFolder, &isDefault, &enabled,
			&inst.CreatedAt, &inst.UpdatedAt); err != nil {
			return nil, err
		}
		inst.IsDefault = isDefault != 0
		inst.Enabled = enabled != 0
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// GetInstance returns one manager instance by ID.
func (s *Store) GetInstance(ctx context.Context, id int64) (*Instance, error) {
	var inst Instance
	var isDefault, enabled int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, url, api_key, quality_profile, root_folder,
		       is_default, enabled, created_at, updated_at
		FROM arr_instances WHERE id = ?`, id).
		Scan(&inst.ID, &inst.Name, &inst.Type, &inst.URL, &inst.APIKey,
			&inst.QualityProfile, &inst.RootFolder, &isDefault, &enabled,
			&inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inst.IsDefault = isDefault != 0
	inst.Enabled = enabled != 0
	return &inst, nil
}

// CreateInstance inserts a manager instance and returns its ID.
func (s *Store) CreateInstance(ctx context.Context, inst Instance) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO arr_instances
			(name, type, url, api_key, quality_profile, root_folder, is_default, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.Name, string(inst.Type), inst.URL, inst.APIKey, inst.QualityProfile,
		inst.RootFolder, boolToInt(inst.IsDefault), boolToInt(inst.Enabled))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateInstance replaces a manager instance's fields.
func (s *Store) UpdateInstance(ctx context.Context, inst Instance) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE arr_instances
		SET name = ?, type = ?, url = ?, api_key = ?, quality_profile = ?,
		    root_folder = ?, is_default = ?, enabled = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		inst.Name, string(inst.Type), inst.URL, inst.APIKey, inst.QualityProfile,
		inst.RootFolder, boolToInt(inst.IsDefault), boolToInt(inst.Enabled), inst.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteInstance removes a manager instance. Rules targeting it keep their
// reference; routing falls back to the type default until they are edited.
func (s *Store) DeleteInstance(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM arr_instances WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
