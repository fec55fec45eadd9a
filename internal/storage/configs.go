package storage

import (
	"database/sql"
	"time"

	"github.com/logwarden/logwarden/internal/types"
)

// --- System Config Storage ---

// ConfigValue returns the raw value for a config key. The second return is
// false when the key is absent or the entry is inactive; parsing and
// defaulting are the caller's concern.
func (s *SQLite) ConfigValue(key string) (string, bool, error) {
	var value string
	var active bool
	err := s.db.QueryRow(
		"SELECT config_value, is_active FROM system_configs WHERE config_key = ?", key,
	).Scan(&value, &active)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if !active {
		return "", false, nil
	}
	return value, true, nil
}

// UpsertConfig inserts or replaces the entry for cfg.ConfigKey.
func (s *SQLite) UpsertConfig(cfg *types.SystemConfig) error {
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO system_configs (config_key, config_value, category, description, value_type, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(config_key) DO UPDATE SET
			config_value = excluded.config_value,
			category = excluded.category,
			description = excluded.description,
			value_type = excluded.value_type,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		cfg.ConfigKey, cfg.ConfigValue, cfg.Category, cfg.Description,
		cfg.ValueType, cfg.IsActive, now, now,
	)
	return err
}

// SeedDefaultConfigs inserts the rule parameter rows the engine reads,
// without touching keys an operator already changed.
func (s *SQLite) SeedDefaultConfigs() error {
	defaults := []types.SystemConfig{
		{ConfigKey: types.ConfigBruteForceThreshold, ConfigValue: "5", Category: "alert",
			Description: "Failed logins per IP before a brute force alert fires", ValueType: "int"},
		{ConfigKey: types.ConfigBruteForceWindow, ConfigValue: "5", Category: "alert",
			Description: "Sliding window in minutes for brute force detection", ValueType: "int"},
		{ConfigKey: types.ConfigErrorLogEnabled, ConfigValue: "true", Category: "alert",
			Description: "Raise an alert for every ERROR level log event", ValueType: "boolean"},
	}
	now := time.Now()
	for _, d := range defaults {
		_, err := s.db.Exec(
			`INSERT OR IGNORE INTO system_configs (config_key, config_value, category, description, value_type, is_active, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
			d.ConfigKey, d.ConfigValue, d.Category, d.Description, d.ValueType, now, now,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListConfigs returns all config entries, optionally restricted to a category.
func (s *SQLite) ListConfigs(category string) ([]types.SystemConfig, error) {
	query := `SELECT id, config_key, config_value, category, description, value_type, is_active, created_at, updated_at
		 FROM system_configs`
	var args []interface{}
	if category != "" {
		query += " WHERE category = ?"
		args = append(args, category)
	}
	query += " ORDER BY config_key"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []types.SystemConfig
	for rows.Next() {
		var c types.SystemConfig
		if err := rows.Scan(&c.ID, &c.ConfigKey, &c.ConfigValue, &c.Category,
			&c.Description, &c.ValueType, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}
