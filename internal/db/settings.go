package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

// GetSetting returns a pipeline setting value, or "" when unset.
func (d *DB) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := d.Pool.QueryRowContext(ctx,
		`SELECT value FROM pipeline_settings WHERE key = $1`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

// PutSetting stores a pipeline setting, overwriting any previous value.
func (d *DB) PutSetting(ctx context.Context, key, value string) error {
	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO pipeline_settings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("put setting %s: %w", key, err)
	}
	return nil
}

// GetIntSetting reads a setting as an integer, falling back to def when
// the setting is unset or malformed.
func (d *DB) GetIntSetting(ctx context.Context, key string, def int) int {
	v, err := d.GetSetting(ctx, key)
	if err != nil || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetBoolSetting reads a setting as a boolean, falling back to def.
func (d *DB) GetBoolSetting(ctx context.Context, key string, def bool) bool {
	v, err := d.GetSetting(ctx, key)
	if err != nil || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// ListSettings returns every pipeline setting keyed by name.
func (d *DB) ListSettings(ctx context.Context) (map[string]string, error) {
	rows, err := d.Pool.QueryContext(ctx, `SELECT key, value FROM pipeline_settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	result := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		result[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings: %w", err)
	}
	return result, nil
}
