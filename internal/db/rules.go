package db

import (
	"context"
	"fmt"

	"github.com/spm-edge/spmedge/internal/spmedge"
)

// CreateCleaningRule inserts a cleaning rule and fills in its ID.
func (d *DB) CreateCleaningRule(ctx context.Context, r *spmedge.CleaningRule) error {
	err := d.Pool.QueryRowContext(ctx,
		`INSERT INTO cleaning_rules (type_id, pattern, replacement, kind, priority, context, condition, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		r.TypeID, r.Pattern, r.Replacement, string(r.Kind), r.Priority, r.Context, r.Condition, r.Active,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("insert cleaning rule: %w", err)
	}
	return nil
}

// GetCleaningRules returns active rules for a document type, plus rules
// registered for all types (empty type_id). An empty typeID returns only
// the global rules. Ordering: priority ascending, then insertion order.
func (d *DB) GetCleaningRules(ctx context.Context, typeID string) ([]*spmedge.CleaningRule, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT id, type_id, pattern, replacement, kind, priority, context, condition, active
		 FROM cleaning_rules
		 WHERE active AND (type_id = '' OR type_id = $1)
		 ORDER BY priority, id`, typeID,
	)
	if err != nil {
		return nil, fmt.Errorf("list cleaning rules: %w", err)
	}
	defer rows.Close()

	var result []*spmedge.CleaningRule
	for rows.Next() {
		r := &spmedge.CleaningRule{}
		var kind string
		if err := rows.Scan(&r.ID, &r.TypeID, &r.Pattern, &r.Replacement, &kind,
			&r.Priority, &r.Context, &r.Condition, &r.Active); err != nil {
			return nil, fmt.Errorf("scan cleaning rule: %w", err)
		}
		r.Kind = spmedge.RuleKind(kind)
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cleaning rules: %w", err)
	}
	return result, nil
}

// SetRuleActive toggles a rule's participation in cleaning.
func (d *DB) SetRuleActive(ctx context.Context, id int64, active bool) error {
	res, err := d.Pool.ExecContext(ctx,
		`UPDATE cleaning_rules SET active = $1 WHERE id = $2`, active, id,
	)
	if err != nil {
		return fmt.Errorf("set rule active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("cleaning rule %d: %w", id, spmedge.ErrNotFound)
	}
	return nil
}
