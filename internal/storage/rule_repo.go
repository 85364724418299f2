package storage

import (
	"context"
	"fmt"

	"groundflow/internal/models"
)

// RuleRepo records the governance rule sets that have judged answers, keyed
// by the rule-set fingerprint the audit trail references. Rule rows are
// write-once per (version, rule id).
type RuleRepo struct {
	db *DB
}

func NewRuleRepo(db *DB) *RuleRepo {
	return &RuleRepo{db: db}
}

// SyncRuleSet persists every rule of a loaded set under its fingerprint.
// Re-syncing an already stored set is a no-op.
func (r *RuleRepo) SyncRuleSet(ctx context.Context, setVersion string, rules []models.RuleDoc) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rule sync: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, rd := range rules {
		_, err := tx.Exec(ctx, `
INSERT INTO rules (rule_set_version, rule_id, version, status, priority, topic, body)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
ON CONFLICT (rule_set_version, rule_id) DO NOTHING`,
			setVersion, rd.ID, rd.Version, string(rd.Status), rd.Priority, rd.Topic, rd.Body)
		if err != nil {
			return fmt.Errorf("insert rule %s: %w", rd.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rule sync: %w", err)
	}
	return nil
}

// ListRules returns the rules stored under one rule-set fingerprint, in
// rule-id order.
func (r *RuleRepo) ListRules(ctx context.Context, setVersion string) ([]models.RuleDoc, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT rule_id, version, status, priority, COALESCE(topic, ''), body
FROM rules
WHERE rule_set_version = $1
ORDER BY rule_id`, setVersion)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []models.RuleDoc
	for rows.Next() {
		var rd models.RuleDoc
		var status string
		if err := rows.Scan(&rd.ID, &rd.Version, &status, &rd.Priority, &rd.Topic, &rd.Body); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rd.Status = models.DocStatus(status)
		out = append(out, rd)
	}
	return out, rows.Err()
}
