package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"groundflow/internal/models"
)

// AuditRepo stores one row per finalised query. Rows are insert-only; there
// is deliberately no update or delete path.
type AuditRepo struct {
	db *DB
}

func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Append(ctx context.Context, rec models.AuditRecord) error {
	retrieved, err := json.Marshal(rec.Retrieved)
	if err != nil {
		return fmt.Errorf("marshal retrieved hits: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
INSERT INTO audit_records (request_id, snapshot_id, query, retrieved, used_sources, rule_set_version, outcome, created_at)
VALUES (NULLIF($1,'')::uuid, NULLIF($2,''), $3, $4, $5, $6, $7, $8)`,
		rec.RequestID, rec.SnapshotID, rec.Query, retrieved, rec.UsedSources, rec.RuleSetVersion, rec.Outcome, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (r *AuditRepo) ListBySnapshot(ctx context.Context, snapshotID string, limit int) ([]models.AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT request_id::text, COALESCE(snapshot_id,''), query, retrieved, used_sources, rule_set_version, outcome, created_at
FROM audit_records
WHERE snapshot_id=$1
ORDER BY created_at DESC
LIMIT $2`, snapshotID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	out := make([]models.AuditRecord, 0, limit)
	for rows.Next() {
		var rec models.AuditRecord
		var retrieved []byte
		if err := rows.Scan(&rec.RequestID, &rec.SnapshotID, &rec.Query, &retrieved, &rec.UsedSources, &rec.RuleSetVersion, &rec.Outcome, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		if err := json.Unmarshal(retrieved, &rec.Retrieved); err != nil {
			return nil, fmt.Errorf("decode retrieved hits: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return out, nil
}
