package storage

import (
	"context"
	"fmt"

	"groundflow/internal/models"
)

type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) UpsertDocument(ctx context.Context, snapshotID string, d models.Document) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO documents (doc_id, snapshot_id, source_path, status, version, priority, topic)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7,''))
ON CONFLICT (doc_id, snapshot_id)
DO UPDATE SET
  source_path = EXCLUDED.source_path,
  status = EXCLUDED.status,
  version = EXCLUDED.version,
  priority = EXCLUDED.priority,
  topic = EXCLUDED.topic,
  updated_at = NOW()`,
		d.DocID, snapshotID, d.SourcePath, string(d.Status), d.Version, d.Priority, d.Topic,
	)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

func (r *DocumentRepo) ListDocuments(ctx context.Context, snapshotID string) ([]models.Document, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT doc_id, source_path, status, version, priority, COALESCE(topic,'')
FROM documents
WHERE snapshot_id=$1
ORDER BY doc_id ASC`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]models.Document, 0)
	for rows.Next() {
		var d models.Document
		var status string
		if err := rows.Scan(&d.DocID, &d.SourcePath, &status, &d.Version, &d.Priority, &d.Topic); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.Status = models.DocStatus(status)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (r *DocumentRepo) GetDocument(ctx context.Context, snapshotID, docID string) (models.Document, error) {
	var d models.Document
	var status string
	err := r.db.Pool.QueryRow(ctx, `
SELECT doc_id, source_path, status, version, priority, COALESCE(topic,'')
FROM documents
WHERE snapshot_id=$1 AND doc_id=$2`, snapshotID, docID).
		Scan(&d.DocID, &d.SourcePath, &status, &d.Version, &d.Priority, &d.Topic)
	if err != nil {
		return models.Document{}, fmt.Errorf("get document: %w", err)
	}
	d.Status = models.DocStatus(status)
	return d, nil
}
