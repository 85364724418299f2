package storage

import (
	"context"
	"fmt"

	"groundflow/internal/models"
)

type SnapshotRepo struct {
	db *DB
}

func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// CreateSnapshot registers a new immutable extraction run. Snapshot rows are
// never updated except for the publish flag flip.
func (r *SnapshotRepo) CreateSnapshot(ctx context.Context, s models.Snapshot) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO snapshots (snapshot_id, corpus_id, chunk_count, published)
VALUES ($1, $2, $3, FALSE)
ON CONFLICT (snapshot_id) DO NOTHING`,
		s.SnapshotID, s.CorpusID, s.ChunkCount)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// MarkPublished flips the published flag for one snapshot and clears it for
// every other snapshot of the same corpus, in one transaction, so readers
// always see exactly one published snapshot per corpus.
func (r *SnapshotRepo) MarkPublished(ctx context.Context, corpusID, snapshotID string) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx publish snapshot: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `UPDATE snapshots SET published=FALSE WHERE corpus_id=$1`, corpusID); err != nil {
		return fmt.Errorf("unpublish snapshots: %w", err)
	}
	tag, err := tx.Exec(ctx, `UPDATE snapshots SET published=TRUE WHERE corpus_id=$1 AND snapshot_id=$2`, corpusID, snapshotID)
	if err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("publish snapshot: %s not found for corpus %s", snapshotID, corpusID)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit publish tx: %w", err)
	}
	return nil
}

func (r *SnapshotRepo) GetPublished(ctx context.Context, corpusID string) (models.Snapshot, error) {
	var s models.Snapshot
	err := r.db.Pool.QueryRow(ctx, `
SELECT snapshot_id, corpus_id, chunk_count, published, created_at
FROM snapshots
WHERE corpus_id=$1 AND published=TRUE`, corpusID).
		Scan(&s.SnapshotID, &s.CorpusID, &s.ChunkCount, &s.Published, &s.CreatedAt)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("get published snapshot: %w", err)
	}
	return s, nil
}

func (r *SnapshotRepo) ListSnapshots(ctx context.Context, corpusID string) ([]models.Snapshot, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT snapshot_id, corpus_id, chunk_count, published, created_at
FROM snapshots
WHERE corpus_id=$1
ORDER BY created_at DESC`, corpusID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]models.Snapshot, 0)
	for rows.Next() {
		var s models.Snapshot
		if err := rows.Scan(&s.SnapshotID, &s.CorpusID, &s.ChunkCount, &s.Published, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}
