package storage

import (
	"context"
	"fmt"

	"groundflow/internal/models"
)

// ChunkRecord is the persisted form of one chunk, optionally carrying its
// embedding as a pgvector literal.
type ChunkRecord struct {
	Chunk            models.Chunk
	SnapshotID       string
	EmbeddingModelID string
	EmbeddingVector  *string
}

type ChunkRepo struct {
	db *DB
}

func NewChunkRepo(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

func (r *ChunkRepo) UpsertChunks(ctx context.Context, records []ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx upsert chunks: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, rec := range records {
		c := rec.Chunk
		_, err := tx.Exec(ctx, `
INSERT INTO chunks (chunk_id, snapshot_id, doc_id, source_path, section, ordinal, text,
                    status, version, priority, topic, embedding_model_id, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11,''), NULLIF($12,''),
        CASE WHEN $13::text IS NULL THEN NULL ELSE $13::vector END)
ON CONFLICT (chunk_id, snapshot_id)
DO UPDATE SET
  text = EXCLUDED.text,
  status = EXCLUDED.status,
  version = EXCLUDED.version,
  priority = EXCLUDED.priority,
  topic = EXCLUDED.topic,
  embedding_model_id = EXCLUDED.embedding_model_id,
  embedding = COALESCE(EXCLUDED.embedding, chunks.embedding)`,
			c.ChunkID, rec.SnapshotID, c.DocID, c.SourcePath, c.Section, c.Ordinal, c.Text,
			string(c.Status), c.Version, c.Priority, c.Topic, rec.EmbeddingModelID, rec.EmbeddingVector,
		)
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ChunkID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks tx: %w", err)
	}
	return nil
}

const chunkColumns = `chunk_id, doc_id, source_path, section, ordinal, text, status, version, priority, COALESCE(topic,'')`

func scanChunk(row interface{ Scan(...any) error }) (models.Chunk, error) {
	var c models.Chunk
	var status string
	if err := row.Scan(&c.ChunkID, &c.DocID, &c.SourcePath, &c.Section, &c.Ordinal, &c.Text,
		&status, &c.Version, &c.Priority, &c.Topic); err != nil {
		return models.Chunk{}, err
	}
	c.Status = models.DocStatus(status)
	return c, nil
}

func (r *ChunkRepo) ListChunksByDoc(ctx context.Context, snapshotID, docID string) ([]models.Chunk, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT `+chunkColumns+`
FROM chunks
WHERE snapshot_id=$1 AND doc_id=$2
ORDER BY section ASC, ordinal ASC`, snapshotID, docID)
	if err != nil {
		return nil, fmt.Errorf("list chunks by doc: %w", err)
	}
	defer rows.Close()

	out := make([]models.Chunk, 0, 64)
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk by doc: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks by doc: %w", err)
	}
	return out, nil
}

func (r *ChunkRepo) ListChunksBySnapshot(ctx context.Context, snapshotID string) ([]models.Chunk, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT `+chunkColumns+`
FROM chunks
WHERE snapshot_id=$1
ORDER BY chunk_id ASC`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("list chunks by snapshot: %w", err)
	}
	defer rows.Close()

	out := make([]models.Chunk, 0, 256)
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk by snapshot: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks by snapshot: %w", err)
	}
	return out, nil
}

// SnapshotChunkSource adapts ChunkRepo to the query-path chunk lookup, bound
// to one snapshot.
type SnapshotChunkSource struct {
	repo       *ChunkRepo
	snapshotID string
}

func NewSnapshotChunkSource(repo *ChunkRepo, snapshotID string) *SnapshotChunkSource {
	return &SnapshotChunkSource{repo: repo, snapshotID: snapshotID}
}

func (s *SnapshotChunkSource) ChunksByID(ctx context.Context, ids []string) ([]models.Chunk, error) {
	if len(ids) == 0 {
		return []models.Chunk{}, nil
	}
	rows, err := s.repo.db.Pool.Query(ctx, `
SELECT `+chunkColumns+`
FROM chunks
WHERE snapshot_id=$1 AND chunk_id = ANY($2)`, s.snapshotID, ids)
	if err != nil {
		return nil, fmt.Errorf("list chunks by ids: %w", err)
	}
	defer rows.Close()

	out := make([]models.Chunk, 0, len(ids))
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk by id: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks by ids: %w", err)
	}
	return out, nil
}
