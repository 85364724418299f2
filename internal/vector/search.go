package vector

import (
	"context"
	"fmt"
	"strings"

	"groundflow/internal/models"

	"github.com/jackc/pgx/v5"
)

// Searcher runs nearest-neighbor queries against the chunks table using the
// pgvector distance operator. It is the database-backed counterpart of the
// in-memory index: always scoped to one snapshot and one embedding model, so
// vectors from different builds never mix.
type Searcher struct {
	q Queryer
}

type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func NewSearcher(q Queryer) *Searcher {
	return &Searcher{q: q}
}

type SearchParams struct {
	SnapshotID       string
	EmbeddingModelID string
	TopK             int
	ScoreThreshold   float64
}

func (s *Searcher) SearchChunks(ctx context.Context, queryVec []float32, p SearchParams) ([]models.ChunkHit, error) {
	if p.TopK <= 0 {
		p.TopK = 8
	}
	query := `
SELECT c.chunk_id,
       1 - (c.embedding <=> $2::vector) AS score
FROM chunks c
WHERE c.snapshot_id = $1
  AND c.embedding IS NOT NULL
  AND c.embedding_model_id = $3
  AND 1 - (c.embedding <=> $2::vector) >= $4
ORDER BY c.embedding <=> $2::vector, c.chunk_id
LIMIT $5`

	rows, err := s.q.Query(ctx, query, p.SnapshotID, ToLiteral(queryVec), p.EmbeddingModelID, p.ScoreThreshold, p.TopK)
	if err != nil {
		return nil, fmt.Errorf("query vector search: %w", err)
	}
	defer rows.Close()

	hits := make([]models.ChunkHit, 0, p.TopK)
	for rows.Next() {
		var h models.ChunkHit
		if err := rows.Scan(&h.ChunkID, &h.Score); err != nil {
			return nil, fmt.Errorf("scan chunk hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return hits, nil
}

// ToLiteral renders a vector as the pgvector input literal.
func ToLiteral(v []float32) string {
	parts := make([]string, 0, len(v))
	for _, x := range v {
		parts = append(parts, fmt.Sprintf("%f", x))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
