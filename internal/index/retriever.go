package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"groundflow/internal/models"
	"groundflow/internal/providers"
)

// ErrEmptyIndex means no index is published or the published index holds zero
// chunks. This is a misconfiguration, distinct from a query that simply has
// no relevant evidence.
var ErrEmptyIndex = errors.New("vector index has no chunks")

// ModelMismatchError is fatal: the query was embedded (or was requested to be
// embedded) with a different model than the index was built with, and vectors
// from different models are not comparable.
type ModelMismatchError struct {
	IndexModelID string
	QueryModelID string
}

func (e *ModelMismatchError) Error() string {
	return fmt.Sprintf("index built with model %q cannot serve query embedded with model %q", e.IndexModelID, e.QueryModelID)
}

// Retriever answers top-k similarity queries against the published index.
type Retriever struct {
	store    *Store
	embedder providers.EmbeddingProvider
	backoff  providers.Backoff
}

func NewRetriever(store *Store, embedder providers.EmbeddingProvider, backoff providers.Backoff) *Retriever {
	return &Retriever{store: store, embedder: embedder, backoff: backoff}
}

// ModelID reports the embedding model the retriever will use for queries.
func (r *Retriever) ModelID() string {
	return r.embedder.ModelID()
}

// Retrieve embeds the query with the index's own model and returns up to k
// hits with score >= threshold, descending by score. An empty result is a
// legitimate "no relevant evidence" outcome, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, threshold float64) ([]models.ChunkHit, error) {
	idx := r.store.Current()
	if idx == nil || len(idx.Entries) == 0 {
		return nil, ErrEmptyIndex
	}
	if r.embedder.ModelID() != idx.ModelID {
		return nil, &ModelMismatchError{IndexModelID: idx.ModelID, QueryModelID: r.embedder.ModelID()}
	}
	if k <= 0 {
		k = 8
	}

	var vectors [][]float32
	err := r.backoff.Do(ctx, func(ctx context.Context) error {
		var embedErr error
		vectors, _, embedErr = r.embedder.Embed(ctx, providers.EmbedRequest{
			Operation: "query_embed",
			Inputs:    []string{query},
			Dimension: idx.Dim,
		})
		return embedErr
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) != idx.Dim {
		return nil, fmt.Errorf("embed query: got dimension %d, index requires %d", vecDim(vectors), idx.Dim)
	}

	queryVec := vectors[0]
	hits := make([]models.ChunkHit, 0, k)
	for _, e := range idx.Entries {
		score := cosine(queryVec, e.Vector)
		if score < threshold {
			continue
		}
		hits = append(hits, models.ChunkHit{ChunkID: e.ChunkID, Score: score})
	}
	// Stable order under floating-point ties: higher score first, then id.
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func vecDim(vectors [][]float32) int {
	if len(vectors) == 0 {
		return 0
	}
	return len(vectors[0])
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
