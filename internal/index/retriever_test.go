package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"groundflow/internal/models"
	"groundflow/internal/providers"
)

func buildPublished(t *testing.T, chunks []models.Chunk, dim int) (*Store, *providers.MockProvider) {
	t.Helper()
	embedder := providers.NewMockProvider(dim)
	idx, err := Build(context.Background(), chunks, embedder, providers.DefaultBackoff())
	require.NoError(t, err)
	store := NewStore()
	store.Publish(idx)
	return store, embedder
}

func retrievalCorpus() []models.Chunk {
	return []models.Chunk{
		{ChunkID: "d1:body:0", Text: "refund policy allows returns within thirty days of purchase"},
		{ChunkID: "d1:body:1", Text: "shipping costs are covered for defective items"},
		{ChunkID: "d2:body:0", Text: "the warranty excludes accidental damage and misuse"},
		{ChunkID: "d2:body:1", Text: "contact support before returning any purchase for a refund"},
		{ChunkID: "d3:body:0", Text: "quarterly financial reporting follows the fiscal calendar"},
	}
}

func TestRetrieveScoresNonIncreasing(t *testing.T) {
	store, embedder := buildPublished(t, retrievalCorpus(), 128)
	r := NewRetriever(store, embedder, providers.DefaultBackoff())

	hits, err := r.Retrieve(context.Background(), "refund policy for returns", 5, -1)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for i := 1; i < len(hits); i++ {
		require.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestRetrieveRespectsK(t *testing.T) {
	store, embedder := buildPublished(t, retrievalCorpus(), 128)
	r := NewRetriever(store, embedder, providers.DefaultBackoff())

	hits, err := r.Retrieve(context.Background(), "refund", 2, -1)
	require.NoError(t, err)
	require.LessOrEqual(t, len(hits), 2)
}

func TestRetrieveThresholdExcludes(t *testing.T) {
	store, embedder := buildPublished(t, retrievalCorpus(), 128)
	r := NewRetriever(store, embedder, providers.DefaultBackoff())

	all, err := r.Retrieve(context.Background(), "refund policy", 10, -1)
	require.NoError(t, err)
	require.NotEmpty(t, all)

	// A threshold above the best score yields an empty, non-error result.
	hits, err := r.Retrieve(context.Background(), "refund policy", 10, all[0].Score+0.01)
	require.NoError(t, err)
	require.Empty(t, hits)

	// A threshold between scores keeps only the ones at or above it.
	mid := all[len(all)-1].Score + 1e-9
	filtered, err := r.Retrieve(context.Background(), "refund policy", 10, mid)
	require.NoError(t, err)
	for _, h := range filtered {
		require.GreaterOrEqual(t, h.Score, mid)
	}
	require.Less(t, len(filtered), len(all))
}

func TestRetrieveDeterministic(t *testing.T) {
	store, embedder := buildPublished(t, retrievalCorpus(), 128)
	r := NewRetriever(store, embedder, providers.DefaultBackoff())

	a, err := r.Retrieve(context.Background(), "warranty coverage", 5, -1)
	require.NoError(t, err)
	b, err := r.Retrieve(context.Background(), "warranty coverage", 5, -1)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestRetrieveEmptyIndex(t *testing.T) {
	store := NewStore()
	r := NewRetriever(store, providers.NewMockProvider(128), providers.DefaultBackoff())

	_, err := r.Retrieve(context.Background(), "anything", 5, 0)
	require.ErrorIs(t, err, ErrEmptyIndex)
}

func TestRetrieveModelMismatchIsFatal(t *testing.T) {
	store, _ := buildPublished(t, retrievalCorpus(), 128)
	// A retriever wired to a different embedding model must refuse to serve.
	other := providers.NewMockProvider(256)
	r := NewRetriever(store, other, providers.DefaultBackoff())

	_, err := r.Retrieve(context.Background(), "refund", 5, 0)
	var mismatch *ModelMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, providers.NewMockProvider(128).ModelID(), mismatch.IndexModelID)
	require.Equal(t, other.ModelID(), mismatch.QueryModelID)
}
