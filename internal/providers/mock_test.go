package providers

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMockEmbedDeterministic(t *testing.T) {
	p := NewMockProvider(64)
	first, _, err := p.Embed(context.Background(), EmbedRequest{Inputs: []string{"signal detection", "unrelated topic"}})
	require.NoError(t, err)
	second, _, err := p.Embed(context.Background(), EmbedRequest{Inputs: []string{"signal detection", "unrelated topic"}})
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, first[0], 64)
}

func TestMockEmbedSimilarityTracksTokenOverlap(t *testing.T) {
	p := NewMockProvider(128)
	vecs, _, err := p.Embed(context.Background(), EmbedRequest{Inputs: []string{
		"signal detection in pharmacovigilance",
		"pharmacovigilance signal detection methods",
		"completely different subject matter entirely",
	}})
	require.NoError(t, err)
	require.Greater(t, cosine(vecs[0], vecs[1]), cosine(vecs[0], vecs[2]))
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
