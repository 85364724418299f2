package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// MockProvider serves deterministic embeddings and canned generations for
// tests and offline development. Vectors depend only on the input text and
// dimension, so index builds and retrievals are reproducible.
type MockProvider struct {
	dim int
}

func NewMockProvider(dim int) *MockProvider {
	if dim <= 0 {
		dim = 1536
	}
	return &MockProvider{dim: dim}
}

func (m *MockProvider) ModelID() string {
	return fmt.Sprintf("mock-embed-%d", m.dim)
}

func (m *MockProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	_ = ctx
	dim := req.Dimension
	if dim <= 0 {
		dim = m.dim
	}
	vectors := make([][]float32, 0, len(req.Inputs))
	for _, input := range req.Inputs {
		vectors = append(vectors, deterministicVector(input, dim))
	}
	return vectors, ProviderInfo{Name: "mock", Model: fmt.Sprintf("mock-embed-%d", dim), Key: "mock"}, nil
}

func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	_ = ctx
	info := ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}
	if strings.Contains(strings.ToLower(req.Operation), "ask") {
		return GenerateResponse{Text: "Deterministic grounded answer built from the provided context only."}, info, nil
	}
	return GenerateResponse{Text: "Mock response."}, info, nil
}

// deterministicVector hashes the input into a unit vector. Token overlap
// between two texts raises their cosine similarity, which is enough signal
// for retrieval tests.
func deterministicVector(input string, dim int) []float32 {
	vec := make([]float32, dim)
	for _, tok := range strings.Fields(strings.ToLower(input)) {
		h := sha256.Sum256([]byte(tok))
		idx := int(binary.BigEndian.Uint32(h[:4])) % dim
		if idx < 0 {
			idx += dim
		}
		sign := float32(1)
		if h[4]%2 == 1 {
			sign = -1
		}
		vec[idx] += sign
	}
	if isZero(vec) {
		h := sha256.Sum256([]byte(input))
		for i := 0; i < dim; i++ {
			u := binary.BigEndian.Uint32(h[(i*4)%28 : (i*4)%28+4])
			vec[i] = float32(u%2000)/1000.0 - 1.0
		}
	}
	return normalize(vec)
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}
