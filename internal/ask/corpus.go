package ask

import (
	"context"
	"fmt"

	"groundflow/internal/models"
)

// MemoryCorpus is an in-process ChunkSource backed by the chunk set the
// published index was built from.
type MemoryCorpus struct {
	byID map[string]models.Chunk
}

func NewMemoryCorpus(chunks []models.Chunk) *MemoryCorpus {
	m := &MemoryCorpus{byID: make(map[string]models.Chunk, len(chunks))}
	for _, c := range chunks {
		m.byID[c.ChunkID] = c
	}
	return m
}

func (m *MemoryCorpus) ChunksByID(_ context.Context, ids []string) ([]models.Chunk, error) {
	out := make([]models.Chunk, 0, len(ids))
	for _, id := range ids {
		c, ok := m.byID[id]
		if !ok {
			return nil, fmt.Errorf("chunk %s not in corpus", id)
		}
		out = append(out, c)
	}
	return out, nil
}
