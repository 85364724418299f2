package qc

import (
	"math/rand"
	"sort"

	"groundflow/internal/models"
)

// Sample returns n chunks for manual inspection. The same seed against the
// same corpus snapshot always returns the same chunks: candidates are ordered
// by chunk id before the seeded shuffle, so the input ordering is irrelevant.
// An empty section filter matches everything.
func Sample(chunks []models.Chunk, n int, seed int64, section string) []models.Chunk {
	candidates := make([]models.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if section != "" && c.Section != section {
			continue
		}
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ChunkID < candidates[j].ChunkID })

	if n >= len(candidates) {
		return candidates
	}
	r := rand.New(rand.NewSource(seed))
	perm := r.Perm(len(candidates))
	out := make([]models.Chunk, 0, n)
	for _, idx := range perm[:n] {
		out = append(out, candidates[idx])
	}
	return out
}
