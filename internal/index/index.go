package index

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"groundflow/internal/models"
	"groundflow/internal/providers"
	"groundflow/internal/util"
)

// batchSize bounds one embedding call; large corpora are embedded in slices
// so a single rate-limit does not void the whole build's progress.
const batchSize = 64

// Entry binds one chunk id to its vector.
type Entry struct {
	ChunkID string    `json:"chunk_id"`
	Vector  []float32 `json:"vector"`
}

// VectorIndex is an immutable nearest-neighbor index over one corpus
// snapshot, embedded by exactly one model. It either exists complete or not
// at all; Build never returns a partial index.
type VectorIndex struct {
	ModelID    string  `json:"embedding_model_id"`
	SnapshotID string  `json:"snapshot_id"`
	Dim        int     `json:"dim"`
	Entries    []Entry `json:"entries"`
}

// BuildError reports a failed build together with the chunk ids that were
// never embedded, for the operator's retry report.
type BuildError struct {
	FailedChunkIDs []string
	Err            error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("index build failed for %d chunks (first: %s): %v",
		len(e.FailedChunkIDs), firstOrNone(e.FailedChunkIDs), e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

func firstOrNone(ids []string) string {
	if len(ids) == 0 {
		return "none"
	}
	return ids[0]
}

// SnapshotID derives the corpus snapshot identifier from the sorted chunk
// ids. Identical corpora always hash identically, so a rebuild against the
// same snapshot and model is detectable as a no-op.
func SnapshotID(chunks []models.Chunk) string {
	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		ids = append(ids, c.ChunkID)
	}
	sort.Strings(ids)
	return util.SHA256Hex([]byte(strings.Join(ids, "\n")))[:16]
}

// Build embeds every chunk and assembles the index. Provider failures are
// retried per batch with the given backoff; once retries are exhausted the
// build fails fast, reporting which chunk ids were not embedded.
func Build(ctx context.Context, chunks []models.Chunk, embedder providers.EmbeddingProvider, backoff providers.Backoff) (*VectorIndex, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("cannot build index over empty chunk corpus")
	}
	idx := &VectorIndex{
		ModelID:    embedder.ModelID(),
		SnapshotID: SnapshotID(chunks),
		Entries:    make([]Entry, 0, len(chunks)),
	}

	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		inputs := make([]string, 0, len(batch))
		for _, c := range batch {
			inputs = append(inputs, c.Text)
		}

		var vectors [][]float32
		err := backoff.Do(ctx, func(ctx context.Context) error {
			var embedErr error
			vectors, _, embedErr = embedder.Embed(ctx, providers.EmbedRequest{
				Operation: "index_build_embed",
				Inputs:    inputs,
			})
			return embedErr
		})
		if err != nil {
			return nil, &BuildError{FailedChunkIDs: remainingIDs(chunks[start:]), Err: err}
		}
		if len(vectors) != len(batch) {
			return nil, &BuildError{
				FailedChunkIDs: remainingIDs(chunks[start:]),
				Err:            fmt.Errorf("embedder returned %d vectors for %d inputs", len(vectors), len(batch)),
			}
		}

		for i, vec := range vectors {
			if idx.Dim == 0 {
				idx.Dim = len(vec)
			}
			if len(vec) != idx.Dim {
				return nil, &BuildError{
					FailedChunkIDs: []string{batch[i].ChunkID},
					Err:            fmt.Errorf("vector dimension %d does not match index dimension %d", len(vec), idx.Dim),
				}
			}
			idx.Entries = append(idx.Entries, Entry{ChunkID: batch[i].ChunkID, Vector: vec})
		}
	}
	return idx, nil
}

func remainingIDs(chunks []models.Chunk) []string {
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, c.ChunkID)
	}
	return out
}

// Save persists the index as one JSON artifact. The write is atomic
// (temp file + rename), so readers of the path never observe a partial index.
func (idx *VectorIndex) Save(path string) error {
	return util.WriteJSONAtomic(path, idx)
}

// Load reads a persisted index back, verifying the round trip kept the
// (chunk_id, vector, model_id) associations intact.
func Load(path string) (*VectorIndex, error) {
	var idx VectorIndex
	if err := util.ReadJSON(path, &idx); err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	if idx.ModelID == "" || idx.SnapshotID == "" {
		return nil, fmt.Errorf("load index: missing model or snapshot identity in %s", path)
	}
	for _, e := range idx.Entries {
		if len(e.Vector) != idx.Dim {
			return nil, fmt.Errorf("load index: chunk %s has dimension %d, index declares %d", e.ChunkID, len(e.Vector), idx.Dim)
		}
	}
	return &idx, nil
}
