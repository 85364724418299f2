package activities

import "groundflow/internal/models"

type ListSourcesInput struct {
	InputDir string `json:"input_dir"`
}

type ListSourcesOutput struct {
	Paths []string `json:"paths"`
}

type ExtractDocumentInput struct {
	SourcePath string `json:"source_path"`
}

type ExtractDocumentOutput struct {
	Document models.Document `json:"document"`
}

type ChunkDocumentInput struct {
	Document models.Document `json:"document"`
}

type ChunkDocumentOutput struct {
	Chunks          []models.Chunk `json:"chunks"`
	DroppedSections int            `json:"dropped_sections"`
}

type WriteDocumentArtifactsInput struct {
	CorpusID      string         `json:"corpus_id"`
	DocID         string         `json:"doc_id"`
	Metadata      map[string]any `json:"metadata"`
	Chunks        []models.Chunk `json:"chunks"`
	ProcessingLog map[string]any `json:"processing_log"`
}

type AssembleSnapshotInput struct {
	CorpusID  string            `json:"corpus_id"`
	Documents []models.Document `json:"documents"`
	Chunks    []models.Chunk    `json:"chunks"`
}

type AssembleSnapshotOutput struct {
	SnapshotID string `json:"snapshot_id"`
	ChunkCount int    `json:"chunk_count"`
}

type RunQCInput struct {
	CorpusID   string         `json:"corpus_id"`
	SnapshotID string         `json:"snapshot_id"`
	Chunks     []models.Chunk `json:"chunks"`
}

type RunQCOutput struct {
	Report     models.QCReport `json:"report"`
	ReportPath string          `json:"report_path"`
}

type SampleChunksInput struct {
	CorpusID   string         `json:"corpus_id"`
	SnapshotID string         `json:"snapshot_id"`
	Chunks     []models.Chunk `json:"chunks"`
	N          int            `json:"n"`
	Seed       int64          `json:"seed"`
	Section    string         `json:"section,omitempty"`
}

type SampleChunksOutput struct {
	ChunkIDs []string `json:"chunk_ids"`
	Path     string   `json:"path"`
}

type BuildIndexInput struct {
	CorpusID      string         `json:"corpus_id"`
	SnapshotID    string         `json:"snapshot_id"`
	Chunks        []models.Chunk `json:"chunks"`
	ProviderIndex int            `json:"provider_index"`
}

type BuildIndexOutput struct {
	IndexPath    string `json:"index_path"`
	ModelID      string `json:"embedding_model_id"`
	ProviderName string `json:"provider_name"`
	EntryCount   int    `json:"entry_count"`
}

type PublishSnapshotInput struct {
	CorpusID   string `json:"corpus_id"`
	SnapshotID string `json:"snapshot_id"`
	IndexPath  string `json:"index_path"`
	ModelID    string `json:"embedding_model_id"`
}

type PublishSnapshotOutput struct {
	PointerPath string `json:"pointer_path"`
}

type WriteBuildSummaryInput struct {
	CorpusID string         `json:"corpus_id"`
	RunID    string         `json:"run_id"`
	Summary  map[string]any `json:"summary"`
}

type WriteBuildSummaryOutput struct {
	Path string `json:"path"`
}
