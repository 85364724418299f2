package workflows

import "groundflow/internal/models"

type CorpusBuildInput struct {
	CorpusID              string `json:"corpus_id"`
	InputDir              string `json:"input_dir"`
	MaxConcurrentChildren int    `json:"max_concurrent_children"`
	EmbedProviders        int    `json:"embed_providers"`
	CooldownSeconds       int    `json:"cooldown_seconds"`
	SampleSize            int    `json:"sample_size,omitempty"`
	SampleSeed            int64  `json:"sample_seed,omitempty"`
}

type DocumentProcessInput struct {
	CorpusID   string `json:"corpus_id"`
	SourcePath string `json:"source_path"`
}

type DocumentProcessResult struct {
	Status          string          `json:"status"`
	FailReason      string          `json:"fail_reason,omitempty"`
	Document        models.Document `json:"document"`
	Chunks          []models.Chunk  `json:"chunks"`
	DroppedSections int             `json:"dropped_sections"`
}

type DocumentStatus struct {
	SourcePath  string            `json:"source_path"`
	DocID       string            `json:"doc_id"`
	CurrentStep string            `json:"current_step"`
	Status      string            `json:"status"`
	FailReason  string            `json:"fail_reason,omitempty"`
	Steps       map[string]string `json:"steps"`
}

type CorpusBuildProgress struct {
	CorpusID      string            `json:"corpus_id"`
	SnapshotID    string            `json:"snapshot_id,omitempty"`
	Phase         string            `json:"phase"`
	Total         int               `json:"total"`
	Done          int               `json:"done"`
	Failed        int               `json:"failed"`
	QCVerdict     string            `json:"qc_verdict,omitempty"`
	PerDocument   map[string]string `json:"per_document_status"`
	ChildWorkflow map[string]string `json:"child_workflow_ids,omitempty"`
}
