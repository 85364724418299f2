package activities

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"groundflow/internal/chunker"
	"groundflow/internal/config"
	"groundflow/internal/extract"
	"groundflow/internal/index"
	"groundflow/internal/models"
	"groundflow/internal/providers"
	"groundflow/internal/qc"
	"groundflow/internal/storage"
	"groundflow/internal/util"
	"groundflow/internal/vector"
)

type Activities struct {
	cfg          config.Config
	log          *zap.SugaredLogger
	documentRepo *storage.DocumentRepo
	chunkRepo    *storage.ChunkRepo
	snapshotRepo *storage.SnapshotRepo
	qcRepo       *storage.QCRepo
	providers    *providers.Manager
}

func New(cfg config.Config, db *storage.DB, log *zap.SugaredLogger) (*Activities, error) {
	pm, err := providers.NewManager(cfg.LLMProviders, cfg.EmbedProviders, cfg.EmbedDim)
	if err != nil {
		return nil, err
	}
	return &Activities{
		cfg:          cfg,
		log:          log,
		documentRepo: storage.NewDocumentRepo(db),
		chunkRepo:    storage.NewChunkRepo(db),
		snapshotRepo: storage.NewSnapshotRepo(db),
		qcRepo:       storage.NewQCRepo(db),
		providers:    pm,
	}, nil
}

var sourceExtensions = map[string]bool{
	".xml": true,
	".pdf": true,
	".md":  true,
	".txt": true,
}

func (a *Activities) ListSourcesActivity(ctx context.Context, in ListSourcesInput) (ListSourcesOutput, error) {
	_ = ctx
	entries, err := os.ReadDir(in.InputDir)
	if err != nil {
		return ListSourcesOutput{}, fmt.Errorf("read input dir: %w", err)
	}
	paths := make([]string, 0)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if sourceExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			paths = append(paths, filepath.Join(in.InputDir, e.Name()))
		}
	}
	sort.Strings(paths)
	return ListSourcesOutput{Paths: paths}, nil
}

func (a *Activities) ExtractDocumentActivity(ctx context.Context, in ExtractDocumentInput) (ExtractDocumentOutput, error) {
	_ = ctx
	doc, err := extract.Document(in.SourcePath, extract.Options{})
	if err != nil {
		return ExtractDocumentOutput{}, err
	}
	return ExtractDocumentOutput{Document: doc}, nil
}

func (a *Activities) ChunkDocumentActivity(ctx context.Context, in ChunkDocumentInput) (ChunkDocumentOutput, error) {
	_ = ctx
	chunks, stats, err := chunker.Chunk(in.Document, chunker.Config{
		WindowTokens:     a.cfg.WindowTokens,
		OverlapTokens:    a.cfg.OverlapTokens,
		MinSectionTokens: a.cfg.MinSectionTokens,
	})
	if err != nil {
		return ChunkDocumentOutput{}, err
	}
	return ChunkDocumentOutput{Chunks: chunks, DroppedSections: stats.DroppedSections}, nil
}

func (a *Activities) WriteDocumentArtifactsActivity(ctx context.Context, in WriteDocumentArtifactsInput) error {
	_ = ctx
	// Doc ids come from source headers and filenames; SafeJoin keeps them
	// from escaping the artifacts root.
	base := util.SafeJoin(filepath.Join(a.cfg.DataOutRoot, in.CorpusID, "docs"), in.DocID)
	if err := util.EnsureDir(base); err != nil {
		return err
	}
	if err := util.WriteJSONAtomic(filepath.Join(base, "metadata.json"), in.Metadata); err != nil {
		return err
	}
	rows := make([]any, 0, len(in.Chunks))
	for _, c := range in.Chunks {
		rows = append(rows, c)
	}
	if err := util.WriteJSONLinesAtomic(filepath.Join(base, "chunks.jsonl"), rows); err != nil {
		return err
	}
	return util.WriteJSONAtomic(filepath.Join(base, "processing_log.json"), in.ProcessingLog)
}

// AssembleSnapshotActivity fixes the snapshot identity over the collected
// chunk corpus and persists documents and chunks keyed to it. The snapshot
// row is created unpublished; serving never sees it until the publish step.
func (a *Activities) AssembleSnapshotActivity(ctx context.Context, in AssembleSnapshotInput) (AssembleSnapshotOutput, error) {
	if len(in.Chunks) == 0 {
		return AssembleSnapshotOutput{}, fmt.Errorf("no chunks to snapshot for corpus %s", in.CorpusID)
	}
	snapshotID := index.SnapshotID(in.Chunks)

	if err := a.snapshotRepo.CreateSnapshot(ctx, models.Snapshot{
		SnapshotID: snapshotID,
		CorpusID:   in.CorpusID,
		ChunkCount: len(in.Chunks),
	}); err != nil {
		return AssembleSnapshotOutput{}, err
	}
	for _, d := range in.Documents {
		if err := a.documentRepo.UpsertDocument(ctx, snapshotID, d); err != nil {
			return AssembleSnapshotOutput{}, err
		}
	}
	records := make([]storage.ChunkRecord, 0, len(in.Chunks))
	for _, c := range in.Chunks {
		records = append(records, storage.ChunkRecord{Chunk: c, SnapshotID: snapshotID})
	}
	if err := a.chunkRepo.UpsertChunks(ctx, records); err != nil {
		return AssembleSnapshotOutput{}, err
	}

	rows := make([]any, 0, len(in.Chunks))
	for _, c := range in.Chunks {
		rows = append(rows, c)
	}
	path := filepath.Join(a.snapshotDir(in.CorpusID, snapshotID), "chunks.jsonl")
	if err := util.WriteJSONLinesAtomic(path, rows); err != nil {
		return AssembleSnapshotOutput{}, err
	}
	return AssembleSnapshotOutput{SnapshotID: snapshotID, ChunkCount: len(in.Chunks)}, nil
}

func (a *Activities) RunQCActivity(ctx context.Context, in RunQCInput) (RunQCOutput, error) {
	report := qc.Validate(in.Chunks, qc.Thresholds{
		MinChars:       a.cfg.QCMinChars,
		MaxChars:       a.cfg.QCMaxChars,
		ExemptSections: splitCSV(a.cfg.ExemptSections),
	})
	path := filepath.Join(a.snapshotDir(in.CorpusID, in.SnapshotID), "qc_report.json")
	if err := util.WriteJSONAtomic(path, report); err != nil {
		return RunQCOutput{}, err
	}
	if err := a.qcRepo.InsertReport(ctx, in.SnapshotID, report); err != nil {
		return RunQCOutput{}, err
	}
	return RunQCOutput{Report: report, ReportPath: path}, nil
}

func (a *Activities) SampleChunksActivity(ctx context.Context, in SampleChunksInput) (SampleChunksOutput, error) {
	_ = ctx
	sampled := qc.Sample(in.Chunks, in.N, in.Seed, in.Section)
	ids := make([]string, 0, len(sampled))
	for _, c := range sampled {
		ids = append(ids, c.ChunkID)
	}
	path := filepath.Join(a.snapshotDir(in.CorpusID, in.SnapshotID), fmt.Sprintf("sample_seed%d.json", in.Seed))
	if err := util.WriteJSONAtomic(path, sampled); err != nil {
		return SampleChunksOutput{}, err
	}
	return SampleChunksOutput{ChunkIDs: ids, Path: path}, nil
}

// BuildIndexActivity embeds the whole snapshot through one provider and
// writes the index file. It either completes for every chunk or fails with
// the unembedded chunk ids; no partial index is ever written.
func (a *Activities) BuildIndexActivity(ctx context.Context, in BuildIndexInput) (BuildIndexOutput, error) {
	embedder, ref := a.providers.EmbedProviderByIndex(in.ProviderIndex)
	idx, err := index.Build(ctx, in.Chunks, embedder, providers.Backoff{Attempts: a.cfg.RetryAttempts})
	if err != nil {
		var buildErr *index.BuildError
		if errors.As(err, &buildErr) {
			a.log.Errorw("index build failed",
				"corpus_id", in.CorpusID,
				"snapshot_id", in.SnapshotID,
				"provider", ref.Raw,
				"unembedded_chunks", len(buildErr.FailedChunkIDs))
		}
		return BuildIndexOutput{}, err
	}

	path := filepath.Join(a.snapshotDir(in.CorpusID, in.SnapshotID), "index.json")
	if err := idx.Save(path); err != nil {
		return BuildIndexOutput{}, err
	}

	// Mirror the vectors into Postgres so the database-side searcher serves
	// the same snapshot.
	records := make([]storage.ChunkRecord, 0, len(in.Chunks))
	for i, c := range in.Chunks {
		lit := vector.ToLiteral(idx.Entries[i].Vector)
		records = append(records, storage.ChunkRecord{
			Chunk:            c,
			SnapshotID:       in.SnapshotID,
			EmbeddingModelID: idx.ModelID,
			EmbeddingVector:  &lit,
		})
	}
	if err := a.chunkRepo.UpsertChunks(ctx, records); err != nil {
		return BuildIndexOutput{}, err
	}
	return BuildIndexOutput{
		IndexPath:    path,
		ModelID:      idx.ModelID,
		ProviderName: ref.Name,
		EntryCount:   len(idx.Entries),
	}, nil
}

// PublishSnapshotActivity atomically flips the published pointer, in the
// database and on disk, to a fully-built snapshot.
func (a *Activities) PublishSnapshotActivity(ctx context.Context, in PublishSnapshotInput) (PublishSnapshotOutput, error) {
	if err := a.snapshotRepo.MarkPublished(ctx, in.CorpusID, in.SnapshotID); err != nil {
		return PublishSnapshotOutput{}, err
	}
	pointer := filepath.Join(a.cfg.DataOutRoot, in.CorpusID, "published.json")
	if err := util.WriteJSONAtomic(pointer, map[string]any{
		"snapshot_id":        in.SnapshotID,
		"index_path":         in.IndexPath,
		"embedding_model_id": in.ModelID,
	}); err != nil {
		return PublishSnapshotOutput{}, err
	}
	return PublishSnapshotOutput{PointerPath: pointer}, nil
}

func (a *Activities) WriteBuildSummaryActivity(ctx context.Context, in WriteBuildSummaryInput) (WriteBuildSummaryOutput, error) {
	_ = ctx
	path := filepath.Join(a.cfg.DataOutRoot, in.CorpusID, "runs", in.RunID, "build_summary.json")
	if err := util.WriteJSONAtomic(path, in.Summary); err != nil {
		return WriteBuildSummaryOutput{}, err
	}
	return WriteBuildSummaryOutput{Path: path}, nil
}

func (a *Activities) snapshotDir(corpusID, snapshotID string) string {
	return filepath.Join(a.cfg.DataOutRoot, corpusID, "snapshots", snapshotID)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
