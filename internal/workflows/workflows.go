package workflows

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"groundflow/internal/activities"
	"groundflow/internal/models"
	"groundflow/internal/providers"
)

const (
	QueryGetBuildProgress  = "GetBuildProgress"
	QueryGetDocumentStatus = "GetDocumentStatus"
)

type providerState struct {
	disabledUntil map[int]time.Time
	retries       map[string]int
}

func newProviderState() providerState {
	return providerState{disabledUntil: map[int]time.Time{}, retries: map[string]int{}}
}

// CorpusBuildWorkflow runs one extraction-to-publish build: fan out child
// workflows per source document, assemble the snapshot, gate on QC, build
// the index, and publish. Any blocking failure leaves the previous published
// snapshot untouched.
func CorpusBuildWorkflow(ctx workflow.Context, input CorpusBuildInput) (string, error) {
	progress := CorpusBuildProgress{
		CorpusID:      input.CorpusID,
		Phase:         "listing",
		PerDocument:   map[string]string{},
		ChildWorkflow: map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetBuildProgress, func() (CorpusBuildProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var listOut activities.ListSourcesOutput
	if err := workflow.ExecuteActivity(ctx, "ListSourcesActivity", activities.ListSourcesInput{InputDir: input.InputDir}).Get(ctx, &listOut); err != nil {
		return "", err
	}
	paths := listOut.Paths
	progress.Total = len(paths)
	progress.Phase = "extracting"
	maxChildren := input.MaxConcurrentChildren
	if maxChildren <= 0 {
		maxChildren = 3
	}

	var documents []models.Document
	var chunks []models.Chunk
	for i := 0; i < len(paths); i += maxChildren {
		end := i + maxChildren
		if end > len(paths) {
			end = len(paths)
		}
		futures := make([]workflow.ChildWorkflowFuture, 0, end-i)
		childPaths := make([]string, 0, end-i)
		for _, path := range paths[i:end] {
			progress.PerDocument[path] = "processing"
			workflowID := "doc-" + sanitizeID(input.CorpusID) + "-" + sanitizeID(filepathBase(path))
			cwo := workflow.ChildWorkflowOptions{WorkflowID: workflowID}
			childCtx := workflow.WithChildOptions(ctx, cwo)
			f := workflow.ExecuteChildWorkflow(childCtx, DocumentProcessWorkflow, DocumentProcessInput{
				CorpusID:   input.CorpusID,
				SourcePath: path,
			})
			futures = append(futures, f)
			childPaths = append(childPaths, path)
			progress.ChildWorkflow[path] = workflowID
		}

		for idx, f := range futures {
			var result DocumentProcessResult
			err := f.Get(ctx, &result)
			path := childPaths[idx]
			if err != nil || result.Status == "failed" {
				progress.Failed++
				progress.PerDocument[path] = "failed"
				continue
			}
			progress.Done++
			progress.PerDocument[path] = result.Status
			documents = append(documents, result.Document)
			chunks = append(chunks, result.Chunks...)
		}
	}
	if len(chunks) == 0 {
		return "", fmt.Errorf("no chunks extracted from %s", input.InputDir)
	}

	progress.Phase = "snapshot"
	var snapOut activities.AssembleSnapshotOutput
	if err := workflow.ExecuteActivity(ctx, "AssembleSnapshotActivity", activities.AssembleSnapshotInput{
		CorpusID:  input.CorpusID,
		Documents: documents,
		Chunks:    chunks,
	}).Get(ctx, &snapOut); err != nil {
		return "", err
	}
	progress.SnapshotID = snapOut.SnapshotID

	progress.Phase = "qc"
	var qcOut activities.RunQCOutput
	if err := workflow.ExecuteActivity(ctx, "RunQCActivity", activities.RunQCInput{
		CorpusID:   input.CorpusID,
		SnapshotID: snapOut.SnapshotID,
		Chunks:     chunks,
	}).Get(ctx, &qcOut); err != nil {
		return "", err
	}
	progress.QCVerdict = qcOut.Report.Verdict
	if qcOut.Report.Verdict != models.VerdictPass {
		// Duplicate ids or empty text mean broken extraction. The snapshot
		// stays unpublished; the report says what to fix.
		progress.Phase = "qc_failed"
		writeSummary(ctx, input, progress, qcOut)
		return "", fmt.Errorf("qc gate failed for snapshot %s: duplicates=%d empty=%d",
			snapOut.SnapshotID, qcOut.Report.DuplicateIDs, qcOut.Report.EmptyText)
	}

	if input.SampleSize > 0 {
		_ = workflow.ExecuteActivity(ctx, "SampleChunksActivity", activities.SampleChunksInput{
			CorpusID:   input.CorpusID,
			SnapshotID: snapOut.SnapshotID,
			Chunks:     chunks,
			N:          input.SampleSize,
			Seed:       input.SampleSeed,
		}).Get(ctx, nil)
	}

	progress.Phase = "indexing"
	cooldown := durationOrDefault(input.CooldownSeconds, 900)
	state := newProviderState()
	buildOut, err := callBuildIndexWithFailover(ctx, &state, defaultCount(input.EmbedProviders), cooldown, activities.BuildIndexInput{
		CorpusID:   input.CorpusID,
		SnapshotID: snapOut.SnapshotID,
		Chunks:     chunks,
	})
	if err != nil {
		progress.Phase = "index_failed"
		writeSummary(ctx, input, progress, qcOut)
		return "", err
	}

	progress.Phase = "publishing"
	var pubOut activities.PublishSnapshotOutput
	if err := workflow.ExecuteActivity(ctx, "PublishSnapshotActivity", activities.PublishSnapshotInput{
		CorpusID:   input.CorpusID,
		SnapshotID: snapOut.SnapshotID,
		IndexPath:  buildOut.IndexPath,
		ModelID:    buildOut.ModelID,
	}).Get(ctx, &pubOut); err != nil {
		return "", err
	}

	progress.Phase = "done"
	writeSummary(ctx, input, progress, qcOut)
	return snapOut.SnapshotID, nil
}

func writeSummary(ctx workflow.Context, input CorpusBuildInput, progress CorpusBuildProgress, qcOut activities.RunQCOutput) {
	runID := workflow.GetInfo(ctx).WorkflowExecution.RunID
	_ = workflow.ExecuteActivity(ctx, "WriteBuildSummaryActivity", activities.WriteBuildSummaryInput{
		CorpusID: input.CorpusID,
		RunID:    runID,
		Summary: map[string]any{
			"corpus_id":           input.CorpusID,
			"snapshot_id":         progress.SnapshotID,
			"phase":               progress.Phase,
			"total":               progress.Total,
			"done":                progress.Done,
			"failed":              progress.Failed,
			"qc_verdict":          progress.QCVerdict,
			"qc_report_path":      qcOut.ReportPath,
			"per_document_status": progress.PerDocument,
			"generated_at":        workflow.Now(ctx),
		},
	}).Get(ctx, nil)
}

// DocumentProcessWorkflow extracts and chunks one source document. Sources
// with no extractable text or an unsupported layout finish as "failed"
// without failing the parent build.
func DocumentProcessWorkflow(ctx workflow.Context, input DocumentProcessInput) (DocumentProcessResult, error) {
	status := DocumentStatus{
		SourcePath:  input.SourcePath,
		CurrentStep: "init",
		Status:      "processing",
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetDocumentStatus, func() (DocumentStatus, error) {
		return status, nil
	}); err != nil {
		return DocumentProcessResult{}, err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	status.CurrentStep = "extract"
	status.Steps[status.CurrentStep] = "processing"
	var extractOut activities.ExtractDocumentOutput
	if err := workflow.ExecuteActivity(ctx, "ExtractDocumentActivity", activities.ExtractDocumentInput{SourcePath: input.SourcePath}).Get(ctx, &extractOut); err != nil {
		if isUnrecoverableSourceError(err) {
			status.Status = "failed"
			status.FailReason = err.Error()
			status.Steps[status.CurrentStep] = "failed"
			return DocumentProcessResult{Status: "failed", FailReason: status.FailReason}, nil
		}
		return DocumentProcessResult{}, err
	}
	status.DocID = extractOut.Document.DocID
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "chunk"
	status.Steps[status.CurrentStep] = "processing"
	var chunkOut activities.ChunkDocumentOutput
	if err := workflow.ExecuteActivity(ctx, "ChunkDocumentActivity", activities.ChunkDocumentInput{Document: extractOut.Document}).Get(ctx, &chunkOut); err != nil {
		return DocumentProcessResult{}, err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "write_artifacts"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "WriteDocumentArtifactsActivity", activities.WriteDocumentArtifactsInput{
		CorpusID: input.CorpusID,
		DocID:    extractOut.Document.DocID,
		Metadata: map[string]any{
			"doc_id":      extractOut.Document.DocID,
			"source_path": input.SourcePath,
			"status":      extractOut.Document.Status,
			"version":     extractOut.Document.Version,
			"topic":       extractOut.Document.Topic,
			"chunk_count": len(chunkOut.Chunks),
		},
		Chunks: chunkOut.Chunks,
		ProcessingLog: map[string]any{
			"status":           "processed",
			"steps":            status.Steps,
			"dropped_sections": chunkOut.DroppedSections,
			"generated_at":     workflow.Now(ctx),
		},
	}).Get(ctx, nil); err != nil {
		return DocumentProcessResult{}, err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "done"
	status.Status = "processed"
	doc := extractOut.Document
	doc.Sections = nil
	return DocumentProcessResult{
		Status:          "processed",
		Document:        doc,
		Chunks:          chunkOut.Chunks,
		DroppedSections: chunkOut.DroppedSections,
	}, nil
}

// callBuildIndexWithFailover tries one full index build per embedding
// provider, rotating through the configured list with cooldowns, so quota
// exhaustion on one backend does not sink the build.
func callBuildIndexWithFailover(ctx workflow.Context, state *providerState, providerCount int, cooldown time.Duration, input activities.BuildIndexInput) (activities.BuildIndexOutput, error) {
	var lastErr error
	maxAttempts := providerCount * 4
	if maxAttempts <= 0 {
		maxAttempts = 4
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		idx := attempt % providerCount
		if isProviderDisabled(ctx, state, idx) {
			continue
		}
		input.ProviderIndex = idx
		var out activities.BuildIndexOutput
		err := workflow.ExecuteActivity(ctx, "BuildIndexActivity", input).Get(ctx, &out)
		if err == nil {
			return out, nil
		}
		lastErr = err
		key := fmt.Sprintf("build-%d", idx)
		state.retries[key]++
		switch providers.ClassifyError(err) {
		case providers.ErrorQuota:
			disableProviderUntil(ctx, state, idx, cooldown)
		case providers.ErrorRate:
			if state.retries[key] <= 2 {
				workflow.Sleep(ctx, time.Duration(state.retries[key]*2)*time.Second)
				attempt--
			} else {
				disableProviderUntil(ctx, state, idx, 2*time.Minute)
			}
		case providers.ErrorTransient:
			if state.retries[key] <= 2 {
				workflow.Sleep(ctx, time.Duration(state.retries[key])*time.Second)
				attempt--
			}
		default:
			disableProviderUntil(ctx, state, idx, time.Minute)
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("all embedding providers exhausted")
	}
	return activities.BuildIndexOutput{}, lastErr
}

func isProviderDisabled(ctx workflow.Context, state *providerState, idx int) bool {
	until, ok := state.disabledUntil[idx]
	if !ok {
		return false
	}
	return workflow.Now(ctx).Before(until)
}

func disableProviderUntil(ctx workflow.Context, state *providerState, idx int, d time.Duration) {
	state.disabledUntil[idx] = workflow.Now(ctx).Add(d)
}

func isUnrecoverableSourceError(err error) bool {
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "no extractable text") ||
		strings.Contains(e, "unsupported source format") ||
		strings.Contains(e, "invalid status")
}

func filepathBase(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) == 0 {
		return path
	}
	return parts[len(parts)-1]
}

func sanitizeID(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, ".", "-")
	s = strings.ReplaceAll(s, "/", "-")
	return s
}

func durationOrDefault(seconds int, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}

func defaultCount(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
