package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"groundflow/internal/activities"
	"groundflow/internal/models"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func sampleDocument() models.Document {
	return models.Document{
		DocID:      "doc1",
		SourcePath: "/tmp/doc1.md",
		Status:     models.StatusCurrent,
		Version:    1,
		Sections:   []models.Section{{Name: "body", Text: "evidence text"}},
	}
}

func sampleChunks() []models.Chunk {
	return []models.Chunk{
		{ChunkID: "doc1:body:0", DocID: "doc1", Section: "body", Ordinal: 0, Text: "evidence text", Status: models.StatusCurrent, Version: 1},
	}
}

func registerDocumentActivities(env *testsuite.TestWorkflowEnvironment) {
	registerActivityName(env, "ExtractDocumentActivity", func(context.Context, activities.ExtractDocumentInput) (activities.ExtractDocumentOutput, error) {
		return activities.ExtractDocumentOutput{}, nil
	})
	registerActivityName(env, "ChunkDocumentActivity", func(context.Context, activities.ChunkDocumentInput) (activities.ChunkDocumentOutput, error) {
		return activities.ChunkDocumentOutput{}, nil
	})
	registerActivityName(env, "WriteDocumentArtifactsActivity", func(context.Context, activities.WriteDocumentArtifactsInput) error { return nil })
}

func TestDocumentProcessWorkflowSuccess(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentProcessWorkflow)
	registerDocumentActivities(env)

	env.OnActivity("ExtractDocumentActivity", mock.Anything, activities.ExtractDocumentInput{SourcePath: "/tmp/doc1.md"}).
		Return(activities.ExtractDocumentOutput{Document: sampleDocument()}, nil)
	env.OnActivity("ChunkDocumentActivity", mock.Anything, mock.Anything).
		Return(activities.ChunkDocumentOutput{Chunks: sampleChunks()}, nil)
	env.OnActivity("WriteDocumentArtifactsActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(DocumentProcessWorkflow, DocumentProcessInput{CorpusID: "c", SourcePath: "/tmp/doc1.md"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out DocumentProcessResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "processed", out.Status)
	require.Len(t, out.Chunks, 1)
	require.Equal(t, "doc1", out.Document.DocID)
	require.Nil(t, out.Document.Sections)
}

func TestDocumentProcessWorkflowNoTextFailsGracefully(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentProcessWorkflow)
	registerDocumentActivities(env)

	env.OnActivity("ExtractDocumentActivity", mock.Anything, mock.Anything).
		Return(activities.ExtractDocumentOutput{}, errors.New("no extractable text found in source document"))

	env.ExecuteWorkflow(DocumentProcessWorkflow, DocumentProcessInput{CorpusID: "c", SourcePath: "/tmp/empty.pdf"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out DocumentProcessResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out.Status)
	require.Contains(t, out.FailReason, "no extractable text")
}

func registerBuildActivities(env *testsuite.TestWorkflowEnvironment) {
	registerActivityName(env, "ListSourcesActivity", func(context.Context, activities.ListSourcesInput) (activities.ListSourcesOutput, error) {
		return activities.ListSourcesOutput{}, nil
	})
	registerActivityName(env, "AssembleSnapshotActivity", func(context.Context, activities.AssembleSnapshotInput) (activities.AssembleSnapshotOutput, error) {
		return activities.AssembleSnapshotOutput{}, nil
	})
	registerActivityName(env, "RunQCActivity", func(context.Context, activities.RunQCInput) (activities.RunQCOutput, error) {
		return activities.RunQCOutput{}, nil
	})
	registerActivityName(env, "SampleChunksActivity", func(context.Context, activities.SampleChunksInput) (activities.SampleChunksOutput, error) {
		return activities.SampleChunksOutput{}, nil
	})
	registerActivityName(env, "BuildIndexActivity", func(context.Context, activities.BuildIndexInput) (activities.BuildIndexOutput, error) {
		return activities.BuildIndexOutput{}, nil
	})
	registerActivityName(env, "PublishSnapshotActivity", func(context.Context, activities.PublishSnapshotInput) (activities.PublishSnapshotOutput, error) {
		return activities.PublishSnapshotOutput{}, nil
	})
	registerActivityName(env, "WriteBuildSummaryActivity", func(context.Context, activities.WriteBuildSummaryInput) (activities.WriteBuildSummaryOutput, error) {
		return activities.WriteBuildSummaryOutput{}, nil
	})
	registerDocumentActivities(env)
}

func TestCorpusBuildWorkflowPublishes(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(CorpusBuildWorkflow)
	env.RegisterWorkflow(DocumentProcessWorkflow)
	registerBuildActivities(env)

	env.OnActivity("ListSourcesActivity", mock.Anything, activities.ListSourcesInput{InputDir: "/tmp/in"}).
		Return(activities.ListSourcesOutput{Paths: []string{"/tmp/in/doc1.md"}}, nil)
	env.OnActivity("ExtractDocumentActivity", mock.Anything, mock.Anything).
		Return(activities.ExtractDocumentOutput{Document: sampleDocument()}, nil)
	env.OnActivity("ChunkDocumentActivity", mock.Anything, mock.Anything).
		Return(activities.ChunkDocumentOutput{Chunks: sampleChunks()}, nil)
	env.OnActivity("WriteDocumentArtifactsActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("AssembleSnapshotActivity", mock.Anything, mock.Anything).
		Return(activities.AssembleSnapshotOutput{SnapshotID: "snap1", ChunkCount: 1}, nil)
	env.OnActivity("RunQCActivity", mock.Anything, mock.Anything).
		Return(activities.RunQCOutput{Report: models.QCReport{Total: 1, Verdict: models.VerdictPass}}, nil)
	env.OnActivity("BuildIndexActivity", mock.Anything, mock.Anything).
		Return(activities.BuildIndexOutput{IndexPath: "/tmp/out/index.json", ModelID: "mock-embed-128", EntryCount: 1}, nil)
	env.OnActivity("PublishSnapshotActivity", mock.Anything, activities.PublishSnapshotInput{
		CorpusID: "c", SnapshotID: "snap1", IndexPath: "/tmp/out/index.json", ModelID: "mock-embed-128",
	}).Return(activities.PublishSnapshotOutput{PointerPath: "/tmp/out/published.json"}, nil)
	env.OnActivity("WriteBuildSummaryActivity", mock.Anything, mock.Anything).
		Return(activities.WriteBuildSummaryOutput{}, nil)

	env.ExecuteWorkflow(CorpusBuildWorkflow, CorpusBuildInput{CorpusID: "c", InputDir: "/tmp/in", EmbedProviders: 1, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var snapshotID string
	require.NoError(t, env.GetWorkflowResult(&snapshotID))
	require.Equal(t, "snap1", snapshotID)
}

func TestCorpusBuildWorkflowQCGateBlocks(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(CorpusBuildWorkflow)
	env.RegisterWorkflow(DocumentProcessWorkflow)
	registerBuildActivities(env)

	env.OnActivity("ListSourcesActivity", mock.Anything, mock.Anything).
		Return(activities.ListSourcesOutput{Paths: []string{"/tmp/in/doc1.md"}}, nil)
	env.OnActivity("ExtractDocumentActivity", mock.Anything, mock.Anything).
		Return(activities.ExtractDocumentOutput{Document: sampleDocument()}, nil)
	env.OnActivity("ChunkDocumentActivity", mock.Anything, mock.Anything).
		Return(activities.ChunkDocumentOutput{Chunks: sampleChunks()}, nil)
	env.OnActivity("WriteDocumentArtifactsActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("AssembleSnapshotActivity", mock.Anything, mock.Anything).
		Return(activities.AssembleSnapshotOutput{SnapshotID: "snap1", ChunkCount: 1}, nil)
	env.OnActivity("RunQCActivity", mock.Anything, mock.Anything).
		Return(activities.RunQCOutput{Report: models.QCReport{Total: 1, DuplicateIDs: 1, Verdict: models.VerdictFail}}, nil)
	env.OnActivity("WriteBuildSummaryActivity", mock.Anything, mock.Anything).
		Return(activities.WriteBuildSummaryOutput{}, nil)

	env.ExecuteWorkflow(CorpusBuildWorkflow, CorpusBuildInput{CorpusID: "c", InputDir: "/tmp/in", EmbedProviders: 1, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())

	err := env.GetWorkflowError()
	require.Error(t, err)
	require.Contains(t, err.Error(), "qc gate failed")
	// The index is never built and nothing is published past a failed gate.
	env.AssertNotCalled(t, "BuildIndexActivity", mock.Anything, mock.Anything)
	env.AssertNotCalled(t, "PublishSnapshotActivity", mock.Anything, mock.Anything)
}
