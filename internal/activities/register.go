package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ListSourcesActivity)
	w.RegisterActivity(a.ExtractDocumentActivity)
	w.RegisterActivity(a.ChunkDocumentActivity)
	w.RegisterActivity(a.WriteDocumentArtifactsActivity)
	w.RegisterActivity(a.AssembleSnapshotActivity)
	w.RegisterActivity(a.RunQCActivity)
	w.RegisterActivity(a.SampleChunksActivity)
	w.RegisterActivity(a.BuildIndexActivity)
	w.RegisterActivity(a.PublishSnapshotActivity)
	w.RegisterActivity(a.WriteBuildSummaryActivity)
}
