package ask

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"groundflow/internal/governance"
	"groundflow/internal/index"
	"groundflow/internal/logging"
	"groundflow/internal/models"
	"groundflow/internal/providers"
)

const finalLine = "All statements above are grounded in the cited documents."

type recordingSink struct {
	mu      sync.Mutex
	records []models.AuditRecord
}

func (s *recordingSink) Append(_ context.Context, rec models.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// scriptedGenerator returns a compliant answer citing every allowed source,
// and remembers what it was allowed to cite.
type scriptedGenerator struct {
	called         bool
	allowedSources []string
}

func (g *scriptedGenerator) Generate(_ context.Context, _, _ string, allowedSources []string) (string, error) {
	g.called = true
	g.allowedSources = allowedSources
	body := map[string]any{
		"corpus_id":  "corpus-1",
		"tags":       []string{"policy", "refunds", "returns"},
		"answer":     strings.Repeat("word ", 100),
		"sources":    allowedSources,
		"final_line": finalLine,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

type forbiddenGenerator struct{ t *testing.T }

func (g *forbiddenGenerator) Generate(context.Context, string, string, []string) (string, error) {
	g.t.Fatal("generator must not be invoked")
	return "", nil
}

func conflictingCorpus() []models.Chunk {
	return []models.Chunk{
		{
			ChunkID: "refund-v2:body:0", DocID: "refund-v2", SourcePath: "rules/refund-v2.md",
			Topic: "refund", Status: models.StatusCurrent, Version: 2,
			Text: "Refunds are honoured within thirty days of purchase.",
		},
		{
			ChunkID: "refund-v2:body:1", DocID: "refund-v2", SourcePath: "rules/refund-v2.md",
			Topic: "refund", Status: models.StatusCurrent, Version: 2,
			Text: "Refund requests need the original purchase receipt.",
		},
		{
			ChunkID: "refund-v1:body:0", DocID: "refund-v1", SourcePath: "rules/refund-v1.md",
			Topic: "refund", Status: models.StatusObsolete, Version: 1,
			Text: "Refunds are honoured within fourteen days of purchase.",
		},
	}
}

func newTestService(t *testing.T, chunks []models.Chunk, gen Generator, threshold float64) (*Service, *recordingSink) {
	t.Helper()
	embedder := providers.NewMockProvider(128)
	idx, err := index.Build(context.Background(), chunks, embedder, providers.DefaultBackoff())
	require.NoError(t, err)
	store := index.NewStore()
	store.Publish(idx)

	sink := &recordingSink{}
	svc := NewService(
		index.NewRetriever(store, embedder, providers.DefaultBackoff()),
		store,
		NewMemoryCorpus(chunks),
		governance.NewEnforcer(&governance.RuleSet{Version: "rs-test"}, 0),
		gen,
		sink,
		Options{TopK: 5, ScoreThreshold: threshold, CorpusID: "corpus-1", Policy: governance.DefaultAnswerPolicy(finalLine)},
		logging.Nop(),
	)
	return svc, sink
}

func TestAskCitesOnlyCurrentDocument(t *testing.T) {
	gen := &scriptedGenerator{}
	svc, sink := newTestService(t, conflictingCorpus(), gen, -1)

	res, err := svc.Ask(context.Background(), "what is the refund window for a purchase refund")
	require.NoError(t, err)
	require.Equal(t, StateDone, res.State)
	require.NotNil(t, res.Answer)
	require.True(t, gen.called)

	require.NotEmpty(t, res.Sources)
	for _, s := range res.Sources {
		require.True(t, strings.HasPrefix(s, "refund-v2:"), "cited obsolete source %s", s)
	}
	require.NotContains(t, gen.allowedSources, "refund-v1:body:0")

	require.Len(t, sink.records, 1)
	require.Equal(t, string(StateDone), sink.records[0].Outcome)
	require.Equal(t, "rs-test", sink.records[0].RuleSetVersion)
	require.Equal(t, res.Sources, sink.records[0].UsedSources)
}

func TestAskNoMatchSkipsGenerator(t *testing.T) {
	// A threshold no cosine score can reach forces the empty outcome.
	svc, sink := newTestService(t, conflictingCorpus(), &forbiddenGenerator{t: t}, 1.01)

	res, err := svc.Ask(context.Background(), "what is the quarterly revenue")
	require.NoError(t, err)
	require.Equal(t, StateEmptyNoMatch, res.State)
	require.Equal(t, NotFoundMessage, res.Message)
	require.Empty(t, res.Sources)
	require.Nil(t, res.Answer)

	require.Len(t, sink.records, 1)
	require.Equal(t, string(StateEmptyNoMatch), sink.records[0].Outcome)
	require.Empty(t, sink.records[0].UsedSources)
}

type foreignSourceGenerator struct{}

func (foreignSourceGenerator) Generate(context.Context, string, string, []string) (string, error) {
	body := map[string]any{
		"corpus_id":  "corpus-1",
		"tags":       []string{"a", "b", "c"},
		"answer":     strings.Repeat("word ", 100),
		"sources":    []string{"wikipedia.org/refunds"},
		"final_line": finalLine,
	}
	raw, _ := json.Marshal(body)
	return string(raw), nil
}

func TestAskRejectsPolicyViolation(t *testing.T) {
	svc, sink := newTestService(t, conflictingCorpus(), foreignSourceGenerator{}, -1)

	res, err := svc.Ask(context.Background(), "refund window")
	require.NoError(t, err)
	require.Equal(t, StateRejectedPolicy, res.State)
	require.Nil(t, res.Answer)
	require.Contains(t, res.Message, "policy violation")

	require.Len(t, sink.records, 1)
	require.Equal(t, string(StateRejectedPolicy), sink.records[0].Outcome)
}

func TestAskModelMismatchIsTerminalFatal(t *testing.T) {
	chunks := conflictingCorpus()
	embedder := providers.NewMockProvider(128)
	idx, err := index.Build(context.Background(), chunks, embedder, providers.DefaultBackoff())
	require.NoError(t, err)
	store := index.NewStore()
	store.Publish(idx)

	sink := &recordingSink{}
	svc := NewService(
		index.NewRetriever(store, providers.NewMockProvider(64), providers.DefaultBackoff()),
		store,
		NewMemoryCorpus(chunks),
		governance.NewEnforcer(&governance.RuleSet{Version: "rs-test"}, 0),
		&forbiddenGenerator{t: t},
		sink,
		Options{TopK: 5, CorpusID: "corpus-1", Policy: governance.DefaultAnswerPolicy(finalLine)},
		logging.Nop(),
	)

	res, err := svc.Ask(context.Background(), "refund window")
	require.Error(t, err)
	var mismatch *index.ModelMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, StateModelMismatch, res.State)

	require.Len(t, sink.records, 1)
	require.Equal(t, string(StateModelMismatch), sink.records[0].Outcome)
}
