package ask

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"groundflow/internal/governance"
	"groundflow/internal/index"
	"groundflow/internal/models"
	"groundflow/internal/util"
)

// State names the stages one query moves through. DONE, REJECTED_POLICY,
// EMPTY_NO_MATCH, and MODEL_MISMATCH are terminal.
type State string

const (
	StateReceived            State = "RECEIVED"
	StateRetrieving          State = "RETRIEVING"
	StateEmptyNoMatch        State = "EMPTY_NO_MATCH"
	StateRetrieved           State = "RETRIEVED"
	StateGovernancePrecheck  State = "GOVERNANCE_PRECHECK"
	StateReadyForGeneration  State = "READY_FOR_GENERATION"
	StateGenerated           State = "GENERATED"
	StateGovernancePostcheck State = "GOVERNANCE_POSTCHECK"
	StateDone                State = "DONE"
	StateRejectedPolicy      State = "REJECTED_POLICY"
	StateModelMismatch       State = "MODEL_MISMATCH"
)

// NotFoundMessage is the canned reply when no evidence passes the threshold.
const NotFoundMessage = "not found in the documents"

// ChunkSource resolves retrieved chunk ids back to full chunk records.
type ChunkSource interface {
	ChunksByID(ctx context.Context, ids []string) ([]models.Chunk, error)
}

// Generator produces a structured answer from a bounded context. The raw
// string is validated by governance before it reaches the caller.
type Generator interface {
	Generate(ctx context.Context, question, contextText string, allowedSources []string) (string, error)
}

// AuditSink records one immutable audit entry per finalised query.
type AuditSink interface {
	Append(ctx context.Context, rec models.AuditRecord) error
}

// Options carries the per-service tuning a Service is constructed with.
type Options struct {
	TopK           int
	ScoreThreshold float64
	CorpusID       string
	Policy         governance.AnswerPolicy
}

// Service runs the full query path: retrieve, govern, generate, validate,
// audit. It performs no writes besides the audit record, so cancellation
// aborts cleanly.
type Service struct {
	retriever *index.Retriever
	store     *index.Store
	chunks    ChunkSource
	enforcer  *governance.Enforcer
	generator Generator
	audit     AuditSink
	opts      Options
	log       *zap.SugaredLogger
}

func NewService(retriever *index.Retriever, store *index.Store, chunks ChunkSource, enforcer *governance.Enforcer, generator Generator, audit AuditSink, opts Options, log *zap.SugaredLogger) *Service {
	if opts.TopK <= 0 {
		opts.TopK = 8
	}
	return &Service{
		retriever: retriever,
		store:     store,
		chunks:    chunks,
		enforcer:  enforcer,
		generator: generator,
		audit:     audit,
		opts:      opts,
		log:       log,
	}
}

// Result is the outcome of one query in any terminal state.
type Result struct {
	RequestID string              `json:"request_id"`
	State     State               `json:"state"`
	Answer    *governance.Answer  `json:"answer,omitempty"`
	Message   string              `json:"message,omitempty"`
	Retrieved []models.ChunkHit   `json:"retrieved"`
	Sources   []string            `json:"sources"`
}

// Ask answers one question. Policy refusals and empty retrievals come back
// as terminal Results, not errors; errors are reserved for infrastructure
// failures (empty index, model mismatch, generator exhaustion).
func (s *Service) Ask(ctx context.Context, question string) (Result, error) {
	res := Result{RequestID: uuid.NewString(), State: StateReceived, Sources: []string{}}
	s.log.Infow("query received", "request_id", res.RequestID, "question", util.DisplaySnippet(question, 120))

	res.State = StateRetrieving
	hits, err := s.retriever.Retrieve(ctx, question, s.opts.TopK, s.opts.ScoreThreshold)
	if err != nil {
		var mismatch *index.ModelMismatchError
		if errors.As(err, &mismatch) {
			res.State = StateModelMismatch
			res.Message = mismatch.Error()
			s.finalize(ctx, &res, question)
			return res, err
		}
		return res, fmt.Errorf("retrieve: %w", err)
	}
	res.Retrieved = hits

	if len(hits) == 0 {
		// Legitimate no-evidence outcome: canned reply, generator never runs.
		res.State = StateEmptyNoMatch
		res.Message = NotFoundMessage
		s.finalize(ctx, &res, question)
		return res, nil
	}
	res.State = StateRetrieved

	res.State = StateGovernancePrecheck
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ChunkID)
	}
	candidates, err := s.chunks.ChunksByID(ctx, ids)
	if err != nil {
		return res, fmt.Errorf("resolve chunks: %w", err)
	}
	evidence, excluded := s.enforcer.ResolveEvidence(candidates)
	if len(excluded) > 0 {
		s.log.Infow("evidence excluded", "request_id", res.RequestID, "excluded", excluded)
	}
	if len(evidence) == 0 {
		res.State = StateEmptyNoMatch
		res.Message = NotFoundMessage
		s.finalize(ctx, &res, question)
		return res, nil
	}
	evCtx := s.enforcer.AssembleContext(evidence)

	res.State = StateReadyForGeneration
	raw, err := s.generator.Generate(ctx, question, evCtx.Text, evCtx.AllowedSources)
	if err != nil {
		return res, fmt.Errorf("generate: %w", err)
	}
	res.State = StateGenerated

	res.State = StateGovernancePostcheck
	answer, err := governance.ValidateAnswer(raw, evCtx.AllowedSources, s.opts.Policy)
	if err != nil {
		var pv *governance.PolicyViolation
		if errors.As(err, &pv) {
			// Refuse rather than patch the output into compliance.
			res.State = StateRejectedPolicy
			res.Message = pv.Error()
			s.finalize(ctx, &res, question)
			return res, nil
		}
		return res, err
	}

	res.State = StateDone
	res.Answer = answer
	res.Sources = answer.Sources
	s.finalize(ctx, &res, question)
	return res, nil
}

func (s *Service) finalize(ctx context.Context, res *Result, question string) {
	snapshotID := ""
	if idx := s.store.Current(); idx != nil {
		snapshotID = idx.SnapshotID
	}
	rec := models.AuditRecord{
		RequestID:      res.RequestID,
		SnapshotID:     snapshotID,
		Query:          question,
		Retrieved:      res.Retrieved,
		UsedSources:    res.Sources,
		RuleSetVersion: s.enforcer.RuleSetVersion(),
		Outcome:        string(res.State),
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.audit.Append(ctx, rec); err != nil {
		s.log.Errorw("audit append failed", "request_id", res.RequestID, "err", err)
	}
}
