package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"groundflow/internal/ask"
	"groundflow/internal/config"
	"groundflow/internal/governance"
	"groundflow/internal/index"
	"groundflow/internal/providers"
	"groundflow/internal/storage"
	"groundflow/internal/util"
	"groundflow/internal/vector"
	"groundflow/internal/workflows"
)

// Server exposes the HTTP surface: corpus builds, build progress, snapshot
// and QC inspection, audit browsing, vector search, and the grounded /ask
// endpoint. Query-path services are built from the published snapshot pointer
// and cached until the pointer moves to a new snapshot.
type Server struct {
	cfg       config.Config
	log       *zap.SugaredLogger
	db        *storage.DB
	snapshots *storage.SnapshotRepo
	chunks    *storage.ChunkRepo
	qcReports *storage.QCRepo
	audits    *storage.AuditRepo
	rules     *storage.RuleRepo
	searcher  *vector.Searcher
	providers *providers.Manager
	temporal  tclient.Client

	mu       sync.Mutex
	services map[string]*askHandle
}

// askHandle pins a query service to the snapshot it was built from.
type askHandle struct {
	snapshotID string
	svc        *ask.Service
}

// publishedPointer mirrors the published.json file the build pipeline writes.
type publishedPointer struct {
	SnapshotID       string `json:"snapshot_id"`
	IndexPath        string `json:"index_path"`
	EmbeddingModelID string `json:"embedding_model_id"`
}

func NewServer(cfg config.Config, log *zap.SugaredLogger) *Server {
	db, err := storage.NewDB(context.Background(), cfg.PostgresURL)
	if err != nil {
		panic(fmt.Sprintf("api: connect postgres: %v", err))
	}
	mgr, err := providers.NewManager(cfg.LLMProviders, cfg.EmbedProviders, cfg.EmbedDim)
	if err != nil {
		panic(fmt.Sprintf("api: init providers: %v", err))
	}
	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		panic(fmt.Sprintf("api: dial temporal at %s: %v", cfg.TemporalAddress, err))
	}
	return &Server{
		cfg:       cfg,
		log:       log,
		db:        db,
		snapshots: storage.NewSnapshotRepo(db),
		chunks:    storage.NewChunkRepo(db),
		qcReports: storage.NewQCRepo(db),
		audits:    storage.NewAuditRepo(db),
		rules:     storage.NewRuleRepo(db),
		searcher:  vector.NewSearcher(db.Pool),
		providers: mgr,
		temporal:  tc,
		services:  make(map[string]*askHandle),
	}
}

func (s *Server) Close() {
	s.temporal.Close()
	s.db.Close()
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/ask", s.handleAsk)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/corpora/", s.handleCorporaScoped)
	mux.HandleFunc("/runs/", s.handleRuns)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCorporaScoped dispatches /corpora/{id}/... sub-resources:
//
//	POST /corpora/{id}/build
//	GET  /corpora/{id}/progress
//	GET  /corpora/{id}/snapshots
//	GET  /corpora/{id}/snapshots/{sid}/qc
//	GET  /corpora/{id}/audit?snapshot_id=...
func (s *Server) handleCorporaScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/corpora/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 2 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, "GF-API-4040", "unknown corpora route")
		return
	}
	corpusID := parts[0]

	switch {
	case len(parts) == 2 && parts[1] == "build" && r.Method == http.MethodPost:
		s.handleBuild(w, r, corpusID)
	case len(parts) == 2 && parts[1] == "progress" && r.Method == http.MethodGet:
		s.handleProgress(w, r, corpusID)
	case len(parts) == 2 && parts[1] == "snapshots" && r.Method == http.MethodGet:
		s.handleSnapshots(w, r, corpusID)
	case len(parts) == 4 && parts[1] == "snapshots" && parts[3] == "qc" && r.Method == http.MethodGet:
		s.handleQCReport(w, r, parts[2])
	case len(parts) == 2 && parts[1] == "audit" && r.Method == http.MethodGet:
		s.handleAudit(w, r, corpusID)
	default:
		writeErr(w, http.StatusNotFound, "GF-API-4040", "unknown corpora route")
	}
}

type buildRequest struct {
	SampleSize int   `json:"sample_size"`
	SampleSeed int64 `json:"sample_seed"`
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request, corpusID string) {
	var req buildRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, "GF-API-4001", "invalid JSON body")
			return
		}
	}

	workflowID := "corpus-build-" + corpusID
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       workflowID,
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.CorpusBuildWorkflow, workflows.CorpusBuildInput{
		CorpusID:              corpusID,
		InputDir:              filepath.Join(s.cfg.DataInRoot, corpusID),
		MaxConcurrentChildren: s.cfg.IngestMaxChildren,
		EmbedProviders:        s.providers.EmbedCount(),
		CooldownSeconds:       s.cfg.CooldownSecs,
		SampleSize:            req.SampleSize,
		SampleSeed:            req.SampleSeed,
	})
	if err != nil {
		if strings.Contains(err.Error(), "already started") || strings.Contains(err.Error(), "already running") {
			writeErr(w, http.StatusConflict, "GF-API-4090", "a build for this corpus is already running")
			return
		}
		s.log.Errorw("start corpus build", "corpus_id", corpusID, "error", err)
		writeErr(w, http.StatusBadGateway, "GF-API-5020", "could not start build workflow")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"corpus_id":   corpusID,
		"workflow_id": we.GetID(),
		"run_id":      we.GetRunID(),
	})
}

// handleProgress queries the running build workflow; when no workflow is
// reachable it falls back to the snapshot table so a finished build still
// reports something useful.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request, corpusID string) {
	workflowID := "corpus-build-" + corpusID
	resp, err := s.temporal.QueryWorkflow(r.Context(), workflowID, "", workflows.QueryGetBuildProgress)
	if err == nil {
		var progress workflows.CorpusBuildProgress
		if qerr := resp.Get(&progress); qerr == nil {
			writeJSON(w, http.StatusOK, progress)
			return
		}
	}

	snap, derr := s.snapshots.GetPublished(r.Context(), corpusID)
	if derr != nil {
		writeErr(w, http.StatusNotFound, "GF-API-4041", "no running build and no published snapshot for corpus")
		return
	}
	writeJSON(w, http.StatusOK, workflows.CorpusBuildProgress{
		CorpusID:   corpusID,
		SnapshotID: snap.SnapshotID,
		Phase:      "done",
		Total:      snap.ChunkCount,
		Done:       snap.ChunkCount,
	})
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request, corpusID string) {
	snaps, err := s.snapshots.ListSnapshots(r.Context(), corpusID)
	if err != nil {
		writeDBErr(w, s.log, "list snapshots", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"corpus_id": corpusID, "snapshots": snaps})
}

func (s *Server) handleQCReport(w http.ResponseWriter, r *http.Request, snapshotID string) {
	report, err := s.qcReports.GetReport(r.Context(), snapshotID)
	if err != nil {
		writeErr(w, http.StatusNotFound, "GF-API-4042", "no qc report for snapshot")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshot_id": snapshotID, "report": report})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request, corpusID string) {
	snapshotID := r.URL.Query().Get("snapshot_id")
	if snapshotID == "" {
		snap, err := s.snapshots.GetPublished(r.Context(), corpusID)
		if err != nil {
			writeErr(w, http.StatusNotFound, "GF-API-4041", "no published snapshot for corpus")
			return
		}
		snapshotID = snap.SnapshotID
	}
	limit := intQuery(r, "limit", 100)
	records, err := s.audits.ListBySnapshot(r.Context(), snapshotID, limit)
	if err != nil {
		writeDBErr(w, s.log, "list audit records", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshot_id": snapshotID, "records": records})
}

// handleRuns serves the file-side audit trail: GET /runs/{day} returns the
// records appended under runs/{day}/audit.jsonl, newest last.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, "GF-API-4050", "use GET")
		return
	}
	day := strings.Trim(strings.TrimPrefix(r.URL.Path, "/runs/"), "/")
	if day == "" || strings.Contains(day, "/") {
		writeErr(w, http.StatusBadRequest, "GF-API-4005", "expected /runs/{day}")
		return
	}
	path := filepath.Join(util.SafeJoin(s.cfg.RunsRoot, day), "audit.jsonl")
	raw, err := os.ReadFile(path)
	if err != nil {
		writeErr(w, http.StatusNotFound, "GF-API-4043", "no audit trail for day")
		return
	}
	records := make([]json.RawMessage, 0)
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		records = append(records, json.RawMessage(line))
	}
	writeJSON(w, http.StatusOK, map[string]any{"day": day, "records": records})
}

type askRequest struct {
	CorpusID string `json:"corpus_id"`
	Question string `json:"question"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "GF-API-4050", "use POST")
		return
	}
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "GF-API-4001", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeErr(w, http.StatusBadRequest, "GF-API-4002", "question is required")
		return
	}
	if req.CorpusID == "" {
		writeErr(w, http.StatusBadRequest, "GF-API-4003", "corpus_id is required")
		return
	}

	svc, err := s.askServiceFor(r.Context(), req.CorpusID)
	if err != nil {
		s.log.Warnw("ask service unavailable", "corpus_id", req.CorpusID, "error", err)
		writeErr(w, http.StatusConflict, "GF-API-4091", fmt.Sprintf("corpus %s has no published snapshot", req.CorpusID))
		return
	}

	res, err := svc.Ask(r.Context(), req.Question)
	if err != nil {
		var mismatch *index.ModelMismatchError
		switch {
		case errors.Is(err, index.ErrEmptyIndex):
			writeErr(w, http.StatusConflict, "GF-API-4092", "published index is empty")
		case errors.As(err, &mismatch):
			writeErr(w, http.StatusConflict, "GF-API-4093", mismatch.Error())
		default:
			s.log.Errorw("ask failed", "corpus_id", req.CorpusID, "error", err)
			writeErr(w, http.StatusBadGateway, "GF-API-5021", "answer generation failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type searchRequest struct {
	CorpusID  string  `json:"corpus_id"`
	Query     string  `json:"query"`
	TopK      int     `json:"top_k"`
	Threshold float64 `json:"threshold"`
}

// handleSearch is the retrieval debug surface: it embeds the query and runs
// it against the database-side vectors for the published snapshot, bypassing
// governance and generation.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "GF-API-4050", "use POST")
		return
	}
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "GF-API-4001", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" || req.CorpusID == "" {
		writeErr(w, http.StatusBadRequest, "GF-API-4004", "corpus_id and query are required")
		return
	}
	snap, err := s.snapshots.GetPublished(r.Context(), req.CorpusID)
	if err != nil {
		writeErr(w, http.StatusNotFound, "GF-API-4041", "no published snapshot for corpus")
		return
	}

	order := s.providers.PreferredEmbedOrder()
	embedder, ref := s.providers.EmbedProviderByIndex(order[0])
	vecs, _, err := embedder.Embed(r.Context(), providers.EmbedRequest{
		Operation: "search",
		Inputs:    []string{req.Query},
		Dimension: s.cfg.EmbedDim,
	})
	if err != nil || len(vecs) != 1 {
		s.log.Errorw("embed search query", "provider", ref.Raw, "error", err)
		writeErr(w, http.StatusBadGateway, "GF-API-5022", "query embedding failed")
		return
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	hits, err := s.searcher.SearchChunks(r.Context(), vecs[0], vector.SearchParams{
		SnapshotID:       snap.SnapshotID,
		EmbeddingModelID: embedder.ModelID(),
		TopK:             topK,
		ScoreThreshold:   req.Threshold,
	})
	if err != nil {
		writeDBErr(w, s.log, "vector search", err)
		return
	}

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ChunkID)
	}
	texts := map[string]string{}
	if chunks, cerr := storage.NewSnapshotChunkSource(s.chunks, snap.SnapshotID).ChunksByID(r.Context(), ids); cerr == nil {
		for _, c := range chunks {
			texts[c.ChunkID] = c.Text
		}
	}
	type searchHit struct {
		ChunkID string  `json:"chunk_id"`
		Score   float64 `json:"score"`
		Snippet string  `json:"snippet,omitempty"`
	}
	out := make([]searchHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, searchHit{
			ChunkID: h.ChunkID,
			Score:   h.Score,
			Snippet: util.DisplayEvidenceSnippet(texts[h.ChunkID], req.Query, 240),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshot_id": snap.SnapshotID, "hits": out})
}

// askServiceFor returns the query service for a corpus, rebuilding it when
// the published pointer has moved to a different snapshot. A service is
// immutable once built and stays pinned to the snapshot it serves.
func (s *Server) askServiceFor(ctx context.Context, corpusID string) (*ask.Service, error) {
	pointer := filepath.Join(s.cfg.DataOutRoot, corpusID, "published.json")
	var ptr publishedPointer
	if err := util.ReadJSON(pointer, &ptr); err != nil {
		return nil, fmt.Errorf("read published pointer for %s: %w", corpusID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.services[corpusID]; ok && h.snapshotID == ptr.SnapshotID {
		return h.svc, nil
	}

	idx, err := index.Load(ptr.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("load index for snapshot %s: %w", ptr.SnapshotID, err)
	}
	store := index.NewStore()
	store.Publish(idx)

	rules, err := governance.LoadRuleSet(s.cfg.RuleDir, s.cfg.BannedTermsPath)
	if err != nil {
		return nil, fmt.Errorf("load rule set: %w", err)
	}
	enforcer := governance.NewEnforcer(rules, s.cfg.ContextBudget)
	// Best effort; the audit trail references the fingerprint either way.
	if err := s.rules.SyncRuleSet(ctx, rules.Version, rules.Rules); err != nil {
		s.log.Warnw("rule set sync failed", "version", rules.Version, "error", err)
	}

	policy := governance.DefaultAnswerPolicy(s.cfg.FinalLine)
	if s.cfg.MinDistinctSources > 0 {
		policy.MinDistinctSources = s.cfg.MinDistinctSources
	}

	llmOrder := s.providers.PreferredLLMOrder()
	llm, _ := s.providers.LLMProviderByIndex(llmOrder[0])
	gen := ask.NewLLMGenerator(llm, providers.DefaultBackoff(), corpusID,
		policy.MinWords, policy.MaxWords, policy.TagCount, policy.FinalLine)

	svc := ask.NewService(
		index.NewRetriever(store, s.embedderForModel(idx.ModelID), providers.DefaultBackoff()),
		store,
		storage.NewSnapshotChunkSource(s.chunks, ptr.SnapshotID),
		enforcer,
		gen,
		ask.MultiSink{s.audits, ask.NewFileAuditSink(s.cfg.RunsRoot)},
		ask.Options{
			TopK:           s.cfg.TopK,
			ScoreThreshold: s.cfg.ScoreThresh,
			CorpusID:       corpusID,
			Policy:         policy,
		},
		s.log,
	)
	s.services[corpusID] = &askHandle{snapshotID: ptr.SnapshotID, svc: svc}
	s.log.Infow("query service ready", "corpus_id", corpusID, "snapshot_id", ptr.SnapshotID, "model_id", idx.ModelID)
	return svc, nil
}

// embedderForModel prefers the configured provider whose model matches the
// index. When none matches, the first preferred provider is returned and the
// retriever surfaces the mismatch as a typed error instead of silently
// re-embedding under a different model.
func (s *Server) embedderForModel(modelID string) providers.EmbeddingProvider {
	order := s.providers.PreferredEmbedOrder()
	for _, i := range order {
		p, _ := s.providers.EmbedProviderByIndex(i)
		if p.ModelID() == modelID {
			return p
		}
	}
	p, ref := s.providers.EmbedProviderByIndex(order[0])
	s.log.Warnw("no configured embedder matches published index", "index_model", modelID, "fallback", ref.Raw)
	return p
}

func intQuery(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Time    string `json:"time"`
}

func writeErr(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]apiError{"error": {
		Code:    code,
		Message: message,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}})
}

// writeDBErr hides database detail from clients while keeping it in the log.
func writeDBErr(w http.ResponseWriter, log *zap.SugaredLogger, op string, err error) {
	log.Errorw(op, "error", err)
	if strings.Contains(err.Error(), "does not exist") {
		writeErr(w, http.StatusInternalServerError, "GF-API-5001", "database schema not initialised")
		return
	}
	writeErr(w, http.StatusInternalServerError, "GF-API-5000", "database error")
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
