// Package run coordinates multi-pass analysis of a document: chunk planning,
// sequential invocation, reconciliation and per-type checkpoints.
package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/slate/internal/catalog"
	"github.com/jackzampolin/slate/internal/chunker"
	"github.com/jackzampolin/slate/internal/events"
	"github.com/jackzampolin/slate/internal/ingest"
	"github.com/jackzampolin/slate/internal/invoker"
	"github.com/jackzampolin/slate/internal/llmcall"
	"github.com/jackzampolin/slate/internal/normalize"
	"github.com/jackzampolin/slate/internal/prompts"
	"github.com/jackzampolin/slate/internal/providers"
	"github.com/jackzampolin/slate/internal/reconcile"
	"github.com/jackzampolin/slate/internal/store"
)

// DefaultFullAnalysisThreshold is the number of selected types at which a
// cached analysis is looked up.
const DefaultFullAnalysisThreshold = 10

var (
	ErrRunInProgress = errors.New("an analysis run is already in progress")
	ErrNoTypes       = errors.New("no analysis types selected")
	ErrEmptyDocument = errors.New("document has no text")
	ErrUnknownType   = catalog.ErrUnknownType
)

// Config wires a Coordinator.
type Config struct {
	Client   providers.LLMClient // required
	Catalog  *catalog.Catalog    // required
	Store    store.Store         // required
	Model    string
	Profile  providers.ModelProfile
	Sink     events.Sink
	Recorder *llmcall.Recorder
	Logger   *slog.Logger

	// Delay paces chunk requests. Ignored for local providers.
	Delay time.Duration
	Plan  chunker.PlanConfig

	// FullAnalysisThreshold gates the cache lookup; zero uses the default.
	FullAnalysisThreshold int
	Language              string
}

// Options tune one run.
type Options struct {
	// ForceRefresh bypasses the cache, discards the checkpoint and reruns
	// every selected type.
	ForceRefresh bool
	Language     string
}

// Coordinator runs one analysis at a time.
type Coordinator struct {
	cfg    Config
	sink   events.Sink
	logger *slog.Logger

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
	phase  Phase
}

// NewCoordinator validates cfg and returns a coordinator.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("coordinator requires a provider client")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("coordinator requires a catalog")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("coordinator requires a store")
	}
	if cfg.FullAnalysisThreshold <= 0 {
		cfg.FullAnalysisThreshold = DefaultFullAnalysisThreshold
	}
	if cfg.Language == "" {
		cfg.Language = catalog.DefaultLanguage
	}
	sink := cfg.Sink
	if sink == nil {
		sink = events.Discard
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{cfg: cfg, sink: sink, logger: logger, phase: PhaseIdle}, nil
}

// Phase reports the current state.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Coordinator) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

// Cancel stops the active run, if any. Safe to call from any goroutine.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// activeRun is the mutable state of the run in flight.
type activeRun struct {
	id       string
	doc      *ingest.Document
	specs    []catalog.Spec
	state    *State
	language string
	force    bool
	ckptKey  string
}

func (r *activeRun) completedCount() int {
	n := 0
	for _, s := range r.specs {
		if _, ok := r.state.Completed[s.ID]; ok {
			n++
		}
	}
	return n
}

// StartRun analyzes doc with the given types. Validation errors are returned
// before any provider call. Cancellation is not an error: the returned
// analysis has Cancelled set and the checkpoint is kept for resume.
func (c *Coordinator) StartRun(ctx context.Context, doc *ingest.Document, typeIDs []string, opts Options) (*DocumentAnalysis, error) {
	if len(typeIDs) == 0 {
		return nil, ErrNoTypes
	}
	if doc == nil || strings.TrimSpace(doc.Text) == "" {
		return nil, ErrEmptyDocument
	}
	specs, err := c.cfg.Catalog.Lookup(typeIDs)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return nil, ErrRunInProgress
	}
	c.active = true
	c.cancel = cancel
	c.phase = PhasePlanning
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.active = false
		c.cancel = nil
		c.mu.Unlock()
	}()

	language := opts.Language
	if language == "" {
		language = c.cfg.Language
	}
	ids := make([]string, len(specs))
	for i, s := range specs {
		ids[i] = s.ID
	}
	fingerprint := Fingerprint(doc.ID.ContentHash, ids)

	r := &activeRun{
		id:       uuid.New().String(),
		doc:      doc,
		specs:    specs,
		language: language,
		force:    opts.ForceRefresh,
		ckptKey:  store.CheckpointKey(doc.ID.ContentHash, doc.ID.FileName, fingerprint),
	}

	logger := c.logger.With("run_id", r.id, "document", doc.ID.FileName)
	logger.Info("starting analysis run", "types", ids, "fingerprint", fingerprint)
	c.emit(r, events.Progress{Kind: events.KindRunStarted, Message: fmt.Sprintf("Analyzing %s (%d types)", doc.ID.FileName, len(specs))}, 0)

	if cached := c.lookupCache(runCtx, r, fingerprint, logger); cached != nil {
		c.setPhase(PhaseCompleted)
		c.emit(r, events.Progress{Kind: events.KindRunCached, Message: "Loaded cached analysis", CompletedTypes: len(specs)}, 100)
		return cached, nil
	}

	r.state = c.loadCheckpoint(runCtx, r, fingerprint, logger)
	r.state.RunID = r.id

	for _, spec := range specs {
		if _, done := r.state.Completed[spec.ID]; done {
			continue
		}
		if runCtx.Err() != nil {
			return c.finishCancelled(r, logger), nil
		}

		if prior, ok := c.reusableResult(runCtx, r, spec, logger); ok {
			r.state.Completed[spec.ID] = prior
			c.emit(r, events.Progress{Kind: events.KindTypeSkipped, CurrentType: spec.ID,
				Message: fmt.Sprintf("Reusing %s from an earlier run", spec.Label)}, c.percent(r, 0))
			c.persist(runCtx, r, logger)
			continue
		}

		c.emit(r, events.Progress{Kind: events.KindTypeStarted, CurrentType: spec.ID,
			Message: fmt.Sprintf("Running %s", spec.Label)}, c.percent(r, 0))

		result, cancelled := c.runType(runCtx, r, spec, logger)
		if cancelled {
			return c.finishCancelled(r, logger), nil
		}

		r.state.Completed[spec.ID] = result
		if result.Status == StatusCompleted {
			c.emit(r, events.Progress{Kind: events.KindTypeCompleted, CurrentType: spec.ID,
				Message: fmt.Sprintf("Finished %s", spec.Label)}, c.percent(r, 0))
		} else {
			c.emit(r, events.Progress{Kind: events.KindTypeFailed, CurrentType: spec.ID, Error: result.Error,
				Message: fmt.Sprintf("%s failed", spec.Label)}, c.percent(r, 0))
		}
		c.persist(runCtx, r, logger)
	}

	// A cancel that lands after the last type has finished changes nothing.
	if len(r.state.Remaining()) > 0 && runCtx.Err() != nil {
		return c.finishCancelled(r, logger), nil
	}
	return c.finishCompleted(ctx, r, fingerprint, logger)
}

func (c *Coordinator) lookupCache(ctx context.Context, r *activeRun, fingerprint string, logger *slog.Logger) *DocumentAnalysis {
	if r.force || len(r.specs) < c.fullThreshold() {
		return nil
	}
	var cached DocumentAnalysis
	found, err := store.GetJSON(ctx, c.cfg.Store, store.CacheKey(r.doc.ID.ContentHash, r.doc.ID.FileName), &cached)
	if err != nil {
		logger.Warn("failed to read cached analysis", "error", err)
		return nil
	}
	if !found || cached.Fingerprint != fingerprint || cached.Cancelled || cached.Summary.Failed > 0 {
		return nil
	}
	logger.Info("using cached analysis", "completed_at", cached.CompletedAt)
	cached.FromCache = true
	return &cached
}

// fullThreshold caps the configured threshold at the catalog size so a
// selection of every type always counts as a full analysis.
func (c *Coordinator) fullThreshold() int {
	if n := len(c.cfg.Catalog.IDs()); n > 0 && n < c.cfg.FullAnalysisThreshold {
		return n
	}
	return c.cfg.FullAnalysisThreshold
}

func (c *Coordinator) loadCheckpoint(ctx context.Context, r *activeRun, fingerprint string, logger *slog.Logger) *State {
	fresh := &State{
		DocumentID:    r.doc.ID,
		Fingerprint:   fingerprint,
		SelectedTypes: make([]string, len(r.specs)),
		Completed:     make(map[string]TypeResult),
	}
	for i, s := range r.specs {
		fresh.SelectedTypes[i] = s.ID
	}

	if r.force {
		if err := c.cfg.Store.Delete(ctx, r.ckptKey); err != nil {
			logger.Warn("failed to delete checkpoint", "error", err)
		}
		return fresh
	}

	var saved State
	found, err := store.GetJSON(ctx, c.cfg.Store, r.ckptKey, &saved)
	if err != nil {
		logger.Warn("failed to read checkpoint, starting fresh", "error", err)
		return fresh
	}
	if !found || saved.Fingerprint != fingerprint {
		return fresh
	}

	// Failed types get another attempt; completed ones are kept as stored.
	for t, res := range saved.Completed {
		if res.Status == StatusCompleted {
			fresh.Completed[t] = res
		}
	}
	logger.Info("resuming from checkpoint", "completed", len(fresh.Completed), "remaining", len(fresh.Remaining()))
	return fresh
}

// reusableResult returns a completed result for spec stored by an earlier
// run with a different type selection.
func (c *Coordinator) reusableResult(ctx context.Context, r *activeRun, spec catalog.Spec, logger *slog.Logger) (TypeResult, bool) {
	if r.force {
		return TypeResult{}, false
	}
	var prior TypeResult
	found, err := store.GetJSON(ctx, c.cfg.Store, store.TypeKey(r.doc.ID.ContentHash, r.doc.ID.FileName, spec.ID), &prior)
	if err != nil {
		logger.Warn("failed to read stored type result", "type", spec.ID, "error", err)
		return TypeResult{}, false
	}
	if !found || prior.Status != StatusCompleted {
		return TypeResult{}, false
	}
	return prior, true
}

// persist writes the checkpoint and, for completed types, the per-type entry.
// Failures are logged and surfaced as events; the run carries on.
func (c *Coordinator) persist(ctx context.Context, r *activeRun, logger *slog.Logger) {
	// A cancel that lands while a type finishes must not lose its result.
	ctx = context.WithoutCancel(ctx)
	c.setPhase(PhasePersisting)
	r.state.UpdatedAt = time.Now().UTC()
	if err := store.SetJSON(ctx, c.cfg.Store, r.ckptKey, r.state); err != nil {
		logger.Warn("failed to write checkpoint", "error", err)
		c.emit(r, events.Progress{Kind: events.KindCheckpointFailed, Error: err.Error(),
			Message: "Could not save progress; the run continues"}, c.percent(r, 0))
	}
	for _, s := range r.specs {
		res, ok := r.state.Completed[s.ID]
		if !ok || res.Status != StatusCompleted {
			continue
		}
		key := store.TypeKey(r.doc.ID.ContentHash, r.doc.ID.FileName, s.ID)
		if !r.force {
			if _, exists, err := c.cfg.Store.Get(ctx, key); err == nil && exists {
				continue
			}
		}
		if err := store.SetJSON(ctx, c.cfg.Store, key, res); err != nil {
			logger.Warn("failed to write type result", "type", s.ID, "error", err)
		}
	}
}

func (c *Coordinator) runType(ctx context.Context, r *activeRun, spec catalog.Spec, logger *slog.Logger) (TypeResult, bool) {
	logger = logger.With("type", spec.ID)

	c.setPhase(PhaseChunking)
	chunks := chunker.Plan(r.doc.Text, c.cfg.Profile, c.cfg.Plan, spec.NoChunking)
	logger.Debug("planned chunks", "chunks", len(chunks), "no_chunking", spec.NoChunking)

	delay := c.cfg.Delay
	if c.cfg.Profile.Local {
		delay = 0
	}
	inv := &invoker.Invoker{
		Client:   c.cfg.Client,
		Model:    c.cfg.Model,
		Delay:    delay,
		Recorder: c.cfg.Recorder,
		Logger:   logger,
	}

	var format *providers.ResponseFormat
	if schema := spec.Schema(); schema != nil {
		f, err := providers.JSONSchemaFormat(spec.ID, schema)
		if err != nil {
			logger.Warn("structured output unavailable", "error", err)
		} else {
			format = f
		}
	}

	build := func(chunk chunker.Chunk, total int) (prompts.Rendered, error) {
		return c.cfg.Catalog.Render(spec, catalog.PromptData{
			Language:        r.language,
			Title:           r.doc.Title,
			Text:            chunk.Text,
			ChunkIndex:      chunk.Index + 1,
			TotalChunks:     total,
			PreserveSpacing: chunk.PreserveSpacing,
		})
	}

	c.setPhase(PhaseInvoking)
	outcome := inv.Invoke(ctx, spec.ID, chunks, build, invoker.Options{
		Temperature:    spec.Temperature,
		MaxTokens:      spec.MaxOutputTokens,
		ResponseFormat: format,
		RunID:          r.id,
		DocumentHash:   r.doc.ID.ContentHash,
		OnChunkStart: func(index, total int) {
			c.emit(r, events.Progress{Kind: events.KindChunkStarted, CurrentType: spec.ID,
				CurrentChunk: index + 1, TotalChunks: total,
				Message: fmt.Sprintf("%s: part %d of %d", spec.Label, index+1, total)},
				c.percent(r, float64(index)/float64(total)))
		},
		OnProgress: func(p invoker.ChunkProgress) {
			c.emit(r, events.Progress{Kind: events.KindChunkCompleted, CurrentType: spec.ID,
				CurrentChunk: p.CompletedChunks, TotalChunks: p.TotalChunks,
				Message: fmt.Sprintf("%s: finished part %d of %d", spec.Label, p.CompletedChunks, p.TotalChunks)},
				c.percent(r, float64(p.CompletedChunks)/float64(p.TotalChunks)))
		},
	})
	if outcome.Cancelled {
		logger.Info("type interrupted by cancellation", "chunks_done", len(outcome.Responses))
		return TypeResult{}, true
	}

	result := TypeResult{
		Type:        spec.ID,
		Name:        spec.Label,
		Chunks:      len(chunks),
		ChunkErrors: outcome.Failed(),
	}
	for _, resp := range outcome.Responses {
		result.PromptTokens += resp.Usage.PromptTokens
		result.CompletionTokens += resp.Usage.CompletionTokens
		result.CostUSD += resp.Usage.CostUSD
	}

	succeeded := outcome.Succeeded()
	if len(succeeded) == 0 {
		return failedResult(result, allChunksFailed(outcome)), false
	}

	c.setPhase(PhaseReconciling)
	if spec.Structured() {
		result = c.reconcileStructured(spec, succeeded, outcome.Failed(), result, logger)
	} else {
		texts := make([]string, len(succeeded))
		for i, resp := range succeeded {
			texts[i] = resp.Text
		}
		synth := &reconcile.Synthesizer{
			Client:       c.cfg.Client,
			Model:        c.cfg.Model,
			Prompts:      c.cfg.Catalog,
			Temperature:  spec.Temperature,
			MaxTokens:    spec.MaxOutputTokens,
			Recorder:     c.cfg.Recorder,
			RunID:        r.id,
			DocumentHash: r.doc.ID.ContentHash,
			Logger:       logger,
		}
		text, err := synth.Synthesize(ctx, spec.ID, texts, r.language)
		if err != nil {
			if ctx.Err() != nil {
				return TypeResult{}, true
			}
			return failedResult(result, err.Error()), false
		}
		encoded, _ := json.Marshal(text)
		result.Result = encoded
	}

	result.Status = StatusCompleted
	result.Timestamp = time.Now().UTC()
	logger.Info("analysis type completed", "chunks", result.Chunks, "chunk_errors", result.ChunkErrors)
	return result, false
}

func (c *Coordinator) reconcileStructured(spec catalog.Spec, succeeded []invoker.Response, failed int, result TypeResult, logger *slog.Logger) TypeResult {
	schema := spec.Schema()
	results := make([]normalize.Result, len(succeeded))
	repairs := make(map[string]bool)
	for i, resp := range succeeded {
		n := normalize.Normalize(resp.Text)
		for _, step := range n.RepairsApplied {
			repairs[step] = true
		}
		if n.IsText {
			logger.Warn("chunk output was not JSON, keeping raw text", "chunk", resp.ChunkIndex+1)
		} else if err := normalize.Validate(n, schema); err != nil {
			logger.Debug("chunk output does not match schema", "chunk", resp.ChunkIndex+1, "error", err)
		}
		results[i] = n
	}
	for step := range repairs {
		result.RepairsApplied = append(result.RepairsApplied, step)
	}
	sort.Strings(result.RepairsApplied)

	merged := reconcile.MergeBreakdowns(results, failed)
	encoded, err := json.Marshal(merged)
	if err != nil {
		return failedResult(result, fmt.Sprintf("failed to encode merged result: %v", err))
	}
	result.Result = encoded
	return result
}

func failedResult(result TypeResult, msg string) TypeResult {
	result.Status = StatusFailed
	result.Error = msg
	result.Result = nil
	result.Timestamp = time.Now().UTC()
	return result
}

func allChunksFailed(outcome invoker.Outcome) string {
	if len(outcome.Responses) == 0 {
		return "no chunks to analyze"
	}
	first := outcome.Responses[0].Err
	if len(outcome.Responses) == 1 {
		return fmt.Sprintf("%s (%s)", providers.UserMessage(first.Class), first.Message)
	}
	return fmt.Sprintf("all %d chunks failed: %s (%s)", len(outcome.Responses), providers.UserMessage(first.Class), first.Message)
}

func (c *Coordinator) finishCancelled(r *activeRun, logger *slog.Logger) *DocumentAnalysis {
	r.state.Cancelled = true
	c.persist(context.Background(), r, logger)
	c.setPhase(PhaseCancelled)

	analysis := c.assemble(r)
	analysis.Cancelled = true
	logger.Info("analysis run cancelled", "completed_types", analysis.Summary.TotalTypes)
	c.emit(r, events.Progress{Kind: events.KindRunCancelled, Message: "Analysis cancelled; progress saved"}, c.percent(r, 0))
	return analysis
}

func (c *Coordinator) finishCompleted(ctx context.Context, r *activeRun, fingerprint string, logger *slog.Logger) (*DocumentAnalysis, error) {
	ctx = context.WithoutCancel(ctx)
	analysis := c.assemble(r)
	analysis.Fingerprint = fingerprint
	analysis.CompletedAt = time.Now().UTC()
	c.setPhase(PhasePersisting)

	cacheKey := store.CacheKey(r.doc.ID.ContentHash, r.doc.ID.FileName)
	if err := store.SetJSON(ctx, c.cfg.Store, cacheKey, analysis); err != nil {
		c.setPhase(PhaseCompleted)
		c.emit(r, events.Progress{Kind: events.KindRunCompleted, Error: err.Error(), Message: "Analysis complete (not cached)"}, 100)
		return analysis, fmt.Errorf("failed to cache analysis: %w", err)
	}
	if err := c.cfg.Store.Delete(ctx, r.ckptKey); err != nil {
		logger.Warn("failed to remove checkpoint", "error", err)
	}

	c.setPhase(PhaseCompleted)
	logger.Info("analysis run completed",
		"succeeded", analysis.Summary.Succeeded,
		"failed", analysis.Summary.Failed)
	c.emit(r, events.Progress{Kind: events.KindRunCompleted,
		Message: fmt.Sprintf("Analysis complete: %d succeeded, %d failed", analysis.Summary.Succeeded, analysis.Summary.Failed)}, 100)
	return analysis, nil
}

// assemble builds the analysis from the state, in selection order.
func (c *Coordinator) assemble(r *activeRun) *DocumentAnalysis {
	analysis := &DocumentAnalysis{
		DocumentID:  r.doc.ID,
		Fingerprint: r.state.Fingerprint,
		RunID:       r.id,
		Results:     make([]TypeResult, 0, len(r.specs)),
	}
	for _, s := range r.specs {
		res, ok := r.state.Completed[s.ID]
		if !ok {
			continue
		}
		analysis.Results = append(analysis.Results, res)
		analysis.Summary.TotalTypes++
		if res.Status == StatusCompleted {
			analysis.Summary.Succeeded++
		} else {
			analysis.Summary.Failed++
		}

		var counts struct {
			Scenes     []json.RawMessage `json:"scenes"`
			Characters []json.RawMessage `json:"characters"`
		}
		if json.Unmarshal(res.Result, &counts) == nil {
			analysis.Summary.TotalScenes = max(analysis.Summary.TotalScenes, len(counts.Scenes))
			analysis.Summary.TotalCharacters = max(analysis.Summary.TotalCharacters, len(counts.Characters))
		}
	}
	return analysis
}

// percent is overall progress with fraction of the current type done.
func (c *Coordinator) percent(r *activeRun, fraction float64) float64 {
	if len(r.specs) == 0 {
		return 100
	}
	done := 0
	if r.state != nil {
		done = r.completedCount()
	}
	p := (float64(done) + fraction) / float64(len(r.specs)) * 100
	if p > 100 {
		p = 100
	}
	return p
}

func (c *Coordinator) emit(r *activeRun, p events.Progress, percent float64) {
	p.RunID = r.id
	p.Time = time.Now()
	p.Phase = string(c.Phase())
	p.Percent = percent
	p.TotalTypes = len(r.specs)
	if p.CompletedTypes == 0 && r.state != nil {
		p.CompletedTypes = r.completedCount()
	}
	c.sink.Emit(p)
}
