package run

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/slate/internal/catalog"
	"github.com/jackzampolin/slate/internal/chunker"
	"github.com/jackzampolin/slate/internal/events"
	"github.com/jackzampolin/slate/internal/ingest"
	"github.com/jackzampolin/slate/internal/providers"
	"github.com/jackzampolin/slate/internal/reconcile"
	"github.com/jackzampolin/slate/internal/store"
)

// paragraphs builds a document that splits into n chunks under testPlan.
func paragraphs(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = strings.TrimSpace(strings.Repeat(fmt.Sprintf("p%d ", i), 400))
	}
	return strings.Join(parts, "\n\n")
}

var testProfile = providers.ModelProfile{ContextTokens: 1000}

var testPlan = chunker.PlanConfig{PromptReserveTokens: 500, Strategy: chunker.StrategyParagraph}

type fixture struct {
	mock  *providers.MockClient
	store *store.MemoryStore
	rec   *events.Recorder
	coord *Coordinator
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		mock:  providers.NewMockClient(),
		store: store.NewMemoryStore(),
		rec:   &events.Recorder{},
	}
	cfg := Config{
		Client:  f.mock,
		Catalog: catalog.New(nil),
		Store:   f.store,
		Model:   "test-model",
		Profile: testProfile,
		Plan:    testPlan,
		Sink:    f.rec,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	coord, err := NewCoordinator(cfg)
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}
	f.coord = coord
	return f
}

func TestStartRun_Validation(t *testing.T) {
	f := newFixture(t, nil)
	doc := ingest.FromText("a.fountain", "INT. ROOM - DAY")

	if _, err := f.coord.StartRun(context.Background(), doc, nil, Options{}); !errors.Is(err, ErrNoTypes) {
		t.Errorf("error = %v, want ErrNoTypes", err)
	}
	if _, err := f.coord.StartRun(context.Background(), doc, []string{"themes", "thems"}, Options{}); !errors.Is(err, ErrUnknownType) {
		t.Errorf("error = %v, want ErrUnknownType", err)
	}
	for _, text := range []string{"", "   \n\n  \t"} {
		if _, err := f.coord.StartRun(context.Background(), ingest.FromText("b.txt", text), []string{"themes"}, Options{}); !errors.Is(err, ErrEmptyDocument) {
			t.Errorf("StartRun(%q) error = %v, want ErrEmptyDocument", text, err)
		}
	}
	if f.mock.RequestCount() != 0 {
		t.Errorf("RequestCount() = %d, want 0", f.mock.RequestCount())
	}
	if f.coord.Phase() != PhaseIdle {
		t.Errorf("Phase() = %q, want idle", f.coord.Phase())
	}
}

func TestStartRun_SingleType(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.ResponseText = "Three loglines."
	doc := ingest.FromText("a.fountain", "INT. ROOM - DAY\n\nALICE\nHello.")

	analysis, err := f.coord.StartRun(context.Background(), doc, []string{"logline"}, Options{Language: "French"})
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if analysis.Cancelled || analysis.FromCache {
		t.Errorf("analysis = %+v", analysis)
	}
	res, ok := analysis.Result("logline")
	if !ok || res.Status != StatusCompleted || res.Text() != "Three loglines." {
		t.Errorf("logline result = %+v", res)
	}
	if analysis.Summary != (Summary{TotalTypes: 1, Succeeded: 1}) {
		t.Errorf("Summary = %+v", analysis.Summary)
	}

	req := f.mock.Requests()[0]
	if req.Model != "test-model" || !strings.Contains(req.Messages[0].Content, "French") {
		t.Errorf("request = %+v", req)
	}

	want := []events.Kind{
		events.KindRunStarted, events.KindTypeStarted, events.KindChunkStarted,
		events.KindChunkCompleted, events.KindTypeCompleted, events.KindRunCompleted,
	}
	if got := f.rec.Kinds(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	last := f.rec.Events[len(f.rec.Events)-1]
	if last.Percent != 100 || last.CompletedTypes != 1 || last.TotalTypes != 1 {
		t.Errorf("final event = %+v", last)
	}
	if f.coord.Phase() != PhaseCompleted {
		t.Errorf("Phase() = %q, want completed", f.coord.Phase())
	}
}

func TestStartRun_ResumeRunsOnlyRemaining(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.ResponseText = "fresh logline"
	doc := ingest.FromText("a.fountain", "INT. ROOM - DAY")
	types := []string{"themes", "logline"}

	seeded := TypeResult{
		Type:      "themes",
		Name:      "thematic analysis",
		Status:    StatusCompleted,
		Result:    json.RawMessage(`"seeded themes"`),
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Chunks:    1,
	}
	fp := Fingerprint(doc.ID.ContentHash, types)
	ckpt := &State{
		DocumentID:    doc.ID,
		Fingerprint:   fp,
		SelectedTypes: types,
		Completed:     map[string]TypeResult{"themes": seeded},
	}
	if err := store.SetJSON(context.Background(), f.store, store.CheckpointKey(doc.ID.ContentHash, doc.ID.FileName, fp), ckpt); err != nil {
		t.Fatal(err)
	}
	if got := ckpt.Remaining(); len(got) != 1 || got[0] != "logline" {
		t.Fatalf("Remaining() = %v, want [logline]", got)
	}

	analysis, err := f.coord.StartRun(context.Background(), doc, types, Options{})
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if f.mock.RequestCount() != 1 {
		t.Errorf("RequestCount() = %d, want 1", f.mock.RequestCount())
	}
	if !strings.Contains(f.mock.Requests()[0].Messages[0].Content, "logline") {
		t.Error("expected the only request to be for logline")
	}

	got, _ := analysis.Result("themes")
	wantJSON, _ := json.Marshal(seeded)
	gotJSON, _ := json.Marshal(got)
	if !bytes.Equal(wantJSON, gotJSON) {
		t.Errorf("themes result changed:\n got %s\nwant %s", gotJSON, wantJSON)
	}
	if analysis.Results[0].Type != "themes" || analysis.Results[1].Type != "logline" {
		t.Errorf("results not in selection order: %v, %v", analysis.Results[0].Type, analysis.Results[1].Type)
	}
}

func TestStartRun_ResumeRetriesFailedTypes(t *testing.T) {
	f := newFixture(t, nil)
	doc := ingest.FromText("a.fountain", "INT. ROOM - DAY")
	types := []string{"themes"}
	fp := Fingerprint(doc.ID.ContentHash, types)
	ckpt := &State{
		DocumentID:    doc.ID,
		Fingerprint:   fp,
		SelectedTypes: types,
		Completed:     map[string]TypeResult{"themes": {Type: "themes", Status: StatusFailed, Error: "boom"}},
	}
	store.SetJSON(context.Background(), f.store, store.CheckpointKey(doc.ID.ContentHash, doc.ID.FileName, fp), ckpt)

	analysis, err := f.coord.StartRun(context.Background(), doc, types, Options{})
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if f.mock.RequestCount() != 1 {
		t.Errorf("RequestCount() = %d, want 1", f.mock.RequestCount())
	}
	if analysis.Summary.Succeeded != 1 {
		t.Errorf("Summary = %+v", analysis.Summary)
	}
}

func TestStartRun_CancelMidType(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(t, nil)
	f.mock.Responder = func(n int, req *providers.ChatRequest) (string, error) {
		if n == 2 {
			cancel()
		}
		return fmt.Sprintf("part %d", n), nil
	}
	doc := ingest.FromText("long.txt", paragraphs(5))

	analysis, err := f.coord.StartRun(ctx, doc, []string{"themes"}, Options{})
	if err != nil {
		t.Fatalf("StartRun() error = %v, want nil on cancellation", err)
	}
	if !analysis.Cancelled {
		t.Error("expected Cancelled")
	}
	if f.mock.RequestCount() != 2 {
		t.Errorf("RequestCount() = %d, want 2", f.mock.RequestCount())
	}
	if len(analysis.Results) != 0 {
		t.Errorf("interrupted type should not be recorded, got %v", analysis.Results)
	}
	if f.coord.Phase() != PhaseCancelled {
		t.Errorf("Phase() = %q, want cancelled", f.coord.Phase())
	}

	var saved State
	fp := Fingerprint(doc.ID.ContentHash, []string{"themes"})
	found, err := store.GetJSON(context.Background(), f.store, store.CheckpointKey(doc.ID.ContentHash, doc.ID.FileName, fp), &saved)
	if err != nil || !found {
		t.Fatalf("checkpoint found=%v err=%v, want kept", found, err)
	}
	if !saved.Cancelled || len(saved.Completed) != 0 {
		t.Errorf("checkpoint = %+v", saved)
	}
	if kinds := f.rec.Kinds(); kinds[len(kinds)-1] != events.KindRunCancelled {
		t.Errorf("last event = %v, want run_cancelled", kinds[len(kinds)-1])
	}
}

func TestStartRun_CancelBetweenTypes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(t, func(c *Config) {
		c.Sink = events.SinkFunc(func(p events.Progress) {
			if p.Kind == events.KindTypeCompleted {
				cancel()
			}
		})
	})
	doc := ingest.FromText("a.fountain", "INT. ROOM - DAY")

	analysis, err := f.coord.StartRun(ctx, doc, []string{"logline", "themes", "pacing"}, Options{})
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if !analysis.Cancelled || len(analysis.Results) != 1 || analysis.Results[0].Type != "logline" {
		t.Errorf("analysis = %+v", analysis)
	}
	if f.mock.RequestCount() != 1 {
		t.Errorf("RequestCount() = %d, want 1", f.mock.RequestCount())
	}
}

func TestStartRun_CancelAfterLastType(t *testing.T) {
	var f *fixture
	f = newFixture(t, func(c *Config) {
		c.Sink = events.SinkFunc(func(p events.Progress) {
			if p.Kind == events.KindTypeCompleted {
				f.coord.Cancel()
			}
		})
	})
	doc := ingest.FromText("a.fountain", "INT. ROOM - DAY")

	analysis, err := f.coord.StartRun(context.Background(), doc, []string{"logline"}, Options{})
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if analysis.Cancelled || len(analysis.Results) != 1 {
		t.Errorf("analysis = %+v, want completed with one result", analysis)
	}
	if f.coord.Phase() != PhaseCompleted {
		t.Errorf("Phase() = %q, want completed", f.coord.Phase())
	}
	if _, found, _ := f.store.Get(context.Background(), store.CacheKey(doc.ID.ContentHash, doc.ID.FileName)); !found {
		t.Error("expected the finished analysis to be cached")
	}
}

func TestStartRun_ChunkedTextIsSynthesized(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.Responder = func(n int, req *providers.ChatRequest) (string, error) {
		if strings.Contains(req.Messages[0].Content, "combining partial analyses") {
			return "combined narrative", nil
		}
		return fmt.Sprintf("part %d", n), nil
	}
	doc := ingest.FromText("long.txt", paragraphs(3))

	analysis, err := f.coord.StartRun(context.Background(), doc, []string{"themes"}, Options{})
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if f.mock.RequestCount() != 4 {
		t.Errorf("RequestCount() = %d, want 3 chunks + 1 synthesis", f.mock.RequestCount())
	}
	res, _ := analysis.Result("themes")
	if res.Text() != "combined narrative" || res.Chunks != 3 {
		t.Errorf("themes = %+v", res)
	}
	synth := f.mock.Requests()[3].Messages[1].Content
	if !strings.Contains(synth, "--- PART 3/3 ---\npart 3") {
		t.Errorf("synthesis input = %q", synth)
	}
}

func TestStartRun_NoChunkingTypeSeesWholeDocument(t *testing.T) {
	f := newFixture(t, nil)
	doc := ingest.FromText("long.txt", paragraphs(3))

	if _, err := f.coord.StartRun(context.Background(), doc, []string{"coverage"}, Options{}); err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if f.mock.RequestCount() != 1 {
		t.Errorf("RequestCount() = %d, want 1", f.mock.RequestCount())
	}
}

func TestStartRun_BreakdownMerge(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.Responses = []providers.MockResponse{
		{Text: "```json\n{'characters': [{'name': 'Alice', 'sceneCount': 2}], 'scenes': [{'heading': 'INT. A - DAY'}]}\n```"},
		{Text: `{"characters": [{"name": "alice", "scene_count": "3"}, {"name": "Bob"}], "scenes": [{"heading": "EXT. B - NIGHT"},],}`},
	}
	doc := ingest.FromText("long.txt", paragraphs(2))

	analysis, err := f.coord.StartRun(context.Background(), doc, []string{"breakdown"}, Options{})
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	res, _ := analysis.Result("breakdown")
	if res.Status != StatusCompleted {
		t.Fatalf("breakdown = %+v", res)
	}
	var b reconcile.Breakdown
	if err := json.Unmarshal(res.Result, &b); err != nil {
		t.Fatalf("decode breakdown: %v", err)
	}
	if len(b.Characters) != 2 || b.Characters[0].SceneCount != 5 {
		t.Errorf("Characters = %+v, want Alice with 5 scenes", b.Characters)
	}
	if len(b.Scenes) != 2 || b.Scenes[1].Number != 2 {
		t.Errorf("Scenes = %+v", b.Scenes)
	}
	if len(res.RepairsApplied) == 0 {
		t.Error("expected repairs to be reported")
	}
	if analysis.Summary.TotalScenes != 2 || analysis.Summary.TotalCharacters != 2 {
		t.Errorf("Summary = %+v", analysis.Summary)
	}

	for _, req := range f.mock.Requests() {
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_schema" {
			t.Errorf("ResponseFormat = %+v, want json_schema", req.ResponseFormat)
		}
	}
}

func TestStartRun_TypeFailureDoesNotStopRun(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.Responses = []providers.MockResponse{
		{Err: &providers.ProviderError{Provider: "mock", Class: providers.ClassUnauthorized, StatusCode: 401, Message: "bad key"}},
		{Text: "loglines"},
	}
	doc := ingest.FromText("a.fountain", "INT. ROOM - DAY")

	analysis, err := f.coord.StartRun(context.Background(), doc, []string{"themes", "logline"}, Options{})
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	themes, _ := analysis.Result("themes")
	if themes.Status != StatusFailed || !strings.Contains(themes.Error, "API key") {
		t.Errorf("themes = %+v", themes)
	}
	logline, _ := analysis.Result("logline")
	if logline.Status != StatusCompleted {
		t.Errorf("logline = %+v", logline)
	}
	if analysis.Summary.Succeeded != 1 || analysis.Summary.Failed != 1 {
		t.Errorf("Summary = %+v", analysis.Summary)
	}

	found := false
	for _, k := range f.rec.Kinds() {
		if k == events.KindTypeFailed {
			found = true
		}
	}
	if !found {
		t.Error("expected a type_failed event")
	}
}

func TestStartRun_Cache(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.FullAnalysisThreshold = 2 })
	doc := ingest.FromText("a.fountain", "INT. ROOM - DAY")
	types := []string{"themes", "logline"}

	first, err := f.coord.StartRun(context.Background(), doc, types, Options{})
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if first.FromCache || f.mock.RequestCount() != 2 {
		t.Fatalf("first run FromCache=%v requests=%d", first.FromCache, f.mock.RequestCount())
	}
	fp := Fingerprint(doc.ID.ContentHash, types)
	if _, found, _ := f.store.Get(context.Background(), store.CheckpointKey(doc.ID.ContentHash, doc.ID.FileName, fp)); found {
		t.Error("expected checkpoint to be removed after completion")
	}

	t.Run("hit", func(t *testing.T) {
		second, err := f.coord.StartRun(context.Background(), doc, []string{"logline", "themes"}, Options{})
		if err != nil {
			t.Fatalf("StartRun() error = %v", err)
		}
		if !second.FromCache || f.mock.RequestCount() != 2 {
			t.Errorf("FromCache=%v requests=%d, want cached with no new requests", second.FromCache, f.mock.RequestCount())
		}
		if kinds := f.rec.Kinds(); kinds[len(kinds)-1] != events.KindRunCached {
			t.Errorf("last event = %v, want run_cached", kinds[len(kinds)-1])
		}
	})

	t.Run("force refresh", func(t *testing.T) {
		third, err := f.coord.StartRun(context.Background(), doc, types, Options{ForceRefresh: true})
		if err != nil {
			t.Fatalf("StartRun() error = %v", err)
		}
		if third.FromCache || f.mock.RequestCount() != 4 {
			t.Errorf("FromCache=%v requests=%d, want fresh run", third.FromCache, f.mock.RequestCount())
		}
	})
}

func TestStartRun_CacheAllTypesAtDefaultThreshold(t *testing.T) {
	f := newFixture(t, nil)
	doc := ingest.FromText("a.fountain", "INT. ROOM - DAY")
	all := catalog.New(nil).IDs()

	if _, err := f.coord.StartRun(context.Background(), doc, all, Options{}); err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	before := f.mock.RequestCount()

	second, err := f.coord.StartRun(context.Background(), doc, all, Options{})
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if !second.FromCache {
		t.Error("expected a selection of every type to be served from the cache")
	}
	if f.mock.RequestCount() != before {
		t.Errorf("RequestCount() = %d, want %d", f.mock.RequestCount(), before)
	}
}

func TestStartRun_BelowThresholdReusesTypeResults(t *testing.T) {
	f := newFixture(t, nil)
	doc := ingest.FromText("a.fountain", "INT. ROOM - DAY")

	if _, err := f.coord.StartRun(context.Background(), doc, []string{"themes"}, Options{}); err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	analysis, err := f.coord.StartRun(context.Background(), doc, []string{"themes", "logline"}, Options{})
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if f.mock.RequestCount() != 2 {
		t.Errorf("RequestCount() = %d, want 2 (themes reused)", f.mock.RequestCount())
	}
	if analysis.FromCache || analysis.Summary.Succeeded != 2 {
		t.Errorf("analysis = %+v", analysis)
	}

	skipped := 0
	for _, k := range f.rec.Kinds() {
		if k == events.KindTypeSkipped {
			skipped++
		}
	}
	if skipped != 1 {
		t.Errorf("type_skipped events = %d, want 1", skipped)
	}
}

type flakyStore struct {
	store.Store
	failPrefix string
}

func (s *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	if strings.HasPrefix(key, s.failPrefix) {
		return errors.New("disk full")
	}
	return s.Store.Set(ctx, key, value)
}

func TestStartRun_PersistenceFailures(t *testing.T) {
	doc := ingest.FromText("a.fountain", "INT. ROOM - DAY")

	t.Run("checkpoint write failure is reported, run continues", func(t *testing.T) {
		f := newFixture(t, func(c *Config) {
			c.Store = &flakyStore{Store: store.NewMemoryStore(), failPrefix: "checkpoint/"}
		})
		analysis, err := f.coord.StartRun(context.Background(), doc, []string{"themes", "logline"}, Options{})
		if err != nil {
			t.Fatalf("StartRun() error = %v", err)
		}
		if analysis.Summary.Succeeded != 2 {
			t.Errorf("Summary = %+v", analysis.Summary)
		}
		failures := 0
		for _, e := range f.rec.Events {
			if e.Kind == events.KindCheckpointFailed {
				failures++
				if e.Error != "disk full" {
					t.Errorf("Error = %q", e.Error)
				}
			}
		}
		if failures != 2 {
			t.Errorf("checkpoint_failed events = %d, want 2", failures)
		}
	})

	t.Run("cache write failure is returned with the analysis", func(t *testing.T) {
		f := newFixture(t, func(c *Config) {
			c.Store = &flakyStore{Store: store.NewMemoryStore(), failPrefix: "analysis/"}
		})
		analysis, err := f.coord.StartRun(context.Background(), doc, []string{"themes"}, Options{})
		if err == nil {
			t.Fatal("expected cache write error")
		}
		if analysis == nil || analysis.Summary.Succeeded != 1 {
			t.Errorf("analysis = %+v, want result alongside the error", analysis)
		}
	})
}

func TestCoordinator_RunInProgressAndCancel(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.Latency = time.Hour
	doc := ingest.FromText("a.fountain", "INT. ROOM - DAY")

	type outcome struct {
		analysis *DocumentAnalysis
		err      error
	}
	done := make(chan outcome, 1)
	go func() {
		a, err := f.coord.StartRun(context.Background(), doc, []string{"themes"}, Options{})
		done <- outcome{a, err}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for f.coord.Phase() != PhaseInvoking && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if f.coord.Phase() != PhaseInvoking {
		t.Fatalf("Phase() = %q, want invoking", f.coord.Phase())
	}

	if _, err := f.coord.StartRun(context.Background(), doc, []string{"logline"}, Options{}); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("error = %v, want ErrRunInProgress", err)
	}

	f.coord.Cancel()
	select {
	case out := <-done:
		if out.err != nil || !out.analysis.Cancelled {
			t.Errorf("StartRun() = %+v, %v; want cancelled", out.analysis, out.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after Cancel()")
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("hash", []string{"themes", "logline"})
	if a != Fingerprint("hash", []string{"logline", "themes", "themes"}) {
		t.Error("fingerprint should ignore order and duplicates")
	}
	if a == Fingerprint("hash", []string{"themes"}) {
		t.Error("different type sets should differ")
	}
	if a == Fingerprint("other", []string{"themes", "logline"}) {
		t.Error("different documents should differ")
	}
}
