package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackzampolin/slate/internal/normalize"
	"github.com/jackzampolin/slate/internal/prompts"
	"github.com/jackzampolin/slate/internal/providers"
)

func TestMergeBreakdowns_SumsCharacters(t *testing.T) {
	results := []normalize.Result{
		normalize.Normalize(`{"characters":[{"name":"Alice","sceneCount":2,"description":"A pilot"}]}`),
		normalize.Normalize(`{"characters":[{"name":" alice ","scene_count":"3","description":"A retired pilot"}]}`),
	}

	got := MergeBreakdowns(results, 0)
	if len(got.Characters) != 1 {
		t.Fatalf("len(Characters) = %d, want 1", len(got.Characters))
	}
	alice := got.Characters[0]
	if alice.SceneCount != 5 {
		t.Errorf("SceneCount = %d, want 5", alice.SceneCount)
	}
	if alice.Name != "Alice" {
		t.Errorf("Name = %q, want first-seen form Alice", alice.Name)
	}
	if alice.Description != "A retired pilot" {
		t.Errorf("Description = %q, want the longer one", alice.Description)
	}
}

func TestMergeBreakdowns_Scenes(t *testing.T) {
	results := []normalize.Result{
		normalize.Normalize(`{"scenes":[{"number":7,"heading":"INT. HOUSE - DAY","estimated_runtime":1.5},{"number":8,"heading":"EXT. YARD - NIGHT","estimated_runtime":"2"}]}`),
		normalize.Normalize(`[{"heading":"INT. CAR - DAY","estimated_runtime":1}]`),
	}

	got := MergeBreakdowns(results, 1)
	if len(got.Scenes) != 3 {
		t.Fatalf("len(Scenes) = %d, want 3", len(got.Scenes))
	}
	for i, s := range got.Scenes {
		if s.Number != i+1 {
			t.Errorf("Scenes[%d].Number = %d, want %d", i, s.Number, i+1)
		}
	}
	if got.Scenes[2].Heading != "INT. CAR - DAY" {
		t.Errorf("Scenes[2].Heading = %q", got.Scenes[2].Heading)
	}
	if got.Summary.TotalScenes != 3 {
		t.Errorf("TotalScenes = %d, want 3", got.Summary.TotalScenes)
	}
	if got.Summary.EstimatedRuntime != 4.5 {
		t.Errorf("EstimatedRuntime = %v, want 4.5", got.Summary.EstimatedRuntime)
	}
	if got.Summary.ChunksSucceeded != 2 || got.Summary.ChunksFailed != 1 {
		t.Errorf("chunks = %d/%d, want 2 succeeded 1 failed", got.Summary.ChunksSucceeded, got.Summary.ChunksFailed)
	}
}

func TestMergeBreakdowns_ChunkSummaryRuntimeWins(t *testing.T) {
	results := []normalize.Result{
		normalize.Normalize(`{"scenes":[{"heading":"A","estimated_runtime":1}],"summary":{"estimated_runtime":"6 minutes"}}`),
	}
	got := MergeBreakdowns(results, 0)
	if got.Summary.EstimatedRuntime != 6 {
		t.Errorf("EstimatedRuntime = %v, want 6", got.Summary.EstimatedRuntime)
	}
}

func TestMergeBreakdowns_Locations(t *testing.T) {
	results := []normalize.Result{
		normalize.Normalize(`{"locations":[{"name":"Diner","scene_count":2,"estimated_shooting_days":1}]}`),
		normalize.Normalize(`{"locations":[{"name":"DINER","scene_count":1,"shooting_days":"0.5"},"Rooftop"]}`),
	}
	got := MergeBreakdowns(results, 0)
	if len(got.Locations) != 2 {
		t.Fatalf("len(Locations) = %d, want 2", len(got.Locations))
	}
	if got.Locations[0].SceneCount != 3 {
		t.Errorf("Diner SceneCount = %d, want 3", got.Locations[0].SceneCount)
	}
	if got.Locations[1].Name != "Rooftop" {
		t.Errorf("Locations[1].Name = %q, want Rooftop", got.Locations[1].Name)
	}
	if got.Summary.EstimatedShootingDays != 1.5 {
		t.Errorf("EstimatedShootingDays = %v, want 1.5", got.Summary.EstimatedShootingDays)
	}
}

func TestMergeBreakdowns_NothingDropped(t *testing.T) {
	results := []normalize.Result{
		normalize.Normalize(`{"characters":[{"name":""},{"description":"a stranger"}],"equipment":[{"name":"crane"},{"name":"crane"}]}`),
		normalize.Normalize(`The model rambled instead of answering.`),
	}
	got := MergeBreakdowns(results, 0)
	if len(got.Characters) != 2 {
		t.Errorf("len(Characters) = %d, want unnamed entries kept separately", len(got.Characters))
	}
	if len(got.Equipment) != 2 {
		t.Errorf("len(Equipment) = %d, want 2", len(got.Equipment))
	}
	if len(got.Unstructured) != 1 || got.Unstructured[0] != "The model rambled instead of answering." {
		t.Errorf("Unstructured = %v", got.Unstructured)
	}
	if got.Summary.ChunksSucceeded != 2 {
		t.Errorf("ChunksSucceeded = %d, want 2", got.Summary.ChunksSucceeded)
	}
}

func TestMergeBreakdowns_Empty(t *testing.T) {
	got := MergeBreakdowns(nil, 3)
	if got.Scenes == nil || got.Characters == nil || got.Locations == nil || got.Equipment == nil {
		t.Error("expected non-nil empty slices")
	}
	if got.Summary.ChunksFailed != 3 {
		t.Errorf("ChunksFailed = %d, want 3", got.Summary.ChunksFailed)
	}
}

func TestBreakdownSchema(t *testing.T) {
	schema := BreakdownSchema()
	if !strings.Contains(string(schema), `"scenes"`) {
		t.Fatalf("schema missing scenes: %s", schema)
	}

	valid := normalize.Normalize(`{"scenes":[{"number":1,"heading":"INT. A - DAY"}],"characters":[],"locations":[]}`)
	if err := normalize.Validate(valid, schema); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	invalid := normalize.Normalize(`{"scenes":"none"}`)
	if err := normalize.Validate(invalid, schema); err == nil {
		t.Error("expected validation error")
	}
}

type stubPrompter struct {
	combined string
}

func (s *stubPrompter) SynthesisPrompt(analysisType, language, combined string) (prompts.Rendered, error) {
	s.combined = combined
	return prompts.Rendered{
		Key:    "analysis.synthesize.system",
		System: "Combine in " + language,
		User:   combined,
	}, nil
}

func TestSynthesizer(t *testing.T) {
	t.Run("no parts", func(t *testing.T) {
		s := &Synthesizer{Client: providers.NewMockClient(), Prompts: &stubPrompter{}}
		if _, err := s.Synthesize(context.Background(), "themes", nil, "English"); !errors.Is(err, ErrNoParts) {
			t.Errorf("error = %v, want ErrNoParts", err)
		}
	})

	t.Run("single part needs no call", func(t *testing.T) {
		mock := providers.NewMockClient()
		s := &Synthesizer{Client: mock, Prompts: &stubPrompter{}}
		got, err := s.Synthesize(context.Background(), "themes", []string{"only part"}, "English")
		if err != nil || got != "only part" {
			t.Fatalf("Synthesize() = %q, %v", got, err)
		}
		if mock.RequestCount() != 0 {
			t.Errorf("RequestCount() = %d, want 0", mock.RequestCount())
		}
	})

	t.Run("multiple parts", func(t *testing.T) {
		mock := providers.NewMockClient()
		mock.ResponseText = "  one coherent narrative  "
		p := &stubPrompter{}
		s := &Synthesizer{Client: mock, Prompts: p, Model: "m"}

		got, err := s.Synthesize(context.Background(), "themes", []string{"first", "second"}, "Spanish")
		if err != nil {
			t.Fatalf("Synthesize() error = %v", err)
		}
		if got != "one coherent narrative" {
			t.Errorf("Synthesize() = %q", got)
		}
		if mock.RequestCount() != 1 {
			t.Errorf("RequestCount() = %d, want 1", mock.RequestCount())
		}
		want := "--- PART 1/2 ---\nfirst\n\n--- PART 2/2 ---\nsecond"
		if p.combined != want {
			t.Errorf("combined = %q, want %q", p.combined, want)
		}
		req := mock.Requests()[0]
		if req.Messages[0].Content != "Combine in Spanish" {
			t.Errorf("system = %q", req.Messages[0].Content)
		}
	})

	t.Run("provider failure", func(t *testing.T) {
		mock := providers.NewMockClient()
		mock.ShouldFail = true
		s := &Synthesizer{Client: mock, Prompts: &stubPrompter{}}
		_, err := s.Synthesize(context.Background(), "themes", []string{"a", "b"}, "English")
		if providers.ClassOf(err) != providers.ClassServerError {
			t.Errorf("ClassOf() = %q, want server_error", providers.ClassOf(err))
		}
	})
}
