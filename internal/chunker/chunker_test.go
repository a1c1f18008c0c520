package chunker

import (
	"strings"
	"testing"

	"github.com/jackzampolin/slate/internal/providers"
)

func texts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func checkIndices(t *testing.T, chunks []Chunk) {
	t.Helper()
	for i, c := range chunks {
		if c.Index != i {
			t.Fatalf("chunk %d has Index %d", i, c.Index)
		}
	}
}

func TestSplit_Empty(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\n\t\n"} {
		if got := Split(in, Policy{MaxSize: 10}); len(got) != 0 {
			t.Errorf("Split(%q) = %v, want no chunks", in, got)
		}
	}
}

func TestSplit_FitsInOneChunk(t *testing.T) {
	doc := "  INT. HOUSE - DAY\n\nAlice enters.\n"
	got := Split(doc, Policy{MaxSize: 1000})
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Text != doc {
		t.Errorf("Text = %q, want the document unchanged", got[0].Text)
	}
	if got[0].ApproxTokens != EstimateTokens(doc) {
		t.Errorf("ApproxTokens = %d, want %d", got[0].ApproxTokens, EstimateTokens(doc))
	}

	if got := Split(doc, Policy{}); len(got) != 1 || got[0].Text != doc {
		t.Errorf("Split with MaxSize 0 = %v, want one chunk", got)
	}
}

func TestSplit_Paragraphs(t *testing.T) {
	for _, max := range []int{2, 3} {
		got := Split("A\n\nB\n\nC", Policy{MaxSize: max, Unit: UnitChars, Strategy: StrategyParagraph})
		want := []string{"A", "B", "C"}
		if strings.Join(texts(got), "|") != strings.Join(want, "|") {
			t.Errorf("MaxSize %d: Split() = %q, want %q", max, texts(got), want)
		}
		checkIndices(t, got)
	}
}

func TestSplit_GreedyAccumulation(t *testing.T) {
	doc := "aaaa\n\nbbbb\n\ncccc\n\ndddd"
	got := Split(doc, Policy{MaxSize: 10, Unit: UnitChars, Strategy: StrategyParagraph})
	want := []string{"aaaa\n\nbbbb", "cccc\n\ndddd"}
	if strings.Join(texts(got), "|") != strings.Join(want, "|") {
		t.Errorf("Split() = %q, want %q", texts(got), want)
	}
}

func TestSplit_OversizedParagraph(t *testing.T) {
	doc := "Short one.\n\nThis sentence is long. So is this one! And a third? Yes."
	got := Split(doc, Policy{MaxSize: 25, Unit: UnitChars, Strategy: StrategyParagraph})
	for _, c := range got {
		if n := len([]rune(c.Text)); n > 25 {
			t.Errorf("chunk %q has %d runes, want <= 25", c.Text, n)
		}
	}
	if got[0].Text != "Short one." {
		t.Errorf("first chunk = %q", got[0].Text)
	}
	if got[1].Text != "This sentence is long." {
		t.Errorf("second chunk = %q, want a sentence boundary", got[1].Text)
	}
	checkIndices(t, got)
}

func TestSplit_HardSplit(t *testing.T) {
	doc := strings.Repeat("é", 25) + "\n\nend"
	got := Split(doc, Policy{MaxSize: 10, Unit: UnitChars})
	want := []string{strings.Repeat("é", 10), strings.Repeat("é", 10), strings.Repeat("é", 5), "end"}
	if strings.Join(texts(got), "|") != strings.Join(want, "|") {
		t.Errorf("Split() = %q, want %q", texts(got), want)
	}
}

func TestSplit_ReproducesDocument(t *testing.T) {
	doc := strings.Join([]string{
		"INT. KITCHEN - NIGHT",
		"Rain hammers the window. ALICE (30s) stirs a pot.",
		"ALICE\nWhere were you?",
		"EXT. STREET - CONTINUOUS\nBob runs. He slips! He gets up? He keeps running.",
		strings.Repeat("word ", 60),
		"I/E. CAR - MOVING\nSilence.",
	}, "\n\n")

	for _, strategy := range []Strategy{StrategyParagraph, StrategyScene} {
		for _, max := range []int{5, 12, 40, 100, 10000} {
			got := Split(doc, Policy{MaxSize: max, Unit: UnitChars, Strategy: strategy})
			if stripSpace(strings.Join(texts(got), "")) != stripSpace(doc) {
				t.Errorf("%s/%d: chunks do not reproduce the document", strategy, max)
			}
			checkIndices(t, got)
			if max < 10000 {
				for _, c := range got {
					if n := len([]rune(c.Text)); n > max {
						t.Errorf("%s/%d: chunk of %d runes exceeds max", strategy, max, n)
					}
				}
			}
		}
	}
}

func TestSplit_SceneStrategy(t *testing.T) {
	doc := "INT. A - DAY\n\nOne.\n\nTwo.\nEXT. B - NIGHT\nThree."
	got := Split(doc, Policy{MaxSize: 30, Unit: UnitChars, Strategy: StrategyScene})
	want := []string{"INT. A - DAY\n\nOne.\n\nTwo.", "EXT. B - NIGHT\nThree."}
	if strings.Join(texts(got), "|") != strings.Join(want, "|") {
		t.Errorf("Split() = %q, want %q", texts(got), want)
	}
	for _, c := range got {
		if !c.PreserveSpacing {
			t.Errorf("chunk %q should preserve spacing", c.Text)
		}
	}
}

func TestSplit_KeepsLeadingIndentation(t *testing.T) {
	doc := "INT. ROOM - DAY\n\nAlice sits.\n\n          ALICE\n     I waited.\n\nShe leaves."
	got := Split(doc, Policy{MaxSize: 32, Unit: UnitChars, Strategy: StrategyParagraph})
	var cue *Chunk
	for i := range got {
		if strings.Contains(got[i].Text, "ALICE") {
			cue = &got[i]
		}
	}
	if cue == nil {
		t.Fatalf("no chunk holds the cue: %q", texts(got))
	}
	if !strings.HasPrefix(cue.Text, "          ALICE\n     I waited.") {
		t.Errorf("chunk = %q, want indentation kept", cue.Text)
	}
	if !cue.PreserveSpacing {
		t.Error("expected PreserveSpacing on the indented chunk")
	}
}

func TestIsSceneHeading(t *testing.T) {
	tests := map[string]bool{
		"INT. HOUSE - DAY":         true,
		"EXT. STREET":              true,
		"INT./EXT. CAR - MOVING":   true,
		"I/E. CAR":                 true,
		"  INT. INDENTED":          true,
		"INTERIOR decorating":      false,
		"The EXT. of the building": false,
	}
	for line, want := range tests {
		if got := IsSceneHeading(line); got != want {
			t.Errorf("IsSceneHeading(%q) = %v, want %v", line, got, want)
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(empty) = %d", got)
	}
	if got := EstimateTokens("abcde"); got != 2 {
		t.Errorf("EstimateTokens(abcde) = %d, want 2", got)
	}
}

func TestPlan(t *testing.T) {
	doc := strings.Repeat("A paragraph of screenplay text.\n\n", 400)

	t.Run("large context sends whole document", func(t *testing.T) {
		got := Plan(doc, providers.ModelProfile{ContextTokens: 200_000}, PlanConfig{}, false)
		if len(got) != 1 || got[0].Text != doc {
			t.Errorf("len = %d, want one whole chunk", len(got))
		}
	})

	t.Run("whole document pass", func(t *testing.T) {
		got := Plan(doc, providers.ModelProfile{ContextTokens: 1000}, PlanConfig{}, true)
		if len(got) != 1 {
			t.Errorf("len = %d, want 1", len(got))
		}
	})

	t.Run("small context chunks by tokens", func(t *testing.T) {
		cfg := PlanConfig{PromptReserveTokens: 1000, Strategy: StrategyParagraph}
		got := Plan(doc, providers.ModelProfile{ContextTokens: 2000}, cfg, false)
		if len(got) < 2 {
			t.Fatalf("len = %d, want several chunks", len(got))
		}
		for _, c := range got {
			if c.ApproxTokens > 1000 {
				t.Errorf("chunk %d has %d tokens, want <= 1000", c.Index, c.ApproxTokens)
			}
		}
	})

	t.Run("reserve never shrinks chunks below the floor", func(t *testing.T) {
		p := PolicyFor(providers.ModelProfile{ContextTokens: 1000}, PlanConfig{PromptReserveTokens: 5000}, false)
		if p.MaxSize != minChunkTokens {
			t.Errorf("MaxSize = %d, want %d", p.MaxSize, minChunkTokens)
		}
	})
}
