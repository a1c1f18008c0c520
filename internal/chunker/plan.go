package chunker

import "github.com/jackzampolin/slate/internal/providers"

// Planning defaults.
const (
	DefaultLargeContextTokens  = 100_000
	DefaultPromptReserveTokens = 4_000
	minChunkTokens             = 512
)

// PlanConfig controls how a model profile turns into a chunk policy.
type PlanConfig struct {
	// LargeContextTokens is the context size at which documents are always
	// sent whole.
	LargeContextTokens int
	// PromptReserveTokens is kept free for instructions and the response.
	PromptReserveTokens int
	Strategy            Strategy
}

func (c PlanConfig) withDefaults() PlanConfig {
	if c.LargeContextTokens <= 0 {
		c.LargeContextTokens = DefaultLargeContextTokens
	}
	if c.PromptReserveTokens <= 0 {
		c.PromptReserveTokens = DefaultPromptReserveTokens
	}
	if c.Strategy == "" {
		c.Strategy = StrategyScene
	}
	return c
}

// PolicyFor derives the chunk policy for a model. A zero MaxSize means the
// document is sent whole: either the pass needs the full document or the
// model's context is large.
func PolicyFor(profile providers.ModelProfile, cfg PlanConfig, wholeDocument bool) Policy {
	cfg = cfg.withDefaults()
	policy := Policy{Unit: UnitTokens, Strategy: cfg.Strategy}
	if wholeDocument || profile.ContextTokens >= cfg.LargeContextTokens {
		return policy
	}
	size := profile.ContextTokens - cfg.PromptReserveTokens
	if size < minChunkTokens {
		size = minChunkTokens
	}
	policy.MaxSize = size
	return policy
}

// Plan chunks text for one analysis pass against the given model.
func Plan(text string, profile providers.ModelProfile, cfg PlanConfig, wholeDocument bool) []Chunk {
	return Split(text, PolicyFor(profile, cfg, wholeDocument))
}
