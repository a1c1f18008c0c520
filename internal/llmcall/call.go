// Package llmcall records provider calls for traceability.
// Every provider call is recorded with its prompt key, response, and metrics.
package llmcall

import (
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/slate/internal/providers"
)

// Call represents a recorded provider call.
type Call struct {
	// Unique identifier
	ID string `json:"id"`

	// Timing
	Timestamp time.Time `json:"timestamp"`
	LatencyMs int       `json:"latency_ms"`

	// Context references
	RunID        string `json:"run_id,omitempty"`
	DocumentHash string `json:"document_hash,omitempty"`
	AnalysisType string `json:"analysis_type,omitempty"`
	ChunkIndex   *int   `json:"chunk_index,omitempty"` // nil for synthesis calls

	// Prompt traceability
	PromptKey  string `json:"prompt_key"`
	PromptHash string `json:"prompt_hash,omitempty"` // content hash of the system template used

	// Model info
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`
	Attempts    int      `json:"attempts,omitempty"`

	// Token usage
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd,omitempty"`

	// Response
	Response string `json:"response"`

	// Status
	Success    bool                 `json:"success"`
	Error      string               `json:"error,omitempty"`
	ErrorClass providers.ErrorClass `json:"error_class,omitempty"`
}

// RecordOptions provides context for recording a provider call.
type RecordOptions struct {
	// Context references (all optional)
	RunID        string
	DocumentHash string
	AnalysisType string
	ChunkIndex   *int

	// Prompt identification (required for traceability)
	PromptKey  string
	PromptHash string

	// Request parameters (pointer to distinguish "not set" from "set to 0")
	Temperature *float64
}

// FromChatResult creates a Call from a ChatResult.
// Returns nil if result is nil.
func FromChatResult(result *providers.ChatResult, opts RecordOptions) *Call {
	if result == nil {
		return nil
	}

	call := &Call{
		ID:           uuid.New().String(),
		Timestamp:    time.Now(),
		LatencyMs:    int(result.ExecutionTime.Milliseconds()),
		RunID:        opts.RunID,
		DocumentHash: opts.DocumentHash,
		AnalysisType: opts.AnalysisType,
		ChunkIndex:   opts.ChunkIndex,
		PromptKey:    opts.PromptKey,
		PromptHash:   opts.PromptHash,
		Provider:     result.Provider,
		Model:        result.ModelUsed,
		Temperature:  opts.Temperature,
		Attempts:     result.Attempts,
		InputTokens:  result.PromptTokens,
		OutputTokens: result.CompletionTokens,
		CostUSD:      result.CostUSD,
		Response:     result.Content,
		Success:      result.Success,
	}

	if !result.Success {
		call.Error = result.ErrorMessage
		call.ErrorClass = result.ErrorClass
	}

	return call
}
