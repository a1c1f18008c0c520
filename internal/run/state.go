package run

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/jackzampolin/slate/internal/ingest"
)

// Phase is the coordinator's state.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhasePlanning    Phase = "planning"
	PhaseChunking    Phase = "chunking"
	PhaseInvoking    Phase = "invoking"
	PhaseReconciling Phase = "reconciling"
	PhasePersisting  Phase = "persisting"
	PhaseCompleted   Phase = "completed"
	PhaseCancelled   Phase = "cancelled"
)

// Status is the outcome of one analysis type.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// TypeResult is the persisted outcome of one analysis type.
type TypeResult struct {
	Type      string          `json:"type"`
	Name      string          `json:"name"`
	Status    Status          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Error     string          `json:"error,omitempty"`

	Chunks         int      `json:"chunks"`
	ChunkErrors    int      `json:"chunk_errors,omitempty"`
	RepairsApplied []string `json:"repairs_applied,omitempty"`

	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
	CostUSD          float64 `json:"cost_usd,omitempty"`
}

// Text returns the result of a text pass.
func (r TypeResult) Text() string {
	var s string
	if json.Unmarshal(r.Result, &s) == nil {
		return s
	}
	return ""
}

// State is the checkpoint of a run in progress.
type State struct {
	DocumentID    ingest.DocumentID     `json:"document_id"`
	Fingerprint   string                `json:"fingerprint"`
	SelectedTypes []string              `json:"selected_types"`
	Completed     map[string]TypeResult `json:"completed"`
	Cancelled     bool                  `json:"cancelled"`
	RunID         string                `json:"run_id"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// Remaining returns the selected types without an entry in Completed, in
// selection order.
func (s *State) Remaining() []string {
	var out []string
	for _, t := range s.SelectedTypes {
		if _, done := s.Completed[t]; !done {
			out = append(out, t)
		}
	}
	return out
}

// Summary aggregates a finished analysis.
type Summary struct {
	TotalTypes      int `json:"total_types"`
	Succeeded       int `json:"succeeded"`
	Failed          int `json:"failed"`
	TotalScenes     int `json:"total_scenes"`
	TotalCharacters int `json:"total_characters"`
}

// DocumentAnalysis is the union of every type result of a run.
type DocumentAnalysis struct {
	DocumentID  ingest.DocumentID `json:"document_id"`
	Fingerprint string            `json:"fingerprint"`
	RunID       string            `json:"run_id"`
	Results     []TypeResult      `json:"results"`
	Summary     Summary           `json:"summary"`
	Cancelled   bool              `json:"cancelled"`
	FromCache   bool              `json:"from_cache"`
	CompletedAt time.Time         `json:"completed_at"`
}

// Result returns the entry for an analysis type.
func (a *DocumentAnalysis) Result(analysisType string) (TypeResult, bool) {
	for _, r := range a.Results {
		if r.Type == analysisType {
			return r, true
		}
	}
	return TypeResult{}, false
}

// Fingerprint identifies a document plus a set of analysis types. Order and
// duplicates in types do not matter.
func Fingerprint(contentHash string, types []string) string {
	set := make(map[string]bool, len(types))
	var sorted []string
	for _, t := range types {
		if !set[t] {
			set[t] = true
			sorted = append(sorted, t)
		}
	}
	sort.Strings(sorted)
	h := sha256.Sum256([]byte(contentHash + "|" + strings.Join(sorted, ",")))
	return hex.EncodeToString(h[:])[:16]
}
