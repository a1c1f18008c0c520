package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/jackzampolin/slate/internal/llmcall"
	"github.com/jackzampolin/slate/internal/prompts"
	"github.com/jackzampolin/slate/internal/providers"
)

// ErrNoParts is returned when there is nothing to synthesize.
var ErrNoParts = errors.New("no chunk output to synthesize")

// SynthesisPrompter renders the combine request for a free-text pass.
type SynthesisPrompter interface {
	SynthesisPrompt(analysisType, language, combined string) (prompts.Rendered, error)
}

// Synthesizer combines free-text chunk outputs with one provider call.
type Synthesizer struct {
	Client      providers.LLMClient
	Model       string
	Prompts     SynthesisPrompter
	Temperature float64
	MaxTokens   int

	// Call recording (optional)
	Recorder     *llmcall.Recorder
	RunID        string
	DocumentHash string

	Logger *slog.Logger
}

// JoinParts concatenates chunk texts with "--- PART i/N ---" separators.
func JoinParts(parts []string) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- PART %d/%d ---\n", i+1, len(parts))
		b.WriteString(strings.TrimSpace(p))
	}
	return b.String()
}

// Synthesize returns a single narrative for parts. A single part is returned
// as-is without a provider call.
func (s *Synthesizer) Synthesize(ctx context.Context, analysisType string, parts []string, language string) (string, error) {
	switch len(parts) {
	case 0:
		return "", ErrNoParts
	case 1:
		return parts[0], nil
	}

	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rendered, err := s.Prompts.SynthesisPrompt(analysisType, language, JoinParts(parts))
	if err != nil {
		return "", fmt.Errorf("failed to render synthesis prompt: %w", err)
	}

	req := providers.NewChatRequest(rendered.System, rendered.User)
	req.Model = s.Model
	req.Temperature = s.Temperature
	req.MaxTokens = s.MaxTokens
	req.RequestID = uuid.New().String()

	logger.Debug("synthesizing chunk outputs",
		"analysis_type", analysisType,
		"parts", len(parts),
		"request_id", req.RequestID)

	result, err := s.Client.Chat(ctx, req)
	temp := s.Temperature
	s.Recorder.Record(ctx, result, err, llmcall.RecordOptions{
		RunID:        s.RunID,
		DocumentHash: s.DocumentHash,
		AnalysisType: analysisType,
		PromptKey:    rendered.Key,
		PromptHash:   rendered.Hash,
		Temperature:  &temp,
	})
	if err != nil {
		return "", fmt.Errorf("synthesis request failed: %w", err)
	}

	text := strings.TrimSpace(result.Content)
	if text == "" {
		return "", fmt.Errorf("synthesis returned empty output")
	}
	return text, nil
}
