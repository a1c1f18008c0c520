// Package invoker sends chunks of a document to a reasoning provider one at
// a time.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/slate/internal/chunker"
	"github.com/jackzampolin/slate/internal/llmcall"
	"github.com/jackzampolin/slate/internal/prompts"
	"github.com/jackzampolin/slate/internal/providers"
)

// DefaultDelay paces requests to remote providers.
const DefaultDelay = 2 * time.Second

// Request is what gets sent for one chunk.
type Request struct {
	ChunkIndex   int
	AnalysisType string
	SystemPrompt string
	UserPrompt   string
}

// Usage is the accounting of one provider call.
type Usage struct {
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	CostUSD          float64       `json:"cost_usd,omitempty"`
	Latency          time.Duration `json:"latency"`
}

// ChunkError is a per-chunk failure. The loop records it and moves on.
type ChunkError struct {
	ChunkIndex int                  `json:"chunk_index"`
	Class      providers.ErrorClass `json:"class"`
	Message    string               `json:"message"`
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d: %s", e.ChunkIndex, e.Message)
}

// Response is the outcome of one chunk.
type Response struct {
	ChunkIndex int         `json:"chunk_index"`
	Text       string      `json:"text"`
	Usage      Usage       `json:"usage"`
	Err        *ChunkError `json:"error,omitempty"`
}

// OK reports whether the chunk produced output.
func (r Response) OK() bool { return r.Err == nil }

// Outcome is everything gathered for one analysis type.
type Outcome struct {
	Responses []Response
	Cancelled bool
}

// Succeeded returns the successful responses in chunk order.
func (o Outcome) Succeeded() []Response {
	var out []Response
	for _, r := range o.Responses {
		if r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// Failed counts the chunks that errored.
func (o Outcome) Failed() int {
	n := 0
	for _, r := range o.Responses {
		if !r.OK() {
			n++
		}
	}
	return n
}

// ChunkProgress is reported after every chunk.
type ChunkProgress struct {
	CompletedChunks int
	TotalChunks     int
	CurrentType     string
}

// Builder renders the prompts for one chunk. total is the chunk count.
type Builder func(chunk chunker.Chunk, total int) (prompts.Rendered, error)

// Options tune one Invoke call.
type Options struct {
	Temperature    float64
	MaxTokens      int
	ResponseFormat *providers.ResponseFormat

	// OnChunkStart is called before each request; index is 0-based.
	OnChunkStart func(index, total int)
	OnProgress   func(ChunkProgress)

	// Call recording context
	RunID        string
	DocumentHash string
}

// Invoker drives the sequential chunk loop.
type Invoker struct {
	Client providers.LLMClient
	Model  string

	// Delay is waited after each successful chunk except the last.
	// Zero disables pacing, as for local providers.
	Delay time.Duration

	Recorder *llmcall.Recorder
	Logger   *slog.Logger
}

// Invoke sends every chunk in ascending index order. Cancellation is checked
// before each request and during the pacing delay; on cancellation the
// responses gathered so far are returned with Cancelled set.
func (inv *Invoker) Invoke(ctx context.Context, analysisType string, chunks []chunker.Chunk, build Builder, opts Options) Outcome {
	logger := inv.Logger
	if logger == nil {
		logger = slog.Default()
	}

	out := Outcome{Responses: make([]Response, 0, len(chunks))}
	total := len(chunks)

	for i, chunk := range chunks {
		if ctx.Err() != nil {
			out.Cancelled = true
			return out
		}
		if opts.OnChunkStart != nil {
			opts.OnChunkStart(i, total)
		}

		resp := inv.invokeOne(ctx, analysisType, chunk, total, build, opts, logger)

		// A request torn down by cancellation is not a chunk failure.
		if resp.Err != nil && ctx.Err() != nil {
			out.Cancelled = true
			return out
		}
		out.Responses = append(out.Responses, resp)

		if opts.OnProgress != nil {
			opts.OnProgress(ChunkProgress{CompletedChunks: i + 1, TotalChunks: total, CurrentType: analysisType})
		}

		if resp.OK() && i < total-1 && inv.Delay > 0 {
			timer := time.NewTimer(inv.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				out.Cancelled = true
				return out
			case <-timer.C:
			}
		}
	}
	return out
}

func (inv *Invoker) invokeOne(ctx context.Context, analysisType string, chunk chunker.Chunk, total int, build Builder, opts Options, logger *slog.Logger) Response {
	resp := Response{ChunkIndex: chunk.Index}

	rendered, err := build(chunk, total)
	if err != nil {
		resp.Err = &ChunkError{ChunkIndex: chunk.Index, Class: providers.ClassBadRequest, Message: err.Error()}
		return resp
	}

	req := providers.NewChatRequest(rendered.System, rendered.User)
	req.Model = inv.Model
	req.Temperature = opts.Temperature
	req.MaxTokens = opts.MaxTokens
	req.ResponseFormat = opts.ResponseFormat
	req.RequestID = uuid.New().String()

	logger.Debug("sending chunk",
		"analysis_type", analysisType,
		"chunk", chunk.Index+1,
		"total", total,
		"approx_tokens", chunk.ApproxTokens,
		"request_id", req.RequestID)

	result, err := inv.Client.Chat(ctx, req)

	index := chunk.Index
	temp := opts.Temperature
	inv.Recorder.Record(ctx, result, err, llmcall.RecordOptions{
		RunID:        opts.RunID,
		DocumentHash: opts.DocumentHash,
		AnalysisType: analysisType,
		ChunkIndex:   &index,
		PromptKey:    rendered.Key,
		PromptHash:   rendered.Hash,
		Temperature:  &temp,
	})

	if result != nil {
		resp.Usage = Usage{
			PromptTokens:     result.PromptTokens,
			CompletionTokens: result.CompletionTokens,
			CostUSD:          result.CostUSD,
			Latency:          result.ExecutionTime,
		}
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("chunk request cancelled", "analysis_type", analysisType, "chunk", chunk.Index+1)
		} else {
			logger.Warn("chunk request failed",
				"analysis_type", analysisType,
				"chunk", chunk.Index+1,
				"class", providers.ClassOf(err),
				"error", err)
		}
		resp.Err = &ChunkError{ChunkIndex: chunk.Index, Class: providers.ClassOf(err), Message: err.Error()}
		return resp
	}

	resp.Text = result.Content
	return resp
}
