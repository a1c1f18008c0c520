package providers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const (
	OllamaName         = "ollama"
	OllamaBaseURL      = "http://localhost:11434"
	ollamaDefaultModel = "llama3.1"
)

// OllamaConfig holds configuration for a local Ollama server.
type OllamaConfig struct {
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
	MaxRetries   int
	ContextSize  int // num_ctx passed to the server; 0 keeps the model default
}

// OllamaClient implements LLMClient against a self-hosted Ollama server.
// Local servers impose no external rate limit, so callers skip request pacing.
type OllamaClient struct {
	defaultModel string
	contextSize  int
	client       *resty.Client
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = OllamaBaseURL
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = ollamaDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(cfg.Timeout)
	client.SetRetryCount(cfg.MaxRetries)
	client.SetRetryWaitTime(500 * time.Millisecond)
	client.SetRetryMaxWaitTime(5 * time.Second)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return r != nil && r.StatusCode() >= http.StatusInternalServerError
	})
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("User-Agent", "slate")

	return &OllamaClient{
		defaultModel: cfg.DefaultModel,
		contextSize:  cfg.ContextSize,
		client:       client,
	}
}

// Name returns the client identifier.
func (c *OllamaClient) Name() string {
	return OllamaName
}

// DefaultModel returns the model used when a request names none.
func (c *OllamaClient) DefaultModel() string {
	return c.defaultModel
}

// Local reports that this client talks to a self-hosted server.
func (c *OllamaClient) Local() bool {
	return true
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error,omitempty"`
}

// Chat sends a non-streaming chat request to /api/chat.
func (c *OllamaClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	body := ollamaChatRequest{
		Model:    model,
		Messages: req.Messages,
		Stream:   false,
		Options:  map[string]any{},
	}
	if req.Temperature > 0 {
		body.Options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		body.Options["num_predict"] = req.MaxTokens
	}
	if c.contextSize > 0 {
		body.Options["num_ctx"] = c.contextSize
	}

	result := &ChatResult{
		RequestID: requestID,
		Provider:  OllamaName,
		ModelUsed: model,
		Attempts:  1,
	}

	var out ollamaChatResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post("/api/chat")
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return failedResult(result, err, start), err
		}
		pe := newTransportError(OllamaName, err)
		return failedResult(result, pe, start), pe
	}
	if resp.StatusCode() != http.StatusOK {
		msg := out.Error
		if msg == "" {
			msg = resp.String()
		}
		pe := newStatusError(OllamaName, resp.StatusCode(), msg, 0)
		return failedResult(result, pe, start), pe
	}

	result.Success = true
	result.Content = out.Message.Content
	if out.Model != "" {
		result.ModelUsed = out.Model
	}
	result.PromptTokens = out.PromptEvalCount
	result.CompletionTokens = out.EvalCount
	result.TotalTokens = out.PromptEvalCount + out.EvalCount
	result.ExecutionTime = time.Since(start)
	return result, nil
}

var _ LLMClient = (*OllamaClient)(nil)
