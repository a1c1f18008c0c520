package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// MockResponse is one scripted reply. A non-nil Err makes the call fail.
type MockResponse struct {
	Text string
	Err  error
}

// MockClient is an LLMClient for testing.
type MockClient struct {
	// Configurable behavior
	Latency      time.Duration
	ShouldFail   bool
	FailAfter    int // Fail after N requests (0 = never)
	ResponseText string

	// Responses are returned in order, one per request. When exhausted the
	// client falls back to ResponseText.
	Responses []MockResponse

	// Responder, when set, takes precedence over Responses and ResponseText.
	// n is the 1-based request number.
	Responder func(n int, req *ChatRequest) (string, error)

	// State
	requestCount atomic.Int64
	mu           sync.Mutex
	requests     []ChatRequest
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		ResponseText: "mock response",
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// Chat sends a mock chat request.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	count := c.requestCount.Add(1)

	c.mu.Lock()
	c.requests = append(c.requests, *req)
	c.mu.Unlock()

	result := &ChatResult{
		RequestID: fmt.Sprintf("mock-%d", count),
		Provider:  MockClientName,
		ModelUsed: req.Model,
		Attempts:  1,
	}

	if c.ShouldFail {
		err := &ProviderError{Provider: MockClientName, Class: ClassServerError, Message: "mock client configured to fail"}
		return failedResult(result, err, start), err
	}
	if c.FailAfter > 0 && int(count) > c.FailAfter {
		err := &ProviderError{Provider: MockClientName, Class: ClassRateLimited, StatusCode: 429,
			Message: fmt.Sprintf("mock client failed after %d requests", c.FailAfter)}
		return failedResult(result, err, start), err
	}

	// Simulate latency
	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return failedResult(result, ctx.Err(), start), ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return failedResult(result, err, start), err
	}

	text, err := c.reply(int(count), req)
	if err != nil {
		return failedResult(result, err, start), err
	}

	result.Success = true
	result.Content = text
	result.ExecutionTime = time.Since(start)

	promptTokens := 0
	for _, m := range req.Messages {
		promptTokens += len(m.Content) / 4 // Rough estimate
	}
	result.PromptTokens = promptTokens
	result.CompletionTokens = len(text) / 4
	result.TotalTokens = result.PromptTokens + result.CompletionTokens
	result.CostUSD = 0.001 // Mock cost

	return result, nil
}

func (c *MockClient) reply(n int, req *ChatRequest) (string, error) {
	if c.Responder != nil {
		return c.Responder(n, req)
	}
	if n <= len(c.Responses) {
		r := c.Responses[n-1]
		return r.Text, r.Err
	}
	return c.ResponseText, nil
}

// RequestCount returns the number of requests made.
func (c *MockClient) RequestCount() int64 {
	return c.requestCount.Load()
}

// Requests returns a copy of every request received, in order.
func (c *MockClient) Requests() []ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChatRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

// Reset resets the request counter and the request log.
func (c *MockClient) Reset() {
	c.requestCount.Store(0)
	c.mu.Lock()
	c.requests = nil
	c.mu.Unlock()
}

// Verify interface
var _ LLMClient = (*MockClient)(nil)
