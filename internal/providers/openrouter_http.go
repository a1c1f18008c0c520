package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
)

// doRequest posts body to path, retrying transient failures. It returns the
// number of attempts made alongside the decoded response.
func (c *OpenRouterClient) doRequest(ctx context.Context, path string, body *openRouterRequest) (*openRouterResponse, int, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	attempts := 0
	resp, err := retry.DoWithData(
		func() (*openRouterResponse, error) {
			attempts++
			return c.post(ctx, path, bodyBytes)
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(10*time.Second),
		retry.DelayType(retryAfterDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			pe, ok := AsProviderError(err)
			return ok && pe.Retryable()
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, attempts, ctxErr
		}
		return nil, attempts, err
	}
	return resp, attempts, nil
}

// post performs one HTTP attempt.
func (c *OpenRouterClient) post(ctx context.Context, path string, body []byte) (*openRouterResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", "https://github.com/jackzampolin/slate")
	req.Header.Set("X-Title", "Slate")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, newTransportError(OpenRouterName, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newTransportError(OpenRouterName, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(OpenRouterName, resp.StatusCode, errorMessage(respBody),
			parseRetryAfter(resp.Header.Get("Retry-After")))
	}

	var orResp openRouterResponse
	if err := json.Unmarshal(respBody, &orResp); err != nil {
		return nil, &ProviderError{Provider: OpenRouterName, Class: ClassServerError,
			StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to unmarshal response: %v", err), Err: err}
	}

	// OpenRouter reports upstream model failures inside a 200 body.
	if orResp.Error != nil {
		return nil, responseError(orResp.Error)
	}
	return &orResp, nil
}

// responseError classifies an error object embedded in a 200 response.
func responseError(e *openRouterError) *ProviderError {
	code := fmt.Sprintf("%v", e.Code)
	pe := &ProviderError{Provider: OpenRouterName, Message: e.Message}
	switch code {
	case "429", "rate_limit_exceeded":
		pe.Class = ClassRateLimited
	case "401", "403", "402":
		pe.Class = ClassUnauthorized
	case "overloaded", "500", "502", "503":
		pe.Class = ClassServerError
	case "408", "524":
		pe.Class = ClassTimeout
	default:
		pe.Class = ClassBadRequest
	}
	return pe
}

// errorMessage extracts a readable message from an error body.
func errorMessage(body []byte) string {
	var wrapped struct {
		Error *openRouterError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error != nil && wrapped.Error.Message != "" {
		return wrapped.Error.Message
	}
	msg := string(bytes.TrimSpace(body))
	if len(msg) > 500 {
		msg = msg[:500] + "..."
	}
	return msg
}

// retryAfterDelay honors a server-provided Retry-After, falling back to
// exponential backoff with jitter.
func retryAfterDelay(n uint, err error, config *retry.Config) time.Duration {
	if pe, ok := AsProviderError(err); ok && pe.RetryAfter > 0 {
		return pe.RetryAfter
	}
	return retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)(n, err, config)
}
