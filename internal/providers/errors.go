package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// ErrorClass is the HTTP-like status class of a provider failure.
type ErrorClass string

const (
	ClassRateLimited  ErrorClass = "rate_limited"
	ClassUnauthorized ErrorClass = "unauthorized"
	ClassServerError  ErrorClass = "server_error"
	ClassNetwork      ErrorClass = "network"
	ClassTimeout      ErrorClass = "timeout"
	ClassBadRequest   ErrorClass = "bad_request"
	ClassUnknown      ErrorClass = "unknown"
)

// ProviderError is returned by every LLMClient implementation.
type ProviderError struct {
	Provider   string
	Class      ErrorClass
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s (status %d): %s", e.Provider, e.Class, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Class, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether re-invoking the run later may succeed.
func (e *ProviderError) Retryable() bool {
	switch e.Class {
	case ClassRateLimited, ClassServerError, ClassNetwork, ClassTimeout:
		return true
	default:
		return false
	}
}

// AsProviderError unwraps err into a *ProviderError if it holds one.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// ClassOf returns the status class of err. Errors that did not come from a
// provider are classified by inspection.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ""
	}
	if pe, ok := AsProviderError(err); ok {
		return pe.Class
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassTimeout
		}
		return ClassNetwork
	}
	return ClassUnknown
}

// ClassifyStatus maps an HTTP status code to an error class.
func ClassifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ClassRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusPaymentRequired:
		return ClassUnauthorized
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout || status == 524:
		return ClassTimeout
	case status >= 500:
		return ClassServerError
	case status >= 400:
		return ClassBadRequest
	default:
		return ClassUnknown
	}
}

// newStatusError builds a ProviderError from an HTTP response status.
func newStatusError(provider string, status int, message string, retryAfter time.Duration) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Class:      ClassifyStatus(status),
		StatusCode: status,
		Message:    message,
		RetryAfter: retryAfter,
	}
}

// newTransportError wraps a failure that happened before any response arrived.
func newTransportError(provider string, err error) *ProviderError {
	class := ClassOf(err)
	if class == ClassUnknown {
		class = ClassNetwork
	}
	return &ProviderError{
		Provider: provider,
		Class:    class,
		Message:  err.Error(),
		Err:      err,
	}
}

// UserMessage returns the text shown to a person when a pass fails with class.
func UserMessage(class ErrorClass) string {
	switch class {
	case ClassRateLimited:
		return "The provider is rate limiting requests. Wait a minute and run the analysis again; completed passes are kept."
	case ClassUnauthorized:
		return "The provider rejected the API key. Check the key in your config or environment."
	case ClassServerError:
		return "The provider had a server error. Try again shortly."
	case ClassNetwork:
		return "Could not reach the provider. Check your network connection or the provider base URL."
	case ClassTimeout:
		return "The provider took too long to answer. Try again, or use a faster model."
	case ClassBadRequest:
		return "The provider refused the request. The document may be too large for the selected model."
	default:
		return "The analysis request failed."
	}
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
