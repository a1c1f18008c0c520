package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestMockClient(t *testing.T) {
	t.Run("returns response text", func(t *testing.T) {
		mock := NewMockClient()
		mock.ResponseText = "hello"

		result, err := mock.Chat(context.Background(), NewChatRequest("sys", "user"))
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if !result.Success || result.Content != "hello" {
			t.Errorf("result = %+v", result)
		}
		if mock.RequestCount() != 1 {
			t.Errorf("RequestCount() = %d, want 1", mock.RequestCount())
		}
	})

	t.Run("scripted responses in order", func(t *testing.T) {
		mock := NewMockClient()
		mock.Responses = []MockResponse{
			{Text: "first"},
			{Err: &ProviderError{Provider: "mock", Class: ClassTimeout, Message: "slow"}},
		}

		r1, err := mock.Chat(context.Background(), NewChatRequest("", "a"))
		if err != nil || r1.Content != "first" {
			t.Fatalf("first call = %v, %v", r1, err)
		}
		r2, err := mock.Chat(context.Background(), NewChatRequest("", "b"))
		if ClassOf(err) != ClassTimeout {
			t.Fatalf("second call error class = %q, want timeout", ClassOf(err))
		}
		if r2.Success {
			t.Error("expected failed result")
		}
		r3, err := mock.Chat(context.Background(), NewChatRequest("", "c"))
		if err != nil || r3.Content != "mock response" {
			t.Fatalf("third call = %v, %v", r3, err)
		}

		reqs := mock.Requests()
		if len(reqs) != 3 || reqs[1].Messages[0].Content != "b" {
			t.Errorf("Requests() = %+v", reqs)
		}
	})

	t.Run("fail after", func(t *testing.T) {
		mock := NewMockClient()
		mock.FailAfter = 1

		if _, err := mock.Chat(context.Background(), NewChatRequest("", "a")); err != nil {
			t.Fatalf("first call error = %v", err)
		}
		_, err := mock.Chat(context.Background(), NewChatRequest("", "b"))
		if ClassOf(err) != ClassRateLimited {
			t.Errorf("ClassOf() = %q, want rate_limited", ClassOf(err))
		}
	})

	t.Run("respects cancellation during latency", func(t *testing.T) {
		mock := NewMockClient()
		mock.Latency = time.Second

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		if _, err := mock.Chat(ctx, NewChatRequest("", "a")); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("error = %v, want deadline exceeded", err)
		}
	})

	t.Run("reset", func(t *testing.T) {
		mock := NewMockClient()
		mock.Chat(context.Background(), NewChatRequest("", "a"))
		mock.Reset()
		if mock.RequestCount() != 0 || len(mock.Requests()) != 0 {
			t.Error("expected cleared state after Reset")
		}
	})
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{http.StatusTooManyRequests, ClassRateLimited},
		{http.StatusUnauthorized, ClassUnauthorized},
		{http.StatusForbidden, ClassUnauthorized},
		{http.StatusInternalServerError, ClassServerError},
		{http.StatusBadGateway, ClassServerError},
		{http.StatusGatewayTimeout, ClassTimeout},
		{http.StatusBadRequest, ClassBadRequest},
		{http.StatusOK, ClassUnknown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			if got := ClassifyStatus(tt.status); got != tt.want {
				t.Errorf("ClassifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}

func TestClassOf(t *testing.T) {
	t.Run("wrapped provider error", func(t *testing.T) {
		err := fmt.Errorf("chunk 2: %w", &ProviderError{Class: ClassUnauthorized})
		if got := ClassOf(err); got != ClassUnauthorized {
			t.Errorf("ClassOf() = %q, want unauthorized", got)
		}
	})

	t.Run("deadline exceeded", func(t *testing.T) {
		if got := ClassOf(context.DeadlineExceeded); got != ClassTimeout {
			t.Errorf("ClassOf() = %q, want timeout", got)
		}
	})

	t.Run("plain error", func(t *testing.T) {
		if got := ClassOf(errors.New("boom")); got != ClassUnknown {
			t.Errorf("ClassOf() = %q, want unknown", got)
		}
	})

	t.Run("nil", func(t *testing.T) {
		if got := ClassOf(nil); got != "" {
			t.Errorf("ClassOf(nil) = %q, want empty", got)
		}
	})
}

func TestProviderError_Retryable(t *testing.T) {
	retryable := []ErrorClass{ClassRateLimited, ClassServerError, ClassNetwork, ClassTimeout}
	for _, c := range retryable {
		if !(&ProviderError{Class: c}).Retryable() {
			t.Errorf("%s should be retryable", c)
		}
	}
	for _, c := range []ErrorClass{ClassUnauthorized, ClassBadRequest, ClassUnknown} {
		if (&ProviderError{Class: c}).Retryable() {
			t.Errorf("%s should not be retryable", c)
		}
	}
}

func TestUserMessage(t *testing.T) {
	seen := make(map[string]ErrorClass)
	for _, c := range []ErrorClass{ClassRateLimited, ClassUnauthorized, ClassServerError, ClassNetwork, ClassTimeout} {
		msg := UserMessage(c)
		if msg == "" {
			t.Errorf("UserMessage(%s) is empty", c)
		}
		if prev, dup := seen[msg]; dup {
			t.Errorf("UserMessage(%s) duplicates %s", c, prev)
		}
		seen[msg] = c
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("3"); got != 3*time.Second {
		t.Errorf("parseRetryAfter(3) = %v, want 3s", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("parseRetryAfter(empty) = %v, want 0", got)
	}
	if got := parseRetryAfter("soon"); got != 0 {
		t.Errorf("parseRetryAfter(soon) = %v, want 0", got)
	}
}
