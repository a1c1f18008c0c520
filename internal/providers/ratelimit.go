package providers

import (
	"context"
	"sync"
	"time"
)

// RateLimiter implements a token bucket refilled once per minute.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerMinute int
	tokens            float64
	lastUpdate        time.Time
	blockedUntil      time.Time

	totalWaited time.Duration
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		tokens:            float64(requestsPerMinute),
		lastUpdate:        time.Now(),
	}
}

// Wait blocks until a token is available or context is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()

		var waitTime time.Duration
		if now := time.Now(); now.Before(r.blockedUntil) {
			waitTime = r.blockedUntil.Sub(now)
		} else if r.tokens >= 1.0 {
			r.tokens--
			r.mu.Unlock()
			return nil
		} else {
			waitTime = r.untilToken()
		}
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
			r.mu.Lock()
			r.totalWaited += waitTime
			r.mu.Unlock()
		}
	}
}

// Penalize drains the bucket and holds new requests for retryAfter.
func (r *RateLimiter) Penalize(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = 0
	if retryAfter > 0 {
		r.blockedUntil = time.Now().Add(retryAfter)
	}
}

// TotalWaited reports how long callers have spent blocked in Wait.
func (r *RateLimiter) TotalWaited() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalWaited
}

func (r *RateLimiter) untilToken() time.Duration {
	refillRate := float64(r.requestsPerMinute) / 60.0
	return time.Duration((1.0 - r.tokens) / refillRate * float64(time.Second))
}

// refill adds tokens based on elapsed time. Must be called with lock held.
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastUpdate).Seconds()
	r.lastUpdate = now

	r.tokens += elapsed * float64(r.requestsPerMinute) / 60.0
	if r.tokens > float64(r.requestsPerMinute) {
		r.tokens = float64(r.requestsPerMinute)
	}
}

// RateLimitedClient gates an LLMClient behind a RateLimiter. Rate-limit
// responses that carry a Retry-After hold back every later request.
type RateLimitedClient struct {
	LLMClient
	limiter *RateLimiter
}

// WithRateLimit wraps client so it sends at most requestsPerMinute requests.
func WithRateLimit(client LLMClient, requestsPerMinute int) *RateLimitedClient {
	return &RateLimitedClient{LLMClient: client, limiter: NewRateLimiter(requestsPerMinute)}
}

// Chat waits for a token and forwards the request.
func (c *RateLimitedClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	result, err := c.LLMClient.Chat(ctx, req)
	if pe, ok := AsProviderError(err); ok && pe.Class == ClassRateLimited {
		c.limiter.Penalize(pe.RetryAfter)
	}
	return result, err
}

// Local forwards to the wrapped client.
func (c *RateLimitedClient) Local() bool {
	lr, ok := c.LLMClient.(localReporter)
	return ok && lr.Local()
}

// DefaultModel forwards to the wrapped client.
func (c *RateLimitedClient) DefaultModel() string {
	if d, ok := c.LLMClient.(interface{ DefaultModel() string }); ok {
		return d.DefaultModel()
	}
	return ""
}

// Limiter exposes the underlying bucket.
func (c *RateLimitedClient) Limiter() *RateLimiter {
	return c.limiter
}

var _ LLMClient = (*RateLimitedClient)(nil)
