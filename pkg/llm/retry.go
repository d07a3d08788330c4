package llm

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig configures retry behavior for provider calls.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	MaxAttempts int

	// InitialBackoff is the starting backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff duration.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each attempt.
	BackoffFactor float64

	// Jitter is the random jitter factor (0.0-1.0).
	Jitter float64

	// RetryableFunc optionally overrides IsRetryable.
	RetryableFunc func(error) bool
}

// DefaultRetry is the standard retry configuration.
var DefaultRetry = RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// NoRetry disables retries.
var NoRetry = RetryConfig{MaxAttempts: 1}

// WithRetry calls fn until it succeeds, returns a non-retryable error,
// runs out of attempts, or ctx is done. It returns the value and the
// number of attempts made. Failures are wrapped in *RetryError.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) (T, int, error) {
	var zero T
	maxAttempts := max(cfg.MaxAttempts, 1)
	backoff := cfg.InitialBackoff

	isRetryable := cfg.RetryableFunc
	if isRetryable == nil {
		isRetryable = IsRetryable
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, attempt - 1, &RetryError{Err: err, Category: CategoryPermanent, Attempts: attempt - 1}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, attempt, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return zero, attempt, &RetryError{Err: err, Category: Categorize(err), Attempts: attempt}
		}

		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(calculateBackoff(backoff, cfg.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempt, &RetryError{Err: ctx.Err(), Category: CategoryPermanent, Attempts: attempt}
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffFactor)
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	return zero, maxAttempts, &RetryError{Err: lastErr, Category: Categorize(lastErr), Attempts: maxAttempts}
}

// calculateBackoff returns the backoff duration with jitter applied.
func calculateBackoff(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || base <= 0 {
		return base
	}
	jitterAmount := float64(base) * jitter * (rand.Float64()*2 - 1)
	return time.Duration(float64(base) + jitterAmount)
}

// retryingClient retries transient provider failures.
type retryingClient struct {
	inner Client
	cfg   RetryConfig
}

// NewRetryingClient wraps a client so transient failures are retried
// with exponential backoff and jitter.
func NewRetryingClient(inner Client, cfg RetryConfig) Client {
	return &retryingClient{inner: inner, cfg: cfg}
}

func (c *retryingClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	resp, _, err := WithRetry(ctx, c.cfg, func(ctx context.Context) (*CompletionResponse, error) {
		return c.inner.Complete(ctx, req)
	})
	return resp, err
}
