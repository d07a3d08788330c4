package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, CategoryPermanent},
		{"rate limit", &APIError{StatusCode: http.StatusTooManyRequests}, CategoryTransient},
		{"request timeout", &APIError{StatusCode: http.StatusRequestTimeout}, CategoryTransient},
		{"server error", &APIError{StatusCode: http.StatusBadGateway}, CategoryTransient},
		{"unauthorized", &APIError{StatusCode: http.StatusUnauthorized}, CategoryPermanent},
		{"wrapped server error", fmt.Errorf("call: %w", &APIError{StatusCode: 503}), CategoryTransient},
		{"net timeout", timeoutErr{}, CategoryTransient},
		{"cancelled", context.Canceled, CategoryPermanent},
		{"unknown", errors.New("boom"), CategoryPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.err))
		})
	}
}

func TestCategoryString(t *testing.T) {
	assert.Equal(t, "transient", CategoryTransient.String())
	assert.Equal(t, "permanent", CategoryPermanent.String())
	assert.Equal(t, "unknown", Category(9).String())
}

func TestAPIError_Message(t *testing.T) {
	assert.Equal(t, "openai rate limited: slow", (&APIError{Provider: "openai", StatusCode: 429, Message: "slow"}).Error())
	assert.Equal(t, "ollama api status 500: down", (&APIError{Provider: "ollama", StatusCode: 500, Message: "down"}).Error())
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, BackoffFactor: 2}
}

func TestWithRetry(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		got, attempts, err := WithRetry(context.Background(), fastRetry(3), func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", &APIError{StatusCode: 503}
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
		assert.Equal(t, 3, attempts)
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		calls := 0
		_, attempts, err := WithRetry(context.Background(), fastRetry(5), func(context.Context) (int, error) {
			calls++
			return 0, &APIError{StatusCode: 400}
		})
		var retryErr *RetryError
		require.ErrorAs(t, err, &retryErr)
		assert.Equal(t, CategoryPermanent, retryErr.Category)
		assert.Equal(t, 1, attempts)
		assert.Equal(t, 1, calls)
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		_, attempts, err := WithRetry(context.Background(), fastRetry(2), func(context.Context) (int, error) {
			return 0, &APIError{StatusCode: 429}
		})
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 2, attempts)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, attempts, err := WithRetry(ctx, fastRetry(3), func(context.Context) (int, error) {
			return 1, nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, attempts)
	})

	t.Run("custom retryable func", func(t *testing.T) {
		cfg := fastRetry(3)
		cfg.RetryableFunc = func(error) bool { return true }
		calls := 0
		_, _, err := WithRetry(context.Background(), cfg, func(context.Context) (int, error) {
			calls++
			return 0, errors.New("flaky")
		})
		assert.Error(t, err)
		assert.Equal(t, 3, calls)
	})
}

func TestRetryingClient(t *testing.T) {
	calls := 0
	inner := ClientFunc(func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
		calls++
		if calls == 1 {
			return nil, &APIError{Provider: "openai", StatusCode: 500, Message: "oops"}
		}
		return &CompletionResponse{Content: "fine"}, nil
	})

	resp, err := NewRetryingClient(inner, fastRetry(3)).Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "fine", resp.Content)
	assert.Equal(t, 2, calls)
}

func TestCalculateBackoff(t *testing.T) {
	assert.Equal(t, time.Second, calculateBackoff(time.Second, 0))
	for range 20 {
		d := calculateBackoff(time.Second, 0.1)
		assert.GreaterOrEqual(t, d, 900*time.Millisecond)
		assert.LessOrEqual(t, d, 1100*time.Millisecond)
	}
}
