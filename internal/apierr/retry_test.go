package apierr_test

// Notes:
// - Exact backoff timing is not tested (implementation detail), only observable behavior.

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alnah/go-chunkscribe/internal/apierr"
)

func TestRetryWithBackoff(t *testing.T) {
	t.Parallel()

	t.Run("success on first try returns immediately", func(t *testing.T) {
		t.Parallel()

		callCount := 0
		result, err := apierr.RetryWithBackoff(
			context.Background(),
			apierr.RetryConfig{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: time.Minute},
			func() (string, error) {
				callCount++
				return "immediate", nil
			},
			func(error) bool { return true },
		)

		if err != nil {
			t.Errorf("RetryWithBackoff() unexpected error: %v", err)
		}
		if result != "immediate" {
			t.Errorf("got %q, want %q", result, "immediate")
		}
		if callCount != 1 {
			t.Errorf("call count = %d, want 1", callCount)
		}
	})

	t.Run("shouldRetry false stops immediately", func(t *testing.T) {
		t.Parallel()

		callCount := 0
		_, err := apierr.RetryWithBackoff(
			context.Background(),
			apierr.RetryConfig{MaxRetries: 5, BaseDelay: time.Millisecond},
			func() (string, error) {
				callCount++
				return "", apierr.ErrTimeout
			},
			apierr.IsRateLimit,
		)

		if !errors.Is(err, apierr.ErrTimeout) {
			t.Errorf("error = %v, want ErrTimeout", err)
		}
		if callCount != 1 {
			t.Errorf("call count = %d, want 1 (no retry)", callCount)
		}
	})

	t.Run("max retries exceeded wraps last error", func(t *testing.T) {
		t.Parallel()

		callCount := 0
		_, err := apierr.RetryWithBackoff(
			context.Background(),
			apierr.RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
			func() (string, error) {
				callCount++
				return "", apierr.ErrRateLimit
			},
			apierr.IsRateLimit,
		)

		if callCount != 3 {
			t.Errorf("call count = %d, want 3 (1 initial + 2 retries)", callCount)
		}
		if !errors.Is(err, apierr.ErrRateLimit) {
			t.Errorf("error should wrap original: got %v", err)
		}
	})

	t.Run("cancelled context during wait returns context error", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		callCount := 0
		_, err := apierr.RetryWithBackoff(
			ctx,
			apierr.RetryConfig{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: time.Minute},
			func() (string, error) {
				callCount++
				return "", errors.New("should retry")
			},
			func(error) bool { return true },
		)

		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
		if callCount != 1 {
			t.Errorf("call count = %d, want 1", callCount)
		}
	})

	t.Run("negative MaxRetries means single attempt", func(t *testing.T) {
		t.Parallel()

		callCount := 0
		_, _ = apierr.RetryWithBackoff(
			context.Background(),
			apierr.RetryConfig{MaxRetries: -3},
			func() (int, error) {
				callCount++
				return 0, errors.New("fail")
			},
			func(error) bool { return true },
		)

		if callCount != 1 {
			t.Errorf("call count = %d, want 1", callCount)
		}
	})
}

func TestRetryOnce(t *testing.T) {
	t.Parallel()

	t.Run("second rate limit is fatal", func(t *testing.T) {
		t.Parallel()

		var retries []int
		cfg := apierr.RetryOnce(time.Millisecond)
		cfg.OnRetry = func(attempt int, err error) {
			if !errors.Is(err, apierr.ErrRateLimit) {
				t.Errorf("OnRetry err = %v, want ErrRateLimit", err)
			}
			retries = append(retries, attempt)
		}

		callCount := 0
		_, err := apierr.RetryWithBackoff(context.Background(), cfg,
			func() (string, error) {
				callCount++
				return "", apierr.ErrRateLimit
			},
			apierr.IsRateLimit,
		)

		if callCount != 2 {
			t.Errorf("call count = %d, want 2", callCount)
		}
		if len(retries) != 1 || retries[0] != 1 {
			t.Errorf("retries = %v, want [1]", retries)
		}
		if !errors.Is(err, apierr.ErrRateLimit) {
			t.Errorf("error = %v, want ErrRateLimit", err)
		}
	})

	t.Run("recovers after one rate limit", func(t *testing.T) {
		t.Parallel()

		callCount := 0
		got, err := apierr.RetryWithBackoff(context.Background(), apierr.RetryOnce(time.Millisecond),
			func() (string, error) {
				callCount++
				if callCount == 1 {
					return "", apierr.ErrRateLimit
				}
				return "ok", nil
			},
			apierr.IsRateLimit,
		)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "ok" {
			t.Errorf("got %q, want %q", got, "ok")
		}
	})
}
