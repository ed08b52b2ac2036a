package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/forgemind/forgemind/core"
)

func TestRetryBasicSuccess(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  5 * time.Millisecond,
		MaxDelay:      50 * time.Millisecond,
		BackoffFactor: 2.0,
		Retryable:     func(error) bool { return true },
	}

	attempts := 0
	err := Retry(context.Background(), policy, func() error {
		attempts++
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetryEventualSuccess(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:   5,
		InitialDelay:  2 * time.Millisecond,
		MaxDelay:      20 * time.Millisecond,
		BackoffFactor: 2.0,
		Retryable:     core.RetryableLLM,
	}

	attempts := 0
	err := Retry(context.Background(), policy, func() error {
		attempts++
		if attempts < 3 {
			return core.ErrRateLimited
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryNonRetryableFailsImmediately(t *testing.T) {
	policy := LLMRetryPolicy()

	attempts := 0
	nonRetryable := errors.New("invalid prompt")
	err := Retry(context.Background(), policy, func() error {
		attempts++
		return nonRetryable
	})

	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-retryable error, got %d", attempts)
	}
	if !errors.Is(err, nonRetryable) {
		t.Fatalf("expected underlying non-retryable error preserved, got %v", err)
	}
}

func TestRetryExhaustsMaxAttempts(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  1 * time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
		Retryable:     core.RetryableLLM,
	}

	attempts := 0
	err := Retry(context.Background(), policy, func() error {
		attempts++
		return core.ErrConnectionLost
	})

	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if !errors.Is(err, core.ErrMaxRetriesExceeded) {
		t.Fatalf("expected ErrMaxRetriesExceeded, got %v", err)
	}
}

func TestRetryWithCircuitBreakerSkipsRetryWhenOpen(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Hour,
		HalfOpenMaxCalls: 1,
	}, nil)
	_ = cb.Execute(func() error { return core.ErrConnectionLost })

	attempts := 0
	err := RetryWithCircuitBreaker(context.Background(), DatabaseRetryPolicy(), cb, func() error {
		attempts++
		return nil
	})

	if attempts != 0 {
		t.Fatalf("expected fn never invoked while breaker open, got %d calls", attempts)
	}
	var openErr *CircuitOpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected CircuitOpenError, got %v", err)
	}
}
