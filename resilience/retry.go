package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/forgemind/forgemind/core"
)

// RetryableClassifier reports whether err should be retried. Errors it
// rejects propagate immediately, matching spec.md §4.1's "only retries
// exceptions in the retryable set" rule.
type RetryableClassifier func(error) bool

// RetryPolicy is an explicit policy object (no decorator stacking) wrapping
// cenkalti/backoff/v4's exponential backoff with a retryable-error filter.
type RetryPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Retryable     RetryableClassifier
}

// LLMRetryPolicy retries on rate-limit, timeout, connection per spec.md §4.1.
func LLMRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		Retryable:     core.RetryableLLM,
	}
}

// DatabaseRetryPolicy retries on connection-lost, too-many-connections per spec.md §4.1.
func DatabaseRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
		Retryable:     core.RetryableDatabase,
	}
}

// ToolRetryPolicy retries on timeout, network error, connection error per spec.md §4.1.
func ToolRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  150 * time.Millisecond,
		MaxDelay:      3 * time.Second,
		BackoffFactor: 2.0,
		Retryable:     core.RetryableTool,
	}
}

func (p RetryPolicy) backoffClock() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.BackoffFactor
	b.MaxElapsedTime = 0 // bounded by MaxAttempts instead, via WithMaxRetries
	return backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
}

// Retry runs fn, retrying per p until it succeeds, a non-retryable error is
// returned, the context is canceled, or the attempt budget is exhausted.
func Retry(ctx context.Context, p RetryPolicy, fn func() error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	var lastErr error
	nonRetryable := false
	operation := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if p.Retryable != nil && !p.Retryable(err) {
			nonRetryable = true
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(p.backoffClock(), ctx))
	if err == nil {
		return nil
	}
	if nonRetryable {
		return lastErr
	}
	if ctx.Err() != nil {
		return core.NewFrameworkError("resilience.Retry", "timeout", ctx.Err())
	}
	return core.NewFrameworkError("resilience.Retry", "max_retries_exceeded",
		fmt.Errorf("%d attempts exhausted, last error: %w: %v", p.MaxAttempts, core.ErrMaxRetriesExceeded, lastErr))
}

// RetryWithCircuitBreaker combines a RetryPolicy with a CircuitBreaker: each
// attempt is gated by the breaker, and a breaker-open result is treated as
// non-retryable so it surfaces immediately.
func RetryWithCircuitBreaker(ctx context.Context, p RetryPolicy, cb *CircuitBreaker, fn func() error) error {
	wrapped := func() error {
		return cb.Execute(fn)
	}

	policy := p
	baseRetryable := p.Retryable
	policy.Retryable = func(err error) bool {
		var openErr *CircuitOpenError
		if errors.As(err, &openErr) {
			return false
		}
		if baseRetryable == nil {
			return false
		}
		return baseRetryable(err)
	}

	return Retry(ctx, policy, wrapped)
}
