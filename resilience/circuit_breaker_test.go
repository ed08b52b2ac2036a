package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/forgemind/forgemind/core"
)

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  50 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	}, nil)

	failing := errors.New("boom")
	for i := 0; i < 3; i++ {
		err := cb.Execute(func() error { return failing })
		if !errors.Is(err, failing) {
			t.Fatalf("attempt %d: expected underlying error, got %v", i, err)
		}
	}

	if got := cb.Status().State; got != core.CircuitOpen {
		t.Fatalf("expected OPEN after %d consecutive failures, got %s", 3, got)
	}

	err := cb.Execute(func() error {
		t.Fatal("fn must not run while breaker is open")
		return nil
	})
	var openErr *CircuitOpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected CircuitOpenError, got %v", err)
	}
}

func TestCircuitBreakerHalfOpenProbeSuccessCloses(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	}, nil)

	_ = cb.Execute(func() error { return errors.New("fail") })
	if cb.Status().State != core.CircuitOpen {
		t.Fatalf("expected OPEN after first failure with threshold 1")
	}

	time.Sleep(15 * time.Millisecond)

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected probe to pass through, got %v", err)
	}

	if got := cb.Status().State; got != core.CircuitClosed {
		t.Fatalf("expected CLOSED after successful probe, got %s", got)
	}
}

func TestCircuitBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	}, nil)

	_ = cb.Execute(func() error { return errors.New("fail") })
	time.Sleep(15 * time.Millisecond)

	_ = cb.Execute(func() error { return errors.New("probe fail") })

	if got := cb.Status().State; got != core.CircuitOpen {
		t.Fatalf("expected OPEN after failed probe, got %s", got)
	}
}

func TestCircuitBreakerStatusIsPureRead(t *testing.T) {
	cb := NewCircuitBreaker("test", DefaultCircuitBreakerConfig(), nil)

	before := cb.Status()
	_ = cb.Status()
	after := cb.Status()

	if before.State != after.State || before.ConsecutiveFailures != after.ConsecutiveFailures {
		t.Fatalf("Status() must not mutate breaker state")
	}
}
