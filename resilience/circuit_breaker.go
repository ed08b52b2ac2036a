// Package resilience provides the circuit breaker, retry, and tool-cache
// primitives every external call in the pipeline is wrapped with.
package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/forgemind/forgemind/core"
)

// CircuitOpenError is returned by CircuitBreaker.Execute while OPEN. It
// carries how long until a HALF_OPEN probe will be allowed, per spec.md §4.1.
type CircuitOpenError struct {
	Breaker        string
	TimeUntilRetry time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q open, retry after %s", e.Breaker, e.TimeUntilRetry)
}

func (e *CircuitOpenError) Unwrap() error {
	return core.ErrCircuitBreakerOpen
}

// CircuitBreakerConfig configures a CircuitBreaker. Threshold and timeout
// are the literal values from spec.md §4.1, not an error-rate window.
type CircuitBreakerConfig struct {
	FailureThreshold int           // consecutive failures before tripping to OPEN
	RecoveryTimeout  time.Duration // time in OPEN before a HALF_OPEN probe is allowed
	HalfOpenMaxCalls int           // concurrent probes let through while HALF_OPEN
}

// DefaultCircuitBreakerConfig matches spec.md's defaults: threshold 5, recovery 60s.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// CircuitBreaker is a three-state breaker (CLOSED/OPEN/HALF_OPEN) guarding
// one dependency. State transitions are atomic: Execute takes the lock only
// to check/update state, never while the wrapped call runs.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	logger core.Logger

	mu                  sync.Mutex
	state               core.CircuitState
	consecutiveFailures int
	lastFailureTime     time.Time
	halfOpenInFlight    int
}

// NewCircuitBreaker builds a breaker for the named dependency (used only in logs).
func NewCircuitBreaker(name string, config CircuitBreakerConfig, logger core.Logger) *CircuitBreaker {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &CircuitBreaker{
		name:   name,
		config: config,
		logger: logger,
		state:  core.CircuitClosed,
	}
}

// Status is a pure read of the breaker's current state, with no side effects.
func (cb *CircuitBreaker) Status() core.CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return core.CircuitBreakerState{
		State:               cb.state,
		ConsecutiveFailures: cb.consecutiveFailures,
		LastFailureTime:     cb.lastFailureTime,
	}
}

// allow decides, under lock, whether a call may proceed right now, and
// performs the OPEN -> HALF_OPEN transition if the recovery timeout elapsed.
func (cb *CircuitBreaker) allow() (bool, time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case core.CircuitClosed:
		return true, 0
	case core.CircuitOpen:
		elapsed := time.Since(cb.lastFailureTime)
		if elapsed >= cb.config.RecoveryTimeout {
			cb.state = core.CircuitHalfOpen
			cb.halfOpenInFlight = 0
			cb.logger.Info("circuit breaker half-open", map[string]interface{}{"breaker": cb.name})
		} else {
			return false, cb.config.RecoveryTimeout - elapsed
		}
		fallthrough
	case core.CircuitHalfOpen:
		if cb.halfOpenInFlight >= cb.config.HalfOpenMaxCalls {
			return false, cb.config.RecoveryTimeout
		}
		cb.halfOpenInFlight++
		return true, 0
	default:
		return false, cb.config.RecoveryTimeout
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case core.CircuitHalfOpen:
		cb.state = core.CircuitClosed
		cb.halfOpenInFlight = 0
		cb.logger.Info("circuit breaker closed after successful probe", map[string]interface{}{"breaker": cb.name})
	}
	cb.consecutiveFailures = 0
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = time.Now()

	if cb.state == core.CircuitHalfOpen {
		cb.state = core.CircuitOpen
		cb.halfOpenInFlight = 0
		cb.logger.Warn("circuit breaker re-opened after failed probe", map[string]interface{}{"breaker": cb.name})
		return
	}

	cb.consecutiveFailures++
	if cb.consecutiveFailures >= cb.config.FailureThreshold {
		cb.state = core.CircuitOpen
		cb.logger.Warn("circuit breaker tripped open", map[string]interface{}{
			"breaker":              cb.name,
			"consecutive_failures": cb.consecutiveFailures,
		})
	}
}

// Execute runs fn under the breaker. While OPEN it fails fast with
// ErrCircuitBreakerOpen without ever invoking fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	ok, retryAfter := cb.allow()
	if !ok {
		return &CircuitOpenError{Breaker: cb.name, TimeUntilRetry: retryAfter}
	}

	err := fn()
	if err != nil {
		cb.recordFailure()
		return err
	}
	cb.recordSuccess()
	return nil
}
