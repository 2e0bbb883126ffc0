package infra

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Execute while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker open")

// BreakerState represents the circuit breaker state.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // Normal operation
	BreakerOpen                         // Failing, reject requests
	BreakerHalfOpen                     // Testing recovery
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "CLOSED"
	case BreakerOpen:
		return "OPEN"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds configuration for creating a circuit breaker.
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int           // Consecutive failures before opening
	SuccessThreshold int           // Successes in half-open before closing
	Timeout          time.Duration // Time in open before probing

	// OnStateChange, if set, is called with the breaker lock released.
	OnStateChange func(name string, from, to BreakerState)
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// DefaultCircuitBreakerConfig returns the settings used for the upstream feed.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreaker stops hammering an upstream that keeps failing.
// Safe for concurrent use.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	mu  sync.Mutex

	state        BreakerState
	failureCount int
	successCount int
	openedAt     time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg, state: BreakerClosed}
}

// Allow reports whether a call may proceed. An open breaker moves to
// half-open once the timeout has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	allowed, from, to := cb.allowLocked()
	cb.mu.Unlock()

	cb.notify(from, to)
	return allowed
}

func (cb *CircuitBreaker) allowLocked() (bool, BreakerState, BreakerState) {
	switch cb.state {
	case BreakerClosed, BreakerHalfOpen:
		return true, cb.state, cb.state
	case BreakerOpen:
		if cb.cfg.Now().Sub(cb.openedAt) >= cb.cfg.Timeout {
			cb.successCount = 0
			return true, cb.transition(BreakerHalfOpen), BreakerHalfOpen
		}
		return false, cb.state, cb.state
	}
	return false, cb.state, cb.state
}

// RemainingOpen returns how long the breaker stays open, or 0.
func (cb *CircuitBreaker) RemainingOpen() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != BreakerOpen {
		return 0
	}
	left := cb.cfg.Timeout - cb.cfg.Now().Sub(cb.openedAt)
	if left < 0 {
		return 0
	}
	return left
}

// RecordSuccess records a successful operation.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	from, to := cb.state, cb.state

	switch cb.state {
	case BreakerClosed:
		cb.failureCount = 0
	case BreakerHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.cfg.SuccessThreshold {
			cb.failureCount = 0
			cb.successCount = 0
			from, to = cb.transition(BreakerClosed), BreakerClosed
		}
	}
	cb.mu.Unlock()

	cb.notify(from, to)
}

// RecordFailure records a failed operation.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	from, to := cb.state, cb.state

	switch cb.state {
	case BreakerClosed:
		cb.failureCount++
		if cb.failureCount >= cb.cfg.FailureThreshold {
			from, to = cb.transition(BreakerOpen), BreakerOpen
		}
	case BreakerHalfOpen:
		// Any failure while probing reopens.
		cb.successCount = 0
		from, to = cb.transition(BreakerOpen), BreakerOpen
	}
	cb.mu.Unlock()

	cb.notify(from, to)
}

// Execute runs fn if the breaker allows it and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// State returns the current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.transition(BreakerClosed)
	cb.failureCount = 0
	cb.successCount = 0
	cb.mu.Unlock()

	cb.notify(from, BreakerClosed)
}

// transition must be called with mu held. It returns the previous state.
func (cb *CircuitBreaker) transition(to BreakerState) BreakerState {
	from := cb.state
	cb.state = to
	if to == BreakerOpen {
		cb.openedAt = cb.cfg.Now()
	}
	return from
}

func (cb *CircuitBreaker) notify(from, to BreakerState) {
	if from == to {
		return
	}
	level := slog.LevelInfo
	if to == BreakerOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "Circuit breaker state changed",
		slog.String("name", cb.cfg.Name),
		slog.String("from", from.String()),
		slog.String("to", to.String()))

	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}
