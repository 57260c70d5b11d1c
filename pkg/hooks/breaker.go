package hooks

import (
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker tracks failures of one (handler, event) pair. After
// Threshold failures inside the sliding Window it opens and short-circuits
// calls for Cooldown. The first call after cooldown runs as a half-open
// probe: success closes the breaker, failure reopens it.
type CircuitBreaker struct {
	mu sync.Mutex

	threshold int
	window    time.Duration
	cooldown  time.Duration
	now       func() time.Time

	state    breakerState
	failures []time.Time
	openedAt time.Time
}

type BreakerOption func(*CircuitBreaker)

func WithThreshold(n int) BreakerOption {
	return func(cb *CircuitBreaker) { cb.threshold = n }
}

func WithWindow(d time.Duration) BreakerOption {
	return func(cb *CircuitBreaker) { cb.window = d }
}

func WithCooldown(d time.Duration) BreakerOption {
	return func(cb *CircuitBreaker) { cb.cooldown = d }
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) BreakerOption {
	return func(cb *CircuitBreaker) { cb.now = now }
}

func NewCircuitBreaker(opts ...BreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		threshold: 3,
		window:    60 * time.Second,
		cooldown:  5 * time.Minute,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Allow reports whether a call may proceed. Transitions open -> half-open
// once the cooldown has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case breakerClosed, breakerHalfOpen:
		return true
	case breakerOpen:
		if cb.now().Sub(cb.openedAt) >= cb.cooldown {
			cb.state = breakerHalfOpen
			return true
		}
		return false
	}
	return true
}

// RecordSuccess closes the breaker and clears the failure window.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = breakerClosed
	cb.failures = cb.failures[:0]
}

// RecordFailure adds a failure to the sliding window and opens the breaker
// when the threshold is reached. A failing half-open probe reopens
// immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()

	if cb.state == breakerHalfOpen {
		cb.state = breakerOpen
		cb.openedAt = now
		cb.failures = cb.failures[:0]
		return
	}

	cutoff := now.Add(-cb.window)
	kept := cb.failures[:0]
	for _, t := range cb.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	cb.failures = append(kept, now)

	if len(cb.failures) >= cb.threshold {
		cb.state = breakerOpen
		cb.openedAt = now
		cb.failures = cb.failures[:0]
	}
}

// State returns the current state name, for telemetry.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String()
}
