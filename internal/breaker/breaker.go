// Package breaker implements a per-endpoint circuit breaker for broker API
// calls, preventing repeated hammering of an endpoint that is already
// failing.
package breaker

import (
	"sync"
	"time"
)

// State of the breaker.
type State string

const (
	// StateClosed allows calls; failures are counted.
	StateClosed State = "CLOSED"
	// StateOpen blocks calls until the cooldown elapses.
	StateOpen State = "OPEN"
	// StateHalfOpen permits trial calls; the next recorded outcome decides
	// whether the breaker closes again or re-opens.
	StateHalfOpen State = "HALF_OPEN"
)

// Breaker guards a single call category (e.g. "fetch margins"). Each guarded
// endpoint gets its own Breaker so that one degraded endpoint does not block
// unrelated calls.
type Breaker struct {
	mu               sync.Mutex
	failureThreshold int
	cooldown         time.Duration
	failureCount     int
	lastFailure      time.Time
	state            State

	now func() time.Time // stubbed in tests
}

// New creates a closed Breaker that opens after failureThreshold consecutive
// failures and allows a trial call once cooldown has elapsed since the last
// failure.
func New(failureThreshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		state:            StateClosed,
		now:              time.Now,
	}
}

// CanExecute reports whether a call should be attempted now. In HALF_OPEN it
// keeps returning true; the caller is responsible for recording the outcome
// of each attempt, which immediately resolves the state.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.shouldAttemptReset() {
			b.state = StateHalfOpen
			return true
		}
		return false
	case StateHalfOpen:
		return true
	}
	return false
}

// RecordSuccess resets the breaker to CLOSED.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	b.state = StateClosed
}

// RecordFailure counts a failure and opens the breaker once the threshold is
// reached. A failure during HALF_OPEN re-opens immediately and restarts the
// cooldown timer.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailure = b.now()

	if b.state == StateHalfOpen || b.failureCount >= b.failureThreshold {
		b.state = StateOpen
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) shouldAttemptReset() bool {
	if b.lastFailure.IsZero() {
		return true
	}
	return b.now().Sub(b.lastFailure) >= b.cooldown
}
