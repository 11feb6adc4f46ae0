package feed

import (
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = 0 // fetches pass through
	StateOpen     State = 1 // fetches rejected immediately
	StateHalfOpen State = 2 // one trial fetch allowed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops hammering a failing candle source.
// After maxFailures consecutive failures the breaker opens and rejects all
// calls for resetTimeout. It then lets one trial through (half-open): success
// closes it, failure reopens it.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        State
	failures     int
	maxFailures  int
	resetTimeout time.Duration
	lastFailure  time.Time
	trialing     bool

	now func() time.Time

	// OnStateChange is called on every transition while the breaker lock is held.
	OnStateChange func(from, to State)
}

// NewCircuitBreaker creates a circuit breaker.
// maxFailures: consecutive failures before opening (e.g., 5)
// resetTimeout: time to wait before half-open trial (e.g., 10s)
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
		now:          time.Now,
	}
}

// Execute runs fn through the circuit breaker.
// Returns ErrCircuitOpen if the breaker is open and the timeout hasn't elapsed.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()

	trial := false
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailure) <= cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.trialing, trial = true, true
	case StateHalfOpen:
		if cb.trialing {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.trialing, trial = true, true
	}

	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if trial {
		cb.trialing = false
	}
	var u uncountedError
	if errors.As(err, &u) {
		return u.err
	}
	if err != nil {
		cb.failures++
		cb.lastFailure = cb.now()

		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.transition(StateOpen)
		}
		return err
	}

	if cb.state == StateHalfOpen {
		cb.transition(StateClosed)
	}
	cb.failures = 0
	return nil
}

// CurrentState returns the current circuit breaker state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	if to == StateClosed {
		cb.failures = 0
	}
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}

// Uncounted marks err as not caused by the protected dependency. Execute
// returns the original error without recording a failure or a success; a
// half-open breaker stays half-open and admits the next call as its trial.
func Uncounted(err error) error {
	if err == nil {
		return nil
	}
	return uncountedError{err: err}
}

type uncountedError struct{ err error }

func (e uncountedError) Error() string { return e.err.Error() }
func (e uncountedError) Unwrap() error { return e.err }

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("feed circuit breaker is open")
