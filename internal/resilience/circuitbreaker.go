// Package resilience keeps a trigger listening when its speech recognizer
// misbehaves.
//
// [Breaker] is a three-state circuit breaker (closed, open, half-open).
// [RecognizerChain] puts a breaker in front of each configured recognizer and
// fails over from the primary to the fallbacks in order.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls until the cool-down elapses.
	StateOpen

	// StateHalfOpen lets a bounded number of probe calls through.
	StateHalfOpen
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

// Defaults applied by [NewBreaker].
const (
	DefaultMaxFailures    = 5
	DefaultCoolDown       = 30 * time.Second
	DefaultHalfOpenProbes = 3
)

// BreakerOption configures a [Breaker].
type BreakerOption func(*Breaker)

// WithMaxFailures sets how many consecutive failures open the breaker.
func WithMaxFailures(n int) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.maxFailures = n
		}
	}
}

// WithCoolDown sets how long the breaker stays open before probing.
func WithCoolDown(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		if d > 0 {
			b.coolDown = d
		}
	}
}

// WithHalfOpenProbes sets how many successful probes close the breaker again.
func WithHalfOpenProbes(n int) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.probes = n
		}
	}
}

// WithClock replaces time.Now. Tests use it to skip the cool-down.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// WithBreakerLogger sets the logger used for state transitions.
func WithBreakerLogger(l *slog.Logger) BreakerOption {
	return func(b *Breaker) { b.log = l }
}

// Breaker implements the circuit breaker pattern.
type Breaker struct {
	name        string
	maxFailures int
	coolDown    time.Duration
	probes      int
	now         func() time.Time
	log         *slog.Logger

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	inFlight  int
	succeeded int
}

// NewBreaker returns a closed breaker labelled name.
func NewBreaker(name string, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:        name,
		maxFailures: DefaultMaxFailures,
		coolDown:    DefaultCoolDown,
		probes:      DefaultHalfOpenProbes,
		now:         time.Now,
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Name returns the breaker's label.
func (b *Breaker) Name() string { return b.name }

// Do runs fn unless the breaker is open. A nil or non-nil return from fn is
// counted as success or failure; ignore, if non-nil, reports errors that must
// not count against the protected dependency (such as caller cancellation).
func (b *Breaker) Do(fn func() error, ignore func(error) bool) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.inFlight--
	}
	switch {
	case err == nil:
		b.success(probe)
	case ignore != nil && ignore(err):
	default:
		b.failure(probe)
	}
	return err
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.coolDown {
			return false, ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.inFlight, b.succeeded = 0, 0
		b.log.Info("circuit half-open", "name", b.name)
	}
	if b.state != StateHalfOpen {
		return false, nil
	}
	if b.inFlight+b.succeeded >= b.probes {
		return false, ErrCircuitOpen
	}
	b.inFlight++
	return true, nil
}

// Must be called with b.mu held.
func (b *Breaker) failure(probe bool) {
	if b.state == StateOpen {
		return
	}
	if probe || b.state == StateHalfOpen {
		b.trip("probe failed")
		return
	}
	b.failures++
	if b.failures >= b.maxFailures {
		b.trip("too many failures")
	}
}

// Must be called with b.mu held.
func (b *Breaker) trip(reason string) {
	b.state = StateOpen
	b.openedAt = b.now()
	b.log.Warn("circuit opened", "name", b.name, "reason", reason, "consecutive_failures", b.failures)
}

// Must be called with b.mu held.
func (b *Breaker) success(probe bool) {
	if !probe {
		if b.state == StateClosed {
			b.failures = 0
		}
		return
	}
	if b.state != StateHalfOpen {
		return
	}
	b.succeeded++
	if b.succeeded >= b.probes {
		b.state = StateClosed
		b.failures = 0
		b.log.Info("circuit closed", "name", b.name)
	}
}

// State reports the breaker's state. An open breaker whose cool-down has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// call to Do.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.coolDown {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures, b.inFlight, b.succeeded = 0, 0, 0
}
