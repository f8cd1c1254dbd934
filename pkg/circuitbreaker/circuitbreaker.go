// Package circuitbreaker stops calling a failing dependency for a while so
// callers can take their fallback path immediately. The grade analytics cache
// wraps its shared backend with one.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls until the cool-down has passed.
	StateOpen
	// StateHalfOpen lets a single trial call through.
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

// ErrOpen is returned without running the call while the breaker is open or
// its half-open trial is still in flight.
var ErrOpen = errors.New("circuit breaker is open")

// IsRejected reports whether err came from the breaker rather than the
// wrapped call.
func IsRejected(err error) bool {
	return errors.Is(err, ErrOpen)
}

// ══════════════════════════════════════════════════════════════════════════════
// OPTIONS
// ══════════════════════════════════════════════════════════════════════════════

type settings struct {
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	onStateChange    func(name string, from, to State)
	now              func() time.Time
}

// Option configures a Breaker.
type Option func(*settings)

// WithFailureThreshold sets how many consecutive failures open the breaker.
func WithFailureThreshold(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.failureThreshold = n
		}
	}
}

// WithSuccessThreshold sets how many consecutive trial successes close it.
func WithSuccessThreshold(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.successThreshold = n
		}
	}
}

// WithCooldown sets how long the breaker stays open before a trial call.
func WithCooldown(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

// WithOnStateChange registers a transition callback. It runs with the
// breaker lock held.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(s *settings) {
		s.onStateChange = fn
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BREAKER
// ══════════════════════════════════════════════════════════════════════════════

// Breaker is a closed/open/half-open circuit breaker. It is safe for
// concurrent use.
type Breaker struct {
	name string
	settings

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
	trial     bool
	rejected  int64
}

// New creates a closed Breaker. Defaults: five failures open it, two trial
// successes close it, thirty seconds of cool-down.
func New(name string, opts ...Option) *Breaker {
	s := settings{
		failureThreshold: 5,
		successThreshold: 2,
		cooldown:         30 * time.Second,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &Breaker{name: name, settings: s}
}

// Execute runs fn when the breaker allows it and records the outcome.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err == nil)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		b.transition(StateHalfOpen)
	}

	switch {
	case b.state == StateClosed:
		return nil
	case b.state == StateHalfOpen && !b.trial:
		b.trial = true
		return nil
	default:
		b.rejected++
		return ErrOpen
	}
}

func (b *Breaker) record(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trial = false
	if ok {
		b.failures = 0
		b.successes++
		if b.state == StateHalfOpen && b.successes >= b.successThreshold {
			b.transition(StateClosed)
		}
		return
	}

	b.successes = 0
	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.failureThreshold {
		b.transition(StateOpen)
	}
}

// transition must be called with mu held.
func (b *Breaker) transition(next State) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	b.failures, b.successes, b.trial = 0, 0, false
	if next == StateOpen {
		b.openedAt = b.now()
	}
	if b.onStateChange != nil {
		b.onStateChange(b.name, prev, next)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Rejected returns how many calls were refused since creation.
func (b *Breaker) Rejected() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rejected
}

// CacheBackendBreaker returns a breaker tuned for a shared cache backend:
// it opens after three failures and tries again after fifteen seconds.
func CacheBackendBreaker(onStateChange func(name string, from, to State)) *Breaker {
	return New("cache-backend",
		WithFailureThreshold(3),
		WithSuccessThreshold(1),
		WithCooldown(15*time.Second),
		WithOnStateChange(onStateChange),
	)
}
