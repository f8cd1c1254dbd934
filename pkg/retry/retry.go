// Package retry runs an operation again with exponential backoff and jitter.
// The score repository uses it for transient database failures.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// retryableError marks an error that may succeed on another attempt.
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable marks err as transient. Only marked errors are retried; the
// mark is removed from the error a Retrier finally returns.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether err carries the Retryable mark.
func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// ══════════════════════════════════════════════════════════════════════════════
// RETRIER
// ══════════════════════════════════════════════════════════════════════════════

// Retrier holds a backoff policy. The delay before retry n is
// initialDelay * 2^(n-1), capped at maxDelay and spread by ±jitter of itself.
type Retrier struct {
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	jitter       float64
	onRetry      func(attempt int, err error, delay time.Duration)
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithMaxAttempts sets the number of attempts, the first included.
func WithMaxAttempts(n int) Option {
	return func(r *Retrier) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithInitialDelay sets the wait before the first retry.
func WithInitialDelay(d time.Duration) Option {
	return func(r *Retrier) {
		if d > 0 {
			r.initialDelay = d
		}
	}
}

// WithMaxDelay caps the wait between attempts.
func WithMaxDelay(d time.Duration) Option {
	return func(r *Retrier) {
		if d > 0 {
			r.maxDelay = d
		}
	}
}

// WithJitter sets the jitter fraction, 0 to 1.
func WithJitter(j float64) Option {
	return func(r *Retrier) {
		if j >= 0 && j <= 1 {
			r.jitter = j
		}
	}
}

// WithOnRetry registers a callback run before each wait.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(r *Retrier) {
		r.onRetry = fn
	}
}

// New creates a Retrier: three attempts, 100ms doubling to at most 30s,
// 10% jitter unless overridden.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		maxAttempts:  3,
		initialDelay: 100 * time.Millisecond,
		maxDelay:     30 * time.Second,
		jitter:       0.1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SourceRetrier returns the policy for score source queries: three
// attempts, 50ms initial delay, capped at one second.
func SourceRetrier() *Retrier {
	return New(
		WithMaxAttempts(3),
		WithInitialDelay(50*time.Millisecond),
		WithMaxDelay(time.Second),
		WithJitter(0.05),
	)
}

// DoWithData calls operation until it succeeds, fails without the Retryable
// mark, runs out of attempts or ctx is done. On failure it returns the last
// operation error, or ctx's error when operation never ran.
func DoWithData[T any](ctx context.Context, r *Retrier, operation func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, firstErr(lastErr, err)
		}

		v, err := operation(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = unmark(err)
		if !IsRetryable(err) || attempt >= r.maxAttempts {
			return zero, lastErr
		}

		delay := r.delay(attempt)
		if r.onRetry != nil {
			r.onRetry(attempt, lastErr, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
}

func (r *Retrier) delay(attempt int) time.Duration {
	d := r.initialDelay
	for i := 1; i < attempt && d < r.maxDelay; i++ {
		d *= 2
	}
	d = min(d, r.maxDelay)
	if r.jitter > 0 {
		d += time.Duration(float64(d) * r.jitter * (rand.Float64()*2 - 1))
	}
	return max(d, 0)
}

// unmark strips a top-level Retryable mark.
func unmark(err error) error {
	if re, ok := err.(*retryableError); ok {
		return re.err
	}
	return err
}

func firstErr(last, fallback error) error {
	if last != nil {
		return last
	}
	return fallback
}
