package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unigrade/grade-analytics/internal/domain/shared"
	"github.com/unigrade/grade-analytics/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// BACKEND
// ══════════════════════════════════════════════════════════════════════════════

// Backend is the optional shared tier. Implementations must be safe for
// concurrent use and atomic per key.
type Backend interface {
	// Get returns the value and its remaining TTL, or shared.ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// DeleteByPattern removes keys matching a glob pattern.
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFAULT TTLs
// ══════════════════════════════════════════════════════════════════════════════

const (
	// TTLStudent covers per-student GPA and trend results.
	TTLStudent = 30 * time.Minute

	// TTLCohort covers rankings, distributions and cohort trends.
	TTLCohort = 30 * time.Minute

	// TTLDefault applies when Set is called with a non-positive TTL.
	TTLDefault = 60 * time.Minute
)

// ══════════════════════════════════════════════════════════════════════════════
// OPTIONS
// ══════════════════════════════════════════════════════════════════════════════

type options struct {
	backend    Backend
	logger     *slog.Logger
	defaultTTL time.Duration
	maxEntries int
	now        func() time.Time
}

// Option configures a Cache.
type Option func(*options)

// WithBackend enables the shared tier.
func WithBackend(b Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithLogger sets the logger for degraded-path events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDefaultTTL sets the TTL used when Set gets a non-positive one.
func WithDefaultTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.defaultTTL = d
		}
	}
}

// WithMaxEntries bounds the local tier.
func WithMaxEntries(n int) Option {
	return func(o *options) {
		o.maxEntries = n
	}
}

// WithClock replaces the local tier's time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE
// ══════════════════════════════════════════════════════════════════════════════

// Stats are cumulative cache counters.
type Stats struct {
	LocalHits     int64 `json:"local_hits"`
	BackendHits   int64 `json:"backend_hits"`
	Misses        int64 `json:"misses"`
	Sets          int64 `json:"sets"`
	BackendErrors int64 `json:"backend_errors"`
	Invalidated   int64 `json:"invalidated"`
	LocalEntries  int   `json:"local_entries"`

	// BackendState is the backend breaker position; empty without a backend.
	BackendState string `json:"backend_state,omitempty"`
}

// HitRate returns hits / lookups in percent.
func (s Stats) HitRate() float64 {
	hits := s.LocalHits + s.BackendHits
	total := hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// Cache is the two-tier cache. Create one per process and pass it to the
// handlers that need it; Close it on shutdown.
type Cache struct {
	local      *Memory
	backend    Backend
	breaker    *circuitbreaker.Breaker
	logger     *slog.Logger
	defaultTTL time.Duration
	flight     singleflight.Group

	localHits     atomic.Int64
	backendHits   atomic.Int64
	misses        atomic.Int64
	sets          atomic.Int64
	backendErrors atomic.Int64
	invalidated   atomic.Int64
}

// New creates a cache. Without WithBackend it is in-process only.
func New(opts ...Option) *Cache {
	o := options{
		logger:     slog.Default(),
		defaultTTL: TTLDefault,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Cache{
		local:      NewMemory(o.maxEntries, o.now),
		backend:    o.backend,
		logger:     o.logger.With(slog.String("component", "cache")),
		defaultTTL: o.defaultTTL,
	}
	if c.backend != nil {
		c.breaker = circuitbreaker.CacheBackendBreaker(c.logStateChange)
	}
	return c
}

func (c *Cache) logStateChange(name string, from, to circuitbreaker.State) {
	c.logger.Warn("cache backend breaker changed state",
		slog.String("breaker", name),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
}

// Get decodes the value stored under key into dest. It returns
// shared.ErrCacheMiss when neither tier has a usable value. A backend hit
// repopulates the local tier.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	if data, _, ok := c.local.Get(key); ok {
		if err := json.Unmarshal(data, dest); err == nil {
			c.localHits.Add(1)
			return nil
		}
		c.local.Delete(key)
	}

	if data, ttl, ok := c.backendGet(ctx, key); ok {
		if err := json.Unmarshal(data, dest); err == nil {
			c.local.Set(key, data, c.ttl(ttl))
			c.backendHits.Add(1)
			return nil
		}
		c.logger.Warn("discarding undecodable backend value", slog.String("key", key))
	}

	c.misses.Add(1)
	return shared.ErrCacheMiss
}

// Set encodes value as JSON and writes it to both tiers. Only an encoding
// failure is returned; backend failures are logged and counted.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return shared.WrapError("cache", "Set", shared.ErrInvalidInput, "encode value", err)
	}

	ttl = c.ttl(ttl)
	c.local.Set(key, data, ttl)
	c.sets.Add(1)

	if c.backend != nil {
		err := c.breaker.Execute(ctx, func(ctx context.Context) error {
			return c.backend.Set(ctx, key, data, ttl)
		})
		c.backendFailed("set", key, err)
	}
	return nil
}

// Invalidate removes every key matching a glob pattern from both tiers and
// returns the number of local entries removed.
func (c *Cache) Invalidate(ctx context.Context, pattern string) int {
	removed := c.local.DeletePattern(pattern)
	c.invalidated.Add(int64(removed))

	if c.backend != nil {
		err := c.breaker.Execute(ctx, func(ctx context.Context) error {
			n, err := c.backend.DeleteByPattern(ctx, pattern)
			if err == nil {
				c.logger.Debug("backend keys invalidated", slog.String("pattern", pattern), slog.Int64("count", n))
			}
			return err
		})
		c.backendFailed("invalidate", pattern, err)
	}
	return removed
}

// Purge drops expired local entries.
func (c *Cache) Purge() int {
	return c.local.Purge()
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	s := Stats{
		LocalHits:     c.localHits.Load(),
		BackendHits:   c.backendHits.Load(),
		Misses:        c.misses.Load(),
		Sets:          c.sets.Load(),
		BackendErrors: c.backendErrors.Load(),
		Invalidated:   c.invalidated.Load(),
		LocalEntries:  c.local.Len(),
	}
	if c.breaker != nil {
		s.BackendState = c.breaker.State().String()
	}
	return s
}

// HasBackend reports whether a shared tier is configured.
func (c *Cache) HasBackend() bool {
	return c.backend != nil
}

// Close clears the local tier and closes the backend when it supports it.
func (c *Cache) Close() error {
	c.local.Clear()
	if closer, ok := c.backend.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *Cache) ttl(d time.Duration) time.Duration {
	if d <= 0 {
		return c.defaultTTL
	}
	return d
}

func (c *Cache) backendGet(ctx context.Context, key string) ([]byte, time.Duration, bool) {
	if c.backend == nil {
		return nil, 0, false
	}

	var data []byte
	var ttl time.Duration
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		data, ttl, err = c.backend.Get(ctx, key)
		if errors.Is(err, shared.ErrCacheMiss) {
			return nil
		}
		return err
	})
	if c.backendFailed("get", key, err) {
		return nil, 0, false
	}
	return data, ttl, data != nil
}

// backendFailed logs and counts a backend error and reports whether one
// occurred.
func (c *Cache) backendFailed(op, key string, err error) bool {
	if err == nil {
		return false
	}
	c.backendErrors.Add(1)
	if circuitbreaker.IsRejected(err) {
		c.logger.Debug("cache backend skipped", slog.String("op", op), slog.String("key", key), slog.String("reason", err.Error()))
		return true
	}
	c.logger.Warn("cache backend unavailable, using local tier",
		slog.String("op", op),
		slog.String("key", key),
		slog.Any("error", shared.WrapError("cache", op, shared.ErrBackendUnavailable, "backend call failed", err)),
	)
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// MEMOIZATION
// ══════════════════════════════════════════════════════════════════════════════

// GetOrCompute returns the cached value under key or computes, stores and
// returns it. Concurrent misses on one key share a single computation. A nil
// cache always computes. Compute errors are returned and nothing is stored.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func(ctx context.Context) (T, error)) (T, bool, error) {
	if c == nil {
		v, err := compute(ctx)
		return v, false, err
	}

	var cached T
	if err := c.Get(ctx, key, &cached); err == nil {
		return cached, true, nil
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		// A caller that missed just before an earlier flight stored the
		// value finds it here.
		if data, _, ok := c.local.Get(key); ok {
			var stored T
			if json.Unmarshal(data, &stored) == nil {
				return stored, nil
			}
		}
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Set(ctx, key, v, ttl); err != nil {
			c.logger.Warn("result not cached", slog.String("key", key), slog.Any("error", err))
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	res, _ := v.(T)
	return res, false, nil
}

// Recompute runs compute and stores its result under key whatever is cached,
// restarting the entry's TTL. A nil cache only computes. Compute errors are
// returned and the cached value is left in place.
func Recompute[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func(ctx context.Context) (T, error)) (T, error) {
	v, err := compute(ctx)
	if err != nil || c == nil {
		return v, err
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		c.logger.Warn("result not cached", slog.String("key", key), slog.Any("error", err))
	}
	return v, nil
}
