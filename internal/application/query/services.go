// Package query contains the read operations of the analytics engine. Every
// handler fetches score records once per request, computes on the domain
// packages and memoizes the result in the injected cache.
package query

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/unigrade/grade-analytics/internal/domain/distribution"
	"github.com/unigrade/grade-analytics/internal/domain/grading"
	"github.com/unigrade/grade-analytics/internal/domain/shared"
	"github.com/unigrade/grade-analytics/internal/domain/trend"
	"github.com/unigrade/grade-analytics/internal/infrastructure/cache"
	"github.com/unigrade/grade-analytics/pkg/workerpool"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVICES
// ══════════════════════════════════════════════════════════════════════════════

// TTLs for cached query results.
type TTLs struct {
	Student time.Duration
	Cohort  time.Duration
}

// DefaultTTLs returns the cache lifetimes of query results.
func DefaultTTLs() TTLs {
	return TTLs{Student: cache.TTLStudent, Cohort: cache.TTLCohort}
}

// Services bundles the engine components shared by the handlers. Build it
// once per process.
type Services struct {
	Scores       grading.ScoreRepository
	Calculator   *grading.Calculator
	Distribution *distribution.Analyzer
	Trend        *trend.Analyzer

	// Cache may be nil; results are then computed on every call.
	Cache *cache.Cache

	Pool   *workerpool.Pool
	Logger *slog.Logger
	TTL    TTLs
	Now    func() time.Time
}

// NewServices builds Services over one grading scale. Analyzer configs are
// validated here so a bad policy fails before any request is served.
func NewServices(
	scores grading.ScoreRepository,
	scale *grading.Scale,
	distCfg distribution.Config,
	trendCfg trend.Config,
	c *cache.Cache,
	pool *workerpool.Pool,
	logger *slog.Logger,
	calcOpts ...grading.CalculatorOption,
) (*Services, error) {
	if scores == nil {
		return nil, shared.ConfigError("query", "NewServices", "score repository is required")
	}
	if scale == nil {
		return nil, shared.ConfigError("query", "NewServices", "grading scale is required")
	}

	dist, err := distribution.NewAnalyzer(distCfg, scale)
	if err != nil {
		return nil, err
	}
	tr, err := trend.NewAnalyzer(trendCfg, scale)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		pool = workerpool.New(0)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Services{
		Scores:       scores,
		Calculator:   grading.NewCalculator(scale, calcOpts...),
		Distribution: dist,
		Trend:        tr,
		Cache:        c,
		Pool:         pool,
		Logger:       logger,
		TTL:          DefaultTTLs(),
		Now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// Scale returns the grading scale all components share.
func (s *Services) Scale() *grading.Scale {
	return s.Calculator.Scale()
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// filterParams merges filter fields into cache key parameters.
func filterParams(f grading.Filter, extra cache.Params) cache.Params {
	p := cache.Params(f.Params())
	for k, v := range extra {
		p[k] = v
	}
	return p
}

// cached runs compute through the cache and logs whether it hit. With
// refresh set the cached value is ignored and replaced.
func cached[T any](ctx context.Context, s *Services, op, key string, ttl time.Duration, refresh bool, compute func(ctx context.Context) (T, error)) (T, error) {
	if refresh {
		v, err := cache.Recompute(ctx, s.Cache, key, ttl, compute)
		if err != nil {
			var zero T
			return zero, err
		}
		s.Logger.Debug("query refreshed", slog.String("op", op))
		return v, nil
	}

	v, hit, err := cache.GetOrCompute(ctx, s.Cache, key, ttl, compute)
	if err != nil {
		var zero T
		return zero, err
	}
	s.Logger.Debug("query served", slog.String("op", op), slog.Bool("cache_hit", hit))
	return v, nil
}

// sourceError wraps a repository failure for the caller.
func sourceError(op string, err error) error {
	return shared.WrapError("query", op, shared.ErrSourceUnavailable, "fetch score records", err)
}

func requireID(op, name, id string) error {
	if id == "" {
		return shared.NewDomainError("query", op, shared.ErrInvalidInput, name+" is required")
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
