// Package command contains the operations that change engine state. The
// engine never writes score records, so commands act on the result cache
// only.
package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/unigrade/grade-analytics/internal/application/query"
	"github.com/unigrade/grade-analytics/internal/domain/grading"
	"github.com/unigrade/grade-analytics/internal/domain/shared"
	"github.com/unigrade/grade-analytics/internal/infrastructure/cache"
	"github.com/unigrade/grade-analytics/pkg/workerpool"
)

// ══════════════════════════════════════════════════════════════════════════════
// WARM CACHE COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// Warm-up limits applied when a command leaves them unset.
const (
	DefaultMaxWarmStudents = 100
	DefaultMaxWarmCohorts  = 20
)

// WarmCacheCommand precomputes results for students and cohorts.
type WarmCacheCommand struct {
	StudentIDs []string
	CohortIDs  []string
	Filter     grading.Filter

	// MaxStudents and MaxCohorts cap the work; extra IDs are dropped and
	// counted in the result.
	MaxStudents int
	MaxCohorts  int

	// Refresh recomputes targets that are already cached, restarting their
	// TTL. Without it only missing entries are filled.
	Refresh bool
}

// Failure names one target that could not be warmed.
type Failure struct {
	Target string `json:"target"`
	Error  string `json:"error"`
}

// WarmCacheResult reports a warm-up run.
type WarmCacheResult struct {
	RunID          uuid.UUID     `json:"run_id"`
	StudentsWarmed int           `json:"students_warmed"`
	CohortsWarmed  int           `json:"cohorts_warmed"`
	Truncated      int           `json:"truncated"`
	Failures       []Failure     `json:"failures"`
	Duration       time.Duration `json:"duration_ns"`
	CacheStats     cache.Stats   `json:"cache_stats"`
}

// WarmCacheHandler fills the cache ahead of demand.
type WarmCacheHandler struct {
	svc          *query.Services
	batch        *query.BatchGPAHandler
	ranking      *query.CohortRankingHandler
	cohortTrend  *query.CohortTrendHandler
	distribution *query.DistributionHandler
}

// NewWarmCacheHandler creates a WarmCacheHandler.
func NewWarmCacheHandler(svc *query.Services) *WarmCacheHandler {
	return &WarmCacheHandler{
		svc:          svc,
		batch:        query.NewBatchGPAHandler(svc),
		ranking:      query.NewCohortRankingHandler(svc),
		cohortTrend:  query.NewCohortTrendHandler(svc),
		distribution: query.NewDistributionHandler(svc),
	}
}

// Handle warms student GPAs with one batch fetch, then each cohort's
// ranking, trend and distribution on the worker pool. A failing target is
// reported and does not stop the others.
func (h *WarmCacheHandler) Handle(ctx context.Context, cmd WarmCacheCommand) (*WarmCacheResult, error) {
	if h.svc.Cache == nil {
		return nil, shared.NewDomainError("command", "WarmCache", shared.ErrInvalidInput, "cache is not configured")
	}

	start := time.Now()
	res := &WarmCacheResult{RunID: uuid.New(), Failures: []Failure{}}
	log := h.svc.Logger.With(slog.String("run_id", res.RunID.String()))

	students, dropped := limit(cmd.StudentIDs, cmd.MaxStudents, DefaultMaxWarmStudents)
	res.Truncated += dropped
	cohorts, dropped := limit(cmd.CohortIDs, cmd.MaxCohorts, DefaultMaxWarmCohorts)
	res.Truncated += dropped

	if len(students) > 0 {
		batch, err := h.batch.Handle(ctx, query.BatchGPAQuery{StudentIDs: students, Filter: cmd.Filter, Refresh: cmd.Refresh})
		if err != nil {
			log.Warn("student warm-up failed", slog.Any("error", err))
			res.Failures = append(res.Failures, Failure{Target: "students", Error: err.Error()})
		} else {
			res.StudentsWarmed = len(batch.Results)
		}
	}

	errs := workerpool.Each(ctx, h.svc.Pool, cohorts, func(ctx context.Context, id string) error {
		return h.warmCohort(ctx, id, cmd.Filter, cmd.Refresh)
	})
	for i, err := range errs {
		if err != nil {
			log.Warn("cohort warm-up failed", slog.String("cohort_id", cohorts[i]), slog.Any("error", err))
			res.Failures = append(res.Failures, Failure{Target: "cohort:" + cohorts[i], Error: err.Error()})
			continue
		}
		res.CohortsWarmed++
	}

	res.Duration = time.Since(start)
	res.CacheStats = h.svc.Cache.Stats()
	log.Info("cache warmed",
		slog.Int("students", res.StudentsWarmed),
		slog.Int("cohorts", res.CohortsWarmed),
		slog.Int("failures", len(res.Failures)),
		slog.Duration("duration", res.Duration),
	)
	return res, nil
}

func (h *WarmCacheHandler) warmCohort(ctx context.Context, cohortID string, f grading.Filter, refresh bool) error {
	if _, err := h.ranking.Handle(ctx, query.CohortRankingQuery{CohortID: cohortID, Filter: f, Refresh: refresh}); err != nil {
		return err
	}
	if _, err := h.cohortTrend.Handle(ctx, query.CohortTrendQuery{CohortID: cohortID, Filter: f, Refresh: refresh}); err != nil {
		return err
	}
	_, err := h.distribution.Handle(ctx, query.DistributionQuery{Scope: query.ScopeCohort, ID: cohortID, Filter: f, Refresh: refresh})
	return err
}

// limit caps ids at n (or def when n is not positive) and reports how many
// were dropped.
func limit(ids []string, n, def int) ([]string, int) {
	if n <= 0 {
		n = def
	}
	if len(ids) <= n {
		return ids, 0
	}
	return ids[:n], len(ids) - n
}
