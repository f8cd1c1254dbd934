// Package jobs contains the scheduled cache maintenance jobs.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unigrade/grade-analytics/internal/application/command"
)

// ══════════════════════════════════════════════════════════════════════════════
// WARM CACHE JOB
// ══════════════════════════════════════════════════════════════════════════════

// Warmer precomputes cached results. command.WarmCacheHandler implements it.
type Warmer interface {
	Handle(ctx context.Context, cmd command.WarmCacheCommand) (*command.WarmCacheResult, error)
}

// WarmCacheConfig lists the targets refreshed on every run.
type WarmCacheConfig struct {
	StudentIDs  []string
	CohortIDs   []string
	MaxStudents int
	MaxCohorts  int

	// Timeout bounds one run; zero means no bound beyond the scheduler's.
	Timeout time.Duration
}

// WarmCacheJob keeps hot students and cohorts cached ahead of their TTL.
type WarmCacheJob struct {
	warmer Warmer
	config WarmCacheConfig
	logger *slog.Logger

	last atomic.Pointer[command.WarmCacheResult]
}

// NewWarmCacheJob creates a WarmCacheJob.
func NewWarmCacheJob(warmer Warmer, config WarmCacheConfig, logger *slog.Logger) *WarmCacheJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &WarmCacheJob{warmer: warmer, config: config, logger: logger}
}

func (j *WarmCacheJob) Name() string { return "warm_cache" }

func (j *WarmCacheJob) Description() string {
	return fmt.Sprintf("Recompute cached results for %d students and %d cohorts",
		len(j.config.StudentIDs), len(j.config.CohortIDs))
}

// Run warms every configured target. It fails when any target failed; the
// others are still cached.
func (j *WarmCacheJob) Run(ctx context.Context) error {
	if len(j.config.StudentIDs) == 0 && len(j.config.CohortIDs) == 0 {
		j.logger.Debug("no warm-up targets configured")
		return nil
	}
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	res, err := j.warmer.Handle(ctx, command.WarmCacheCommand{
		StudentIDs:  j.config.StudentIDs,
		CohortIDs:   j.config.CohortIDs,
		MaxStudents: j.config.MaxStudents,
		MaxCohorts:  j.config.MaxCohorts,
		Refresh:     true,
	})
	if err != nil {
		return fmt.Errorf("warm cache: %w", err)
	}
	j.last.Store(res)

	if len(res.Failures) > 0 {
		return fmt.Errorf("warm cache: %d of %d targets failed", len(res.Failures), res.StudentsWarmed+res.CohortsWarmed+len(res.Failures))
	}
	return nil
}

// LastResult returns the most recent completed run, or nil.
func (j *WarmCacheJob) LastResult() *command.WarmCacheResult {
	return j.last.Load()
}
