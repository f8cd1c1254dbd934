package jobs

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// ══════════════════════════════════════════════════════════════════════════════
// PURGE CACHE JOB
// ══════════════════════════════════════════════════════════════════════════════

// Purger drops expired entries. *cache.Cache implements it.
type Purger interface {
	Purge() int
}

// PurgeCacheJob drops expired entries from the in-process tier, which
// otherwise only expire when read.
type PurgeCacheJob struct {
	purger Purger
	logger *slog.Logger

	total atomic.Int64
}

// NewPurgeCacheJob creates a PurgeCacheJob.
func NewPurgeCacheJob(purger Purger, logger *slog.Logger) *PurgeCacheJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &PurgeCacheJob{purger: purger, logger: logger}
}

func (j *PurgeCacheJob) Name() string { return "purge_cache" }

func (j *PurgeCacheJob) Description() string {
	return "Drop expired entries from the in-process cache tier"
}

func (j *PurgeCacheJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := j.purger.Purge()
	j.total.Add(int64(n))
	if n > 0 {
		j.logger.Debug("expired cache entries purged", slog.Int("count", n))
	}
	return nil
}

// Purged returns the number of entries purged across all runs.
func (j *PurgeCacheJob) Purged() int64 {
	return j.total.Load()
}
