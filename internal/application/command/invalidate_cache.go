package command

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/unigrade/grade-analytics/internal/application/query"
	"github.com/unigrade/grade-analytics/internal/domain/shared"
	"github.com/unigrade/grade-analytics/internal/infrastructure/cache"
)

// ══════════════════════════════════════════════════════════════════════════════
// INVALIDATE CACHE COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// Prefixes lists every result family that can be invalidated.
var Prefixes = []string{
	cache.PrefixStudentGPA,
	cache.PrefixStudentTrend,
	cache.PrefixCohortRanking,
	cache.PrefixCohortTrend,
	cache.PrefixDistribution,
	cache.PrefixCourseTrend,
	cache.PrefixPrediction,
	cache.PrefixComparison,
}

// InvalidateCacheCommand drops cached results. Keys are hashed, so
// invalidation works per result family rather than per student.
type InvalidateCacheCommand struct {
	// Prefixes selects families; empty means every family.
	Prefixes []string
}

// InvalidateCacheResult reports what was removed.
type InvalidateCacheResult struct {
	Patterns     []string `json:"patterns"`
	LocalRemoved int      `json:"local_removed"`
}

// InvalidateCacheHandler removes cached results.
type InvalidateCacheHandler struct {
	svc *query.Services
}

// NewInvalidateCacheHandler creates an InvalidateCacheHandler.
func NewInvalidateCacheHandler(svc *query.Services) *InvalidateCacheHandler {
	return &InvalidateCacheHandler{svc: svc}
}

// Handle invalidates the selected families on both cache tiers. Without a
// cache it does nothing.
func (h *InvalidateCacheHandler) Handle(ctx context.Context, cmd InvalidateCacheCommand) (*InvalidateCacheResult, error) {
	prefixes := cmd.Prefixes
	if len(prefixes) == 0 {
		prefixes = Prefixes
	}
	for _, p := range prefixes {
		if !slices.Contains(Prefixes, p) {
			return nil, shared.NewDomainError("command", "InvalidateCache", shared.ErrInvalidInput,
				fmt.Sprintf("unknown cache prefix %q", p))
		}
	}

	res := &InvalidateCacheResult{Patterns: make([]string, 0, len(prefixes))}
	for _, p := range prefixes {
		res.Patterns = append(res.Patterns, cache.PrefixPattern(p))
	}
	if h.svc.Cache == nil {
		return res, nil
	}

	for _, pattern := range res.Patterns {
		res.LocalRemoved += h.svc.Cache.Invalidate(ctx, pattern)
	}
	h.svc.Logger.Info("cache invalidated",
		slog.Any("patterns", res.Patterns),
		slog.Int("local_removed", res.LocalRemoved),
	)
	return res, nil
}
