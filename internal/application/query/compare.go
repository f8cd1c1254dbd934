package query

import (
	"context"
	"slices"

	"github.com/unigrade/grade-analytics/internal/domain/distribution"
	"github.com/unigrade/grade-analytics/internal/domain/grading"
	"github.com/unigrade/grade-analytics/internal/domain/shared"
	"github.com/unigrade/grade-analytics/internal/infrastructure/cache"
	"github.com/unigrade/grade-analytics/pkg/workerpool"
)

// ══════════════════════════════════════════════════════════════════════════════
// COHORT COMPARISON QUERY
// ══════════════════════════════════════════════════════════════════════════════

// CompareCohortsQuery asks how several cohorts perform against each other.
type CompareCohortsQuery struct {
	CohortIDs []string
	Filter    grading.Filter

	// Refresh recomputes the comparison and overwrites the cached one.
	Refresh bool
}

// CompareCohortsResult is a cohort comparison.
type CompareCohortsResult struct {
	CohortIDs []string `json:"cohort_ids"`
	distribution.Comparison
}

// CompareCohortsHandler compares cohorts.
type CompareCohortsHandler struct {
	svc *Services
}

// NewCompareCohortsHandler creates a CompareCohortsHandler.
func NewCompareCohortsHandler(svc *Services) *CompareCohortsHandler {
	return &CompareCohortsHandler{svc: svc}
}

// Handle ranks the given cohorts by average percentage score. Duplicate IDs
// are compared once and the order of CohortIDs does not change the result.
func (h *CompareCohortsHandler) Handle(ctx context.Context, q CompareCohortsQuery) (*CompareCohortsResult, error) {
	ids := slices.Compact(slices.Sorted(slices.Values(q.CohortIDs)))
	if len(ids) == 0 {
		return nil, shared.NewDomainError("query", "CompareCohorts", shared.ErrInvalidInput, "at least one cohort_id is required")
	}
	if ids[0] == "" {
		return nil, shared.NewDomainError("query", "CompareCohorts", shared.ErrInvalidInput, "cohort_id must not be empty")
	}

	key := CompareCohortsKey(ids, q.Filter)
	res, err := cached(ctx, h.svc, "CompareCohorts", key, h.svc.TTL.Cohort, q.Refresh, func(ctx context.Context) (CompareCohortsResult, error) {
		records, err := workerpool.Map(ctx, h.svc.Pool, ids, func(ctx context.Context, id string) ([]grading.ScoreRecord, error) {
			grouped, err := h.svc.Scores.FindByCohort(ctx, id, q.Filter)
			if err != nil {
				return nil, sourceError("CompareCohorts", err)
			}
			var flat []grading.ScoreRecord
			for _, sid := range sortedKeys(grouped) {
				flat = append(flat, grouped[sid]...)
			}
			return grading.FilterRecords(flat, q.Filter), nil
		})
		if err != nil {
			return CompareCohortsResult{}, err
		}

		cohorts := make(map[string][]grading.ScoreRecord, len(ids))
		for i, id := range ids {
			cohorts[id] = records[i]
		}
		return CompareCohortsResult{CohortIDs: ids, Comparison: h.svc.Distribution.CompareCohorts(cohorts)}, nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// CompareCohortsKey is the cache key of a comparison over the sorted,
// de-duplicated cohort IDs.
func CompareCohortsKey(sortedIDs []string, f grading.Filter) string {
	return cache.Key(cache.PrefixComparison, filterParams(f, cache.Params{"cohort_ids": sortedIDs}))
}
