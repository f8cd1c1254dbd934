package query

import (
	"context"
	"fmt"

	"github.com/unigrade/grade-analytics/internal/domain/distribution"
	"github.com/unigrade/grade-analytics/internal/domain/grading"
	"github.com/unigrade/grade-analytics/internal/domain/shared"
	"github.com/unigrade/grade-analytics/internal/infrastructure/cache"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISTRIBUTION QUERY
// ══════════════════════════════════════════════════════════════════════════════

// Scope selects the record set a distribution is computed over.
type Scope string

const (
	ScopeCohort Scope = "cohort"
	ScopeCourse Scope = "course"
)

// DistributionQuery asks for the score distribution of a cohort or course.
type DistributionQuery struct {
	Scope  Scope
	ID     string
	Filter grading.Filter

	// Refresh recomputes the report and overwrites the cached one.
	Refresh bool
}

// DistributionResult is a distribution report. Cohort scope adds per-course
// and per-student breakdowns.
type DistributionResult struct {
	Scope Scope  `json:"scope"`
	ID    string `json:"id"`
	distribution.CohortReport
}

// DistributionHandler analyzes score distributions.
type DistributionHandler struct {
	svc *Services
}

// NewDistributionHandler creates a DistributionHandler.
func NewDistributionHandler(svc *Services) *DistributionHandler {
	return &DistributionHandler{svc: svc}
}

// Handle computes the distribution of every valid score in scope.
func (h *DistributionHandler) Handle(ctx context.Context, q DistributionQuery) (*DistributionResult, error) {
	if q.Scope != ScopeCohort && q.Scope != ScopeCourse {
		return nil, shared.NewDomainError("query", "Distribution", shared.ErrInvalidInput,
			fmt.Sprintf("unknown scope %q", q.Scope))
	}
	if err := requireID("Distribution", "id", q.ID); err != nil {
		return nil, err
	}

	key := cache.Key(cache.PrefixDistribution, filterParams(q.Filter, cache.Params{"scope": string(q.Scope), "id": q.ID}))
	res, err := cached(ctx, h.svc, "Distribution", key, h.svc.TTL.Cohort, q.Refresh, func(ctx context.Context) (DistributionResult, error) {
		records, err := h.fetch(ctx, q)
		if err != nil {
			return DistributionResult{}, sourceError("Distribution", err)
		}
		records = grading.FilterRecords(records, q.Filter)

		res := DistributionResult{Scope: q.Scope, ID: q.ID}
		if q.Scope == ScopeCohort {
			res.CohortReport = h.svc.Distribution.AnalyzeCohort(records)
		} else {
			res.Overall, res.SkippedRecords = h.svc.Distribution.AnalyzeRecords(records)
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (h *DistributionHandler) fetch(ctx context.Context, q DistributionQuery) ([]grading.ScoreRecord, error) {
	if q.Scope == ScopeCourse {
		return h.svc.Scores.FindByCourse(ctx, q.ID, q.Filter)
	}
	grouped, err := h.svc.Scores.FindByCohort(ctx, q.ID, q.Filter)
	if err != nil {
		return nil, err
	}
	var records []grading.ScoreRecord
	for _, id := range sortedKeys(grouped) {
		records = append(records, grouped[id]...)
	}
	return records, nil
}
