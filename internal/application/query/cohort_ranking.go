package query

import (
	"context"
	"time"

	"github.com/unigrade/grade-analytics/internal/domain/grading"
	"github.com/unigrade/grade-analytics/internal/domain/ranking"
	"github.com/unigrade/grade-analytics/internal/infrastructure/cache"
	"github.com/unigrade/grade-analytics/pkg/workerpool"
)

// ══════════════════════════════════════════════════════════════════════════════
// COHORT RANKING QUERY
// ══════════════════════════════════════════════════════════════════════════════

// CohortRankingQuery asks for the GPA ranking of a class or cohort.
type CohortRankingQuery struct {
	CohortID string
	Filter   grading.Filter

	// Top truncates Entries when positive.
	Top int

	// StudentID, when set, fills Student and Neighbors.
	StudentID string

	// NeighborRange is how many entries to include on each side of StudentID.
	NeighborRange int

	// Refresh recomputes the ranking and overwrites the cached one.
	Refresh bool
}

// CohortRankingResult is a ranked cohort plus its statistics.
type CohortRankingResult struct {
	CohortID       string                   `json:"cohort_id"`
	TotalStudents  int                      `json:"total_students"`
	Entries        []ranking.Entry          `json:"rankings"`
	Statistics     ranking.CohortStatistics `json:"class_statistics"`
	SkippedRecords int                      `json:"skipped_records"`
	GeneratedAt    time.Time                `json:"ranking_timestamp"`

	Student   *ranking.Entry  `json:"student,omitempty"`
	Neighbors []ranking.Entry `json:"neighbors,omitempty"`
}

// CohortRankingHandler ranks cohorts.
type CohortRankingHandler struct {
	svc *Services
}

// NewCohortRankingHandler creates a CohortRankingHandler.
func NewCohortRankingHandler(svc *Services) *CohortRankingHandler {
	return &CohortRankingHandler{svc: svc}
}

// Handle ranks every student of the cohort with positive credits. The full
// ranking is cached; Top and StudentID only shape the returned view.
func (h *CohortRankingHandler) Handle(ctx context.Context, q CohortRankingQuery) (*CohortRankingResult, error) {
	if err := requireID("CohortRanking", "cohort_id", q.CohortID); err != nil {
		return nil, err
	}

	key := CohortRankingKey(q.CohortID, q.Filter)
	full, err := cached(ctx, h.svc, "CohortRanking", key, h.svc.TTL.Cohort, q.Refresh, func(ctx context.Context) (CohortRankingResult, error) {
		return h.compute(ctx, q)
	})
	if err != nil {
		return nil, err
	}

	view := full
	r := ranking.RankCohort(candidatesFromEntries(full.Entries))
	if q.StudentID != "" {
		if e, ok := r.GetByID(q.StudentID); ok {
			view.Student = &e
			view.Neighbors = r.Neighbors(q.StudentID, max(q.NeighborRange, 0))
		}
	}
	if q.Top > 0 {
		view.Entries = r.Top(q.Top)
	}
	return &view, nil
}

func (h *CohortRankingHandler) compute(ctx context.Context, q CohortRankingQuery) (CohortRankingResult, error) {
	grouped, err := h.svc.Scores.FindByCohort(ctx, q.CohortID, q.Filter)
	if err != nil {
		return CohortRankingResult{}, sourceError("CohortRanking", err)
	}

	results, err := aggregateAll(ctx, h.svc, grouped, q.Filter)
	if err != nil {
		return CohortRankingResult{}, err
	}

	r := ranking.RankCohort(ranking.CandidatesFrom(results))
	res := CohortRankingResult{
		CohortID:      q.CohortID,
		TotalStudents: r.Count(),
		Entries:       r.Entries(),
		Statistics:    ranking.Statistics(r),
		GeneratedAt:   h.svc.Now(),
	}
	for _, gr := range results {
		res.SkippedRecords += gr.SkippedRecords
	}
	return res, nil
}

// CohortRankingKey is the cache key of a cohort ranking.
func CohortRankingKey(cohortID string, f grading.Filter) string {
	return cache.Key(cache.PrefixCohortRanking, filterParams(f, cache.Params{"cohort_id": cohortID}))
}

// aggregateAll computes the GPA of every student in grouped on the worker
// pool. Results follow the sorted student IDs.
func aggregateAll(ctx context.Context, svc *Services, grouped map[string][]grading.ScoreRecord, f grading.Filter) ([]grading.GPAResult, error) {
	ids := sortedKeys(grouped)
	return workerpool.Map(ctx, svc.Pool, ids, func(_ context.Context, id string) (grading.GPAResult, error) {
		return svc.Calculator.Aggregate(id, grading.FilterRecords(grouped[id], f)), nil
	})
}

func candidatesFromEntries(entries []ranking.Entry) []ranking.Candidate {
	out := make([]ranking.Candidate, len(entries))
	for i, e := range entries {
		out[i] = ranking.Candidate{
			StudentID:    e.StudentID,
			GPA:          e.GPA,
			TotalCredits: e.TotalCredits,
			TotalCourses: e.TotalCourses,
		}
	}
	return out
}
