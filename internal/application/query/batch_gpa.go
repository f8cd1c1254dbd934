package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/unigrade/grade-analytics/internal/domain/grading"
	"github.com/unigrade/grade-analytics/pkg/workerpool"
)

// ══════════════════════════════════════════════════════════════════════════════
// BATCH GPA QUERY
// ══════════════════════════════════════════════════════════════════════════════

// BatchGPAQuery asks for the GPA of many students at once.
type BatchGPAQuery struct {
	StudentIDs []string
	Filter     grading.Filter

	// Refresh recomputes every student and overwrites cached entries.
	Refresh bool
}

// BatchGPAResult holds one GPAResult per requested student, in request
// order with duplicates removed.
type BatchGPAResult struct {
	RunID          uuid.UUID           `json:"run_id"`
	Results        []grading.GPAResult `json:"results"`
	CacheHits      int                 `json:"cache_hits"`
	Computed       int                 `json:"computed"`
	SkippedRecords int                 `json:"skipped_records"`
	Duration       time.Duration       `json:"duration_ns"`
}

// BatchGPAHandler computes GPAs for many students with one record fetch.
type BatchGPAHandler struct {
	svc *Services
}

// NewBatchGPAHandler creates a BatchGPAHandler.
func NewBatchGPAHandler(svc *Services) *BatchGPAHandler {
	return &BatchGPAHandler{svc: svc}
}

// Handle serves cached students from the cache, fetches the rest with a
// single FindByStudents call and aggregates them on the worker pool.
func (h *BatchGPAHandler) Handle(ctx context.Context, q BatchGPAQuery) (*BatchGPAResult, error) {
	start := time.Now()
	res := &BatchGPAResult{RunID: uuid.New()}

	ids := dedupe(q.StudentIDs)
	res.Results = make([]grading.GPAResult, len(ids))

	var pending []int
	for i, id := range ids {
		if !q.Refresh && h.svc.Cache != nil && h.svc.Cache.Get(ctx, StudentGPAKey(id, q.Filter), &res.Results[i]) == nil {
			res.CacheHits++
			continue
		}
		pending = append(pending, i)
	}

	if len(pending) > 0 {
		missing := make([]string, len(pending))
		for j, i := range pending {
			missing[j] = ids[i]
		}

		grouped, err := h.svc.Scores.FindByStudents(ctx, missing, q.Filter)
		if err != nil {
			return nil, sourceError("BatchGPA", err)
		}

		computed, err := workerpool.Map(ctx, h.svc.Pool, missing, func(_ context.Context, id string) (grading.GPAResult, error) {
			return h.svc.Calculator.Aggregate(id, grading.FilterRecords(grouped[id], q.Filter)), nil
		})
		if err != nil {
			return nil, err
		}

		for j, i := range pending {
			res.Results[i] = computed[j]
			if h.svc.Cache != nil {
				if err := h.svc.Cache.Set(ctx, StudentGPAKey(ids[i], q.Filter), computed[j], h.svc.TTL.Student); err != nil {
					h.svc.Logger.Warn("batch result not cached", slog.String("student_id", ids[i]), slog.Any("error", err))
				}
			}
		}
		res.Computed = len(pending)
	}

	for _, r := range res.Results {
		res.SkippedRecords += r.SkippedRecords
	}
	res.Duration = time.Since(start)

	h.svc.Logger.Info("batch gpa completed",
		slog.String("run_id", res.RunID.String()),
		slog.Int("students", len(ids)),
		slog.Int("cache_hits", res.CacheHits),
		slog.Int("computed", res.Computed),
		slog.Duration("duration", res.Duration),
	)
	return res, nil
}

// dedupe drops empty and repeated IDs, keeping first occurrences in order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
