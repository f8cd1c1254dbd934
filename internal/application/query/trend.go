package query

import (
	"context"

	"github.com/unigrade/grade-analytics/internal/domain/grading"
	"github.com/unigrade/grade-analytics/internal/domain/trend"
	"github.com/unigrade/grade-analytics/internal/infrastructure/cache"
	"github.com/unigrade/grade-analytics/pkg/workerpool"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT TREND QUERY
// ══════════════════════════════════════════════════════════════════════════════

// StudentTrendQuery asks for one student's longitudinal analysis.
type StudentTrendQuery struct {
	StudentID string
	Filter    grading.Filter

	// UpTo drops terms after it when set.
	UpTo *grading.Term
}

// StudentTrendResult is a student's trend report.
type StudentTrendResult struct {
	StudentID string `json:"student_id"`
	trend.StudentReport
}

// StudentTrendHandler analyzes student trends.
type StudentTrendHandler struct {
	svc *Services
}

// NewStudentTrendHandler creates a StudentTrendHandler.
func NewStudentTrendHandler(svc *Services) *StudentTrendHandler {
	return &StudentTrendHandler{svc: svc}
}

// Handle builds the cumulative term series and runs the full trend analysis.
// A student without records gets an insufficient_data report.
func (h *StudentTrendHandler) Handle(ctx context.Context, q StudentTrendQuery) (*StudentTrendResult, error) {
	if err := requireID("StudentTrend", "student_id", q.StudentID); err != nil {
		return nil, err
	}

	params := cache.Params{"student_id": q.StudentID}
	if q.UpTo != nil {
		params["up_to"] = q.UpTo.Key()
	}
	key := cache.Key(cache.PrefixStudentTrend, filterParams(q.Filter, params))

	res, err := cached(ctx, h.svc, "StudentTrend", key, h.svc.TTL.Student, false, func(ctx context.Context) (StudentTrendResult, error) {
		records, err := h.svc.Scores.FindByStudent(ctx, q.StudentID, q.Filter)
		if err != nil {
			return StudentTrendResult{}, sourceError("StudentTrend", err)
		}
		points := h.svc.Calculator.Cumulative(grading.FilterRecords(records, q.Filter), q.UpTo)
		return StudentTrendResult{StudentID: q.StudentID, StudentReport: h.svc.Trend.AnalyzeStudent(points)}, nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COHORT TREND QUERY
// ══════════════════════════════════════════════════════════════════════════════

// CohortTrendQuery asks for the term-by-term trend of a class or cohort.
type CohortTrendQuery struct {
	CohortID string
	Filter   grading.Filter
	Refresh  bool
}

// CohortTrendResult is a cohort's trend report.
type CohortTrendResult struct {
	CohortID      string `json:"cohort_id"`
	TotalStudents int    `json:"total_students"`
	trend.CohortReport
}

// CohortTrendHandler analyzes cohort trends.
type CohortTrendHandler struct {
	svc *Services
}

// NewCohortTrendHandler creates a CohortTrendHandler.
func NewCohortTrendHandler(svc *Services) *CohortTrendHandler {
	return &CohortTrendHandler{svc: svc}
}

// Handle fetches the cohort once, builds every student's term series on the
// worker pool and aggregates them per term.
func (h *CohortTrendHandler) Handle(ctx context.Context, q CohortTrendQuery) (*CohortTrendResult, error) {
	if err := requireID("CohortTrend", "cohort_id", q.CohortID); err != nil {
		return nil, err
	}

	key := cache.Key(cache.PrefixCohortTrend, filterParams(q.Filter, cache.Params{"cohort_id": q.CohortID}))
	res, err := cached(ctx, h.svc, "CohortTrend", key, h.svc.TTL.Cohort, q.Refresh, func(ctx context.Context) (CohortTrendResult, error) {
		grouped, err := h.svc.Scores.FindByCohort(ctx, q.CohortID, q.Filter)
		if err != nil {
			return CohortTrendResult{}, sourceError("CohortTrend", err)
		}

		ids := sortedKeys(grouped)
		series, err := workerpool.Map(ctx, h.svc.Pool, ids, func(_ context.Context, id string) ([]grading.TrendPoint, error) {
			return h.svc.Calculator.Cumulative(grading.FilterRecords(grouped[id], q.Filter), nil), nil
		})
		if err != nil {
			return CohortTrendResult{}, err
		}

		students := make(map[string][]grading.TrendPoint, len(ids))
		for i, id := range ids {
			students[id] = series[i]
		}
		return CohortTrendResult{
			CohortID:      q.CohortID,
			TotalStudents: len(ids),
			CohortReport:  h.svc.Trend.AnalyzeCohort(students),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COURSE TREND QUERY
// ══════════════════════════════════════════════════════════════════════════════

// CourseTrendQuery asks how one course's results move across offerings.
type CourseTrendQuery struct {
	CourseID string
	Filter   grading.Filter
}

// CourseTrendHandler analyzes course trends.
type CourseTrendHandler struct {
	svc *Services
}

// NewCourseTrendHandler creates a CourseTrendHandler.
func NewCourseTrendHandler(svc *Services) *CourseTrendHandler {
	return &CourseTrendHandler{svc: svc}
}

// Handle returns the per-term trend of one course.
func (h *CourseTrendHandler) Handle(ctx context.Context, q CourseTrendQuery) (*trend.CourseReport, error) {
	if err := requireID("CourseTrend", "course_id", q.CourseID); err != nil {
		return nil, err
	}

	key := cache.Key(cache.PrefixCourseTrend, filterParams(q.Filter, cache.Params{"course_id": q.CourseID}))
	res, err := cached(ctx, h.svc, "CourseTrend", key, h.svc.TTL.Cohort, false, func(ctx context.Context) (trend.CourseReport, error) {
		records, err := h.svc.Scores.FindByCourse(ctx, q.CourseID, q.Filter)
		if err != nil {
			return trend.CourseReport{}, sourceError("CourseTrend", err)
		}
		return h.svc.Trend.AnalyzeCourse(q.CourseID, grading.FilterRecords(records, q.Filter)), nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}
