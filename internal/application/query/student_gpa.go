package query

import (
	"context"

	"github.com/unigrade/grade-analytics/internal/domain/grading"
	"github.com/unigrade/grade-analytics/internal/infrastructure/cache"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT GPA QUERY
// ══════════════════════════════════════════════════════════════════════════════

// StudentGPAQuery asks for one student's GPA.
type StudentGPAQuery struct {
	StudentID string
	Filter    grading.Filter
}

// StudentGPAHandler computes GPA results.
type StudentGPAHandler struct {
	svc *Services
}

// NewStudentGPAHandler creates a StudentGPAHandler.
func NewStudentGPAHandler(svc *Services) *StudentGPAHandler {
	return &StudentGPAHandler{svc: svc}
}

// Handle returns the GPA of one student. A student without records gets a
// zero result, not an error.
func (h *StudentGPAHandler) Handle(ctx context.Context, q StudentGPAQuery) (grading.GPAResult, error) {
	if err := requireID("StudentGPA", "student_id", q.StudentID); err != nil {
		return grading.GPAResult{}, err
	}

	key := StudentGPAKey(q.StudentID, q.Filter)
	return cached(ctx, h.svc, "StudentGPA", key, h.svc.TTL.Student, false, func(ctx context.Context) (grading.GPAResult, error) {
		records, err := h.svc.Scores.FindByStudent(ctx, q.StudentID, q.Filter)
		if err != nil {
			return grading.GPAResult{}, sourceError("StudentGPA", err)
		}
		return h.svc.Calculator.Aggregate(q.StudentID, grading.FilterRecords(records, q.Filter)), nil
	})
}

// StudentGPAKey is the cache key of one student's GPA result.
func StudentGPAKey(studentID string, f grading.Filter) string {
	return cache.Key(cache.PrefixStudentGPA, filterParams(f, cache.Params{"student_id": studentID}))
}
