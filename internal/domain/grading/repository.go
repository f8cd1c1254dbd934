package grading

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCORE REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// ScoreRepository is the read-only source of score records. Implementations
// return only published and approved grades; the engine performs no
// authorization checks of its own.
//
// Batch methods must issue a bounded number of queries regardless of how
// many students they cover.
type ScoreRepository interface {
	// FindByStudent returns every record of one student matching the filter.
	FindByStudent(ctx context.Context, studentID string, filter Filter) ([]ScoreRecord, error)

	// FindByStudents returns records for many students in a single query,
	// grouped by student ID. Students without records map to no entry.
	FindByStudents(ctx context.Context, studentIDs []string, filter Filter) (map[string][]ScoreRecord, error)

	// FindByCohort returns records for every student of a class or cohort in
	// a single query, grouped by student ID.
	FindByCohort(ctx context.Context, cohortID string, filter Filter) (map[string][]ScoreRecord, error)

	// FindByCourse returns every record of one course matching the filter.
	FindByCourse(ctx context.Context, courseID string, filter Filter) ([]ScoreRecord, error)
}
