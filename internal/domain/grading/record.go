package grading

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/unigrade/grade-analytics/internal/domain/shared"
)

// ScoreRecord is one published, approved grade row as supplied by the
// persistence layer. The engine never mutates records it receives.
type ScoreRecord struct {
	StudentID         string    `json:"student_id"`
	CourseID          string    `json:"course_id"`
	CourseName        string    `json:"course_name,omitempty"`
	Score             *float64  `json:"score"`
	MaxScore          float64   `json:"max_score"`
	Credits           float64   `json:"credits"`
	AcademicYear      string    `json:"academic_year"`
	Semester          string    `json:"semester"`
	CourseType        string    `json:"course_type,omitempty"`
	IsRetakeCandidate bool      `json:"is_retake_candidate"`
	SubmittedAt       time.Time `json:"submitted_at,omitempty"`
}

// NewScoreRecord creates a record with a present score.
func NewScoreRecord(studentID, courseID string, score, maxScore, credits float64, academicYear, semester string) ScoreRecord {
	s := score
	return ScoreRecord{
		StudentID:    studentID,
		CourseID:     courseID,
		Score:        &s,
		MaxScore:     maxScore,
		Credits:      credits,
		AcademicYear: academicYear,
		Semester:     semester,
	}
}

// Term returns the academic term the record belongs to.
func (r ScoreRecord) Term() Term {
	return Term{AcademicYear: r.AcademicYear, Semester: r.Semester}
}

// ScoreValue returns the score, or 0 when it is missing.
func (r ScoreRecord) ScoreValue() float64 {
	if r.Score == nil {
		return 0
	}
	return *r.Score
}

// Percentage returns the score as a percentage of MaxScore.
func (r ScoreRecord) Percentage() float64 {
	pct, _ := Percentage(r.ScoreValue(), r.MaxScore)
	return pct
}

// Validate reports why a record cannot take part in aggregation.
func (r ScoreRecord) Validate() error {
	switch {
	case r.Score == nil:
		return shared.NewDomainError("grading", "Validate", shared.ErrInvalidRecord,
			fmt.Sprintf("course %s: score is missing", r.CourseID))
	case r.MaxScore <= 0 || math.IsNaN(r.MaxScore):
		return shared.NewDomainError("grading", "Validate", shared.ErrInvalidRecord,
			fmt.Sprintf("course %s: max score %v is not positive", r.CourseID, r.MaxScore))
	case *r.Score < 0 || *r.Score > r.MaxScore || math.IsNaN(*r.Score):
		return shared.NewDomainError("grading", "Validate", shared.ErrInvalidRecord,
			fmt.Sprintf("course %s: score %v outside [0,%v]", r.CourseID, *r.Score, r.MaxScore))
	case r.Credits <= 0 || math.IsNaN(r.Credits):
		return shared.NewDomainError("grading", "Validate", shared.ErrInvalidRecord,
			fmt.Sprintf("course %s: credits %v are not positive", r.CourseID, r.Credits))
	}
	return nil
}

// Partition splits records into valid ones and a count of rejected ones.
// The input order of valid records is preserved.
func Partition(records []ScoreRecord) (valid []ScoreRecord, skipped int) {
	valid = make([]ScoreRecord, 0, len(records))
	for _, r := range records {
		if r.Validate() != nil {
			skipped++
			continue
		}
		valid = append(valid, r)
	}
	return valid, skipped
}

// ══════════════════════════════════════════════════════════════════════════════
// TERM
// ══════════════════════════════════════════════════════════════════════════════

// Term identifies an academic semester, e.g. {"2023-2024", "1"}.
// Terms order lexicographically by year, then semester.
type Term struct {
	AcademicYear string `json:"academic_year"`
	Semester     string `json:"semester"`
}

// Compare returns -1, 0 or +1 ordering t relative to o.
func (t Term) Compare(o Term) int {
	if c := cmp.Compare(t.AcademicYear, o.AcademicYear); c != 0 {
		return c
	}
	return cmp.Compare(t.Semester, o.Semester)
}

// Before reports whether t sorts strictly before o.
func (t Term) Before(o Term) bool {
	return t.Compare(o) < 0
}

// Key returns a stable string key, e.g. "2023-2024_1".
func (t Term) Key() string {
	return t.AcademicYear + "_" + t.Semester
}

// String implements fmt.Stringer.
func (t Term) String() string {
	return t.Key()
}

// ══════════════════════════════════════════════════════════════════════════════
// FILTER
// ══════════════════════════════════════════════════════════════════════════════

// Filter narrows a record set. Empty fields match everything.
type Filter struct {
	AcademicYear string   `json:"academic_year,omitempty"`
	Semester     string   `json:"semester,omitempty"`
	CourseTypes  []string `json:"course_types,omitempty"`
}

// Matches reports whether the record passes the filter.
func (f Filter) Matches(r ScoreRecord) bool {
	if f.AcademicYear != "" && r.AcademicYear != f.AcademicYear {
		return false
	}
	if f.Semester != "" && r.Semester != f.Semester {
		return false
	}
	if len(f.CourseTypes) > 0 && !slices.Contains(f.CourseTypes, r.CourseType) {
		return false
	}
	return true
}

// Params returns the filter as cache key parameters.
func (f Filter) Params() map[string]any {
	p := map[string]any{}
	if f.AcademicYear != "" {
		p["academic_year"] = f.AcademicYear
	}
	if f.Semester != "" {
		p["semester"] = f.Semester
	}
	if len(f.CourseTypes) > 0 {
		types := slices.Clone(f.CourseTypes)
		slices.Sort(types)
		p["course_types"] = types
	}
	return p
}

// FilterRecords returns the records that pass f.
func FilterRecords(records []ScoreRecord, f Filter) []ScoreRecord {
	out := make([]ScoreRecord, 0, len(records))
	for _, r := range records {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// GroupByStudent groups records by student, preserving record order.
func GroupByStudent(records []ScoreRecord) map[string][]ScoreRecord {
	out := make(map[string][]ScoreRecord)
	for _, r := range records {
		out[r.StudentID] = append(out[r.StudentID], r)
	}
	return out
}
