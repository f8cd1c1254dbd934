package postgres

import (
	"slices"
	"strconv"
	"strings"

	"github.com/unigrade/grade-analytics/internal/domain/grading"
)

// Score record queries. Only published and approved grades are visible.

const (
	queryScoreSelect = `
		SELECT
			g.student_id::text, g.course_id::text, c.course_name,
			g.score, g.max_score, c.credits,
			g.academic_year, g.semester, c.course_type,
			COALESCE(g.is_retake, FALSE), g.submitted_at
		FROM grades g
		JOIN courses c ON c.id = g.course_id`

	// queryCohortJoin restricts the selection to active students of one class.
	queryCohortJoin = `
		JOIN students s ON s.id = g.student_id`

	queryScoreVisible = `
		WHERE g.is_published = TRUE AND g.status = 'approved'`

	queryScoreOrder = `
		ORDER BY g.student_id, g.academic_year, g.semester, g.course_id`
)

// scoreQuery assembles a score select with numbered placeholders.
type scoreQuery struct {
	sb   strings.Builder
	args []any
}

func newScoreQuery(joins ...string) *scoreQuery {
	q := &scoreQuery{}
	q.sb.WriteString(queryScoreSelect)
	for _, j := range joins {
		q.sb.WriteString(j)
	}
	q.sb.WriteString(queryScoreVisible)
	return q
}

func (q *scoreQuery) placeholder(v any) string {
	q.args = append(q.args, v)
	return "$" + strconv.Itoa(len(q.args))
}

// eq appends "AND column = $n".
func (q *scoreQuery) eq(column string, v any) *scoreQuery {
	q.sb.WriteString(" AND ")
	q.sb.WriteString(column)
	q.sb.WriteString(" = ")
	q.sb.WriteString(q.placeholder(v))
	return q
}

// anyOf appends "AND column = ANY($n)" with values bound as one text array,
// so the statement text does not depend on how many values are passed.
func (q *scoreQuery) anyOf(column string, values []string) *scoreQuery {
	q.sb.WriteString(" AND ")
	q.sb.WriteString(column)
	q.sb.WriteString(" = ANY(")
	q.sb.WriteString(q.placeholder(slices.Clone(values)))
	q.sb.WriteString(")")
	return q
}

func (q *scoreQuery) filter(f grading.Filter) *scoreQuery {
	if f.AcademicYear != "" {
		q.eq("g.academic_year", f.AcademicYear)
	}
	if f.Semester != "" {
		q.eq("g.semester", f.Semester)
	}
	if len(f.CourseTypes) > 0 {
		q.anyOf("c.course_type", f.CourseTypes)
	}
	return q
}

func (q *scoreQuery) String() string {
	return q.sb.String() + queryScoreOrder
}
