package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unigrade/grade-analytics/internal/domain/shared"
)

func TestScoreRecord_Validate(t *testing.T) {
	valid := rec("s1", "CS101", 75, 3, "2023-2024", "1")

	tests := []struct {
		name    string
		mutate  func(r *ScoreRecord)
		wantErr bool
	}{
		{"valid", func(r *ScoreRecord) {}, false},
		{"full marks", func(r *ScoreRecord) { v := 100.0; r.Score = &v }, false},
		{"zero score", func(r *ScoreRecord) { v := 0.0; r.Score = &v }, false},
		{"missing score", func(r *ScoreRecord) { r.Score = nil }, true},
		{"zero max", func(r *ScoreRecord) { r.MaxScore = 0 }, true},
		{"negative max", func(r *ScoreRecord) { r.MaxScore = -1 }, true},
		{"negative score", func(r *ScoreRecord) { v := -1.0; r.Score = &v }, true},
		{"score above max", func(r *ScoreRecord) { v := 101.0; r.Score = &v }, true},
		{"zero credits", func(r *ScoreRecord) { r.Credits = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)

			err := r.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, shared.IsInvalidRecord(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPartition(t *testing.T) {
	bad := rec("s1", "X", 10, 0, "2023-2024", "1")
	records := []ScoreRecord{
		rec("s1", "A", 10, 1, "2023-2024", "1"),
		bad,
		rec("s1", "B", 10, 1, "2023-2024", "1"),
	}

	valid, skipped := Partition(records)

	assert.Equal(t, 1, skipped)
	assert.Len(t, valid, 2)
	assert.Equal(t, "A", valid[0].CourseID)
	assert.Equal(t, "B", valid[1].CourseID)
}

func TestTerm_Compare(t *testing.T) {
	a := Term{AcademicYear: "2023-2024", Semester: "1"}
	b := Term{AcademicYear: "2023-2024", Semester: "2"}
	c := Term{AcademicYear: "2024-2025", Semester: "1"}

	assert.True(t, a.Before(b))
	assert.True(t, b.Before(c))
	assert.False(t, c.Before(a))
	assert.Equal(t, 0, a.Compare(a))
	assert.Equal(t, "2023-2024_1", a.Key())
}

func TestFilter(t *testing.T) {
	r := rec("s1", "CS101", 80, 3, "2023-2024", "1")
	r.CourseType = "required"

	assert.True(t, Filter{}.Matches(r))
	assert.True(t, Filter{AcademicYear: "2023-2024", CourseTypes: []string{"elective", "required"}}.Matches(r))
	assert.False(t, Filter{Semester: "2"}.Matches(r))
	assert.False(t, Filter{CourseTypes: []string{"elective"}}.Matches(r))

	other := rec("s1", "MA101", 80, 3, "2022-2023", "1")
	assert.Len(t, FilterRecords([]ScoreRecord{r, other}, Filter{AcademicYear: "2023-2024"}), 1)
}

func TestFilter_ParamsSortCourseTypes(t *testing.T) {
	a := Filter{CourseTypes: []string{"required", "elective"}}.Params()
	b := Filter{CourseTypes: []string{"elective", "required"}}.Params()

	assert.Equal(t, a, b)
	assert.NotContains(t, a, "academic_year")
}

func TestGroupByStudent(t *testing.T) {
	records := []ScoreRecord{
		rec("s1", "A", 80, 3, "2023-2024", "1"),
		rec("s2", "A", 70, 3, "2023-2024", "1"),
		rec("s1", "B", 60, 3, "2023-2024", "1"),
	}

	groups := GroupByStudent(records)

	assert.Len(t, groups, 2)
	assert.Len(t, groups["s1"], 2)
	assert.Equal(t, "B", groups["s1"][1].CourseID)
}
