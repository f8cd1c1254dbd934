package trend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unigrade/grade-analytics/internal/domain/grading"
	"github.com/unigrade/grade-analytics/internal/domain/shared"
)

func newTestAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(DefaultConfig(), grading.MustDefaultScale())
	require.NoError(t, err)
	return a
}

// point builds a term with a semester GPA, pass rate and credit load.
func point(sem string, gpa, passRate, credits float64) grading.TrendPoint {
	return grading.TrendPoint{
		AcademicYear: "2023-2024",
		Semester:     sem,
		SemesterGPA:  gpa,
		PassRate:     passRate,
		Credits:      credits,
	}
}

func series(gpas ...float64) []grading.TrendPoint {
	out := make([]grading.TrendPoint, len(gpas))
	for i, g := range gpas {
		out[i] = point(string(rune('1'+i)), g, 100, 15)
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// FIT
// ══════════════════════════════════════════════════════════════════════════════

func TestFit(t *testing.T) {
	l := Fit([]float64{1, 3, 5})

	assert.InDelta(t, 2.0, l.Slope, 1e-9)
	assert.InDelta(t, 1.0, l.Intercept, 1e-9)
	assert.InDelta(t, 1.0, l.RSquared, 1e-9)
	assert.InDelta(t, 9.0, l.At(4), 1e-9)
}

func TestFit_Degenerate(t *testing.T) {
	assert.Equal(t, Line{}, Fit(nil))
	assert.Equal(t, Line{}, Fit([]float64{3.2}))

	flat := Fit([]float64{3, 3, 3})
	assert.Equal(t, 0.0, flat.Slope)
	assert.Equal(t, 0.0, flat.RSquared)
}

// ══════════════════════════════════════════════════════════════════════════════
// ANALYZE
// ══════════════════════════════════════════════════════════════════════════════

func TestAnalyzer_AnalyzeIncreasingSeries(t *testing.T) {
	a := newTestAnalyzer(t)

	r := a.Analyze([]float64{2.0, 2.5, 3.0, 3.5})

	assert.Equal(t, StatusOK, r.Status)
	assert.Equal(t, DirectionImproving, r.Direction)
	assert.Equal(t, 0.5, r.Slope)
	assert.InDelta(t, 100.0, r.Confidence, 1e-9)
	assert.Equal(t, StatusOK, r.Forecast.Status)
	assert.Equal(t, 4.0, r.Forecast.NextTerm)
	assert.Equal(t, 4.0, r.Forecast.SecondTerm)
	assert.Equal(t, ConsistencyIncreasing, r.Consistency)
	assert.Equal(t, StrengthStrong, r.Strength)
	assert.Equal(t, 0.559, r.Volatility)
	assert.Equal(t, 0.5, r.RecentChange)
	assert.Equal(t, 1.5, r.OverallChange)
	assert.Equal(t, 75.0, r.ChangeRate)
	assert.Equal(t, 2.75, r.AverageGPA)
	assert.Equal(t, []float64{2.5, 3.0}, r.MovingAverages)
	assert.Equal(t, 4, r.MaxGPATerm)
	assert.Equal(t, 1, r.MinGPATerm)
}

func TestAnalyzer_AnalyzeInsufficientData(t *testing.T) {
	a := newTestAnalyzer(t)

	for _, gpas := range [][]float64{nil, {3.1}} {
		r := a.Analyze(gpas)
		assert.Equal(t, StatusInsufficientData, r.Status)
		assert.Equal(t, StatusInsufficientData, r.Direction)
		assert.Equal(t, StatusInsufficientData, r.Forecast.Status)
		assert.Empty(t, r.MovingAverages)
	}

	two := a.Analyze([]float64{3.0, 2.0})
	assert.Equal(t, StatusOK, two.Status)
	assert.Equal(t, DirectionDeclining, two.Direction)
	assert.Equal(t, StatusInsufficientData, two.Consistency)
	assert.Equal(t, StatusInsufficientData, two.Forecast.Status)
	assert.Equal(t, 0.0, two.Confidence)
	assert.Equal(t, StrengthWeak, two.Strength)
}

func TestAnalyzer_AnalyzeClassifications(t *testing.T) {
	a := newTestAnalyzer(t)

	tests := []struct {
		name        string
		gpas        []float64
		direction   string
		consistency string
	}{
		{"flat", []float64{3, 3, 3}, DirectionStable, ConsistencyFluctuates},
		{"falling", []float64{3.5, 3.0, 2.5}, DirectionDeclining, ConsistencyDecreasing},
		{"zigzag", []float64{3.0, 2.0, 3.0, 2.0}, DirectionDeclining, ConsistencyFluctuates},
		{"small drift", []float64{3.0, 3.02, 3.04}, DirectionStable, ConsistencyIncreasing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := a.Analyze(tt.gpas)
			assert.Equal(t, tt.direction, r.Direction)
			assert.Equal(t, tt.consistency, r.Consistency)
		})
	}
}

func TestAnalyzer_AnalyzeFlatSeriesHasNoConfidence(t *testing.T) {
	r := newTestAnalyzer(t).Analyze([]float64{3, 3, 3})

	assert.Equal(t, 0.0, r.Confidence)
	assert.Equal(t, StrengthWeak, r.Strength)
	assert.Equal(t, 3.0, r.Forecast.NextTerm)
}

func TestAnalyzer_ForecastClampedAtZero(t *testing.T) {
	r := newTestAnalyzer(t).Analyze([]float64{1.0, 0.5, 0.0})

	assert.Equal(t, 0.0, r.Forecast.NextTerm)
	assert.Equal(t, 0.0, r.Forecast.SecondTerm)
}

// ══════════════════════════════════════════════════════════════════════════════
// RISK
// ══════════════════════════════════════════════════════════════════════════════

func TestAnalyzer_Assess(t *testing.T) {
	a := newTestAnalyzer(t)

	tests := []struct {
		name   string
		points []grading.TrendPoint
		level  RiskLevel
		risks  []Risk
	}{
		{
			name:   "empty",
			points: nil,
			level:  RiskLow,
			risks:  []Risk{},
		},
		{
			name:   "healthy",
			points: series(3.0, 3.5),
			level:  RiskLow,
			risks:  []Risk{},
		},
		{
			name:   "declining streak",
			points: series(3.2, 2.9, 2.6),
			level:  RiskHigh,
			risks:  []Risk{RiskDecliningStreak},
		},
		{
			name:   "below threshold is not also near",
			points: series(3.0, 1.8),
			level:  RiskHigh,
			risks:  []Risk{RiskDecliningStreak, RiskGPABelowThreshold},
		},
		{
			name:   "near threshold",
			points: series(2.0, 2.4),
			level:  RiskMedium,
			risks:  []Risk{RiskGPANearThreshold},
		},
		{
			name:   "only the last three terms count",
			points: series(3.5, 3.0, 3.1, 3.2),
			level:  RiskLow,
			risks:  []Risk{},
		},
		{
			name:   "terms without GPA are skipped",
			points: series(3.0, 0, 2.8),
			level:  RiskHigh,
			risks:  []Risk{RiskDecliningStreak},
		},
		{
			name:   "load and pass rate",
			points: []grading.TrendPoint{point("1", 3.0, 100, 15), point("2", 3.2, 60, 9)},
			level:  RiskMedium,
			risks:  []Risk{RiskLowPassRate, RiskLowCreditLoad},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := a.Assess(tt.points)
			assert.Equal(t, tt.level, r.Level)
			assert.Equal(t, tt.risks, r.Risks)
			assert.Equal(t, len(tt.risks), r.Count)
		})
	}
}

func TestAnalyzer_AssessRemediationsAreCapped(t *testing.T) {
	a := newTestAnalyzer(t)
	points := []grading.TrendPoint{
		point("1", 3.0, 100, 15),
		point("2", 2.8, 100, 15),
		point("3", 1.5, 50, 9),
	}

	r := a.Assess(points)

	require.Equal(t, 4, r.Count)
	assert.True(t, r.Has(RiskLowCreditLoad))
	assert.Len(t, r.Remediations, 5)
	assert.Equal(t, Remediations(RiskDecliningStreak)[:2], r.Remediations[:2])
	assert.Equal(t, Remediations(RiskGPABelowThreshold)[:2], r.Remediations[2:4])
}

func TestRemediations_ReturnsCopy(t *testing.T) {
	msgs := Remediations(RiskLowPassRate)
	require.Len(t, msgs, 3)
	msgs[0] = "changed"

	assert.NotEqual(t, "changed", Remediations(RiskLowPassRate)[0])
	assert.Empty(t, Remediations(Risk("unknown")))
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS AND PROJECTION
// ══════════════════════════════════════════════════════════════════════════════

func TestAnalyzer_Progress(t *testing.T) {
	a := newTestAnalyzer(t)
	points := series(2.0, 2.5, 3.0)
	for i := range points {
		points[i].AverageScore = 70 + float64(i)*5
	}
	points[2].CumulativeGPA = 2.5

	p := a.Progress(points)

	assert.Equal(t, ProgressSignificantImprovement, p.Type)
	assert.Equal(t, 0.5, p.AverageGPAProgress)
	assert.Equal(t, 5.0, p.AverageScoreProgress)
	assert.Equal(t, 0.5, p.TotalGPAChange)
	assert.Equal(t, 10.0, p.TotalScoreChange)
	assert.Equal(t, 45.0, p.CreditsEarned)
	assert.Equal(t, 2, p.Improvements)
	assert.Equal(t, 0, p.Declines)
}

func TestAnalyzer_ProgressTypes(t *testing.T) {
	a := newTestAnalyzer(t)

	tests := []struct {
		gpas []float64
		want string
	}{
		{[]float64{3.0}, StatusInsufficientData},
		{[]float64{3.0, 3.01}, ProgressStable},
		{[]float64{3.0, 3.05}, ProgressModerateImprovement},
		{[]float64{3.0, 2.95}, ProgressModerateDecline},
		{[]float64{3.0, 2.5}, ProgressSignificantDecline},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, a.Progress(series(tt.gpas...)).Type, "gpas %v", tt.gpas)
	}
}

func TestAnalyzer_Project(t *testing.T) {
	a := newTestAnalyzer(t)

	p := a.Project([]float64{2.0, 2.5, 3.0})

	assert.Equal(t, DirectionImproving, p.FutureTrend)
	assert.Equal(t, 3.0, p.CurrentValue)
	require.Len(t, p.Targets, 3)

	reached, ok := p.Target(3.0)
	require.True(t, ok)
	assert.Nil(t, reached.Semesters)

	next, _ := p.Target(3.5)
	require.NotNil(t, next.Semesters)
	assert.Equal(t, 1, *next.Semesters)

	far, _ := p.Target(3.8)
	require.NotNil(t, far.Semesters)
	assert.Equal(t, 2, *far.Semesters)
}

func TestAnalyzer_ProjectDecliningNeverReaches(t *testing.T) {
	p := newTestAnalyzer(t).Project([]float64{3.0, 2.5, 2.0})

	assert.Equal(t, DirectionDeclining, p.FutureTrend)
	for _, est := range p.Targets {
		assert.Nil(t, est.Semesters)
	}
}

func TestAnalyzer_AnalyzeStudent(t *testing.T) {
	a := newTestAnalyzer(t)

	r := a.AnalyzeStudent(series(2.0, 2.5, 3.0))

	assert.Equal(t, DirectionImproving, r.Trend.Direction)
	assert.Equal(t, RiskLow, r.Risk.Level)
	require.NotNil(t, r.Projection)
	assert.Equal(t, []string{
		"Keep up the positive momentum",
		"Strong performance; consider more ambitious goals",
		"Grades fluctuate considerably; keep a steady study rhythm",
	}, r.Recommendations)
}

func TestAnalyzer_AnalyzeStudentEmpty(t *testing.T) {
	r := newTestAnalyzer(t).AnalyzeStudent(nil)

	assert.NotNil(t, r.Terms)
	assert.Equal(t, StatusInsufficientData, r.Trend.Status)
	assert.Equal(t, StatusInsufficientData, r.Progress.Type)
	assert.Equal(t, RiskLow, r.Risk.Level)
	assert.Nil(t, r.Projection)
	assert.Empty(t, r.Recommendations)
}

// ══════════════════════════════════════════════════════════════════════════════
// COHORT AND COURSE
// ══════════════════════════════════════════════════════════════════════════════

func cohortPoint(sem string, gpa, score float64) grading.TrendPoint {
	return grading.TrendPoint{AcademicYear: "2023-2024", Semester: sem, SemesterGPA: gpa, AverageScore: score}
}

func TestAnalyzer_AnalyzeCohort(t *testing.T) {
	a := newTestAnalyzer(t)
	students := map[string][]grading.TrendPoint{
		"s1": {cohortPoint("1", 3.0, 80), cohortPoint("2", 3.4, 85)},
		"s2": {cohortPoint("1", 2.0, 70), cohortPoint("2", 2.2, 72)},
		"s3": {cohortPoint("1", 0, 0)},
	}

	r := a.AnalyzeCohort(students)

	require.Len(t, r.Terms, 2)
	first := r.Terms[0]
	assert.Equal(t, "1", first.Semester)
	assert.Equal(t, 2.5, first.AverageGPA)
	assert.Equal(t, 2.5, first.MedianGPA)
	assert.Equal(t, 0.5, first.GPAStdDev)
	assert.Equal(t, 3, first.StudentCount)
	assert.Equal(t, 2, first.ActiveStudents)
	assert.Equal(t, 1.0, first.GPARange)
	assert.Equal(t, 2.8, r.Terms[1].AverageGPA)

	assert.Equal(t, StatusOK, r.Trend.Status)
	assert.Equal(t, DirectionImproving, r.Trend.Direction)
	assert.Equal(t, StabilityModerate, r.Trend.Stability)
	assert.Equal(t, 0.3, r.Trend.Improvement)
	assert.Len(t, r.Recommendations, 1)
}

func TestAnalyzer_AnalyzeCohortSingleTerm(t *testing.T) {
	r := newTestAnalyzer(t).AnalyzeCohort(map[string][]grading.TrendPoint{
		"s1": {cohortPoint("1", 3.0, 80)},
	})

	assert.Len(t, r.Terms, 1)
	assert.Equal(t, StatusInsufficientData, r.Trend.Status)
	assert.Empty(t, r.Recommendations)
}

func TestAnalyzer_AnalyzeCourse(t *testing.T) {
	a := newTestAnalyzer(t)
	records := []grading.ScoreRecord{
		grading.NewScoreRecord("s1", "CS101", 90, 100, 3, "2022-2023", "1"),
		grading.NewScoreRecord("s2", "CS101", 70, 100, 3, "2022-2023", "1"),
		grading.NewScoreRecord("s3", "CS101", 60, 100, 3, "2023-2024", "1"),
		grading.NewScoreRecord("s4", "CS101", 50, 100, 3, "2023-2024", "1"),
		grading.NewScoreRecord("s1", "MA101", 99, 100, 4, "2023-2024", "1"),
		grading.NewScoreRecord("s5", "CS101", 50, 0, 3, "2023-2024", "1"),
	}

	r := a.AnalyzeCourse("CS101", records)

	assert.Equal(t, 1, r.SkippedRecords)
	require.Len(t, r.Terms, 2)
	assert.Equal(t, 3.0, r.Terms[0].AverageGPA)
	assert.Equal(t, 100.0, r.Terms[0].PassRate)
	assert.Equal(t, 50.0, r.Terms[0].ExcellentRate)
	assert.Equal(t, 0.5, r.Terms[1].AverageGPA)
	assert.Equal(t, 50.0, r.Terms[1].PassRate)
	assert.Equal(t, 2, r.Terms[1].StudentCount)
	assert.Equal(t, DirectionDeclining, r.Trend.Direction)
	assert.Len(t, r.Recommendations, 1)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONFIG
// ══════════════════════════════════════════════════════════════════════════════

func TestNewAnalyzer_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero max GPA", func(c *Config) { c.MaxGPA = 0 }},
		{"loose consistency", func(c *Config) { c.ConsistencyShare = 0.4 }},
		{"zero window", func(c *Config) { c.MovingAverageWindow = 0 }},
		{"strength order", func(c *Config) { c.StrongTrend = 0.1 }},
		{"warning below low", func(c *Config) { c.Risk.WarningGPA = 1.5 }},
		{"target above max", func(c *Config) { c.ProjectionTargets = []float64{4.5} }},
		{"cohort bounds", func(c *Config) { c.Cohort.ModerateBelow = 0.05 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			_, err := NewAnalyzer(cfg, grading.MustDefaultScale())
			assert.ErrorIs(t, err, shared.ErrConfiguration)
		})
	}

	_, err := NewAnalyzer(DefaultConfig(), nil)
	assert.ErrorIs(t, err, shared.ErrConfiguration)
}

func TestAnalyzer_ConfigIsCopied(t *testing.T) {
	a := newTestAnalyzer(t)

	cfg := a.Config()
	cfg.ProjectionTargets[0] = 1.0

	assert.Equal(t, 3.0, a.Config().ProjectionTargets[0])
}
