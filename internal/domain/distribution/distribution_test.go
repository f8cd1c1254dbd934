package distribution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unigrade/grade-analytics/internal/domain/grading"
	"github.com/unigrade/grade-analytics/internal/domain/shared"
)

func TestDescribe(t *testing.T) {
	s := Describe([]float64{90, 60, 100, 80, 70})

	assert.Equal(t, 80.0, s.Mean)
	assert.Equal(t, 80.0, s.Median)
	assert.InDelta(t, 70.0, s.Q1, 1e-9)
	assert.InDelta(t, 90.0, s.Q3, 1e-9)
	assert.Equal(t, 20.0, s.IQR)
	assert.Equal(t, 200.0, s.Variance)
	assert.Equal(t, 14.14, s.StdDev)
	assert.Equal(t, 60.0, s.Min)
	assert.Equal(t, 100.0, s.Max)
	assert.Equal(t, 40.0, s.Range)
	assert.Equal(t, 5, s.Count)
	assert.Greater(t, s.StdDev, 0.0)
}

func TestDescribe_Empty(t *testing.T) {
	assert.Equal(t, Summary{}, Describe(nil))
}

func TestDescribe_EvenCountMedianAndMode(t *testing.T) {
	s := Describe([]float64{4, 1, 3, 3, 1, 2})

	assert.Equal(t, 2.5, s.Median)
	// 1 and 3 both appear twice; the smaller wins.
	assert.Equal(t, 1.0, s.Mode)
}

func TestDescribe_QuartileOrdering(t *testing.T) {
	sets := [][]float64{
		{55},
		{12, 99},
		{61.5, 72.25, 88, 91, 45, 77},
		{100, 100, 100, 0},
	}
	for _, set := range sets {
		s := Describe(set)
		assert.LessOrEqual(t, s.Q1, s.Median)
		assert.LessOrEqual(t, s.Median, s.Q3)
		assert.GreaterOrEqual(t, s.IQR, 0.0)
	}
}

func TestPercentile(t *testing.T) {
	scores := []float64{10, 20, 30, 40}

	assert.Equal(t, 10.0, Percentile(scores, 0))
	assert.Equal(t, 40.0, Percentile(scores, 100))
	assert.InDelta(t, 25.0, Percentile(scores, 50), 1e-9)
	assert.InDelta(t, 17.5, Percentile(scores, 25), 1e-9)
	assert.Equal(t, 0.0, Percentile(nil, 50))
	assert.Equal(t, []float64{10, 20, 30, 40}, scores)
}

func TestDetectOutliers(t *testing.T) {
	r := DetectOutliers([]float64{60, 70, 80, 90, 100, 200}, 1.5)

	require.True(t, r.Evaluated)
	assert.Equal(t, []float64{200}, r.Outliers)
	assert.Equal(t, 1, r.Count)
	assert.Equal(t, 72.5, r.Q1)
	assert.Equal(t, 97.5, r.Q3)
	assert.Equal(t, 135.0, r.UpperBound)
}

func TestDetectOutliers_NoneInRegularSet(t *testing.T) {
	r := DetectOutliers([]float64{60, 70, 80, 90, 100}, 1.5)

	assert.True(t, r.Evaluated)
	assert.Empty(t, r.Outliers)
}

func TestDetectOutliers_SmallSample(t *testing.T) {
	r := DetectOutliers([]float64{1, 2, 500}, 1.5)

	assert.False(t, r.Evaluated)
	assert.Empty(t, r.Outliers)
	assert.Equal(t, "IQR", r.Method)
}

func TestHistogram(t *testing.T) {
	bins := Histogram([]float64{60, 62, 65, 70, 74, 75}, 5)

	require.Len(t, bins, 3)
	assert.Equal(t, "60-65", bins[0].Label)
	assert.Equal(t, 2, bins[0].Count)
	assert.Equal(t, 1, bins[1].Count)
	// The last bin is closed and catches the maximum.
	assert.Equal(t, 70.0, bins[2].Start)
	assert.Equal(t, 75.0, bins[2].End)
	assert.Equal(t, 3, bins[2].Count)

	total := 0
	for _, b := range bins {
		total += b.Count
	}
	assert.Equal(t, 6, total)
}

func TestHistogram_Edges(t *testing.T) {
	assert.Empty(t, Histogram(nil, 5))
	assert.Empty(t, Histogram([]float64{1, 2}, 0))

	same := Histogram([]float64{80, 80, 80}, 5)
	require.Len(t, same, 1)
	assert.Equal(t, 3, same[0].Count)

	partial := Histogram([]float64{0, 7}, 5)
	require.Len(t, partial, 2)
	assert.Equal(t, 7.0, partial[1].End)
	assert.Equal(t, 1, partial[1].Count)
}

func TestConcentrate(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   Level
	}{
		{"tight", []float64{80, 81, 79, 80}, LevelHighlyConcentrated},
		{"moderate", []float64{60, 70, 80, 90, 100}, LevelModeratelyConcentrated},
		{"wide", []float64{10, 50, 90, 100, 20}, LevelDispersed},
		{"empty", nil, LevelNoData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Concentrate(tt.scores, DefaultThresholds()).Level)
		})
	}
}

func TestConcentrate_Shares(t *testing.T) {
	c := Concentrate([]float64{60, 70, 80, 90, 100}, DefaultThresholds())

	assert.Equal(t, 60.0, c.Within1Std)
	assert.Equal(t, 100.0, c.Within2Std)
	assert.Equal(t, 14.14, c.StdDev)
}

func newTestAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(DefaultConfig(), grading.MustDefaultScale())
	require.NoError(t, err)
	return a
}

func TestAnalyzer_Analyze(t *testing.T) {
	a := newTestAnalyzer(t)

	r := a.Analyze([]float64{95, 86, 78, 65, 40})

	assert.Equal(t, 1, r.Letters[grading.LetterA])
	assert.Equal(t, 1, r.Letters[grading.LetterB])
	assert.Equal(t, 1, r.Letters[grading.LetterC])
	assert.Equal(t, 1, r.Letters[grading.LetterD])
	assert.Equal(t, 1, r.Letters[grading.LetterF])
	assert.Equal(t, 1, r.FiveLevels[grading.FiveLevelFail])

	assert.Equal(t, 80.0, r.Rates.Pass)
	assert.Equal(t, 60.0, r.Rates.Good)
	assert.Equal(t, 40.0, r.Rates.Excellent)
	assert.Equal(t, 20.0, r.Rates.Fail)

	counts := map[string]int{}
	for _, b := range r.TenPoint {
		counts[b.Label] = b.Count
	}
	assert.Len(t, r.TenPoint, 10)
	assert.Equal(t, 1, counts["90-100"])
	assert.Equal(t, 1, counts["80-89"])
	assert.Equal(t, 1, counts["40-49"])
	assert.Equal(t, "spread", r.Spread)
}

func TestAnalyzer_AnalyzeEmpty(t *testing.T) {
	a := newTestAnalyzer(t)

	r := a.Analyze(nil)

	assert.Equal(t, 0, r.Summary.Count)
	assert.Empty(t, r.Histogram)
	assert.Equal(t, Rates{}, r.Rates)
	assert.Len(t, r.Letters, 5)
}

func TestAnalyzer_AnalyzeCohort(t *testing.T) {
	a := newTestAnalyzer(t)
	bad := grading.NewScoreRecord("s3", "CS101", 10, 0, 3, "2023-2024", "1")
	records := []grading.ScoreRecord{
		grading.NewScoreRecord("s1", "MA101", 90, 100, 4, "2023-2024", "1"),
		grading.NewScoreRecord("s1", "CS101", 80, 100, 3, "2023-2024", "1"),
		grading.NewScoreRecord("s2", "CS101", 50, 100, 3, "2023-2024", "1"),
		bad,
	}

	r := a.AnalyzeCohort(records)

	assert.Equal(t, 1, r.SkippedRecords)
	assert.Equal(t, 3, r.Overall.Summary.Count)
	require.Len(t, r.Courses, 2)
	assert.Equal(t, "CS101", r.Courses[0].CourseID)
	assert.Equal(t, 2, r.Courses[0].StudentCount)
	assert.Equal(t, 50.0, r.Courses[0].PassRate)
	require.Len(t, r.Students, 2)
	assert.Equal(t, "s1", r.Students[0].StudentID)
	assert.Equal(t, 85.0, r.Students[0].AverageScore)
}

func TestNewAnalyzer_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero bin width", func(c *Config) { c.BinWidth = 0 }},
		{"negative multiplier", func(c *Config) { c.OutlierMultiplier = -1 }},
		{"inverted concentration", func(c *Config) { c.Concentration = Thresholds{HighlyBelow: 15, ModeratelyBelow: 8} }},
		{"rates out of order", func(c *Config) { c.GoodPercent = 50 }},
		{"inverted consistency cuts", func(c *Config) { c.Consistency = ConsistencyCuts{HighBelow: 15, MediumBelow: 5} }},
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

func cohortOf(scores map[string]float64) []grading.ScoreRecord {
	var out []grading.ScoreRecord
	for id, s := range scores {
		out = append(out, grading.NewScoreRecord(id, "MA101", s, 100, 4, "2023-2024", "1"))
	}
	return out
}

func TestAnalyzer_CompareCohorts(t *testing.T) {
	a := newTestAnalyzer(t)

	c := a.CompareCohorts(map[string][]grading.ScoreRecord{
		"CS1":   cohortOf(map[string]float64{"s1": 90, "s2": 70}),
		"CS2":   cohortOf(map[string]float64{"s3": 86, "s4": 78}),
		"CS3":   cohortOf(map[string]float64{"s5": 60}),
		"EMPTY": {grading.NewScoreRecord("s6", "MA101", 50, 0, 4, "2023-2024", "1")},
	})

	require.Len(t, c.Cohorts, 3)
	assert.Equal(t, "CS2", c.Cohorts[0].CohortID)
	assert.Equal(t, 1, c.Cohorts[0].Rank)
	assert.Equal(t, 82.0, c.Cohorts[0].AverageScore)
	assert.Equal(t, "CS1", c.Cohorts[1].CohortID)
	assert.Equal(t, 2, c.Cohorts[1].StudentCount)
	assert.Equal(t, 100.0, c.Cohorts[1].PassRate)
	assert.Len(t, c.Cohorts[1].TenPoint, 10)
	assert.Equal(t, 3, c.Cohorts[2].Rank)

	assert.Equal(t, "CS2", c.BestCohort)
	assert.Equal(t, "CS3", c.WorstCohort)
	assert.Equal(t, 22.0, c.PerformanceGap)
	assert.Equal(t, 74.0, c.OverallAverage)
	assert.Equal(t, 98.67, c.VarianceBetween)
	assert.Equal(t, ConsistencyLow, c.Consistency)
	assert.Equal(t, []string{"EMPTY"}, c.Unscored)
	assert.Equal(t, 1, c.SkippedRecords)
}

func TestAnalyzer_CompareCohortsConsistency(t *testing.T) {
	a := newTestAnalyzer(t)

	near := a.CompareCohorts(map[string][]grading.ScoreRecord{
		"A": cohortOf(map[string]float64{"s1": 80}),
		"B": cohortOf(map[string]float64{"s2": 82}),
	})
	assert.Equal(t, 1.0, near.VarianceBetween)
	assert.Equal(t, ConsistencyHigh, near.Consistency)
	assert.Equal(t, 2.0, near.PerformanceGap)

	apart := a.CompareCohorts(map[string][]grading.ScoreRecord{
		"A": cohortOf(map[string]float64{"s1": 80}),
		"B": cohortOf(map[string]float64{"s2": 86}),
	})
	assert.Equal(t, 9.0, apart.VarianceBetween)
	assert.Equal(t, ConsistencyMedium, apart.Consistency)
}

func TestAnalyzer_CompareCohortsEdges(t *testing.T) {
	a := newTestAnalyzer(t)

	single := a.CompareCohorts(map[string][]grading.ScoreRecord{"A": cohortOf(map[string]float64{"s1": 70})})
	assert.Equal(t, "A", single.BestCohort)
	assert.Equal(t, "A", single.WorstCohort)
	assert.Zero(t, single.PerformanceGap)
	assert.Zero(t, single.VarianceBetween)
	assert.Equal(t, ConsistencyHigh, single.Consistency)

	tied := a.CompareCohorts(map[string][]grading.ScoreRecord{
		"B": cohortOf(map[string]float64{"s1": 70}),
		"A": cohortOf(map[string]float64{"s2": 70}),
	})
	assert.Equal(t, "A", tied.Cohorts[0].CohortID)

	none := a.CompareCohorts(nil)
	assert.Empty(t, none.Cohorts)
	assert.Empty(t, none.BestCohort)
	assert.Equal(t, ConsistencyNoData, none.Consistency)
}

func TestConsistencyCuts_Label(t *testing.T) {
	cuts := DefaultConsistencyCuts()

	assert.Equal(t, ConsistencyHigh, cuts.Label(4.99))
	assert.Equal(t, ConsistencyMedium, cuts.Label(5))
	assert.Equal(t, ConsistencyMedium, cuts.Label(14.99))
	assert.Equal(t, ConsistencyLow, cuts.Label(15))
}
