package trend

import (
	"slices"

	"github.com/unigrade/grade-analytics/internal/domain/distribution"
	"github.com/unigrade/grade-analytics/internal/domain/grading"
	"github.com/unigrade/grade-analytics/internal/domain/shared"
)

const (
	StabilityStable   = "stable"
	StabilityModerate = "moderate"
	StabilityUnstable = "unstable"
)

// ══════════════════════════════════════════════════════════════════════════════
// COHORT
// ══════════════════════════════════════════════════════════════════════════════

// CohortTerm aggregates one term over the students of a cohort. GPA and score
// statistics cover students with a positive value only.
type CohortTerm struct {
	AcademicYear   string  `json:"academic_year"`
	Semester       string  `json:"semester"`
	AverageGPA     float64 `json:"class_average_gpa"`
	AverageScore   float64 `json:"class_average_score"`
	MedianGPA      float64 `json:"class_median_gpa"`
	MedianScore    float64 `json:"class_median_score"`
	GPAStdDev      float64 `json:"gpa_std_dev"`
	ScoreStdDev    float64 `json:"score_std_dev"`
	StudentCount   int     `json:"student_count"`
	ActiveStudents int     `json:"active_students"`
	HighestGPA     float64 `json:"highest_gpa"`
	LowestGPA      float64 `json:"lowest_gpa"`
	GPARange       float64 `json:"gpa_range"`
}

// SeriesTrend summarizes how a per-term average moves.
type SeriesTrend struct {
	Status      string  `json:"status"`
	Direction   string  `json:"trend"`
	GPASlope    float64 `json:"gpa_slope"`
	ScoreSlope  float64 `json:"score_slope"`
	Stability   string  `json:"stability"`
	Volatility  float64 `json:"gpa_volatility"`
	Improvement float64 `json:"overall_improvement"`
}

// CohortReport is the trend of a class or cohort.
type CohortReport struct {
	Terms           []CohortTerm `json:"class_trends"`
	Trend           SeriesTrend  `json:"class_trend_analysis"`
	Recommendations []string     `json:"class_recommendations"`
}

// AnalyzeCohort merges per-student term series into per-term cohort averages
// and classifies their direction and stability. Terms where no student has
// a positive GPA and score are omitted.
func (a *Analyzer) AnalyzeCohort(students map[string][]grading.TrendPoint) CohortReport {
	byTerm := make(map[grading.Term][]grading.TrendPoint)
	for _, points := range students {
		for _, p := range points {
			byTerm[p.Term()] = append(byTerm[p.Term()], p)
		}
	}

	terms := make([]grading.Term, 0, len(byTerm))
	for t := range byTerm {
		terms = append(terms, t)
	}
	slices.SortFunc(terms, grading.Term.Compare)

	report := CohortReport{Terms: make([]CohortTerm, 0, len(terms))}
	for _, t := range terms {
		members := byTerm[t]
		var gpas, scores []float64
		for _, p := range members {
			if p.SemesterGPA > 0 {
				gpas = append(gpas, p.SemesterGPA)
			}
			if p.AverageScore > 0 {
				scores = append(scores, p.AverageScore)
			}
		}
		if len(gpas) == 0 || len(scores) == 0 {
			continue
		}

		gpaMean, gpaSD := distribution.MeanStdDev(gpas)
		scoreMean, scoreSD := distribution.MeanStdDev(scores)
		hi, lo := slices.Max(gpas), slices.Min(gpas)
		report.Terms = append(report.Terms, CohortTerm{
			AcademicYear:   t.AcademicYear,
			Semester:       t.Semester,
			AverageGPA:     shared.Round(gpaMean, 3),
			AverageScore:   shared.Round(scoreMean, 2),
			MedianGPA:      shared.Round(distribution.Percentile(gpas, 50), 3),
			MedianScore:    shared.Round(distribution.Percentile(scores, 50), 2),
			GPAStdDev:      shared.Round(gpaSD, 3),
			ScoreStdDev:    shared.Round(scoreSD, 2),
			StudentCount:   len(members),
			ActiveStudents: len(gpas),
			HighestGPA:     hi,
			LowestGPA:      lo,
			GPARange:       shared.Round(hi-lo, 3),
		})
	}

	gpas := make([]float64, len(report.Terms))
	scores := make([]float64, len(report.Terms))
	for i, t := range report.Terms {
		gpas[i], scores[i] = t.AverageGPA, t.AverageScore
	}
	report.Trend = a.seriesTrend(gpas, scores)

	report.Recommendations = []string{}
	switch report.Trend.Direction {
	case DirectionDeclining:
		report.Recommendations = append(report.Recommendations, "Cohort grades are trending down; strengthen teaching oversight")
	case DirectionImproving:
		report.Recommendations = append(report.Recommendations, "The cohort is performing well; keep the current teaching strategy")
	}
	if report.Trend.Stability == StabilityUnstable {
		report.Recommendations = append(report.Recommendations, "Grades fluctuate considerably; watch the stability of student learning")
	}
	return report
}

// seriesTrend classifies per-term averages with the cohort thresholds.
func (a *Analyzer) seriesTrend(gpas, scores []float64) SeriesTrend {
	if len(gpas) < MinDirectionPoints {
		return SeriesTrend{Status: StatusInsufficientData, Direction: StatusInsufficientData}
	}

	th := a.cfg.Cohort
	gpaLine := Fit(gpas)
	_, sd := distribution.MeanStdDev(gpas)

	stability := StabilityUnstable
	switch {
	case sd < th.StableBelow:
		stability = StabilityStable
	case sd < th.ModerateBelow:
		stability = StabilityModerate
	}

	return SeriesTrend{
		Status:      StatusOK,
		Direction:   Direction(gpaLine.Slope, th.DirectionSlope),
		GPASlope:    shared.Round(gpaLine.Slope, 4),
		ScoreSlope:  shared.Round(Fit(scores).Slope, 4),
		Stability:   stability,
		Volatility:  shared.Round(sd, 3),
		Improvement: shared.Round(gpas[len(gpas)-1]-gpas[0], 3),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// COURSE
// ══════════════════════════════════════════════════════════════════════════════

// CourseTerm aggregates one offering of a course.
type CourseTerm struct {
	AcademicYear  string  `json:"academic_year"`
	Semester      string  `json:"semester"`
	StudentCount  int     `json:"student_count"`
	AverageScore  float64 `json:"average_score"`
	MedianScore   float64 `json:"median_score"`
	AverageGPA    float64 `json:"average_gpa"`
	PassRate      float64 `json:"pass_rate"`
	ExcellentRate float64 `json:"excellent_rate"`
	ScoreStdDev   float64 `json:"score_std_dev"`
	HighestScore  float64 `json:"highest_score"`
	LowestScore   float64 `json:"lowest_score"`
	ScoreRange    float64 `json:"score_range"`
}

// CourseReport is the trend of one course across its offerings.
type CourseReport struct {
	CourseID        string       `json:"course_id"`
	Terms           []CourseTerm `json:"course_trends"`
	Trend           SeriesTrend  `json:"course_trend_analysis"`
	SkippedRecords  int          `json:"skipped_records"`
	Recommendations []string     `json:"course_recommendations"`
}

// AnalyzeCourse groups the valid records of one course by term and
// classifies how its average grade point moves.
func (a *Analyzer) AnalyzeCourse(courseID string, records []grading.ScoreRecord) CourseReport {
	valid, skipped := grading.Partition(records)

	byTerm := make(map[grading.Term][]grading.ScoreRecord)
	for _, r := range valid {
		if courseID != "" && r.CourseID != courseID {
			continue
		}
		byTerm[r.Term()] = append(byTerm[r.Term()], r)
	}
	terms := make([]grading.Term, 0, len(byTerm))
	for t := range byTerm {
		terms = append(terms, t)
	}
	slices.SortFunc(terms, grading.Term.Compare)

	report := CourseReport{
		CourseID:       courseID,
		Terms:          make([]CourseTerm, 0, len(terms)),
		SkippedRecords: skipped,
	}
	for _, t := range terms {
		rs := byTerm[t]
		pcts := make([]float64, len(rs))
		var gpaSum float64
		var pass, excellent int
		for i, r := range rs {
			pcts[i] = r.Percentage()
			gpaSum += a.scale.GPAPoints(r.ScoreValue(), r.MaxScore)
			if a.scale.IsPassing(pcts[i]) {
				pass++
			}
			if pcts[i] >= a.cfg.ExcellentPercent {
				excellent++
			}
		}

		n := float64(len(rs))
		mean, sd := distribution.MeanStdDev(pcts)
		hi, lo := slices.Max(pcts), slices.Min(pcts)
		report.Terms = append(report.Terms, CourseTerm{
			AcademicYear:  t.AcademicYear,
			Semester:      t.Semester,
			StudentCount:  len(rs),
			AverageScore:  shared.Round(mean, 2),
			MedianScore:   shared.Round(distribution.Percentile(pcts, 50), 2),
			AverageGPA:    shared.Round(gpaSum/n, 3),
			PassRate:      shared.Round(float64(pass)/n*100, 2),
			ExcellentRate: shared.Round(float64(excellent)/n*100, 2),
			ScoreStdDev:   shared.Round(sd, 2),
			HighestScore:  shared.Round(hi, 2),
			LowestScore:   shared.Round(lo, 2),
			ScoreRange:    shared.Round(hi-lo, 2),
		})
	}

	gpas := make([]float64, len(report.Terms))
	scores := make([]float64, len(report.Terms))
	for i, t := range report.Terms {
		gpas[i], scores[i] = t.AverageGPA, t.AverageScore
	}
	report.Trend = a.seriesTrend(gpas, scores)

	report.Recommendations = []string{}
	switch report.Trend.Direction {
	case DirectionDeclining:
		report.Recommendations = append(report.Recommendations, "Course grades are trending down; review the teaching approach")
	case DirectionImproving:
		report.Recommendations = append(report.Recommendations, "Course outcomes are improving; keep the current approach")
	}
	return report
}
