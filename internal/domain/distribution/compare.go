package distribution

import (
	"cmp"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/unigrade/grade-analytics/internal/domain/grading"
)

// ══════════════════════════════════════════════════════════════════════════════
// COHORT COMPARISON
// ══════════════════════════════════════════════════════════════════════════════

// Consistency labels how close cohort averages are to each other.
type Consistency string

const (
	ConsistencyHigh   Consistency = "high"
	ConsistencyMedium Consistency = "medium"
	ConsistencyLow    Consistency = "low"
	ConsistencyNoData Consistency = "no data"
)

// ConsistencyCuts are the between-cohort variance cut points.
type ConsistencyCuts struct {
	HighBelow   float64 `json:"high_below"`
	MediumBelow float64 `json:"medium_below"`
}

// DefaultConsistencyCuts returns the 5 / 15 cut points.
func DefaultConsistencyCuts() ConsistencyCuts {
	return ConsistencyCuts{HighBelow: 5, MediumBelow: 15}
}

// Label classifies a between-cohort variance.
func (c ConsistencyCuts) Label(variance float64) Consistency {
	switch {
	case variance < c.HighBelow:
		return ConsistencyHigh
	case variance < c.MediumBelow:
		return ConsistencyMedium
	default:
		return ConsistencyLow
	}
}

// CohortSummary is one cohort's line in a comparison.
type CohortSummary struct {
	CohortID     string  `json:"cohort_id"`
	Rank         int     `json:"rank"`
	AverageScore float64 `json:"average_score"`
	MedianScore  float64 `json:"median_score"`
	StdDeviation float64 `json:"std_deviation"`
	StudentCount int     `json:"student_count"`
	PassRate     float64 `json:"pass_rate"`
	TenPoint     []Band  `json:"ten_point_distribution"`
}

// Comparison ranks cohorts by average score.
type Comparison struct {
	Cohorts        []CohortSummary `json:"ranked_cohorts"`
	BestCohort     string          `json:"best_cohort,omitempty"`
	WorstCohort    string          `json:"worst_cohort,omitempty"`
	PerformanceGap float64         `json:"performance_gap"`
	OverallAverage float64         `json:"overall_average"`

	// VarianceBetween is the population variance of the cohort averages.
	VarianceBetween float64     `json:"variance_between_cohorts"`
	Consistency     Consistency `json:"performance_consistency"`

	// Unscored lists cohorts without a single valid score; they are not
	// ranked.
	Unscored       []string `json:"unscored_cohorts"`
	SkippedRecords int      `json:"skipped_records"`
}

// CompareCohorts summarizes each cohort's valid scores and ranks the
// cohorts by average, best first, ties by cohort ID. The gap is best minus
// worst average and is 0 with fewer than two ranked cohorts.
func (a *Analyzer) CompareCohorts(cohorts map[string][]grading.ScoreRecord) Comparison {
	out := Comparison{Cohorts: []CohortSummary{}, Unscored: []string{}}

	for id, records := range cohorts {
		valid, skipped := grading.Partition(records)
		out.SkippedRecords += skipped
		if len(valid) == 0 {
			out.Unscored = append(out.Unscored, id)
			continue
		}

		pcts := make([]float64, len(valid))
		students := make(map[string]struct{})
		for i, r := range valid {
			pcts[i] = r.Percentage()
			students[r.StudentID] = struct{}{}
		}
		report := a.Analyze(pcts)
		out.Cohorts = append(out.Cohorts, CohortSummary{
			CohortID:     id,
			AverageScore: report.Summary.Mean,
			MedianScore:  report.Summary.Median,
			StdDeviation: report.Summary.StdDev,
			StudentCount: len(students),
			PassRate:     report.Rates.Pass,
			TenPoint:     report.TenPoint,
		})
	}
	slices.Sort(out.Unscored)

	if len(out.Cohorts) == 0 {
		out.Consistency = ConsistencyNoData
		return out
	}

	slices.SortFunc(out.Cohorts, func(x, y CohortSummary) int {
		if c := cmp.Compare(y.AverageScore, x.AverageScore); c != 0 {
			return c
		}
		return cmp.Compare(x.CohortID, y.CohortID)
	})
	means := make([]float64, len(out.Cohorts))
	for i := range out.Cohorts {
		out.Cohorts[i].Rank = i + 1
		means[i] = out.Cohorts[i].AverageScore
	}

	best, worst := out.Cohorts[0], out.Cohorts[len(out.Cohorts)-1]
	out.BestCohort, out.WorstCohort = best.CohortID, worst.CohortID
	if len(out.Cohorts) > 1 {
		out.PerformanceGap = round2(best.AverageScore - worst.AverageScore)
	}

	mean, variance := stat.PopMeanVariance(means, nil)
	out.OverallAverage = round2(mean)
	out.VarianceBetween = round2(variance)
	out.Consistency = a.cfg.Consistency.Label(out.VarianceBetween)
	return out
}
