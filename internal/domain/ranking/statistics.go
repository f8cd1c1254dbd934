package ranking

import (
	"slices"

	"github.com/unigrade/grade-analytics/internal/domain/distribution"
	"github.com/unigrade/grade-analytics/internal/domain/shared"
)

// Bucket is one GPA range in the cohort distribution. Lower bounds are
// inclusive; the first bucket has no upper bound.
type Bucket struct {
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Count int     `json:"count"`
}

// DefaultBuckets lists the GPA ranges reported by Statistics, best first.
var DefaultBuckets = []Bucket{
	{Label: "3.5-4.0", Min: 3.5},
	{Label: "3.0-3.49", Min: 3.0},
	{Label: "2.5-2.99", Min: 2.5},
	{Label: "2.0-2.49", Min: 2.0},
	{Label: "1.5-1.99", Min: 1.5},
	{Label: "1.0-1.49", Min: 1.0},
	{Label: "0.0-0.99", Min: 0},
}

// CohortStatistics summarizes the GPAs of a ranked cohort.
type CohortStatistics struct {
	TotalStudents int      `json:"total_students"`
	AverageGPA    float64  `json:"average_gpa"`
	MedianGPA     float64  `json:"median_gpa"`
	StdDeviation  float64  `json:"std_deviation"`
	HighestGPA    float64  `json:"highest_gpa"`
	LowestGPA     float64  `json:"lowest_gpa"`
	GPARange      float64  `json:"gpa_range"`
	AboveAverage  int      `json:"students_above_average"`
	BelowAverage  int      `json:"students_below_average"`
	Distribution  []Bucket `json:"gpa_distribution"`
}

// Statistics computes cohort statistics. Averages are population-style and
// rounded to two decimals; an empty ranking yields zero values.
func Statistics(r *Ranking) CohortStatistics {
	gpas := r.GPAs()
	stats := CohortStatistics{
		TotalStudents: len(gpas),
		Distribution:  bucketize(gpas),
	}
	if len(gpas) == 0 {
		return stats
	}

	mean, stdDev := distribution.MeanStdDev(gpas)
	for _, g := range gpas {
		switch {
		case g > mean:
			stats.AboveAverage++
		case g < mean:
			stats.BelowAverage++
		}
	}

	stats.AverageGPA = shared.Round(mean, 2)
	stats.MedianGPA = shared.Round(distribution.Percentile(gpas, 50), 2)
	stats.StdDeviation = shared.Round(stdDev, 2)
	stats.HighestGPA = slices.Max(gpas)
	stats.LowestGPA = slices.Min(gpas)
	stats.GPARange = shared.Round(stats.HighestGPA-stats.LowestGPA, 2)
	return stats
}

func bucketize(gpas []float64) []Bucket {
	out := slices.Clone(DefaultBuckets)
	for _, g := range gpas {
		for i := range out {
			if g >= out[i].Min {
				out[i].Count++
				break
			}
		}
	}
	return out
}
