// Package distribution describes score sets: descriptive statistics,
// histograms, IQR outliers, concentration labels and grade distributions.
// All spread measures are population-style (divide by N).
package distribution

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/unigrade/grade-analytics/internal/domain/shared"
)

// Summary holds descriptive statistics of a score set, rounded half-up to
// two decimals.
type Summary struct {
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	Mode     float64 `json:"mode"`
	StdDev   float64 `json:"std_dev"`
	Variance float64 `json:"variance"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Range    float64 `json:"range"`
	Q1       float64 `json:"q1"`
	Q3       float64 `json:"q3"`
	IQR      float64 `json:"iqr"`
	Count    int     `json:"count"`
}

// Describe computes a Summary. An empty input yields the zero Summary.
func Describe(scores []float64) Summary {
	n := len(scores)
	if n == 0 {
		return Summary{}
	}

	sorted := slices.Clone(scores)
	slices.Sort(sorted)

	mean, variance := stat.PopMeanVariance(sorted, nil)
	q1 := percentileSorted(sorted, 25)
	q3 := percentileSorted(sorted, 75)

	return Summary{
		Mean:     round2(mean),
		Median:   round2(medianSorted(sorted)),
		Mode:     round2(modeSorted(sorted)),
		StdDev:   round2(math.Sqrt(variance)),
		Variance: round2(variance),
		Min:      round2(sorted[0]),
		Max:      round2(sorted[n-1]),
		Range:    round2(sorted[n-1] - sorted[0]),
		Q1:       round2(q1),
		Q3:       round2(q3),
		IQR:      round2(q3 - q1),
		Count:    n,
	}
}

// Percentile returns the p-th percentile (0..100) using linear
// interpolation between the closest ranks: position = p/100*(n-1).
// The input is not modified. An empty input yields 0.
func Percentile(scores []float64, p float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sorted := slices.Clone(scores)
	slices.Sort(sorted)
	return percentileSorted(sorted, p)
}

// MeanStdDev returns the mean and population standard deviation.
func MeanStdDev(scores []float64) (mean, stdDev float64) {
	if len(scores) == 0 {
		return 0, 0
	}
	mean, variance := stat.PopMeanVariance(scores, nil)
	return mean, math.Sqrt(variance)
}

func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	pos := shared.Clamp(p, 0, 100) / 100 * float64(n-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper || upper >= n {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

func medianSorted(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// modeSorted returns the most frequent value; ties resolve to the smallest.
func modeSorted(sorted []float64) float64 {
	best, bestCount := sorted[0], 0
	for i := 0; i < len(sorted); {
		j := i + 1
		for j < len(sorted) && sorted[j] == sorted[i] {
			j++
		}
		if j-i > bestCount {
			best, bestCount = sorted[i], j-i
		}
		i = j
	}
	return best
}

func round2(v float64) float64 {
	return shared.Round(v, 2)
}
