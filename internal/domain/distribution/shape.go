package distribution

import (
	"fmt"
	"math"
	"slices"

	"github.com/unigrade/grade-analytics/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// HISTOGRAM
// ══════════════════════════════════════════════════════════════════════════════

// Bin is one histogram interval [Start, End). The last bin is closed so the
// maximum score is always counted.
type Bin struct {
	Label string  `json:"range"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Count int     `json:"count"`
}

// Histogram bins scores into fixed-width intervals starting at the minimum
// score. All-equal input yields a single bin holding every score. A
// non-positive width or empty input yields no bins.
func Histogram(scores []float64, width float64) []Bin {
	if len(scores) == 0 || width <= 0 || math.IsNaN(width) {
		return []Bin{}
	}

	lo, hi := slices.Min(scores), slices.Max(scores)
	if lo == hi {
		return []Bin{{Label: binLabel(lo, hi), Start: lo, End: hi, Count: len(scores)}}
	}

	bins := make([]Bin, 0, int(math.Ceil((hi-lo)/width)))
	for i := 0; ; i++ {
		start := lo + float64(i)*width
		if start >= hi {
			break
		}
		end := math.Min(start+width, hi)
		bins = append(bins, Bin{Label: binLabel(start, end), Start: start, End: end})
	}

	last := len(bins) - 1
	for _, s := range scores {
		if s == hi {
			bins[last].Count++
			continue
		}
		idx := min(int((s-lo)/width), last)
		// Guard against float drift at interval edges.
		for idx > 0 && s < bins[idx].Start {
			idx--
		}
		for idx < last && s >= bins[idx].End {
			idx++
		}
		bins[idx].Count++
	}
	return bins
}

func binLabel(start, end float64) string {
	return fmt.Sprintf("%d-%d", int(math.Round(start)), int(math.Round(end)))
}

// ══════════════════════════════════════════════════════════════════════════════
// OUTLIERS
// ══════════════════════════════════════════════════════════════════════════════

// MinOutlierSamples is the smallest sample on which outliers are detected.
const MinOutlierSamples = 4

// OutlierReport is the result of the IQR fence test.
type OutlierReport struct {
	Method     string    `json:"method"`
	Outliers   []float64 `json:"outliers"`
	Count      int       `json:"outlier_count"`
	LowerBound float64   `json:"lower_bound"`
	UpperBound float64   `json:"upper_bound"`
	Q1         float64   `json:"q1"`
	Q3         float64   `json:"q3"`
	IQR        float64   `json:"iqr"`
	Evaluated  bool      `json:"evaluated"`
}

// DetectOutliers flags scores outside [Q1 - k*IQR, Q3 + k*IQR]. Samples
// smaller than MinOutlierSamples are not evaluated. Outliers keep their
// input order.
func DetectOutliers(scores []float64, multiplier float64) OutlierReport {
	report := OutlierReport{Method: "IQR", Outliers: []float64{}}
	if len(scores) < MinOutlierSamples {
		return report
	}

	sorted := slices.Clone(scores)
	slices.Sort(sorted)
	q1 := percentileSorted(sorted, 25)
	q3 := percentileSorted(sorted, 75)
	iqr := q3 - q1
	lower := q1 - multiplier*iqr
	upper := q3 + multiplier*iqr

	for _, s := range scores {
		if s < lower || s > upper {
			report.Outliers = append(report.Outliers, s)
		}
	}

	report.Count = len(report.Outliers)
	report.LowerBound = round2(lower)
	report.UpperBound = round2(upper)
	report.Q1 = round2(q1)
	report.Q3 = round2(q3)
	report.IQR = round2(iqr)
	report.Evaluated = true
	return report
}

// ══════════════════════════════════════════════════════════════════════════════
// CONCENTRATION
// ══════════════════════════════════════════════════════════════════════════════

// Level is a qualitative concentration label.
type Level string

const (
	LevelHighlyConcentrated     Level = "highly concentrated"
	LevelModeratelyConcentrated Level = "moderately concentrated"
	LevelDispersed              Level = "dispersed"
	LevelNoData                 Level = "no data"
)

// Thresholds are the standard deviation cut points for concentration
// labels. They are domain conventions, not statistically derived.
type Thresholds struct {
	HighlyBelow     float64 `json:"highly_below"`
	ModeratelyBelow float64 `json:"moderately_below"`
}

// DefaultThresholds returns the 8 / 15 point cut points.
func DefaultThresholds() Thresholds {
	return Thresholds{HighlyBelow: 8, ModeratelyBelow: 15}
}

// Label classifies a standard deviation.
func (t Thresholds) Label(stdDev float64) Level {
	switch {
	case stdDev < t.HighlyBelow:
		return LevelHighlyConcentrated
	case stdDev < t.ModeratelyBelow:
		return LevelModeratelyConcentrated
	default:
		return LevelDispersed
	}
}

// Concentration describes how tightly scores cluster around the mean.
type Concentration struct {
	Level        Level   `json:"concentration_level"`
	StdDev       float64 `json:"standard_deviation"`
	Within1Std   float64 `json:"within_1_std"`
	Within2Std   float64 `json:"within_2_std"`
	MainRangeLow float64 `json:"main_range_low"`
	MainRangeHi  float64 `json:"main_range_high"`
}

// Concentrate labels the score set and reports the share of scores within
// one and two standard deviations of the mean, in percent.
func Concentrate(scores []float64, t Thresholds) Concentration {
	if len(scores) == 0 {
		return Concentration{Level: LevelNoData}
	}

	mean, sd := MeanStdDev(scores)
	var in1, in2 int
	for _, s := range scores {
		d := math.Abs(s - mean)
		if d <= sd {
			in1++
		}
		if d <= 2*sd {
			in2++
		}
	}

	n := float64(len(scores))
	return Concentration{
		Level:        t.Label(sd),
		StdDev:       round2(sd),
		Within1Std:   round1(float64(in1) / n * 100),
		Within2Std:   round1(float64(in2) / n * 100),
		MainRangeLow: round1(mean - sd),
		MainRangeHi:  round1(mean + sd),
	}
}

func round1(v float64) float64 {
	return shared.Round(v, 1)
}
