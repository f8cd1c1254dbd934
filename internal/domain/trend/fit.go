package trend

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/unigrade/grade-analytics/internal/domain/shared"
)

// Line is a least-squares fit over x = 0..n-1.
type Line struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RSquared  float64 `json:"r_squared"`
}

// Fit regresses ys on their index positions. Fewer than two points yield the
// zero Line. A flat series has R² 0.
func Fit(ys []float64) Line {
	n := len(ys)
	if n < 2 {
		return Line{}
	}

	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}

	intercept, slope := stat.LinearRegression(xs, ys, nil, false)
	r2 := stat.RSquared(xs, ys, nil, intercept, slope)
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		r2 = 0
	}

	return Line{
		Slope:     slope,
		Intercept: intercept,
		RSquared:  shared.Clamp(r2, 0, 1),
	}
}

// At evaluates the line at index x.
func (l Line) At(x float64) float64 {
	return l.Intercept + l.Slope*x
}

// Direction classifies a slope against a symmetric threshold.
func Direction(slope, threshold float64) string {
	switch {
	case slope > threshold:
		return DirectionImproving
	case slope < -threshold:
		return DirectionDeclining
	default:
		return DirectionStable
	}
}
