package trend

import (
	"math"
	"slices"

	"github.com/unigrade/grade-analytics/internal/domain/distribution"
	"github.com/unigrade/grade-analytics/internal/domain/grading"
	"github.com/unigrade/grade-analytics/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LABELS
// ══════════════════════════════════════════════════════════════════════════════

const (
	StatusOK               = "ok"
	StatusInsufficientData = "insufficient_data"

	DirectionImproving = "improving"
	DirectionDeclining = "declining"
	DirectionStable    = "stable"

	ConsistencyIncreasing = "consistently_increasing"
	ConsistencyDecreasing = "consistently_decreasing"
	ConsistencyFluctuates = "fluctuating"

	StrengthStrong   = "strong"
	StrengthModerate = "moderate"
	StrengthWeak     = "weak"

	// MinDirectionPoints and MinForecastPoints are the smallest series on
	// which direction and forecast/confidence are reported.
	MinDirectionPoints = 2
	MinForecastPoints  = 3
)

// ══════════════════════════════════════════════════════════════════════════════
// REPORT
// ══════════════════════════════════════════════════════════════════════════════

// Forecast extrapolates the fitted line beyond the series.
type Forecast struct {
	Status     string  `json:"status"`
	NextTerm   float64 `json:"next_semester_gpa"`
	SecondTerm float64 `json:"next_next_semester_gpa"`
	Method     string  `json:"prediction_method"`
}

// Report describes one chronological GPA series.
type Report struct {
	Status     string `json:"status"`
	DataPoints int    `json:"data_points"`

	Direction     string  `json:"trend"`
	Slope         float64 `json:"slope"`
	Intercept     float64 `json:"intercept"`
	RecentChange  float64 `json:"recent_change"`
	OverallChange float64 `json:"overall_change"`
	ChangeRate    float64 `json:"change_rate"`
	Consistency   string  `json:"consistency"`

	Volatility         float64 `json:"volatility"`
	RelativeVolatility float64 `json:"relative_volatility"`
	Strength           string  `json:"trend_strength"`
	Confidence         float64 `json:"prediction_confidence"`

	AverageGPA     float64   `json:"average_gpa"`
	MaxGPA         float64   `json:"max_gpa"`
	MinGPA         float64   `json:"min_gpa"`
	MaxGPATerm     int       `json:"max_gpa_semester"`
	MinGPATerm     int       `json:"min_gpa_semester"`
	MovingAverages []float64 `json:"moving_averages"`

	Forecast Forecast `json:"forecast"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ANALYZER
// ══════════════════════════════════════════════════════════════════════════════

// Analyzer computes trend reports. It is immutable and safe for concurrent
// use.
type Analyzer struct {
	cfg   Config
	scale *grading.Scale
}

// NewAnalyzer validates the configuration and builds an analyzer. The scale
// is used by course trends to map scores to grade points.
func NewAnalyzer(cfg Config, scale *grading.Scale) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if scale == nil {
		return nil, shared.ConfigError("trend", "NewAnalyzer", "grading scale is required")
	}
	cfg.ProjectionTargets = slices.Clone(cfg.ProjectionTargets)
	return &Analyzer{cfg: cfg, scale: scale}, nil
}

// Config returns a copy of the analyzer configuration.
func (a *Analyzer) Config() Config {
	cfg := a.cfg
	cfg.ProjectionTargets = slices.Clone(a.cfg.ProjectionTargets)
	return cfg
}

// Analyze describes an ordered series of semester GPAs. Fewer than two points
// yield an insufficient_data report; forecast and confidence need three.
func (a *Analyzer) Analyze(gpas []float64) Report {
	n := len(gpas)
	r := Report{
		Status:         StatusInsufficientData,
		DataPoints:     n,
		Direction:      StatusInsufficientData,
		Consistency:    StatusInsufficientData,
		Strength:       StrengthWeak,
		MovingAverages: []float64{},
		Forecast:       Forecast{Status: StatusInsufficientData, Method: "linear_regression"},
	}
	if n < MinDirectionPoints {
		return r
	}

	line := Fit(gpas)
	mean, sd := distribution.MeanStdDev(gpas)

	r.Status = StatusOK
	r.Direction = Direction(line.Slope, a.cfg.DirectionSlope)
	r.Slope = shared.Round(line.Slope, 4)
	r.Intercept = shared.Round(line.Intercept, 4)
	r.RecentChange = shared.Round(gpas[n-1]-gpas[n-2], 3)
	r.OverallChange = shared.Round(gpas[n-1]-gpas[0], 3)
	if gpas[0] > 0 {
		r.ChangeRate = shared.Round((gpas[n-1]-gpas[0])/gpas[0]*100, 2)
	}
	r.Consistency = a.consistency(gpas)
	r.Volatility = shared.Round(sd, 3)
	if mean > 0 {
		r.RelativeVolatility = shared.Round(sd/mean*100, 2)
	}
	r.AverageGPA = shared.Round(mean, 3)

	maxIdx, minIdx := 0, 0
	for i, g := range gpas {
		if g > gpas[maxIdx] {
			maxIdx = i
		}
		if g < gpas[minIdx] {
			minIdx = i
		}
	}
	r.MaxGPA, r.MaxGPATerm = gpas[maxIdx], maxIdx+1
	r.MinGPA, r.MinGPATerm = gpas[minIdx], minIdx+1
	r.MovingAverages = movingAverages(gpas, a.cfg.MovingAverageWindow)

	if n < MinForecastPoints {
		return r
	}

	r.Strength = a.strength(line.Slope, sd)
	r.Confidence = shared.Round(line.RSquared*100, 2)
	r.Forecast = Forecast{
		Status:     StatusOK,
		NextTerm:   a.clampGPA(line.At(float64(n))),
		SecondTerm: a.clampGPA(line.At(float64(n + 1))),
		Method:     "linear_regression",
	}
	return r
}

// consistency compares the signs of consecutive deltas.
func (a *Analyzer) consistency(values []float64) string {
	if len(values) < MinForecastPoints {
		return StatusInsufficientData
	}

	var up, down int
	for i := 1; i < len(values); i++ {
		switch d := values[i] - values[i-1]; {
		case d > 0:
			up++
		case d < 0:
			down++
		}
	}

	need := float64(len(values)-1) * a.cfg.ConsistencyShare
	switch {
	case float64(up) >= need:
		return ConsistencyIncreasing
	case float64(down) >= need:
		return ConsistencyDecreasing
	default:
		return ConsistencyFluctuates
	}
}

// strength is |slope| relative to the series' standard deviation.
func (a *Analyzer) strength(slope, sd float64) string {
	if sd <= 0 {
		return StrengthWeak
	}
	switch s := math.Abs(slope) / sd; {
	case s > a.cfg.StrongTrend:
		return StrengthStrong
	case s > a.cfg.ModerateTrend:
		return StrengthModerate
	default:
		return StrengthWeak
	}
}

func (a *Analyzer) clampGPA(v float64) float64 {
	return shared.Round(shared.Clamp(v, 0, a.cfg.MaxGPA), 3)
}

// movingAverages uses a window of min(window, len(values)).
func movingAverages(values []float64, window int) []float64 {
	w := min(window, len(values))
	if w < 1 {
		return []float64{}
	}

	out := make([]float64, 0, len(values)-w+1)
	var sum float64
	for i, v := range values {
		sum += v
		if i >= w {
			sum -= values[i-w]
		}
		if i >= w-1 {
			out = append(out, shared.Round(sum/float64(w), 3))
		}
	}
	return out
}

// positiveGPAs drops terms without a semester GPA.
func positiveGPAs(points []grading.TrendPoint) []float64 {
	out := make([]float64, 0, len(points))
	for _, p := range points {
		if p.SemesterGPA > 0 {
			out = append(out, p.SemesterGPA)
		}
	}
	return out
}
