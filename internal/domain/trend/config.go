// Package trend analyzes chronological GPA series: least-squares direction,
// consistency, volatility, confidence and forecast, plus risk flags,
// progress classification, target projection and cohort trends.
package trend

import (
	"math"

	"github.com/unigrade/grade-analytics/internal/domain/shared"
)

// Config holds every threshold used by the analyzer.
type Config struct {
	// MaxGPA bounds forecasts from above.
	MaxGPA float64

	// DirectionSlope is the slope magnitude separating improving/declining
	// from stable.
	DirectionSlope float64

	// ConsistencyShare is the share of same-sign deltas required for a
	// consistent series.
	ConsistencyShare float64

	// MovingAverageWindow is the window of the reported moving averages.
	MovingAverageWindow int

	// StrongTrend and ModerateTrend classify |slope| / stddev.
	StrongTrend   float64
	ModerateTrend float64

	// HighVolatility triggers the steadiness recommendation.
	HighVolatility float64

	// StrongGPA separates the "room to improve" and "strong performance"
	// recommendations.
	StrongGPA float64

	Risk RiskThresholds

	// SignificantProgress and ModerateProgress classify the mean
	// semester-over-semester GPA change.
	SignificantProgress float64
	ModerateProgress    float64

	// ProjectionTargets are the GPAs Project estimates semesters for.
	ProjectionTargets []float64

	Cohort CohortThresholds

	// ExcellentPercent is the percentage counted as excellent in course
	// trends.
	ExcellentPercent float64
}

// RiskThresholds configure Assess.
type RiskThresholds struct {
	// Window is the number of most recent semesters evaluated.
	Window int

	LowGPA     float64
	WarningGPA float64

	// MinPassRate is a percentage.
	MinPassRate float64
	MinCredits  float64

	// PerRisk and MaxRemediations cap the remediation list.
	PerRisk         int
	MaxRemediations int
}

// CohortThresholds configure AnalyzeCohort.
type CohortThresholds struct {
	DirectionSlope float64
	StableBelow    float64
	ModerateBelow  float64
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		MaxGPA:              4.0,
		DirectionSlope:      0.05,
		ConsistencyShare:    0.8,
		MovingAverageWindow: 3,
		StrongTrend:         0.5,
		ModerateTrend:       0.2,
		HighVolatility:      0.3,
		StrongGPA:           3.0,
		Risk: RiskThresholds{
			Window:          3,
			LowGPA:          2.0,
			WarningGPA:      2.5,
			MinPassRate:     70,
			MinCredits:      12,
			PerRisk:         2,
			MaxRemediations: 5,
		},
		SignificantProgress: 0.1,
		ModerateProgress:    0.02,
		ProjectionTargets:   []float64{3.0, 3.5, 3.8},
		Cohort: CohortThresholds{
			DirectionSlope: 0.02,
			StableBelow:    0.1,
			ModerateBelow:  0.2,
		},
		ExcellentPercent: 85,
	}
}

// Validate checks that thresholds are positive and ordered.
func (c Config) Validate() error {
	const op = "Config.Validate"

	positive := []struct {
		name string
		v    float64
	}{
		{"max GPA", c.MaxGPA},
		{"direction slope", c.DirectionSlope},
		{"moderate trend", c.ModerateTrend},
		{"high volatility bound", c.HighVolatility},
		{"strong GPA", c.StrongGPA},
		{"moderate progress", c.ModerateProgress},
		{"risk low GPA", c.Risk.LowGPA},
		{"risk pass rate", c.Risk.MinPassRate},
		{"risk credit load", c.Risk.MinCredits},
		{"cohort direction slope", c.Cohort.DirectionSlope},
		{"cohort stable bound", c.Cohort.StableBelow},
		{"excellent percent", c.ExcellentPercent},
	}
	for _, p := range positive {
		if p.v <= 0 || math.IsNaN(p.v) {
			return shared.ConfigError("trend", op, "%s must be positive, got %v", p.name, p.v)
		}
	}

	switch {
	case c.ConsistencyShare <= 0.5 || c.ConsistencyShare > 1:
		return shared.ConfigError("trend", op, "consistency share %v outside (0.5,1]", c.ConsistencyShare)
	case c.MovingAverageWindow < 1:
		return shared.ConfigError("trend", op, "moving average window must be at least 1, got %d", c.MovingAverageWindow)
	case c.StrongTrend <= c.ModerateTrend:
		return shared.ConfigError("trend", op, "strong trend %v must exceed moderate trend %v", c.StrongTrend, c.ModerateTrend)
	case c.SignificantProgress <= c.ModerateProgress:
		return shared.ConfigError("trend", op, "significant progress %v must exceed moderate progress %v", c.SignificantProgress, c.ModerateProgress)
	case c.Risk.WarningGPA <= c.Risk.LowGPA:
		return shared.ConfigError("trend", op, "warning GPA %v must exceed low GPA %v", c.Risk.WarningGPA, c.Risk.LowGPA)
	case c.Risk.WarningGPA > c.MaxGPA:
		return shared.ConfigError("trend", op, "warning GPA %v above max GPA %v", c.Risk.WarningGPA, c.MaxGPA)
	case c.Risk.Window < 1:
		return shared.ConfigError("trend", op, "risk window must be at least 1, got %d", c.Risk.Window)
	case c.Risk.PerRisk < 1 || c.Risk.MaxRemediations < 1:
		return shared.ConfigError("trend", op, "remediation limits must be at least 1")
	case c.ExcellentPercent > 100:
		return shared.ConfigError("trend", op, "excellent percent %v above 100", c.ExcellentPercent)
	case c.Cohort.ModerateBelow <= c.Cohort.StableBelow:
		return shared.ConfigError("trend", op, "cohort moderate bound %v must exceed stable bound %v", c.Cohort.ModerateBelow, c.Cohort.StableBelow)
	}

	for _, t := range c.ProjectionTargets {
		if t <= 0 || t > c.MaxGPA {
			return shared.ConfigError("trend", op, "projection target %v outside (0,%v]", t, c.MaxGPA)
		}
	}
	return nil
}
