package grading

import (
	"fmt"

	"github.com/unigrade/grade-analytics/internal/domain/shared"
)

// ScenarioGPAs are the assumed future GPAs reported by PredictGraduation.
var ScenarioGPAs = []float64{2.0, 2.5, 3.0, 3.5, 4.0}

// TargetGPAs are the graduation targets PredictGraduation solves for.
var TargetGPAs = []float64{3.0, 3.5, 3.8, 4.0}

// Scenario is the graduation GPA reached if the remaining credits are
// earned at AssumedGPA.
type Scenario struct {
	AssumedGPA    float64 `json:"assumed_gpa"`
	GraduationGPA float64 `json:"graduation_gpa"`
}

// Requirement is the average GPA needed over the remaining credits to
// graduate at TargetGPA.
type Requirement struct {
	TargetGPA float64 `json:"target_gpa"`

	// RequiredGPA is nil when nothing remains to earn or the target is
	// already met.
	RequiredGPA *float64 `json:"required_gpa"`

	AlreadyMet bool `json:"already_met"`

	// Attainable is false when RequiredGPA exceeds the top of the scale.
	Attainable bool `json:"attainable"`
}

// GraduationForecast is the result of PredictGraduation.
type GraduationForecast struct {
	CurrentGPA         float64       `json:"current_gpa"`
	CurrentCredits     float64       `json:"current_credits"`
	RemainingCredits   float64       `json:"remaining_credits"`
	GraduationCredits  float64       `json:"total_credits_at_graduation"`
	AssumedGPA         float64       `json:"assumed_gpa"`
	PredictedGPA       float64       `json:"predicted_gpa"`
	PredictionPossible bool          `json:"prediction_possible"`
	Scenarios          []Scenario    `json:"scenarios"`
	Requirements       []Requirement `json:"required_remaining_gpa"`
}

// Requirement returns the requirement for the given target, if reported.
func (f GraduationForecast) Requirement(target float64) (Requirement, bool) {
	for _, r := range f.Requirements {
		if r.TargetGPA == target {
			return r, true
		}
	}
	return Requirement{}, false
}

// String implements fmt.Stringer.
func (f GraduationForecast) String() string {
	return fmt.Sprintf("Forecast{current: %.3f over %.1f cr, predicted: %.3f over %.1f cr}",
		f.CurrentGPA, f.CurrentCredits, f.PredictedGPA, f.GraduationCredits)
}

// PredictGraduation blends the current cumulative GPA with an assumed GPA
// for the remaining credits. A nil assumed GPA reuses the current one.
// Negative credit inputs are treated as zero.
func (s *Scale) PredictGraduation(current, currentCredits, remainingCredits float64, assumed *float64) GraduationForecast {
	currentCredits = max(currentCredits, 0)
	remainingCredits = max(remainingCredits, 0)

	future := current
	if assumed != nil {
		future = *assumed
	}

	total := currentCredits + remainingCredits
	f := GraduationForecast{
		CurrentGPA:         current,
		CurrentCredits:     currentCredits,
		RemainingCredits:   remainingCredits,
		GraduationCredits:  total,
		AssumedGPA:         future,
		PredictedGPA:       current,
		PredictionPossible: total > 0,
		Scenarios:          make([]Scenario, 0, len(ScenarioGPAs)),
		Requirements:       make([]Requirement, 0, len(TargetGPAs)),
	}

	blend := func(g float64) float64 {
		if total == 0 {
			return current
		}
		return roundGPA((current*currentCredits + g*remainingCredits) / total)
	}

	f.PredictedGPA = blend(future)
	for _, g := range ScenarioGPAs {
		f.Scenarios = append(f.Scenarios, Scenario{AssumedGPA: g, GraduationGPA: blend(g)})
	}

	for _, target := range TargetGPAs {
		req := Requirement{TargetGPA: target, AlreadyMet: current >= target}
		switch {
		case req.AlreadyMet:
			req.Attainable = true
		case remainingCredits == 0:
			req.Attainable = false
		default:
			need := roundGPA((target*total - current*currentCredits) / remainingCredits)
			req.RequiredGPA = &need
			req.Attainable = need <= s.policy.MaxGPA
		}
		f.Requirements = append(f.Requirements, req)
	}
	return f
}

func roundGPA(v float64) float64 {
	return shared.Round(v, 3)
}
