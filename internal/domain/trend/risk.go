package trend

import (
	"slices"

	"github.com/unigrade/grade-analytics/internal/domain/grading"
)

// Risk is an academic risk flag.
type Risk string

const (
	RiskDecliningStreak   Risk = "declining_streak"
	RiskGPABelowThreshold Risk = "gpa_below_threshold"
	RiskGPANearThreshold  Risk = "gpa_near_threshold"
	RiskLowPassRate       Risk = "low_pass_rate"
	RiskLowCreditLoad     Risk = "low_credit_load"
)

// RiskLevel grades the overall risk of a student.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// severe flags raise the level to high on their own.
func (r Risk) severe() bool {
	return r == RiskDecliningStreak || r == RiskGPABelowThreshold
}

var remediations = map[Risk][]string{
	RiskDecliningStreak: {
		"Analyze the causes of the GPA decline, starting with the weakest courses",
		"Ask course instructors for feedback and advice",
		"Consider joining a study group or tutoring sessions",
	},
	RiskGPABelowThreshold: {
		"Meet an academic advisor immediately to agree on an improvement plan",
		"Prioritize required courses and secure the fundamentals",
		"Consider cutting back on extracurricular activities to focus on study",
	},
	RiskGPANearThreshold: {
		"Act early with a detailed study plan",
		"Tighten time management to study more efficiently",
		"Check in with course instructors regularly about progress",
	},
	RiskLowPassRate: {
		"Review the fundamentals and find the weak spots",
		"Set aside more time for practice and revision",
		"Ask classmates or instructors for help",
	},
	RiskLowCreditLoad: {
		"Plan a balanced course load for every semester",
		"Avoid overloading on difficult electives",
		"Consider summer courses to make up credits",
	},
}

// Remediations returns the fixed remediation messages of a risk.
func Remediations(r Risk) []string {
	return slices.Clone(remediations[r])
}

// RiskAssessment is the outcome of Assess.
type RiskAssessment struct {
	Level        RiskLevel `json:"risk_level"`
	Risks        []Risk    `json:"risks"`
	Count        int       `json:"risk_count"`
	Remediations []string  `json:"recommendations"`
}

// Has reports whether a flag was raised.
func (r RiskAssessment) Has(risk Risk) bool {
	return slices.Contains(r.Risks, risk)
}

// Assess flags risks over the most recent terms of a chronological series.
// Flags are not exclusive, except that a GPA below the low threshold is not
// also reported as near it. An empty series is low risk.
func (a *Analyzer) Assess(points []grading.TrendPoint) RiskAssessment {
	out := RiskAssessment{Level: RiskLow, Risks: []Risk{}, Remediations: []string{}}
	if len(points) == 0 {
		return out
	}

	th := a.cfg.Risk
	recent := points[max(0, len(points)-th.Window):]
	gpas := positiveGPAs(recent)
	last := recent[len(recent)-1]

	if len(gpas) >= 2 && strictlyDecreasing(gpas) {
		out.Risks = append(out.Risks, RiskDecliningStreak)
	}
	if len(gpas) > 0 {
		switch g := gpas[len(gpas)-1]; {
		case g < th.LowGPA:
			out.Risks = append(out.Risks, RiskGPABelowThreshold)
		case g < th.WarningGPA:
			out.Risks = append(out.Risks, RiskGPANearThreshold)
		}
	}
	if last.PassRate < th.MinPassRate {
		out.Risks = append(out.Risks, RiskLowPassRate)
	}
	if last.Credits < th.MinCredits {
		out.Risks = append(out.Risks, RiskLowCreditLoad)
	}

	for _, r := range out.Risks {
		if r.severe() {
			out.Level = RiskHigh
			break
		}
		out.Level = RiskMedium
	}
	out.Count = len(out.Risks)

	for _, r := range out.Risks {
		msgs := remediations[r]
		out.Remediations = append(out.Remediations, msgs[:min(th.PerRisk, len(msgs))]...)
	}
	if len(out.Remediations) > th.MaxRemediations {
		out.Remediations = out.Remediations[:th.MaxRemediations]
	}
	return out
}

func strictlyDecreasing(values []float64) bool {
	for i := 1; i < len(values); i++ {
		if values[i] >= values[i-1] {
			return false
		}
	}
	return true
}
