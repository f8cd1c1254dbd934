package trend

import (
	"math"

	"github.com/unigrade/grade-analytics/internal/domain/grading"
	"github.com/unigrade/grade-analytics/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

const (
	ProgressSignificantImprovement = "significant_improvement"
	ProgressModerateImprovement    = "moderate_improvement"
	ProgressStable                 = "stable"
	ProgressModerateDecline        = "moderate_decline"
	ProgressSignificantDecline     = "significant_decline"
)

// ProgressReport classifies semester-over-semester change.
type ProgressReport struct {
	Type                 string  `json:"progress_type"`
	AverageGPAProgress   float64 `json:"average_gpa_progress"`
	AverageScoreProgress float64 `json:"average_score_progress"`
	TotalGPAChange       float64 `json:"total_gpa_change"`
	TotalScoreChange     float64 `json:"total_score_change"`
	CreditsEarned        float64 `json:"total_credits_earned"`
	Improvements         int     `json:"semester_improvements"`
	Declines             int     `json:"semester_declines"`
}

// Progress compares consecutive terms. Deltas are taken only between terms
// that both have a positive value. Fewer than two terms yield an
// insufficient_data report.
func (a *Analyzer) Progress(points []grading.TrendPoint) ProgressReport {
	if len(points) < 2 {
		return ProgressReport{Type: StatusInsufficientData}
	}

	var gpaSum, scoreSum, credits float64
	var gpaN, scoreN int
	out := ProgressReport{}
	for i, cur := range points {
		credits += cur.Credits
		if i == 0 {
			continue
		}
		prev := points[i-1]
		if prev.SemesterGPA > 0 && cur.SemesterGPA > 0 {
			d := cur.SemesterGPA - prev.SemesterGPA
			gpaSum += d
			gpaN++
			switch {
			case d > 0:
				out.Improvements++
			case d < 0:
				out.Declines++
			}
		}
		if prev.AverageScore > 0 && cur.AverageScore > 0 {
			scoreSum += cur.AverageScore - prev.AverageScore
			scoreN++
		}
	}

	var avgGPA, avgScore float64
	if gpaN > 0 {
		avgGPA = gpaSum / float64(gpaN)
	}
	if scoreN > 0 {
		avgScore = scoreSum / float64(scoreN)
	}

	first, last := points[0], points[len(points)-1]
	out.Type = a.progressType(avgGPA)
	out.AverageGPAProgress = shared.Round(avgGPA, 3)
	out.AverageScoreProgress = shared.Round(avgScore, 2)
	out.TotalGPAChange = shared.Round(last.CumulativeGPA-first.SemesterGPA, 3)
	out.TotalScoreChange = shared.Round(last.AverageScore-first.AverageScore, 2)
	out.CreditsEarned = credits
	return out
}

func (a *Analyzer) progressType(delta float64) string {
	switch {
	case delta > a.cfg.SignificantProgress:
		return ProgressSignificantImprovement
	case delta > a.cfg.ModerateProgress:
		return ProgressModerateImprovement
	case delta < -a.cfg.SignificantProgress:
		return ProgressSignificantDecline
	case delta < -a.cfg.ModerateProgress:
		return ProgressModerateDecline
	default:
		return ProgressStable
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PROJECTION
// ══════════════════════════════════════════════════════════════════════════════

// TargetEstimate is the number of terms needed to reach a GPA at the current
// slope. Semesters is nil when the target cannot be reached that way or is
// already reached.
type TargetEstimate struct {
	Target    float64 `json:"target"`
	Semesters *int    `json:"semesters"`
}

// Projection extends the fitted slope from the latest value.
type Projection struct {
	FutureTrend  string           `json:"future_trend"`
	CurrentValue float64          `json:"current_value"`
	Slope        float64          `json:"slope"`
	Targets      []TargetEstimate `json:"semesters_to_targets"`
	Method       string           `json:"projection_method"`
}

// Target returns the estimate for a configured target.
func (p Projection) Target(target float64) (TargetEstimate, bool) {
	for _, t := range p.Targets {
		if t.Target == target {
			return t, true
		}
	}
	return TargetEstimate{}, false
}

// Project estimates how many terms each configured target is away.
func (a *Analyzer) Project(gpas []float64) Projection {
	line := Fit(gpas)
	var current float64
	if len(gpas) > 0 {
		current = gpas[len(gpas)-1]
	}

	p := Projection{
		FutureTrend:  Direction(line.Slope, a.cfg.DirectionSlope),
		CurrentValue: shared.Round(current, 3),
		Slope:        shared.Round(line.Slope, 4),
		Targets:      make([]TargetEstimate, 0, len(a.cfg.ProjectionTargets)),
		Method:       "linear_extrapolation",
	}
	for _, target := range a.cfg.ProjectionTargets {
		est := TargetEstimate{Target: target}
		if line.Slope > 0 && target > current {
			n := int(math.Ceil((target - current) / line.Slope))
			est.Semesters = &n
		}
		p.Targets = append(p.Targets, est)
	}
	return p
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPORT
// ══════════════════════════════════════════════════════════════════════════════

// MaxRecommendations caps the study recommendations of a student report.
const MaxRecommendations = 6

// StudentReport bundles every per-student trend analysis.
type StudentReport struct {
	Terms           []grading.TrendPoint `json:"semester_trends"`
	Trend           Report               `json:"overall_trend"`
	Progress        ProgressReport       `json:"learning_progress"`
	Risk            RiskAssessment       `json:"risk_analysis"`
	Projection      *Projection          `json:"trend_projection,omitempty"`
	Recommendations []string             `json:"recommendations"`
}

// AnalyzeStudent runs the full trend analysis over a student's chronological
// term series. Terms without a semester GPA are excluded from the regression.
func (a *Analyzer) AnalyzeStudent(points []grading.TrendPoint) StudentReport {
	gpas := positiveGPAs(points)
	if points == nil {
		points = []grading.TrendPoint{}
	}

	r := StudentReport{
		Terms:    points,
		Trend:    a.Analyze(gpas),
		Progress: a.Progress(points),
		Risk:     a.Assess(points),
	}
	if len(points) >= MinForecastPoints && len(gpas) >= MinForecastPoints {
		p := a.Project(gpas)
		r.Projection = &p
	}
	r.Recommendations = a.recommend(points, r.Trend, r.Risk)
	return r
}

func (a *Analyzer) recommend(points []grading.TrendPoint, t Report, risk RiskAssessment) []string {
	out := make([]string, 0, MaxRecommendations)

	switch t.Direction {
	case DirectionDeclining:
		out = append(out, "Watch your study habits and consider academic tutoring")
	case DirectionImproving:
		out = append(out, "Keep up the positive momentum")
	}

	switch risk.Level {
	case RiskHigh:
		out = append(out, "Arrange an in-depth conversation with a counselor or academic advisor")
	case RiskMedium:
		out = append(out, "Review study methods and time management")
	}

	if len(points) > 0 {
		switch g := points[len(points)-1].SemesterGPA; {
		case g < a.cfg.Risk.LowGPA:
			out = append(out, "Current GPA is low; prioritize grades in core courses")
		case g < a.cfg.StrongGPA:
			out = append(out, "There is room to improve; draw up a detailed study plan")
		default:
			out = append(out, "Strong performance; consider more ambitious goals")
		}
	}

	if t.Volatility > a.cfg.HighVolatility {
		out = append(out, "Grades fluctuate considerably; keep a steady study rhythm")
	}

	return out[:min(len(out), MaxRecommendations)]
}
