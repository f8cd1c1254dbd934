// Package grading contains the GPA engine: the grading scale tables, score
// record validation, retake resolution, GPA aggregation, cumulative series and
// graduation projection.
//
// The scale keeps four tables side by side and never derives one from
// another:
//   - GPA bands: percentage lower bound -> grade points (plus the band letter
//     and five-level label used by the Chinese 4.0 standard);
//   - display letters: coarse 90/80/70/60 cut points;
//   - five-level grades: the same coarse cut points with 优秀..不及格 labels;
//   - grade points: a secondary 4.0-like table used by import tooling.
package grading

import (
	"fmt"
	"math"

	"github.com/unigrade/grade-analytics/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Letter is a display letter grade.
type Letter string

const (
	LetterA Letter = "A"
	LetterB Letter = "B"
	LetterC Letter = "C"
	LetterD Letter = "D"
	LetterF Letter = "F"
)

// Letters lists every letter in display order.
var Letters = []Letter{LetterA, LetterB, LetterC, LetterD, LetterF}

// FiveLevel is a grade on the five-level scale.
type FiveLevel string

const (
	FiveLevelExcellent FiveLevel = "优秀"
	FiveLevelGood      FiveLevel = "良好"
	FiveLevelAverage   FiveLevel = "中等"
	FiveLevelPass      FiveLevel = "及格"
	FiveLevelFail      FiveLevel = "不及格"
)

// FiveLevels lists every five-level grade from best to worst.
var FiveLevels = []FiveLevel{FiveLevelExcellent, FiveLevelGood, FiveLevelAverage, FiveLevelPass, FiveLevelFail}

// English returns the English name of the level.
func (f FiveLevel) English() string {
	switch f {
	case FiveLevelExcellent:
		return "Excellent"
	case FiveLevelGood:
		return "Good"
	case FiveLevelAverage:
		return "Average"
	case FiveLevelPass:
		return "Pass"
	default:
		return "Fail"
	}
}

// Band is one row of the GPA table. A percentage belongs to the band with
// the highest MinPercent that does not exceed it.
type Band struct {
	MinPercent float64   `json:"min_percent"`
	Points     float64   `json:"points"`
	Letter     Letter    `json:"letter"`
	FiveLevel  FiveLevel `json:"five_level"`
}

// Cut is a labelled lower bound used by the coarse letter and five-level tables.
type Cut[L ~string] struct {
	MinPercent float64 `json:"min_percent"`
	Label      L       `json:"label"`
}

// PointCut is one row of the secondary grade-points table.
type PointCut struct {
	MinPercent float64 `json:"min_percent"`
	Points     float64 `json:"points"`
}

// Policy is the full, overridable grading configuration.
type Policy struct {
	MaxGPA         float64
	GPABands       []Band
	LetterCuts     []Cut[Letter]
	FailLetter     Letter
	FiveLevelCuts  []Cut[FiveLevel]
	FailFiveLevel  FiveLevel
	GradePointCuts []PointCut
	PassingPercent float64
}

// DefaultPolicy returns the Chinese Ministry of Education 4.0 policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxGPA: 4.0,
		GPABands: []Band{
			{MinPercent: 90, Points: 4.0, Letter: LetterA, FiveLevel: FiveLevelExcellent},
			{MinPercent: 85, Points: 3.7, Letter: LetterB, FiveLevel: FiveLevelGood},
			{MinPercent: 82, Points: 3.3, Letter: LetterB, FiveLevel: FiveLevelGood},
			{MinPercent: 78, Points: 3.0, Letter: LetterC, FiveLevel: FiveLevelAverage},
			{MinPercent: 75, Points: 2.7, Letter: LetterC, FiveLevel: FiveLevelAverage},
			{MinPercent: 72, Points: 2.3, Letter: LetterC, FiveLevel: FiveLevelAverage},
			{MinPercent: 68, Points: 2.0, Letter: LetterD, FiveLevel: FiveLevelPass},
			{MinPercent: 64, Points: 1.5, Letter: LetterD, FiveLevel: FiveLevelPass},
			{MinPercent: 60, Points: 1.0, Letter: LetterD, FiveLevel: FiveLevelPass},
			{MinPercent: 0, Points: 0.0, Letter: LetterF, FiveLevel: FiveLevelFail},
		},
		LetterCuts: []Cut[Letter]{
			{MinPercent: 90, Label: LetterA},
			{MinPercent: 80, Label: LetterB},
			{MinPercent: 70, Label: LetterC},
			{MinPercent: 60, Label: LetterD},
		},
		FailLetter: LetterF,
		FiveLevelCuts: []Cut[FiveLevel]{
			{MinPercent: 90, Label: FiveLevelExcellent},
			{MinPercent: 80, Label: FiveLevelGood},
			{MinPercent: 70, Label: FiveLevelAverage},
			{MinPercent: 60, Label: FiveLevelPass},
		},
		FailFiveLevel: FiveLevelFail,
		GradePointCuts: []PointCut{
			{MinPercent: 95, Points: 4.0},
			{MinPercent: 90, Points: 3.8},
			{MinPercent: 85, Points: 3.6},
			{MinPercent: 80, Points: 3.2},
			{MinPercent: 75, Points: 2.8},
			{MinPercent: 70, Points: 2.4},
			{MinPercent: 65, Points: 2.0},
			{MinPercent: 60, Points: 1.6},
		},
		PassingPercent: 60,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SCALE
// ══════════════════════════════════════════════════════════════════════════════

// Scale maps percentages to grade points and labels. A Scale is immutable
// after construction and safe for concurrent use.
type Scale struct {
	policy Policy
}

// NewScale validates the policy and builds a Scale. Any malformed table is a
// configuration error.
func NewScale(p Policy) (*Scale, error) {
	if err := validatePolicy(p); err != nil {
		return nil, err
	}
	cp := p
	cp.GPABands = append([]Band(nil), p.GPABands...)
	cp.LetterCuts = append([]Cut[Letter](nil), p.LetterCuts...)
	cp.FiveLevelCuts = append([]Cut[FiveLevel](nil), p.FiveLevelCuts...)
	cp.GradePointCuts = append([]PointCut(nil), p.GradePointCuts...)
	return &Scale{policy: cp}, nil
}

// MustDefaultScale returns the default scale. The default policy is known to
// be valid, so a failure here is a programming error.
func MustDefaultScale() *Scale {
	s, err := NewScale(DefaultPolicy())
	if err != nil {
		panic(err)
	}
	return s
}

func validatePolicy(p Policy) error {
	const op = "NewScale"

	if p.MaxGPA <= 0 || math.IsNaN(p.MaxGPA) {
		return shared.ConfigError("grading", op, "max GPA must be positive, got %v", p.MaxGPA)
	}
	if len(p.GPABands) == 0 {
		return shared.ConfigError("grading", op, "GPA band table is empty")
	}
	for i, b := range p.GPABands {
		if b.MinPercent < 0 || b.MinPercent > 100 {
			return shared.ConfigError("grading", op, "GPA band %d lower bound %v outside [0,100]", i, b.MinPercent)
		}
		if b.Points < 0 || b.Points > p.MaxGPA {
			return shared.ConfigError("grading", op, "GPA band %d points %v outside [0,%v]", i, b.Points, p.MaxGPA)
		}
		if i == 0 {
			continue
		}
		prev := p.GPABands[i-1]
		if b.MinPercent >= prev.MinPercent {
			return shared.ConfigError("grading", op, "GPA bands not strictly descending at %d (%v after %v)", i, b.MinPercent, prev.MinPercent)
		}
		if b.Points > prev.Points {
			return shared.ConfigError("grading", op, "GPA band points not monotonic at %d (%v after %v)", i, b.Points, prev.Points)
		}
	}
	if last := p.GPABands[len(p.GPABands)-1]; last.MinPercent != 0 {
		return shared.ConfigError("grading", op, "GPA band table must end at 0, ends at %v", last.MinPercent)
	}

	if err := validateCuts("letter", cutBounds(p.LetterCuts)); err != nil {
		return err
	}
	if p.FailLetter == "" {
		return shared.ConfigError("grading", op, "fail letter is empty")
	}
	if err := validateCuts("five-level", cutBounds(p.FiveLevelCuts)); err != nil {
		return err
	}
	if p.FailFiveLevel == "" {
		return shared.ConfigError("grading", op, "fail five-level label is empty")
	}

	bounds := make([]float64, len(p.GradePointCuts))
	for i, c := range p.GradePointCuts {
		bounds[i] = c.MinPercent
		if c.Points < 0 || c.Points > p.MaxGPA {
			return shared.ConfigError("grading", op, "grade-point cut %d points %v outside [0,%v]", i, c.Points, p.MaxGPA)
		}
		if i > 0 && c.Points > p.GradePointCuts[i-1].Points {
			return shared.ConfigError("grading", op, "grade-point cuts not monotonic at %d", i)
		}
	}
	if err := validateCuts("grade-point", bounds); err != nil {
		return err
	}

	if p.PassingPercent <= 0 || p.PassingPercent > 100 {
		return shared.ConfigError("grading", op, "passing percent %v outside (0,100]", p.PassingPercent)
	}
	return nil
}

func cutBounds[L ~string](cuts []Cut[L]) []float64 {
	out := make([]float64, len(cuts))
	for i, c := range cuts {
		if c.Label == "" {
			out[i] = math.NaN()
			continue
		}
		out[i] = c.MinPercent
	}
	return out
}

func validateCuts(name string, bounds []float64) error {
	if len(bounds) == 0 {
		return shared.ConfigError("grading", "NewScale", "%s table is empty", name)
	}
	for i, b := range bounds {
		if math.IsNaN(b) {
			return shared.ConfigError("grading", "NewScale", "%s cut %d has an empty label", name, i)
		}
		if b <= 0 || b > 100 {
			return shared.ConfigError("grading", "NewScale", "%s cut %d lower bound %v outside (0,100]", name, i, b)
		}
		if i > 0 && b >= bounds[i-1] {
			return shared.ConfigError("grading", "NewScale", "%s cuts not strictly descending at %d", name, i)
		}
	}
	return nil
}

// Policy returns a copy of the policy the scale was built from.
func (s *Scale) Policy() Policy {
	p := s.policy
	p.GPABands = append([]Band(nil), s.policy.GPABands...)
	p.LetterCuts = append([]Cut[Letter](nil), s.policy.LetterCuts...)
	p.FiveLevelCuts = append([]Cut[FiveLevel](nil), s.policy.FiveLevelCuts...)
	p.GradePointCuts = append([]PointCut(nil), s.policy.GradePointCuts...)
	return p
}

// MaxGPA returns the top of the GPA scale.
func (s *Scale) MaxGPA() float64 {
	return s.policy.MaxGPA
}

// Percentage converts a raw score to a percentage of maxScore.
// ok is false when maxScore is not positive.
//
// The result is snapped to 1e-9 so that band edges such as 20.4/30 (68%) land
// exactly on the boundary instead of a binary neighbour below it. Scores
// that differ from an edge by more than that keep their side.
func Percentage(score, maxScore float64) (pct float64, ok bool) {
	if maxScore <= 0 || math.IsNaN(score) || math.IsNaN(maxScore) {
		return 0, false
	}
	pct = score * 100 / maxScore
	return math.Round(pct*percentPrecision) / percentPrecision, true
}

const percentPrecision = 1e9

// BandFor returns the GPA band a percentage falls into.
func (s *Scale) BandFor(pct float64) Band {
	for _, b := range s.policy.GPABands {
		if pct >= b.MinPercent {
			return b
		}
	}
	return s.policy.GPABands[len(s.policy.GPABands)-1]
}

// GPAPoints maps a raw score to grade points. A non-positive maxScore
// yields 0.0.
func (s *Scale) GPAPoints(score, maxScore float64) float64 {
	pct, ok := Percentage(score, maxScore)
	if !ok {
		return 0
	}
	return s.BandFor(pct).Points
}

// LetterGrade maps a raw score to its display letter.
func (s *Scale) LetterGrade(score, maxScore float64) Letter {
	pct, ok := Percentage(score, maxScore)
	if !ok {
		return s.policy.FailLetter
	}
	return s.LetterForPercent(pct)
}

// LetterForPercent maps a percentage to its display letter.
func (s *Scale) LetterForPercent(pct float64) Letter {
	for _, c := range s.policy.LetterCuts {
		if pct >= c.MinPercent {
			return c.Label
		}
	}
	return s.policy.FailLetter
}

// FiveLevelGrade maps a raw score to the five-level scale.
func (s *Scale) FiveLevelGrade(score, maxScore float64) FiveLevel {
	pct, ok := Percentage(score, maxScore)
	if !ok {
		return s.policy.FailFiveLevel
	}
	return s.FiveLevelForPercent(pct)
}

// FiveLevelForPercent maps a percentage to the five-level scale.
func (s *Scale) FiveLevelForPercent(pct float64) FiveLevel {
	for _, c := range s.policy.FiveLevelCuts {
		if pct >= c.MinPercent {
			return c.Label
		}
	}
	return s.policy.FailFiveLevel
}

// GradePoints maps a raw score to the secondary grade-points table.
func (s *Scale) GradePoints(score, maxScore float64) float64 {
	pct, ok := Percentage(score, maxScore)
	if !ok {
		return 0
	}
	for _, c := range s.policy.GradePointCuts {
		if pct >= c.MinPercent {
			return c.Points
		}
	}
	return 0
}

// IsPassing reports whether a percentage reaches the passing threshold.
func (s *Scale) IsPassing(pct float64) bool {
	return pct >= s.policy.PassingPercent
}

// Metrics bundles every mapping of one score.
type Metrics struct {
	Percentage  float64   `json:"percentage"`
	GPAPoints   float64   `json:"gpa_points"`
	Letter      Letter    `json:"letter_grade"`
	FiveLevel   FiveLevel `json:"five_level_grade"`
	GradePoints float64   `json:"grade_points"`
}

// Evaluate computes all mappings for a single score.
func (s *Scale) Evaluate(score, maxScore float64) Metrics {
	pct, _ := Percentage(score, maxScore)
	return Metrics{
		Percentage:  pct,
		GPAPoints:   s.GPAPoints(score, maxScore),
		Letter:      s.LetterGrade(score, maxScore),
		FiveLevel:   s.FiveLevelGrade(score, maxScore),
		GradePoints: s.GradePoints(score, maxScore),
	}
}

// String implements fmt.Stringer for debugging.
func (b Band) String() string {
	return fmt.Sprintf(">=%.2f%% -> %.1f (%s/%s)", b.MinPercent, b.Points, b.Letter, b.FiveLevel)
}
