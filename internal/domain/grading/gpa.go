package grading

import (
	"slices"
	"time"

	"github.com/unigrade/grade-analytics/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESULTS
// ══════════════════════════════════════════════════════════════════════════════

// CourseSummary identifies one counted course attempt.
type CourseSummary struct {
	CourseID     string  `json:"course_id"`
	CourseName   string  `json:"course_name,omitempty"`
	Score        float64 `json:"score"`
	MaxScore     float64 `json:"max_score"`
	Percentage   float64 `json:"percentage"`
	Credits      float64 `json:"credits"`
	AcademicYear string  `json:"academic_year"`
	Semester     string  `json:"semester"`
}

// CourseDetail is a counted course with every scale mapping applied.
type CourseDetail struct {
	CourseSummary
	GPAPoints     float64   `json:"gpa_points"`
	Letter        Letter    `json:"letter_grade"`
	FiveLevel     FiveLevel `json:"five_level_grade"`
	GradePoints   float64   `json:"grade_points"`
	QualityPoints float64   `json:"quality_points"`
	Attempts      int       `json:"attempts"`
}

// GPAResult is the aggregate GPA for one student.
type GPAResult struct {
	StudentID          string            `json:"student_id"`
	TotalGPA           float64           `json:"total_gpa"`
	TotalQualityPoints float64           `json:"total_quality_points"`
	TotalCredits       float64           `json:"total_credits"`
	TotalCourses       int               `json:"total_courses"`
	GradeBreakdown     map[Letter]int    `json:"grade_breakdown"`
	FiveLevelBreakdown map[FiveLevel]int `json:"five_level_breakdown"`
	FailedCourses      []CourseSummary   `json:"failed_courses"`
	Courses            []CourseDetail    `json:"courses"`

	// SkippedRecords counts records rejected by validation.
	SkippedRecords int `json:"skipped_records"`

	// RetakeAttempts counts superseded attempts excluded by retake resolution.
	RetakeAttempts int `json:"retake_attempts"`

	CalculatedAt time.Time `json:"calculation_timestamp"`
}

// HasData reports whether at least one course was counted.
func (r GPAResult) HasData() bool {
	return r.TotalCourses > 0
}

// TrendPoint is one semester in a chronological GPA series.
type TrendPoint struct {
	AcademicYear      string  `json:"academic_year"`
	Semester          string  `json:"semester"`
	SemesterGPA       float64 `json:"semester_gpa"`
	CumulativeGPA     float64 `json:"cumulative_gpa"`
	AverageScore      float64 `json:"average_score"`
	Credits           float64 `json:"credits"`
	CumulativeCredits float64 `json:"cumulative_credits"`
	CourseCount       int     `json:"course_count"`
	PassRate          float64 `json:"pass_rate"`
	HighestScore      float64 `json:"highest_score"`
	LowestScore       float64 `json:"lowest_score"`
}

// Term returns the term of the point.
func (p TrendPoint) Term() Term {
	return Term{AcademicYear: p.AcademicYear, Semester: p.Semester}
}

// ══════════════════════════════════════════════════════════════════════════════
// CALCULATOR
// ══════════════════════════════════════════════════════════════════════════════

// Calculator aggregates score records into GPA results. It holds no mutable
// state and is safe for concurrent use.
type Calculator struct {
	scale        *Scale
	retakePolicy RetakePolicy
	now          func() time.Time
}

// CalculatorOption configures a Calculator.
type CalculatorOption func(*Calculator)

// WithRetakePolicy sets the retake policy. Unknown policies are ignored.
func WithRetakePolicy(p RetakePolicy) CalculatorOption {
	return func(c *Calculator) {
		if p.IsValid() {
			c.retakePolicy = p
		}
	}
}

// WithClock overrides the clock used for CalculatedAt.
func WithClock(now func() time.Time) CalculatorOption {
	return func(c *Calculator) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCalculator creates a calculator over the given scale.
func NewCalculator(scale *Scale, opts ...CalculatorOption) *Calculator {
	c := &Calculator{
		scale:        scale,
		retakePolicy: RetakeBestScore,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Scale returns the scale the calculator maps scores with.
func (c *Calculator) Scale() *Scale {
	return c.scale
}

// Aggregate validates the records, resolves retakes and computes the
// credit-weighted GPA. Records belonging to other students are ignored when
// studentID is set. No records, or zero counted credits, yield a zero GPA.
func (c *Calculator) Aggregate(studentID string, records []ScoreRecord) GPAResult {
	if studentID != "" {
		records = ownedBy(studentID, records)
	}
	valid, skipped := Partition(records)
	resolved := ResolveRetakesWith(valid, c.retakePolicy)

	result := c.AggregateResolved(studentID, resolved.Counted)
	result.SkippedRecords = skipped
	result.RetakeAttempts = len(resolved.History)

	attempts := make(map[string]int, len(result.Courses))
	for _, r := range valid {
		attempts[r.CourseID]++
	}
	for i := range result.Courses {
		result.Courses[i].Attempts = attempts[result.Courses[i].CourseID]
	}
	return result
}

// AggregateResolved computes the GPA over records that already hold one
// attempt per course. Invalid records are skipped and counted.
func (c *Calculator) AggregateResolved(studentID string, resolved []ScoreRecord) GPAResult {
	result := GPAResult{
		StudentID:          studentID,
		GradeBreakdown:     make(map[Letter]int, len(Letters)),
		FiveLevelBreakdown: make(map[FiveLevel]int, len(FiveLevels)),
		FailedCourses:      []CourseSummary{},
		Courses:            make([]CourseDetail, 0, len(resolved)),
		CalculatedAt:       c.now(),
	}
	for _, l := range c.letters() {
		result.GradeBreakdown[l] = 0
	}
	for _, f := range c.fiveLevels() {
		result.FiveLevelBreakdown[f] = 0
	}

	var qualityPoints, credits float64
	for _, r := range resolved {
		if r.Validate() != nil {
			result.SkippedRecords++
			continue
		}

		m := c.scale.Evaluate(r.ScoreValue(), r.MaxScore)
		summary := summarize(r, m.Percentage)
		qp := m.GPAPoints * r.Credits

		qualityPoints += qp
		credits += r.Credits
		result.TotalCourses++
		result.GradeBreakdown[m.Letter]++
		result.FiveLevelBreakdown[m.FiveLevel]++
		result.Courses = append(result.Courses, CourseDetail{
			CourseSummary: summary,
			GPAPoints:     m.GPAPoints,
			Letter:        m.Letter,
			FiveLevel:     m.FiveLevel,
			GradePoints:   m.GradePoints,
			QualityPoints: qp,
			Attempts:      1,
		})

		if m.Letter == c.scale.policy.FailLetter {
			result.FailedCourses = append(result.FailedCourses, summary)
		}
	}

	result.TotalQualityPoints = shared.Round(qualityPoints, 3)
	result.TotalCredits = credits
	if credits > 0 {
		result.TotalGPA = shared.Round(qualityPoints/credits, 3)
	}
	return result
}

// Cumulative builds one TrendPoint per term with a running credit-weighted
// GPA. Every valid attempt counts, retakes included. When upTo is set, terms
// after it are dropped (the bound is inclusive).
func (c *Calculator) Cumulative(records []ScoreRecord, upTo *Term) []TrendPoint {
	valid, _ := Partition(records)

	byTerm := make(map[Term][]ScoreRecord)
	terms := make([]Term, 0)
	for _, r := range valid {
		t := r.Term()
		if upTo != nil && upTo.Before(t) {
			continue
		}
		if _, ok := byTerm[t]; !ok {
			terms = append(terms, t)
		}
		byTerm[t] = append(byTerm[t], r)
	}
	slices.SortFunc(terms, Term.Compare)

	points := make([]TrendPoint, 0, len(terms))
	var runningQP, runningCredits float64
	for _, t := range terms {
		p := c.termPoint(t, byTerm[t])
		runningQP += p.SemesterGPA * p.Credits
		runningCredits += p.Credits
		if runningCredits > 0 {
			p.CumulativeGPA = shared.Round(runningQP/runningCredits, 3)
		}
		p.CumulativeCredits = runningCredits
		p.SemesterGPA = shared.Round(p.SemesterGPA, 3)
		points = append(points, p)
	}
	return points
}

// termPoint summarizes one term. SemesterGPA is left unrounded so the
// cumulative sum does not accumulate rounding error.
func (c *Calculator) termPoint(t Term, records []ScoreRecord) TrendPoint {
	p := TrendPoint{
		AcademicYear: t.AcademicYear,
		Semester:     t.Semester,
		CourseCount:  len(records),
	}

	var qp, credits, pctSum float64
	passed := 0
	for i, r := range records {
		pct := r.Percentage()
		qp += c.scale.GPAPoints(r.ScoreValue(), r.MaxScore) * r.Credits
		credits += r.Credits
		pctSum += pct
		if c.scale.IsPassing(pct) {
			passed++
		}
		if i == 0 || pct > p.HighestScore {
			p.HighestScore = pct
		}
		if i == 0 || pct < p.LowestScore {
			p.LowestScore = pct
		}
	}

	p.Credits = credits
	if credits > 0 {
		p.SemesterGPA = qp / credits
	}
	if n := len(records); n > 0 {
		p.AverageScore = shared.Round(pctSum/float64(n), 2)
		p.PassRate = shared.Round(float64(passed)/float64(n)*100, 2)
	}
	return p
}

func (c *Calculator) letters() []Letter {
	out := make([]Letter, 0, len(c.scale.policy.LetterCuts)+1)
	for _, cut := range c.scale.policy.LetterCuts {
		out = append(out, cut.Label)
	}
	return append(out, c.scale.policy.FailLetter)
}

func (c *Calculator) fiveLevels() []FiveLevel {
	out := make([]FiveLevel, 0, len(c.scale.policy.FiveLevelCuts)+1)
	for _, cut := range c.scale.policy.FiveLevelCuts {
		out = append(out, cut.Label)
	}
	return append(out, c.scale.policy.FailFiveLevel)
}

func summarize(r ScoreRecord, pct float64) CourseSummary {
	return CourseSummary{
		CourseID:     r.CourseID,
		CourseName:   r.CourseName,
		Score:        r.ScoreValue(),
		MaxScore:     r.MaxScore,
		Percentage:   shared.Round(pct, 2),
		Credits:      r.Credits,
		AcademicYear: r.AcademicYear,
		Semester:     r.Semester,
	}
}

func ownedBy(studentID string, records []ScoreRecord) []ScoreRecord {
	out := make([]ScoreRecord, 0, len(records))
	for _, r := range records {
		if r.StudentID == studentID {
			out = append(out, r)
		}
	}
	return out
}
