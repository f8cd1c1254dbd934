package distribution

import (
	"cmp"
	"math"
	"slices"

	"github.com/unigrade/grade-analytics/internal/domain/grading"
	"github.com/unigrade/grade-analytics/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIG
// ══════════════════════════════════════════════════════════════════════════════

// Config holds every tunable of the analyzer.
type Config struct {
	// BinWidth is the histogram interval width in percentage points.
	BinWidth float64

	// OutlierMultiplier scales the IQR fences.
	OutlierMultiplier float64

	// Concentration holds the standard deviation label cut points.
	Concentration Thresholds

	// CompactSpreadBelow labels a set "compact" when its standard deviation
	// is below this value, "spread" otherwise.
	CompactSpreadBelow float64

	PassPercent      float64
	GoodPercent      float64
	ExcellentPercent float64

	// TopStudents limits the per-student table of cohort reports.
	TopStudents int

	// Consistency labels the spread of cohort averages in comparisons.
	Consistency ConsistencyCuts
}

// DefaultConfig returns the stock analyzer configuration.
func DefaultConfig() Config {
	return Config{
		BinWidth:           5,
		OutlierMultiplier:  1.5,
		Concentration:      DefaultThresholds(),
		CompactSpreadBelow: 10,
		PassPercent:        60,
		GoodPercent:        75,
		ExcellentPercent:   85,
		TopStudents:        20,
		Consistency:        DefaultConsistencyCuts(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	const op = "Config.Validate"
	switch {
	case c.BinWidth <= 0 || math.IsNaN(c.BinWidth):
		return shared.ConfigError("distribution", op, "bin width must be positive, got %v", c.BinWidth)
	case c.OutlierMultiplier <= 0 || math.IsNaN(c.OutlierMultiplier):
		return shared.ConfigError("distribution", op, "outlier multiplier must be positive, got %v", c.OutlierMultiplier)
	case c.Concentration.HighlyBelow <= 0 || c.Concentration.ModeratelyBelow <= c.Concentration.HighlyBelow:
		return shared.ConfigError("distribution", op, "concentration thresholds must satisfy 0 < highly (%v) < moderately (%v)",
			c.Concentration.HighlyBelow, c.Concentration.ModeratelyBelow)
	case c.PassPercent <= 0 || c.GoodPercent < c.PassPercent || c.ExcellentPercent < c.GoodPercent || c.ExcellentPercent > 100:
		return shared.ConfigError("distribution", op, "rate cut points must satisfy 0 < pass (%v) <= good (%v) <= excellent (%v) <= 100",
			c.PassPercent, c.GoodPercent, c.ExcellentPercent)
	case c.TopStudents < 0:
		return shared.ConfigError("distribution", op, "top students must not be negative, got %d", c.TopStudents)
	case c.Consistency.HighBelow <= 0 || c.Consistency.MediumBelow <= c.Consistency.HighBelow:
		return shared.ConfigError("distribution", op, "consistency cuts must satisfy 0 < high (%v) < medium (%v)",
			c.Consistency.HighBelow, c.Consistency.MediumBelow)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REPORT
// ══════════════════════════════════════════════════════════════════════════════

// Rates are shares of the score set in percent.
type Rates struct {
	Pass      float64 `json:"pass_rate"`
	Good      float64 `json:"good_rate"`
	Excellent float64 `json:"excellent_rate"`
	Fail      float64 `json:"fail_rate"`
}

// Band is a labelled count in a fixed-range distribution.
type Band struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Report is the full description of one score set.
type Report struct {
	Summary       Summary                   `json:"statistics"`
	Histogram     []Bin                     `json:"histogram"`
	Outliers      OutlierReport             `json:"outliers"`
	Concentration Concentration             `json:"concentration"`
	Spread        string                    `json:"grade_spread"`
	Letters       map[grading.Letter]int    `json:"letter_grades"`
	FiveLevels    map[grading.FiveLevel]int `json:"five_level_distribution"`
	TenPoint      []Band                    `json:"ten_point_distribution"`
	Rates         Rates                     `json:"rates"`
}

// Analyzer computes distribution reports. It is immutable and safe for
// concurrent use.
type Analyzer struct {
	cfg   Config
	scale *grading.Scale
}

// NewAnalyzer validates the configuration and builds an analyzer. The scale
// supplies the letter and five-level mappings.
func NewAnalyzer(cfg Config, scale *grading.Scale) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if scale == nil {
		return nil, shared.ConfigError("distribution", "NewAnalyzer", "grading scale is required")
	}
	return &Analyzer{cfg: cfg, scale: scale}, nil
}

// Config returns the analyzer configuration.
func (a *Analyzer) Config() Config {
	return a.cfg
}

// Analyze describes a set of percentages. An empty set yields a report with
// zero statistics, no bins and zero rates.
func (a *Analyzer) Analyze(percentages []float64) Report {
	summary := Describe(percentages)

	r := Report{
		Summary:       summary,
		Histogram:     Histogram(percentages, a.cfg.BinWidth),
		Outliers:      DetectOutliers(percentages, a.cfg.OutlierMultiplier),
		Concentration: Concentrate(percentages, a.cfg.Concentration),
		Spread:        "compact",
		Letters:       make(map[grading.Letter]int),
		FiveLevels:    make(map[grading.FiveLevel]int),
		TenPoint:      tenPoint(percentages),
	}
	if summary.StdDev >= a.cfg.CompactSpreadBelow {
		r.Spread = "spread"
	}

	policy := a.scale.Policy()
	for _, c := range policy.LetterCuts {
		r.Letters[c.Label] = 0
	}
	r.Letters[policy.FailLetter] = 0
	for _, c := range policy.FiveLevelCuts {
		r.FiveLevels[c.Label] = 0
	}
	r.FiveLevels[policy.FailFiveLevel] = 0

	var pass, good, excellent int
	for _, p := range percentages {
		r.Letters[a.scale.LetterForPercent(p)]++
		r.FiveLevels[a.scale.FiveLevelForPercent(p)]++
		if p >= a.cfg.PassPercent {
			pass++
		}
		if p >= a.cfg.GoodPercent {
			good++
		}
		if p >= a.cfg.ExcellentPercent {
			excellent++
		}
	}

	if n := float64(len(percentages)); n > 0 {
		r.Rates = Rates{
			Pass:      round2(float64(pass) / n * 100),
			Good:      round2(float64(good) / n * 100),
			Excellent: round2(float64(excellent) / n * 100),
			Fail:      round2(100 - float64(pass)/n*100),
		}
	}
	return r
}

// tenPoint counts scores in 90-100, 80-89, ... 0-9 bands.
func tenPoint(percentages []float64) []Band {
	out := make([]Band, 10)
	for i := range out {
		lo := 90 - i*10
		if i == 0 {
			out[i].Label = "90-100"
			continue
		}
		out[i].Label = bandLabel(lo, lo+9)
	}
	for _, p := range percentages {
		idx := 9 - int(math.Floor(shared.Clamp(p, 0, 90)/10))
		out[idx].Count++
	}
	return out
}

func bandLabel(lo, hi int) string {
	return binLabel(float64(lo), float64(hi))
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD SETS
// ══════════════════════════════════════════════════════════════════════════════

// Percentages converts valid records to percentages and counts the rejected
// ones.
func Percentages(records []grading.ScoreRecord) (pcts []float64, skipped int) {
	valid, skipped := grading.Partition(records)
	pcts = make([]float64, len(valid))
	for i, r := range valid {
		pcts[i] = r.Percentage()
	}
	return pcts, skipped
}

// CourseStats summarizes one course within a cohort report.
type CourseStats struct {
	CourseID      string  `json:"course_id"`
	CourseName    string  `json:"course_name,omitempty"`
	StudentCount  int     `json:"student_count"`
	Statistics    Summary `json:"statistics"`
	PassRate      float64 `json:"pass_rate"`
	ExcellentRate float64 `json:"excellent_rate"`
}

// StudentPerformance summarizes one student within a cohort report.
type StudentPerformance struct {
	StudentID    string  `json:"student_id"`
	AverageScore float64 `json:"average_score"`
	CourseCount  int     `json:"course_count"`
	HighestScore float64 `json:"highest_score"`
	LowestScore  float64 `json:"lowest_score"`
}

// CohortReport describes every score of a class or cohort.
type CohortReport struct {
	Overall        Report               `json:"overall"`
	Courses        []CourseStats        `json:"course_analysis"`
	Students       []StudentPerformance `json:"student_performance"`
	SkippedRecords int                  `json:"skipped_records"`
}

// AnalyzeRecords builds a Report over the percentages of valid records.
func (a *Analyzer) AnalyzeRecords(records []grading.ScoreRecord) (Report, int) {
	pcts, skipped := Percentages(records)
	return a.Analyze(pcts), skipped
}

// AnalyzeCohort builds the overall report plus per-course and per-student
// breakdowns. Courses are ordered by course ID; students by average score
// descending, then ID, truncated to Config.TopStudents.
func (a *Analyzer) AnalyzeCohort(records []grading.ScoreRecord) CohortReport {
	valid, skipped := grading.Partition(records)

	all := make([]float64, 0, len(valid))
	byCourse := make(map[string][]float64)
	names := make(map[string]string)
	byStudent := make(map[string][]float64)
	for _, r := range valid {
		p := r.Percentage()
		all = append(all, p)
		byCourse[r.CourseID] = append(byCourse[r.CourseID], p)
		byStudent[r.StudentID] = append(byStudent[r.StudentID], p)
		if r.CourseName != "" {
			names[r.CourseID] = r.CourseName
		}
	}

	report := CohortReport{
		Overall:        a.Analyze(all),
		Courses:        make([]CourseStats, 0, len(byCourse)),
		Students:       make([]StudentPerformance, 0, len(byStudent)),
		SkippedRecords: skipped,
	}

	for id, pcts := range byCourse {
		var pass, excellent int
		for _, p := range pcts {
			if p >= a.cfg.PassPercent {
				pass++
			}
			if p >= a.cfg.ExcellentPercent {
				excellent++
			}
		}
		n := float64(len(pcts))
		report.Courses = append(report.Courses, CourseStats{
			CourseID:      id,
			CourseName:    names[id],
			StudentCount:  len(pcts),
			Statistics:    Describe(pcts),
			PassRate:      round2(float64(pass) / n * 100),
			ExcellentRate: round2(float64(excellent) / n * 100),
		})
	}
	slices.SortFunc(report.Courses, func(x, y CourseStats) int {
		return cmp.Compare(x.CourseID, y.CourseID)
	})

	for id, pcts := range byStudent {
		mean, _ := MeanStdDev(pcts)
		report.Students = append(report.Students, StudentPerformance{
			StudentID:    id,
			AverageScore: round2(mean),
			CourseCount:  len(pcts),
			HighestScore: round2(slices.Max(pcts)),
			LowestScore:  round2(slices.Min(pcts)),
		})
	}
	slices.SortFunc(report.Students, func(x, y StudentPerformance) int {
		if c := cmp.Compare(y.AverageScore, x.AverageScore); c != 0 {
			return c
		}
		return cmp.Compare(x.StudentID, y.StudentID)
	})
	if a.cfg.TopStudents > 0 && len(report.Students) > a.cfg.TopStudents {
		report.Students = report.Students[:a.cfg.TopStudents]
	}
	return report
}
