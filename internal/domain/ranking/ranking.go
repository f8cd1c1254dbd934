// Package ranking orders a cohort by GPA using competition ranking: equal
// GPAs share the rank of the first member of their tie group and the rank
// after a group skips by the group size.
package ranking

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/unigrade/grade-analytics/internal/domain/grading"
	"github.com/unigrade/grade-analytics/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Rank is a 1-based position in a ranking.
type Rank int

// String returns the rank as "#n".
func (r Rank) String() string {
	return fmt.Sprintf("#%d", r)
}

// Candidate is one student's input to RankCohort.
type Candidate struct {
	StudentID    string  `json:"student_id"`
	GPA          float64 `json:"gpa"`
	TotalCredits float64 `json:"total_credits"`
	TotalCourses int     `json:"total_courses"`
}

// CandidatesFrom converts GPA results into ranking candidates. Students
// without counted credits are left out of the cohort.
func CandidatesFrom(results []grading.GPAResult) []Candidate {
	out := make([]Candidate, 0, len(results))
	for _, r := range results {
		if r.TotalCredits <= 0 {
			continue
		}
		out = append(out, Candidate{
			StudentID:    r.StudentID,
			GPA:          r.TotalGPA,
			TotalCredits: r.TotalCredits,
			TotalCourses: r.TotalCourses,
		})
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKING ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry is one ranked student.
type Entry struct {
	StudentID    string  `json:"student_id"`
	GPA          float64 `json:"gpa"`
	Rank         Rank    `json:"rank"`
	Percentile   float64 `json:"percentile"`
	IsTied       bool    `json:"is_tied"`
	TiedCount    int     `json:"tied_count"`
	TotalCredits float64 `json:"total_credits"`
	TotalCourses int     `json:"total_courses"`
}

// String returns a compact form for logging.
func (e Entry) String() string {
	return fmt.Sprintf("Entry{Rank: %s, Student: %s, GPA: %.3f, Percentile: %.2f}",
		e.Rank, e.StudentID, e.GPA, e.Percentile)
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKING (Ranked List)
// ══════════════════════════════════════════════════════════════════════════════

// Ranking is an immutable, sorted cohort ranking.
type Ranking struct {
	entries []Entry
	byID    map[string]int
}

// RankCohort sorts candidates by GPA descending, then student ID ascending,
// and assigns competition ranks and rank-based percentiles. An empty cohort
// yields an empty ranking.
func RankCohort(candidates []Candidate) *Ranking {
	sorted := slices.Clone(candidates)
	slices.SortStableFunc(sorted, func(a, b Candidate) int {
		if c := cmp.Compare(b.GPA, a.GPA); c != 0 {
			return c
		}
		return cmp.Compare(a.StudentID, b.StudentID)
	})

	n := len(sorted)
	r := &Ranking{
		entries: make([]Entry, 0, n),
		byID:    make(map[string]int, n),
	}

	for i := 0; i < n; {
		j := i + 1
		for j < n && sorted[j].GPA == sorted[i].GPA {
			j++
		}
		group := j - i
		rank := Rank(i + 1)
		pct := shared.Round(float64(n-int(rank))/float64(n)*100, 2)

		for _, c := range sorted[i:j] {
			r.byID[c.StudentID] = len(r.entries)
			r.entries = append(r.entries, Entry{
				StudentID:    c.StudentID,
				GPA:          c.GPA,
				Rank:         rank,
				Percentile:   pct,
				IsTied:       group > 1,
				TiedCount:    group,
				TotalCredits: c.TotalCredits,
				TotalCourses: c.TotalCourses,
			})
		}
		i = j
	}
	return r
}

// Entries returns a copy of all entries in rank order.
func (r *Ranking) Entries() []Entry {
	return slices.Clone(r.entries)
}

// Count returns the number of ranked students.
func (r *Ranking) Count() int {
	return len(r.entries)
}

// GetByID returns the entry for a student.
func (r *Ranking) GetByID(studentID string) (Entry, bool) {
	idx, ok := r.byID[studentID]
	if !ok {
		return Entry{}, false
	}
	return r.entries[idx], true
}

// Top returns the first n entries.
func (r *Ranking) Top(n int) []Entry {
	if n <= 0 {
		return nil
	}
	return r.Slice(0, n)
}

// Slice returns entries [from:to), clamped to the ranking bounds.
func (r *Ranking) Slice(from, to int) []Entry {
	from = max(from, 0)
	to = min(to, len(r.entries))
	if from >= to {
		return nil
	}
	return slices.Clone(r.entries[from:to])
}

// Neighbors returns up to k entries on each side of the student, the student
// included.
func (r *Ranking) Neighbors(studentID string, k int) []Entry {
	idx, ok := r.byID[studentID]
	if !ok {
		return nil
	}
	return r.Slice(idx-k, idx+k+1)
}

// GPAs returns the GPA of every entry in rank order.
func (r *Ranking) GPAs() []float64 {
	out := make([]float64, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.GPA
	}
	return out
}
