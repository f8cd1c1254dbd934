package grading

import (
	"cmp"
	"slices"
)

// RetakePolicy selects which attempt of a repeated course counts toward GPA.
type RetakePolicy string

const (
	// RetakeBestScore keeps the attempt with the highest raw score.
	RetakeBestScore RetakePolicy = "best_score"
	// RetakeLatest keeps the most recent attempt (by SubmittedAt, then term).
	RetakeLatest RetakePolicy = "latest"
)

// IsValid reports whether the policy is known.
func (p RetakePolicy) IsValid() bool {
	return p == RetakeBestScore || p == RetakeLatest
}

// Resolution is the outcome of retake resolution.
type Resolution struct {
	// Counted holds exactly one record per (student, course).
	Counted []ScoreRecord `json:"counted"`

	// History holds superseded attempts, excluded from aggregation.
	History []ScoreRecord `json:"history"`
}

type courseKey struct {
	studentID string
	courseID  string
}

// ResolveRetakes keeps one attempt per (student, course) using the best
// score policy.
func ResolveRetakes(records []ScoreRecord) Resolution {
	return ResolveRetakesWith(records, RetakeBestScore)
}

// ResolveRetakesWith keeps one attempt per (student, course) under the given
// policy. Under RetakeBestScore, equal scores keep the later term and then the
// earlier input position. Counted records are sorted by term, then course.
func ResolveRetakesWith(records []ScoreRecord, policy RetakePolicy) Resolution {
	if len(records) == 0 {
		return Resolution{Counted: []ScoreRecord{}, History: []ScoreRecord{}}
	}

	winners := make(map[courseKey]int, len(records))
	order := make([]courseKey, 0, len(records))

	for i, r := range records {
		k := courseKey{studentID: r.StudentID, courseID: r.CourseID}
		cur, seen := winners[k]
		if !seen {
			winners[k] = i
			order = append(order, k)
			continue
		}
		if supersedes(r, records[cur], policy) {
			winners[k] = i
		}
	}

	res := Resolution{
		Counted: make([]ScoreRecord, 0, len(order)),
		History: make([]ScoreRecord, 0, len(records)-len(order)),
	}
	kept := make(map[int]struct{}, len(order))
	for _, k := range order {
		idx := winners[k]
		kept[idx] = struct{}{}
		res.Counted = append(res.Counted, records[idx])
	}
	for i, r := range records {
		if _, ok := kept[i]; !ok {
			res.History = append(res.History, r)
		}
	}

	slices.SortStableFunc(res.Counted, func(a, b ScoreRecord) int {
		if c := a.Term().Compare(b.Term()); c != 0 {
			return c
		}
		return cmp.Compare(a.CourseID, b.CourseID)
	})
	return res
}

// supersedes reports whether candidate replaces the current winner.
// Earlier input wins any remaining tie.
func supersedes(candidate, current ScoreRecord, policy RetakePolicy) bool {
	if policy == RetakeLatest {
		if !candidate.SubmittedAt.Equal(current.SubmittedAt) {
			return candidate.SubmittedAt.After(current.SubmittedAt)
		}
		return current.Term().Before(candidate.Term())
	}

	cs, ws := candidate.ScoreValue(), current.ScoreValue()
	if cs != ws {
		return cs > ws
	}
	return current.Term().Before(candidate.Term())
}
