// Package cache memoizes analytics results in two tiers: an in-process map
// and an optional shared backend. Backend failures never reach the caller;
// the cache falls back to the local tier and, on a miss, to recomputation.
package cache

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"

	"golang.org/x/crypto/blake2b"
)

// Key prefixes of the cached computations.
const (
	PrefixStudentGPA    = "student_gpa"
	PrefixStudentTrend  = "student_trend"
	PrefixCohortRanking = "cohort_ranking"
	PrefixCohortTrend   = "cohort_trend"
	PrefixDistribution  = "distribution"
	PrefixCourseTrend   = "course_trend"
	PrefixPrediction    = "graduation_prediction"
	PrefixComparison    = "cohort_comparison"
)

// Params are the inputs that identify a cached computation.
type Params map[string]any

// Key derives a deterministic cache key from a prefix and parameters:
// prefix + ":" + hex(BLAKE2b-256(JSON(params))). Map keys are sorted by the
// JSON encoder, so insertion order never affects the key. Nil values are
// dropped, so an absent parameter and an explicit nil give the same key.
func Key(prefix string, params Params) string {
	clean := make(map[string]any, len(params))
	for k, v := range params {
		if isNil(v) {
			continue
		}
		clean[k] = v
	}

	data, err := json.Marshal(clean)
	if err != nil {
		// fmt prints maps with sorted keys as well.
		data = []byte(fmt.Sprintf("%v", clean))
	}
	sum := blake2b.Sum256(data)
	return prefix + ":" + hex.EncodeToString(sum[:])
}

// PrefixPattern matches every key of a prefix.
func PrefixPattern(prefix string) string {
	return prefix + ":*"
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
