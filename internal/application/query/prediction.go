package query

import (
	"context"
	"fmt"

	"github.com/unigrade/grade-analytics/internal/domain/grading"
	"github.com/unigrade/grade-analytics/internal/domain/shared"
	"github.com/unigrade/grade-analytics/internal/infrastructure/cache"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRADUATION PREDICTION QUERY
// ══════════════════════════════════════════════════════════════════════════════

// PredictionQuery asks for a student's projected graduation GPA.
type PredictionQuery struct {
	StudentID        string
	RemainingCredits float64

	// AssumedGPA is the GPA expected over the remaining credits; nil reuses
	// the current GPA.
	AssumedGPA *float64
}

// PredictionResult pairs the current GPA with the forecast.
type PredictionResult struct {
	StudentID string `json:"student_id"`
	grading.GraduationForecast
}

// PredictionHandler forecasts graduation GPAs.
type PredictionHandler struct {
	svc *Services
	gpa *StudentGPAHandler
}

// NewPredictionHandler creates a PredictionHandler.
func NewPredictionHandler(svc *Services) *PredictionHandler {
	return &PredictionHandler{svc: svc, gpa: NewStudentGPAHandler(svc)}
}

// Handle blends the student's current cumulative GPA with the assumed GPA
// over the remaining credits.
func (h *PredictionHandler) Handle(ctx context.Context, q PredictionQuery) (*PredictionResult, error) {
	if err := requireID("Prediction", "student_id", q.StudentID); err != nil {
		return nil, err
	}
	if q.RemainingCredits < 0 {
		return nil, shared.NewDomainError("query", "Prediction", shared.ErrInvalidInput,
			fmt.Sprintf("remaining credits %v are negative", q.RemainingCredits))
	}
	if q.AssumedGPA != nil && (*q.AssumedGPA < 0 || *q.AssumedGPA > h.svc.Scale().MaxGPA()) {
		return nil, shared.NewDomainError("query", "Prediction", shared.ErrInvalidInput,
			fmt.Sprintf("assumed GPA %v outside [0,%v]", *q.AssumedGPA, h.svc.Scale().MaxGPA()))
	}

	params := cache.Params{"student_id": q.StudentID, "remaining_credits": q.RemainingCredits}
	if q.AssumedGPA != nil {
		params["assumed_gpa"] = *q.AssumedGPA
	}
	key := cache.Key(cache.PrefixPrediction, params)

	res, err := cached(ctx, h.svc, "Prediction", key, h.svc.TTL.Student, false, func(ctx context.Context) (PredictionResult, error) {
		current, err := h.gpa.Handle(ctx, StudentGPAQuery{StudentID: q.StudentID})
		if err != nil {
			return PredictionResult{}, err
		}
		return PredictionResult{
			StudentID:          q.StudentID,
			GraduationForecast: h.svc.Scale().PredictGraduation(current.TotalGPA, current.TotalCredits, q.RemainingCredits, q.AssumedGPA),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}
