// Package scoring converts a logged duration into points.
package scoring

import (
	"context"
	"math"
	"strconv"

	"example.com/octofit/internal/domain"
)

// TypeLookup resolves activity types; any domain.ActivityTypeRepository
// satisfies it.
type TypeLookup interface {
	GetActivityType(ctx context.Context, id string) (*domain.ActivityType, error)
}

// Result is the outcome of scoring one activity.
type Result struct {
	Type   domain.ActivityType
	Points int64
}

// Engine scores activities against the catalog. It holds no mutable state.
type Engine struct {
	types TypeLookup
}

// NewEngine constructs an Engine.
func NewEngine(types TypeLookup) *Engine {
	return &Engine{types: types}
}

// Score computes points for durationMinutes of the given type. Distance is
// accepted and validated but does not change the result.
func (e *Engine) Score(ctx context.Context, activityTypeID string, durationMinutes int, distance *float64) (Result, error) {
	if durationMinutes <= 0 {
		return Result{}, domain.NewValidationError("duration_minutes", domain.CodeInvalidDuration, "duration_minutes must be > 0")
	}
	if distance != nil && (*distance < 0 || math.IsNaN(*distance) || math.IsInf(*distance, 0)) {
		return Result{}, domain.NewValidationError("distance", domain.CodeInvalidDistance, "distance must be a non-negative number")
	}

	t, err := e.types.GetActivityType(ctx, activityTypeID)
	if err != nil {
		if domain.IsNotFound(err) {
			return Result{}, invalidType(activityTypeID)
		}
		return Result{}, err
	}
	if t == nil {
		return Result{}, invalidType(activityTypeID)
	}

	points, ok := Points(t.PointsPerMinute, durationMinutes)
	if !ok {
		return Result{}, domain.NewValidationError("duration_minutes", domain.CodeInvalidDuration, "duration_minutes is too large")
	}
	return Result{Type: *t, Points: points}, nil
}

// Points returns rate*minutes rounded half-up to an integer. ok is false
// when the product does not fit in an int64.
func Points(rate domain.Rate, minutes int) (int64, bool) {
	h := rate.Hundredths()
	m := int64(minutes)
	if h < 0 || m < 0 {
		return 0, false
	}
	if h != 0 && m > (math.MaxInt64-50)/h {
		return 0, false
	}
	return (h*m + 50) / 100, true
}

func invalidType(id string) error {
	return domain.NewValidationError("activity_type_id", domain.CodeInvalidActivityType, "unknown activity type "+strconv.Quote(id))
}
