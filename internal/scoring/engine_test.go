package scoring

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/octofit/internal/domain"
)

type stubTypes map[string]domain.ActivityType

func (s stubTypes) GetActivityType(_ context.Context, id string) (*domain.ActivityType, error) {
	t, ok := s[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func newEngine() *Engine {
	return NewEngine(stubTypes{
		"run":  {ID: "run", Name: "Running", PointsPerMinute: domain.MustParseRate("2")},
		"yoga": {ID: "yoga", Name: "Yoga", PointsPerMinute: domain.MustParseRate("1.25")},
		"walk": {ID: "walk", Name: "Walking", PointsPerMinute: domain.MustParseRate("0.50")},
		"rest": {ID: "rest", Name: "Rest", PointsPerMinute: 0},
	})
}

func TestScoreRunThirtyMinutes(t *testing.T) {
	res, err := newEngine().Score(context.Background(), "run", 30, nil)
	require.NoError(t, err)
	require.Equal(t, int64(60), res.Points)
	require.Equal(t, "Running", res.Type.Name)
}

func TestScoreRoundsHalfUp(t *testing.T) {
	e := newEngine()
	cases := []struct {
		typ     string
		minutes int
		want    int64
	}{
		{"yoga", 1, 1},  // 1.25
		{"yoga", 2, 3},  // 2.50
		{"yoga", 3, 4},  // 3.75
		{"walk", 1, 1},  // 0.50
		{"walk", 3, 2},  // 1.50
		{"walk", 5, 3},  // 2.50
		{"rest", 90, 0}, // zero rate
	}
	for _, tc := range cases {
		res, err := e.Score(context.Background(), tc.typ, tc.minutes, nil)
		require.NoError(t, err)
		require.Equalf(t, tc.want, res.Points, "%s x %d", tc.typ, tc.minutes)
	}
}

func TestScoreIgnoresDistance(t *testing.T) {
	e := newEngine()
	km := 12.5
	with, err := e.Score(context.Background(), "run", 45, &km)
	require.NoError(t, err)
	without, err := e.Score(context.Background(), "run", 45, nil)
	require.NoError(t, err)
	require.Equal(t, without.Points, with.Points)
}

func TestScoreRejectsInvalidInput(t *testing.T) {
	e := newEngine()
	ctx := context.Background()

	_, err := e.Score(ctx, "climb", 10, nil)
	requireValidation(t, err, domain.CodeInvalidActivityType, "activity_type_id")

	for _, minutes := range []int{0, -5} {
		_, err = e.Score(ctx, "run", minutes, nil)
		requireValidation(t, err, domain.CodeInvalidDuration, "duration_minutes")
	}

	negative := -1.0
	_, err = e.Score(ctx, "run", 10, &negative)
	requireValidation(t, err, domain.CodeInvalidDistance, "distance")

	_, err = e.Score(ctx, "run", math.MaxInt64/10, nil)
	requireValidation(t, err, domain.CodeInvalidDuration, "duration_minutes")
}

func TestPointsMatchesFormulaOverGrid(t *testing.T) {
	for h := int64(0); h <= 1000; h += 7 {
		for m := 1; m <= 600; m += 13 {
			got, ok := Points(domain.Rate(h), m)
			require.True(t, ok)
			require.GreaterOrEqual(t, got, int64(0))

			exact := float64(h) * float64(m) / 100
			want := int64(math.Floor(exact + 0.5))
			require.Equalf(t, want, got, "rate %d/100 x %d", h, m)
		}
	}
}

func TestScoreIsSafeForConcurrentUse(t *testing.T) {
	e := newEngine()
	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(minutes int) {
			defer wg.Done()
			res, err := e.Score(context.Background(), "run", minutes, nil)
			if err != nil {
				errs <- err
				return
			}
			if res.Points != int64(2*minutes) {
				errs <- errors.New("unexpected points")
			}
		}(i + 1)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func requireValidation(t *testing.T, err error, code, field string) {
	t.Helper()
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	require.Equal(t, code, verr.Code)
	require.Equal(t, field, verr.Field)
}
