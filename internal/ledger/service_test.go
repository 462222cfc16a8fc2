package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"example.com/octofit/internal/catalog"
	"example.com/octofit/internal/domain"
	"example.com/octofit/internal/persistence/memory"
	"example.com/octofit/internal/scoring"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	store *memory.Store
	clock *clockwork.FakeClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.NewStore()
	clock := clockwork.NewFakeClockAt(epoch)
	require.NoError(t, catalog.NewRegistry(store, clock).Seed(context.Background(), catalog.Defaults))
	return fixture{
		svc:   NewService(store, scoring.NewEngine(store), clock),
		store: store,
		clock: clock,
	}
}

func TestAppendScoresAndCreditsProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Append(ctx, NewActivity{UserID: "alice", ActivityTypeID: "run", DurationMinutes: 30})
	require.NoError(t, err)
	require.NotEmpty(t, a.ID)
	require.Equal(t, int64(60), a.PointsEarned)
	require.Equal(t, domain.MustParseRate("2.00"), a.PointsPerMinute)
	require.Equal(t, epoch, a.LoggedAt)
	require.Equal(t, epoch, a.ActivityDate)

	profile, err := f.store.GetProfile(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(60), profile.Points)

	got, err := f.svc.Get(ctx, "alice", a.ID)
	require.NoError(t, err)
	require.Equal(t, a.ID, got.ID)
	require.Equal(t, "Running", got.ActivityType.Name)
}

func TestAppendRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	future := epoch.Add(time.Minute)
	_, err := f.svc.Append(ctx, NewActivity{UserID: "alice", ActivityTypeID: "run", DurationMinutes: 30, ActivityDate: &future})
	require.ErrorContains(t, err, "activity_date")

	_, err = f.svc.Append(ctx, NewActivity{UserID: "alice", ActivityTypeID: "kayak", DurationMinutes: 30})
	require.ErrorContains(t, err, "activity_type_id")

	_, err = f.svc.Append(ctx, NewActivity{UserID: "alice", ActivityTypeID: "run", DurationMinutes: 0})
	require.ErrorContains(t, err, "duration_minutes")

	calories := -10
	_, err = f.svc.Append(ctx, NewActivity{UserID: "alice", ActivityTypeID: "run", DurationMinutes: 5, CaloriesBurned: &calories})
	require.ErrorContains(t, err, "calories_burned")

	page, err := f.svc.List(ctx, "alice", Query{})
	require.NoError(t, err)
	require.Empty(t, page.Items, "rejected appends leave no trace")

	profile, err := f.store.GetProfile(ctx, "alice")
	require.NoError(t, err)
	require.Nil(t, profile)
}

func TestAppendAcceptsBackdatedActivity(t *testing.T) {
	f := newFixture(t)
	past := epoch.AddDate(0, 0, -3)

	a, err := f.svc.Append(context.Background(), NewActivity{UserID: "alice", ActivityTypeID: "walk", DurationMinutes: 15, ActivityDate: &past})
	require.NoError(t, err)
	require.Equal(t, past, a.ActivityDate)
	require.Equal(t, epoch, a.LoggedAt)
}

func TestListPagesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		date := epoch.AddDate(0, 0, -5+i)
		a, err := f.svc.Append(ctx, NewActivity{UserID: "alice", ActivityTypeID: "yoga", DurationMinutes: 10 + i, ActivityDate: &date})
		require.NoError(t, err)
		ids = append([]string{a.ID}, ids...)
		f.clock.Advance(time.Second)
	}
	_, err := f.svc.Append(ctx, NewActivity{UserID: "bob", ActivityTypeID: "yoga", DurationMinutes: 10})
	require.NoError(t, err)

	first, err := f.svc.List(ctx, "alice", Query{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotNil(t, first.Next)
	require.Equal(t, ids[:2], activityIDs(first.Items))

	second, err := f.svc.List(ctx, "alice", Query{Limit: 2, Cursor: first.Next})
	require.NoError(t, err)
	require.Equal(t, ids[2:4], activityIDs(second.Items))

	last, err := f.svc.List(ctx, "alice", Query{Limit: 2, Cursor: second.Next})
	require.NoError(t, err)
	require.Equal(t, ids[4:], activityIDs(last.Items))
	require.Nil(t, last.Next)

	since := epoch.AddDate(0, 0, -2)
	recent, err := f.svc.List(ctx, "alice", Query{Since: &since})
	require.NoError(t, err)
	require.Len(t, recent.Items, 2)
}

func TestStatsAndSums(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	km := 5.5
	calories := 300
	_, err := f.svc.Append(ctx, NewActivity{UserID: "alice", ActivityTypeID: "run", DurationMinutes: 30, Distance: &km, CaloriesBurned: &calories})
	require.NoError(t, err)
	b, err := f.svc.Append(ctx, NewActivity{UserID: "alice", ActivityTypeID: "cycle", DurationMinutes: 20})
	require.NoError(t, err)
	require.Equal(t, int64(30), b.PointsEarned)

	stats, err := f.svc.Stats(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, domain.ActivityStats{
		TotalActivities: 2,
		TotalDuration:   50,
		TotalDistance:   5.5,
		TotalPoints:     90,
		TotalCalories:   300,
	}, stats)

	points, err := f.svc.SumPoints(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(90), points)

	minutes, err := f.svc.SumDuration(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(50), minutes)

	distance, err := f.svc.SumDistance(ctx, "alice")
	require.NoError(t, err)
	require.InDelta(t, 5.5, distance, 1e-9)

	empty, err := f.svc.Stats(ctx, "nobody")
	require.NoError(t, err)
	require.Zero(t, empty.TotalActivities)
}

func TestVoidReversesPointsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Append(ctx, NewActivity{UserID: "alice", ActivityTypeID: "run", DurationMinutes: 30})
	require.NoError(t, err)
	_, err = f.svc.Append(ctx, NewActivity{UserID: "alice", ActivityTypeID: "walk", DurationMinutes: 10})
	require.NoError(t, err)

	voided, err := f.svc.Void(ctx, a.ID, " duplicate ", "admin-1")
	require.NoError(t, err)
	require.Equal(t, domain.ActivityStatusVoided, voided.Status())
	require.Equal(t, "duplicate", voided.Void.Reason)

	_, err = f.svc.Void(ctx, a.ID, "again", "admin-1")
	require.ErrorIs(t, err, domain.ErrAlreadyVoided)

	_, err = f.svc.Void(ctx, "missing", "", "admin-1")
	require.True(t, domain.IsNotFound(err))

	points, err := f.svc.SumPoints(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(10), points)

	profile, err := f.store.GetProfile(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(10), profile.Points)

	page, err := f.svc.List(ctx, "alice", Query{})
	require.NoError(t, err)
	require.Len(t, page.Items, 2, "voided entries stay in the ledger")
}

func TestGetIsScopedToOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.Append(ctx, NewActivity{UserID: "alice", ActivityTypeID: "swim", DurationMinutes: 40})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, "bob", a.ID)
	require.True(t, domain.IsNotFound(err))
}

func TestConcurrentAppendsKeepProfileInStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for u := 0; u < 4; u++ {
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func(user string) {
				defer wg.Done()
				_, err := f.svc.Append(ctx, NewActivity{UserID: user, ActivityTypeID: "walk", DurationMinutes: 3})
				require.NoError(t, err)
			}(fmt.Sprintf("user-%d", u))
		}
	}
	wg.Wait()

	for u := 0; u < 4; u++ {
		user := fmt.Sprintf("user-%d", u)
		points, err := f.svc.SumPoints(ctx, user)
		require.NoError(t, err)
		require.Equal(t, int64(75), points)

		profile, err := f.store.GetProfile(ctx, user)
		require.NoError(t, err)
		require.Equal(t, points, profile.Points)
	}
}

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, 20, NormalizeLimit(0, DefaultLimit, MaxLimit))
	require.Equal(t, 20, NormalizeLimit(-3, DefaultLimit, MaxLimit))
	require.Equal(t, 7, NormalizeLimit(7, DefaultLimit, MaxLimit))
	require.Equal(t, 100, NormalizeLimit(5000, DefaultLimit, MaxLimit))
}

func activityIDs(items []domain.Activity) []string {
	out := make([]string, 0, len(items))
	for _, a := range items {
		out = append(out, a.ID)
	}
	return out
}
