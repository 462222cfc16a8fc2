// Package storetest is the behavioural contract every domain.Store backend
// must satisfy. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"example.com/octofit/internal/domain"
)

// Factory returns an empty store; Run closes it.
type Factory func(t *testing.T) domain.Store

var base = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

var (
	run  = domain.ActivityType{ID: "run", Name: "Running", PointsPerMinute: 200, Icon: "running", CreatedAt: base}
	yoga = domain.ActivityType{ID: "yoga", Name: "Yoga", Description: "Mobility", PointsPerMinute: 125, CreatedAt: base}
)

// Run executes the contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	cases := []struct {
		name string
		fn   func(t *testing.T, s domain.Store)
	}{
		{"ActivityTypes", testActivityTypes},
		{"AppendAndGet", testAppendAndGet},
		{"ListOrderAndCursor", testListOrderAndCursor},
		{"VoidAndProfilePoints", testVoidAndProfilePoints},
		{"StatsAndTotals", testStatsAndTotals},
		{"SaveProfileKeepsPoints", testSaveProfileKeepsPoints},
		{"PointsChecks", testPointsChecks},
		{"PointsCheckDuringAppends", testPointsCheckDuringAppends},
		{"Teams", testTeams},
		{"ConcurrentJoins", testConcurrentJoins},
		{"LeaveTwice", testLeaveTwice},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

func seed(t *testing.T, s domain.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateActivityType(ctx, run))
	require.NoError(t, s.CreateActivityType(ctx, yoga))
}

func entry(userID string, typ domain.ActivityType, minutes int, date, logged time.Time) domain.Activity {
	return domain.Activity{
		ID:              uuid.NewString(),
		UserID:          userID,
		ActivityTypeID:  typ.ID,
		ActivityType:    typ,
		DurationMinutes: minutes,
		ActivityDate:    date,
		LoggedAt:        logged,
		PointsPerMinute: typ.PointsPerMinute,
		PointsEarned:    (typ.PointsPerMinute.Hundredths()*int64(minutes) + 50) / 100,
	}
}

func testActivityTypes(t *testing.T, s domain.Store) {
	ctx := context.Background()
	seed(t, s)

	require.ErrorIs(t, s.CreateActivityType(ctx, run), domain.ErrActivityTypeExists)
	dupName := run
	dupName.ID = "jog"
	require.ErrorIs(t, s.CreateActivityType(ctx, dupName), domain.ErrActivityTypeExists)

	got, err := s.GetActivityType(ctx, "yoga")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, domain.Rate(125), got.PointsPerMinute)
	require.Equal(t, "Mobility", got.Description)

	missing, err := s.GetActivityType(ctx, "kayak")
	require.NoError(t, err)
	require.Nil(t, missing)

	list, err := s.ListActivityTypes(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.NoError(t, s.AppendActivity(ctx, entry("alice", run, 10, base, base)))
	require.ErrorIs(t, s.DeleteActivityType(ctx, "run"), domain.ErrActivityTypeReferenced)
	require.NoError(t, s.DeleteActivityType(ctx, "yoga"))
	require.True(t, domain.IsNotFound(s.DeleteActivityType(ctx, "yoga")))

	gone := entry("alice", yoga, 10, base, base)
	require.True(t, domain.IsNotFound(s.AppendActivity(ctx, gone)))
}

func testAppendAndGet(t *testing.T, s domain.Store) {
	ctx := context.Background()
	seed(t, s)

	km := 4.2
	calories := 310
	a := entry("alice", run, 30, base.Add(-time.Hour), base)
	a.Distance = &km
	a.CaloriesBurned = &calories
	a.Notes = "tempo"
	require.NoError(t, s.AppendActivity(ctx, a))

	got, err := s.GetActivity(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "alice", got.UserID)
	require.Equal(t, int64(60), got.PointsEarned)
	require.Equal(t, domain.Rate(200), got.PointsPerMinute)
	require.Equal(t, "Running", got.ActivityType.Name)
	require.True(t, a.ActivityDate.Equal(got.ActivityDate))
	require.True(t, a.LoggedAt.Equal(got.LoggedAt))
	require.NotNil(t, got.Distance)
	require.InDelta(t, 4.2, *got.Distance, 1e-9)
	require.Equal(t, 310, *got.CaloriesBurned)
	require.Equal(t, "tempo", got.Notes)
	require.Nil(t, got.Void)

	missing, err := s.GetActivity(ctx, uuid.NewString())
	require.NoError(t, err)
	require.Nil(t, missing)

	profile, err := s.GetProfile(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, profile)
	require.Equal(t, int64(60), profile.Points)
	require.Equal(t, domain.FitnessBeginner, profile.FitnessLevel)
}

func testListOrderAndCursor(t *testing.T, s domain.Store) {
	ctx := context.Background()
	seed(t, s)

	day := base.AddDate(0, 0, -1)
	// Same activity date, different append times, plus one tie on both.
	a := entry("alice", run, 5, day, base.Add(1*time.Second))
	b := entry("alice", run, 6, day, base.Add(2*time.Second))
	c := entry("alice", run, 7, day, base.Add(2*time.Second))
	d := entry("alice", yoga, 8, base, base.Add(3*time.Second))
	for _, x := range []domain.Activity{a, b, c, d} {
		require.NoError(t, s.AppendActivity(ctx, x))
	}
	require.NoError(t, s.AppendActivity(ctx, entry("bob", run, 9, base, base)))

	want := []domain.Activity{d, b, c, a}
	if c.ID > b.ID {
		want = []domain.Activity{d, c, b, a}
	}

	all, err := s.ListActivities(ctx, domain.ActivityQuery{UserID: "alice", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, ids(want), ids(all))

	page, err := s.ListActivities(ctx, domain.ActivityQuery{UserID: "alice", Limit: 2})
	require.NoError(t, err)
	require.Equal(t, ids(want[:2]), ids(page))

	cursor := domain.CursorFor(page[1])
	rest, err := s.ListActivities(ctx, domain.ActivityQuery{UserID: "alice", Limit: 10, Cursor: &cursor})
	require.NoError(t, err)
	require.Equal(t, ids(want[2:]), ids(rest))

	since := base
	recent, err := s.ListActivities(ctx, domain.ActivityQuery{UserID: "alice", Limit: 10, Since: &since})
	require.NoError(t, err)
	require.Equal(t, []string{d.ID}, ids(recent))

	none, err := s.ListActivities(ctx, domain.ActivityQuery{UserID: "nobody", Limit: 10})
	require.NoError(t, err)
	require.Empty(t, none)
}

func testVoidAndProfilePoints(t *testing.T, s domain.Store) {
	ctx := context.Background()
	seed(t, s)

	a := entry("alice", run, 30, base, base)
	b := entry("alice", yoga, 2, base, base.Add(time.Second))
	require.NoError(t, s.AppendActivity(ctx, a))
	require.NoError(t, s.AppendActivity(ctx, b))

	voided, err := s.VoidActivity(ctx, domain.Void{ActivityID: a.ID, Reason: "duplicate", VoidedBy: "admin", VoidedAt: base.Add(time.Minute)})
	require.NoError(t, err)
	require.NotNil(t, voided.Void)
	require.Equal(t, "duplicate", voided.Void.Reason)
	require.Equal(t, domain.ActivityStatusVoided, voided.Status())

	_, err = s.VoidActivity(ctx, domain.Void{ActivityID: a.ID, VoidedAt: base})
	require.ErrorIs(t, err, domain.ErrAlreadyVoided)
	_, err = s.VoidActivity(ctx, domain.Void{ActivityID: uuid.NewString(), VoidedAt: base})
	require.True(t, domain.IsNotFound(err))

	got, err := s.GetActivity(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Void)
	require.Equal(t, int64(60), got.PointsEarned, "points_earned is immutable")

	profile, err := s.GetProfile(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(3), profile.Points)

	listed, err := s.ListActivities(ctx, domain.ActivityQuery{UserID: "alice", Limit: 10})
	require.NoError(t, err)
	require.Len(t, listed, 2)
}

func testStatsAndTotals(t *testing.T, s domain.Store) {
	ctx := context.Background()
	seed(t, s)

	km := 3.0
	a := entry("alice", run, 30, base, base)
	a.Distance = &km
	calories := 120
	b := entry("alice", yoga, 4, base, base.Add(time.Second))
	b.CaloriesBurned = &calories
	voided := entry("alice", run, 100, base, base.Add(2*time.Second))
	require.NoError(t, s.AppendActivity(ctx, a))
	require.NoError(t, s.AppendActivity(ctx, b))
	require.NoError(t, s.AppendActivity(ctx, voided))
	require.NoError(t, s.AppendActivity(ctx, entry("bob", yoga, 8, base, base)))
	_, err := s.VoidActivity(ctx, domain.Void{ActivityID: voided.ID, VoidedAt: base})
	require.NoError(t, err)

	onlyVoided := entry("carol", run, 10, base, base)
	require.NoError(t, s.AppendActivity(ctx, onlyVoided))
	_, err = s.VoidActivity(ctx, domain.Void{ActivityID: onlyVoided.ID, VoidedAt: base})
	require.NoError(t, err)

	stats, err := s.UserStats(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 2, stats.TotalActivities)
	require.Equal(t, int64(34), stats.TotalDuration)
	require.Equal(t, int64(65), stats.TotalPoints)
	require.Equal(t, int64(120), stats.TotalCalories)
	require.InDelta(t, 3.0, stats.TotalDistance, 1e-9)

	empty, err := s.UserStats(ctx, "nobody")
	require.NoError(t, err)
	require.Equal(t, domain.ActivityStats{}, empty)

	totals, err := s.UserTotals(ctx)
	require.NoError(t, err)
	byUser := make(map[string]domain.UserTotal, len(totals))
	for _, tot := range totals {
		byUser[tot.UserID] = tot
	}
	require.Len(t, byUser, 2, "users with only voided entries are not ranked")
	require.Equal(t, domain.UserTotal{UserID: "alice", Points: 65, ActivitiesCount: 2}, byUser["alice"])
	require.Equal(t, domain.UserTotal{UserID: "bob", Points: 10, ActivitiesCount: 1}, byUser["bob"])
}

func testPointsChecks(t *testing.T, s domain.Store) {
	ctx := context.Background()
	seed(t, s)

	a := entry("alice", run, 30, base, base)
	require.NoError(t, s.AppendActivity(ctx, a))
	require.NoError(t, s.AppendActivity(ctx, entry("alice", yoga, 2, base, base.Add(time.Second))))
	require.NoError(t, s.AppendActivity(ctx, entry("bob", yoga, 8, base, base)))
	_, err := s.VoidActivity(ctx, domain.Void{ActivityID: a.ID, VoidedAt: base})
	require.NoError(t, err)
	require.NoError(t, s.SaveProfile(ctx, domain.UserProfile{UserID: "dave", FitnessLevel: domain.FitnessBeginner, UpdatedAt: base}))

	check, err := s.PointsCheck(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, domain.PointsCheck{UserID: "alice", StoredPoints: 3, LedgerPoints: 3}, check)

	check, err = s.PointsCheck(ctx, "nobody")
	require.NoError(t, err)
	require.Equal(t, domain.PointsCheck{UserID: "nobody"}, check)

	checks, err := s.PointsChecks(ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.PointsCheck{
		{UserID: "alice", StoredPoints: 3, LedgerPoints: 3},
		{UserID: "bob", StoredPoints: 10, LedgerPoints: 10},
		{UserID: "dave"},
	}, checks)
}

func testPointsCheckDuringAppends(t *testing.T, s domain.Store) {
	ctx := context.Background()
	seed(t, s)

	const appends = 40
	var g errgroup.Group
	g.Go(func() error {
		for i := 0; i < appends; i++ {
			if err := s.AppendActivity(ctx, entry("alice", run, 1, base, base.Add(time.Duration(i)*time.Second))); err != nil {
				return err
			}
		}
		return nil
	})
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	for {
		check, err := s.PointsCheck(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, check.StoredPoints, check.LedgerPoints)
		checks, err := s.PointsChecks(ctx)
		require.NoError(t, err)
		for _, c := range checks {
			require.Equal(t, c.StoredPoints, c.LedgerPoints, c.UserID)
		}
		select {
		case err := <-done:
			require.NoError(t, err)
			check, err = s.PointsCheck(ctx, "alice")
			require.NoError(t, err)
			require.Equal(t, domain.PointsCheck{UserID: "alice", StoredPoints: 2 * appends, LedgerPoints: 2 * appends}, check)
			return
		default:
		}
	}
}

func testSaveProfileKeepsPoints(t *testing.T, s domain.Store) {
	ctx := context.Background()
	seed(t, s)
	require.NoError(t, s.AppendActivity(ctx, entry("alice", run, 10, base, base)))

	p := domain.UserProfile{
		UserID:       "alice",
		Points:       9999,
		FitnessLevel: domain.FitnessIntermediate,
		Bio:          "hello",
		FitnessGoal:  "10k",
		UpdatedAt:    base,
	}
	require.NoError(t, s.SaveProfile(ctx, p))

	got, err := s.GetProfile(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(20), got.Points)
	require.Equal(t, domain.FitnessIntermediate, got.FitnessLevel)
	require.Equal(t, "hello", got.Bio)

	fresh := domain.NewProfile("zed")
	fresh.Bio = "new"
	require.NoError(t, s.SaveProfile(ctx, fresh))
	all, err := s.ListProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	missing, err := s.GetProfile(ctx, "nobody")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func newTeam(name string, capacity int) domain.Team {
	return domain.Team{
		ID:         uuid.NewString(),
		Name:       name,
		MaxMembers: capacity,
		CreatedBy:  "founder",
		CreatedAt:  base,
		Members:    []domain.Membership{},
	}
}

func join(userID string) domain.Membership {
	return domain.Membership{UserID: userID, Role: domain.RoleMember, JoinedAt: base}
}

func testTeams(t *testing.T, s domain.Store) {
	ctx := context.Background()

	red := newTeam("Red", 3)
	red.Description = "fast"
	require.NoError(t, s.CreateTeam(ctx, red))
	require.ErrorIs(t, s.CreateTeam(ctx, newTeam("Red", 5)), domain.ErrTeamNameTaken)
	blue := newTeam("Blue", 2)
	blue.CreatedAt = base.Add(time.Minute)
	require.NoError(t, s.CreateTeam(ctx, blue))

	got, err := s.GetTeam(ctx, red.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "fast", got.Description)
	require.Equal(t, 3, got.MaxMembers)
	require.Equal(t, "founder", got.CreatedBy)
	require.Zero(t, got.MemberCount())

	missing, err := s.GetTeam(ctx, uuid.NewString())
	require.NoError(t, err)
	require.Nil(t, missing)

	_, err = s.AddMember(ctx, red.ID, join("alice"))
	require.NoError(t, err)
	updated, err := s.AddMember(ctx, blue.ID, join("alice"))
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, updated.MemberIDs())
	_, err = s.AddMember(ctx, blue.ID, join("bob"))
	require.NoError(t, err)
	_, err = s.AddMember(ctx, uuid.NewString(), join("bob"))
	require.True(t, domain.IsNotFound(err))

	mine, err := s.ListTeamsByMember(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, []string{red.ID, blue.ID}, teamIDs(mine))

	bobs, err := s.ListTeamsByMember(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, []string{blue.ID}, teamIDs(bobs))
	require.Len(t, bobs[0].Members, 2, "rosters are complete, not filtered to the member")

	all, err := s.ListTeams(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{red.ID, blue.ID}, teamIDs(all))
}

func testConcurrentJoins(t *testing.T, s domain.Store) {
	ctx := context.Background()
	const capacity, joiners = 4, 24

	team := newTeam("Busy", capacity)
	require.NoError(t, s.CreateTeam(ctx, team))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		full    int
		other   []error
	)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AddMember(ctx, team.ID, join(fmt.Sprintf("user-%02d", i)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, domain.ErrTeamFull):
				full++
			default:
				other = append(other, err)
			}
		}(i)
	}
	wg.Wait()

	require.Empty(t, other)
	require.Equal(t, capacity, success)
	require.Equal(t, joiners-capacity, full)

	got, err := s.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	require.Equal(t, capacity, got.MemberCount())
}

func testLeaveTwice(t *testing.T, s domain.Store) {
	ctx := context.Background()
	team := newTeam("Leavers", 2)
	require.NoError(t, s.CreateTeam(ctx, team))
	_, err := s.AddMember(ctx, team.ID, join("alice"))
	require.NoError(t, err)
	_, err = s.AddMember(ctx, team.ID, join("alice"))
	require.ErrorIs(t, err, domain.ErrAlreadyMember)

	left, err := s.RemoveMember(ctx, team.ID, "alice")
	require.NoError(t, err)
	require.Zero(t, left.MemberCount())

	_, err = s.RemoveMember(ctx, team.ID, "alice")
	require.ErrorIs(t, err, domain.ErrNotMember)
	_, err = s.RemoveMember(ctx, uuid.NewString(), "alice")
	require.True(t, domain.IsNotFound(err))

	got, err := s.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	require.NotNil(t, got, "the team outlives its members")
}

func ids(items []domain.Activity) []string {
	out := make([]string, 0, len(items))
	for _, a := range items {
		out = append(out, a.ID)
	}
	return out
}

func teamIDs(teams []domain.Team) []string {
	out := make([]string, 0, len(teams))
	for _, t := range teams {
		out = append(out, t.ID)
	}
	return out
}
