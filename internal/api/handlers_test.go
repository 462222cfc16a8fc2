package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"example.com/octofit/internal/auth"
	"example.com/octofit/internal/catalog"
	"example.com/octofit/internal/domain"
	"example.com/octofit/internal/ledger"
	"example.com/octofit/internal/membership"
	"example.com/octofit/internal/persistence/memory"
	"example.com/octofit/internal/profile"
	"example.com/octofit/internal/ranking"
	"example.com/octofit/internal/scoring"
)

var (
	testAuth = auth.Config{Secret: "test-secret", Issuer: "octofit-test"}
	epoch    = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

type apiFixture struct {
	router http.Handler
	store  *memory.Store
	clock  *clockwork.FakeClock
}

func newAPIFixture(t *testing.T) apiFixture {
	t.Helper()
	return newAPIFixtureWith(t, 5*time.Second, nil)
}

// newAPIFixtureWith lets a test swap services before the router is built.
func newAPIFixtureWith(t *testing.T, timeout time.Duration, adjust func(svc *Services, store *memory.Store, clock *clockwork.FakeClock)) apiFixture {
	t.Helper()
	store := memory.NewStore()
	clock := clockwork.NewFakeClockAt(epoch)
	registry := catalog.NewRegistry(store, clock)
	require.NoError(t, registry.Seed(context.Background(), catalog.Defaults))

	svc := Services{
		Catalog:  registry,
		Ledger:   ledger.NewService(store, scoring.NewEngine(store), clock),
		Teams:    membership.NewManager(store, clock),
		Rankings: ranking.NewAggregator(store, store),
		Profiles: profile.NewService(store, store, clock),
	}
	if adjust != nil {
		adjust(&svc, store, clock)
	}
	return apiFixture{
		router: NewHandler(svc).Router(Options{Auth: testAuth, RequestTimeout: timeout}),
		store:  store,
		clock:  clock,
	}
}

func token(t *testing.T, subject string, scopes ...string) string {
	t.Helper()
	tok, err := auth.Sign(testAuth, subject, scopes, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f apiFixture) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthzNeedsNoToken(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRequiresToken(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/activities/", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/activities/", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWorkedScenario(t *testing.T) {
	f := newAPIFixture(t)
	alice, bob := token(t, "alice"), token(t, "bob")

	rec := f.do(t, http.MethodPost, "/api/activities/", alice, map[string]any{
		"activity_type_id": "run",
		"duration_minutes": 30,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	logged := decode[ActivityView](t, rec)
	require.Equal(t, int64(60), logged.PointsEarned)
	require.Equal(t, "Running", logged.ActivityType.Name)
	require.Equal(t, "normal", logged.Status)
	require.Equal(t, domain.MustParseRate("2.00"), logged.PointsPerMinute)

	rec = f.do(t, http.MethodPost, "/api/activities", bob, map[string]any{
		"activity_type_id": "swim",
		"duration_minutes": 40,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, int64(100), decode[ActivityView](t, rec).PointsEarned)

	rec = f.do(t, http.MethodPost, "/api/teams/", alice, map[string]any{"name": "Octopi", "max_members": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	team := decode[TeamView](t, rec)
	require.Equal(t, 0, team.MemberCount)
	require.Equal(t, "alice", team.CreatedBy)

	for _, tok := range []string{alice, bob} {
		rec = f.do(t, http.MethodPost, "/api/teams/"+team.ID+"/join", tok, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	joined := decode[membershipResponse](t, rec)
	require.Equal(t, 2, joined.Team.MemberCount)
	require.Equal(t, int64(160), joined.Team.TotalPoints)
	require.NotEmpty(t, joined.Message)

	rec = f.do(t, http.MethodPost, "/api/teams/"+team.ID+"/join", token(t, "carol"), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "team_full", decode[errorBody](t, rec).Reason)

	rec = f.do(t, http.MethodGet, "/api/activities/leaderboard/", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decode[[]ranking.UserStanding](t, rec)
	require.Len(t, users, 2)
	require.Equal(t, "bob", users[0].UserID)
	require.Equal(t, 1, users[0].Rank)
	require.Equal(t, "alice", users[1].UserID)
	require.Equal(t, int64(60), users[1].Points)

	rec = f.do(t, http.MethodGet, "/api/teams/leaderboard/", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	teams := decode[[]ranking.TeamStanding](t, rec)
	require.Len(t, teams, 1)
	require.Equal(t, int64(160), teams[0].TotalPoints)
	require.Equal(t, 2, teams[0].MemberCount)

	rec = f.do(t, http.MethodGet, "/api/profile/", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, int64(60), decode[domain.UserProfile](t, rec).Points)
}

func TestCreateActivityValidation(t *testing.T) {
	f := newAPIFixture(t)
	alice := token(t, "alice")

	cases := []struct {
		name  string
		body  any
		code  string
		field string
	}{
		{"unknown type", map[string]any{"activity_type_id": "skydive", "duration_minutes": 10}, domain.CodeInvalidActivityType, "activity_type_id"},
		{"zero duration", map[string]any{"activity_type_id": "run", "duration_minutes": 0}, domain.CodeInvalidDuration, "duration_minutes"},
		{"fractional duration", `{"activity_type_id":"run","duration_minutes":12.5}`, domain.CodeInvalidDuration, "duration_minutes"},
		{"negative calories", map[string]any{"activity_type_id": "run", "duration_minutes": 10, "calories_burned": -1}, domain.CodeInvalidCalories, "calories_burned"},
		{"future date", map[string]any{"activity_type_id": "run", "duration_minutes": 10, "activity_date": "2025-06-02"}, domain.CodeFutureActivityDate, "activity_date"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/activities/", alice, tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			body := decode[errorBody](t, rec)
			require.Equal(t, "validation_failed", body.Type)
			require.Equal(t, tc.code, body.Code)
			require.Equal(t, tc.field, body.Field)
		})
	}

	rec := f.do(t, http.MethodPost, "/api/activities/", alice, `{"activity_type_id":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_request", decode[errorBody](t, rec).Type)
}

func TestActivityDateOnlyMeansMidnightUTC(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/activities/", token(t, "alice"), map[string]any{
		"activity_type_id": "walk",
		"duration_minutes": 15,
		"activity_date":    "2025-05-30",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	got := decode[ActivityView](t, rec)
	require.Equal(t, time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC), got.ActivityDate.UTC())
	require.Equal(t, epoch, got.DateLogged.UTC())
}

func TestListActivitiesPaginates(t *testing.T) {
	f := newAPIFixture(t)
	alice := token(t, "alice")
	for _, day := range []string{"2025-05-01", "2025-05-02", "2025-05-03"} {
		rec := f.do(t, http.MethodPost, "/api/activities/", alice, map[string]any{
			"activity_type_id": "run",
			"duration_minutes": 10,
			"activity_date":    day,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/api/activities/?limit=2", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[activityPage](t, rec)
	require.Len(t, first.Items, 2)
	require.Equal(t, 3, first.Items[0].ActivityDate.Day())
	require.Equal(t, 2, first.Items[1].ActivityDate.Day())
	require.NotNil(t, first.NextCursor)

	rec = f.do(t, http.MethodGet, "/api/activities/?limit=2&cursor="+*first.NextCursor, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[activityPage](t, rec)
	require.Len(t, second.Items, 1)
	require.Equal(t, 1, second.Items[0].ActivityDate.Day())
	require.Nil(t, second.NextCursor)

	rec = f.do(t, http.MethodGet, "/api/activities/?since=2025-05-02", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[activityPage](t, rec).Items, 2)

	rec = f.do(t, http.MethodGet, "/api/activities/?cursor=%25%25garbage", alice, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/activities/", token(t, "bob"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode[activityPage](t, rec).Items)
}

func TestGetActivityIsOwnerScoped(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/activities/", token(t, "alice"), map[string]any{
		"activity_type_id": "yoga",
		"duration_minutes": 20,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[ActivityView](t, rec).ID

	rec = f.do(t, http.MethodGet, "/api/activities/"+id+"/", token(t, "alice"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/activities/"+id, token(t, "bob"), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not_found", decode[errorBody](t, rec).Type)
}

func TestVoidActivity(t *testing.T) {
	f := newAPIFixture(t)
	alice := token(t, "alice")
	admin := token(t, "ops", auth.ScopeAdmin)

	rec := f.do(t, http.MethodPost, "/api/activities/", alice, map[string]any{
		"activity_type_id": "run",
		"duration_minutes": 30,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[ActivityView](t, rec).ID

	rec = f.do(t, http.MethodPost, "/api/activities/"+id+"/void", alice, map[string]any{"reason": "mine"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/activities/"+id+"/void", admin, map[string]any{"reason": "duplicate"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	voided := decode[ActivityView](t, rec)
	require.Equal(t, "voided", voided.Status)
	require.NotNil(t, voided.Void)
	require.Equal(t, "duplicate", voided.Void.Reason)
	require.Equal(t, "ops", voided.Void.VoidedBy)

	rec = f.do(t, http.MethodPost, "/api/activities/"+id+"/void", admin, map[string]any{"reason": "again"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "already_voided", decode[errorBody](t, rec).Reason)

	rec = f.do(t, http.MethodPost, "/api/activities/does-not-exist/void", admin, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/activities/stats/", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[domain.ActivityStats](t, rec)
	require.Equal(t, 0, stats.TotalActivities)
	require.Equal(t, int64(0), stats.TotalPoints)

	// Voided entries stay visible in the history.
	rec = f.do(t, http.MethodGet, "/api/activities/", alice, nil)
	require.Len(t, decode[activityPage](t, rec).Items, 1)

	rec = f.do(t, http.MethodGet, "/api/profile", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, int64(0), decode[domain.UserProfile](t, rec).Points)
}

func TestActivityTypeAdministration(t *testing.T) {
	f := newAPIFixture(t)
	admin := token(t, "ops", auth.ScopeAdmin)
	user := token(t, "alice")

	rec := f.do(t, http.MethodGet, "/api/activities/types/", user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]domain.ActivityType](t, rec), len(catalog.Defaults))

	body := map[string]any{"id": "row", "name": "Rowing", "points_per_minute": "1.75"}
	rec = f.do(t, http.MethodPost, "/api/activities/types/", user, body)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/activities/types/", admin, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, domain.Rate(175), decode[domain.ActivityType](t, rec).PointsPerMinute)

	rec = f.do(t, http.MethodPost, "/api/activities/types/", admin, body)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "activity_type_exists", decode[errorBody](t, rec).Reason)

	rec = f.do(t, http.MethodPost, "/api/activities/types/", admin, map[string]any{"id": "bad", "name": "Bad", "points_per_minute": 1.234})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, domain.CodeInvalidRate, decode[errorBody](t, rec).Code)

	rec = f.do(t, http.MethodPost, "/api/activities/", user, map[string]any{"activity_type_id": "row", "duration_minutes": 20})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, int64(35), decode[ActivityView](t, rec).PointsEarned)

	rec = f.do(t, http.MethodDelete, "/api/activities/types/row/", admin, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "activity_type_referenced", decode[errorBody](t, rec).Reason)

	rec = f.do(t, http.MethodDelete, "/api/activities/types/yoga", admin, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/activities/types/yoga", admin, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTeamMembershipConflicts(t *testing.T) {
	f := newAPIFixture(t)
	alice := token(t, "alice")

	rec := f.do(t, http.MethodPost, "/api/teams/", alice, map[string]any{"name": "Krakens"})
	require.Equal(t, http.StatusCreated, rec.Code)
	team := decode[TeamView](t, rec)
	require.Equal(t, domain.DefaultMaxMembers, team.MaxMembers)
	require.Empty(t, team.Members)

	rec = f.do(t, http.MethodPost, "/api/teams/", alice, map[string]any{"name": "Krakens"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "team_name_taken", decode[errorBody](t, rec).Reason)

	rec = f.do(t, http.MethodPost, "/api/teams/", alice, map[string]any{"name": "Zero", "max_members": 0})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, domain.CodeInvalidCapacity, decode[errorBody](t, rec).Code)

	rec = f.do(t, http.MethodPost, "/api/teams/"+team.ID+"/leave", alice, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "not_member", decode[errorBody](t, rec).Reason)

	rec = f.do(t, http.MethodPost, "/api/teams/"+team.ID+"/join", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/teams/"+team.ID+"/join", alice, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "already_member", decode[errorBody](t, rec).Reason)

	rec = f.do(t, http.MethodGet, "/api/teams/my-teams/", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decode[[]TeamView](t, rec)
	require.Len(t, mine, 1)
	require.Equal(t, team.ID, mine[0].ID)

	rec = f.do(t, http.MethodGet, "/api/teams/my-teams", token(t, "bob"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode[[]TeamView](t, rec))

	rec = f.do(t, http.MethodPost, "/api/teams/"+team.ID+"/leave", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 0, decode[membershipResponse](t, rec).Team.MemberCount)

	rec = f.do(t, http.MethodGet, "/api/teams/"+team.ID, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/teams/", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]TeamView](t, rec), 1)

	rec = f.do(t, http.MethodPost, "/api/teams/00000000-0000-0000-0000-000000000000/join", alice, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProfileUpdate(t *testing.T) {
	f := newAPIFixture(t)
	alice := token(t, "alice")

	rec := f.do(t, http.MethodGet, "/api/profile/", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	fresh := decode[domain.UserProfile](t, rec)
	require.Equal(t, domain.FitnessBeginner, fresh.FitnessLevel)
	require.Equal(t, int64(0), fresh.Points)

	rec = f.do(t, http.MethodPatch, "/api/profile/", alice, map[string]any{"fitness_level": "advanced", "bio": "swims"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[domain.UserProfile](t, rec)
	require.Equal(t, domain.FitnessAdvanced, updated.FitnessLevel)
	require.Equal(t, "swims", updated.Bio)

	rec = f.do(t, http.MethodPut, "/api/profile", alice, map[string]any{"fitness_goal": "marathon"})
	require.Equal(t, http.StatusOK, rec.Code)
	updated = decode[domain.UserProfile](t, rec)
	require.Equal(t, "swims", updated.Bio)
	require.Equal(t, "marathon", updated.FitnessGoal)

	rec = f.do(t, http.MethodPut, "/api/profile", alice, map[string]any{"fitness_level": "elite"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, domain.CodeInvalidProfile, decode[errorBody](t, rec).Code)
}

func TestAdminReconcile(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/activities/", token(t, "alice"), map[string]any{
		"activity_type_id": "cycle",
		"duration_minutes": 45,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/admin/reconcile/", token(t, "alice"), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/admin/reconcile/", token(t, "ops", auth.ScopeAdmin), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Empty(t, decode[reconcileResponse](t, rec).Faults)
}

func TestWriteDomainErrorMapsIntegrityFault(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	writeDomainError(rec, req, &domain.IntegrityFault{UserID: "alice", StoredPoints: 10, LedgerPoints: 7})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[errorBody](t, rec)
	require.Equal(t, "integrity_fault", body.Type)
	require.Equal(t, []domain.IntegrityFault{{UserID: "alice", StoredPoints: 10, LedgerPoints: 7}}, body.Faults)
}

func TestParseTimeLayouts(t *testing.T) {
	for raw, want := range map[string]time.Time{
		"2025-05-30":                time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC),
		"2025-05-30T07:30:00":       time.Date(2025, 5, 30, 7, 30, 0, 0, time.UTC),
		"2025-05-30T09:30:00+02:00": time.Date(2025, 5, 30, 7, 30, 0, 0, time.UTC),
	} {
		got, err := parseTime(raw)
		require.NoError(t, err, raw)
		require.True(t, want.Equal(got), raw)
	}
	_, err := parseTime("yesterday")
	require.Error(t, err)
}

type failingTotals struct{}

func (failingTotals) UserTotals(context.Context) ([]domain.UserTotal, error) {
	return nil, errors.New("ledger unavailable")
}

func TestTeamMutationsSurvivePointsReadFailure(t *testing.T) {
	f := newAPIFixtureWith(t, 5*time.Second, func(svc *Services, store *memory.Store, _ *clockwork.FakeClock) {
		svc.Rankings = ranking.NewAggregator(failingTotals{}, store)
	})
	alice := token(t, "alice")

	rec := f.do(t, http.MethodPost, "/api/teams/", alice, map[string]any{"name": "Krakens"})
	require.Equal(t, http.StatusCreated, rec.Code)
	team := decode[TeamView](t, rec)
	require.Zero(t, team.TotalPoints)

	rec = f.do(t, http.MethodPost, "/api/teams/"+team.ID+"/join", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	joined := decode[membershipResponse](t, rec)
	require.Equal(t, "joined team Krakens", joined.Message)
	require.Equal(t, 1, joined.Team.MemberCount)
	require.Zero(t, joined.Team.TotalPoints)

	rec = f.do(t, http.MethodGet, "/api/teams/my-teams/", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]TeamView](t, rec), 1)

	rec = f.do(t, http.MethodPost, "/api/teams/"+team.ID+"/leave", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	left := decode[membershipResponse](t, rec)
	require.Equal(t, "left team Krakens", left.Message)
	require.Zero(t, left.Team.MemberCount)
}

// stalledChecks blocks until the request context ends.
type stalledChecks struct {
	*memory.Store
}

func (stalledChecks) PointsChecks(ctx context.Context) ([]domain.PointsCheck, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRequestTimeoutAnsweredOnce(t *testing.T) {
	f := newAPIFixtureWith(t, 20*time.Millisecond, func(svc *Services, store *memory.Store, clock *clockwork.FakeClock) {
		svc.Profiles = profile.NewService(store, stalledChecks{Store: store}, clock)
	})

	rec := f.do(t, http.MethodGet, "/api/admin/reconcile/", token(t, "ops", auth.ScopeAdmin), nil)
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	require.Empty(t, rec.Body.String())
}

func TestWriteDomainErrorForeignDeadline(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	writeDomainError(rec, req, fmt.Errorf("dial ledger: %w", context.DeadlineExceeded))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "server_error", decode[errorBody](t, rec).Type)
}
