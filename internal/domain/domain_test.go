package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseRate(t *testing.T) {
	cases := []struct {
		in   string
		want Rate
		ok   bool
	}{
		{"2", 200, true},
		{"1.5", 150, true},
		{"1.25", 125, true},
		{"0", 0, true},
		{".5", 50, true},
		{"999.99", 99999, true},
		{"1000", 0, false},
		{"1.234", 0, false},
		{"-1", 0, false},
		{"1.", 0, false},
		{"1.-5", 0, false},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseRate(tc.in)
		if !tc.ok {
			require.Errorf(t, err, "ParseRate(%q)", tc.in)
			continue
		}
		require.NoErrorf(t, err, "ParseRate(%q)", tc.in)
		require.Equal(t, tc.want, got)
	}
}

func TestRateJSON(t *testing.T) {
	body, err := json.Marshal(struct {
		R Rate `json:"r"`
	}{R: MustParseRate("1.5")})
	require.NoError(t, err)
	require.JSONEq(t, `{"r":1.50}`, string(body))

	var decoded struct {
		A Rate `json:"a"`
		B Rate `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":2.5,"b":"0.75"}`), &decoded))
	require.Equal(t, Rate(250), decoded.A)
	require.Equal(t, Rate(75), decoded.B)
}

func TestTeamCheckJoin(t *testing.T) {
	team := Team{ID: "t1", MaxMembers: 2, Members: []Membership{{UserID: "a"}}}

	require.NoError(t, team.CheckJoin("b"))
	require.ErrorIs(t, team.CheckJoin("a"), ErrAlreadyMember)

	team.Members = append(team.Members, Membership{UserID: "b"})
	require.ErrorIs(t, team.CheckJoin("c"), ErrTeamFull)
	// A member re-joining a full team is told it is already a member.
	require.ErrorIs(t, team.CheckJoin("a"), ErrAlreadyMember)
}

func TestTeamCheckLeave(t *testing.T) {
	team := Team{ID: "t1", MaxMembers: 2, Members: []Membership{{UserID: "a"}, {UserID: "b"}}}

	require.NoError(t, team.CheckLeave("a"))
	require.ErrorIs(t, team.CheckLeave("z"), ErrNotMember)
	require.Len(t, team.WithoutMember("a"), 1)
	require.Equal(t, []string{"a", "b"}, team.MemberIDs())
}

func TestConflictErrorsMatchByReason(t *testing.T) {
	wrapped := fmt.Errorf("join: %w", Conflict(ConflictTeamFull))
	require.ErrorIs(t, wrapped, ErrTeamFull)
	require.False(t, errors.Is(wrapped, ErrAlreadyMember))

	var conflict *ConflictError
	require.True(t, errors.As(wrapped, &conflict))
	require.Equal(t, ConflictTeamFull, conflict.Reason)
	require.Equal(t, "team is full", conflict.Error())
}

func TestNewestFirstOrdering(t *testing.T) {
	day := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	older := Activity{ID: "b", ActivityDate: day, LoggedAt: day.Add(time.Hour)}
	newer := Activity{ID: "a", ActivityDate: day, LoggedAt: day.Add(2 * time.Hour)}
	require.True(t, NewestFirst(newer, older))
	require.False(t, NewestFirst(older, newer))

	sameTime := Activity{ID: "c", ActivityDate: day, LoggedAt: day.Add(2 * time.Hour)}
	require.True(t, NewestFirst(sameTime, newer), "id breaks ties descending")
	require.True(t, OlderThan(older, CursorFor(newer)))
}

func TestActivityStatus(t *testing.T) {
	a := Activity{ID: "x"}
	require.Equal(t, ActivityStatusNormal, a.Status())
	require.True(t, a.Counted())

	a.Void = &Void{ActivityID: "x", Reason: "duplicate"}
	require.Equal(t, ActivityStatusVoided, a.Status())
	require.False(t, a.Counted())
}
