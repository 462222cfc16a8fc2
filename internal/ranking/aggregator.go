// Package ranking computes user and team leaderboards from the ledger and the
// current rosters. Nothing is cached; every call reads fresh state.
package ranking

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"example.com/octofit/internal/domain"
	"example.com/octofit/internal/ledger"
	"example.com/octofit/internal/observability"
)

const (
	// DefaultLimit is the leaderboard length used when none is requested.
	DefaultLimit = 10
	// MaxLimit caps the leaderboard length.
	MaxLimit = 100

	boardUsers = "users"
	boardTeams = "teams"
)

// LedgerTotals yields per-user aggregates over counted ledger entries.
type LedgerTotals interface {
	UserTotals(ctx context.Context) ([]domain.UserTotal, error)
}

// TeamLister yields every team with its roster.
type TeamLister interface {
	ListTeams(ctx context.Context) ([]domain.Team, error)
}

// UserStanding is one row of the user leaderboard.
type UserStanding struct {
	Rank            int    `json:"rank"`
	UserID          string `json:"user_id"`
	Points          int64  `json:"points"`
	ActivitiesCount int    `json:"activities_count"`
}

// TeamStanding is one row of the team leaderboard.
type TeamStanding struct {
	Rank        int    `json:"rank"`
	TeamID      string `json:"team_id"`
	TeamName    string `json:"team_name"`
	TotalPoints int64  `json:"total_points"`
	MemberCount int    `json:"member_count"`
	MaxMembers  int    `json:"max_members"`
}

// Aggregator builds leaderboards.
type Aggregator struct {
	totals LedgerTotals
	teams  TeamLister
}

// NewAggregator constructs an Aggregator.
func NewAggregator(totals LedgerTotals, teams TeamLister) *Aggregator {
	return &Aggregator{totals: totals, teams: teams}
}

// UserLeaderboard ranks users by points desc, activity count desc, then
// user id asc.
func (a *Aggregator) UserLeaderboard(ctx context.Context, limit int) ([]UserStanding, error) {
	observability.RecordLeaderboardQuery(boardUsers)
	totals, err := a.validTotals(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]UserStanding, 0, len(totals))
	for _, t := range totals {
		rows = append(rows, UserStanding{UserID: t.UserID, Points: t.Points, ActivitiesCount: t.ActivitiesCount})
	}
	sort.Slice(rows, func(i, j int) bool { return userLess(rows[i], rows[j]) })

	rows = truncate(rows, ledger.NormalizeLimit(limit, DefaultLimit, MaxLimit))
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows, nil
}

// TeamLeaderboard ranks teams by the summed points of their current members,
// then smaller rosters first, then team id asc.
func (a *Aggregator) TeamLeaderboard(ctx context.Context, limit int) ([]TeamStanding, error) {
	observability.RecordLeaderboardQuery(boardTeams)
	points, err := a.UserPoints(ctx)
	if err != nil {
		return nil, err
	}

	teams, err := a.teams.ListTeams(ctx)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}

	rows := make([]TeamStanding, 0, len(teams))
	for _, team := range teams {
		if reason := corruptTeam(team); reason != "" {
			exclude(boardTeams, reason, team.ID)
			continue
		}
		rows = append(rows, TeamStanding{
			TeamID:      team.ID,
			TeamName:    team.Name,
			TotalPoints: TeamPoints(team, points),
			MemberCount: team.MemberCount(),
			MaxMembers:  team.MaxMembers,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return teamLess(rows[i], rows[j]) })

	rows = truncate(rows, ledger.NormalizeLimit(limit, DefaultLimit, MaxLimit))
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows, nil
}

// UserPoints returns every ranked user's current ledger points.
func (a *Aggregator) UserPoints(ctx context.Context) (map[string]int64, error) {
	totals, err := a.validTotals(ctx)
	if err != nil {
		return nil, err
	}
	points := make(map[string]int64, len(totals))
	for _, t := range totals {
		points[t.UserID] = t.Points
	}
	return points, nil
}

// TeamPoints sums the current members' ledger points of team.
func TeamPoints(team domain.Team, points map[string]int64) int64 {
	var total int64
	for _, m := range team.Members {
		total += points[m.UserID]
	}
	return total
}

func (a *Aggregator) validTotals(ctx context.Context) ([]domain.UserTotal, error) {
	totals, err := a.totals.UserTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("user totals: %w", err)
	}
	seen := make(map[string]bool, len(totals))
	out := totals[:0:0]
	for _, t := range totals {
		reason := corruptTotal(t)
		if reason == "" && seen[t.UserID] {
			reason = "duplicate_user"
		}
		if reason != "" {
			exclude(boardUsers, reason, t.UserID)
			continue
		}
		seen[t.UserID] = true
		out = append(out, t)
	}
	return out, nil
}

func corruptTotal(t domain.UserTotal) string {
	switch {
	case t.UserID == "":
		return "empty_id"
	case t.Points < 0:
		return "negative_points"
	case t.ActivitiesCount < 0:
		return "negative_count"
	}
	return ""
}

func corruptTeam(t domain.Team) string {
	switch {
	case t.ID == "":
		return "empty_id"
	case t.MaxMembers <= 0:
		return "invalid_capacity"
	case t.MemberCount() > t.MaxMembers:
		return "over_capacity"
	}
	return ""
}

func exclude(board, reason, id string) {
	observability.RecordExcludedRecord(board, reason)
	log.Warn().Str("board", board).Str("reason", reason).Str("id", id).Msg("leaderboard record excluded")
}

func userLess(a, b UserStanding) bool {
	if a.Points != b.Points {
		return a.Points > b.Points
	}
	if a.ActivitiesCount != b.ActivitiesCount {
		return a.ActivitiesCount > b.ActivitiesCount
	}
	return a.UserID < b.UserID
}

func teamLess(a, b TeamStanding) bool {
	if a.TotalPoints != b.TotalPoints {
		return a.TotalPoints > b.TotalPoints
	}
	if a.MemberCount != b.MemberCount {
		return a.MemberCount < b.MemberCount
	}
	return a.TeamID < b.TeamID
}

func truncate[T any](rows []T, limit int) []T {
	if len(rows) > limit {
		return rows[:limit]
	}
	return rows
}
