// Package membership manages teams and their capacity-bounded rosters.
package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/octofit/internal/domain"
	"example.com/octofit/internal/observability"
)

const maxNameLength = 100

// NewTeam is the caller-supplied part of a team.
type NewTeam struct {
	Name        string
	Description string
	// MaxMembers defaults to domain.DefaultMaxMembers when nil.
	MaxMembers *int
	CreatedBy  string
}

// Manager enforces roster invariants on top of a TeamRepository.
type Manager struct {
	repo  domain.TeamRepository
	clock domain.Clock
}

// NewManager constructs a Manager.
func NewManager(repo domain.TeamRepository, clock domain.Clock) *Manager {
	return &Manager{repo: repo, clock: clock}
}

// CreateTeam validates and stores a new, empty team. The creator is recorded
// but not enrolled.
func (m *Manager) CreateTeam(ctx context.Context, in NewTeam) (*domain.Team, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return nil, domain.NewValidationError("name", domain.CodeInvalidName, fmt.Sprintf("name must be 1-%d characters", maxNameLength))
	}
	capacity := domain.DefaultMaxMembers
	if in.MaxMembers != nil {
		capacity = *in.MaxMembers
	}
	if capacity <= 0 {
		return nil, domain.NewValidationError("max_members", domain.CodeInvalidCapacity, "max_members must be > 0")
	}

	team := domain.Team{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		MaxMembers:  capacity,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   domain.NowUTC(m.clock),
		Members:     []domain.Membership{},
	}
	if err := m.repo.CreateTeam(ctx, team); err != nil {
		return nil, err
	}
	log.Info().Str("team_id", team.ID).Str("name", team.Name).Int("max_members", capacity).Msg("team created")
	return &team, nil
}

// Join adds userID to the team. The capacity check and the roster write are
// one atomic step in every store.
func (m *Manager) Join(ctx context.Context, teamID, userID string) (*domain.Team, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.NewValidationError("user_id", domain.CodeInvalidID, "user_id is required")
	}
	team, err := m.repo.AddMember(ctx, teamID, domain.Membership{
		UserID:   userID,
		Role:     domain.RoleMember,
		JoinedAt: domain.NowUTC(m.clock),
	})
	observability.RecordMembership("join", outcome(err))
	if err != nil {
		return nil, err
	}
	log.Info().Str("team_id", teamID).Str("user_id", userID).Int("member_count", team.MemberCount()).Msg("member joined")
	return team, nil
}

// Leave removes userID from the team.
func (m *Manager) Leave(ctx context.Context, teamID, userID string) (*domain.Team, error) {
	team, err := m.repo.RemoveMember(ctx, teamID, userID)
	observability.RecordMembership("leave", outcome(err))
	if err != nil {
		return nil, err
	}
	log.Info().Str("team_id", teamID).Str("user_id", userID).Int("member_count", team.MemberCount()).Msg("member left")
	return team, nil
}

// GetTeam returns the team or NotFoundError.
func (m *Manager) GetTeam(ctx context.Context, id string) (*domain.Team, error) {
	team, err := m.repo.GetTeam(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get team: %w", err)
	}
	if team == nil {
		return nil, domain.NotFound("team", id)
	}
	return team, nil
}

// ListTeams returns every team, oldest first.
func (m *Manager) ListTeams(ctx context.Context) ([]domain.Team, error) {
	return m.repo.ListTeams(ctx)
}

// ListUserTeams returns the teams userID belongs to.
func (m *Manager) ListUserTeams(ctx context.Context, userID string) ([]domain.Team, error) {
	return m.repo.ListTeamsByMember(ctx, userID)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		return string(conflict.Reason)
	}
	if domain.IsNotFound(err) {
		return "not_found"
	}
	return "error"
}
