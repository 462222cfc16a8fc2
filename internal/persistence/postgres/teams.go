package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/octofit/internal/domain"
	"example.com/octofit/pkg/events"
)

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const teamColumns = `id::text, name, description, max_members, created_by, created_at`

// CreateTeam implements domain.TeamRepository.
func (r *Repository) CreateTeam(ctx context.Context, t domain.Team) error {
	return r.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO teams (id, name, description, max_members, created_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			t.ID, t.Name, t.Description, t.MaxMembers, t.CreatedBy, t.CreatedAt)
		if pgCode(err) == pgUniqueViolation {
			return domain.ErrTeamNameTaken
		}
		if err != nil {
			return err
		}
		for _, m := range t.Members {
			if err := insertMember(ctx, tx, t.ID, m); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertMember(ctx context.Context, tx pgx.Tx, teamID string, m domain.Membership) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO team_memberships (team_id, user_id, role, joined_at) VALUES ($1,$2,$3,$4)`,
		teamID, m.UserID, string(m.Role), m.JoinedAt)
	return err
}

func scanTeam(row pgx.Row) (domain.Team, error) {
	var t domain.Team
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.MaxMembers, &t.CreatedBy, &t.CreatedAt); err != nil {
		return domain.Team{}, err
	}
	t.CreatedAt = utc(t.CreatedAt)
	t.Members = []domain.Membership{}
	return t, nil
}

func loadRosters(ctx context.Context, q queryer, where string, args ...any) (map[string][]domain.Membership, error) {
	rows, err := q.Query(ctx,
		`SELECT team_id::text, user_id, role, joined_at FROM team_memberships `+where+` ORDER BY joined_at, user_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]domain.Membership)
	for rows.Next() {
		var (
			teamID string
			role   string
			m      domain.Membership
		)
		if err := rows.Scan(&teamID, &m.UserID, &role, &m.JoinedAt); err != nil {
			return nil, err
		}
		m.Role = domain.MemberRole(role)
		m.JoinedAt = utc(m.JoinedAt)
		out[teamID] = append(out[teamID], m)
	}
	return out, rows.Err()
}

// lockTeam reads a team with its row locked for the rest of tx.
func lockTeam(ctx context.Context, tx pgx.Tx, id string) (*domain.Team, error) {
	t, err := scanTeam(tx.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("team", id)
	}
	if err != nil {
		return nil, err
	}
	rosters, err := loadRosters(ctx, tx, `WHERE team_id=$1`, id)
	if err != nil {
		return nil, err
	}
	if members := rosters[t.ID]; members != nil {
		t.Members = members
	}
	return &t, nil
}

// GetTeam implements domain.TeamRepository.
func (r *Repository) GetTeam(ctx context.Context, id string) (*domain.Team, error) {
	if !validUUID(id) {
		return nil, nil
	}
	teams, err := r.listTeams(ctx, `WHERE id=$1`, id)
	if err != nil || len(teams) == 0 {
		return nil, err
	}
	return &teams[0], nil
}

// ListTeams implements domain.TeamRepository.
func (r *Repository) ListTeams(ctx context.Context) ([]domain.Team, error) {
	return r.listTeams(ctx, ``)
}

// ListTeamsByMember implements domain.TeamRepository.
func (r *Repository) ListTeamsByMember(ctx context.Context, userID string) ([]domain.Team, error) {
	return r.listTeams(ctx, `WHERE id IN (SELECT team_id FROM team_memberships WHERE user_id=$1)`, userID)
}

func (r *Repository) listTeams(ctx context.Context, where string, args ...any) ([]domain.Team, error) {
	var teams []domain.Team
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err := r.inTx(ctx, opts, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+teamColumns+` FROM teams `+where+` ORDER BY created_at, id`, args...)
		if err != nil {
			return err
		}
		teams = make([]domain.Team, 0)
		for rows.Next() {
			t, err := scanTeam(rows)
			if err != nil {
				rows.Close()
				return err
			}
			teams = append(teams, t)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rosters, err := loadRosters(ctx, tx, ``)
		if err != nil {
			return err
		}
		for i := range teams {
			if members := rosters[teams[i].ID]; members != nil {
				teams[i].Members = members
			}
		}
		return nil
	})
	return teams, err
}

// AddMember implements domain.TeamRepository. The team row lock serialises
// concurrent joins so the capacity check sees the committed roster.
func (r *Repository) AddMember(ctx context.Context, teamID string, m domain.Membership) (*domain.Team, error) {
	if !validUUID(teamID) {
		return nil, domain.NotFound("team", teamID)
	}
	var team *domain.Team
	err := r.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		t, err := lockTeam(ctx, tx, teamID)
		if err != nil {
			return err
		}
		if err := t.CheckJoin(m.UserID); err != nil {
			return err
		}
		if err := insertMember(ctx, tx, teamID, m); err != nil {
			return err
		}
		t.Members = append(t.Members, m)
		team = t
		return insertOutbox(ctx, tx, "team", teamID, events.TypeTeamMemberJoined, teamID,
			membershipEvent(t, m.UserID, m.JoinedAt))
	})
	if err != nil {
		return nil, err
	}
	return team, nil
}

// RemoveMember implements domain.TeamRepository.
func (r *Repository) RemoveMember(ctx context.Context, teamID, userID string) (*domain.Team, error) {
	if !validUUID(teamID) {
		return nil, domain.NotFound("team", teamID)
	}
	var team *domain.Team
	err := r.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		t, err := lockTeam(ctx, tx, teamID)
		if err != nil {
			return err
		}
		if err := t.CheckLeave(userID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM team_memberships WHERE team_id=$1 AND user_id=$2`, teamID, userID); err != nil {
			return err
		}
		t.Members = t.WithoutMember(userID)
		team = t
		return insertOutbox(ctx, tx, "team", teamID, events.TypeTeamMemberLeft, teamID,
			membershipEvent(t, userID, time.Now().UTC()))
	})
	if err != nil {
		return nil, err
	}
	return team, nil
}

func membershipEvent(t *domain.Team, userID string, at time.Time) events.TeamMembershipChanged {
	return events.TeamMembershipChanged{
		TeamID:      t.ID,
		UserID:      userID,
		MemberCount: t.MemberCount(),
		MaxMembers:  t.MaxMembers,
		OccurredAt:  at,
	}
}
