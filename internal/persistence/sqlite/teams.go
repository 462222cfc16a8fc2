package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"example.com/octofit/internal/domain"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateTeam implements domain.TeamRepository.
func (s *Store) CreateTeam(ctx context.Context, t domain.Team) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM teams WHERE name = ? COLLATE NOCASE`, t.Name).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrTeamNameTaken
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO teams (id, name, description, max_members, created_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			t.ID, t.Name, t.Description, t.MaxMembers, t.CreatedBy, nanos(t.CreatedAt),
		); err != nil {
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

func insertMember(ctx context.Context, tx *sql.Tx, teamID string, m domain.Membership) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO team_memberships (team_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
		teamID, m.UserID, string(m.Role), nanos(m.JoinedAt))
	return err
}

// loadTeam reads a team and its roster through q, returning nil when absent.
func loadTeam(ctx context.Context, q querier, id string) (*domain.Team, error) {
	var (
		t       domain.Team
		created int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, name, description, max_members, created_by, created_at FROM teams WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.Description, &t.MaxMembers, &t.CreatedBy, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.CreatedAt = fromNanos(created)

	rosters, err := loadRosters(ctx, q, `WHERE team_id = ?`, id)
	if err != nil {
		return nil, err
	}
	t.Members = rosters[t.ID]
	if t.Members == nil {
		t.Members = []domain.Membership{}
	}
	return &t, nil
}

func loadRosters(ctx context.Context, q querier, where string, args ...any) (map[string][]domain.Membership, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT team_id, user_id, role, joined_at FROM team_memberships `+where+` ORDER BY joined_at, user_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]domain.Membership)
	for rows.Next() {
		var (
			teamID string
			m      domain.Membership
			role   string
			joined int64
		)
		if err := rows.Scan(&teamID, &m.UserID, &role, &joined); err != nil {
			return nil, err
		}
		m.Role = domain.MemberRole(role)
		m.JoinedAt = fromNanos(joined)
		out[teamID] = append(out[teamID], m)
	}
	return out, rows.Err()
}

// GetTeam implements domain.TeamRepository.
func (s *Store) GetTeam(ctx context.Context, id string) (*domain.Team, error) {
	var t *domain.Team
	err := s.readTx(ctx, func(tx *sql.Tx) error {
		var err error
		t, err = loadTeam(ctx, tx, id)
		return err
	})
	return t, err
}

// ListTeams implements domain.TeamRepository.
func (s *Store) ListTeams(ctx context.Context) ([]domain.Team, error) {
	return s.listTeams(ctx, ``)
}

// ListTeamsByMember implements domain.TeamRepository.
func (s *Store) ListTeamsByMember(ctx context.Context, userID string) ([]domain.Team, error) {
	return s.listTeams(ctx, `WHERE id IN (SELECT team_id FROM team_memberships WHERE user_id = ?)`, userID)
}

func (s *Store) listTeams(ctx context.Context, where string, args ...any) ([]domain.Team, error) {
	// Both reads share one transaction so rosters match the team rows.
	var teams []domain.Team
	err := s.readTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, name, description, max_members, created_by, created_at FROM teams `+where+` ORDER BY created_at, id`, args...)
		if err != nil {
			return err
		}
		teams = make([]domain.Team, 0)
		for rows.Next() {
			var (
				t       domain.Team
				created int64
			)
			if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.MaxMembers, &t.CreatedBy, &created); err != nil {
				rows.Close()
				return err
			}
			t.CreatedAt = fromNanos(created)
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
			teams[i].Members = rosters[teams[i].ID]
			if teams[i].Members == nil {
				teams[i].Members = []domain.Membership{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return teams, nil
}

// AddMember implements domain.TeamRepository. The roster is re-read after
// the IMMEDIATE transaction has taken the write lock.
func (s *Store) AddMember(ctx context.Context, teamID string, m domain.Membership) (*domain.Team, error) {
	var team *domain.Team
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := loadTeam(ctx, tx, teamID)
		if err != nil {
			return err
		}
		if t == nil {
			return domain.NotFound("team", teamID)
		}
		if err := t.CheckJoin(m.UserID); err != nil {
			return err
		}
		if err := insertMember(ctx, tx, teamID, m); err != nil {
			return err
		}
		t.Members = append(t.Members, m)
		team = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return team, nil
}

// RemoveMember implements domain.TeamRepository.
func (s *Store) RemoveMember(ctx context.Context, teamID, userID string) (*domain.Team, error) {
	var team *domain.Team
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := loadTeam(ctx, tx, teamID)
		if err != nil {
			return err
		}
		if t == nil {
			return domain.NotFound("team", teamID)
		}
		if err := t.CheckLeave(userID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM team_memberships WHERE team_id = ? AND user_id = ?`, teamID, userID); err != nil {
			return err
		}
		t.Members = t.WithoutMember(userID)
		team = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return team, nil
}
