package sqlite

import (
	"context"
	"fmt"
)

// Migrations returns the schema statements. Each string is a single
// statement, since SQLite executes one at a time. Timestamps are unix
// nanoseconds.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS activity_types (
			id                           TEXT PRIMARY KEY,
			name                         TEXT NOT NULL UNIQUE COLLATE NOCASE,
			description                  TEXT NOT NULL DEFAULT '',
			points_per_minute_hundredths INTEGER NOT NULL CHECK (points_per_minute_hundredths >= 0),
			icon                         TEXT NOT NULL DEFAULT '',
			created_at                   INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS activities (
			id               TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL,
			activity_type_id TEXT NOT NULL REFERENCES activity_types(id) ON DELETE RESTRICT,
			duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
			distance         REAL,
			calories_burned  INTEGER,
			notes            TEXT NOT NULL DEFAULT '',
			activity_date    INTEGER NOT NULL,
			date_logged      INTEGER NOT NULL,
			rate_hundredths  INTEGER NOT NULL,
			points_earned    INTEGER NOT NULL CHECK (points_earned >= 0)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activities_user_order ON activities(user_id, activity_date DESC, date_logged DESC, id DESC)`,

		`CREATE TABLE IF NOT EXISTS activity_voids (
			activity_id TEXT PRIMARY KEY REFERENCES activities(id),
			reason      TEXT NOT NULL DEFAULT '',
			voided_by   TEXT NOT NULL DEFAULT '',
			voided_at   INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS user_profiles (
			user_id       TEXT PRIMARY KEY,
			points        INTEGER NOT NULL DEFAULT 0,
			fitness_level TEXT NOT NULL DEFAULT 'beginner',
			bio           TEXT NOT NULL DEFAULT '',
			fitness_goal  TEXT NOT NULL DEFAULT '',
			updated_at    INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS teams (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL UNIQUE COLLATE NOCASE,
			description TEXT NOT NULL DEFAULT '',
			max_members INTEGER NOT NULL CHECK (max_members > 0),
			created_by  TEXT NOT NULL DEFAULT '',
			created_at  INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS team_memberships (
			team_id   TEXT NOT NULL REFERENCES teams(id),
			user_id   TEXT NOT NULL,
			role      TEXT NOT NULL DEFAULT 'member',
			joined_at INTEGER NOT NULL,
			PRIMARY KEY (team_id, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_team_memberships_user ON team_memberships(user_id)`,
	}
}

// Migrate applies the schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range Migrations() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migration %d: %w", i, err)
		}
	}
	return nil
}
