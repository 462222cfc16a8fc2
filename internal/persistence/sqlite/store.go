// Package sqlite is the embedded, single-file durable store. Write
// transactions begin IMMEDIATE, so the writer lock is taken before any roster
// or ledger read that a write depends on. Read-only transactions run on a
// separate query-only pool with deferred locking and never wait on a writer.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"example.com/octofit/internal/domain"
	"example.com/octofit/internal/observability"
)

// Store implements domain.Store on SQLite.
type Store struct {
	db    *sql.DB
	reads *sql.DB
}

var _ domain.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")
	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// WAL is persistent, so the reader only needs its own connection options.
	rq := url.Values{}
	rq.Add("_pragma", "busy_timeout(5000)")
	rq.Add("_pragma", "query_only(1)")
	rq.Set("_txlock", "deferred")
	reads, err := sql.Open("sqlite", "file:"+path+"?"+rq.Encode())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite reader: %w", err)
	}
	if err := reads.PingContext(ctx); err != nil {
		reads.Close()
		db.Close()
		return nil, fmt.Errorf("ping sqlite reader: %w", err)
	}
	s.reads = reads
	return s, nil
}

// Close implements domain.Store.
func (s *Store) Close() error {
	return errors.Join(s.reads.Close(), s.db.Close())
}

// readTx runs fn in one deferred read-only transaction on the reader pool.
func (s *Store) readTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.reads.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// withTx runs fn in one IMMEDIATE transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

type scanner interface {
	Scan(dest ...any) error
}

// CreateActivityType implements domain.ActivityTypeRepository.
func (s *Store) CreateActivityType(ctx context.Context, t domain.ActivityType) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM activity_types WHERE id = ? OR name = ? COLLATE NOCASE`, t.ID, t.Name,
		).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrActivityTypeExists
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO activity_types (id, name, description, points_per_minute_hundredths, icon, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			t.ID, t.Name, t.Description, t.PointsPerMinute.Hundredths(), t.Icon, nanos(t.CreatedAt))
		return err
	})
}

const typeColumns = `id, name, description, points_per_minute_hundredths, icon, created_at`

func scanType(row scanner) (domain.ActivityType, error) {
	var (
		t       domain.ActivityType
		rate    int64
		created int64
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &rate, &t.Icon, &created); err != nil {
		return domain.ActivityType{}, err
	}
	t.PointsPerMinute = domain.Rate(rate)
	t.CreatedAt = fromNanos(created)
	return t, nil
}

// GetActivityType implements domain.ActivityTypeRepository.
func (s *Store) GetActivityType(ctx context.Context, id string) (*domain.ActivityType, error) {
	t, err := scanType(s.db.QueryRowContext(ctx, `SELECT `+typeColumns+` FROM activity_types WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListActivityTypes implements domain.ActivityTypeRepository.
func (s *Store) ListActivityTypes(ctx context.Context) ([]domain.ActivityType, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+typeColumns+` FROM activity_types ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ActivityType, 0)
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteActivityType implements domain.ActivityTypeRepository.
func (s *Store) DeleteActivityType(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var refs int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities WHERE activity_type_id = ?`, id).Scan(&refs); err != nil {
			return err
		}
		if refs > 0 {
			return domain.ErrActivityTypeReferenced
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM activity_types WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.NotFound("activity_type", id)
		}
		return nil
	})
}

// AppendActivity implements domain.LedgerRepository.
func (s *Store) AppendActivity(ctx context.Context, a domain.Activity) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_types WHERE id = ?`, a.ActivityTypeID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return domain.NotFound("activity_type", a.ActivityTypeID)
		}

		var distance sql.NullFloat64
		if a.Distance != nil {
			distance = sql.NullFloat64{Float64: *a.Distance, Valid: true}
		}
		var calories sql.NullInt64
		if a.CaloriesBurned != nil {
			calories = sql.NullInt64{Int64: int64(*a.CaloriesBurned), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO activities (id, user_id, activity_type_id, duration_minutes, distance, calories_burned, notes,
				activity_date, date_logged, rate_hundredths, points_earned)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.UserID, a.ActivityTypeID, a.DurationMinutes, distance, calories, a.Notes,
			nanos(a.ActivityDate), nanos(a.LoggedAt), a.PointsPerMinute.Hundredths(), a.PointsEarned,
		); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO user_profiles (user_id, points, fitness_level)
			VALUES (?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET points = points + excluded.points`,
			a.UserID, a.PointsEarned, string(domain.FitnessBeginner))
		return err
	})
}

const activitySelect = `
	SELECT a.id, a.user_id, a.activity_type_id, a.duration_minutes, a.distance, a.calories_burned, a.notes,
		a.activity_date, a.date_logged, a.rate_hundredths, a.points_earned,
		t.name, t.description, t.points_per_minute_hundredths, t.icon, t.created_at,
		v.reason, v.voided_by, v.voided_at
	FROM activities a
	JOIN activity_types t ON t.id = a.activity_type_id
	LEFT JOIN activity_voids v ON v.activity_id = a.id`

func scanActivity(row scanner) (domain.Activity, error) {
	var (
		a                domain.Activity
		distance         sql.NullFloat64
		calories         sql.NullInt64
		date, logged     int64
		rate, typeRate   int64
		typeCreated      int64
		reason, voidedBy sql.NullString
		voidedAt         sql.NullInt64
	)
	if err := row.Scan(
		&a.ID, &a.UserID, &a.ActivityTypeID, &a.DurationMinutes, &distance, &calories, &a.Notes,
		&date, &logged, &rate, &a.PointsEarned,
		&a.ActivityType.Name, &a.ActivityType.Description, &typeRate, &a.ActivityType.Icon, &typeCreated,
		&reason, &voidedBy, &voidedAt,
	); err != nil {
		return domain.Activity{}, err
	}
	if distance.Valid {
		d := distance.Float64
		a.Distance = &d
	}
	if calories.Valid {
		c := int(calories.Int64)
		a.CaloriesBurned = &c
	}
	a.ActivityDate = fromNanos(date)
	a.LoggedAt = fromNanos(logged)
	a.PointsPerMinute = domain.Rate(rate)
	a.ActivityType.ID = a.ActivityTypeID
	a.ActivityType.PointsPerMinute = domain.Rate(typeRate)
	a.ActivityType.CreatedAt = fromNanos(typeCreated)
	if voidedAt.Valid {
		a.Void = &domain.Void{
			ActivityID: a.ID,
			Reason:     reason.String,
			VoidedBy:   voidedBy.String,
			VoidedAt:   fromNanos(voidedAt.Int64),
		}
	}
	return a, nil
}

// GetActivity implements domain.LedgerRepository.
func (s *Store) GetActivity(ctx context.Context, id string) (*domain.Activity, error) {
	a, err := scanActivity(s.db.QueryRowContext(ctx, activitySelect+` WHERE a.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListActivities implements domain.LedgerRepository.
func (s *Store) ListActivities(ctx context.Context, q domain.ActivityQuery) ([]domain.Activity, error) {
	query := activitySelect + ` WHERE a.user_id = ?`
	args := []any{q.UserID}
	if q.Since != nil {
		query += ` AND a.activity_date >= ?`
		args = append(args, nanos(*q.Since))
	}
	if q.Cursor != nil {
		query += ` AND (a.activity_date, a.date_logged, a.id) < (?, ?, ?)`
		args = append(args, nanos(q.Cursor.ActivityDate), nanos(q.Cursor.LoggedAt), q.Cursor.ID)
	}
	query += ` ORDER BY a.activity_date DESC, a.date_logged DESC, a.id DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Activity, 0)
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// VoidActivity implements domain.LedgerRepository.
func (s *Store) VoidActivity(ctx context.Context, v domain.Void) (*domain.Activity, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			userID string
			points int64
		)
		err := tx.QueryRowContext(ctx, `SELECT user_id, points_earned FROM activities WHERE id = ?`, v.ActivityID).Scan(&userID, &points)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound("activity", v.ActivityID)
		}
		if err != nil {
			return err
		}

		var voided int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_voids WHERE activity_id = ?`, v.ActivityID).Scan(&voided); err != nil {
			return err
		}
		if voided > 0 {
			return domain.ErrAlreadyVoided
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO activity_voids (activity_id, reason, voided_by, voided_at) VALUES (?, ?, ?, ?)`,
			v.ActivityID, v.Reason, v.VoidedBy, nanos(v.VoidedAt),
		); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE user_profiles SET points = points - ? WHERE user_id = ?`, points, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetActivity(ctx, v.ActivityID)
}

// UserStats implements domain.LedgerRepository.
func (s *Store) UserStats(ctx context.Context, userID string) (domain.ActivityStats, error) {
	var stats domain.ActivityStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(a.duration_minutes), 0), COALESCE(SUM(a.distance), 0.0),
			COALESCE(SUM(a.points_earned), 0), COALESCE(SUM(a.calories_burned), 0)
		FROM activities a
		LEFT JOIN activity_voids v ON v.activity_id = a.id
		WHERE a.user_id = ? AND v.activity_id IS NULL`, userID,
	).Scan(&stats.TotalActivities, &stats.TotalDuration, &stats.TotalDistance, &stats.TotalPoints, &stats.TotalCalories)
	return stats, err
}

// UserTotals implements domain.LedgerRepository. Unreadable rows are
// skipped and counted.
func (s *Store) UserTotals(ctx context.Context) ([]domain.UserTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.user_id, SUM(a.points_earned), COUNT(*)
		FROM activities a
		LEFT JOIN activity_voids v ON v.activity_id = a.id
		WHERE v.activity_id IS NULL
		GROUP BY a.user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.UserTotal, 0)
	for rows.Next() {
		var t domain.UserTotal
		if err := rows.Scan(&t.UserID, &t.Points, &t.ActivitiesCount); err != nil {
			observability.RecordExcludedRecord("users", "unreadable_row")
			log.Warn().Err(err).Msg("skipping unreadable ledger total")
			continue
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const profileColumns = `user_id, points, fitness_level, bio, fitness_goal, updated_at`

func scanProfile(row scanner) (domain.UserProfile, error) {
	var (
		p       domain.UserProfile
		level   string
		updated int64
	)
	if err := row.Scan(&p.UserID, &p.Points, &level, &p.Bio, &p.FitnessGoal, &updated); err != nil {
		return domain.UserProfile{}, err
	}
	p.FitnessLevel = domain.FitnessLevel(level)
	p.UpdatedAt = fromNanos(updated)
	return p, nil
}

// GetProfile implements domain.ProfileRepository.
func (s *Store) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM user_profiles WHERE user_id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveProfile implements domain.ProfileRepository.
func (s *Store) SaveProfile(ctx context.Context, p domain.UserProfile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, points, fitness_level, bio, fitness_goal, updated_at)
		VALUES (?, 0, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			fitness_level = excluded.fitness_level,
			bio           = excluded.bio,
			fitness_goal  = excluded.fitness_goal,
			updated_at    = excluded.updated_at`,
		p.UserID, string(p.FitnessLevel), p.Bio, p.FitnessGoal, nanos(p.UpdatedAt))
	return err
}

// ListProfiles implements domain.ProfileRepository.
func (s *Store) ListProfiles(ctx context.Context) ([]domain.UserProfile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM user_profiles ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.UserProfile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// countedPoints sums a user's non-voided entries. It is correlated on u.user_id.
const countedPoints = `COALESCE((
		SELECT SUM(a.points_earned) FROM activities a
		LEFT JOIN activity_voids v ON v.activity_id = a.id
		WHERE a.user_id = u.user_id AND v.activity_id IS NULL), 0)`

// PointsCheck implements domain.PointsCheckRepository. One statement reads
// both sides, so it sees a single snapshot.
func (s *Store) PointsCheck(ctx context.Context, userID string) (domain.PointsCheck, error) {
	check := domain.PointsCheck{UserID: userID}
	err := s.reads.QueryRowContext(ctx, `
		SELECT COALESCE((SELECT p.points FROM user_profiles p WHERE p.user_id = u.user_id), 0), `+countedPoints+`
		FROM (SELECT ? AS user_id) u`, userID,
	).Scan(&check.StoredPoints, &check.LedgerPoints)
	return check, err
}

// PointsChecks implements domain.PointsCheckRepository.
func (s *Store) PointsChecks(ctx context.Context) ([]domain.PointsCheck, error) {
	rows, err := s.reads.QueryContext(ctx, `
		SELECT u.user_id, COALESCE(p.points, 0), `+countedPoints+`
		FROM (
			SELECT user_id FROM user_profiles
			UNION
			SELECT a.user_id FROM activities a
			LEFT JOIN activity_voids v ON v.activity_id = a.id
			WHERE v.activity_id IS NULL
		) u
		LEFT JOIN user_profiles p ON p.user_id = u.user_id
		ORDER BY u.user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.PointsCheck, 0)
	for rows.Next() {
		var c domain.PointsCheck
		if err := rows.Scan(&c.UserID, &c.StoredPoints, &c.LedgerPoints); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
