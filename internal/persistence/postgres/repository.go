package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/octofit/internal/domain"
	"example.com/octofit/pkg/events"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Repository provides Postgres-backed persistence for the ledger, rosters and
// outbox events. Every mutation writes its outbox row in the same transaction.
type Repository struct {
	pool *pgxpool.Pool
}

var _ domain.Store = (*Repository)(nil)

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Connect opens a pool against url and waits for the server to answer.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

// Close implements domain.Store.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// Pool exposes the underlying pool for the outbox workers.
func (r *Repository) Pool() *pgxpool.Pool { return r.pool }

func (r *Repository) inTx(ctx context.Context, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func validUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// CreateActivityType implements domain.ActivityTypeRepository.
func (r *Repository) CreateActivityType(ctx context.Context, t domain.ActivityType) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO activity_types (id, name, description, points_per_minute_hundredths, icon, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		t.ID, t.Name, t.Description, t.PointsPerMinute.Hundredths(), t.Icon, t.CreatedAt)
	if pgCode(err) == pgUniqueViolation {
		return domain.ErrActivityTypeExists
	}
	return err
}

const typeColumns = `id, name, description, points_per_minute_hundredths, icon, created_at`

func scanType(row pgx.Row) (domain.ActivityType, error) {
	var (
		t    domain.ActivityType
		rate int64
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &rate, &t.Icon, &t.CreatedAt); err != nil {
		return domain.ActivityType{}, err
	}
	t.PointsPerMinute = domain.Rate(rate)
	t.CreatedAt = utc(t.CreatedAt)
	return t, nil
}

// GetActivityType implements domain.ActivityTypeRepository.
func (r *Repository) GetActivityType(ctx context.Context, id string) (*domain.ActivityType, error) {
	t, err := scanType(r.pool.QueryRow(ctx, `SELECT `+typeColumns+` FROM activity_types WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListActivityTypes implements domain.ActivityTypeRepository.
func (r *Repository) ListActivityTypes(ctx context.Context) ([]domain.ActivityType, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+typeColumns+` FROM activity_types ORDER BY id`)
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
func (r *Repository) DeleteActivityType(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM activity_types WHERE id=$1`, id)
	if pgCode(err) == pgForeignKeyViolation {
		return domain.ErrActivityTypeReferenced
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("activity_type", id)
	}
	return nil
}

// AppendActivity implements domain.LedgerRepository.
func (r *Repository) AppendActivity(ctx context.Context, a domain.Activity) error {
	return r.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO activities (id, user_id, activity_type_id, duration_minutes, distance, calories_burned, notes,
				activity_date, date_logged, rate_hundredths, points_earned)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			a.ID, a.UserID, a.ActivityTypeID, a.DurationMinutes, a.Distance, a.CaloriesBurned, a.Notes,
			a.ActivityDate, a.LoggedAt, a.PointsPerMinute.Hundredths(), a.PointsEarned)
		if pgCode(err) == pgForeignKeyViolation {
			return domain.NotFound("activity_type", a.ActivityTypeID)
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO user_profiles (user_id, points) VALUES ($1,$2)
			ON CONFLICT (user_id) DO UPDATE SET points = user_profiles.points + EXCLUDED.points`,
			a.UserID, a.PointsEarned); err != nil {
			return err
		}

		return insertOutbox(ctx, tx, "activity", a.ID, events.TypeActivityLogged, a.UserID, events.ActivityLogged{
			ActivityID:      a.ID,
			UserID:          a.UserID,
			ActivityTypeID:  a.ActivityTypeID,
			DurationMinutes: a.DurationMinutes,
			PointsPerMinute: a.PointsPerMinute.String(),
			PointsEarned:    a.PointsEarned,
			ActivityDate:    a.ActivityDate,
			LoggedAt:        a.LoggedAt,
		})
	})
}

const activitySelect = `
	SELECT a.id::text, a.user_id, a.activity_type_id, a.duration_minutes, a.distance, a.calories_burned, a.notes,
		a.activity_date, a.date_logged, a.rate_hundredths, a.points_earned,
		t.name, t.description, t.points_per_minute_hundredths, t.icon, t.created_at,
		v.reason, v.voided_by, v.voided_at
	FROM activities a
	JOIN activity_types t ON t.id = a.activity_type_id
	LEFT JOIN activity_voids v ON v.activity_id = a.id`

func scanActivity(row pgx.Row) (domain.Activity, error) {
	var (
		a                domain.Activity
		rate, typeRate   int64
		reason, voidedBy *string
		voidedAt         *time.Time
	)
	if err := row.Scan(
		&a.ID, &a.UserID, &a.ActivityTypeID, &a.DurationMinutes, &a.Distance, &a.CaloriesBurned, &a.Notes,
		&a.ActivityDate, &a.LoggedAt, &rate, &a.PointsEarned,
		&a.ActivityType.Name, &a.ActivityType.Description, &typeRate, &a.ActivityType.Icon, &a.ActivityType.CreatedAt,
		&reason, &voidedBy, &voidedAt,
	); err != nil {
		return domain.Activity{}, err
	}
	a.ActivityDate = utc(a.ActivityDate)
	a.LoggedAt = utc(a.LoggedAt)
	a.PointsPerMinute = domain.Rate(rate)
	a.ActivityType.ID = a.ActivityTypeID
	a.ActivityType.PointsPerMinute = domain.Rate(typeRate)
	a.ActivityType.CreatedAt = utc(a.ActivityType.CreatedAt)
	if voidedAt != nil {
		v := domain.Void{ActivityID: a.ID, VoidedAt: voidedAt.UTC()}
		if reason != nil {
			v.Reason = *reason
		}
		if voidedBy != nil {
			v.VoidedBy = *voidedBy
		}
		a.Void = &v
	}
	return a, nil
}

// GetActivity implements domain.LedgerRepository.
func (r *Repository) GetActivity(ctx context.Context, id string) (*domain.Activity, error) {
	if !validUUID(id) {
		return nil, nil
	}
	a, err := scanActivity(r.pool.QueryRow(ctx, activitySelect+` WHERE a.id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListActivities implements domain.LedgerRepository.
func (r *Repository) ListActivities(ctx context.Context, q domain.ActivityQuery) ([]domain.Activity, error) {
	args := []any{q.UserID}
	query := activitySelect + ` WHERE a.user_id=$1`
	if q.Since != nil {
		args = append(args, *q.Since)
		query += fmt.Sprintf(` AND a.activity_date >= $%d`, len(args))
	}
	if q.Cursor != nil {
		args = append(args, q.Cursor.ActivityDate, q.Cursor.LoggedAt, q.Cursor.ID)
		n := len(args)
		query += fmt.Sprintf(` AND (a.activity_date, a.date_logged, a.id::text) < ($%d, $%d, $%d)`, n-2, n-1, n)
	}
	query += ` ORDER BY a.activity_date DESC, a.date_logged DESC, a.id::text DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
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
func (r *Repository) VoidActivity(ctx context.Context, v domain.Void) (*domain.Activity, error) {
	if !validUUID(v.ActivityID) {
		return nil, domain.NotFound("activity", v.ActivityID)
	}
	err := r.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var (
			userID string
			points int64
		)
		err := tx.QueryRow(ctx, `SELECT user_id, points_earned FROM activities WHERE id=$1 FOR UPDATE`, v.ActivityID).Scan(&userID, &points)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NotFound("activity", v.ActivityID)
		}
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO activity_voids (activity_id, reason, voided_by, voided_at) VALUES ($1,$2,$3,$4)
			ON CONFLICT (activity_id) DO NOTHING`,
			v.ActivityID, v.Reason, v.VoidedBy, v.VoidedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrAlreadyVoided
		}

		if _, err := tx.Exec(ctx, `UPDATE user_profiles SET points = points - $1 WHERE user_id=$2`, points, userID); err != nil {
			return err
		}

		return insertOutbox(ctx, tx, "activity", v.ActivityID, events.TypeActivityVoided, userID, events.ActivityVoided{
			ActivityID:   v.ActivityID,
			UserID:       userID,
			PointsEarned: points,
			Reason:       v.Reason,
			VoidedBy:     v.VoidedBy,
			VoidedAt:     v.VoidedAt,
		})
	})
	if err != nil {
		return nil, err
	}
	return r.GetActivity(ctx, v.ActivityID)
}

// UserStats implements domain.LedgerRepository.
func (r *Repository) UserStats(ctx context.Context, userID string) (domain.ActivityStats, error) {
	var stats domain.ActivityStats
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(a.duration_minutes), 0)::bigint, COALESCE(SUM(a.distance), 0)::float8,
			COALESCE(SUM(a.points_earned), 0)::bigint, COALESCE(SUM(a.calories_burned), 0)::bigint
		FROM activities a
		LEFT JOIN activity_voids v ON v.activity_id = a.id
		WHERE a.user_id=$1 AND v.activity_id IS NULL`, userID,
	).Scan(&stats.TotalActivities, &stats.TotalDuration, &stats.TotalDistance, &stats.TotalPoints, &stats.TotalCalories)
	return stats, err
}

// UserTotals implements domain.LedgerRepository.
func (r *Repository) UserTotals(ctx context.Context) ([]domain.UserTotal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.user_id, SUM(a.points_earned)::bigint, COUNT(*)
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
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const profileColumns = `user_id, points, fitness_level, bio, fitness_goal, updated_at`

func scanProfile(row pgx.Row) (domain.UserProfile, error) {
	var (
		p       domain.UserProfile
		level   string
		updated *time.Time
	)
	if err := row.Scan(&p.UserID, &p.Points, &level, &p.Bio, &p.FitnessGoal, &updated); err != nil {
		return domain.UserProfile{}, err
	}
	p.FitnessLevel = domain.FitnessLevel(level)
	if updated != nil {
		p.UpdatedAt = updated.UTC()
	}
	return p, nil
}

// GetProfile implements domain.ProfileRepository.
func (r *Repository) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	p, err := scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM user_profiles WHERE user_id=$1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveProfile implements domain.ProfileRepository.
func (r *Repository) SaveProfile(ctx context.Context, p domain.UserProfile) error {
	var updated *time.Time
	if !p.UpdatedAt.IsZero() {
		updated = &p.UpdatedAt
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_profiles (user_id, points, fitness_level, bio, fitness_goal, updated_at)
		VALUES ($1, 0, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			fitness_level = EXCLUDED.fitness_level,
			bio           = EXCLUDED.bio,
			fitness_goal  = EXCLUDED.fitness_goal,
			updated_at    = EXCLUDED.updated_at`,
		p.UserID, string(p.FitnessLevel), p.Bio, p.FitnessGoal, updated)
	return err
}

// ListProfiles implements domain.ProfileRepository.
func (r *Repository) ListProfiles(ctx context.Context) ([]domain.UserProfile, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+profileColumns+` FROM user_profiles ORDER BY user_id`)
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

// pointsChecks joins stored profile points with the counted ledger sum. A
// single statement reads one snapshot under READ COMMITTED.
const pointsChecks = `
	WITH counted AS (
		SELECT a.user_id, SUM(a.points_earned)::bigint AS points
		FROM activities a
		LEFT JOIN activity_voids v ON v.activity_id = a.id
		WHERE v.activity_id IS NULL
		GROUP BY a.user_id
	)
	SELECT COALESCE(p.user_id, c.user_id), COALESCE(p.points, 0), COALESCE(c.points, 0)
	FROM user_profiles p
	FULL OUTER JOIN counted c ON c.user_id = p.user_id`

// PointsCheck implements domain.PointsCheckRepository.
func (r *Repository) PointsCheck(ctx context.Context, userID string) (domain.PointsCheck, error) {
	check := domain.PointsCheck{UserID: userID}
	err := r.pool.QueryRow(ctx, `
		SELECT
			COALESCE((SELECT points FROM user_profiles WHERE user_id=$1), 0),
			COALESCE((
				SELECT SUM(a.points_earned) FROM activities a
				LEFT JOIN activity_voids v ON v.activity_id = a.id
				WHERE a.user_id=$1 AND v.activity_id IS NULL), 0)::bigint`, userID,
	).Scan(&check.StoredPoints, &check.LedgerPoints)
	return check, err
}

// PointsChecks implements domain.PointsCheckRepository.
func (r *Repository) PointsChecks(ctx context.Context) ([]domain.PointsCheck, error) {
	rows, err := r.pool.Query(ctx, pointsChecks+` ORDER BY 1`)
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
