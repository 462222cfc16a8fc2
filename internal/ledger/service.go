// Package ledger appends scored activities to the per-user ledger and serves
// reads over it.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/octofit/internal/domain"
	"example.com/octofit/internal/observability"
	"example.com/octofit/internal/scoring"
)

const (
	// DefaultLimit is the page size used when a query names none.
	DefaultLimit = 20
	// MaxLimit caps the page size.
	MaxLimit = 100
)

// NewActivity is the caller-supplied part of a ledger entry.
type NewActivity struct {
	UserID          string
	ActivityTypeID  string
	DurationMinutes int
	Distance        *float64
	CaloriesBurned  *int
	Notes           string
	// ActivityDate defaults to the append time when nil.
	ActivityDate *time.Time
}

// Query selects a page of a user's ledger.
type Query struct {
	Since  *time.Time
	Cursor *domain.Cursor
	Limit  int
}

// Page is one slice of a user's ledger, newest first. Next is nil on the
// last page.
type Page struct {
	Items []domain.Activity
	Next  *domain.Cursor
}

// Service orchestrates ledger workflows.
type Service struct {
	repo   domain.LedgerRepository
	engine *scoring.Engine
	clock  domain.Clock
}

// NewService constructs a Service.
func NewService(repo domain.LedgerRepository, engine *scoring.Engine, clock domain.Clock) *Service {
	return &Service{repo: repo, engine: engine, clock: clock}
}

// Append scores the activity and commits it together with the profile
// points increment.
func (s *Service) Append(ctx context.Context, in NewActivity) (*domain.Activity, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return nil, domain.NewValidationError("user_id", domain.CodeInvalidID, "user_id is required")
	}
	if in.CaloriesBurned != nil && *in.CaloriesBurned < 0 {
		return nil, domain.NewValidationError("calories_burned", domain.CodeInvalidCalories, "calories_burned must be >= 0")
	}

	now := domain.NowUTC(s.clock)
	date := now
	if in.ActivityDate != nil {
		date = in.ActivityDate.UTC().Truncate(time.Microsecond)
		if date.After(now) {
			return nil, domain.NewValidationError("activity_date", domain.CodeFutureActivityDate, "activity_date cannot be in the future")
		}
	}

	res, err := s.engine.Score(ctx, in.ActivityTypeID, in.DurationMinutes, in.Distance)
	if err != nil {
		return nil, err
	}

	activity := domain.Activity{
		ID:              uuid.NewString(),
		UserID:          userID,
		ActivityTypeID:  res.Type.ID,
		ActivityType:    res.Type,
		DurationMinutes: in.DurationMinutes,
		Distance:        in.Distance,
		CaloriesBurned:  in.CaloriesBurned,
		Notes:           in.Notes,
		ActivityDate:    date,
		LoggedAt:        now,
		PointsPerMinute: res.Type.PointsPerMinute,
		PointsEarned:    res.Points,
	}

	if err := s.repo.AppendActivity(ctx, activity); err != nil {
		if domain.IsNotFound(err) {
			// The type was removed between scoring and commit.
			return nil, domain.NewValidationError("activity_type_id", domain.CodeInvalidActivityType, "unknown activity type "+in.ActivityTypeID)
		}
		return nil, fmt.Errorf("append activity: %w", err)
	}

	observability.RecordActivityAppended(activity.ActivityTypeID, activity.PointsEarned, activity.LoggedAt)
	log.Info().
		Str("activity_id", activity.ID).
		Str("user_id", activity.UserID).
		Str("activity_type", activity.ActivityTypeID).
		Int64("points", activity.PointsEarned).
		Msg("activity appended")
	return &activity, nil
}

// List returns a page of the user's ledger, newest first.
func (s *Service) List(ctx context.Context, userID string, q Query) (Page, error) {
	limit := NormalizeLimit(q.Limit, DefaultLimit, MaxLimit)
	items, err := s.repo.ListActivities(ctx, domain.ActivityQuery{
		UserID: userID,
		Since:  q.Since,
		Cursor: q.Cursor,
		Limit:  limit + 1,
	})
	if err != nil {
		return Page{}, fmt.Errorf("list activities: %w", err)
	}

	page := Page{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		next := domain.CursorFor(page.Items[limit-1])
		page.Next = &next
	}
	return page, nil
}

// Get returns one of the user's ledger entries.
func (s *Service) Get(ctx context.Context, userID, id string) (*domain.Activity, error) {
	a, err := s.repo.GetActivity(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get activity: %w", err)
	}
	if a == nil || a.UserID != userID {
		return nil, domain.NotFound("activity", id)
	}
	return a, nil
}

// Stats summarises the user's counted ledger entries.
func (s *Service) Stats(ctx context.Context, userID string) (domain.ActivityStats, error) {
	stats, err := s.repo.UserStats(ctx, userID)
	if err != nil {
		return domain.ActivityStats{}, fmt.Errorf("activity stats: %w", err)
	}
	return stats, nil
}

// SumPoints returns the user's ledger points.
func (s *Service) SumPoints(ctx context.Context, userID string) (int64, error) {
	stats, err := s.Stats(ctx, userID)
	return stats.TotalPoints, err
}

// SumDuration returns the user's logged minutes.
func (s *Service) SumDuration(ctx context.Context, userID string) (int64, error) {
	stats, err := s.Stats(ctx, userID)
	return stats.TotalDuration, err
}

// SumDistance returns the user's logged distance.
func (s *Service) SumDistance(ctx context.Context, userID string) (float64, error) {
	stats, err := s.Stats(ctx, userID)
	return stats.TotalDistance, err
}

// Void cancels a ledger entry and reverses its points.
func (s *Service) Void(ctx context.Context, id, reason, actor string) (*domain.Activity, error) {
	v := domain.Void{
		ActivityID: id,
		Reason:     strings.TrimSpace(reason),
		VoidedBy:   actor,
		VoidedAt:   domain.NowUTC(s.clock),
	}
	a, err := s.repo.VoidActivity(ctx, v)
	if err != nil {
		return nil, err
	}

	observability.RecordActivityVoided()
	log.Warn().
		Str("activity_id", a.ID).
		Str("user_id", a.UserID).
		Str("voided_by", actor).
		Int64("points", a.PointsEarned).
		Msg("activity voided")
	return a, nil
}

// NormalizeLimit applies a default to non-positive limits and caps the rest.
func NormalizeLimit(limit, def, ceiling int) int {
	if limit <= 0 {
		return def
	}
	if limit > ceiling {
		return ceiling
	}
	return limit
}
