// Package catalog administers the activity type registry.
package catalog

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"example.com/octofit/internal/domain"
)

var idPattern = regexp.MustCompile(`^[a-z0-9_-]{1,50}$`)

// Defaults is the catalog installed by Seed on a fresh store.
var Defaults = []domain.ActivityType{
	{ID: "run", Name: "Running", Description: "Outdoor or treadmill running", PointsPerMinute: domain.MustParseRate("2.00"), Icon: "running"},
	{ID: "walk", Name: "Walking", Description: "Brisk walking", PointsPerMinute: domain.MustParseRate("1.00"), Icon: "walking"},
	{ID: "cycle", Name: "Cycling", Description: "Road, trail or stationary bike", PointsPerMinute: domain.MustParseRate("1.50"), Icon: "biking"},
	{ID: "swim", Name: "Swimming", Description: "Pool or open water", PointsPerMinute: domain.MustParseRate("2.50"), Icon: "swimmer"},
	{ID: "yoga", Name: "Yoga", Description: "Yoga and mobility", PointsPerMinute: domain.MustParseRate("1.00"), Icon: "spa"},
	{ID: "strength", Name: "Strength Training", Description: "Weights and bodyweight work", PointsPerMinute: domain.MustParseRate("2.00"), Icon: "dumbbell"},
}

// Registry validates and serves activity types.
type Registry struct {
	repo  domain.ActivityTypeRepository
	clock domain.Clock
}

// NewRegistry constructs a Registry.
func NewRegistry(repo domain.ActivityTypeRepository, clock domain.Clock) *Registry {
	return &Registry{repo: repo, clock: clock}
}

// Add registers a new activity type.
func (r *Registry) Add(ctx context.Context, t domain.ActivityType) (domain.ActivityType, error) {
	t.ID = strings.TrimSpace(t.ID)
	t.Name = strings.TrimSpace(t.Name)
	t.Icon = strings.TrimSpace(t.Icon)
	if err := validate(t); err != nil {
		return domain.ActivityType{}, err
	}
	t.CreatedAt = domain.NowUTC(r.clock)
	if err := r.repo.CreateActivityType(ctx, t); err != nil {
		return domain.ActivityType{}, err
	}
	log.Info().Str("activity_type_id", t.ID).Str("rate", t.PointsPerMinute.String()).Msg("activity type registered")
	return t, nil
}

// Get returns the activity type or NotFoundError.
func (r *Registry) Get(ctx context.Context, id string) (domain.ActivityType, error) {
	t, err := r.repo.GetActivityType(ctx, id)
	if err != nil {
		return domain.ActivityType{}, err
	}
	if t == nil {
		return domain.ActivityType{}, domain.NotFound("activity_type", id)
	}
	return *t, nil
}

// List returns the catalog ordered by name.
func (r *Registry) List(ctx context.Context) ([]domain.ActivityType, error) {
	types, err := r.repo.ListActivityTypes(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(types, func(i, j int) bool {
		if types[i].Name != types[j].Name {
			return types[i].Name < types[j].Name
		}
		return types[i].ID < types[j].ID
	})
	return types, nil
}

// Remove deletes an unreferenced activity type.
func (r *Registry) Remove(ctx context.Context, id string) error {
	if err := r.repo.DeleteActivityType(ctx, id); err != nil {
		return err
	}
	log.Info().Str("activity_type_id", id).Msg("activity type removed")
	return nil
}

// Seed installs the given types, skipping any that already exist.
func (r *Registry) Seed(ctx context.Context, types []domain.ActivityType) error {
	for _, t := range types {
		if _, err := r.Add(ctx, t); err != nil {
			if errors.Is(err, domain.ErrActivityTypeExists) {
				continue
			}
			return err
		}
	}
	return nil
}

func validate(t domain.ActivityType) error {
	if !idPattern.MatchString(t.ID) {
		return domain.NewValidationError("id", domain.CodeInvalidID, "id must be 1-50 characters of a-z, 0-9, '-' or '_'")
	}
	if t.Name == "" || len(t.Name) > 50 {
		return domain.NewValidationError("name", domain.CodeInvalidName, "name must be 1-50 characters")
	}
	if t.PointsPerMinute < 0 || t.PointsPerMinute > domain.MaxRate {
		return domain.NewValidationError("points_per_minute", domain.CodeInvalidRate, "points_per_minute must be between 0 and 999.99")
	}
	return nil
}
