// Package profile serves user profiles and checks their denormalised points
// against the ledger.
package profile

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"example.com/octofit/internal/domain"
	"example.com/octofit/internal/observability"
)

const (
	maxBioLength  = 500
	maxGoalLength = 100
)


// Update carries the editable profile fields. Nil fields are left unchanged.
type Update struct {
	FitnessLevel *domain.FitnessLevel
	Bio          *string
	FitnessGoal  *string
}

// Service reads, edits and reconciles profiles.
type Service struct {
	profiles domain.ProfileRepository
	checks   domain.PointsCheckRepository
	clock    domain.Clock
}

// NewService constructs a Service.
func NewService(profiles domain.ProfileRepository, checks domain.PointsCheckRepository, clock domain.Clock) *Service {
	return &Service{profiles: profiles, checks: checks, clock: clock}
}

// Get returns the stored profile, or a fresh one for an unseen user.
func (s *Service) Get(ctx context.Context, userID string) (domain.UserProfile, error) {
	p, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("get profile: %w", err)
	}
	if p == nil {
		return domain.NewProfile(userID), nil
	}
	return *p, nil
}

// Update applies the editable fields. Points are never written here.
func (s *Service) Update(ctx context.Context, userID string, u Update) (domain.UserProfile, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.UserProfile{}, domain.NewValidationError("user_id", domain.CodeInvalidID, "user_id is required")
	}
	p, err := s.Get(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}

	if u.FitnessLevel != nil {
		if !u.FitnessLevel.Valid() {
			return domain.UserProfile{}, domain.NewValidationError("fitness_level", domain.CodeInvalidProfile, "fitness_level must be beginner, intermediate or advanced")
		}
		p.FitnessLevel = *u.FitnessLevel
	}
	if u.Bio != nil {
		if utf8.RuneCountInString(*u.Bio) > maxBioLength {
			return domain.UserProfile{}, domain.NewValidationError("bio", domain.CodeInvalidProfile, fmt.Sprintf("bio must be at most %d characters", maxBioLength))
		}
		p.Bio = *u.Bio
	}
	if u.FitnessGoal != nil {
		if utf8.RuneCountInString(*u.FitnessGoal) > maxGoalLength {
			return domain.UserProfile{}, domain.NewValidationError("fitness_goal", domain.CodeInvalidProfile, fmt.Sprintf("fitness_goal must be at most %d characters", maxGoalLength))
		}
		p.FitnessGoal = *u.FitnessGoal
	}
	p.UpdatedAt = domain.NowUTC(s.clock)

	if err := s.profiles.SaveProfile(ctx, p); err != nil {
		return domain.UserProfile{}, fmt.Errorf("save profile: %w", err)
	}
	return s.Get(ctx, userID)
}

// ReconcileUser returns an *domain.IntegrityFault when the user's stored
// points disagree with the ledger.
func (s *Service) ReconcileUser(ctx context.Context, userID string) error {
	c, err := s.checks.PointsCheck(ctx, userID)
	if err != nil {
		return fmt.Errorf("points check: %w", err)
	}
	if c.StoredPoints != c.LedgerPoints {
		fault := &domain.IntegrityFault{UserID: userID, StoredPoints: c.StoredPoints, LedgerPoints: c.LedgerPoints}
		report(fault)
		return fault
	}
	return nil
}

// Reconcile checks every profile against the ledger, including ledger users
// without a profile row. Divergences are logged and counted; nothing is
// corrected.
func (s *Service) Reconcile(ctx context.Context) ([]domain.IntegrityFault, error) {
	checks, err := s.checks.PointsChecks(ctx)
	if err != nil {
		return nil, fmt.Errorf("points checks: %w", err)
	}

	faults := make([]domain.IntegrityFault, 0)
	for _, c := range checks {
		if c.StoredPoints != c.LedgerPoints {
			faults = append(faults, domain.IntegrityFault{UserID: c.UserID, StoredPoints: c.StoredPoints, LedgerPoints: c.LedgerPoints})
		}
	}

	sort.Slice(faults, func(i, j int) bool { return faults[i].UserID < faults[j].UserID })
	for i := range faults {
		report(&faults[i])
	}
	log.Info().Int("users", len(checks)).Int("faults", len(faults)).Msg("reconciliation finished")
	return faults, nil
}

func report(f *domain.IntegrityFault) {
	observability.RecordIntegrityFault()
	log.Error().
		Str("user_id", f.UserID).
		Int64("stored_points", f.StoredPoints).
		Int64("ledger_points", f.LedgerPoints).
		Msg("profile points diverge from ledger")
}
