// Package domain defines the entities, error taxonomy and storage ports of the
// scoring and ranking service.
package domain

import "context"

// Lookup methods return (nil, nil) when the record does not exist; services
// translate that into NotFoundError.

// ActivityTypeRepository persists the activity type catalog.
type ActivityTypeRepository interface {
	// CreateActivityType fails with ErrActivityTypeExists on a duplicate id or name.
	CreateActivityType(ctx context.Context, t ActivityType) error
	GetActivityType(ctx context.Context, id string) (*ActivityType, error)
	ListActivityTypes(ctx context.Context) ([]ActivityType, error)
	// DeleteActivityType fails with ErrActivityTypeReferenced while any ledger
	// entry points at the type, and with NotFoundError when it is absent.
	DeleteActivityType(ctx context.Context, id string) error
}

// LedgerRepository persists activities. Appends and voids commit the
// profile points change in the same atomic step.
type LedgerRepository interface {
	// AppendActivity fails with NotFoundError if the activity type vanished
	// between scoring and commit.
	AppendActivity(ctx context.Context, a Activity) error
	GetActivity(ctx context.Context, id string) (*Activity, error)
	ListActivities(ctx context.Context, q ActivityQuery) ([]Activity, error)
	// VoidActivity fails with ErrAlreadyVoided or NotFoundError.
	VoidActivity(ctx context.Context, v Void) (*Activity, error)
	UserStats(ctx context.Context, userID string) (ActivityStats, error)
	// UserTotals aggregates every user with at least one counted entry.
	UserTotals(ctx context.Context) ([]UserTotal, error)
}

// TeamRepository persists teams and rosters. AddMember and RemoveMember are
// serialised per team and re-check the roster at commit time.
type TeamRepository interface {
	// CreateTeam fails with ErrTeamNameTaken on a duplicate name.
	CreateTeam(ctx context.Context, t Team) error
	GetTeam(ctx context.Context, id string) (*Team, error)
	ListTeams(ctx context.Context) ([]Team, error)
	ListTeamsByMember(ctx context.Context, userID string) ([]Team, error)
	// AddMember fails with NotFoundError, ErrAlreadyMember or ErrTeamFull.
	AddMember(ctx context.Context, teamID string, m Membership) (*Team, error)
	// RemoveMember fails with NotFoundError or ErrNotMember.
	RemoveMember(ctx context.Context, teamID, userID string) (*Team, error)
}

// ProfileRepository persists user profiles. SaveProfile never touches points.
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (*UserProfile, error)
	SaveProfile(ctx context.Context, p UserProfile) error
	ListProfiles(ctx context.Context) ([]UserProfile, error)
}

// PointsCheckRepository reads profile points and ledger sums in one snapshot.
type PointsCheckRepository interface {
	// PointsCheck returns zero values for a user with neither a profile nor
	// a ledger entry.
	PointsCheck(ctx context.Context, userID string) (PointsCheck, error)
	// PointsChecks covers every user with a profile or a counted entry,
	// ordered by user id.
	PointsChecks(ctx context.Context) ([]PointsCheck, error)
}

// Store bundles every repository a backend provides.
type Store interface {
	ActivityTypeRepository
	LedgerRepository
	TeamRepository
	ProfileRepository
	PointsCheckRepository
	Close() error
}
