// Package memory keeps the whole store in process memory. It is the default
// backend for local development and the reference for the store contract.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"example.com/octofit/internal/domain"
)

type typeEntry struct {
	t    domain.ActivityType
	refs atomic.Int64
}

// userLedger holds one user's entries, voids and profile under one lock so a
// points change is never visible without its ledger write.
type userLedger struct {
	mu         sync.RWMutex
	activities []domain.Activity
	voids      map[string]domain.Void
	profile    domain.UserProfile
	hasProfile bool
}

type teamEntry struct {
	mu   sync.Mutex
	team domain.Team
}

// Store implements domain.Store.
type Store struct {
	typesMu sync.RWMutex
	types   map[string]*typeEntry

	ledgerMu sync.RWMutex
	users    map[string]*userLedger
	owners   map[string]string // activity id -> user id

	teamsMu sync.RWMutex
	teams   map[string]*teamEntry
	names   map[string]string // folded team name -> team id
}

var _ domain.Store = (*Store)(nil)

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		types:  make(map[string]*typeEntry),
		users:  make(map[string]*userLedger),
		owners: make(map[string]string),
		teams:  make(map[string]*teamEntry),
		names:  make(map[string]string),
	}
}

// Close implements domain.Store.
func (s *Store) Close() error { return nil }

// CreateActivityType implements domain.ActivityTypeRepository.
func (s *Store) CreateActivityType(ctx context.Context, t domain.ActivityType) error {
	s.typesMu.Lock()
	defer s.typesMu.Unlock()

	if _, ok := s.types[t.ID]; ok {
		return domain.ErrActivityTypeExists
	}
	for _, e := range s.types {
		if strings.EqualFold(e.t.Name, t.Name) {
			return domain.ErrActivityTypeExists
		}
	}
	s.types[t.ID] = &typeEntry{t: t}
	return nil
}

// GetActivityType implements domain.ActivityTypeRepository.
func (s *Store) GetActivityType(ctx context.Context, id string) (*domain.ActivityType, error) {
	s.typesMu.RLock()
	defer s.typesMu.RUnlock()

	e, ok := s.types[id]
	if !ok {
		return nil, nil
	}
	t := e.t
	return &t, nil
}

// ListActivityTypes implements domain.ActivityTypeRepository.
func (s *Store) ListActivityTypes(ctx context.Context) ([]domain.ActivityType, error) {
	s.typesMu.RLock()
	defer s.typesMu.RUnlock()

	out := make([]domain.ActivityType, 0, len(s.types))
	for _, e := range s.types {
		out = append(out, e.t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteActivityType implements domain.ActivityTypeRepository.
func (s *Store) DeleteActivityType(ctx context.Context, id string) error {
	s.typesMu.Lock()
	defer s.typesMu.Unlock()

	e, ok := s.types[id]
	if !ok {
		return domain.NotFound("activity_type", id)
	}
	if e.refs.Load() > 0 {
		return domain.ErrActivityTypeReferenced
	}
	delete(s.types, id)
	return nil
}

// AppendActivity implements domain.LedgerRepository.
func (s *Store) AppendActivity(ctx context.Context, a domain.Activity) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// The read lock keeps the type from being deleted until the entry that
	// references it is committed.
	s.typesMu.RLock()
	defer s.typesMu.RUnlock()
	te, ok := s.types[a.ActivityTypeID]
	if !ok {
		return domain.NotFound("activity_type", a.ActivityTypeID)
	}

	s.ledgerMu.Lock()
	if _, dup := s.owners[a.ID]; dup {
		s.ledgerMu.Unlock()
		return fmt.Errorf("memory: duplicate activity id %s", a.ID)
	}
	s.owners[a.ID] = a.UserID
	bucket := s.bucketLocked(a.UserID)
	s.ledgerMu.Unlock()

	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	bucket.activities = append(bucket.activities, a)
	if !bucket.hasProfile {
		bucket.profile = domain.NewProfile(a.UserID)
		bucket.hasProfile = true
	}
	bucket.profile.Points += a.PointsEarned
	te.refs.Add(1)
	return nil
}

// bucketLocked returns the user's ledger, creating it. ledgerMu must be held
// for writing.
func (s *Store) bucketLocked(userID string) *userLedger {
	b, ok := s.users[userID]
	if !ok {
		b = &userLedger{voids: make(map[string]domain.Void)}
		s.users[userID] = b
	}
	return b
}

func (s *Store) bucket(userID string) *userLedger {
	s.ledgerMu.RLock()
	defer s.ledgerMu.RUnlock()
	return s.users[userID]
}

// GetActivity implements domain.LedgerRepository.
func (s *Store) GetActivity(ctx context.Context, id string) (*domain.Activity, error) {
	s.ledgerMu.RLock()
	userID, ok := s.owners[id]
	b := s.users[userID]
	s.ledgerMu.RUnlock()
	if !ok || b == nil {
		return nil, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, a := range b.activities {
		if a.ID == id {
			out := b.materialise(a)
			return &out, nil
		}
	}
	return nil, nil
}

// materialise attaches the void record, if any. b.mu must be held.
func (b *userLedger) materialise(a domain.Activity) domain.Activity {
	if v, ok := b.voids[a.ID]; ok {
		a.Void = &v
	}
	return a
}

// ListActivities implements domain.LedgerRepository.
func (s *Store) ListActivities(ctx context.Context, q domain.ActivityQuery) ([]domain.Activity, error) {
	b := s.bucket(q.UserID)
	if b == nil {
		return []domain.Activity{}, nil
	}

	b.mu.RLock()
	out := make([]domain.Activity, 0, len(b.activities))
	for _, a := range b.activities {
		if q.Since != nil && a.ActivityDate.Before(*q.Since) {
			continue
		}
		if q.Cursor != nil && !domain.OlderThan(a, *q.Cursor) {
			continue
		}
		out = append(out, b.materialise(a))
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return domain.NewestFirst(out[i], out[j]) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// VoidActivity implements domain.LedgerRepository.
func (s *Store) VoidActivity(ctx context.Context, v domain.Void) (*domain.Activity, error) {
	s.ledgerMu.RLock()
	userID, ok := s.owners[v.ActivityID]
	b := s.users[userID]
	s.ledgerMu.RUnlock()
	if !ok || b == nil {
		return nil, domain.NotFound("activity", v.ActivityID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, voided := b.voids[v.ActivityID]; voided {
		return nil, domain.ErrAlreadyVoided
	}
	for _, a := range b.activities {
		if a.ID != v.ActivityID {
			continue
		}
		b.voids[a.ID] = v
		b.profile.Points -= a.PointsEarned
		out := b.materialise(a)
		return &out, nil
	}
	return nil, domain.NotFound("activity", v.ActivityID)
}

// UserStats implements domain.LedgerRepository.
func (s *Store) UserStats(ctx context.Context, userID string) (domain.ActivityStats, error) {
	var stats domain.ActivityStats
	b := s.bucket(userID)
	if b == nil {
		return stats, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, a := range b.activities {
		if _, voided := b.voids[a.ID]; voided {
			continue
		}
		stats.TotalActivities++
		stats.TotalDuration += int64(a.DurationMinutes)
		stats.TotalPoints += a.PointsEarned
		if a.Distance != nil {
			stats.TotalDistance += *a.Distance
		}
		if a.CaloriesBurned != nil {
			stats.TotalCalories += int64(*a.CaloriesBurned)
		}
	}
	return stats, nil
}

// UserTotals implements domain.LedgerRepository.
func (s *Store) UserTotals(ctx context.Context) ([]domain.UserTotal, error) {
	s.ledgerMu.RLock()
	buckets := make(map[string]*userLedger, len(s.users))
	for id, b := range s.users {
		buckets[id] = b
	}
	s.ledgerMu.RUnlock()

	out := make([]domain.UserTotal, 0, len(buckets))
	for userID, b := range buckets {
		total := domain.UserTotal{UserID: userID}
		b.mu.RLock()
		for _, a := range b.activities {
			if _, voided := b.voids[a.ID]; voided {
				continue
			}
			total.Points += a.PointsEarned
			total.ActivitiesCount++
		}
		b.mu.RUnlock()
		if total.ActivitiesCount > 0 {
			out = append(out, total)
		}
	}
	return out, nil
}

// GetProfile implements domain.ProfileRepository.
func (s *Store) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	b := s.bucket(userID)
	if b == nil {
		return nil, nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.hasProfile {
		return nil, nil
	}
	p := b.profile
	return &p, nil
}

// SaveProfile implements domain.ProfileRepository.
func (s *Store) SaveProfile(ctx context.Context, p domain.UserProfile) error {
	s.ledgerMu.Lock()
	b := s.bucketLocked(p.UserID)
	s.ledgerMu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	points := b.profile.Points
	b.profile = p
	b.profile.Points = points
	b.hasProfile = true
	return nil
}

// ListProfiles implements domain.ProfileRepository.
func (s *Store) ListProfiles(ctx context.Context) ([]domain.UserProfile, error) {
	s.ledgerMu.RLock()
	buckets := make([]*userLedger, 0, len(s.users))
	for _, b := range s.users {
		buckets = append(buckets, b)
	}
	s.ledgerMu.RUnlock()

	out := make([]domain.UserProfile, 0, len(buckets))
	for _, b := range buckets {
		b.mu.RLock()
		if b.hasProfile {
			out = append(out, b.profile)
		}
		b.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// PointsCheck implements domain.PointsCheckRepository.
func (s *Store) PointsCheck(ctx context.Context, userID string) (domain.PointsCheck, error) {
	if err := ctx.Err(); err != nil {
		return domain.PointsCheck{}, err
	}
	b := s.bucket(userID)
	if b == nil {
		return domain.PointsCheck{UserID: userID}, nil
	}
	check, _ := b.check(userID)
	return check, nil
}

// PointsChecks implements domain.PointsCheckRepository.
func (s *Store) PointsChecks(ctx context.Context) ([]domain.PointsCheck, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.ledgerMu.RLock()
	buckets := make(map[string]*userLedger, len(s.users))
	for id, b := range s.users {
		buckets[id] = b
	}
	s.ledgerMu.RUnlock()

	out := make([]domain.PointsCheck, 0, len(buckets))
	for userID, b := range buckets {
		if check, ok := b.check(userID); ok {
			out = append(out, check)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// check reads the profile points and the counted ledger sum under one hold
// of b.mu. ok is false when the user has neither.
func (b *userLedger) check(userID string) (check domain.PointsCheck, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	check.UserID = userID
	counted := 0
	for _, a := range b.activities {
		if _, voided := b.voids[a.ID]; voided {
			continue
		}
		check.LedgerPoints += a.PointsEarned
		counted++
	}
	if b.hasProfile {
		check.StoredPoints = b.profile.Points
	}
	return check, b.hasProfile || counted > 0
}

// CreateTeam implements domain.TeamRepository.
func (s *Store) CreateTeam(ctx context.Context, t domain.Team) error {
	s.teamsMu.Lock()
	defer s.teamsMu.Unlock()

	key := strings.ToLower(t.Name)
	if _, taken := s.names[key]; taken {
		return domain.ErrTeamNameTaken
	}
	t.Members = cloneMembers(t.Members)
	s.teams[t.ID] = &teamEntry{team: t}
	s.names[key] = t.ID
	return nil
}

func (s *Store) entry(teamID string) *teamEntry {
	s.teamsMu.RLock()
	defer s.teamsMu.RUnlock()
	return s.teams[teamID]
}

func (s *Store) entries() []*teamEntry {
	s.teamsMu.RLock()
	defer s.teamsMu.RUnlock()
	out := make([]*teamEntry, 0, len(s.teams))
	for _, e := range s.teams {
		out = append(out, e)
	}
	return out
}

// GetTeam implements domain.TeamRepository.
func (s *Store) GetTeam(ctx context.Context, id string) (*domain.Team, error) {
	e := s.entry(id)
	if e == nil {
		return nil, nil
	}
	t := e.snapshot()
	return &t, nil
}

func (e *teamEntry) snapshot() domain.Team {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.team
	t.Members = cloneMembers(t.Members)
	return t
}

// ListTeams implements domain.TeamRepository.
func (s *Store) ListTeams(ctx context.Context) ([]domain.Team, error) {
	entries := s.entries()
	out := make([]domain.Team, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.snapshot())
	}
	sortTeams(out)
	return out, nil
}

// ListTeamsByMember implements domain.TeamRepository.
func (s *Store) ListTeamsByMember(ctx context.Context, userID string) ([]domain.Team, error) {
	out := make([]domain.Team, 0)
	for _, e := range s.entries() {
		t := e.snapshot()
		if t.HasMember(userID) {
			out = append(out, t)
		}
	}
	sortTeams(out)
	return out, nil
}

// AddMember implements domain.TeamRepository. The capacity check and the
// roster write happen under the same per-team lock.
func (s *Store) AddMember(ctx context.Context, teamID string, m domain.Membership) (*domain.Team, error) {
	e := s.entry(teamID)
	if e == nil {
		return nil, domain.NotFound("team", teamID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.team.CheckJoin(m.UserID); err != nil {
		return nil, err
	}
	e.team.Members = append(e.team.Members, m)
	t := e.team
	t.Members = cloneMembers(t.Members)
	return &t, nil
}

// RemoveMember implements domain.TeamRepository.
func (s *Store) RemoveMember(ctx context.Context, teamID, userID string) (*domain.Team, error) {
	e := s.entry(teamID)
	if e == nil {
		return nil, domain.NotFound("team", teamID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.team.CheckLeave(userID); err != nil {
		return nil, err
	}
	e.team.Members = e.team.WithoutMember(userID)
	t := e.team
	t.Members = cloneMembers(t.Members)
	return &t, nil
}

func cloneMembers(in []domain.Membership) []domain.Membership {
	out := make([]domain.Membership, len(in))
	copy(out, in)
	return out
}

func sortTeams(teams []domain.Team) {
	sort.Slice(teams, func(i, j int) bool {
		if !teams[i].CreatedAt.Equal(teams[j].CreatedAt) {
			return teams[i].CreatedAt.Before(teams[j].CreatedAt)
		}
		return teams[i].ID < teams[j].ID
	})
}
