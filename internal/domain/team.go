package domain

import (
	"sort"
	"time"
)

// DefaultMaxMembers is the capacity used when a team is created without one.
const DefaultMaxMembers = 20

// MemberRole is a member's role within a team roster.
type MemberRole string

const (
	RoleMember  MemberRole = "member"
	RoleCaptain MemberRole = "captain"
	RoleAdmin   MemberRole = "admin"
)

// Membership is one roster line.
type Membership struct {
	UserID   string     `json:"user_id"`
	Role     MemberRole `json:"role"`
	JoinedAt time.Time  `json:"joined_date"`
}

// Team is a capacity-bounded roster. Points are never stored on it.
type Team struct {
	ID          string
	Name        string
	Description string
	MaxMembers  int
	CreatedBy   string
	CreatedAt   time.Time
	Members     []Membership
}

// MemberCount returns the current roster size.
func (t Team) MemberCount() int { return len(t.Members) }

// HasMember reports whether userID is on the roster.
func (t Team) HasMember(userID string) bool {
	for _, m := range t.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// MemberIDs returns the roster's user ids in ascending order.
func (t Team) MemberIDs() []string {
	ids := make([]string, 0, len(t.Members))
	for _, m := range t.Members {
		ids = append(ids, m.UserID)
	}
	sort.Strings(ids)
	return ids
}

// CheckJoin validates a join against the roster as it is at commit time.
// Stores call it while holding the team's lock.
func (t Team) CheckJoin(userID string) error {
	if t.HasMember(userID) {
		return ErrAlreadyMember
	}
	if len(t.Members) >= t.MaxMembers {
		return ErrTeamFull
	}
	return nil
}

// CheckLeave validates a leave against the roster as it is at commit time.
func (t Team) CheckLeave(userID string) error {
	if !t.HasMember(userID) {
		return ErrNotMember
	}
	return nil
}

// WithoutMember returns the roster minus userID.
func (t Team) WithoutMember(userID string) []Membership {
	out := make([]Membership, 0, len(t.Members))
	for _, m := range t.Members {
		if m.UserID != userID {
			out = append(out, m)
		}
	}
	return out
}
