// Package events defines the event payloads published to Kafka.
package events

import "time"

// Event types as stored in the outbox and carried in the event_type header.
const (
	TypeActivityLogged    = "activity.logged"
	TypeActivityVoided    = "activity.voided"
	TypeTeamMemberJoined  = "team.member_joined"
	TypeTeamMemberLeft    = "team.member_left"
	TopicActivityEvents   = "activity_events"
	TopicTeamEvents       = "team_events"
	HeaderEventType       = "event_type"
	HeaderSchemaSubject   = "schema_subject"
	SubjectActivityEvents = TopicActivityEvents + "-value"
	SubjectTeamEvents     = TopicTeamEvents + "-value"
)

// ActivityLogged is emitted when a ledger entry is appended.
type ActivityLogged struct {
	ActivityID      string    `json:"activity_id"`
	UserID          string    `json:"user_id"`
	ActivityTypeID  string    `json:"activity_type_id"`
	DurationMinutes int       `json:"duration_minutes"`
	PointsPerMinute string    `json:"points_per_minute"`
	PointsEarned    int64     `json:"points_earned"`
	ActivityDate    time.Time `json:"activity_date"`
	LoggedAt        time.Time `json:"logged_at"`
}

// ActivityVoided is emitted when a ledger entry is voided.
type ActivityVoided struct {
	ActivityID   string    `json:"activity_id"`
	UserID       string    `json:"user_id"`
	PointsEarned int64     `json:"points_earned"`
	Reason       string    `json:"reason,omitempty"`
	VoidedBy     string    `json:"voided_by"`
	VoidedAt     time.Time `json:"voided_at"`
}

// TeamMembershipChanged is the payload of both roster events.
type TeamMembershipChanged struct {
	TeamID      string    `json:"team_id"`
	UserID      string    `json:"user_id"`
	MemberCount int       `json:"member_count"`
	MaxMembers  int       `json:"max_members"`
	OccurredAt  time.Time `json:"occurred_at"`
}
