package domain

import "time"

// ActivityType is a catalog entry converting minutes of exercise into points.
type ActivityType struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	PointsPerMinute Rate      `json:"points_per_minute"`
	Icon            string    `json:"icon,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ActivityStatus tags a ledger entry as counted or voided.
type ActivityStatus string

const (
	ActivityStatusNormal ActivityStatus = "normal"
	ActivityStatusVoided ActivityStatus = "voided"
)

// Void is the append-only record that cancels a ledger entry.
type Void struct {
	ActivityID string
	Reason     string
	VoidedBy   string
	VoidedAt   time.Time
}

// Activity is a ledger entry. It is never modified after Append; a Void is
// stored alongside it instead.
type Activity struct {
	ID              string
	UserID          string
	ActivityTypeID  string
	ActivityType    ActivityType
	DurationMinutes int
	Distance        *float64
	CaloriesBurned  *int
	Notes           string
	ActivityDate    time.Time
	LoggedAt        time.Time
	PointsPerMinute Rate
	PointsEarned    int64
	Void            *Void
}

// Status derives the tagged variant from the presence of a void record.
func (a Activity) Status() ActivityStatus {
	if a.Void != nil {
		return ActivityStatusVoided
	}
	return ActivityStatusNormal
}

// Counted reports whether the entry contributes to totals.
func (a Activity) Counted() bool { return a.Void == nil }

// ActivityQuery selects a page of a user's ledger, newest first.
type ActivityQuery struct {
	UserID string
	Since  *time.Time
	Cursor *Cursor
	Limit  int
}

// Cursor models the pagination token; it names the last entry of a page.
type Cursor struct {
	ActivityDate time.Time
	LoggedAt     time.Time
	ID           string
}

// ActivityStats summarises a user's non-voided ledger entries.
type ActivityStats struct {
	TotalActivities int     `json:"total_activities"`
	TotalDuration   int64   `json:"total_duration"`
	TotalDistance   float64 `json:"total_distance"`
	TotalPoints     int64   `json:"total_points"`
	TotalCalories   int64   `json:"total_calories"`
}

// UserTotal is one user's aggregate over non-voided ledger entries.
type UserTotal struct {
	UserID          string
	Points          int64
	ActivitiesCount int
}

// PointsCheck pairs a user's stored profile points with the sum of their
// counted ledger entries, both read from one snapshot.
type PointsCheck struct {
	UserID       string
	StoredPoints int64
	LedgerPoints int64
}

// OlderThan reports whether a comes strictly after the cursor position in
// newest-first order.
func OlderThan(a Activity, c Cursor) bool {
	if !a.ActivityDate.Equal(c.ActivityDate) {
		return a.ActivityDate.Before(c.ActivityDate)
	}
	if !a.LoggedAt.Equal(c.LoggedAt) {
		return a.LoggedAt.Before(c.LoggedAt)
	}
	return a.ID < c.ID
}

// NewestFirst orders two ledger entries for display.
func NewestFirst(a, b Activity) bool {
	return OlderThan(b, CursorFor(a))
}

// CursorFor returns the cursor positioned at a.
func CursorFor(a Activity) Cursor {
	return Cursor{ActivityDate: a.ActivityDate, LoggedAt: a.LoggedAt, ID: a.ID}
}
