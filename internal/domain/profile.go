package domain

import "time"

// FitnessLevel is the self-reported experience band of a user.
type FitnessLevel string

const (
	FitnessBeginner     FitnessLevel = "beginner"
	FitnessIntermediate FitnessLevel = "intermediate"
	FitnessAdvanced     FitnessLevel = "advanced"
)

// Valid reports whether l is one of the known levels.
func (l FitnessLevel) Valid() bool {
	switch l {
	case FitnessBeginner, FitnessIntermediate, FitnessAdvanced:
		return true
	}
	return false
}

// UserProfile carries a denormalised points total. Points only move together
// with a ledger write; reconciliation checks them against the ledger.
type UserProfile struct {
	UserID       string       `json:"user_id"`
	Points       int64        `json:"points"`
	FitnessLevel FitnessLevel `json:"fitness_level"`
	Bio          string       `json:"bio"`
	FitnessGoal  string       `json:"fitness_goal"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// NewProfile returns the profile of a user that has never been seen.
func NewProfile(userID string) UserProfile {
	return UserProfile{UserID: userID, FitnessLevel: FitnessBeginner}
}
