package domain

import (
	"errors"
	"fmt"
)

// Validation codes carried by ValidationError.
const (
	CodeInvalidActivityType = "invalid_activity_type"
	CodeInvalidDuration     = "invalid_duration"
	CodeInvalidDistance     = "invalid_distance"
	CodeInvalidCalories     = "invalid_calories"
	CodeFutureActivityDate  = "future_activity_date"
	CodeInvalidCapacity     = "invalid_capacity"
	CodeInvalidName         = "invalid_name"
	CodeInvalidRate         = "invalid_rate"
	CodeInvalidID           = "invalid_id"
	CodeInvalidProfile      = "invalid_profile"
)

// ValidationError reports bad input. Field names the offending request field.
type ValidationError struct {
	Field   string
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, code, message string) *ValidationError {
	return &ValidationError{Field: field, Code: code, Message: message}
}

// ConflictReason is the sub-reason of a ConflictError.
type ConflictReason string

const (
	ConflictTeamFull               ConflictReason = "team_full"
	ConflictAlreadyMember          ConflictReason = "already_member"
	ConflictNotMember              ConflictReason = "not_member"
	ConflictTeamNameTaken          ConflictReason = "team_name_taken"
	ConflictAlreadyVoided          ConflictReason = "already_voided"
	ConflictActivityTypeExists     ConflictReason = "activity_type_exists"
	ConflictActivityTypeReferenced ConflictReason = "activity_type_referenced"
)

var conflictMessages = map[ConflictReason]string{
	ConflictTeamFull:               "team is full",
	ConflictAlreadyMember:          "already a member of this team",
	ConflictNotMember:              "not a member of this team",
	ConflictTeamNameTaken:          "team name already taken",
	ConflictAlreadyVoided:          "activity already voided",
	ConflictActivityTypeExists:     "activity type already exists",
	ConflictActivityTypeReferenced: "activity type is referenced by logged activities",
}

// ConflictError reports a request that is valid but clashes with current state.
type ConflictError struct {
	Reason ConflictReason
}

func (e *ConflictError) Error() string {
	if msg, ok := conflictMessages[e.Reason]; ok {
		return msg
	}
	return string(e.Reason)
}

// Is matches another ConflictError with the same reason, so the sentinels
// below work with errors.Is.
func (e *ConflictError) Is(target error) bool {
	var other *ConflictError
	if !errors.As(target, &other) {
		return false
	}
	return other.Reason == e.Reason
}

// Conflict builds a ConflictError.
func Conflict(reason ConflictReason) *ConflictError {
	return &ConflictError{Reason: reason}
}

var (
	ErrTeamFull               = Conflict(ConflictTeamFull)
	ErrAlreadyMember          = Conflict(ConflictAlreadyMember)
	ErrNotMember              = Conflict(ConflictNotMember)
	ErrTeamNameTaken          = Conflict(ConflictTeamNameTaken)
	ErrAlreadyVoided          = Conflict(ConflictAlreadyVoided)
	ErrActivityTypeExists     = Conflict(ConflictActivityTypeExists)
	ErrActivityTypeReferenced = Conflict(ConflictActivityTypeReferenced)
)

// NotFoundError reports an unknown team, activity, activity type or user.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// NotFound builds a NotFoundError.
func NotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// IntegrityFault reports a denormalised profile total that disagrees with the ledger.
type IntegrityFault struct {
	UserID       string `json:"user_id"`
	StoredPoints int64  `json:"stored_points"`
	LedgerPoints int64  `json:"ledger_points"`
}

func (e *IntegrityFault) Error() string {
	return fmt.Sprintf("integrity fault: user %s profile points %d, ledger sum %d", e.UserID, e.StoredPoints, e.LedgerPoints)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
