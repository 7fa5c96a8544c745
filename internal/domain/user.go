package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// UserState is the user-facing interaction state shown by the messaging
// adapter. It lives in a different row than the task, so resolving a task
// and resetting the state are not transactional; the sweeper compensates
// for a missed reset.
type UserState string

// Possible user state values
const (
	UserStateIdle       UserState = "idle"
	UserStateProcessing UserState = "processing"
)

// Common validation errors for User
var (
	ErrEmptyUserID      = errors.New("user ID cannot be empty")
	ErrEmptyExternalID  = errors.New("user external ID cannot be empty")
	ErrInvalidUserState = errors.New("invalid user state")
)

// User is the minimal owner record the orchestrator needs: an identity and
// the user-facing state. Profile data belongs to the messaging adapter.
type User struct {
	ID         uuid.UUID `json:"id"`
	ExternalID string    `json:"external_id"`
	State      UserState `json:"state"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewUser creates an idle user owning the given messaging-platform
// identity. Returns an error if validation fails.
func NewUser(externalID string) (*User, error) {
	user := &User{
		ID:         uuid.New(),
		ExternalID: externalID,
		State:      UserStateIdle,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}

	if err := user.Validate(); err != nil {
		return nil, err
	}

	return user, nil
}

// Validate checks if the User has valid data.
func (u *User) Validate() error {
	if u.ID == uuid.Nil {
		return ErrEmptyUserID
	}

	if u.ExternalID == "" {
		return ErrEmptyExternalID
	}

	if u.State != UserStateIdle && u.State != UserStateProcessing {
		return ErrInvalidUserState
	}

	return nil
}
