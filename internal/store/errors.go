package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	// This is a generic version of the entity-specific not found errors
	// (e.g., ErrSubscriptionNotFound, ErrTaskNotFound).
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrUpdateFailed is returned when an update operation fails, for example
	// because the entity does not exist or the update violates constraints.
	ErrUpdateFailed = errors.New("update failed")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// Entity-specific "not found" errors

	// ErrSubscriptionNotFound indicates that the user has no subscription row.
	ErrSubscriptionNotFound = fmt.Errorf("%w: subscription", ErrNotFound)

	// ErrTaskNotFound indicates that the requested generation task does not exist.
	ErrTaskNotFound = fmt.Errorf("%w: generation task", ErrNotFound)

	// ErrUserNotFound indicates that the requested user does not exist in the store.
	ErrUserNotFound = fmt.Errorf("%w: user", ErrNotFound)

	// ErrTemplateNotFound indicates that no enabled poster template is available.
	ErrTemplateNotFound = fmt.Errorf("%w: poster template", ErrNotFound)

	// Entity-specific "duplicate" errors

	// ErrActiveTaskExists indicates the partial unique index on non-terminal
	// tasks rejected a second in-flight task for the same user. This is the
	// hard backstop behind the orchestrator's best-effort pre-check.
	ErrActiveTaskExists = fmt.Errorf("%w: active task for user", ErrDuplicate)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is any kind of "duplicate" error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}
