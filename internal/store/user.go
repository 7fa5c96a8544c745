package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/revival-api/internal/domain"
)

// UserStore defines persistence for the minimal user records the
// orchestrator tracks: identity plus the user-facing interaction state.
type UserStore interface {
	// Create saves a new user.
	Create(ctx context.Context, user *domain.User) error

	// GetByID returns the user with the given id.
	// Returns ErrUserNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// SetState updates the user's interaction state.
	SetState(ctx context.Context, userID uuid.UUID, state domain.UserState) error

	// FindStuckProcessing returns ids of users whose state still says
	// processing although they have no non-terminal task. This is the
	// symptom of a notify/reset step that failed in an earlier run; the
	// sweeper force-resets these.
	FindStuckProcessing(ctx context.Context) ([]uuid.UUID, error)
}
