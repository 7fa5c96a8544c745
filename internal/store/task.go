package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/revival-api/internal/domain"
)

// TaskStore defines persistence for generation task lifecycle records.
//
// All mutations are single-row, single-statement updates guarded by a
// status = 'processing' predicate. A retried call that arrives after the
// row is already terminal matches zero rows and is treated as a logged
// no-op, which makes Advance/Complete/Fail idempotent under at-least-once
// invocation.
type TaskStore interface {
	// Create inserts a new task row in status processing at step 1.
	// Returns ErrActiveTaskExists if the user already has a non-terminal
	// task (partial unique index backstop).
	Create(ctx context.Context, task *domain.GenerationTask) error

	// GetByID returns the task with the given id.
	// Returns ErrTaskNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error)

	// Advance moves a processing task to the given step and records the
	// external job reference for that step, before any polling starts, so a
	// crash mid-poll leaves enough information for the recovery sweeper.
	// templateName is recorded for the compose step and empty otherwise.
	Advance(ctx context.Context, taskID uuid.UUID, step int, jobRef, templateName string) error

	// SaveIntermediate records the artifact produced by the restyle step.
	SaveIntermediate(ctx context.Context, taskID uuid.UUID, intermediateRef string) error

	// Complete transitions a processing task to completed with its output
	// artifact.
	Complete(ctx context.Context, taskID uuid.UUID, outputRef string) error

	// Fail transitions a processing task to failed with a structured error
	// detail.
	Fail(ctx context.Context, taskID uuid.UUID, errorDetail string) error

	// FindActiveForUser returns the user's non-terminal task, used to
	// enforce one in-flight generation per user.
	// Returns ErrTaskNotFound if the user has none.
	FindActiveForUser(ctx context.Context, userID uuid.UUID) (*domain.GenerationTask, error)

	// FindStale returns all processing tasks whose updated_at predates
	// now - olderThan. Used only by the recovery sweeper.
	FindStale(ctx context.Context, olderThan time.Duration) ([]*domain.GenerationTask, error)
}
