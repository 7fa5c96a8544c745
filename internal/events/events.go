package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TaskOutcome classifies how a generation task resolved.
type TaskOutcome string

const (
	// OutcomeCompleted means the task produced a final artifact.
	OutcomeCompleted TaskOutcome = "completed"

	// OutcomeFailed means the task ended without an artifact and any
	// reserved quota was returned.
	OutcomeFailed TaskOutcome = "failed"
)

// TaskResolvedEvent announces that a generation task reached a terminal
// state. The orchestrator and the recovery sweeper both emit these;
// delivery-side components (user notification, audit) subscribe without the
// emitters knowing about them.
type TaskResolvedEvent struct {
	// ID uniquely identifies this event instance.
	ID uuid.UUID `json:"id"`

	// TaskID is the resolved generation task.
	TaskID uuid.UUID `json:"task_id"`

	// UserID is the task's owner.
	UserID uuid.UUID `json:"user_id"`

	// Outcome says whether the task completed or failed.
	Outcome TaskOutcome `json:"outcome"`

	// ArtifactRef is the final artifact URL. Set only when Outcome is
	// OutcomeCompleted.
	ArtifactRef string `json:"artifact_ref,omitempty"`

	// ErrorDetail carries the failure explanation. Set only when Outcome is
	// OutcomeFailed.
	ErrorDetail string `json:"error_detail,omitempty"`

	// QuotaConsumed reports whether the task kept its quota reservation.
	// Failed tasks have their reservation returned, so this is false for
	// them.
	QuotaConsumed bool `json:"quota_consumed"`

	// Recovered is true when the sweeper, not the pipeline itself, resolved
	// the task.
	Recovered bool `json:"recovered"`

	// ResolvedAt is when the terminal state was recorded.
	ResolvedAt time.Time `json:"resolved_at"`
}

// NewTaskCompletedEvent builds the event for a successfully finished task.
func NewTaskCompletedEvent(taskID, userID uuid.UUID, artifactRef string, quotaConsumed bool) *TaskResolvedEvent {
	return &TaskResolvedEvent{
		ID:            uuid.New(),
		TaskID:        taskID,
		UserID:        userID,
		Outcome:       OutcomeCompleted,
		ArtifactRef:   artifactRef,
		QuotaConsumed: quotaConsumed,
		ResolvedAt:    time.Now().UTC(),
	}
}

// NewTaskFailedEvent builds the event for a failed task. Set recovered when
// the sweeper resolved the task rather than the pipeline.
func NewTaskFailedEvent(taskID, userID uuid.UUID, errorDetail string, recovered bool) *TaskResolvedEvent {
	return &TaskResolvedEvent{
		ID:          uuid.New(),
		TaskID:      taskID,
		UserID:      userID,
		Outcome:     OutcomeFailed,
		ErrorDetail: errorDetail,
		Recovered:   recovered,
		ResolvedAt:  time.Now().UTC(),
	}
}

// Handler processes resolved-task events.
type Handler interface {
	// HandleTaskResolved processes one event. Returning an error does not
	// stop delivery to other handlers.
	HandleTaskResolved(ctx context.Context, event *TaskResolvedEvent) error
}

// Emitter publishes resolved-task events to registered handlers.
type Emitter interface {
	EmitTaskResolved(ctx context.Context, event *TaskResolvedEvent) error
}
