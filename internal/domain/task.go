package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a generation task
type TaskStatus string

// Possible task status values. Completed and failed are terminal: once a
// task reaches either, no further transition is allowed.
const (
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Pipeline step numbers. The pipeline runs strictly sequentially: the
// restyle step produces the intermediate artifact that the compose step
// consumes.
const (
	StepRestyle = 1
	StepCompose = 2
)

// Common validation errors for GenerationTask
var (
	ErrEmptyTaskID     = errors.New("task ID cannot be empty")
	ErrEmptyTaskUserID = errors.New("task user ID cannot be empty")
	ErrEmptyInputRef   = errors.New("task input reference cannot be empty")
	ErrInvalidTaskStep = errors.New("invalid task step")
	ErrInvalidStatus   = errors.New("invalid task status")
)

// GenerationTask is the durable record of one generation attempt. Every
// state transition is written to the store before the next external call,
// so a crashed invocation leaves enough behind for the recovery sweeper.
type GenerationTask struct {
	ID       uuid.UUID  `json:"id"`
	UserID   uuid.UUID  `json:"user_id"`
	Status   TaskStatus `json:"status"`
	Step     int        `json:"step"`
	JobRefs  [2]string  `json:"job_refs"` // one external job id per step, empty until submitted
	InputRef string     `json:"input_ref"`
	// IntermediateRef holds the restyled artifact produced by step 1.
	IntermediateRef string    `json:"intermediate_ref,omitempty"`
	OutputRef       string    `json:"output_ref,omitempty"`
	TemplateName    string    `json:"template_name,omitempty"`
	ErrorDetail     string    `json:"error_detail,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewGenerationTask creates a task in the processing state at step 1.
// Returns an error if validation fails.
func NewGenerationTask(userID uuid.UUID, inputRef string) (*GenerationTask, error) {
	task := &GenerationTask{
		ID:        uuid.New(),
		UserID:    userID,
		Status:    TaskStatusProcessing,
		Step:      StepRestyle,
		InputRef:  inputRef,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the GenerationTask has valid data.
func (t *GenerationTask) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.UserID == uuid.Nil {
		return ErrEmptyTaskUserID
	}

	if t.InputRef == "" {
		return ErrEmptyInputRef
	}

	if t.Step < StepRestyle || t.Step > StepCompose {
		return ErrInvalidTaskStep
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidStatus
	}

	return nil
}

// IsTerminal reports whether the task has reached a state from which no
// further transition is allowed.
func (t *GenerationTask) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

func isValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}
