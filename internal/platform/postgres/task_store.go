package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/revival-api/internal/domain"
	"github.com/phrazzld/revival-api/internal/platform/logger"
	"github.com/phrazzld/revival-api/internal/store"
)

// PostgresTaskStore implements the store.TaskStore interface using
// PostgreSQL. Every mutation is guarded by status = 'processing', so a
// retried or late call that hits an already-terminal row matches zero rows
// and degrades to a logged no-op.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgresTaskStore.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

const taskColumns = `id, user_id, status, step, job_ref_step1, job_ref_step2,
	input_ref, intermediate_ref, output_ref, template_name, error_detail,
	created_at, updated_at`

// Create implements store.TaskStore.Create
// Returns store.ErrActiveTaskExists when the partial unique index rejects a
// second non-terminal task for the same user.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.GenerationTask) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return err
	}

	query := `
		INSERT INTO generation_tasks (id, user_id, status, step, job_ref_step1, job_ref_step2,
			input_ref, intermediate_ref, output_ref, template_name, error_detail,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''),
			$7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''),
			$12, $13)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		task.ID,
		task.UserID,
		task.Status,
		task.Step,
		task.JobRefs[0],
		task.JobRefs[1],
		task.InputRef,
		task.IntermediateRef,
		task.OutputRef,
		task.TemplateName,
		task.ErrorDetail,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		mapped := MapError(err)
		if errors.Is(mapped, store.ErrActiveTaskExists) {
			log.Warn("user already has a task in flight",
				slog.String("user_id", task.UserID.String()))
		} else {
			log.Error("failed to create task",
				slog.String("error", err.Error()),
				slog.String("task_id", task.ID.String()),
				slog.String("user_id", task.UserID.String()))
		}
		return mapped
	}

	log.Info("task created",
		slog.String("task_id", task.ID.String()),
		slog.String("user_id", task.UserID.String()))
	return nil
}

// GetByID implements store.TaskStore.GetByID
// Returns store.ErrTaskNotFound if the task does not exist.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + taskColumns + `
		FROM generation_tasks
		WHERE id = $1
	`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get task by ID",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, MapError(err)
	}

	return task, nil
}

// Advance implements store.TaskStore.Advance
// Persists the step number and the step's external job reference in one
// guarded statement. step only increases because the pipeline is strictly
// sequential and terminal rows match zero rows.
func (s *PostgresTaskStore) Advance(
	ctx context.Context,
	taskID uuid.UUID,
	step int,
	jobRef, templateName string,
) error {
	query := `
		UPDATE generation_tasks
		SET step = $1,
			job_ref_step1 = CASE WHEN $1 = 1 THEN NULLIF($2, '') ELSE job_ref_step1 END,
			job_ref_step2 = CASE WHEN $1 = 2 THEN NULLIF($2, '') ELSE job_ref_step2 END,
			template_name = COALESCE(NULLIF($3, ''), template_name),
			updated_at = $4
		WHERE id = $5 AND status = 'processing'
	`
	return s.guardedUpdate(ctx, "advance", taskID,
		query, step, jobRef, templateName, time.Now().UTC(), taskID)
}

// SaveIntermediate implements store.TaskStore.SaveIntermediate
func (s *PostgresTaskStore) SaveIntermediate(
	ctx context.Context,
	taskID uuid.UUID,
	intermediateRef string,
) error {
	query := `
		UPDATE generation_tasks
		SET intermediate_ref = $1, updated_at = $2
		WHERE id = $3 AND status = 'processing'
	`
	return s.guardedUpdate(ctx, "save_intermediate", taskID,
		query, intermediateRef, time.Now().UTC(), taskID)
}

// Complete implements store.TaskStore.Complete
func (s *PostgresTaskStore) Complete(ctx context.Context, taskID uuid.UUID, outputRef string) error {
	query := `
		UPDATE generation_tasks
		SET status = 'completed', output_ref = $1, updated_at = $2
		WHERE id = $3 AND status = 'processing'
	`
	return s.guardedUpdate(ctx, "complete", taskID,
		query, outputRef, time.Now().UTC(), taskID)
}

// Fail implements store.TaskStore.Fail
func (s *PostgresTaskStore) Fail(ctx context.Context, taskID uuid.UUID, errorDetail string) error {
	query := `
		UPDATE generation_tasks
		SET status = 'failed', error_detail = $1, updated_at = $2
		WHERE id = $3 AND status = 'processing'
	`
	return s.guardedUpdate(ctx, "fail", taskID,
		query, errorDetail, time.Now().UTC(), taskID)
}

// guardedUpdate executes a status-guarded mutation. Zero rows affected
// means the task is already terminal (or missing) and the call is treated
// as a no-op, preserving terminal-row immutability under at-least-once
// invocation.
func (s *PostgresTaskStore) guardedUpdate(
	ctx context.Context,
	op string,
	taskID uuid.UUID,
	query string,
	args ...any,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("task mutation failed",
			slog.String("operation", op),
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()))
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Error("failed to get rows affected",
			slog.String("operation", op),
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()))
		return MapError(err)
	}

	if rowsAffected == 0 {
		log.Warn("task mutation matched no processing row, treating as no-op",
			slog.String("operation", op),
			slog.String("task_id", taskID.String()))
		return nil
	}

	log.Debug("task mutated",
		slog.String("operation", op),
		slog.String("task_id", taskID.String()))
	return nil
}

// FindActiveForUser implements store.TaskStore.FindActiveForUser
// Returns store.ErrTaskNotFound if the user has no task in flight.
func (s *PostgresTaskStore) FindActiveForUser(
	ctx context.Context,
	userID uuid.UUID,
) (*domain.GenerationTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + taskColumns + `
		FROM generation_tasks
		WHERE user_id = $1 AND status = 'processing'
		ORDER BY created_at DESC
		LIMIT 1
	`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to find active task",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return nil, MapError(err)
	}

	return task, nil
}

// FindStale implements store.TaskStore.FindStale
func (s *PostgresTaskStore) FindStale(
	ctx context.Context,
	olderThan time.Duration,
) ([]*domain.GenerationTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + taskColumns + `
		FROM generation_tasks
		WHERE status = 'processing' AND updated_at < $1
		ORDER BY created_at ASC
	`
	cutoff := time.Now().UTC().Add(-olderThan)

	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		log.Error("failed to query stale tasks",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.GenerationTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			log.Error("failed to scan stale task row",
				slog.String("error", err.Error()))
			return nil, MapError(err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		log.Error("error iterating stale task rows",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	return tasks, nil
}

func scanTask(row rowScanner) (*domain.GenerationTask, error) {
	var task domain.GenerationTask
	var status string
	var jobRef1, jobRef2, intermediateRef, outputRef, templateName, errorDetail sql.NullString

	err := row.Scan(
		&task.ID,
		&task.UserID,
		&status,
		&task.Step,
		&jobRef1,
		&jobRef2,
		&task.InputRef,
		&intermediateRef,
		&outputRef,
		&templateName,
		&errorDetail,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Status = domain.TaskStatus(status)
	task.JobRefs[0] = jobRef1.String
	task.JobRefs[1] = jobRef2.String
	task.IntermediateRef = intermediateRef.String
	task.OutputRef = outputRef.String
	task.TemplateName = templateName.String
	task.ErrorDetail = errorDetail.String
	return &task, nil
}
