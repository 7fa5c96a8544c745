package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/revival-api/internal/config"
	"github.com/phrazzld/revival-api/internal/domain"
	"github.com/phrazzld/revival-api/internal/events"
	"github.com/phrazzld/revival-api/internal/generation"
	"github.com/phrazzld/revival-api/internal/store"
)

// Step prompts for the two-step poster pipeline. The restyle step turns the
// user photograph into a 1970s Showa-era high school scene; the compose
// step lays the restyled photo into a randomly chosen magazine-cover
// template. Both prompts pin the subjects' faces and head count so the
// model cannot invent or drop people.
const (
	restylePrompt = `Restyle the people in the photo as classic 1970s Showa-era high school students.

Replace the background with an iconic Showa-era school campus scene.

Replace the clothing with iconic Showa-era high school uniforms.

Add the look of a 1970s printed photograph: aged paper texture, faded colors, vintage photo filter.

Important: keep the number of people exactly as in the original photo. Do not add or remove anyone.

Do not change anyone's facial features or expressions.`

	composePrompt = `Design a magazine cover for the person in [image1] using the style of [image2], adding an aged-photo and old-book filter effect.

The final output must use the size ratio and format of the [image2] template.

Do not change anyone's facial features or expressions.`

	// Output geometry per step. The restyle keeps the input's proportions;
	// the compose step produces poster-shaped output.
	restyleImageSize = "auto"
	composeImageSize = "3:4"
)

// ArtifactRehomer copies a remote artifact into durable storage and returns
// its stable URL. Result URLs from the generation service expire, so every
// artifact is re-homed before its URL is written to a task row.
type ArtifactRehomer interface {
	Rehome(ctx context.Context, sourceURL string) (string, error)
}

// GenerationRequest asks for one poster generation.
type GenerationRequest struct {
	UserID   uuid.UUID
	InputRef string
}

// Orchestrator runs the generation pipeline end to end within a single
// invocation: quota reservation, task row creation, the two external job
// steps, artifact re-homing, and terminal resolution. Every state
// transition is persisted before the next external call so a crash at any
// point leaves a row the recovery sweeper can resolve.
type Orchestrator struct {
	tasks         store.TaskStore
	users         store.UserStore
	templates     store.TemplateStore
	ledger        *QuotaLedger
	client        generation.Client
	artifacts     ArtifactRehomer
	emitter       events.Emitter
	restyleBudget time.Duration
	composeBudget time.Duration
	logger        *slog.Logger
}

// NewOrchestrator creates an Orchestrator. All collaborators are required.
func NewOrchestrator(
	tasks store.TaskStore,
	users store.UserStore,
	templates store.TemplateStore,
	ledger *QuotaLedger,
	client generation.Client,
	artifacts ArtifactRehomer,
	emitter events.Emitter,
	cfg config.GenerationConfig,
	logger *slog.Logger,
) (*Orchestrator, error) {
	switch {
	case tasks == nil:
		return nil, fmt.Errorf("task store cannot be nil")
	case users == nil:
		return nil, fmt.Errorf("user store cannot be nil")
	case templates == nil:
		return nil, fmt.Errorf("template store cannot be nil")
	case ledger == nil:
		return nil, fmt.Errorf("quota ledger cannot be nil")
	case client == nil:
		return nil, fmt.Errorf("generation client cannot be nil")
	case artifacts == nil:
		return nil, fmt.Errorf("artifact rehomer cannot be nil")
	case emitter == nil:
		return nil, fmt.Errorf("event emitter cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	restyleBudget := time.Duration(cfg.RestyleBudgetSeconds) * time.Second
	if restyleBudget <= 0 {
		restyleBudget = 60 * time.Second
	}
	composeBudget := time.Duration(cfg.ComposeBudgetSeconds) * time.Second
	if composeBudget <= 0 {
		composeBudget = 90 * time.Second
	}

	return &Orchestrator{
		tasks:         tasks,
		users:         users,
		templates:     templates,
		ledger:        ledger,
		client:        client,
		artifacts:     artifacts,
		emitter:       emitter,
		restyleBudget: restyleBudget,
		composeBudget: composeBudget,
		logger:        logger.With(slog.String("component", "orchestrator")),
	}, nil
}

// Generate runs one full generation for the user. On success the returned
// task is completed and carries the final artifact URL; the reserved quota
// unit stays spent. On any pipeline failure the task is marked failed, the
// quota unit is returned, a failure notification is emitted, and the
// pipeline error is returned alongside the failed task.
//
// Returns ErrConcurrentTask if the user already has a task in flight and
// ErrQuotaExhausted if no quota is available; neither leaves a task row
// behind.
func (o *Orchestrator) Generate(ctx context.Context, req GenerationRequest) (*domain.GenerationTask, error) {
	log := o.logger.With(slog.String("user_id", req.UserID.String()))

	// Cheap pre-check before spending a quota unit. The partial unique
	// index on task creation remains the authoritative guard.
	if _, err := o.tasks.FindActiveForUser(ctx, req.UserID); err == nil {
		return nil, ErrConcurrentTask
	} else if !errors.Is(err, store.ErrTaskNotFound) {
		return nil, fmt.Errorf("checking for active task: %w", err)
	}

	if _, err := o.ledger.Check(ctx, req.UserID); err != nil {
		return nil, err
	}
	if err := o.ledger.Reserve(ctx, req.UserID); err != nil {
		return nil, err
	}

	task, err := domain.NewGenerationTask(req.UserID, req.InputRef)
	if err != nil {
		o.returnQuota(ctx, req.UserID, log)
		return nil, fmt.Errorf("building task: %w", err)
	}

	if err := o.tasks.Create(ctx, task); err != nil {
		o.returnQuota(ctx, req.UserID, log)
		if errors.Is(err, store.ErrActiveTaskExists) {
			return nil, ErrConcurrentTask
		}
		return nil, fmt.Errorf("creating task: %w", err)
	}

	log = log.With(slog.String("task_id", task.ID.String()))
	log.Info("generation task created")

	if err := o.users.SetState(ctx, req.UserID, domain.UserStateProcessing); err != nil {
		// The stuck-user sweep compensates if this write or the later
		// reset is lost.
		log.Warn("failed to set user state to processing", slog.String("error", err.Error()))
	}

	finalRef, pipelineErr := o.runPipeline(ctx, task, log)
	if pipelineErr != nil {
		o.resolveFailed(ctx, task, pipelineErr.Error(), log)
		return task, pipelineErr
	}

	task.Status = domain.TaskStatusCompleted
	task.OutputRef = finalRef
	log.Info("generation completed", slog.String("output_ref", finalRef))

	o.notify(ctx, events.NewTaskCompletedEvent(task.ID, task.UserID, finalRef, true), log)
	o.resetUserState(ctx, task.UserID, log)

	return task, nil
}

// runPipeline executes the two job steps. Each external job reference is
// persisted before its polling starts, so a crash mid-poll leaves the job
// id on the row.
func (o *Orchestrator) runPipeline(
	ctx context.Context,
	task *domain.GenerationTask,
	log *slog.Logger,
) (string, error) {
	// Step 1: restyle the input photograph.
	restyleJob, err := o.client.Submit(ctx, generation.SubmitRequest{
		Prompt:    restylePrompt,
		ImageRefs: []string{task.InputRef},
		ImageSize: restyleImageSize,
	})
	if err != nil {
		return "", fmt.Errorf("submitting restyle job: %w", err)
	}
	if err := o.tasks.Advance(ctx, task.ID, domain.StepRestyle, restyleJob, ""); err != nil {
		return "", fmt.Errorf("recording restyle job: %w", err)
	}
	task.JobRefs[0] = restyleJob
	log.Info("restyle job submitted", slog.String("job_id", restyleJob))

	restyleResult, err := o.client.AwaitResult(ctx, restyleJob, o.restyleBudget)
	if err != nil {
		return "", fmt.Errorf("awaiting restyle result: %w", err)
	}

	intermediateRef, err := o.artifacts.Rehome(ctx, restyleResult)
	if err != nil {
		return "", fmt.Errorf("storing restyled artifact: %w", err)
	}
	if err := o.tasks.SaveIntermediate(ctx, task.ID, intermediateRef); err != nil {
		return "", fmt.Errorf("recording restyled artifact: %w", err)
	}
	task.IntermediateRef = intermediateRef
	log.Info("restyle step finished", slog.String("intermediate_ref", intermediateRef))

	// Step 2: compose the poster with a randomly chosen template.
	template, err := o.templates.Random(ctx)
	if err != nil {
		if errors.Is(err, store.ErrTemplateNotFound) {
			return "", ErrNoTemplates
		}
		return "", fmt.Errorf("choosing poster template: %w", err)
	}

	composeJob, err := o.client.Submit(ctx, generation.SubmitRequest{
		Prompt:    composePrompt,
		ImageRefs: []string{intermediateRef, template.URL},
		ImageSize: composeImageSize,
	})
	if err != nil {
		return "", fmt.Errorf("submitting compose job: %w", err)
	}
	if err := o.tasks.Advance(ctx, task.ID, domain.StepCompose, composeJob, template.Name); err != nil {
		return "", fmt.Errorf("recording compose job: %w", err)
	}
	task.Step = domain.StepCompose
	task.JobRefs[1] = composeJob
	task.TemplateName = template.Name
	log.Info("compose job submitted",
		slog.String("job_id", composeJob),
		slog.String("template", template.Name))

	composeResult, err := o.client.AwaitResult(ctx, composeJob, o.composeBudget)
	if err != nil {
		return "", fmt.Errorf("awaiting compose result: %w", err)
	}

	finalRef, err := o.artifacts.Rehome(ctx, composeResult)
	if err != nil {
		return "", fmt.Errorf("storing final artifact: %w", err)
	}
	if err := o.tasks.Complete(ctx, task.ID, finalRef); err != nil {
		return "", fmt.Errorf("completing task: %w", err)
	}

	return finalRef, nil
}

// resolveFailed funnels every pipeline failure through a single terminal
// path: fail the row, return the quota unit, notify, reset user state. Each
// step is best-effort so a broken notification channel cannot strand the
// quota unit.
func (o *Orchestrator) resolveFailed(
	ctx context.Context,
	task *domain.GenerationTask,
	detail string,
	log *slog.Logger,
) {
	if err := o.tasks.Fail(ctx, task.ID, detail); err != nil {
		log.Error("failed to mark task failed", slog.String("error", err.Error()))
	}
	task.Status = domain.TaskStatusFailed
	task.ErrorDetail = detail

	o.returnQuota(ctx, task.UserID, log)
	o.notify(ctx, events.NewTaskFailedEvent(task.ID, task.UserID, detail, false), log)
	o.resetUserState(ctx, task.UserID, log)

	log.Warn("generation failed", slog.String("detail", detail))
}

func (o *Orchestrator) returnQuota(ctx context.Context, userID uuid.UUID, log *slog.Logger) {
	if err := o.ledger.Restore(ctx, userID); err != nil {
		log.Error("failed to restore quota", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) notify(ctx context.Context, event *events.TaskResolvedEvent, log *slog.Logger) {
	if err := o.emitter.EmitTaskResolved(ctx, event); err != nil {
		log.Error("failed to emit task resolution", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) resetUserState(ctx context.Context, userID uuid.UUID, log *slog.Logger) {
	if err := o.users.SetState(ctx, userID, domain.UserStateIdle); err != nil {
		log.Warn("failed to reset user state", slog.String("error", err.Error()))
	}
}
