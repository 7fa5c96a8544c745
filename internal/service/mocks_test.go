package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/revival-api/internal/config"
	"github.com/phrazzld/revival-api/internal/domain"
	"github.com/phrazzld/revival-api/internal/events"
	"github.com/phrazzld/revival-api/internal/generation"
	"github.com/phrazzld/revival-api/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSubscriptionStore is an in-memory SubscriptionStore keyed by user id.
type fakeSubscriptionStore struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*domain.Subscription

	createErr  error
	reserveErr error
	restoreErr error
	resetErr   error
}

var _ store.SubscriptionStore = (*fakeSubscriptionStore)(nil)

func newFakeSubscriptionStore() *fakeSubscriptionStore {
	return &fakeSubscriptionStore{subs: make(map[uuid.UUID]*domain.Subscription)}
}

func (f *fakeSubscriptionStore) put(sub *domain.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *sub
	f.subs[sub.UserID] = &copied
}

func (f *fakeSubscriptionStore) GetByUserID(_ context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[userID]
	if !ok {
		return nil, store.ErrSubscriptionNotFound
	}
	copied := *sub
	return &copied, nil
}

func (f *fakeSubscriptionStore) Create(_ context.Context, sub *domain.Subscription) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.put(sub)
	return nil
}

func (f *fakeSubscriptionStore) Reserve(_ context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	if f.reserveErr != nil {
		return nil, f.reserveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[userID]
	if !ok || (sub.Status != domain.SubscriptionStatusActive && sub.Status != domain.SubscriptionStatusCanceled) {
		return nil, store.ErrSubscriptionNotFound
	}
	sub.QuotaUsed++
	copied := *sub
	return &copied, nil
}

func (f *fakeSubscriptionStore) Restore(_ context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	if f.restoreErr != nil {
		return nil, f.restoreErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[userID]
	if !ok || (sub.Status != domain.SubscriptionStatusActive && sub.Status != domain.SubscriptionStatusCanceled) {
		return nil, store.ErrSubscriptionNotFound
	}
	if sub.QuotaUsed > 0 {
		sub.QuotaUsed--
	}
	copied := *sub
	return &copied, nil
}

func (f *fakeSubscriptionStore) ResetPeriod(
	_ context.Context,
	userID uuid.UUID,
	periodStart, periodEnd time.Time,
) (*domain.Subscription, error) {
	if f.resetErr != nil {
		return nil, f.resetErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[userID]
	if !ok {
		return nil, store.ErrSubscriptionNotFound
	}
	sub.PeriodStart = periodStart
	sub.PeriodEnd = periodEnd
	sub.QuotaUsed = 0
	copied := *sub
	return &copied, nil
}

func (f *fakeSubscriptionStore) quotaUsed(t *testing.T, userID uuid.UUID) int {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[userID]
	require.True(t, ok, "subscription must exist")
	return sub.QuotaUsed
}

// fakeTaskStore is an in-memory TaskStore that honors the guarded-update
// semantics: mutations of terminal rows are silent no-ops.
type fakeTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.GenerationTask

	createErr error
	failErr   error
	staleErr  error
}

var _ store.TaskStore = (*fakeTaskStore)(nil)

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: make(map[uuid.UUID]*domain.GenerationTask)}
}

func (f *fakeTaskStore) Create(_ context.Context, task *domain.GenerationTask) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.tasks {
		if existing.UserID == task.UserID && existing.Status == domain.TaskStatusProcessing {
			return store.ErrActiveTaskExists
		}
	}
	copied := *task
	f.tasks[task.ID] = &copied
	return nil
}

func (f *fakeTaskStore) GetByID(_ context.Context, id uuid.UUID) (*domain.GenerationTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	copied := *task
	return &copied, nil
}

func (f *fakeTaskStore) mutateProcessing(id uuid.UUID, fn func(*domain.GenerationTask)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok || task.Status != domain.TaskStatusProcessing {
		return nil
	}
	fn(task)
	task.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeTaskStore) Advance(_ context.Context, taskID uuid.UUID, step int, jobRef, templateName string) error {
	return f.mutateProcessing(taskID, func(task *domain.GenerationTask) {
		task.Step = step
		task.JobRefs[step-1] = jobRef
		if templateName != "" {
			task.TemplateName = templateName
		}
	})
}

func (f *fakeTaskStore) SaveIntermediate(_ context.Context, taskID uuid.UUID, intermediateRef string) error {
	return f.mutateProcessing(taskID, func(task *domain.GenerationTask) {
		task.IntermediateRef = intermediateRef
	})
}

func (f *fakeTaskStore) Complete(_ context.Context, taskID uuid.UUID, outputRef string) error {
	return f.mutateProcessing(taskID, func(task *domain.GenerationTask) {
		task.Status = domain.TaskStatusCompleted
		task.OutputRef = outputRef
	})
}

func (f *fakeTaskStore) Fail(_ context.Context, taskID uuid.UUID, errorDetail string) error {
	if f.failErr != nil {
		return f.failErr
	}
	return f.mutateProcessing(taskID, func(task *domain.GenerationTask) {
		task.Status = domain.TaskStatusFailed
		task.ErrorDetail = errorDetail
	})
}

func (f *fakeTaskStore) FindActiveForUser(_ context.Context, userID uuid.UUID) (*domain.GenerationTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, task := range f.tasks {
		if task.UserID == userID && task.Status == domain.TaskStatusProcessing {
			copied := *task
			return &copied, nil
		}
	}
	return nil, store.ErrTaskNotFound
}

func (f *fakeTaskStore) FindStale(_ context.Context, olderThan time.Duration) ([]*domain.GenerationTask, error) {
	if f.staleErr != nil {
		return nil, f.staleErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var stale []*domain.GenerationTask
	for _, task := range f.tasks {
		if task.Status == domain.TaskStatusProcessing && task.UpdatedAt.Before(cutoff) {
			copied := *task
			stale = append(stale, &copied)
		}
	}
	return stale, nil
}

func (f *fakeTaskStore) get(t *testing.T, id uuid.UUID) *domain.GenerationTask {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	require.True(t, ok, "task must exist")
	copied := *task
	return &copied
}

func (f *fakeTaskStore) seed(task *domain.GenerationTask) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *task
	f.tasks[task.ID] = &copied
}

func (f *fakeTaskStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

// fakeUserStore tracks interaction state in memory.
type fakeUserStore struct {
	mu        sync.Mutex
	states    map[uuid.UUID]domain.UserState
	externals map[string]uuid.UUID
	stuck     []uuid.UUID

	createErr   error
	setStateErr error
}

var _ store.UserStore = (*fakeUserStore)(nil)

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		states:    make(map[uuid.UUID]domain.UserState),
		externals: make(map[string]uuid.UUID),
	}
}

func (f *fakeUserStore) Create(_ context.Context, user *domain.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.externals[user.ExternalID]; exists {
		return store.ErrDuplicate
	}
	f.states[user.ID] = user.State
	f.externals[user.ExternalID] = user.ID
	return nil
}

func (f *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return &domain.User{ID: id, State: state}, nil
}

func (f *fakeUserStore) SetState(_ context.Context, userID uuid.UUID, state domain.UserState) error {
	if f.setStateErr != nil {
		return f.setStateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[userID] = state
	return nil
}

func (f *fakeUserStore) FindStuckProcessing(_ context.Context) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.stuck...), nil
}

func (f *fakeUserStore) state(userID uuid.UUID) domain.UserState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[userID]
}

// fakeTemplateStore serves one fixed template.
type fakeTemplateStore struct {
	template *domain.PosterTemplate
	err      error
}

var _ store.TemplateStore = (*fakeTemplateStore)(nil)

func (f *fakeTemplateStore) Create(_ context.Context, tmpl *domain.PosterTemplate) error {
	f.template = tmpl
	return nil
}

func (f *fakeTemplateStore) Random(_ context.Context) (*domain.PosterTemplate, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.template == nil {
		return nil, store.ErrTemplateNotFound
	}
	copied := *f.template
	return &copied, nil
}

// scriptedStep drives one Submit/AwaitResult round of the fake client.
type scriptedStep struct {
	jobID     string
	submitErr error
	result    string
	awaitErr  error
}

// fakeGenerationClient serves scripted submit/await outcomes in order.
type fakeGenerationClient struct {
	mu      sync.Mutex
	steps   []scriptedStep
	submits []generation.SubmitRequest
	awaits  int
}

var _ generation.Client = (*fakeGenerationClient)(nil)

func (f *fakeGenerationClient) Submit(_ context.Context, req generation.SubmitRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.submits)
	f.submits = append(f.submits, req)
	if idx >= len(f.steps) {
		return "", fmt.Errorf("unexpected submit call %d", idx)
	}
	step := f.steps[idx]
	if step.submitErr != nil {
		return "", step.submitErr
	}
	return step.jobID, nil
}

func (f *fakeGenerationClient) AwaitResult(_ context.Context, jobID string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.awaits
	f.awaits++
	if idx >= len(f.steps) {
		return "", fmt.Errorf("unexpected await call %d", idx)
	}
	step := f.steps[idx]
	if step.awaitErr != nil {
		return "", step.awaitErr
	}
	return step.result, nil
}

// fakeRehomer maps source URLs onto deterministic bucket URLs.
type fakeRehomer struct {
	mu    sync.Mutex
	calls []string
	err   error
}

var _ ArtifactRehomer = (*fakeRehomer)(nil)

func (f *fakeRehomer) Rehome(_ context.Context, sourceURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, sourceURL)
	return "https://cdn.test/rehomed/" + fmt.Sprintf("%d.png", len(f.calls)), nil
}

// fakeEmitter records every resolved-task event.
type fakeEmitter struct {
	mu     sync.Mutex
	events []*events.TaskResolvedEvent
	err    error
}

var _ events.Emitter = (*fakeEmitter)(nil)

func (f *fakeEmitter) EmitTaskResolved(_ context.Context, event *events.TaskResolvedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

func (f *fakeEmitter) all() []*events.TaskResolvedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*events.TaskResolvedEvent(nil), f.events...)
}

// activeSubscription seeds a standard plan subscription with the given cap.
func activeSubscription(t *testing.T, userID uuid.UUID, quotaTotal int) *domain.Subscription {
	t.Helper()
	sub, err := domain.NewSubscription(userID, domain.PlanKindStandard, quotaTotal, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	return sub
}

func defaultGenerationConfig() config.GenerationConfig {
	return config.GenerationConfig{
		APIKey:               "key",
		BaseURL:              "https://api.kie.ai",
		Model:                "google/nano-banana-edit",
		PollIntervalSeconds:  3,
		RestyleBudgetSeconds: 60,
		ComposeBudgetSeconds: 90,
		SubmitTimeoutSeconds: 30,
	}
}
