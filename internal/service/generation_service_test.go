package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/revival-api/internal/domain"
	"github.com/phrazzld/revival-api/internal/events"
	"github.com/phrazzld/revival-api/internal/generation"
	"github.com/phrazzld/revival-api/internal/store"
)

type orchestratorFixture struct {
	tasks     *fakeTaskStore
	users     *fakeUserStore
	subs      *fakeSubscriptionStore
	templates *fakeTemplateStore
	client    *fakeGenerationClient
	rehomer   *fakeRehomer
	emitter   *fakeEmitter
	orch      *Orchestrator
	userID    uuid.UUID
}

func newOrchestratorFixture(t *testing.T, steps []scriptedStep) *orchestratorFixture {
	t.Helper()

	f := &orchestratorFixture{
		tasks:  newFakeTaskStore(),
		users:  newFakeUserStore(),
		subs:   newFakeSubscriptionStore(),
		templates: &fakeTemplateStore{template: &domain.PosterTemplate{
			ID:      uuid.New(),
			Name:    "retro-weekly",
			URL:     "https://cdn.test/templates/retro-weekly.png",
			Style:   "magazine",
			Enabled: true,
		}},
		client:  &fakeGenerationClient{steps: steps},
		rehomer: &fakeRehomer{},
		emitter: &fakeEmitter{},
		userID:  uuid.New(),
	}
	f.subs.put(activeSubscription(t, f.userID, 3))

	ledger := newTestLedger(t, f.subs)
	orch, err := NewOrchestrator(
		f.tasks, f.users, f.templates, ledger,
		f.client, f.rehomer, f.emitter,
		defaultGenerationConfig(), testLogger(),
	)
	require.NoError(t, err)
	f.orch = orch
	return f
}

func (f *orchestratorFixture) generate(t *testing.T) (*domain.GenerationTask, error) {
	t.Helper()
	return f.orch.Generate(context.Background(), GenerationRequest{
		UserID:   f.userID,
		InputRef: "https://cdn.test/input/photo.jpg",
	})
}

func TestGenerateSuccess(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, []scriptedStep{
		{jobID: "job-restyle", result: "https://kie.test/results/restyled.png"},
		{jobID: "job-compose", result: "https://kie.test/results/final.png"},
	})

	task, err := f.generate(t)
	require.NoError(t, err)

	stored := f.tasks.get(t, task.ID)
	assert.Equal(t, domain.TaskStatusCompleted, stored.Status)
	assert.Equal(t, domain.StepCompose, stored.Step)
	assert.Equal(t, "job-restyle", stored.JobRefs[0])
	assert.Equal(t, "job-compose", stored.JobRefs[1])
	assert.NotEmpty(t, stored.IntermediateRef)
	assert.NotEmpty(t, stored.OutputRef)
	assert.Equal(t, "retro-weekly", stored.TemplateName)

	// Success keeps the reserved unit spent.
	assert.Equal(t, 1, f.subs.quotaUsed(t, f.userID))
	assert.Equal(t, domain.UserStateIdle, f.users.state(f.userID))

	emitted := f.emitter.all()
	require.Len(t, emitted, 1)
	assert.Equal(t, events.OutcomeCompleted, emitted[0].Outcome)
	assert.True(t, emitted[0].QuotaConsumed)
	assert.False(t, emitted[0].Recovered)
	assert.Equal(t, stored.OutputRef, emitted[0].ArtifactRef)

	// The restyle step keeps the input geometry, the compose step forces
	// poster proportions and feeds in the template.
	require.Len(t, f.client.submits, 2)
	assert.Equal(t, "auto", f.client.submits[0].ImageSize)
	assert.Equal(t, []string{"https://cdn.test/input/photo.jpg"}, f.client.submits[0].ImageRefs)
	assert.Equal(t, "3:4", f.client.submits[1].ImageSize)
	require.Len(t, f.client.submits[1].ImageRefs, 2)
	assert.Equal(t, stored.IntermediateRef, f.client.submits[1].ImageRefs[0])
	assert.Equal(t, "https://cdn.test/templates/retro-weekly.png", f.client.submits[1].ImageRefs[1])
}

func TestGenerateComposeStepFails(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, []scriptedStep{
		{jobID: "job-restyle", result: "https://kie.test/results/restyled.png"},
		{jobID: "job-compose", awaitErr: &generation.JobFailedError{JobID: "job-compose", Reason: "content policy violation"}},
	})

	task, err := f.generate(t)
	require.Error(t, err)
	assert.True(t, generation.IsJobFailedError(err))

	stored := f.tasks.get(t, task.ID)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorDetail, "content policy violation")
	// The restyle step's progress survives on the row.
	assert.Equal(t, "job-restyle", stored.JobRefs[0])
	assert.NotEmpty(t, stored.IntermediateRef)

	// The failed attempt returns its quota unit.
	assert.Equal(t, 0, f.subs.quotaUsed(t, f.userID))
	assert.Equal(t, domain.UserStateIdle, f.users.state(f.userID))

	emitted := f.emitter.all()
	require.Len(t, emitted, 1)
	assert.Equal(t, events.OutcomeFailed, emitted[0].Outcome)
	assert.False(t, emitted[0].QuotaConsumed)
	assert.False(t, emitted[0].Recovered)
	assert.Contains(t, emitted[0].ErrorDetail, "content policy violation")
}

func TestGenerateSubmitRejection(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, []scriptedStep{
		{submitErr: &generation.SubmissionError{StatusCode: 402, Message: "upstream credits exhausted"}},
	})

	task, err := f.generate(t)
	require.Error(t, err)
	assert.True(t, generation.IsSubmissionError(err))

	stored := f.tasks.get(t, task.ID)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
	assert.Empty(t, stored.JobRefs[0])
	assert.Equal(t, 0, f.subs.quotaUsed(t, f.userID))
}

func TestGenerateRestyleTimeout(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, []scriptedStep{
		{jobID: "job-restyle", awaitErr: &generation.TimeoutError{JobID: "job-restyle", Elapsed: 60 * time.Second}},
	})

	task, err := f.generate(t)
	require.Error(t, err)
	assert.True(t, generation.IsTimeoutError(err))

	stored := f.tasks.get(t, task.ID)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
	// The job ref was persisted before polling began.
	assert.Equal(t, "job-restyle", stored.JobRefs[0])
	assert.Equal(t, 0, f.subs.quotaUsed(t, f.userID))
}

func TestGenerateQuotaExhausted(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, nil)
	sub := activeSubscription(t, f.userID, 1)
	sub.QuotaUsed = 1
	f.subs.put(sub)

	task, err := f.generate(t)
	assert.ErrorIs(t, err, ErrQuotaExhausted)
	assert.Nil(t, task)
	// No task row and no submit call was made.
	assert.Equal(t, 0, f.tasks.count())
	assert.Empty(t, f.client.submits)
	assert.Equal(t, 1, f.subs.quotaUsed(t, f.userID))
}

func TestGenerateConcurrentTaskRejected(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, nil)
	active, err := domain.NewGenerationTask(f.userID, "https://cdn.test/input/earlier.jpg")
	require.NoError(t, err)
	f.tasks.seed(active)

	task, err := f.generate(t)
	assert.ErrorIs(t, err, ErrConcurrentTask)
	assert.Nil(t, task)
	assert.Equal(t, 1, f.tasks.count())
	assert.Equal(t, 0, f.subs.quotaUsed(t, f.userID))
}

func TestGenerateIndexBackstopRestoresQuota(t *testing.T) {
	t.Parallel()

	// The pre-check sees nothing but the insert hits the partial unique
	// index: quota must come back and the caller sees the conflict.
	f := newOrchestratorFixture(t, nil)
	f.tasks.createErr = store.ErrActiveTaskExists

	task, err := f.generate(t)
	assert.ErrorIs(t, err, ErrConcurrentTask)
	assert.Nil(t, task)
	assert.Equal(t, 0, f.subs.quotaUsed(t, f.userID))
}

func TestGenerateNoTemplates(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, []scriptedStep{
		{jobID: "job-restyle", result: "https://kie.test/results/restyled.png"},
	})
	f.templates.template = nil

	task, err := f.generate(t)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoTemplates)

	stored := f.tasks.get(t, task.ID)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
	assert.Equal(t, 0, f.subs.quotaUsed(t, f.userID))
}

func TestGenerateUnlimitedPlan(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, []scriptedStep{
		{jobID: "job-restyle", result: "https://kie.test/results/restyled.png"},
		{jobID: "job-compose", result: "https://kie.test/results/final.png"},
	})
	sub := activeSubscription(t, f.userID, domain.UnlimitedQuota)
	sub.QuotaUsed = 9999
	f.subs.put(sub)

	task, err := f.generate(t)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, f.tasks.get(t, task.ID).Status)
}

func TestGenerateNotificationFailureDoesNotStrandQuota(t *testing.T) {
	t.Parallel()

	f := newOrchestratorFixture(t, []scriptedStep{
		{jobID: "job-restyle", awaitErr: &generation.JobFailedError{JobID: "job-restyle", Reason: "upstream error"}},
	})
	f.emitter.err = assert.AnError

	task, err := f.generate(t)
	require.Error(t, err)
	assert.Equal(t, domain.TaskStatusFailed, f.tasks.get(t, task.ID).Status)
	assert.Equal(t, 0, f.subs.quotaUsed(t, f.userID))
	assert.Equal(t, domain.UserStateIdle, f.users.state(f.userID))
}
