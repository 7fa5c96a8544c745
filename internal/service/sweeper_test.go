package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/revival-api/internal/config"
	"github.com/phrazzld/revival-api/internal/domain"
	"github.com/phrazzld/revival-api/internal/events"
)

type sweeperFixture struct {
	tasks   *fakeTaskStore
	users   *fakeUserStore
	subs    *fakeSubscriptionStore
	emitter *fakeEmitter
	sweeper *RecoverySweeper
}

func newSweeperFixture(t *testing.T) *sweeperFixture {
	t.Helper()

	f := &sweeperFixture{
		tasks:   newFakeTaskStore(),
		users:   newFakeUserStore(),
		subs:    newFakeSubscriptionStore(),
		emitter: &fakeEmitter{},
	}
	ledger := newTestLedger(t, f.subs)
	sweeper, err := NewRecoverySweeper(
		f.tasks, f.users, ledger, f.emitter,
		config.SweeperConfig{IntervalMinutes: 2, StaleTTLMinutes: 5},
		testLogger(),
	)
	require.NoError(t, err)
	f.sweeper = sweeper
	return f
}

// seedProcessingTask creates a processing task whose last update is age in
// the past, with one quota unit reserved against it.
func (f *sweeperFixture) seedProcessingTask(t *testing.T, age time.Duration) *domain.GenerationTask {
	t.Helper()
	userID := uuid.New()
	sub := activeSubscription(t, userID, 3)
	sub.QuotaUsed = 1
	f.subs.put(sub)

	task, err := domain.NewGenerationTask(userID, "https://cdn.test/input/photo.jpg")
	require.NoError(t, err)
	task.UpdatedAt = time.Now().UTC().Add(-age)
	f.tasks.seed(task)
	f.users.states[userID] = domain.UserStateProcessing
	return task
}

func TestSweeperRecoversStaleTask(t *testing.T) {
	t.Parallel()

	f := newSweeperFixture(t)
	task := f.seedProcessingTask(t, 10*time.Minute)

	report, err := f.sweeper.RunOnce(context.Background(), f.sweeper.StaleTTL())
	require.NoError(t, err)
	assert.Equal(t, 1, report.TasksRecovered)
	assert.Equal(t, 0, report.Errors)

	stored := f.tasks.get(t, task.ID)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
	assert.Equal(t, "recovered: exceeded processing ttl", stored.ErrorDetail)

	assert.Equal(t, 0, f.subs.quotaUsed(t, task.UserID))
	assert.Equal(t, domain.UserStateIdle, f.users.state(task.UserID))

	emitted := f.emitter.all()
	require.Len(t, emitted, 1)
	assert.Equal(t, events.OutcomeFailed, emitted[0].Outcome)
	assert.True(t, emitted[0].Recovered)
	assert.False(t, emitted[0].QuotaConsumed)
	assert.Equal(t, task.ID, emitted[0].TaskID)
}

func TestSweeperLeavesFreshTasksAlone(t *testing.T) {
	t.Parallel()

	f := newSweeperFixture(t)
	task := f.seedProcessingTask(t, time.Minute)

	report, err := f.sweeper.RunOnce(context.Background(), f.sweeper.StaleTTL())
	require.NoError(t, err)
	assert.Equal(t, 0, report.TasksExamined)

	stored := f.tasks.get(t, task.ID)
	assert.Equal(t, domain.TaskStatusProcessing, stored.Status)
	assert.Equal(t, 1, f.subs.quotaUsed(t, task.UserID))
	assert.Empty(t, f.emitter.all())
}

func TestSweeperPerTaskIsolation(t *testing.T) {
	t.Parallel()

	// A pass where every Fail write errors must count the failures without
	// aborting, and a later pass must still recover the tasks.
	f := newSweeperFixture(t)
	first := f.seedProcessingTask(t, 10*time.Minute)
	second := f.seedProcessingTask(t, 12*time.Minute)

	f.tasks.failErr = assert.AnError
	report, err := f.sweeper.RunOnce(context.Background(), f.sweeper.StaleTTL())
	require.NoError(t, err)
	assert.Equal(t, 2, report.TasksExamined)
	assert.Equal(t, 0, report.TasksRecovered)
	assert.Equal(t, 2, report.Errors)

	f.tasks.failErr = nil
	report, err = f.sweeper.RunOnce(context.Background(), f.sweeper.StaleTTL())
	require.NoError(t, err)
	assert.Equal(t, 2, report.TasksRecovered)

	assert.Equal(t, domain.TaskStatusFailed, f.tasks.get(t, first.ID).Status)
	assert.Equal(t, domain.TaskStatusFailed, f.tasks.get(t, second.ID).Status)
}

func TestSweeperResetsStuckUsers(t *testing.T) {
	t.Parallel()

	f := newSweeperFixture(t)
	stuckUser := uuid.New()
	f.users.states[stuckUser] = domain.UserStateProcessing
	f.users.stuck = []uuid.UUID{stuckUser}

	report, err := f.sweeper.RunOnce(context.Background(), f.sweeper.StaleTTL())
	require.NoError(t, err)
	assert.Equal(t, 1, report.UsersReset)
	assert.Equal(t, domain.UserStateIdle, f.users.state(stuckUser))
}

func TestSweeperFindStaleFailure(t *testing.T) {
	t.Parallel()

	f := newSweeperFixture(t)
	f.tasks.staleErr = assert.AnError

	_, err := f.sweeper.RunOnce(context.Background(), f.sweeper.StaleTTL())
	assert.Error(t, err)
}

func TestSweeperStartStop(t *testing.T) {
	t.Parallel()

	f := newSweeperFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.sweeper.Start(ctx)
	// Starting twice must not spawn a second loop.
	f.sweeper.Start(ctx)
	f.sweeper.Stop()
	// Stop after stop is a no-op.
	f.sweeper.Stop()
}
