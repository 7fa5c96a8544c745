package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/revival-api/internal/config"
	"github.com/phrazzld/revival-api/internal/domain"
	"github.com/phrazzld/revival-api/internal/events"
	"github.com/phrazzld/revival-api/internal/store"
)

// SweepReport summarizes one sweeper pass.
type SweepReport struct {
	TasksExamined  int `json:"tasks_examined"`
	TasksRecovered int `json:"tasks_recovered"`
	UsersReset     int `json:"users_reset"`
	Errors         int `json:"errors"`
}

// RecoverySweeper is the backstop for invocations that died mid-pipeline.
// It fails processing tasks whose last update predates the stale TTL,
// returns their quota units, notifies, and resets the owners' user-facing
// state. It runs on an interval and on demand from the cron endpoint.
//
// The TTL must sit above the worst-case legitimate pipeline duration, or
// the sweeper would race healthy in-flight work.
type RecoverySweeper struct {
	tasks    store.TaskStore
	users    store.UserStore
	ledger   *QuotaLedger
	emitter  events.Emitter
	interval time.Duration
	staleTTL time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRecoverySweeper creates a RecoverySweeper from the sweeper
// configuration.
func NewRecoverySweeper(
	tasks store.TaskStore,
	users store.UserStore,
	ledger *QuotaLedger,
	emitter events.Emitter,
	cfg config.SweeperConfig,
	logger *slog.Logger,
) (*RecoverySweeper, error) {
	switch {
	case tasks == nil:
		return nil, fmt.Errorf("task store cannot be nil")
	case users == nil:
		return nil, fmt.Errorf("user store cannot be nil")
	case ledger == nil:
		return nil, fmt.Errorf("quota ledger cannot be nil")
	case emitter == nil:
		return nil, fmt.Errorf("event emitter cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	interval := time.Duration(cfg.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	staleTTL := time.Duration(cfg.StaleTTLMinutes) * time.Minute
	if staleTTL <= 0 {
		staleTTL = 5 * time.Minute
	}

	return &RecoverySweeper{
		tasks:    tasks,
		users:    users,
		ledger:   ledger,
		emitter:  emitter,
		interval: interval,
		staleTTL: staleTTL,
		logger:   logger.With(slog.String("component", "recovery_sweeper")),
	}, nil
}

// StaleTTL returns the configured stale threshold.
func (s *RecoverySweeper) StaleTTL() time.Duration {
	return s.staleTTL
}

// Start launches the periodic sweep loop. It returns immediately; the loop
// runs until Stop is called or the context is canceled.
func (s *RecoverySweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("recovery sweeper started",
			slog.Duration("interval", s.interval),
			slog.Duration("stale_ttl", s.staleTTL))

		for {
			select {
			case <-loopCtx.Done():
				s.logger.Info("recovery sweeper stopped")
				return
			case <-ticker.C:
				if _, err := s.RunOnce(loopCtx, s.staleTTL); err != nil {
					s.logger.Error("sweep pass failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// Stop halts the periodic loop and waits for an in-flight pass to finish.
func (s *RecoverySweeper) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// RunOnce performs a single sweep pass with the given stale threshold.
// Failure to resolve one task is logged and counted but does not stop the
// pass; the task stays processing and the next pass retries it.
func (s *RecoverySweeper) RunOnce(ctx context.Context, olderThan time.Duration) (*SweepReport, error) {
	report := &SweepReport{}

	stale, err := s.tasks.FindStale(ctx, olderThan)
	if err != nil {
		return nil, fmt.Errorf("finding stale tasks: %w", err)
	}
	report.TasksExamined = len(stale)

	for _, task := range stale {
		if err := s.recoverTask(ctx, task); err != nil {
			report.Errors++
			s.logger.Error("failed to recover stale task",
				slog.String("task_id", task.ID.String()),
				slog.String("user_id", task.UserID.String()),
				slog.String("error", err.Error()))
			continue
		}
		report.TasksRecovered++
	}

	reset, err := s.resetStuckUsers(ctx)
	if err != nil {
		report.Errors++
		s.logger.Error("failed to reset stuck users", slog.String("error", err.Error()))
	}
	report.UsersReset = reset

	if report.TasksRecovered > 0 || report.UsersReset > 0 {
		s.logger.Info("sweep pass finished",
			slog.Int("tasks_recovered", report.TasksRecovered),
			slog.Int("users_reset", report.UsersReset),
			slog.Int("errors", report.Errors))
	}
	return report, nil
}

// recoverTask resolves one stale task: fail, restore quota, notify, reset
// state. Only the Fail write is load-bearing; the rest is best-effort and
// compensated elsewhere.
func (s *RecoverySweeper) recoverTask(ctx context.Context, task *domain.GenerationTask) error {
	if err := s.tasks.Fail(ctx, task.ID, recoveredDetail); err != nil {
		return fmt.Errorf("marking task failed: %w", err)
	}

	if err := s.ledger.Restore(ctx, task.UserID); err != nil {
		s.logger.Error("failed to restore quota for recovered task",
			slog.String("task_id", task.ID.String()),
			slog.String("user_id", task.UserID.String()),
			slog.String("error", err.Error()))
	}

	event := events.NewTaskFailedEvent(task.ID, task.UserID, recoveredDetail, true)
	if err := s.emitter.EmitTaskResolved(ctx, event); err != nil {
		s.logger.Error("failed to emit recovery notification",
			slog.String("task_id", task.ID.String()),
			slog.String("error", err.Error()))
	}

	if err := s.users.SetState(ctx, task.UserID, domain.UserStateIdle); err != nil {
		s.logger.Warn("failed to reset user state after recovery",
			slog.String("user_id", task.UserID.String()),
			slog.String("error", err.Error()))
	}

	s.logger.Info("recovered stale task",
		slog.String("task_id", task.ID.String()),
		slog.String("user_id", task.UserID.String()),
		slog.Int("step", task.Step))
	return nil
}

// resetStuckUsers force-resets users whose interaction state still says
// processing although they have no task in flight.
func (s *RecoverySweeper) resetStuckUsers(ctx context.Context) (int, error) {
	stuck, err := s.users.FindStuckProcessing(ctx)
	if err != nil {
		return 0, fmt.Errorf("finding stuck users: %w", err)
	}

	reset := 0
	for _, userID := range stuck {
		if err := s.users.SetState(ctx, userID, domain.UserStateIdle); err != nil {
			s.logger.Warn("failed to reset stuck user",
				slog.String("user_id", userID.String()),
				slog.String("error", err.Error()))
			continue
		}
		reset++
	}
	return reset, nil
}
