package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/phrazzld/revival-api/internal/api/shared"
	"github.com/phrazzld/revival-api/internal/platform/logger"
	"github.com/phrazzld/revival-api/internal/service"
)

// Sweeper is the recovery contract the cron endpoint drives.
type Sweeper interface {
	RunOnce(ctx context.Context, olderThan time.Duration) (*service.SweepReport, error)
	StaleTTL() time.Duration
}

// CronHandler exposes the recovery sweep to external schedulers. Platforms
// without resident background goroutines hit this endpoint instead of
// relying on the in-process ticker.
type CronHandler struct {
	sweeper Sweeper
	logger  *slog.Logger
}

// NewCronHandler creates a new CronHandler.
func NewCronHandler(sweeper Sweeper, log *slog.Logger) *CronHandler {
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for CronHandler")
	}
	return &CronHandler{
		sweeper: sweeper,
		logger:  log.With(slog.String("component", "cron_handler")),
	}
}

// Sweep handles POST /internal/sweep. The optional ttl_minutes query
// parameter overrides the configured stale threshold for this pass only.
func (h *CronHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	olderThan := h.sweeper.StaleTTL()
	if raw := r.URL.Query().Get("ttl_minutes"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, CodeInvalidRequest, "ttl_minutes must be a positive integer")
			return
		}
		olderThan = time.Duration(minutes) * time.Minute
	}

	report, err := h.sweeper.RunOnce(r.Context(), olderThan)
	if err != nil {
		shared.RespondWithErrorAndLog(
			w, r,
			http.StatusInternalServerError,
			CodeInternalError,
			"Sweep pass failed",
			err,
			nil,
		)
		return
	}

	log.Info("sweep pass requested",
		slog.Duration("older_than", olderThan),
		slog.Int("tasks_recovered", report.TasksRecovered),
		slog.Int("users_reset", report.UsersReset))

	shared.RespondWithJSON(w, r, http.StatusOK, report)
}
