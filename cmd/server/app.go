package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/revival-api/internal/config"
	"github.com/phrazzld/revival-api/internal/events"
	"github.com/phrazzld/revival-api/internal/platform/kie"
	"github.com/phrazzld/revival-api/internal/platform/postgres"
	"github.com/phrazzld/revival-api/internal/platform/storage"
	"github.com/phrazzld/revival-api/internal/service"
	"github.com/phrazzld/revival-api/internal/store"
)

// logNotificationHandler is the default delivery sink: it writes every
// resolved task to the log. Messaging-channel handlers register alongside
// it when a delivery integration is configured.
type logNotificationHandler struct {
	logger *slog.Logger
}

func (h *logNotificationHandler) HandleTaskResolved(_ context.Context, event *events.TaskResolvedEvent) error {
	h.logger.Info("task resolved",
		slog.String("task_id", event.TaskID.String()),
		slog.String("user_id", event.UserID.String()),
		slog.String("outcome", string(event.Outcome)),
		slog.Bool("quota_consumed", event.QuotaConsumed),
		slog.Bool("recovered", event.Recovered))
	return nil
}

// application holds the wired dependency graph.
type application struct {
	config       *config.Config
	logger       *slog.Logger
	db           *sql.DB
	orchestrator *service.Orchestrator
	ledger       *service.QuotaLedger
	provisioner  *service.UserProvisioner
	sweeper      *service.RecoverySweeper
}

// newApplication connects the database and wires stores, services, and the
// sweeper.
func newApplication(cfg *config.Config, logger *slog.Logger) (*application, error) {
	db, err := setupAppDatabase(cfg, logger)
	if err != nil {
		return nil, err
	}

	taskStore := postgres.NewPostgresTaskStore(db, logger)
	userStore := postgres.NewPostgresUserStore(db, logger)
	subscriptionStore := postgres.NewPostgresSubscriptionStore(db, logger)
	templateStore := postgres.NewPostgresTemplateStore(db, logger)

	ledger, err := service.NewQuotaLedger(subscriptionStore, logger)
	if err != nil {
		return nil, fmt.Errorf("building quota ledger: %w", err)
	}

	client, err := kie.NewClient(cfg.Generation, logger)
	if err != nil {
		return nil, fmt.Errorf("building generation client: %w", err)
	}

	artifacts, err := storage.NewArtifactStore(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("building artifact store: %w", err)
	}

	emitter := events.NewInMemoryEmitter(logger)
	emitter.RegisterHandler(&logNotificationHandler{
		logger: logger.With(slog.String("component", "notification_log")),
	})

	orchestrator, err := service.NewOrchestrator(
		taskStore, userStore, templateStore, ledger,
		client, artifacts, emitter,
		cfg.Generation, logger,
	)
	if err != nil {
		return nil, fmt.Errorf("building orchestrator: %w", err)
	}

	provisioner, err := service.NewUserProvisioner(
		db,
		func(dbtx store.DBTX) store.UserStore {
			return postgres.NewPostgresUserStore(dbtx, logger)
		},
		func(dbtx store.DBTX) store.SubscriptionStore {
			return postgres.NewPostgresSubscriptionStore(dbtx, logger)
		},
		0,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("building user provisioner: %w", err)
	}

	sweeper, err := service.NewRecoverySweeper(
		taskStore, userStore, ledger, emitter,
		cfg.Sweeper, logger,
	)
	if err != nil {
		return nil, fmt.Errorf("building recovery sweeper: %w", err)
	}

	return &application{
		config:       cfg,
		logger:       logger,
		db:           db,
		orchestrator: orchestrator,
		ledger:       ledger,
		provisioner:  provisioner,
		sweeper:      sweeper,
	}, nil
}

// run starts the sweeper and the HTTP server, blocking until shutdown.
func (app *application) run(ctx context.Context) error {
	app.sweeper.Start(ctx)
	return app.startHTTPServer(ctx, app.setupRouter())
}

// cleanup releases application resources during shutdown.
func (app *application) cleanup() {
	app.sweeper.Stop()
	if err := app.db.Close(); err != nil {
		app.logger.Error("Failed to close database connection", "error", err)
	}
}
