package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/pressly/goose/v3"

	"github.com/phrazzld/revival-api/internal/config"
	"github.com/phrazzld/revival-api/migrations"
)

// slogGooseLogger adapts the goose logger interface to slog.
type slogGooseLogger struct{}

func (l *slogGooseLogger) Printf(format string, v ...interface{}) {
	slog.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *slogGooseLogger) Fatalf(format string, v ...interface{}) {
	slog.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// runMigrationCommand executes one goose command against the embedded
// migrations and exits. Used by the -migrate flag.
func runMigrationCommand(cfg *config.Config, command string) error {
	db, err := setupAppDatabase(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	goose.SetLogger(&slogGooseLogger{})
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	slog.Info("Running migration command", "command", command)

	switch command {
	case "up":
		return goose.Up(db, ".")
	case "down":
		return goose.Down(db, ".")
	case "status":
		return goose.Status(db, ".")
	case "version":
		return goose.Version(db, ".")
	default:
		return fmt.Errorf("unsupported migration command %q", command)
	}
}
