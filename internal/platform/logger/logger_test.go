package logger_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/phrazzld/revival-api/internal/config"
	"github.com/phrazzld/revival-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
	}{
		{name: "debug level", logLevel: "debug"},
		{name: "info level", logLevel: "info"},
		{name: "warn level", logLevel: "warn"},
		{name: "error level", logLevel: "error"},
		{name: "mixed case", logLevel: "INFO"},
		{name: "invalid level falls back to info", logLevel: "verbose"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			log, err := logger.Setup(config.ServerConfig{LogLevel: tt.logLevel})
			require.NoError(t, err)
			require.NotNil(t, log)
		})
	}
}

func TestWithLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("stores and retrieves logger", func(t *testing.T) {
		t.Parallel()

		ctx := logger.WithLogger(context.Background(), custom)
		assert.Same(t, custom, logger.FromContext(ctx))
	})

	t.Run("panics on nil logger", func(t *testing.T) {
		t.Parallel()

		assert.Panics(t, func() {
			logger.WithLogger(context.Background(), nil)
		})
	})
}

func TestFromContextOrDefault(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	def := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name string
		ctx  context.Context
		want *slog.Logger
	}{
		{name: "context carries logger", ctx: logger.WithLogger(context.Background(), custom), want: custom},
		{name: "bare context falls back to default", ctx: context.Background(), want: def},
		{name: "nil context falls back to default", ctx: nil, want: def},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Same(t, tt.want, logger.FromContextOrDefault(tt.ctx, def))
		})
	}
}
