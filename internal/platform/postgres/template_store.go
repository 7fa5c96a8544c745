package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/phrazzld/revival-api/internal/domain"
	"github.com/phrazzld/revival-api/internal/platform/logger"
	"github.com/phrazzld/revival-api/internal/store"
)

// PostgresTemplateStore implements the store.TemplateStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTemplateStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTemplateStore creates a new PostgreSQL implementation of the
// TemplateStore interface. If logger is nil, a default logger will be used.
func NewPostgresTemplateStore(db store.DBTX, logger *slog.Logger) *PostgresTemplateStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTemplateStore{
		db:     db,
		logger: logger.With(slog.String("component", "template_store")),
	}
}

// Ensure PostgresTemplateStore implements store.TemplateStore interface
var _ store.TemplateStore = (*PostgresTemplateStore)(nil)

// Create implements store.TemplateStore.Create
func (s *PostgresTemplateStore) Create(ctx context.Context, tmpl *domain.PosterTemplate) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := tmpl.Validate(); err != nil {
		log.Warn("template validation failed during create",
			slog.String("error", err.Error()),
			slog.String("template_name", tmpl.Name))
		return err
	}

	query := `
		INSERT INTO poster_templates (id, name, url, style, enabled)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query, tmpl.ID, tmpl.Name, tmpl.URL, tmpl.Style, tmpl.Enabled)
	if err != nil {
		log.Error("failed to create template",
			slog.String("error", err.Error()),
			slog.String("template_name", tmpl.Name))
		return MapError(err)
	}

	return nil
}

// Random implements store.TemplateStore.Random
// Uniform random selection happens in SQL so concurrent invocations need
// no shared randomness state.
func (s *PostgresTemplateStore) Random(ctx context.Context) (*domain.PosterTemplate, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, name, url, style, enabled
		FROM poster_templates
		WHERE enabled = TRUE
		ORDER BY random()
		LIMIT 1
	`

	var tmpl domain.PosterTemplate
	var style sql.NullString

	err := s.db.QueryRowContext(ctx, query).Scan(
		&tmpl.ID,
		&tmpl.Name,
		&tmpl.URL,
		&style,
		&tmpl.Enabled,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warn("no enabled poster template available")
			return nil, store.ErrTemplateNotFound
		}
		log.Error("failed to pick random template",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	tmpl.Style = style.String
	return &tmpl, nil
}
