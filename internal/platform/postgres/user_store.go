package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/revival-api/internal/domain"
	"github.com/phrazzld/revival-api/internal/platform/logger"
	"github.com/phrazzld/revival-api/internal/store"
)

// PostgresUserStore implements the store.UserStore interface
// using a PostgreSQL database as the storage backend.
type PostgresUserStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresUserStore creates a new PostgreSQL implementation of the
// UserStore interface. If logger is nil, a default logger will be used.
func NewPostgresUserStore(db store.DBTX, logger *slog.Logger) *PostgresUserStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresUserStore{
		db:     db,
		logger: logger.With(slog.String("component", "user_store")),
	}
}

// Ensure PostgresUserStore implements store.UserStore interface
var _ store.UserStore = (*PostgresUserStore)(nil)

// Create implements store.UserStore.Create
func (s *PostgresUserStore) Create(ctx context.Context, user *domain.User) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := user.Validate(); err != nil {
		log.Warn("user validation failed during create",
			slog.String("error", err.Error()),
			slog.String("user_id", user.ID.String()))
		return err
	}

	query := `
		INSERT INTO users (id, external_id, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.ExternalID,
		user.State,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create user",
			slog.String("error", err.Error()),
			slog.String("user_id", user.ID.String()))
		return MapError(err)
	}

	return nil
}

// GetByID implements store.UserStore.GetByID
// Returns store.ErrUserNotFound if the user does not exist.
func (s *PostgresUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, external_id, state, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user domain.User
	var state string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.ExternalID,
		&state,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		log.Error("failed to get user by ID",
			slog.String("error", err.Error()),
			slog.String("user_id", id.String()))
		return nil, MapError(err)
	}

	user.State = domain.UserState(state)
	return &user, nil
}

// SetState implements store.UserStore.SetState
func (s *PostgresUserStore) SetState(
	ctx context.Context,
	userID uuid.UUID,
	state domain.UserState,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE users
		SET state = $1, updated_at = $2
		WHERE id = $3
	`
	result, err := s.db.ExecContext(ctx, query, state, time.Now().UTC(), userID)
	if err != nil {
		log.Error("failed to set user state",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()),
			slog.String("state", string(state)))
		return MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return MapError(err)
	}

	if rowsAffected == 0 {
		log.Warn("no user found to set state",
			slog.String("user_id", userID.String()))
		return store.ErrUserNotFound
	}

	log.Debug("user state set",
		slog.String("user_id", userID.String()),
		slog.String("state", string(state)))
	return nil
}

// FindStuckProcessing implements store.UserStore.FindStuckProcessing
// A user is stuck when their state says processing but no non-terminal
// task exists for them.
func (s *PostgresUserStore) FindStuckProcessing(ctx context.Context) ([]uuid.UUID, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT u.id
		FROM users u
		WHERE u.state = 'processing'
		AND NOT EXISTS (
			SELECT 1 FROM generation_tasks t
			WHERE t.user_id = u.id AND t.status = 'processing'
		)
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		log.Error("failed to query stuck users",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var userIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			log.Error("failed to scan stuck user row",
				slog.String("error", err.Error()))
			return nil, MapError(err)
		}
		userIDs = append(userIDs, id)
	}

	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return userIDs, nil
}
