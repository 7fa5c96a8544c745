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

// PostgresSubscriptionStore implements the store.SubscriptionStore interface
// using a PostgreSQL database as the storage backend.
//
// Reserve and Restore are expressed as single UPDATE statements that
// increment/decrement in SQL. The subscription row is the one piece of
// mutable state contended by concurrent invocations for the same user, and
// read-modify-write in application code would lose updates.
type PostgresSubscriptionStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresSubscriptionStore creates a new PostgreSQL implementation of
// the SubscriptionStore interface. It accepts a database connection or
// transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresSubscriptionStore(db store.DBTX, logger *slog.Logger) *PostgresSubscriptionStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresSubscriptionStore{
		db:     db,
		logger: logger.With(slog.String("component", "subscription_store")),
	}
}

// Ensure PostgresSubscriptionStore implements store.SubscriptionStore interface
var _ store.SubscriptionStore = (*PostgresSubscriptionStore)(nil)

const subscriptionColumns = `id, user_id, plan_kind, status, quota_total, quota_used,
	period_start, period_end, created_at, updated_at`

// Create implements store.SubscriptionStore.Create
func (s *PostgresSubscriptionStore) Create(ctx context.Context, sub *domain.Subscription) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := sub.Validate(); err != nil {
		log.Warn("subscription validation failed during create",
			slog.String("error", err.Error()),
			slog.String("subscription_id", sub.ID.String()))
		return err
	}

	query := `
		INSERT INTO subscriptions (id, user_id, plan_kind, status, quota_total, quota_used,
			period_start, period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		sub.ID,
		sub.UserID,
		sub.PlanKind,
		sub.Status,
		sub.QuotaTotal,
		sub.QuotaUsed,
		sub.PeriodStart,
		sub.PeriodEnd,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create subscription",
			slog.String("error", err.Error()),
			slog.String("user_id", sub.UserID.String()))
		return MapError(err)
	}

	log.Info("subscription created",
		slog.String("subscription_id", sub.ID.String()),
		slog.String("user_id", sub.UserID.String()),
		slog.String("plan_kind", string(sub.PlanKind)))
	return nil
}

// GetByUserID implements store.SubscriptionStore.GetByUserID
// Returns store.ErrSubscriptionNotFound if the user has no subscription.
func (s *PostgresSubscriptionStore) GetByUserID(
	ctx context.Context,
	userID uuid.UUID,
) (*domain.Subscription, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1
	`

	sub, err := s.scanSubscription(s.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("subscription not found", slog.String("user_id", userID.String()))
			return nil, store.ErrSubscriptionNotFound
		}
		log.Error("failed to get subscription",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return nil, MapError(err)
	}

	return sub, nil
}

// Reserve implements store.SubscriptionStore.Reserve
// The increment happens for unlimited plans as well, for reporting; whether
// the reservation gates anything is the quota ledger's decision.
func (s *PostgresSubscriptionStore) Reserve(
	ctx context.Context,
	userID uuid.UUID,
) (*domain.Subscription, error) {
	query := `
		UPDATE subscriptions
		SET quota_used = quota_used + 1, updated_at = $1
		WHERE user_id = $2 AND status IN ('active', 'canceled')
		RETURNING ` + subscriptionColumns

	return s.mutateQuota(ctx, "reserve", query, userID)
}

// Restore implements store.SubscriptionStore.Restore
// Floored at zero so calling it more times than Reserve never drives
// quota_used negative.
func (s *PostgresSubscriptionStore) Restore(
	ctx context.Context,
	userID uuid.UUID,
) (*domain.Subscription, error) {
	query := `
		UPDATE subscriptions
		SET quota_used = GREATEST(quota_used - 1, 0), updated_at = $1
		WHERE user_id = $2 AND status IN ('active', 'canceled')
		RETURNING ` + subscriptionColumns

	return s.mutateQuota(ctx, "restore", query, userID)
}

// mutateQuota runs one of the atomic quota update statements and scans the
// updated row.
func (s *PostgresSubscriptionStore) mutateQuota(
	ctx context.Context,
	op string,
	query string,
	userID uuid.UUID,
) (*domain.Subscription, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	sub, err := s.scanSubscription(
		s.db.QueryRowContext(ctx, query, time.Now().UTC(), userID),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warn("no active subscription row for quota mutation",
				slog.String("operation", op),
				slog.String("user_id", userID.String()))
			return nil, store.ErrSubscriptionNotFound
		}
		log.Error("quota mutation failed",
			slog.String("operation", op),
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return nil, MapError(err)
	}

	log.Debug("quota mutated",
		slog.String("operation", op),
		slog.String("user_id", userID.String()),
		slog.Int("quota_used", sub.QuotaUsed))
	return sub, nil
}

// ResetPeriod implements store.SubscriptionStore.ResetPeriod
func (s *PostgresSubscriptionStore) ResetPeriod(
	ctx context.Context,
	userID uuid.UUID,
	periodStart, periodEnd time.Time,
) (*domain.Subscription, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE subscriptions
		SET quota_used = 0, period_start = $1, period_end = $2, updated_at = $3
		WHERE user_id = $4 AND status IN ('active', 'canceled')
		RETURNING ` + subscriptionColumns

	sub, err := s.scanSubscription(
		s.db.QueryRowContext(ctx, query, periodStart, periodEnd, time.Now().UTC(), userID),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrSubscriptionNotFound
		}
		log.Error("failed to reset subscription period",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return nil, MapError(err)
	}

	log.Info("subscription period reset",
		slog.String("user_id", userID.String()),
		slog.Time("period_start", sub.PeriodStart),
		slog.Time("period_end", sub.PeriodEnd))
	return sub, nil
}

// rowScanner matches both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresSubscriptionStore) scanSubscription(row rowScanner) (*domain.Subscription, error) {
	var sub domain.Subscription
	var planKind, status string

	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&planKind,
		&status,
		&sub.QuotaTotal,
		&sub.QuotaUsed,
		&sub.PeriodStart,
		&sub.PeriodEnd,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.PlanKind = domain.PlanKind(planKind)
	sub.Status = domain.SubscriptionStatus(status)
	return &sub, nil
}
