package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/revival-api/internal/domain"
)

// SubscriptionStore defines persistence for the per-user quota ledger rows.
//
// Reserve and Restore must be implemented as single atomic statements at
// the storage layer, never read-modify-write in application code, because
// concurrent invocations for the same user would otherwise lose updates.
type SubscriptionStore interface {
	// GetByUserID returns the user's current subscription row.
	// Returns ErrSubscriptionNotFound if the user has none.
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)

	// Create saves a new subscription row for the user.
	Create(ctx context.Context, sub *domain.Subscription) error

	// Reserve atomically increments quota_used by 1 on the user's active
	// subscription row and returns the updated row.
	// Returns ErrSubscriptionNotFound if no active row exists.
	Reserve(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)

	// Restore atomically decrements quota_used by 1, floored at zero, and
	// returns the updated row. The floor makes Restore safe to call even if
	// the matching Reserve was already reconciled by a period reset.
	// Returns ErrSubscriptionNotFound if no active row exists.
	Restore(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)

	// ResetPeriod advances the billing period and zeroes quota_used on the
	// user's active subscription row, returning the updated row. Used by the
	// read-time rollover in the quota ledger.
	ResetPeriod(
		ctx context.Context,
		userID uuid.UUID,
		periodStart, periodEnd time.Time,
	) (*domain.Subscription, error)
}
