package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/revival-api/internal/domain"
	"github.com/phrazzld/revival-api/internal/store"
)

// billingPeriodDays is the length of one quota period.
const billingPeriodDays = 30

// QuotaStatus is the read-model returned to callers asking how much quota a
// user has left.
type QuotaStatus struct {
	PlanKind  domain.PlanKind `json:"plan_kind"`
	Unlimited bool            `json:"unlimited"`
	Total     int             `json:"total"`
	Used      int             `json:"used"`
	Remaining int             `json:"remaining"`
	PeriodEnd time.Time       `json:"period_end"`
}

// QuotaLedger enforces the per-user monthly generation allowance. Checks
// fail closed: any state that cannot positively pay for a generation
// (missing row, inactive status, spent allowance) reads as exhausted.
// Reservation happens before any external work so a crash can only leave
// quota over-reserved, never over-spent, and the failure paths return the
// unit with a floored decrement.
type QuotaLedger struct {
	subscriptions store.SubscriptionStore
	logger        *slog.Logger
	now           func() time.Time
}

// NewQuotaLedger creates a QuotaLedger backed by the given subscription
// store.
func NewQuotaLedger(subscriptions store.SubscriptionStore, logger *slog.Logger) (*QuotaLedger, error) {
	if subscriptions == nil {
		return nil, fmt.Errorf("subscription store cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QuotaLedger{
		subscriptions: subscriptions,
		logger:        logger.With(slog.String("component", "quota_ledger")),
		now:           time.Now,
	}, nil
}

// Check reports whether the user can pay for one generation right now.
// Returns the subscription the answer was based on, or ErrQuotaExhausted.
//
// An active subscription whose period has lapsed is rolled over in place
// before the answer is computed. The rollover is the read-time counterpart
// of billing renewal; there is no separate expiry job to race with.
func (l *QuotaLedger) Check(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	sub, err := l.subscriptions.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrSubscriptionNotFound) {
			return nil, fmt.Errorf("%w: user has no subscription", ErrQuotaExhausted)
		}
		return nil, fmt.Errorf("reading subscription: %w", err)
	}

	now := l.now()

	if sub.Status == domain.SubscriptionStatusActive && sub.PeriodElapsed(now) {
		rolled, err := l.rolloverPeriod(ctx, userID, now)
		if err != nil {
			return nil, err
		}
		sub = rolled
	}

	if !sub.Usable(now) {
		return nil, fmt.Errorf("%w: subscription is %s", ErrQuotaExhausted, sub.Status)
	}

	if !sub.IsUnlimited() && sub.Remaining() <= 0 {
		return nil, fmt.Errorf("%w: %d of %d used this period", ErrQuotaExhausted, sub.QuotaUsed, sub.QuotaTotal)
	}

	return sub, nil
}

// Reserve takes one quota unit ahead of the work it pays for. If the
// increment lands past the cap because two invocations raced through Check,
// the unit is returned immediately and the reservation fails.
func (l *QuotaLedger) Reserve(ctx context.Context, userID uuid.UUID) error {
	sub, err := l.subscriptions.Reserve(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrSubscriptionNotFound) {
			return fmt.Errorf("%w: user has no active subscription", ErrQuotaExhausted)
		}
		return fmt.Errorf("reserving quota: %w", err)
	}

	if !sub.IsUnlimited() && sub.QuotaUsed > sub.QuotaTotal {
		l.logger.Warn("quota reservation landed past cap, returning unit",
			slog.String("user_id", userID.String()),
			slog.Int("quota_used", sub.QuotaUsed),
			slog.Int("quota_total", sub.QuotaTotal))
		if _, restoreErr := l.subscriptions.Restore(ctx, userID); restoreErr != nil {
			l.logger.Error("failed to return over-cap reservation",
				slog.String("user_id", userID.String()),
				slog.String("error", restoreErr.Error()))
		}
		return fmt.Errorf("%w: allowance spent concurrently", ErrQuotaExhausted)
	}

	l.logger.Debug("quota reserved",
		slog.String("user_id", userID.String()),
		slog.Int("quota_used", sub.QuotaUsed))
	return nil
}

// Restore returns one previously reserved unit after a failed generation.
// The store-level decrement floors at zero, so a Restore that arrives after
// a period rollover cannot drive the counter negative. A missing
// subscription row is logged and swallowed since there is nothing left to
// return the unit to.
func (l *QuotaLedger) Restore(ctx context.Context, userID uuid.UUID) error {
	sub, err := l.subscriptions.Restore(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrSubscriptionNotFound) {
			l.logger.Warn("no subscription row to restore quota to",
				slog.String("user_id", userID.String()))
			return nil
		}
		return fmt.Errorf("restoring quota: %w", err)
	}

	l.logger.Debug("quota restored",
		slog.String("user_id", userID.String()),
		slog.Int("quota_used", sub.QuotaUsed))
	return nil
}

// Status reports the user's current allowance for the quota endpoint,
// applying the same read-time rollover Check does.
// Returns store.ErrSubscriptionNotFound if the user has no subscription.
func (l *QuotaLedger) Status(ctx context.Context, userID uuid.UUID) (*QuotaStatus, error) {
	sub, err := l.subscriptions.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := l.now()
	if sub.Status == domain.SubscriptionStatusActive && sub.PeriodElapsed(now) {
		rolled, err := l.rolloverPeriod(ctx, userID, now)
		if err != nil {
			return nil, err
		}
		sub = rolled
	}

	return &QuotaStatus{
		PlanKind:  sub.PlanKind,
		Unlimited: sub.IsUnlimited(),
		Total:     sub.QuotaTotal,
		Used:      sub.QuotaUsed,
		Remaining: sub.Remaining(),
		PeriodEnd: sub.PeriodEnd,
	}, nil
}

func (l *QuotaLedger) rolloverPeriod(
	ctx context.Context,
	userID uuid.UUID,
	now time.Time,
) (*domain.Subscription, error) {
	rolled, err := l.subscriptions.ResetPeriod(ctx, userID, now, now.AddDate(0, 0, billingPeriodDays))
	if err != nil {
		return nil, fmt.Errorf("rolling over quota period: %w", err)
	}
	l.logger.Info("quota period rolled over",
		slog.String("user_id", userID.String()),
		slog.Time("period_end", rolled.PeriodEnd))
	return rolled, nil
}
