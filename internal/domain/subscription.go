package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// PlanKind identifies the subscription plan a user is on.
type PlanKind string

// Possible plan kinds
const (
	PlanKindNone     PlanKind = "none"
	PlanKindTrial    PlanKind = "trial"
	PlanKindStandard PlanKind = "standard"
)

// SubscriptionStatus represents the billing state of a subscription.
type SubscriptionStatus string

// Possible subscription status values. A canceled subscription remains
// usable until its current period ends.
const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
)

// UnlimitedQuota is the sentinel stored in QuotaTotal for plans without a
// monthly generation cap.
const UnlimitedQuota = -1

// Common validation errors for Subscription
var (
	ErrEmptySubscriptionID     = errors.New("subscription ID cannot be empty")
	ErrEmptySubscriptionUserID = errors.New("subscription user ID cannot be empty")
	ErrInvalidPlanKind         = errors.New("invalid plan kind")
	ErrInvalidSubscription     = errors.New("invalid subscription status")
	ErrNegativeQuotaUsed       = errors.New("quota used cannot be negative")
	ErrInvalidQuotaTotal       = errors.New("quota total must be non-negative or the unlimited sentinel")
	ErrInvalidPeriod           = errors.New("period end must be after period start")
)

// Subscription is the per-user monthly quota ledger row. At most one
// subscription is active per user at a time; QuotaUsed is mutated only
// through atomic increment/decrement statements in the store layer.
type Subscription struct {
	ID          uuid.UUID          `json:"id"`
	UserID      uuid.UUID          `json:"user_id"`
	PlanKind    PlanKind           `json:"plan_kind"`
	Status      SubscriptionStatus `json:"status"`
	QuotaTotal  int                `json:"quota_total"`
	QuotaUsed   int                `json:"quota_used"`
	PeriodStart time.Time          `json:"period_start"`
	PeriodEnd   time.Time          `json:"period_end"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// NewSubscription creates a subscription starting a fresh billing period at
// the given instant. Returns an error if validation fails.
func NewSubscription(
	userID uuid.UUID,
	plan PlanKind,
	quotaTotal int,
	periodStart time.Time,
) (*Subscription, error) {
	sub := &Subscription{
		ID:          uuid.New(),
		UserID:      userID,
		PlanKind:    plan,
		Status:      SubscriptionStatusActive,
		QuotaTotal:  quotaTotal,
		QuotaUsed:   0,
		PeriodStart: periodStart,
		PeriodEnd:   periodStart.AddDate(0, 0, 30),
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	if err := sub.Validate(); err != nil {
		return nil, err
	}

	return sub, nil
}

// Validate checks if the Subscription has valid data.
// Returns an error if any field fails validation.
func (s *Subscription) Validate() error {
	if s.ID == uuid.Nil {
		return ErrEmptySubscriptionID
	}

	if s.UserID == uuid.Nil {
		return ErrEmptySubscriptionUserID
	}

	if !isValidPlanKind(s.PlanKind) {
		return ErrInvalidPlanKind
	}

	if !isValidSubscriptionStatus(s.Status) {
		return ErrInvalidSubscription
	}

	if s.QuotaUsed < 0 {
		return ErrNegativeQuotaUsed
	}

	if s.QuotaTotal < 0 && s.QuotaTotal != UnlimitedQuota {
		return ErrInvalidQuotaTotal
	}

	if !s.PeriodEnd.After(s.PeriodStart) {
		return ErrInvalidPeriod
	}

	return nil
}

// IsUnlimited reports whether the plan has no monthly generation cap.
func (s *Subscription) IsUnlimited() bool {
	return s.QuotaTotal == UnlimitedQuota
}

// Remaining returns the number of generations left in the current period.
// It never returns a negative value; unlimited plans report UnlimitedQuota.
func (s *Subscription) Remaining() int {
	if s.IsUnlimited() {
		return UnlimitedQuota
	}
	remaining := s.QuotaTotal - s.QuotaUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// PeriodElapsed reports whether the current billing period has ended
// relative to the given instant. Expiry is evaluated at read time; there is
// no separate expiry job.
func (s *Subscription) PeriodElapsed(now time.Time) bool {
	return !now.Before(s.PeriodEnd)
}

// Usable reports whether the subscription can pay for a generation at the
// given instant. Canceled subscriptions stay usable until the period ends.
func (s *Subscription) Usable(now time.Time) bool {
	if s.Status != SubscriptionStatusActive && s.Status != SubscriptionStatusCanceled {
		return false
	}
	return !s.PeriodElapsed(now)
}

func isValidPlanKind(p PlanKind) bool {
	switch p {
	case PlanKindNone, PlanKindTrial, PlanKindStandard:
		return true
	default:
		return false
	}
}

func isValidSubscriptionStatus(s SubscriptionStatus) bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusCanceled, SubscriptionStatusExpired:
		return true
	default:
		return false
	}
}
