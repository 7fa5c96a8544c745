package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/revival-api/internal/domain"
	"github.com/phrazzld/revival-api/internal/store"
)

// defaultTrialQuota is the monthly generation allowance granted to newly
// registered users.
const defaultTrialQuota = 8

// UserStoreFactory builds a UserStore bound to the given database handle,
// which may be a transaction.
type UserStoreFactory func(store.DBTX) store.UserStore

// SubscriptionStoreFactory builds a SubscriptionStore bound to the given
// database handle, which may be a transaction.
type SubscriptionStoreFactory func(store.DBTX) store.SubscriptionStore

// UserProvisioner registers new users. A registration creates the user row
// and its trial subscription in one transaction so no user can exist
// without a quota ledger row.
type UserProvisioner struct {
	db         *sql.DB
	newUsers   UserStoreFactory
	newSubs    SubscriptionStoreFactory
	trialQuota int
	logger     *slog.Logger

	// overridable for tests
	runTx func(ctx context.Context, db *sql.DB, fn store.TxFn) error
	now   func() time.Time
}

// NewUserProvisioner creates a UserProvisioner. A trialQuota of zero selects
// the default allowance.
func NewUserProvisioner(
	db *sql.DB,
	newUsers UserStoreFactory,
	newSubs SubscriptionStoreFactory,
	trialQuota int,
	logger *slog.Logger,
) (*UserProvisioner, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if newUsers == nil {
		return nil, fmt.Errorf("user store factory cannot be nil")
	}
	if newSubs == nil {
		return nil, fmt.Errorf("subscription store factory cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if trialQuota == 0 {
		trialQuota = defaultTrialQuota
	}

	return &UserProvisioner{
		db:         db,
		newUsers:   newUsers,
		newSubs:    newSubs,
		trialQuota: trialQuota,
		logger:     logger.With(slog.String("component", "user_provisioner")),
		runTx:      store.RunInTransaction,
		now:        time.Now,
	}, nil
}

// Register creates a user for the given messaging-platform identity together
// with a trial subscription starting now. Returns store.ErrDuplicate if the
// external ID is already registered.
func (p *UserProvisioner) Register(
	ctx context.Context,
	externalID string,
) (*domain.User, *domain.Subscription, error) {
	user, err := domain.NewUser(externalID)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid user: %w", err)
	}

	sub, err := domain.NewSubscription(
		user.ID,
		domain.PlanKindTrial,
		p.trialQuota,
		p.now().UTC(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid subscription: %w", err)
	}

	err = p.runTx(ctx, p.db, func(ctx context.Context, tx *sql.Tx) error {
		if err := p.newUsers(tx).Create(ctx, user); err != nil {
			return fmt.Errorf("creating user: %w", err)
		}
		if err := p.newSubs(tx).Create(ctx, sub); err != nil {
			return fmt.Errorf("creating trial subscription: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	p.logger.Info("registered user",
		slog.String("user_id", user.ID.String()),
		slog.String("plan_kind", string(sub.PlanKind)),
		slog.Int("quota_total", sub.QuotaTotal))

	return user, sub, nil
}
