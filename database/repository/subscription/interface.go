package subscriptionRepo

import (
	"context"
	"errors"
	"time"

	"tutorhive/models"
)

var (
	// ErrNotFound indicates no subscription or package matched the query.
	ErrNotFound = errors.New("subscription not found")
	// ErrAlreadyActive indicates the user already has an Active
	// subscription for the package.
	ErrAlreadyActive = errors.New("active subscription already exists")
)

// SubscriptionRepository persists package subscriptions and the
// package catalogue read model.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *models.Subscription) error
	GetByID(ctx context.Context, id string) (*models.Subscription, error)
	// GetActive returns the user's Active subscription for a package.
	GetActive(ctx context.Context, userID, packageID string) (*models.Subscription, error)
	// Transition moves the subscription between lifecycle states,
	// guarded by the expected predecessor states.
	Transition(ctx context.Context, id string, from []models.SubscriptionStatus, to models.SubscriptionStatus, at time.Time) (bool, error)
	// ExtendPeriod advances the current period end and records the
	// payment row that funded the cycle.
	ExtendPeriod(ctx context.Context, id string, periodEnd time.Time, paymentID string) error
	// ListDueForRenewal returns Active and PastDue subscriptions whose
	// period has lapsed, oldest first.
	ListDueForRenewal(ctx context.Context, now time.Time, limit int64) ([]models.Subscription, error)
	GetPackage(ctx context.Context, packageID string) (*models.Package, error)
}
