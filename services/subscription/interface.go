package subscription

import (
	"context"

	"tutorhive/models"
)

// CertificateChecker is the external collaborator consulted for
// membership-certificate eligibility. Its internals live outside this
// service; only the yes/no answer matters here.
type CertificateChecker interface {
	HasValidCertificate(ctx context.Context, userID string) (bool, error)
}

// SubscriptionService drives the recurring variant of the payment
// state machine:
//
//	PastDue → Active        (cycle payment captured)
//	Active  → PastDue       (renewal payment failed or period lapsed)
//	Active|PastDue → Cancelled (user stops renewals, period honored)
//	PastDue → Expired       (grace period exhausted)
//
// Every billing cycle produces a fresh Payment row; the subscription
// keeps the full payment history.
type SubscriptionService interface {
	// Subscribe opens a subscription and initiates the first cycle's
	// payment. The subscription activates when that payment captures.
	Subscribe(ctx context.Context, userID, packageID, gateway string) (*models.Subscription, *models.Payment, error)
	GetSubscription(ctx context.Context, id string) (*models.Subscription, error)
	// CancelSubscription stops future renewals. The current period
	// stays usable until it lapses.
	CancelSubscription(ctx context.Context, subscriptionID, actorID string) error
	// Renew charges one subscription for its next period.
	Renew(ctx context.Context, subscriptionID string) (*models.Payment, error)
	// RenewDue sweeps lapsed subscriptions: recharges Active and
	// PastDue ones still within grace, expires the rest. Returns how
	// many renewal charges were opened.
	RenewDue(ctx context.Context, limit int64) (int, error)
	// OnPaymentOutcome applies a normalized payment event to the
	// subscription owning it. Idempotent under replays.
	OnPaymentOutcome(ctx context.Context, subscriptionID string, event *models.NormalizedEvent) error
	// CheckEligibility is a read-only query against the user's current
	// subscription and certificate state.
	CheckEligibility(ctx context.Context, userID, packageID string) (*models.EligibilityResponse, error)
}
