package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	subscriptionRepo "tutorhive/database/repository/subscription"
	"tutorhive/models"
	"tutorhive/services/payment"
	"tutorhive/utils"

	"go.uber.org/zap"
)

const outcomeLeaseTTL = 15 * time.Second

// DefaultSubscriptionService implements SubscriptionService.
type DefaultSubscriptionService struct {
	Repo          subscriptionRepo.SubscriptionRepository
	Payments      payment.Service
	Certificates  CertificateChecker
	Locker        utils.Locker
	Clock         utils.Clock
	IDs           utils.IDGenerator
	RenewalPeriod time.Duration
	Logger        *zap.Logger
}

// Subscribe creates the subscription in PastDue (payment outstanding)
// and opens the first cycle's charge. The captured-payment webhook
// activates it and starts the period.
func (s *DefaultSubscriptionService) Subscribe(ctx context.Context, userID, packageID, gateway string) (*models.Subscription, *models.Payment, error) {
	if existing, err := s.Repo.GetActive(ctx, userID, packageID); err == nil && existing != nil {
		return nil, nil, NewAlreadyActiveError("you already have an active subscription for this package")
	} else if err != nil && !errors.Is(err, subscriptionRepo.ErrNotFound) {
		return nil, nil, err
	}

	pkg, err := s.Repo.GetPackage(ctx, packageID)
	if err != nil {
		if errors.Is(err, subscriptionRepo.ErrNotFound) {
			return nil, nil, NewNotFoundError("package does not exist")
		}
		return nil, nil, err
	}

	now := s.Clock.Now()
	sub := &models.Subscription{
		ID:               s.IDs.NewID(),
		UserID:           userID,
		PackageID:        packageID,
		Gateway:          gateway,
		Status:           models.SubscriptionPastDue,
		CurrentPeriodEnd: now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.Repo.Create(ctx, sub); err != nil {
		if errors.Is(err, subscriptionRepo.ErrAlreadyActive) {
			return nil, nil, NewAlreadyActiveError("you already have an active subscription for this package")
		}
		return nil, nil, err
	}

	pay, err := s.openCycleCharge(ctx, sub, pkg)
	if err != nil {
		return nil, nil, err
	}

	s.Logger.Info("subscription created",
		zap.String("subscriptionId", sub.ID),
		zap.String("userId", userID),
		zap.String("packageId", packageID))
	return sub, pay, nil
}

func (s *DefaultSubscriptionService) openCycleCharge(ctx context.Context, sub *models.Subscription, pkg *models.Package) (*models.Payment, error) {
	description := fmt.Sprintf("%s package, %d sessions", pkg.Name, pkg.SessionsPerPeriod)
	pay, _, err := s.Payments.Initiate(ctx, models.PaymentOwnerSubscription, sub.ID, sub.Gateway, pkg.Price, pkg.Currency, description)
	if err != nil {
		return nil, err
	}
	return pay, nil
}

func (s *DefaultSubscriptionService) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	sub, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, subscriptionRepo.ErrNotFound) {
			return nil, NewNotFoundError("subscription does not exist")
		}
		return nil, err
	}
	return sub, nil
}

func (s *DefaultSubscriptionService) CancelSubscription(ctx context.Context, subscriptionID, actorID string) error {
	return s.withSubLease(ctx, subscriptionID, func() error {
		sub, err := s.GetSubscription(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if actorID != "" && sub.UserID != actorID {
			return NewNotAuthorizedError("subscription belongs to another user")
		}
		applied, err := s.Repo.Transition(ctx, sub.ID,
			[]models.SubscriptionStatus{models.SubscriptionActive, models.SubscriptionPastDue},
			models.SubscriptionCancelled, s.Clock.Now())
		if err != nil {
			return err
		}
		if !applied {
			if sub.Status == models.SubscriptionCancelled {
				return nil
			}
			return NewInvalidStateError(fmt.Sprintf("subscription is %s and cannot be cancelled", sub.Status))
		}
		s.Logger.Info("subscription cancelled", zap.String("subscriptionId", sub.ID))
		return nil
	})
}

// Renew opens a charge for the next period. The period only advances
// when the payment captures.
func (s *DefaultSubscriptionService) Renew(ctx context.Context, subscriptionID string) (*models.Payment, error) {
	sub, err := s.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.SubscriptionActive && sub.Status != models.SubscriptionPastDue {
		return nil, NewInvalidStateError(fmt.Sprintf("subscription is %s and cannot be renewed", sub.Status))
	}
	pkg, err := s.Repo.GetPackage(ctx, sub.PackageID)
	if err != nil {
		return nil, err
	}
	return s.openCycleCharge(ctx, sub, pkg)
}

// RenewDue recharges lapsed subscriptions. A PastDue subscription
// whose period lapsed more than one full renewal period ago has
// exhausted its grace and is expired instead.
func (s *DefaultSubscriptionService) RenewDue(ctx context.Context, limit int64) (int, error) {
	now := s.Clock.Now()
	due, err := s.Repo.ListDueForRenewal(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	renewed := 0
	for i := range due {
		sub := &due[i]
		if sub.Status == models.SubscriptionPastDue && now.Sub(sub.CurrentPeriodEnd) > s.RenewalPeriod {
			applied, terr := s.Repo.Transition(ctx, sub.ID,
				[]models.SubscriptionStatus{models.SubscriptionPastDue}, models.SubscriptionExpired, now)
			if terr != nil {
				s.Logger.Error("failed to expire subscription", zap.String("subscriptionId", sub.ID), zap.Error(terr))
			} else if applied {
				s.Logger.Info("subscription expired", zap.String("subscriptionId", sub.ID))
			}
			continue
		}
		if _, rerr := s.Renew(ctx, sub.ID); rerr != nil {
			s.Logger.Warn("renewal charge failed to open",
				zap.String("subscriptionId", sub.ID), zap.Error(rerr))
			if _, terr := s.Repo.Transition(ctx, sub.ID,
				[]models.SubscriptionStatus{models.SubscriptionActive}, models.SubscriptionPastDue, now); terr != nil {
				s.Logger.Error("failed to mark subscription past due", zap.String("subscriptionId", sub.ID), zap.Error(terr))
			}
			continue
		}
		renewed++
	}
	if len(due) > 0 {
		s.Logger.Info("subscription renewal sweep", zap.Int("due", len(due)), zap.Int("renewed", renewed))
	}
	return renewed, nil
}

// OnPaymentOutcome applies a cycle payment's result under a
// per-subscription lease. A captured payment advances the period and
// activates the subscription; a failed one marks it past due.
func (s *DefaultSubscriptionService) OnPaymentOutcome(ctx context.Context, subscriptionID string, event *models.NormalizedEvent) error {
	return s.withSubLease(ctx, subscriptionID, func() error {
		sub, err := s.GetSubscription(ctx, subscriptionID)
		if err != nil {
			return err
		}

		switch event.Status {
		case models.PaymentCaptured:
			if sub.Status == models.SubscriptionCancelled || sub.Status == models.SubscriptionExpired {
				return nil
			}
			for _, pid := range sub.PaymentIDs {
				if pid == event.PaymentID {
					// Replay of a cycle already credited.
					return nil
				}
			}
			base := sub.CurrentPeriodEnd
			now := s.Clock.Now()
			if base.Before(now) {
				base = now
			}
			if err := s.Repo.ExtendPeriod(ctx, sub.ID, base.Add(s.RenewalPeriod), event.PaymentID); err != nil {
				return err
			}
			if _, err := s.Repo.Transition(ctx, sub.ID,
				[]models.SubscriptionStatus{models.SubscriptionPastDue}, models.SubscriptionActive, now); err != nil {
				return err
			}
			s.Logger.Info("subscription cycle captured",
				zap.String("subscriptionId", sub.ID),
				zap.String("paymentId", event.PaymentID))
			return nil
		case models.PaymentFailed, models.PaymentCancelled:
			applied, err := s.Repo.Transition(ctx, sub.ID,
				[]models.SubscriptionStatus{models.SubscriptionActive}, models.SubscriptionPastDue, s.Clock.Now())
			if err != nil {
				return err
			}
			if applied {
				s.Logger.Info("subscription past due", zap.String("subscriptionId", sub.ID))
			}
			return nil
		default:
			return nil
		}
	})
}

// CheckEligibility reports whether the user can claim a membership
// certificate for the package. Read-only; never mutates state.
func (s *DefaultSubscriptionService) CheckEligibility(ctx context.Context, userID, packageID string) (*models.EligibilityResponse, error) {
	sub, err := s.Repo.GetActive(ctx, userID, packageID)
	if err != nil {
		if errors.Is(err, subscriptionRepo.ErrNotFound) {
			return &models.EligibilityResponse{Eligible: false, Reason: "no active subscription for this package"}, nil
		}
		return nil, err
	}
	if sub.CurrentPeriodEnd.Before(s.Clock.Now()) {
		return &models.EligibilityResponse{Eligible: false, Reason: "subscription period has lapsed"}, nil
	}

	if s.Certificates != nil {
		ok, err := s.Certificates.HasValidCertificate(ctx, userID)
		if err != nil {
			return nil, err
		}
		if ok {
			return &models.EligibilityResponse{Eligible: false, Reason: "a valid certificate was already issued"}, nil
		}
	}
	return &models.EligibilityResponse{Eligible: true}, nil
}

func (s *DefaultSubscriptionService) withSubLease(ctx context.Context, subscriptionID string, fn func() error) error {
	return s.Locker.WithLease(ctx, "subscription:"+subscriptionID, outcomeLeaseTTL, fn)
}
