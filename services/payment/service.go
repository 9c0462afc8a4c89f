package payment

import (
	"context"
	"errors"
	"fmt"

	paymentRepo "tutorhive/database/repository/payment"
	"tutorhive/models"
	"tutorhive/utils"

	"go.uber.org/zap"
)

// Service owns Payment rows and the forward-only status lattice. All
// row mutations flow through Apply; a retried charge gets a fresh row.
type Service interface {
	// Initiate creates a Payment row and opens the charge with the
	// named gateway, tagging the outbound call with the row's
	// idempotency key.
	Initiate(ctx context.Context, ownerType, ownerID, gateway string, amount float64, currency, description string) (*models.Payment, *InitiateResult, error)
	Get(ctx context.Context, paymentID string) (*models.Payment, error)
	// Capture settles an authorized payment and returns the resulting
	// normalized event for dispatch.
	Capture(ctx context.Context, paymentID string) (*models.NormalizedEvent, error)
	// Refund reverses a captured payment; zero amount refunds in full.
	Refund(ctx context.Context, paymentID string, amount float64) (*models.NormalizedEvent, error)
	// Sync reads the gateway's authoritative view of the payment. The
	// synchronous redirect handlers go through here instead of trusting
	// anything carried on the redirect itself.
	Sync(ctx context.Context, paymentID string) (*models.NormalizedEvent, error)
	// Apply transitions the Payment row per the event. Returns the row
	// and whether the transition actually applied (false on replays).
	Apply(ctx context.Context, event *models.NormalizedEvent) (*models.Payment, bool, error)
	// Resolve locates the Payment a normalized event refers to.
	Resolve(ctx context.Context, event *models.NormalizedEvent) (*models.Payment, error)
	// Gateways exposes the adapter registry.
	Gateways() *Registry
}

// DefaultPaymentService implements Service.
type DefaultPaymentService struct {
	Repo       paymentRepo.PaymentRepository
	Registry   *Registry
	Clock      utils.Clock
	IDs        utils.IDGenerator
	MaxRetries int
	BaseURL    string
	Logger     *zap.Logger
}

func (s *DefaultPaymentService) Gateways() *Registry { return s.Registry }

func (s *DefaultPaymentService) Initiate(ctx context.Context, ownerType, ownerID, gateway string, amount float64, currency, description string) (*models.Payment, *InitiateResult, error) {
	adapter, ok := s.Registry.Get(gateway)
	if !ok {
		return nil, nil, ErrUnknownGateway
	}

	now := s.Clock.Now()
	pay := &models.Payment{
		ID:             s.IDs.NewID(),
		OwnerType:      ownerType,
		OwnerID:        ownerID,
		Gateway:        gateway,
		Amount:         amount,
		Currency:       currency,
		Status:         models.PaymentInitiated,
		IdempotencyKey: s.IDs.NewID(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	// The row exists before the provider call so the idempotency key
	// survives a crash between the two.
	if err := s.Repo.Create(ctx, pay); err != nil {
		return nil, nil, err
	}

	intent := ChargeIntent{
		PaymentID:      pay.ID,
		Amount:         amount,
		Currency:       currency,
		Description:    description,
		IdempotencyKey: pay.IdempotencyKey,
		SuccessURL:     fmt.Sprintf("%s/api/payment/%s/success", s.BaseURL, pay.ID),
		CancelURL:      fmt.Sprintf("%s/api/payment/%s/cancel", s.BaseURL, pay.ID),
		FailureURL:     fmt.Sprintf("%s/api/payment/%s/failure", s.BaseURL, pay.ID),
		Metadata:       map[string]string{"owner_type": ownerType, "owner_id": ownerID},
	}

	var result *InitiateResult
	err := withRetry(ctx, s.Logger, s.MaxRetries, "initiate", func() error {
		var ierr error
		result, ierr = adapter.Initiate(ctx, intent)
		return ierr
	})
	if err != nil {
		if _, ferr := s.Repo.Transition(ctx, pay.ID,
			[]models.PaymentStatus{models.PaymentInitiated}, models.PaymentFailed, err.Error()); ferr != nil {
			s.Logger.Error("failed to mark payment failed after initiate error",
				zap.String("paymentId", pay.ID), zap.Error(ferr))
		}
		return nil, nil, fmt.Errorf("gateway initiate failed: %w", err)
	}

	if err := s.Repo.AssignGatewayRef(ctx, pay.ID, result.GatewayRef, result.RedirectURL); err != nil {
		return nil, nil, err
	}
	pay.GatewayRef = result.GatewayRef
	pay.RedirectURL = result.RedirectURL

	s.Logger.Info("payment initiated",
		zap.String("paymentId", pay.ID),
		zap.String("gateway", gateway),
		zap.String("gatewayRef", result.GatewayRef))
	return pay, result, nil
}

func (s *DefaultPaymentService) Get(ctx context.Context, paymentID string) (*models.Payment, error) {
	pay, err := s.Repo.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, paymentRepo.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return pay, nil
}

func (s *DefaultPaymentService) Capture(ctx context.Context, paymentID string) (*models.NormalizedEvent, error) {
	pay, err := s.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	adapter, ok := s.Registry.Get(pay.Gateway)
	if !ok {
		return nil, ErrUnknownGateway
	}

	var status models.PaymentStatus
	err = withRetry(ctx, s.Logger, s.MaxRetries, "capture", func() error {
		var cerr error
		status, cerr = adapter.Capture(ctx, pay.GatewayRef)
		return cerr
	})
	if err != nil {
		return nil, fmt.Errorf("gateway capture failed: %w", err)
	}

	return &models.NormalizedEvent{
		Gateway:    pay.Gateway,
		Status:     status,
		GatewayRef: pay.GatewayRef,
		PaymentID:  pay.ID,
		Amount:     pay.Amount,
		Currency:   pay.Currency,
		OccurredAt: s.Clock.Now(),
	}, nil
}

func (s *DefaultPaymentService) Refund(ctx context.Context, paymentID string, amount float64) (*models.NormalizedEvent, error) {
	pay, err := s.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if pay.Status != models.PaymentCaptured {
		return nil, fmt.Errorf("payment %s is %s, only captured payments can be refunded", pay.ID, pay.Status)
	}
	adapter, ok := s.Registry.Get(pay.Gateway)
	if !ok {
		return nil, ErrUnknownGateway
	}

	err = withRetry(ctx, s.Logger, s.MaxRetries, "refund", func() error {
		return adapter.Refund(ctx, pay.GatewayRef, amount, pay.Currency)
	})
	if err != nil {
		return nil, fmt.Errorf("gateway refund failed: %w", err)
	}

	refunded := amount
	if refunded == 0 {
		refunded = pay.Amount
	}
	return &models.NormalizedEvent{
		Gateway:    pay.Gateway,
		Status:     models.PaymentRefunded,
		GatewayRef: pay.GatewayRef,
		PaymentID:  pay.ID,
		Amount:     refunded,
		Currency:   pay.Currency,
		OccurredAt: s.Clock.Now(),
	}, nil
}

func (s *DefaultPaymentService) Sync(ctx context.Context, paymentID string) (*models.NormalizedEvent, error) {
	pay, err := s.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if pay.GatewayRef == "" {
		return nil, fmt.Errorf("payment %s has no gateway reference yet", pay.ID)
	}
	adapter, ok := s.Registry.Get(pay.Gateway)
	if !ok {
		return nil, ErrUnknownGateway
	}

	var event *models.NormalizedEvent
	err = withRetry(ctx, s.Logger, s.MaxRetries, "fetch", func() error {
		var ferr error
		event, ferr = adapter.Fetch(ctx, pay.GatewayRef)
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("gateway fetch failed: %w", err)
	}
	if event.PaymentID == "" {
		event.PaymentID = pay.ID
	}
	return event, nil
}

// transitionSources lists the predecessor states each target is
// reachable from, derived from the status lattice; anything else is a
// replay or an out-of-order event and leaves the row untouched.
// Initiated has no predecessors and gets no entry.
var transitionSources = buildTransitionSources()

func buildTransitionSources() map[models.PaymentStatus][]models.PaymentStatus {
	statuses := []models.PaymentStatus{
		models.PaymentInitiated,
		models.PaymentAuthorized,
		models.PaymentCaptured,
		models.PaymentFailed,
		models.PaymentCancelled,
		models.PaymentRefunded,
	}
	sources := make(map[models.PaymentStatus][]models.PaymentStatus)
	for _, to := range statuses {
		for _, from := range statuses {
			if from.CanTransition(to) {
				sources[to] = append(sources[to], from)
			}
		}
	}
	return sources
}

func (s *DefaultPaymentService) Apply(ctx context.Context, event *models.NormalizedEvent) (*models.Payment, bool, error) {
	pay, err := s.Resolve(ctx, event)
	if err != nil {
		return nil, false, err
	}

	// Late-binding of the provider reference: some gateways only hand
	// it over on the first webhook.
	if pay.GatewayRef == "" && event.GatewayRef != "" {
		if err := s.Repo.AssignGatewayRef(ctx, pay.ID, event.GatewayRef, ""); err != nil {
			return nil, false, err
		}
		pay.GatewayRef = event.GatewayRef
	}

	from, ok := transitionSources[event.Status]
	if !ok {
		// Initiated events carry no transition.
		return pay, false, nil
	}

	applied, err := s.Repo.Transition(ctx, pay.ID, from, event.Status, event.FailureReason)
	if err != nil {
		return nil, false, err
	}
	if applied {
		pay.Status = event.Status
		s.Logger.Info("payment transitioned",
			zap.String("paymentId", pay.ID),
			zap.String("status", string(event.Status)))
	}
	return pay, applied, nil
}

func (s *DefaultPaymentService) Resolve(ctx context.Context, event *models.NormalizedEvent) (*models.Payment, error) {
	if event.PaymentID != "" {
		pay, err := s.Repo.GetByID(ctx, event.PaymentID)
		if err == nil {
			return pay, nil
		}
		if !errors.Is(err, paymentRepo.ErrNotFound) {
			return nil, err
		}
	}
	if event.GatewayRef != "" {
		pay, err := s.Repo.GetByGatewayRef(ctx, event.Gateway, event.GatewayRef)
		if err == nil {
			return pay, nil
		}
		if !errors.Is(err, paymentRepo.ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrPaymentNotFound
}
