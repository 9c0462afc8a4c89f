package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"tutorhive/models"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/refund"
	"github.com/stripe/stripe-go/v76/webhook"
)

// GatewayStripe is the registry name of the Stripe adapter.
const GatewayStripe = "stripe"

// ErrUnhandledEvent marks a provider event type the adapter does not
// map; the reconciliation engine acknowledges these without effect.
var ErrUnhandledEvent = errors.New("unhandled provider event type")

// StripeAdapter implements GatewayAdapter on Stripe PaymentIntents.
// The API key is set process-wide (stripe.Key) at startup.
type StripeAdapter struct {
	WebhookSecret string
	ManualCapture bool
}

func NewStripeAdapter(webhookSecret string, manualCapture bool) *StripeAdapter {
	return &StripeAdapter{WebhookSecret: webhookSecret, ManualCapture: manualCapture}
}

func (a *StripeAdapter) Name() string { return GatewayStripe }

// Initiate opens a PaymentIntent carrying our payment id in metadata and
// the idempotency key on the request itself.
func (a *StripeAdapter) Initiate(ctx context.Context, intent ChargeIntent) (*InitiateResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(toMinorUnits(intent.Amount)),
		Currency:    stripe.String(intent.Currency),
		Description: stripe.String(intent.Description),
	}
	params.Context = ctx
	params.SetIdempotencyKey(intent.IdempotencyKey)
	params.AddMetadata("payment_id", intent.PaymentID)
	for k, v := range intent.Metadata {
		params.AddMetadata(k, v)
	}
	if a.ManualCapture {
		params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, wrapStripeErr(err)
	}

	return &InitiateResult{
		GatewayRef:   pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       mapIntentStatus(pi.Status),
	}, nil
}

// Capture settles a manually-captured PaymentIntent.
func (a *StripeAdapter) Capture(ctx context.Context, gatewayRef string) (models.PaymentStatus, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx

	pi, err := paymentintent.Capture(gatewayRef, params)
	if err != nil {
		return "", wrapStripeErr(err)
	}
	return mapIntentStatus(pi.Status), nil
}

// Refund returns funds on a captured PaymentIntent.
func (a *StripeAdapter) Refund(ctx context.Context, gatewayRef string, amount float64, currency string) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(gatewayRef),
	}
	params.Context = ctx
	if amount > 0 {
		params.Amount = stripe.Int64(toMinorUnits(amount))
	}

	if _, err := refund.New(params); err != nil {
		return wrapStripeErr(err)
	}
	return nil
}

// Fetch reads the provider's current view of the charge.
func (a *StripeAdapter) Fetch(ctx context.Context, gatewayRef string) (*models.NormalizedEvent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(gatewayRef, params)
	if err != nil {
		return nil, wrapStripeErr(err)
	}
	return &models.NormalizedEvent{
		Gateway:    GatewayStripe,
		Status:     mapIntentStatus(pi.Status),
		GatewayRef: pi.ID,
		PaymentID:  pi.Metadata["payment_id"],
		Amount:     fromMinorUnits(pi.Amount),
		Currency:   string(pi.Currency),
		OccurredAt: time.Now().UTC(),
	}, nil
}

// VerifyWebhookSignature checks the Stripe-Signature header against the
// endpoint secret.
func (a *StripeAdapter) VerifyWebhookSignature(payload []byte, headers http.Header) error {
	if _, err := webhook.ConstructEvent(payload, headers.Get("Stripe-Signature"), a.WebhookSecret); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

// ParseWebhook maps Stripe event types onto the normalized vocabulary.
func (a *StripeAdapter) ParseWebhook(payload []byte) (*models.NormalizedEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("malformed stripe event: %w", err)
	}

	norm := &models.NormalizedEvent{
		Gateway:         GatewayStripe,
		ProviderEventID: event.ID,
		OccurredAt:      time.Unix(event.Created, 0).UTC(),
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.amount_capturable_updated",
		"payment_intent.payment_failed", "payment_intent.canceled":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("malformed payment_intent payload: %w", err)
		}
		norm.GatewayRef = pi.ID
		norm.PaymentID = pi.Metadata["payment_id"]
		norm.Amount = fromMinorUnits(pi.Amount)
		norm.Currency = string(pi.Currency)
		switch event.Type {
		case "payment_intent.succeeded":
			norm.Status = models.PaymentCaptured
		case "payment_intent.amount_capturable_updated":
			norm.Status = models.PaymentAuthorized
		case "payment_intent.payment_failed":
			norm.Status = models.PaymentFailed
			if pi.LastPaymentError != nil {
				norm.FailureReason = pi.LastPaymentError.Msg
			}
		case "payment_intent.canceled":
			norm.Status = models.PaymentCancelled
		}
		return norm, nil

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("malformed charge payload: %w", err)
		}
		if ch.PaymentIntent != nil {
			norm.GatewayRef = ch.PaymentIntent.ID
		}
		norm.PaymentID = ch.Metadata["payment_id"]
		norm.Amount = fromMinorUnits(ch.AmountRefunded)
		norm.Currency = string(ch.Currency)
		norm.Status = models.PaymentRefunded
		return norm, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnhandledEvent, event.Type)
}

func mapIntentStatus(status stripe.PaymentIntentStatus) models.PaymentStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return models.PaymentCaptured
	case stripe.PaymentIntentStatusRequiresCapture:
		return models.PaymentAuthorized
	case stripe.PaymentIntentStatusCanceled:
		return models.PaymentCancelled
	default:
		return models.PaymentInitiated
	}
}

// wrapStripeErr classifies provider failures: 5xx and transport errors
// are transient, everything else is final.
func wrapStripeErr(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= 500 {
			return &TransientError{Err: err}
		}
		return err
	}
	// No structured provider error: treat as a transport failure.
	return &TransientError{Err: err}
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromMinorUnits(amount int64) float64 {
	return float64(amount) / 100
}
