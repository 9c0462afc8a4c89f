package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	webhookRepo "tutorhive/database/repository/webhook"
	"tutorhive/models"
	"tutorhive/services/payment"
	"tutorhive/utils"

	"go.uber.org/zap"
)

// OutcomeHandler receives the normalized result of a payment for the
// domain object that owns it. Implementations must be idempotent.
type OutcomeHandler interface {
	OnPaymentOutcome(ctx context.Context, ownerID string, event *models.NormalizedEvent) error
}

// Engine ingests provider webhooks: verify, dedupe, persist, then
// dispatch to the owning domain service. An event is marked processed
// only after the domain transition was durably applied, so a crash
// mid-flight leaves it for the reconciliation sweep.
type Engine interface {
	// HandleWebhook processes one raw inbound notification.
	HandleWebhook(ctx context.Context, gateway string, payload []byte, headers http.Header) error
	// Dispatch applies an already-verified normalized event to the
	// payment and its owner. The synchronous redirect handlers feed
	// gateway-fetched state through here.
	Dispatch(ctx context.Context, event *models.NormalizedEvent) error
	// ReprocessUnprocessed retries events that were recorded but never
	// finished processing. Returns how many were retried.
	ReprocessUnprocessed(ctx context.Context, olderThan time.Duration, limit int64) (int, error)
}

// DefaultEngine implements Engine.
type DefaultEngine struct {
	Repo     webhookRepo.WebhookRepository
	Payments payment.Service
	Handlers map[string]OutcomeHandler
	Clock    utils.Clock
	IDs      utils.IDGenerator
	Logger   *zap.Logger
}

func (e *DefaultEngine) HandleWebhook(ctx context.Context, gateway string, payload []byte, headers http.Header) error {
	adapter, ok := e.Payments.Gateways().Get(gateway)
	if !ok {
		return payment.ErrUnknownGateway
	}

	if err := adapter.VerifyWebhookSignature(payload, headers); err != nil {
		e.Logger.Warn("webhook signature rejected",
			zap.String("gateway", gateway), zap.Error(err))
		return NewBadSignatureError("signature verification failed")
	}

	event, err := adapter.ParseWebhook(payload)
	if err != nil {
		if errors.Is(err, payment.ErrUnhandledEvent) {
			// Verified but irrelevant event types are acknowledged so
			// the provider stops retrying them.
			e.Logger.Debug("ignoring unhandled webhook event type",
				zap.String("gateway", gateway))
			return nil
		}
		return NewBadPayloadError(err.Error())
	}

	digest := sha256.Sum256(payload)
	record := &models.WebhookEvent{
		ID:              e.IDs.NewID(),
		Gateway:         gateway,
		ProviderEventID: event.ProviderEventID,
		EventType:       string(event.Status),
		PayloadDigest:   hex.EncodeToString(digest[:]),
		Payload:         payload,
		ReceivedAt:      e.Clock.Now(),
	}
	if err := e.Repo.Insert(ctx, record); err != nil {
		if errors.Is(err, webhookRepo.ErrDuplicate) {
			return e.handleRedelivery(ctx, gateway, event)
		}
		return err
	}

	if err := e.Dispatch(ctx, event); err != nil {
		if rerr := e.Repo.RecordError(ctx, record.ID, err.Error()); rerr != nil {
			e.Logger.Error("failed to record webhook processing error",
				zap.String("eventId", record.ID), zap.Error(rerr))
		}
		return err
	}
	return e.Repo.MarkProcessed(ctx, record.ID, e.Clock.Now())
}

// handleRedelivery resolves a provider redelivery of an event already
// on record. A processed record means the work is done and the
// redelivery is acknowledged. An unprocessed record means the first
// delivery failed mid-dispatch; the redelivery is the provider's own
// retry, so the dispatch runs again here instead of being deferred to
// the reconciliation sweep.
func (e *DefaultEngine) handleRedelivery(ctx context.Context, gateway string, event *models.NormalizedEvent) error {
	record, err := e.Repo.Get(ctx, gateway, event.ProviderEventID)
	if err != nil {
		return err
	}
	if record.Processed {
		e.Logger.Debug("duplicate webhook event acknowledged",
			zap.String("gateway", gateway),
			zap.String("providerEventId", event.ProviderEventID))
		return nil
	}

	if err := e.Dispatch(ctx, event); err != nil {
		if rerr := e.Repo.RecordError(ctx, record.ID, err.Error()); rerr != nil {
			e.Logger.Error("failed to record webhook processing error",
				zap.String("eventId", record.ID), zap.Error(rerr))
		}
		return err
	}
	return e.Repo.MarkProcessed(ctx, record.ID, e.Clock.Now())
}

// Dispatch transitions the Payment row and forwards the event to the
// service owning it. Both sides are idempotent, so redoing a half
// finished dispatch is safe.
func (e *DefaultEngine) Dispatch(ctx context.Context, event *models.NormalizedEvent) error {
	pay, applied, err := e.Payments.Apply(ctx, event)
	if err != nil {
		return err
	}
	if !applied {
		e.Logger.Debug("payment already at or past event status",
			zap.String("paymentId", pay.ID),
			zap.String("status", string(event.Status)))
	}

	handler, ok := e.Handlers[pay.OwnerType]
	if !ok {
		return NewUnknownOwnerError(fmt.Sprintf("no handler for owner type %q", pay.OwnerType))
	}
	if event.PaymentID == "" {
		event.PaymentID = pay.ID
	}
	return handler.OnPaymentOutcome(ctx, pay.OwnerID, event)
}

func (e *DefaultEngine) ReprocessUnprocessed(ctx context.Context, olderThan time.Duration, limit int64) (int, error) {
	cutoff := e.Clock.Now().Add(-olderThan)
	events, err := e.Repo.ListUnprocessed(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}

	retried := 0
	for i := range events {
		record := &events[i]
		adapter, ok := e.Payments.Gateways().Get(record.Gateway)
		if !ok {
			e.Logger.Error("stored webhook references unknown gateway",
				zap.String("eventId", record.ID), zap.String("gateway", record.Gateway))
			continue
		}
		event, perr := adapter.ParseWebhook(record.Payload)
		if perr != nil {
			// Parse failures will never succeed on retry; mark
			// processed with the error noted so the sweep moves on.
			if rerr := e.Repo.RecordError(ctx, record.ID, perr.Error()); rerr != nil {
				e.Logger.Error("failed to record parse error", zap.String("eventId", record.ID), zap.Error(rerr))
				continue
			}
			if merr := e.Repo.MarkProcessed(ctx, record.ID, e.Clock.Now()); merr != nil {
				e.Logger.Error("failed to mark unparseable event", zap.String("eventId", record.ID), zap.Error(merr))
			}
			continue
		}
		retried++
		if derr := e.Dispatch(ctx, event); derr != nil {
			e.Logger.Warn("webhook reprocess failed",
				zap.String("eventId", record.ID), zap.Error(derr))
			if rerr := e.Repo.RecordError(ctx, record.ID, derr.Error()); rerr != nil {
				e.Logger.Error("failed to record reprocess error", zap.String("eventId", record.ID), zap.Error(rerr))
			}
			continue
		}
		if merr := e.Repo.MarkProcessed(ctx, record.ID, e.Clock.Now()); merr != nil {
			e.Logger.Error("failed to mark reprocessed event", zap.String("eventId", record.ID), zap.Error(merr))
		}
	}
	if retried > 0 {
		e.Logger.Info("webhook reconciliation sweep", zap.Int("retried", retried), zap.Int("scanned", len(events)))
	}
	return retried, nil
}
