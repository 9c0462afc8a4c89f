package webhookRepo

import (
	"context"
	"errors"
	"time"

	"tutorhive/models"
)

var (
	// ErrNotFound indicates no webhook event matched the query.
	ErrNotFound = errors.New("webhook event not found")
	// ErrDuplicate indicates an event with the same
	// (gateway, provider_event_id) was already recorded.
	ErrDuplicate = errors.New("webhook event already recorded")
)

// WebhookRepository stores inbound provider notifications. Events are
// inserted unprocessed before any domain work happens and only marked
// processed once the corresponding transition was durably applied, so
// a crash in between is recoverable by the reconciliation sweep.
type WebhookRepository interface {
	// Insert records a new unprocessed event. ErrDuplicate when the
	// (gateway, provider_event_id) pair already exists.
	Insert(ctx context.Context, event *models.WebhookEvent) error
	Get(ctx context.Context, gateway, providerEventID string) (*models.WebhookEvent, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
	// RecordError notes the most recent processing failure without
	// marking the event processed.
	RecordError(ctx context.Context, id, message string) error
	// ListUnprocessed returns events received before the cutoff that
	// still await processing, oldest first.
	ListUnprocessed(ctx context.Context, before time.Time, limit int64) ([]models.WebhookEvent, error)
}
