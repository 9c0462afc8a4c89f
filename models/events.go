package models

import "time"

// NormalizedEvent is the gateway-agnostic shape every provider
// response and webhook is mapped onto before it reaches the booking or
// subscription lifecycle. ProviderEventID is the provider's own event
// identifier and drives webhook deduplication.
type NormalizedEvent struct {
	Gateway         string        `json:"gateway"`
	ProviderEventID string        `json:"provider_event_id"`
	Status          PaymentStatus `json:"status"`
	GatewayRef      string        `json:"gateway_ref"` // provider transaction reference
	PaymentID       string        `json:"payment_id"`  // our payment id, carried in provider metadata
	Amount          float64       `json:"amount"`
	Currency        string        `json:"currency"`
	OccurredAt      time.Time     `json:"occurred_at"`
	FailureReason   string        `json:"failure_reason,omitempty"`
}
