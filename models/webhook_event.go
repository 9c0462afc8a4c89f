package models

import "time"

// WebhookEvent stores one inbound provider notification with
// deduplication metadata. The (gateway, provider_event_id) pair is
// processed at most once; replays are acknowledged without effect.
// Rows are retained indefinitely for audit and replay debugging.
type WebhookEvent struct {
	ID              string     `bson:"id" json:"id"`
	Gateway         string     `bson:"gateway" json:"gateway"`
	ProviderEventID string     `bson:"provider_event_id" json:"provider_event_id"`
	EventType       string     `bson:"event_type" json:"event_type"`
	PayloadDigest   string     `bson:"payload_digest" json:"payload_digest"`
	Payload         []byte     `bson:"payload" json:"-"`
	ReceivedAt      time.Time  `bson:"received_at" json:"received_at"`
	Processed       bool       `bson:"processed" json:"processed"`
	ProcessedAt     *time.Time `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
	ProcessingError string     `bson:"processing_error,omitempty" json:"processing_error,omitempty"`
}
