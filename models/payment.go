package models

import "time"

// PaymentStatus is the normalized, gateway-agnostic payment state.
type PaymentStatus string

const (
	PaymentInitiated  PaymentStatus = "initiated"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentCaptured   PaymentStatus = "captured"
	PaymentFailed     PaymentStatus = "failed"
	PaymentCancelled  PaymentStatus = "cancelled"
	PaymentRefunded   PaymentStatus = "refunded"
)

// paymentRank orders the status lattice. A payment only moves to a
// strictly higher rank; terminal-negative and terminal-positive states
// share ranks so Captured can never fall back to Authorized.
var paymentRank = map[PaymentStatus]int{
	PaymentInitiated:  0,
	PaymentAuthorized: 1,
	PaymentCaptured:   2,
	PaymentFailed:     2,
	PaymentCancelled:  2,
	PaymentRefunded:   3,
}

// CanTransition reports whether a payment in status from may move to to.
// Refunded is only reachable from Captured.
func (from PaymentStatus) CanTransition(to PaymentStatus) bool {
	if to == PaymentRefunded {
		return from == PaymentCaptured
	}
	return paymentRank[to] > paymentRank[from]
}

// OwnerType distinguishes what a payment collects money for.
const (
	PaymentOwnerBooking      = "booking"
	PaymentOwnerSubscription = "subscription"
)

// Payment represents one attempt to collect money for a booking or a
// subscription renewal. A retried charge creates a new Payment row.
type Payment struct {
	ID             string        `bson:"id" json:"id"`
	OwnerType      string        `bson:"owner_type" json:"owner_type"`
	OwnerID        string        `bson:"owner_id" json:"owner_id"`
	Gateway        string        `bson:"gateway" json:"gateway"`
	GatewayRef     string        `bson:"gateway_ref,omitempty" json:"gateway_ref,omitempty"` // provider transaction reference, unique once assigned
	Amount         float64       `bson:"amount" json:"amount"`
	Currency       string        `bson:"currency" json:"currency"`
	Status         PaymentStatus `bson:"status" json:"status"`
	IdempotencyKey string        `bson:"idempotency_key" json:"idempotency_key"`
	RedirectURL    string        `bson:"redirect_url,omitempty" json:"redirect_url,omitempty"`
	FailureReason  string        `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	CreatedAt      time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `bson:"updated_at" json:"updated_at"`
}

// InitiatePaymentRequest defines the payload for starting a charge.
type InitiatePaymentRequest struct {
	Gateway string `json:"gateway" binding:"required"`
}

// RefundPaymentRequest defines the payload for a refund; a zero amount
// refunds the full captured amount.
type RefundPaymentRequest struct {
	Amount float64 `json:"amount"`
}
