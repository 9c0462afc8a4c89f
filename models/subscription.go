package models

import "time"

// SubscriptionStatus is the lifecycle state of a package subscription.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// Package is a purchasable tutoring bundle billed on a recurring cadence.
type Package struct {
	ID                string  `bson:"id" json:"id"`
	Name              string  `bson:"name" json:"name"`
	Price             float64 `bson:"price" json:"price"`
	Currency          string  `bson:"currency" json:"currency"`
	SessionsPerPeriod int     `bson:"sessions_per_period" json:"sessions_per_period"`
}

// Subscription tracks a user's recurring claim on a Package. At most
// one Active subscription may exist per (user, package). Cancelling
// stops future renewals without revoking the current period.
type Subscription struct {
	ID               string             `bson:"id" json:"id"`
	UserID           string             `bson:"user_id" json:"user_id"`
	PackageID        string             `bson:"package_id" json:"package_id"`
	Gateway          string             `bson:"gateway" json:"gateway"`
	Status           SubscriptionStatus `bson:"status" json:"status"`
	CurrentPeriodEnd time.Time          `bson:"current_period_end" json:"current_period_end"`
	PaymentIDs       []string           `bson:"payment_ids,omitempty" json:"payment_ids,omitempty"` // one Payment row per billing cycle
	CancelledAt      *time.Time         `bson:"cancelled_at,omitempty" json:"cancelled_at,omitempty"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `bson:"updated_at" json:"updated_at"`
}

// SubscribeRequest defines the payload for starting a subscription.
type SubscribeRequest struct {
	Gateway string `json:"gateway" binding:"required"`
}

// EligibilityRequest defines the payload for a membership-certificate
// eligibility check.
type EligibilityRequest struct {
	PackageID string `json:"packageId" binding:"required"`
}

// EligibilityResponse reports the outcome of an eligibility check.
type EligibilityResponse struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}
