package handlers

import (
	"github.com/gin-gonic/gin"
)

// HandlerBundle groups all endpoint handlers into one struct for route
// registration.
type HandlerBundle struct {
	// Availability endpoints
	PublishSlotsHandler     gin.HandlerFunc
	ListAvailabilityHandler gin.HandlerFunc
	RemoveSlotHandler       gin.HandlerFunc
	ReopenSlotHandler       gin.HandlerFunc

	// Booking endpoints
	BookSlotHandler            gin.HandlerFunc
	GetBookingHandler          gin.HandlerFunc
	ListMyBookingsHandler      gin.HandlerFunc
	UpdateBookingStatusHandler gin.HandlerFunc
	CancelBookingHandler       gin.HandlerFunc

	// Payment endpoints
	InitiatePaymentHandler gin.HandlerFunc
	GetPaymentHandler      gin.HandlerFunc
	SuccessRedirectHandler gin.HandlerFunc
	FailureRedirectHandler gin.HandlerFunc
	CancelRedirectHandler  gin.HandlerFunc
	CaptureHandler         gin.HandlerFunc
	RefundHandler          gin.HandlerFunc

	// Webhook endpoints
	PaymentWebhookHandler gin.HandlerFunc
	ZiinaWebhookHandler   gin.HandlerFunc

	// Subscription endpoints
	SubscribeHandler          gin.HandlerFunc
	CancelSubscriptionHandler gin.HandlerFunc
	RenewSubscriptionHandler  gin.HandlerFunc
	CheckEligibilityHandler   gin.HandlerFunc
}
