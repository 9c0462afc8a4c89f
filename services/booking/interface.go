package booking

import (
	"context"

	"tutorhive/models"
)

// BookingService owns the booking state machine:
//
//	PendingPayment → {Confirmed | Failed | Cancelled}
//	Confirmed      → {Completed | Refunded}
//
// Cancelled and Failed are terminal. All payment results, synchronous
// or webhook-delivered, enter through OnPaymentOutcome.
type BookingService interface {
	// BookSlot holds the slot and creates a PendingPayment booking in
	// one flow; the booking id doubles as the slot holder reference.
	BookSlot(ctx context.Context, studentID, slotID string) (*models.Booking, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListStudentBookings(ctx context.Context, studentID string) ([]models.Booking, error)
	// InitiatePayment opens a charge for a pending booking.
	InitiatePayment(ctx context.Context, bookingID, gateway string) (*models.Payment, error)
	// OnPaymentOutcome applies a normalized payment event to the
	// booking. Safe to call any number of times with the same event:
	// replays are silent no-ops with no duplicate side effects.
	OnPaymentOutcome(ctx context.Context, bookingID string, event *models.NormalizedEvent) error
	// Cancel aborts a pending or confirmed booking, subject to the
	// cancellation cutoff, releasing the slot and refunding a captured
	// payment when one exists.
	Cancel(ctx context.Context, bookingID, actorID string) error
	// Complete marks a confirmed booking's session as delivered.
	Complete(ctx context.Context, bookingID string) error
}
