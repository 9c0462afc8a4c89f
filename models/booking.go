package models

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPendingPayment BookingStatus = "pending_payment"
	BookingConfirmed      BookingStatus = "confirmed"
	BookingCancelled      BookingStatus = "cancelled"
	BookingFailed         BookingStatus = "failed"
	BookingRefunded       BookingStatus = "refunded"
	BookingCompleted      BookingStatus = "completed"
)

// Terminal reports whether no further lifecycle transition is allowed.
func (s BookingStatus) Terminal() bool {
	switch s {
	case BookingCancelled, BookingFailed, BookingRefunded, BookingCompleted:
		return true
	}
	return false
}

// Booking represents a student's claim on a Slot, tracked through a
// payment-linked lifecycle. Bookings are never hard-deleted; terminal
// states are retained for audit.
type Booking struct {
	ID           string        `bson:"id" json:"id"`
	StudentID    string        `bson:"student_id" json:"student_id"`
	TeacherID    string        `bson:"teacher_id" json:"teacher_id"`
	SlotID       string        `bson:"slot_id" json:"slot_id"`
	HoldRef      string        `bson:"hold_ref" json:"hold_ref"` // holder reference the slot was held under
	Price        float64       `bson:"price" json:"price"`       // snapshot taken at creation time
	Currency     string        `bson:"currency" json:"currency"`
	Status       BookingStatus `bson:"status" json:"status"`
	PaymentID    string        `bson:"payment_id,omitempty" json:"payment_id,omitempty"` // empty until a payment is initiated
	SessionStart time.Time     `bson:"session_start" json:"session_start"`
	CreatedAt    time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `bson:"updated_at" json:"updated_at"`
}

// BookSlotRequest defines the payload for reserving a slot.
type BookSlotRequest struct {
	SlotID string `json:"slotId" binding:"required"`
}

// UpdateBookingStatusRequest defines the payload for teacher/admin
// status updates (marking a session completed).
type UpdateBookingStatusRequest struct {
	Status BookingStatus `json:"status" binding:"required"`
}
