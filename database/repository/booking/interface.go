package bookingRepo

import (
	"context"
	"errors"
	"time"

	"tutorhive/models"
)

// ErrNotFound indicates no booking matched the query.
var ErrNotFound = errors.New("booking not found")

// BookingRepository persists booking records. Transition is a single
// conditional write: it only applies when the booking currently sits in
// one of the expected predecessor states, which is what makes replayed
// payment events no-ops instead of double transitions.
type BookingRepository interface {
	Create(ctx context.Context, booking *models.Booking) error
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Booking, error)
	// Transition moves the booking from one of the given states to the
	// target state. Returns false when no document matched, meaning the
	// booking already left the expected states.
	Transition(ctx context.Context, id string, from []models.BookingStatus, to models.BookingStatus, at time.Time) (bool, error)
	// SetPaymentID links the booking to its current payment attempt.
	SetPaymentID(ctx context.Context, id, paymentID string) error
}
