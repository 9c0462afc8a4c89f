package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingRepo "tutorhive/database/repository/booking"
	"tutorhive/models"
	"tutorhive/services/notification"
	"tutorhive/services/payment"
	"tutorhive/services/reservation"
	"tutorhive/utils"

	"go.uber.org/zap"
)

// outcomeLeaseTTL bounds the per-booking critical section; long enough
// for a slot confirm plus a store write, short enough that a crashed
// holder does not stall the webhook retry for long.
const outcomeLeaseTTL = 15 * time.Second

// DefaultBookingService implements BookingService.
type DefaultBookingService struct {
	Repo         bookingRepo.BookingRepository
	Reservations reservation.ReservationService
	Payments     payment.Service
	Notifier     notification.NotificationService
	Locker       utils.Locker
	Clock        utils.Clock
	IDs          utils.IDGenerator
	CancelCutoff time.Duration
	Logger       *zap.Logger
}

// BookSlot holds the slot under the new booking's id and persists the
// PendingPayment record. The price is snapshotted from the slot at
// creation time.
func (s *DefaultBookingService) BookSlot(ctx context.Context, studentID, slotID string) (*models.Booking, error) {
	bookingID := s.IDs.NewID()

	slot, err := s.Reservations.Hold(ctx, slotID, bookingID)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	booking := &models.Booking{
		ID:           bookingID,
		StudentID:    studentID,
		TeacherID:    slot.TeacherID,
		SlotID:       slot.ID,
		HoldRef:      bookingID,
		Price:        slot.Price,
		Currency:     slot.Currency,
		Status:       models.BookingPendingPayment,
		SessionStart: slot.Start,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.Repo.Create(ctx, booking); err != nil {
		// Give the slot back rather than waiting out the hold TTL.
		if rerr := s.Reservations.Release(ctx, bookingID); rerr != nil {
			s.Logger.Error("failed to release hold after booking insert error",
				zap.String("bookingId", bookingID), zap.Error(rerr))
		}
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	s.Logger.Info("booking created",
		zap.String("bookingId", bookingID),
		zap.String("slotId", slotID),
		zap.String("studentId", studentID))
	return booking, nil
}

func (s *DefaultBookingService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingRepo.ErrNotFound) {
			return nil, NewNotFoundError("booking does not exist")
		}
		return nil, err
	}
	return booking, nil
}

func (s *DefaultBookingService) ListStudentBookings(ctx context.Context, studentID string) ([]models.Booking, error) {
	return s.Repo.ListByStudent(ctx, studentID)
}

// InitiatePayment opens a charge for a pending booking and links the
// Payment row to it. Retrying after a failed attempt creates a fresh
// Payment row; the old one stays for audit.
func (s *DefaultBookingService) InitiatePayment(ctx context.Context, bookingID, gateway string) (*models.Payment, error) {
	booking, err := s.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingPendingPayment {
		return nil, NewInvalidStateError(fmt.Sprintf("booking is %s, payment can only be initiated while pending", booking.Status))
	}

	description := fmt.Sprintf("Tutoring session %s", booking.SessionStart.Format(time.RFC3339))
	pay, result, err := s.Payments.Initiate(ctx, models.PaymentOwnerBooking, booking.ID, gateway, booking.Price, booking.Currency, description)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.SetPaymentID(ctx, booking.ID, pay.ID); err != nil {
		return nil, err
	}

	// Synchronous-settling gateways skip the redirect round trip.
	if result.Status == models.PaymentCaptured || result.Status == models.PaymentAuthorized {
		if _, _, err := s.Payments.Apply(ctx, &models.NormalizedEvent{
			Gateway:    pay.Gateway,
			Status:     result.Status,
			GatewayRef: pay.GatewayRef,
			PaymentID:  pay.ID,
			Amount:     pay.Amount,
			Currency:   pay.Currency,
			OccurredAt: s.Clock.Now(),
		}); err != nil {
			return nil, err
		}
		if err := s.OnPaymentOutcome(ctx, booking.ID, &models.NormalizedEvent{
			Gateway:   pay.Gateway,
			Status:    result.Status,
			PaymentID: pay.ID,
		}); err != nil {
			return nil, err
		}
	}
	return pay, nil
}

// withBookingLease serializes payment-outcome processing per booking so
// a synchronous redirect and an asynchronous webhook for the same
// payment cannot race into inconsistent states.
func (s *DefaultBookingService) withBookingLease(ctx context.Context, bookingID string, fn func() error) error {
	return s.Locker.WithLease(ctx, "booking:"+bookingID, outcomeLeaseTTL, fn)
}
