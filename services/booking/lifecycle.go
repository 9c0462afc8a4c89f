package booking

import (
	"context"
	"errors"
	"fmt"

	"tutorhive/models"
	"tutorhive/services/reservation"

	"go.uber.org/zap"
)

// OnPaymentOutcome applies a normalized payment event to the booking
// under a per-booking lease. Replays and out-of-order deliveries are
// detected by the booking's current status and dropped silently.
func (s *DefaultBookingService) OnPaymentOutcome(ctx context.Context, bookingID string, event *models.NormalizedEvent) error {
	return s.withBookingLease(ctx, bookingID, func() error {
		return s.applyOutcome(ctx, bookingID, event)
	})
}

func (s *DefaultBookingService) applyOutcome(ctx context.Context, bookingID string, event *models.NormalizedEvent) error {
	booking, err := s.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}

	// Settled bookings never move again; late or replayed gateway
	// events are acked without effect.
	if booking.Status.Terminal() {
		s.Logger.Debug("booking already settled; payment event ignored",
			zap.String("bookingId", booking.ID),
			zap.String("status", string(event.Status)))
		return nil
	}

	switch event.Status {
	case models.PaymentAuthorized, models.PaymentCaptured:
		return s.confirm(ctx, booking)
	case models.PaymentFailed:
		return s.fail(ctx, booking, event.FailureReason)
	case models.PaymentCancelled:
		return s.abortPending(ctx, booking)
	case models.PaymentRefunded:
		return s.refunded(ctx, booking)
	default:
		s.Logger.Debug("ignoring payment event with no booking effect",
			zap.String("bookingId", booking.ID),
			zap.String("status", string(event.Status)))
		return nil
	}
}

func (s *DefaultBookingService) confirm(ctx context.Context, booking *models.Booking) error {
	if booking.Status != models.BookingPendingPayment {
		// Replay or late delivery after the booking already settled.
		return nil
	}

	if _, err := s.Reservations.Confirm(ctx, booking.HoldRef); err != nil {
		if isHoldExpired(err) {
			// The hold lapsed while the charge settled. Try to take the
			// slot again; only if someone else got there first does the
			// booking fail.
			if _, herr := s.Reservations.Hold(ctx, booking.SlotID, booking.HoldRef); herr != nil {
				s.Logger.Warn("slot lost while payment settled",
					zap.String("bookingId", booking.ID),
					zap.String("slotId", booking.SlotID))
				return s.fail(ctx, booking, "slot was taken while payment settled")
			}
			if _, cerr := s.Reservations.Confirm(ctx, booking.HoldRef); cerr != nil {
				return cerr
			}
		} else {
			return err
		}
	}

	applied, err := s.Repo.Transition(ctx, booking.ID,
		[]models.BookingStatus{models.BookingPendingPayment}, models.BookingConfirmed, s.Clock.Now())
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	s.Logger.Info("booking confirmed", zap.String("bookingId", booking.ID))
	s.notify(ctx, booking.StudentID, "Booking confirmed",
		fmt.Sprintf("Your session on %s is confirmed.", booking.SessionStart.Format("Jan 2 15:04")),
		booking.ID)
	s.notify(ctx, booking.TeacherID, "Session booked",
		fmt.Sprintf("A student booked your %s slot.", booking.SessionStart.Format("Jan 2 15:04")),
		booking.ID)
	return nil
}

func (s *DefaultBookingService) fail(ctx context.Context, booking *models.Booking, reason string) error {
	if booking.Status != models.BookingPendingPayment {
		return nil
	}
	if err := s.Reservations.Release(ctx, booking.HoldRef); err != nil {
		s.Logger.Warn("failed to release hold for failed booking",
			zap.String("bookingId", booking.ID), zap.Error(err))
	}
	applied, err := s.Repo.Transition(ctx, booking.ID,
		[]models.BookingStatus{models.BookingPendingPayment}, models.BookingFailed, s.Clock.Now())
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	s.Logger.Info("booking failed", zap.String("bookingId", booking.ID), zap.String("reason", reason))
	s.notify(ctx, booking.StudentID, "Payment failed",
		"Your payment did not go through. The slot has been released.", booking.ID)
	return nil
}

func (s *DefaultBookingService) abortPending(ctx context.Context, booking *models.Booking) error {
	if booking.Status != models.BookingPendingPayment {
		return nil
	}
	if err := s.Reservations.Release(ctx, booking.HoldRef); err != nil {
		s.Logger.Warn("failed to release hold for cancelled payment",
			zap.String("bookingId", booking.ID), zap.Error(err))
	}
	applied, err := s.Repo.Transition(ctx, booking.ID,
		[]models.BookingStatus{models.BookingPendingPayment}, models.BookingCancelled, s.Clock.Now())
	if err != nil {
		return err
	}
	if applied {
		s.Logger.Info("booking cancelled at gateway", zap.String("bookingId", booking.ID))
	}
	return nil
}

// refunded records a refund that originated at the gateway. The slot
// stays Booked; reopening it is a manual decision.
func (s *DefaultBookingService) refunded(ctx context.Context, booking *models.Booking) error {
	if booking.Status != models.BookingConfirmed {
		return nil
	}
	applied, err := s.Repo.Transition(ctx, booking.ID,
		[]models.BookingStatus{models.BookingConfirmed}, models.BookingRefunded, s.Clock.Now())
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	s.Logger.Info("booking refunded", zap.String("bookingId", booking.ID))
	s.notify(ctx, booking.StudentID, "Booking refunded",
		"Your payment has been refunded.", booking.ID)
	return nil
}

// Cancel aborts a booking on behalf of its student. Pending bookings
// release their hold; confirmed bookings are subject to the cutoff and
// refund the captured payment. Refund processing happens inline here
// rather than through OnPaymentOutcome since both run under the same
// per-booking lease.
func (s *DefaultBookingService) Cancel(ctx context.Context, bookingID, actorID string) error {
	return s.withBookingLease(ctx, bookingID, func() error {
		booking, err := s.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if actorID != "" && booking.StudentID != actorID {
			return NewNotAuthorizedError("booking belongs to another student")
		}

		switch booking.Status {
		case models.BookingPendingPayment:
			return s.abortPending(ctx, booking)
		case models.BookingConfirmed:
			return s.cancelConfirmed(ctx, booking)
		default:
			return NewInvalidStateError(fmt.Sprintf("booking is %s and cannot be cancelled", booking.Status))
		}
	})
}

func (s *DefaultBookingService) cancelConfirmed(ctx context.Context, booking *models.Booking) error {
	if booking.SessionStart.Sub(s.Clock.Now()) < s.CancelCutoff {
		return NewCutoffPassedError("the session is too close to cancel")
	}

	// The slot is freed only after the refund and the booking
	// transition have gone through. A gateway failure here leaves the
	// booking Confirmed with its slot still Booked, so the cancel can
	// simply be retried.
	target := models.BookingCancelled
	if booking.PaymentID != "" {
		pay, err := s.Payments.Get(ctx, booking.PaymentID)
		if err != nil {
			return err
		}
		if pay.Status == models.PaymentCaptured {
			event, err := s.Payments.Refund(ctx, pay.ID, 0)
			if err != nil {
				return err
			}
			if _, _, err := s.Payments.Apply(ctx, event); err != nil {
				return err
			}
			target = models.BookingRefunded
		}
	}

	applied, err := s.Repo.Transition(ctx, booking.ID,
		[]models.BookingStatus{models.BookingConfirmed}, target, s.Clock.Now())
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	if err := s.Reservations.CancelBooked(ctx, booking.SlotID); err != nil {
		// The booking is already settled; the slot stays Booked until
		// an admin reopens it, same as a gateway-originated refund.
		s.Logger.Warn("failed to free slot for cancelled booking",
			zap.String("bookingId", booking.ID),
			zap.String("slotId", booking.SlotID),
			zap.Error(err))
	}

	s.Logger.Info("booking cancelled", zap.String("bookingId", booking.ID), zap.String("status", string(target)))
	s.notify(ctx, booking.TeacherID, "Session cancelled",
		fmt.Sprintf("The %s session was cancelled by the student.", booking.SessionStart.Format("Jan 2 15:04")),
		booking.ID)
	return nil
}

// Complete marks a confirmed booking as delivered.
func (s *DefaultBookingService) Complete(ctx context.Context, bookingID string) error {
	applied, err := s.Repo.Transition(ctx, bookingID,
		[]models.BookingStatus{models.BookingConfirmed}, models.BookingCompleted, s.Clock.Now())
	if err != nil {
		return err
	}
	if !applied {
		booking, gerr := s.GetBooking(ctx, bookingID)
		if gerr != nil {
			return gerr
		}
		if booking.Status == models.BookingCompleted {
			return nil
		}
		return NewInvalidStateError(fmt.Sprintf("booking is %s, only confirmed bookings can be completed", booking.Status))
	}
	s.Logger.Info("booking completed", zap.String("bookingId", bookingID))
	return nil
}

func (s *DefaultBookingService) notify(ctx context.Context, userID, title, body, bookingID string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Send(ctx, userID, title, body, map[string]string{"bookingId": bookingID}); err != nil {
		s.Logger.Warn("notification send failed", zap.String("userId", userID), zap.Error(err))
	}
}

func isHoldExpired(err error) bool {
	var resErr *reservation.ReservationError
	return errors.As(err, &resErr) && resErr.Code == reservation.CodeHoldExpired
}
