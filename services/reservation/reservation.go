package reservation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	availabilityRepo "tutorhive/database/repository/availability"
	"tutorhive/models"
	"tutorhive/utils"

	"go.uber.org/zap"
)

// publishLeaseTTL bounds how long a publish can hold the per-teacher
// critical section before the lease self-expires.
const publishLeaseTTL = 5 * time.Second

// listingCacheTTL bounds how stale a cached availability listing can
// get; occupancy changes (holds, bookings) ride on expiry rather than
// explicit invalidation.
const listingCacheTTL = 30 * time.Second

// DefaultReservationService implements ReservationService.
type DefaultReservationService struct {
	Repo    availabilityRepo.AvailabilityRepository
	Locker  utils.Locker
	Cache   utils.Cache
	Clock   utils.Clock
	IDs     utils.IDGenerator
	HoldTTL time.Duration
	Logger  *zap.Logger
}

// PublishSlots validates and inserts a batch of intervals. The overlap
// check against existing slots runs inside the repository transaction;
// the per-teacher lease keeps two concurrent publishes from both
// passing it.
func (s *DefaultReservationService) PublishSlots(ctx context.Context, teacherID string, inputs []models.SlotInput) ([]models.Slot, error) {
	if len(inputs) == 0 {
		return nil, NewInvalidSlotError("no slots provided")
	}

	now := s.Clock.Now()
	slots := make([]models.Slot, 0, len(inputs))
	for _, in := range inputs {
		if !in.End.After(in.Start) {
			return nil, NewInvalidSlotError(fmt.Sprintf("interval end %s is not after start %s", in.End, in.Start))
		}
		if in.Start.Before(now) {
			return nil, NewInvalidSlotError("cannot publish availability in the past")
		}
		currency := in.Currency
		if currency == "" {
			currency = "AED"
		}
		slots = append(slots, models.Slot{
			ID:        s.IDs.NewID(),
			TeacherID: teacherID,
			Start:     in.Start.UTC(),
			End:       in.End.UTC(),
			Price:     in.Price,
			Currency:  currency,
			Status:    models.SlotFree,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	// Reject overlaps inside the batch itself before touching the store.
	for i := range slots {
		for j := i + 1; j < len(slots); j++ {
			if slots[i].Overlaps(slots[j].Start, slots[j].End) {
				return nil, NewSlotConflictError("published intervals overlap each other")
			}
		}
	}

	leaseKey := "publish:" + teacherID
	err := s.Locker.WithLease(ctx, leaseKey, publishLeaseTTL, func() error {
		return s.Repo.CreateSlots(ctx, slots)
	})
	if err != nil {
		if errors.Is(err, availabilityRepo.ErrOverlap) {
			return nil, NewSlotConflictError("interval overlaps existing availability")
		}
		return nil, fmt.Errorf("failed to publish slots: %w", err)
	}

	s.invalidateListing(ctx, teacherID)
	s.Logger.Info("availability published",
		zap.String("teacherId", teacherID),
		zap.Int("slots", len(slots)))
	return slots, nil
}

// ListAvailability returns a teacher's slots from now onward, served
// from the cache when a fresh listing is available.
func (s *DefaultReservationService) ListAvailability(ctx context.Context, teacherID string) ([]models.Slot, error) {
	key := listingCacheKey(teacherID)
	if s.Cache != nil {
		if raw, err := s.Cache.Get(ctx, key); err == nil && raw != nil {
			var slots []models.Slot
			if jerr := json.Unmarshal(raw, &slots); jerr == nil {
				return slots, nil
			}
		}
	}

	slots, err := s.Repo.ListSlots(ctx, teacherID, s.Clock.Now())
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		if raw, merr := json.Marshal(slots); merr == nil {
			if serr := s.Cache.Set(ctx, key, raw, listingCacheTTL); serr != nil {
				s.Logger.Debug("availability cache write failed",
					zap.String("teacherId", teacherID), zap.Error(serr))
			}
		}
	}
	return slots, nil
}

func listingCacheKey(teacherID string) string {
	return "availability:" + teacherID
}

func (s *DefaultReservationService) invalidateListing(ctx context.Context, teacherID string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Delete(ctx, listingCacheKey(teacherID)); err != nil {
		s.Logger.Debug("availability cache invalidation failed",
			zap.String("teacherId", teacherID), zap.Error(err))
	}
}

// RemoveSlot deletes a Free slot owned by the teacher.
func (s *DefaultReservationService) RemoveSlot(ctx context.Context, teacherID, slotID string) error {
	slot, err := s.Repo.GetSlot(ctx, slotID)
	if err != nil {
		if errors.Is(err, availabilityRepo.ErrNotFound) {
			return NewInvalidSlotError("slot does not exist")
		}
		return err
	}
	if slot.TeacherID != teacherID {
		return NewInvalidSlotError("slot belongs to another teacher")
	}
	if err := s.Repo.DeleteSlot(ctx, slotID); err != nil {
		if errors.Is(err, availabilityRepo.ErrNotFree) {
			return NewSlotConflictError("slot is held or booked and cannot be removed")
		}
		return err
	}
	s.invalidateListing(ctx, teacherID)
	return nil
}

// Hold atomically claims the slot. On contention the caller is told the
// slot is gone; there is no retry loop against the same interval.
func (s *DefaultReservationService) Hold(ctx context.Context, slotID, holderRef string) (*models.Slot, error) {
	now := s.Clock.Now()
	slot, err := s.Repo.HoldIfFree(ctx, slotID, holderRef, now, now.Add(s.HoldTTL))
	if err != nil {
		switch {
		case errors.Is(err, availabilityRepo.ErrNotFound):
			return nil, NewInvalidSlotError("slot does not exist")
		case errors.Is(err, availabilityRepo.ErrSlotTaken):
			return nil, NewSlotConflictError("slot no longer available")
		}
		return nil, fmt.Errorf("failed to hold slot %s: %w", slotID, err)
	}

	s.Logger.Info("slot held",
		zap.String("slotId", slotID),
		zap.String("holderRef", holderRef),
		zap.Time("holdExpiry", now.Add(s.HoldTTL)))
	return slot, nil
}

// Confirm promotes the hold to Booked. A lapsed hold forces the caller
// to restart the reservation flow.
func (s *DefaultReservationService) Confirm(ctx context.Context, holderRef string) (*models.Slot, error) {
	slot, err := s.Repo.ConfirmHold(ctx, holderRef, s.Clock.Now())
	if err != nil {
		switch {
		case errors.Is(err, availabilityRepo.ErrHoldLapsed):
			return nil, NewHoldExpiredError("hold expired before confirmation")
		case errors.Is(err, availabilityRepo.ErrNotFound):
			return nil, NewInvalidSlotError("no hold found for reference")
		}
		return nil, fmt.Errorf("failed to confirm hold %s: %w", holderRef, err)
	}

	s.Logger.Info("slot booked", zap.String("slotId", slot.ID), zap.String("holderRef", holderRef))
	return slot, nil
}

// Release returns a Held slot to Free. No-op when the slot is already
// Free or Booked.
func (s *DefaultReservationService) Release(ctx context.Context, holderRef string) error {
	if err := s.Repo.ReleaseHold(ctx, holderRef); err != nil {
		return fmt.Errorf("failed to release hold %s: %w", holderRef, err)
	}
	return nil
}

// CancelBooked frees a Booked slot.
func (s *DefaultReservationService) CancelBooked(ctx context.Context, slotID string) error {
	if err := s.Repo.FreeBooked(ctx, slotID); err != nil {
		if errors.Is(err, availabilityRepo.ErrNotFound) {
			return NewInvalidSlotError("slot is not booked")
		}
		return fmt.Errorf("failed to free booked slot %s: %w", slotID, err)
	}
	s.Logger.Info("booked slot reopened", zap.String("slotId", slotID))
	return nil
}

// SweepExpired reverts lapsed holds in bulk.
func (s *DefaultReservationService) SweepExpired(ctx context.Context) (int64, error) {
	freed, err := s.Repo.SweepExpiredHolds(ctx, s.Clock.Now())
	if err != nil {
		return 0, fmt.Errorf("hold sweep failed: %w", err)
	}
	if freed > 0 {
		s.Logger.Info("expired holds swept", zap.Int64("freed", freed))
	}
	return freed, nil
}
