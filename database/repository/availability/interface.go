package availabilityRepo

import (
	"context"
	"errors"
	"time"

	"tutorhive/models"
)

var (
	// ErrNotFound indicates no slot matched the query.
	ErrNotFound = errors.New("slot not found")
	// ErrSlotTaken indicates a conflicting non-expired Held/Booked record.
	ErrSlotTaken = errors.New("slot is held or booked")
	// ErrHoldLapsed indicates the hold expired before confirmation.
	ErrHoldLapsed = errors.New("hold has expired")
	// ErrOverlap indicates a publish attempt overlapping an existing slot.
	ErrOverlap = errors.New("interval overlaps an existing slot")
	// ErrNotFree indicates a delete attempt on a Held or Booked slot.
	ErrNotFree = errors.New("slot is not free")
)

// AvailabilityRepository is the store behind the slot reservation
// manager. HoldIfFree, ConfirmHold and ReleaseHold are single
// conditional writes; a check-then-write sequence here would break the
// mutual-exclusion guarantee.
type AvailabilityRepository interface {
	// CreateSlots inserts the given slots transactionally, rejecting the
	// whole batch with ErrOverlap if any interval overlaps an existing
	// slot for the same teacher.
	CreateSlots(ctx context.Context, slots []models.Slot) error
	// GetSlot retrieves a slot by ID.
	GetSlot(ctx context.Context, slotID string) (*models.Slot, error)
	// ListSlots returns a teacher's slots starting from the given time.
	ListSlots(ctx context.Context, teacherID string, from time.Time) ([]models.Slot, error)
	// DeleteSlot removes a slot, failing with ErrNotFree unless it is Free.
	DeleteSlot(ctx context.Context, slotID string) error
	// HoldIfFree atomically claims a slot that is Free, or Held with a
	// lapsed expiry, for holderRef. Returns ErrSlotTaken on conflict.
	HoldIfFree(ctx context.Context, slotID, holderRef string, now, expiry time.Time) (*models.Slot, error)
	// ConfirmHold atomically promotes holderRef's non-expired hold to
	// Booked. Returns ErrHoldLapsed if the hold expired, ErrNotFound if
	// no hold exists for holderRef.
	ConfirmHold(ctx context.Context, holderRef string, now time.Time) (*models.Slot, error)
	// ReleaseHold returns holderRef's Held slot to Free. A no-op when
	// the slot is already Free or Booked.
	ReleaseHold(ctx context.Context, holderRef string) error
	// FreeBooked reverts a Booked slot to Free. Privileged: reserved for
	// cancellation flows and explicit admin reopening.
	FreeBooked(ctx context.Context, slotID string) error
	// SweepExpiredHolds reverts every Held slot whose expiry has passed
	// and returns the number of slots freed.
	SweepExpiredHolds(ctx context.Context, now time.Time) (int64, error)
}
