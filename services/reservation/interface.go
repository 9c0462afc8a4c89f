package reservation

import (
	"context"

	"tutorhive/models"
)

// ReservationService is the mutual-exclusion gate that moves a slot
// between Free, Held and Booked. Everything that touches slot occupancy
// goes through here.
type ReservationService interface {
	// PublishSlots creates bookable intervals for a teacher, rejecting
	// overlaps within the batch and against existing slots.
	PublishSlots(ctx context.Context, teacherID string, inputs []models.SlotInput) ([]models.Slot, error)
	// ListAvailability returns a teacher's upcoming slots.
	ListAvailability(ctx context.Context, teacherID string) ([]models.Slot, error)
	// RemoveSlot deletes a slot; only Free slots may be removed.
	RemoveSlot(ctx context.Context, teacherID, slotID string) error
	// Hold claims a Free slot for holderRef until the hold TTL lapses.
	Hold(ctx context.Context, slotID, holderRef string) (*models.Slot, error)
	// Confirm promotes holderRef's live hold to Booked.
	Confirm(ctx context.Context, holderRef string) (*models.Slot, error)
	// Release idempotently returns holderRef's hold to Free.
	Release(ctx context.Context, holderRef string) error
	// CancelBooked reverts a Booked slot to Free. Privileged: used by
	// cancellation flows and explicit admin reopening, never by payment
	// event processing.
	CancelBooked(ctx context.Context, slotID string) error
	// SweepExpired reverts every lapsed hold; run on a cadence so
	// abandoned holds cannot pin a slot indefinitely.
	SweepExpired(ctx context.Context) (int64, error)
}
