package models

import "time"

// SlotStatus is the occupancy state of a bookable interval.
type SlotStatus string

const (
	SlotFree   SlotStatus = "free"
	SlotHeld   SlotStatus = "held"
	SlotBooked SlotStatus = "booked"
)

// Slot represents one bookable interval published by a teacher.
// At most one non-expired Held or Booked record may exist per
// (teacher, interval); overlap is rejected at publish time and the
// hold transition is a single conditional update.
type Slot struct {
	ID         string     `bson:"id" json:"id"`
	TeacherID  string     `bson:"teacher_id" json:"teacher_id"`
	Start      time.Time  `bson:"start" json:"start"`
	End        time.Time  `bson:"end" json:"end"`
	Price      float64    `bson:"price" json:"price"`
	Currency   string     `bson:"currency" json:"currency"`
	Status     SlotStatus `bson:"status" json:"status"`
	HoldOwner  string     `bson:"hold_owner,omitempty" json:"hold_owner,omitempty"`   // booking-attempt reference while Held
	HoldExpiry *time.Time `bson:"hold_expiry,omitempty" json:"hold_expiry,omitempty"` // nil unless Held
	CreatedAt  time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `bson:"updated_at" json:"updated_at"`
}

// Overlaps reports whether the slot intersects the [start, end) interval.
func (s Slot) Overlaps(start, end time.Time) bool {
	return s.Start.Before(end) && start.Before(s.End)
}

// PublishSlotsRequest defines the payload for publishing availability.
type PublishSlotsRequest struct {
	Slots []SlotInput `json:"slots" binding:"required"`
}

// SlotInput is one interval in a publish request.
type SlotInput struct {
	Start    time.Time `json:"start" binding:"required"`
	End      time.Time `json:"end" binding:"required"`
	Price    float64   `json:"price"`
	Currency string    `json:"currency"`
}
