package reservation

import "fmt"

// Error codes surfaced by the reservation manager.
const (
	CodeSlotConflict = "slotConflict"
	CodeHoldExpired  = "holdExpired"
	CodeInvalidSlot  = "invalidSlot"
)

type ReservationError struct {
	Code    string
	Message string
}

func (e *ReservationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewSlotConflictError(msg string) error {
	return &ReservationError{Code: CodeSlotConflict, Message: msg}
}

func NewHoldExpiredError(msg string) error {
	return &ReservationError{Code: CodeHoldExpired, Message: msg}
}

func NewInvalidSlotError(msg string) error {
	return &ReservationError{Code: CodeInvalidSlot, Message: msg}
}
