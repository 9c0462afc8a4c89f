package booking

import "fmt"

// Error codes surfaced by the booking lifecycle manager.
const (
	CodeNotFound      = "bookingNotFound"
	CodeInvalidState  = "invalidState"
	CodeCutoffPassed  = "cutoffPassed"
	CodeNotAuthorized = "notAuthorized"
)

type BookingError struct {
	Code    string
	Message string
}

func (e *BookingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewNotFoundError(msg string) error {
	return &BookingError{Code: CodeNotFound, Message: msg}
}

func NewInvalidStateError(msg string) error {
	return &BookingError{Code: CodeInvalidState, Message: msg}
}

func NewCutoffPassedError(msg string) error {
	return &BookingError{Code: CodeCutoffPassed, Message: msg}
}

func NewNotAuthorizedError(msg string) error {
	return &BookingError{Code: CodeNotAuthorized, Message: msg}
}
