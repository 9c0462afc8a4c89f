package payment

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSignature marks an unsigned or tampered webhook payload.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrUnknownGateway marks a request naming a gateway with no adapter.
	ErrUnknownGateway = errors.New("unknown payment gateway")
	// ErrPaymentNotFound marks a reference to a payment that does not exist.
	ErrPaymentNotFound = errors.New("payment not found")
)

// TransientError wraps provider-side failures worth retrying: network
// errors and 5xx responses. Everything else fails the attempt outright.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient gateway error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
