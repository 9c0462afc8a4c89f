package subscription

import "fmt"

const (
	CodeNotFound      = "subscriptionNotFound"
	CodeAlreadyActive = "alreadySubscribed"
	CodeInvalidState  = "invalidState"
	CodeNotAuthorized = "notAuthorized"
)

// SubscriptionError carries a machine-readable code for handler mapping.
type SubscriptionError struct {
	Code    string
	Message string
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewNotFoundError(msg string) error {
	return &SubscriptionError{Code: CodeNotFound, Message: msg}
}

func NewAlreadyActiveError(msg string) error {
	return &SubscriptionError{Code: CodeAlreadyActive, Message: msg}
}

func NewInvalidStateError(msg string) error {
	return &SubscriptionError{Code: CodeInvalidState, Message: msg}
}

func NewNotAuthorizedError(msg string) error {
	return &SubscriptionError{Code: CodeNotAuthorized, Message: msg}
}
