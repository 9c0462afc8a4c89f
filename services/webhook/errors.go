package webhook

import "fmt"

const (
	CodeBadSignature = "badSignature"
	CodeBadPayload   = "badPayload"
	CodeUnknownOwner = "unknownOwner"
)

// WebhookError carries a machine-readable code for handler mapping.
type WebhookError struct {
	Code    string
	Message string
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewBadSignatureError(msg string) error {
	return &WebhookError{Code: CodeBadSignature, Message: msg}
}

func NewBadPayloadError(msg string) error {
	return &WebhookError{Code: CodeBadPayload, Message: msg}
}

func NewUnknownOwnerError(msg string) error {
	return &WebhookError{Code: CodeUnknownOwner, Message: msg}
}
