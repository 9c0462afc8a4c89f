package paymentRepo

import (
	"context"
	"errors"

	"tutorhive/models"
)

var (
	// ErrNotFound indicates no payment matched the query.
	ErrNotFound = errors.New("payment not found")
	// ErrDuplicateRef indicates the (gateway, gateway_ref) pair is
	// already assigned to another payment.
	ErrDuplicateRef = errors.New("gateway reference already assigned")
)

// PaymentRepository persists payment attempts. Status moves only
// forward through the lattice; Transition refuses anything else by
// matching on the allowed predecessor states.
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	// GetByGatewayRef resolves the payment a provider event refers to.
	GetByGatewayRef(ctx context.Context, gateway, ref string) (*models.Payment, error)
	// AssignGatewayRef records the provider's transaction reference and
	// redirect URL, once. ErrDuplicateRef if another payment already
	// carries the reference.
	AssignGatewayRef(ctx context.Context, id, ref, redirectURL string) error
	// Transition moves the payment from one of the given states to the
	// target state. Returns false when no document matched.
	Transition(ctx context.Context, id string, from []models.PaymentStatus, to models.PaymentStatus, reason string) (bool, error)
}
