package payment

import (
	"context"
	"net/http"

	"tutorhive/models"
)

// ChargeIntent describes an outbound charge request in gateway-agnostic
// terms. The idempotency key rides on the provider call so a retried
// outbound request cannot create two charges.
type ChargeIntent struct {
	PaymentID      string
	Amount         float64
	Currency       string
	Description    string
	IdempotencyKey string
	SuccessURL     string
	CancelURL      string
	FailureURL     string
	Metadata       map[string]string
}

// InitiateResult is what a provider hands back when a charge is opened:
// either a redirect the student must follow, a client secret for an
// embedded flow, or an already-settled status for gateways that charge
// synchronously.
type InitiateResult struct {
	GatewayRef   string
	RedirectURL  string
	ClientSecret string
	Status       models.PaymentStatus
}

// GatewayAdapter translates abstract charge/capture/refund intents into
// provider-specific calls and normalizes provider responses and
// webhooks into the shared event shape. One implementation per provider.
type GatewayAdapter interface {
	Name() string
	Initiate(ctx context.Context, intent ChargeIntent) (*InitiateResult, error)
	// Capture settles a previously authorized charge. Gateways without
	// a separate capture phase report the charge's current state.
	Capture(ctx context.Context, gatewayRef string) (models.PaymentStatus, error)
	// Refund returns amount to the payer; zero means the full charge.
	Refund(ctx context.Context, gatewayRef string, amount float64, currency string) error
	// Fetch reads the provider's current view of a charge. Redirect
	// handlers use it so the synchronous path never trusts query
	// parameters over the provider.
	Fetch(ctx context.Context, gatewayRef string) (*models.NormalizedEvent, error)
	// VerifyWebhookSignature must pass before a payload is trusted;
	// failure short-circuits processing without touching any state.
	VerifyWebhookSignature(payload []byte, headers http.Header) error
	// ParseWebhook maps a provider payload onto a NormalizedEvent.
	ParseWebhook(payload []byte) (*models.NormalizedEvent, error)
}

// Registry resolves adapters by gateway name.
type Registry struct {
	adapters map[string]GatewayAdapter
}

func NewRegistry(adapters ...GatewayAdapter) *Registry {
	m := make(map[string]GatewayAdapter, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a
	}
	return &Registry{adapters: m}
}

// Get returns the adapter for a gateway name.
func (r *Registry) Get(name string) (GatewayAdapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}
