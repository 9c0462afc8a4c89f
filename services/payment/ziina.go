package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tutorhive/models"
)

// GatewayZiina is the registry name of the Ziina adapter.
const GatewayZiina = "ziina"

// ziinaSignatureHeader carries the hex HMAC-SHA256 of the raw payload.
const ziinaSignatureHeader = "X-Ziina-Signature"

// ZiinaAdapter implements GatewayAdapter over Ziina's payment-intent
// HTTP API. Ziina has no separate capture phase: a completed intent is
// already captured.
type ZiinaAdapter struct {
	APIKey        string
	WebhookSecret string
	BaseURL       string
	HTTPClient    *http.Client
}

func NewZiinaAdapter(apiKey, webhookSecret, baseURL string) *ZiinaAdapter {
	return &ZiinaAdapter{
		APIKey:        apiKey,
		WebhookSecret: webhookSecret,
		BaseURL:       baseURL,
		HTTPClient:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (a *ZiinaAdapter) Name() string { return GatewayZiina }

type ziinaIntent struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Amount       int64             `json:"amount"`
	CurrencyCode string            `json:"currency_code"`
	RedirectURL  string            `json:"redirect_url"`
	Message      string            `json:"message"`
	Metadata     map[string]string `json:"metadata"`
	LatestError  string            `json:"latest_error,omitempty"`
}

type ziinaWebhookPayload struct {
	ID        string      `json:"id"`
	Event     string      `json:"event"`
	CreatedAt int64       `json:"created_at"`
	Data      ziinaIntent `json:"data"`
}

// Initiate opens a payment intent and returns the hosted redirect URL.
func (a *ZiinaAdapter) Initiate(ctx context.Context, intent ChargeIntent) (*InitiateResult, error) {
	body := map[string]interface{}{
		"amount":        toMinorUnits(intent.Amount),
		"currency_code": intent.Currency,
		"message":       intent.Description,
		"success_url":   intent.SuccessURL,
		"cancel_url":    intent.CancelURL,
		"failure_url":   intent.FailureURL,
		"metadata":      mergeMetadata(intent.Metadata, intent.PaymentID),
	}

	var out ziinaIntent
	if err := a.do(ctx, http.MethodPost, "/payment_intent", intent.IdempotencyKey, body, &out); err != nil {
		return nil, err
	}

	return &InitiateResult{
		GatewayRef:  out.ID,
		RedirectURL: out.RedirectURL,
		Status:      mapZiinaStatus(out.Status),
	}, nil
}

// Capture reports the intent's current state; Ziina settles on
// completion without a manual capture step.
func (a *ZiinaAdapter) Capture(ctx context.Context, gatewayRef string) (models.PaymentStatus, error) {
	var out ziinaIntent
	if err := a.do(ctx, http.MethodGet, "/payment_intent/"+gatewayRef, "", nil, &out); err != nil {
		return "", err
	}
	return mapZiinaStatus(out.Status), nil
}

// Refund reverses a completed intent.
func (a *ZiinaAdapter) Refund(ctx context.Context, gatewayRef string, amount float64, currency string) error {
	body := map[string]interface{}{}
	if amount > 0 {
		body["amount"] = toMinorUnits(amount)
		body["currency_code"] = currency
	}
	var out ziinaIntent
	return a.do(ctx, http.MethodPost, "/payment_intent/"+gatewayRef+"/refund", "", body, &out)
}

// Fetch reads the provider's current view of the intent.
func (a *ZiinaAdapter) Fetch(ctx context.Context, gatewayRef string) (*models.NormalizedEvent, error) {
	var out ziinaIntent
	if err := a.do(ctx, http.MethodGet, "/payment_intent/"+gatewayRef, "", nil, &out); err != nil {
		return nil, err
	}
	return a.normalize(out, "", time.Now().UTC()), nil
}

// VerifyWebhookSignature recomputes the payload HMAC and compares it in
// constant time against the signature header.
func (a *ZiinaAdapter) VerifyWebhookSignature(payload []byte, headers http.Header) error {
	sig := headers.Get(ziinaSignatureHeader)
	if sig == "" {
		return fmt.Errorf("%w: missing %s header", ErrInvalidSignature, ziinaSignatureHeader)
	}
	mac := hmac.New(sha256.New, []byte(a.WebhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return fmt.Errorf("%w: signature mismatch", ErrInvalidSignature)
	}
	return nil
}

// ParseWebhook maps a Ziina notification onto a NormalizedEvent.
func (a *ZiinaAdapter) ParseWebhook(payload []byte) (*models.NormalizedEvent, error) {
	var in ziinaWebhookPayload
	if err := json.Unmarshal(payload, &in); err != nil {
		return nil, fmt.Errorf("malformed ziina event: %w", err)
	}
	if in.ID == "" || in.Data.ID == "" {
		return nil, fmt.Errorf("ziina event missing identifiers")
	}
	return a.normalize(in.Data, in.ID, time.Unix(in.CreatedAt, 0).UTC()), nil
}

func (a *ZiinaAdapter) normalize(intent ziinaIntent, eventID string, at time.Time) *models.NormalizedEvent {
	return &models.NormalizedEvent{
		Gateway:         GatewayZiina,
		ProviderEventID: eventID,
		Status:          mapZiinaStatus(intent.Status),
		GatewayRef:      intent.ID,
		PaymentID:       intent.Metadata["payment_id"],
		Amount:          fromMinorUnits(intent.Amount),
		Currency:        intent.CurrencyCode,
		OccurredAt:      at,
		FailureReason:   intent.LatestError,
	}
}

func mapZiinaStatus(status string) models.PaymentStatus {
	switch status {
	case "completed":
		return models.PaymentCaptured
	case "failed":
		return models.PaymentFailed
	case "canceled", "cancelled":
		return models.PaymentCancelled
	case "refunded":
		return models.PaymentRefunded
	default:
		// requires_payment_instrument, requires_user_action, pending
		return models.PaymentInitiated
	}
}

func (a *ZiinaAdapter) do(ctx context.Context, method, path, idempotencyKey string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode ziina request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build ziina request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return &TransientError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{Err: err}
	}

	if resp.StatusCode >= 500 {
		return &TransientError{Err: fmt.Errorf("ziina %s %s: status %d", method, path, resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("ziina %s %s: status %d: %s", method, path, resp.StatusCode, string(raw))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode ziina response: %w", err)
		}
	}
	return nil
}

func mergeMetadata(meta map[string]string, paymentID string) map[string]string {
	merged := map[string]string{"payment_id": paymentID}
	for k, v := range meta {
		merged[k] = v
	}
	return merged
}
