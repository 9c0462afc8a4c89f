package payment

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	paymentRepo "tutorhive/database/repository/payment"
	"tutorhive/models"
)

type memPaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{payments: make(map[string]*models.Payment)}
}

func (r *memPaymentRepo) Create(ctx context.Context, payment *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *payment
	r.payments[payment.ID] = &cp
	return nil
}

func (r *memPaymentRepo) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pay, ok := r.payments[id]
	if !ok {
		return nil, paymentRepo.ErrNotFound
	}
	cp := *pay
	return &cp, nil
}

func (r *memPaymentRepo) GetByGatewayRef(ctx context.Context, gateway, ref string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pay := range r.payments {
		if pay.Gateway == gateway && pay.GatewayRef == ref {
			cp := *pay
			return &cp, nil
		}
	}
	return nil, paymentRepo.ErrNotFound
}

func (r *memPaymentRepo) AssignGatewayRef(ctx context.Context, id, ref, redirectURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pay := range r.payments {
		if pay.ID != id && pay.GatewayRef == ref {
			return paymentRepo.ErrDuplicateRef
		}
	}
	pay, ok := r.payments[id]
	if !ok {
		return paymentRepo.ErrNotFound
	}
	pay.GatewayRef = ref
	if redirectURL != "" {
		pay.RedirectURL = redirectURL
	}
	return nil
}

func (r *memPaymentRepo) Transition(ctx context.Context, id string, from []models.PaymentStatus, to models.PaymentStatus, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pay, ok := r.payments[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if pay.Status == f {
			pay.Status = to
			if reason != "" {
				pay.FailureReason = reason
			}
			return true, nil
		}
	}
	return false, nil
}

// fakeAdapter is a scriptable in-process gateway.
type fakeAdapter struct {
	name        string
	initiateErr error
	refundErr   error
	refunds     int
	fetchEvent  *models.NormalizedEvent
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) Initiate(ctx context.Context, intent ChargeIntent) (*InitiateResult, error) {
	if a.initiateErr != nil {
		return nil, a.initiateErr
	}
	return &InitiateResult{
		GatewayRef:  "ref-" + intent.PaymentID,
		RedirectURL: "https://pay.example/" + intent.PaymentID,
		Status:      models.PaymentInitiated,
	}, nil
}

func (a *fakeAdapter) Capture(ctx context.Context, gatewayRef string) (models.PaymentStatus, error) {
	return models.PaymentCaptured, nil
}

func (a *fakeAdapter) Refund(ctx context.Context, gatewayRef string, amount float64, currency string) error {
	if a.refundErr != nil {
		return a.refundErr
	}
	a.refunds++
	return nil
}

func (a *fakeAdapter) Fetch(ctx context.Context, gatewayRef string) (*models.NormalizedEvent, error) {
	if a.fetchEvent != nil {
		return a.fetchEvent, nil
	}
	return &models.NormalizedEvent{Gateway: a.name, GatewayRef: gatewayRef, Status: models.PaymentInitiated}, nil
}

func (a *fakeAdapter) VerifyWebhookSignature(payload []byte, headers http.Header) error {
	return nil
}

func (a *fakeAdapter) ParseWebhook(payload []byte) (*models.NormalizedEvent, error) {
	return nil, ErrUnhandledEvent
}

type stubClock struct{ now time.Time }

func (c stubClock) Now() time.Time { return c.now }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return "id-" + strconv.Itoa(g.n)
}

func newTestPaymentService(adapters ...GatewayAdapter) (*DefaultPaymentService, *memPaymentRepo) {
	repo := newMemPaymentRepo()
	svc := &DefaultPaymentService{
		Repo:       repo,
		Registry:   NewRegistry(adapters...),
		Clock:      stubClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		IDs:        &seqIDs{},
		MaxRetries: 1,
		BaseURL:    "https://api.tutorhive.test",
		Logger:     zap.NewNop(),
	}
	return svc, repo
}

func seedPayment(repo *memPaymentRepo, id string, status models.PaymentStatus) *models.Payment {
	pay := &models.Payment{
		ID:        id,
		OwnerType: models.PaymentOwnerBooking,
		OwnerID:   "booking-1",
		Gateway:   "fake",
		Amount:    200,
		Currency:  "AED",
		Status:    status,
	}
	repo.Create(context.Background(), pay)
	return pay
}

func TestInitiateCreatesRowBeforeGatewayCall(t *testing.T) {
	svc, repo := newTestPaymentService(&fakeAdapter{name: "fake"})
	ctx := context.Background()

	pay, result, err := svc.Initiate(ctx, models.PaymentOwnerBooking, "booking-1", "fake", 200, "AED", "math session")
	require.NoError(t, err)

	assert.Equal(t, models.PaymentInitiated, pay.Status)
	assert.NotEmpty(t, pay.IdempotencyKey)
	assert.Equal(t, "ref-"+pay.ID, result.GatewayRef)

	stored, err := repo.GetByID(ctx, pay.ID)
	require.NoError(t, err)
	assert.Equal(t, result.GatewayRef, stored.GatewayRef)
	assert.Equal(t, result.RedirectURL, stored.RedirectURL)
}

func TestInitiateUnknownGateway(t *testing.T) {
	svc, _ := newTestPaymentService(&fakeAdapter{name: "fake"})

	_, _, err := svc.Initiate(context.Background(), models.PaymentOwnerBooking, "booking-1", "nope", 200, "AED", "")
	require.ErrorIs(t, err, ErrUnknownGateway)
}

func TestInitiateGatewayFailureMarksRowFailed(t *testing.T) {
	svc, repo := newTestPaymentService(&fakeAdapter{name: "fake", initiateErr: errors.New("card network down")})
	ctx := context.Background()

	_, _, err := svc.Initiate(ctx, models.PaymentOwnerBooking, "booking-1", "fake", 200, "AED", "")
	require.Error(t, err)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.Len(t, repo.payments, 1)
	for _, pay := range repo.payments {
		assert.Equal(t, models.PaymentFailed, pay.Status)
	}
}

func TestApplyMovesForwardOnly(t *testing.T) {
	svc, _ := newTestPaymentService(&fakeAdapter{name: "fake"})
	repo := svc.Repo.(*memPaymentRepo)
	ctx := context.Background()
	seedPayment(repo, "pay-1", models.PaymentInitiated)

	captured := &models.NormalizedEvent{PaymentID: "pay-1", Status: models.PaymentCaptured}
	pay, applied, err := svc.Apply(ctx, captured)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, models.PaymentCaptured, pay.Status)

	// Replay of the same event leaves the row untouched.
	_, applied, err = svc.Apply(ctx, captured)
	require.NoError(t, err)
	assert.False(t, applied)

	// A stale Authorized arriving after Captured does not regress.
	_, applied, err = svc.Apply(ctx, &models.NormalizedEvent{PaymentID: "pay-1", Status: models.PaymentAuthorized})
	require.NoError(t, err)
	assert.False(t, applied)

	_, applied, err = svc.Apply(ctx, &models.NormalizedEvent{PaymentID: "pay-1", Status: models.PaymentRefunded})
	require.NoError(t, err)
	assert.True(t, applied)

	// Nothing leaves Refunded.
	_, applied, err = svc.Apply(ctx, &models.NormalizedEvent{PaymentID: "pay-1", Status: models.PaymentFailed})
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestApplyRefundedRequiresCaptured(t *testing.T) {
	svc, _ := newTestPaymentService(&fakeAdapter{name: "fake"})
	repo := svc.Repo.(*memPaymentRepo)
	ctx := context.Background()
	seedPayment(repo, "pay-1", models.PaymentAuthorized)

	_, applied, err := svc.Apply(ctx, &models.NormalizedEvent{PaymentID: "pay-1", Status: models.PaymentRefunded})
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestApplyInitiatedEventIsNoOp(t *testing.T) {
	svc, _ := newTestPaymentService(&fakeAdapter{name: "fake"})
	repo := svc.Repo.(*memPaymentRepo)
	ctx := context.Background()
	seedPayment(repo, "pay-1", models.PaymentInitiated)

	pay, applied, err := svc.Apply(ctx, &models.NormalizedEvent{PaymentID: "pay-1", Status: models.PaymentInitiated})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, models.PaymentInitiated, pay.Status)
}

func TestApplyLateBindsGatewayRef(t *testing.T) {
	svc, _ := newTestPaymentService(&fakeAdapter{name: "fake"})
	repo := svc.Repo.(*memPaymentRepo)
	ctx := context.Background()
	seedPayment(repo, "pay-1", models.PaymentInitiated)

	_, applied, err := svc.Apply(ctx, &models.NormalizedEvent{
		PaymentID:  "pay-1",
		GatewayRef: "ref-late",
		Status:     models.PaymentCaptured,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	stored, err := repo.GetByID(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, "ref-late", stored.GatewayRef)
}

func TestResolveFallsBackToGatewayRef(t *testing.T) {
	svc, _ := newTestPaymentService(&fakeAdapter{name: "fake"})
	repo := svc.Repo.(*memPaymentRepo)
	ctx := context.Background()
	pay := seedPayment(repo, "pay-1", models.PaymentInitiated)
	require.NoError(t, repo.AssignGatewayRef(ctx, pay.ID, "ref-1", ""))

	resolved, err := svc.Resolve(ctx, &models.NormalizedEvent{Gateway: "fake", GatewayRef: "ref-1"})
	require.NoError(t, err)
	assert.Equal(t, "pay-1", resolved.ID)

	_, err = svc.Resolve(ctx, &models.NormalizedEvent{Gateway: "fake", GatewayRef: "ref-unknown"})
	require.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestRefundRequiresCapturedRow(t *testing.T) {
	adapter := &fakeAdapter{name: "fake"}
	svc, repo := newTestPaymentService(adapter)
	ctx := context.Background()
	seedPayment(repo, "pay-1", models.PaymentInitiated)

	_, err := svc.Refund(ctx, "pay-1", 0)
	require.Error(t, err)
	assert.Equal(t, 0, adapter.refunds)
}

func TestRefundZeroAmountRefundsInFull(t *testing.T) {
	adapter := &fakeAdapter{name: "fake"}
	svc, repo := newTestPaymentService(adapter)
	ctx := context.Background()
	seedPayment(repo, "pay-1", models.PaymentCaptured)

	event, err := svc.Refund(ctx, "pay-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.refunds)
	assert.Equal(t, models.PaymentRefunded, event.Status)
	assert.Equal(t, float64(200), event.Amount)
}

func TestTransitionSourcesFollowStatusLattice(t *testing.T) {
	statuses := []models.PaymentStatus{
		models.PaymentInitiated,
		models.PaymentAuthorized,
		models.PaymentCaptured,
		models.PaymentFailed,
		models.PaymentCancelled,
		models.PaymentRefunded,
	}
	for _, to := range statuses {
		allowed := make(map[models.PaymentStatus]bool)
		for _, from := range transitionSources[to] {
			allowed[from] = true
		}
		for _, from := range statuses {
			assert.Equal(t, from.CanTransition(to), allowed[from],
				"from %s to %s", from, to)
		}
	}
	_, ok := transitionSources[models.PaymentInitiated]
	assert.False(t, ok)
}
