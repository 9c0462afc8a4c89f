package subscription

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	subscriptionRepo "tutorhive/database/repository/subscription"
	"tutorhive/models"
	"tutorhive/services/payment"
)

type memSubscriptionRepo struct {
	mu       sync.Mutex
	subs     map[string]*models.Subscription
	packages map[string]*models.Package
}

func newMemSubscriptionRepo() *memSubscriptionRepo {
	return &memSubscriptionRepo{
		subs: make(map[string]*models.Subscription),
		packages: map[string]*models.Package{
			"pkg-1": {ID: "pkg-1", Name: "Math Pro", Price: 500, Currency: "AED", SessionsPerPeriod: 8},
		},
	}
}

func (r *memSubscriptionRepo) Create(ctx context.Context, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.UserID == sub.UserID && s.PackageID == sub.PackageID && s.Status == models.SubscriptionActive {
			return subscriptionRepo.ErrAlreadyActive
		}
	}
	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

func (r *memSubscriptionRepo) GetByID(ctx context.Context, id string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, subscriptionRepo.ErrNotFound
	}
	cp := *sub
	cp.PaymentIDs = append([]string(nil), sub.PaymentIDs...)
	return &cp, nil
}

func (r *memSubscriptionRepo) GetActive(ctx context.Context, userID, packageID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subs {
		if sub.UserID == userID && sub.PackageID == packageID && sub.Status == models.SubscriptionActive {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, subscriptionRepo.ErrNotFound
}

func (r *memSubscriptionRepo) Transition(ctx context.Context, id string, from []models.SubscriptionStatus, to models.SubscriptionStatus, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if sub.Status == f {
			sub.Status = to
			sub.UpdatedAt = at
			if to == models.SubscriptionCancelled {
				sub.CancelledAt = &at
			}
			return true, nil
		}
	}
	return false, nil
}

func (r *memSubscriptionRepo) ExtendPeriod(ctx context.Context, id string, periodEnd time.Time, paymentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return subscriptionRepo.ErrNotFound
	}
	sub.CurrentPeriodEnd = periodEnd
	sub.PaymentIDs = append(sub.PaymentIDs, paymentID)
	return nil
}

func (r *memSubscriptionRepo) ListDueForRenewal(ctx context.Context, now time.Time, limit int64) ([]models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Subscription
	for _, sub := range r.subs {
		if (sub.Status == models.SubscriptionActive || sub.Status == models.SubscriptionPastDue) &&
			sub.CurrentPeriodEnd.Before(now) {
			out = append(out, *sub)
		}
	}
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memSubscriptionRepo) GetPackage(ctx context.Context, packageID string) (*models.Package, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pkg, ok := r.packages[packageID]
	if !ok {
		return nil, subscriptionRepo.ErrNotFound
	}
	cp := *pkg
	return &cp, nil
}

// chargeStub satisfies payment.Service; Initiate records cycle charges.
type chargeStub struct {
	mu          sync.Mutex
	initiateErr error
	charges     []string // owner ids, in order
}

func (s *chargeStub) Initiate(ctx context.Context, ownerType, ownerID, gateway string, amount float64, currency, description string) (*models.Payment, *payment.InitiateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initiateErr != nil {
		return nil, nil, s.initiateErr
	}
	s.charges = append(s.charges, ownerID)
	pay := &models.Payment{
		ID:        "pay-" + strconv.Itoa(len(s.charges)),
		OwnerType: ownerType,
		OwnerID:   ownerID,
		Gateway:   gateway,
		Amount:    amount,
		Currency:  currency,
		Status:    models.PaymentInitiated,
	}
	return pay, &payment.InitiateResult{RedirectURL: "https://pay.example/" + pay.ID, Status: models.PaymentInitiated}, nil
}

func (s *chargeStub) Get(ctx context.Context, paymentID string) (*models.Payment, error) {
	return nil, payment.ErrPaymentNotFound
}

func (s *chargeStub) Capture(ctx context.Context, paymentID string) (*models.NormalizedEvent, error) {
	return nil, errors.New("not used")
}

func (s *chargeStub) Refund(ctx context.Context, paymentID string, amount float64) (*models.NormalizedEvent, error) {
	return nil, errors.New("not used")
}

func (s *chargeStub) Sync(ctx context.Context, paymentID string) (*models.NormalizedEvent, error) {
	return nil, errors.New("not used")
}

func (s *chargeStub) Apply(ctx context.Context, event *models.NormalizedEvent) (*models.Payment, bool, error) {
	return nil, false, errors.New("not used")
}

func (s *chargeStub) Resolve(ctx context.Context, event *models.NormalizedEvent) (*models.Payment, error) {
	return nil, payment.ErrPaymentNotFound
}

func (s *chargeStub) Gateways() *payment.Registry { return payment.NewRegistry() }

func (s *chargeStub) chargeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.charges)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return "sub-" + strconv.Itoa(g.n)
}

// localLocker serializes in-process, standing in for the redis lease.
type localLocker struct {
	mu sync.Mutex
}

func (l *localLocker) WithLease(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn()
}

type certStub struct {
	valid bool
	err   error
}

func (c *certStub) HasValidCertificate(ctx context.Context, userID string) (bool, error) {
	return c.valid, c.err
}

type subFixture struct {
	svc     *DefaultSubscriptionService
	repo    *memSubscriptionRepo
	charges *chargeStub
	clock   *fakeClock
	certs   *certStub
}

func newSubFixture() *subFixture {
	repo := newMemSubscriptionRepo()
	charges := &chargeStub{}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	certs := &certStub{}
	svc := &DefaultSubscriptionService{
		Repo:          repo,
		Payments:      charges,
		Certificates:  certs,
		Locker:        &localLocker{},
		Clock:         clock,
		IDs:           &seqIDs{},
		RenewalPeriod: 30 * 24 * time.Hour,
		Logger:        zap.NewNop(),
	}
	return &subFixture{svc: svc, repo: repo, charges: charges, clock: clock, certs: certs}
}

func captured(paymentID string) *models.NormalizedEvent {
	return &models.NormalizedEvent{Status: models.PaymentCaptured, PaymentID: paymentID}
}

func TestSubscribeCreatesPastDueAndOpensCharge(t *testing.T) {
	f := newSubFixture()
	ctx := context.Background()

	sub, pay, err := f.svc.Subscribe(ctx, "student-1", "pkg-1", "stripe")
	require.NoError(t, err)

	assert.Equal(t, models.SubscriptionPastDue, sub.Status)
	assert.Equal(t, f.clock.Now(), sub.CurrentPeriodEnd)
	assert.Equal(t, models.PaymentOwnerSubscription, pay.OwnerType)
	assert.Equal(t, sub.ID, pay.OwnerID)
	assert.Equal(t, float64(500), pay.Amount)
	assert.Equal(t, 1, f.charges.chargeCount())
}

func TestSubscribeUnknownPackage(t *testing.T) {
	f := newSubFixture()

	_, _, err := f.svc.Subscribe(context.Background(), "student-1", "pkg-missing", "stripe")
	var subErr *SubscriptionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, CodeNotFound, subErr.Code)
}

func TestSubscribeRejectsSecondActiveSubscription(t *testing.T) {
	f := newSubFixture()
	ctx := context.Background()

	sub, _, err := f.svc.Subscribe(ctx, "student-1", "pkg-1", "stripe")
	require.NoError(t, err)
	require.NoError(t, f.svc.OnPaymentOutcome(ctx, sub.ID, captured("pay-1")))

	_, _, err = f.svc.Subscribe(ctx, "student-1", "pkg-1", "stripe")
	var subErr *SubscriptionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, CodeAlreadyActive, subErr.Code)
}

func TestCapturedPaymentActivatesAndExtendsPeriod(t *testing.T) {
	f := newSubFixture()
	ctx := context.Background()

	sub, _, err := f.svc.Subscribe(ctx, "student-1", "pkg-1", "stripe")
	require.NoError(t, err)
	require.NoError(t, f.svc.OnPaymentOutcome(ctx, sub.ID, captured("pay-1")))

	stored, err := f.repo.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionActive, stored.Status)
	assert.Equal(t, f.clock.Now().Add(30*24*time.Hour), stored.CurrentPeriodEnd)
	assert.Equal(t, []string{"pay-1"}, stored.PaymentIDs)
}

func TestReplayedCaptureDoesNotDoubleExtend(t *testing.T) {
	f := newSubFixture()
	ctx := context.Background()

	sub, _, err := f.svc.Subscribe(ctx, "student-1", "pkg-1", "stripe")
	require.NoError(t, err)
	require.NoError(t, f.svc.OnPaymentOutcome(ctx, sub.ID, captured("pay-1")))

	before, err := f.repo.GetByID(ctx, sub.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.OnPaymentOutcome(ctx, sub.ID, captured("pay-1")))

	after, err := f.repo.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, before.CurrentPeriodEnd, after.CurrentPeriodEnd)
	assert.Equal(t, []string{"pay-1"}, after.PaymentIDs)
}

func TestRenewalCaptureExtendsFromPeriodEnd(t *testing.T) {
	f := newSubFixture()
	ctx := context.Background()

	sub, _, err := f.svc.Subscribe(ctx, "student-1", "pkg-1", "stripe")
	require.NoError(t, err)
	require.NoError(t, f.svc.OnPaymentOutcome(ctx, sub.ID, captured("pay-1")))

	firstEnd := f.clock.Now().Add(30 * 24 * time.Hour)

	// Renewal paid early, mid-period: the next period stacks on the
	// current one instead of starting from now.
	f.clock.Advance(10 * 24 * time.Hour)
	require.NoError(t, f.svc.OnPaymentOutcome(ctx, sub.ID, captured("pay-2")))

	stored, err := f.repo.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, firstEnd.Add(30*24*time.Hour), stored.CurrentPeriodEnd)
	assert.Equal(t, []string{"pay-1", "pay-2"}, stored.PaymentIDs)
}

func TestFailedPaymentMarksActivePastDue(t *testing.T) {
	f := newSubFixture()
	ctx := context.Background()

	sub, _, err := f.svc.Subscribe(ctx, "student-1", "pkg-1", "stripe")
	require.NoError(t, err)
	require.NoError(t, f.svc.OnPaymentOutcome(ctx, sub.ID, captured("pay-1")))

	require.NoError(t, f.svc.OnPaymentOutcome(ctx, sub.ID,
		&models.NormalizedEvent{Status: models.PaymentFailed, PaymentID: "pay-2"}))

	stored, err := f.repo.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionPastDue, stored.Status)
}

func TestCaptureAfterCancellationIsIgnored(t *testing.T) {
	f := newSubFixture()
	ctx := context.Background()

	sub, _, err := f.svc.Subscribe(ctx, "student-1", "pkg-1", "stripe")
	require.NoError(t, err)
	require.NoError(t, f.svc.OnPaymentOutcome(ctx, sub.ID, captured("pay-1")))
	require.NoError(t, f.svc.CancelSubscription(ctx, sub.ID, "student-1"))

	before, err := f.repo.GetByID(ctx, sub.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.OnPaymentOutcome(ctx, sub.ID, captured("pay-2")))

	after, err := f.repo.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionCancelled, after.Status)
	assert.Equal(t, before.CurrentPeriodEnd, after.CurrentPeriodEnd)
}

func TestCancelSubscriptionAuthorizationAndIdempotency(t *testing.T) {
	f := newSubFixture()
	ctx := context.Background()

	sub, _, err := f.svc.Subscribe(ctx, "student-1", "pkg-1", "stripe")
	require.NoError(t, err)
	require.NoError(t, f.svc.OnPaymentOutcome(ctx, sub.ID, captured("pay-1")))

	err = f.svc.CancelSubscription(ctx, sub.ID, "student-2")
	var subErr *SubscriptionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, CodeNotAuthorized, subErr.Code)

	require.NoError(t, f.svc.CancelSubscription(ctx, sub.ID, "student-1"))
	// Cancelling again is a no-op, not an error.
	require.NoError(t, f.svc.CancelSubscription(ctx, sub.ID, "student-1"))

	stored, err := f.repo.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionCancelled, stored.Status)
	require.NotNil(t, stored.CancelledAt)
}

func TestRenewDueRechargesLapsedActive(t *testing.T) {
	f := newSubFixture()
	ctx := context.Background()

	sub, _, err := f.svc.Subscribe(ctx, "student-1", "pkg-1", "stripe")
	require.NoError(t, err)
	require.NoError(t, f.svc.OnPaymentOutcome(ctx, sub.ID, captured("pay-1")))

	f.clock.Advance(31 * 24 * time.Hour)

	renewed, err := f.svc.RenewDue(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, renewed)
	assert.Equal(t, 2, f.charges.chargeCount())
}

func TestRenewDueExpiresStalePastDue(t *testing.T) {
	f := newSubFixture()
	ctx := context.Background()

	sub, _, err := f.svc.Subscribe(ctx, "student-1", "pkg-1", "stripe")
	require.NoError(t, err)

	// The opening charge never captured; a full renewal period past
	// the (immediate) period end exhausts the grace window.
	f.clock.Advance(31 * 24 * time.Hour)

	renewed, err := f.svc.RenewDue(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, renewed)

	stored, err := f.repo.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionExpired, stored.Status)
}

func TestRenewDueMarksActivePastDueWhenChargeFails(t *testing.T) {
	f := newSubFixture()
	ctx := context.Background()

	sub, _, err := f.svc.Subscribe(ctx, "student-1", "pkg-1", "stripe")
	require.NoError(t, err)
	require.NoError(t, f.svc.OnPaymentOutcome(ctx, sub.ID, captured("pay-1")))

	f.clock.Advance(31 * 24 * time.Hour)
	f.charges.initiateErr = errors.New("gateway down")

	renewed, err := f.svc.RenewDue(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, renewed)

	stored, err := f.repo.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionPastDue, stored.Status)
}

func TestCheckEligibility(t *testing.T) {
	f := newSubFixture()
	ctx := context.Background()

	resp, err := f.svc.CheckEligibility(ctx, "student-1", "pkg-1")
	require.NoError(t, err)
	assert.False(t, resp.Eligible)
	assert.Contains(t, resp.Reason, "no active subscription")

	sub, _, err := f.svc.Subscribe(ctx, "student-1", "pkg-1", "stripe")
	require.NoError(t, err)
	require.NoError(t, f.svc.OnPaymentOutcome(ctx, sub.ID, captured("pay-1")))

	resp, err = f.svc.CheckEligibility(ctx, "student-1", "pkg-1")
	require.NoError(t, err)
	assert.True(t, resp.Eligible)

	f.certs.valid = true
	resp, err = f.svc.CheckEligibility(ctx, "student-1", "pkg-1")
	require.NoError(t, err)
	assert.False(t, resp.Eligible)
	assert.Contains(t, resp.Reason, "certificate")

	// Period lapsed while still nominally Active.
	f.certs.valid = false
	f.clock.Advance(31 * 24 * time.Hour)
	resp, err = f.svc.CheckEligibility(ctx, "student-1", "pkg-1")
	require.NoError(t, err)
	assert.False(t, resp.Eligible)
	assert.Contains(t, resp.Reason, "lapsed")
}
