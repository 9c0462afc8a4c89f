package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	bookingRepo "tutorhive/database/repository/booking"
	"tutorhive/models"
	"tutorhive/services/payment"
	"tutorhive/services/reservation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

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
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixedIDs struct{ id string }

func (g fixedIDs) NewID() string { return g.id }

type localLocker struct{ mu sync.Mutex }

func (l *localLocker) WithLease(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn()
}

// memBookingRepo mirrors the store's conditional Transition semantics.
type memBookingRepo struct {
	mu       sync.Mutex
	bookings map[string]*models.Booking
}

func newMemBookingRepo() *memBookingRepo {
	return &memBookingRepo{bookings: make(map[string]*models.Booking)}
}

func (r *memBookingRepo) Create(ctx context.Context, b *models.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *b
	r.bookings[b.ID] = &cp
	return nil
}

func (r *memBookingRepo) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, bookingRepo.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *memBookingRepo) ListByStudent(ctx context.Context, studentID string) ([]models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Booking
	for _, b := range r.bookings {
		if b.StudentID == studentID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *memBookingRepo) Transition(ctx context.Context, id string, from []models.BookingStatus, to models.BookingStatus, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if b.Status == f {
			b.Status = to
			b.UpdatedAt = at
			return true, nil
		}
	}
	return false, nil
}

func (r *memBookingRepo) SetPaymentID(ctx context.Context, id, paymentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return bookingRepo.ErrNotFound
	}
	b.PaymentID = paymentID
	return nil
}

// scriptedReservations records calls and fails on demand.
type scriptedReservations struct {
	mu           sync.Mutex
	slot         models.Slot
	confirmErr   error
	holdErr      error
	confirms     int
	releases     int
	holds        int
	freedBookedN int
}

func (f *scriptedReservations) PublishSlots(ctx context.Context, teacherID string, inputs []models.SlotInput) ([]models.Slot, error) {
	return nil, nil
}

func (f *scriptedReservations) ListAvailability(ctx context.Context, teacherID string) ([]models.Slot, error) {
	return nil, nil
}

func (f *scriptedReservations) RemoveSlot(ctx context.Context, teacherID, slotID string) error {
	return nil
}

func (f *scriptedReservations) Hold(ctx context.Context, slotID, holderRef string) (*models.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holds++
	if f.holdErr != nil {
		return nil, f.holdErr
	}
	cp := f.slot
	return &cp, nil
}

func (f *scriptedReservations) Confirm(ctx context.Context, holderRef string) (*models.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirms++
	if f.confirmErr != nil {
		err := f.confirmErr
		f.confirmErr = nil
		return nil, err
	}
	cp := f.slot
	cp.Status = models.SlotBooked
	return &cp, nil
}

func (f *scriptedReservations) Release(ctx context.Context, holderRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	return nil
}

func (f *scriptedReservations) CancelBooked(ctx context.Context, slotID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freedBookedN++
	return nil
}

func (f *scriptedReservations) SweepExpired(ctx context.Context) (int64, error) { return 0, nil }

// stubPayments satisfies the payment service with canned rows.
type stubPayments struct {
	mu        sync.Mutex
	payments  map[string]*models.Payment
	refunds   int
	refundErr error
}

func newStubPayments() *stubPayments {
	return &stubPayments{payments: make(map[string]*models.Payment)}
}

func (p *stubPayments) Initiate(ctx context.Context, ownerType, ownerID, gateway string, amount float64, currency, description string) (*models.Payment, *payment.InitiateResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pay := &models.Payment{
		ID:        "pay-" + ownerID,
		OwnerType: ownerType,
		OwnerID:   ownerID,
		Gateway:   gateway,
		Amount:    amount,
		Currency:  currency,
		Status:    models.PaymentInitiated,
	}
	p.payments[pay.ID] = pay
	return pay, &payment.InitiateResult{GatewayRef: "ref-" + pay.ID, Status: models.PaymentInitiated}, nil
}

func (p *stubPayments) Get(ctx context.Context, paymentID string) (*models.Payment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pay, ok := p.payments[paymentID]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	cp := *pay
	return &cp, nil
}

func (p *stubPayments) Capture(ctx context.Context, paymentID string) (*models.NormalizedEvent, error) {
	return &models.NormalizedEvent{PaymentID: paymentID, Status: models.PaymentCaptured}, nil
}

func (p *stubPayments) Refund(ctx context.Context, paymentID string, amount float64) (*models.NormalizedEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refundErr != nil {
		return nil, p.refundErr
	}
	p.refunds++
	return &models.NormalizedEvent{PaymentID: paymentID, Status: models.PaymentRefunded}, nil
}

func (p *stubPayments) Sync(ctx context.Context, paymentID string) (*models.NormalizedEvent, error) {
	return nil, nil
}

func (p *stubPayments) Apply(ctx context.Context, event *models.NormalizedEvent) (*models.Payment, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pay, ok := p.payments[event.PaymentID]
	if !ok {
		return nil, false, payment.ErrPaymentNotFound
	}
	if pay.Status == event.Status {
		return pay, false, nil
	}
	pay.Status = event.Status
	return pay, true, nil
}

func (p *stubPayments) Resolve(ctx context.Context, event *models.NormalizedEvent) (*models.Payment, error) {
	return p.Get(ctx, event.PaymentID)
}

func (p *stubPayments) Gateways() *payment.Registry { return payment.NewRegistry() }

func (p *stubPayments) setStatus(paymentID string, status models.PaymentStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payments[paymentID].Status = status
}

// countingNotifier records every dispatch.
type countingNotifier struct {
	mu    sync.Mutex
	sends []string
}

func (n *countingNotifier) Send(ctx context.Context, userID, title, body string, data map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends = append(n.sends, userID+":"+title)
	return nil
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sends)
}

type fixture struct {
	svc      *DefaultBookingService
	repo     *memBookingRepo
	reserv   *scriptedReservations
	payments *stubPayments
	notifier *countingNotifier
	clock    *fakeClock
}

func newFixture() *fixture {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	repo := newMemBookingRepo()
	reserv := &scriptedReservations{
		slot: models.Slot{
			ID:        "slot-1",
			TeacherID: "teacher-1",
			Start:     clock.Now().Add(72 * time.Hour),
			End:       clock.Now().Add(73 * time.Hour),
			Price:     200,
			Currency:  "AED",
			Status:    models.SlotHeld,
		},
	}
	payments := newStubPayments()
	notifier := &countingNotifier{}
	svc := &DefaultBookingService{
		Repo:         repo,
		Reservations: reserv,
		Payments:     payments,
		Notifier:     notifier,
		Locker:       &localLocker{},
		Clock:        clock,
		IDs:          fixedIDs{id: "booking-1"},
		CancelCutoff: 24 * time.Hour,
		Logger:       zap.NewNop(),
	}
	return &fixture{svc: svc, repo: repo, reserv: reserv, payments: payments, notifier: notifier, clock: clock}
}

func (f *fixture) pendingBooking(t *testing.T) *models.Booking {
	t.Helper()
	bk, err := f.svc.BookSlot(context.Background(), "student-1", "slot-1")
	require.NoError(t, err)
	require.Equal(t, models.BookingPendingPayment, bk.Status)
	_, err = f.svc.InitiatePayment(context.Background(), bk.ID, "stripe")
	require.NoError(t, err)
	return bk
}

func TestBookSlotSnapshotsSlotState(t *testing.T) {
	f := newFixture()
	bk, err := f.svc.BookSlot(context.Background(), "student-1", "slot-1")
	require.NoError(t, err)

	assert.Equal(t, "teacher-1", bk.TeacherID)
	assert.Equal(t, 200.0, bk.Price)
	assert.Equal(t, "AED", bk.Currency)
	assert.Equal(t, bk.ID, bk.HoldRef)
	assert.Equal(t, f.reserv.slot.Start, bk.SessionStart)
}

func TestCapturedOutcomeConfirmsBooking(t *testing.T) {
	f := newFixture()
	bk := f.pendingBooking(t)

	event := &models.NormalizedEvent{PaymentID: "pay-" + bk.ID, Status: models.PaymentCaptured}
	require.NoError(t, f.svc.OnPaymentOutcome(context.Background(), bk.ID, event))

	got, err := f.repo.GetByID(context.Background(), bk.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, got.Status)
	assert.Equal(t, 1, f.reserv.confirms)
	// Student and teacher each get one notification.
	assert.Equal(t, 2, f.notifier.count())
}

func TestReplayedOutcomeIsNoOp(t *testing.T) {
	f := newFixture()
	bk := f.pendingBooking(t)

	event := &models.NormalizedEvent{PaymentID: "pay-" + bk.ID, Status: models.PaymentCaptured}
	require.NoError(t, f.svc.OnPaymentOutcome(context.Background(), bk.ID, event))
	sendsAfterFirst := f.notifier.count()

	// Same payload redelivered.
	require.NoError(t, f.svc.OnPaymentOutcome(context.Background(), bk.ID, event))

	got, err := f.repo.GetByID(context.Background(), bk.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, got.Status)
	assert.Equal(t, sendsAfterFirst, f.notifier.count())
	assert.Equal(t, 1, f.reserv.confirms)
}

func TestFailedOutcomeReleasesSlot(t *testing.T) {
	f := newFixture()
	bk := f.pendingBooking(t)

	event := &models.NormalizedEvent{
		PaymentID:     "pay-" + bk.ID,
		Status:        models.PaymentFailed,
		FailureReason: "card declined",
	}
	require.NoError(t, f.svc.OnPaymentOutcome(context.Background(), bk.ID, event))

	got, err := f.repo.GetByID(context.Background(), bk.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingFailed, got.Status)
	assert.Equal(t, 1, f.reserv.releases)
	assert.Equal(t, 1, f.notifier.count())
}

func TestFailureThenLateCaptureDoesNotResurrect(t *testing.T) {
	f := newFixture()
	bk := f.pendingBooking(t)

	failed := &models.NormalizedEvent{PaymentID: "pay-" + bk.ID, Status: models.PaymentFailed}
	require.NoError(t, f.svc.OnPaymentOutcome(context.Background(), bk.ID, failed))

	late := &models.NormalizedEvent{PaymentID: "pay-" + bk.ID, Status: models.PaymentCaptured}
	require.NoError(t, f.svc.OnPaymentOutcome(context.Background(), bk.ID, late))

	got, err := f.repo.GetByID(context.Background(), bk.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingFailed, got.Status)
	assert.Equal(t, 0, f.reserv.confirms)
}

func TestConfirmRetakesSlotWhenHoldLapsed(t *testing.T) {
	f := newFixture()
	bk := f.pendingBooking(t)

	f.reserv.confirmErr = reservation.NewHoldExpiredError("hold expired before confirmation")

	event := &models.NormalizedEvent{PaymentID: "pay-" + bk.ID, Status: models.PaymentCaptured}
	require.NoError(t, f.svc.OnPaymentOutcome(context.Background(), bk.ID, event))

	got, err := f.repo.GetByID(context.Background(), bk.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, got.Status)
	// Initial hold, then the re-hold after the lapse.
	assert.Equal(t, 2, f.reserv.holds)
}

func TestConfirmFailsWhenSlotLost(t *testing.T) {
	f := newFixture()
	bk := f.pendingBooking(t)

	f.reserv.confirmErr = reservation.NewHoldExpiredError("hold expired before confirmation")
	f.reserv.holdErr = reservation.NewSlotConflictError("slot no longer available")

	event := &models.NormalizedEvent{PaymentID: "pay-" + bk.ID, Status: models.PaymentCaptured}
	require.NoError(t, f.svc.OnPaymentOutcome(context.Background(), bk.ID, event))

	got, err := f.repo.GetByID(context.Background(), bk.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingFailed, got.Status)
}

func TestCancelPendingReleasesHold(t *testing.T) {
	f := newFixture()
	bk := f.pendingBooking(t)

	require.NoError(t, f.svc.Cancel(context.Background(), bk.ID, "student-1"))

	got, err := f.repo.GetByID(context.Background(), bk.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, got.Status)
	assert.Equal(t, 1, f.reserv.releases)
}

func TestCancelConfirmedWithinCutoffRefused(t *testing.T) {
	f := newFixture()
	bk := f.pendingBooking(t)
	event := &models.NormalizedEvent{PaymentID: "pay-" + bk.ID, Status: models.PaymentCaptured}
	require.NoError(t, f.svc.OnPaymentOutcome(context.Background(), bk.ID, event))

	// Session starts in 72h; move to 12h before it.
	f.clock.Advance(60 * time.Hour)

	err := f.svc.Cancel(context.Background(), bk.ID, "student-1")
	var bkErr *BookingError
	require.ErrorAs(t, err, &bkErr)
	assert.Equal(t, CodeCutoffPassed, bkErr.Code)

	got, _ := f.repo.GetByID(context.Background(), bk.ID)
	assert.Equal(t, models.BookingConfirmed, got.Status)
}

func TestCancelConfirmedRefundsCapturedPayment(t *testing.T) {
	f := newFixture()
	bk := f.pendingBooking(t)
	event := &models.NormalizedEvent{PaymentID: "pay-" + bk.ID, Status: models.PaymentCaptured}
	require.NoError(t, f.svc.OnPaymentOutcome(context.Background(), bk.ID, event))
	f.payments.setStatus("pay-"+bk.ID, models.PaymentCaptured)

	require.NoError(t, f.svc.Cancel(context.Background(), bk.ID, "student-1"))

	got, err := f.repo.GetByID(context.Background(), bk.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingRefunded, got.Status)
	assert.Equal(t, 1, f.payments.refunds)
	assert.Equal(t, 1, f.reserv.freedBookedN)
}

func TestCancelKeepsSlotBookedWhenRefundFails(t *testing.T) {
	f := newFixture()
	bk := f.pendingBooking(t)
	event := &models.NormalizedEvent{PaymentID: "pay-" + bk.ID, Status: models.PaymentCaptured}
	require.NoError(t, f.svc.OnPaymentOutcome(context.Background(), bk.ID, event))
	f.payments.setStatus("pay-"+bk.ID, models.PaymentCaptured)

	f.payments.refundErr = errors.New("gateway 503")
	require.Error(t, f.svc.Cancel(context.Background(), bk.ID, "student-1"))

	// Nothing moved: the booking is still Confirmed and the slot is
	// still Booked, so the gateway outage cannot strand a slot another
	// student could take while this booking holds its claim.
	got, err := f.repo.GetByID(context.Background(), bk.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, got.Status)
	assert.Equal(t, 0, f.reserv.freedBookedN)

	// The retry after the outage completes the cancel.
	f.payments.refundErr = nil
	require.NoError(t, f.svc.Cancel(context.Background(), bk.ID, "student-1"))

	got, err = f.repo.GetByID(context.Background(), bk.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingRefunded, got.Status)
	assert.Equal(t, 1, f.reserv.freedBookedN)
}

func TestCancelByAnotherStudentRefused(t *testing.T) {
	f := newFixture()
	bk := f.pendingBooking(t)

	err := f.svc.Cancel(context.Background(), bk.ID, "student-2")
	var bkErr *BookingError
	require.ErrorAs(t, err, &bkErr)
	assert.Equal(t, CodeNotAuthorized, bkErr.Code)
}

func TestCompleteRequiresConfirmed(t *testing.T) {
	f := newFixture()
	bk := f.pendingBooking(t)

	err := f.svc.Complete(context.Background(), bk.ID)
	var bkErr *BookingError
	require.ErrorAs(t, err, &bkErr)
	assert.Equal(t, CodeInvalidState, bkErr.Code)

	event := &models.NormalizedEvent{PaymentID: "pay-" + bk.ID, Status: models.PaymentCaptured}
	require.NoError(t, f.svc.OnPaymentOutcome(context.Background(), bk.ID, event))

	require.NoError(t, f.svc.Complete(context.Background(), bk.ID))
	got, _ := f.repo.GetByID(context.Background(), bk.ID)
	assert.Equal(t, models.BookingCompleted, got.Status)

	// Completing twice is a no-op.
	require.NoError(t, f.svc.Complete(context.Background(), bk.ID))
}

func TestRefundedOutcomeKeepsSlotBooked(t *testing.T) {
	f := newFixture()
	bk := f.pendingBooking(t)
	event := &models.NormalizedEvent{PaymentID: "pay-" + bk.ID, Status: models.PaymentCaptured}
	require.NoError(t, f.svc.OnPaymentOutcome(context.Background(), bk.ID, event))

	refund := &models.NormalizedEvent{PaymentID: "pay-" + bk.ID, Status: models.PaymentRefunded}
	require.NoError(t, f.svc.OnPaymentOutcome(context.Background(), bk.ID, refund))

	got, err := f.repo.GetByID(context.Background(), bk.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingRefunded, got.Status)
	assert.Equal(t, 0, f.reserv.freedBookedN)
}

func TestOutcomeAfterCancelIsIgnored(t *testing.T) {
	f := newFixture()
	bk := f.pendingBooking(t)
	require.NoError(t, f.svc.Cancel(context.Background(), bk.ID, "student-1"))

	event := &models.NormalizedEvent{PaymentID: "pay-" + bk.ID, Status: models.PaymentCaptured}
	require.NoError(t, f.svc.OnPaymentOutcome(context.Background(), bk.ID, event))

	got, err := f.repo.GetByID(context.Background(), bk.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, got.Status)
	assert.Equal(t, 0, f.reserv.confirms)
}
