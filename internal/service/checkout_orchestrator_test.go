package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"checkout-service/config"
	"checkout-service/internal/models"
	"checkout-service/internal/upstream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCartAPI struct {
	cart *models.ServerCart
	err  error
}

func (f *fakeCartAPI) GetCart(ctx context.Context, bearer string) (*models.ServerCart, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cart, nil
}

type fakeRegionAPI struct {
	regions []models.Region
	err     error
}

func (f *fakeRegionAPI) ListRegions(ctx context.Context, bearer string) ([]models.Region, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.regions, nil
}

type fakeServiceAPI struct {
	detail *models.ServiceDetail
	err    error
}

func (f *fakeServiceAPI) GetService(ctx context.Context, bearer string, serviceID int64) (*models.ServiceDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.detail, nil
}

type fakeIntentAPI struct {
	mu sync.Mutex
	// fn decides the outcome of the n-th call (1-based)
	fn    func(call int) (*upstream.IntentResult, error)
	calls int
}

func (f *fakeIntentAPI) CreateIntent(ctx context.Context, bearer string, target models.CheckoutTarget) (*upstream.IntentResult, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	fn := f.fn
	f.mu.Unlock()
	return fn(call)
}

func (f *fakeIntentAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeConfirmer struct {
	mu      sync.Mutex
	err     error
	calls   int
	lastReq *upstream.ConfirmRequest
}

func (f *fakeConfirmer) ConfirmPayment(ctx context.Context, bearer string, req *upstream.ConfirmRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	return f.err
}

func (f *fakeConfirmer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memoryDrafts struct {
	mu     sync.Mutex
	drafts map[string]*models.CheckoutDraft
}

func newMemoryDrafts() *memoryDrafts {
	return &memoryDrafts{drafts: make(map[string]*models.CheckoutDraft)}
}

func (m *memoryDrafts) SaveDraft(ctx context.Context, sessionID string, draft *models.CheckoutDraft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[sessionID] = draft
	return nil
}

func (m *memoryDrafts) LoadDraft(ctx context.Context, sessionID string) (*models.CheckoutDraft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drafts[sessionID], nil
}

func (m *memoryDrafts) DeleteDraft(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, sessionID)
	return nil
}

func (m *memoryDrafts) get(sessionID string) *models.CheckoutDraft {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drafts[sessionID]
}

type testHarness struct {
	orchestrator *Orchestrator
	carts        *fakeCartAPI
	regions      *fakeRegionAPI
	services     *fakeServiceAPI
	intents      *fakeIntentAPI
	confirmer    *fakeConfirmer
	drafts       *memoryDrafts
}

func readyIntent(call int) (*upstream.IntentResult, error) {
	return &upstream.IntentResult{
		ClientSecret: "cs_test",
		Payload:      json.RawMessage(`{"client_secret":"cs_test","order_id":77}`),
	}, nil
}

func defaultCart() *models.ServerCart {
	return &models.ServerCart{
		Lines: []models.CartLine{
			{LineID: "l1", ProductID: 42, UnitPrice: 2500, Quantity: 2},
		},
		ShippingCost: 500,
		TaxAmount:    250,
		TotalAmount:  5750,
	}
}

func newHarness(t *testing.T) *testHarness {
	return newHarnessWithEvents(t, nil)
}

func newHarnessWithEvents(t *testing.T, sink EventSink) *testHarness {
	t.Helper()
	h := &testHarness{
		carts:     &fakeCartAPI{cart: defaultCart()},
		regions:   &fakeRegionAPI{regions: []models.Region{{ID: 1, Name: "North"}}},
		services:  &fakeServiceAPI{},
		intents:   &fakeIntentAPI{fn: readyIntent},
		confirmer: &fakeConfirmer{},
		drafts:    newMemoryDrafts(),
	}
	cfg := config.CheckoutConfig{
		MaxAutoRetries:   2,
		RetryBackoffStep: 10 * time.Millisecond,
		RedirectDelay:    60 * time.Millisecond,
		DraftTTL:         time.Minute,
	}
	h.orchestrator = NewOrchestrator(
		h.carts, h.regions, h.services, h.intents, h.confirmer,
		h.drafts, sink, NewLedgerStore(), cfg,
	)
	return h
}

func cartTarget() models.CheckoutTarget {
	return models.CheckoutTarget{CartRef: "current"}
}

func (h *testHarness) waitForState(t *testing.T, sessionID, state string) {
	t.Helper()
	require.Eventually(t, func() bool {
		view, err := h.orchestrator.GetSession(sessionID)
		return err == nil && view.State == state
	}, 2*time.Second, 5*time.Millisecond, "session never reached %s", state)
}

func validFields() FieldsUpdate {
	return FieldsUpdate{
		Contact: models.ContactFields{
			Email:     "jo@example.com",
			FirstName: "Jo",
			LastName:  "Shopper",
			Phone:     "555-0100",
		},
	}
}

func TestStartSessionReachesPaymentReady(t *testing.T) {
	h := newHarness(t)

	view, err := h.orchestrator.StartSession(context.Background(), "tok", cartTarget())
	require.NoError(t, err)

	h.waitForState(t, view.ID, models.StatePaymentReady)

	view, err = h.orchestrator.GetSession(view.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IntentReady, view.IntentPhase)
	assert.Equal(t, int64(5000), view.Summary.Subtotal)
	require.NotNil(t, view.Summary.Total)
	assert.Equal(t, int64(5750), *view.Summary.Total)

	// Regions load independently of the payment path.
	assert.Eventually(t, func() bool {
		view, err := h.orchestrator.GetSession(view.ID)
		return err == nil && len(view.Regions) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestStartSessionRequiresBearer(t *testing.T) {
	h := newHarness(t)

	_, err := h.orchestrator.StartSession(context.Background(), "", cartTarget())
	require.Error(t, err)
	assert.Equal(t, upstream.ClassUnauthorized, upstream.AsError(err).Class)
}

func TestEmptyCartEndsSession(t *testing.T) {
	h := newHarness(t)
	h.carts.cart = &models.ServerCart{}

	view, err := h.orchestrator.StartSession(context.Background(), "tok", cartTarget())
	require.NoError(t, err)

	h.waitForState(t, view.ID, models.StateCartEmpty)

	// Not an error state: no error payload attached.
	view, err = h.orchestrator.GetSession(view.ID)
	require.NoError(t, err)
	assert.Nil(t, view.Error)
}

func TestCartFetchFailureIsRecoverableBanner(t *testing.T) {
	h := newHarness(t)
	h.carts.err = &upstream.Error{Class: upstream.ClassNetwork, Message: "boom"}

	view, err := h.orchestrator.StartSession(context.Background(), "tok", cartTarget())
	require.NoError(t, err)

	// Intent creation proceeds regardless of the cart failure.
	h.waitForState(t, view.ID, models.StatePaymentReady)

	view, err = h.orchestrator.GetSession(view.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, view.CartBanner)
}

func TestRetryBoundExactlyThreeAttempts(t *testing.T) {
	h := newHarness(t)
	h.intents.fn = func(call int) (*upstream.IntentResult, error) {
		return nil, &upstream.Error{Class: upstream.ClassNetwork, Message: "down"}
	}

	view, err := h.orchestrator.StartSession(context.Background(), "tok", cartTarget())
	require.NoError(t, err)

	h.waitForState(t, view.ID, models.StatePaymentError)
	assert.Equal(t, 3, h.intents.callCount())

	// Exhausted: no further calls fire on their own.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 3, h.intents.callCount())

	view, err = h.orchestrator.GetSession(view.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Error)
	assert.Equal(t, string(upstream.ClassNetwork), view.Error.Class)
	assert.True(t, view.Error.CanRetry)
}

func TestUnauthorizedIsNeverAutoRetried(t *testing.T) {
	h := newHarness(t)
	h.intents.fn = func(call int) (*upstream.IntentResult, error) {
		return nil, &upstream.Error{Class: upstream.ClassUnauthorized, Status: 401}
	}

	view, err := h.orchestrator.StartSession(context.Background(), "tok", cartTarget())
	require.NoError(t, err)

	h.waitForState(t, view.ID, models.StatePaymentError)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.intents.callCount())

	view, err = h.orchestrator.GetSession(view.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Error)
	assert.True(t, view.Error.LoginRequired)
	assert.False(t, view.Error.CanRetry)
}

func TestMissingSecretIsNeverAutoRetried(t *testing.T) {
	h := newHarness(t)
	h.intents.fn = func(call int) (*upstream.IntentResult, error) {
		return nil, &upstream.Error{Class: upstream.ClassMissingSecret}
	}

	view, err := h.orchestrator.StartSession(context.Background(), "tok", cartTarget())
	require.NoError(t, err)

	h.waitForState(t, view.ID, models.StatePaymentError)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, h.intents.callCount())
}

func TestManualRetryResetsCounter(t *testing.T) {
	h := newHarness(t)
	h.intents.fn = func(call int) (*upstream.IntentResult, error) {
		return nil, &upstream.Error{Class: upstream.ClassServer, Status: 503}
	}

	view, err := h.orchestrator.StartSession(context.Background(), "tok", cartTarget())
	require.NoError(t, err)

	h.waitForState(t, view.ID, models.StatePaymentError)
	require.Equal(t, 3, h.intents.callCount())

	_, err = h.orchestrator.ManualRetry(view.ID)
	require.NoError(t, err)

	// A fresh budget: one manual attempt plus two automatic retries.
	require.Eventually(t, func() bool {
		return h.intents.callCount() == 6
	}, 2*time.Second, 5*time.Millisecond)
	h.waitForState(t, view.ID, models.StatePaymentError)
}

func TestManualRetryWhileTimerPendingFiresOnce(t *testing.T) {
	h := newHarness(t)
	h.orchestrator.cfg.RetryBackoffStep = 150 * time.Millisecond
	h.intents.fn = func(call int) (*upstream.IntentResult, error) {
		if call == 1 {
			return nil, &upstream.Error{Class: upstream.ClassNetwork, Message: "blip"}
		}
		return readyIntent(call)
	}

	view, err := h.orchestrator.StartSession(context.Background(), "tok", cartTarget())
	require.NoError(t, err)

	// First attempt fails and schedules an automatic retry 150ms out.
	require.Eventually(t, func() bool {
		return h.intents.callCount() == 1
	}, time.Second, 5*time.Millisecond)

	// Manual retry lands before the timer: the timer must be cancelled,
	// leaving exactly one retry call.
	_, err = h.orchestrator.ManualRetry(view.ID)
	require.NoError(t, err)

	h.waitForState(t, view.ID, models.StatePaymentReady)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 2, h.intents.callCount())
}

func TestAbandonCancelsPendingRetry(t *testing.T) {
	h := newHarness(t)
	h.orchestrator.cfg.RetryBackoffStep = 100 * time.Millisecond
	h.intents.fn = func(call int) (*upstream.IntentResult, error) {
		return nil, &upstream.Error{Class: upstream.ClassNetwork, Message: "down"}
	}

	view, err := h.orchestrator.StartSession(context.Background(), "tok", cartTarget())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.intents.callCount() == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, h.orchestrator.Abandon(view.ID))

	// No retry fires after the session is gone.
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, 1, h.intents.callCount())

	_, err = h.orchestrator.GetSession(view.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestConfirmHappyPathClearsDraft(t *testing.T) {
	h := newHarness(t)

	view, err := h.orchestrator.StartSession(context.Background(), "tok", cartTarget())
	require.NoError(t, err)
	h.waitForState(t, view.ID, models.StatePaymentReady)

	_, err = h.orchestrator.UpdateFields(context.Background(), view.ID, validFields())
	require.NoError(t, err)
	require.NotNil(t, h.drafts.get(view.ID))

	view, err = h.orchestrator.Confirm(view.ID, "tok_confirm")
	require.NoError(t, err)
	assert.Equal(t, models.StateSuccess, view.State)
	assert.Greater(t, view.RedirectDelayMs, int64(0))

	// Draft is cleared exactly on success.
	assert.Nil(t, h.drafts.get(view.ID))
	assert.Equal(t, 1, h.confirmer.callCount())

	// The confirmation echoed the checkout payload and token.
	h.confirmer.mu.Lock()
	req := h.confirmer.lastReq
	h.confirmer.mu.Unlock()
	assert.Equal(t, "tok_confirm", req.ConfirmationToken)
	assert.JSONEq(t, `{"client_secret":"cs_test","order_id":77}`, string(req.CheckoutPayload))

	// The session is reaped after the redirect delay.
	require.Eventually(t, func() bool {
		_, err := h.orchestrator.GetSession(view.ID)
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func TestConfirmErrorRetainsDraftAndSurfacesReason(t *testing.T) {
	h := newHarness(t)
	h.confirmer.err = &upstream.Error{Class: upstream.ClassConfirmFailed, Status: 409, Message: "Slot already booked"}

	view, err := h.orchestrator.StartSession(context.Background(), "tok", cartTarget())
	require.NoError(t, err)
	h.waitForState(t, view.ID, models.StatePaymentReady)

	_, err = h.orchestrator.UpdateFields(context.Background(), view.ID, validFields())
	require.NoError(t, err)

	view, err = h.orchestrator.Confirm(view.ID, "tok_confirm")
	require.NoError(t, err)
	assert.Equal(t, models.StateConfirmError, view.State)
	require.NotNil(t, view.Error)
	assert.Equal(t, string(upstream.ClassConfirmFailed), view.Error.Class)
	// Server reason verbatim, plus the escape hatch; a rejected
	// confirmation offers back-to-cart, never an intent retry.
	assert.Equal(t, "Slot already booked", view.Error.Message)
	assert.True(t, view.Error.BackToCart)
	assert.False(t, view.Error.CanRetry)

	// Draft survives the failed attempt.
	assert.NotNil(t, h.drafts.get(view.ID))
}

func TestConfirmRequiresPaymentReady(t *testing.T) {
	h := newHarness(t)
	h.intents.fn = func(call int) (*upstream.IntentResult, error) {
		return nil, &upstream.Error{Class: upstream.ClassMissingSecret}
	}

	view, err := h.orchestrator.StartSession(context.Background(), "tok", cartTarget())
	require.NoError(t, err)
	h.waitForState(t, view.ID, models.StatePaymentError)

	_, err = h.orchestrator.Confirm(view.ID, "tok_confirm")
	require.Error(t, err)
	assert.Equal(t, 0, h.confirmer.callCount())
}

func TestConfirmValidatesFieldsBeforeNetwork(t *testing.T) {
	h := newHarness(t)

	view, err := h.orchestrator.StartSession(context.Background(), "tok", cartTarget())
	require.NoError(t, err)
	h.waitForState(t, view.ID, models.StatePaymentReady)

	fields := validFields()
	fields.Contact.Email = "not-an-email"
	_, err = h.orchestrator.UpdateFields(context.Background(), view.ID, fields)
	require.NoError(t, err)

	_, err = h.orchestrator.Confirm(view.ID, "tok_confirm")
	require.Error(t, err)
	assert.Equal(t, upstream.ClassValidation, upstream.AsError(err).Class)
	assert.Equal(t, 0, h.confirmer.callCount())
}

func TestHomeServiceRequiresShippingFields(t *testing.T) {
	h := newHarness(t)

	view, err := h.orchestrator.StartSession(context.Background(), "tok", cartTarget())
	require.NoError(t, err)
	h.waitForState(t, view.ID, models.StatePaymentReady)

	fields := validFields()
	fields.HomeService = true
	fields.Shipping = &models.ShippingFields{Address: "1 Main St", City: "Springfield"}
	_, err = h.orchestrator.UpdateFields(context.Background(), view.ID, fields)
	require.NoError(t, err)

	_, err = h.orchestrator.Confirm(view.ID, "tok_confirm")
	require.Error(t, err)
	assert.Equal(t, upstream.ClassValidation, upstream.AsError(err).Class)
	assert.Equal(t, 0, h.confirmer.callCount())
}

func TestTogglingHomeServiceOffClearsShippingFields(t *testing.T) {
	h := newHarness(t)

	view, err := h.orchestrator.StartSession(context.Background(), "tok", cartTarget())
	require.NoError(t, err)
	h.waitForState(t, view.ID, models.StatePaymentReady)

	fields := validFields()
	fields.HomeService = true
	fields.Shipping = &models.ShippingFields{
		Address: "1 Main St", City: "Springfield", RegionID: 1, PostalCode: "12345",
	}
	_, err = h.orchestrator.UpdateFields(context.Background(), view.ID, fields)
	require.NoError(t, err)
	require.NotNil(t, h.drafts.get(view.ID).Shipping)

	// Toggle off: the address is cleared, not merely hidden.
	fields.HomeService = false
	_, err = h.orchestrator.UpdateFields(context.Background(), view.ID, fields)
	require.NoError(t, err)
	assert.Nil(t, h.drafts.get(view.ID).Shipping)

	// Confirmation now submits without a stale address.
	_, err = h.orchestrator.Confirm(view.ID, "tok_confirm")
	require.NoError(t, err)
	h.confirmer.mu.Lock()
	req := h.confirmer.lastReq
	h.confirmer.mu.Unlock()
	assert.Nil(t, req.Shipping)
	assert.False(t, req.HomeService)
}

func TestConfirmRejectsTotalMismatch(t *testing.T) {
	h := newHarness(t)
	h.carts.cart = &models.ServerCart{
		Lines: []models.CartLine{
			{ProductID: 42, UnitPrice: 2500, Quantity: 2},
		},
		ShippingCost: 500,
		TaxAmount:    250,
		TotalAmount:  9999,
	}

	view, err := h.orchestrator.StartSession(context.Background(), "tok", cartTarget())
	require.NoError(t, err)
	h.waitForState(t, view.ID, models.StatePaymentReady)

	_, err = h.orchestrator.UpdateFields(context.Background(), view.ID, validFields())
	require.NoError(t, err)

	_, err = h.orchestrator.Confirm(view.ID, "tok_confirm")
	require.Error(t, err)
	assert.Equal(t, upstream.ClassValidation, upstream.AsError(err).Class)
	assert.Equal(t, 0, h.confirmer.callCount())
}

func TestBookingSessionValidatesSlot(t *testing.T) {
	h := newHarness(t)
	h.services.detail = &models.ServiceDetail{
		ID:          9,
		Title:       "Deep Clean",
		Price:       4500,
		HomeService: true,
		Availability: models.Schedule{
			{Date: "2024-01-01", Times: []string{"09:00"}},
		},
	}

	target := models.CheckoutTarget{ServiceRef: &models.ServiceBookingRef{
		ServiceID: 9,
		Slot:      models.BookableSlot{Date: "2024-01-01", Time: "09:00"},
	}}

	view, err := h.orchestrator.StartSession(context.Background(), "tok", target)
	require.NoError(t, err)
	h.waitForState(t, view.ID, models.StatePaymentReady)

	view, err = h.orchestrator.GetSession(view.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4500), view.Summary.Subtotal)

	// A slot outside the published schedule never opens a session.
	target.ServiceRef.Slot = models.BookableSlot{Date: "2024-01-02", Time: "09:00"}
	_, err = h.orchestrator.StartSession(context.Background(), "tok", target)
	require.Error(t, err)
	assert.Equal(t, upstream.ClassValidation, upstream.AsError(err).Class)
}

func TestBookingHomeServiceMustBeOffered(t *testing.T) {
	h := newHarness(t)
	h.services.detail = &models.ServiceDetail{
		ID:    9,
		Price: 4500,
		Availability: models.Schedule{
			{Date: "2024-01-01", Times: []string{"09:00"}},
		},
	}

	target := models.CheckoutTarget{ServiceRef: &models.ServiceBookingRef{
		ServiceID:   9,
		Slot:        models.BookableSlot{Date: "2024-01-01", Time: "09:00"},
		HomeService: true,
	}}

	_, err := h.orchestrator.StartSession(context.Background(), "tok", target)
	require.Error(t, err)
	assert.Equal(t, upstream.ClassValidation, upstream.AsError(err).Class)
}

func TestManualRetryRejectedAfterSuccess(t *testing.T) {
	h := newHarness(t)

	view, err := h.orchestrator.StartSession(context.Background(), "tok", cartTarget())
	require.NoError(t, err)
	h.waitForState(t, view.ID, models.StatePaymentReady)

	_, err = h.orchestrator.UpdateFields(context.Background(), view.ID, validFields())
	require.NoError(t, err)

	view, err = h.orchestrator.Confirm(view.ID, "tok_confirm")
	require.NoError(t, err)
	require.Equal(t, models.StateSuccess, view.State)
	calls := h.intents.callCount()

	// A retry on an already charged session must never request a
	// fresh intent.
	_, err = h.orchestrator.ManualRetry(view.ID)
	require.Error(t, err)
	assert.Equal(t, upstream.ClassValidation, upstream.AsError(err).Class)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, h.intents.callCount())
}

func TestManualRetryRejectedAfterConfirmError(t *testing.T) {
	h := newHarness(t)
	h.confirmer.err = &upstream.Error{Class: upstream.ClassConfirmFailed, Status: 409, Message: "declined"}

	view, err := h.orchestrator.StartSession(context.Background(), "tok", cartTarget())
	require.NoError(t, err)
	h.waitForState(t, view.ID, models.StatePaymentReady)

	_, err = h.orchestrator.UpdateFields(context.Background(), view.ID, validFields())
	require.NoError(t, err)

	view, err = h.orchestrator.Confirm(view.ID, "tok_confirm")
	require.NoError(t, err)
	require.Equal(t, models.StateConfirmError, view.State)
	calls := h.intents.callCount()

	_, err = h.orchestrator.ManualRetry(view.ID)
	require.Error(t, err)
	assert.Equal(t, upstream.ClassValidation, upstream.AsError(err).Class)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, h.intents.callCount())
}

func TestSupersededGenerationNeverReachesTheWire(t *testing.T) {
	h := newHarness(t)

	view, err := h.orchestrator.StartSession(context.Background(), "tok", cartTarget())
	require.NoError(t, err)
	h.waitForState(t, view.ID, models.StatePaymentReady)
	calls := h.intents.callCount()

	// A timer callback carrying an old generation, arriving after the
	// generation moved on, must stop at the guard.
	s := h.orchestrator.session(view.ID)
	require.NotNil(t, s)
	s.mu.Lock()
	stale := s.retryGen
	s.retryGen++
	s.mu.Unlock()

	h.orchestrator.createIntent(s, stale)
	assert.Equal(t, calls, h.intents.callCount())
}

type recordingEvents struct {
	mu    sync.Mutex
	types []string
}

func (r *recordingEvents) record(eventType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, eventType)
	return nil
}

func (r *recordingEvents) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.types))
	copy(out, r.types)
	return out
}

func (r *recordingEvents) PublishCheckoutStarted(ctx context.Context, e *models.CheckoutStartedEvent) error {
	return r.record(e.EventType)
}

func (r *recordingEvents) PublishPaymentIntentReady(ctx context.Context, e *models.PaymentIntentReadyEvent) error {
	return r.record(e.EventType)
}

func (r *recordingEvents) PublishPaymentIntentFailed(ctx context.Context, e *models.PaymentIntentFailedEvent) error {
	return r.record(e.EventType)
}

func (r *recordingEvents) PublishCheckoutConfirmed(ctx context.Context, e *models.CheckoutConfirmedEvent) error {
	return r.record(e.EventType)
}

func (r *recordingEvents) PublishCheckoutFailed(ctx context.Context, e *models.CheckoutFailedEvent) error {
	return r.record(e.EventType)
}

func (r *recordingEvents) PublishCheckoutAbandoned(ctx context.Context, e *models.CheckoutAbandonedEvent) error {
	return r.record(e.EventType)
}

func TestEventsPublishInEmissionOrder(t *testing.T) {
	sink := &recordingEvents{}
	h := newHarnessWithEvents(t, sink)

	view, err := h.orchestrator.StartSession(context.Background(), "tok", cartTarget())
	require.NoError(t, err)
	h.waitForState(t, view.ID, models.StatePaymentReady)

	_, err = h.orchestrator.UpdateFields(context.Background(), view.ID, validFields())
	require.NoError(t, err)
	_, err = h.orchestrator.Confirm(view.ID, "tok_confirm")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(sink.seen()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	// The session's lifecycle reaches the broker in the order it
	// happened, not in goroutine-scheduling order.
	assert.Equal(t, []string{
		models.EventTypeCheckoutStarted,
		models.EventTypePaymentIntentReady,
		models.EventTypeCheckoutConfirmed,
	}, sink.seen())
}

func TestTargetMustBeCartOrBooking(t *testing.T) {
	h := newHarness(t)

	_, err := h.orchestrator.StartSession(context.Background(), "tok", models.CheckoutTarget{})
	require.Error(t, err)

	both := models.CheckoutTarget{
		CartRef:    "current",
		ServiceRef: &models.ServiceBookingRef{ServiceID: 1},
	}
	_, err = h.orchestrator.StartSession(context.Background(), "tok", both)
	require.Error(t, err)
}
