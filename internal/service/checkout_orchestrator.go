package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"checkout-service/config"
	"checkout-service/internal/models"
	"checkout-service/internal/upstream"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSessionNotFound is returned for unknown or already reaped sessions
var ErrSessionNotFound = fmt.Errorf("checkout session not found")

// Orchestrator sequences checkout sessions: load cart or booking
// context, fetch reference data, request a payment intent, collect
// fields, confirm, and report a terminal result. Intent creation is
// auto-retried with bounded backoff on transient failures only.
type Orchestrator struct {
	carts     CartFetcher
	regions   RegionLister
	services  ServiceFetcher
	intents   IntentCreator
	confirmer PaymentConfirmer
	drafts    DraftStore
	events    EventSink
	ledgers   *LedgerStore
	cfg       config.CheckoutConfig
	logger    *zap.Logger

	// pubQueue serializes event publication: one dispatcher preserves
	// per-session ordering on the session-keyed topic.
	pubQueue chan func(ctx context.Context) error

	mu       sync.Mutex
	sessions map[string]*CheckoutSession
}

// NewOrchestrator creates a checkout orchestrator
func NewOrchestrator(
	carts CartFetcher,
	regions RegionLister,
	services ServiceFetcher,
	intents IntentCreator,
	confirmer PaymentConfirmer,
	drafts DraftStore,
	events EventSink,
	ledgers *LedgerStore,
	cfg config.CheckoutConfig,
) *Orchestrator {
	o := &Orchestrator{
		carts:     carts,
		regions:   regions,
		services:  services,
		intents:   intents,
		confirmer: confirmer,
		drafts:    drafts,
		events:    events,
		ledgers:   ledgers,
		cfg:       cfg,
		logger:    util.GetLogger(),
		sessions:  make(map[string]*CheckoutSession),
	}
	if events != nil {
		o.pubQueue = make(chan func(ctx context.Context) error, 256)
		go o.dispatchEvents()
	}
	return o
}

// StartSession opens a new checkout session for a cart or a service
// booking. Cart, regions and the payment intent are all fetched
// concurrently; none blocks the others.
func (o *Orchestrator) StartSession(ctx context.Context, bearer string, target models.CheckoutTarget) (*SessionView, error) {
	ctx, span := util.StartSpan(ctx, "Orchestrator.StartSession")
	defer span.End()

	if bearer == "" {
		return nil, &upstream.Error{Class: upstream.ClassUnauthorized, Message: "missing bearer credential"}
	}
	if target.CartRef == "" && target.ServiceRef == nil {
		return nil, upstream.NewValidationError("a checkout target is required: a cart reference or a service booking")
	}
	if target.CartRef != "" && target.ServiceRef != nil {
		return nil, upstream.NewValidationError("a checkout targets either a cart or a service booking, not both")
	}

	s := &CheckoutSession{
		ID:        uuid.New().String(),
		bearer:    bearer,
		createdAt: time.Now(),
		state:     models.StateLoadingCart,
		checkout:  models.CheckoutContext{Target: target},
		intent:    models.PaymentIntentState{Phase: models.IntentAbsent},
	}

	if target.IsBooking() {
		detail, err := o.services.GetService(ctx, bearer, target.ServiceRef.ServiceID)
		if err != nil {
			return nil, upstream.AsError(err)
		}
		if err := ValidateSlot(detail.Availability, target.ServiceRef.Slot); err != nil {
			return nil, err
		}
		if target.ServiceRef.HomeService && !detail.HomeService {
			return nil, upstream.NewValidationError("service %d does not offer home service", detail.ID)
		}
		s.servicePrice = detail.Price
		s.checkout.HomeService = target.ServiceRef.HomeService
		// A booking has no cart to load.
		s.cartLoaded = true
	}

	o.mu.Lock()
	o.sessions[s.ID] = s
	o.mu.Unlock()

	util.CheckoutSessionsStarted.WithLabelValues(targetKind(target)).Inc()
	o.logger.Info("Checkout session started",
		zap.String("session_id", s.ID),
		zap.String("target", targetKind(target)))

	o.publish(func(ctx context.Context) error {
		return o.events.PublishCheckoutStarted(ctx, &models.CheckoutStartedEvent{
			BaseEvent:  newBaseEvent(models.EventTypeCheckoutStarted),
			SessionID:  s.ID,
			TargetKind: targetKind(target),
			TargetRef:  targetRef(target),
		})
	})

	if !target.IsBooking() {
		go o.loadCart(s)
	}
	go o.loadRegions(s)
	go o.createIntent(s, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recomputeStateLocked()
	return s.viewLocked(), nil
}

// loadCart fetches the server cart and reconciles the shopper's ledger.
// A fetch failure surfaces as a recoverable banner and never blocks
// payment-intent creation; only a successfully loaded empty cart ends
// the session.
func (o *Orchestrator) loadCart(s *CheckoutSession) {
	ctx, span := util.StartSpan(context.Background(), "Orchestrator.loadCart")
	defer span.End()

	cart, err := o.carts.GetCart(ctx, s.bearer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.cartLoaded = true

	if err != nil {
		s.cartBanner = "We couldn't load your cart right now. Your order can still be completed."
		o.logger.Warn("Cart fetch failed at checkout entry",
			zap.String("session_id", s.ID),
			zap.Error(err))
		s.recomputeStateLocked()
		return
	}

	o.ledgers.ForShopper(s.bearer).Reconcile(cart)

	s.lines = make([]models.CartLine, len(cart.Lines))
	copy(s.lines, cart.Lines)
	s.meta = models.CartMetadata{
		ShippingCost: cart.ShippingCost,
		TaxAmount:    cart.TaxAmount,
		TotalAmount:  cart.TotalAmount,
		Loaded:       true,
	}

	if len(cart.Lines) == 0 {
		s.emptyCart = true
		util.CheckoutSessionsEmptyCart.Inc()
		o.logger.Info("Checkout entered with an empty cart", zap.String("session_id", s.ID))
	}
	s.recomputeStateLocked()
}

// loadRegions is best-effort reference data for the address form
func (o *Orchestrator) loadRegions(s *CheckoutSession) {
	regions, err := o.regions.ListRegions(context.Background(), s.bearer)
	if err != nil {
		o.logger.Warn("Region fetch failed",
			zap.String("session_id", s.ID),
			zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.regions = regions
}

// createIntent issues one payment-intent creation call for the given
// retry generation. The generation is re-verified under the same lock
// that sets the in-flight flag, so a superseded caller (a stale retry
// timer, a manual retry that lost a race) never reaches the wire.
func (o *Orchestrator) createIntent(s *CheckoutSession, gen int) {
	s.mu.Lock()
	if s.closed || s.inFlight || gen != s.retryGen || s.state == models.StateCartEmpty {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.intent = models.PaymentIntentState{Phase: models.IntentPending}
	s.recomputeStateLocked()
	target := s.checkout.Target
	bearer := s.bearer
	s.mu.Unlock()

	ctx, span := util.StartSpan(context.Background(), "Orchestrator.createIntent")
	defer span.End()

	util.PaymentIntentAttempts.Inc()
	start := time.Now()
	result, err := o.intents.CreateIntent(ctx, bearer, target)
	util.PaymentIntentLatency.Observe(time.Since(start).Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if s.closed || gen != s.retryGen {
		return
	}

	if err == nil {
		attempts := s.retries + 1
		s.retries = 0
		s.intent = models.PaymentIntentState{Phase: models.IntentReady, ClientSecret: result.ClientSecret}
		s.checkout.ClientSecret = result.ClientSecret
		s.checkout.CheckoutPayload = result.Payload
		s.lastErr = nil
		s.recomputeStateLocked()

		o.logger.Info("Payment intent ready", zap.String("session_id", s.ID))
		o.publish(func(ctx context.Context) error {
			return o.events.PublishPaymentIntentReady(ctx, &models.PaymentIntentReadyEvent{
				BaseEvent: newBaseEvent(models.EventTypePaymentIntentReady),
				SessionID: s.ID,
				Attempts:  attempts,
			})
		})
		return
	}

	ue := upstream.AsError(err)
	if ue.Retryable() && s.retries < o.cfg.MaxAutoRetries {
		s.retries++
		util.PaymentIntentRetries.Inc()
		delay := time.Duration(s.retries) * o.cfg.RetryBackoffStep
		fireGen := s.retryGen
		s.retryTimer = time.AfterFunc(delay, func() { o.retryFire(s, fireGen) })
		o.logger.Warn("Payment intent creation failed, retrying",
			zap.String("session_id", s.ID),
			zap.String("class", string(ue.Class)),
			zap.Int("retry", s.retries),
			zap.Duration("backoff", delay))
		return
	}

	s.intent = models.PaymentIntentState{
		Phase:       models.IntentFailed,
		FailClass:   string(ue.Class),
		FailMessage: ue.UserMessage(),
	}
	s.lastErr = ue
	s.recomputeStateLocked()
	util.PaymentIntentFailures.WithLabelValues(string(ue.Class)).Inc()
	o.logger.Error("Payment intent creation failed",
		zap.String("session_id", s.ID),
		zap.String("class", string(ue.Class)),
		zap.Error(ue))

	attempts := s.retries + 1
	o.publish(func(ctx context.Context) error {
		return o.events.PublishPaymentIntentFailed(ctx, &models.PaymentIntentFailedEvent{
			BaseEvent:  newBaseEvent(models.EventTypePaymentIntentFailed),
			SessionID:  s.ID,
			ErrorClass: string(ue.Class),
			Attempts:   attempts,
		})
	})
}

// retryFire is the automatic retry timer callback; createIntent
// re-verifies the generation before touching the wire
func (o *Orchestrator) retryFire(s *CheckoutSession, gen int) {
	s.mu.Lock()
	if gen == s.retryGen {
		s.retryTimer = nil
	}
	s.mu.Unlock()

	o.createIntent(s, gen)
}

// ManualRetry is the user-initiated "try again": it cancels any pending
// automatic retry, resets the counter to zero and issues a fresh
// intent-creation call. An already in-flight call is left to land.
// Only the payment phase can be retried; a session that has moved to
// confirmation or a terminal state keeps its intent untouched.
func (o *Orchestrator) ManualRetry(sessionID string) (*SessionView, error) {
	s := o.session(sessionID)
	if s == nil {
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	switch s.state {
	case models.StatePaymentError, models.StateLoadingPayment:
	default:
		view := s.viewLocked()
		s.mu.Unlock()
		return view, upstream.NewValidationError("payment cannot be retried (state %s)", view.State)
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.retries = 0
	s.lastErr = nil
	wasInFlight := s.inFlight
	if !wasInFlight {
		// Invalidate a timer callback that already fired but has not
		// reached createIntent yet. An in-flight call keeps its
		// generation so its result still lands as this attempt.
		s.retryGen++
	}
	gen := s.retryGen
	s.mu.Unlock()

	if !wasInFlight {
		o.createIntent(s, gen)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(), nil
}

// FieldsUpdate carries the contact/shipping form state for a session
type FieldsUpdate struct {
	Contact     models.ContactFields   `json:"contact"`
	Shipping    *models.ShippingFields `json:"shipping,omitempty"`
	HomeService bool                   `json:"home_service"`
}

// UpdateFields merges form state into the checkout context and persists
// the draft. Toggling home service off clears, rather than hides, any
// previously filled shipping fields so a non-shipped order never
// submits a stale address.
func (o *Orchestrator) UpdateFields(ctx context.Context, sessionID string, update FieldsUpdate) (*SessionView, error) {
	s := o.session(sessionID)
	if s == nil {
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	switch s.state {
	case models.StateConfirming, models.StateSuccess:
		view := s.viewLocked()
		s.mu.Unlock()
		return view, upstream.NewValidationError("checkout fields can no longer be changed")
	}

	s.checkout.Contact = update.Contact
	s.checkout.HomeService = update.HomeService
	if update.HomeService {
		s.checkout.Shipping = update.Shipping
	} else {
		s.checkout.Shipping = nil
	}

	draft := &models.CheckoutDraft{
		Contact:     s.checkout.Contact,
		Shipping:    s.checkout.Shipping,
		HomeService: s.checkout.HomeService,
		SavedAt:     time.Now(),
	}
	view := s.viewLocked()
	s.mu.Unlock()

	if err := o.drafts.SaveDraft(ctx, sessionID, draft); err != nil {
		o.logger.Warn("Failed to persist checkout draft",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}

	return view, nil
}

// Confirm submits the confirmation step. It runs only from
// PaymentReady, after field validation and the total reconciliation
// guard; a rejection is terminal for the attempt and keeps the draft.
func (o *Orchestrator) Confirm(sessionID, confirmationToken string) (*SessionView, error) {
	s := o.session(sessionID)
	if s == nil {
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if s.state != models.StatePaymentReady {
		view := s.viewLocked()
		s.mu.Unlock()
		return view, upstream.NewValidationError("checkout is not ready for confirmation (state %s)", view.State)
	}
	if confirmationToken == "" {
		s.mu.Unlock()
		util.CheckoutValidationRejections.Inc()
		return nil, upstream.NewValidationError("a confirmation token is required")
	}
	if err := validateCheckoutFields(&s.checkout); err != nil {
		s.mu.Unlock()
		util.CheckoutValidationRejections.Inc()
		return nil, err
	}
	if err := o.reconcileTotalsLocked(s); err != nil {
		s.mu.Unlock()
		util.CheckoutValidationRejections.Inc()
		return nil, err
	}

	s.state = models.StateConfirming
	req := &upstream.ConfirmRequest{
		CheckoutPayload:   s.checkout.CheckoutPayload,
		Contact:           s.checkout.Contact,
		Shipping:          s.checkout.Shipping,
		HomeService:       s.checkout.HomeService,
		ConfirmationToken: confirmationToken,
	}
	if s.checkout.Target.IsBooking() {
		slot := s.checkout.Target.ServiceRef.Slot
		req.Slot = &slot
	}
	bearer := s.bearer
	s.mu.Unlock()

	ctx, span := util.StartSpan(context.Background(), "Orchestrator.Confirm")
	defer span.End()

	start := time.Now()
	err := o.confirmer.ConfirmPayment(ctx, bearer, req)
	util.CheckoutConfirmLatency.Observe(time.Since(start).Seconds())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}

	if err != nil {
		ue := upstream.AsError(err)
		s.state = models.StateConfirmError
		s.lastErr = ue
		view := s.viewLocked()
		s.mu.Unlock()

		util.CheckoutConfirmFailed.WithLabelValues(string(ue.Class)).Inc()
		util.SessionLogger(sessionID).Warn("Checkout confirmation rejected",
			zap.String("class", string(ue.Class)),
			zap.String("reason", ue.Message))
		o.publish(func(ctx context.Context) error {
			return o.events.PublishCheckoutFailed(ctx, &models.CheckoutFailedEvent{
				BaseEvent:  newBaseEvent(models.EventTypeCheckoutFailed),
				SessionID:  sessionID,
				ErrorClass: string(ue.Class),
				Reason:     ue.Message,
			})
		})
		return view, nil
	}

	s.state = models.StateSuccess
	s.lastErr = nil
	s.redirectAt = time.Now().Add(o.cfg.RedirectDelay)
	s.reapTimer = time.AfterFunc(o.cfg.RedirectDelay, func() { o.reap(s.ID) })
	total := s.chargedTotalLocked()
	targetKindStr := targetKind(s.checkout.Target)
	targetRefStr := targetRef(s.checkout.Target)
	view := s.viewLocked()
	s.mu.Unlock()

	util.CheckoutConfirmed.Inc()
	util.SessionLogger(sessionID).Info("Checkout confirmed")

	if err := o.drafts.DeleteDraft(ctx, sessionID); err != nil {
		o.logger.Error("Failed to clear checkout draft after success",
			zap.String("session_id", sessionID),
			zap.Error(err))
	} else {
		util.CheckoutDraftsCleared.Inc()
	}

	o.publish(func(ctx context.Context) error {
		return o.events.PublishCheckoutConfirmed(ctx, &models.CheckoutConfirmedEvent{
			BaseEvent:   newBaseEvent(models.EventTypeCheckoutConfirmed),
			SessionID:   sessionID,
			TargetKind:  targetKindStr,
			TargetRef:   targetRefStr,
			TotalAmount: total,
		})
	})

	return view, nil
}

// reconcileTotalsLocked refuses confirmation when the server total and
// the locally derived figures disagree. The server numbers are what
// the processor will charge; a mismatch means the display lied.
// Caller holds the mutex.
func (o *Orchestrator) reconcileTotalsLocked(s *CheckoutSession) error {
	if s.checkout.Target.IsBooking() || !s.meta.Loaded {
		return nil
	}
	derived := totalOf(s.lines) + s.meta.ShippingCost + s.meta.TaxAmount
	if derived != s.meta.TotalAmount {
		return upstream.NewValidationError(
			"order total changed (expected %d, server reports %d); please reload your cart",
			derived, s.meta.TotalAmount)
	}
	return nil
}

// chargedTotalLocked is the best-known charged amount for events.
// Caller holds the mutex.
func (s *CheckoutSession) chargedTotalLocked() int64 {
	if s.meta.Loaded {
		return s.meta.TotalAmount
	}
	if s.checkout.Target.IsBooking() {
		return s.servicePrice
	}
	return totalOf(s.lines)
}

// GetSession returns the current snapshot of a session
func (o *Orchestrator) GetSession(sessionID string) (*SessionView, error) {
	s := o.session(sessionID)
	if s == nil {
		return nil, ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionNotFound
	}
	return s.viewLocked(), nil
}

// LoadDraft returns the persisted field draft for a session
func (o *Orchestrator) LoadDraft(ctx context.Context, sessionID string) (*models.CheckoutDraft, error) {
	if s := o.session(sessionID); s == nil {
		return nil, ErrSessionNotFound
	}
	return o.drafts.LoadDraft(ctx, sessionID)
}

// Abandon closes a session: pending retry timers are cancelled so no
// retry fires after navigation away. The draft is kept; only success
// clears it.
func (o *Orchestrator) Abandon(sessionID string) error {
	s := o.session(sessionID)
	if s == nil {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	s.closed = true
	s.stopTimersLocked()
	lastState := s.state
	s.mu.Unlock()

	o.mu.Lock()
	delete(o.sessions, sessionID)
	o.mu.Unlock()

	if lastState != models.StateSuccess {
		util.CheckoutSessionsAbandoned.Inc()
		o.publish(func(ctx context.Context) error {
			return o.events.PublishCheckoutAbandoned(ctx, &models.CheckoutAbandonedEvent{
				BaseEvent: newBaseEvent(models.EventTypeCheckoutAbandoned),
				SessionID: sessionID,
				LastState: lastState,
			})
		})
	}

	o.logger.Info("Checkout session closed",
		zap.String("session_id", sessionID),
		zap.String("last_state", lastState))
	return nil
}

// reap removes a successful session after the redirect delay
func (o *Orchestrator) reap(sessionID string) {
	s := o.session(sessionID)
	if s == nil {
		return
	}
	s.mu.Lock()
	s.closed = true
	s.stopTimersLocked()
	s.mu.Unlock()

	o.mu.Lock()
	delete(o.sessions, sessionID)
	o.mu.Unlock()
}

func (o *Orchestrator) session(sessionID string) *CheckoutSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessions[sessionID]
}

// publish enqueues an event publication without blocking the session
// path. The queue is drained by a single dispatcher, so events for a
// session reach the broker in the order they were emitted.
func (o *Orchestrator) publish(fn func(ctx context.Context) error) {
	if o.events == nil {
		return
	}
	select {
	case o.pubQueue <- fn:
	default:
		o.logger.Error("Checkout event queue full, dropping event")
	}
}

func (o *Orchestrator) dispatchEvents() {
	for fn := range o.pubQueue {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := fn(ctx)
		cancel()
		if err != nil {
			o.logger.Error("Failed to publish checkout event", zap.Error(err))
		}
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

func targetKind(target models.CheckoutTarget) string {
	if target.IsBooking() {
		return "booking"
	}
	return "cart"
}

func targetRef(target models.CheckoutTarget) string {
	if target.IsBooking() {
		return strconv.FormatInt(target.ServiceRef.ServiceID, 10)
	}
	return target.CartRef
}
