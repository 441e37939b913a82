package service

import (
	"context"
	"sync"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/upstream"
)

// CartFetcher loads the authoritative server cart
type CartFetcher interface {
	GetCart(ctx context.Context, bearer string) (*models.ServerCart, error)
}

// RegionLister loads the shipping-region reference list
type RegionLister interface {
	ListRegions(ctx context.Context, bearer string) ([]models.Region, error)
}

// ServiceFetcher loads bookable service detail
type ServiceFetcher interface {
	GetService(ctx context.Context, bearer string, serviceID int64) (*models.ServiceDetail, error)
}

// IntentCreator requests processor-side payment intents
type IntentCreator interface {
	CreateIntent(ctx context.Context, bearer string, target models.CheckoutTarget) (*upstream.IntentResult, error)
}

// PaymentConfirmer submits the confirmation step
type PaymentConfirmer interface {
	ConfirmPayment(ctx context.Context, bearer string, req *upstream.ConfirmRequest) error
}

// DraftStore persists the per-session checkout field draft
type DraftStore interface {
	SaveDraft(ctx context.Context, sessionID string, draft *models.CheckoutDraft) error
	LoadDraft(ctx context.Context, sessionID string) (*models.CheckoutDraft, error)
	DeleteDraft(ctx context.Context, sessionID string) error
}

// EventSink receives checkout lifecycle events
type EventSink interface {
	PublishCheckoutStarted(ctx context.Context, event *models.CheckoutStartedEvent) error
	PublishPaymentIntentReady(ctx context.Context, event *models.PaymentIntentReadyEvent) error
	PublishPaymentIntentFailed(ctx context.Context, event *models.PaymentIntentFailedEvent) error
	PublishCheckoutConfirmed(ctx context.Context, event *models.CheckoutConfirmedEvent) error
	PublishCheckoutFailed(ctx context.Context, event *models.CheckoutFailedEvent) error
	PublishCheckoutAbandoned(ctx context.Context, event *models.CheckoutAbandonedEvent) error
}

// CheckoutSession is one shopper's attempt to turn a cart or booking
// into a paid order. All transitions happen behind the session mutex;
// the retry timer and the in-flight flag together guarantee at most
// one payment-intent call on the wire per session.
type CheckoutSession struct {
	ID        string
	bearer    string
	createdAt time.Time

	mu         sync.Mutex
	state      string
	checkout   models.CheckoutContext
	intent     models.PaymentIntentState
	lastErr    *upstream.Error
	cartBanner string

	cartLoaded bool
	emptyCart  bool
	lines      []models.CartLine
	meta       models.CartMetadata

	servicePrice int64
	regions      []models.Region

	retries    int
	retryGen   int
	retryTimer *time.Timer
	reapTimer  *time.Timer
	inFlight   bool
	closed     bool

	redirectAt time.Time
}

// recomputeStateLocked derives the session state from the loaded cart
// and the intent phase. Terminal and confirmation states are sticky.
// Caller holds the mutex.
func (s *CheckoutSession) recomputeStateLocked() {
	switch s.state {
	case models.StateCartEmpty, models.StateConfirming, models.StateSuccess, models.StateConfirmError:
		return
	}

	if s.emptyCart {
		s.state = models.StateCartEmpty
		return
	}
	if !s.cartLoaded {
		s.state = models.StateLoadingCart
		return
	}

	switch s.intent.Phase {
	case models.IntentReady:
		s.state = models.StatePaymentReady
	case models.IntentFailed:
		s.state = models.StatePaymentError
	default:
		s.state = models.StateLoadingPayment
	}
}

// stopTimersLocked cancels any pending retry or reap timer. Caller
// holds the mutex.
func (s *CheckoutSession) stopTimersLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	if s.reapTimer != nil {
		s.reapTimer.Stop()
		s.reapTimer = nil
	}
}

// SessionError is the user-facing rendering of a classified failure,
// always paired with at least one recovery action
type SessionError struct {
	Class         string `json:"class"`
	Message       string `json:"message"`
	CanRetry      bool   `json:"can_retry"`
	LoginRequired bool   `json:"login_required"`
	BackToCart    bool   `json:"back_to_cart"`
}

// SessionView is the API snapshot of a session
type SessionView struct {
	ID              string                `json:"id"`
	State           string                `json:"state"`
	IntentPhase     models.IntentPhase    `json:"intent_phase"`
	Target          models.CheckoutTarget `json:"target"`
	Summary         models.OrderSummary   `json:"summary"`
	Regions         []models.Region       `json:"regions,omitempty"`
	CartBanner      string                `json:"cart_banner,omitempty"`
	Error           *SessionError         `json:"error,omitempty"`
	RedirectDelayMs int64                 `json:"redirect_delay_ms,omitempty"`
}

// viewLocked snapshots the session for API consumers. Caller holds the
// mutex.
func (s *CheckoutSession) viewLocked() *SessionView {
	view := &SessionView{
		ID:          s.ID,
		State:       s.state,
		IntentPhase: s.intent.Phase,
		Target:      s.checkout.Target,
		Regions:     s.regions,
		CartBanner:  s.cartBanner,
	}
	if view.IntentPhase == "" {
		view.IntentPhase = models.IntentAbsent
	}

	if s.checkout.Target.IsBooking() {
		view.Summary = ProjectBookingSummary(s.servicePrice, s.meta)
	} else {
		view.Summary = ProjectSummary(s.lines, s.meta)
	}

	if s.lastErr != nil {
		// Confirm failures are terminal for the attempt: the recovery
		// is the back-to-cart hatch, not an intent retry.
		view.Error = &SessionError{
			Class:         string(s.lastErr.Class),
			Message:       s.lastErr.UserMessage(),
			CanRetry:      s.lastErr.Class != upstream.ClassUnauthorized && s.lastErr.Class != upstream.ClassConfirmFailed,
			LoginRequired: s.lastErr.Class == upstream.ClassUnauthorized,
			BackToCart:    s.lastErr.Class == upstream.ClassConfirmFailed,
		}
	}

	if s.state == models.StateSuccess {
		remaining := time.Until(s.redirectAt)
		if remaining < 0 {
			remaining = 0
		}
		view.RedirectDelayMs = remaining.Milliseconds()
	}

	return view
}
