package models

import "time"

// Event types
const (
	EventTypeCheckoutStarted     = "CHECKOUT_STARTED"
	EventTypePaymentIntentReady  = "PAYMENT_INTENT_READY"
	EventTypePaymentIntentFailed = "PAYMENT_INTENT_FAILED"
	EventTypeCheckoutConfirmed   = "CHECKOUT_CONFIRMED"
	EventTypeCheckoutFailed      = "CHECKOUT_FAILED"
	EventTypeCheckoutAbandoned   = "CHECKOUT_ABANDONED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// CheckoutStartedEvent published when a checkout session opens
type CheckoutStartedEvent struct {
	BaseEvent
	SessionID  string `json:"session_id"`
	TargetKind string `json:"target_kind"`
	TargetRef  string `json:"target_ref"`
}

// PaymentIntentReadyEvent published when the processor issues an intent
type PaymentIntentReadyEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
	Attempts  int    `json:"attempts"`
}

// PaymentIntentFailedEvent published when intent creation is exhausted
type PaymentIntentFailedEvent struct {
	BaseEvent
	SessionID  string `json:"session_id"`
	ErrorClass string `json:"error_class"`
	Attempts   int    `json:"attempts"`
}

// CheckoutConfirmedEvent published on successful payment confirmation
type CheckoutConfirmedEvent struct {
	BaseEvent
	SessionID   string `json:"session_id"`
	TargetKind  string `json:"target_kind"`
	TargetRef   string `json:"target_ref"`
	TotalAmount int64  `json:"total_amount"`
}

// CheckoutFailedEvent published when confirmation is rejected
type CheckoutFailedEvent struct {
	BaseEvent
	SessionID  string `json:"session_id"`
	ErrorClass string `json:"error_class"`
	Reason     string `json:"reason"`
}

// CheckoutAbandonedEvent published when a session is abandoned before a
// terminal state
type CheckoutAbandonedEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
	LastState string `json:"last_state"`
}
