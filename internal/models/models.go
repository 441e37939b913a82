package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// All monetary amounts are integer cents.

// CartLine represents one selected product in the cart
type CartLine struct {
	LineID    string `db:"line_id" json:"line_id,omitempty"`
	ProductID int64  `db:"product_id" json:"product_id"`
	Title     string `db:"title" json:"title"`
	UnitPrice int64  `db:"unit_price" json:"unit_price"`
	Quantity  int    `db:"quantity" json:"quantity"`
	ImageRef  string `db:"image_ref" json:"image_ref,omitempty"`
}

// ServerCart is the authoritative cart representation returned by the
// cart API, including server-computed pricing metadata
type ServerCart struct {
	Lines        []CartLine `json:"lines"`
	ShippingCost int64      `json:"shipping_cost"`
	TaxAmount    int64      `json:"tax_amount"`
	TotalAmount  int64      `json:"total_amount"`
}

// CartMetadata holds the server-derived pricing figures. These are
// never recomputed client-side for charging purposes; local arithmetic
// is display-only.
type CartMetadata struct {
	ShippingCost int64 `json:"shipping_cost"`
	TaxAmount    int64 `json:"tax_amount"`
	TotalAmount  int64 `json:"total_amount"`
	Loaded       bool  `json:"loaded"`
}

// Region is a shipping region used for address form population
type Region struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// BookableSlot is a single (date, time) pair derived from a service's
// published availability. Slots are read-only projections and are never
// persisted client-side.
type BookableSlot struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// ServiceDetail is the booking-relevant subset of a service record
type ServiceDetail struct {
	ID           int64    `json:"id"`
	Title        string   `json:"title"`
	Price        int64    `json:"price"`
	HomeService  bool     `json:"home_service"`
	Availability Schedule `json:"availability"`
}

// ContactFields are the buyer contact details collected at checkout
type ContactFields struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// ShippingFields are the address details, required only when the
// home-service toggle is set
type ShippingFields struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	RegionID   int64  `json:"region_id"`
	PostalCode string `json:"postal_code"`
}

// ServiceBookingRef identifies a single-service booking checkout target
type ServiceBookingRef struct {
	ServiceID   int64        `json:"service_id"`
	Slot        BookableSlot `json:"slot"`
	HomeService bool         `json:"home_service"`
}

// CheckoutTarget is either a cart reference or a service booking;
// exactly one side is set
type CheckoutTarget struct {
	CartRef    string             `json:"cart_ref,omitempty"`
	ServiceRef *ServiceBookingRef `json:"service_ref,omitempty"`
}

// IsBooking reports whether the target is a single-service booking
func (t CheckoutTarget) IsBooking() bool {
	return t.ServiceRef != nil
}

// CheckoutContext accumulates everything a confirmation needs: contact
// and shipping fields, the target, and the processor-issued client
// secret plus opaque checkout payload. It is created fresh per session
// and discarded on terminal success.
type CheckoutContext struct {
	Contact         ContactFields   `json:"contact"`
	Shipping        *ShippingFields `json:"shipping,omitempty"`
	HomeService     bool            `json:"home_service"`
	Target          CheckoutTarget  `json:"target"`
	ClientSecret    string          `json:"client_secret,omitempty"`
	CheckoutPayload json.RawMessage `json:"checkout_payload,omitempty"`
}

// CheckoutDraft is the client-persisted field draft, kept per session
// between attempts and cleared exactly on success
type CheckoutDraft struct {
	Contact     ContactFields   `json:"contact"`
	Shipping    *ShippingFields `json:"shipping,omitempty"`
	HomeService bool            `json:"home_service"`
	SavedAt     time.Time       `json:"saved_at"`
}

// IntentPhase is the lifecycle phase of a payment intent
type IntentPhase string

const (
	IntentAbsent  IntentPhase = "ABSENT"
	IntentPending IntentPhase = "PENDING"
	IntentReady   IntentPhase = "READY"
	IntentFailed  IntentPhase = "FAILED"
)

// PaymentIntentState tracks the processor-side intent for a session.
// Only the payment gateway transitions it; READY gates confirmation.
type PaymentIntentState struct {
	Phase        IntentPhase `json:"phase"`
	ClientSecret string      `json:"-"`
	FailClass    string      `json:"fail_class,omitempty"`
	FailMessage  string      `json:"fail_message,omitempty"`
}

// Checkout session states
const (
	StateLoadingCart    = "LOADING_CART"
	StateCartEmpty      = "CART_EMPTY"
	StateLoadingPayment = "LOADING_PAYMENT"
	StatePaymentError   = "PAYMENT_ERROR"
	StatePaymentReady   = "PAYMENT_READY"
	StateConfirming     = "CONFIRMING"
	StateSuccess        = "SUCCESS"
	StateConfirmError   = "CONFIRM_ERROR"
)

// OrderSummary is the projected subtotal/shipping/tax/total breakdown.
// Subtotal is always client-computed; the remaining figures come from
// server metadata and stay nil until it has loaded.
type OrderSummary struct {
	Subtotal int64  `json:"subtotal"`
	Shipping *int64 `json:"shipping,omitempty"`
	Tax      *int64 `json:"tax,omitempty"`
	Total    *int64 `json:"total,omitempty"`
}

// ShippingLabel renders the shipping figure, "Free" until metadata loads
func (s OrderSummary) ShippingLabel() string {
	if s.Shipping == nil {
		return "Free"
	}
	return formatCents(*s.Shipping)
}

// TaxLabel renders the tax figure, blank until metadata loads
func (s OrderSummary) TaxLabel() string {
	if s.Tax == nil {
		return ""
	}
	return formatCents(*s.Tax)
}

// TotalLabel renders the total figure, blank until metadata loads
func (s OrderSummary) TotalLabel() string {
	if s.Total == nil {
		return ""
	}
	return formatCents(*s.Total)
}

func formatCents(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// CheckoutRecord is the audit row written per checkout session
type CheckoutRecord struct {
	SessionID  string    `db:"session_id" json:"session_id"`
	TargetKind string    `db:"target_kind" json:"target_kind"`
	TargetRef  string    `db:"target_ref" json:"target_ref"`
	State      string    `db:"state" json:"state"`
	ErrorClass string    `db:"error_class" json:"error_class,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// ProcessedEvent for consumer idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
