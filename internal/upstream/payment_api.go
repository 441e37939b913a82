package upstream

import (
	"context"
	"encoding/json"
	"net/http"

	"checkout-service/internal/models"
)

// PaymentAPI drives the external payment processor: intent creation
// and charge confirmation
type PaymentAPI struct {
	client *Client
}

// NewPaymentAPI creates a payment API client
func NewPaymentAPI(client *Client) *PaymentAPI {
	return &PaymentAPI{client: client}
}

// IntentResult is a successfully created payment intent. Payload is
// the full response body minus the secret: whatever order-identifying
// fields the processor wants echoed back at confirmation.
type IntentResult struct {
	ClientSecret string
	Payload      json.RawMessage
}

type createIntentRequest struct {
	CartRef    string                    `json:"cart_ref,omitempty"`
	ServiceRef *models.ServiceBookingRef `json:"service_ref,omitempty"`
}

// CreateIntent requests a processor-side payment intent for a cart or
// a single-service booking. A 2xx response without a client secret is
// classified missing_secret: fatal to the attempt, never auto-retried.
func (a *PaymentAPI) CreateIntent(ctx context.Context, bearer string, target models.CheckoutTarget) (*IntentResult, error) {
	req := createIntentRequest{CartRef: target.CartRef, ServiceRef: target.ServiceRef}

	var raw json.RawMessage
	if err := a.client.do(ctx, http.MethodPost, "/payments/create-intent", bearer, req, &raw); err != nil {
		return nil, err
	}

	var envelope struct {
		ClientSecret string `json:"client_secret"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.ClientSecret == "" {
		return nil, &Error{Class: ClassMissingSecret, Message: "create-intent response lacked a client secret"}
	}

	return &IntentResult{ClientSecret: envelope.ClientSecret, Payload: raw}, nil
}

// ConfirmRequest is the confirmation submission: the intent's checkout
// payload merged with the collected fields and the processor-side
// confirmation token
type ConfirmRequest struct {
	CheckoutPayload   json.RawMessage        `json:"checkout_payload"`
	Contact           models.ContactFields   `json:"contact"`
	Shipping          *models.ShippingFields `json:"shipping,omitempty"`
	HomeService       bool                   `json:"home_service"`
	Slot              *models.BookableSlot   `json:"slot,omitempty"`
	ConfirmationToken string                 `json:"confirmation_token"`
}

// ConfirmPayment submits the confirmation. Rejections other than
// credential failures are reclassified confirm_failed so the server's
// reason reaches the user verbatim; they are never auto-retried since
// a prior attempt may have partially mutated processor state.
func (a *PaymentAPI) ConfirmPayment(ctx context.Context, bearer string, req *ConfirmRequest) error {
	err := a.client.do(ctx, http.MethodPost, "/payments/confirm", bearer, req, nil)
	if err == nil {
		return nil
	}

	ue := AsError(err)
	if ue.Class == ClassUnauthorized {
		return ue
	}
	return &Error{Class: ClassConfirmFailed, Status: ue.Status, Message: ue.Message, cause: ue}
}
