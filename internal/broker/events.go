package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"checkout-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing checkout lifecycle events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("checkout-%s", sessionID)
}

// PublishCheckoutStarted publishes CheckoutStarted
func (ep *EventPublisher) PublishCheckoutStarted(ctx context.Context, event *models.CheckoutStartedEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// PublishPaymentIntentReady publishes PaymentIntentReady
func (ep *EventPublisher) PublishPaymentIntentReady(ctx context.Context, event *models.PaymentIntentReadyEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// PublishPaymentIntentFailed publishes PaymentIntentFailed
func (ep *EventPublisher) PublishPaymentIntentFailed(ctx context.Context, event *models.PaymentIntentFailedEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// PublishCheckoutConfirmed publishes CheckoutConfirmed
func (ep *EventPublisher) PublishCheckoutConfirmed(ctx context.Context, event *models.CheckoutConfirmedEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// PublishCheckoutFailed publishes CheckoutFailed
func (ep *EventPublisher) PublishCheckoutFailed(ctx context.Context, event *models.CheckoutFailedEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// PublishCheckoutAbandoned publishes CheckoutAbandoned
func (ep *EventPublisher) PublishCheckoutAbandoned(ctx context.Context, event *models.CheckoutAbandonedEvent) error {
	return ep.producer.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// EventHandler routes consumed checkout events
type EventHandler struct {
	onCheckoutStarted     func(context.Context, *models.CheckoutStartedEvent) error
	onPaymentIntentReady  func(context.Context, *models.PaymentIntentReadyEvent) error
	onPaymentIntentFailed func(context.Context, *models.PaymentIntentFailedEvent) error
	onCheckoutConfirmed   func(context.Context, *models.CheckoutConfirmedEvent) error
	onCheckoutFailed      func(context.Context, *models.CheckoutFailedEvent) error
	onCheckoutAbandoned   func(context.Context, *models.CheckoutAbandonedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnCheckoutStarted registers a handler for CheckoutStarted events
func (eh *EventHandler) OnCheckoutStarted(handler func(context.Context, *models.CheckoutStartedEvent) error) {
	eh.onCheckoutStarted = handler
}

// OnPaymentIntentReady registers a handler for PaymentIntentReady events
func (eh *EventHandler) OnPaymentIntentReady(handler func(context.Context, *models.PaymentIntentReadyEvent) error) {
	eh.onPaymentIntentReady = handler
}

// OnPaymentIntentFailed registers a handler for PaymentIntentFailed events
func (eh *EventHandler) OnPaymentIntentFailed(handler func(context.Context, *models.PaymentIntentFailedEvent) error) {
	eh.onPaymentIntentFailed = handler
}

// OnCheckoutConfirmed registers a handler for CheckoutConfirmed events
func (eh *EventHandler) OnCheckoutConfirmed(handler func(context.Context, *models.CheckoutConfirmedEvent) error) {
	eh.onCheckoutConfirmed = handler
}

// OnCheckoutFailed registers a handler for CheckoutFailed events
func (eh *EventHandler) OnCheckoutFailed(handler func(context.Context, *models.CheckoutFailedEvent) error) {
	eh.onCheckoutFailed = handler
}

// OnCheckoutAbandoned registers a handler for CheckoutAbandoned events
func (eh *EventHandler) OnCheckoutAbandoned(handler func(context.Context, *models.CheckoutAbandonedEvent) error) {
	eh.onCheckoutAbandoned = handler
}

// HandleMessage routes messages to the registered handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	log.Printf("Handling event: type=%s, id=%s", baseEvent.EventType, baseEvent.EventID)

	switch baseEvent.EventType {
	case models.EventTypeCheckoutStarted:
		if eh.onCheckoutStarted != nil {
			var event models.CheckoutStartedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal CheckoutStarted event: %w", err)
			}
			return eh.onCheckoutStarted(ctx, &event)
		}

	case models.EventTypePaymentIntentReady:
		if eh.onPaymentIntentReady != nil {
			var event models.PaymentIntentReadyEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentIntentReady event: %w", err)
			}
			return eh.onPaymentIntentReady(ctx, &event)
		}

	case models.EventTypePaymentIntentFailed:
		if eh.onPaymentIntentFailed != nil {
			var event models.PaymentIntentFailedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentIntentFailed event: %w", err)
			}
			return eh.onPaymentIntentFailed(ctx, &event)
		}

	case models.EventTypeCheckoutConfirmed:
		if eh.onCheckoutConfirmed != nil {
			var event models.CheckoutConfirmedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal CheckoutConfirmed event: %w", err)
			}
			return eh.onCheckoutConfirmed(ctx, &event)
		}

	case models.EventTypeCheckoutFailed:
		if eh.onCheckoutFailed != nil {
			var event models.CheckoutFailedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal CheckoutFailed event: %w", err)
			}
			return eh.onCheckoutFailed(ctx, &event)
		}

	case models.EventTypeCheckoutAbandoned:
		if eh.onCheckoutAbandoned != nil {
			var event models.CheckoutAbandonedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal CheckoutAbandoned event: %w", err)
			}
			return eh.onCheckoutAbandoned(ctx, &event)
		}
	}

	return nil
}
