package worker

import (
	"context"
	"log"

	"checkout-service/internal/broker"
	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// AuditWorker consumes checkout lifecycle events and maintains the
// per-session audit record in Postgres. Events are deduplicated by id
// so replays are harmless.
type AuditWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        *store.Store
	logger       *zap.Logger
}

// NewAuditWorker creates a new audit worker
func NewAuditWorker(consumer *broker.Consumer, st *store.Store) *AuditWorker {
	w := &AuditWorker{
		consumer: consumer,
		store:    st,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnCheckoutStarted(w.handleCheckoutStarted)
	eventHandler.OnPaymentIntentReady(w.handlePaymentIntentReady)
	eventHandler.OnPaymentIntentFailed(w.handlePaymentIntentFailed)
	eventHandler.OnCheckoutConfirmed(w.handleCheckoutConfirmed)
	eventHandler.OnCheckoutFailed(w.handleCheckoutFailed)
	eventHandler.OnCheckoutAbandoned(w.handleCheckoutAbandoned)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *AuditWorker) Start(ctx context.Context) error {
	log.Println("Starting checkout audit worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *AuditWorker) Stop() error {
	log.Println("Stopping checkout audit worker...")
	return w.consumer.Close()
}

// alreadyProcessed checks and records event idempotency
func (w *AuditWorker) alreadyProcessed(ctx context.Context, base models.BaseEvent) (bool, error) {
	processed, err := w.store.IsEventProcessed(ctx, base.EventID)
	if err != nil {
		return false, err
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", base.EventID))
	}
	return processed, nil
}

func (w *AuditWorker) markProcessed(ctx context.Context, base models.BaseEvent) {
	if err := w.store.MarkEventProcessed(ctx, base.EventID, base.EventType); err != nil {
		w.logger.Error("Failed to mark event processed", zap.Error(err))
	}
}

func (w *AuditWorker) handleCheckoutStarted(ctx context.Context, event *models.CheckoutStartedEvent) error {
	processed, err := w.alreadyProcessed(ctx, event.BaseEvent)
	if err != nil || processed {
		return err
	}

	rec := &models.CheckoutRecord{
		SessionID:  event.SessionID,
		TargetKind: event.TargetKind,
		TargetRef:  event.TargetRef,
		State:      models.StateLoadingCart,
	}
	if err := w.store.CreateCheckoutRecord(ctx, rec); err != nil {
		return err
	}

	w.markProcessed(ctx, event.BaseEvent)
	return nil
}

func (w *AuditWorker) handlePaymentIntentReady(ctx context.Context, event *models.PaymentIntentReadyEvent) error {
	processed, err := w.alreadyProcessed(ctx, event.BaseEvent)
	if err != nil || processed {
		return err
	}

	if err := w.store.UpdateCheckoutState(ctx, event.SessionID, models.StatePaymentReady, ""); err != nil {
		return err
	}

	w.markProcessed(ctx, event.BaseEvent)
	return nil
}

func (w *AuditWorker) handlePaymentIntentFailed(ctx context.Context, event *models.PaymentIntentFailedEvent) error {
	processed, err := w.alreadyProcessed(ctx, event.BaseEvent)
	if err != nil || processed {
		return err
	}

	if err := w.store.UpdateCheckoutState(ctx, event.SessionID, models.StatePaymentError, event.ErrorClass); err != nil {
		return err
	}

	w.markProcessed(ctx, event.BaseEvent)
	return nil
}

func (w *AuditWorker) handleCheckoutConfirmed(ctx context.Context, event *models.CheckoutConfirmedEvent) error {
	processed, err := w.alreadyProcessed(ctx, event.BaseEvent)
	if err != nil || processed {
		return err
	}

	if err := w.store.UpdateCheckoutState(ctx, event.SessionID, models.StateSuccess, ""); err != nil {
		return err
	}

	w.logger.Info("Checkout recorded as confirmed",
		zap.String("session_id", event.SessionID),
		zap.Int64("total", event.TotalAmount))

	w.markProcessed(ctx, event.BaseEvent)
	return nil
}

func (w *AuditWorker) handleCheckoutFailed(ctx context.Context, event *models.CheckoutFailedEvent) error {
	processed, err := w.alreadyProcessed(ctx, event.BaseEvent)
	if err != nil || processed {
		return err
	}

	if err := w.store.UpdateCheckoutState(ctx, event.SessionID, models.StateConfirmError, event.ErrorClass); err != nil {
		return err
	}

	w.markProcessed(ctx, event.BaseEvent)
	return nil
}

func (w *AuditWorker) handleCheckoutAbandoned(ctx context.Context, event *models.CheckoutAbandonedEvent) error {
	processed, err := w.alreadyProcessed(ctx, event.BaseEvent)
	if err != nil || processed {
		return err
	}

	if err := w.store.UpdateCheckoutState(ctx, event.SessionID, "ABANDONED", ""); err != nil {
		return err
	}

	w.markProcessed(ctx, event.BaseEvent)
	return nil
}
