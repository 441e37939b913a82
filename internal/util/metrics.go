package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutSessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_sessions_started_total",
		Help: "Total number of checkout sessions started",
	}, []string{"target"})

	CheckoutSessionsEmptyCart = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_sessions_empty_cart_total",
		Help: "Total number of sessions ended by an empty cart",
	})

	CheckoutSessionsAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_sessions_abandoned_total",
		Help: "Total number of checkout sessions abandoned before a terminal state",
	})

	PaymentIntentAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_intent_attempts_total",
		Help: "Total number of payment intent creation calls issued",
	})

	PaymentIntentRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_intent_retries_total",
		Help: "Total number of automatic payment intent retries scheduled",
	})

	PaymentIntentFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_intent_failures_total",
		Help: "Total number of payment intent creations surfaced as failed",
	}, []string{"class"})

	PaymentIntentLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_intent_latency_seconds",
		Help:    "Latency of payment intent creation calls",
		Buckets: prometheus.DefBuckets,
	})

	CheckoutConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_confirmed_total",
		Help: "Total number of checkouts confirmed successfully",
	})

	CheckoutConfirmFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_confirm_failed_total",
		Help: "Total number of confirmation attempts rejected",
	}, []string{"class"})

	CheckoutConfirmLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_confirm_latency_seconds",
		Help:    "Latency of payment confirmation calls",
		Buckets: prometheus.DefBuckets,
	})

	CheckoutValidationRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_validation_rejections_total",
		Help: "Total number of confirmations blocked by local field validation",
	})

	CheckoutDraftsCleared = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_drafts_cleared_total",
		Help: "Total number of persisted checkout drafts cleared on success",
	})

	CartMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Total number of cart ledger mutations",
	}, []string{"op"})

	CartSyncFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_sync_failures_total",
		Help: "Total number of failed server cart synchronizations",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
