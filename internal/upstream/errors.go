package upstream

import (
	"context"
	"errors"
	"fmt"
)

// ErrorClass is the client-side failure taxonomy for upstream calls.
// Classification is independent of exact processor error text and
// drives whether an automatic retry is attempted.
type ErrorClass string

const (
	// ClassMissingSecret: the processor response lacked the expected
	// client secret; fatal to the attempt, manual retry only.
	ClassMissingSecret ErrorClass = "missing_secret"
	// ClassUnauthorized: credential missing or expired; the caller is
	// redirected to login, never retried.
	ClassUnauthorized ErrorClass = "unauthorized"
	// ClassNetwork: the request did not complete (timeout, connection
	// failure); eligible for bounded automatic retry.
	ClassNetwork ErrorClass = "network"
	// ClassServer: a non-2xx response; 5xx retried, other 4xx surfaced.
	ClassServer ErrorClass = "server"
	// ClassValidation: locally detected bad input; never hits the wire.
	ClassValidation ErrorClass = "validation"
	// ClassConfirmFailed: the confirmation step was rejected; terminal
	// for the attempt, server message surfaced verbatim.
	ClassConfirmFailed ErrorClass = "confirm_failed"
	ClassUnknown       ErrorClass = "unknown"
)

// Error is a classified upstream failure
type Error struct {
	Class   ErrorClass
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream %s (status %d): %s", e.Class, e.Status, e.Message)
	}
	return fmt.Sprintf("upstream %s: %s", e.Class, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Retryable reports whether the failure is transient: network errors
// and 5xx responses only
func (e *Error) Retryable() bool {
	switch e.Class {
	case ClassNetwork:
		return true
	case ClassServer:
		return e.Status >= 500
	default:
		return false
	}
}

// UserMessage maps the class to a distinct, actionable user-facing
// message. Confirm failures carry the server's reason verbatim instead.
func (e *Error) UserMessage() string {
	switch e.Class {
	case ClassMissingSecret:
		return "The payment provider did not return a valid payment token. Please try again or contact support."
	case ClassUnauthorized:
		return "Your session has expired. Please sign in again to continue."
	case ClassNetwork:
		return "We could not reach the payment service. Please check your connection and try again."
	case ClassServer:
		if e.Status >= 500 {
			return "The payment service is temporarily unavailable. Please try again in a moment."
		}
		return "Your request could not be processed. Please review your order and try again."
	case ClassValidation:
		return e.Message
	case ClassConfirmFailed:
		if e.Message != "" {
			return e.Message
		}
		return "Your payment could not be confirmed. No charge was completed."
	default:
		return "Something went wrong. Please try again."
	}
}

// NewValidationError builds a local validation failure that must block
// submission before any network call
func NewValidationError(format string, args ...interface{}) *Error {
	return &Error{Class: ClassValidation, Message: fmt.Sprintf(format, args...)}
}

func networkError(err error) *Error {
	msg := "request did not complete"
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "request timed out"
	}
	return &Error{Class: ClassNetwork, Message: msg, cause: err}
}

func statusError(status int, body string) *Error {
	if status == 401 || status == 403 {
		return &Error{Class: ClassUnauthorized, Status: status, Message: body}
	}
	return &Error{Class: ClassServer, Status: status, Message: body}
}

// AsError extracts a classified error, wrapping anything else as unknown
func AsError(err error) *Error {
	var ue *Error
	if errors.As(err, &ue) {
		return ue
	}
	return &Error{Class: ClassUnknown, Message: err.Error(), cause: err}
}
