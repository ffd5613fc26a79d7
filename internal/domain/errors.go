// Package domain contains the core business entities and interfaces for the payment service.
package domain

import "errors"

// Domain errors represent the failure taxonomy of the payment pipeline.
var (
	// ErrValidation is returned when caller-supplied data is malformed.
	// Validation failures are never retried automatically.
	ErrValidation = errors.New("validation failed")

	// ErrProvider is returned when the payment provider call fails or
	// answers with a non-success status.
	ErrProvider = errors.New("payment provider error")

	// ErrTimeout is returned when a provider call exceeds its deadline.
	// The orchestrator treats it exactly like ErrProvider.
	ErrTimeout = errors.New("payment provider timeout")

	// ErrDeclined is returned when the provider reports a non-approved
	// terminal state. A business rejection, not a transport failure.
	ErrDeclined = errors.New("payment declined by provider")

	// ErrNotFound is returned when a refund targets a payment the
	// provider does not know, or the attempt id is unknown locally.
	ErrNotFound = errors.New("payment not found")

	// ErrConcurrentOperation is returned when a second operation is
	// attempted against an attempt that already has a call in flight.
	ErrConcurrentOperation = errors.New("operation already in flight for attempt")

	// ErrInvalidState is returned when an operation targets an attempt in
	// a state that does not permit it.
	ErrInvalidState = errors.New("operation not permitted in current state")
)

// PaymentError wraps a domain error with a human message and a stable code
// for the API layer.
type PaymentError struct {
	Err     error
	Message string
	Code    string
}

// Error implements the error interface.
func (e *PaymentError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// Unwrap allows errors.Is and errors.As to work with PaymentError.
func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewPaymentError creates a new PaymentError with the given error and message.
func NewPaymentError(err error, message, code string) *PaymentError {
	return &PaymentError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}
