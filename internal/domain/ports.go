// Package domain contains the core business entities and interfaces for the payment service.
package domain

import "context"

// PaymentGateway defines the interface for the payment provider. This is a
// "port" in hexagonal architecture - the domain defines what it needs, and
// infrastructure provides the implementation.
//
// Implementations classify failures into the domain error taxonomy and never
// recover them. They must not retry Charge on their own: retry policy is the
// orchestrator's decision, and each retry uses a freshly minted attempt id.
type PaymentGateway interface {
	// Tokenize exchanges raw card details for a single-use token.
	// Structurally invalid card fields fail with ErrValidation before any
	// network call.
	Tokenize(ctx context.Context, card CardDetails) (*CardToken, error)

	// Charge submits a payment using a single-use token. The attempt id
	// inside the request is sent as the request-level idempotency key so
	// network retries cannot double-charge. A provider-side rejection
	// surfaces as ErrDeclined with the result still populated.
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)

	// Refund refunds a charged payment. A zero amount means a full refund.
	// Unknown provider payment ids fail with ErrNotFound; amounts above the
	// charge fail with ErrValidation.
	Refund(ctx context.Context, providerPaymentID string, amount int64) (*RefundResult, error)

	// ResolveStatus fetches the current provider state of a payment,
	// used to settle charges the provider initially answered "pending".
	ResolveStatus(ctx context.Context, providerPaymentID string) (*ChargeResult, error)
}

// ChargeRequest carries everything the gateway needs to submit a charge.
type ChargeRequest struct {
	AttemptID        string // idempotency key
	TokenID          string
	Amount           int64 // minor units
	Description      string
	PayerReference   string
	SessionReference string
	Metadata         Metadata
}

// Permission is the delivery-permission state of the channel adapter.
type Permission string

const (
	PermissionUnrequested Permission = "unrequested"
	PermissionRequested   Permission = "requested"
	PermissionGranted     Permission = "granted"
	PermissionDenied      Permission = "denied"
)

// DeliveryChannel abstracts over how notifications reach the user: a durable
// background-registered channel or an immediate in-page one. Implementations
// pick whichever is available and must never surface the fallback as an
// error.
type DeliveryChannel interface {
	// Permission returns the current permission state without side effects.
	Permission() Permission

	// RequestPermission negotiates delivery permission. It is idempotent
	// once a terminal Granted/Denied decision has been reached.
	RequestPermission(ctx context.Context) (Permission, error)

	// Deliver presents a notification. Events sharing a dedupe tag within
	// the buffering window collapse to the most recent one.
	Deliver(ctx context.Context, event NotificationEvent) error
}
