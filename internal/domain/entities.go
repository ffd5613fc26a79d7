// Package domain contains the core business entities and interfaces for the
// payment service. This is the innermost layer of the Clean Architecture - it
// has no dependencies on external frameworks or infrastructure.
package domain

import (
	"fmt"
	"time"
)

// Metadata is a constrained string-keyed mapping attached to a payment
// attempt and forwarded to the provider. Only string, integer, float and
// boolean values are accepted so the wire format stays predictable.
type Metadata map[string]any

// Validate rejects metadata values outside the supported primitive set.
func (m Metadata) Validate() error {
	for key, value := range m {
		switch value.(type) {
		case string, bool, int, int32, int64, float32, float64:
			// ok
		default:
			return fmt.Errorf("metadata key %q has unsupported type %T", key, value)
		}
	}
	return nil
}

// CardDetails holds the raw card fields supplied by the caller for
// tokenization. It is never persisted and never logged.
type CardDetails struct {
	CardNumber           string `json:"card_number"`
	HolderName           string `json:"holder_name"`
	ExpirationMonth      int    `json:"expiration_month"`
	ExpirationYear       int    `json:"expiration_year"`
	SecurityCode         string `json:"security_code"`
	IdentificationType   string `json:"identification_type"`
	IdentificationNumber string `json:"identification_number"`
}

// CardToken is a single-use token minted by the provider. Once consumed by a
// charge it must not be reused; retries mint a fresh token.
type CardToken struct {
	TokenID           string    `json:"token_id"`
	PaymentMethodHint string    `json:"payment_method_hint"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// PaymentAttempt is the aggregate owned by the orchestrator for its entire
// lifecycle. AttemptID doubles as the provider-side idempotency key.
type PaymentAttempt struct {
	AttemptID         string    `json:"attempt_id"`
	Amount            int64     `json:"amount"` // minor units, always > 0
	Description       string    `json:"description"`
	PayerReference    string    `json:"payer_reference"`
	SessionReference  string    `json:"session_reference,omitempty"`
	Metadata          Metadata  `json:"metadata,omitempty"`
	State             State     `json:"state"`
	ProviderPaymentID string    `json:"provider_payment_id,omitempty"` // set exactly once, on entering Charged
	StatusDetail      string    `json:"status_detail,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	LastTransitionAt  time.Time `json:"last_transition_at"`
}

// RefundState is the lifecycle of a single refund record.
type RefundState string

const (
	RefundRequested RefundState = "requested"
	RefundCompleted RefundState = "completed"
	RefundFailed    RefundState = "failed"
)

// RefundRecord tracks one refund against a charged attempt. It references
// the owning attempt by identity only.
type RefundRecord struct {
	RefundID  string      `json:"refund_id"`
	AttemptID string      `json:"attempt_id"`
	Amount    int64       `json:"amount"` // minor units
	State     RefundState `json:"state"`
	CreatedAt time.Time   `json:"created_at"`
}

// AttemptSnapshot is the read model handed across the API boundary. The
// orchestrator remains the only writer of the underlying attempt.
type AttemptSnapshot struct {
	Attempt PaymentAttempt `json:"attempt"`
	Refunds []RefundRecord `json:"refunds,omitempty"`

	// RefundableAmount is the charge amount minus completed refunds.
	RefundableAmount int64 `json:"refundable_amount"`
}

// ChargeResult is the normalized outcome of a charge submission or a status
// resolution against the provider.
type ChargeResult struct {
	ProviderPaymentID string
	ProviderState     ProviderState
	StatusDetail      string
	Amount            int64
	CreatedAt         time.Time
}

// RefundResult is the normalized outcome of a refund call.
type RefundResult struct {
	RefundID      string
	ProviderState string
	Amount        int64
	CreatedAt     time.Time
}

// ProviderState is the provider-reported payment status.
type ProviderState string

const (
	ProviderApproved ProviderState = "approved"
	ProviderRejected ProviderState = "rejected"
	ProviderPending  ProviderState = "pending"
)
