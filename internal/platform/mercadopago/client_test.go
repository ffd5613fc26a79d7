package mercadopago

import (
	"context"
	"testing"
	"time"

	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psikit/psikit-payments/internal/domain"
)

const testBaseURL = "http://provider.test"

func newTestClient() *Client {
	return NewClient(testBaseURL, "TEST-ACCESS-TOKEN")
}

func validCard() domain.CardDetails {
	return domain.CardDetails{
		CardNumber:           "5031755734530604",
		HolderName:           "APRO",
		ExpirationMonth:      11,
		ExpirationYear:       time.Now().Year() + 2,
		SecurityCode:         "123",
		IdentificationType:   "DNI",
		IdentificationNumber: "12345678",
	}
}

func TestTokenize_Success(t *testing.T) {
	defer gock.Off()

	gock.New(testBaseURL).
		Post("/v1/card_tokens").
		MatchHeader("Authorization", "Bearer TEST-ACCESS-TOKEN").
		Reply(201).
		JSON(map[string]any{
			"id":                  "tok-123",
			"payment_method_hint": "master",
		})

	token, err := newTestClient().Tokenize(context.Background(), validCard())
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token.TokenID)
	assert.Equal(t, "master", token.PaymentMethodHint)
	assert.True(t, gock.IsDone())
}

func TestTokenize_StructuralValidation(t *testing.T) {
	defer gock.Off()

	tests := []struct {
		name   string
		mutate func(*domain.CardDetails)
	}{
		{"non-numeric number", func(c *domain.CardDetails) { c.CardNumber = "4111-1111" }},
		{"expired year", func(c *domain.CardDetails) { c.ExpirationYear = time.Now().Year() - 1 }},
		{"month out of range", func(c *domain.CardDetails) { c.ExpirationMonth = 13 }},
		{"non-numeric security code", func(c *domain.CardDetails) { c.SecurityCode = "abc" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := validCard()
			tt.mutate(&card)

			_, err := newTestClient().Tokenize(context.Background(), card)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	// Structural failures never reach the provider.
	assert.True(t, gock.IsDone())
}

func TestTokenize_ProviderError(t *testing.T) {
	defer gock.Off()

	gock.New(testBaseURL).
		Post("/v1/card_tokens").
		Reply(500).
		JSON(map[string]string{"error": "internal"})

	_, err := newTestClient().Tokenize(context.Background(), validCard())
	assert.ErrorIs(t, err, domain.ErrProvider)
}

func TestCharge_SendsIdempotencyKey(t *testing.T) {
	defer gock.Off()

	gock.New(testBaseURL).
		Post("/v1/payments").
		MatchHeader("X-Idempotency-Key", "attempt-42").
		Reply(201).
		JSON(map[string]any{
			"id":            "pay-1",
			"status":        "approved",
			"status_detail": "accredited",
			"amount":        5000,
		})

	result, err := newTestClient().Charge(context.Background(), domain.ChargeRequest{
		AttemptID:      "attempt-42",
		TokenID:        "tok-123",
		Amount:         5000,
		Description:    "Individual session",
		PayerReference: "patient-7",
	})
	require.NoError(t, err)
	assert.Equal(t, "pay-1", result.ProviderPaymentID)
	assert.Equal(t, domain.ProviderApproved, result.ProviderState)
	assert.Equal(t, int64(5000), result.Amount)
	assert.True(t, gock.IsDone())
}

func TestCharge_Declined(t *testing.T) {
	defer gock.Off()

	gock.New(testBaseURL).
		Post("/v1/payments").
		Reply(201).
		JSON(map[string]any{
			"id":            "pay-2",
			"status":        "rejected",
			"status_detail": "cc_rejected_insufficient_amount",
		})

	result, err := newTestClient().Charge(context.Background(), domain.ChargeRequest{
		AttemptID: "attempt-43", TokenID: "tok-1", Amount: 5000,
	})
	assert.ErrorIs(t, err, domain.ErrDeclined)
	require.NotNil(t, result)
	assert.Equal(t, domain.ProviderRejected, result.ProviderState)
	assert.Equal(t, "cc_rejected_insufficient_amount", result.StatusDetail)
}

func TestCharge_Pending(t *testing.T) {
	defer gock.Off()

	gock.New(testBaseURL).
		Post("/v1/payments").
		Reply(201).
		JSON(map[string]any{
			"id":            "pay-3",
			"status":        "in_process",
			"status_detail": "pending_contingency",
		})

	result, err := newTestClient().Charge(context.Background(), domain.ChargeRequest{
		AttemptID: "attempt-44", TokenID: "tok-1", Amount: 5000,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderPending, result.ProviderState)
}

func TestCharge_Timeout(t *testing.T) {
	defer gock.Off()

	gock.New(testBaseURL).
		Post("/v1/payments").
		ReplyError(&timeoutError{})

	_, err := newTestClient().Charge(context.Background(), domain.ChargeRequest{
		AttemptID: "attempt-45", TokenID: "tok-1", Amount: 5000,
	})
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestRefund_Full(t *testing.T) {
	defer gock.Off()

	gock.New(testBaseURL).
		Post("/v1/payments/pay-1/refunds").
		Reply(201).
		JSON(map[string]any{
			"id":     "ref-1",
			"status": "approved",
			"amount": 5000,
		})

	result, err := newTestClient().Refund(context.Background(), "pay-1", 0)
	require.NoError(t, err)
	assert.Equal(t, "ref-1", result.RefundID)
	assert.Equal(t, int64(5000), result.Amount)
}

func TestRefund_UnknownPayment(t *testing.T) {
	defer gock.Off()

	gock.New(testBaseURL).
		Post("/v1/payments/pay-missing/refunds").
		Reply(404).
		JSON(map[string]string{"error": "payment not found"})

	_, err := newTestClient().Refund(context.Background(), "pay-missing", 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRefund_AmountTooLarge(t *testing.T) {
	defer gock.Off()

	gock.New(testBaseURL).
		Post("/v1/payments/pay-1/refunds").
		Reply(400).
		JSON(map[string]string{"error": "amount exceeds payment"})

	_, err := newTestClient().Refund(context.Background(), "pay-1", 999_999)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

// timeoutError mimics a transport timeout.
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "request timed out" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }
