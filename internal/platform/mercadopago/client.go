// Package mercadopago implements the domain.PaymentGateway port against the
// server-routed provider endpoints. The provider access credential is
// supplied out-of-band through configuration; this package only uses it.
package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/psikit/psikit-payments/internal/domain"
)

// callTimeout is the fixed per-call deadline on every provider operation.
const callTimeout = 5 * time.Second

// Client talks to the provider's tokenization, charge and refund endpoints.
// It classifies failures into the domain taxonomy and never recovers them;
// in particular it never retries a charge on its own.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// NewClient creates a provider client. The access token is the server-side
// provider credential.
func NewClient(baseURL, accessToken string) *Client {
	return &Client{
		baseURL:     baseURL,
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: callTimeout,
		},
	}
}

// cardTokenRequest is the tokenization endpoint wire format.
type cardTokenRequest struct {
	CardNumber           string `json:"card_number"`
	HolderName           string `json:"holder_name"`
	ExpirationMonth      int    `json:"expiration_month"`
	ExpirationYear       int    `json:"expiration_year"`
	SecurityCode         string `json:"security_code"`
	IdentificationType   string `json:"identification_type"`
	IdentificationNumber string `json:"identification_number"`
}

type cardTokenResponse struct {
	ID                string    `json:"id"`
	PaymentMethodHint string    `json:"payment_method_hint"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// Tokenize exchanges card details for a single-use token. Structural card
// validation happens before any network call so malformed input never
// reaches the provider.
func (c *Client) Tokenize(ctx context.Context, card domain.CardDetails) (*domain.CardToken, error) {
	if err := validateCard(card); err != nil {
		return nil, err
	}

	payload := cardTokenRequest{
		CardNumber:           card.CardNumber,
		HolderName:           card.HolderName,
		ExpirationMonth:      card.ExpirationMonth,
		ExpirationYear:       card.ExpirationYear,
		SecurityCode:         card.SecurityCode,
		IdentificationType:   card.IdentificationType,
		IdentificationNumber: card.IdentificationNumber,
	}

	var resp cardTokenResponse
	if err := c.post(ctx, "/v1/card_tokens", nil, payload, &resp); err != nil {
		return nil, err
	}

	return &domain.CardToken{
		TokenID:           resp.ID,
		PaymentMethodHint: resp.PaymentMethodHint,
		ExpiresAt:         resp.ExpiresAt,
	}, nil
}

// chargeRequest is the charge endpoint wire format. Amounts are minor units.
type chargeRequest struct {
	TokenID           string          `json:"token_id"`
	Amount            int64           `json:"amount"`
	Description       string          `json:"description"`
	PayerReference    string          `json:"payer_reference"`
	ExternalReference string          `json:"external_reference,omitempty"`
	Metadata          domain.Metadata `json:"metadata,omitempty"`
}

type chargeResponse struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	StatusDetail string    `json:"status_detail"`
	Amount       int64     `json:"amount"`
	DateCreated  time.Time `json:"date_created"`
}

// Charge submits a payment. The attempt id travels as the X-Idempotency-Key
// header so transport-level retries cannot double-charge. When the provider
// reports a rejected terminal state the normalized result is returned
// together with ErrDeclined so the caller can record the status detail.
func (c *Client) Charge(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
	payload := chargeRequest{
		TokenID:           req.TokenID,
		Amount:            req.Amount,
		Description:       req.Description,
		PayerReference:    req.PayerReference,
		ExternalReference: req.SessionReference,
		Metadata:          req.Metadata,
	}

	headers := map[string]string{"X-Idempotency-Key": req.AttemptID}

	var resp chargeResponse
	if err := c.post(ctx, "/v1/payments", headers, payload, &resp); err != nil {
		return nil, err
	}

	result := &domain.ChargeResult{
		ProviderPaymentID: resp.ID,
		ProviderState:     mapProviderStatus(resp.Status),
		StatusDetail:      resp.StatusDetail,
		Amount:            resp.Amount,
		CreatedAt:         resp.DateCreated,
	}

	if result.ProviderState == domain.ProviderRejected {
		return result, domain.NewPaymentError(domain.ErrDeclined,
			fmt.Sprintf("payment declined: %s", resp.StatusDetail), "DECLINED")
	}

	return result, nil
}

// refundRequest is the refund endpoint wire format. A nil amount requests a
// full refund.
type refundRequest struct {
	Amount *int64 `json:"amount,omitempty"`
}

type refundResponse struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Amount      int64     `json:"amount"`
	DateCreated time.Time `json:"date_created"`
}

// Refund refunds a charged payment, fully when amount is zero.
func (c *Client) Refund(ctx context.Context, providerPaymentID string, amount int64) (*domain.RefundResult, error) {
	payload := refundRequest{}
	if amount > 0 {
		payload.Amount = &amount
	}

	path := fmt.Sprintf("/v1/payments/%s/refunds", providerPaymentID)

	var resp refundResponse
	if err := c.post(ctx, path, nil, payload, &resp); err != nil {
		return nil, err
	}

	return &domain.RefundResult{
		RefundID:      resp.ID,
		ProviderState: resp.Status,
		Amount:        resp.Amount,
		CreatedAt:     resp.DateCreated,
	}, nil
}

// post executes one JSON POST against the provider and decodes the response
// into out. Response codes are classified into the domain error taxonomy.
func (c *Client) post(ctx context.Context, path string, headers map[string]string, payload, out any) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return domain.NewPaymentError(domain.ErrProvider,
			"failed to marshal provider request", "PROVIDER_ERROR")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return domain.NewPaymentError(domain.ErrProvider,
			"failed to create provider request", "PROVIDER_ERROR")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return domain.NewPaymentError(domain.ErrTimeout,
				"provider call exceeded deadline", "TIMEOUT")
		}
		return domain.NewPaymentError(domain.ErrProvider,
			"provider request failed: "+err.Error(), "PROVIDER_ERROR")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		// Success - continue
	case resp.StatusCode == http.StatusNotFound:
		return domain.NewPaymentError(domain.ErrNotFound,
			"provider does not know this payment", "NOT_FOUND")
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		body, _ := io.ReadAll(resp.Body)
		return domain.NewPaymentError(domain.ErrValidation,
			fmt.Sprintf("provider rejected request: %s", string(body)), "VALIDATION_ERROR")
	default:
		body, _ := io.ReadAll(resp.Body)
		return domain.NewPaymentError(domain.ErrProvider,
			fmt.Sprintf("unexpected provider status %d: %s", resp.StatusCode, string(body)), "PROVIDER_ERROR")
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.NewPaymentError(domain.ErrProvider,
			"failed to decode provider response", "PROVIDER_ERROR")
	}

	return nil
}

// isTimeout reports whether err is a deadline or transport timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// mapProviderStatus normalizes the provider status vocabulary.
func mapProviderStatus(status string) domain.ProviderState {
	switch status {
	case "approved":
		return domain.ProviderApproved
	case "rejected", "cancelled":
		return domain.ProviderRejected
	default:
		// "pending", "in_process" and anything unknown stay pending until
		// resolved.
		return domain.ProviderPending
	}
}

// validateCard performs structural validation on card fields.
func validateCard(card domain.CardDetails) error {
	if card.CardNumber == "" || !allDigits(card.CardNumber) {
		return domain.NewPaymentError(domain.ErrValidation,
			"card number must be numeric", "VALIDATION_ERROR")
	}
	if card.SecurityCode == "" || !allDigits(card.SecurityCode) {
		return domain.NewPaymentError(domain.ErrValidation,
			"security code must be numeric", "VALIDATION_ERROR")
	}
	if card.ExpirationMonth < 1 || card.ExpirationMonth > 12 {
		return domain.NewPaymentError(domain.ErrValidation,
			"expiration month must be between 1 and 12", "VALIDATION_ERROR")
	}

	now := time.Now()
	if card.ExpirationYear < now.Year() ||
		(card.ExpirationYear == now.Year() && card.ExpirationMonth < int(now.Month())) {
		return domain.NewPaymentError(domain.ErrValidation,
			"card is expired", "VALIDATION_ERROR")
	}

	return nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
