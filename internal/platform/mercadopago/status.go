package mercadopago

import (
	"context"
	"math"
	"strconv"
	"time"

	sdkconfig "github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"

	"github.com/psikit/psikit-payments/internal/domain"
)

// ResolveStatus fetches the current provider state of a payment through the
// official SDK. Used to settle charges the provider initially answered
// "pending" and by later re-polls.
func (c *Client) ResolveStatus(ctx context.Context, providerPaymentID string) (*domain.ChargeResult, error) {
	cfg, err := sdkconfig.New(c.accessToken)
	if err != nil {
		return nil, domain.NewPaymentError(domain.ErrProvider,
			"failed to create provider SDK config", "PROVIDER_ERROR")
	}

	id, err := strconv.Atoi(providerPaymentID)
	if err != nil {
		return nil, domain.NewPaymentError(domain.ErrValidation,
			"invalid provider payment id format", "VALIDATION_ERROR")
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	result, err := payment.NewClient(cfg).Get(ctx, id)
	if err != nil {
		if isTimeout(err) {
			return nil, domain.NewPaymentError(domain.ErrTimeout,
				"provider status call exceeded deadline", "TIMEOUT")
		}
		return nil, domain.NewPaymentError(domain.ErrProvider,
			"failed to get payment status: "+err.Error(), "PROVIDER_ERROR")
	}

	createdAt := result.DateCreated
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return &domain.ChargeResult{
		ProviderPaymentID: providerPaymentID,
		ProviderState:     mapProviderStatus(result.Status),
		StatusDetail:      result.StatusDetail,
		Amount:            int64(math.Round(result.TransactionAmount)),
		CreatedAt:         createdAt,
	}, nil
}
