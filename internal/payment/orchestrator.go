// Package payment implements the core business logic for payment processing.
// This is the service/use-case layer in Clean Architecture.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"

	"github.com/psikit/psikit-payments/internal/domain"
	"github.com/psikit/psikit-payments/internal/event"
)

var (
	attemptChargedCounter  = metrics.GetOrCreateCounter(`payment_attempts_total{outcome="charged"}`)
	attemptDeclinedCounter = metrics.GetOrCreateCounter(`payment_attempts_total{outcome="declined"}`)
	attemptFailedCounter   = metrics.GetOrCreateCounter(`payment_attempts_total{outcome="failed"}`)
	attemptRefundedCounter = metrics.GetOrCreateCounter(`payment_attempts_total{outcome="refunded"}`)

	refundCompletedCounter = metrics.GetOrCreateCounter(`payment_refunds_total{result="completed"}`)
	refundFailedCounter    = metrics.GetOrCreateCounter(`payment_refunds_total{result="failed"}`)
)

// Orchestrator owns the lifecycle of payment attempts: it is the only writer
// of attempt state, enforces monotonic transitions and at most one in-flight
// provider call per attempt, and emits a lifecycle event on every
// transition.
type Orchestrator struct {
	gateway domain.PaymentGateway
	bus     *event.Bus
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	attempts map[string]*attemptRecord
}

// attemptRecord bundles an attempt with the bookkeeping only the
// orchestrator sees.
type attemptRecord struct {
	attempt   domain.PaymentAttempt
	refunds   []domain.RefundRecord
	inFlight  bool
	abandoned bool

	// pendingProviderID holds the provider payment id of a charge answered
	// "pending". The attempt's ProviderPaymentID stays empty until Charged.
	pendingProviderID string
}

// NewOrchestrator creates an orchestrator with the required dependencies.
func NewOrchestrator(gateway domain.PaymentGateway, bus *event.Bus, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		gateway:  gateway,
		bus:      bus,
		logger:   logger,
		now:      time.Now,
		attempts: make(map[string]*attemptRecord),
	}
}

// ProcessRequest carries everything needed to run one payment attempt.
type ProcessRequest struct {
	// AttemptID is the client-generated idempotency key. Generated here
	// when the caller leaves it empty.
	AttemptID        string
	Card             domain.CardDetails
	Amount           int64
	Description      string
	PayerReference   string
	SessionReference string
	Metadata         domain.Metadata
}

// Process runs the tokenize -> charge pipeline for a single attempt. A
// replay with the attempt id of an already charged attempt returns the
// existing snapshot without touching the provider. Declined attempts return
// their snapshot together with the declined error so callers can offer a
// different card.
func (o *Orchestrator) Process(ctx context.Context, req ProcessRequest) (*domain.AttemptSnapshot, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.AttemptID == "" {
		req.AttemptID = uuid.New().String()
	}

	rec, snapshot, err := o.register(req)
	if err != nil || snapshot != nil {
		return snapshot, err
	}
	defer o.release(req.AttemptID)

	// Tokenization. A fresh single-use token is minted for every attempt;
	// retries arrive as new attempts and never reuse a token.
	o.transition(rec, domain.StateTokenizing)

	token, err := o.gateway.Tokenize(ctx, req.Card)
	if abandoned := o.isAbandoned(req.AttemptID); abandoned {
		// The caller walked away while tokenize was in flight. Fail the
		// attempt so a late token cannot be resurrected.
		o.transition(rec, domain.StateFailed)
		attemptFailedCounter.Inc()
		return o.snapshotOf(rec), domain.NewPaymentError(domain.ErrInvalidState,
			"attempt was abandoned", "INVALID_STATE")
	}
	if err != nil {
		o.logger.ErrorContext(ctx, "tokenization failed", "attemptId", req.AttemptID, "error", err)
		o.transition(rec, domain.StateFailed)
		attemptFailedCounter.Inc()
		return o.snapshotOf(rec), err
	}

	o.transition(rec, domain.StateTokenized)

	// Charge. The attempt id is the idempotency key; the gateway never
	// retries on its own.
	o.transition(rec, domain.StateCharging)

	result, err := o.gateway.Charge(ctx, domain.ChargeRequest{
		AttemptID:        req.AttemptID,
		TokenID:          token.TokenID,
		Amount:           req.Amount,
		Description:      req.Description,
		PayerReference:   req.PayerReference,
		SessionReference: req.SessionReference,
		Metadata:         req.Metadata,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDeclined) {
			o.setDeclined(rec, result)
			return o.snapshotOf(rec), err
		}
		o.logger.ErrorContext(ctx, "charge failed", "attemptId", req.AttemptID, "error", err)
		o.transition(rec, domain.StateFailed)
		attemptFailedCounter.Inc()
		return o.snapshotOf(rec), err
	}

	return o.settleCharge(ctx, rec, result)
}

// Resolve re-polls the provider for an attempt stuck in Charging after a
// "pending" charge answer and applies the outcome.
func (o *Orchestrator) Resolve(ctx context.Context, attemptID string) (*domain.AttemptSnapshot, error) {
	rec, err := o.acquire(attemptID, domain.StateCharging)
	if err != nil {
		return nil, err
	}
	defer o.release(attemptID)

	if rec.pendingProviderID == "" {
		return nil, domain.NewPaymentError(domain.ErrInvalidState,
			"attempt has no pending provider payment to resolve", "INVALID_STATE")
	}

	result, err := o.gateway.ResolveStatus(ctx, rec.pendingProviderID)
	if err != nil {
		// The charge itself succeeded; a failed poll leaves the attempt in
		// Charging for a later re-poll.
		o.logger.WarnContext(ctx, "status resolution failed", "attemptId", attemptID, "error", err)
		return o.snapshotOf(rec), err
	}

	return o.applyResolution(rec, result), nil
}

// Refund refunds a charged attempt, fully when amount is zero. Partial
// refunds keep the attempt in Charged with an attached refund record; a full
// refund moves it through Refunding to Refunded.
func (o *Orchestrator) Refund(ctx context.Context, attemptID string, amount int64) (*domain.RefundRecord, error) {
	rec, err := o.acquire(attemptID, domain.StateCharged, domain.StateRefunding)
	if err != nil {
		return nil, err
	}
	defer o.release(attemptID)

	remaining := refundable(rec)
	requested := amount
	if requested == 0 {
		requested = remaining
	}
	if requested <= 0 {
		return nil, domain.NewPaymentError(domain.ErrValidation,
			"nothing left to refund", "VALIDATION_ERROR")
	}
	if requested > remaining {
		return nil, domain.NewPaymentError(domain.ErrValidation,
			fmt.Sprintf("refund amount %d exceeds refundable amount %d", requested, remaining), "VALIDATION_ERROR")
	}

	full := requested == remaining
	if full && rec.attempt.State == domain.StateCharged {
		o.transition(rec, domain.StateRefunding)
	}

	record := domain.RefundRecord{
		RefundID:  uuid.New().String(),
		AttemptID: attemptID,
		Amount:    requested,
		State:     domain.RefundRequested,
		CreatedAt: o.now(),
	}

	// Ask the provider for a full refund only when nothing was refunded
	// before; otherwise the exact remainder must be explicit.
	gatewayAmount := requested
	if full && len(completedRefunds(rec)) == 0 {
		gatewayAmount = 0
	}

	result, err := o.gateway.Refund(ctx, rec.attempt.ProviderPaymentID, gatewayAmount)
	if err != nil {
		o.logger.ErrorContext(ctx, "refund failed", "attemptId", attemptID, "error", err)
		record.State = domain.RefundFailed
		o.appendRefund(rec, record)
		refundFailedCounter.Inc()
		// A failed full refund leaves the attempt in Refunding; Refund may
		// be retried from there.
		return &record, err
	}

	record.RefundID = result.RefundID
	record.State = domain.RefundCompleted
	o.appendRefund(rec, record)
	refundCompletedCounter.Inc()

	if full {
		o.transition(rec, domain.StateRefunded)
		attemptRefundedCounter.Inc()
	}

	o.logger.InfoContext(ctx, "refund completed",
		"attemptId", attemptID, "refundId", record.RefundID, "amount", requested, "full", full)

	return &record, nil
}

// Abandon marks an attempt whose tokenization is still in flight as
// abandoned. When the late response arrives the attempt fails instead of
// resurrecting a token the caller no longer holds.
func (o *Orchestrator) Abandon(attemptID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, ok := o.attempts[attemptID]
	if !ok {
		return domain.NewPaymentError(domain.ErrNotFound,
			fmt.Sprintf("attempt %q not found", attemptID), "NOT_FOUND")
	}
	if rec.attempt.State != domain.StateTokenizing {
		return domain.NewPaymentError(domain.ErrInvalidState,
			"only a pending tokenization can be abandoned", "INVALID_STATE")
	}

	rec.abandoned = true
	return nil
}

// Get returns the snapshot of an attempt.
func (o *Orchestrator) Get(attemptID string) (*domain.AttemptSnapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, ok := o.attempts[attemptID]
	if !ok {
		return nil, domain.NewPaymentError(domain.ErrNotFound,
			fmt.Sprintf("attempt %q not found", attemptID), "NOT_FOUND")
	}
	return snapshot(rec), nil
}

// register creates the attempt record, or resolves a replay of an existing
// attempt id. Returns a non-nil snapshot for the idempotent charged replay.
func (o *Orchestrator) register(req ProcessRequest) (*attemptRecord, *domain.AttemptSnapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if existing, ok := o.attempts[req.AttemptID]; ok {
		switch {
		case existing.attempt.State == domain.StateCharged:
			// Idempotent replay: the charge already happened.
			return nil, snapshot(existing), nil
		case existing.inFlight:
			return nil, nil, domain.NewPaymentError(domain.ErrConcurrentOperation,
				"another operation is in flight for this attempt", "CONCURRENT_OPERATION")
		default:
			return nil, nil, domain.NewPaymentError(domain.ErrInvalidState,
				fmt.Sprintf("attempt already exists in state %q", existing.attempt.State), "INVALID_STATE")
		}
	}

	now := o.now()
	rec := &attemptRecord{
		attempt: domain.PaymentAttempt{
			AttemptID:        req.AttemptID,
			Amount:           req.Amount,
			Description:      req.Description,
			PayerReference:   req.PayerReference,
			SessionReference: req.SessionReference,
			Metadata:         req.Metadata,
			State:            domain.StateCreated,
			CreatedAt:        now,
			LastTransitionAt: now,
		},
		inFlight: true,
	}
	o.attempts[req.AttemptID] = rec
	return rec, nil, nil
}

// acquire marks an existing attempt as in flight if its state is one of the
// allowed states.
func (o *Orchestrator) acquire(attemptID string, allowed ...domain.State) (*attemptRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, ok := o.attempts[attemptID]
	if !ok {
		return nil, domain.NewPaymentError(domain.ErrNotFound,
			fmt.Sprintf("attempt %q not found", attemptID), "NOT_FOUND")
	}
	if rec.inFlight {
		return nil, domain.NewPaymentError(domain.ErrConcurrentOperation,
			"another operation is in flight for this attempt", "CONCURRENT_OPERATION")
	}

	for _, state := range allowed {
		if rec.attempt.State == state {
			rec.inFlight = true
			return rec, nil
		}
	}
	return nil, domain.NewPaymentError(domain.ErrInvalidState,
		fmt.Sprintf("operation not permitted in state %q", rec.attempt.State), "INVALID_STATE")
}

func (o *Orchestrator) release(attemptID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if rec, ok := o.attempts[attemptID]; ok {
		rec.inFlight = false
	}
}

func (o *Orchestrator) isAbandoned(attemptID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, ok := o.attempts[attemptID]
	return ok && rec.abandoned
}

// transition moves the attempt to the next state and publishes the lifecycle
// event. The transition table is the single source of legality; violations
// indicate a bug in this package and panic during development via the log.
func (o *Orchestrator) transition(rec *attemptRecord, to domain.State) {
	o.mu.Lock()
	from := rec.attempt.State
	if !from.CanTransition(to) {
		o.mu.Unlock()
		o.logger.Error("illegal state transition rejected",
			"attemptId", rec.attempt.AttemptID, "from", string(from), "to", string(to))
		return
	}
	at := o.now()
	rec.attempt.State = to
	rec.attempt.LastTransitionAt = at
	o.mu.Unlock()

	o.logger.Info("attempt transitioned",
		"attemptId", rec.attempt.AttemptID, "from", string(from), "to", string(to))

	o.bus.Publish(event.Lifecycle{
		AttemptID: rec.attempt.AttemptID,
		FromState: from,
		ToState:   to,
		Timestamp: at,
	})
}

// settleCharge applies a successful charge submission. Pending answers get
// one immediate status resolution before the attempt is handed back.
func (o *Orchestrator) settleCharge(ctx context.Context, rec *attemptRecord, result *domain.ChargeResult) (*domain.AttemptSnapshot, error) {
	switch result.ProviderState {
	case domain.ProviderApproved:
		o.setCharged(rec, result)
		return o.snapshotOf(rec), nil
	case domain.ProviderRejected:
		o.setDeclined(rec, result)
		return o.snapshotOf(rec), domain.NewPaymentError(domain.ErrDeclined,
			fmt.Sprintf("payment declined: %s", result.StatusDetail), "DECLINED")
	default:
		o.mu.Lock()
		rec.pendingProviderID = result.ProviderPaymentID
		rec.attempt.StatusDetail = result.StatusDetail
		o.mu.Unlock()

		resolved, err := o.gateway.ResolveStatus(ctx, result.ProviderPaymentID)
		if err != nil {
			o.logger.WarnContext(ctx, "immediate status resolution failed",
				"attemptId", rec.attempt.AttemptID, "error", err)
			return o.snapshotOf(rec), nil
		}
		return o.applyResolution(rec, resolved), nil
	}
}

// applyResolution applies a status resolution outcome to a Charging attempt.
func (o *Orchestrator) applyResolution(rec *attemptRecord, result *domain.ChargeResult) *domain.AttemptSnapshot {
	switch result.ProviderState {
	case domain.ProviderApproved:
		o.setCharged(rec, result)
	case domain.ProviderRejected:
		o.setDeclined(rec, result)
	default:
		o.mu.Lock()
		rec.attempt.StatusDetail = result.StatusDetail
		o.mu.Unlock()
	}
	return o.snapshotOf(rec)
}

// setCharged fixes the provider payment id, exactly once, on entering
// Charged.
func (o *Orchestrator) setCharged(rec *attemptRecord, result *domain.ChargeResult) {
	o.mu.Lock()
	rec.attempt.ProviderPaymentID = result.ProviderPaymentID
	rec.attempt.StatusDetail = result.StatusDetail
	rec.pendingProviderID = ""
	o.mu.Unlock()

	o.transition(rec, domain.StateCharged)
	attemptChargedCounter.Inc()
}

func (o *Orchestrator) setDeclined(rec *attemptRecord, result *domain.ChargeResult) {
	if result != nil {
		o.mu.Lock()
		rec.attempt.StatusDetail = result.StatusDetail
		o.mu.Unlock()
	}
	o.transition(rec, domain.StateDeclined)
	attemptDeclinedCounter.Inc()
}

func (o *Orchestrator) appendRefund(rec *attemptRecord, record domain.RefundRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec.refunds = append(rec.refunds, record)
}

func (o *Orchestrator) snapshotOf(rec *attemptRecord) *domain.AttemptSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return snapshot(rec)
}

// snapshot copies the record into the read model. Callers must hold o.mu.
func snapshot(rec *attemptRecord) *domain.AttemptSnapshot {
	refunds := make([]domain.RefundRecord, len(rec.refunds))
	copy(refunds, rec.refunds)
	return &domain.AttemptSnapshot{
		Attempt:          rec.attempt,
		Refunds:          refunds,
		RefundableAmount: refundable(rec),
	}
}

// refundable returns the charge amount minus completed refunds. Callers
// must hold o.mu or the attempt's in-flight slot.
func refundable(rec *attemptRecord) int64 {
	remaining := rec.attempt.Amount
	for _, r := range rec.refunds {
		if r.State == domain.RefundCompleted {
			remaining -= r.Amount
		}
	}
	return remaining
}

func completedRefunds(rec *attemptRecord) []domain.RefundRecord {
	var out []domain.RefundRecord
	for _, r := range rec.refunds {
		if r.State == domain.RefundCompleted {
			out = append(out, r)
		}
	}
	return out
}

// validateRequest performs basic validation on the process request.
func validateRequest(req ProcessRequest) error {
	if req.Amount <= 0 {
		return domain.NewPaymentError(domain.ErrValidation,
			"amount must be greater than 0", "VALIDATION_ERROR")
	}
	if req.PayerReference == "" {
		return domain.NewPaymentError(domain.ErrValidation,
			"payer_reference is required", "VALIDATION_ERROR")
	}
	if req.Description == "" {
		return domain.NewPaymentError(domain.ErrValidation,
			"description is required", "VALIDATION_ERROR")
	}
	if err := req.Metadata.Validate(); err != nil {
		return domain.NewPaymentError(domain.ErrValidation, err.Error(), "VALIDATION_ERROR")
	}
	return nil
}
