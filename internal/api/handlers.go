// Package api contains the HTTP handlers and routing for the payment service.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/psikit/psikit-payments/internal/domain"
	"github.com/psikit/psikit-payments/internal/notify"
	"github.com/psikit/psikit-payments/internal/notify/channel"
	"github.com/psikit/psikit-payments/internal/payment"
)

// Handler contains the HTTP handlers for the payment and notification API.
type Handler struct {
	orchestrator *payment.Orchestrator
	dispatcher   *notify.Dispatcher
	adapter      *channel.Adapter
	logger       *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(orchestrator *payment.Orchestrator, dispatcher *notify.Dispatcher, adapter *channel.Adapter, logger *slog.Logger) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		dispatcher:   dispatcher,
		adapter:      adapter,
		logger:       logger,
	}
}

// PaymentRequest represents the JSON body for the payment endpoint.
type PaymentRequest struct {
	AttemptID        string             `json:"attempt_id"`
	Card             domain.CardDetails `json:"card" binding:"required"`
	Amount           int64              `json:"amount" binding:"required,gt=0"`
	Description      string             `json:"description" binding:"required"`
	PayerReference   string             `json:"payer_reference" binding:"required"`
	SessionReference string             `json:"session_reference"`
	Metadata         domain.Metadata    `json:"metadata"`
}

// PaymentResponse wraps an attempt snapshot.
type PaymentResponse struct {
	Success bool                    `json:"success"`
	Attempt *domain.AttemptSnapshot `json:"attempt,omitempty"`
	Error   string                  `json:"error,omitempty"`
	Code    string                  `json:"code,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// CreatePayment handles POST /api/v1/payments
// Runs the tokenize -> charge pipeline for one attempt.
func (h *Handler) CreatePayment(c *gin.Context) {
	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "Invalid request body: " + err.Error(),
			Code:    "VALIDATION_ERROR",
		})
		return
	}

	snapshot, err := h.orchestrator.Process(c.Request.Context(), payment.ProcessRequest{
		AttemptID:        req.AttemptID,
		Card:             req.Card,
		Amount:           req.Amount,
		Description:      req.Description,
		PayerReference:   req.PayerReference,
		SessionReference: req.SessionReference,
		Metadata:         req.Metadata,
	})
	if err != nil {
		h.serviceError(c, err, snapshot)
		return
	}

	c.JSON(http.StatusOK, PaymentResponse{Success: true, Attempt: snapshot})
}

// ResolvePayment handles POST /api/v1/payments/:attempt_id/resolve
// Re-polls the provider for an attempt stuck in Charging.
func (h *Handler) ResolvePayment(c *gin.Context) {
	snapshot, err := h.orchestrator.Resolve(c.Request.Context(), c.Param("attempt_id"))
	if err != nil {
		h.serviceError(c, err, snapshot)
		return
	}
	c.JSON(http.StatusOK, PaymentResponse{Success: true, Attempt: snapshot})
}

// RefundRequest represents the JSON body for the refund endpoint. A zero or
// absent amount requests a full refund.
type RefundRequest struct {
	Amount int64 `json:"amount"`
}

// RefundResponse wraps a refund record.
type RefundResponse struct {
	Success bool                 `json:"success"`
	Refund  *domain.RefundRecord `json:"refund,omitempty"`
	Error   string               `json:"error,omitempty"`
	Code    string               `json:"code,omitempty"`
}

// CreateRefund handles POST /api/v1/payments/:attempt_id/refunds
func (h *Handler) CreateRefund(c *gin.Context) {
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "Invalid request body: " + err.Error(),
			Code:    "VALIDATION_ERROR",
		})
		return
	}

	record, err := h.orchestrator.Refund(c.Request.Context(), c.Param("attempt_id"), req.Amount)
	if err != nil {
		h.serviceError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, RefundResponse{Success: true, Refund: record})
}

// AbandonPayment handles POST /api/v1/payments/:attempt_id/abandon
func (h *Handler) AbandonPayment(c *gin.Context) {
	if err := h.orchestrator.Abandon(c.Param("attempt_id")); err != nil {
		h.serviceError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetPayment handles GET /api/v1/payments/:attempt_id
func (h *Handler) GetPayment(c *gin.Context) {
	snapshot, err := h.orchestrator.Get(c.Param("attempt_id"))
	if err != nil {
		h.serviceError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, PaymentResponse{Success: true, Attempt: snapshot})
}

// SessionReminderEvent handles POST /api/v1/events/session-reminder
func (h *Handler) SessionReminderEvent(c *gin.Context) {
	var in notify.SessionReminderInput
	if !h.bindEvent(c, &in) {
		return
	}
	h.dispatcher.SessionReminder(c.Request.Context(), in)
	c.JSON(http.StatusAccepted, gin.H{"status": "dispatched"})
}

// PatientWaitingEvent handles POST /api/v1/events/patient-waiting
func (h *Handler) PatientWaitingEvent(c *gin.Context) {
	var in notify.PatientWaitingInput
	if !h.bindEvent(c, &in) {
		return
	}
	h.dispatcher.PatientWaiting(c.Request.Context(), in)
	c.JSON(http.StatusAccepted, gin.H{"status": "dispatched"})
}

// TestCompletedEvent handles POST /api/v1/events/test-completed
func (h *Handler) TestCompletedEvent(c *gin.Context) {
	var in notify.TestCompletedInput
	if !h.bindEvent(c, &in) {
		return
	}
	h.dispatcher.TestCompleted(c.Request.Context(), in)
	c.JSON(http.StatusAccepted, gin.H{"status": "dispatched"})
}

// EmergencyEvent handles POST /api/v1/events/emergency
func (h *Handler) EmergencyEvent(c *gin.Context) {
	var in notify.EmergencyInput
	if !h.bindEvent(c, &in) {
		return
	}
	h.dispatcher.Emergency(c.Request.Context(), in)
	c.JSON(http.StatusAccepted, gin.H{"status": "dispatched"})
}

// RequestPermission handles POST /api/v1/notifications/permission
func (h *Handler) RequestPermission(c *gin.Context) {
	permission, err := h.adapter.RequestPermission(c.Request.Context())
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "permission negotiation failed", "error", err)
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Success: false,
			Error:   "permission negotiation failed",
			Code:    "PERMISSION_ERROR",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "permission": string(permission)})
}

// ActionRequest represents a user interaction with a delivered notification.
type ActionRequest struct {
	Category domain.Category         `json:"category" binding:"required"`
	ActionID string                  `json:"action_id" binding:"required"`
	Context  domain.RecipientContext `json:"context"`
}

// ResolveAction handles POST /api/v1/notifications/actions
// Resolves an action click to the navigation route consumed by the UI.
func (h *Handler) ResolveAction(c *gin.Context) {
	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "Invalid request body: " + err.Error(),
			Code:    "VALIDATION_ERROR",
		})
		return
	}

	route, err := h.adapter.HandleAction(req.Category, req.ActionID, req.Context)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   err.Error(),
			Code:    "VALIDATION_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "route": route})
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "psikit-payments",
	})
}

func (h *Handler) bindEvent(c *gin.Context, in any) bool {
	if err := c.ShouldBindJSON(in); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "Invalid request body: " + err.Error(),
			Code:    "VALIDATION_ERROR",
		})
		return false
	}
	return true
}

// serviceError maps domain errors to HTTP responses. A non-nil snapshot is
// included so callers see the terminal state the attempt landed in.
func (h *Handler) serviceError(c *gin.Context, err error, snapshot *domain.AttemptSnapshot) {
	statusCode := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		statusCode = http.StatusBadRequest
	case errors.Is(err, domain.ErrDeclined):
		statusCode = http.StatusPaymentRequired
	case errors.Is(err, domain.ErrNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrConcurrentOperation):
		statusCode = http.StatusConflict
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, domain.ErrProvider):
		statusCode = http.StatusBadGateway
	}

	code := "INTERNAL_ERROR"
	message := "Internal server error"
	var paymentErr *domain.PaymentError
	if errors.As(err, &paymentErr) {
		code = paymentErr.Code
		message = paymentErr.Message
	}

	c.JSON(statusCode, PaymentResponse{
		Success: false,
		Attempt: snapshot,
		Error:   message,
		Code:    code,
	})
}
