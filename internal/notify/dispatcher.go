// Package notify maps domain and lifecycle events to user-facing
// notifications and hands them to the delivery channel. Delivery is
// best-effort: failures are logged and dropped, never propagated back into
// payment logic.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/psikit/psikit-payments/internal/domain"
)

var (
	dispatchDeliveredCounter    = metrics.GetOrCreateCounter(`notify_dispatch_total{result="delivered"}`)
	dispatchNoPermissionCounter = metrics.GetOrCreateCounter(`notify_dispatch_total{result="no_permission"}`)
	dispatchFailedCounter       = metrics.GetOrCreateCounter(`notify_dispatch_total{result="delivery_failed"}`)
)

// EmergencyKind distinguishes the emergency signal source.
type EmergencyKind string

const (
	EmergencyCrisis    EmergencyKind = "crisis"
	EmergencyTechnical EmergencyKind = "technical"
	EmergencyMedical   EmergencyKind = "medical"
)

// Dispatcher builds presentable notification events with their fixed
// per-category action sets and dispatches them through the delivery channel.
// It never mutates payment state; it is a pure observer.
type Dispatcher struct {
	channel domain.DeliveryChannel
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher bound to a delivery channel.
func NewDispatcher(channel domain.DeliveryChannel, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{channel: channel, logger: logger}
}

// SessionReminderInput announces a session starting soon.
type SessionReminderInput struct {
	SessionID   string    `json:"session_id"`
	PatientName string    `json:"patient_name"`
	StartsAt    time.Time `json:"starts_at"`
}

// SessionReminder dispatches a session-reminder notification.
func (d *Dispatcher) SessionReminder(ctx context.Context, in SessionReminderInput) {
	d.dispatch(ctx, domain.NotificationEvent{
		Category: domain.CategorySessionReminder,
		Title:    "Upcoming session",
		Body:     fmt.Sprintf("Session with %s starts at %s", in.PatientName, in.StartsAt.Format("15:04")),
		Recipient: domain.RecipientContext{
			"session_id":   in.SessionID,
			"patient_name": in.PatientName,
		},
		DedupeTag: "session-reminder:" + in.SessionID,
	})
}

// PatientWaitingInput announces a patient entering the waiting context.
type PatientWaitingInput struct {
	PatientID   string `json:"patient_id"`
	PatientName string `json:"patient_name"`
	SessionID   string `json:"session_id,omitempty"`
}

// PatientWaiting dispatches a patient-waiting notification.
func (d *Dispatcher) PatientWaiting(ctx context.Context, in PatientWaitingInput) {
	d.dispatch(ctx, domain.NotificationEvent{
		Category: domain.CategoryPatientWaiting,
		Title:    "Patient waiting",
		Body:     fmt.Sprintf("%s is in the waiting room", in.PatientName),
		Recipient: domain.RecipientContext{
			"patient_id": in.PatientID,
			"session_id": in.SessionID,
		},
		DedupeTag: "patient-waiting:" + in.PatientID,
	})
}

// TestCompletedInput announces an external test completion.
type TestCompletedInput struct {
	TestID      string `json:"test_id"`
	TestName    string `json:"test_name"`
	PatientID   string `json:"patient_id"`
	PatientName string `json:"patient_name"`
}

// TestCompleted dispatches a test-completed notification.
func (d *Dispatcher) TestCompleted(ctx context.Context, in TestCompletedInput) {
	d.dispatch(ctx, domain.NotificationEvent{
		Category: domain.CategoryTestCompleted,
		Title:    "Test completed",
		Body:     fmt.Sprintf("%s finished %s", in.PatientName, in.TestName),
		Recipient: domain.RecipientContext{
			"test_id":    in.TestID,
			"patient_id": in.PatientID,
		},
		DedupeTag: "test-completed:" + in.TestID,
	})
}

// EmergencyInput carries an explicit emergency signal.
type EmergencyInput struct {
	Kind    EmergencyKind `json:"kind"`
	AlertID string        `json:"alert_id"`
	Details string        `json:"details"`
}

// Emergency dispatches an emergency notification. Emergencies always require
// interaction.
func (d *Dispatcher) Emergency(ctx context.Context, in EmergencyInput) {
	kind := in.Kind
	switch kind {
	case EmergencyCrisis, EmergencyTechnical, EmergencyMedical:
	default:
		d.logger.WarnContext(ctx, "unknown emergency kind, treating as crisis", "kind", string(kind))
		kind = EmergencyCrisis
	}

	d.dispatch(ctx, domain.NotificationEvent{
		Category: domain.CategoryEmergency,
		Title:    fmt.Sprintf("Emergency (%s)", kind),
		Body:     in.Details,
		Recipient: domain.RecipientContext{
			"alert_id": in.AlertID,
			"kind":     string(kind),
		},
		DedupeTag: "emergency:" + in.AlertID,
	})
}

// PaymentPending dispatches a payment-pending notification for an attempt
// that stayed in Charging or Declined past the grace period.
func (d *Dispatcher) PaymentPending(ctx context.Context, attemptID string, state domain.State) {
	d.dispatch(ctx, domain.NotificationEvent{
		Category: domain.CategoryPaymentPending,
		Title:    "Payment needs attention",
		Body:     fmt.Sprintf("Payment %s is still %s", attemptID, state),
		Recipient: domain.RecipientContext{
			"attempt_id": attemptID,
			"state":      string(state),
		},
		DedupeTag: "payment-pending:" + attemptID,
	})
}

// dispatch completes the event with the fixed category data and delivers it.
// It must never throw back into the code that triggered the event, so every
// failure path ends in a log line.
func (d *Dispatcher) dispatch(ctx context.Context, event domain.NotificationEvent) {
	event.Actions = domain.ActionsFor(event.Category)
	event.RequireInteraction = domain.RequiresInteraction(event.Category)

	if d.channel.Permission() != domain.PermissionGranted {
		d.logger.InfoContext(ctx, "notification dropped, delivery permission not granted",
			"category", string(event.Category), "permission", string(d.channel.Permission()))
		dispatchNoPermissionCounter.Inc()
		return
	}

	if err := d.channel.Deliver(ctx, event); err != nil {
		d.logger.ErrorContext(ctx, "notification delivery failed",
			"category", string(event.Category), "error", err)
		dispatchFailedCounter.Inc()
		return
	}

	dispatchDeliveredCounter.Inc()
}
