package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/psikit/psikit-payments/internal/domain"
)

// PermissionGate answers the one-time permission negotiation. It stands in
// for the browser prompt of the original surface: the decision source is
// injected, the adapter only caches the outcome.
type PermissionGate interface {
	Decide(ctx context.Context) (bool, error)
}

// GateFunc adapts a function to the PermissionGate interface.
type GateFunc func(ctx context.Context) (bool, error)

// Decide implements PermissionGate.
func (f GateFunc) Decide(ctx context.Context) (bool, error) { return f(ctx) }

// ActionFunc is invoked when a user interacts with a delivered notification.
// It is the only callback crossing back to the UI/routing layer.
type ActionFunc func(category domain.Category, actionID string, recipient domain.RecipientContext)

// Adapter implements domain.DeliveryChannel. It negotiates permission once,
// coalesces events by dedupe tag within a buffering window, and presents
// through the durable push channel when available, silently falling back to
// the immediate local channel otherwise.
type Adapter struct {
	gate     PermissionGate
	push     *PushChannel
	local    *LocalChannel
	logger   *slog.Logger
	window   time.Duration
	onAction ActionFunc

	mu         sync.Mutex
	permission domain.Permission
	pending    map[string]domain.NotificationEvent // keyed by dedupe tag
	order      []string                            // tag arrival order
	timer      *time.Timer
}

// NewAdapter creates the delivery channel adapter. A zero window disables
// buffering and delivers synchronously.
func NewAdapter(gate PermissionGate, push *PushChannel, local *LocalChannel, window time.Duration, logger *slog.Logger) *Adapter {
	return &Adapter{
		gate:       gate,
		push:       push,
		local:      local,
		logger:     logger,
		window:     window,
		permission: domain.PermissionUnrequested,
		pending:    make(map[string]domain.NotificationEvent),
	}
}

// SetActionFunc registers the UI-side action callback.
func (a *Adapter) SetActionFunc(fn ActionFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onAction = fn
}

// Permission returns the current permission state.
func (a *Adapter) Permission() domain.Permission {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.permission
}

// RequestPermission negotiates delivery permission through the gate. Once a
// terminal Granted or Denied decision exists it is returned without
// consulting the gate again.
func (a *Adapter) RequestPermission(ctx context.Context) (domain.Permission, error) {
	a.mu.Lock()
	switch a.permission {
	case domain.PermissionGranted, domain.PermissionDenied:
		p := a.permission
		a.mu.Unlock()
		return p, nil
	}
	a.permission = domain.PermissionRequested
	a.mu.Unlock()

	granted, err := a.gate.Decide(ctx)
	if err != nil {
		// No decision was reached; stay in Requested so a later call can
		// negotiate again.
		return domain.PermissionRequested, err
	}

	a.mu.Lock()
	if granted {
		a.permission = domain.PermissionGranted
	} else {
		a.permission = domain.PermissionDenied
	}
	p := a.permission
	a.mu.Unlock()

	return p, nil
}

// Deliver buffers the event for presentation. Events sharing a dedupe tag
// within the buffering window replace earlier ones instead of stacking.
func (a *Adapter) Deliver(ctx context.Context, event domain.NotificationEvent) error {
	a.mu.Lock()
	if a.permission != domain.PermissionGranted {
		p := a.permission
		a.mu.Unlock()
		return fmt.Errorf("delivery permission is %q", p)
	}

	if _, exists := a.pending[event.DedupeTag]; !exists {
		a.order = append(a.order, event.DedupeTag)
	}
	a.pending[event.DedupeTag] = event

	if a.window <= 0 {
		a.mu.Unlock()
		a.Flush(ctx)
		return nil
	}

	if a.timer == nil {
		a.timer = time.AfterFunc(a.window, func() {
			a.Flush(context.Background())
		})
	}
	a.mu.Unlock()
	return nil
}

// Flush presents every buffered event in arrival order.
func (a *Adapter) Flush(ctx context.Context) {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	events := make([]domain.NotificationEvent, 0, len(a.pending))
	for _, tag := range a.order {
		if event, ok := a.pending[tag]; ok {
			events = append(events, event)
		}
	}
	a.pending = make(map[string]domain.NotificationEvent)
	a.order = nil
	a.mu.Unlock()

	for _, event := range events {
		a.present(ctx, event)
	}
}

// present routes one event to the durable channel, falling back to the
// immediate channel without surfacing an error.
func (a *Adapter) present(ctx context.Context, event domain.NotificationEvent) {
	if a.push.Available() {
		err := a.push.Present(ctx, event)
		if err == nil {
			return
		}
		a.logger.WarnContext(ctx, "push delivery failed, falling back to local",
			"category", string(event.Category), "error", err)
	}

	if err := a.local.Present(ctx, event); err != nil {
		a.logger.ErrorContext(ctx, "local delivery failed",
			"category", string(event.Category), "error", err)
	}
}

// HandleAction resolves a user interaction with a delivered notification to
// a navigation route, invoking the registered action callback. The route is
// the only data returned across the boundary.
func (a *Adapter) HandleAction(category domain.Category, actionID string, recipient domain.RecipientContext) (string, error) {
	if !domain.KnownCategory(category) {
		return "", fmt.Errorf("unknown notification category %q", category)
	}

	valid := false
	for _, action := range domain.ActionsFor(category) {
		if action.ActionID == actionID {
			valid = true
			break
		}
	}
	if !valid {
		return "", fmt.Errorf("action %q is not part of category %q", actionID, category)
	}

	a.mu.Lock()
	onAction := a.onAction
	a.mu.Unlock()
	if onAction != nil {
		onAction(category, actionID, recipient)
	}

	return routeFor(category, actionID, recipient), nil
}

// Close flushes any buffered notifications.
func (a *Adapter) Close() {
	a.Flush(context.Background())
}

// routeFor maps a category/action pair to the navigation target consumed by
// the routing layer.
func routeFor(category domain.Category, actionID string, rc domain.RecipientContext) string {
	get := func(key string) string {
		if v, ok := rc[key]; ok {
			return v
		}
		return ""
	}

	switch category {
	case domain.CategorySessionReminder:
		if actionID == "join" {
			return "/sessions/" + get("session_id") + "/join"
		}
		return "/sessions/" + get("session_id") + "/reschedule"
	case domain.CategoryPaymentPending:
		if actionID == "send-reminder" {
			return "/payments/" + get("attempt_id") + "/reminder"
		}
		return "/payments/" + get("attempt_id")
	case domain.CategoryPatientWaiting:
		if actionID == "admit" {
			return "/waiting-room/" + get("patient_id") + "/admit"
		}
		return "/messages/" + get("patient_id")
	case domain.CategoryTestCompleted:
		if actionID == "view-results" {
			return "/tests/" + get("test_id") + "/results"
		}
		return "/schedule?patient=" + get("patient_id")
	case domain.CategoryEmergency:
		if actionID == "call-emergency" {
			return "/emergency/" + get("alert_id") + "/call"
		}
		return "/emergency/" + get("alert_id")
	}
	return "/" + strings.TrimPrefix(string(category), "/")
}
