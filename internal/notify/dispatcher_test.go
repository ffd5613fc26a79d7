package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psikit/psikit-payments/internal/domain"
)

// fakeChannel records delivered events behind a settable permission state.
type fakeChannel struct {
	mu         sync.Mutex
	permission domain.Permission
	delivered  []domain.NotificationEvent
	deliverErr error
}

func (f *fakeChannel) Permission() domain.Permission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.permission
}

func (f *fakeChannel) RequestPermission(context.Context) (domain.Permission, error) {
	return f.Permission(), nil
}

func (f *fakeChannel) Deliver(_ context.Context, event domain.NotificationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deliverErr != nil {
		return f.deliverErr
	}
	f.delivered = append(f.delivered, event)
	return nil
}

func (f *fakeChannel) events() []domain.NotificationEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.NotificationEvent, len(f.delivered))
	copy(out, f.delivered)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func grantedChannel() *fakeChannel {
	return &fakeChannel{permission: domain.PermissionGranted}
}

func TestSessionReminder_EventShape(t *testing.T) {
	ch := grantedChannel()
	d := NewDispatcher(ch, testLogger())

	d.SessionReminder(context.Background(), SessionReminderInput{
		SessionID:   "s1",
		PatientName: "Ana",
		StartsAt:    time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC),
	})

	events := ch.events()
	require.Len(t, events, 1)
	evt := events[0]
	assert.Equal(t, domain.CategorySessionReminder, evt.Category)
	assert.Equal(t, "session-reminder:s1", evt.DedupeTag)
	assert.False(t, evt.RequireInteraction)
	require.Len(t, evt.Actions, 2)
	assert.Equal(t, "join", evt.Actions[0].ActionID)
	assert.Equal(t, "postpone", evt.Actions[1].ActionID)
	assert.Contains(t, evt.Body, "Ana")
	assert.Contains(t, evt.Body, "14:30")
}

func TestCategoryActionSets(t *testing.T) {
	ch := grantedChannel()
	d := NewDispatcher(ch, testLogger())
	ctx := context.Background()

	d.PatientWaiting(ctx, PatientWaitingInput{PatientID: "p1", PatientName: "Ana"})
	d.TestCompleted(ctx, TestCompletedInput{TestID: "t1", TestName: "PHQ-9", PatientID: "p1", PatientName: "Ana"})
	d.PaymentPending(ctx, "a1", domain.StateCharging)

	events := ch.events()
	require.Len(t, events, 3)

	assert.Equal(t, "patient-waiting:p1", events[0].DedupeTag)
	assert.Equal(t, "admit", events[0].Actions[0].ActionID)
	assert.Equal(t, "send-message", events[0].Actions[1].ActionID)

	assert.Equal(t, "test-completed:t1", events[1].DedupeTag)
	assert.Equal(t, "view-results", events[1].Actions[0].ActionID)
	assert.Equal(t, "schedule-review", events[1].Actions[1].ActionID)

	assert.Equal(t, "payment-pending:a1", events[2].DedupeTag)
	assert.Equal(t, "send-reminder", events[2].Actions[0].ActionID)
	assert.Equal(t, "view-details", events[2].Actions[1].ActionID)

	for _, evt := range events {
		assert.False(t, evt.RequireInteraction)
	}
}

func TestEmergency_AlwaysRequiresInteraction(t *testing.T) {
	ch := grantedChannel()
	d := NewDispatcher(ch, testLogger())

	d.Emergency(context.Background(), EmergencyInput{
		Kind:    EmergencyCrisis,
		AlertID: "e1",
		Details: "patient in crisis",
	})

	events := ch.events()
	require.Len(t, events, 1)
	evt := events[0]
	assert.True(t, evt.RequireInteraction)
	assert.Equal(t, "emergency:e1", evt.DedupeTag)
	require.Len(t, evt.Actions, 2)
	assert.Equal(t, "respond", evt.Actions[0].ActionID)
	assert.Equal(t, "call-emergency", evt.Actions[1].ActionID)
}

func TestEmergency_UnknownKindTreatedAsCrisis(t *testing.T) {
	ch := grantedChannel()
	d := NewDispatcher(ch, testLogger())

	d.Emergency(context.Background(), EmergencyInput{
		Kind:    "meteor-strike",
		AlertID: "e2",
	})

	events := ch.events()
	require.Len(t, events, 1)
	assert.Equal(t, string(EmergencyCrisis), events[0].Recipient["kind"])
	assert.True(t, events[0].RequireInteraction)
}

func TestDispatch_DroppedWithoutPermission(t *testing.T) {
	for _, permission := range []domain.Permission{
		domain.PermissionUnrequested,
		domain.PermissionRequested,
		domain.PermissionDenied,
	} {
		t.Run(string(permission), func(t *testing.T) {
			ch := &fakeChannel{permission: permission}
			d := NewDispatcher(ch, testLogger())

			d.PatientWaiting(context.Background(), PatientWaitingInput{PatientID: "p1"})
			assert.Empty(t, ch.events())
		})
	}
}

func TestDispatch_DeliveryFailureIsSwallowed(t *testing.T) {
	ch := grantedChannel()
	ch.deliverErr = errors.New("channel broken")
	d := NewDispatcher(ch, testLogger())

	// Must not panic or propagate; the event is simply lost.
	d.Emergency(context.Background(), EmergencyInput{Kind: EmergencyMedical, AlertID: "e3"})
	assert.Empty(t, ch.events())
}
