package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psikit/psikit-payments/internal/domain"
	"github.com/psikit/psikit-payments/internal/event"
)

func newTestWatcher(ch *fakeChannel, grace time.Duration) (*PendingWatcher, *event.Bus) {
	bus := event.NewBus()
	w := NewPendingWatcher(NewDispatcher(ch, testLogger()), grace, time.Minute, testLogger())
	w.Subscribe(bus)
	return w, bus
}

func TestPendingWatcher_RemindsOnceAfterGrace(t *testing.T) {
	ch := grantedChannel()
	w, bus := newTestWatcher(ch, 2*time.Minute)

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	bus.Publish(event.Lifecycle{
		AttemptID: "a1",
		FromState: domain.StateTokenized,
		ToState:   domain.StateCharging,
		Timestamp: start,
	})

	// Inside the grace period nothing fires.
	w.now = func() time.Time { return start.Add(time.Minute) }
	w.Sweep(context.Background())
	assert.Empty(t, ch.events())

	w.now = func() time.Time { return start.Add(3 * time.Minute) }
	w.Sweep(context.Background())

	events := ch.events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.CategoryPaymentPending, events[0].Category)
	assert.Equal(t, "payment-pending:a1", events[0].DedupeTag)
	assert.Equal(t, "a1", events[0].Recipient["attempt_id"])
	assert.Equal(t, string(domain.StateCharging), events[0].Recipient["state"])

	// One reminder per episode.
	w.Sweep(context.Background())
	assert.Len(t, ch.events(), 1)
}

func TestPendingWatcher_SettledAttemptIsForgotten(t *testing.T) {
	ch := grantedChannel()
	w, bus := newTestWatcher(ch, 2*time.Minute)

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	bus.Publish(event.Lifecycle{
		AttemptID: "a2",
		FromState: domain.StateTokenized,
		ToState:   domain.StateCharging,
		Timestamp: start,
	})
	bus.Publish(event.Lifecycle{
		AttemptID: "a2",
		FromState: domain.StateCharging,
		ToState:   domain.StateCharged,
		Timestamp: start.Add(time.Second),
	})

	w.now = func() time.Time { return start.Add(time.Hour) }
	w.Sweep(context.Background())
	assert.Empty(t, ch.events())
}

func TestPendingWatcher_TracksDeclined(t *testing.T) {
	ch := grantedChannel()
	w, bus := newTestWatcher(ch, 2*time.Minute)

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	bus.Publish(event.Lifecycle{
		AttemptID: "a3",
		FromState: domain.StateCharging,
		ToState:   domain.StateDeclined,
		Timestamp: start,
	})

	w.now = func() time.Time { return start.Add(5 * time.Minute) }
	w.Sweep(context.Background())

	events := ch.events()
	require.Len(t, events, 1)
	assert.Equal(t, string(domain.StateDeclined), events[0].Recipient["state"])
}
