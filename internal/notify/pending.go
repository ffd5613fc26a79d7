package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/psikit/psikit-payments/internal/domain"
	"github.com/psikit/psikit-payments/internal/event"
)

const (
	defaultGracePeriod   = 2 * time.Minute
	defaultSweepInterval = 15 * time.Second
)

// PendingWatcher observes lifecycle events and reminds about attempts that
// stay in Charging or Declined past a grace period. It reads events only and
// never touches payment state.
type PendingWatcher struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
	grace      time.Duration
	interval   time.Duration
	now        func() time.Time

	mu      sync.Mutex
	pending map[string]pendingEntry
}

type pendingEntry struct {
	state domain.State
	since time.Time
}

// NewPendingWatcher creates a watcher. Zero durations fall back to defaults.
func NewPendingWatcher(dispatcher *Dispatcher, grace, interval time.Duration, logger *slog.Logger) *PendingWatcher {
	if grace <= 0 {
		grace = defaultGracePeriod
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &PendingWatcher{
		dispatcher: dispatcher,
		logger:     logger,
		grace:      grace,
		interval:   interval,
		now:        time.Now,
		pending:    make(map[string]pendingEntry),
	}
}

// Subscribe attaches the watcher to the lifecycle bus.
func (w *PendingWatcher) Subscribe(bus *event.Bus) {
	bus.Subscribe(w.onLifecycle)
}

// onLifecycle tracks entry into and exit from the watched states.
func (w *PendingWatcher) onLifecycle(evt event.Lifecycle) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch evt.ToState {
	case domain.StateCharging, domain.StateDeclined:
		w.pending[evt.AttemptID] = pendingEntry{state: evt.ToState, since: evt.Timestamp}
	default:
		delete(w.pending, evt.AttemptID)
	}
}

// Start runs the sweep loop until the context is cancelled.
func (w *PendingWatcher) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.Sweep(ctx)
			case <-ctx.Done():
				w.logger.InfoContext(ctx, "context done, stopping pending watcher")
				return
			}
		}
	}()
}

// Sweep dispatches one payment-pending reminder per overdue attempt and
// forgets it; a new Charging episode re-arms the reminder.
func (w *PendingWatcher) Sweep(ctx context.Context) {
	cutoff := w.now().Add(-w.grace)

	w.mu.Lock()
	var due []struct {
		attemptID string
		state     domain.State
	}
	for attemptID, entry := range w.pending {
		if entry.since.Before(cutoff) || entry.since.Equal(cutoff) {
			due = append(due, struct {
				attemptID string
				state     domain.State
			}{attemptID, entry.state})
			delete(w.pending, attemptID)
		}
	}
	w.mu.Unlock()

	for _, d := range due {
		w.dispatcher.PaymentPending(ctx, d.attemptID, d.state)
	}
}
