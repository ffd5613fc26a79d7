package channel

import (
	"context"
	"sync"

	"github.com/psikit/psikit-payments/internal/domain"
)

const defaultLocalCapacity = 50

// LocalChannel is the immediate delivery mode: notifications are only
// visible while the application is active. It keeps a bounded list of
// currently presented notifications for the UI layer to read.
type LocalChannel struct {
	mu        sync.Mutex
	presented []domain.NotificationEvent
	capacity  int
}

// NewLocalChannel creates a local channel with the default capacity.
func NewLocalChannel() *LocalChannel {
	return &LocalChannel{capacity: defaultLocalCapacity}
}

// Present makes the notification visible in the active session. The oldest
// entry drops when the capacity is reached.
func (l *LocalChannel) Present(_ context.Context, event domain.NotificationEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.presented = append(l.presented, event)
	if len(l.presented) > l.capacity {
		l.presented = l.presented[len(l.presented)-l.capacity:]
	}
	return nil
}

// Presented returns a copy of the currently visible notifications.
func (l *LocalChannel) Presented() []domain.NotificationEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.NotificationEvent, len(l.presented))
	copy(out, l.presented)
	return out
}

// Dismiss removes every presented notification with the given dedupe tag.
func (l *LocalChannel) Dismiss(tag string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.presented[:0]
	for _, event := range l.presented {
		if event.DedupeTag != tag {
			kept = append(kept, event)
		}
	}
	l.presented = kept
}
