// Package event provides the in-process lifecycle event bus connecting the
// payment orchestrator to its observers.
package event

import (
	"sync"
	"time"

	"github.com/psikit/psikit-payments/internal/domain"
)

// Lifecycle describes one state transition of a payment attempt.
type Lifecycle struct {
	AttemptID string       `json:"attempt_id"`
	FromState domain.State `json:"from_state"`
	ToState   domain.State `json:"to_state"`
	Timestamp time.Time    `json:"timestamp"`
}

// HandlerFunc consumes a lifecycle event. Handlers run synchronously on the
// publishing goroutine, so events for a given attempt arrive in transition
// order.
type HandlerFunc func(Lifecycle)

// Bus is a synchronous in-memory publish/subscribe bus. The orchestrator
// publishes from inside its transition path, which gives FIFO delivery per
// attempt without any queueing.
type Bus struct {
	mu       sync.RWMutex
	handlers []HandlerFunc
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all lifecycle events. Subscription is
// expected at startup, before events flow.
func (b *Bus) Subscribe(handler HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers = append(b.handlers, handler)
}

// Publish delivers evt to every subscriber in registration order.
func (b *Bus) Publish(evt Lifecycle) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, handler := range b.handlers {
		handler(evt)
	}
}
