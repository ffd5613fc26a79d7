package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/psikit/psikit-payments/internal/domain"
)

func TestBus_DeliversInOrderToAllSubscribers(t *testing.T) {
	bus := NewBus()

	var first, second []domain.State
	bus.Subscribe(func(evt Lifecycle) {
		first = append(first, evt.ToState)
	})
	bus.Subscribe(func(evt Lifecycle) {
		second = append(second, evt.ToState)
	})

	states := []domain.State{domain.StateTokenizing, domain.StateTokenized, domain.StateCharging, domain.StateCharged}
	for _, s := range states {
		bus.Publish(Lifecycle{AttemptID: "a1", ToState: s, Timestamp: time.Now()})
	}

	assert.Equal(t, states, first)
	assert.Equal(t, states, second)
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	assert.NotPanics(t, func() {
		bus.Publish(Lifecycle{AttemptID: "a1", ToState: domain.StateCharged})
	})
}
