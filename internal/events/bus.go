// Package events provides the typed in-process event bus the engine publishes
// risk lifecycle events on. The HTTP layer subscribes for SSE and websocket
// streaming; nothing in the engine ever blocks on a slow subscriber.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies the kind of an event.
type EventType string

const (
	MonitorStarted       EventType = "monitor_started"
	MonitorStopped       EventType = "monitor_stopped"
	MetricsComputed      EventType = "metrics_computed"
	AlertRaised          EventType = "alert_raised"
	AlertResolved        EventType = "alert_resolved"
	MitigationExecuted   EventType = "mitigation_executed"
	ThresholdsAdjusted   EventType = "thresholds_adjusted"
	EmergencyStopEngaged EventType = "emergency_stop_engaged"
	EmergencyStopCleared EventType = "emergency_stop_cleared"
)

// Event is one published occurrence with its typed payload.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data,omitempty"`
}

// Bus is a fan-out publish/subscribe bus. Subscribers receive on buffered
// channels; if a subscriber's buffer is full the event is dropped for that
// subscriber rather than stalling the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]chan Event
	nextID      int
	log         zerolog.Logger
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[int]chan Event),
		log:         log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. The channel is closed on unsubscribe.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan Event, 64)
	b.subscribers[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(sub)
		}
	}

	return ch, unsubscribe
}

// Publish delivers an event to all current subscribers without blocking.
func (b *Bus) Publish(data EventData) {
	event := Event{
		Type:      data.EventType(),
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.log.Warn().Int("subscriber", id).Str("event", string(event.Type)).
				Msg("Subscriber buffer full, dropping event")
		}
	}
}

// SubscriberCount reports the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
