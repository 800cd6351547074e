package service

import (
	"sync"

	"github.com/joeblew999/plat-map/internal/session"
)

// Event represents a state change or a user-visible message.
type Event struct {
	Resource string        // "session", "map", "endpoints", "message"
	Action   string        // e.g. "overlay-added", "drawn-added"
	ID       string        // resource ID, if any
	Level    session.Level // set for messages
	Text     string        // message text
}

// EventBus is a simple fan-out pub/sub for events.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan Event]struct{})}
}

// Publish sends an event to all subscribers (non-blocking).
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// subscriber too slow, skip
		}
	}
}

// Notify publishes a user-visible message. It makes the bus a
// session.Notifier.
func (b *EventBus) Notify(level session.Level, text string) {
	b.Publish(Event{Resource: "message", Action: string(level), Level: level, Text: text})
}

// Subscribe returns a buffered channel that receives events.
func (b *EventBus) Subscribe() chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	close(ch)
}
