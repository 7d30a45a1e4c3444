package daemon

import (
	"sync"
	"time"
)

// Event is a single notification pushed to the HTTP API's SSE subscribers.
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

const eventSubscriberBuffer = 32

// EventBus fans a stream of Events out to any number of subscribers. Slow
// subscribers never block publishers: an event that finds a subscriber's
// buffer full is skipped for that subscriber rather than allowed to stall
// mining or gossip dispatch.
type EventBus struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewEventBus creates an empty event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new listener and returns its channel plus an
// unsubscribe function the caller must invoke when done.
func (b *EventBus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventSubscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

// Publish delivers ev to every current subscriber without blocking.
func (b *EventBus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SubscriberCount reports the current number of SSE listeners.
func (b *EventBus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// publishError reports a subsystem fault onto the event bus as an "error"
// event rather than ever closing an SSE connection: the stream stays open
// and the operator-facing UI surfaces the fault instead.
func (d *Daemon) publishError(source string, cause error) {
	d.events.Publish(Event{
		Type:      "error",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"source": source,
			"error":  cause.Error(),
		},
	})
}
