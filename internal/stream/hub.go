// Package stream implements the live metric broadcast hub. The runner is
// the single producer; SSE connections and the scheduler subscribe. There
// is no replay: a subscriber only sees events published after it joined.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Well-known event names on the wire. These are contract: clients dispatch
// on the exact strings.
const (
	EventConnected       = "Connected"
	EventMetricReceived  = "MetricReceived"
	EventTestCompleted   = "TestCompleted"
	EventTestError       = "TestError"
	EventAuthStarted     = "AuthenticationStarted"
	EventAuthSuccess     = "AuthenticationSuccess"
	EventAuthFailed      = "AuthenticationFailed"
)

// Event is a single named notification with a JSON payload.
type Event struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// subscriber holds a single subscriber's delivery channel and done signal.
type subscriber struct {
	ch   chan Event
	done chan struct{} // closed when unsubscribed
}

// Hub fans events out to the current set of subscribers.
//
// Delivery has two grades. Publish is best-effort: a subscriber whose
// buffer is full misses the event, which is acceptable for per-request
// metric samples. PublishReliable blocks until each live subscriber has
// taken the event, so terminal run events are never dropped; it only gives
// up on a subscriber that has already unsubscribed.
type Hub struct {
	mu          sync.Mutex
	subscribers []subscriber
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// Subscribe registers a listener and returns a read-only event channel plus
// a cancel function. The channel is buffered (16) so the producer never
// blocks on a momentarily slow consumer for best-effort events.
//
// The event channel is never closed: a publisher may hold a snapshot of the
// subscriber list across a concurrent cancel, and a send to a closed channel
// would panic the producer. Consumers must exit on their own signal (the
// cancel call unblocks any pending reliable send via done). Cancel is
// idempotent.
func (h *Hub) Subscribe() (_ <-chan Event, _ func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := subscriber{
		ch:   make(chan Event, 16),
		done: make(chan struct{}),
	}
	h.subscribers = append(h.subscribers, sub)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(sub.done)
			h.mu.Lock()
			defer h.mu.Unlock()
			for i, s := range h.subscribers {
				if s.ch == sub.ch {
					h.subscribers = append(h.subscribers[:i], h.subscribers[i+1:]...)
					break
				}
			}
		})
	}

	return sub.ch, cancel
}

// Publish broadcasts a best-effort event. Subscribers with a full buffer
// miss it.
func (h *Hub) Publish(name string, payload interface{}) error {
	event, err := makeEvent(name, payload)
	if err != nil {
		return err
	}

	for _, sub := range h.snapshot() {
		select {
		case <-sub.done:
			// Subscriber cancelled, skip.
		case sub.ch <- event:
			// Delivered.
		default:
			slog.Warn("stream: subscriber buffer full, dropping event", "event", name)
		}
	}
	return nil
}

// PublishReliable broadcasts an event that every live subscriber must see.
// It blocks per subscriber until the event is taken or the subscriber
// unsubscribes. All events published before this call on the same
// goroutine are already in each subscriber's channel, so a reliable event
// is always observed after them.
func (h *Hub) PublishReliable(name string, payload interface{}) error {
	event, err := makeEvent(name, payload)
	if err != nil {
		return err
	}

	for _, sub := range h.snapshot() {
		select {
		case <-sub.done:
		case sub.ch <- event:
		}
	}
	return nil
}

// SubscriberCount reports the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) snapshot() []subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := make([]subscriber, len(h.subscribers))
	copy(subs, h.subscribers)
	return subs
}

func makeEvent(name string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("stream: marshal %s payload: %w", name, err)
	}
	return Event{Name: name, Payload: json.RawMessage(data)}, nil
}
