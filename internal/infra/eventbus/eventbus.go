// Package eventbus is the in-memory publish/subscribe bus used to decouple
// the gateway from the audit recorder: the gateway publishes model switches
// and completed queries, the recorder persists them.
//
// Design:
//   - Buffered Go channel per topic (buffer=64).
//   - Publish is non-blocking: drops the event silently if a buffer is full.
//   - Subscribe returns a read-only channel; the caller owns the consumption loop.
//   - No persistence at this layer: events are fire-and-forget.
package eventbus

import "sync"

// Topics published by the gateway.
const (
	TopicModelSwitched  = "model.switched"
	TopicQueryCompleted = "query.completed"
)

// Event is a single published message.
type Event struct {
	Topic   string
	Payload any
}

// EventBus is the interface for publishing and subscribing to topics.
type EventBus interface {
	Publish(topic string, payload any)
	Subscribe(topic string) <-chan Event
}

const defaultBufferSize = 64

// Bus is the in-memory implementation of EventBus.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Event
}

// New returns a new in-memory Bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[string][]chan Event),
	}
}

// Subscribe registers a new subscriber for topic and returns a read-only channel.
// The caller must consume the channel to prevent dropped events on Publish.
func (b *Bus) Subscribe(topic string) <-chan Event {
	ch := make(chan Event, defaultBufferSize)
	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends an Event to all subscribers of topic.
// If a subscriber's buffer is full the event is dropped (non-blocking).
func (b *Bus) Publish(topic string, payload any) {
	evt := Event{Topic: topic, Payload: payload}
	b.mu.RLock()
	subs := b.subscribers[topic]
	b.mu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
			// buffer full — drop
		}
	}
}
