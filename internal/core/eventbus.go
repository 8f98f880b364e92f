package core

import "sync"

// EventType defines the type of event being published.
type EventType string

const (
	SessionStateChangedEvent EventType = "SessionStateChanged"
	ColorAppliedEvent        EventType = "ColorApplied"
	CommandRejectedEvent     EventType = "CommandRejected"
	FrameFlushedEvent        EventType = "FrameFlushed"
	FlushFailedEvent         EventType = "FlushFailed"
	CheckpointCompletedEvent EventType = "CheckpointCompleted"
)

// AllEvents lists every event type, for subscribers that mirror the whole stream.
var AllEvents = []EventType{
	SessionStateChangedEvent,
	ColorAppliedEvent,
	CommandRejectedEvent,
	FrameFlushedEvent,
	FlushFailedEvent,
	CheckpointCompletedEvent,
}

// Event is the envelope for all system events.
type Event struct {
	Type    EventType
	Payload interface{}
}

// Subscriber is a channel that receives events.
type Subscriber chan Event

// EventBus handles pub/sub messaging between the controller's components.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
}

// NewEventBus creates a new EventBus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe returns a channel that receives events of the given types.
func (eb *EventBus) Subscribe(eventTypes ...EventType) Subscriber {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(Subscriber, 100) // Buffered channel so publishers don't block
	for _, t := range eventTypes {
		eb.subscribers[t] = append(eb.subscribers[t], ch)
	}

	return ch
}

// Unsubscribe removes a subscriber channel.
func (eb *EventBus) Unsubscribe(ch Subscriber, eventTypes ...EventType) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, t := range eventTypes {
		subs := eb.subscribers[t]
		for i, sub := range subs {
			if sub == ch {
				eb.subscribers[t] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Publish distributes an event to all active subscribers for its type.
// A nil bus is valid and drops everything, so components can run without one in tests.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, sub := range eb.subscribers[event.Type] {
		select {
		case sub <- event:
		default:
			// Subscriber is full; drop rather than stall the strip or the session loop.
		}
	}
}
