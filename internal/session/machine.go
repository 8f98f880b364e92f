package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"ledstrip-controller/internal/core"
	"ledstrip-controller/internal/strip"
)

// Transport is the outbound half of the broker connection.
// Implementations must not block on broker round-trips; acknowledgements come back as events.
type Transport interface {
	Connect() error
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte) error
}

// Applier renders a validated color command onto the strip.
type Applier interface {
	Apply(ctx context.Context, c core.Color) error
}

// Machine runs Transition over the event stream and carries out the resulting actions.
// Events are consumed by a single goroutine in the order they were delivered.
type Machine struct {
	cfg       Config
	transport Transport
	applier   Applier
	eventBus  *core.EventBus

	events chan Event
	done   chan struct{}

	mu      sync.RWMutex
	snap    Snapshot
	lastErr error

	readyOnce sync.Once
	ready     chan struct{}
}

// NewMachine creates a machine in the Disconnected state.
func NewMachine(cfg Config, t Transport, a Applier, eb *core.EventBus) *Machine {
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Machine{
		cfg:       cfg,
		transport: t,
		applier:   a,
		eventBus:  eb,
		events:    make(chan Event, size),
		done:      make(chan struct{}),
		ready:     make(chan struct{}),
	}
}

// Deliver queues an event. It blocks while the queue is full, which pushes back on the
// transport's callback goroutine, and returns immediately once Run has stopped.
// With ordered delivery a full queue also holds up paho's router, so keepalive
// traffic waits behind it; QueueSize should cover a burst arriving during one flush.
func (m *Machine) Deliver(ev Event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

// Start requests the first connection.
func (m *Machine) Start() {
	m.Deliver(Event{Kind: EventStart})
}

// Run consumes events until ctx is cancelled.
func (m *Machine) Run(ctx context.Context) {
	defer close(m.done)
	log.Println("[Session] Event loop started.")
	for {
		select {
		case <-ctx.Done():
			log.Println("[Session] Event loop stopped.")
			return
		case ev := <-m.events:
			m.handle(ctx, ev)
		}
	}
}

// Snapshot returns the current session snapshot.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// State returns the current session state.
func (m *Machine) State() State {
	return m.Snapshot().State
}

// LastError returns the most recent transport error, wrapping ErrTransport, or nil.
func (m *Machine) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// SessionReady is closed the first time the session reaches Connected.
func (m *Machine) SessionReady() <-chan struct{} {
	return m.ready
}

func (m *Machine) handle(ctx context.Context, ev Event) {
	m.mu.Lock()
	prev := m.snap
	next, actions := Transition(m.cfg, prev, ev)
	m.snap = next
	if ev.Kind == EventError {
		m.lastErr = fmt.Errorf("%w (%s): %v", ErrTransport, ev.ErrKind, ev.Err)
	}
	m.mu.Unlock()

	m.logEvent(ev)

	if next.State != prev.State {
		log.Printf("[Session] %s -> %s", prev.State, next.State)
		m.eventBus.Publish(core.Event{
			Type:    core.SessionStateChangedEvent,
			Payload: map[string]interface{}{"from": prev.State.String(), "to": next.State.String()},
		})
	}

	for _, a := range actions {
		m.execute(ctx, a)
	}
}

func (m *Machine) logEvent(ev Event) {
	switch ev.Kind {
	case EventError:
		log.Printf("[Session] Transport error (%s): %v. Waiting for the transport to reconnect.", ev.ErrKind, ev.Err)
	case EventDisconnected:
		log.Println("[Session] Disconnected from broker.")
	case EventReconnecting:
		log.Println("[Session] Transport is reconnecting...")
	case EventSubscribed:
		log.Printf("[Session] Subscribe acknowledged for %q.", ev.Topic)
	case EventUnsubscribed:
		log.Printf("[Session] Unsubscribe acknowledged for %q.", ev.Topic)
	case EventPublished:
		log.Printf("[Session] Publish acknowledged on %q.", ev.Topic)
	}
}

func (m *Machine) execute(ctx context.Context, a Action) {
	switch a.Kind {
	case ActionConnect:
		if err := m.transport.Connect(); err != nil {
			m.handle(ctx, Event{Kind: EventError, ErrKind: "connect", Err: err})
		}

	case ActionPublish:
		if err := m.transport.Publish(a.Topic, a.QoS, a.Retained, a.Payload); err != nil {
			log.Printf("[Session] Publish to %s failed: %v", a.Topic, err)
		}

	case ActionSubscribe:
		if err := m.transport.Subscribe(a.Topic, a.QoS); err != nil {
			log.Printf("[Session] Subscribe to %s failed: %v", a.Topic, err)
		} else {
			log.Printf("[Session] Sent subscribe for %s (qos %d).", a.Topic, a.QoS)
		}

	case ActionApply:
		if err := m.applier.Apply(ctx, a.Color); err != nil {
			switch {
			case errors.Is(err, strip.ErrDriverTimeout):
				log.Printf("[Session] Color %s lost: %v", a.Color, err)
			case errors.Is(err, context.Canceled):
			default:
				log.Printf("[Session] Failed to apply color %s: %v", a.Color, err)
			}
		}

	case ActionReject:
		log.Printf("[Session] Discarding payload %q on %s: %v", a.Payload, a.Topic, a.Err)
		m.eventBus.Publish(core.Event{
			Type:    core.CommandRejectedEvent,
			Payload: map[string]interface{}{"topic": a.Topic, "payload": string(a.Payload), "error": a.Err.Error()},
		})

	case ActionCheckpoint:
		m.readyOnce.Do(func() { close(m.ready) })
	}
}
