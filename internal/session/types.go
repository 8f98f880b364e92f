// Package session drives the broker session: a pure transition function over
// (snapshot, event) and a Machine that feeds it transport events in order.
package session

import (
	"errors"
	"fmt"

	"ledstrip-controller/internal/core"
)

// ErrTransport wraps errors reported by the message-bus transport.
var ErrTransport = errors.New("transport error")

// State is the session lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Subscribed
	Error
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Subscribed:
		return "Subscribed"
	case Error:
		return "Error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Online reports whether outbound publish/subscribe actions may be issued.
func (s State) Online() bool {
	return s == Connected || s == Subscribed
}

// EventKind identifies what the transport (or a local timer) reported.
type EventKind int

const (
	EventStart EventKind = iota
	EventConnected
	EventReconnecting
	EventDisconnected
	EventSubscribed
	EventUnsubscribed
	EventPublished
	EventData
	EventError
	EventHeartbeat
)

var eventNames = map[EventKind]string{
	EventStart:        "start",
	EventConnected:    "connected",
	EventReconnecting: "reconnecting",
	EventDisconnected: "disconnected",
	EventSubscribed:   "subscribed",
	EventUnsubscribed: "unsubscribed",
	EventPublished:    "published",
	EventData:         "data",
	EventError:        "error",
	EventHeartbeat:    "heartbeat",
}

func (k EventKind) String() string {
	if n, ok := eventNames[k]; ok {
		return n
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one input to the state machine.
type Event struct {
	Kind    EventKind
	Topic   string
	Payload []byte
	// ErrKind classifies EventError ("connection_lost", "connect", "subscribe", ...).
	ErrKind string
	Err     error
}

// ActionKind identifies a side effect requested by a transition.
type ActionKind int

const (
	ActionConnect ActionKind = iota
	ActionPublish
	ActionSubscribe
	ActionApply
	ActionReject
	ActionCheckpoint
)

// Action is one side effect; only the fields relevant to Kind are set.
type Action struct {
	Kind     ActionKind
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
	Color    core.Color
	Err      error
}

// Snapshot is everything a transition depends on besides the event.
type Snapshot struct {
	State State
	// SessionReady is set by the first connect-ack and never cleared.
	SessionReady bool
}

// Config is the static part of the session: topics, QoS and announcement payloads.
type Config struct {
	CommandTopic  string
	CommandQoS    byte
	StatusTopic   string
	StatusQoS     byte
	OnlinePayload string

	// QueueSize bounds the events waiting for the consumer. Zero means DefaultQueueSize.
	QueueSize int
}

// DefaultQueueSize is the event queue length used when Config.QueueSize is unset.
const DefaultQueueSize = 64
