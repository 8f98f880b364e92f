package session

import "ledstrip-controller/internal/core"

// Transition computes the next snapshot and the side effects for one event.
// It has no side effects of its own.
func Transition(cfg Config, s Snapshot, ev Event) (Snapshot, []Action) {
	switch ev.Kind {
	case EventStart:
		if s.State != Disconnected {
			return s, nil
		}
		s.State = Connecting
		return s, []Action{{Kind: ActionConnect}}

	case EventReconnecting:
		if s.State == Error || s.State == Disconnected {
			s.State = Connecting
		}
		return s, nil

	case EventConnected:
		var actions []Action
		if !s.SessionReady {
			s.SessionReady = true
			actions = append(actions, Action{Kind: ActionCheckpoint})
		}
		s.State = Connected
		actions = append(actions, announce(cfg), Action{
			Kind:  ActionSubscribe,
			Topic: cfg.CommandTopic,
			QoS:   cfg.CommandQoS,
		})
		return s, actions

	case EventSubscribed:
		if s.State == Connected && (ev.Topic == "" || ev.Topic == cfg.CommandTopic) {
			s.State = Subscribed
		}
		return s, nil

	case EventData:
		if !s.State.Online() || ev.Topic != cfg.CommandTopic {
			return s, nil
		}
		c, err := core.ParseColor(ev.Payload)
		if err != nil {
			return s, []Action{{Kind: ActionReject, Topic: ev.Topic, Payload: ev.Payload, Err: err}}
		}
		return s, []Action{{Kind: ActionApply, Color: c}}

	case EventError:
		s.State = Error
		return s, nil

	case EventDisconnected:
		s.State = Disconnected
		return s, nil

	case EventHeartbeat:
		if !s.State.Online() {
			return s, nil
		}
		return s, []Action{announce(cfg)}
	}

	// Acks for publish and unsubscribe, and unknown kinds, change nothing.
	return s, nil
}

func announce(cfg Config) Action {
	return Action{
		Kind:     ActionPublish,
		Topic:    cfg.StatusTopic,
		Payload:  []byte(cfg.OnlinePayload),
		QoS:      cfg.StatusQoS,
		Retained: true,
	}
}
