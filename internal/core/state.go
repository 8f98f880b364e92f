package core

import (
	"sync"
	"time"
)

// State holds the read-side view of the controller for status reporting.
// The strip and the session own the real state; this is only fed from the event bus.
type State struct {
	mu             sync.RWMutex
	Session        string
	LastColor      Color
	HasColor       bool
	FramesFlushed  uint64
	FlushFailures  uint64
	Rejected       uint64
	Checkpoints    []string
	LastCommandAt  time.Time
	LastRejectedAt time.Time
}

// NewState creates a new State instance.
func NewState() *State {
	return &State{Session: "Disconnected"}
}

// Clone returns a snapshot of the current state for safe reading.
func (s *State) Clone() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Session:        s.Session,
		LastColor:      s.LastColor,
		HasColor:       s.HasColor,
		FramesFlushed:  s.FramesFlushed,
		FlushFailures:  s.FlushFailures,
		Rejected:       s.Rejected,
		Checkpoints:    append([]string(nil), s.Checkpoints...),
		LastCommandAt:  s.LastCommandAt,
		LastRejectedAt: s.LastRejectedAt,
	}
}

// SetSession records the current session state name.
func (s *State) SetSession(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Session = name
}

// SetColor records the last color applied to the strip.
func (s *State) SetColor(c Color, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastColor = c
	s.HasColor = true
	s.LastCommandAt = at
}

// AddFlush counts a flushed frame, or a failed one.
func (s *State) AddFlush(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		s.FramesFlushed++
	} else {
		s.FlushFailures++
	}
}

// AddRejected counts a discarded command.
func (s *State) AddRejected(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Rejected++
	s.LastRejectedAt = at
}

// AddCheckpoint records a completed boot checkpoint.
func (s *State) AddCheckpoint(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Checkpoints = append(s.Checkpoints, name)
}
