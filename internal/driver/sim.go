package driver

import (
	"fmt"
	"log"
	"sync"
	"time"

	"ledstrip-controller/internal/core"
	"ledstrip-controller/internal/strip"
)

// Sim is a pixel driver that keeps frames in memory. An optional latency models
// the wire time of a real strip.
type Sim struct {
	mu      sync.Mutex
	latency time.Duration
	frames  int
	last    []core.Color
}

// NewSim creates a simulator with the given per-write latency.
func NewSim(latency time.Duration) *Sim {
	log.Printf("[Strip] Using simulated pixel driver (latency %v).", latency)
	return &Sim{latency: latency}
}

// Write stores frame. A latency longer than timeout fails the write after timeout.
func (s *Sim) Write(frame []core.Color, timeout time.Duration) error {
	s.mu.Lock()
	latency := s.latency
	s.mu.Unlock()

	if latency > 0 {
		if timeout > 0 && latency > timeout {
			time.Sleep(timeout)
			return fmt.Errorf("%w: simulated latency %v exceeds %v", strip.ErrDriverTimeout, latency, timeout)
		}
		time.Sleep(latency)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	s.last = append(s.last[:0], frame...)
	return nil
}

// SetLatency changes the simulated wire time.
func (s *Sim) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// Frames returns how many frames were written.
func (s *Sim) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Last returns a copy of the most recent frame.
func (s *Sim) Last() []core.Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Color(nil), s.last...)
}
