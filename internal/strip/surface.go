// Package strip holds the in-memory pixel frame, the driver contract it flushes through,
// and the arbiter that serialises writers.
package strip

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"ledstrip-controller/internal/core"
)

var (
	// ErrOutOfRange is returned by Set for an index outside [0, N).
	ErrOutOfRange = errors.New("pixel index out of range")
	// ErrDriverTimeout is returned when the driver does not finish a frame in time.
	ErrDriverTimeout = errors.New("pixel driver timeout")
)

// Driver transmits a complete frame to the physical strip.
// Implementations should return ErrDriverTimeout (or wrap it) when timeout elapses.
type Driver interface {
	Write(frame []core.Color, timeout time.Duration) error
}

// Surface is a fixed-length frame of staged pixels plus the last frame the driver accepted.
// Mutators are not synchronised: hold the Arbiter grant while calling Set, Fill, Flush or Clear.
type Surface struct {
	driver Driver
	staged []core.Color

	// inflight is non-nil while a timed-out write is still running in the driver.
	inflight chan struct{}

	visibleMu sync.RWMutex
	visible   []core.Color

	onFlush func([]core.Color)
}

// NewSurface creates a surface of n pixels, all dark.
func NewSurface(n int, d Driver) (*Surface, error) {
	if n <= 0 {
		return nil, fmt.Errorf("pixel count must be positive, got %d", n)
	}
	if d == nil {
		return nil, errors.New("nil pixel driver")
	}
	return &Surface{
		driver:  d,
		staged:  make([]core.Color, n),
		visible: make([]core.Color, n),
	}, nil
}

// Len returns the pixel count.
func (s *Surface) Len() int { return len(s.staged) }

// OnFlush registers fn to be called with a copy of every successfully flushed frame.
// Register it before the surface is shared.
func (s *Surface) OnFlush(fn func([]core.Color)) {
	s.onFlush = fn
}

// Set stages c at index i.
func (s *Surface) Set(i int, c core.Color) error {
	if i < 0 || i >= len(s.staged) {
		return fmt.Errorf("%w: %d (strip has %d pixels)", ErrOutOfRange, i, len(s.staged))
	}
	s.staged[i] = c
	return nil
}

// Fill stages c on every pixel.
func (s *Surface) Fill(c core.Color) {
	for i := range s.staged {
		s.staged[i] = c
	}
}

// Flush hands the staged frame to the driver and waits up to timeout for it to finish.
func (s *Surface) Flush(timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	// A previous write that overran its timeout still owns the driver.
	if s.inflight != nil {
		select {
		case <-s.inflight:
			s.inflight = nil
		case <-deadline.C:
			return fmt.Errorf("%w: previous frame still transmitting", ErrDriverTimeout)
		}
	}

	frame := make([]core.Color, len(s.staged))
	copy(frame, s.staged)

	done := make(chan struct{})
	var werr error
	go func() {
		defer close(done)
		werr = s.driver.Write(frame, timeout)
	}()

	select {
	case <-done:
	case <-deadline.C:
		s.inflight = done
		return fmt.Errorf("%w after %v", ErrDriverTimeout, timeout)
	}

	if werr != nil {
		if errors.Is(werr, ErrDriverTimeout) {
			return werr
		}
		return fmt.Errorf("pixel driver write: %w", werr)
	}

	s.visibleMu.Lock()
	copy(s.visible, frame)
	s.visibleMu.Unlock()

	if s.onFlush != nil {
		s.onFlush(frame)
	}
	return nil
}

// Clear stages every pixel dark and flushes.
func (s *Surface) Clear(timeout time.Duration) error {
	s.Fill(core.Off)
	return s.Flush(timeout)
}

// Visible returns a copy of the last frame the driver accepted.
// Safe to call without the arbiter grant.
func (s *Surface) Visible() []core.Color {
	s.visibleMu.RLock()
	defer s.visibleMu.RUnlock()
	out := make([]core.Color, len(s.visible))
	copy(out, s.visible)
	return out
}
