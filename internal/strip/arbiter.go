package strip

import (
	"context"

	"ledstrip-controller/internal/core"
)

// Arbiter grants exclusive access to a Surface. At most one holder exists at any time,
// regardless of which goroutine asks or in what order.
type Arbiter struct {
	surface *Surface
	grant   chan struct{}
}

// NewArbiter wraps s. The surface must not be used except through the arbiter afterwards.
func NewArbiter(s *Surface) *Arbiter {
	a := &Arbiter{
		surface: s,
		grant:   make(chan struct{}, 1),
	}
	a.grant <- struct{}{}
	return a
}

// Acquire blocks until the grant is free or ctx is done.
// The caller must call Release exactly once after a successful Acquire.
func (a *Arbiter) Acquire(ctx context.Context) (*Surface, error) {
	select {
	case <-a.grant:
		return a.surface, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns the grant.
func (a *Arbiter) Release() {
	select {
	case a.grant <- struct{}{}:
	default:
		panic("strip: Release without Acquire")
	}
}

// Do runs fn as one critical section.
func (a *Arbiter) Do(ctx context.Context, fn func(*Surface) error) error {
	s, err := a.Acquire(ctx)
	if err != nil {
		return err
	}
	defer a.Release()
	return fn(s)
}

// Len returns the pixel count of the guarded surface. It never changes, so no grant is needed.
func (a *Arbiter) Len() int { return a.surface.Len() }

// Visible returns the last flushed frame of the guarded surface.
func (a *Arbiter) Visible() []core.Color { return a.surface.Visible() }
