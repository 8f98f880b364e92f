package agent

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"ledstrip-controller/internal/core"
	"ledstrip-controller/internal/strip"
)

// Applier is the single path by which a color reaches the strip: commands from the
// broker and scheduled colors both go through it.
type Applier struct {
	arbiter  *strip.Arbiter
	limiter  *rate.Limiter
	timeout  time.Duration
	eventBus *core.EventBus
	gate     <-chan struct{}
}

// NewApplier creates an applier. Applies wait for gate to close, when gate is non-nil,
// so a command never lands underneath the boot animation.
func NewApplier(a *strip.Arbiter, timeout time.Duration, limit float64, burst int, gate <-chan struct{}, eb *core.EventBus) *Applier {
	return &Applier{
		arbiter:  a,
		limiter:  rate.NewLimiter(rate.Limit(limit), burst),
		timeout:  timeout,
		eventBus: eb,
		gate:     gate,
	}
}

// Apply fills the whole strip with c and flushes it in one critical section.
func (p *Applier) Apply(ctx context.Context, c core.Color) error {
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("apply %s: %w", c, err)
	}

	err := p.arbiter.Do(ctx, func(s *strip.Surface) error {
		s.Fill(c)
		return s.Flush(p.timeout)
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		p.eventBus.Publish(core.Event{
			Type:    core.FlushFailedEvent,
			Payload: map[string]interface{}{"color": c.String(), "error": err.Error()},
		})
		return err
	}

	p.eventBus.Publish(core.Event{Type: core.ColorAppliedEvent, Payload: colorPayload(c)})
	return nil
}

func colorPayload(c core.Color) map[string]interface{} {
	return map[string]interface{}{
		"r": int(c.R), "g": int(c.G), "b": int(c.B), "hex": c.Hex(),
	}
}
