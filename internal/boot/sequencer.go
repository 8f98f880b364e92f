// Package boot runs the fixed startup animation at its three checkpoints.
package boot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"ledstrip-controller/internal/core"
	"ledstrip-controller/internal/strip"
)

var (
	// ErrCheckpointDone is returned when a checkpoint is run a second time.
	ErrCheckpointDone = errors.New("boot checkpoint already completed")
	// ErrOutOfOrder is returned when a checkpoint is run before its predecessor.
	ErrOutOfOrder = errors.New("boot checkpoint out of order")
)

// Checkpoint is one of the three fixed points in startup.
type Checkpoint int

const (
	PowerOn Checkpoint = iota
	NetworkReady
	SessionReady
)

// NumCheckpoints is the number of boot steps.
const NumCheckpoints = 3

func (c Checkpoint) String() string {
	switch c {
	case PowerOn:
		return "PowerOn"
	case NetworkReady:
		return "NetworkReady"
	case SessionReady:
		return "SessionReady"
	default:
		return fmt.Sprintf("Checkpoint(%d)", int(c))
	}
}

// Step describes the animation of one checkpoint.
type Step struct {
	Color        core.Color
	PixelDelay   time.Duration
	FlushTimeout time.Duration
	// Script, when set, names a script run instead of the built-in sweep.
	Script string
}

// ScriptRunner runs a named animation script against a surface the caller already holds.
// It must return soon after ctx is done.
type ScriptRunner interface {
	RunScript(ctx context.Context, name string, s *strip.Surface, step Step) error
}

// Sequencer runs each checkpoint's step exactly once, in order.
type Sequencer struct {
	arbiter  *strip.Arbiter
	steps    [NumCheckpoints]Step
	scripts  ScriptRunner
	eventBus *core.EventBus
	sleep    func(context.Context, time.Duration) error

	mu   sync.Mutex
	next Checkpoint
}

// NewSequencer creates a sequencer. scripts may be nil when no step uses a script.
func NewSequencer(a *strip.Arbiter, steps [NumCheckpoints]Step, scripts ScriptRunner, eb *core.EventBus) *Sequencer {
	return &Sequencer{
		arbiter:  a,
		steps:    steps,
		scripts:  scripts,
		eventBus: eb,
		sleep:    sleepCtx,
	}
}

// DefaultSteps is a dim red, green, then blue sweep at 100ms per pixel.
func DefaultSteps() [NumCheckpoints]Step {
	base := Step{PixelDelay: 100 * time.Millisecond, FlushTimeout: time.Second}
	red, green, blue := base, base, base
	red.Color = core.Color{R: 10}
	green.Color = core.Color{G: 10}
	blue.Color = core.Color{B: 10}
	return [NumCheckpoints]Step{red, green, blue}
}

// Completed reports how many checkpoints have finished.
func (q *Sequencer) Completed() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int(q.next)
}

// Run executes the step for cp while holding the strip grant, then clears the strip.
// It blocks the calling goroutine for the whole animation. When ctx ends mid-step the
// animation stops between frames, the strip is left as is and cp stays pending.
func (q *Sequencer) Run(ctx context.Context, cp Checkpoint) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch {
	case cp < 0 || cp >= NumCheckpoints:
		return fmt.Errorf("unknown checkpoint %d", int(cp))
	case cp < q.next:
		return fmt.Errorf("%w: %s", ErrCheckpointDone, cp)
	case cp > q.next:
		return fmt.Errorf("%w: %s before %s", ErrOutOfOrder, cp, q.next)
	}

	step := q.steps[cp]
	log.Printf("[Boot] Checkpoint %s started.", cp)
	start := time.Now()

	err := q.arbiter.Do(ctx, func(s *strip.Surface) error {
		if step.Script != "" && q.scripts != nil {
			err := q.scripts.RunScript(ctx, step.Script, s, step)
			if err == nil {
				return q.clear(s, cp, step)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[Boot] %s: script %q failed, falling back to sweep: %v", cp, step.Script, err)
		}
		if err := q.sweep(ctx, s, cp, step); err != nil {
			return err
		}
		return q.clear(s, cp, step)
	})
	if err != nil {
		return fmt.Errorf("checkpoint %s: %w", cp, err)
	}

	q.next = cp + 1
	log.Printf("[Boot] Checkpoint %s completed in %v.", cp, time.Since(start).Round(time.Millisecond))
	q.eventBus.Publish(core.Event{Type: core.CheckpointCompletedEvent, Payload: cp.String()})
	return nil
}

// sweep lights the strip one pixel at a time, flushing after each.
func (q *Sequencer) sweep(ctx context.Context, s *strip.Surface, cp Checkpoint, step Step) error {
	for i := 0; i < s.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Set(i, step.Color); err != nil {
			return err
		}
		if err := s.Flush(step.FlushTimeout); err != nil {
			log.Printf("[Boot] %s: frame lost at pixel %d: %v", cp, i, err)
		}
		if step.PixelDelay > 0 {
			if err := q.sleep(ctx, step.PixelDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

func (q *Sequencer) clear(s *strip.Surface, cp Checkpoint, step Step) error {
	if err := s.Clear(step.FlushTimeout); err != nil {
		log.Printf("[Boot] %s: clear frame lost: %v", cp, err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
