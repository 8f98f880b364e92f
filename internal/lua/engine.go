// Package lua runs user-supplied Lua animation scripts against the strip surface.
package lua

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"ledstrip-controller/internal/boot"
	"ledstrip-controller/internal/strip"

	lua "github.com/yuin/gopher-lua"
)

// DefaultMaxRuntime bounds a single script run.
const DefaultMaxRuntime = 30 * time.Second

// Engine loads scripts from a directory and runs them one at a time on the caller's goroutine.
// The caller holds the strip grant for the duration of RunScript.
type Engine struct {
	scriptsDir string
	maxRuntime time.Duration
}

// NewEngine creates an engine rooted at scriptsDir.
func NewEngine(scriptsDir string, maxRuntime time.Duration) *Engine {
	if maxRuntime <= 0 {
		maxRuntime = DefaultMaxRuntime
	}
	return &Engine{
		scriptsDir: scriptsDir,
		maxRuntime: maxRuntime,
	}
}

// run is the per-execution binding between Lua globals and the held surface.
type run struct {
	ctx     context.Context
	surface *strip.Surface
	step    boot.Step
}

// RunScript executes the named script file. It implements boot.ScriptRunner.
func (e *Engine) RunScript(ctx context.Context, name string, s *strip.Surface, step boot.Step) error {
	path, err := e.ScriptPath(name)
	if err != nil {
		return err
	}
	return e.execute(ctx, name, s, step, func(L *lua.LState) error {
		return L.DoFile(path)
	})
}

// RunString executes a chunk of Lua source. Used by tests and for inline scripts.
func (e *Engine) RunString(ctx context.Context, name, code string, s *strip.Surface, step boot.Step) error {
	return e.execute(ctx, name, s, step, func(L *lua.LState) error {
		return L.DoString(code)
	})
}

// execute is a helper to run Lua code using a fresh state and provided executor function.
// The script stops at maxRuntime or when parent is cancelled, whichever comes first.
func (e *Engine) execute(parent context.Context, name string, s *strip.Surface, step boot.Step, executor func(*lua.LState) error) error {
	ctx, cancel := context.WithTimeout(parent, e.maxRuntime)
	defer cancel()

	log.Printf("[Lua] Starting script '%s'...", name)
	start := time.Now()

	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)

	r := &run{ctx: ctx, surface: s, step: step}
	r.register(L)

	if err := executor(L); err != nil {
		if err := parent.Err(); err != nil {
			return fmt.Errorf("script '%s' stopped: %w", name, err)
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("script '%s' exceeded %v", name, e.maxRuntime)
		}
		return fmt.Errorf("script '%s': %w", name, err)
	}
	log.Printf("[Lua] Script '%s' finished in %v.", name, time.Since(start).Round(time.Millisecond))
	return nil
}
