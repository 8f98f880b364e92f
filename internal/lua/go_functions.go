package lua

import (
	"context"
	"log"
	"time"

	"ledstrip-controller/internal/core"

	lua "github.com/yuin/gopher-lua"
)

// register exposes the strip functions to the given Lua state.
func (r *run) register(L *lua.LState) {
	L.SetGlobal("pixel_count", L.NewFunction(r.luaPixelCount))
	L.SetGlobal("set_pixel", L.NewFunction(r.luaSetPixel))
	L.SetGlobal("fill", L.NewFunction(r.luaFill))
	L.SetGlobal("show", L.NewFunction(r.luaShow))
	L.SetGlobal("clear", L.NewFunction(r.luaClear))
	L.SetGlobal("sleep", L.NewFunction(r.luaSleep))
	L.SetGlobal("step_color", L.NewFunction(r.luaStepColor))
	L.SetGlobal("pixel_delay", L.NewFunction(r.luaPixelDelay))
	L.SetGlobal("print", L.NewFunction(luaPrint))
}

func luaPrint(L *lua.LState) int {
	log.Printf("[LUA] %s", L.ToString(1))
	return 0
}

func (r *run) luaPixelCount(L *lua.LState) int {
	L.Push(lua.LNumber(r.surface.Len()))
	return 1
}

// checkColor reads three channel arguments starting at n.
func checkColor(L *lua.LState, n int) core.Color {
	var ch [3]uint8
	for i := range ch {
		v := L.CheckInt(n + i)
		if v < 0 || v > 255 {
			L.ArgError(n+i, "channel must be 0-255")
		}
		ch[i] = uint8(v)
	}
	return core.Color{R: ch[0], G: ch[1], B: ch[2]}
}

// set_pixel(i, r, g, b) with a zero-based index.
func (r *run) luaSetPixel(L *lua.LState) int {
	i := L.CheckInt(1)
	c := checkColor(L, 2)
	if err := r.surface.Set(i, c); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

func (r *run) luaFill(L *lua.LState) int {
	r.surface.Fill(checkColor(L, 1))
	return 0
}

// show flushes the staged frame and returns false if the frame was lost.
func (r *run) luaShow(L *lua.LState) int {
	if err := r.surface.Flush(r.step.FlushTimeout); err != nil {
		log.Printf("[Lua] Frame lost: %v", err)
		L.Push(lua.LFalse)
		return 1
	}
	L.Push(lua.LTrue)
	return 1
}

func (r *run) luaClear(L *lua.LState) int {
	if err := r.surface.Clear(r.step.FlushTimeout); err != nil {
		log.Printf("[Lua] Clear frame lost: %v", err)
		L.Push(lua.LFalse)
		return 1
	}
	L.Push(lua.LTrue)
	return 1
}

// cancellableSleep is a helper to sleep for a duration, but wake up immediately if the context is cancelled.
// It returns true if the context was cancelled during sleep.
func cancellableSleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return false
	case <-ctx.Done():
		return true
	}
}

func (r *run) luaSleep(L *lua.LState) int {
	ms := L.CheckInt(1)
	if cancellableSleep(r.ctx, time.Duration(ms)*time.Millisecond) {
		L.RaiseError("script runtime exceeded")
	}
	return 0
}

// step_color() returns the configured color of the current checkpoint.
func (r *run) luaStepColor(L *lua.LState) int {
	c := r.step.Color
	L.Push(lua.LNumber(c.R))
	L.Push(lua.LNumber(c.G))
	L.Push(lua.LNumber(c.B))
	return 3
}

func (r *run) luaPixelDelay(L *lua.LState) int {
	L.Push(lua.LNumber(r.step.PixelDelay.Milliseconds()))
	return 1
}
