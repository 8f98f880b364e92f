package lua

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledstrip-controller/internal/boot"
	"ledstrip-controller/internal/core"
	"ledstrip-controller/internal/strip"
)

type frameLog struct {
	mu     sync.Mutex
	frames [][]core.Color
}

func (f *frameLog) Write(frame []core.Color, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, append([]core.Color(nil), frame...))
	return nil
}

func newSurface(t *testing.T, n int) (*strip.Surface, *frameLog) {
	t.Helper()
	drv := &frameLog{}
	s, err := strip.NewSurface(n, drv)
	require.NoError(t, err)
	return s, drv
}

var testStep = boot.Step{Color: core.Color{B: 10}, PixelDelay: time.Millisecond, FlushTimeout: time.Second}

func TestEngine_RunStringDrivesSurface(t *testing.T) {
	s, drv := newSurface(t, 3)
	e := NewEngine(t.TempDir(), time.Second)

	code := `
local r, g, b = step_color()
for i = 0, pixel_count() - 1 do
  set_pixel(i, r, g, b)
  show()
  sleep(pixel_delay())
end
fill(1, 2, 3)
show()
`
	require.NoError(t, e.RunString(context.Background(), "inline", code, s, testStep))

	require.Len(t, drv.frames, 4)
	blue := core.Color{B: 10}
	assert.Equal(t, []core.Color{blue, {}, {}}, drv.frames[0])
	assert.Equal(t, []core.Color{blue, blue, blue}, drv.frames[2])
	assert.Equal(t, []core.Color{{R: 1, G: 2, B: 3}, {R: 1, G: 2, B: 3}, {R: 1, G: 2, B: 3}}, s.Visible())
}

func TestEngine_SetPixelOutOfRangeFailsScript(t *testing.T) {
	s, _ := newSurface(t, 2)
	e := NewEngine(t.TempDir(), time.Second)

	err := e.RunString(context.Background(), "oob", `set_pixel(2, 1, 1, 1)`, s, testStep)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestEngine_BadChannelFailsScript(t *testing.T) {
	s, _ := newSurface(t, 2)
	e := NewEngine(t.TempDir(), time.Second)

	assert.Error(t, e.RunString(context.Background(), "bad", `fill(300, 0, 0)`, s, testStep))
}

func TestEngine_RuntimeLimit(t *testing.T) {
	s, _ := newSurface(t, 1)
	e := NewEngine(t.TempDir(), 50*time.Millisecond)

	start := time.Now()
	err := e.RunString(context.Background(), "forever", `while true do sleep(10) end`, s, testStep)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestEngine_CallerCancelStopsScript(t *testing.T) {
	s, _ := newSurface(t, 1)
	e := NewEngine(t.TempDir(), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	start := time.Now()
	err := e.RunString(ctx, "forever", `while true do sleep(10) end`, s, testStep)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestEngine_RunScriptFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "solid.lua"), []byte(`fill(step_color()) show()`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	s, _ := newSurface(t, 2)
	e := NewEngine(dir, time.Second)

	require.NoError(t, e.RunScript(context.Background(), "solid.lua", s, testStep))
	assert.Equal(t, []core.Color{{B: 10}, {B: 10}}, s.Visible())

	list, err := e.ScriptList()
	require.NoError(t, err)
	assert.Equal(t, []string{"solid.lua"}, list)
}

func TestEngine_ScriptPathRejectsTraversal(t *testing.T) {
	e := NewEngine("scripts", time.Second)

	for _, name := range []string{"../etc/passwd.lua", "sub/x.lua", "x.txt", ".lua", "..lua"} {
		_, err := e.ScriptPath(name)
		assert.Error(t, err, name)
	}

	p, err := e.ScriptPath("ok.lua")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("scripts", "ok.lua"), p)
}

func TestEngine_ScriptListMissingDir(t *testing.T) {
	e := NewEngine(filepath.Join(t.TempDir(), "nope"), time.Second)
	list, err := e.ScriptList()
	require.NoError(t, err)
	assert.Empty(t, list)
}
