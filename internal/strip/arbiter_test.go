package strip

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledstrip-controller/internal/core"
)

func TestArbiter_DoSerialisesWriters(t *testing.T) {
	const n = 12
	d := &recordingDriver{}
	s, err := NewSurface(n, d)
	require.NoError(t, err)
	a := NewArbiter(s)

	boot := core.Color{R: 10}
	cmd := core.Color{B: 200}

	// Each writer stages pixel by pixel with yields in between, which would interleave
	// without the arbiter.
	write := func(c core.Color) func(*Surface) error {
		return func(s *Surface) error {
			for i := 0; i < s.Len(); i++ {
				if err := s.Set(i, c); err != nil {
					return err
				}
				time.Sleep(time.Millisecond)
			}
			return s.Flush(time.Second)
		}
	}

	var wg sync.WaitGroup
	for _, c := range []core.Color{boot, cmd, boot, cmd} {
		wg.Add(1)
		go func(c core.Color) {
			defer wg.Done()
			assert.NoError(t, a.Do(context.Background(), write(c)))
		}(c)
	}
	wg.Wait()

	require.Equal(t, 4, d.count())
	for _, frame := range d.frames {
		first := frame[0]
		assert.Contains(t, []core.Color{boot, cmd}, first)
		assert.Equal(t, solid(n, first), frame, "frame mixes two writers")
	}
	final := a.Visible()
	assert.Equal(t, solid(n, final[0]), final)
}

func TestArbiter_AcquireBlocksUntilRelease(t *testing.T) {
	s, err := NewSurface(1, &recordingDriver{})
	require.NoError(t, err)
	a := NewArbiter(s)

	_, err = a.Acquire(context.Background())
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		_, err := a.Acquire(context.Background())
		assert.NoError(t, err)
		close(acquired)
		a.Release()
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire succeeded while the grant was held")
	case <-time.After(50 * time.Millisecond):
	}

	a.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire never got the grant")
	}
}

func TestArbiter_AcquireHonoursContext(t *testing.T) {
	s, err := NewSurface(1, &recordingDriver{})
	require.NoError(t, err)
	a := NewArbiter(s)

	_, err = a.Acquire(context.Background())
	require.NoError(t, err)
	defer a.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = a.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestArbiter_ReleaseWithoutAcquirePanics(t *testing.T) {
	s, err := NewSurface(1, &recordingDriver{})
	require.NoError(t, err)
	a := NewArbiter(s)

	assert.Panics(t, a.Release)
}
