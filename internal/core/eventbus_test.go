package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_DeliversByType(t *testing.T) {
	eb := NewEventBus()
	colors := eb.Subscribe(ColorAppliedEvent)
	all := eb.Subscribe(AllEvents...)

	eb.Publish(Event{Type: ColorAppliedEvent, Payload: Color{1, 2, 3}})
	eb.Publish(Event{Type: FrameFlushedEvent})

	select {
	case ev := <-colors:
		assert.Equal(t, ColorAppliedEvent, ev.Type)
		assert.Equal(t, Color{1, 2, 3}, ev.Payload)
	case <-time.After(time.Second):
		t.Fatal("color subscriber got nothing")
	}
	assert.Len(t, colors, 0)
	assert.Len(t, all, 2)
}

func TestEventBus_Unsubscribe(t *testing.T) {
	eb := NewEventBus()
	a := eb.Subscribe(FrameFlushedEvent)
	b := eb.Subscribe(FrameFlushedEvent)

	eb.Unsubscribe(a, FrameFlushedEvent)
	eb.Publish(Event{Type: FrameFlushedEvent})

	assert.Len(t, a, 0)
	assert.Len(t, b, 1)
}

func TestEventBus_FullSubscriberDoesNotBlock(t *testing.T) {
	eb := NewEventBus()
	sub := eb.Subscribe(FrameFlushedEvent)

	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(sub)+50; i++ {
			eb.Publish(Event{Type: FrameFlushedEvent})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, sub, cap(sub))
}

func TestEventBus_NilIsNoop(t *testing.T) {
	var eb *EventBus
	require.NotPanics(t, func() { eb.Publish(Event{Type: ColorAppliedEvent}) })
}

func TestState_CloneIsDetached(t *testing.T) {
	s := NewState()
	s.AddCheckpoint("PowerOn")
	s.SetColor(Color{10, 0, 0}, time.Unix(100, 0))
	s.AddFlush(true)
	s.AddFlush(false)
	s.AddRejected(time.Unix(101, 0))

	snap := s.Clone()
	s.AddCheckpoint("NetworkReady")

	assert.Equal(t, []string{"PowerOn"}, snap.Checkpoints)
	assert.Equal(t, Color{10, 0, 0}, snap.LastColor)
	assert.True(t, snap.HasColor)
	assert.EqualValues(t, 1, snap.FramesFlushed)
	assert.EqualValues(t, 1, snap.FlushFailures)
	assert.EqualValues(t, 1, snap.Rejected)
	assert.Equal(t, "Disconnected", snap.Session)
}
