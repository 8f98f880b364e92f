package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledstrip-controller/internal/config"
	"ledstrip-controller/internal/core"
	"ledstrip-controller/internal/driver"
	"ledstrip-controller/internal/session"
	"ledstrip-controller/internal/strip"
)

// fakeBroker acknowledges everything immediately, the way a healthy broker would.
type fakeBroker struct {
	mu           sync.Mutex
	sink         func(session.Event)
	published    []string
	subscribed   []string
	disconnected bool
}

func (b *fakeBroker) Connect() error {
	go b.sink(session.Event{Kind: session.EventConnected})
	return nil
}

func (b *fakeBroker) Publish(topic string, _ byte, _ bool, payload []byte) error {
	b.mu.Lock()
	b.published = append(b.published, topic+"="+string(payload))
	b.mu.Unlock()
	go b.sink(session.Event{Kind: session.EventPublished, Topic: topic})
	return nil
}

func (b *fakeBroker) Subscribe(topic string, _ byte) error {
	b.mu.Lock()
	b.subscribed = append(b.subscribed, topic)
	b.mu.Unlock()
	go b.sink(session.Event{Kind: session.EventSubscribed, Topic: topic})
	return nil
}

func (b *fakeBroker) Disconnect() {
	b.mu.Lock()
	b.disconnected = true
	b.mu.Unlock()
	b.sink(session.Event{Kind: session.EventDisconnected})
}

func (b *fakeBroker) send(topic, payload string) {
	b.sink(session.Event{Kind: session.EventData, Topic: topic, Payload: []byte(payload)})
}

func (b *fakeBroker) snapshot() (pub, sub []string, disc bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.published...), append([]string(nil), b.subscribed...), b.disconnected
}

func testConfig(t *testing.T, pixels int) *config.Config {
	t.Helper()
	cfg, err := config.Load(t.TempDir() + "/none.json")
	require.NoError(t, err)
	cfg.MQTT.ClientID = "strip-test"
	cfg.MQTT.StatusTopic = "ledstrip/strip-test/availability"
	cfg.Strip.PixelCount = pixels
	for i := range cfg.Boot {
		cfg.Boot[i].PixelDelay = "0s"
	}
	return cfg
}

func startAgent(t *testing.T, pixels int) (*Agent, *fakeBroker, *driver.Sim) {
	t.Helper()
	broker := &fakeBroker{}
	sim := driver.NewSim(0)
	a, err := newAgent(testConfig(t, pixels), sim, func(sink func(session.Event)) Transport {
		broker.sink = sink
		return broker
	})
	require.NoError(t, err)
	a.waitNetwork = func(context.Context) error { return nil }

	go a.Run()
	t.Cleanup(a.Shutdown)

	require.Eventually(t, func() bool {
		return len(a.state.Clone().Checkpoints) == 3 && a.machine.State() == session.Subscribed
	}, 3*time.Second, 5*time.Millisecond)
	return a, broker, sim
}

func fill(n int, c core.Color) []core.Color {
	out := make([]core.Color, n)
	for i := range out {
		out[i] = c
	}
	return out
}

func TestAgent_BootThenCommand(t *testing.T) {
	a, broker, sim := startAgent(t, 12)

	assert.Equal(t, []string{"PowerOn", "NetworkReady", "SessionReady"}, a.state.Clone().Checkpoints)
	assert.Equal(t, fill(12, core.Off), a.arbiter.Visible(), "boot leaves the strip dark")

	pub, sub, _ := broker.snapshot()
	assert.Contains(t, pub, "ledstrip/strip-test/availability=online")
	assert.Equal(t, []string{"color"}, sub)

	broker.send("color", "10,0,0")
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(fill(12, core.Color{R: 10}), sim.Last())
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, fill(12, core.Color{R: 10}), a.arbiter.Visible())

	require.Eventually(t, func() bool { return a.Status().Color == "10,0,0" }, time.Second, 5*time.Millisecond)
	st := a.Status()
	assert.Equal(t, "Subscribed", st.Session)
	assert.Equal(t, "#0A0000", st.Hex)
	assert.Len(t, st.Pixels, 12)
}

func TestAgent_StatusListsSchedules(t *testing.T) {
	cfg := testConfig(t, 2)
	cfg.Schedules = []config.ScheduleEntry{{Spec: "0 22 * * *", Command: "0,0,0"}}
	a, err := newAgent(cfg, driver.NewSim(0), func(sink func(session.Event)) Transport {
		return &fakeBroker{sink: sink}
	})
	require.NoError(t, err)

	list := a.Status().Schedules
	require.Len(t, list, 1)
	assert.Equal(t, "0 22 * * *", list[0].Spec)
	assert.Equal(t, "0,0,0", list[0].Command)
}

func TestAgent_MalformedCommandLeavesStripUnchanged(t *testing.T) {
	a, broker, _ := startAgent(t, 4)

	broker.send("color", "0,0,7")
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(fill(4, core.Color{B: 7}), a.arbiter.Visible())
	}, time.Second, 5*time.Millisecond)

	broker.send("color", "5,5")
	broker.send("color", "300,0,0")
	require.Eventually(t, func() bool { return a.Status().Rejected == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, fill(4, core.Color{B: 7}), a.arbiter.Visible())
}

func TestAgent_OtherTopicsIgnored(t *testing.T) {
	a, broker, sim := startAgent(t, 3)
	frames := sim.Frames()

	broker.send("not/color", "1,2,3")
	broker.send("color", "0,1,0")
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(fill(3, core.Color{G: 1}), a.arbiter.Visible())
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, frames+1, sim.Frames())
}

func TestAgent_HeartbeatRepublishesOnline(t *testing.T) {
	a, broker, _ := startAgent(t, 2)
	before, _, _ := broker.snapshot()

	a.machine.Deliver(session.Event{Kind: session.EventHeartbeat})
	require.Eventually(t, func() bool {
		pub, _, _ := broker.snapshot()
		return len(pub) == len(before)+1
	}, time.Second, 5*time.Millisecond)
}

func TestAgent_ShutdownClearsStripAndDisconnects(t *testing.T) {
	broker := &fakeBroker{}
	sim := driver.NewSim(0)
	a, err := newAgent(testConfig(t, 5), sim, func(sink func(session.Event)) Transport {
		broker.sink = sink
		return broker
	})
	require.NoError(t, err)
	a.waitNetwork = func(context.Context) error { return nil }
	go a.Run()

	require.Eventually(t, func() bool { return a.machine.State() == session.Subscribed }, 3*time.Second, 5*time.Millisecond)
	broker.send("color", "9,9,9")
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(fill(5, core.Color{R: 9, G: 9, B: 9}), a.arbiter.Visible())
	}, time.Second, 5*time.Millisecond)

	a.Shutdown()

	_, _, disc := broker.snapshot()
	assert.True(t, disc)
	assert.Equal(t, fill(5, core.Off), sim.Last())
}

func TestAgent_ShutdownDuringBootSweepLeavesStripDark(t *testing.T) {
	broker := &fakeBroker{}
	sim := driver.NewSim(0)
	cfg := testConfig(t, 100)
	cfg.Boot[0].PixelDelay = "100ms"
	a, err := newAgent(cfg, sim, func(sink func(session.Event)) Transport {
		broker.sink = sink
		return broker
	})
	require.NoError(t, err)
	a.waitNetwork = func(context.Context) error { return nil }
	go a.Run()

	require.Eventually(t, func() bool { return sim.Frames() > 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(300 * time.Millisecond)

	start := time.Now()
	a.Shutdown()
	assert.Less(t, time.Since(start), 2*time.Second)

	frames := sim.Frames()
	assert.Equal(t, fill(100, core.Off), sim.Last())
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, frames, sim.Frames(), "nothing writes to the strip after Shutdown returns")
	assert.Empty(t, a.state.Clone().Checkpoints)
}

func TestAgent_ShutdownBeforeRun(t *testing.T) {
	broker := &fakeBroker{}
	sim := driver.NewSim(0)
	a, err := newAgent(testConfig(t, 3), sim, func(sink func(session.Event)) Transport {
		broker.sink = sink
		return broker
	})
	require.NoError(t, err)

	a.Shutdown()
	a.Run()
	a.Shutdown()

	assert.Equal(t, fill(3, core.Off), sim.Last())
	assert.Equal(t, 1, sim.Frames())
}

func TestQueueSize(t *testing.T) {
	cases := []struct {
		name string
		sc   config.StripConfig
		want int
	}{
		{"defaults floor", config.StripConfig{RateLimit: 50, RateBurst: 10, FlushTimeout: "1s"}, session.DefaultQueueSize},
		{"slow flush", config.StripConfig{RateLimit: 50, RateBurst: 10, FlushTimeout: "5s"}, 260},
		{"capped", config.StripConfig{RateLimit: 1000, RateBurst: 10, FlushTimeout: "10s"}, maxQueueSize},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, queueSize(tc.sc))
		})
	}
}

func TestApplier_GateAndEvents(t *testing.T) {
	sim := driver.NewSim(0)
	s, err := strip.NewSurface(2, sim)
	require.NoError(t, err)
	eb := core.NewEventBus()
	sub := eb.Subscribe(core.ColorAppliedEvent)
	gate := make(chan struct{})
	p := NewApplier(strip.NewArbiter(s), time.Second, 100, 1, gate, eb)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Apply(ctx, core.Color{R: 1}), context.DeadlineExceeded)
	assert.Zero(t, sim.Frames())

	close(gate)
	require.NoError(t, p.Apply(context.Background(), core.Color{R: 1}))
	assert.Equal(t, []core.Color{{R: 1}, {R: 1}}, sim.Last())
	ev := <-sub
	assert.Equal(t, "#010000", ev.Payload.(map[string]interface{})["hex"])
}

func TestApplier_DriverTimeoutPublishesFailure(t *testing.T) {
	sim := driver.NewSim(0)
	sim.SetLatency(200 * time.Millisecond)
	s, err := strip.NewSurface(2, sim)
	require.NoError(t, err)
	eb := core.NewEventBus()
	sub := eb.Subscribe(core.FlushFailedEvent)
	p := NewApplier(strip.NewArbiter(s), 10*time.Millisecond, 100, 1, nil, eb)

	assert.ErrorIs(t, p.Apply(context.Background(), core.Color{G: 1}), strip.ErrDriverTimeout)
	require.Len(t, sub, 1)
}
