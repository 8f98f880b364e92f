package agent

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"slices"
	"sync"
	"time"

	"ledstrip-controller/internal/boot"
	"ledstrip-controller/internal/config"
	"ledstrip-controller/internal/core"
	"ledstrip-controller/internal/driver"
	"ledstrip-controller/internal/lua"
	"ledstrip-controller/internal/mqtt"
	"ledstrip-controller/internal/netready"
	"ledstrip-controller/internal/scheduler"
	"ledstrip-controller/internal/server"
	"ledstrip-controller/internal/session"
	"ledstrip-controller/internal/strip"
)

// Transport is the broker link the agent drives.
type Transport interface {
	session.Transport
	Disconnect()
}

// Agent wires the strip, the boot animation and the broker session together.
type Agent struct {
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config
	wg     sync.WaitGroup

	// mu захищає stopped, щоб Run не додався до wg після того, як Shutdown почав чекати.
	mu      sync.Mutex
	stopped bool

	state    *core.State
	eventBus *core.EventBus

	driver    strip.Driver
	arbiter   *strip.Arbiter
	applier   *Applier
	sequencer *boot.Sequencer
	luaEngine *lua.Engine
	machine   *session.Machine
	transport Transport
	scheduler *scheduler.Scheduler
	server    *server.Server

	bootDone    chan struct{}
	waitNetwork func(ctx context.Context) error
}

// NewAgent builds the agent around the configured pixel driver and the MQTT transport.
func NewAgent(cfg *config.Config) (*Agent, error) {
	drv, err := driver.New(cfg.Strip)
	if err != nil {
		return nil, err
	}
	return newAgent(cfg, drv, func(sink func(session.Event)) Transport {
		return mqtt.NewClient(cfg.MQTT, sink)
	})
}

func newAgent(cfg *config.Config, drv strip.Driver, newTransport func(func(session.Event)) Transport) (*Agent, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &Agent{
		ctx:      ctx,
		cancel:   cancel,
		config:   cfg,
		state:    core.NewState(),
		eventBus: core.NewEventBus(),
		driver:   drv,
		bootDone: make(chan struct{}),
	}

	surface, err := strip.NewSurface(cfg.Strip.PixelCount, drv)
	if err != nil {
		cancel()
		return nil, err
	}
	surface.OnFlush(func(frame []core.Color) {
		a.eventBus.Publish(core.Event{Type: core.FrameFlushedEvent, Payload: len(frame)})
	})
	a.arbiter = strip.NewArbiter(surface)

	flushTimeout := config.Duration(cfg.Strip.FlushTimeout)
	a.applier = NewApplier(a.arbiter, flushTimeout, cfg.Strip.RateLimit, cfg.Strip.RateBurst, a.bootDone, a.eventBus)

	a.luaEngine = lua.NewEngine(cfg.ScriptsDir, config.Duration(cfg.ScriptMaxRuntime))
	a.checkBootScripts()
	a.sequencer = boot.NewSequencer(a.arbiter, bootSteps(cfg), a.luaEngine, a.eventBus)

	// Транспорт живить машину станів; замикання розриває цикл створення.
	a.transport = newTransport(func(ev session.Event) { a.machine.Deliver(ev) })
	a.machine = session.NewMachine(session.Config{
		CommandTopic:  cfg.MQTT.CommandTopic,
		CommandQoS:    cfg.MQTT.CommandQoS,
		StatusTopic:   cfg.MQTT.StatusTopic,
		StatusQoS:     cfg.MQTT.StatusQoS,
		OnlinePayload: mqtt.OnlinePayload,
		QueueSize:     queueSize(cfg.Strip),
	}, a.transport, a.applier, a.eventBus)

	a.scheduler = scheduler.NewScheduler(a.applyScheduled, func() {
		a.machine.Deliver(session.Event{Kind: session.EventHeartbeat})
	})
	if _, err := a.scheduler.SetHeartbeat(cfg.MQTT.HeartbeatSpec); err != nil {
		cancel()
		return nil, err
	}
	if err := a.scheduler.Load(cfg.Schedules); err != nil {
		cancel()
		return nil, err
	}

	if cfg.Monitor.Enabled {
		a.server = server.NewServer(cfg.Monitor.Port, cfg.Monitor.AllowedOrigins, func() interface{} { return a.Status() })
	}

	a.waitNetwork = func(ctx context.Context) error {
		return netready.Wait(ctx, cfg.MQTT.Broker, netready.Options{
			ProbeTimeout:  config.Duration(cfg.Network.ProbeTimeout),
			RetryInterval: config.Duration(cfg.Network.RetryInterval),
		})
	}

	return a, nil
}

// queueSize covers the commands that can arrive while one flush holds the consumer.
func queueSize(sc config.StripConfig) int {
	n := int(sc.RateLimit*config.Duration(sc.FlushTimeout).Seconds()) + sc.RateBurst
	return min(max(n, session.DefaultQueueSize), maxQueueSize)
}

const maxQueueSize = 4096

func bootSteps(cfg *config.Config) [boot.NumCheckpoints]boot.Step {
	var steps [boot.NumCheckpoints]boot.Step
	for i := range steps {
		sc := cfg.Boot[i]
		steps[i] = boot.Step{
			Color:        sc.BootColor(),
			PixelDelay:   config.Duration(sc.PixelDelay),
			FlushTimeout: config.Duration(sc.FlushTimeout),
			Script:       sc.Script,
		}
	}
	return steps
}

// checkBootScripts warns about configured scripts that are not on disk; those steps
// fall back to the built-in sweep.
func (a *Agent) checkBootScripts() {
	available, err := a.luaEngine.ScriptList()
	if err != nil {
		log.Printf("[Agent] Cannot list scripts in %s: %v", a.config.ScriptsDir, err)
		return
	}
	for i, step := range a.config.Boot {
		if step.Script != "" && !slices.Contains(available, step.Script) {
			log.Printf("[Agent] Boot step %d script %q not found in %s, using the sweep.", i+1, step.Script, a.config.ScriptsDir)
		}
	}
}

// Run walks the boot checkpoints and then serves commands until Shutdown.
func (a *Agent) Run() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.wg.Add(1)
	a.mu.Unlock()
	defer a.wg.Done()

	// Підписуємось до першого чекпоінта, щоб не пропустити жодної події завантаження.
	sub := a.eventBus.Subscribe(core.AllEvents...)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.listenEvents(sub)
	}()
	go func() {
		defer a.wg.Done()
		a.machine.Run(a.ctx)
	}()

	if a.server != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.server.Forward(a.ctx, a.eventBus)
		}()
		go func() {
			if err := a.server.ListenAndServe(a.ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[Agent] Monitor error: %v", err)
			}
		}()
	}

	a.runCheckpoint(boot.PowerOn)

	log.Printf("[Agent] Waiting for network to reach %s...", a.config.MQTT.Broker)
	if err := a.waitNetwork(a.ctx); err != nil {
		log.Printf("[Agent] Network never became ready: %v", err)
		return
	}
	a.runCheckpoint(boot.NetworkReady)

	a.scheduler.Start()
	a.machine.Start()

	select {
	case <-a.ctx.Done():
		return
	case <-a.machine.SessionReady():
	}
	a.runCheckpoint(boot.SessionReady)
	close(a.bootDone)

	log.Println("[Agent] Boot complete, accepting color commands.")
	<-a.ctx.Done()
}

func (a *Agent) runCheckpoint(cp boot.Checkpoint) {
	if err := a.sequencer.Run(a.ctx, cp); err != nil {
		log.Printf("[Agent] Boot checkpoint %s failed: %v", cp, err)
	}
}

func (a *Agent) applyScheduled(c core.Color) {
	if err := a.applier.Apply(a.ctx, c); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[Agent] Scheduled color %s failed: %v", c, err)
	}
}

func (a *Agent) listenEvents(sub core.Subscriber) {
	defer a.eventBus.Unsubscribe(sub, core.AllEvents...)

	for {
		select {
		case <-a.ctx.Done():
			return
		case event := <-sub:
			a.recordEvent(event)
		}
	}
}

func (a *Agent) recordEvent(event core.Event) {
	switch event.Type {
	case core.SessionStateChangedEvent:
		if payload, ok := event.Payload.(map[string]interface{}); ok {
			if to, ok := payload["to"].(string); ok {
				a.state.SetSession(to)
			}
		}
	case core.ColorAppliedEvent:
		if payload, ok := event.Payload.(map[string]interface{}); ok {
			r, _ := payload["r"].(int)
			g, _ := payload["g"].(int)
			b, _ := payload["b"].(int)
			a.state.SetColor(core.Color{R: uint8(r), G: uint8(g), B: uint8(b)}, time.Now())
		}
	case core.CommandRejectedEvent:
		a.state.AddRejected(time.Now())
	case core.FrameFlushedEvent:
		a.state.AddFlush(true)
	case core.FlushFailedEvent:
		a.state.AddFlush(false)
	case core.CheckpointCompletedEvent:
		if name, ok := event.Payload.(string); ok {
			a.state.AddCheckpoint(name)
		}
	}
}

// Shutdown stops the scheduler and the monitor, says goodbye to the broker and
// leaves the strip dark. The boot animation and any in-flight command are stopped
// before the final clear, so nothing repaints the strip afterwards.
func (a *Agent) Shutdown() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	a.mu.Unlock()

	a.scheduler.Stop()

	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.server.Shutdown(ctx); err != nil {
			log.Printf("[Agent] Monitor shutdown error: %v", err)
		}
		cancel()
	}

	a.transport.Disconnect()

	a.cancel()
	a.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.arbiter.Do(ctx, func(s *strip.Surface) error {
		return s.Clear(config.Duration(a.config.Strip.FlushTimeout))
	})
	if err != nil {
		log.Printf("[Agent] Failed to clear strip: %v", err)
	}

	if c, ok := a.driver.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Printf("[Agent] Driver close error: %v", err)
		}
	}
}
