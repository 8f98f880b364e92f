//go:build rpi && linux && cgo

package driver

import (
	"fmt"
	"log"
	"sync"
	"time"

	ws2811 "github.com/rpi-ws281x/rpi-ws281x-go"

	"ledstrip-controller/internal/config"
	"ledstrip-controller/internal/core"
	"ledstrip-controller/internal/strip"
)

// ws281xDriver drives a WS281x strip through the Raspberry Pi PWM/DMA engine.
type ws281xDriver struct {
	mu  sync.Mutex
	dev *ws2811.WS2811
}

func newWS281x(cfg config.StripConfig) (strip.Driver, error) {
	opt := ws2811.DefaultOptions
	opt.Channels[0].GpioPin = cfg.GPIOPin
	opt.Channels[0].LedCount = cfg.PixelCount
	opt.Channels[0].Brightness = cfg.Brightness

	dev, err := ws2811.MakeWS2811(&opt)
	if err != nil {
		return nil, fmt.Errorf("ws281x setup: %w", err)
	}
	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("ws281x init: %w", err)
	}
	log.Printf("[Strip] WS281x on GPIO %d, %d pixels.", cfg.GPIOPin, cfg.PixelCount)
	return &ws281xDriver{dev: dev}, nil
}

func (d *ws281xDriver) Write(frame []core.Color, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	leds := d.dev.Leds(0)
	for i := range leds {
		if i < len(frame) {
			c := frame[i]
			leds[i] = uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
		} else {
			leds[i] = 0
		}
	}
	if err := d.dev.Render(); err != nil {
		return fmt.Errorf("ws281x render: %w", err)
	}

	if timeout <= 0 {
		return d.dev.Wait()
	}
	done := make(chan error, 1)
	go func() { done <- d.dev.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("%w: ws281x render did not complete in %v", strip.ErrDriverTimeout, timeout)
	}
}

// Close releases the DMA channel.
func (d *ws281xDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dev.Fini()
	return nil
}
