//go:build tinygo

package driver

import (
	"image/color"
	"log"
	"machine"
	"time"

	"tinygo.org/x/drivers/ws2812"

	"ledstrip-controller/internal/config"
	"ledstrip-controller/internal/core"
	"ledstrip-controller/internal/strip"
)

// ws2812Driver bit-bangs a WS2812 strip from a microcontroller GPIO.
type ws2812Driver struct {
	dev        ws2812.Device
	brightness int
	buf        []color.RGBA
}

func newWS2812(cfg config.StripConfig) (strip.Driver, error) {
	pin := machine.Pin(cfg.GPIOPin)
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	log.Printf("[Strip] WS2812 on pin %d, %d pixels.", cfg.GPIOPin, cfg.PixelCount)
	return &ws2812Driver{
		dev:        ws2812.New(pin),
		brightness: cfg.Brightness,
		buf:        make([]color.RGBA, cfg.PixelCount),
	}, nil
}

// Write is synchronous on the MCU; the surface enforces the timeout.
func (d *ws2812Driver) Write(frame []core.Color, _ time.Duration) error {
	if cap(d.buf) < len(frame) {
		d.buf = make([]color.RGBA, len(frame))
	}
	d.buf = d.buf[:len(frame)]
	for i, c := range frame {
		d.buf[i] = color.RGBA{
			R: scale(c.R, d.brightness),
			G: scale(c.G, d.brightness),
			B: scale(c.B, d.brightness),
			A: 255,
		}
	}
	return d.dev.WriteColors(d.buf)
}
