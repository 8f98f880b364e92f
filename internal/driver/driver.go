// Package driver provides the pixel drivers behind strip.Surface: an in-memory
// simulator for hosts and tests, and hardware drivers selected by build tag.
package driver

import (
	"errors"
	"fmt"

	"ledstrip-controller/internal/config"
	"ledstrip-controller/internal/strip"
)

// ErrDriverUnavailable is returned when the configured driver was not compiled in.
var ErrDriverUnavailable = errors.New("pixel driver not available in this build")

// New builds the driver named by cfg.Driver.
func New(cfg config.StripConfig) (strip.Driver, error) {
	switch cfg.Driver {
	case "", "sim":
		return NewSim(config.Duration(cfg.SimLatency)), nil
	case "ws2812":
		return newWS2812(cfg)
	case "ws281x":
		return newWS281x(cfg)
	default:
		return nil, fmt.Errorf("unknown pixel driver %q", cfg.Driver)
	}
}

// scale applies a 0-255 brightness to one channel.
func scale(v uint8, brightness int) uint8 {
	if brightness >= 255 {
		return v
	}
	if brightness <= 0 {
		return 0
	}
	return uint8(int(v) * brightness / 255)
}
