//go:build !tinygo

package driver

import (
	"fmt"

	"ledstrip-controller/internal/config"
	"ledstrip-controller/internal/strip"
)

func newWS2812(config.StripConfig) (strip.Driver, error) {
	return nil, fmt.Errorf("%w: ws2812 requires a tinygo build", ErrDriverUnavailable)
}
