//go:build !(rpi && linux && cgo)

package driver

import (
	"fmt"

	"ledstrip-controller/internal/config"
	"ledstrip-controller/internal/strip"
)

func newWS281x(config.StripConfig) (strip.Driver, error) {
	return nil, fmt.Errorf("%w: ws281x requires a linux build with -tags rpi and cgo", ErrDriverUnavailable)
}
