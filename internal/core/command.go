package core

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxPayloadLen bounds an inbound color payload. A decimal triplet needs at most 11 bytes,
// the rest is slack for whitespace and ignored trailing tokens.
const MaxPayloadLen = 64

// ErrMalformedCommand is returned for any payload that does not yield a full color.
var ErrMalformedCommand = errors.New("malformed color command")

// Color is a single 3-channel color command.
type Color struct {
	R, G, B uint8
}

// Off is the all-dark color.
var Off = Color{}

// String formats the color the way it travels on the command topic.
func (c Color) String() string {
	return fmt.Sprintf("%d,%d,%d", c.R, c.G, c.B)
}

// Hex returns the #RRGGBB form used by the monitor.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// ParseColor turns a "r,g,b" payload into a Color.
// Tokens after the third are ignored. Fewer than three tokens, an empty or non-decimal token,
// or a channel above 255 rejects the whole payload.
func ParseColor(payload []byte) (Color, error) {
	if len(payload) > MaxPayloadLen {
		return Color{}, fmt.Errorf("%w: payload too long (%d bytes)", ErrMalformedCommand, len(payload))
	}

	trimmed := strings.TrimSpace(string(bytes.Trim(payload, "\x00")))
	if trimmed == "" {
		return Color{}, fmt.Errorf("%w: empty payload", ErrMalformedCommand)
	}

	parts := strings.Split(trimmed, ",")
	if len(parts) < 3 {
		return Color{}, fmt.Errorf("%w: want 3 channels, got %d", ErrMalformedCommand, len(parts))
	}

	var ch [3]uint8
	for i := range ch {
		v, err := parseChannel(parts[i])
		if err != nil {
			return Color{}, fmt.Errorf("%w: channel %d: %v", ErrMalformedCommand, i, err)
		}
		ch[i] = v
	}

	return Color{R: ch[0], G: ch[1], B: ch[2]}, nil
}

func parseChannel(tok string) (uint8, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return 0, errors.New("empty value")
	}
	// ParseUint accepts a leading '+', a channel value does not.
	if tok[0] < '0' || tok[0] > '9' {
		return 0, fmt.Errorf("%q is not a decimal number", tok)
	}
	v, err := strconv.ParseUint(tok, 10, 8)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return 0, fmt.Errorf("%s is outside 0-255", tok)
		}
		return 0, fmt.Errorf("%q is not a decimal number", tok)
	}
	return uint8(v), nil
}
