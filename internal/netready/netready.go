// Package netready blocks startup until the broker's host accepts TCP connections.
package netready

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// Options controls the probe loop.
type Options struct {
	// ProbeTimeout bounds a single dial.
	ProbeTimeout time.Duration
	// RetryInterval is the minimum spacing between dials.
	RetryInterval time.Duration
}

var defaultPorts = map[string]string{
	"tcp":   "1883",
	"mqtt":  "1883",
	"ssl":   "8883",
	"tls":   "8883",
	"mqtts": "8883",
	"ws":    "80",
	"wss":   "443",
}

// BrokerAddress turns a broker URL into a dialable host:port.
func BrokerAddress(broker string) (string, error) {
	u, err := url.Parse(broker)
	if err != nil {
		return "", fmt.Errorf("parse broker url: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("broker url %q has no host", broker)
	}
	port := u.Port()
	if port == "" {
		var ok bool
		if port, ok = defaultPorts[u.Scheme]; !ok {
			return "", fmt.Errorf("broker url %q: unknown scheme %q", broker, u.Scheme)
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// Wait dials the broker until a connection succeeds or ctx ends.
func Wait(ctx context.Context, broker string, opts Options) error {
	addr, err := BrokerAddress(broker)
	if err != nil {
		return err
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 3 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 2 * time.Second
	}

	limiter := rate.NewLimiter(rate.Every(opts.RetryInterval), 1)
	dialer := &net.Dialer{Timeout: opts.ProbeTimeout}

	for attempt := 1; ; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			// The limiter refuses early when the next slot lies past the deadline.
			cause := ctx.Err()
			if cause == nil {
				cause = context.DeadlineExceeded
			}
			return fmt.Errorf("network not ready after %d attempts: %w", attempt-1, cause)
		}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			_ = conn.Close()
			log.Printf("[Network] Broker %s reachable after %d attempt(s).", addr, attempt)
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("network not ready after %d attempts: %w", attempt, ctx.Err())
		}
		log.Printf("[Network] Broker %s unreachable (attempt %d): %v", addr, attempt, err)
	}
}
