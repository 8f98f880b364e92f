package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"ledstrip-controller/internal/core"
)

// MaxPixelCount is a sanity bound on the strip length.
const MaxPixelCount = 4096

var brokerSchemes = map[string]bool{
	"tcp": true, "mqtt": true, "ssl": true, "tls": true, "mqtts": true, "ws": true, "wss": true,
}

var stripDrivers = map[string]bool{"sim": true, "ws2812": true, "ws281x": true}

func (c *Config) validate() error {
	u, err := url.Parse(c.MQTT.Broker)
	if err != nil {
		return fmt.Errorf("config error: invalid broker url '%s': %w", c.MQTT.Broker, err)
	}
	if !brokerSchemes[u.Scheme] || u.Host == "" {
		return fmt.Errorf("config error: broker url '%s' must look like tcp://host:port", c.MQTT.Broker)
	}
	if strings.ContainsAny(c.MQTT.CommandTopic, "#+") {
		return fmt.Errorf("config error: 'command_topic' must not contain wildcards")
	}
	if c.MQTT.CommandQoS > 2 || c.MQTT.StatusQoS > 2 {
		return fmt.Errorf("config error: qos must be 0, 1 or 2")
	}

	if c.Strip.PixelCount <= 0 || c.Strip.PixelCount > MaxPixelCount {
		return fmt.Errorf("config error: 'pixel_count' must be between 1 and %d", MaxPixelCount)
	}
	if !stripDrivers[c.Strip.Driver] {
		return fmt.Errorf("config error: unknown strip driver '%s'", c.Strip.Driver)
	}
	if c.Strip.Brightness < 0 || c.Strip.Brightness > 255 {
		return fmt.Errorf("config error: 'brightness' must be 0-255")
	}
	if c.Strip.RateLimit <= 0 || c.Strip.RateBurst <= 0 {
		return fmt.Errorf("config error: 'command_rate_limit' and 'command_rate_burst' must be positive")
	}

	if len(c.Boot) != NumBootSteps {
		return fmt.Errorf("config error: 'boot' must have exactly %d steps, got %d", NumBootSteps, len(c.Boot))
	}
	for i, step := range c.Boot {
		if _, err := core.ParseColor([]byte(step.Color)); err != nil {
			return fmt.Errorf("config error: boot step %d color: %w", i+1, err)
		}
		if err := checkDuration(fmt.Sprintf("boot step %d pixel_delay", i+1), step.PixelDelay, true); err != nil {
			return err
		}
		if err := checkDuration(fmt.Sprintf("boot step %d flush_timeout", i+1), step.FlushTimeout, false); err != nil {
			return err
		}
	}

	for i, s := range c.Schedules {
		if strings.TrimSpace(s.Spec) == "" {
			return fmt.Errorf("config error: schedule %d has no spec", i+1)
		}
		if _, err := core.ParseColor([]byte(s.Command)); err != nil {
			return fmt.Errorf("config error: schedule %d command: %w", i+1, err)
		}
	}

	durations := []struct {
		name      string
		value     string
		allowZero bool
	}{
		{"keep_alive", c.MQTT.KeepAlive, false},
		{"ping_timeout", c.MQTT.PingTimeout, false},
		{"connect_retry_interval", c.MQTT.ConnectRetryInterval, false},
		{"max_reconnect_interval", c.MQTT.MaxReconnectInterval, false},
		{"flush_timeout", c.Strip.FlushTimeout, false},
		{"sim_latency", c.Strip.SimLatency, true},
		{"probe_timeout", c.Network.ProbeTimeout, false},
		{"retry_interval", c.Network.RetryInterval, false},
		{"script_max_runtime", c.ScriptMaxRuntime, false},
	}
	for _, d := range durations {
		if err := checkDuration(d.name, d.value, d.allowZero); err != nil {
			return err
		}
	}

	return nil
}

func checkDuration(name, value string, allowZero bool) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("config error: '%s' is not a duration: %w", name, err)
	}
	if d < 0 || (d == 0 && !allowZero) {
		return fmt.Errorf("config error: '%s' must be positive", name)
	}
	return nil
}

// Duration parses a duration string that validate has already accepted.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// BootColor returns the parsed color of a validated boot step.
func (s BootStepConfig) BootColor() core.Color {
	c, _ := core.ParseColor([]byte(s.Color))
	return c
}
