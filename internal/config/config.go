package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// MQTTConfig - налаштування брокера та топіків
type MQTTConfig struct {
	Broker               string `json:"broker" yaml:"broker"` // tcp://IP:PORT
	Username             string `json:"username" yaml:"username"`
	Password             string `json:"password" yaml:"password"`
	ClientID             string `json:"client_id" yaml:"client_id"`
	CommandTopic         string `json:"command_topic" yaml:"command_topic"`
	CommandQoS           byte   `json:"command_qos" yaml:"command_qos"`
	StatusTopic          string `json:"status_topic" yaml:"status_topic"`
	StatusQoS            byte   `json:"status_qos" yaml:"status_qos"`
	KeepAlive            string `json:"keep_alive" yaml:"keep_alive"`
	PingTimeout          string `json:"ping_timeout" yaml:"ping_timeout"`
	ConnectRetryInterval string `json:"connect_retry_interval" yaml:"connect_retry_interval"`
	MaxReconnectInterval string `json:"max_reconnect_interval" yaml:"max_reconnect_interval"`
	HeartbeatSpec        string `json:"heartbeat_spec" yaml:"heartbeat_spec"`
}

// StripConfig - налаштування LED стрічки та її драйвера
type StripConfig struct {
	PixelCount   int     `json:"pixel_count" yaml:"pixel_count"`
	Driver       string  `json:"driver" yaml:"driver"` // sim | ws2812 | ws281x
	GPIOPin      int     `json:"gpio_pin" yaml:"gpio_pin"`
	Brightness   int     `json:"brightness" yaml:"brightness"`
	FlushTimeout string  `json:"flush_timeout" yaml:"flush_timeout"`
	SimLatency   string  `json:"sim_latency" yaml:"sim_latency"`
	RateLimit    float64 `json:"command_rate_limit" yaml:"command_rate_limit"`
	RateBurst    int     `json:"command_rate_burst" yaml:"command_rate_burst"`
}

// BootStepConfig - один чекпоінт анімації завантаження
type BootStepConfig struct {
	Color        string `json:"color" yaml:"color"` // "r,g,b"
	PixelDelay   string `json:"pixel_delay" yaml:"pixel_delay"`
	FlushTimeout string `json:"flush_timeout" yaml:"flush_timeout"`
	Script       string `json:"script" yaml:"script"`
}

// NetworkConfig - перевірка доступності брокера перед першим підключенням
type NetworkConfig struct {
	ProbeTimeout  string `json:"probe_timeout" yaml:"probe_timeout"`
	RetryInterval string `json:"retry_interval" yaml:"retry_interval"`
}

// MonitorConfig - опційний HTTP/WebSocket сервер статусу (тільки читання)
type MonitorConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	Port           string   `json:"port" yaml:"port"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

// ScheduleEntry - колір, що застосовується за cron розкладом
type ScheduleEntry struct {
	Spec    string `json:"spec" yaml:"spec"`
	Command string `json:"command" yaml:"command"`
}

// Config - головна структура, не змінюється після Load
type Config struct {
	MQTT      MQTTConfig       `json:"mqtt" yaml:"mqtt"`
	Strip     StripConfig      `json:"strip" yaml:"strip"`
	Boot      []BootStepConfig `json:"boot" yaml:"boot"`
	Network   NetworkConfig    `json:"network" yaml:"network"`
	Monitor   MonitorConfig    `json:"monitor" yaml:"monitor"`
	Schedules []ScheduleEntry  `json:"schedules" yaml:"schedules"`

	ScriptsDir       string `json:"scripts_dir" yaml:"scripts_dir"`
	ScriptMaxRuntime string `json:"script_max_runtime" yaml:"script_max_runtime"`
}

// NumBootSteps is the fixed number of boot checkpoints.
const NumBootSteps = 3

// Load зчитує файл (JSON, або YAML за розширенням), застосовує ENV, дефолти та валідацію.
// Якщо файлу немає, повертаються дефолти.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, cfg); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to open config file '%s': %w", path, err)
	}

	cfg.applyEnv()
	cfg.sanitize()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode json: %w", err)
		}
	}
	return nil
}

func (c *Config) sanitize() {
	c.MQTT.Broker = strings.TrimSpace(c.MQTT.Broker)
	c.MQTT.ClientID = strings.TrimSpace(c.MQTT.ClientID)
	c.MQTT.CommandTopic = strings.TrimSpace(c.MQTT.CommandTopic)
	c.MQTT.StatusTopic = strings.TrimSpace(c.MQTT.StatusTopic)
	c.Strip.Driver = strings.ToLower(strings.TrimSpace(c.Strip.Driver))
	c.Monitor.Port = strings.TrimSpace(c.Monitor.Port)
	c.ScriptsDir = strings.TrimSpace(c.ScriptsDir)
}

func (c *Config) setDefaults() {
	// Дефолти MQTT
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "ledstrip-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}
	if c.MQTT.CommandTopic == "" {
		c.MQTT.CommandTopic = "color"
	}
	if c.MQTT.StatusTopic == "" {
		c.MQTT.StatusTopic = "ledstrip/" + c.MQTT.ClientID + "/availability"
	}
	if c.MQTT.KeepAlive == "" {
		c.MQTT.KeepAlive = "10s"
	}
	if c.MQTT.PingTimeout == "" {
		c.MQTT.PingTimeout = "5s"
	}
	if c.MQTT.ConnectRetryInterval == "" {
		c.MQTT.ConnectRetryInterval = "5s"
	}
	if c.MQTT.MaxReconnectInterval == "" {
		c.MQTT.MaxReconnectInterval = "1m"
	}
	if c.MQTT.HeartbeatSpec == "" {
		c.MQTT.HeartbeatSpec = "@every 60s"
	}

	// Дефолти стрічки
	if c.Strip.PixelCount == 0 {
		c.Strip.PixelCount = 25
	}
	if c.Strip.Driver == "" {
		c.Strip.Driver = "sim"
	}
	if c.Strip.GPIOPin == 0 {
		c.Strip.GPIOPin = 18
	}
	if c.Strip.Brightness == 0 {
		c.Strip.Brightness = 255
	}
	if c.Strip.FlushTimeout == "" {
		c.Strip.FlushTimeout = "1s"
	}
	if c.Strip.SimLatency == "" {
		c.Strip.SimLatency = "0s"
	}
	if c.Strip.RateLimit == 0 {
		c.Strip.RateLimit = 50
	}
	if c.Strip.RateBurst == 0 {
		c.Strip.RateBurst = 10
	}

	// Дефолти завантаження: тьмяні проходи червоним, зеленим і синім
	defaultColors := [NumBootSteps]string{"10,0,0", "0,10,0", "0,0,10"}
	if len(c.Boot) == 0 {
		c.Boot = make([]BootStepConfig, NumBootSteps)
	}
	for i := range c.Boot {
		if c.Boot[i].Color == "" && i < NumBootSteps {
			c.Boot[i].Color = defaultColors[i]
		}
		if c.Boot[i].PixelDelay == "" {
			c.Boot[i].PixelDelay = "100ms"
		}
		if c.Boot[i].FlushTimeout == "" {
			c.Boot[i].FlushTimeout = c.Strip.FlushTimeout
		}
	}

	// Дефолти мережі
	if c.Network.ProbeTimeout == "" {
		c.Network.ProbeTimeout = "3s"
	}
	if c.Network.RetryInterval == "" {
		c.Network.RetryInterval = "2s"
	}

	// Дефолти монітора
	if c.Monitor.Port == "" {
		c.Monitor.Port = "8080"
	}

	// Дефолти файлів
	if c.ScriptsDir == "" {
		c.ScriptsDir = "scripts"
	}
	if c.ScriptMaxRuntime == "" {
		c.ScriptMaxRuntime = "30s"
	}
}
