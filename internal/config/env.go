package config

import (
	"os"
	"strconv"
)

// applyEnv lets LEDSTRIP_* environment variables override values from the file.
func (c *Config) applyEnv() {
	c.MQTT.Broker = getEnv("LEDSTRIP_MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.Username = getEnv("LEDSTRIP_MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = getEnv("LEDSTRIP_MQTT_PASSWORD", c.MQTT.Password)
	c.MQTT.ClientID = getEnv("LEDSTRIP_MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.CommandTopic = getEnv("LEDSTRIP_COMMAND_TOPIC", c.MQTT.CommandTopic)
	c.MQTT.StatusTopic = getEnv("LEDSTRIP_STATUS_TOPIC", c.MQTT.StatusTopic)

	c.Strip.PixelCount = getEnvInt("LEDSTRIP_PIXEL_COUNT", c.Strip.PixelCount)
	c.Strip.Driver = getEnv("LEDSTRIP_DRIVER", c.Strip.Driver)
	c.Strip.GPIOPin = getEnvInt("LEDSTRIP_GPIO_PIN", c.Strip.GPIOPin)

	c.Monitor.Enabled = getEnvBool("LEDSTRIP_MONITOR_ENABLED", c.Monitor.Enabled)
	c.Monitor.Port = getEnv("LEDSTRIP_MONITOR_PORT", c.Monitor.Port)
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default value.
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
