// Package mqtt adapts the paho client to the session state machine: paho callbacks
// become session events and outbound operations never wait on the broker.
package mqtt

import (
	"errors"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"ledstrip-controller/internal/config"
	"ledstrip-controller/internal/session"
)

// Payload-и доступності, які публікуються з retained у статусний топік.
const (
	OnlinePayload  = "online"
	OfflinePayload = "offline"
)

// ErrNotConnected is returned by Publish and Subscribe while the link is down.
var ErrNotConnected = errors.New("mqtt client not connected")

// tokenTimeout обмежує горутини, що чекають підтвердження від брокера.
const tokenTimeout = 10 * time.Second

// Client реалізує session.Transport поверх paho.
type Client struct {
	client mqtt.Client
	cfg    config.MQTTConfig
	sink   func(session.Event)
}

// NewClient створює транспорт. Кожна подія від брокера передається в sink,
// який має зберігати порядок (session.Machine.Deliver так і робить).
func NewClient(cfg config.MQTTConfig, sink func(session.Event)) *Client {
	c := &Client{cfg: cfg, sink: sink}
	c.client = mqtt.NewClient(c.options())
	return c
}

func (c *Client) options() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.cfg.Broker)
	opts.SetClientID(c.cfg.ClientID)
	opts.SetUsername(c.cfg.Username)
	opts.SetPassword(c.cfg.Password)

	opts.SetKeepAlive(config.Duration(c.cfg.KeepAlive))
	opts.SetPingTimeout(config.Duration(c.cfg.PingTimeout))

	// Реконект робить paho, сесія лише спостерігає.
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(config.Duration(c.cfg.MaxReconnectInterval))
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(config.Duration(c.cfg.ConnectRetryInterval))

	// Команди мають потрапляти на стрічку в порядку надходження.
	opts.SetOrderMatters(true)
	opts.SetCleanSession(true)

	opts.SetWill(c.cfg.StatusTopic, OfflinePayload, c.cfg.StatusQoS, true)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)
	opts.SetDefaultPublishHandler(c.onMessage)
	return opts
}

// Connect запускає цикл підключення і одразу повертається. З ConnectRetry=true
// токен завершується лише при успіху, тож помилка токена означає проблему конфігурації.
func (c *Client) Connect() error {
	log.Printf("[MQTT] Starting connection loop to %s...", c.cfg.Broker)
	token := c.client.Connect()
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Printf("[MQTT] Initial connection error: %v", token.Error())
			c.sink(session.Event{Kind: session.EventError, ErrKind: "connect", Err: token.Error()})
		}
	}()
	return nil
}

// Publish queues a message. The acknowledgement arrives later as EventPublished.
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, qos, retained, payload)
	go c.await(token, "publish", topic, func() {
		c.sink(session.Event{Kind: session.EventPublished, Topic: topic})
	})
	return nil
}

// Subscribe registers topic with the default handler. The acknowledgement arrives
// later as EventSubscribed.
func (c *Client) Subscribe(topic string, qos byte) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := c.client.Subscribe(topic, qos, nil)
	go c.await(token, "subscribe", topic, func() {
		c.sink(session.Event{Kind: session.EventSubscribed, Topic: topic})
	})
	return nil
}

// Disconnect коректно завершує роботу: спочатку надсилає offline статус, потім закриває сокет
// і повідомляє EventDisconnected. Якщо з'єднання вже немає, нічого не робить.
func (c *Client) Disconnect() {
	if !c.client.IsConnected() {
		return
	}
	log.Println("[MQTT] Disconnecting...")

	token := c.client.Publish(c.cfg.StatusTopic, c.cfg.StatusQoS, true, OfflinePayload)
	if token.WaitTimeout(2 * time.Second) {
		if token.Error() != nil {
			log.Printf("[MQTT] Warning: failed to publish offline status: %v", token.Error())
		}
	} else {
		log.Println("[MQTT] Warning: timed out publishing offline status")
	}

	c.client.Disconnect(250)
	log.Println("[MQTT] Disconnected.")
	c.sink(session.Event{Kind: session.EventDisconnected})
}

func (c *Client) await(token mqtt.Token, op, topic string, onDone func()) {
	if !token.WaitTimeout(tokenTimeout) {
		log.Printf("[MQTT] Timeout waiting for %s on %s", op, topic)
		return
	}
	if err := token.Error(); err != nil {
		log.Printf("[MQTT] %s error on %s: %v", op, topic, err)
		return
	}
	onDone()
}

// Обробники нижче paho викликає у своїх внутрішніх горутинах.

func (c *Client) onConnect(_ mqtt.Client) {
	log.Println("[MQTT] Connected to broker.")
	c.sink(session.Event{Kind: session.EventConnected})
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	log.Printf("[MQTT] Connection lost: %v. Retrying in background...", err)
	c.sink(session.Event{Kind: session.EventError, ErrKind: "connection_lost", Err: err})
}

func (c *Client) onReconnecting(_ mqtt.Client, _ *mqtt.ClientOptions) {
	log.Println("[MQTT] Attempting to reconnect...")
	c.sink(session.Event{Kind: session.EventReconnecting})
}

func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	payload := append([]byte(nil), msg.Payload()...)
	c.sink(session.Event{Kind: session.EventData, Topic: msg.Topic(), Payload: payload})
}
