package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/fridge-monitor/internal/logger"
)

// Options configures the broker connection.
type Options struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	BaseTopic      string
	QoS            byte
	KeepAlive      time.Duration
	PublishTimeout time.Duration
	// BufferSize bounds the system events kept while disconnected.
	BufferSize int
}

// Client publishes to an MQTT broker and receives alarm-disable commands.
// It reconnects automatically; state topics are not queued while offline.
type Client struct {
	client  paho.Client
	topics  Topics
	qos     byte
	timeout time.Duration
	log     *logger.Logger

	mu        sync.Mutex
	onCommand func(payload string)
	onConnect func()
	buffer    *ringBuffer
}

// NewClient prepares a client. Nothing is sent until Connect.
func NewClient(opts Options, log *logger.Logger) *Client {
	if opts.BaseTopic == "" {
		opts.BaseTopic = DefaultBaseTopic
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 16
	}

	c := &Client{
		topics:  Topics{Base: opts.BaseTopic},
		qos:     opts.QoS,
		timeout: opts.PublishTimeout,
		log:     log,
		buffer:  newRingBuffer(opts.BufferSize),
	}

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetKeepAlive(opts.KeepAlive).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(10*time.Second).
		SetWill(c.topics.Availability(), PayloadOffline, opts.QoS, true).
		SetOnConnectHandler(c.handleConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.log.Warnw("mqtt connection lost", "err", err)
		})
	c.client = paho.NewClient(po)
	return c
}

// Topics returns the topic scheme in use.
func (c *Client) Topics() Topics {
	return c.topics
}

// OnCommand registers the alarm-disable command handler.
func (c *Client) OnCommand(f func(payload string)) {
	c.mu.Lock()
	c.onCommand = f
	c.mu.Unlock()
}

// OnConnect registers a hook run after every (re)connection.
func (c *Client) OnConnect(f func()) {
	c.mu.Lock()
	c.onConnect = f
	c.mu.Unlock()
}

// Connect starts connecting and waits up to wait for the first connection.
// A timeout is not an error; the client keeps retrying in the background.
func (c *Client) Connect(wait time.Duration) error {
	token := c.client.Connect()
	if !token.WaitTimeout(wait) {
		c.log.Warnw("mqtt broker not reachable yet, retrying in background", "wait", wait)
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	return nil
}

func (c *Client) handleConnect(client paho.Client) {
	c.log.Infow("mqtt connected")

	sub := client.Subscribe(c.topics.Command(), c.qos, c.handleMessage)
	go func() {
		if sub.WaitTimeout(c.timeout) && sub.Error() != nil {
			c.log.Errorw("subscribe to command topic", "topic", c.topics.Command(), "err", sub.Error())
		}
	}()

	client.Publish(c.topics.Availability(), c.qos, true, PayloadOnline)

	c.mu.Lock()
	pending := c.buffer.drainAll()
	hook := c.onConnect
	c.mu.Unlock()

	for _, m := range pending {
		client.Publish(m.topic, c.qos, false, m.payload)
	}
	if len(pending) > 0 {
		c.log.Infow("replayed buffered system events", "count", len(pending))
	}
	if hook != nil {
		hook()
	}
}

func (c *Client) handleMessage(_ paho.Client, msg paho.Message) {
	c.mu.Lock()
	handler := c.onCommand
	c.mu.Unlock()

	payload := string(msg.Payload())
	c.log.Debugw("command received", "topic", msg.Topic(), "payload", payload)
	if handler != nil {
		handler(payload)
	}
}

// IsConnected reports whether the connection is currently open.
func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Publish sends value to <base>/<key>.
func (c *Client) Publish(key, value string, retain bool) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return c.publish(c.topics.State(key), retain, value)
}

// PublishSystem sends a lifecycle event, buffering it while disconnected.
func (c *Client) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	topic := c.topics.State(KeySystem)

	if !c.IsConnected() {
		c.mu.Lock()
		dropped := c.buffer.push(bufferedMsg{topic: topic, payload: payload})
		c.mu.Unlock()
		if dropped {
			c.log.Warnw("system event buffer full, dropping oldest", "capacity", c.buffer.capacity)
		}
		return nil
	}
	return c.publish(topic, false, payload)
}

func (c *Client) publish(topic string, retain bool, payload interface{}) error {
	token := c.client.Publish(topic, c.qos, retain, payload)
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close publishes the offline availability and disconnects.
func (c *Client) Close() error {
	if c.IsConnected() {
		if err := c.publish(c.topics.Availability(), true, PayloadOffline); err != nil {
			c.log.Warnw("publish offline availability", "err", err)
		}
	}
	c.client.Disconnect(1000)
	return nil
}
