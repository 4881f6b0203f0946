package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-mixer/internal/infrastructure/config"
)

// Logger receives handler failures. logging.Logger satisfies it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler handles one inbound message on a paho goroutine. A
// returned error is logged and counted; the message is still acknowledged.
type MessageHandler func(topic string, payload []byte) error

// route is a subscription kept for replay after a reconnect.
type route struct {
	qos     byte
	handler MessageHandler
}

// Stats counts traffic since the client was created.
type Stats struct {
	Published     uint64 `json:"published"`
	Received      uint64 `json:"received"`
	HandlerErrors uint64 `json:"handler_errors"`
	Panics        uint64 `json:"panics"`
}

// Client is the service's broker link. It keeps the retained
// graymixer/system/status topic current, replays subscriptions when paho
// reconnects and counts traffic. Safe for concurrent use.
type Client struct {
	paho pahomqtt.Client
	cfg  config.MQTTConfig

	connected atomic.Bool

	mu     sync.RWMutex
	routes map[string]route
	onUp   func()
	onDown func(error)
	logger Logger

	published     atomic.Uint64
	received      atomic.Uint64
	handlerErrors atomic.Uint64
	panics        atomic.Uint64
}

func newClient(cfg config.MQTTConfig) *Client {
	return &Client{cfg: cfg, routes: make(map[string]route)}
}

// Connect dials the broker and blocks until the first connection succeeds
// or the connect timeout passes. The broker publishes the retained
// offline status as Last Will if the service vanishes.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := newClient(cfg)

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.up() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.down(err) })
	c.paho = pahomqtt.NewClient(opts)

	token := c.paho.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: %s:%d: no answer within %v",
			ErrConnectionFailed, cfg.Broker.Host, cfg.Broker.Port, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %s:%d: %w", ErrConnectionFailed, cfg.Broker.Host, cfg.Broker.Port, err)
	}
	// up runs on a paho goroutine and may not have happened yet.
	c.connected.Store(true)
	return c, nil
}

// up runs on every (re)connect.
func (c *Client) up() {
	c.connected.Store(true)

	c.mu.RLock()
	for topic, r := range c.routes {
		c.paho.Subscribe(topic, r.qos, c.wrap(r.handler))
	}
	onUp := c.onUp
	c.mu.RUnlock()

	c.publishStatus(buildOnlinePayload(c.cfg.Broker.ClientID))
	if onUp != nil {
		onUp()
	}
}

func (c *Client) down(err error) {
	c.connected.Store(false)

	c.mu.RLock()
	onDown := c.onDown
	c.mu.RUnlock()
	if onDown != nil {
		onDown(err)
	}
}

func (c *Client) publishStatus(payload string) pahomqtt.Token {
	return c.paho.Publish(Topics{}.SystemStatus(), c.QoS(), true, payload)
}

// Close publishes the graceful offline status and disconnects. It is a
// no-op on a client that never connected.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		c.publishStatus(buildOfflinePayload(c.cfg.Broker.ClientID)).WaitTimeout(defaultPublishTimeout)
	}
	c.paho.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck returns ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the broker link is up.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.paho != nil && c.paho.IsConnected()
}

// Stats returns the traffic counters.
func (c *Client) Stats() Stats {
	return Stats{
		Published:     c.published.Load(),
		Received:      c.received.Load(),
		HandlerErrors: c.handlerErrors.Load(),
		Panics:        c.panics.Load(),
	}
}

// MessageCounts returns messages published and received.
func (c *Client) MessageCounts() (published, received uint64) {
	return c.published.Load(), c.received.Load()
}

// SetOnConnect sets a callback run after every (re)connect, once
// subscriptions are restored.
func (c *Client) SetOnConnect(fn func()) {
	c.mu.Lock()
	c.onUp = fn
	c.mu.Unlock()
}

// SetOnDisconnect sets a callback run when the broker link drops.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.mu.Lock()
	c.onDown = fn
	c.mu.Unlock()
}

// SetLogger sets the logger for handler failures.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) wrap(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.dispatch(handler, msg.Topic(), msg.Payload())
	}
}

// dispatch runs handler, counting and logging failures. A panicking
// handler does not take down paho's router.
func (c *Client) dispatch(handler MessageHandler, topic string, payload []byte) {
	c.received.Add(1)

	c.mu.RLock()
	logger := c.logger
	c.mu.RUnlock()

	defer func() {
		if r := recover(); r != nil {
			c.panics.Add(1)
			if logger != nil {
				logger.Error("mqtt handler panic recovered", "topic", topic, "panic", r)
			}
		}
	}()
	if err := handler(topic, payload); err != nil {
		c.handlerErrors.Add(1)
		if logger != nil {
			logger.Warn("mqtt handler returned error", "topic", topic, "error", err)
		}
	}
}
