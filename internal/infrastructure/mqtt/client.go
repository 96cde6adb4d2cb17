package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/radiotherm-homie/internal/infrastructure/config"
)

// Client is the bridge's broker connection: retained publishes for the Homie
// tree, one command route for /set writes, and a Last Will for $state.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	client   pahomqtt.Client
	broker   string
	clientID string
	qos      byte

	routeMu sync.RWMutex
	route   *commandRoute

	hooksMu      sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger receives handler failures and reconnect problems.
// Satisfied by *logging.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler handles one inbound message. paho calls it on its own
// goroutine; a returned error is logged, not acknowledged differently.
type MessageHandler func(topic string, payload []byte) error

// Will describes the Last Will and Testament registered with the broker.
// The broker publishes it if the client vanishes without a clean disconnect.
type Will struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// Connect dials the broker and waits for the first CONNACK.
//
// will is registered before dialling; nil disables it. After the initial
// connection paho reconnects on its own with backoff between
// cfg.Reconnect.InitialDelay and MaxDelay, and the command route is restored
// each time.
func Connect(cfg config.MQTTConfig, will *Will) (*Client, error) {
	opts := buildClientOptions(cfg)
	configureLWT(opts, will)

	c := &Client{
		broker:   opts.Servers[0].String(),
		clientID: opts.ClientID,
		qos:      byte(cfg.QoS),
	}
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connected() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.lost(err) })

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %s: timeout after %v", ErrConnectionFailed, c.broker, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, c.broker, err)
	}
	return c, nil
}

// connected runs on every (re)connect.
func (c *Client) connected() {
	c.restoreRoute()

	c.hooksMu.RLock()
	hook := c.onConnect
	c.hooksMu.RUnlock()
	if hook != nil {
		hook()
	}
}

// lost runs when paho drops the connection.
func (c *Client) lost(err error) {
	c.hooksMu.RLock()
	hook := c.onDisconnect
	c.hooksMu.RUnlock()
	if hook != nil {
		hook(err)
	}
}

// Close disconnects cleanly, which suppresses the Last Will. Publish any
// offline state before calling it.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}

// ClientID returns the client identifier presented to the broker.
func (c *Client) ClientID() string {
	return c.clientID
}

// QoS returns the configured QoS for Homie publishes.
func (c *Client) QoS() byte {
	return c.qos
}

// HealthCheck reports whether the broker connection is open.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return fmt.Errorf("%w: %s", ErrNotConnected, c.broker)
	}
	return nil
}

// IsConnected reports whether the connection is currently open. It is false
// while paho is between reconnect attempts.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnectionOpen()
}

// SetOnConnect sets a callback run after every reconnect, once the command
// route has been restored.
func (c *Client) SetOnConnect(callback func()) {
	c.hooksMu.Lock()
	c.onConnect = callback
	c.hooksMu.Unlock()
}

// SetOnDisconnect sets a callback run when the connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.hooksMu.Lock()
	c.onDisconnect = callback
	c.hooksMu.Unlock()
}

// SetLogger sets the logger for rejected commands and restore failures.
func (c *Client) SetLogger(logger Logger) {
	c.hooksMu.Lock()
	c.logger = logger
	c.hooksMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()
	return c.logger
}
