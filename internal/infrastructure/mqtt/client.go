package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/smarthome-bridge/internal/infrastructure/config"
	"github.com/nerrad567/smarthome-bridge/internal/topic"
)

// Client wraps paho.mqtt.golang for the smarthome bridge.
//
// It provides connection management, message publishing, subscription
// handling and an explicit Reconnect for supervisor-driven recovery.
// Paho's own auto-reconnect is only enabled when cfg.Reconnect.Auto is set.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are restored on every (re)connection.
type Client struct {
	client      pahomqtt.Client
	options     *pahomqtt.ClientOptions
	cfg         config.MQTTConfig
	statusTopic string

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	// connected tracks current connection state; connMu also guards client.
	connected bool
	closed    bool
	connMu    sync.RWMutex

	// Callbacks for connection events (optional, set via SetOnConnect/SetOnDisconnect).
	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// subscription holds subscription details for re-subscription on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked by the paho router goroutine. They should hand the
// message off and return; a slow handler stalls delivery for every topic.
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS)
//  2. Configures Last Will and Testament (LWT) on statusTopic
//  3. Attempts initial connection with timeout
//  4. Publishes a retained online status to statusTopic
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//   - statusTopic: Retained online/offline topic; empty selects topic.BridgeStatus()
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: ErrConnectionFailed if the broker cannot be reached
func Connect(cfg config.MQTTConfig, statusTopic string) (*Client, error) {
	c := newClient(cfg, statusTopic)
	if err := c.dial(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// newClient builds an unconnected client with its paho options and handlers.
func newClient(cfg config.MQTTConfig, statusTopic string) *Client {
	if statusTopic == "" {
		statusTopic = topic.BridgeStatus()
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, statusTopic, cfg.Broker.ClientID)

	c := &Client{
		cfg:           cfg,
		options:       opts,
		statusTopic:   statusTopic,
		subscriptions: make(map[string]subscription),
	}

	opts.SetOnConnectHandler(func(pc pahomqtt.Client) {
		c.handleConnect(pc)
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		if logger := c.getLogger(); logger != nil {
			logger.Info("MQTT reconnecting", "client_id", cfg.Broker.ClientID)
		}
	})

	return c
}

// dial creates a fresh paho client and connects it.
func (c *Client) dial(ctx context.Context) error {
	pc := pahomqtt.NewClient(c.options)

	c.connMu.Lock()
	c.client = pc
	c.connected = false
	c.closed = false
	c.connMu.Unlock()

	if err := waitToken(ctx, pc.Connect(), defaultConnectTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnectHandler runs asynchronously and may not have executed
	// yet, so mark the client connected here as well.
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return nil
}

// Reconnect discards the current session and dials the broker again.
// Tracked subscriptions are restored once the new session is up.
func (c *Client) Reconnect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt reconnect: %w", err)
	}

	c.connMu.Lock()
	old := c.client
	c.connected = false
	c.connMu.Unlock()

	if old != nil {
		old.Disconnect(0)
	}

	return c.dial(ctx)
}

// handleConnect is called when the connection is established.
func (c *Client) handleConnect(pc pahomqtt.Client) {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.restoreSubscriptions(pc)
	c.publishOnlineStatus(pc)

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost.
// It is not called for Close or Reconnect.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "error", err)
	}

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions re-subscribes to all tracked topics after reconnect.
func (c *Client) restoreSubscriptions(pc pahomqtt.Client) {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		token := pc.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
		go c.awaitToken(token, "restore subscription", sub.topic)
	}
}

// publishOnlineStatus publishes the bridge's retained online status.
func (c *Client) publishOnlineStatus(pc pahomqtt.Client) {
	payload := buildOnlinePayload(c.cfg.Broker.ClientID)
	pc.Publish(c.statusTopic, byte(c.cfg.QoS), true, payload)
}

// Close gracefully disconnects from the MQTT broker.
//
// It publishes a graceful offline status (distinct from the LWT crash
// status), then disconnects with a quiesce period for pending operations.
// Calling Close more than once is safe.
func (c *Client) Close() error {
	c.connMu.Lock()
	pc := c.client
	alreadyClosed := c.closed
	c.closed = true
	c.connMu.Unlock()

	if pc == nil || alreadyClosed {
		return nil
	}

	if c.IsConnected() {
		payload := buildOfflinePayload(c.cfg.Broker.ClientID)
		token := pc.Publish(c.statusTopic, byte(c.cfg.QoS), true, payload)
		token.WaitTimeout(defaultPublishTimeout)
	}

	pc.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// StatusTopic returns the topic carrying online/offline status.
func (c *Client) StatusTopic() string {
	return c.statusTopic
}

// SetOnConnect sets a callback to be invoked when connection is established.
// This is called on initial connect and on every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
// The error parameter describes why the connection was lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// pahoClient returns the current session, or nil before the first dial.
func (c *Client) pahoClient() pahomqtt.Client {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.client
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}

// awaitToken logs the outcome of an operation nobody waits on.
func (c *Client) awaitToken(token pahomqtt.Token, op, topic string) {
	if err := waitToken(context.Background(), token, defaultPublishTimeout); err != nil {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT "+op+" failed", "topic", topic, "error", err)
		}
	}
}

// waitToken blocks until token completes, ctx is cancelled or timeout passes.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
}
