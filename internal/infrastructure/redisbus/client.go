package redisbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/smarthome-bridge/internal/infrastructure/config"
	"github.com/nerrad567/smarthome-bridge/internal/topic"
)

const (
	// defaultPublishQueue is used when cfg.PublishQueue is not set.
	defaultPublishQueue = 256

	// operationTimeout bounds a single PING or PUBLISH.
	operationTimeout = 5 * time.Second
)

// Logger interface for optional logging support.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// subscription is one tracked filter.
type subscription struct {
	filter  string
	spec    channelSpec
	handler func(topic string, payload []byte)
}

type outbound struct {
	topic   string
	payload []byte
}

// Client carries bridge traffic over Redis pub/sub instead of MQTT.
//
// Topics keep their MQTT shape and are used verbatim as channel names.
// Publishes are queued and sent by a single goroutine, so Publish never
// blocks on the network. A receive error is reported once through the
// disconnect callback; Reconnect opens a new session and re-subscribes.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	opts *redis.Options

	mu     sync.RWMutex
	rdb    *redis.Client
	pubsub *redis.PubSub

	connected atomic.Bool

	subs  map[string]subscription // keyed by Redis channel or glob
	subMu sync.RWMutex

	queue chan outbound

	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Connect dials Redis and verifies the session with PING.
//
// Parameters:
//   - ctx: Bounds the initial dial and PING
//   - cfg: Redis configuration; URL uses the redis:// or rediss:// scheme
//
// Returns:
//   - *Client: Connected client with its publish loop running
//   - error: ErrInvalidURL or ErrConnectionFailed
func Connect(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	size := cfg.PublishQueue
	if size <= 0 {
		size = defaultPublishQueue
	}

	c := &Client{
		opts:  opts,
		subs:  make(map[string]subscription),
		queue: make(chan outbound, size),
		done:  make(chan struct{}),
	}

	if err := c.dial(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go c.publishLoop()

	return c, nil
}

// dial opens a new Redis client and pub/sub session and starts receiving.
func (c *Client) dial(ctx context.Context) error {
	rdb := redis.NewClient(c.opts)

	pingCtx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		//nolint:errcheck // Connection never came up
		rdb.Close()
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return c.attach(ctx, rdb, rdb.Subscribe(ctx))
}

// attach installs a fresh session, replays the tracked subscriptions on it
// and starts its receive loop. A session that cannot restore every
// subscription is closed again.
func (c *Client) attach(ctx context.Context, rdb *redis.Client, ps *redis.PubSub) error {
	c.mu.Lock()
	c.rdb = rdb
	c.pubsub = ps
	c.mu.Unlock()

	if err := c.restoreSubscriptions(ctx, ps); err != nil {
		c.closeSession()
		return err
	}

	c.connected.Store(true)

	c.wg.Add(1)
	go c.receiveLoop(ps)

	return nil
}

// Reconnect tears down the current session and dials again, restoring
// every tracked subscription.
func (c *Client) Reconnect(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("redis reconnect: %w", err)
	}

	c.connected.Store(false)
	c.closeSession()

	if err := c.dial(ctx); err != nil {
		return err
	}
	c.logInfo("redis session re-established", "addr", c.opts.Addr)
	return nil
}

// Subscribe registers handler for an MQTT-style filter.
// Subscribing to a filter that is already tracked is a no-op.
func (c *Client) Subscribe(filter string, handler func(topic string, payload []byte)) error {
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	spec, err := translateFilter(filter)
	if err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	if _, exists := c.subs[spec.name]; exists {
		c.subMu.Unlock()
		return nil
	}
	c.subs[spec.name] = subscription{filter: filter, spec: spec, handler: handler}
	c.subMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := subscribeSpec(ctx, c.currentPubSub(), spec); err != nil {
		c.subMu.Lock()
		delete(c.subs, spec.name)
		c.subMu.Unlock()
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// Publish queues payload for topic. Only local failures are returned.
func (c *Client) Publish(topic string, payload []byte) error {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	if c.isClosed() {
		return ErrClosed
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	p := make([]byte, len(payload))
	copy(p, payload)

	select {
	case c.queue <- outbound{topic: topic, payload: p}:
		return nil
	default:
		return fmt.Errorf("%w: capacity %d", ErrPublishQueueFull, cap(c.queue))
	}
}

// IsConnected reports whether the current session is believed healthy.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// HealthCheck pings Redis.
func (c *Client) HealthCheck(ctx context.Context) error {
	rdb := c.currentClient()
	if rdb == nil || !c.IsConnected() {
		return ErrNotConnected
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check: %w", err)
	}
	return nil
}

// SubscriptionCount returns the number of tracked filters.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subs)
}

// SetOnDisconnect installs the callback invoked when the receive loop fails.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets the logger.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// Close stops the publisher, closes the session and releases the pool.
// Queued publishes that have not been sent are discarded.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.connected.Store(false)
		c.closeSession()
		c.wg.Wait()
	})
	return nil
}

// closeSession closes the pub/sub connection and the client pool.
func (c *Client) closeSession() {
	c.mu.Lock()
	ps, rdb := c.pubsub, c.rdb
	c.pubsub, c.rdb = nil, nil
	c.mu.Unlock()

	if ps != nil {
		//nolint:errcheck // Session is being discarded
		ps.Close()
	}
	if rdb != nil {
		//nolint:errcheck // Session is being discarded
		rdb.Close()
	}
}

// restoreSubscriptions replays every tracked filter on a new session.
func (c *Client) restoreSubscriptions(ctx context.Context, ps *redis.PubSub) error {
	c.subMu.RLock()
	specs := make([]channelSpec, 0, len(c.subs))
	for _, sub := range c.subs {
		specs = append(specs, sub.spec)
	}
	c.subMu.RUnlock()

	for _, spec := range specs {
		if err := subscribeSpec(ctx, ps, spec); err != nil {
			return fmt.Errorf("%w: restoring %s: %w", ErrSubscribeFailed, spec.name, err)
		}
	}
	return nil
}

func subscribeSpec(ctx context.Context, ps *redis.PubSub, spec channelSpec) error {
	if ps == nil {
		return ErrNotConnected
	}
	if spec.pattern {
		return ps.PSubscribe(ctx, spec.name)
	}
	return ps.Subscribe(ctx, spec.name)
}

// receiveLoop delivers messages from one pub/sub session until it fails or
// is replaced.
func (c *Client) receiveLoop(ps *redis.PubSub) {
	defer c.wg.Done()

	for {
		msg, err := ps.ReceiveMessage(context.Background())
		if err != nil {
			if c.isClosed() || c.currentPubSub() != ps {
				return
			}
			c.connected.Store(false)
			c.logError("redis receive failed", "error", err)
			c.notifyDisconnect(err)
			return
		}
		c.dispatch(msg)
	}
}

// dispatch routes one delivery to its subscription handler.
func (c *Client) dispatch(msg *redis.Message) {
	key := msg.Channel
	if msg.Pattern != "" {
		key = msg.Pattern
	}

	c.subMu.RLock()
	sub, ok := c.subs[key]
	c.subMu.RUnlock()
	if !ok {
		return
	}

	// Redis globs are wider than MQTT wildcards.
	if sub.spec.pattern && !topic.Match(sub.filter, msg.Channel) {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logError("redis handler panic recovered", "topic", msg.Channel, "panic", r)
		}
	}()
	sub.handler(msg.Channel, []byte(msg.Payload))
}

// publishLoop sends queued messages in order.
func (c *Client) publishLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		case out := <-c.queue:
			c.send(out)
		}
	}
}

func (c *Client) send(out outbound) {
	rdb := c.currentClient()
	if rdb == nil {
		c.logWarn("redis publish dropped, no session", "topic", out.topic)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()
	if err := rdb.Publish(ctx, out.topic, out.payload).Err(); err != nil {
		if errors.Is(err, redis.ErrClosed) {
			c.logWarn("redis publish dropped, session closed", "topic", out.topic)
			return
		}
		c.logWarn("redis publish failed", "topic", out.topic, "error", err)
	}
}

func (c *Client) notifyDisconnect(err error) {
	c.callbackMu.RLock()
	cb := c.onDisconnect
	c.callbackMu.RUnlock()
	if cb != nil {
		cb(err)
	}
}

func (c *Client) currentPubSub() *redis.PubSub {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pubsub
}

func (c *Client) currentClient() *redis.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rdb
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) logInfo(msg string, args ...any) {
	if l := c.getLogger(); l != nil {
		l.Info(msg, args...)
	}
}

func (c *Client) logWarn(msg string, args ...any) {
	if l := c.getLogger(); l != nil {
		l.Warn(msg, args...)
	}
}

func (c *Client) logError(msg string, args ...any) {
	if l := c.getLogger(); l != nil {
		l.Error(msg, args...)
	}
}
