package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultQueueSize is the hand-off queue length used when Options.QueueSize
// is not set.
const DefaultQueueSize = 1024

// MessageHandler receives broker deliveries. It is an alias so transports
// can declare the plain func type without importing this package.
type MessageHandler = func(topic string, payload []byte)

// Broker is the publish/subscribe transport the bridge runs on.
// It is satisfied by an adapter over the MQTT client and by redisbus.Client.
type Broker interface {
	// Publish sends payload to topic. It must not block on the network.
	Publish(topic string, payload []byte) error

	// Subscribe registers handler for a topic pattern. Handlers run on the
	// transport's goroutine and must return quickly.
	Subscribe(topic string, handler MessageHandler) error

	// IsConnected reports whether the transport currently has a session.
	IsConnected() bool
}

// Logger is the structured logger used by the bridge.
// *logging.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options holds configuration for creating an EventBridge.
type Options struct {
	// Broker is the transport. Required.
	Broker Broker

	// Topics classifies incoming topics. Control, Trigger and Response are
	// required.
	Topics Topics

	// Link is the device link. A new link with DefaultChannelCapacity is
	// created when nil.
	Link *SerialLink

	// QueueSize bounds the hand-off queue between the broker callback and
	// the dispatcher. Defaults to DefaultQueueSize.
	QueueSize int

	// Metrics is optional. When nil, collectors are registered on a private
	// registry so the bridge never touches the global one.
	Metrics *Metrics

	// Logger is optional.
	Logger Logger
}

// Stats is a point-in-time snapshot of bridge counters.
type Stats struct {
	Running         bool      `json:"running"`
	Connected       bool      `json:"connected"`
	Sinks           int       `json:"sinks"`
	QueueDepth      int       `json:"queue_depth"`
	EventsReceived  uint64    `json:"events_received"`
	EventsDropped   uint64    `json:"events_dropped"`
	Broadcasts      uint64    `json:"broadcasts"`
	Deliveries      uint64    `json:"deliveries"`
	SinkFailures    uint64    `json:"sink_failures"`
	CommandsRouted  uint64    `json:"commands_routed"`
	SamplesSent     uint64    `json:"samples_published"`
	SamplesEmpty    uint64    `json:"samples_empty"`
	ConnectionLosts uint64    `json:"connection_losts"`
	StartedAt       time.Time `json:"started_at,omitzero"`
}

// EventBridge routes broker events to push-connection sinks and to the
// device link.
//
// Broker callbacks only copy the event onto a bounded queue. A single
// dispatcher goroutine classifies and handles events in arrival order, so
// sinks observe broadcasts in the order the broker delivered them.
//
// Thread Safety: All methods are safe for concurrent use.
type EventBridge struct {
	broker   Broker
	topics   Topics
	registry *SinkRegistry
	link     *SerialLink
	metrics  *Metrics
	logger   Logger

	queue chan Event

	running   atomic.Bool
	startedAt atomic.Int64

	hookMu           sync.RWMutex
	onConnectionLost func(error)

	received        atomic.Uint64
	dropped         atomic.Uint64
	broadcasts      atomic.Uint64
	deliveries      atomic.Uint64
	sinkFailures    atomic.Uint64
	commandsRouted  atomic.Uint64
	samplesSent     atomic.Uint64
	samplesEmpty    atomic.Uint64
	connectionLosts atomic.Uint64

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	ctxCancel context.CancelFunc
}

// New creates a bridge. Call Start to subscribe and begin dispatching.
//
// Link, Metrics and Logger are optional; a private link, a throwaway
// Prometheus registry and a no-op logger are used when they are nil.
//
// Parameters:
//   - opts: Broker and the control, trigger and response topics are required
//
// Returns:
//   - *EventBridge: Stopped bridge ready for Start
//   - error: If a required option is missing
func New(opts Options) (*EventBridge, error) {
	if opts.Broker == nil {
		return nil, errors.New("broker is required")
	}
	if opts.Topics.Control == "" || opts.Topics.Trigger == "" || opts.Topics.Response == "" {
		return nil, errors.New("control, trigger and response topics are required")
	}

	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	link := opts.Link
	if link == nil {
		link = NewSerialLink(DefaultChannelCapacity)
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	b := &EventBridge{
		broker:   opts.Broker,
		topics:   opts.Topics,
		registry: NewSinkRegistry(),
		link:     link,
		metrics:  metrics,
		logger:   logger,
		queue:    make(chan Event, queueSize),
		done:     make(chan struct{}),
	}
	b.registry.setHooks(b.sinkAdded, b.sinkRemoved)

	return b, nil
}

// Start launches the dispatcher and subscribes to every routed topic.
// It returns an error if any subscription fails; the bridge is then stopped.
func (b *EventBridge) Start(ctx context.Context) error {
	var err error
	b.startOnce.Do(func() {
		err = b.start(ctx)
	})
	return err
}

func (b *EventBridge) start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	b.ctxCancel = cancel

	b.running.Store(true)
	b.startedAt.Store(time.Now().UnixNano())

	b.wg.Add(1)
	go b.dispatch(runCtx)

	for _, pattern := range b.topics.Subscriptions() {
		if err := b.broker.Subscribe(pattern, b.HandleMessage); err != nil {
			b.Stop()
			return fmt.Errorf("subscribe to %s: %w", pattern, err)
		}
		b.logger.Info("subscribed", "topic", pattern, "class", b.topics.Classify(pattern).String())
	}

	b.logger.Info("event bridge started",
		"queue_size", cap(b.queue),
		"response_topic", b.topics.Response)
	return nil
}

// Stop halts dispatching and closes every registered sink.
// Events still queued are discarded.
func (b *EventBridge) Stop() {
	b.stopOnce.Do(func() {
		b.running.Store(false)
		close(b.done)
		if b.ctxCancel != nil {
			b.ctxCancel()
		}
		b.wg.Wait()
		b.registry.CloseAll()
		b.logger.Info("event bridge stopped")
	})
}

// HandleMessage is the broker callback. It never blocks: the event is copied
// onto the hand-off queue or dropped.
func (b *EventBridge) HandleMessage(topic string, payload []byte) {
	if err := b.Offer(NewEvent(topic, payload)); err != nil {
		b.logger.Warn("event dropped", "topic", topic, "error", err)
	}
}

// Offer enqueues an event for dispatch without blocking.
func (b *EventBridge) Offer(evt Event) error {
	if !b.running.Load() {
		return ErrNotRunning
	}
	select {
	case b.queue <- evt:
		return nil
	default:
		b.dropped.Add(1)
		b.metrics.EventsDropped.Inc()
		return fmt.Errorf("%w: capacity %d", ErrQueueFull, cap(b.queue))
	}
}

// Registry returns the sink registry push connections register with.
func (b *EventBridge) Registry() *SinkRegistry {
	return b.registry
}

// Link returns the device link.
func (b *EventBridge) Link() *SerialLink {
	return b.link
}

// Topics returns the routing table.
func (b *EventBridge) Topics() Topics {
	return b.topics
}

// Metrics returns the bridge collectors.
func (b *EventBridge) Metrics() *Metrics {
	return b.metrics
}

// SetOnConnectionLost installs the hook invoked by ReportConnectionLost.
// The bridge never reconnects by itself.
func (b *EventBridge) SetOnConnectionLost(fn func(error)) {
	b.hookMu.Lock()
	b.onConnectionLost = fn
	b.hookMu.Unlock()
}

// ReportConnectionLost surfaces a transport drop to the installed hook.
// The error passed to the hook wraps ErrConnectionLost.
func (b *EventBridge) ReportConnectionLost(cause error) {
	b.connectionLosts.Add(1)

	err := ErrConnectionLost
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrConnectionLost, cause)
	}
	b.logger.Error("broker connection lost", "error", err)

	b.hookMu.RLock()
	fn := b.onConnectionLost
	b.hookMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// Healthy reports whether the bridge is dispatching and the broker is
// connected.
func (b *EventBridge) Healthy() bool {
	return b.running.Load() && b.broker.IsConnected()
}

// Stats returns a snapshot of the bridge counters.
func (b *EventBridge) Stats() Stats {
	s := Stats{
		Running:         b.running.Load(),
		Connected:       b.broker.IsConnected(),
		Sinks:           b.registry.Len(),
		QueueDepth:      len(b.queue),
		EventsReceived:  b.received.Load(),
		EventsDropped:   b.dropped.Load(),
		Broadcasts:      b.broadcasts.Load(),
		Deliveries:      b.deliveries.Load(),
		SinkFailures:    b.sinkFailures.Load(),
		CommandsRouted:  b.commandsRouted.Load(),
		SamplesSent:     b.samplesSent.Load(),
		SamplesEmpty:    b.samplesEmpty.Load(),
		ConnectionLosts: b.connectionLosts.Load(),
	}
	if ns := b.startedAt.Load(); ns != 0 {
		s.StartedAt = time.Unix(0, ns)
	}
	return s
}

// dispatch drains the hand-off queue until the bridge stops.
func (b *EventBridge) dispatch(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case evt := <-b.queue:
			b.route(evt)
		}
	}
}

// route handles a single event according to its topic class.
func (b *EventBridge) route(evt Event) {
	class := b.topics.Classify(evt.Topic)
	if class == ClassUnknown {
		b.logger.Debug("ignoring unrouted topic", "topic", evt.Topic)
		return
	}

	b.received.Add(1)
	b.metrics.EventsReceived.WithLabelValues(class.String()).Inc()

	switch class {
	case ClassTelemetry:
		b.forwardTelemetry(evt)
	case ClassControl:
		b.routeCommand(evt)
	case ClassTrigger:
		b.sampleDevice(evt)
	}
}

// forwardTelemetry normalises the event and broadcasts it to every sink.
func (b *EventBridge) forwardTelemetry(evt Event) {
	env, err := Normalize(evt)
	if err != nil {
		b.metrics.DecodeFallbacks.Inc()
		b.logger.Debug("forwarding payload as text", "topic", evt.Topic, "error", err)
	}

	msg, err := env.Encode()
	if err != nil {
		b.logger.Error("encoding envelope", "topic", evt.Topic, "error", err)
		return
	}

	n := b.registry.Broadcast(msg)
	b.broadcasts.Add(1)
	b.deliveries.Add(uint64(n))
	b.metrics.Deliveries.Add(float64(n))
	b.logger.Debug("telemetry forwarded", "topic", evt.Topic, "sinks", n)
}

// routeCommand writes the control payload to the device link unchanged.
func (b *EventBridge) routeCommand(evt Event) {
	b.link.WriteCommand(evt.Payload)
	b.commandsRouted.Add(1)
	b.metrics.Commands.WithLabelValues("broker", "routed").Inc()
	b.logger.Info("command routed to device", "topic", evt.Topic, "command", string(bytes.TrimSpace(evt.Payload)))
}

// sampleDevice drains the device telemetry channel and publishes the newest
// record on the response topic. Nothing is published when the channel holds
// no usable record.
func (b *EventBridge) sampleDevice(evt Event) {
	record, ok := b.link.DrainToLatest()
	record = bytes.TrimSpace(record)
	if !ok || len(record) == 0 {
		b.samplesEmpty.Add(1)
		b.metrics.Samples.WithLabelValues("empty").Inc()
		b.logger.Debug("trigger received with no buffered device data", "topic", evt.Topic)
		return
	}

	if err := b.broker.Publish(b.topics.Response, record); err != nil {
		b.metrics.Samples.WithLabelValues("failed").Inc()
		b.logger.Warn("publishing device sample", "topic", b.topics.Response, "error", err)
		return
	}

	b.samplesSent.Add(1)
	b.metrics.Samples.WithLabelValues("published").Inc()
	b.logger.Debug("device sample published", "topic", b.topics.Response, "bytes", len(record))
}

func (b *EventBridge) sinkAdded(s Sink) {
	b.metrics.SinksConnected.Inc()
	b.logger.Info("sink connected", "sink", s.ID(), "sinks", b.registry.Len())
}

func (b *EventBridge) sinkRemoved(s Sink, failed bool, err error) {
	b.metrics.SinksConnected.Dec()
	if failed {
		b.sinkFailures.Add(1)
		b.metrics.SinkFailures.Inc()
		b.logger.Warn("sink removed after failed send", "sink", s.ID(), "error", err)
		return
	}
	b.logger.Info("sink disconnected", "sink", s.ID())
}
