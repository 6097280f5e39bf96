package bridge

import (
	"fmt"
	"sort"
	"strings"
)

// Command is a device control token.
type Command string

// Enumerated fan commands.
const (
	CommandFanOn  Command = "FAN_ON"
	CommandFanOff Command = "FAN_OFF"
)

var fanActions = map[string]Command{
	"on":  CommandFanOn,
	"off": CommandFanOff,
}

// Publisher is the subset of the broker used by the control endpoint.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// ParseAction maps an external action name to its command token.
// Matching ignores case and surrounding whitespace.
func ParseAction(action string) (Command, error) {
	cmd, ok := fanActions[strings.ToLower(strings.TrimSpace(action))]
	if !ok {
		return "", fmt.Errorf("%w: %q (valid actions: %s)",
			ErrInvalidCommand, action, strings.Join(Actions(), ", "))
	}
	return cmd, nil
}

// Actions lists the accepted action names in sorted order.
func Actions() []string {
	out := make([]string, 0, len(fanActions))
	for a := range fanActions {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// ControlEndpoint translates external actions into commands published on the
// control topic. The bridge's own subscription then routes the command to the
// device link, so success here only means the publish was accepted locally.
type ControlEndpoint struct {
	publisher Publisher
	topic     string
	metrics   *Metrics
	logger    Logger
}

// NewControlEndpoint creates an endpoint publishing to topic.
// metrics and logger may be nil.
func NewControlEndpoint(pub Publisher, topic string, metrics *Metrics, logger Logger) *ControlEndpoint {
	if logger == nil {
		logger = noopLogger{}
	}
	return &ControlEndpoint{
		publisher: pub,
		topic:     topic,
		metrics:   metrics,
		logger:    logger,
	}
}

// Execute validates action and publishes the matching command.
// An invalid action returns ErrInvalidCommand without touching the broker.
func (c *ControlEndpoint) Execute(action string) (Command, error) {
	cmd, err := ParseAction(action)
	if err != nil {
		c.count("rejected")
		c.logger.Debug("control action rejected", "action", action)
		return "", err
	}

	if err := c.publisher.Publish(c.topic, []byte(cmd)); err != nil {
		c.count("failed")
		c.logger.Warn("control publish failed", "command", string(cmd), "error", err)
		return "", fmt.Errorf("publishing %s to %s: %w", cmd, c.topic, err)
	}

	c.count("accepted")
	c.logger.Info("control command published", "command", string(cmd), "topic", c.topic)
	return cmd, nil
}

// Topic returns the control topic commands are published on.
func (c *ControlEndpoint) Topic() string {
	return c.topic
}

func (c *ControlEndpoint) count(result string) {
	if c.metrics != nil {
		c.metrics.Commands.WithLabelValues("endpoint", result).Inc()
	}
}
