package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// Publish sends a message and waits for the broker to acknowledge it.
//
// QoS Levels:
//   - 0: At most once (fire and forget)
//   - 1: At least once (guaranteed delivery, may duplicate)
//   - 2: Exactly once (guaranteed, no duplicates, higher overhead)
//
// Use retained only for state topics such as the bridge status.
//
// Example:
//
//	err := client.Publish(topic.FanControl("livingroom"), []byte("FAN_ON"), 0, false)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	pc, err := c.preparePublish(topic, payload, qos)
	if err != nil {
		return err
	}

	token := pc.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishAsync validates and hands a message to paho without waiting for
// the broker. Only local failures are returned; a later delivery failure is
// logged.
//
// Use this from goroutines that must not stall on the network.
func (c *Client) PublishAsync(topic string, payload []byte, qos byte, retained bool) error {
	pc, err := c.preparePublish(topic, payload, qos)
	if err != nil {
		return err
	}

	token := pc.Publish(topic, qos, retained, payload)
	go c.awaitToken(token, "publish", topic)
	return nil
}

// preparePublish validates a publish and returns the live session.
func (c *Client) preparePublish(topic string, payload []byte, qos byte) (pahomqtt.Client, error) {
	if err := ValidateTopic(topic); err != nil {
		return nil, err
	}
	if qos > maxQoS {
		return nil, ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return nil, fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	return c.pahoClient(), nil
}
