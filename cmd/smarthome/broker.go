package main

import (
	"context"
	"fmt"

	"github.com/nerrad567/smarthome-bridge/internal/bridge"
	"github.com/nerrad567/smarthome-bridge/internal/infrastructure/config"
	"github.com/nerrad567/smarthome-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/smarthome-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/smarthome-bridge/internal/infrastructure/redisbus"
)

// brokerTransport is what the process needs from a broker client: the
// bridge-facing pub/sub surface plus the hooks the supervisor drives.
type brokerTransport interface {
	bridge.Broker
	Reconnect(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	SetOnDisconnect(callback func(err error))
	Close() error
}

// connectBroker dials the transport selected by broker.type.
func connectBroker(ctx context.Context, cfg *config.Config, log *logging.Logger) (brokerTransport, error) {
	switch cfg.Broker.Type {
	case config.BrokerTypeRedis:
		client, err := redisbus.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connecting to Redis: %w", err)
		}
		client.SetLogger(log.With("component", "redis"))
		log.Info("Redis connected")
		return client, nil

	default:
		client, err := mqtt.Connect(cfg.MQTT, cfg.Topics.Status)
		if err != nil {
			return nil, fmt.Errorf("connecting to MQTT: %w", err)
		}
		client.SetLogger(log.With("component", "mqtt"))
		client.SetOnConnect(func() {
			log.Info("MQTT session established")
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		return &mqttTransport{Client: client, qos: byte(cfg.MQTT.QoS)}, nil
	}
}

// mqttTransport adapts the infrastructure MQTT client to bridge.Broker.
// The differences are the fixed QoS and the handler signature:
//   - Infrastructure mqtt: func(topic, payload []byte) error
//   - Bridge expects: func(topic, payload []byte)
type mqttTransport struct {
	*mqtt.Client
	qos byte
}

// Publish implements bridge.Broker. It does not wait for the broker ack so
// the bridge dispatcher and HTTP handlers never block on the network.
func (t *mqttTransport) Publish(topic string, payload []byte) error {
	return t.Client.PublishAsync(topic, payload, t.qos, false)
}

// Subscribe implements bridge.Broker.
func (t *mqttTransport) Subscribe(topic string, handler bridge.MessageHandler) error {
	return t.Client.Subscribe(topic, t.qos, func(tp string, payload []byte) error {
		handler(tp, payload)
		return nil
	})
}

var (
	_ brokerTransport = (*mqttTransport)(nil)
	_ brokerTransport = (*redisbus.Client)(nil)
)
