// Package mqtt provides MQTT client connectivity for the smarthome bridge.
//
// This package manages:
//   - Connection to the broker, with an explicit Reconnect for supervision
//   - Message publishing, synchronous or fire-and-forget
//   - Topic subscriptions with wildcard support and filter validation
//   - Last Will and Testament (LWT) on the bridge status topic
//
// # Architecture
//
// Devices and the bridge share one public broker. The bridge subscribes to
// telemetry, control and trigger topics and publishes device samples and
// control commands back onto it.
//
//	Devices ↔ MQTT Broker ↔ smarthome bridge ↔ WebSocket clients
//
// # Reconnection
//
// Paho's reconnect loop is disabled unless mqtt.reconnect.auto is set.
// Instead the connection-lost callback is reported upward and a supervisor
// calls Reconnect, which dials a fresh session and restores every tracked
// subscription.
//
// # Security Considerations
//
//   - Public test brokers carry no authentication; never send secrets
//   - TLS is enabled with cfg.Broker.TLS=true (minimum TLS 1.2)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Topics.Status)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe("home/+/environment", 0,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	client.Publish(topic.FanControl("livingroom"), []byte("FAN_ON"), 0, false)
package mqtt
