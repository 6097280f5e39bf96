package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the bridge.
type Metrics struct {
	EventsReceived  *prometheus.CounterVec
	EventsDropped   prometheus.Counter
	DecodeFallbacks prometheus.Counter
	Deliveries      prometheus.Counter
	SinkFailures    prometheus.Counter
	SinksConnected  prometheus.Gauge
	Samples         *prometheus.CounterVec
	Commands        *prometheus.CounterVec
}

// NewMetrics registers the bridge collectors with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh
// prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "smarthome_bridge_events_received_total",
			Help: "Broker events accepted by the bridge, by topic class",
		}, []string{"class"}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "smarthome_bridge_events_dropped_total",
			Help: "Broker events dropped because the hand-off queue was full",
		}),
		DecodeFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "smarthome_bridge_decode_fallbacks_total",
			Help: "Telemetry payloads forwarded as text after a failed JSON decode",
		}),
		Deliveries: f.NewCounter(prometheus.CounterOpts{
			Name: "smarthome_bridge_deliveries_total",
			Help: "Envelopes accepted by push-connection sinks",
		}),
		SinkFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "smarthome_bridge_sink_failures_total",
			Help: "Sinks removed after a failed send",
		}),
		SinksConnected: f.NewGauge(prometheus.GaugeOpts{
			Name: "smarthome_bridge_sinks_connected",
			Help: "Currently registered push-connection sinks",
		}),
		Samples: f.NewCounterVec(prometheus.CounterOpts{
			Name: "smarthome_bridge_trigger_samples_total",
			Help: "Trigger events by outcome (published, empty, failed)",
		}, []string{"result"}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "smarthome_bridge_commands_total",
			Help: "Control commands by direction and outcome",
		}, []string{"source", "result"}),
	}
}
