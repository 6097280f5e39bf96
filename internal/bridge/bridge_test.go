package bridge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testTopics() Topics {
	return Topics{
		Telemetry: []string{
			"home/security/camera/event",
			"home/livingroom/environment",
			"home/entrance/motion",
		},
		Control:  "home/livingroom/fan/control",
		Trigger:  "home/sensor/trigger",
		Response: "home/livingroom/environment",
	}
}

func newTestBridge(t *testing.T) (*EventBridge, *MockBroker, *Metrics) {
	t.Helper()
	broker := NewMockBroker()
	metrics := NewMetrics(prometheus.NewRegistry())
	b, err := New(Options{
		Broker:  broker,
		Topics:  testTopics(),
		Link:    NewSerialLink(16),
		Metrics: metrics,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(b.Stop)
	return b, broker, metrics
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"missing broker", Options{Topics: testTopics()}},
		{"missing control", Options{Broker: NewMockBroker(), Topics: Topics{Trigger: "t", Response: "r"}}},
		{"missing trigger", Options{Broker: NewMockBroker(), Topics: Topics{Control: "c", Response: "r"}}},
		{"missing response", Options{Broker: NewMockBroker(), Topics: Topics{Control: "c", Trigger: "t"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts); err == nil {
				t.Error("New() expected error")
			}
		})
	}
}

func TestEventBridge_StartSubscribes(t *testing.T) {
	_, broker, _ := newTestBridge(t)

	want := []string{
		"home/security/camera/event",
		"home/livingroom/environment",
		"home/entrance/motion",
		"home/livingroom/fan/control",
		"home/sensor/trigger",
	}
	if got := broker.GetSubscriptions(); !slices.Equal(got, want) {
		t.Errorf("subscriptions = %v, want %v", got, want)
	}
}

func TestEventBridge_StartSubscribeFailure(t *testing.T) {
	broker := NewMockBroker()
	broker.subErr = errors.New("not connected")
	b, err := New(Options{Broker: broker, Topics: testTopics()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := b.Start(context.Background()); err == nil {
		t.Fatal("Start() expected error when subscribe fails")
	}
	if b.Stats().Running {
		t.Error("bridge still running after failed Start")
	}
}

func TestEventBridge_TelemetryFanOutEvictsFailingSink(t *testing.T) {
	b, broker, metrics := newTestBridge(t)

	sinkA := newRecordingSink("A")
	sinkB := newRecordingSink("B")
	sinkA.fail(errBrokenPipe)
	b.Registry().Add(sinkA)
	b.Registry().Add(sinkB)

	broker.SimulateMessage("home/livingroom/environment", []byte(`{"temp": 22.5}`))

	want := `{"topic":"home/livingroom/environment","payload":{"temp":22.5}}`
	waitFor(t, "delivery to sink B", func() bool { return len(sinkB.Messages()) == 1 })
	if got := sinkB.Messages()[0]; got != want {
		t.Errorf("sink B received %s, want %s", got, want)
	}

	waitFor(t, "eviction of sink A", func() bool { return !b.Registry().Contains(sinkA) })
	if !sinkA.IsClosed() {
		t.Error("sink A was not closed")
	}
	if got := testutil.ToFloat64(metrics.SinkFailures); got != 1 {
		t.Errorf("sink failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.SinksConnected); got != 1 {
		t.Errorf("sinks connected = %v, want 1", got)
	}
}

func TestEventBridge_BroadcastOrderFollowsArrival(t *testing.T) {
	b, broker, _ := newTestBridge(t)
	sink := newRecordingSink("ordered")
	b.Registry().Add(sink)

	const n = 100
	for i := range n {
		broker.SimulateMessage("home/entrance/motion", []byte(fmt.Sprint(i)))
	}

	waitFor(t, "all deliveries", func() bool { return len(sink.Messages()) == n })
	for i, msg := range sink.Messages() {
		want := fmt.Sprintf(`{"topic":"home/entrance/motion","payload":"%d"}`, i)
		if msg != want {
			t.Fatalf("message %d = %s, want %s", i, msg, want)
		}
	}
}

func TestEventBridge_MalformedPayloadForwardedAsText(t *testing.T) {
	b, broker, metrics := newTestBridge(t)
	sink := newRecordingSink("s")
	b.Registry().Add(sink)

	broker.SimulateMessage("home/security/camera/event", []byte(`{"motion":`))

	waitFor(t, "delivery", func() bool { return len(sink.Messages()) == 1 })
	want := `{"topic":"home/security/camera/event","payload":"{\"motion\":"}`
	if got := sink.Messages()[0]; got != want {
		t.Errorf("received %s, want %s", got, want)
	}
	if got := testutil.ToFloat64(metrics.DecodeFallbacks); got != 1 {
		t.Errorf("decode fallbacks = %v, want 1", got)
	}
}

func TestEventBridge_ControlRoutesToDevice(t *testing.T) {
	b, broker, _ := newTestBridge(t)
	sink := newRecordingSink("s")
	b.Registry().Add(sink)

	broker.SimulateMessage("home/livingroom/fan/control", []byte("FAN_ON"))

	waitFor(t, "command on device link", func() bool { return b.Link().Commands().HasPending() })
	got, _ := b.Link().Commands().Pop()
	if string(got) != "FAN_ON" {
		t.Errorf("device received %q, want FAN_ON", got)
	}
	if n := len(broker.GetPublished()); n != 0 {
		t.Errorf("control event published %d messages, want 0", n)
	}
	if n := len(sink.Messages()); n != 0 {
		t.Errorf("control event broadcast %d messages, want 0", n)
	}
}

func TestEventBridge_TriggerPublishesLatestSample(t *testing.T) {
	b, broker, metrics := newTestBridge(t)

	for _, r := range []string{"r1\n", "r2\n", "r3\n"} {
		b.Link().AppendReading([]byte(r))
	}

	broker.SimulateMessage("home/sensor/trigger", []byte("sample"))

	waitFor(t, "response publish", func() bool { return len(broker.GetPublished()) == 1 })
	pub := broker.GetPublished()[0]
	if pub.Topic != "home/livingroom/environment" || string(pub.Payload) != "r3" {
		t.Errorf("published %s %q, want response topic %q", pub.Topic, pub.Payload, "r3")
	}
	if b.Link().Telemetry().HasPending() {
		t.Error("telemetry channel not drained")
	}

	broker.SimulateMessage("home/sensor/trigger", []byte("sample"))
	waitFor(t, "empty sample", func() bool {
		return testutil.ToFloat64(metrics.Samples.WithLabelValues("empty")) == 1
	})
	if n := len(broker.GetPublished()); n != 1 {
		t.Errorf("published %d messages after empty trigger, want 1", n)
	}
}

func TestEventBridge_TriggerSkipsBlankRecord(t *testing.T) {
	b, broker, metrics := newTestBridge(t)
	b.Link().AppendReading([]byte("   \n"))

	broker.SimulateMessage("home/sensor/trigger", nil)

	waitFor(t, "empty sample", func() bool {
		return testutil.ToFloat64(metrics.Samples.WithLabelValues("empty")) == 1
	})
	if n := len(broker.GetPublished()); n != 0 {
		t.Errorf("published %d messages for blank record, want 0", n)
	}
}

func TestEventBridge_TriggerPublishFailure(t *testing.T) {
	b, broker, metrics := newTestBridge(t)
	broker.publishErr = errors.New("not connected")
	b.Link().AppendReading([]byte("r1"))

	broker.SimulateMessage("home/sensor/trigger", nil)

	waitFor(t, "failed sample", func() bool {
		return testutil.ToFloat64(metrics.Samples.WithLabelValues("failed")) == 1
	})
}

func TestEventBridge_UnroutedTopicIgnored(t *testing.T) {
	b, broker, _ := newTestBridge(t)
	sink := newRecordingSink("s")
	b.Registry().Add(sink)

	if err := b.Offer(NewEvent("office/printer", []byte("jam"))); err != nil {
		t.Fatalf("Offer() error = %v", err)
	}
	broker.SimulateMessage("home/entrance/motion", []byte("marker"))

	waitFor(t, "marker delivery", func() bool { return len(sink.Messages()) == 1 })
	if got := sink.Messages()[0]; got != `{"topic":"home/entrance/motion","payload":"marker"}` {
		t.Errorf("unexpected delivery %s", got)
	}
	if got := b.Stats().EventsReceived; got != 1 {
		t.Errorf("EventsReceived = %d, want 1", got)
	}
}

func TestEventBridge_OfferWhenStopped(t *testing.T) {
	b, err := New(Options{Broker: NewMockBroker(), Topics: testTopics()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Offer(NewEvent("home/entrance/motion", nil)); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Offer() before Start error = %v, want ErrNotRunning", err)
	}
}

func TestEventBridge_OfferQueueFull(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	b, err := New(Options{
		Broker:    NewMockBroker(),
		Topics:    testTopics(),
		QueueSize: 1,
		Metrics:   metrics,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	// Accept events without a dispatcher draining them.
	b.running.Store(true)

	if err := b.Offer(NewEvent("home/entrance/motion", nil)); err != nil {
		t.Fatalf("first Offer() error = %v", err)
	}
	if err := b.Offer(NewEvent("home/entrance/motion", nil)); !errors.Is(err, ErrQueueFull) {
		t.Errorf("second Offer() error = %v, want ErrQueueFull", err)
	}
	if got := testutil.ToFloat64(metrics.EventsDropped); got != 1 {
		t.Errorf("events dropped = %v, want 1", got)
	}
}

func TestEventBridge_ReportConnectionLost(t *testing.T) {
	b, _, _ := newTestBridge(t)

	var got error
	b.SetOnConnectionLost(func(err error) { got = err })
	b.ReportConnectionLost(errors.New("EOF"))

	if !errors.Is(got, ErrConnectionLost) {
		t.Errorf("hook error = %v, want ErrConnectionLost", got)
	}
	if b.Stats().ConnectionLosts != 1 {
		t.Errorf("ConnectionLosts = %d, want 1", b.Stats().ConnectionLosts)
	}
}

func TestEventBridge_StopClosesSinks(t *testing.T) {
	b, broker, _ := newTestBridge(t)
	sink := newRecordingSink("s")
	b.Registry().Add(sink)

	b.Stop()
	b.Stop()

	if !sink.IsClosed() {
		t.Error("sink not closed on Stop")
	}
	if b.Healthy() {
		t.Error("Healthy() = true after Stop")
	}
	if broker.SimulateMessage("home/entrance/motion", []byte("late")); len(sink.Messages()) != 0 {
		t.Error("sink received a message after Stop")
	}
}

func TestEventBridge_Stats(t *testing.T) {
	b, _, _ := newTestBridge(t)

	s := b.Stats()
	if !s.Running || !s.Connected {
		t.Errorf("Stats() running=%v connected=%v, want true true", s.Running, s.Connected)
	}
	if s.StartedAt.IsZero() {
		t.Error("StartedAt is zero")
	}
	if !b.Healthy() {
		t.Error("Healthy() = false for running bridge")
	}
}
