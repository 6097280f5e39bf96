package bridge

import "github.com/nerrad567/smarthome-bridge/internal/topic"

// Class is the routing class of a broker topic.
type Class int

// Topic classes. A topic matching more than one class is routed by the
// first match in the order control, trigger, telemetry.
const (
	ClassUnknown Class = iota
	ClassTelemetry
	ClassControl
	ClassTrigger
)

// String returns the metric/log label for a class.
func (c Class) String() string {
	switch c {
	case ClassTelemetry:
		return "telemetry"
	case ClassControl:
		return "control"
	case ClassTrigger:
		return "trigger"
	default:
		return "unknown"
	}
}

// Topics assigns broker topics to classes.
type Topics struct {
	// Telemetry patterns are fanned out to every sink.
	Telemetry []string

	// Control carries command tokens for the device link.
	Control string

	// Trigger requests an on-demand sample from the device link.
	Trigger string

	// Response receives the latest drained sample.
	Response string
}

// Classify returns the class of a concrete topic.
func (t Topics) Classify(name string) Class {
	if t.Control != "" && topic.Match(t.Control, name) {
		return ClassControl
	}
	if t.Trigger != "" && topic.Match(t.Trigger, name) {
		return ClassTrigger
	}
	for _, pattern := range t.Telemetry {
		if topic.Match(pattern, name) {
			return ClassTelemetry
		}
	}
	return ClassUnknown
}

// Subscriptions returns the distinct patterns the bridge must subscribe to.
func (t Topics) Subscriptions() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		if p == "" {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, p := range t.Telemetry {
		add(p)
	}
	add(t.Control)
	add(t.Trigger)
	return out
}
