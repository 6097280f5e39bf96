package bridge

import (
	"slices"
	"testing"
)

func TestTopics_Classify(t *testing.T) {
	topics := Topics{
		Telemetry: []string{"home/security/camera/event", "home/livingroom/environment", "home/#"},
		Control:   "home/livingroom/fan/control",
		Trigger:   "home/sensor/trigger",
		Response:  "home/livingroom/environment",
	}

	tests := []struct {
		topic string
		want  Class
	}{
		{"home/security/camera/event", ClassTelemetry},
		{"home/livingroom/environment", ClassTelemetry},
		{"home/livingroom/fan/control", ClassControl},
		{"home/sensor/trigger", ClassTrigger},
		{"home/garage/door", ClassTelemetry},
		{"office/printer", ClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			if got := topics.Classify(tt.topic); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.topic, got, tt.want)
			}
		})
	}
}

func TestTopics_Subscriptions(t *testing.T) {
	topics := Topics{
		Telemetry: []string{"home/a", "home/b", "home/a"},
		Control:   "home/c",
		Trigger:   "home/b",
		Response:  "home/r",
	}

	got := topics.Subscriptions()
	want := []string{"home/a", "home/b", "home/c"}
	if !slices.Equal(got, want) {
		t.Errorf("Subscriptions() = %v, want %v", got, want)
	}
}

func TestClass_String(t *testing.T) {
	for c, want := range map[Class]string{
		ClassTelemetry: "telemetry",
		ClassControl:   "control",
		ClassTrigger:   "trigger",
		ClassUnknown:   "unknown",
	} {
		if got := c.String(); got != want {
			t.Errorf("Class(%d).String() = %q, want %q", c, got, want)
		}
	}
}
