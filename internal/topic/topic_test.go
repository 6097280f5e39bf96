package topic

import "testing"

func TestBuilders(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"Environment", Environment("livingroom"), "home/livingroom/environment"},
		{"FanControl", FanControl("livingroom"), "home/livingroom/fan/control"},
		{"CameraEvent", CameraEvent("security"), "home/security/camera/event"},
		{"Motion", Motion("entrance"), "home/entrance/motion"},
		{"SensorTrigger", SensorTrigger(), "home/sensor/trigger"},
		{"BridgeStatus", BridgeStatus(), "home/bridge/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s() = %q, want %q", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"home/livingroom/environment", "home/livingroom/environment", true},
		{"home/livingroom/environment", "home/kitchen/environment", false},
		{"home/+/environment", "home/kitchen/environment", true},
		{"home/+/environment", "home/kitchen/fan/environment", false},
		{"home/#", "home/kitchen/fan/control", true},
		{"home/#", "home", true},
		{"#", "anything/at/all", true},
		{"home/#/fan", "home/x/fan", false},
		{"home/+", "home", false},
		{"home/kitchen", "home/kitchen/extra", false},
	}

	for _, tt := range tests {
		t.Run(tt.filter+"|"+tt.topic, func(t *testing.T) {
			if got := Match(tt.filter, tt.topic); got != tt.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
			}
		})
	}
}
