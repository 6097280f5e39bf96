// Package topic names the smarthome broker topics and matches MQTT-style
// filters against concrete topics.
//
// Device topics follow home/{area}/{kind}[/{subkind}], e.g.
// home/livingroom/environment or home/livingroom/fan/control. The same
// names are used whichever transport carries them.
package topic

import (
	"fmt"
	"strings"
)

// Prefix is the root of every smarthome topic.
const Prefix = "home"

// Environment returns the environment telemetry topic for a room.
//
// Example: home/livingroom/environment
func Environment(room string) string {
	return fmt.Sprintf("%s/%s/environment", Prefix, room)
}

// FanControl returns the fan command topic for a room.
//
// Example: home/livingroom/fan/control
func FanControl(room string) string {
	return fmt.Sprintf("%s/%s/fan/control", Prefix, room)
}

// CameraEvent returns the camera event topic for a zone.
//
// Example: home/security/camera/event
func CameraEvent(zone string) string {
	return fmt.Sprintf("%s/%s/camera/event", Prefix, zone)
}

// Motion returns the motion sensor topic for an area.
//
// Example: home/entrance/motion
func Motion(area string) string {
	return fmt.Sprintf("%s/%s/motion", Prefix, area)
}

// SensorTrigger returns the topic that requests an on-demand device sample.
func SensorTrigger() string {
	return Prefix + "/sensor/trigger"
}

// BridgeStatus returns the retained online/offline status topic.
func BridgeStatus() string {
	return Prefix + "/bridge/status"
}

// Match reports whether topic matches an MQTT-style filter.
//
//   - "+" matches exactly one level
//   - "#" matches the remaining levels (including none) and must be last
func Match(filter, topic string) bool {
	if filter == topic {
		return true
	}

	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")

	for i, level := range f {
		if level == "#" {
			return i == len(f)-1
		}
		if i >= len(t) {
			return false
		}
		if level != "+" && level != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}
