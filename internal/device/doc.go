// Package device simulates the living-room hardware behind the serial link.
//
// The Sensor appends a JSON reading such as
//
//	{"temp":22.4,"humidity":51.0}
//
// to the link's telemetry channel on a fixed interval, so a trigger always
// finds a recent sample. The Fan consumes the command channel in FIFO order
// and tracks its on/off state for FAN_ON and FAN_OFF tokens.
//
// Both run until their context is cancelled and are safe to observe from
// other goroutines.
package device
