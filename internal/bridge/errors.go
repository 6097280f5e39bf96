package bridge

import "errors"

// Domain errors for the event bridge.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectionLost is reported through the connection-lost hook when the
	// broker transport drops. The bridge does not reconnect by itself.
	ErrConnectionLost = errors.New("bridge: broker connection lost")

	// ErrDecode marks a payload that could not be decoded as structured JSON.
	// It is recovered locally by forwarding the payload as text.
	ErrDecode = errors.New("bridge: payload decode failed")

	// ErrSinkClosed is returned by a Sink that has already been closed.
	ErrSinkClosed = errors.New("bridge: sink closed")

	// ErrSinkBufferFull is returned by a Sink whose outbound buffer is full.
	ErrSinkBufferFull = errors.New("bridge: sink buffer full")

	// ErrInvalidCommand is returned when a control action is not in the
	// enumerated command set. No broker traffic is generated.
	ErrInvalidCommand = errors.New("bridge: invalid command")

	// ErrQueueFull is returned when the hand-off queue cannot accept an event.
	ErrQueueFull = errors.New("bridge: event queue full")

	// ErrNotRunning is returned when an event is offered to a stopped bridge.
	ErrNotRunning = errors.New("bridge: not running")
)
