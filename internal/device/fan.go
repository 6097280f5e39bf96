package device

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/smarthome-bridge/internal/bridge"
)

// Fan is the simulated actuator. It consumes the control channel in FIFO
// order and tracks its on/off state.
//
// Thread Safety: All methods are safe for concurrent use.
type Fan struct {
	link   *bridge.SerialLink
	logger Logger

	mu       sync.RWMutex
	on       bool
	applied  uint64
	rejected uint64
	onChange func(on bool)
}

// NewFan creates a fan reading commands from link.
func NewFan(link *bridge.SerialLink, logger Logger) *Fan {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Fan{link: link, logger: logger}
}

// SetOnChange installs a callback fired when the fan changes state.
func (f *Fan) SetOnChange(fn func(on bool)) {
	f.mu.Lock()
	f.onChange = fn
	f.mu.Unlock()
}

// Apply executes one control token. Surrounding whitespace is ignored.
func (f *Fan) Apply(token []byte) error {
	cmd := bridge.Command(bytes.TrimSpace(token))

	var on bool
	switch cmd {
	case bridge.CommandFanOn:
		on = true
	case bridge.CommandFanOff:
		on = false
	default:
		f.mu.Lock()
		f.rejected++
		f.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownCommand, string(cmd))
	}

	f.mu.Lock()
	changed := f.on != on
	f.on = on
	f.applied++
	cb := f.onChange
	f.mu.Unlock()

	if changed && cb != nil {
		cb(on)
	}
	return nil
}

// Run consumes commands until ctx is cancelled.
func (f *Fan) Run(ctx context.Context) error {
	f.logger.Info("simulated fan started")

	// Commands may already be queued before Run starts.
	f.drain()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("simulated fan stopped")
			return nil
		case <-f.link.CommandReady():
			f.drain()
		}
	}
}

func (f *Fan) drain() {
	for {
		token, ok := f.link.Commands().Pop()
		if !ok {
			return
		}
		if err := f.Apply(token); err != nil {
			f.logger.Warn("ignoring control token", "error", err)
			continue
		}
		f.logger.Info("fan state", "on", f.IsOn())
	}
}

// IsOn reports the current fan state.
func (f *Fan) IsOn() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.on
}

// FanStats summarises commands handled by the fan.
type FanStats struct {
	On       bool   `json:"on"`
	Applied  uint64 `json:"applied"`
	Rejected uint64 `json:"rejected"`
}

// Stats returns a snapshot of the fan state.
func (f *Fan) Stats() FanStats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return FanStats{On: f.on, Applied: f.applied, Rejected: f.rejected}
}
