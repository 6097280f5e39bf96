package device

import "errors"

// Domain errors for the simulated device.
var (
	// ErrUnknownCommand is returned for a control token the fan does not know.
	// The token is consumed and the fan state is unchanged.
	ErrUnknownCommand = errors.New("device: unknown command")
)
