package bridge

// SerialLink models the buffered device connection: one channel carries
// device telemetry toward the bridge, the other carries control tokens toward
// the device. They share an implementation but are never mixed.
type SerialLink struct {
	telemetry *BufferedChannel
	commands  *BufferedChannel
	ready     chan struct{}
}

// NewSerialLink creates a link whose channels each retain at most capacity
// records.
func NewSerialLink(capacity int) *SerialLink {
	return &SerialLink{
		telemetry: NewBufferedChannel(capacity),
		commands:  NewBufferedChannel(capacity),
		ready:     make(chan struct{}, 1),
	}
}

// Telemetry returns the device-to-bridge channel.
func (l *SerialLink) Telemetry() *BufferedChannel { return l.telemetry }

// Commands returns the bridge-to-device channel.
func (l *SerialLink) Commands() *BufferedChannel { return l.commands }

// AppendReading is the device side of the telemetry channel.
func (l *SerialLink) AppendReading(record []byte) {
	l.telemetry.Append(record)
}

// DrainToLatest consumes all buffered telemetry and returns the newest record.
func (l *SerialLink) DrainToLatest() ([]byte, bool) {
	return l.telemetry.DrainToLatest()
}

// WriteCommand pushes a control token toward the device and wakes the
// device reader.
func (l *SerialLink) WriteCommand(record []byte) {
	l.commands.Append(record)
	select {
	case l.ready <- struct{}{}:
	default:
		// A wake-up is already pending; the reader drains everything.
	}
}

// CommandReady is signalled after WriteCommand. Readers should Pop until the
// command channel is empty after each signal.
func (l *SerialLink) CommandReady() <-chan struct{} {
	return l.ready
}
