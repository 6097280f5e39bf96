package bridge

import "sync"

// DefaultChannelCapacity is the retention cap used when none is given.
const DefaultChannelCapacity = 64

// BufferedChannel is a FIFO of opaque records standing in for one direction
// of a device link.
//
// Append never fails; once the retention cap is reached the oldest record is
// discarded, since consumers of telemetry only ever want the latest one.
// DrainToLatest holds the lock for the whole drain, so records appended
// while a drain is in progress land after the snapshot and are left for the
// next call.
//
// Thread Safety: All methods are safe for concurrent use.
type BufferedChannel struct {
	mu       sync.Mutex
	records  [][]byte
	capacity int
	dropped  uint64
}

// NewBufferedChannel creates a channel retaining at most capacity records.
//
// Parameters:
//   - capacity: Retention cap; a non-positive value selects DefaultChannelCapacity
//
// Returns:
//   - *BufferedChannel: Empty channel
func NewBufferedChannel(capacity int) *BufferedChannel {
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}
	return &BufferedChannel{
		records:  make([][]byte, 0, capacity),
		capacity: capacity,
	}
}

// Append adds a record at the tail. The record is copied.
func (c *BufferedChannel) Append(record []byte) {
	r := make([]byte, len(record))
	copy(r, record)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.records) >= c.capacity {
		c.records[0] = nil
		c.records = c.records[1:]
		c.dropped++
	}
	c.records = append(c.records, r)
}

// HasPending reports whether at least one record is buffered.
func (c *BufferedChannel) HasPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records) > 0
}

// Len returns the number of buffered records.
func (c *BufferedChannel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Dropped returns how many records were discarded by the retention cap.
func (c *BufferedChannel) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Pop removes and returns the oldest record.
func (c *BufferedChannel) Pop() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.popLocked()
}

// DrainToLatest pops records until the channel is empty and returns the last
// one popped, or false if the channel was already empty.
func (c *BufferedChannel) DrainToLatest() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var latest []byte
	found := false
	for {
		r, ok := c.popLocked()
		if !ok {
			break
		}
		latest, found = r, true
	}
	return latest, found
}

func (c *BufferedChannel) popLocked() ([]byte, bool) {
	if len(c.records) == 0 {
		return nil, false
	}
	r := c.records[0]
	c.records[0] = nil
	c.records = c.records[1:]
	if len(c.records) == 0 {
		// Release the shifted backing array once drained.
		c.records = make([][]byte, 0, c.capacity)
	}
	return r, true
}
