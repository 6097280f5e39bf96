package bridge

import (
	"sync"
)

// Sink is a live push-connection. Send must not block: it either queues the
// message for the connection's own writer or fails.
type Sink interface {
	// ID identifies the sink in logs.
	ID() string

	// Send queues msg for delivery. Any error means the sink is unusable.
	Send(msg []byte) error

	// Close releases the underlying connection. It must be idempotent.
	Close() error
}

// SinkRegistry is the set of connected sinks.
//
// Broadcast runs under the read lock and Remove takes the write lock, so a
// sink whose Remove has returned is never offered a later message. A sink
// that fails a send is removed and closed before Broadcast returns.
//
// Thread Safety: All methods are safe for concurrent use.
type SinkRegistry struct {
	mu    sync.RWMutex
	sinks map[Sink]struct{}

	// onRemove observes removals (connected-sink gauge, logging). Optional.
	onRemove func(s Sink, failed bool, err error)
	onAdd    func(s Sink)
}

// NewSinkRegistry creates an empty registry.
//
// Returns:
//   - *SinkRegistry: Registry with no sinks and no observers
func NewSinkRegistry() *SinkRegistry {
	return &SinkRegistry{
		sinks: make(map[Sink]struct{}),
	}
}

// Add registers a newly connected sink. Adding the same sink twice is a
// caller error and is not guarded.
func (r *SinkRegistry) Add(s Sink) {
	r.mu.Lock()
	r.sinks[s] = struct{}{}
	onAdd := r.onAdd
	r.mu.Unlock()

	if onAdd != nil {
		onAdd(s)
	}
}

// Remove unregisters a sink. Removing an absent sink is a no-op.
// It reports whether the sink was present.
func (r *SinkRegistry) Remove(s Sink) bool {
	r.mu.Lock()
	_, existed := r.sinks[s]
	delete(r.sinks, s)
	onRemove := r.onRemove
	r.mu.Unlock()

	if existed && onRemove != nil {
		onRemove(s, false, nil)
	}
	return existed
}

// Contains reports whether s is currently registered.
func (r *SinkRegistry) Contains(s Sink) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sinks[s]
	return ok
}

// Len returns the number of registered sinks.
func (r *SinkRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}

// Broadcast offers msg to every registered sink and returns how many
// accepted it. Send failures are swallowed: the failing sink is removed and
// closed, and delivery to the others continues.
func (r *SinkRegistry) Broadcast(msg []byte) int {
	delivered := 0
	var failed []sinkFailure

	r.mu.RLock()
	for s := range r.sinks {
		if err := s.Send(msg); err != nil {
			failed = append(failed, sinkFailure{sink: s, err: err})
			continue
		}
		delivered++
	}
	r.mu.RUnlock()

	for _, f := range failed {
		r.evict(f.sink, f.err)
	}

	return delivered
}

// CloseAll removes and closes every sink. Used on shutdown.
func (r *SinkRegistry) CloseAll() {
	r.mu.Lock()
	sinks := make([]Sink, 0, len(r.sinks))
	for s := range r.sinks {
		sinks = append(sinks, s)
	}
	r.sinks = make(map[Sink]struct{})
	onRemove := r.onRemove
	r.mu.Unlock()

	for _, s := range sinks {
		//nolint:errcheck // Best-effort close on shutdown
		s.Close()
		if onRemove != nil {
			onRemove(s, false, nil)
		}
	}
}

// evict removes a sink after a failed send and closes it. A concurrent
// Remove may already have taken it out, in which case only the close runs.
func (r *SinkRegistry) evict(s Sink, err error) {
	r.mu.Lock()
	_, existed := r.sinks[s]
	delete(r.sinks, s)
	onRemove := r.onRemove
	r.mu.Unlock()

	//nolint:errcheck // Sink is already unusable
	s.Close()

	if existed && onRemove != nil {
		onRemove(s, true, err)
	}
}

// setHooks installs observers. Called once by the bridge before use.
func (r *SinkRegistry) setHooks(onAdd func(Sink), onRemove func(Sink, bool, error)) {
	r.mu.Lock()
	r.onAdd = onAdd
	r.onRemove = onRemove
	r.mu.Unlock()
}

type sinkFailure struct {
	sink Sink
	err  error
}
