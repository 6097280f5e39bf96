package bridge

import (
	"sync"
	"testing"
)

func TestSinkRegistry_AddRemove(t *testing.T) {
	r := NewSinkRegistry()
	a := newRecordingSink("a")

	r.Add(a)
	if !r.Contains(a) || r.Len() != 1 {
		t.Fatalf("after Add: Contains = %v, Len = %d", r.Contains(a), r.Len())
	}

	if !r.Remove(a) {
		t.Error("Remove() = false for registered sink")
	}
	if r.Remove(a) {
		t.Error("Remove() = true for absent sink")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestSinkRegistry_BroadcastEvictsFailingSink(t *testing.T) {
	r := NewSinkRegistry()
	a := newRecordingSink("a")
	b := newRecordingSink("b")
	a.fail(errBrokenPipe)
	r.Add(a)
	r.Add(b)

	var removed []string
	var failedFlags []bool
	r.setHooks(nil, func(s Sink, failed bool, _ error) {
		removed = append(removed, s.ID())
		failedFlags = append(failedFlags, failed)
	})

	n := r.Broadcast([]byte("m1"))
	if n != 1 {
		t.Errorf("Broadcast() delivered = %d, want 1", n)
	}
	if r.Contains(a) {
		t.Error("failing sink still registered")
	}
	if !a.IsClosed() {
		t.Error("failing sink was not closed")
	}
	if got := b.Messages(); len(got) != 1 || got[0] != "m1" {
		t.Errorf("healthy sink messages = %v, want [m1]", got)
	}
	if len(removed) != 1 || removed[0] != "a" || !failedFlags[0] {
		t.Errorf("onRemove calls = %v %v, want [a] [true]", removed, failedFlags)
	}

	r.Broadcast([]byte("m2"))
	if got := b.Messages(); len(got) != 2 {
		t.Errorf("healthy sink messages = %v, want 2", got)
	}
}

func TestSinkRegistry_BroadcastEmpty(t *testing.T) {
	r := NewSinkRegistry()
	if n := r.Broadcast([]byte("x")); n != 0 {
		t.Errorf("Broadcast() on empty registry = %d, want 0", n)
	}
}

func TestSinkRegistry_NoDeliveryAfterRemove(t *testing.T) {
	r := NewSinkRegistry()
	a := newRecordingSink("a")
	r.Add(a)
	r.Broadcast([]byte("before"))
	r.Remove(a)
	r.Broadcast([]byte("after"))

	got := a.Messages()
	if len(got) != 1 || got[0] != "before" {
		t.Errorf("messages = %v, want [before]", got)
	}
}

func TestSinkRegistry_ConcurrentMutationDuringBroadcast(t *testing.T) {
	r := NewSinkRegistry()
	stable := newRecordingSink("stable")
	r.Add(stable)

	const rounds = 200
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range rounds {
			s := newRecordingSink(sinkName(i))
			r.Add(s)
			r.Remove(s)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range rounds {
			r.Broadcast([]byte("tick"))
		}
	}()

	wg.Wait()

	if got := len(stable.Messages()); got != rounds {
		t.Errorf("stable sink received %d messages, want %d", got, rounds)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestSinkRegistry_NoDeliveryAfterConcurrentRemove(t *testing.T) {
	r := NewSinkRegistry()

	const n = 50
	sinks := make([]*recordingSink, n)
	for i := range sinks {
		sinks[i] = newRecordingSink(sinkName(i))
		r.Add(sinks[i])
	}

	stop := make(chan struct{})
	var broadcaster sync.WaitGroup
	broadcaster.Add(1)
	go func() {
		defer broadcaster.Done()
		for {
			select {
			case <-stop:
				return
			default:
				r.Broadcast([]byte("tick"))
			}
		}
	}()

	// Count what each sink held the moment its Remove returned.
	seen := make([]int, n)
	var removers sync.WaitGroup
	for i, s := range sinks {
		removers.Add(1)
		go func() {
			defer removers.Done()
			r.Remove(s)
			seen[i] = len(s.Messages())
		}()
	}
	removers.Wait()

	// Keep broadcasting for a while so a late delivery would show up.
	for range 100 {
		r.Broadcast([]byte("late"))
	}
	close(stop)
	broadcaster.Wait()

	for i, s := range sinks {
		if got := len(s.Messages()); got != seen[i] {
			t.Errorf("sink %s received %d messages after Remove returned", s.ID(), got-seen[i])
		}
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestSinkRegistry_CloseAll(t *testing.T) {
	r := NewSinkRegistry()
	a := newRecordingSink("a")
	b := newRecordingSink("b")
	r.Add(a)
	r.Add(b)

	r.CloseAll()

	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
	if !a.IsClosed() || !b.IsClosed() {
		t.Error("CloseAll() left a sink open")
	}
}
