package bridge

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/smarthome-bridge/internal/topic"
)

// MockBroker implements Broker for testing.
type MockBroker struct {
	mu         sync.Mutex
	published  []mockPublish
	handlers   map[string]MessageHandler
	order      []string
	connected  bool
	publishErr error
	subErr     error
}

type mockPublish struct {
	Topic   string
	Payload []byte
}

func NewMockBroker() *MockBroker {
	return &MockBroker{
		connected: true,
		handlers:  make(map[string]MessageHandler),
	}
}

func (m *MockBroker) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	p := make([]byte, len(payload))
	copy(p, payload)
	m.published = append(m.published, mockPublish{Topic: topic, Payload: p})
	return nil
}

func (m *MockBroker) Subscribe(topic string, handler MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subErr != nil {
		return m.subErr
	}
	if _, ok := m.handlers[topic]; !ok {
		m.order = append(m.order, topic)
	}
	m.handlers[topic] = handler
	return nil
}

func (m *MockBroker) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockBroker) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockPublish, len(m.published))
	copy(out, m.published)
	return out
}

func (m *MockBroker) GetSubscriptions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// SimulateMessage delivers a message to the first subscription whose pattern
// matches name, the way a broker delivers once per matching client.
func (m *MockBroker) SimulateMessage(name string, payload []byte) bool {
	m.mu.Lock()
	var handler MessageHandler
	for _, pattern := range m.order {
		if topic.Match(pattern, name) {
			handler = m.handlers[pattern]
			break
		}
	}
	m.mu.Unlock()

	if handler == nil {
		return false
	}
	handler(name, payload)
	return true
}

// recordingSink implements Sink and records every accepted message.
type recordingSink struct {
	id string

	mu       sync.Mutex
	messages [][]byte
	failWith error
	closed   bool
	closes   int
}

func newRecordingSink(id string) *recordingSink {
	return &recordingSink{id: id}
}

func (s *recordingSink) ID() string { return s.id }

func (s *recordingSink) Send(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	if s.failWith != nil {
		return s.failWith
	}
	s.messages = append(s.messages, msg)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closes++
	return nil
}

func (s *recordingSink) fail(err error) {
	s.mu.Lock()
	s.failWith = err
	s.mu.Unlock()
}

func (s *recordingSink) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.messages))
	for i, m := range s.messages {
		out[i] = string(m)
	}
	return out
}

func (s *recordingSink) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var errBrokenPipe = errors.New("broken pipe")

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func sinkName(i int) string {
	return fmt.Sprintf("sink-%d", i)
}
