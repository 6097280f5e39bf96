package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Event is a message received from the broker. It is never mutated after
// construction; the payload is copied out of the transport's buffer.
type Event struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// NewEvent copies payload so the transport may reuse its buffer.
func NewEvent(topic string, payload []byte) Event {
	p := make([]byte, len(payload))
	copy(p, payload)
	return Event{
		Topic:      topic,
		Payload:    p,
		ReceivedAt: time.Now(),
	}
}

// Envelope is the normalised shape pushed to every Sink.
//
// Payload is either a json.RawMessage (structured) or a string (raw text).
type Envelope struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// Normalize builds the envelope for an event.
//
// Structured decoding is attempted only when the trimmed payload looks like a
// JSON object or array. A payload that looks structured but does not parse is
// forwarded as text and the returned error wraps ErrDecode; the envelope is
// always usable.
func Normalize(evt Event) (Envelope, error) {
	env := Envelope{Topic: evt.Topic, Payload: string(evt.Payload)}

	trimmed := bytes.TrimSpace(evt.Payload)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return env, nil
	}

	if !json.Valid(trimmed) {
		return env, fmt.Errorf("%w: topic %s", ErrDecode, evt.Topic)
	}

	env.Payload = json.RawMessage(trimmed)
	return env, nil
}

// Encode serialises the envelope for the push-connection wire.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}
