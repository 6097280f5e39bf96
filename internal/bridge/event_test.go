package bridge

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		wantJSON    string
		wantDecode  bool
		wantErrKind error
	}{
		{
			name:     "structured object",
			payload:  `{"temp": 22.5}`,
			wantJSON: `{"topic":"home/livingroom/environment","payload":{"temp":22.5}}`,
		},
		{
			name:     "structured array",
			payload:  `[1, 2]`,
			wantJSON: `{"topic":"home/livingroom/environment","payload":[1,2]}`,
		},
		{
			name:     "plain text",
			payload:  "motion",
			wantJSON: `{"topic":"home/livingroom/environment","payload":"motion"}`,
		},
		{
			name:     "bare number stays text",
			payload:  "42",
			wantJSON: `{"topic":"home/livingroom/environment","payload":"42"}`,
		},
		{
			name:        "malformed structured payload falls back to text",
			payload:     `{"temp":`,
			wantJSON:    `{"topic":"home/livingroom/environment","payload":"{\"temp\":"}`,
			wantErrKind: ErrDecode,
		},
		{
			name:     "empty payload",
			payload:  "",
			wantJSON: `{"topic":"home/livingroom/environment","payload":""}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Normalize(NewEvent("home/livingroom/environment", []byte(tt.payload)))
			if tt.wantErrKind != nil {
				if !errors.Is(err, tt.wantErrKind) {
					t.Errorf("Normalize() error = %v, want %v", err, tt.wantErrKind)
				}
			} else if err != nil {
				t.Errorf("Normalize() unexpected error = %v", err)
			}

			got, err := env.Encode()
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if string(got) != tt.wantJSON {
				t.Errorf("Encode() = %s, want %s", got, tt.wantJSON)
			}
		})
	}
}

func TestNormalize_StructuredPayloadIsObject(t *testing.T) {
	env, err := Normalize(NewEvent("home/security/camera/event", []byte(`{"motion":true}`)))
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	data, _ := env.Encode()

	var decoded struct {
		Topic   string         `json:"topic"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("payload is not an object: %v", err)
	}
	if decoded.Payload["motion"] != true {
		t.Errorf("payload.motion = %v, want true", decoded.Payload["motion"])
	}
}

func TestNewEvent_CopiesPayload(t *testing.T) {
	buf := []byte("on")
	evt := NewEvent("t", buf)
	buf[0] = 'x'
	if string(evt.Payload) != "on" {
		t.Errorf("Payload = %q, want %q", evt.Payload, "on")
	}
	if evt.ReceivedAt.IsZero() {
		t.Error("ReceivedAt is zero")
	}
}
