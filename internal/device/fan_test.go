package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/smarthome-bridge/internal/bridge"
)

func TestFan_Apply(t *testing.T) {
	tests := []struct {
		name    string
		tokens  []string
		wantOn  bool
		wantErr bool
	}{
		{"on", []string{"FAN_ON"}, true, false},
		{"on then off", []string{"FAN_ON", "FAN_OFF"}, false, false},
		{"trailing newline", []string{"FAN_ON\n"}, true, false},
		{"unknown token", []string{"FAN_TURBO"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFan(bridge.NewSerialLink(4), nil)
			var err error
			for _, tok := range tt.tokens {
				err = f.Apply([]byte(tok))
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("Apply() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrUnknownCommand) {
				t.Errorf("Apply() error = %v, want ErrUnknownCommand", err)
			}
			if f.IsOn() != tt.wantOn {
				t.Errorf("IsOn() = %v, want %v", f.IsOn(), tt.wantOn)
			}
		})
	}
}

func TestFan_OnChange(t *testing.T) {
	f := NewFan(bridge.NewSerialLink(4), nil)

	var changes []bool
	f.SetOnChange(func(on bool) { changes = append(changes, on) })

	for _, tok := range []string{"FAN_ON", "FAN_ON", "FAN_OFF"} {
		if err := f.Apply([]byte(tok)); err != nil {
			t.Fatalf("Apply(%s) error = %v", tok, err)
		}
	}

	if len(changes) != 2 || changes[0] != true || changes[1] != false {
		t.Errorf("changes = %v, want [true false]", changes)
	}
	if s := f.Stats(); s.Applied != 3 || s.Rejected != 0 {
		t.Errorf("Stats() = %+v, want 3 applied", s)
	}
}

func TestFan_RunConsumesInOrder(t *testing.T) {
	link := bridge.NewSerialLink(8)
	f := NewFan(link, nil)

	var mu sync.Mutex
	var seen []bool
	f.SetOnChange(func(on bool) {
		mu.Lock()
		seen = append(seen, on)
		mu.Unlock()
	})

	// Queued before Run starts.
	link.WriteCommand([]byte("FAN_ON"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	link.WriteCommand([]byte("BOGUS"))
	link.WriteCommand([]byte("FAN_OFF"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := f.Stats(); s.Applied == 2 && s.Rejected == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != true || seen[1] != false {
		t.Errorf("state changes = %v, want [true false]", seen)
	}
	if f.IsOn() {
		t.Error("fan on after FAN_OFF")
	}
}
