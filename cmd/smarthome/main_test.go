package main

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/smarthome-bridge/internal/infrastructure/config"
	"github.com/nerrad567/smarthome-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/smarthome-bridge/internal/supervisor"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "test-config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("SMARTHOME_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want loading config failure", err)
	}
}

func TestRun_ValidationFailure(t *testing.T) {
	t.Setenv("SMARTHOME_CONFIG", writeTestConfig(t, `
broker:
  type: carrier-pigeon
`))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with an unknown broker type")
	}
}

func TestRun_MQTTUnreachable(t *testing.T) {
	t.Setenv("SMARTHOME_CONFIG", writeTestConfig(t, `
broker:
  type: mqtt
mqtt:
  broker:
    host: "127.0.0.1"
    port: 1
    client_id: "test-unreachable"
logging:
  level: error
  format: text
api:
  host: "127.0.0.1"
  port: 18081
`))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail when the broker is unreachable")
	}
	if !strings.Contains(err.Error(), "connecting to MQTT") {
		t.Errorf("run() error = %v, want MQTT connection failure", err)
	}
}

func TestRun_RedisUnreachable(t *testing.T) {
	t.Setenv("SMARTHOME_CONFIG", writeTestConfig(t, `
broker:
  type: redis
redis:
  url: "redis://127.0.0.1:1/0"
logging:
  level: error
  format: text
api:
  host: "127.0.0.1"
  port: 18082
`))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail when Redis is unreachable")
	}
	if !strings.Contains(err.Error(), "connecting to Redis") {
		t.Errorf("run() error = %v, want Redis connection failure", err)
	}
}

func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("SMARTHOME_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("SMARTHOME_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func TestTopicsFromConfig(t *testing.T) {
	cfg := config.Default().Topics
	topics := topicsFromConfig(cfg)

	if !reflect.DeepEqual(topics.Telemetry, cfg.Telemetry) {
		t.Errorf("Telemetry = %v, want %v", topics.Telemetry, cfg.Telemetry)
	}
	if topics.Control != "home/livingroom/fan/control" {
		t.Errorf("Control = %q", topics.Control)
	}
	if topics.Trigger != "home/sensor/trigger" {
		t.Errorf("Trigger = %q", topics.Trigger)
	}
	if topics.Response != "home/livingroom/environment" {
		t.Errorf("Response = %q", topics.Response)
	}
}

func TestNewSupervisor_NamedAfterBroker(t *testing.T) {
	cfg := config.Default()

	sup := newSupervisor(cfg, &mqttTransport{}, logging.Discard())
	stats := sup.Stats()
	if stats.Name != config.BrokerTypeMQTT {
		t.Errorf("Name = %q, want %q", stats.Name, config.BrokerTypeMQTT)
	}
	if stats.Status != supervisor.StatusStopped {
		t.Errorf("Status = %q, want %q before Run", stats.Status, supervisor.StatusStopped)
	}
}
