// Smarthome Bridge - live event relay for the home-automation demo.
//
// The bridge subscribes to the broker's sensor, camera and motion topics and
// pushes every event to connected websocket clients. Fan commands from the
// HTTP API are published on the control topic and relayed to the simulated
// device link; sensor triggers answer with the freshest buffered reading.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/smarthome-bridge/internal/api"
	"github.com/nerrad567/smarthome-bridge/internal/bridge"
	"github.com/nerrad567/smarthome-bridge/internal/device"
	"github.com/nerrad567/smarthome-bridge/internal/infrastructure/config"
	"github.com/nerrad567/smarthome-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/smarthome-bridge/internal/supervisor"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the components and blocks until ctx is cancelled or a
// component fails. It returns nil on clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting smarthome bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	transport, err := connectBroker(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("disconnecting from broker", "type", cfg.Broker.Type)
		if closeErr := transport.Close(); closeErr != nil {
			log.Error("error closing broker connection", "error", closeErr)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := bridge.NewMetrics(reg)

	link := bridge.NewSerialLink(cfg.Device.ChannelCapacity)
	eventBridge, err := bridge.New(bridge.Options{
		Broker:    transport,
		Topics:    topicsFromConfig(cfg.Topics),
		Link:      link,
		QueueSize: cfg.Bridge.QueueSize,
		Metrics:   metrics,
		Logger:    log.With("component", "bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating event bridge: %w", err)
	}
	if err := eventBridge.Start(ctx); err != nil {
		return fmt.Errorf("starting event bridge: %w", err)
	}
	defer func() {
		log.Info("stopping event bridge")
		eventBridge.Stop()
	}()
	log.Info("event bridge started",
		"telemetry", cfg.Topics.Telemetry,
		"control", cfg.Topics.Control,
		"trigger", cfg.Topics.Trigger,
	)

	control := bridge.NewControlEndpoint(transport, cfg.Topics.Control, metrics, log)

	sup := newSupervisor(cfg, transport, log)
	eventBridge.SetOnConnectionLost(sup.Report)
	transport.SetOnDisconnect(eventBridge.ReportConnectionLost)

	var (
		sensor *device.Sensor
		fan    *device.Fan
	)
	if cfg.Device.Enabled {
		devLog := log.With("component", "device")
		sensor = device.NewSensor(link, cfg.Device.SampleInterval, devLog)
		fan = device.NewFan(link, devLog)
		fan.SetOnChange(func(on bool) {
			devLog.Info("fan state changed", "on", on)
		})
	} else {
		log.Info("simulated device disabled")
	}

	server, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log.With("component", "api"),
		Bridge:     eventBridge,
		Control:    control,
		Gatherer:   reg,
		Fan:        fan,
		Supervisor: sup,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, transport, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sup.Run(gctx)
	})
	if sensor != nil {
		g.Go(func() error {
			return sensor.Run(gctx)
		})
		g.Go(func() error {
			return fan.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("broker connection: %w", err)
	}

	// Deferred calls run in reverse order: API server, event bridge, broker.
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SMARTHOME_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SMARTHOME_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func topicsFromConfig(t config.TopicsConfig) bridge.Topics {
	return bridge.Topics{
		Telemetry: t.Telemetry,
		Control:   t.Control,
		Trigger:   t.Trigger,
		Response:  t.Response,
	}
}

func newSupervisor(cfg *config.Config, transport brokerTransport, log *logging.Logger) *supervisor.Supervisor {
	supLog := log.With("component", "supervisor")
	sup := supervisor.New(supervisor.Config{
		Name:                cfg.Broker.Type,
		Restart:             transport.Reconnect,
		RestartDelay:        cfg.Supervisor.RestartDelay,
		MaxRestartAttempts:  cfg.Supervisor.MaxRestartAttempts,
		HealthCheckFunc:     transport.HealthCheck,
		HealthCheckInterval: cfg.Supervisor.HealthCheckInterval,
		OnRestart: func(attempt int) {
			supLog.Info("reconnecting to broker", "attempt", attempt)
		},
		OnRecovered: func() {
			supLog.Info("broker connection restored")
		},
	})
	sup.SetLogger(supLog)
	return sup
}

// healthCheck verifies the broker session and the API listener.
func healthCheck(ctx context.Context, transport brokerTransport, server *api.Server) error {
	if err := transport.HealthCheck(ctx); err != nil {
		return fmt.Errorf("broker: %w", err)
	}
	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
