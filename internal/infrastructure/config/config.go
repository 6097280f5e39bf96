package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/smarthome-bridge/internal/topic"
)

// Supported broker transports.
const (
	BrokerTypeMQTT  = "mqtt"
	BrokerTypeRedis = "redis"
)

// Config is the root configuration structure for the smarthome bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Broker     BrokerConfig     `yaml:"broker"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Redis      RedisConfig      `yaml:"redis"`
	Topics     TopicsConfig     `yaml:"topics"`
	Bridge     BridgeConfig     `yaml:"bridge"`
	Device     DeviceConfig     `yaml:"device"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Logging    LoggingConfig    `yaml:"logging"`
	Security   SecurityConfig   `yaml:"security"`
}

// BrokerConfig selects the pub/sub transport.
type BrokerConfig struct {
	Type string `yaml:"type"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
//
// Auto is off by default: connection loss is reported to the supervisor,
// which owns the retry policy.
type MQTTReconnectConfig struct {
	Auto         bool `yaml:"auto"`
	InitialDelay int  `yaml:"initial_delay"`
	MaxDelay     int  `yaml:"max_delay"`
}

// RedisConfig contains Redis pub/sub settings, used when broker.type is "redis".
type RedisConfig struct {
	URL          string `yaml:"url"`
	PublishQueue int    `yaml:"publish_queue"`
}

// TopicsConfig assigns broker topics to the bridge's topic classes.
// Topic patterns may use MQTT wildcards (+ and #).
type TopicsConfig struct {
	Telemetry []string `yaml:"telemetry"`
	Control   string   `yaml:"control"`
	Trigger   string   `yaml:"trigger"`
	Response  string   `yaml:"response"`
	Status    string   `yaml:"status"`
}

// BridgeConfig contains event bridge settings.
type BridgeConfig struct {
	// QueueSize bounds the hand-off queue between the broker delivery
	// context and the dispatcher.
	QueueSize int `yaml:"queue_size"`
}

// DeviceConfig contains settings for the simulated sensor/actuator link.
type DeviceConfig struct {
	Enabled         bool          `yaml:"enabled"`
	SampleInterval  time.Duration `yaml:"sample_interval"`
	ChannelCapacity int           `yaml:"channel_capacity"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	WriteTimeout   int    `yaml:"write_timeout"`
	SendBuffer     int    `yaml:"send_buffer"`
}

// SupervisorConfig contains broker connection supervision settings.
type SupervisorConfig struct {
	RestartDelay        time.Duration `yaml:"restart_delay"`
	MaxRestartAttempts  int           `yaml:"max_restart_attempts"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig contains rate limiting settings for the control endpoint.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SMARTHOME_SECTION_KEY
// For example: SMARTHOME_MQTT_HOST, SMARTHOME_API_HOST
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with the defaults of the reference deployment:
// a public Mosquitto broker, the living-room sensor topics, and the fan
// control topic.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{Type: BrokerTypeMQTT},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "test.mosquitto.org",
				Port:     1883,
				ClientID: "smarthome-bridge",
			},
			QoS: 0,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Redis: RedisConfig{
			URL:          "redis://localhost:6379/0",
			PublishQueue: 256,
		},
		Topics: TopicsConfig{
			Telemetry: []string{
				topic.CameraEvent("security"),
				topic.Environment("livingroom"),
				topic.Motion("entrance"),
			},
			Control:  topic.FanControl("livingroom"),
			Trigger:  topic.SensorTrigger(),
			Response: topic.Environment("livingroom"),
			Status:   topic.BridgeStatus(),
		},
		Bridge: BridgeConfig{QueueSize: 1024},
		Device: DeviceConfig{
			Enabled:         true,
			SampleInterval:  2 * time.Second,
			ChannelCapacity: 64,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			WriteTimeout:   10,
			SendBuffer:     256,
		},
		Supervisor: SupervisorConfig{
			RestartDelay:        5 * time.Second,
			MaxRestartAttempts:  10,
			HealthCheckInterval: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
				Burst:             10,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SMARTHOME_BROKER_TYPE"); v != "" {
		cfg.Broker.Type = v
	}

	// MQTT
	if v := os.Getenv("SMARTHOME_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SMARTHOME_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SMARTHOME_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Redis
	if v := os.Getenv("SMARTHOME_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}

	// API
	if v := os.Getenv("SMARTHOME_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// Logging
	if v := os.Getenv("SMARTHOME_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// All problems are collected and reported together.
func (c *Config) Validate() error {
	var errs []string

	switch c.Broker.Type {
	case BrokerTypeMQTT:
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
	case BrokerTypeRedis:
		if c.Redis.URL == "" {
			errs = append(errs, "redis.url is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("broker.type must be %q or %q", BrokerTypeMQTT, BrokerTypeRedis))
	}

	// Topic classes
	if len(c.Topics.Telemetry) == 0 {
		errs = append(errs, "topics.telemetry must list at least one topic")
	}
	for _, t := range c.Topics.Telemetry {
		if t == "" {
			errs = append(errs, "topics.telemetry entries cannot be empty")
			break
		}
	}
	if c.Topics.Control == "" {
		errs = append(errs, "topics.control is required")
	}
	if c.Topics.Trigger == "" {
		errs = append(errs, "topics.trigger is required")
	}
	if c.Topics.Response == "" {
		errs = append(errs, "topics.response is required")
	}

	if c.Bridge.QueueSize < 1 {
		errs = append(errs, "bridge.queue_size must be positive")
	}

	if c.Device.Enabled {
		if c.Device.SampleInterval <= 0 {
			errs = append(errs, "device.sample_interval must be positive")
		}
		if c.Device.ChannelCapacity < 1 {
			errs = append(errs, "device.channel_capacity must be positive")
		}
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.WebSocket.Path == "" || !strings.HasPrefix(c.WebSocket.Path, "/") {
		errs = append(errs, "websocket.path must start with /")
	}
	if c.WebSocket.SendBuffer < 1 {
		errs = append(errs, "websocket.send_buffer must be positive")
	}

	if c.Supervisor.MaxRestartAttempts < 0 {
		errs = append(errs, "supervisor.max_restart_attempts cannot be negative")
	}

	if c.Security.RateLimit.Enabled && c.Security.RateLimit.RequestsPerMinute < 1 {
		errs = append(errs, "security.rate_limit.requests_per_minute must be positive when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
