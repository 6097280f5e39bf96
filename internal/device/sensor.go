package device

import (
	"context"
	"encoding/json"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nerrad567/smarthome-bridge/internal/bridge"
)

// Reading ranges produced by the simulated sensor.
const (
	minTemp     = 20.0
	maxTemp     = 30.0
	minHumidity = 40.0
	maxHumidity = 60.0

	// DefaultSampleInterval is used when no interval is configured.
	DefaultSampleInterval = 2 * time.Second
)

// Logger is the structured logger used by the simulated devices.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Reading is one environment sample.
type Reading struct {
	Temp     float64 `json:"temp"`
	Humidity float64 `json:"humidity"`
}

// Encode renders the reading as one newline-terminated serial record.
func (r Reading) Encode() []byte {
	data, err := json.Marshal(r)
	if err != nil {
		// Two finite floats always marshal.
		panic(err)
	}
	return append(data, '\n')
}

// Sensor is the simulated environment sensor at the far end of the serial
// link. It appends a reading to the telemetry channel on every tick.
type Sensor struct {
	link     *bridge.SerialLink
	interval time.Duration
	logger   Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewSensor creates a sensor writing to link every interval.
func NewSensor(link *bridge.SerialLink, interval time.Duration, logger Logger) *Sensor {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	if logger == nil {
		logger = noopLogger{}
	}
	seed := uint64(time.Now().UnixNano())
	return &Sensor{
		link:     link,
		interval: interval,
		logger:   logger,
		rng:      rand.New(rand.NewPCG(seed, seed>>1)),
	}
}

// Sample produces a reading with one decimal place of precision.
func (s *Sensor) Sample() Reading {
	s.rngMu.Lock()
	t := minTemp + s.rng.Float64()*(maxTemp-minTemp)
	h := minHumidity + s.rng.Float64()*(maxHumidity-minHumidity)
	s.rngMu.Unlock()

	return Reading{Temp: roundTenth(t), Humidity: roundTenth(h)}
}

// Emit samples once and appends the record to the telemetry channel.
func (s *Sensor) Emit() Reading {
	r := s.Sample()
	s.link.AppendReading(r.Encode())
	return r
}

// Run emits a reading every interval until ctx is cancelled.
func (s *Sensor) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("simulated sensor started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("simulated sensor stopped")
			return nil
		case <-ticker.C:
			r := s.Emit()
			s.logger.Debug("sensor reading", "temp", r.Temp, "humidity", r.Humidity)
		}
	}
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
