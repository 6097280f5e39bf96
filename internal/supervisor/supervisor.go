package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status represents the current state of the supervised connection.
type Status string

const (
	StatusStopped      Status = "stopped"
	StatusRunning      Status = "running"
	StatusReconnecting Status = "reconnecting"
	StatusFailed       Status = "failed"
)

// ErrMaxRestarts is returned by Run when every restart attempt has failed.
var ErrMaxRestarts = errors.New("supervisor: max restart attempts reached")

// Config holds configuration for a supervised connection.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Restart re-establishes the connection. Required.
	Restart func(ctx context.Context) error

	// RestartDelay is the time to wait before each restart attempt.
	RestartDelay time.Duration

	// MaxRestartAttempts limits consecutive failed attempts. 0 means unlimited.
	MaxRestartAttempts int

	// HealthCheckFunc is called periodically while running. A failure is
	// treated like a reported connection loss. Optional.
	HealthCheckFunc func(ctx context.Context) error

	// HealthCheckInterval is how often to run health checks.
	HealthCheckInterval time.Duration

	// OnRestart is called before each restart attempt.
	OnRestart func(attempt int)

	// OnRecovered is called after a successful restart.
	OnRecovered func()
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(name string, restart func(ctx context.Context) error) Config {
	return Config{
		Name:                name,
		Restart:             restart,
		RestartDelay:        5 * time.Second,
		MaxRestartAttempts:  10,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Supervisor owns the retry policy for a broker connection.
//
// The connection itself never retries: it reports loss through Report, and
// Run restarts it with a fixed delay until it recovers or the attempt budget
// is spent.
type Supervisor struct {
	config Config
	logger Logger

	mu            sync.RWMutex
	status        Status
	attempts      int
	totalRestarts int
	lastError     error
	since         time.Time

	failures chan error
}

// New creates a supervisor with the given configuration.
// Zero RestartDelay and HealthCheckInterval fall back to 5s and 30s.
//
// Parameters:
//   - cfg: Supervisor configuration; Restart must be set before Run
//
// Returns:
//   - *Supervisor: Stopped supervisor with a no-op logger
func New(cfg Config) *Supervisor {
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = 5 * time.Second
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}

	return &Supervisor{
		config:   cfg,
		logger:   noopLogger{},
		status:   StatusStopped,
		failures: make(chan error, 1),
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// Report signals a connection loss. It never blocks; reports arriving while
// one is already pending are coalesced.
func (s *Supervisor) Report(err error) {
	select {
	case s.failures <- err:
	default:
	}
}

// Run supervises until ctx is cancelled (returning nil) or the restart
// budget is exhausted (returning an error wrapping ErrMaxRestarts).
func (s *Supervisor) Run(ctx context.Context) error {
	if s.config.Restart == nil {
		return fmt.Errorf("supervisor %s: restart function is required", s.config.Name)
	}

	s.setRunning()
	s.logger.Info("supervisor started", "name", s.config.Name)

	var healthC <-chan time.Time
	if s.config.HealthCheckFunc != nil {
		ticker := time.NewTicker(s.config.HealthCheckInterval)
		defer ticker.Stop()
		healthC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.setStatus(StatusStopped)
			s.logger.Info("supervisor stopped", "name", s.config.Name)
			return nil

		case err := <-s.failures:
			if rerr := s.restart(ctx, err); rerr != nil {
				return rerr
			}

		case <-healthC:
			if err := s.checkHealth(ctx); err != nil {
				s.logger.Warn("health check failed", "name", s.config.Name, "error", err)
				if rerr := s.restart(ctx, err); rerr != nil {
					return rerr
				}
			}
		}
	}
}

func (s *Supervisor) checkHealth(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, s.config.HealthCheckInterval/2)
	defer cancel()
	return s.config.HealthCheckFunc(checkCtx)
}

// restart re-establishes the connection until it succeeds, ctx ends or the
// budget runs out.
func (s *Supervisor) restart(ctx context.Context, cause error) error {
	s.mu.Lock()
	s.status = StatusReconnecting
	s.lastError = cause
	s.mu.Unlock()

	s.logger.Warn("connection lost, restarting",
		"name", s.config.Name,
		"error", cause,
	)

	for {
		s.mu.Lock()
		s.attempts++
		attempt := s.attempts
		lastErr := s.lastError
		s.mu.Unlock()

		if s.config.MaxRestartAttempts > 0 && attempt > s.config.MaxRestartAttempts {
			s.setStatus(StatusFailed)
			s.logger.Error("max restart attempts reached",
				"name", s.config.Name,
				"attempts", s.config.MaxRestartAttempts,
			)
			return fmt.Errorf("%w: %s after %d attempts: %w",
				ErrMaxRestarts, s.config.Name, s.config.MaxRestartAttempts, lastErr)
		}

		s.logger.Info("restarting connection",
			"name", s.config.Name,
			"attempt", attempt,
			"delay", s.config.RestartDelay,
		)
		if s.config.OnRestart != nil {
			s.config.OnRestart(attempt)
		}

		select {
		case <-ctx.Done():
			s.setStatus(StatusStopped)
			return nil
		case <-time.After(s.config.RestartDelay):
		}

		err := s.config.Restart(ctx)
		if err == nil {
			s.mu.Lock()
			s.totalRestarts++
			s.mu.Unlock()
			s.setRunning()

			// A loss reported by the session we just replaced is stale.
			select {
			case <-s.failures:
			default:
			}

			s.logger.Info("connection restored", "name", s.config.Name, "attempt", attempt)
			if s.config.OnRecovered != nil {
				s.config.OnRecovered()
			}
			return nil
		}

		s.mu.Lock()
		s.lastError = err
		s.mu.Unlock()
		s.logger.Warn("restart attempt failed",
			"name", s.config.Name,
			"attempt", attempt,
			"error", err,
		)
	}
}

func (s *Supervisor) setRunning() {
	s.mu.Lock()
	s.status = StatusRunning
	s.attempts = 0
	s.since = time.Now()
	s.mu.Unlock()
}

func (s *Supervisor) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Status returns the current status.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// LastError returns the most recent loss or restart failure.
func (s *Supervisor) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// Stats returns statistics about the supervised connection.
type Stats struct {
	Name           string        `json:"name"`
	Status         Status        `json:"status"`
	Uptime         time.Duration `json:"uptime,omitempty"`
	Restarts       int           `json:"restarts"`
	FailedAttempts int           `json:"failed_attempts"`
	LastError      string        `json:"last_error,omitempty"`
}

// Stats returns current statistics.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Name:     s.config.Name,
		Status:   s.status,
		Restarts: s.totalRestarts,
	}
	if s.status == StatusRunning {
		stats.Uptime = time.Since(s.since)
	} else if s.attempts > 0 {
		stats.FailedAttempts = s.attempts
	}
	if s.lastError != nil {
		stats.LastError = s.lastError.Error()
	}
	return stats
}
