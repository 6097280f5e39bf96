package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/smarthome-bridge/internal/bridge"
	"github.com/nerrad567/smarthome-bridge/internal/device"
	"github.com/nerrad567/smarthome-bridge/internal/supervisor"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	Bridge        bridge.Stats      `json:"bridge"`
	Supervisor    *supervisor.Stats `json:"supervisor,omitempty"`
	Fan           *device.FanStats  `json:"fan,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// handleMetrics returns a JSON snapshot for dashboards that do not scrape
// Prometheus.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Bridge: s.bridge.Stats(),
	}

	if s.supervisor != nil {
		st := s.supervisor.Stats()
		metrics.Supervisor = &st
	}
	if s.fan != nil {
		fs := s.fan.Stats()
		metrics.Fan = &fs
	}

	writeJSON(w, http.StatusOK, metrics)
}
