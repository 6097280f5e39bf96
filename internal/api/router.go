package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/smarthome-bridge/internal/bridge"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Live telemetry push
	r.Get(s.wsCfg.Path, s.handleWebSocket)

	r.With(s.rateLimitMiddleware).Post("/api/fan/{action}", s.handleFanControl)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
	})

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return r
}

// fanResponse is the body of a successful fan command.
type fanResponse struct {
	Status  string `json:"status"`
	Command string `json:"command"`
}

// handleFanControl publishes FAN_ON or FAN_OFF for the "on" and "off"
// actions. Success means the local publish was accepted, not that the
// device acted on it.
func (s *Server) handleFanControl(w http.ResponseWriter, r *http.Request) {
	if s.control == nil {
		writeUnavailable(w, "control endpoint not configured")
		return
	}

	action := chi.URLParam(r, "action")
	cmd, err := s.control.Execute(action)
	if err != nil {
		if errors.Is(err, bridge.ErrInvalidCommand) {
			writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("fan command publish failed",
			"action", action,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeUnavailable(w, "command could not be published")
		return
	}

	writeJSON(w, http.StatusOK, fanResponse{
		Status:  "success",
		Command: string(cmd),
	})
}

// healthResponse is the body of GET /api/v1/health.
type healthResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	BrokerConnected bool   `json:"broker_connected"`
	Sinks           int    `json:"sinks"`
}

// handleHealth reports 200 while the bridge is dispatching with a live
// broker session and 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stats := s.bridge.Stats()
	resp := healthResponse{
		Status:          "ok",
		Version:         s.version,
		BrokerConnected: stats.Connected,
		Sinks:           stats.Sinks,
	}

	status := http.StatusOK
	if !s.bridge.Healthy() {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
