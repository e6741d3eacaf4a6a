// Package api provides the HTTP surface described in the spec: metrics,
// status, a functional probe, health, and consumer control.
//
// # Endpoints
//
//   - GET  /metrics/kafka           - JSON monitoring snapshot
//   - GET  /metrics/kafka/summary   - plain text summary
//   - POST /metrics/kafka/reset     - zero all counters
//   - GET  /status                  - condensed operational view
//   - POST /process-wifi-scan       - functional probe (transform + deliver one record)
//   - GET  /actuator/health/liveness
//   - GET  /actuator/health/readiness
//   - POST /consumer/pause
//   - POST /consumer/resume
//   - GET  /consumer/state
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pilot-net/icmp-mon/internal/control"
	"github.com/pilot-net/icmp-mon/internal/delivery"
	"github.com/pilot-net/icmp-mon/internal/health"
	"github.com/pilot-net/icmp-mon/internal/monitoring"
	"github.com/pilot-net/icmp-mon/internal/transform"
)

const statusVersion = "1"

// Server is the HTTP API server.
type Server struct {
	state    *monitoring.State
	arbiter  *health.Arbiter
	control  *control.Control
	pipeline *transform.Pipeline
	engine   *delivery.Engine
	logger   *slog.Logger
	mux      *http.ServeMux
}

// Config wires the components the API surface reads from and acts on.
type Config struct {
	State    *monitoring.State
	Arbiter  *health.Arbiter
	Control  *control.Control
	Pipeline *transform.Pipeline
	Engine   *delivery.Engine
	Logger   *slog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		state:    cfg.State,
		arbiter:  cfg.Arbiter,
		control:  cfg.Control,
		pipeline: cfg.Pipeline,
		engine:   cfg.Engine,
		logger:   cfg.Logger,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Mux returns the underlying ServeMux for registering additional routes.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /metrics/kafka", s.handleMetrics)
	s.mux.HandleFunc("GET /metrics/kafka/summary", s.handleMetricsSummary)
	s.mux.HandleFunc("POST /metrics/kafka/reset", s.handleMetricsReset)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("POST /process-wifi-scan", s.handleProcessWifiScan)
	s.mux.HandleFunc("GET /actuator/health/liveness", s.handleLiveness)
	s.mux.HandleFunc("GET /actuator/health/readiness", s.handleReadiness)
	s.mux.HandleFunc("POST /consumer/pause", s.handleConsumerPause)
	s.mux.HandleFunc("POST /consumer/resume", s.handleConsumerResume)
	s.mux.HandleFunc("GET /consumer/state", s.handleConsumerState)
}

// =============================================================================
// METRICS
// =============================================================================

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.state.Snapshot())
}

func (s *Server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Snapshot()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "WiFi Scan Ingestion Metrics Summary\n")
	fmt.Fprintf(w, "====================================\n")
	fmt.Fprintf(w, "Total consumed:    %d\n", snap.TotalConsumed)
	fmt.Fprintf(w, "Total processed:   %d\n", snap.TotalProcessed)
	fmt.Fprintf(w, "Total failed:      %d\n", snap.TotalFailed)
	fmt.Fprintf(w, "Success rate:      %s\n", formatPercent(snap.SuccessRate))
	fmt.Fprintf(w, "Error rate:        %s\n", formatPercent(snap.ErrorRate))
	fmt.Fprintf(w, "Consumption rate:  %s msgs/s\n", formatFloat(snap.ConsumptionRate))
	fmt.Fprintf(w, "Avg processing:    %s ms\n", formatFloat(snap.AvgProcessingMs))
	fmt.Fprintf(w, "Min/Max processing: %s / %s ms\n", formatFloat(snap.MinProcessingMs), formatFloat(snap.MaxProcessingMs))
	fmt.Fprintf(w, "Memory used/total/max: %s / %s / %s MB\n", formatFloat(snap.MemoryUsedMB), formatFloat(snap.MemoryTotalMB), formatFloat(snap.MemoryMaxMB))
	fmt.Fprintf(w, "Polling:           %t\n", snap.IsPolling)
	fmt.Fprintf(w, "Bus connected:     %t\n", snap.ConsumerConnected)
}

func (s *Server) handleMetricsReset(w http.ResponseWriter, r *http.Request) {
	s.state.Reset()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"message":   "counters reset",
		"timestamp": time.Now().UnixMilli(),
	})
}

// =============================================================================
// STATUS
// =============================================================================

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Snapshot()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"statusVersion":     statusVersion,
		"isPolling":         snap.IsPolling,
		"consumerConnected": snap.ConsumerConnected,
		"consumerState":     s.control.GetState(),
		"totalConsumed":     snap.TotalConsumed,
		"totalProcessed":    snap.TotalProcessed,
		"totalFailed":       snap.TotalFailed,
		"successRate":       snap.SuccessRate,
		"timestamp":         snap.Timestamp,
	})
}

// =============================================================================
// FUNCTIONAL PROBE
// =============================================================================

func (s *Server) handleProcessWifiScan(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	survivors := s.pipeline.Transform([][]byte{body})
	if len(survivors) == 0 {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"status":    "rejected",
			"message":   "record failed well-formedness or size checks",
			"timestamp": time.Now().UnixMilli(),
		})
		return
	}

	rec := survivors[0]
	ok := s.engine.DeliverBatch(r.Context(), survivors)

	status := "success"
	message := "record delivered"
	if !ok {
		status = "failed"
		message = "delivery failed"
	}

	ratio := 0.0
	if rec.OriginalSize > 0 {
		ratio = float64(rec.EncodedSize) / float64(rec.OriginalSize)
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":                status,
		"message":               message,
		"originalMessageSize":   rec.OriginalSize,
		"compressedMessageSize": rec.EncodedSize,
		"compressionRatio":      ratio,
		"timestamp":             time.Now().UnixMilli(),
	})
}

// =============================================================================
// HEALTH
// =============================================================================

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeVerdict(w, s.arbiter.Liveness())
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	s.writeVerdict(w, s.arbiter.Readiness())
}

func (s *Server) writeVerdict(w http.ResponseWriter, v health.Verdict) {
	status := http.StatusOK
	if v.Status == health.Down {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, v)
}

// =============================================================================
// CONSUMER CONTROL
// =============================================================================

func (s *Server) handleConsumerPause(w http.ResponseWriter, r *http.Request) {
	if err := s.control.Pause(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to pause consumer")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"state": s.control.GetState()})
}

func (s *Server) handleConsumerResume(w http.ResponseWriter, r *http.Request) {
	if err := s.control.Resume(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to resume consumer")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"state": s.control.GetState()})
}

func (s *Server) handleConsumerState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"state": s.control.GetState()})
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func formatFloat(f float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", f), "0"), ".")
}

func formatPercent(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}
