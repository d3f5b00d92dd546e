package api

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"
)

// readinessTimeout is the per-dependency timeout for readiness checks.
const readinessTimeout = 2 * time.Second

// Build-time version information, set via -ldflags:
//
//	go build -ldflags "-X api.Version=1.0.0 -X api.GitCommit=abc1234 -X api.BuildTime=2026-08-24T12:00:00Z"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// HealthChecker verifies that a dependency is reachable and healthy.
// Implementations should be lightweight (e.g. a database ping).
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// CheckResult holds the outcome of a single dependency health check.
type CheckResult struct {
	Status string `json:"status"`          // "ok" or "error"
	Error  string `json:"error,omitempty"` // human-readable error when status is "error"
}

// ReadinessResponse is the structured JSON returned by GET /health/ready.
type ReadinessResponse struct {
	Status string                 `json:"status"` // "ready" or "not_ready"
	Checks map[string]CheckResult `json:"checks"`
}

// HandleHealthLive is a lightweight liveness probe: it confirms the process
// is alive and reports build information. Always returns 200.
func (s *Server) HandleHealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    Version,
		"git_commit": GitCommit,
		"build_time": BuildTime,
		"go_version": runtime.Version(),
	})
}

// HandleHealthReady checks the catalog database and returns 200 if healthy,
// 503 otherwise. The check runs with a 2s timeout.
func (s *Server) HandleHealthReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]CheckResult)
	allOK := true

	if s.DBHealth != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		if err := s.DBHealth.CheckHealth(ctx); err != nil {
			checks["database"] = CheckResult{Status: "error", Error: err.Error()}
			allOK = false
		} else {
			checks["database"] = CheckResult{Status: "ok"}
		}
	}

	resp := ReadinessResponse{Checks: checks}
	if allOK {
		resp.Status = "ready"
		writeJSON(w, http.StatusOK, resp)
	} else {
		resp.Status = "not_ready"
		writeJSON(w, http.StatusServiceUnavailable, resp)
	}
}

// HandleHealth is the backward-compatible health endpoint.
// Aliases to the liveness probe (always 200).
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.HandleHealthLive(w, r)
}

// HandleMetrics returns basic runtime metrics in Prometheus text exposition
// format, suitable for scraping.
func (s *Server) HandleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	fmt.Fprintf(w, "# HELP nfury_info Build information about nfury.\n")
	fmt.Fprintf(w, "# TYPE nfury_info gauge\n")
	fmt.Fprintf(w, "nfury_info{version=%q,git_commit=%q,go_version=%q} 1\n", Version, GitCommit, runtime.Version())

	fmt.Fprintf(w, "# HELP nfury_goroutines Number of goroutines.\n")
	fmt.Fprintf(w, "# TYPE nfury_goroutines gauge\n")
	fmt.Fprintf(w, "nfury_goroutines %d\n", runtime.NumGoroutine())

	fmt.Fprintf(w, "# HELP nfury_memory_alloc_bytes Current memory allocation in bytes.\n")
	fmt.Fprintf(w, "# TYPE nfury_memory_alloc_bytes gauge\n")
	fmt.Fprintf(w, "nfury_memory_alloc_bytes %d\n", memStats.Alloc)

	fmt.Fprintf(w, "# HELP nfury_run_active Whether a load run is currently active.\n")
	fmt.Fprintf(w, "# TYPE nfury_run_active gauge\n")
	active := 0
	if s.Load != nil && s.Load.IsRunning() {
		active = 1
	}
	fmt.Fprintf(w, "nfury_run_active %d\n", active)

	if s.SSELimiter != nil {
		fmt.Fprintf(w, "# HELP nfury_sse_connections_active Current number of active SSE connections.\n")
		fmt.Fprintf(w, "# TYPE nfury_sse_connections_active gauge\n")
		fmt.Fprintf(w, "nfury_sse_connections_active %d\n", s.SSELimiter.GlobalCount())
	}
}
