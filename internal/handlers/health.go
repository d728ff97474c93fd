package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// HealthCheckFunc checks one dependency; a nil error means healthy
type HealthCheckFunc func(ctx context.Context) error

// ComponentHealth is the health of one dependency
type ComponentHealth struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string                      `json:"status"`
	Timestamp  time.Time                   `json:"timestamp"`
	Components map[string]*ComponentHealth `json:"components"`
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	checks  map[string]HealthCheckFunc
	timeout time.Duration
}

// NewHealthHandler creates a health handler running the named checks
func NewHealthHandler(checks map[string]HealthCheckFunc) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 3 * time.Second}
}

// HandleHealthCheck reports every component and fails if any is unhealthy
func (h *HealthHandler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	components := h.runChecks(r.Context())

	overall := "healthy"
	for _, component := range components {
		if component.Status != "healthy" {
			overall = "unhealthy"
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if overall != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(HealthResponse{
		Status:     overall,
		Timestamp:  time.Now(),
		Components: components,
	})
}

// HandleLivenessProbe handles Kubernetes liveness probe
func (h *HealthHandler) HandleLivenessProbe(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// HandleReadinessProbe handles Kubernetes readiness probe
func (h *HealthHandler) HandleReadinessProbe(w http.ResponseWriter, r *http.Request) {
	for _, component := range h.runChecks(r.Context()) {
		if component.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Service Unavailable"))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func (h *HealthHandler) runChecks(ctx context.Context) map[string]*ComponentHealth {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	components := make(map[string]*ComponentHealth, len(names))
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
		start := time.Now()
		err := h.checks[name](checkCtx)
		cancel()

		component := &ComponentHealth{Status: "healthy", LatencyMs: time.Since(start).Milliseconds()}
		if err != nil {
			component.Status = "unhealthy"
			component.Message = err.Error()
		}
		components[name] = component
	}
	return components
}
