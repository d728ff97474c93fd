package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler_AllHealthy(t *testing.T) {
	handler := NewHealthHandler(map[string]HealthCheckFunc{
		"database": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return nil },
	})

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	handler.HandleHealthCheck(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response.Status)
	assert.Len(t, response.Components, 2)
}

func TestHealthHandler_UnhealthyComponent(t *testing.T) {
	handler := NewHealthHandler(map[string]HealthCheckFunc{
		"database": func(ctx context.Context) error { return errors.New("connection refused") },
		"redis":    func(ctx context.Context) error { return nil },
	})

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	handler.HandleHealthCheck(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var response HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "unhealthy", response.Status)
	assert.Equal(t, "unhealthy", response.Components["database"].Status)
	assert.Equal(t, "connection refused", response.Components["database"].Message)
	assert.Equal(t, "healthy", response.Components["redis"].Status)
}

func TestHealthHandler_Probes(t *testing.T) {
	failing := NewHealthHandler(map[string]HealthCheckFunc{
		"database": func(ctx context.Context) error { return errors.New("down") },
	})

	w := httptest.NewRecorder()
	failing.HandleLivenessProbe(w, httptest.NewRequest("GET", "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	w = httptest.NewRecorder()
	failing.HandleReadinessProbe(w, httptest.NewRequest("GET", "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	ready := NewHealthHandler(map[string]HealthCheckFunc{})
	w = httptest.NewRecorder()
	ready.HandleReadinessProbe(w, httptest.NewRequest("GET", "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ready", w.Body.String())
}
