package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"multi-org-integration-platform/internal/config"
	"multi-org-integration-platform/internal/logger"
	"multi-org-integration-platform/internal/models"
	"multi-org-integration-platform/internal/services"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockSyncService is a mock implementation of services.SyncService
type MockSyncService struct {
	mock.Mock
}

func (m *MockSyncService) RunSync(ctx context.Context, integrationID string) (*services.BatchResult, error) {
	args := m.Called(ctx, integrationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.BatchResult), args.Error(1)
}

func (m *MockSyncService) EnqueueSync(ctx context.Context, integrationID string) (string, error) {
	args := m.Called(ctx, integrationID)
	return args.String(0), args.Error(1)
}

func (m *MockSyncService) SuggestMappings(sourceSchema, targetSchema string) []models.FieldMapping {
	args := m.Called(sourceSchema, targetSchema)
	return args.Get(0).([]models.FieldMapping)
}

func (m *MockSyncService) SyncHistory(ctx context.Context, integrationID string, limit, offset int) ([]*models.SyncLog, error) {
	args := m.Called(ctx, integrationID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SyncLog), args.Error(1)
}

func createTestLogger() *logger.Logger {
	return logger.NewLogger(&config.Config{Logging: config.LoggingConfig{Level: "info", Format: "text"}})
}

func setupSyncRouter(svc services.SyncService) *mux.Router {
	router := mux.NewRouter()
	NewSyncHandler(&config.Config{}, createTestLogger(), svc).RegisterRoutes(router)
	return router
}

func TestSyncHandler_TriggerSync(t *testing.T) {
	svc := new(MockSyncService)
	result := &services.BatchResult{
		RunID:             "run-1",
		State:             services.SyncStateCompleted,
		TotalRecords:      2,
		ProcessedRecords:  2,
		SuccessfulRecords: 2,
		SuccessRate:       100,
	}
	svc.On("RunSync", mock.Anything, "int-1").Return(result, nil)

	req := httptest.NewRequest("POST", "/api/v1/integrations/int-1/sync", nil)
	w := httptest.NewRecorder()
	setupSyncRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response services.BatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "run-1", response.RunID)
	assert.Equal(t, 2, response.SuccessfulRecords)
	assert.Equal(t, float64(100), response.SuccessRate)
	svc.AssertExpectations(t)
}

func TestSyncHandler_TriggerSyncAsync(t *testing.T) {
	svc := new(MockSyncService)
	svc.On("EnqueueSync", mock.Anything, "int-1").Return("job-1", nil)

	req := httptest.NewRequest("POST", "/api/v1/integrations/int-1/sync?async=true", nil)
	w := httptest.NewRecorder()
	setupSyncRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "job-1", response["job_id"])
	assert.Equal(t, "queued", response["status"])
	svc.AssertNotCalled(t, "RunSync", mock.Anything, mock.Anything)
}

func TestNewSyncHandler_WaitBudget(t *testing.T) {
	svc := &MockSyncService{}
	withTimeout := func(seconds int) *config.Config {
		return &config.Config{Server: config.ServerConfig{WriteTimeout: seconds}}
	}

	assert.Equal(t, time.Duration(0), NewSyncHandler(&config.Config{}, createTestLogger(), svc).syncWait)
	assert.Equal(t, 25*time.Second, NewSyncHandler(withTimeout(30), createTestLogger(), svc).syncWait)
	assert.Equal(t, time.Second, NewSyncHandler(withTimeout(2), createTestLogger(), svc).syncWait)
}

func TestSyncHandler_TriggerSyncOutlivesWaitBudget(t *testing.T) {
	svc := &MockSyncService{}
	finished := make(chan struct{})
	svc.On("RunSync", mock.Anything, "int-1").Run(func(args mock.Arguments) {
		defer close(finished)
		time.Sleep(200 * time.Millisecond)
		// the run is detached from the request
		assert.NoError(t, args.Get(0).(context.Context).Err())
	}).Return(&services.BatchResult{TotalRecords: 500}, nil)

	handler := NewSyncHandler(&config.Config{}, createTestLogger(), svc)
	handler.syncWait = 50 * time.Millisecond
	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	req := httptest.NewRequest("POST", "/api/v1/integrations/int-1/sync", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "running", response["status"])
	assert.Equal(t, "/api/v1/integrations/int-1/sync-logs", response["sync_logs"])

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("sync run did not finish")
	}
	svc.AssertExpectations(t)
}

func TestSyncHandler_TriggerSyncWithinWaitBudget(t *testing.T) {
	svc := &MockSyncService{}
	svc.On("RunSync", mock.Anything, "int-1").Return(&services.BatchResult{TotalRecords: 3, SuccessfulRecords: 3}, nil)

	handler := NewSyncHandler(&config.Config{Server: config.ServerConfig{WriteTimeout: 30}}, createTestLogger(), svc)
	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	req := httptest.NewRequest("POST", "/api/v1/integrations/int-1/sync", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var result services.BatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 3, result.SuccessfulRecords)
}

func TestSyncHandler_TriggerSyncErrors(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{"not found", services.ErrIntegrationNotFound, http.StatusNotFound},
		{"in progress", services.ErrSyncInProgress, http.StatusConflict},
		{
			"validation",
			&services.SyncError{Phase: services.SyncStateValidating, Err: &services.ValidationError{Err: errors.New("no mappings")}},
			http.StatusUnprocessableEntity,
		},
		{
			"authentication",
			&services.SyncError{Phase: services.SyncStateAuthenticating, Err: &services.AuthError{OrganisationID: "org-1", Err: errors.New("denied")}},
			http.StatusBadGateway,
		},
		{
			"cancelled",
			&services.SyncError{Phase: services.SyncStateProcessingBatches, Err: context.Canceled},
			http.StatusServiceUnavailable,
		},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockSyncService)
			svc.On("RunSync", mock.Anything, "int-1").Return(nil, tt.err)

			req := httptest.NewRequest("POST", "/api/v1/integrations/int-1/sync", nil)
			w := httptest.NewRecorder()
			setupSyncRouter(svc).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestSyncHandler_TriggerSyncIncludesPartialResult(t *testing.T) {
	svc := new(MockSyncService)
	partial := &services.BatchResult{TotalRecords: 100, ProcessedRecords: 50, SuccessfulRecords: 50}
	svc.On("RunSync", mock.Anything, "int-1").Return(partial, &services.SyncError{
		Phase:            services.SyncStateProcessingBatches,
		ProcessingTimeMs: 250,
		Err:              context.Canceled,
	})

	req := httptest.NewRequest("POST", "/api/v1/integrations/int-1/sync", nil)
	w := httptest.NewRecorder()
	setupSyncRouter(svc).ServeHTTP(w, req)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "processing_batches", response["phase"])
	assert.Equal(t, float64(250), response["processing_time_ms"])

	resultBody, ok := response["result"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(50), resultBody["processed_records"])
}

func TestSyncHandler_GetSyncLogs(t *testing.T) {
	svc := new(MockSyncService)
	logs := []*models.SyncLog{{IntegrationID: "int-1", RunID: "run-1", Status: models.SyncStatusCompleted}}
	svc.On("SyncHistory", mock.Anything, "int-1", 5, 10).Return(logs, nil)

	req := httptest.NewRequest("GET", "/api/v1/integrations/int-1/sync-logs?limit=5&offset=10", nil)
	w := httptest.NewRecorder()
	setupSyncRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Len(t, response["sync_logs"], 1)
	svc.AssertExpectations(t)
}

func TestSyncHandler_GetSyncLogsClampsLimit(t *testing.T) {
	svc := new(MockSyncService)
	svc.On("SyncHistory", mock.Anything, "int-1", defaultHistoryLimit, 0).Return([]*models.SyncLog{}, nil)

	req := httptest.NewRequest("GET", "/api/v1/integrations/int-1/sync-logs?limit=100000&offset=-3", nil)
	w := httptest.NewRecorder()
	setupSyncRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestSyncHandler_SuggestMappings(t *testing.T) {
	svc := new(MockSyncService)
	mappings := []models.FieldMapping{
		{SourceField: "Email", TargetField: "Email", TransformationRule: models.TransformEmail, Confidence: 1},
	}
	svc.On("SuggestMappings", "Lead", "Contact").Return(mappings)

	req := httptest.NewRequest("GET", "/api/v1/mappings/suggest?source=Lead&target=Contact", nil)
	w := httptest.NewRecorder()
	setupSyncRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "Lead", response["source_schema"])
	assert.Len(t, response["mappings"], 1)
}

func TestSyncHandler_SuggestMappingsRequiresSchemas(t *testing.T) {
	svc := new(MockSyncService)

	req := httptest.NewRequest("GET", "/api/v1/mappings/suggest?source=Lead", nil)
	w := httptest.NewRecorder()
	setupSyncRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "SuggestMappings", mock.Anything, mock.Anything)
}
