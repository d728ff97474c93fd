package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"multi-org-integration-platform/internal/config"
	"multi-org-integration-platform/internal/logger"
	"multi-org-integration-platform/internal/services"

	"github.com/gorilla/mux"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200

	// room left under the server write timeout for writing the response
	responseMargin = 5 * time.Second
	minSyncWait    = time.Second
)

// SyncHandler exposes sync runs, run history and mapping suggestions over HTTP
type SyncHandler struct {
	logger  *logger.Logger
	syncSvc services.SyncService

	// syncWait bounds how long a synchronous trigger waits; zero waits for the run
	syncWait time.Duration
}

// NewSyncHandler creates a new sync handler. Synchronous triggers wait until just
// before the server's write timeout.
func NewSyncHandler(cfg *config.Config, logger *logger.Logger, syncSvc services.SyncService) *SyncHandler {
	var wait time.Duration
	if cfg.Server.WriteTimeout > 0 {
		wait = time.Duration(cfg.Server.WriteTimeout)*time.Second - responseMargin
		if wait < minSyncWait {
			wait = minSyncWait
		}
	}
	return &SyncHandler{logger: logger, syncSvc: syncSvc, syncWait: wait}
}

// RegisterRoutes registers the sync routes under /api/v1
func (h *SyncHandler) RegisterRoutes(router *mux.Router) {
	v1 := router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/integrations/{id}/sync", h.TriggerSync).Methods("POST")
	v1.HandleFunc("/integrations/{id}/sync-logs", h.GetSyncLogs).Methods("GET")
	v1.HandleFunc("/mappings/suggest", h.SuggestMappings).Methods("GET")
}

// TriggerSync runs a sync and returns its result. With ?async=true the sync is
// queued and the job ID is returned instead. A run still going when the wait
// budget runs out keeps running detached from the request and is answered with
// 202; its outcome lands in the sync logs. Large integrations should use async.
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	integrationID := mux.Vars(r)["id"]

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		jobID, err := h.syncSvc.EnqueueSync(r.Context(), integrationID)
		if err != nil {
			h.writeErrorResponse(w, statusForSyncError(err), "Failed to queue sync", err)
			return
		}
		h.writeJSONResponse(w, http.StatusAccepted, map[string]interface{}{
			"integration_id": integrationID,
			"job_id":         jobID,
			"status":         "queued",
		})
		return
	}

	if h.syncWait <= 0 {
		result, err := h.syncSvc.RunSync(r.Context(), integrationID)
		h.writeSyncResult(w, integrationID, result, err)
		return
	}

	type outcome struct {
		result *services.BatchResult
		err    error
	}
	done := make(chan outcome, 1)
	runCtx := context.WithoutCancel(r.Context())
	go func() {
		result, err := h.syncSvc.RunSync(runCtx, integrationID)
		done <- outcome{result: result, err: err}
	}()

	timer := time.NewTimer(h.syncWait)
	defer timer.Stop()

	select {
	case o := <-done:
		h.writeSyncResult(w, integrationID, o.result, o.err)
	case <-timer.C:
		h.logger.WithIntegration(integrationID).Info("Sync still running at response deadline; continuing in background")
		h.writeJSONResponse(w, http.StatusAccepted, map[string]interface{}{
			"integration_id": integrationID,
			"status":         "running",
			"sync_logs":      "/api/v1/integrations/" + integrationID + "/sync-logs",
		})
	}
}

func (h *SyncHandler) writeSyncResult(w http.ResponseWriter, integrationID string, result *services.BatchResult, err error) {
	if err != nil {
		status := statusForSyncError(err)
		response := map[string]interface{}{
			"error":     "Sync failed",
			"details":   err.Error(),
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		var syncErr *services.SyncError
		if errors.As(err, &syncErr) {
			response["phase"] = syncErr.Phase
			response["processing_time_ms"] = syncErr.ProcessingTimeMs
		}
		if result != nil {
			response["result"] = result
		}
		h.logger.WithIntegration(integrationID).WithError(err).Warn("Sync request failed")
		h.writeJSONResponse(w, status, response)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, result)
}

// GetSyncLogs lists the integration's recent runs
func (h *SyncHandler) GetSyncLogs(w http.ResponseWriter, r *http.Request) {
	integrationID := mux.Vars(r)["id"]

	limit := parseIntParam(r, "limit", defaultHistoryLimit)
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	offset := parseIntParam(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	logs, err := h.syncSvc.SyncHistory(r.Context(), integrationID, limit, offset)
	if err != nil {
		h.writeErrorResponse(w, statusForSyncError(err), "Failed to get sync logs", err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"sync_logs": logs,
		"limit":     limit,
		"offset":    offset,
	})
}

// SuggestMappings proposes field mappings between ?source= and ?target= schemas
func (h *SyncHandler) SuggestMappings(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	target := r.URL.Query().Get("target")
	if source == "" || target == "" {
		h.writeErrorResponse(w, http.StatusBadRequest, "source and target query parameters are required", nil)
		return
	}

	mappings := h.syncSvc.SuggestMappings(source, target)
	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"source_schema": source,
		"target_schema": target,
		"mappings":      mappings,
	})
}

func statusForSyncError(err error) int {
	var validationErr *services.ValidationError
	var authErr *services.AuthError
	var fetchErr *services.FetchError

	switch {
	case errors.Is(err, services.ErrIntegrationNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrSyncInProgress):
		return http.StatusConflict
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &authErr), errors.As(err, &fetchErr):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	value := r.URL.Query().Get(name)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func (h *SyncHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (h *SyncHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, message string, err error) {
	response := map[string]interface{}{
		"error":     message,
		"status":    statusCode,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err != nil {
		h.logger.WithError(err).Error(message)
		response["details"] = err.Error()
	}

	h.writeJSONResponse(w, statusCode, response)
}
