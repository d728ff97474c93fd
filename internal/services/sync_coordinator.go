package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"multi-org-integration-platform/internal/logger"
	"multi-org-integration-platform/internal/models"
	"multi-org-integration-platform/internal/repositories"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// JobEnqueuer accepts background jobs
type JobEnqueuer interface {
	EnqueueJob(ctx context.Context, job *BackgroundJob) error
}

// SyncCoordinator runs syncs for stored integrations: it serialises runs per
// integration, persists run history and statistics, and announces outcomes
type SyncCoordinator struct {
	logger       *logger.Logger
	integrations repositories.IntegrationRepository
	syncLogs     repositories.SyncLogRepository
	engine       SyncEngine
	generator    *MappingGenerator
	lock         SyncLock
	publisher    EventPublisher
	metrics      *SyncMetrics
	jobs         JobEnqueuer
	newRunID     func() string
}

// NewSyncCoordinator creates a new sync coordinator. jobs may be nil when
// background processing is disabled.
func NewSyncCoordinator(
	logger *logger.Logger,
	integrations repositories.IntegrationRepository,
	syncLogs repositories.SyncLogRepository,
	engine SyncEngine,
	generator *MappingGenerator,
	lock SyncLock,
	publisher EventPublisher,
	metrics *SyncMetrics,
	jobs JobEnqueuer,
) *SyncCoordinator {
	return &SyncCoordinator{
		logger:       logger,
		integrations: integrations,
		syncLogs:     syncLogs,
		engine:       engine,
		generator:    generator,
		lock:         lock,
		publisher:    publisher,
		metrics:      metrics,
		jobs:         jobs,
		newRunID:     uuid.NewString,
	}
}

// RunSync synchronously syncs the integration. It returns ErrSyncInProgress
// when another run holds the integration's lock.
func (c *SyncCoordinator) RunSync(ctx context.Context, integrationID string) (*BatchResult, error) {
	integration, err := c.loadIntegration(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	if !integration.IsActive {
		return nil, &ValidationError{Err: fmt.Errorf("integration %s is not active", integrationID)}
	}

	runID := c.newRunID()
	log := c.logger.WithSyncRun(integrationID, runID)

	acquired, err := c.lock.Acquire(ctx, integrationID, runID)
	if err != nil {
		return nil, err
	}
	if !acquired {
		c.metrics.lockDenied()
		return nil, ErrSyncInProgress
	}

	// bookkeeping must survive a cancelled request
	persistCtx := context.WithoutCancel(ctx)
	defer func() {
		if err := c.lock.Release(persistCtx, integrationID, runID); err != nil {
			log.WithError(err).Warn("Failed to release sync lock")
		}
	}()

	if err := c.integrations.SetStatus(ctx, integrationID, models.IntegrationStatusSyncing); err != nil {
		log.WithError(err).Warn("Failed to mark integration as syncing")
	}

	c.metrics.syncStarted()
	defer c.metrics.syncFinished()

	log.Info("Sync run started")
	startedAt := time.Now()

	runCtx, stopRun := context.WithCancel(ctx)
	renewDone := make(chan struct{})
	go func() {
		defer close(renewDone)
		c.keepLock(runCtx, stopRun, log, integrationID, runID)
	}()

	result, syncErr := c.engine.PerformSync(runCtx, integration)
	stopRun()
	<-renewDone
	if result == nil {
		result = &BatchResult{State: SyncStateFailed, Errors: []BatchError{}}
	}
	result.RunID = runID

	status := runStatus(syncErr)
	strategy := string(integration.ConflictResolutionStrategy)
	if strategy == "" {
		strategy = string(models.StrategySourceWins)
	}

	c.recordOutcome(persistCtx, log, integration, result, syncErr, status)
	c.saveSyncLog(persistCtx, log, integration, result, syncErr, status, strategy, startedAt)
	c.publish(persistCtx, log, integrationID, runID, result, syncErr)
	c.metrics.ObserveRun(status, strategy, result)

	if syncErr != nil {
		log.WithError(syncErr).Error("Sync run failed")
		return result, syncErr
	}

	log.WithField("success_rate", result.SuccessRate).Info("Sync run completed")
	return result, nil
}

// keepLock extends the run's lock every third of its TTL until ctx ends. A lost
// lock cancels the run so two runs never overlap.
func (c *SyncCoordinator) keepLock(ctx context.Context, stopRun context.CancelFunc, log *logrus.Entry, integrationID, runID string) {
	interval := c.lock.TTL() / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			held, err := c.lock.Extend(ctx, integrationID, runID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.WithError(err).Warn("Failed to extend sync lock")
				continue
			}
			if !held {
				log.Error("Sync lock lost; cancelling run")
				stopRun()
				return
			}
		}
	}
}

// EnqueueSync queues a sync for background processing and returns the job ID
func (c *SyncCoordinator) EnqueueSync(ctx context.Context, integrationID string) (string, error) {
	if c.jobs == nil {
		return "", fmt.Errorf("background sync processing is disabled")
	}
	if _, err := c.loadIntegration(ctx, integrationID); err != nil {
		return "", err
	}

	job := &BackgroundJob{
		Type: JobTypeIntegrationSync,
		Data: map[string]interface{}{"integration_id": integrationID},
	}
	if err := c.jobs.EnqueueJob(ctx, job); err != nil {
		return "", fmt.Errorf("failed to enqueue sync: %w", err)
	}

	c.logger.WithIntegration(integrationID).WithField("job_id", job.ID).Info("Sync queued")
	return job.ID, nil
}

// SuggestMappings proposes field mappings between two schemas
func (c *SyncCoordinator) SuggestMappings(sourceSchema, targetSchema string) []models.FieldMapping {
	return c.generator.Generate(sourceSchema, targetSchema)
}

// SyncHistory returns the integration's most recent runs
func (c *SyncCoordinator) SyncHistory(ctx context.Context, integrationID string, limit, offset int) ([]*models.SyncLog, error) {
	if _, err := c.loadIntegration(ctx, integrationID); err != nil {
		return nil, err
	}
	return c.syncLogs.GetByIntegration(ctx, integrationID, limit, offset)
}

func (c *SyncCoordinator) loadIntegration(ctx context.Context, integrationID string) (*models.Integration, error) {
	integration, err := c.integrations.GetByID(ctx, integrationID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrIntegrationNotFound, integrationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load integration: %w", err)
	}
	return integration, nil
}

func runStatus(err error) string {
	switch {
	case err == nil:
		return models.SyncStatusCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return models.SyncStatusCancelled
	}
	return models.SyncStatusFailed
}

func (c *SyncCoordinator) recordOutcome(ctx context.Context, log *logrus.Entry, integration *models.Integration, result *BatchResult, syncErr error, status string) {
	next := models.IntegrationStatusIdle
	if syncErr != nil {
		next = models.IntegrationStatusError
	}

	err := c.integrations.RecordSyncOutcome(ctx, integration.ID, repositories.SyncOutcome{
		Succeeded:     syncErr == nil,
		RecordsSynced: result.SuccessfulRecords,
		Conflicts:     result.Conflicts,
		Status:        status,
		NextStatus:    next,
	})
	if err != nil {
		log.WithError(err).Error("Failed to update integration statistics")
	}
}

func (c *SyncCoordinator) saveSyncLog(ctx context.Context, log *logrus.Entry, integration *models.Integration, result *BatchResult, syncErr error, status, strategy string, startedAt time.Time) {
	completedAt := time.Now()
	entry := &models.SyncLog{
		IntegrationID:     integration.ID,
		RunID:             result.RunID,
		Status:            status,
		Strategy:          strategy,
		TotalRecords:      result.TotalRecords,
		ProcessedRecords:  result.ProcessedRecords,
		SuccessfulRecords: result.SuccessfulRecords,
		FailedRecords:     result.FailedRecords,
		Conflicts:         result.Conflicts,
		ResolvedConflicts: result.ResolvedConflicts,
		SuccessRate:       result.SuccessRate,
		ProcessingTimeMs:  result.ProcessingTimeMs,
		StartedAt:         startedAt,
		CompletedAt:       &completedAt,
	}
	if syncErr != nil {
		entry.ErrorMessage = syncErr.Error()
	}
	if len(result.Errors) > 0 {
		entry.Errors = models.JSONMap{"batch_errors": result.Errors}
	}

	if err := c.syncLogs.Create(ctx, entry); err != nil {
		log.WithError(err).Error("Failed to save sync log")
	}
}

func (c *SyncCoordinator) publish(ctx context.Context, log *logrus.Entry, integrationID, runID string, result *BatchResult, syncErr error) {
	event := &SyncEvent{
		Type:          EventSyncCompleted,
		IntegrationID: integrationID,
		RunID:         runID,
		Result:        result,
		Timestamp:     time.Now(),
	}
	if syncErr != nil {
		event.Type = EventSyncFailed
		event.Error = syncErr.Error()
	}

	if err := c.publisher.PublishSyncEvent(ctx, event); err != nil {
		log.WithError(err).Warn("Failed to publish sync event")
	}
}

// SyncJobHandler runs queued integration_sync jobs
type SyncJobHandler struct {
	coordinator *SyncCoordinator
	logger      *logger.Logger
}

// NewSyncJobHandler creates a job handler backed by coordinator
func NewSyncJobHandler(coordinator *SyncCoordinator, logger *logger.Logger) *SyncJobHandler {
	return &SyncJobHandler{coordinator: coordinator, logger: logger}
}

// Handle runs the sync. A busy integration is reported as an error so the job is
// retried later; a missing or invalid integration is dropped.
func (h *SyncJobHandler) Handle(ctx context.Context, job *BackgroundJob) error {
	integrationID, _ := job.Data["integration_id"].(string)
	if integrationID == "" {
		return fmt.Errorf("job %s has no integration_id", job.ID)
	}

	_, err := h.coordinator.RunSync(ctx, integrationID)

	var validationErr *ValidationError
	if errors.Is(err, ErrIntegrationNotFound) || errors.As(err, &validationErr) {
		h.logger.WithIntegration(integrationID).WithError(err).Warn("Dropping queued sync")
		return nil
	}
	return err
}
