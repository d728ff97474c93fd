package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"multi-org-integration-platform/internal/config"
	"multi-org-integration-platform/internal/logger"
	"multi-org-integration-platform/internal/models"

	"github.com/sirupsen/logrus"
)

// SyncState is the lifecycle phase of a sync run
type SyncState string

const (
	SyncStateValidating        SyncState = "validating"
	SyncStateAuthenticating    SyncState = "authenticating"
	SyncStateFetching          SyncState = "fetching"
	SyncStateProcessingBatches SyncState = "processing_batches"
	SyncStateCompleted         SyncState = "completed"
	SyncStateFailed            SyncState = "failed"
)

// Source record fields consulted for the record's last modification time
var sourceUpdatedAtFields = []string{"LastModifiedDate", "SystemModstamp", "UpdatedAt", "updated_at"}

// BatchError records a non-fatal failure inside one batch
type BatchError struct {
	BatchIndex  int    `json:"batch_index"`
	RecordKey   string `json:"record_key,omitempty"`
	Error       string `json:"error"`
	RecordCount int    `json:"record_count"`
}

// BatchResult accumulates the outcome of one sync run
type BatchResult struct {
	RunID             string       `json:"run_id,omitempty"`
	State             SyncState    `json:"state"`
	TotalRecords      int          `json:"total_records"`
	ProcessedRecords  int          `json:"processed_records"`
	SuccessfulRecords int          `json:"successful_records"`
	FailedRecords     int          `json:"failed_records"`
	Conflicts         int          `json:"conflicts"`
	ResolvedConflicts int          `json:"resolved_conflicts"`
	Errors            []BatchError `json:"errors"`
	ProcessingTimeMs  int64        `json:"processing_time_ms"`
	SuccessRate       float64      `json:"success_rate"`
}

func (r *BatchResult) recordSuccess() {
	r.ProcessedRecords++
	r.SuccessfulRecords++
}

func (r *BatchResult) recordFailure(err *RecordSyncError) {
	r.ProcessedRecords++
	r.FailedRecords++
	r.Errors = append(r.Errors, BatchError{
		BatchIndex:  err.BatchIndex,
		RecordKey:   err.RecordKey,
		Error:       err.Error(),
		RecordCount: 1,
	})
}

func (r *BatchResult) recordBatchFailure(err *BatchSyncError) {
	r.ProcessedRecords += err.RecordCount
	r.FailedRecords += err.RecordCount
	r.Errors = append(r.Errors, BatchError{
		BatchIndex:  err.BatchIndex,
		Error:       err.Error(),
		RecordCount: err.RecordCount,
	})
}

func (r *BatchResult) finalize(startTime time.Time) {
	r.ProcessingTimeMs = time.Since(startTime).Milliseconds()
	if r.TotalRecords > 0 {
		r.SuccessRate = float64(r.SuccessfulRecords) / float64(r.TotalRecords) * 100
	}
}

// SyncCollaborators are the external systems a sync run talks to
type SyncCollaborators struct {
	Authenticator Authenticator
	Source        SourceReader
	Destination   DestinationWriter
	Detector      ConflictDetector
}

// BatchSyncEngine moves an integration's records from source to target in fixed-size batches
type BatchSyncEngine struct {
	logger        *logger.Logger
	validator     *models.ValidationService
	collaborators SyncCollaborators
	mapper        *FieldMapper
	resolver      *ConflictResolver
	batchSize     int
	pause         time.Duration
	keyField      string
}

// NewBatchSyncEngine creates a new batch sync engine
func NewBatchSyncEngine(
	logger *logger.Logger,
	cfg *config.Config,
	validator *models.ValidationService,
	collaborators SyncCollaborators,
	mapper *FieldMapper,
	resolver *ConflictResolver,
) *BatchSyncEngine {
	batchSize := cfg.Sync.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	pause := time.Duration(cfg.Sync.InterBatchPauseMs) * time.Millisecond
	if pause < 0 {
		pause = 0
	}
	keyField := cfg.Sync.DefaultKeyField
	if keyField == "" {
		keyField = "Id"
	}

	return &BatchSyncEngine{
		logger:        logger,
		validator:     validator,
		collaborators: collaborators,
		mapper:        mapper,
		resolver:      resolver,
		batchSize:     batchSize,
		pause:         pause,
		keyField:      keyField,
	}
}

// PerformSync runs one full sync of the integration. Validation, authentication and
// fetch failures abort the run with a *SyncError; record and batch failures are
// recorded in the result and the run continues.
func (e *BatchSyncEngine) PerformSync(ctx context.Context, integration *models.Integration) (*BatchResult, error) {
	startTime := time.Now()
	result := &BatchResult{State: SyncStateValidating, Errors: []BatchError{}}

	fail := func(phase SyncState, err error) (*BatchResult, error) {
		result.State = SyncStateFailed
		result.finalize(startTime)
		return result, &SyncError{Phase: phase, ProcessingTimeMs: result.ProcessingTimeMs, Err: err}
	}

	if err := e.validator.ValidateIntegration(integration); err != nil {
		return fail(SyncStateValidating, &ValidationError{Err: err})
	}

	log := e.logger.WithIntegration(integration.ID)

	result.State = SyncStateAuthenticating
	sourceCred, err := e.authenticate(ctx, integration.SourceOrganisationID)
	if err != nil {
		return fail(SyncStateAuthenticating, err)
	}
	targetCred, err := e.authenticate(ctx, integration.TargetOrganisationID)
	if err != nil {
		return fail(SyncStateAuthenticating, err)
	}

	result.State = SyncStateFetching
	records, err := e.fetch(ctx, integration.SourceSchema, sourceCred)
	if err != nil {
		return fail(SyncStateFetching, err)
	}
	result.TotalRecords = len(records)

	log.WithField("total_records", len(records)).Info("Starting batch processing")

	result.State = SyncStateProcessingBatches
	strategy := integration.ConflictResolutionStrategy
	if strategy == "" {
		strategy = models.StrategySourceWins
	}

	batchCount := (len(records) + e.batchSize - 1) / e.batchSize
	for i := 0; i < batchCount; i++ {
		if err := ctx.Err(); err != nil {
			return fail(SyncStateProcessingBatches, err)
		}

		start := i * e.batchSize
		end := start + e.batchSize
		if end > len(records) {
			end = len(records)
		}

		e.processBatch(ctx, integration, strategy, targetCred, i+1, records[start:end], result)

		if i < batchCount-1 && e.pause > 0 {
			if err := sleepContext(ctx, e.pause); err != nil {
				return fail(SyncStateProcessingBatches, err)
			}
		}
	}

	result.State = SyncStateCompleted
	result.finalize(startTime)

	log.WithFields(map[string]interface{}{
		"successful_records": result.SuccessfulRecords,
		"failed_records":     result.FailedRecords,
		"conflicts":          result.Conflicts,
		"processing_time_ms": result.ProcessingTimeMs,
	}).Info("Sync completed")

	return result, nil
}

func (e *BatchSyncEngine) authenticate(ctx context.Context, orgID string) (cred *Credential, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &AuthError{OrganisationID: orgID, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	cred, err = e.collaborators.Authenticator.Authenticate(ctx, orgID)
	if err != nil {
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			err = &AuthError{OrganisationID: orgID, Err: err}
		}
		return nil, err
	}
	return cred, nil
}

func (e *BatchSyncEngine) fetch(ctx context.Context, schema string, cred *Credential) (records []SourceRecord, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &FetchError{Schema: schema, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	records, err = e.collaborators.Source.Fetch(ctx, schema, cred)
	if err != nil {
		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			err = &FetchError{Schema: schema, Err: err}
		}
		return nil, err
	}
	return records, nil
}

// processBatch syncs one batch into result. A destination outage or a panic fails
// every record of the batch that has not been counted yet.
func (e *BatchSyncEngine) processBatch(
	ctx context.Context,
	integration *models.Integration,
	strategy models.ResolutionStrategy,
	cred *Credential,
	batchIndex int,
	batch []SourceRecord,
	result *BatchResult,
) {
	counted := 0
	log := e.logger.WithBatch(integration.ID, batchIndex, len(batch))

	defer func() {
		if rec := recover(); rec != nil {
			e.failRemaining(log, result, batchIndex, len(batch)-counted, fmt.Errorf("panic: %v", rec))
		}
	}()

	for _, record := range batch {
		key, err := e.syncRecord(ctx, integration, strategy, cred, record, result)
		if err == nil {
			result.recordSuccess()
			counted++
			continue
		}

		if errors.Is(err, ErrDestinationUnavailable) {
			e.failRemaining(log, result, batchIndex, len(batch)-counted, err)
			return
		}

		recordErr := &RecordSyncError{BatchIndex: batchIndex, RecordKey: key, Err: err}
		log.WithError(err).WithField("record_key", key).Warn("Record sync failed")
		result.recordFailure(recordErr)
		counted++
	}

	log.Debug("Batch processed")
}

func (e *BatchSyncEngine) failRemaining(log *logrus.Entry, result *BatchResult, batchIndex, remaining int, err error) {
	if remaining <= 0 {
		return
	}
	batchErr := &BatchSyncError{BatchIndex: batchIndex, RecordCount: remaining, Err: err}
	log.Error(batchErr.Error())
	result.recordBatchFailure(batchErr)
}

// syncRecord maps, reconciles and writes a single record
func (e *BatchSyncEngine) syncRecord(
	ctx context.Context,
	integration *models.Integration,
	strategy models.ResolutionStrategy,
	cred *Credential,
	record SourceRecord,
	result *BatchResult,
) (string, error) {
	sourceKey := keyOf(record[integration.SourceKey(e.keyField)])
	mapped := e.mapper.Apply(record, integration.FieldMappings)

	recordKey := keyOf(mapped[integration.TargetKey(e.keyField)])
	if recordKey == "" {
		recordKey = sourceKey
	}

	conflicts, err := e.collaborators.Detector.Detect(ctx, mapped, DetectionContext{
		Schema:          integration.TargetSchema,
		RecordKey:       recordKey,
		Credential:      cred,
		SourceUpdatedAt: sourceUpdatedAt(record),
	})
	if err != nil {
		return sourceKey, fmt.Errorf("conflict detection failed: %w", err)
	}

	if len(conflicts) > 0 {
		resolutions := e.resolver.Resolve(conflicts, strategy)
		result.Conflicts += resolutions.TotalConflicts
		result.ResolvedConflicts += resolutions.ResolvedConflicts
		for _, resolution := range resolutions.Resolutions {
			mapped[resolution.Field] = resolution.ResolvedValue
		}
	}

	if _, err := e.collaborators.Destination.Write(ctx, integration.TargetSchema, mapped, cred); err != nil {
		return sourceKey, fmt.Errorf("write failed: %w", err)
	}

	return sourceKey, nil
}

func keyOf(value interface{}) string {
	if value == nil {
		return ""
	}
	if s, ok := scalarString(value); ok {
		return s
	}
	return fmt.Sprint(value)
}

func sourceUpdatedAt(record SourceRecord) *time.Time {
	for _, field := range sourceUpdatedAtFields {
		if value, ok := record[field]; ok && value != nil {
			if t, ok := parseDate(value); ok {
				return &t
			}
		}
	}
	return nil
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
