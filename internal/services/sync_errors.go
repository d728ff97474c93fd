package services

import (
	"errors"
	"fmt"
)

var (
	// ErrDestinationUnavailable marks a write failure that affects the whole batch
	ErrDestinationUnavailable = errors.New("destination unavailable")
	// ErrSyncInProgress is returned when the integration already has a sync in flight
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrIntegrationNotFound is returned when the integration cannot be loaded
	ErrIntegrationNotFound = errors.New("integration not found")
)

// ValidationError reports a failed sync precondition
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid integration: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// AuthError reports a failure to authenticate against an organisation
type AuthError struct {
	OrganisationID string
	Err            error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for organisation %s: %v", e.OrganisationID, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchError reports a failure to read the source record set
type FetchError struct {
	Schema string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s records: %v", e.Schema, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// TransformError reports a transformation that could not be applied to a value
type TransformError struct {
	Rule  string
	Value interface{}
	Err   error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transformation %q failed for value %v: %v", e.Rule, e.Value, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// MappingError reports a mapping generation failure that fell back to static mappings
type MappingError struct {
	SourceSchema string
	TargetSchema string
	Err          error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping generation failed for %s->%s: %v", e.SourceSchema, e.TargetSchema, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }

// RecordSyncError reports a single record that could not be synced
type RecordSyncError struct {
	BatchIndex int
	RecordKey  string
	Err        error
}

func (e *RecordSyncError) Error() string {
	return fmt.Sprintf("record %s in batch %d failed: %v", e.RecordKey, e.BatchIndex, e.Err)
}

func (e *RecordSyncError) Unwrap() error { return e.Err }

// BatchSyncError reports a batch that failed as a whole
type BatchSyncError struct {
	BatchIndex  int
	RecordCount int
	Err         error
}

func (e *BatchSyncError) Error() string {
	return fmt.Sprintf("batch %d failed (%d records): %v", e.BatchIndex, e.RecordCount, e.Err)
}

func (e *BatchSyncError) Unwrap() error { return e.Err }

// SyncError is returned by PerformSync when a run terminates early
type SyncError struct {
	Phase            SyncState
	ProcessingTimeMs int64
	Err              error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync failed during %s after %dms: %v", e.Phase, e.ProcessingTimeMs, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
