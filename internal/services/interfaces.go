package services

import (
	"context"
	"time"

	"multi-org-integration-platform/internal/models"
)

// SourceRecord is one record fetched from the source schema, keyed by field name
type SourceRecord map[string]interface{}

// MappedRecord is a source record after field mapping, keyed by target field name
type MappedRecord map[string]interface{}

// Credential is the session handle an Authenticator issues for one organisation
type Credential struct {
	OrganisationID string
	BaseURL        string
	Token          string
	Headers        map[string]string
	ExpiresAt      time.Time
}

// ExistingRecord is a record already stored at the destination
type ExistingRecord struct {
	Key       string
	Fields    map[string]interface{}
	UpdatedAt *time.Time
}

// WriteResult describes the outcome of a destination write
type WriteResult struct {
	Key     string
	Created bool
}

// Authenticator obtains a credential for an organisation
type Authenticator interface {
	Authenticate(ctx context.Context, orgID string) (*Credential, error)
}

// SourceReader fetches the full record set of a schema
type SourceReader interface {
	Fetch(ctx context.Context, schema string, cred *Credential) ([]SourceRecord, error)
}

// DestinationReader looks up an existing destination record; a nil record means none exists
type DestinationReader interface {
	Lookup(ctx context.Context, schema, recordKey string, cred *Credential) (*ExistingRecord, error)
}

// DestinationWriter writes a mapped record to the destination
type DestinationWriter interface {
	Write(ctx context.Context, schema string, record MappedRecord, cred *Credential) (*WriteResult, error)
}

// ConflictDetector flags per-field disagreements between a mapped record and the destination
type ConflictDetector interface {
	Detect(ctx context.Context, record MappedRecord, dc DetectionContext) ([]Conflict, error)
}

// SyncEngine runs one sync of an integration
type SyncEngine interface {
	PerformSync(ctx context.Context, integration *models.Integration) (*BatchResult, error)
}

// SyncLock guarantees at most one in-flight sync per integration. Entries
// expire after TTL unless the owner extends them.
type SyncLock interface {
	Acquire(ctx context.Context, integrationID, owner string) (bool, error)
	// Extend pushes the expiry out by a full TTL; false means owner no longer holds the lock
	Extend(ctx context.Context, integrationID, owner string) (bool, error)
	Release(ctx context.Context, integrationID, owner string) error
	TTL() time.Duration
}

// EventPublisher publishes sync lifecycle events to interested subscribers
type EventPublisher interface {
	PublishSyncEvent(ctx context.Context, event *SyncEvent) error
}

// SyncEvent is emitted when a sync run finishes
type SyncEvent struct {
	Type          string       `json:"type"`
	IntegrationID string       `json:"integration_id"`
	RunID         string       `json:"run_id"`
	Result        *BatchResult `json:"result,omitempty"`
	Error         string       `json:"error,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

// Sync event types
const (
	EventSyncCompleted = "sync.completed"
	EventSyncFailed    = "sync.failed"
)

// SyncService is the caller-facing surface of the sync pipeline
type SyncService interface {
	RunSync(ctx context.Context, integrationID string) (*BatchResult, error)
	EnqueueSync(ctx context.Context, integrationID string) (string, error)
	SuggestMappings(sourceSchema, targetSchema string) []models.FieldMapping
	SyncHistory(ctx context.Context, integrationID string, limit, offset int) ([]*models.SyncLog, error)
}
