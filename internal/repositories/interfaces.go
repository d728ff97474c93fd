package repositories

import (
	"context"
	"errors"

	"multi-org-integration-platform/internal/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// OrganisationRepository defines the interface for organisation data operations
type OrganisationRepository interface {
	Create(ctx context.Context, org *models.Organisation) error
	GetByID(ctx context.Context, id string) (*models.Organisation, error)
	GetAll(ctx context.Context) ([]*models.Organisation, error)
	Update(ctx context.Context, org *models.Organisation) error
	Delete(ctx context.Context, id string) error
}

// SyncOutcome is the statistics delta applied after one sync run
type SyncOutcome struct {
	Succeeded     bool
	RecordsSynced int
	Conflicts     int
	Status        string
	NextStatus    models.IntegrationStatus
}

// IntegrationRepository defines the interface for integration data operations
type IntegrationRepository interface {
	Create(ctx context.Context, integration *models.Integration) error
	GetByID(ctx context.Context, id string) (*models.Integration, error)
	GetByOrganisation(ctx context.Context, orgID string) ([]*models.Integration, error)
	Update(ctx context.Context, integration *models.Integration) error
	Delete(ctx context.Context, id string) error
	ReplaceFieldMappings(ctx context.Context, integrationID string, mappings []models.FieldMapping) error
	SetStatus(ctx context.Context, id string, status models.IntegrationStatus) error
	RecordSyncOutcome(ctx context.Context, id string, outcome SyncOutcome) error
}

// SyncLogRepository defines the interface for sync log data operations
type SyncLogRepository interface {
	Create(ctx context.Context, log *models.SyncLog) error
	GetByRunID(ctx context.Context, runID string) (*models.SyncLog, error)
	GetByIntegration(ctx context.Context, integrationID string, limit, offset int) ([]*models.SyncLog, error)
	DeleteOlderThan(ctx context.Context, integrationID string, keep int) (int64, error)
}
