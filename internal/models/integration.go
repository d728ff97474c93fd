package models

import (
	"time"

	"gorm.io/gorm"
)

// ResolutionStrategy selects how field conflicts are resolved during a sync
type ResolutionStrategy string

const (
	StrategySourceWins ResolutionStrategy = "source-wins"
	StrategyTargetWins ResolutionStrategy = "target-wins"
	StrategyLatestWins ResolutionStrategy = "latest-wins"
	StrategyAIResolve  ResolutionStrategy = "ai-resolve"
)

// IsValid reports whether the strategy is supported
func (s ResolutionStrategy) IsValid() bool {
	switch s {
	case StrategySourceWins, StrategyTargetWins, StrategyLatestWins, StrategyAIResolve:
		return true
	}
	return false
}

// IntegrationStatus is the coarse runtime state of an integration
type IntegrationStatus string

const (
	IntegrationStatusIdle    IntegrationStatus = "idle"
	IntegrationStatusSyncing IntegrationStatus = "syncing"
	IntegrationStatusError   IntegrationStatus = "error"
)

// Integration connects a source schema in one organisation to a target schema in another
type Integration struct {
	ID                         string             `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	OrganisationID             string             `json:"organisation_id" gorm:"type:uuid;not null;index" validate:"required"`
	Name                       string             `json:"name" gorm:"not null" validate:"required,min=1,max=255"`
	SourceOrganisationID       string             `json:"source_organisation_id" gorm:"type:uuid;not null;index" validate:"required"`
	TargetOrganisationID       string             `json:"target_organisation_id" gorm:"type:uuid;not null;index" validate:"required"`
	SourceSchema               string             `json:"source_schema" gorm:"not null" validate:"required"`
	TargetSchema               string             `json:"target_schema" gorm:"not null" validate:"required"`
	SourceKeyField             string             `json:"source_key_field,omitempty"`
	TargetKeyField             string             `json:"target_key_field,omitempty"`
	ConflictResolutionStrategy ResolutionStrategy `json:"conflict_resolution_strategy" gorm:"not null;default:source-wins" validate:"required,resolution_strategy"`
	FieldMappings              []FieldMapping     `json:"field_mappings" gorm:"foreignKey:IntegrationID" validate:"required,min=1,dive"`
	IsActive                   bool               `json:"is_active" gorm:"default:true"`

	// Sync statistics, only ever changed through atomic increments
	Status             IntegrationStatus `json:"status" gorm:"not null;default:idle"`
	TotalSyncs         int64             `json:"total_syncs" gorm:"not null;default:0"`
	SuccessfulSyncs    int64             `json:"successful_syncs" gorm:"not null;default:0"`
	FailedSyncs        int64             `json:"failed_syncs" gorm:"not null;default:0"`
	TotalRecordsSynced int64             `json:"total_records_synced" gorm:"not null;default:0"`
	TotalConflicts     int64             `json:"total_conflicts" gorm:"not null;default:0"`
	LastSyncAt         *time.Time        `json:"last_sync_at,omitempty"`
	LastSyncStatus     string            `json:"last_sync_status,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Organisation       *Organisation `json:"organisation,omitempty" gorm:"foreignKey:OrganisationID"`
	SourceOrganisation *Organisation `json:"source_organisation,omitempty" gorm:"foreignKey:SourceOrganisationID"`
	TargetOrganisation *Organisation `json:"target_organisation,omitempty" gorm:"foreignKey:TargetOrganisationID"`
	SyncLogs           []SyncLog     `json:"sync_logs,omitempty" gorm:"foreignKey:IntegrationID"`
}

// TableName returns the table name for Integration
func (Integration) TableName() string {
	return "integrations"
}

// SuccessRate returns the percentage of successful syncs, computed from the stored counters
func (i *Integration) SuccessRate() float64 {
	if i.TotalSyncs == 0 {
		return 0
	}
	return float64(i.SuccessfulSyncs) / float64(i.TotalSyncs) * 100
}

// SourceKey returns the record identity field on the source side
func (i *Integration) SourceKey(fallback string) string {
	if i.SourceKeyField != "" {
		return i.SourceKeyField
	}
	return fallback
}

// TargetKey returns the record identity field on the target side
func (i *Integration) TargetKey(fallback string) string {
	if i.TargetKeyField != "" {
		return i.TargetKeyField
	}
	return fallback
}

// IsSyncing checks if a sync run is currently in flight
func (i *Integration) IsSyncing() bool {
	return i.Status == IntegrationStatusSyncing
}
