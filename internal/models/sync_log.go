package models

import (
	"time"
)

// Sync run outcomes
const (
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
	SyncStatusCancelled = "cancelled"
)

// SyncLog records the outcome of one sync run
type SyncLog struct {
	ID                string     `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	IntegrationID     string     `json:"integration_id" gorm:"type:uuid;not null;index" validate:"required"`
	RunID             string     `json:"run_id" gorm:"not null;uniqueIndex" validate:"required"`
	Status            string     `json:"status" gorm:"not null;index" validate:"required,oneof=completed failed cancelled"`
	Strategy          string     `json:"strategy"`
	TotalRecords      int        `json:"total_records"`
	ProcessedRecords  int        `json:"processed_records"`
	SuccessfulRecords int        `json:"successful_records"`
	FailedRecords     int        `json:"failed_records"`
	Conflicts         int        `json:"conflicts"`
	ResolvedConflicts int        `json:"resolved_conflicts"`
	SuccessRate       float64    `json:"success_rate"`
	ProcessingTimeMs  int64      `json:"processing_time_ms"`
	ErrorMessage      string     `json:"error_message,omitempty" gorm:"type:text"`
	Errors            JSONMap    `json:"errors,omitempty" gorm:"type:jsonb"`
	StartedAt         time.Time  `json:"started_at" gorm:"not null;index"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`

	// Relationships
	Integration *Integration `json:"integration,omitempty" gorm:"foreignKey:IntegrationID"`
}

// TableName returns the table name for SyncLog
func (SyncLog) TableName() string {
	return "sync_logs"
}

// IsError checks if the run did not complete
func (l *SyncLog) IsError() bool {
	return l.Status != SyncStatusCompleted || l.ErrorMessage != ""
}

// IsSuccess checks if the run completed with no failed records
func (l *SyncLog) IsSuccess() bool {
	return l.Status == SyncStatusCompleted && l.FailedRecords == 0
}
