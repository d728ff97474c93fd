package repositories

import (
	"context"
	"errors"

	"multi-org-integration-platform/internal/database"
	"multi-org-integration-platform/internal/models"

	"gorm.io/gorm"
)

type syncLogRepository struct {
	db *database.Connection
}

// NewSyncLogRepository creates a new sync log repository
func NewSyncLogRepository(db *database.Connection) SyncLogRepository {
	return &syncLogRepository{db: db}
}

func (r *syncLogRepository) Create(ctx context.Context, log *models.SyncLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *syncLogRepository) GetByRunID(ctx context.Context, runID string) (*models.SyncLog, error) {
	var log models.SyncLog
	err := r.db.WithContext(ctx).First(&log, "run_id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// GetByIntegration returns the integration's runs, newest first
func (r *syncLogRepository) GetByIntegration(ctx context.Context, integrationID string, limit, offset int) ([]*models.SyncLog, error) {
	var logs []*models.SyncLog
	err := r.db.WithContext(ctx).
		Where("integration_id = ?", integrationID).
		Order("started_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error
	return logs, err
}

// DeleteOlderThan keeps the newest keep runs of an integration and deletes the rest
func (r *syncLogRepository) DeleteOlderThan(ctx context.Context, integrationID string, keep int) (int64, error) {
	keepIDs := r.db.WithContext(ctx).
		Model(&models.SyncLog{}).
		Select("id").
		Where("integration_id = ?", integrationID).
		Order("started_at DESC").
		Limit(keep)

	result := r.db.WithContext(ctx).
		Where("integration_id = ? AND id NOT IN (?)", integrationID, keepIDs).
		Delete(&models.SyncLog{})
	return result.RowsAffected, result.Error
}
