package repositories

import (
	"context"
	"errors"
	"time"

	"multi-org-integration-platform/internal/database"
	"multi-org-integration-platform/internal/models"

	"gorm.io/gorm"
)

type integrationRepository struct {
	db *database.Connection
}

// NewIntegrationRepository creates a new integration repository
func NewIntegrationRepository(db *database.Connection) IntegrationRepository {
	return &integrationRepository{db: db}
}

func (r *integrationRepository) Create(ctx context.Context, integration *models.Integration) error {
	return r.db.WithContext(ctx).Create(integration).Error
}

// GetByID loads an integration with its field mappings in position order
func (r *integrationRepository) GetByID(ctx context.Context, id string) (*models.Integration, error) {
	var integration models.Integration
	err := r.db.WithContext(ctx).
		Preload("FieldMappings", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&integration, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &integration, nil
}

func (r *integrationRepository) GetByOrganisation(ctx context.Context, orgID string) ([]*models.Integration, error) {
	var integrations []*models.Integration
	err := r.db.WithContext(ctx).
		Where("organisation_id = ?", orgID).
		Order("created_at DESC").
		Find(&integrations).Error
	return integrations, err
}

func (r *integrationRepository) Update(ctx context.Context, integration *models.Integration) error {
	return r.db.WithContext(ctx).Omit("FieldMappings").Save(integration).Error
}

func (r *integrationRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.Integration{}, "id = ?", id).Error
}

// ReplaceFieldMappings swaps the integration's mappings in one transaction
func (r *integrationRepository) ReplaceFieldMappings(ctx context.Context, integrationID string, mappings []models.FieldMapping) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("integration_id = ?", integrationID).Delete(&models.FieldMapping{}).Error; err != nil {
			return err
		}
		if len(mappings) == 0 {
			return nil
		}
		for i := range mappings {
			mappings[i].ID = ""
			mappings[i].IntegrationID = integrationID
			mappings[i].Position = i
		}
		return tx.Create(&mappings).Error
	})
}

func (r *integrationRepository) SetStatus(ctx context.Context, id string, status models.IntegrationStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Integration{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// RecordSyncOutcome applies the run's statistics as SQL increments so concurrent
// writers never lose updates
func (r *integrationRepository) RecordSyncOutcome(ctx context.Context, id string, outcome SyncOutcome) error {
	successful, failed := 0, 1
	if outcome.Succeeded {
		successful, failed = 1, 0
	}

	result := r.db.WithContext(ctx).
		Model(&models.Integration{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"total_syncs":          gorm.Expr("total_syncs + ?", 1),
			"successful_syncs":     gorm.Expr("successful_syncs + ?", successful),
			"failed_syncs":         gorm.Expr("failed_syncs + ?", failed),
			"total_records_synced": gorm.Expr("total_records_synced + ?", outcome.RecordsSynced),
			"total_conflicts":      gorm.Expr("total_conflicts + ?", outcome.Conflicts),
			"last_sync_at":         time.Now(),
			"last_sync_status":     outcome.Status,
			"status":               outcome.NextStatus,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
