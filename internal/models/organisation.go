package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Organisation represents one org-like data source an integration reads from or writes to
type Organisation struct {
	ID             string               `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	Name           string               `json:"name" gorm:"not null;uniqueIndex" validate:"required,min=1,max=255"`
	InstanceURL    string               `json:"instance_url" gorm:"not null" validate:"required,url"`
	Authentication AuthenticationConfig `json:"authentication" gorm:"type:jsonb"`
	IsActive       bool                 `json:"is_active" gorm:"default:true"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
	DeletedAt      gorm.DeletedAt       `json:"-" gorm:"index"`

	// Relationships
	Integrations []Integration `json:"integrations,omitempty" gorm:"foreignKey:OrganisationID"`
}

// TableName returns the table name for Organisation
func (Organisation) TableName() string {
	return "organisations"
}

// Authentication types supported by the REST connector
const (
	AuthTypeAPIKey = "api_key"
	AuthTypeBearer = "bearer"
	AuthTypeBasic  = "basic"
	AuthTypeNone   = "none"
)

// AuthenticationConfig holds the credentials used to reach an organisation's instance
type AuthenticationConfig struct {
	Type       string            `json:"type" validate:"omitempty,oneof=api_key bearer basic none"`
	Parameters map[string]string `json:"parameters"`
}

// Value implements driver.Valuer interface for GORM
func (a AuthenticationConfig) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements sql.Scanner interface for GORM
func (a *AuthenticationConfig) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into AuthenticationConfig", value)
	}

	return json.Unmarshal(bytes, a)
}
