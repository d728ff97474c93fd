package models

import (
	"time"
)

// TransformationRule names the value transformation applied while mapping a field
type TransformationRule string

const (
	TransformDirect   TransformationRule = "direct"
	TransformPhone    TransformationRule = "phone"
	TransformEmail    TransformationRule = "email"
	TransformDate     TransformationRule = "date"
	TransformCurrency TransformationRule = "currency"
	TransformName     TransformationRule = "name"
)

// TransformationRules lists every supported rule
var TransformationRules = []TransformationRule{
	TransformDirect,
	TransformPhone,
	TransformEmail,
	TransformDate,
	TransformCurrency,
	TransformName,
}

// IsValid reports whether the rule is one of the known transformation rules
func (r TransformationRule) IsValid() bool {
	for _, rule := range TransformationRules {
		if r == rule {
			return true
		}
	}
	return false
}

// FieldMapping represents a mapping between a source schema field and a target schema field
type FieldMapping struct {
	ID                 string             `json:"id,omitempty" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	IntegrationID      string             `json:"integration_id,omitempty" gorm:"type:uuid;not null;index"`
	Position           int                `json:"position" gorm:"not null;default:0"`
	SourceField        string             `json:"source_field" gorm:"not null" validate:"required"`
	TargetField        string             `json:"target_field" gorm:"not null" validate:"required"`
	TransformationRule TransformationRule `json:"transformation_rule" gorm:"not null;default:direct" validate:"omitempty,transformation_rule"`
	Confidence         float64            `json:"confidence" validate:"gte=0,lte=1"`
	CreatedAt          time.Time          `json:"created_at,omitempty"`
	UpdatedAt          time.Time          `json:"updated_at,omitempty"`
}

// TableName returns the table name for FieldMapping
func (FieldMapping) TableName() string {
	return "field_mappings"
}
