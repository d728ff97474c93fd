package services

import (
	"fmt"

	"multi-org-integration-platform/internal/logger"
	"multi-org-integration-platform/internal/models"
)

// FieldMapper applies an integration's field mappings to source records
type FieldMapper struct {
	logger      *logger.Logger
	transformer *Transformer
}

// NewFieldMapper creates a new field mapper
func NewFieldMapper(logger *logger.Logger, transformer *Transformer) *FieldMapper {
	return &FieldMapper{
		logger:      logger,
		transformer: transformer,
	}
}

// Apply maps record into a new record keyed by target field. Mappings are applied
// in order, so the last mapping writing a target field wins.
func (m *FieldMapper) Apply(record SourceRecord, mappings []models.FieldMapping) MappedRecord {
	result := make(MappedRecord, len(mappings))

	for _, mapping := range mappings {
		value := record[mapping.SourceField]
		if value != nil {
			value = m.transform(mapping, value)
		}
		result[mapping.TargetField] = value
	}

	return result
}

// transform applies the mapping's rule, falling back to the raw value on failure
func (m *FieldMapper) transform(mapping models.FieldMapping, value interface{}) (result interface{}) {
	defer func() {
		if r := recover(); r != nil {
			m.logTransformFailure(mapping, &TransformError{
				Rule:  string(mapping.TransformationRule),
				Value: value,
				Err:   fmt.Errorf("panic: %v", r),
			})
			result = value
		}
	}()

	transformed, err := m.transformer.Apply(mapping.TransformationRule, value)
	if err != nil {
		m.logTransformFailure(mapping, err)
		return value
	}
	return transformed
}

func (m *FieldMapper) logTransformFailure(mapping models.FieldMapping, err error) {
	m.logger.WithError(err).
		WithField("source_field", mapping.SourceField).
		WithField("target_field", mapping.TargetField).
		WithField("rule", string(mapping.TransformationRule)).
		Warn("Transformation failed, using untransformed value")
}
