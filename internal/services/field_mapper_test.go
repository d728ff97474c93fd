package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"multi-org-integration-platform/internal/models"
)

func TestFieldMapper_Apply(t *testing.T) {
	mapper := NewFieldMapper(createTestLogger(), NewTransformer())

	record := SourceRecord{
		"Id":          "001",
		"FullName":    "  Ada   Lovelace ",
		"PhoneNumber": "5551234567",
		"Unmapped":    "ignored",
	}
	mappings := []models.FieldMapping{
		{SourceField: "Id", TargetField: "ExternalId", TransformationRule: models.TransformDirect},
		{SourceField: "FullName", TargetField: "Name", TransformationRule: models.TransformName},
		{SourceField: "PhoneNumber", TargetField: "Phone", TransformationRule: models.TransformPhone},
		{SourceField: "Email", TargetField: "Email", TransformationRule: models.TransformEmail},
	}

	mapped := mapper.Apply(record, mappings)

	assert.Equal(t, MappedRecord{
		"ExternalId": "001",
		"Name":       "Ada Lovelace",
		"Phone":      "(555) 123-4567",
		"Email":      nil,
	}, mapped)
}

func TestFieldMapper_LastMappingWins(t *testing.T) {
	mapper := NewFieldMapper(createTestLogger(), NewTransformer())

	mapped := mapper.Apply(SourceRecord{"First": "a", "Second": "b"}, []models.FieldMapping{
		{SourceField: "First", TargetField: "Target"},
		{SourceField: "Second", TargetField: "Target"},
	})

	assert.Equal(t, "b", mapped["Target"])
}

func TestFieldMapper_FailedTransformationKeepsValue(t *testing.T) {
	mapper := NewFieldMapper(createTestLogger(), NewTransformer())

	mapped := mapper.Apply(SourceRecord{"Code": "X1"}, []models.FieldMapping{
		{SourceField: "Code", TargetField: "Code", TransformationRule: "reverse"},
	})

	assert.Equal(t, "X1", mapped["Code"])
}

type panickingFunc struct {
	mock.Mock
}

func (p *panickingFunc) transform(value interface{}) interface{} {
	p.Called(value)
	panic("boom")
}

func TestFieldMapper_PanickingTransformationKeepsValue(t *testing.T) {
	fn := &panickingFunc{}
	fn.On("transform", "raw").Once()

	transformer := NewTransformer()
	transformer.funcs[models.TransformName] = fn.transform
	mapper := NewFieldMapper(createTestLogger(), transformer)

	mapped := mapper.Apply(SourceRecord{"Name": "raw"}, []models.FieldMapping{
		{SourceField: "Name", TargetField: "Name", TransformationRule: models.TransformName},
	})

	assert.Equal(t, "raw", mapped["Name"])
	fn.AssertExpectations(t)
}
