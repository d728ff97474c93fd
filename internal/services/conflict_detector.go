package services

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"time"
)

// ConflictDataType classifies the values in conflict so the resolver can merge them
type ConflictDataType string

const (
	DataTypeString  ConflictDataType = "String"
	DataTypeNumber  ConflictDataType = "Number"
	DataTypeDate    ConflictDataType = "Date"
	DataTypeBoolean ConflictDataType = "Boolean"
)

// ConflictType distinguishes plain value disagreements from concurrent updates
type ConflictType string

const (
	ConflictTypeData   ConflictType = "DATA_CONFLICT"
	ConflictTypeUpdate ConflictType = "UPDATE_CONFLICT"
)

// Conflict is a disagreement between a freshly mapped value and the destination's value
type Conflict struct {
	Field           string           `json:"field"`
	SourceValue     interface{}      `json:"source_value"`
	TargetValue     interface{}      `json:"target_value"`
	DataType        ConflictDataType `json:"data_type"`
	Type            ConflictType     `json:"type"`
	SourceUpdatedAt *time.Time       `json:"source_updated_at,omitempty"`
	TargetUpdatedAt *time.Time       `json:"target_updated_at,omitempty"`
}

// DetectionContext identifies the destination record a mapped record is compared with
type DetectionContext struct {
	Schema          string
	RecordKey       string
	Credential      *Credential
	SourceUpdatedAt *time.Time
}

// DestinationConflictDetector compares mapped records with the records stored at the destination
type DestinationConflictDetector struct {
	reader DestinationReader
}

// NewDestinationConflictDetector creates a detector reading through reader
func NewDestinationConflictDetector(reader DestinationReader) *DestinationConflictDetector {
	return &DestinationConflictDetector{reader: reader}
}

// Detect reports every mapped field whose value differs from the stored one.
// Records without a key or not yet present at the destination have no conflicts.
func (d *DestinationConflictDetector) Detect(ctx context.Context, record MappedRecord, dc DetectionContext) ([]Conflict, error) {
	if dc.RecordKey == "" {
		return nil, nil
	}

	existing, err := d.reader.Lookup(ctx, dc.Schema, dc.RecordKey, dc.Credential)
	if err != nil {
		return nil, fmt.Errorf("failed to look up destination record %s: %w", dc.RecordKey, err)
	}
	if existing == nil {
		return nil, nil
	}

	conflictType := ConflictTypeData
	if dc.SourceUpdatedAt != nil && existing.UpdatedAt != nil && existing.UpdatedAt.After(*dc.SourceUpdatedAt) {
		conflictType = ConflictTypeUpdate
	}

	var conflicts []Conflict
	for _, field := range sortedKeys(record) {
		sourceValue := record[field]
		targetValue, ok := existing.Fields[field]
		if !ok || sourceValue == nil || targetValue == nil {
			continue
		}
		if valuesEqual(sourceValue, targetValue) {
			continue
		}
		conflicts = append(conflicts, Conflict{
			Field:           field,
			SourceValue:     sourceValue,
			TargetValue:     targetValue,
			DataType:        InferDataType(sourceValue),
			Type:            conflictType,
			SourceUpdatedAt: dc.SourceUpdatedAt,
			TargetUpdatedAt: existing.UpdatedAt,
		})
	}

	return conflicts, nil
}

// SyntheticConflictDetector flags a fixed set of fields with a fixed target value.
// It exists for fixtures and demos and never reads the destination.
type SyntheticConflictDetector struct {
	Fields      []string
	TargetValue func(field string, sourceValue interface{}) interface{}
}

// Detect reports a conflict for every configured field present in the record
func (d *SyntheticConflictDetector) Detect(ctx context.Context, record MappedRecord, dc DetectionContext) ([]Conflict, error) {
	var conflicts []Conflict
	for _, field := range d.Fields {
		sourceValue, ok := record[field]
		if !ok || sourceValue == nil {
			continue
		}
		var targetValue interface{} = fmt.Sprintf("%v (destination)", sourceValue)
		if d.TargetValue != nil {
			targetValue = d.TargetValue(field, sourceValue)
		}
		conflicts = append(conflicts, Conflict{
			Field:       field,
			SourceValue: sourceValue,
			TargetValue: targetValue,
			DataType:    InferDataType(sourceValue),
			Type:        ConflictTypeData,
		})
	}
	return conflicts, nil
}

// InferDataType classifies a value for merge purposes
func InferDataType(value interface{}) ConflictDataType {
	switch v := value.(type) {
	case bool:
		return DataTypeBoolean
	case time.Time, *time.Time:
		return DataTypeDate
	case string:
		if _, ok := parseDate(v); ok {
			return DataTypeDate
		}
		return DataTypeString
	}
	if _, ok := toFloat(value); ok {
		return DataTypeNumber
	}
	return DataTypeString
}

// valuesEqual compares two scalar values, treating all numeric types alike
func valuesEqual(a, b interface{}) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum && bNum {
		return fa == fb
	}
	ta, aDate := a.(time.Time)
	tb, bDate := b.(time.Time)
	if aDate && bDate {
		return ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

func sortedKeys(record MappedRecord) []string {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
