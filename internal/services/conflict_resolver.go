package services

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"multi-org-integration-platform/internal/logger"
	"multi-org-integration-platform/internal/models"
)

// Resolution is the outcome of resolving one conflict
type Resolution struct {
	Field         string      `json:"field"`
	SourceValue   interface{} `json:"source_value"`
	TargetValue   interface{} `json:"target_value"`
	ResolvedValue interface{} `json:"resolved_value"`
	Confidence    float64     `json:"confidence"`
	Resolved      bool        `json:"resolved"`
	Reasoning     string      `json:"reasoning"`
}

// ResolutionBatch aggregates the resolutions of one record's conflicts
type ResolutionBatch struct {
	Strategy          models.ResolutionStrategy `json:"strategy"`
	TotalConflicts    int                       `json:"total_conflicts"`
	ResolvedConflicts int                       `json:"resolved_conflicts"`
	Resolutions       []Resolution              `json:"resolutions"`
	OverallConfidence float64                   `json:"overall_confidence"`
}

// FieldPriority ranks fields for heuristic resolution
type FieldPriority string

const (
	PriorityHigh   FieldPriority = "high"
	PriorityMedium FieldPriority = "medium"
	PriorityLow    FieldPriority = "low"
)

var fieldPriorities = map[string]FieldPriority{
	"Email":       PriorityHigh,
	"Phone":       PriorityHigh,
	"Name":        PriorityHigh,
	"Amount":      PriorityHigh,
	"CloseDate":   PriorityHigh,
	"Description": PriorityMedium,
	"Notes":       PriorityLow,
}

// Confidence assigned to each kind of decision
const (
	confidenceSideSelection = 1.0
	confidenceLatest        = 0.9
	confidenceLatestUnknown = 0.6
	confidenceEmailOneValid = 0.9
	confidenceEmailBoth     = 0.8
	confidencePhone         = 0.85
	confidenceName          = 0.8
	confidenceHighDefault   = 0.75
	confidenceMerge         = 0.7
	confidenceDegraded      = 0.5
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ConflictResolver computes a resolved value for each detected conflict
type ConflictResolver struct {
	logger *logger.Logger
}

// NewConflictResolver creates a new conflict resolver
func NewConflictResolver(logger *logger.Logger) *ConflictResolver {
	return &ConflictResolver{logger: logger}
}

// Resolve resolves every conflict with strategy. A conflict that cannot be resolved
// keeps the source value and is reported unresolved; it never aborts the batch.
func (r *ConflictResolver) Resolve(conflicts []Conflict, strategy models.ResolutionStrategy) *ResolutionBatch {
	batch := &ResolutionBatch{
		Strategy:       strategy,
		TotalConflicts: len(conflicts),
		Resolutions:    make([]Resolution, 0, len(conflicts)),
	}

	var confidenceSum float64
	for _, conflict := range conflicts {
		resolution := r.resolveOne(conflict, strategy)
		if resolution.Resolved {
			batch.ResolvedConflicts++
		}
		confidenceSum += resolution.Confidence
		batch.Resolutions = append(batch.Resolutions, resolution)
	}

	if len(batch.Resolutions) > 0 {
		batch.OverallConfidence = confidenceSum / float64(len(batch.Resolutions))
	}

	return batch
}

func (r *ConflictResolver) resolveOne(conflict Conflict, strategy models.ResolutionStrategy) (resolution Resolution) {
	defer func() {
		if rec := recover(); rec != nil {
			resolution = r.degraded(conflict, fmt.Errorf("panic: %v", rec))
		}
	}()

	var (
		value      interface{}
		confidence float64
		reasoning  string
		err        error
	)

	switch strategy {
	case models.StrategySourceWins:
		value, confidence, reasoning = conflict.SourceValue, confidenceSideSelection, "source value wins by strategy"
	case models.StrategyTargetWins:
		value, confidence, reasoning = conflict.TargetValue, confidenceSideSelection, "target value wins by strategy"
	case models.StrategyLatestWins:
		value, confidence, reasoning = resolveLatest(conflict)
	case models.StrategyAIResolve:
		value, confidence, reasoning, err = resolveByPriority(conflict)
	default:
		err = fmt.Errorf("unknown resolution strategy %q", strategy)
	}

	if err != nil {
		return r.degraded(conflict, err)
	}
	if value == nil {
		return r.degraded(conflict, fmt.Errorf("strategy %s produced no value", strategy))
	}

	return Resolution{
		Field:         conflict.Field,
		SourceValue:   conflict.SourceValue,
		TargetValue:   conflict.TargetValue,
		ResolvedValue: value,
		Confidence:    confidence,
		Resolved:      true,
		Reasoning:     reasoning,
	}
}

func (r *ConflictResolver) degraded(conflict Conflict, err error) Resolution {
	r.logger.WithError(err).
		WithField("field", conflict.Field).
		Warn("Conflict resolution failed, keeping source value")

	return Resolution{
		Field:         conflict.Field,
		SourceValue:   conflict.SourceValue,
		TargetValue:   conflict.TargetValue,
		ResolvedValue: conflict.SourceValue,
		Confidence:    confidenceDegraded,
		Resolved:      false,
		Reasoning:     fmt.Sprintf("resolution failed: %v", err),
	}
}

func resolveLatest(conflict Conflict) (interface{}, float64, string) {
	if conflict.SourceUpdatedAt == nil || conflict.TargetUpdatedAt == nil {
		return conflict.SourceValue, confidenceLatestUnknown, "update timestamps unavailable, using source value"
	}
	if conflict.TargetUpdatedAt.After(*conflict.SourceUpdatedAt) {
		return conflict.TargetValue, confidenceLatest, "target was updated more recently"
	}
	return conflict.SourceValue, confidenceLatest, "source was updated more recently"
}

// PriorityOf returns the resolution priority of a field
func PriorityOf(field string) FieldPriority {
	if p, ok := fieldPriorities[field]; ok {
		return p
	}
	return PriorityMedium
}

func resolveByPriority(conflict Conflict) (interface{}, float64, string, error) {
	if PriorityOf(conflict.Field) != PriorityHigh {
		value, err := MergeValues(conflict.DataType, conflict.SourceValue, conflict.TargetValue)
		if err != nil {
			return nil, 0, "", err
		}
		return value, confidenceMerge, fmt.Sprintf("merged %s values", conflict.DataType), nil
	}

	switch conflict.Field {
	case "Email":
		value, confidence, reasoning := resolveEmail(conflict.SourceValue, conflict.TargetValue)
		return value, confidence, reasoning, nil
	case "Phone":
		if countDigits(fmt.Sprint(conflict.TargetValue)) > countDigits(fmt.Sprint(conflict.SourceValue)) {
			return conflict.TargetValue, confidencePhone, "target phone has more digits", nil
		}
		return conflict.SourceValue, confidencePhone, "source phone has at least as many digits", nil
	case "Name":
		if len([]rune(fmt.Sprint(conflict.TargetValue))) > len([]rune(fmt.Sprint(conflict.SourceValue))) {
			return conflict.TargetValue, confidenceName, "target name is more complete", nil
		}
		return conflict.SourceValue, confidenceName, "source name is at least as complete", nil
	}

	return conflict.SourceValue, confidenceHighDefault, "high priority field defaults to source value", nil
}

func resolveEmail(source, target interface{}) (interface{}, float64, string) {
	sourceEmail, _ := source.(string)
	targetEmail, _ := target.(string)
	sourceValid := IsValidEmail(sourceEmail)
	targetValid := IsValidEmail(targetEmail)

	switch {
	case sourceValid && targetValid:
		if len(targetEmail) > len(sourceEmail) {
			return target, confidenceEmailBoth, "both emails valid, target is longer"
		}
		return source, confidenceEmailBoth, "both emails valid, source is at least as long"
	case sourceValid:
		return source, confidenceEmailOneValid, "only source email is valid"
	case targetValid:
		return target, confidenceEmailOneValid, "only target email is valid"
	}
	return source, confidenceDegraded, "neither email is valid, using source value"
}

// IsValidEmail performs a basic local@domain.tld check
func IsValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// MergeValues combines two conflicting values by data type: strings are joined
// with " | ", numbers take the max, dates take the later one and booleans are ORed
func MergeValues(dataType ConflictDataType, source, target interface{}) (interface{}, error) {
	switch dataType {
	case DataTypeString:
		s := stringValue(source)
		t := stringValue(target)
		switch {
		case s != "" && t != "":
			if s == t {
				return s, nil
			}
			return s + " | " + t, nil
		case s != "":
			return s, nil
		case t != "":
			return t, nil
		}
		return nil, fmt.Errorf("both values are empty")

	case DataTypeNumber:
		s, sok := toFloat(source)
		t, tok := toFloat(target)
		if !sok || !tok {
			return nil, fmt.Errorf("cannot merge non-numeric values %v and %v", source, target)
		}
		if t > s {
			return target, nil
		}
		return source, nil

	case DataTypeDate:
		s, sok := parseDate(source)
		t, tok := parseDate(target)
		if !sok || !tok {
			return nil, fmt.Errorf("cannot merge non-date values %v and %v", source, target)
		}
		if t.After(s) {
			return target, nil
		}
		return source, nil

	case DataTypeBoolean:
		s, sok := source.(bool)
		t, tok := target.(bool)
		if !sok || !tok {
			return nil, fmt.Errorf("cannot merge non-boolean values %v and %v", source, target)
		}
		return s || t, nil
	}

	return nil, fmt.Errorf("unknown data type %q", dataType)
}

func stringValue(v interface{}) string {
	if v == nil {
		return ""
	}
	if t, ok := v.(time.Time); ok {
		return t.Format(time.RFC3339)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
