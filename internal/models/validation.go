package models

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationService provides model validation functionality
type ValidationService struct {
	validator *validator.Validate
}

// NewValidationService creates a new validation service
func NewValidationService() *ValidationService {
	v := validator.New()

	// Register custom tag name function to use json tags
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterValidation("transformation_rule", func(fl validator.FieldLevel) bool {
		return TransformationRule(fl.Field().String()).IsValid()
	})
	v.RegisterValidation("resolution_strategy", func(fl validator.FieldLevel) bool {
		return ResolutionStrategy(fl.Field().String()).IsValid()
	})

	return &ValidationService{validator: v}
}

// ValidateStruct validates a struct and returns detailed error information
func (vs *ValidationService) ValidateStruct(s interface{}) error {
	if err := vs.validator.Struct(s); err != nil {
		validationErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return fmt.Errorf("validation failed: %w", err)
		}

		var validationErrors []string
		for _, err := range validationErrs {
			validationErrors = append(validationErrors, fmt.Sprintf(
				"field '%s' failed validation: %s",
				err.Field(),
				vs.getErrorMessage(err),
			))
		}

		return fmt.Errorf("validation failed: %s", strings.Join(validationErrors, "; "))
	}

	return nil
}

// ValidateIntegration checks the preconditions a sync run needs before it can start
func (vs *ValidationService) ValidateIntegration(integration *Integration) error {
	if integration == nil {
		return fmt.Errorf("validation failed: integration is required")
	}

	var problems []string
	if strings.TrimSpace(integration.SourceSchema) == "" {
		problems = append(problems, "field 'source_schema' failed validation: this field is required")
	}
	if strings.TrimSpace(integration.TargetSchema) == "" {
		problems = append(problems, "field 'target_schema' failed validation: this field is required")
	}
	if integration.ConflictResolutionStrategy != "" && !integration.ConflictResolutionStrategy.IsValid() {
		problems = append(problems, fmt.Sprintf("field 'conflict_resolution_strategy' failed validation: unknown strategy %q", integration.ConflictResolutionStrategy))
	}
	if len(integration.FieldMappings) == 0 {
		problems = append(problems, "field 'field_mappings' failed validation: at least one mapping is required")
	}
	for i := range integration.FieldMappings {
		if err := vs.ValidateStruct(&integration.FieldMappings[i]); err != nil {
			problems = append(problems, fmt.Sprintf("mapping %d: %v", i, err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

// getErrorMessage returns a human-readable error message for validation errors
func (vs *ValidationService) getErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters long", err.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters long", err.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", err.Param())
	case "url":
		return "must be a valid URL"
	case "transformation_rule":
		return "must be one of: direct, phone, email, date, currency, name"
	case "resolution_strategy":
		return "must be one of: source-wins, target-wins, latest-wins, ai-resolve"
	default:
		return fmt.Sprintf("failed %s validation", err.Tag())
	}
}
