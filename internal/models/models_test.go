package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validIntegration() *Integration {
	return &Integration{
		OrganisationID:             "org-a",
		Name:                       "Accounts to Contacts",
		SourceOrganisationID:       "org-a",
		TargetOrganisationID:       "org-b",
		SourceSchema:               "Account",
		TargetSchema:               "Contact",
		ConflictResolutionStrategy: StrategyLatestWins,
		FieldMappings: []FieldMapping{
			{SourceField: "Id", TargetField: "AccountId", TransformationRule: TransformDirect, Confidence: 0.95},
		},
	}
}

func TestValidationService(t *testing.T) {
	validator := NewValidationService()

	t.Run("Organisation validation", func(t *testing.T) {
		org := &Organisation{
			Name:        "Test Organisation",
			InstanceURL: "https://org-a.example.com",
			IsActive:    true,
		}
		err := validator.ValidateStruct(org)
		assert.NoError(t, err)

		org.Name = ""
		err = validator.ValidateStruct(org)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "name")

		org.Name = strings.Repeat("a", 256)
		err = validator.ValidateStruct(org)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "at most 255")

		org.Name = "Test Organisation"
		org.InstanceURL = "not a url"
		err = validator.ValidateStruct(org)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "instance_url")
	})

	t.Run("Organisation authentication type", func(t *testing.T) {
		org := &Organisation{Name: "Org", InstanceURL: "https://org.example.com"}

		// an empty type means no authentication, as the connector treats it
		assert.NoError(t, validator.ValidateStruct(org))

		org.Authentication.Type = AuthTypeBasic
		assert.NoError(t, validator.ValidateStruct(org))

		org.Authentication.Type = "oauth"
		err := validator.ValidateStruct(org)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "type")
	})

	t.Run("Integration struct validation", func(t *testing.T) {
		integration := validIntegration()
		assert.NoError(t, validator.ValidateStruct(integration))

		integration.ConflictResolutionStrategy = "first-wins"
		err := validator.ValidateStruct(integration)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "conflict_resolution_strategy")
	})

	t.Run("SyncLog validation", func(t *testing.T) {
		log := &SyncLog{IntegrationID: "int-1", RunID: "run-1", Status: SyncStatusCancelled}
		assert.NoError(t, validator.ValidateStruct(log))

		log.Status = "running"
		assert.Error(t, validator.ValidateStruct(log))
	})
}

func TestValidateIntegration(t *testing.T) {
	validator := NewValidationService()

	t.Run("valid integration", func(t *testing.T) {
		assert.NoError(t, validator.ValidateIntegration(validIntegration()))
	})

	t.Run("empty strategy is accepted", func(t *testing.T) {
		integration := validIntegration()
		integration.ConflictResolutionStrategy = ""
		assert.NoError(t, validator.ValidateIntegration(integration))
	})

	t.Run("nil integration", func(t *testing.T) {
		assert.Error(t, validator.ValidateIntegration(nil))
	})

	t.Run("every problem is reported", func(t *testing.T) {
		integration := validIntegration()
		integration.SourceSchema = " "
		integration.TargetSchema = ""
		integration.ConflictResolutionStrategy = "coin-flip"
		integration.FieldMappings = nil

		err := validator.ValidateIntegration(integration)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "source_schema")
		assert.Contains(t, err.Error(), "target_schema")
		assert.Contains(t, err.Error(), "coin-flip")
		assert.Contains(t, err.Error(), "at least one mapping")
	})

	t.Run("invalid mapping", func(t *testing.T) {
		integration := validIntegration()
		integration.FieldMappings = append(integration.FieldMappings, FieldMapping{SourceField: "Name"})

		err := validator.ValidateIntegration(integration)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mapping 1")
		assert.Contains(t, err.Error(), "target_field")
	})
}

func TestIntegrationMethods(t *testing.T) {
	t.Run("SuccessRate", func(t *testing.T) {
		integration := &Integration{}
		assert.Equal(t, 0.0, integration.SuccessRate())

		integration.TotalSyncs = 4
		integration.SuccessfulSyncs = 3
		assert.Equal(t, 75.0, integration.SuccessRate())
	})

	t.Run("Key fields", func(t *testing.T) {
		integration := &Integration{}
		assert.Equal(t, "Id", integration.SourceKey("Id"))
		assert.Equal(t, "Id", integration.TargetKey("Id"))

		integration.SourceKeyField = "ExternalId"
		integration.TargetKeyField = "LegacyId"
		assert.Equal(t, "ExternalId", integration.SourceKey("Id"))
		assert.Equal(t, "LegacyId", integration.TargetKey("Id"))
	})

	t.Run("IsSyncing", func(t *testing.T) {
		integration := &Integration{Status: IntegrationStatusSyncing}
		assert.True(t, integration.IsSyncing())
		integration.Status = IntegrationStatusIdle
		assert.False(t, integration.IsSyncing())
	})
}

func TestSyncLogMethods(t *testing.T) {
	t.Run("IsError", func(t *testing.T) {
		assert.False(t, (&SyncLog{Status: SyncStatusCompleted}).IsError())
		assert.True(t, (&SyncLog{Status: SyncStatusFailed}).IsError())
		assert.True(t, (&SyncLog{Status: SyncStatusCompleted, ErrorMessage: "partial"}).IsError())
	})

	t.Run("IsSuccess", func(t *testing.T) {
		assert.True(t, (&SyncLog{Status: SyncStatusCompleted}).IsSuccess())
		assert.False(t, (&SyncLog{Status: SyncStatusCompleted, FailedRecords: 2}).IsSuccess())
		assert.False(t, (&SyncLog{Status: SyncStatusCancelled}).IsSuccess())
	})
}

func TestAuthenticationConfigSerialization(t *testing.T) {
	t.Run("Database Value/Scan", func(t *testing.T) {
		auth := AuthenticationConfig{
			Type:       AuthTypeBearer,
			Parameters: map[string]string{"token": "abc"},
		}

		value, err := auth.Value()
		require.NoError(t, err)

		var scanned AuthenticationConfig
		require.NoError(t, scanned.Scan(value))
		assert.Equal(t, auth, scanned)
	})

	t.Run("Scan with nil value", func(t *testing.T) {
		var auth AuthenticationConfig
		assert.NoError(t, auth.Scan(nil))
	})

	t.Run("Scan with invalid type", func(t *testing.T) {
		var auth AuthenticationConfig
		assert.Error(t, auth.Scan(42))
	})
}

func TestJSONMap(t *testing.T) {
	t.Run("nil map stores NULL", func(t *testing.T) {
		var m JSONMap
		value, err := m.Value()
		require.NoError(t, err)
		assert.Nil(t, value)
	})

	t.Run("Scan accepts text and bytes", func(t *testing.T) {
		var fromBytes, fromString JSONMap
		require.NoError(t, fromBytes.Scan([]byte(`{"batch_errors":[]}`)))
		require.NoError(t, fromString.Scan(`{"batch_errors":[]}`))
		assert.Equal(t, fromBytes, fromString)
		assert.Contains(t, fromBytes, "batch_errors")
	})

	t.Run("Scan with invalid type", func(t *testing.T) {
		var m JSONMap
		assert.Error(t, m.Scan(3.14))
	})
}

func TestModelTableNames(t *testing.T) {
	assert.Equal(t, "organisations", Organisation{}.TableName())
	assert.Equal(t, "integrations", Integration{}.TableName())
	assert.Equal(t, "field_mappings", FieldMapping{}.TableName())
	assert.Equal(t, "sync_logs", SyncLog{}.TableName())
}

func TestProperty_StrategyRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("only the four strategies are valid", prop.ForAll(
		func(s string) bool {
			strategy := ResolutionStrategy(s)
			known := s == "source-wins" || s == "target-wins" || s == "latest-wins" || s == "ai-resolve"
			return strategy.IsValid() == known
		},
		gen.OneGenOf(
			gen.AlphaString(),
			gen.OneConstOf("source-wins", "target-wins", "latest-wins", "ai-resolve"),
		),
	))

	properties.Property("integrations serialise their strategy verbatim", prop.ForAll(
		func(s string) bool {
			integration := validIntegration()
			integration.ConflictResolutionStrategy = ResolutionStrategy(s)
			data, err := json.Marshal(integration)
			if err != nil {
				return false
			}
			var decoded Integration
			if err := json.Unmarshal(data, &decoded); err != nil {
				return false
			}
			return decoded.ConflictResolutionStrategy == integration.ConflictResolutionStrategy
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
