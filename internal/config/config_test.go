package config

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProperty_SyncConfigBounds(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("sync configuration keeps batch size and thresholds in range", prop.ForAll(
		func(batchSize int, threshold float64) bool {
			config := &Config{
				Sync: SyncConfig{
					BatchSize:                  batchSize,
					InterBatchPauseMs:          200,
					MappingConfidenceThreshold: threshold,
					MaxSuggestedMappings:       20,
				},
				Logging: LoggingConfig{
					Level:  "info",
					Format: "json",
				},
			}

			if config.Sync.BatchSize <= 0 {
				return false
			}
			if config.Sync.MappingConfidenceThreshold < 0 || config.Sync.MappingConfidenceThreshold > 1 {
				return false
			}
			return config.Logging.Level != "" && config.Logging.Format != ""
		},
		gen.IntRange(1, 1000),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig()
	require.NoError(t, err)
	assert.NotNil(t, config)

	// Verify default values are set
	assert.Equal(t, "8080", config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, "localhost", config.Database.Host)
	assert.Equal(t, 5432, config.Database.Port)
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "json", config.Logging.Format)

	assert.Equal(t, 50, config.Sync.BatchSize)
	assert.Equal(t, 200, config.Sync.InterBatchPauseMs)
	assert.InDelta(t, 0.70, config.Sync.MappingConfidenceThreshold, 0.0001)
	assert.Equal(t, 20, config.Sync.MaxSuggestedMappings)
	assert.Equal(t, "Id", config.Sync.DefaultKeyField)
	assert.Equal(t, 60, config.Server.RateLimitPerMinute)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("AUTH_API_SECRET", "from-env")
	t.Setenv("BROKER_URL", "tcp://broker:1883")
	t.Setenv("SYNC_BATCH_SIZE", "25")

	config, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "from-env", config.Auth.APISecret)
	assert.Equal(t, "tcp://broker:1883", config.Broker.URL)
	assert.Equal(t, 25, config.Sync.BatchSize)
}
