package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Sync         SyncConfig         `mapstructure:"sync"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Broker       BrokerConfig       `mapstructure:"broker"`
	JobProcessor JobProcessorConfig `mapstructure:"job_processor"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port         string `mapstructure:"port"`
	Host         string `mapstructure:"host"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`

	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SyncConfig holds the batch sync pipeline tuning
type SyncConfig struct {
	BatchSize                  int     `mapstructure:"batch_size"`
	InterBatchPauseMs          int     `mapstructure:"inter_batch_pause_ms"`
	MappingConfidenceThreshold float64 `mapstructure:"mapping_confidence_threshold"`
	MaxSuggestedMappings       int     `mapstructure:"max_suggested_mappings"`
	LockTTLSeconds             int     `mapstructure:"lock_ttl_seconds"`
	DefaultKeyField            string  `mapstructure:"default_key_field"`
	RequestTimeout             int     `mapstructure:"request_timeout"`
}

// AuthConfig holds the connector session token and API token settings
type AuthConfig struct {
	SessionSecret     string `mapstructure:"session_secret"`
	SessionTTLSeconds int    `mapstructure:"session_ttl_seconds"`
	VerifyConnection  bool   `mapstructure:"verify_connection"`
	APISecret         string `mapstructure:"api_secret"`
	APITokenTTLHours  int    `mapstructure:"api_token_ttl_hours"`
}

// BrokerConfig holds MQTT event broker configuration
type BrokerConfig struct {
	URL         string `mapstructure:"url"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// JobProcessorConfig holds background job processing configuration
type JobProcessorConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	Workers    int  `mapstructure:"workers"`
	MaxRetries int  `mapstructure:"max_retries"`
	JobTimeout int  `mapstructure:"job_timeout"`
}

// LoadConfig loads configuration from environment and config files
func LoadConfig() (*Config, error) {
	// A missing .env file is the normal case outside local development
	_ = godotenv.Load()

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.idle_timeout", 120)
	viper.SetDefault("server.rate_limit_per_minute", 60)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.dbname", "")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("sync.batch_size", 50)
	viper.SetDefault("sync.inter_batch_pause_ms", 200)
	viper.SetDefault("sync.mapping_confidence_threshold", 0.70)
	viper.SetDefault("sync.max_suggested_mappings", 20)
	viper.SetDefault("sync.lock_ttl_seconds", 900)
	viper.SetDefault("sync.default_key_field", "Id")
	viper.SetDefault("sync.request_timeout", 30)
	// Keys need a registered default for AutomaticEnv to reach Unmarshal
	viper.SetDefault("auth.session_secret", "")
	viper.SetDefault("auth.api_secret", "")
	viper.SetDefault("auth.session_ttl_seconds", 900)
	viper.SetDefault("auth.verify_connection", true)
	viper.SetDefault("auth.api_token_ttl_hours", 24)
	viper.SetDefault("broker.url", "")
	viper.SetDefault("broker.username", "")
	viper.SetDefault("broker.password", "")
	viper.SetDefault("broker.client_id", "multi-org-integration-platform")
	viper.SetDefault("broker.topic_prefix", "integrations")
	viper.SetDefault("job_processor.enabled", true)
	viper.SetDefault("job_processor.workers", 4)
	viper.SetDefault("job_processor.max_retries", 3)
	viper.SetDefault("job_processor.job_timeout", 1800)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
