package services

import (
	"multi-org-integration-platform/internal/config"
	"multi-org-integration-platform/internal/logger"
)

func createTestLogger() *logger.Logger {
	cfg := &config.Config{
		Logging: config.LoggingConfig{
			Level:  "error",
			Format: "text",
		},
	}
	return logger.NewLogger(cfg)
}
