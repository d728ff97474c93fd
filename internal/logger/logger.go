package logger

import (
	"multi-org-integration-platform/internal/config"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with additional functionality
type Logger struct {
	*logrus.Logger
}

// NewLogger creates a new structured logger instance
func NewLogger(cfg *config.Config) *Logger {
	log := logrus.New()

	// Set log level
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	// Set log format
	if cfg.Logging.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return &Logger{Logger: log}
}

// WithOrganisation adds organisation context to log entries
func (l *Logger) WithOrganisation(orgID string) *logrus.Entry {
	return l.WithField("organisation_id", orgID)
}

// WithIntegration adds integration context to log entries
func (l *Logger) WithIntegration(integrationID string) *logrus.Entry {
	return l.WithField("integration_id", integrationID)
}

// WithSyncRun adds integration and run context to log entries
func (l *Logger) WithSyncRun(integrationID, runID string) *logrus.Entry {
	return l.WithFields(logrus.Fields{
		"integration_id": integrationID,
		"run_id":         runID,
	})
}

// WithRequest adds request context to log entries
func (l *Logger) WithRequest(requestID string) *logrus.Entry {
	return l.WithField("request_id", requestID)
}

// WithBatch adds batch context to log entries
func (l *Logger) WithBatch(integrationID string, batchIndex, recordCount int) *logrus.Entry {
	return l.WithFields(logrus.Fields{
		"integration_id": integrationID,
		"batch_index":    batchIndex,
		"record_count":   recordCount,
	})
}
