package services

import (
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multi-org-integration-platform/internal/config"
)

// unreachableRedis fails every command quickly
func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestJobProcessor_RetryScheduleFailureIsReported(t *testing.T) {
	log := createTestLogger()
	hook := test.NewLocal(log.Logger)
	jp := NewJobProcessor(unreachableRedis(t), &config.Config{}, log)
	t.Cleanup(jp.cancel)

	job := &BackgroundJob{ID: "job-1", Type: JobTypeIntegrationSync, MaxRetries: 3}
	jp.retryJob(job, errors.New("sync already in progress"))

	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "retry not scheduled")
	assert.Contains(t, job.Error, "sync already in progress")
	require.NotNil(t, job.CompletedAt)

	var messages []string
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.ErrorLevel {
			messages = append(messages, entry.Message)
		}
	}
	assert.Contains(t, messages, "Failed to schedule job retry")
	assert.Contains(t, messages, "Failed to record job")
	assert.Contains(t, messages, "Job failed")
}
