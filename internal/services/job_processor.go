package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"multi-org-integration-platform/internal/config"
	"multi-org-integration-platform/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// JobProcessor runs queued sync jobs from a Redis list
type JobProcessor struct {
	redis       *redis.Client
	logger      *logger.Logger
	workers     int
	maxRetries  int
	jobTimeout  time.Duration
	jobHandlers map[string]JobHandler
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// JobHandler defines the interface for job handlers
type JobHandler interface {
	Handle(ctx context.Context, job *BackgroundJob) error
}

// BackgroundJob represents a queued job
type BackgroundJob struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Data        map[string]interface{} `json:"data"`
	MaxRetries  int                    `json:"max_retries"`
	RetryCount  int                    `json:"retry_count"`
	CreatedAt   time.Time              `json:"created_at"`
	ScheduledAt time.Time              `json:"scheduled_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Status      JobStatus              `json:"status"`
}

// JobStatus represents the status of a background job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// Job types
const (
	JobTypeIntegrationSync = "integration_sync"
)

// Redis keys for job queues
const (
	JobQueueKey      = "sync_jobs:queue"
	JobProcessingKey = "sync_jobs:processing"
	JobCompletedKey  = "sync_jobs:completed"
	JobFailedKey     = "sync_jobs:failed"
	JobScheduledKey  = "sync_jobs:scheduled"
)

// finished job lists are capped so they do not grow without bound
const jobHistoryLimit = 1000

// NewJobProcessor creates a new job processor
func NewJobProcessor(redis *redis.Client, cfg *config.Config, logger *logger.Logger) *JobProcessor {
	ctx, cancel := context.WithCancel(context.Background())

	workers := cfg.JobProcessor.Workers
	if workers <= 0 {
		workers = 1
	}
	timeout := time.Duration(cfg.JobProcessor.JobTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}

	return &JobProcessor{
		redis:       redis,
		logger:      logger,
		workers:     workers,
		maxRetries:  cfg.JobProcessor.MaxRetries,
		jobTimeout:  timeout,
		jobHandlers: make(map[string]JobHandler),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// RegisterHandler registers a job handler for a specific job type
func (jp *JobProcessor) RegisterHandler(jobType string, handler JobHandler) {
	jp.mu.Lock()
	defer jp.mu.Unlock()
	jp.jobHandlers[jobType] = handler
}

// Start begins processing jobs
func (jp *JobProcessor) Start() {
	jp.logger.WithField("workers", jp.workers).Info("Starting job processor")

	for i := 0; i < jp.workers; i++ {
		jp.wg.Add(1)
		go jp.worker(i)
	}

	jp.wg.Add(1)
	go jp.scheduledJobProcessor()
}

// Stop gracefully stops the job processor
func (jp *JobProcessor) Stop() {
	jp.logger.Info("Stopping job processor")
	jp.cancel()
	jp.wg.Wait()
	jp.logger.Info("Job processor stopped")
}

// EnqueueJob adds a job to the processing queue
func (jp *JobProcessor) EnqueueJob(ctx context.Context, job *BackgroundJob) error {
	job.CreatedAt = time.Now()
	job.Status = JobStatusPending

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = jp.maxRetries
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if job.ScheduledAt.IsZero() || job.ScheduledAt.Before(time.Now()) {
		if err := jp.redis.LPush(ctx, JobQueueKey, jobData).Err(); err != nil {
			return fmt.Errorf("failed to enqueue job: %w", err)
		}
	} else {
		if err := jp.redis.ZAdd(ctx, JobScheduledKey, &redis.Z{
			Score:  float64(job.ScheduledAt.Unix()),
			Member: jobData,
		}).Err(); err != nil {
			return fmt.Errorf("failed to schedule job: %w", err)
		}
	}

	jp.logger.WithFields(map[string]interface{}{
		"job_id":   job.ID,
		"job_type": job.Type,
	}).Info("Job enqueued")

	return nil
}

// GetJobStatus retrieves the status of a job
func (jp *JobProcessor) GetJobStatus(ctx context.Context, jobID string) (*BackgroundJob, error) {
	for _, key := range []string{JobProcessingKey, JobCompletedKey, JobFailedKey, JobQueueKey} {
		if job := jp.findJobInList(ctx, key, jobID); job != nil {
			return job, nil
		}
	}
	return nil, fmt.Errorf("job not found: %s", jobID)
}

func (jp *JobProcessor) worker(workerID int) {
	defer jp.wg.Done()

	log := jp.logger.WithField("worker_id", workerID)
	log.Debug("Worker started")

	for {
		select {
		case <-jp.ctx.Done():
			log.Debug("Worker stopping")
			return
		default:
			raw, err := jp.redis.BRPopLPush(jp.ctx, JobQueueKey, JobProcessingKey, time.Second).Result()
			if err != nil {
				if err == redis.Nil || jp.ctx.Err() != nil {
					continue
				}
				log.WithError(err).Error("Failed to pop job")
				continue
			}

			var job BackgroundJob
			if err := json.Unmarshal([]byte(raw), &job); err != nil {
				log.WithError(err).Error("Failed to decode job, dropping it")
				jp.redis.LRem(jp.ctx, JobProcessingKey, 1, raw)
				continue
			}

			jp.processJob(&job, raw)
		}
	}
}

// processJob runs a single job; raw is its entry in the processing list
func (jp *JobProcessor) processJob(job *BackgroundJob, raw string) {
	jp.redis.LRem(jp.ctx, JobProcessingKey, 1, raw)

	job.Status = JobStatusRunning
	now := time.Now()
	job.StartedAt = &now
	running := jp.pushJob(JobProcessingKey, job)

	jp.mu.RLock()
	handler, exists := jp.jobHandlers[job.Type]
	jp.mu.RUnlock()

	var err error
	if !exists {
		err = fmt.Errorf("no handler registered for job type: %s", job.Type)
	} else {
		ctx, cancel := context.WithTimeout(jp.ctx, jp.jobTimeout)
		err = jp.runHandler(ctx, handler, job)
		cancel()
	}

	jp.redis.LRem(jp.ctx, JobProcessingKey, 1, running)

	switch {
	case err == nil:
		jp.completeJob(job)
	case exists && job.RetryCount < job.MaxRetries:
		jp.retryJob(job, err)
	default:
		jp.failJob(job, err)
	}
}

func (jp *JobProcessor) runHandler(ctx context.Context, handler JobHandler, job *BackgroundJob) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job handler panicked: %v", rec)
		}
	}()
	return handler.Handle(ctx, job)
}

func (jp *JobProcessor) completeJob(job *BackgroundJob) {
	job.Status = JobStatusCompleted
	now := time.Now()
	job.CompletedAt = &now
	job.Error = ""

	jp.pushJob(JobCompletedKey, job)
	jp.redis.LTrim(jp.ctx, JobCompletedKey, 0, jobHistoryLimit-1)

	jp.logger.WithField("job_id", job.ID).Info("Job completed")
}

func (jp *JobProcessor) failJob(job *BackgroundJob, err error) {
	job.Status = JobStatusFailed
	job.Error = err.Error()
	now := time.Now()
	job.CompletedAt = &now

	jp.pushJob(JobFailedKey, job)
	jp.redis.LTrim(jp.ctx, JobFailedKey, 0, jobHistoryLimit-1)

	jp.logger.WithError(err).WithField("job_id", job.ID).Error("Job failed")
}

func (jp *JobProcessor) retryJob(job *BackgroundJob, err error) {
	job.Status = JobStatusRetrying
	job.RetryCount++
	job.Error = err.Error()

	delay := RetryDelay(job.RetryCount)
	job.ScheduledAt = time.Now().Add(delay)

	jobData, scheduleErr := json.Marshal(job)
	if scheduleErr == nil {
		scheduleErr = jp.redis.ZAdd(jp.ctx, JobScheduledKey, &redis.Z{
			Score:  float64(job.ScheduledAt.Unix()),
			Member: jobData,
		}).Err()
	}
	if scheduleErr != nil {
		// the job is already off the processing list; keep it visible as failed
		jp.logger.WithError(scheduleErr).WithField("job_id", job.ID).Error("Failed to schedule job retry")
		jp.failJob(job, fmt.Errorf("retry not scheduled: %v (after: %w)", scheduleErr, err))
		return
	}

	jp.logger.WithError(err).WithFields(map[string]interface{}{
		"job_id":      job.ID,
		"retry_count": job.RetryCount,
		"delay":       delay.String(),
	}).Warn("Job scheduled for retry")
}

// RetryDelay is the quadratic backoff applied before retry attempt n
func RetryDelay(attempt int) time.Duration {
	return time.Duration(attempt*attempt) * 5 * time.Second
}

// scheduledJobProcessor moves scheduled jobs to the processing queue when ready
func (jp *JobProcessor) scheduledJobProcessor() {
	defer jp.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-jp.ctx.Done():
			return
		case <-ticker.C:
			jobs, err := jp.redis.ZRangeByScore(jp.ctx, JobScheduledKey, &redis.ZRangeBy{
				Min: "0",
				Max: fmt.Sprintf("%d", time.Now().Unix()),
			}).Result()
			if err != nil {
				jp.logger.WithError(err).Error("Failed to read scheduled jobs")
				continue
			}

			for _, jobData := range jobs {
				// only the worker that removes the entry requeues it
				if removed, _ := jp.redis.ZRem(jp.ctx, JobScheduledKey, jobData).Result(); removed == 0 {
					continue
				}
				jp.redis.LPush(jp.ctx, JobQueueKey, jobData)
			}
		}
	}
}

func (jp *JobProcessor) findJobInList(ctx context.Context, listKey, jobID string) *BackgroundJob {
	jobs, err := jp.redis.LRange(ctx, listKey, 0, -1).Result()
	if err != nil {
		return nil
	}

	for _, jobData := range jobs {
		var job BackgroundJob
		if err := json.Unmarshal([]byte(jobData), &job); err != nil {
			continue
		}
		if job.ID == jobID {
			return &job
		}
	}

	return nil
}

func (jp *JobProcessor) pushJob(listKey string, job *BackgroundJob) string {
	jobData, err := json.Marshal(job)
	if err == nil {
		err = jp.redis.LPush(jp.ctx, listKey, jobData).Err()
	}
	if err != nil {
		jp.logger.WithError(err).WithFields(map[string]interface{}{
			"job_id": job.ID,
			"list":   listKey,
		}).Error("Failed to record job")
	}
	return string(jobData)
}
