package container

import (
	"context"
	"time"

	"multi-org-integration-platform/internal/broker"
	"multi-org-integration-platform/internal/config"
	"multi-org-integration-platform/internal/database"
	"multi-org-integration-platform/internal/handlers"
	"multi-org-integration-platform/internal/logger"
	"multi-org-integration-platform/internal/middleware"
	"multi-org-integration-platform/internal/models"
	"multi-org-integration-platform/internal/repositories"
	"multi-org-integration-platform/internal/server"
	"multi-org-integration-platform/internal/services"

	"github.com/go-redis/redis/v8"
	"go.uber.org/fx"
)

// Module provides dependency injection configuration
var Module = fx.Options(
	// Configuration
	fx.Provide(config.LoadConfig),

	// Logging
	fx.Provide(logger.NewLogger),

	// Database
	fx.Provide(database.NewConnection),
	fx.Provide(database.NewMigrator),
	fx.Provide(provideRedisClient),

	// Repositories
	fx.Provide(repositories.NewOrganisationRepository),
	fx.Provide(repositories.NewIntegrationRepository),
	fx.Provide(repositories.NewSyncLogRepository),

	// Models (for validation)
	fx.Provide(models.NewValidationService),

	// Sync pipeline
	fx.Provide(services.NewTransformer),
	fx.Provide(services.NewFieldMapper),
	fx.Provide(services.NewSimilarityScorer),
	fx.Provide(services.NewMappingGenerator),
	fx.Provide(services.NewConflictResolver),
	fx.Provide(services.NewErrorHandler),
	fx.Provide(services.NewRESTConnector),
	fx.Provide(provideCollaborators),
	fx.Provide(func(
		log *logger.Logger,
		cfg *config.Config,
		validator *models.ValidationService,
		collaborators services.SyncCollaborators,
		mapper *services.FieldMapper,
		resolver *services.ConflictResolver,
	) services.SyncEngine {
		return services.NewBatchSyncEngine(log, cfg, validator, collaborators, mapper, resolver)
	}),
	fx.Provide(provideSyncLock),
	fx.Provide(broker.NewEventPublisher),
	fx.Provide(services.NewSyncMetrics),
	fx.Provide(provideJobProcessor),
	fx.Provide(provideSyncCoordinator),
	fx.Provide(func(coordinator *services.SyncCoordinator) services.SyncService {
		return coordinator
	}),

	// Handlers
	fx.Provide(handlers.NewSyncHandler),
	fx.Provide(provideHealthHandler),

	// Middleware
	fx.Provide(middleware.NewAuthenticationMiddleware),
	fx.Provide(middleware.NewRateLimiter),

	// Server
	fx.Provide(server.NewServer),

	// Invoke migrations on startup
	fx.Invoke(func(migrator *database.Migrator) error {
		return migrator.Up()
	}),
	fx.Invoke(registerJobHandlers),
)

// provideRedisClient returns nil when Redis is disabled
func provideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return database.NewRedisClient(cfg)
}

func provideCollaborators(connector *services.RESTConnector) services.SyncCollaborators {
	return services.SyncCollaborators{
		Authenticator: connector,
		Source:        connector,
		Destination:   connector,
		Detector:      services.NewDestinationConflictDetector(connector),
	}
}

func provideSyncLock(cfg *config.Config, client *redis.Client, log *logger.Logger) services.SyncLock {
	ttl := time.Duration(cfg.Sync.LockTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if client == nil {
		log.Warn("Redis disabled; sync locks are local to this instance")
		return services.NewLocalSyncLock(ttl)
	}
	return services.NewRedisSyncLock(client, ttl)
}

// provideJobProcessor returns nil unless both Redis and the job processor are enabled
func provideJobProcessor(cfg *config.Config, client *redis.Client, log *logger.Logger) *services.JobProcessor {
	if client == nil || !cfg.JobProcessor.Enabled {
		return nil
	}
	return services.NewJobProcessor(client, cfg, log)
}

func provideSyncCoordinator(
	log *logger.Logger,
	integrations repositories.IntegrationRepository,
	syncLogs repositories.SyncLogRepository,
	engine services.SyncEngine,
	generator *services.MappingGenerator,
	lock services.SyncLock,
	publisher services.EventPublisher,
	metrics *services.SyncMetrics,
	processor *services.JobProcessor,
) *services.SyncCoordinator {
	// a nil *JobProcessor must not become a non-nil interface
	var jobs services.JobEnqueuer
	if processor != nil {
		jobs = processor
	}
	return services.NewSyncCoordinator(log, integrations, syncLogs, engine, generator, lock, publisher, metrics, jobs)
}

func provideHealthHandler(conn *database.Connection, client *redis.Client) *handlers.HealthHandler {
	checks := map[string]handlers.HealthCheckFunc{
		"database": conn.Ping,
	}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
	}
	return handlers.NewHealthHandler(checks)
}

func registerJobHandlers(processor *services.JobProcessor, coordinator *services.SyncCoordinator, log *logger.Logger) {
	if processor == nil {
		return
	}
	processor.RegisterHandler(services.JobTypeIntegrationSync, services.NewSyncJobHandler(coordinator, log))
}
