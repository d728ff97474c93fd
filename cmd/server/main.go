package main

import (
	"context"

	"multi-org-integration-platform/internal/broker"
	"multi-org-integration-platform/internal/config"
	"multi-org-integration-platform/internal/container"
	"multi-org-integration-platform/internal/database"
	"multi-org-integration-platform/internal/logger"
	"multi-org-integration-platform/internal/server"
	"multi-org-integration-platform/internal/services"

	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		container.Module,
		fx.Invoke(func(
			lc fx.Lifecycle,
			cfg *config.Config,
			log *logger.Logger,
			srv *server.Server,
			conn *database.Connection,
			processor *services.JobProcessor,
			publisher services.EventPublisher,
		) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					log.WithField("port", cfg.Server.Port).Info("Starting multi-org integration platform")

					if processor != nil {
						processor.Start()
					}

					// Start server in background
					go func() {
						if err := srv.Start(context.Background()); err != nil {
							log.WithError(err).Error("Server error")
						}
					}()

					return nil
				},
				OnStop: func(ctx context.Context) error {
					log.Info("Shutting down multi-org integration platform")

					err := srv.Stop(ctx)
					if processor != nil {
						processor.Stop()
					}
					if pub, ok := publisher.(*broker.Publisher); ok {
						pub.Close()
					}
					if closeErr := conn.Close(); err == nil {
						err = closeErr
					}
					return err
				},
			})
		}),
	)

	app.Run()
}
