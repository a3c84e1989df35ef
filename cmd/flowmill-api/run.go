package main

import (
	"context"

	"github.com/flowmill/flowmill/pkg/admission"
	"github.com/flowmill/flowmill/pkg/cmd"
	"github.com/flowmill/flowmill/pkg/engine"
	"github.com/flowmill/flowmill/pkg/log"
	"github.com/flowmill/flowmill/pkg/orchestrator"
	"github.com/flowmill/flowmill/pkg/secrets"
	"github.com/flowmill/flowmill/pkg/services"
	"github.com/urfave/cli/v3"
)

func RunAPICommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start api",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   9091,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "encryption-key",
				Usage:    "Hex-encoded key for environment variable decryption",
				Required: true,
				Sources:  cli.EnvVars("ENCRYPTION_KEY"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the distributed admission registry (in-process when unset)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("api")

			logger.Info("Initializing Flowmill API")

			persistence := cmd.NewPersistence(command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.Error("Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.Error("Failed to close event bus", "error", err)
				}
			}()

			decryptor, err := secrets.NewAESGCM(command.String("encryption-key"))
			if err != nil {
				return err
			}

			registry := cmd.NewAdmissionRegistry(command.String("redis-url"))
			usage := services.NewUsage(persistence.StatsRepository())
			gate := admission.NewGate(registry, usage)

			orch := orchestrator.NewOrchestrator(
				persistence,
				gate,
				decryptor,
				engine.NewGraphSerializer(),
				engine.NewSequentialEngine(log.WithModule("engine")),
				eventBus,
				log.WithModule("orchestrator"),
			)

			api := NewAPI(logger, persistence, orch)

			logger.Info("Starting Flowmill API", "port", command.Int("port"))

			return api.Start(command.Int("port"))
		},
	}
}
