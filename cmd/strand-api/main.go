package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/strandkit/strand/pkg/cmd"
	"github.com/strandkit/strand/pkg/engine"
	"github.com/strandkit/strand/pkg/log"
	"github.com/strandkit/strand/pkg/trigger"
)

func main() {
	command := &cli.Command{
		Name:                  "strand-api",
		EnableShellCompletion: true,
		Usage:                 "Serve the workflow management and trigger API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Usage:   "HTTP listen port",
				Value:   8080,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Persistence backend URL (postgres://, file://, memory://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the distributed trigger lock (in-process when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka brokers (required for the kafka event bus)",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "llm-base-url",
				Usage:   "OpenAI-compatible API base URL for AI agent nodes",
				Sources: cli.EnvVars("LLM_BASE_URL"),
			},
			&cli.StringFlag{
				Name:    "llm-api-key",
				Usage:   "API key for the LLM provider",
				Sources: cli.EnvVars("LLM_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("strand-api")
	logger.InfoContext(ctx, "Initializing API")

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	locks, err := cmd.NewLockManager(command.String("redis-url"))
	if err != nil {
		return err
	}

	bus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := bus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	registry, err := cmd.NewRegistry(logger, cmd.RegistryConfig{
		LLMBaseURL: command.String("llm-base-url"),
		LLMAPIKey:  command.String("llm-api-key"),
		RedisURL:   command.String("redis-url"),
	})
	if err != nil {
		return err
	}

	eng := engine.NewEngine(persistence, registry, logger, engine.Config{
		WorkerID: "api-" + uuid.New().String()[:8],
	}).WithPublisher(bus)

	manager := trigger.NewManager(persistence, eng, locks, logger).WithPublisher(bus)

	api := NewAPI(logger, persistence, registry, eng, manager)

	return api.Start(command.Int("port"))
}
