// strand-worker runs the execution side: cron scheduling, the trigger
// manager, and the human-task timeout sweeper. HTTP-facing triggers are
// served by strand-api.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/strandkit/strand/pkg/cmd"
	"github.com/strandkit/strand/pkg/engine"
	"github.com/strandkit/strand/pkg/log"
	"github.com/strandkit/strand/pkg/otelhelper"
	"github.com/strandkit/strand/pkg/trigger"
)

func main() {
	command := &cli.Command{
		Name:                  "strand-worker",
		EnableShellCompletion: true,
		Usage:                 "Run the workflow execution worker",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
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
			&cli.IntFlag{
				Name:    "branch-parallelism",
				Usage:   "Maximum concurrently executing nodes per execution",
				Value:   4,
				Sources: cli.EnvVars("BRANCH_PARALLELISM"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry tracing",
				Sources: cli.EnvVars("TRACING_ENABLED"),
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

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}

	logger := log.WithModule("strand-worker").With("worker_id", workerID)
	logger.InfoContext(ctx, "Initializing worker")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(context.WithoutCancel(ctx)); err != nil {
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
		BranchParallelism: command.Int("branch-parallelism"),
		WorkerID:          workerID,
	}).WithPublisher(bus)

	if command.Bool("tracing") {
		tracer, err := otelhelper.NewTracer(ctx, "strand-worker")
		if err != nil {
			return err
		}

		eng = eng.WithTracer(tracer)
	}

	manager := trigger.NewManager(persistence, eng, locks, logger).WithPublisher(bus)

	cronSource := trigger.NewCronSource(manager, logger)
	if err := cronSource.Start(ctx); err != nil {
		return err
	}

	defer cronSource.Stop()

	sweeper := trigger.NewTimeoutSweeper(persistence, eng, logger)
	go sweeper.Run(ctx)

	logger.InfoContext(ctx, "Worker started")

	<-ctx.Done()

	logger.Info("Shutting down worker")

	return nil
}
