package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pipecd-crm/wfm/pkg/cmd"
	"github.com/pipecd-crm/wfm/pkg/log"
	"github.com/pipecd-crm/wfm/pkg/metrics"
	"github.com/pipecd-crm/wfm/pkg/otelhelper"
	"github.com/pipecd-crm/wfm/pkg/repair"
	"github.com/pipecd-crm/wfm/pkg/schema"
	"github.com/pipecd-crm/wfm/pkg/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort = 9091
	serviceName = "wfm-api"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		Version:               version,
		Usage:                 "Define CRM workflows and validate project step transitions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres://... or a directory path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "lock-backend",
				Usage:   "Per-workflow lock backend (local, redis)",
				Value:   "local",
				Sources: cli.EnvVars("LOCK_BACKEND"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL used by the redis lock backend",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.DurationFlag{
				Name:    "lock-ttl",
				Usage:   "Expiry of a held workflow lock",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("LOCK_TTL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type for definition events (none, gochannel, kafka)",
				Value:   "none",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers for the kafka event bus",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "repair-schedule",
				Usage:   "Cron expression for the sweep that repairs workflows left with negative step orders; empty disables it",
				Sources: cli.EnvVars("REPAIR_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "step-metadata-schema",
				Usage:   "Path to a JSON schema that step metadata must satisfy",
				Sources: cli.EnvVars("STEP_METADATA_SCHEMA"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.FloatFlag{
				Name:    "trace-sample-ratio",
				Usage:   "Fraction of root spans to sample when tracing is enabled",
				Value:   1,
				Sources: cli.EnvVars("OTEL_TRACES_SAMPLER_ARG"),
			},
		},
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("api").Error("API server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("api")

	logger.InfoContext(ctx, "Initializing workflow engine API")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(context.Background()); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	locker, closeLocker, err := cmd.NewLocker(
		ctx,
		command.String("lock-backend"),
		command.String("redis-url"),
		command.Duration("lock-ttl"),
		logger,
	)
	if err != nil {
		return err
	}

	defer func() {
		if err := closeLocker(); err != nil {
			logger.ErrorContext(ctx, "Failed to close lock backend", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	options := []services.Option{
		services.WithLocker(locker),
		services.WithMetrics(metrics.New(registry)),
	}

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
	if err != nil {
		return err
	}

	if eventBus != nil {
		options = append(options, services.WithPublisher(eventBus))

		defer func() {
			if err := eventBus.Close(); err != nil {
				logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
			}
		}()
	}

	if path := command.String("step-metadata-schema"); path != "" {
		validator, err := schema.LoadMetadataValidator(path)
		if err != nil {
			return fmt.Errorf("failed to load step metadata schema: %w", err)
		}

		options = append(options, services.WithMetadataSchema(validator))
	}

	if command.Bool("tracing") {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, otelhelper.TracerConfig{
			ServiceName:    serviceName,
			ServiceVersion: version,
			SampleRatio:    command.Float("trace-sample-ratio"),
		})
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
			}
		}()

		options = append(options, services.WithTracer(tracer))
	}

	api := NewAPI(logger, persistence, registry, options...)

	if schedule := command.String("repair-schedule"); schedule != "" {
		sweeper, err := repair.NewSweeper(schedule, api.Engine().Steps(), logger)
		if err != nil {
			return err
		}

		if err := sweeper.Start(ctx); err != nil {
			return err
		}

		defer func() {
			if err := sweeper.Stop(context.Background()); err != nil {
				logger.ErrorContext(ctx, "Failed to stop repair sweeper", "error", err)
			}
		}()
	}

	port := command.Int("port")
	logger.InfoContext(ctx, "Starting API server", "port", port)

	return api.Start(ctx, port)
}
