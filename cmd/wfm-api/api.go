// Package main provides the workflow engine API server.
package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/pipecd-crm/wfm/pkg/persistence"
	"github.com/pipecd-crm/wfm/pkg/services"
	"github.com/pipecd-crm/wfm/pkg/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownPeriod = 10 * time.Second

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *prometheus.Registry
	options     []services.Option
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *prometheus.Registry,
	options ...services.Option,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		options:     append([]services.Option{services.WithLogger(logger)}, options...),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Engine builds the workflow engine with the same options the handlers use.
func (a *API) Engine() *services.Engine {
	return services.NewEngine(a.persistence, a.options...)
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		a.Engine(),
		services.NewStatusCatalog(a.persistence, a.options...),
		services.NewProjectTypeRegistry(a.persistence, a.options...),
		a.validate,
	)

	app := fiber.New(fiber.Config{Immutable: true})
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			return a.persistence.HealthCheck(c.Context()) == nil
		},
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Workflow Engine API")
	})

	if a.registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))
	}

	handlers.RegisterRoutes(app)

	return app
}

// Start serves the API until ctx is cancelled, then drains in-flight requests.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownPeriod)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			a.logger.Error("Failed to shut down API server", "error", err)
		}
	}()

	return app.Listen(":" + strconv.Itoa(port))
}
