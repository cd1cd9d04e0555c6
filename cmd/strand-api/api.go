// Package main provides the Strand API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/strandkit/strand/pkg/deploy"
	"github.com/strandkit/strand/pkg/engine"
	"github.com/strandkit/strand/pkg/persistence"
	"github.com/strandkit/strand/pkg/registry"
	"github.com/strandkit/strand/pkg/trigger"
	"github.com/strandkit/strand/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	engine      *engine.Engine
	manager     *trigger.Manager
}

func NewAPI(
	logger *slog.Logger,
	p persistence.Persistence,
	r *registry.Registry,
	e *engine.Engine,
	manager *trigger.Manager,
) *API {
	return &API{
		logger:      logger,
		persistence: p,
		registry:    r,
		engine:      e,
		manager:     manager,
	}
}

func (a *API) App() *fiber.App {
	deployer := deploy.NewService(a.persistence, a.registry, a.logger)
	handlers := web.NewAPIHandlers(a.persistence, deployer, a.manager, a.engine, a.registry, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Strand API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
