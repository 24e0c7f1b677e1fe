// Package server assembles the Fiber application.
package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/archifusion/api/internal/client"
	"github.com/archifusion/api/internal/config"
	"github.com/archifusion/api/internal/handler"
	"github.com/archifusion/api/internal/metrics"
	"github.com/archifusion/api/internal/middleware"
	"github.com/archifusion/api/internal/service"
	ws "github.com/archifusion/api/internal/websocket"
	"github.com/archifusion/api/pkg/response"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Config       *config.Config
	Service      *service.JobService
	Hub          *ws.Hub
	Capabilities client.Capabilities
	Redis        *redis.Client
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
	// AccessLog enables Fiber's request log.
	AccessLog bool
}

// NewApp builds the Fiber app with every route registered.
func NewApp(d Deps) *fiber.App {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          customErrorHandler(log),
		BodyLimit:             d.Config.Limits.BodyLimit,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${locals:requestid}\n",
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,X-Request-ID",
	}))
	app.Use(d.Metrics.Middleware())

	rateLimiter := middleware.NewRateLimiter(d.Redis, d.Metrics, log)
	jobHandler := handler.NewJobHandler(d.Service, log)
	healthHandler := handler.NewHealthHandler(d.Capabilities, d.Redis)
	wsHandler := handler.NewWSHandler(d.Service, d.Hub, log)

	app.Get("/", handler.Root)
	app.Get("/health", healthHandler.Health)
	if d.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(d.Metrics.Handler()))
	}

	jobs := app.Group("/jobs")
	jobs.Post("/", rateLimiter.JobsLimit(d.Config.RateLimit.JobsPerMin), jobHandler.Submit)
	jobs.Post("/stream", rateLimiter.JobsLimit(d.Config.RateLimit.JobsPerMin), jobHandler.Stream)
	jobs.Post("/quick", rateLimiter.QuickLimit(d.Config.RateLimit.QuickPerMin), jobHandler.Quick)
	jobs.Get("/:id", jobHandler.Status)

	app.Use("/ws", wsHandler.Upgrade)
	app.Get("/ws/jobs/:jobId", wsHandler.Jobs())

	app.Use(func(c *fiber.Ctx) error {
		return response.NotFound(c, "Route not found")
	})

	return app
}

func customErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"

		var e *fiber.Error
		if errors.As(err, &e) {
			code = e.Code
			message = e.Message
		} else {
			log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		}

		switch code {
		case fiber.StatusRequestEntityTooLarge:
			return response.PayloadTooLarge(c, message)
		case fiber.StatusNotFound:
			return response.NotFound(c, message)
		}
		return response.Error(c, code, response.CodeServiceError, message, nil)
	}
}
