package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/linkfield/linkfield-api/internal/config"
	"github.com/linkfield/linkfield-api/internal/handler"
	"github.com/linkfield/linkfield-api/internal/middleware"
	"github.com/linkfield/linkfield-api/internal/observability"
	"github.com/linkfield/linkfield-api/internal/realtime"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ChatHandler         *handler.ChatHandler
	NotificationHandler *handler.NotificationHandler
	UploadHandler       *handler.UploadHandler
	Gateway             *realtime.Gateway
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP and websocket routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	api.Get("/realtime/config", handler.RealtimeConfig(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.ChatHandler != nil {
		chat := api.Group("/", jwtMiddleware)
		deps.ChatHandler.Register(chat)
	}

	if deps.NotificationHandler != nil {
		notifications := api.Group("/notifications", jwtMiddleware)
		deps.NotificationHandler.Register(notifications)
	}

	if deps.UploadHandler != nil {
		uploads := api.Group("/uploads", jwtMiddleware, middleware.RateLimit("uploads", 20, time.Minute))
		deps.UploadHandler.Register(uploads)
	}

	// The gateway authenticates inside the upgrade handshake, so the
	// websocket route sits outside the JWT group.
	if deps.Gateway != nil {
		deps.Gateway.RegisterRoutes(api)
	}
}
