// Package httpapi exposes identity, history and operational endpoints over HTTP.
package httpapi

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewApp builds the HTTP API. The Badger inspector is mounted on /debug/inspect when given.
func NewApp(handlers *Handlers, allowOrigins string, inspector http.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "dm-relay",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{AllowOrigins: allowOrigins}))

	app.Post("/register", handlers.Register)
	app.Post("/login", handlers.Login)
	app.Get("/users", handlers.ListUsers)
	app.Get("/messages/:senderId/:receiverId", handlers.Messages)
	app.Get("/health", handlers.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	if inspector != nil {
		app.Get("/debug/inspect", adaptor.HTTPHandler(inspector))
	}
	return app
}
