package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/divyamsharma184/learnsphere-workflow-api/internal/config"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/handler"
	"github.com/divyamsharma184/learnsphere-workflow-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	CourseHandler       *handler.CourseHandler
	EnrollmentHandler   *handler.EnrollmentHandler
	AuditHandler        *handler.AuditHandler
	EventHandler        *handler.EventHandler
	NotificationHandler *handler.NotificationHandler
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.CourseHandler != nil {
		deps.CourseHandler.Register(api.Group("/courses", jwtMiddleware))
	}

	if deps.EnrollmentHandler != nil {
		deps.EnrollmentHandler.Register(api.Group("/enrollments", jwtMiddleware))
	}

	if deps.AuditHandler != nil {
		deps.AuditHandler.Register(api.Group("/transitions", jwtMiddleware))
	}

	if deps.EventHandler != nil {
		deps.EventHandler.Register(api.Group("/events", jwtMiddleware))
	}

	if deps.NotificationHandler != nil {
		deps.NotificationHandler.Register(api.Group("/notifications", jwtMiddleware))
	}
}
