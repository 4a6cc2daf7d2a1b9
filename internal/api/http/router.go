package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/visitor-identity/internal/api/http/handlers"
	"github.com/spec-kit/visitor-identity/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Metrics        *handlers.MetricsHandler
	Session        *handlers.SessionHandler
	Users          *handlers.UsersHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Metrics.Get)

	authGroup := app.Group("/auth")
	authGroup.Post("/signup", cfg.Session.Signup)
	authGroup.Post("/login", cfg.Session.Login)
	authGroup.Post("/logout", cfg.AuthMiddleware.Handle, cfg.Session.Logout)

	session := app.Group("/session", cfg.AuthMiddleware.Handle)
	session.Get("", cfg.Session.Current)
	session.Patch("/profile", cfg.Session.UpdateProfile)
	session.Post("/activities", cfg.Session.AddActivity)
	session.Post("/login-count", cfg.Session.IncrementLoginCount)

	users := app.Group("/users", cfg.AuthMiddleware.Handle)
	users.Get("", cfg.Users.List)
	users.Get("/:id/activities", cfg.Users.Activities)
	users.Post("/:id/owner", auth.RequireOwner(), cfg.Users.MakeOwner)
	users.Delete("/:id", auth.RequireOwner(), cfg.Users.Delete)
}
