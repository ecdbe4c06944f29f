package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bilgisen/shiurim/internal/middleware"
)

// SetupRoutes configures all the routes for the application
func SetupRoutes(app *fiber.App, h *Handlers) {
	api := app.Group("/api")

	api.Get("/health", h.HealthCheck)

	// Public catalog
	api.Get("/shiurim", h.ListShiurim)
	api.Get("/shiurim/:slug", h.GetShiur)
	api.Get("/topics", h.Topics)
	api.Get("/pages", h.NavPages)
	api.Get("/pages/:slug", h.GetPage)
	api.Get("/schedule", h.GetSchedule)

	// Session
	api.Post("/admin/login", h.Login)
	api.Post("/admin/logout", h.Logout)

	gate := middleware.NewAuth(middleware.AuthConfig{Sessions: h.sessions})

	// Direct upload credentials
	api.Get("/upload", gate, h.IssueCredential)

	admin := api.Group("/admin", gate)
	{
		admin.Get("/session", h.CurrentSession)

		admin.Post("/shiurim", h.CreateShiur)
		admin.Patch("/shiurim/:id", h.UpdateShiur)
		admin.Delete("/shiurim/:id", h.DeleteShiur)

		admin.Get("/pages", h.ListPages)
		admin.Post("/pages", h.CreatePage)
		admin.Patch("/pages/:id", h.UpdatePage)
		admin.Delete("/pages/:id", h.DeletePage)

		admin.Put("/schedule", h.SaveSchedule)
	}

	// 404 Handler for the API
	api.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(middleware.ErrorBody{Error: "Endpoint not found"})
	})

	if h.config.StaticDir != "" {
		app.Static("/", h.config.StaticDir)
	}
}
