package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/biosecret/go-tasks/handlers"
)

// SetupRoutes mounts the API. requireAuth guards every task route.
func SetupRoutes(app *fiber.App, h *handlers.Handlers, requireAuth fiber.Handler) {
	app.Get("/health", h.HandleHealthCheck)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", h.RegisterHandler)
	auth.Post("/login", h.LoginHandler)

	tasks := api.Group("/tasks", requireAuth)
	tasks.Get("/", h.HandleAllTasks)
	tasks.Post("/", h.HandleCreateTask)
	tasks.Get("/:id", h.HandleGetOneTask)
	tasks.Put("/:id", h.HandleUpdateTask)
	tasks.Patch("/:id", h.HandleUpdateTask)
	tasks.Delete("/:id", h.HandleDeleteTask)
}
