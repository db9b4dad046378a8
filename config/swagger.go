package config

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"

	_ "github.com/biosecret/go-tasks/docs"
)

// AddSwaggerRoutes serves the OpenAPI UI and doc.json under /swagger.
// The bearer token entered in the UI survives page reloads.
func AddSwaggerRoutes(app *fiber.App) {
	app.Get("/swagger/*", swagger.New(swagger.Config{
		Title:                "go-tasks API",
		DeepLinking:          true,
		DocExpansion:         "list",
		PersistAuthorization: true,
	}))
}
