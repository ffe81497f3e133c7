package api

import "github.com/gofiber/fiber/v2"

// Middleware carries the auth handlers the routes are guarded with.
type Middleware struct {
	Required fiber.Handler
	Optional fiber.Handler
	Admin    fiber.Handler
}

func RegisterRoutes(app *fiber.App, h *Handler, mw Middleware) {
	app.Get("/health", h.Health)

	app.Get("/objects/*", mw.Optional, h.Download)

	// Guards are attached per route; a group-level handler would also catch /api/auth.
	api := app.Group("/api")

	api.Post("/objects/upload", mw.Required, h.UploadURL)
	api.Put("/objects/acl", mw.Required, h.SetACL)

	api.Post("/documents/upload-local", mw.Required, h.UploadLocal)
	api.Post("/documents", mw.Required, h.Register)
	api.Get("/documents", mw.Required, h.List)
	api.Get("/documents/:id", mw.Required, h.Get)
	api.Delete("/documents/:id", mw.Required, h.Delete)

	api.Post("/admin/storage/sweep", mw.Required, mw.Admin, h.SweepPending)
}
