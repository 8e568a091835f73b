package routes

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"

	controller "github.com/veriflow/engine/controllers"
	"github.com/veriflow/engine/internal/agent"
	"github.com/veriflow/engine/middleware"
)

// SetupRoutes wires the endpoints spec.md §6 documents (POST /api/verify,
// POST /api/bounce, GET /api/agent/usage), a health check, and the
// progress-streaming websocket, the way the teacher's SetupRoutes
// composes groups with its request logger and auth middleware.
func SetupRoutes(app *fiber.App, verifier *agent.Verifier, verification *controller.VerificationController, bounceCtrl *controller.BounceController, progress *controller.ProgressController) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", middleware.RequestID(), middleware.Identity(verifier), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	api.Post("/verify", verification.Verify)
	api.Get("/agent/usage", verification.Usage)
	api.Post("/bounce", bounceCtrl.Report)

	api.Get("/verify/stream", websocket.New(progress.Stream))

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})

	log.Println("routes initialized")
}
