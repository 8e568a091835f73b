package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/sirupsen/logrus"

	"github.com/veriflow/engine/internal/agent"
	"github.com/veriflow/engine/internal/telemetry"
)

// Identity mirrors the teacher's Protected() pattern (parse header →
// validate → stash on Locals) but resolves the caller identity the
// verification engine actually needs: an authenticated agent UID, or a
// fallback IP key, never a persisted user record.
func Identity(verifier *agent.Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		httpReq, err := adaptor.ConvertRequest(c, false)
		if err != nil {
			telemetry.LogError(logrus.StandardLogger(), "request_adapt_failed", err, map[string]interface{}{
				"path": c.Path(),
			})
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "could not read request",
			})
		}
		id := verifier.Resolve(httpReq)
		c.Locals("identity", id)
		return c.Next()
	}
}

// IdentityFromContext reads back what Identity stashed.
func IdentityFromContext(c *fiber.Ctx) agent.Identity {
	id, ok := c.Locals("identity").(agent.Identity)
	if !ok {
		return agent.Identity{UID: "unknown", IsAgent: false}
	}
	return id
}
