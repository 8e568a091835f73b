package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// requestIDKey is also the context.Value key VerifyBatch reads back,
// since fiber's Locals and fasthttp.RequestCtx's Value share one store.
const requestIDKey = "requestID"

// RequestID stamps every request with a correlation id, the same way the
// teacher's campaign sender stamps each outbound message with
// uuid.New().String() before handing it to the mailer.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := uuid.New().String()
		c.Locals(requestIDKey, id)
		c.Set("X-Request-Id", id)
		return c.Next()
	}
}
