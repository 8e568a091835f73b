// controllers/verification_controller.go
package controller

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/veriflow/engine/internal/ratelimit"
	"github.com/veriflow/engine/internal/validation"
	"github.com/veriflow/engine/internal/verify"
	"github.com/veriflow/engine/middleware"
)

// VerificationController exposes the batch verification endpoint
// (spec.md §6), the direct descendant of the teacher's credit-metered
// VerifyEmail/BulkVerify pair, minus the DB-backed credit ledger and
// background job bookkeeping — verification here is synchronous and
// nothing is persisted.
type VerificationController struct {
	Engine  *verify.Engine
	Limiter *ratelimit.Limiter
	Logger  *log.Logger
}

func NewVerificationController(engine *verify.Engine, limiter *ratelimit.Limiter, logger *log.Logger) *VerificationController {
	return &VerificationController{
		Engine:  engine,
		Limiter: limiter,
		Logger:  logger,
	}
}

type verifyRequest struct {
	// Elements are intentionally not tagged "email": a malformed address
	// is a valid input here, it is exactly what the engine classifies as
	// Invalid rather than something the API layer should reject.
	Emails []string `json:"emails" validate:"required,min=1,dive,required"`
}

type usageView struct {
	UID            string `json:"uid"`
	EmailsVerified int    `json:"emailsVerified"`
	DailyLimit     int    `json:"dailyLimit"`
	Remaining      int    `json:"remaining"`
}

// Verify handles POST /api/verify: admits the request through the
// rate-limit gates, runs the batch through the engine, and shapes the
// response spec.md §6 describes.
func (vc *VerificationController) Verify(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "request body must be { \"emails\": [string, ...] }",
		})
	}
	if err := validation.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	id := middleware.IdentityFromContext(c)

	decision, release := vc.Limiter.Admit(c.Context(), ratelimit.Identity{Key: id.UID, IsAgent: id.IsAgent}, len(req.Emails))
	if !decision.Allowed {
		return vc.admissionRefused(c, decision)
	}
	defer release()

	emails := req.Emails
	if decision.Reserved < len(emails) {
		vc.Logger.Printf("identity %s: daily cap only had room for %d/%d addresses, dropping the excess", id.UID, decision.Reserved, len(emails))
		emails = emails[:decision.Reserved]
	}

	results := vc.Engine.VerifyBatch(c.Context(), emails)

	resp := fiber.Map{"results": results}
	if id.IsAgent {
		used, dailyCap, remaining := vc.Limiter.Usage(c.Context(), ratelimit.Identity{Key: id.UID, IsAgent: true})
		resp["agent"] = fiber.Map{"uid": id.UID, "usage": usageView{
			UID:            id.UID,
			EmailsVerified: used,
			DailyLimit:     dailyCap,
			Remaining:      remaining,
		}}
	}
	return c.JSON(resp)
}

func (vc *VerificationController) admissionRefused(c *fiber.Ctx, d ratelimit.Decision) error {
	if d.RetryAfter > 0 {
		secs := int(d.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		c.Set("Retry-After", strconv.Itoa(secs))
	}
	status := fiber.StatusTooManyRequests
	if d.Reason == ratelimit.ReasonGlobalCeiling {
		status = fiber.StatusServiceUnavailable
	}
	if d.Reason == ratelimit.ReasonBatchTooLarge {
		status = fiber.StatusBadRequest
	}
	return c.Status(status).JSON(fiber.Map{
		"error": string(d.Reason),
	})
}

// Usage handles GET /api/agent/usage.
func (vc *VerificationController) Usage(c *fiber.Ctx) error {
	id := middleware.IdentityFromContext(c)
	used, dailyCap, remaining := vc.Limiter.Usage(c.Context(), ratelimit.Identity{Key: id.UID, IsAgent: id.IsAgent})
	return c.JSON(usageView{
		UID:            id.UID,
		EmailsVerified: used,
		DailyLimit:     dailyCap,
		Remaining:      remaining,
	})
}
