package controller

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/veriflow/engine/internal/bounce"
	"github.com/veriflow/engine/internal/ratelimit"
	"github.com/veriflow/engine/internal/validation"
)

// BounceController handles the bounce-report endpoint (spec.md §6): a
// lightweight, IP-rate-limited sink that just records who reported an
// address as bouncing, the same body-parse/validate/act shape as the
// teacher's webhook handlers minus any database write. Limiter gates
// purely on the reporting IP's RPM (default 5/min, spec.md §6) — the
// batch-size/daily/global/concurrency gates that matter for
// /api/verify are meaningless for a single-address report.
type BounceController struct {
	Store   *bounce.Store
	Limiter *ratelimit.Limiter
}

func NewBounceController(store *bounce.Store, rpm int) *BounceController {
	limiter := ratelimit.New(ratelimit.Config{
		MaxBatchSize:          1,
		IdentityRPM:           rpm,
		IdentityDailyCap:      1 << 30,
		IdentityMaxConcurrent: 1 << 16,
		GlobalDailyCap:        1 << 30,
	}, nil)
	return &BounceController{Store: store, Limiter: limiter}
}

type bounceRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// Report handles POST /api/bounce.
func (bc *BounceController) Report(c *fiber.Ctx) error {
	decision, release := bc.Limiter.Admit(c.Context(), ratelimit.Identity{Key: c.IP()}, 1)
	if !decision.Allowed {
		if decision.RetryAfter > 0 {
			secs := int(decision.RetryAfter.Seconds())
			if secs < 1 {
				secs = 1
			}
			c.Set("Retry-After", strconv.Itoa(secs))
		}
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": string(decision.Reason),
		})
	}
	defer release()

	var req bounceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "request body must be { \"email\": string }",
		})
	}
	if err := validation.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	bc.Store.Record(req.Email, c.IP())

	return c.JSON(fiber.Map{
		"recorded":        true,
		"uniqueReporters": bc.Store.UniqueReporterCount(req.Email),
	})
}
