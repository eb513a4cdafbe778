package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"findyourdeal_backend/pkg/entitlement"
	"findyourdeal_backend/pkg/links"
	"findyourdeal_backend/pkg/utils/jwt"
)

var (
	resolver *entitlement.Resolver
	counter  *links.Counter
)

func InitEntitlementMiddleware(r *entitlement.Resolver, c *links.Counter) {
	resolver = r
	counter = c
}

// RequireActivePlan blocks new consumption for users without a live plan.
// Read-only endpoints stay open: expiry hides nothing, it only gates.
func RequireActivePlan() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := c.Locals("user").(*jwt.Claims)

		ent, err := resolver.Resolve(claims.UserID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "ENTITLEMENT_FAILED",
			})
		}

		if !ent.Active || ent.LinksLimitTotal <= 0 {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "PLAN_INACTIVE",
			})
		}

		c.Locals("entitlement", ent)
		return c.Next()
	}
}

// CheckLinkLimit gates link creation against links_limit_total. Counts are
// taken against the schema-probed links table.
func CheckLinkLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := c.Locals("user").(*jwt.Claims)

		ent, ok := c.Locals("entitlement").(*entitlement.Entitlement)
		if !ok {
			var err error
			ent, err = resolver.Resolve(claims.UserID)
			if err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "ENTITLEMENT_FAILED",
				})
			}
		}

		total, err := counter.CountAll(claims.UserID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "LINK_COUNT_FAILED",
			})
		}

		if total >= ent.LinksLimitTotal {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":   "LINK_LIMIT_REACHED",
				"message": fmt.Sprintf("Link limit reached: %d/%d", total, ent.LinksLimitTotal),
			})
		}

		return c.Next()
	}
}
