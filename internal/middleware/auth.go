package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"findyourdeal_backend/pkg/utils/jwt"
)

func AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "MISSING_TOKEN",
			})
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		claims, err := jwt.ValidateToken(tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "INVALID_TOKEN",
			})
		}

		c.Locals("user", claims)
		return c.Next()
	}
}

func AdminMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals("user").(*jwt.Claims)
		if !ok || !claims.IsAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "ADMIN_ONLY",
			})
		}
		return c.Next()
	}
}
