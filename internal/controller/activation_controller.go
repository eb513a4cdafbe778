package controller

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"findyourdeal_backend/pkg/billing"
	"findyourdeal_backend/pkg/telegram"
	"findyourdeal_backend/pkg/utils/jwt"
)

type ActivateInput struct {
	Token string `json:"token" validate:"required"`
}

// Activate redeems an activation token for the authenticated user. All
// validation happens inside the reconciler's transaction; this handler
// only maps the outcome onto status codes.
func Activate(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)

	input := new(ActivateInput)
	if err := c.BodyParser(input); err != nil || strings.TrimSpace(input.Token) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "MISSING_TOKEN",
		})
	}

	result, err := reconciler.Activate(strings.TrimSpace(input.Token), claims.TelegramUserID)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrTokenNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "TOKEN_NOT_FOUND"})
		case errors.Is(err, billing.ErrTokenAlreadyUsed):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "TOKEN_ALREADY_USED"})
		case errors.Is(err, billing.ErrTokenExpired):
			return c.Status(fiber.StatusGone).JSON(fiber.Map{"error": "TOKEN_EXPIRED"})
		case errors.Is(err, billing.ErrUserNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "USER_NOT_FOUND"})
		case errors.Is(err, billing.ErrPlanNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "PLAN_NOT_FOUND"})
		default:
			log.Printf("POST /activate error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "ACTIVATE_FAILED"})
		}
	}

	return c.JSON(fiber.Map{
		"ok": true,
		"activated": fiber.Map{
			"plan":       result.Plan,
			"features":   result.Features,
			"period_end": result.PeriodEnd.Format(time.RFC3339),
		},
	})
}

// GetActivationLink is used by the store success page: it resolves a token
// (directly or via the checkout session id) into a bot deep link.
func GetActivationLink(c *fiber.Ctx) error {
	token := strings.TrimSpace(c.Query("token"))
	sessionID := strings.TrimSpace(c.Query("session_id"))

	if telegram.GlobalClient == nil || telegram.GlobalClient.BotUsername() == "" {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"ok": false, "error": "missing_TELEGRAM_BOT_USERNAME",
		})
	}

	var info *billing.TokenInfo
	var err error

	switch {
	case token != "":
		info, err = tokenStore.Lookup(token)
		if errors.Is(err, billing.ErrTokenNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"ok": false, "error": "token_not_found"})
		}
	case sessionID != "":
		info, err = tokenStore.LookupByCheckoutSession(sessionID)
		if errors.Is(err, billing.ErrTokenNotFound) {
			// webhook may still be in flight
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"ok": false, "error": "pending_payment"})
		}
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": "missing_token_or_session_id"})
	}
	if err != nil {
		log.Printf("[activation-link] error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "error": "server_error"})
	}

	var usedAt interface{}
	if info.UsedAt != nil {
		usedAt = info.UsedAt.Format(time.RFC3339)
	}

	return c.JSON(fiber.Map{
		"ok":         true,
		"token":      info.Token,
		"expires_at": info.ExpiresAt.Format(time.RFC3339),
		"used_at":    usedAt,
		"tg_link":    telegram.GlobalClient.ActivationDeepLink(info.Token),
	})
}
