package controller

import (
	"github.com/gofiber/fiber/v2"

	"findyourdeal_backend/internal/model"
	"findyourdeal_backend/pkg/database"
	"findyourdeal_backend/pkg/utils/jwt"
)

// GetMe mirrors what the bot's /status shows: profile, plan, counts vs
// limits. Counting failures degrade to zero instead of failing the page.
func GetMe(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)

	var user model.User
	if err := database.DB.First(&user, claims.UserID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "USER_NOT_FOUND",
		})
	}

	ent, err := resolver.Resolve(user.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "ENTITLEMENT_FAILED",
		})
	}

	totalLinks, _ := linkCounter.CountAll(user.ID)
	enabledLinks, _ := linkCounter.CountEnabled(user.ID)

	plan := fiber.Map{"code": ent.PlanCode}
	if ent.PlanID != 0 {
		plan = fiber.Map{"id": ent.PlanID, "code": ent.PlanCode, "name": ent.PlanName}
	}

	return c.JSON(fiber.Map{
		"id":               user.ID,
		"telegram_user_id": user.TelegramUserID,
		"username":         user.Username,
		"first_name":       user.FirstName,
		"last_name":        user.LastName,
		"language_code":    user.LanguageCode,
		"timezone":         user.Timezone,

		"plan":             plan,
		"plan_expires_at":  ent.ExpiresAt,
		"plan_active":      ent.Active,
		"extra_link_packs": ent.ExtraLinkPacks,
		"trial_used":       user.TrialUsed,

		"entitlement": ent,
		"limits": fiber.Map{
			"total_links":      totalLinks,
			"max_total_links":  ent.LinksLimitTotal,
			"active_links":     enabledLinks,
			"max_active_links": ent.LinksLimitTotal,
		},
	})
}

type UpdateProfileInput struct {
	Timezone string `json:"timezone"`
	Lang     string `json:"lang"`
}

func UpdateProfile(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)

	input := new(UpdateProfileInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input",
		})
	}

	updates := map[string]interface{}{}
	if input.Timezone != "" {
		updates["timezone"] = input.Timezone
	}
	if input.Lang != "" {
		updates["lang"] = input.Lang
	}
	if len(updates) == 0 {
		return c.JSON(fiber.Map{"ok": true})
	}

	if err := database.DB.Model(&model.User{}).Where("id = ?", claims.UserID).
		Updates(updates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not update profile",
		})
	}

	return c.JSON(fiber.Map{"ok": true})
}
