package controller

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"findyourdeal_backend/internal/model"
	"findyourdeal_backend/pkg/billing"
	"findyourdeal_backend/pkg/database"
	"findyourdeal_backend/pkg/telegram"
)

const grantTokenTTL = 7 * 24 * time.Hour

// GrantPlan mints an activation token by hand, for support cases and promo
// grants that never touch Stripe. The token travels the same activation
// path as a purchased one.
func GrantPlan(c *fiber.Ctx) error {
	var req struct {
		PlanCode string `json:"plan_code"`
		Note     string `json:"note"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "INVALID_BODY",
		})
	}

	planID := billing.PlanIDByCode(strings.ToLower(strings.TrimSpace(req.PlanCode)))
	if planID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "INVALID_PLAN_CODE",
		})
	}

	ref := fmt.Sprintf("grant:%s", uuid.New().String())
	if note := strings.TrimSpace(req.Note); note != "" {
		ref += "|note:" + note
	}

	token, err := tokenStore.Mint(planID, "manual", ref, grantTokenTTL)
	if err != nil {
		log.Printf("[admin-grant] mint failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "GRANT_FAILED",
		})
	}

	return c.JSON(fiber.Map{
		"ok":      true,
		"token":   token,
		"tg_link": telegram.GlobalClient.ActivationDeepLink(token),
	})
}

// PurgeUser hard-deletes a user and every dependent row in one
// transaction. This is the only hard-delete path for users.
func PurgeUser(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "BAD_ID"})
	}

	var user model.User
	if err := database.DB.First(&user, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "USER_NOT_FOUND"})
	}

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`
			DELETE FROM link_items
			WHERE link_id IN (SELECT id FROM links WHERE user_id = ?)
		`, user.ID).Error; err != nil {
			return err
		}
		if err := tx.Exec(`DELETE FROM links WHERE user_id = ?`, user.ID).Error; err != nil {
			return err
		}
		if err := tx.Exec(`DELETE FROM subscriptions WHERE user_id = ?`, user.ID).Error; err != nil {
			return err
		}
		if err := tx.Exec(`DELETE FROM addon_purchases WHERE user_id = ?`, user.ID).Error; err != nil {
			return err
		}
		if err := tx.Exec(`DELETE FROM chat_notifications WHERE user_id = ?`, user.ID).Error; err != nil {
			return err
		}
		if err := tx.Exec(`DELETE FROM chat_quiet_hours WHERE user_id = ?`, user.ID).Error; err != nil {
			return err
		}
		return tx.Exec(`DELETE FROM users WHERE id = ?`, user.ID).Error
	})
	if err != nil {
		log.Printf("[admin-purge] user %d failed: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "PURGE_FAILED",
		})
	}

	log.Printf("[admin-purge] user %d (tg %d) removed", user.ID, user.TelegramUserID)
	return c.JSON(fiber.Map{"ok": true})
}
