package controller

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"findyourdeal_backend/internal/model"
	"findyourdeal_backend/pkg/database"
	"findyourdeal_backend/pkg/utils/jwt"
)

// GetNotificationMode reads the per-chat delivery mode. Missing rows and
// read errors degrade to the "single" default so the bot UI always renders.
func GetNotificationMode(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)
	chatID := strings.TrimSpace(c.Query("chat_id"))
	if chatID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "MISSING_CHAT_ID",
		})
	}

	mode := "single"
	var setting model.ChatNotification
	if err := database.DB.Where("chat_id = ? AND user_id = ?", chatID, claims.UserID).
		First(&setting).Error; err == nil && setting.Mode != "" {
		mode = setting.Mode
	}

	return c.JSON(fiber.Map{
		"chat_id": chatID,
		"mode":    mode,
	})
}

func SetNotificationMode(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)

	var req struct {
		ChatID string `json:"chat_id"`
		Mode   string `json:"mode"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "INVALID_BODY",
		})
	}
	req.ChatID = strings.TrimSpace(req.ChatID)
	req.Mode = strings.ToLower(strings.TrimSpace(req.Mode))
	if req.ChatID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "MISSING_CHAT_ID",
		})
	}
	if req.Mode != "single" && req.Mode != "batch" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "INVALID_MODE",
		})
	}

	setting := model.ChatNotification{
		ChatID: req.ChatID,
		UserID: claims.UserID,
	}
	if err := database.DB.Where("chat_id = ? AND user_id = ?", req.ChatID, claims.UserID).
		FirstOrCreate(&setting).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "SETTINGS_SAVE_FAILED",
		})
	}
	if setting.Mode != req.Mode {
		if err := database.DB.Model(&setting).Update("mode", req.Mode).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "SETTINGS_SAVE_FAILED",
			})
		}
	}

	return c.JSON(fiber.Map{
		"chat_id": req.ChatID,
		"mode":    req.Mode,
	})
}

// GetQuietHours degrades to the disabled default on any read failure.
func GetQuietHours(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)
	chatID := strings.TrimSpace(c.Query("chat_id"))
	if chatID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "MISSING_CHAT_ID",
		})
	}

	quiet := model.ChatQuietHours{
		QuietEnabled: false,
		QuietFrom:    22,
		QuietTo:      7,
	}
	var row model.ChatQuietHours
	if err := database.DB.Where("chat_id = ? AND user_id = ?", chatID, claims.UserID).
		First(&row).Error; err == nil {
		quiet = row
	}

	return c.JSON(fiber.Map{
		"chat_id":       chatID,
		"quiet_enabled": quiet.QuietEnabled,
		"quiet_from":    quiet.QuietFrom,
		"quiet_to":      quiet.QuietTo,
	})
}

func SetQuietHours(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)

	var req struct {
		ChatID       string `json:"chat_id"`
		QuietEnabled bool   `json:"quiet_enabled"`
		QuietFrom    int16  `json:"quiet_from"`
		QuietTo      int16  `json:"quiet_to"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "INVALID_BODY",
		})
	}
	req.ChatID = strings.TrimSpace(req.ChatID)
	if req.ChatID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "MISSING_CHAT_ID",
		})
	}
	if req.QuietFrom < 0 || req.QuietFrom > 23 || req.QuietTo < 0 || req.QuietTo > 23 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "INVALID_HOURS",
		})
	}

	row := model.ChatQuietHours{
		ChatID: req.ChatID,
		UserID: claims.UserID,
	}
	if err := database.DB.Where("chat_id = ? AND user_id = ?", req.ChatID, claims.UserID).
		FirstOrCreate(&row).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "SETTINGS_SAVE_FAILED",
		})
	}
	if err := database.DB.Model(&row).Updates(map[string]interface{}{
		"quiet_enabled": req.QuietEnabled,
		"quiet_from":    req.QuietFrom,
		"quiet_to":      req.QuietTo,
	}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "SETTINGS_SAVE_FAILED",
		})
	}

	return c.JSON(fiber.Map{
		"chat_id":       req.ChatID,
		"quiet_enabled": req.QuietEnabled,
		"quiet_from":    req.QuietFrom,
		"quiet_to":      req.QuietTo,
	})
}
