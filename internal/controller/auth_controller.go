package controller

import (
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"findyourdeal_backend/internal/model"
	"findyourdeal_backend/pkg/database"
	"findyourdeal_backend/pkg/utils/jwt"
)

type TelegramLoginInput struct {
	TelegramUserID int64  `json:"telegram_user_id" validate:"required"`
	Username       string `json:"username"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	LanguageCode   string `json:"language_code"`
}

type AdminLoginInput struct {
	Password string `json:"password" validate:"required"`
}

// TelegramLogin ensures the user row exists and issues a panel JWT. The
// panel trusts the Telegram identity it is handed; this is the dev-auth
// model inherited from the bot-first flow.
func TelegramLogin(c *fiber.Ctx) error {
	input := new(TelegramLoginInput)
	if err := c.BodyParser(input); err != nil || input.TelegramUserID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input",
		})
	}

	user, err := EnsureUser(input.TelegramUserID, input.Username, input.FirstName, input.LastName, input.LanguageCode)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not create user",
		})
	}

	token, err := jwt.GenerateToken(user.ID, user.TelegramUserID, false)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not generate token",
		})
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user": fiber.Map{
			"id":               user.ID,
			"telegram_user_id": user.TelegramUserID,
			"username":         user.Username,
		},
	})
}

func AdminLogin(c *fiber.Ctx) error {
	input := new(AdminLoginInput)
	if err := c.BodyParser(input); err != nil || input.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input",
		})
	}

	if cfg.Admin.PasswordHash == "" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Admin access not configured",
		})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cfg.Admin.PasswordHash), []byte(input.Password)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid credentials",
		})
	}

	token, err := jwt.GenerateToken(0, 0, true)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not generate token",
		})
	}

	return c.JSON(fiber.Map{"token": token})
}

// EnsureUser upserts by telegram_user_id so every bot or panel interaction
// is anchored to one row.
func EnsureUser(telegramUserID int64, username, firstName, lastName, languageCode string) (*model.User, error) {
	var user model.User
	err := database.DB.Where("telegram_user_id = ?", telegramUserID).First(&user).Error
	if err == nil {
		// Telegram omits optional profile fields; never blank stored values
		if username != "" {
			user.Username = username
		}
		if firstName != "" {
			user.FirstName = firstName
		}
		if lastName != "" {
			user.LastName = lastName
		}
		if languageCode != "" {
			user.LanguageCode = languageCode
		}
		if err := database.DB.Save(&user).Error; err != nil {
			return nil, err
		}
		return &user, nil
	}

	user = model.User{
		TelegramUserID: telegramUserID,
		Username:       username,
		FirstName:      firstName,
		LastName:       lastName,
		LanguageCode:   languageCode,
		PlanName:       "none",
	}
	if err := database.DB.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
