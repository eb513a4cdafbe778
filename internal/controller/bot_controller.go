package controller

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"findyourdeal_backend/pkg/billing"
	"findyourdeal_backend/pkg/telegram"
)

type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From struct {
			ID           int64  `json:"id"`
			Username     string `json:"username"`
			FirstName    string `json:"first_name"`
			LastName     string `json:"last_name"`
			LanguageCode string `json:"language_code"`
		} `json:"from"`
		Text string `json:"text"`
	} `json:"message"`
}

// HandleTelegramWebhook processes bot updates. Telegram retries non-200
// responses, so every handled update answers 200 even when a command fails;
// the failure goes to the chat instead.
func HandleTelegramWebhook(c *fiber.Ctx) error {
	var update telegramUpdate
	if err := c.BodyParser(&update); err != nil {
		log.Printf("[bot] unreadable update: %v", err)
		return c.SendStatus(fiber.StatusOK)
	}
	if update.Message == nil || update.Message.From.ID == 0 {
		return c.SendStatus(fiber.StatusOK)
	}

	msg := update.Message
	text := strings.TrimSpace(msg.Text)
	chatID := msg.Chat.ID

	switch {
	case strings.HasPrefix(text, "/start"):
		handleStart(chatID, msg.From.ID, msg.From.Username, msg.From.FirstName, msg.From.LastName, msg.From.LanguageCode, text)
	case strings.HasPrefix(text, "/status"):
		handleStatus(chatID, msg.From.ID)
	}

	return c.SendStatus(fiber.StatusOK)
}

func handleStart(chatID, telegramUserID int64, username, firstName, lastName, languageCode, text string) {
	if _, err := EnsureUser(telegramUserID, username, firstName, lastName, languageCode); err != nil {
		log.Printf("[bot] ensure user %d failed: %v", telegramUserID, err)
		replyTo(chatID, "Something went wrong, please try again in a moment.")
		return
	}

	// Deep-link payload: /start act_<token>
	payload := strings.TrimSpace(strings.TrimPrefix(text, "/start"))
	if strings.HasPrefix(payload, "act_") {
		redeemToken(chatID, telegramUserID, strings.TrimPrefix(payload, "act_"))
		return
	}

	replyTo(chatID, "Welcome to FindYourDeal! Add marketplace search links and I will watch them for new offers. Use /status to check your plan.")
}

func redeemToken(chatID, telegramUserID int64, token string) {
	result, err := reconciler.Activate(token, telegramUserID)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrTokenAlreadyUsed):
			replyTo(chatID, "This activation link was already used.")
		case errors.Is(err, billing.ErrTokenExpired):
			replyTo(chatID, "This activation link has expired. Contact support if you just paid.")
		case errors.Is(err, billing.ErrTokenNotFound):
			replyTo(chatID, "Unknown activation link.")
		default:
			log.Printf("[bot] activate failed for %d: %v", telegramUserID, err)
			replyTo(chatID, "Activation failed, please try again in a moment.")
		}
		return
	}

	replyTo(chatID, fmt.Sprintf(
		"Plan %s activated! It is valid until %s. Use /status anytime to check your limits.",
		result.Plan.Name, result.PeriodEnd.Format("2006-01-02"),
	))
}

func handleStatus(chatID, telegramUserID int64) {
	ent, err := resolver.ResolveByTelegramID(telegramUserID)
	if err != nil {
		replyTo(chatID, "You have no account yet. Send /start to begin.")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Plan: %s\n", ent.PlanName)
	if ent.Active {
		if ent.ExpiresAt != nil {
			fmt.Fprintf(&b, "Valid until: %s\n", ent.ExpiresAt.Format("2006-01-02"))
		}
	} else {
		b.WriteString("Status: expired\n")
	}

	if used, err := linkCounter.CountAll(ent.UserID); err == nil {
		fmt.Fprintf(&b, "Links: %d / %d\n", used, ent.LinksLimitTotal)
	} else {
		fmt.Fprintf(&b, "Links limit: %d\n", ent.LinksLimitTotal)
	}
	fmt.Fprintf(&b, "Daily notifications: %d", ent.DailyNotificationLimit)

	replyTo(chatID, b.String())
}

func replyTo(chatID int64, text string) {
	if telegram.GlobalClient == nil {
		return
	}
	if err := telegram.GlobalClient.SendMessage(chatID, text); err != nil {
		log.Printf("[bot] send to %d failed: %v", chatID, err)
	}
}
