package controller

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/checkout/session"
)

func InitCheckoutController() {
	stripe.Key = cfg.Stripe.SecretKey
}

// withSessionID appends the Stripe template parameter so the success page
// can resolve its activation link.
func withSessionID(url string) string {
	if url == "" || strings.Contains(url, "{CHECKOUT_SESSION_ID}") {
		return url
	}
	glue := "?"
	if strings.Contains(url, "?") {
		glue = "&"
	}
	return url + glue + "session_id={CHECKOUT_SESSION_ID}"
}

// CreateStoreCheckout starts a plan subscription checkout from the public
// store and redirects the browser to Stripe.
func CreateStoreCheckout(c *fiber.Ctx) error {
	plan := strings.ToLower(strings.TrimSpace(c.Query("plan")))
	addonPacks, _ := strconv.Atoi(c.Query("addon_packs", "0"))
	if addonPacks < 0 {
		addonPacks = 0
	}

	priceID, planID := prices.PriceForPlanCode(plan)
	if priceID == "" || planID == 0 {
		return c.Status(fiber.StatusBadRequest).SendString("invalid plan")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:                stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		AllowPromotionCodes: stripe.Bool(true),
		SuccessURL:          stripe.String(withSessionID(cfg.Store.SuccessURL)),
		CancelURL:           stripe.String(cfg.Store.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
	}
	params.AddMetadata("fyd_plan_id", strconv.Itoa(int(planID)))
	params.AddMetadata("fyd_addon_packs", strconv.Itoa(addonPacks))
	params.AddMetadata("fyd_kind", "plan")

	s, err := session.New(params)
	if err != nil {
		log.Printf("[stripe-checkout] error: %v", err)
		return c.Status(fiber.StatusInternalServerError).SendString("checkout_error")
	}
	if s.URL == "" {
		return c.Status(fiber.StatusInternalServerError).SendString("stripe session url missing")
	}

	return c.Redirect(s.URL, fiber.StatusSeeOther)
}

// CreateAddonCheckout sells extra link packs. Platinum only: lower tiers
// ignore packs, so selling them there would charge for nothing.
func CreateAddonCheckout(c *fiber.Ctx) error {
	tg := strings.TrimSpace(c.Query("tg"))
	qty, _ := strconv.Atoi(c.Query("qty", "1"))
	if qty < 1 {
		qty = 1
	}
	if qty > 50 {
		qty = 50
	}

	tgID, err := strconv.ParseInt(tg, 10, 64)
	if err != nil || tgID <= 0 {
		return c.Status(fiber.StatusBadRequest).SendString("missing_tg")
	}

	if cfg.Stripe.PriceAddon == "" {
		return c.Status(fiber.StatusInternalServerError).SendString("missing_addon_price")
	}

	// an expired platinum plan gets nothing from packs until renewal, so
	// don't take the money
	ent, err := resolver.ResolveByTelegramID(tgID)
	if err != nil || ent.PlanCode != "platinum" || !ent.Active {
		return c.Status(fiber.StatusForbidden).SendString("platinum_only")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:                stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		AllowPromotionCodes: stripe.Bool(true),
		SuccessURL:          stripe.String(withSessionID(cfg.Store.SuccessURL)),
		CancelURL:           stripe.String(cfg.Store.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(cfg.Stripe.PriceAddon), Quantity: stripe.Int64(int64(qty))},
		},
	}
	params.AddMetadata("fyd_kind", "addon10")
	params.AddMetadata("fyd_telegram_user_id", fmt.Sprintf("%d", tgID))
	params.AddMetadata("fyd_addon_packs", strconv.Itoa(qty))

	s, err := session.New(params)
	if err != nil {
		log.Printf("[stripe-addon10] error: %v", err)
		return c.Status(fiber.StatusInternalServerError).SendString("server_error")
	}

	return c.Redirect(s.URL, fiber.StatusSeeOther)
}
