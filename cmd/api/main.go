package main

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"findyourdeal_backend/internal/controller"
	"findyourdeal_backend/internal/middleware"
	"findyourdeal_backend/internal/model"
	"findyourdeal_backend/pkg/billing"
	"findyourdeal_backend/pkg/config"
	"findyourdeal_backend/pkg/cron"
	"findyourdeal_backend/pkg/database"
	"findyourdeal_backend/pkg/entitlement"
	"findyourdeal_backend/pkg/links"
	"findyourdeal_backend/pkg/schema"
	"findyourdeal_backend/pkg/seed"
	"findyourdeal_backend/pkg/telegram"
	"findyourdeal_backend/pkg/utils/jwt"
	"findyourdeal_backend/pkg/utils/storage"
)

func setupRoutes(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/plans", controller.ListPlans)

	// Auth
	auth := app.Group("/auth")
	auth.Post("/telegram", controller.TelegramLogin)
	auth.Post("/admin", controller.AdminLogin)

	// Protected user surface
	app.Get("/me", middleware.AuthMiddleware(), controller.GetMe)
	app.Put("/me", middleware.AuthMiddleware(), controller.UpdateProfile)
	app.Post("/activate", middleware.AuthMiddleware(), controller.Activate)

	linksGroup := app.Group("/links", middleware.AuthMiddleware())
	linksGroup.Get("/", controller.ListMyLinks)
	linksGroup.Post("/", middleware.RequireActivePlan(), middleware.CheckLinkLimit(), controller.CreateLink)
	linksGroup.Put("/:id", controller.UpdateLink)
	linksGroup.Post("/:id/reset", controller.ResetLinkBaseline)
	linksGroup.Delete("/:id", controller.DeleteLink)

	settings := app.Group("/settings", middleware.AuthMiddleware())
	settings.Get("/chat-notifications", controller.GetNotificationMode)
	settings.Put("/chat-notifications", controller.SetNotificationMode)
	settings.Get("/quiet-hours", controller.GetQuietHours)
	settings.Put("/quiet-hours", controller.SetQuietHours)

	// Store
	app.Get("/api/store/activation-link", controller.GetActivationLink)
	app.Get("/api/store/stripe/checkout", controller.CreateStoreCheckout)
	app.Get("/api/store/stripe/checkout-addon10", controller.CreateAddonCheckout)

	// Webhooks
	app.Post("/api/store/stripe/webhook", controller.HandleStripeWebhook)
	app.Post("/telegram-webhook", controller.HandleTelegramWebhook)

	// Admin
	admin := app.Group("/admin", middleware.AuthMiddleware(), middleware.AdminMiddleware())
	admin.Post("/grant", controller.GrantPlan)
	admin.Delete("/users/:id", controller.PurgeUser)
}

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	jwt.Init(cfg.JWT.Secret)
	telegram.InitClient(cfg.Telegram.BotToken, cfg.Telegram.BotUsername)

	if cfg.Archive.Bucket != "" {
		if err := storage.InitArchive(cfg.Archive.Bucket, cfg.Archive.Region, cfg.Archive.AccessKeyID, cfg.Archive.SecretAccessKey); err != nil {
			log.Printf("Webhook archive disabled: %v", err)
		}
	}

	database.InitDB(cfg.Database.URL)
	err := database.MigrateDatabase(
		&model.User{},
		&model.Plan{},
		&model.PlanFeature{},
		&model.Subscription{},
		&model.AddonPurchase{},
		&model.ActivationToken{},
		&model.Link{},
		&model.LinkItem{},
		&model.StripeWebhookEvent{},
		&model.ChatNotification{},
		&model.ChatQuietHours{},
	)
	if err != nil {
		log.Printf("Migration warning: %v", err)
	}
	seed.SeedPlans(database.DB)

	prober := schema.NewProber(database.DB)
	counter := links.NewCounter(database.DB, prober)
	resolver := entitlement.NewResolver(database.DB)
	prices := billing.NewPriceMap(cfg.Stripe)
	tokens := billing.NewTokenStore(database.DB)
	reconciler := billing.NewReconciler(database.DB, prices, tokens)

	if cfg.Telegram.AdminChatID != "" {
		if adminChat, perr := strconv.ParseInt(cfg.Telegram.AdminChatID, 10, 64); perr == nil {
			reconciler.Notifier = func(text string) {
				if err := telegram.GlobalClient.SendMessage(adminChat, text); err != nil {
					log.Printf("Admin notify failed: %v", err)
				}
			}
		}
	}

	controller.InitControllers(cfg, prices, reconciler, tokens, resolver, counter)
	controller.InitCheckoutController()
	middleware.InitEntitlementMiddleware(resolver, counter)

	cron.InitLinkExpiryCron()
	cron.InitSubscriptionExpiryCron()

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New())

	setupRoutes(app)

	log.Printf("Server is running on port %s", cfg.Server.Port)
	log.Fatal(app.Listen(":" + cfg.Server.Port))
}
