package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Stripe   StripeConfig
	Telegram TelegramConfig
	Store    StoreConfig
	Admin    AdminConfig
	Archive  ArchiveConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	URL string
}

type JWTConfig struct {
	Secret string
}

// StripeConfig carries the price-id to plan mapping. The environment is the
// sole source of truth; a missing price id fails Validate at startup instead
// of falling back to a literal.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	PriceStarter  string
	PriceGrowth   string
	PricePlatinum string
	PriceAddon    string
}

type TelegramConfig struct {
	BotToken    string
	BotUsername string
	AdminChatID string
}

type StoreConfig struct {
	SuccessURL string
	CancelURL  string
}

type AdminConfig struct {
	PasswordHash string
}

// ArchiveConfig enables best-effort webhook payload archival to S3 when a
// bucket is set.
type ArchiveConfig struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

func Load() *Config {
	godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "3000"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			PriceStarter:  getEnv("STRIPE_PRICE_STARTER", ""),
			PriceGrowth:   getEnv("STRIPE_PRICE_GROWTH", ""),
			PricePlatinum: getEnv("STRIPE_PRICE_PLATINUM", ""),
			PriceAddon:    getEnv("STRIPE_PRICE_ADDON", ""),
		},
		Telegram: TelegramConfig{
			BotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
			BotUsername: getEnv("TELEGRAM_BOT_USERNAME", ""),
			AdminChatID: getEnv("TELEGRAM_ADMIN_CHAT_ID", ""),
		},
		Store: StoreConfig{
			SuccessURL: getEnv("STORE_SUCCESS_URL", "https://findyourdeal.app/aktywuj"),
			CancelURL:  getEnv("STORE_CANCEL_URL", "https://findyourdeal.app/anulowano"),
		},
		Admin: AdminConfig{
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		},
		Archive: ArchiveConfig{
			Bucket:          getEnv("WEBHOOK_ARCHIVE_BUCKET", ""),
			Region:          getEnv("WEBHOOK_ARCHIVE_REGION", "eu-central-1"),
			AccessKeyID:     getEnv("WEBHOOK_ARCHIVE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("WEBHOOK_ARCHIVE_SECRET_ACCESS_KEY", ""),
		},
	}
}

// Validate rejects configurations that would let money-handling paths run
// with an incomplete price mapping.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	if c.Stripe.SecretKey != "" {
		var missing []string
		if c.Stripe.PriceStarter == "" {
			missing = append(missing, "STRIPE_PRICE_STARTER")
		}
		if c.Stripe.PriceGrowth == "" {
			missing = append(missing, "STRIPE_PRICE_GROWTH")
		}
		if c.Stripe.PricePlatinum == "" {
			missing = append(missing, "STRIPE_PRICE_PLATINUM")
		}
		if len(missing) > 0 {
			return fmt.Errorf("stripe price ids missing: %v", missing)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
