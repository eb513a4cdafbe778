package model

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	TelegramUserID int64  `json:"telegram_user_id" gorm:"uniqueIndex;not null"`
	TelegramChatID *int64 `json:"telegram_chat_id"`
	Username       string `json:"username"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	LanguageCode   string `json:"language_code"`
	Lang           string `json:"lang"`
	Timezone       string `json:"timezone"`

	// Denormalized plan snapshot, kept in sync by the billing reconciler.
	// The entitlement resolver can always rebuild it from subscriptions+plans.
	PlanName         string     `json:"plan_name" gorm:"default:'none'"`
	PlanStartedAt    *time.Time `json:"plan_started_at"`
	PlanExpiresAt    *time.Time `json:"plan_expires_at"`
	TrialUsed        bool       `json:"trial_used" gorm:"default:false"`
	ExtraLinkPacks   int        `json:"extra_link_packs" gorm:"default:0"`
	StripeCustomerID *string    `json:"stripe_customer_id"`

	Subscriptions []Subscription `json:"-"`
}

func (u *User) GetFullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
