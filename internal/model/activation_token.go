package model

import (
	"time"

	"gorm.io/gorm"
)

// ActivationToken is a single-use, time-boxed proof that a plan purchase
// (or a manual grant) happened. Redemption is serialized by a row lock.
type ActivationToken struct {
	gorm.Model
	Token                string     `json:"token" gorm:"uniqueIndex;not null"`
	PlanID               uint       `json:"plan_id" gorm:"not null"`
	Provider             string     `json:"provider" gorm:"not null"`
	ProviderRef          string     `json:"provider_ref"`
	ExpiresAt            time.Time  `json:"expires_at" gorm:"not null"`
	UsedAt               *time.Time `json:"used_at"`
	UsedByTelegramUserID *int64     `json:"used_by_telegram_user_id"`
}
