package model

import (
	"time"

	"gorm.io/gorm"
)

// Subscription is the latest known state of one external billing
// subscription. The unique index on (provider, provider_subscription_id)
// backs the conditional upsert in the reconciler.
type Subscription struct {
	gorm.Model
	UserID                 uint       `json:"user_id" gorm:"index"`
	PlanID                 uint       `json:"plan_id"`
	Provider               string     `json:"provider" gorm:"index:idx_provider_sub,unique;not null"`
	ProviderCustomerID     *string    `json:"provider_customer_id"`
	ProviderSubscriptionID string     `json:"provider_subscription_id" gorm:"index:idx_provider_sub,unique;not null"`
	Status                 string     `json:"status" gorm:"default:'active'"`
	CurrentPeriodEnd       *time.Time `json:"current_period_end"`
	AddonQty               int        `json:"addon_qty" gorm:"default:0"`

	User User `json:"-" gorm:"foreignKey:UserID"`
	Plan Plan `json:"-" gorm:"foreignKey:PlanID"`
}

// AddonPurchase records an applied add-on checkout so webhook re-delivery
// cannot double-grant packs.
type AddonPurchase struct {
	gorm.Model
	StripeCheckoutSessionID string `json:"stripe_checkout_session_id" gorm:"uniqueIndex;not null"`
	UserID                  uint   `json:"user_id"`
	Packs                   int    `json:"packs"`
}
