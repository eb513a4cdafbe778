package model

import (
	"time"

	"gorm.io/datatypes"
)

// StripeWebhookEvent is the durable delivery log for inbound Stripe events.
// The unique event_id plus the processed status give idempotent replay.
type StripeWebhookEvent struct {
	ID           uint           `json:"id" gorm:"primarykey"`
	EventID      string         `json:"event_id" gorm:"uniqueIndex;not null"`
	Type         string         `json:"type"`
	Livemode     *bool          `json:"livemode"`
	APIVersion   *string        `json:"api_version"`
	EventCreated *time.Time     `json:"event_created"`
	Payload      datatypes.JSON `json:"payload"`
	Attempts     int            `json:"attempts" gorm:"default:1"`
	Status       string         `json:"status" gorm:"default:'received'"`
	LastError    *string        `json:"last_error"`
	ReceivedAt   time.Time      `json:"received_at" gorm:"default:now()"`
	ProcessedAt  *time.Time     `json:"processed_at"`
}
