package model

import "gorm.io/gorm"

// ChatNotification holds the per-chat delivery mode: "single" sends one
// message per offer, "batch" groups offers into digests.
type ChatNotification struct {
	gorm.Model
	ChatID string `json:"chat_id" gorm:"index:idx_chat_notif,unique;not null"`
	UserID uint   `json:"user_id" gorm:"index:idx_chat_notif,unique;not null"`
	Mode   string `json:"mode" gorm:"default:'single'"`
}

type ChatQuietHours struct {
	gorm.Model
	ChatID       string `json:"chat_id" gorm:"index:idx_chat_quiet,unique;not null"`
	UserID       uint   `json:"user_id" gorm:"index:idx_chat_quiet,unique;not null"`
	QuietEnabled bool   `json:"quiet_enabled" gorm:"default:false"`
	QuietFrom    int16  `json:"quiet_from" gorm:"default:22"`
	QuietTo      int16  `json:"quiet_to" gorm:"default:7"`
}
