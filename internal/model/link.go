package model

import (
	"time"

	"gorm.io/datatypes"
)

// Link is a monitored marketplace search. The schema prober discovers this
// table at runtime from information_schema, so migrations may rename
// columns without breaking link counting.
type Link struct {
	ID         uint           `json:"id" gorm:"primarykey"`
	UserID     uint           `json:"user_id" gorm:"index"`
	Name       string         `json:"name"`
	URL        string         `json:"url" gorm:"not null"`
	Source     string         `json:"source"`
	Active     bool           `json:"active" gorm:"default:true"`
	ChatID     string         `json:"chat_id"`
	ThreadID   string         `json:"thread_id"`
	LastKey    *string        `json:"last_key"`
	Filters    datatypes.JSON `json:"filters"`
	LastSeenAt *time.Time     `json:"last_seen_at"`
	CreatedAt  time.Time      `json:"created_at"`
}

// LinkItem is a discovered listing snapshot, append-only. Pruned when the
// link's baseline is reset (last_key=NULL + delete of items).
type LinkItem struct {
	ID          uint       `json:"id" gorm:"primarykey"`
	LinkID      uint       `json:"link_id" gorm:"index:idx_link_item,unique;not null"`
	ItemKey     string     `json:"item_key" gorm:"index:idx_link_item,unique;not null"`
	Title       string     `json:"title"`
	Price       *float64   `json:"price"`
	Currency    string     `json:"currency"`
	Brand       string     `json:"brand"`
	Size        string     `json:"size"`
	Condition   string     `json:"condition"`
	URL         string     `json:"url"`
	FirstSeenAt *time.Time `json:"first_seen_at" gorm:"index;default:now()"`

	Link Link `json:"-" gorm:"foreignKey:LinkID;constraint:OnDelete:CASCADE"`
}
