package models

import "time"

// BotStatus is a named metric of a bot, one row per (bot, pair, type).
// The "total_jpy" row of pair "all" is the running capital baseline used to size lots.
type BotStatus struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	BotName   string    `gorm:"size:64;uniqueIndex:idx_bot_statuses_key" json:"bot_name"`
	Pair      string    `gorm:"size:16;uniqueIndex:idx_bot_statuses_key" json:"pair"`
	Type      string    `gorm:"size:64;uniqueIndex:idx_bot_statuses_key" json:"type"`
	Value     float64   `json:"value"`
	Memo      string    `gorm:"size:255" json:"memo"`
	UpdatedAt time.Time `json:"updated_at"`
}
