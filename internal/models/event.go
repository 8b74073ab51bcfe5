package models

import "time"

// EventType is the kind of a recorded trading event.
type EventType int

const (
	EventTypeBuy EventType = iota
	EventTypeSell
)

func (t EventType) String() string {
	switch t {
	case EventTypeBuy:
		return "buy"
	case EventTypeSell:
		return "sell"
	default:
		return "unknown"
	}
}

// Event represents an order the bot submitted to the exchange.
type Event struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Pair       string    `gorm:"size:16;index" json:"pair"`
	EventType  EventType `json:"event_type"`
	Memo       string    `gorm:"size:512" json:"memo"`
	RecordedAt time.Time `gorm:"index" json:"recorded_at"`
	CreatedAt  time.Time `json:"created_at"`
}
