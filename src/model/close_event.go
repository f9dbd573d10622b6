package model

import "time"

// CloseEvent records one paper-ledger close (full or partial) after it has
// been durably applied. The live sync bridge replays unprocessed events onto
// the live ledger; EventID makes the replay idempotent under at-least-once
// delivery.
type CloseEvent struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	EventID    string  `gorm:"size:36;not null;uniqueIndex" json:"event_id"`
	PositionID uint    `gorm:"index;not null" json:"position_id"`
	AccountID  uint    `gorm:"index" json:"account_id"`
	Symbol     string  `gorm:"size:50;not null" json:"symbol"`
	Side       string  `gorm:"size:10;not null" json:"side"`
	Ratio      float64 `gorm:"not null" json:"ratio"`
	FillPrice  float64 `json:"fill_price"`
	Reason     string  `gorm:"size:100" json:"reason"`

	ReplayedAt *time.Time `gorm:"index" json:"replayed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (CloseEvent) TableName() string {
	return "close_events"
}
