package model

import "time"

// PriceSnapshot is the last known quote for a symbol. One row per symbol,
// overwritten by the price feed on every refresh; the in-memory price cache
// batch-reads the whole table.
type PriceSnapshot struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Symbol    string    `gorm:"size:50;not null;uniqueIndex" json:"symbol"`
	Price     float64   `json:"price"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PriceSnapshot) TableName() string {
	return "price_snapshots"
}
