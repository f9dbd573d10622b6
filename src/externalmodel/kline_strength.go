package externalmodel

import "time"

const (
	Timeframe1h  = "1h"
	Timeframe15m = "15m"
	Timeframe5m  = "5m"
)

// KlineStrength is a precomputed market-strength reading maintained by the
// analytics pipeline in the read-only database. NetPower is a signed
// aggregate of bullish/bearish candle power over the lookback window.
type KlineStrength struct {
	ID         uint      `gorm:"primaryKey;column:id" json:"id"`
	Symbol     string    `gorm:"column:symbol" json:"symbol"`
	Timeframe  string    `gorm:"column:timeframe" json:"timeframe"`
	NetPower   float64   `gorm:"column:net_power" json:"net_power"`
	BullPct    float64   `gorm:"column:bull_pct" json:"bull_pct"`
	StrongBull int       `gorm:"column:strong_bull" json:"strong_bull"`
	StrongBear int       `gorm:"column:strong_bear" json:"strong_bear"`
	ComputedAt time.Time `gorm:"column:computed_at" json:"computed_at"`
}

// TableName ensures GORM uses the exact table name from the analytics schema.
func (KlineStrength) TableName() string {
	return "kline_strength"
}
