package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

const (
	SideLong  = "long"
	SideShort = "short"
)

const (
	PositionStatusBuilding = "building"
	PositionStatusOpen     = "open"
	PositionStatusClosed   = "closed"
)

const (
	LedgerPaper = "paper"
	LedgerLive  = "live"
)

// BatchTranche is one planned partial entry. TimeoutMinutes is the offset
// from the entry signal time after which the tranche fires unconditionally;
// PullbackPct is the favorable retracement from the signal price that fires
// it earlier.
type BatchTranche struct {
	Ratio          float64 `json:"ratio"`
	TimeoutMinutes int     `json:"timeout_minutes"`
	PullbackPct    float64 `json:"pullback_pct"`
}

// BatchPlan is immutable once the position is created.
type BatchPlan struct {
	Tranches []BatchTranche `json:"tranches"`
}

func (p BatchPlan) Value() (driver.Value, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *BatchPlan) Scan(value interface{}) error {
	return scanJSON(value, p)
}

// FinalTimeoutMinutes returns the offset of the last tranche's deadline.
func (p BatchPlan) FinalTimeoutMinutes() int {
	if len(p.Tranches) == 0 {
		return 0
	}
	return p.Tranches[len(p.Tranches)-1].TimeoutMinutes
}

// BatchFill is one executed tranche. The slice on the position is append-only.
type BatchFill struct {
	BatchNo  int       `json:"batch_no"`
	Price    float64   `json:"price"`
	FilledAt time.Time `json:"filled_at"`
	Ratio    float64   `json:"ratio"`
	Reason   string    `json:"reason"`
}

type BatchFills []BatchFill

func (f BatchFills) Value() (driver.Value, error) {
	if f == nil {
		return "[]", nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (f *BatchFills) Scan(value interface{}) error {
	return scanJSON(value, f)
}

// Position is the central entity of the engine. A row is created in
// `building` by the batch entry builder, promoted to `open` and ticked by the
// monitor, and finally transitioned to `closed`; rows are never deleted.
type Position struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	AccountID uint   `gorm:"index" json:"account_id"`
	Ledger    string `gorm:"size:10;not null;default:paper;index" json:"ledger"`
	Symbol    string `gorm:"size:50;not null;index" json:"symbol"`
	Side      string `gorm:"size:10;not null" json:"side"`
	Status    string `gorm:"size:50;not null;default:building;index" json:"status"`

	Quantity   float64 `json:"quantity"`
	EntryPrice float64 `json:"entry_price"`
	Leverage   int     `gorm:"not null;default:1" json:"leverage"`
	Margin     float64 `json:"margin"`
	// TargetMargin is the full size the batch plan builds toward.
	TargetMargin float64 `json:"target_margin"`

	SignalType       string      `gorm:"size:100" json:"signal_type"`
	SignalComponents StringSlice `gorm:"type:jsonb" json:"signal_components"`
	SignalPrice      float64     `json:"signal_price"`
	EntrySignalTime  time.Time   `json:"entry_signal_time"`

	BatchPlan   BatchPlan  `gorm:"type:jsonb" json:"batch_plan"`
	BatchFilled BatchFills `gorm:"type:jsonb" json:"batch_filled"`

	StopLossPrice   float64 `json:"stop_loss_price"`
	TakeProfitPrice float64 `json:"take_profit_price"`
	MaxHoldMinutes  int     `gorm:"not null;default:1440" json:"max_hold_minutes"`

	RealizedPnl   float64 `json:"realized_pnl"`
	UnrealizedPnl float64 `json:"unrealized_pnl"`

	OpenTime      *time.Time `json:"open_time,omitempty"`
	CloseTime     *time.Time `json:"close_time,omitempty"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	CloseReason   string     `gorm:"size:100" json:"close_reason"`

	// LastSyncEventID is the close-event ID most recently mirrored onto this
	// live row. Written in the same guarded UPDATE as the reduction, so a
	// re-drained event can be recognized as already applied.
	LastSyncEventID string `gorm:"size:64;index" json:"last_sync_event_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}

// FilledRatio returns the cumulative ratio of executed tranches.
func (p *Position) FilledRatio() float64 {
	total := 0.0
	for _, f := range p.BatchFilled {
		total += f.Ratio
	}
	return total
}

// RecomputeFromFills rebuilds quantity, margin and the weighted average entry
// price from the append-only fill log. It is the only way those fields are
// derived while the position is building.
func (p *Position) RecomputeFromFills() {
	filled := 0.0
	weighted := 0.0
	qty := 0.0
	for _, f := range p.BatchFilled {
		if f.Price <= 0 {
			continue
		}
		filled += f.Ratio
		weighted += f.Ratio * f.Price
		qty += (p.TargetMargin * f.Ratio * float64(p.Leverage)) / f.Price
	}
	if filled > 0 {
		p.EntryPrice = weighted / filled
	}
	p.Margin = p.TargetMargin * filled
	p.Quantity = qty
}

// ProfitPct is the direction-adjusted price move from the average entry, in
// percent. Returns 0 when there is no entry or no price yet.
func (p *Position) ProfitPct(price float64) float64 {
	if p.EntryPrice <= 0 || price <= 0 {
		return 0
	}
	pct := (price - p.EntryPrice) / p.EntryPrice * 100
	if p.Side == SideShort {
		pct = -pct
	}
	return pct
}

// HoldMinutes is the elapsed time since the position opened, computed from the
// persisted open time so it survives restarts.
func (p *Position) HoldMinutes(now time.Time) float64 {
	if p.OpenTime == nil {
		return 0
	}
	return now.Sub(*p.OpenTime).Minutes()
}
