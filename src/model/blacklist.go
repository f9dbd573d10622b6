package model

import "time"

// BlacklistEntry vetoes a specific signal-component combination in a specific
// direction. The statistics columns are operator-facing only; veto logic uses
// the component set, direction and Blocked flag exclusively.
type BlacklistEntry struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	Components StringSlice `gorm:"type:jsonb;not null" json:"components"`
	Direction  string      `gorm:"size:10;not null" json:"direction"`
	Blocked    bool        `gorm:"not null;default:true" json:"blocked"`

	WinRate        float64 `json:"win_rate"`
	OrderCount     int     `json:"order_count"`
	CumulativeLoss float64 `json:"cumulative_loss"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (BlacklistEntry) TableName() string {
	return "signal_blacklist"
}
