package model

import "time"

// Account holds the per-operator engine configuration: sizing defaults, the
// encrypted exchange credentials used by the live connector, and whether paper
// closes are mirrored onto the live ledger.
type Account struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:255;not null" json:"name"`

	// APIKeyID plus a bcrypt-hashed token authenticate HTTP callers.
	APIKeyID     string `gorm:"size:60;uniqueIndex" json:"api_key_id"`
	APITokenHash string `gorm:"size:255" json:"-"`

	// Exchange credentials, AES-GCM encrypted at rest.
	ExchangeAPIKeyEnc    string `gorm:"size:512" json:"-"`
	ExchangeAPISecretEnc string `gorm:"size:512" json:"-"`

	BaseMargin      float64 `gorm:"not null;default:100" json:"base_margin"`
	MaxLeverage     int     `gorm:"not null;default:20" json:"max_leverage"`
	LiveSyncEnabled bool    `gorm:"not null;default:false" json:"live_sync_enabled"`
	Active          bool    `gorm:"not null;default:true" json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}
