package exit

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// H1ReversalThreshold is the 1h net power magnitude, against the position
	// direction, that counts as a trend reversal.
	H1ReversalThreshold float64 `envconfig:"EXIT_H1_REVERSAL_THRESHOLD" default:"20"`
	// StrongReversalThreshold is the per-timeframe net power magnitude used
	// by the fast 15m+5m double-reversal rule.
	StrongReversalThreshold float64 `envconfig:"EXIT_STRONG_REVERSAL_THRESHOLD" default:"35"`
	// StrongReversalCandles is the minimum count of strong opposing candles
	// for the fast rule.
	StrongReversalCandles int `envconfig:"EXIT_STRONG_REVERSAL_CANDLES" default:"3"`
	// DecayFloor is the aligned composite score under which a position past
	// its maximum hold time is wound down.
	DecayFloor float64 `envconfig:"EXIT_DECAY_FLOOR" default:"10"`
	// SecondaryFloor triggers a full take-profit exit at >= 4% profit.
	SecondaryFloor float64 `envconfig:"EXIT_SECONDARY_FLOOR" default:"5"`
	// SevereFloor triggers a partial take-profit exit at >= 2% profit.
	SevereFloor float64 `envconfig:"EXIT_SEVERE_FLOOR" default:"-5"`
	// StrengthLookbackHours bounds how stale a strength reading may be.
	StrengthLookbackHours int `envconfig:"EXIT_STRENGTH_LOOKBACK_HOURS" default:"24"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
