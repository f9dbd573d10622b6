package risk

import (
	"time"

	"github.com/shopspring/decimal"
)

// SizingConfig bounds the margin committed to a single position.
type SizingConfig struct {
	// MinMargin is the smallest margin worth opening; anything below is a
	// rejection, not a tiny order.
	MinMargin decimal.Decimal
	// MaxMargin caps a single position regardless of signal input.
	MaxMargin decimal.Decimal
	// MaxLeverage caps the requested leverage.
	MaxLeverage int
}

// DefaultSizingConfig reasonable defaults, tweak per account.
func DefaultSizingConfig() SizingConfig {
	return SizingConfig{
		MinMargin:   decimal.NewFromInt(10),
		MaxMargin:   decimal.NewFromInt(5000),
		MaxLeverage: 20,
	}
}

// Sizing is the resolved entry size for an accepted signal.
type Sizing struct {
	Margin   decimal.Decimal
	Leverage int
}

// CalculateMargin applies the blacklist multiplier to the requested margin
// and clamps the result to the configured bounds. A zero result means the
// signal must be rejected (vetoed or below the minimum).
func CalculateMargin(
	requested decimal.Decimal,
	multiplier decimal.Decimal,
	leverage int,
	cfg SizingConfig,
) Sizing {
	if requested.LessThanOrEqual(decimal.Zero) || multiplier.LessThanOrEqual(decimal.Zero) {
		return Sizing{Margin: decimal.Zero, Leverage: 0}
	}

	margin := requested.Mul(multiplier)

	if cfg.MaxMargin.GreaterThan(decimal.Zero) && margin.GreaterThan(cfg.MaxMargin) {
		margin = cfg.MaxMargin
	}
	if margin.LessThan(cfg.MinMargin) {
		return Sizing{Margin: decimal.Zero, Leverage: 0}
	}

	if leverage <= 0 {
		leverage = 1
	}
	if cfg.MaxLeverage > 0 && leverage > cfg.MaxLeverage {
		leverage = cfg.MaxLeverage
	}

	return Sizing{Margin: margin, Leverage: leverage}
}

// TrancheAmount returns the margin slice a tranche ratio commits, rounded to
// 8 decimal places so repeated tranche math stays stable.
func TrancheAmount(total decimal.Decimal, ratio decimal.Decimal) decimal.Decimal {
	return total.Mul(ratio).Round(8)
}

// StopPrices derives absolute stop-loss/take-profit prices from percentage
// distances around the signal price.
func StopPrices(signalPrice decimal.Decimal, side string, stopLossPct, takeProfitPct decimal.Decimal) (sl, tp decimal.Decimal) {
	if signalPrice.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero
	}

	hundred := decimal.NewFromInt(100)
	slDelta := signalPrice.Mul(stopLossPct).Div(hundred)
	tpDelta := signalPrice.Mul(takeProfitPct).Div(hundred)

	if side == "short" {
		return signalPrice.Add(slDelta), signalPrice.Sub(tpDelta)
	}
	return signalPrice.Sub(slDelta), signalPrice.Add(tpDelta)
}

// HoldDeadline returns the absolute time after which the max-hold exit rule
// becomes eligible, computed from the persisted open time.
func HoldDeadline(openTime time.Time, maxHoldMinutes int) time.Time {
	return openTime.Add(time.Duration(maxHoldMinutes) * time.Minute)
}
