package exit

import (
	"positionengine/src/externalmodel"
	"positionengine/src/model"
)

// Close reasons, one per rule, persisted on the position row.
const (
	ReasonH1Reversal     = "h1_reversal"
	ReasonFastReversal   = "fast_double_reversal"
	ReasonMaxHoldDecay   = "max_hold_strength_decay"
	ReasonProfitDecay    = "profit_strength_decay"
	ReasonProfitWeakness = "profit_strength_weakness"
	ReasonSignalStop     = "signal_reversal_stop"
)

// ProfitSnapshot is the monitor's per-tick reading for one open position.
type ProfitSnapshot struct {
	Price       float64
	ProfitPct   float64
	HoldMinutes float64
}

// StrengthSet is the latest K-line strength per timeframe. Any entry may be
// nil when the analytics pipeline has no fresh reading; rules that need a
// missing timeframe simply do not fire.
type StrengthSet struct {
	H1  *externalmodel.KlineStrength
	M15 *externalmodel.KlineStrength
	M5  *externalmodel.KlineStrength
}

// Decision is a close instruction: the ratio of the current quantity to
// close and the rule that produced it.
type Decision struct {
	Ratio  float64
	Reason string
	Rule   int
}

// Optimizer decides whether, and how much, of an open position to close.
// The rules are ordered and mutually exclusive; the first match wins. Every
// rule reads only the snapshot and persisted strength readings, so a tick
// can be safely re-evaluated after a failed close.
type Optimizer struct {
	config Config
}

func NewOptimizer(config Config) *Optimizer {
	return &Optimizer{config: config}
}

// aligned converts a signed net power into "power in the position's favor":
// positive helps the position, negative opposes it.
func aligned(side string, netPower float64) float64 {
	if side == model.SideShort {
		return -netPower
	}
	return netPower
}

// composite blends the aligned timeframe powers into one strength score.
// Missing timeframes contribute nothing and their weight is dropped.
func (o *Optimizer) composite(side string, s StrengthSet) (float64, bool) {
	totalWeight := 0.0
	score := 0.0

	add := func(reading *externalmodel.KlineStrength, weight float64) {
		if reading == nil {
			return
		}
		score += weight * aligned(side, reading.NetPower)
		totalWeight += weight
	}

	add(s.H1, 0.5)
	add(s.M15, 0.3)
	add(s.M5, 0.2)

	if totalWeight == 0 {
		return 0, false
	}
	return score / totalWeight, true
}

// strongReversal reports whether one timeframe shows a hard move against the
// position: opposing net power beyond the threshold plus enough strong
// opposing candles.
func (o *Optimizer) strongReversal(side string, reading *externalmodel.KlineStrength) bool {
	if reading == nil {
		return false
	}
	if aligned(side, reading.NetPower) > -o.config.StrongReversalThreshold {
		return false
	}
	opposing := reading.StrongBear
	if side == model.SideShort {
		opposing = reading.StrongBull
	}
	return opposing >= o.config.StrongReversalCandles
}

// Evaluate runs the rule chain for one tick. A nil decision means no action.
func (o *Optimizer) Evaluate(position *model.Position, snapshot ProfitSnapshot, strength StrengthSet) *Decision {
	side := position.Side
	profit := snapshot.ProfitPct

	// Rule 1: the 1h trend flipped against the position.
	if strength.H1 != nil && aligned(side, strength.H1.NetPower) <= -o.config.H1ReversalThreshold {
		ratio := 0.5
		if profit >= 2 {
			ratio = 0.7
		}
		return &Decision{Ratio: ratio, Reason: ReasonH1Reversal, Rule: 1}
	}

	// Rule 2: both fast timeframes show a strong reversal.
	if o.strongReversal(side, strength.M15) && o.strongReversal(side, strength.M5) {
		return &Decision{Ratio: 1.0, Reason: ReasonFastReversal, Rule: 2}
	}

	score, ok := o.composite(side, strength)

	// Rule 3: maximum hold time reached with decayed strength.
	if ok && position.MaxHoldMinutes > 0 &&
		snapshot.HoldMinutes >= float64(position.MaxHoldMinutes) &&
		score < o.config.DecayFloor {

		ratio := 0.5
		switch {
		case profit >= 4:
			ratio = 1.0
		case profit >= 2:
			ratio = 0.7
		}
		return &Decision{Ratio: ratio, Reason: ReasonMaxHoldDecay, Rule: 3}
	}

	// Rule 4: strong profit with weakening strength, take it all.
	if ok && profit >= 4 && score < o.config.SecondaryFloor {
		return &Decision{Ratio: 1.0, Reason: ReasonProfitDecay, Rule: 4}
	}

	// Rule 5: decent profit with severely weakened strength.
	if ok && profit >= 2 && score < o.config.SevereFloor {
		return &Decision{Ratio: 0.7, Reason: ReasonProfitWeakness, Rule: 5}
	}

	// Rule 6: losing position and the composite direction has flipped away.
	// Stop-loss by signal reversal, not just price.
	if ok && profit <= -1 && score < 0 {
		return &Decision{Ratio: 1.0, Reason: ReasonSignalStop, Rule: 6}
	}

	return nil
}
