package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// SignalComponent is one enumerated building block of an entry signal.
// Components arrive as free-form strings on the wire and are validated at the
// ingestion boundary; nothing past Validate deals with unknown tags.
type SignalComponent string

const (
	ComponentMACDCross    SignalComponent = "macd_cross"
	ComponentRSIExtreme   SignalComponent = "rsi_extreme"
	ComponentVolumeSpike  SignalComponent = "volume_spike"
	ComponentBreakout     SignalComponent = "breakout"
	ComponentTrendAlign   SignalComponent = "trend_align"
	ComponentFundingSkew  SignalComponent = "funding_skew"
	ComponentOpenInterest SignalComponent = "open_interest"
	ComponentOrderFlow    SignalComponent = "order_flow"
)

var validComponents = map[SignalComponent]struct{}{
	ComponentMACDCross:    {},
	ComponentRSIExtreme:   {},
	ComponentVolumeSpike:  {},
	ComponentBreakout:     {},
	ComponentTrendAlign:   {},
	ComponentFundingSkew:  {},
	ComponentOpenInterest: {},
	ComponentOrderFlow:    {},
}

// Signal is an external entry request after ingestion validation.
type Signal struct {
	Symbol     string                      `json:"symbol"`
	Direction  string                      `json:"direction"`
	SignalType string                      `json:"signal_type"`
	Components []SignalComponent           `json:"components"`
	Scores     map[SignalComponent]float64 `json:"scores,omitempty"`
	Price      float64                     `json:"price"`
	Margin     float64                     `json:"margin"`
	Leverage   int                         `json:"leverage"`
	SignalTime time.Time                   `json:"signal_time"`
	AccountID  uint                        `json:"account_id"`
}

// Validate enforces the ingestion contract: known component tags, a known
// direction and positive sizing inputs.
func (s *Signal) Validate() error {
	if s.Symbol == "" {
		return errors.New("signal symbol is required")
	}
	if s.Direction != SideLong && s.Direction != SideShort {
		return fmt.Errorf("invalid signal direction %q", s.Direction)
	}
	if len(s.Components) == 0 {
		return errors.New("signal has no components")
	}
	for _, c := range s.Components {
		if _, ok := validComponents[c]; !ok {
			return fmt.Errorf("unknown signal component %q", c)
		}
	}
	for c := range s.Scores {
		if _, ok := validComponents[c]; !ok {
			return fmt.Errorf("score for unknown signal component %q", c)
		}
	}
	if s.Margin < 0 {
		return errors.New("signal margin must not be negative")
	}
	if s.Leverage < 0 {
		return errors.New("signal leverage must not be negative")
	}
	if s.SignalTime.IsZero() {
		s.SignalTime = time.Now().UTC()
	}
	return nil
}

// ComponentStrings returns the component tags as plain strings, sorted, for
// persistence and blacklist matching.
func (s *Signal) ComponentStrings() []string {
	out := make([]string, 0, len(s.Components))
	for _, c := range s.Components {
		out = append(out, string(c))
	}
	sort.Strings(out)
	return out
}

// ComponentKey is the canonical order-independent identity of a component set.
func ComponentKey(components []string) string {
	sorted := make([]string, len(components))
	copy(sorted, components)
	sort.Strings(sorted)
	return strings.Join(sorted, "|")
}
