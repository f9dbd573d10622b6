package blacklist

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"positionengine/src/model"
)

type fakeEntrySource struct {
	entries []model.BlacklistEntry
	err     error
}

func (f *fakeEntrySource) FindAll(ctx context.Context) ([]model.BlacklistEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

func loadedChecker(t *testing.T, entries ...model.BlacklistEntry) *Checker {
	t.Helper()
	c := NewChecker(&fakeEntrySource{entries: entries})
	if err := c.Reload(context.Background()); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	return c
}

func TestExactSetMatchingOnly(t *testing.T) {
	c := loadedChecker(t,
		model.BlacklistEntry{ID: 1, Components: []string{"macd_cross"}, Direction: "long", Blocked: true},
		model.BlacklistEntry{ID: 2, Components: []string{"rsi_extreme", "volume_spike"}, Direction: "short", Blocked: true},
	)

	if blocked, _ := c.IsBlacklisted([]string{"macd_cross"}, "long"); !blocked {
		t.Fatal("exact single-component match must block")
	}

	// The same component inside a larger set is a different combination and
	// must pass.
	if blocked, _ := c.IsBlacklisted([]string{"macd_cross", "rsi_extreme"}, "long"); blocked {
		t.Fatal("superset of a blocked combination must not be blocked")
	}

	// Direction is part of the identity.
	if blocked, _ := c.IsBlacklisted([]string{"macd_cross"}, "short"); blocked {
		t.Fatal("same components in the other direction must not be blocked")
	}

	// Order-independent: the stored pair matches in any order.
	if blocked, _ := c.IsBlacklisted([]string{"volume_spike", "rsi_extreme"}, "short"); !blocked {
		t.Fatal("set matching must ignore component order")
	}
}

func TestUnblockedEntryDoesNotVeto(t *testing.T) {
	c := loadedChecker(t,
		model.BlacklistEntry{ID: 1, Components: []string{"breakout"}, Direction: "long", Blocked: false, WinRate: 42},
	)

	if blocked, _ := c.IsBlacklisted([]string{"breakout"}, "long"); blocked {
		t.Fatal("entry with blocked=false must not veto")
	}
	if got := c.WinRate([]string{"breakout"}, "long"); got != 42 {
		t.Fatalf("expected recorded win rate 42, got %f", got)
	}
}

func TestMarginMultiplierTiers(t *testing.T) {
	c := loadedChecker(t,
		model.BlacklistEntry{ID: 1, Components: []string{"macd_cross"}, Direction: "long", Blocked: true},
	)

	cases := []struct {
		components []string
		winRate    float64
		want       decimal.Decimal
	}{
		{[]string{"macd_cross"}, 80, decimal.Zero},                    // blocked wins over win rate
		{[]string{"breakout"}, 30, decimal.NewFromFloat(0.5)},         // low win rate halves sizing
		{[]string{"breakout"}, 0, decimal.NewFromInt(1)},              // zero means no history, full size
		{[]string{"breakout"}, 65, decimal.NewFromInt(1)},             // healthy history, full size
		{[]string{"breakout"}, 49.9, decimal.NewFromFloat(0.5)},       // just under the floor
		{[]string{"breakout"}, lowWinRateFloor, decimal.NewFromInt(1)}, // at the floor
	}
	for _, tc := range cases {
		got := c.GetMarginMultiplier(tc.components, "long", tc.winRate)
		if !got.Equal(tc.want) {
			t.Fatalf("winRate %.1f: expected multiplier %s, got %s", tc.winRate, tc.want, got)
		}
	}
}

func TestReloadFailureKeepsPreviousSnapshot(t *testing.T) {
	source := &fakeEntrySource{entries: []model.BlacklistEntry{
		{ID: 1, Components: []string{"macd_cross"}, Direction: "long", Blocked: true},
	}}
	c := NewChecker(source)
	if err := c.Reload(context.Background()); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	source.err = errors.New("db unreachable")
	if err := c.Reload(context.Background()); err == nil {
		t.Fatal("expected reload error to surface")
	}

	// Decisions keep running on the last good snapshot.
	if blocked, _ := c.IsBlacklisted([]string{"macd_cross"}, "long"); !blocked {
		t.Fatal("previous snapshot must survive a failed reload")
	}
}

func TestEmptyCheckerBlocksNothing(t *testing.T) {
	c := NewChecker(&fakeEntrySource{})

	if blocked, _ := c.IsBlacklisted([]string{"macd_cross"}, "long"); blocked {
		t.Fatal("empty snapshot must not block")
	}
	if got := c.GetMarginMultiplier([]string{"macd_cross"}, "long", 70); !got.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected full multiplier, got %s", got)
	}
}
