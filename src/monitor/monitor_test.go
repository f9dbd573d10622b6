package monitor

import (
	"context"
	"testing"
	"time"

	"positionengine/src/exit"
	"positionengine/src/externalmodel"
	"positionengine/src/model"
)

type touchCall struct {
	positionID uint
	unrealized float64
}

type fakePositionStore struct {
	positions []model.Position
	touches   []touchCall
}

func (f *fakePositionStore) FindByStatus(ctx context.Context, ledger, status string) ([]model.Position, error) {
	return f.positions, nil
}

func (f *fakePositionStore) TouchLastChecked(ctx context.Context, positionID uint, checkedAt time.Time, unrealizedPnl float64) error {
	f.touches = append(f.touches, touchCall{positionID, unrealizedPnl})
	return nil
}

type fakePrices struct {
	price float64
}

func (f *fakePrices) GetPrice(symbol string) float64 {
	return f.price
}

type fakeStrengths struct {
	readings map[string]*externalmodel.KlineStrength
}

func (f *fakeStrengths) Latest(ctx context.Context, symbol, timeframe string, lookbackHours int) (*externalmodel.KlineStrength, error) {
	return f.readings[timeframe], nil
}

// applyingCloser finalizes the in-memory position the way the paper executor
// does after a durable write.
type applyingCloser struct {
	calls []float64
}

func (c *applyingCloser) Close(ctx context.Context, position *model.Position, ratio float64, reason string) error {
	c.calls = append(c.calls, ratio)
	if ratio >= 1 {
		position.Status = model.PositionStatusClosed
		position.Quantity = 0
		position.Margin = 0
		return nil
	}
	position.Quantity = position.Quantity * (1 - ratio)
	position.Margin = position.Margin * (1 - ratio)
	return nil
}

func testExitConfig() exit.Config {
	return exit.Config{
		H1ReversalThreshold:     20,
		StrongReversalThreshold: 35,
		StrongReversalCandles:   3,
		DecayFloor:              10,
		SecondaryFloor:          5,
		SevereFloor:             -5,
	}
}

func testMonitor(store *fakePositionStore, prices *fakePrices, strengths *fakeStrengths, closer *applyingCloser) *Monitor {
	m := NewMonitor(store, prices, strengths, exit.NewOptimizer(testExitConfig()), closer, Config{
		TickInterval:          15 * time.Minute,
		ScanInterval:          time.Minute,
		StrengthLookbackHours: 24,
	})
	m.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return m
}

func openPosition() *model.Position {
	opened := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &model.Position{
		ID:             7,
		Ledger:         model.LedgerPaper,
		Symbol:         "BTC_USDT",
		Side:           model.SideLong,
		Status:         model.PositionStatusOpen,
		Quantity:       0.06,
		EntryPrice:     50000,
		Margin:         300,
		MaxHoldMinutes: 1440,
		OpenTime:       &opened,
	}
}

func strength(netPower float64, strongBull, strongBear int) *externalmodel.KlineStrength {
	return &externalmodel.KlineStrength{
		NetPower:   netPower,
		StrongBull: strongBull,
		StrongBear: strongBear,
	}
}

func TestQuietTickPersistsBookkeeping(t *testing.T) {
	store := &fakePositionStore{}
	closer := &applyingCloser{}
	m := testMonitor(store, &fakePrices{price: 50500}, &fakeStrengths{}, closer)

	position := openPosition()
	if err := m.Tick(context.Background(), position); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if len(closer.calls) != 0 {
		t.Fatal("no strength readings must mean no close")
	}
	if len(store.touches) != 1 {
		t.Fatalf("expected one bookkeeping touch, got %d", len(store.touches))
	}
	want := 0.06 * (50500 - 50000)
	if got := store.touches[0].unrealized; got != want {
		t.Fatalf("expected unrealized %f, got %f", want, got)
	}
}

func TestFullCloseSkipsBookkeepingTouch(t *testing.T) {
	store := &fakePositionStore{}
	closer := &applyingCloser{}
	// Both fast timeframes hard against a long: full close.
	strengths := &fakeStrengths{readings: map[string]*externalmodel.KlineStrength{
		externalmodel.Timeframe15m: strength(-40, 0, 4),
		externalmodel.Timeframe5m:  strength(-45, 0, 3),
	}}
	m := testMonitor(store, &fakePrices{price: 48000}, strengths, closer)

	position := openPosition()
	if err := m.Tick(context.Background(), position); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if len(closer.calls) != 1 || closer.calls[0] != 1.0 {
		t.Fatalf("expected one full close, got %v", closer.calls)
	}
	// The close settled the row's bookkeeping; a touch afterwards would
	// overwrite it with the pre-close reading.
	if len(store.touches) != 0 {
		t.Fatalf("closed position must not be touched, got %+v", store.touches)
	}
}

func TestPartialCloseTouchReflectsRemainingQuantity(t *testing.T) {
	store := &fakePositionStore{}
	closer := &applyingCloser{}
	// 1h trend flipped against the long at modest profit: 50% close.
	strengths := &fakeStrengths{readings: map[string]*externalmodel.KlineStrength{
		externalmodel.Timeframe1h: strength(-25, 0, 0),
	}}
	m := testMonitor(store, &fakePrices{price: 50500}, strengths, closer)

	position := openPosition()
	if err := m.Tick(context.Background(), position); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if len(closer.calls) != 1 || closer.calls[0] != 0.5 {
		t.Fatalf("expected one half close, got %v", closer.calls)
	}
	if len(store.touches) != 1 {
		t.Fatalf("expected one bookkeeping touch, got %d", len(store.touches))
	}
	want := 0.03 * (50500 - 50000)
	if got := store.touches[0].unrealized; got != want {
		t.Fatalf("unrealized must reflect the reduced quantity, expected %f, got %f", want, got)
	}
}

func TestTickWithoutPriceIsSkipped(t *testing.T) {
	store := &fakePositionStore{}
	closer := &applyingCloser{}
	m := testMonitor(store, &fakePrices{price: 0}, &fakeStrengths{}, closer)

	if err := m.Tick(context.Background(), openPosition()); err != nil {
		t.Fatalf("tick without price must be a clean skip, got %v", err)
	}
	if len(store.touches) != 0 || len(closer.calls) != 0 {
		t.Fatal("skipped tick must not write anything")
	}
}

func TestDueSchedule(t *testing.T) {
	m := testMonitor(&fakePositionStore{}, &fakePrices{}, &fakeStrengths{}, &applyingCloser{})
	now := m.now()

	position := openPosition()
	if !m.due(position, now) {
		t.Fatal("never-ticked position must be due immediately")
	}

	recent := now.Add(-5 * time.Minute)
	position.LastCheckedAt = &recent
	if m.due(position, now) {
		t.Fatal("recently ticked position must not be due")
	}

	stale := now.Add(-16 * time.Minute)
	position.LastCheckedAt = &stale
	if !m.due(position, now) {
		t.Fatal("position past the tick interval must be due")
	}
}
