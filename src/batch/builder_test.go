package batch

import (
	"context"
	"testing"
	"time"

	"positionengine/src/model"
	"positionengine/src/repository"
)

type fakePositionStore struct {
	applyErr  error
	fills     []model.BatchFills
	promoted  []uint
	openTimes []time.Time
}

func (f *fakePositionStore) Create(ctx context.Context, position *model.Position) error {
	position.ID = 1
	return nil
}

func (f *fakePositionStore) FindByStatus(ctx context.Context, ledger, status string) ([]model.Position, error) {
	return nil, nil
}

func (f *fakePositionStore) ApplyFill(ctx context.Context, position *model.Position, expectedQuantity float64) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	filled := make(model.BatchFills, len(position.BatchFilled))
	copy(filled, position.BatchFilled)
	f.fills = append(f.fills, filled)
	return nil
}

func (f *fakePositionStore) Promote(ctx context.Context, positionID uint, openTime time.Time) error {
	f.promoted = append(f.promoted, positionID)
	f.openTimes = append(f.openTimes, openTime)
	return nil
}

type fakePrices struct {
	price float64
}

func (f *fakePrices) GetPrice(symbol string) float64 {
	return f.price
}

func testBuilder(store *fakePositionStore, prices *fakePrices, at time.Time) *Builder {
	b := NewBuilder(store, prices, Config{ScanInterval: time.Second, GraceMinutes: 10})
	b.now = func() time.Time { return at }
	return b
}

var entryTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func buildingPosition() *model.Position {
	return &model.Position{
		ID:              1,
		Ledger:          model.LedgerPaper,
		Symbol:          "BTC_USDT",
		Side:            model.SideLong,
		Status:          model.PositionStatusBuilding,
		Leverage:        10,
		TargetMargin:    300,
		SignalPrice:     50000,
		EntrySignalTime: entryTime,
		BatchPlan:       DefaultPlan(),
		BatchFilled:     model.BatchFills{},
	}
}

func TestDeadlinesDeriveFromEntrySignalTime(t *testing.T) {
	store := &fakePositionStore{}
	prices := &fakePrices{price: 50000} // at the signal price, no pullback trigger

	// 31 minutes after the signal every deadline (10/20/30) has passed, even
	// though this position was never advanced before. This is the restart
	// case: the schedule lives in the row, not in memory.
	b := testBuilder(store, prices, entryTime.Add(31*time.Minute))
	position := buildingPosition()

	if err := b.Advance(context.Background(), position); err != nil {
		t.Fatalf("advance failed: %v", err)
	}

	if len(position.BatchFilled) != 3 {
		t.Fatalf("expected all 3 tranches filled, got %d", len(position.BatchFilled))
	}
	for i, fill := range position.BatchFilled {
		if fill.BatchNo != i || fill.Reason != fillReasonTimeout {
			t.Fatalf("fill %d unexpected: %+v", i, fill)
		}
	}
	if len(store.promoted) != 1 {
		t.Fatalf("expected promotion after plan completion, got %d", len(store.promoted))
	}
	if position.Status != model.PositionStatusOpen {
		t.Fatalf("expected open status, got %s", position.Status)
	}
}

func TestOnlyElapsedDeadlinesFire(t *testing.T) {
	store := &fakePositionStore{}
	prices := &fakePrices{price: 50000}

	// At minute 12 only the first deadline (minute 10) has passed.
	b := testBuilder(store, prices, entryTime.Add(12*time.Minute))
	position := buildingPosition()

	if err := b.Advance(context.Background(), position); err != nil {
		t.Fatalf("advance failed: %v", err)
	}

	if len(position.BatchFilled) != 1 {
		t.Fatalf("expected 1 tranche filled at minute 12, got %d", len(position.BatchFilled))
	}
	if len(store.promoted) != 0 {
		t.Fatalf("unexpected promotion: %v", store.promoted)
	}
}

func TestPullbackTriggersBeforeDeadline(t *testing.T) {
	store := &fakePositionStore{}
	// First tranche pullback is 0.3%: 50000 * 0.997 = 49850.
	prices := &fakePrices{price: 49850}

	b := testBuilder(store, prices, entryTime.Add(1*time.Minute))
	position := buildingPosition()

	if err := b.Advance(context.Background(), position); err != nil {
		t.Fatalf("advance failed: %v", err)
	}

	if len(position.BatchFilled) != 1 || position.BatchFilled[0].Reason != fillReasonPriceTrigger {
		t.Fatalf("expected one price-triggered fill, got %+v", position.BatchFilled)
	}
}

func TestShortPullbackIsUpward(t *testing.T) {
	store := &fakePositionStore{}
	// For a short the favorable retracement is a rally: 50000 * 1.003.
	prices := &fakePrices{price: 50150}

	b := testBuilder(store, prices, entryTime.Add(1*time.Minute))
	position := buildingPosition()
	position.Side = model.SideShort

	if err := b.Advance(context.Background(), position); err != nil {
		t.Fatalf("advance failed: %v", err)
	}

	if len(position.BatchFilled) != 1 || position.BatchFilled[0].Reason != fillReasonPriceTrigger {
		t.Fatalf("expected upward price trigger for short, got %+v", position.BatchFilled)
	}
}

func TestNoPriceBlocksFillsButNotStallPromotion(t *testing.T) {
	store := &fakePositionStore{}
	prices := &fakePrices{price: 0}

	// Deadlines elapsed but there has never been a quote: no fill may happen.
	b := testBuilder(store, prices, entryTime.Add(35*time.Minute))
	position := buildingPosition()

	if err := b.Advance(context.Background(), position); err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	if len(position.BatchFilled) != 0 {
		t.Fatalf("expected no fills without a price, got %d", len(position.BatchFilled))
	}
	if len(store.promoted) != 0 {
		t.Fatalf("unexpected promotion inside grace window")
	}

	// Past final timeout (30) + grace (10) the stalled plan promotes anyway,
	// with zero fills.
	b = testBuilder(store, prices, entryTime.Add(41*time.Minute))
	if err := b.Advance(context.Background(), position); err != nil {
		t.Fatalf("advance failed: %v", err)
	}
	if len(store.promoted) != 1 {
		t.Fatalf("expected stall promotion, got %d", len(store.promoted))
	}
	if len(position.BatchFilled) != 0 {
		t.Fatalf("stall promotion must not invent fills")
	}
}

func TestFilledRatioNeverExceedsFull(t *testing.T) {
	store := &fakePositionStore{}
	prices := &fakePrices{price: 50000}

	b := testBuilder(store, prices, entryTime.Add(60*time.Minute))
	position := buildingPosition()
	// A corrupted plan whose ratios sum past 1.0 must not over-fill.
	position.BatchPlan = model.BatchPlan{Tranches: []model.BatchTranche{
		{Ratio: 0.6, TimeoutMinutes: 10},
		{Ratio: 0.6, TimeoutMinutes: 20},
	}}

	if err := b.Advance(context.Background(), position); err != nil {
		t.Fatalf("advance failed: %v", err)
	}

	if position.FilledRatio() > 1.0+ratioEpsilon {
		t.Fatalf("filled ratio exceeded 1.0: %f", position.FilledRatio())
	}
	if len(position.BatchFilled) != 1 {
		t.Fatalf("expected second tranche to be refused, got %d fills", len(position.BatchFilled))
	}
}

func TestStaleFillRollsBackInMemoryState(t *testing.T) {
	store := &fakePositionStore{applyErr: repository.ErrStaleUpdate}
	prices := &fakePrices{price: 50000}

	b := testBuilder(store, prices, entryTime.Add(12*time.Minute))
	position := buildingPosition()

	err := b.Advance(context.Background(), position)
	if err == nil {
		t.Fatal("expected stale update error to surface")
	}
	if len(position.BatchFilled) != 0 {
		t.Fatalf("in-memory fill must be rolled back on persist failure, got %d", len(position.BatchFilled))
	}
	if position.Quantity != 0 {
		t.Fatalf("quantity must be recomputed after rollback, got %f", position.Quantity)
	}
}

func TestRecomputeAfterEachFill(t *testing.T) {
	store := &fakePositionStore{}
	prices := &fakePrices{price: 50000}

	b := testBuilder(store, prices, entryTime.Add(31*time.Minute))
	position := buildingPosition()

	if err := b.Advance(context.Background(), position); err != nil {
		t.Fatalf("advance failed: %v", err)
	}

	// 30% + 30% + 40% of 300 margin at 10x leverage, all at 50000.
	wantQty := 300.0 * 10 / 50000
	if diff := position.Quantity - wantQty; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected quantity %f, got %f", wantQty, position.Quantity)
	}
	if position.EntryPrice != 50000 {
		t.Fatalf("expected entry price 50000, got %f", position.EntryPrice)
	}
	if position.Margin != 300 {
		t.Fatalf("expected full margin committed, got %f", position.Margin)
	}
}
