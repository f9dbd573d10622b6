package pricecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"positionengine/src/model"
)

type fakeSnapshotSource struct {
	snapshots []model.PriceSnapshot
	err       error
}

func (f *fakeSnapshotSource) FindAll(ctx context.Context) ([]model.PriceSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshots, nil
}

func TestGetPriceReturnsZeroWithoutData(t *testing.T) {
	c := NewCache(&fakeSnapshotSource{})
	if got := c.GetPrice("BTC_USDT"); got != 0 {
		t.Fatalf("expected 0 for unknown symbol, got %f", got)
	}
}

func TestRefreshLoadsSnapshots(t *testing.T) {
	source := &fakeSnapshotSource{snapshots: []model.PriceSnapshot{
		{Symbol: "BTC_USDT", Price: 50000, Bid: 49990, Ask: 50010},
		{Symbol: "ETH_USDT", Price: 3000},
		{Symbol: "BAD", Price: 0}, // never cached
	}}
	c := NewCache(source)

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	if got := c.GetPrice("BTC_USDT"); got != 50000 {
		t.Fatalf("expected 50000, got %f", got)
	}
	if _, ok := c.GetQuote("BAD"); ok {
		t.Fatal("zero-price snapshot must not be cached")
	}
}

func TestFailedRefreshKeepsPreviousQuotes(t *testing.T) {
	source := &fakeSnapshotSource{snapshots: []model.PriceSnapshot{
		{Symbol: "BTC_USDT", Price: 50000},
	}}
	c := NewCache(source)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	source.err = errors.New("db unreachable")
	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error to surface")
	}

	if got := c.GetPrice("BTC_USDT"); got != 50000 {
		t.Fatalf("previous quotes must survive a failed refresh, got %f", got)
	}
}

func TestSetPriceFastPath(t *testing.T) {
	c := NewCache(&fakeSnapshotSource{})

	now := time.Now().UTC()
	c.SetPrice("BTC_USDT", 50500, 50490, 50510, now)

	quote, ok := c.GetQuote("BTC_USDT")
	if !ok || quote.Price != 50500 || quote.Bid != 50490 {
		t.Fatalf("expected pushed quote, got %+v ok=%v", quote, ok)
	}

	// Invalid pushes are ignored.
	c.SetPrice("BTC_USDT", 0, 0, 0, now)
	if got := c.GetPrice("BTC_USDT"); got != 50500 {
		t.Fatalf("zero-price push must be ignored, got %f", got)
	}
	c.SetPrice("", 100, 0, 0, now)
	if _, ok := c.GetQuote(""); ok {
		t.Fatal("empty symbol must be ignored")
	}
}
