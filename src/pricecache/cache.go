package pricecache

import (
	"context"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"positionengine/src/metrics"
	"positionengine/src/model"
)

// Quote is one cached price entry.
type Quote struct {
	Price     float64
	Bid       float64
	Ask       float64
	UpdatedAt time.Time
}

type snapshotSource interface {
	FindAll(ctx context.Context) ([]model.PriceSnapshot, error)
}

// Cache is an in-memory symbol → quote map. A single background refresher
// overwrites the full set from the durable store in one batch query; hot-path
// readers never touch the database. Entries are never deleted while the
// process runs.
type Cache struct {
	source snapshotSource

	mu     sync.RWMutex
	quotes map[string]Quote
}

// NewCache creates an empty cache over the given snapshot source.
func NewCache(source snapshotSource) *Cache {
	return &Cache{
		source: source,
		quotes: make(map[string]Quote),
	}
}

// GetPrice returns the last known price for the symbol, or 0 when the cache
// has no data yet. Zero means "skip this symbol this tick", not an error.
func (c *Cache) GetPrice(symbol string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.quotes[symbol].Price
}

// GetQuote returns the full cached quote and whether the symbol is known.
func (c *Cache) GetQuote(symbol string) (Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[symbol]
	return q, ok
}

// SetPrice lets a streaming feed push a quote between refresh cycles.
func (c *Cache) SetPrice(symbol string, price, bid, ask float64, ts time.Time) {
	if symbol == "" || price <= 0 {
		return
	}
	c.mu.Lock()
	c.quotes[symbol] = Quote{Price: price, Bid: bid, Ask: ask, UpdatedAt: ts}
	c.mu.Unlock()
}

// Refresh replaces the cached set from the durable store. A failed refresh
// keeps the previous snapshot.
func (c *Cache) Refresh(ctx context.Context) error {
	snapshots, err := c.source.FindAll(ctx)
	if err != nil {
		metrics.PriceRefreshErrorsTotal.Inc()
		logger.WithError(err).Error("price cache refresh failed, keeping previous snapshot")
		return err
	}

	next := make(map[string]Quote, len(snapshots))
	for _, s := range snapshots {
		if s.Price <= 0 {
			continue
		}
		next[s.Symbol] = Quote{
			Price:     s.Price,
			Bid:       s.Bid,
			Ask:       s.Ask,
			UpdatedAt: s.UpdatedAt,
		}
	}

	c.mu.Lock()
	c.quotes = next
	c.mu.Unlock()

	logger.WithField("symbols", len(next)).Debug("price cache refreshed")

	return nil
}

// Run refreshes once immediately and then on the configured interval until
// the context is cancelled.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = GetConfig().RefreshInterval
	}

	if err := c.Refresh(ctx); err != nil {
		logger.WithError(err).Warn("initial price cache refresh failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("price cache refresher stopped")
			return
		case <-ticker.C:
			_ = c.Refresh(ctx)
		}
	}
}
