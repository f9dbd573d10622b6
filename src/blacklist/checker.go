package blacklist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"positionengine/src/model"
)

var (
	multiplierBlocked    = decimal.Zero
	multiplierLowWinRate = decimal.NewFromFloat(0.5)
	multiplierFull       = decimal.NewFromInt(1)
)

// lowWinRateFloor is the historical win rate below which sizing is halved.
const lowWinRateFloor = 50.0

type entrySource interface {
	FindAll(ctx context.Context) ([]model.BlacklistEntry, error)
}

type indexedEntry struct {
	entry model.BlacklistEntry
}

// snapshot is one immutable reload of the blacklist, indexed by
// direction + canonical component-set key. Decision calls read whichever
// snapshot was current when they started; stale reads are acceptable because
// blacklist changes are operator-driven.
type snapshot struct {
	entries  map[string]indexedEntry
	loadedAt time.Time
}

func entryKey(direction string, components []string) string {
	return direction + "#" + model.ComponentKey(components)
}

// Checker answers whether a signal-component combination may open a position
// and at what sizing multiplier. The in-memory snapshot is reloaded from the
// durable store on a fixed interval or on explicit force-reload.
type Checker struct {
	source entrySource

	mu      sync.RWMutex
	current snapshot
}

// NewChecker creates a checker with an empty snapshot; call Reload (or Run)
// before relying on it.
func NewChecker(source entrySource) *Checker {
	return &Checker{
		source: source,
		current: snapshot{
			entries: make(map[string]indexedEntry),
		},
	}
}

// Reload replaces the in-memory snapshot from the durable store. On failure
// the previous snapshot is kept and trading continues.
func (c *Checker) Reload(ctx context.Context) error {
	entries, err := c.source.FindAll(ctx)
	if err != nil {
		logger.WithError(err).Error("blacklist reload failed, keeping previous snapshot")
		return err
	}

	next := snapshot{
		entries:  make(map[string]indexedEntry, len(entries)),
		loadedAt: time.Now().UTC(),
	}
	for _, e := range entries {
		next.entries[entryKey(e.Direction, e.Components)] = indexedEntry{entry: e}
	}

	c.mu.Lock()
	c.current = next
	c.mu.Unlock()

	logger.WithField("entries", len(entries)).Info("blacklist snapshot reloaded")

	return nil
}

// Run reloads once immediately and then on the configured interval until the
// context is cancelled.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = GetConfig().ReloadInterval
	}

	if err := c.Reload(ctx); err != nil {
		logger.WithError(err).Warn("initial blacklist reload failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("blacklist reloader stopped")
			return
		case <-ticker.C:
			_ = c.Reload(ctx)
		}
	}
}

func (c *Checker) lookup(components []string, direction string) (model.BlacklistEntry, bool) {
	c.mu.RLock()
	snap := c.current
	c.mu.RUnlock()

	ie, ok := snap.entries[entryKey(direction, components)]
	return ie.entry, ok
}

// IsBlacklisted reports whether the exact component set is vetoed for the
// direction. Matching is exact-set only: a single-component entry matches
// only a signal consisting of exactly that component, and a multi-component
// entry matches only the equal set, order-independent. A broadly named
// component therefore never vetoes every combination that contains it.
func (c *Checker) IsBlacklisted(components []string, direction string) (bool, string) {
	entry, ok := c.lookup(components, direction)
	if !ok || !entry.Blocked {
		return false, ""
	}

	reason := fmt.Sprintf("signal combination [%s] blacklisted for %s",
		model.ComponentKey(entry.Components), direction)

	logger.WithFields(map[string]interface{}{
		"components": model.ComponentKey(components),
		"direction":  direction,
		"entry_id":   entry.ID,
	}).Info("signal vetoed by blacklist")

	return true, reason
}

// GetMarginMultiplier returns the sizing multiplier for the combination:
// 0.0 when blocked, 0.5 when the supplied historical win rate is below 50%,
// 1.0 otherwise.
func (c *Checker) GetMarginMultiplier(components []string, direction string, winRate float64) decimal.Decimal {
	if blocked, _ := c.IsBlacklisted(components, direction); blocked {
		return multiplierBlocked
	}
	if winRate > 0 && winRate < lowWinRateFloor {
		return multiplierLowWinRate
	}
	return multiplierFull
}

// WinRate returns the recorded historical win rate for the exact combination,
// or 0 when the combination has no entry.
func (c *Checker) WinRate(components []string, direction string) float64 {
	entry, ok := c.lookup(components, direction)
	if !ok {
		return 0
	}
	return entry.WinRate
}
