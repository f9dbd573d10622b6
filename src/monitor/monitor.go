package monitor

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"positionengine/src/execution"
	"positionengine/src/exit"
	"positionengine/src/externalmodel"
	"positionengine/src/metrics"
	"positionengine/src/model"
)

type positionStore interface {
	FindByStatus(ctx context.Context, ledger, status string) ([]model.Position, error)
	TouchLastChecked(ctx context.Context, positionID uint, checkedAt time.Time, unrealizedPnl float64) error
}

type priceSource interface {
	GetPrice(symbol string) float64
}

type strengthSource interface {
	Latest(ctx context.Context, symbol, timeframe string, lookbackHours int) (*externalmodel.KlineStrength, error)
}

// Monitor is the single authoritative enumeration of open paper positions.
// Each position ticks independently: the first evaluation happens
// immediately on promotion, later ones every TickInterval. Due-ness is
// derived from the persisted last_checked_at and open_time, so the schedule
// survives restarts.
type Monitor struct {
	positions positionStore
	prices    priceSource
	strengths strengthSource
	optimizer *exit.Optimizer
	closer    execution.Closer
	config    Config
	now       func() time.Time
}

// NewMonitor wires the position monitor.
func NewMonitor(
	positions positionStore,
	prices priceSource,
	strengths strengthSource,
	optimizer *exit.Optimizer,
	closer execution.Closer,
	config Config,
) *Monitor {
	return &Monitor{
		positions: positions,
		prices:    prices,
		strengths: strengths,
		optimizer: optimizer,
		closer:    closer,
		config:    config,
		now:       time.Now,
	}
}

// due reports whether the position's next tick has arrived.
func (m *Monitor) due(position *model.Position, now time.Time) bool {
	last := position.LastCheckedAt
	if last == nil {
		// Never ticked: due immediately after promotion.
		return true
	}
	return !now.Before(last.Add(m.config.TickInterval))
}

// Tick evaluates one open position: price, profit snapshot, strength
// readings, then the exit rule chain. A failed close leaves the position
// unchanged; the same rule is re-evaluated on the next tick.
func (m *Monitor) Tick(ctx context.Context, position *model.Position) error {
	now := m.now().UTC()

	price := m.prices.GetPrice(position.Symbol)
	if price <= 0 {
		logger.WithFields(map[string]interface{}{
			"position_id": position.ID,
			"symbol":      position.Symbol,
		}).Warn("no cached price, skipping position this tick")
		return nil
	}

	snapshot := exit.ProfitSnapshot{
		Price:       price,
		ProfitPct:   position.ProfitPct(price),
		HoldMinutes: position.HoldMinutes(now),
	}

	strength := m.loadStrength(ctx, position.Symbol)

	metrics.MonitorTicksTotal.Inc()

	decision := m.optimizer.Evaluate(position, snapshot, strength)

	if decision != nil {
		logger.WithFields(map[string]interface{}{
			"position_id": position.ID,
			"symbol":      position.Symbol,
			"rule":        decision.Rule,
			"ratio":       decision.Ratio,
			"profit_pct":  snapshot.ProfitPct,
		}).Info("exit rule fired")

		if err := m.closer.Close(ctx, position, decision.Ratio, decision.Reason); err != nil {
			logger.WithError(err).
				WithField("position_id", position.ID).
				Error("close failed, rule will be re-evaluated next tick")
		}
	}

	if position.Status != model.PositionStatusOpen {
		// Fully closed this tick. The close already settled the persisted
		// bookkeeping; touching it again would resurrect a stale reading.
		return nil
	}

	// Computed after any partial close so it reflects the remaining quantity.
	unrealized := position.Quantity * (price - position.EntryPrice)
	if position.Side == model.SideShort {
		unrealized = -unrealized
	}

	return m.positions.TouchLastChecked(ctx, position.ID, now, unrealized)
}

func (m *Monitor) loadStrength(ctx context.Context, symbol string) exit.StrengthSet {
	set := exit.StrengthSet{}

	load := func(timeframe string) *externalmodel.KlineStrength {
		reading, err := m.strengths.Latest(ctx, symbol, timeframe, m.config.StrengthLookbackHours)
		if err != nil {
			logger.WithError(err).WithFields(map[string]interface{}{
				"symbol":    symbol,
				"timeframe": timeframe,
			}).Warn("failed to load strength reading")
			return nil
		}
		return reading
	}

	set.H1 = load(externalmodel.Timeframe1h)
	set.M15 = load(externalmodel.Timeframe15m)
	set.M5 = load(externalmodel.Timeframe5m)

	return set
}

// Run scans open positions on the configured interval and ticks every
// position that is due, until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("position monitor stopped")
			return
		case <-ticker.C:
			positions, err := m.positions.FindByStatus(ctx, model.LedgerPaper, model.PositionStatusOpen)
			if err != nil {
				logger.WithError(err).Error("failed to list open positions")
				continue
			}

			metrics.OpenPositions.WithLabelValues(model.LedgerPaper).Set(float64(len(positions)))

			now := m.now().UTC()
			for i := range positions {
				if !m.due(&positions[i], now) {
					continue
				}
				if err := m.Tick(ctx, &positions[i]); err != nil {
					logger.WithError(err).
						WithField("position_id", positions[i].ID).
						Error("monitor tick failed")
				}
			}
		}
	}
}
