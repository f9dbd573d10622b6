package batch

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"positionengine/src/metrics"
	"positionengine/src/model"
	"positionengine/src/repository"
	"positionengine/src/risk"
)

const (
	fillReasonPriceTrigger = "price_trigger"
	fillReasonTimeout      = "timeout"
)

// ratioEpsilon absorbs float accumulation noise in the <= 1.0 invariant.
const ratioEpsilon = 1e-9

type positionStore interface {
	Create(ctx context.Context, position *model.Position) error
	FindByStatus(ctx context.Context, ledger, status string) ([]model.Position, error)
	ApplyFill(ctx context.Context, position *model.Position, expectedQuantity float64) error
	Promote(ctx context.Context, positionID uint, openTime time.Time) error
}

type priceSource interface {
	GetPrice(symbol string) float64
}

// Builder turns accepted signals into positions under construction and
// advances them tranche by tranche. Every deadline is derived from the
// persisted entry signal time, so progress is unaffected by restarts.
type Builder struct {
	positions positionStore
	prices    priceSource
	config    Config
	now       func() time.Time
}

// NewBuilder wires a builder over the position store and price source.
func NewBuilder(positions positionStore, prices priceSource, config Config) *Builder {
	return &Builder{
		positions: positions,
		prices:    prices,
		config:    config,
		now:       time.Now,
	}
}

// CreatePosition persists a new paper position in `building` status for an
// accepted signal. The batch plan is immutable from here on.
func (b *Builder) CreatePosition(
	ctx context.Context,
	signal *model.Signal,
	plan model.BatchPlan,
	sizing risk.Sizing,
) (*model.Position, error) {

	targetMargin, _ := sizing.Margin.Float64()

	sl, tp := risk.StopPrices(
		decimal.NewFromFloat(signal.Price),
		signal.Direction,
		decimal.NewFromFloat(2.0),
		decimal.NewFromFloat(6.0),
	)
	slf, _ := sl.Float64()
	tpf, _ := tp.Float64()

	position := &model.Position{
		AccountID:        signal.AccountID,
		Ledger:           model.LedgerPaper,
		Symbol:           signal.Symbol,
		Side:             signal.Direction,
		Status:           model.PositionStatusBuilding,
		Leverage:         sizing.Leverage,
		TargetMargin:     targetMargin,
		SignalType:       signal.SignalType,
		SignalComponents: signal.ComponentStrings(),
		SignalPrice:      signal.Price,
		EntrySignalTime:  signal.SignalTime.UTC(),
		BatchPlan:        plan,
		BatchFilled:      model.BatchFills{},
		StopLossPrice:    slf,
		TakeProfitPrice:  tpf,
	}

	if err := b.positions.Create(ctx, position); err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"position_id": position.ID,
		"symbol":      position.Symbol,
		"side":        position.Side,
		"tranches":    len(plan.Tranches),
	}).Info("position created in building state")

	return position, nil
}

// Advance progresses one building position: fills every tranche whose price
// trigger or deadline has been reached, then promotes when the plan is
// complete or stalled past the grace window. Safe to re-run; all decisions
// are derived from persisted state.
func (b *Builder) Advance(ctx context.Context, position *model.Position) error {
	now := b.now().UTC()
	price := b.prices.GetPrice(position.Symbol)

	tranches := position.BatchPlan.Tranches

	for next := len(position.BatchFilled); next < len(tranches); next++ {
		tranche := tranches[next]

		reason, fire := b.trancheFires(position, tranche, price, now)
		if !fire {
			break
		}

		if position.FilledRatio()+tranche.Ratio > 1.0+ratioEpsilon {
			logger.WithFields(map[string]interface{}{
				"position_id":  position.ID,
				"batch_no":     next,
				"filled_ratio": position.FilledRatio(),
				"ratio":        tranche.Ratio,
			}).Error("tranche fill would exceed full size, aborting fill")
			break
		}

		expectedQuantity := position.Quantity

		position.BatchFilled = append(position.BatchFilled, model.BatchFill{
			BatchNo:  next,
			Price:    price,
			FilledAt: now,
			Ratio:    tranche.Ratio,
			Reason:   reason,
		})
		position.RecomputeFromFills()

		if err := b.positions.ApplyFill(ctx, position, expectedQuantity); err != nil {
			// Concurrent writer or storage failure: drop the in-memory fill
			// and let the next scan re-evaluate from persisted truth.
			position.BatchFilled = position.BatchFilled[:len(position.BatchFilled)-1]
			position.RecomputeFromFills()
			return err
		}

		metrics.TrancheFillsTotal.WithLabelValues(reason).Inc()

		logger.WithFields(map[string]interface{}{
			"position_id": position.ID,
			"batch_no":    next,
			"fill_price":  price,
			"ratio":       tranche.Ratio,
			"reason":      reason,
		}).Info("tranche filled")
	}

	if len(position.BatchFilled) == len(tranches) && len(tranches) > 0 {
		return b.promote(ctx, position, now, "plan complete")
	}

	grace := time.Duration(position.BatchPlan.FinalTimeoutMinutes()+b.config.GraceMinutes) * time.Minute
	if now.After(position.EntrySignalTime.Add(grace)) {
		// Stalled plan: promote with whatever has filled, even nothing.
		// A building position is never silently dropped.
		return b.promote(ctx, position, now, "plan stalled")
	}

	return nil
}

// trancheFires decides whether a tranche executes now and why. A fill always
// needs a price; with no quote yet even an elapsed deadline waits.
func (b *Builder) trancheFires(
	position *model.Position,
	tranche model.BatchTranche,
	price float64,
	now time.Time,
) (string, bool) {

	if price <= 0 {
		return "", false
	}

	if tranche.PullbackPct > 0 && position.SignalPrice > 0 {
		threshold := position.SignalPrice * (1 - tranche.PullbackPct/100)
		triggered := price <= threshold
		if position.Side == model.SideShort {
			threshold = position.SignalPrice * (1 + tranche.PullbackPct/100)
			triggered = price >= threshold
		}
		if triggered {
			return fillReasonPriceTrigger, true
		}
	}

	deadline := position.EntrySignalTime.Add(time.Duration(tranche.TimeoutMinutes) * time.Minute)
	if !now.Before(deadline) {
		return fillReasonTimeout, true
	}

	return "", false
}

func (b *Builder) promote(ctx context.Context, position *model.Position, now time.Time, cause string) error {
	err := b.positions.Promote(ctx, position.ID, now)
	if err != nil {
		if errors.Is(err, repository.ErrStaleUpdate) {
			logger.WithField("position_id", position.ID).
				Warn("promotion skipped, position already transitioned")
			return nil
		}
		return err
	}

	position.Status = model.PositionStatusOpen
	position.OpenTime = &now

	logger.WithFields(map[string]interface{}{
		"position_id":  position.ID,
		"filled_ratio": position.FilledRatio(),
		"cause":        cause,
	}).Info("position promoted to open")

	return nil
}

// Run scans building positions on the configured interval and advances each
// until the context is cancelled.
func (b *Builder) Run(ctx context.Context) {
	ticker := time.NewTicker(b.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("batch entry builder stopped")
			return
		case <-ticker.C:
			positions, err := b.positions.FindByStatus(ctx, model.LedgerPaper, model.PositionStatusBuilding)
			if err != nil {
				logger.WithError(err).Error("failed to list building positions")
				continue
			}
			for i := range positions {
				if err := b.Advance(ctx, &positions[i]); err != nil {
					logger.WithError(err).
						WithField("position_id", positions[i].ID).
						Error("failed to advance building position")
				}
			}
		}
	}
}
