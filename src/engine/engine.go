package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"positionengine/src/batch"
	"positionengine/src/execution"
	"positionengine/src/metrics"
	"positionengine/src/model"
	"positionengine/src/risk"
)

// RejectionError is a synchronous signal rejection: blacklist veto,
// insufficient margin or invalid price. Rejections are surfaced to the
// SubmitSignal caller and never retried automatically.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return "signal rejected: " + e.Reason
}

// IsRejection reports whether err is a synchronous signal rejection.
func IsRejection(err error) bool {
	_, ok := err.(*RejectionError)
	return ok
}

type blacklistChecker interface {
	IsBlacklisted(components []string, direction string) (bool, string)
	GetMarginMultiplier(components []string, direction string, winRate float64) decimal.Decimal
	WinRate(components []string, direction string) float64
}

type positionStore interface {
	FindByID(ctx context.Context, id uint) (*model.Position, error)
	FindByStatus(ctx context.Context, ledger, status string) ([]model.Position, error)
}

type priceSource interface {
	GetPrice(symbol string) float64
}

type entryBuilder interface {
	CreatePosition(ctx context.Context, signal *model.Signal, plan model.BatchPlan, sizing risk.Sizing) (*model.Position, error)
}

// Engine is the operation surface exposed to callers: signal intake, open
// position enumeration and forced closes. All decision state lives in the
// injected collaborators.
type Engine struct {
	checker   blacklistChecker
	positions positionStore
	prices    priceSource
	builder   entryBuilder
	closer    execution.Closer
	sizing    risk.SizingConfig
	plan      model.BatchPlan
}

// NewEngine wires the engine facade.
func NewEngine(
	checker blacklistChecker,
	positions positionStore,
	prices priceSource,
	builder entryBuilder,
	closer execution.Closer,
	sizing risk.SizingConfig,
	plan model.BatchPlan,
) *Engine {
	return &Engine{
		checker:   checker,
		positions: positions,
		prices:    prices,
		builder:   builder,
		closer:    closer,
		sizing:    sizing,
		plan:      plan,
	}
}

// SubmitSignal validates and sizes an external signal and opens a position
// under construction. Returns the new position ID, or a RejectionError the
// caller can surface synchronously.
func (e *Engine) SubmitSignal(ctx context.Context, signal *model.Signal) (uint, error) {
	if err := signal.Validate(); err != nil {
		metrics.SignalsTotal.WithLabelValues("rejected_invalid").Inc()
		return 0, &RejectionError{Reason: err.Error()}
	}

	if signal.Price <= 0 {
		// Fall back to the cached quote before rejecting.
		signal.Price = e.prices.GetPrice(signal.Symbol)
		if signal.Price <= 0 {
			metrics.SignalsTotal.WithLabelValues("rejected_invalid").Inc()
			return 0, &RejectionError{Reason: fmt.Sprintf("no valid price for %s", signal.Symbol)}
		}
	}

	components := signal.ComponentStrings()

	if blocked, reason := e.checker.IsBlacklisted(components, signal.Direction); blocked {
		metrics.SignalsTotal.WithLabelValues("rejected_blacklist").Inc()
		return 0, &RejectionError{Reason: reason}
	}

	winRate := e.checker.WinRate(components, signal.Direction)
	multiplier := e.checker.GetMarginMultiplier(components, signal.Direction, winRate)

	sizing := risk.CalculateMargin(
		decimal.NewFromFloat(signal.Margin),
		multiplier,
		signal.Leverage,
		e.sizing,
	)
	if sizing.Margin.LessThanOrEqual(decimal.Zero) {
		metrics.SignalsTotal.WithLabelValues("rejected_margin").Inc()
		return 0, &RejectionError{Reason: "insufficient margin after risk sizing"}
	}

	position, err := e.builder.CreatePosition(ctx, signal, e.plan, sizing)
	if err != nil {
		return 0, err
	}

	metrics.SignalsTotal.WithLabelValues("accepted").Inc()

	logger.WithFields(map[string]interface{}{
		"position_id": position.ID,
		"symbol":      signal.Symbol,
		"direction":   signal.Direction,
		"margin":      sizing.Margin.String(),
		"multiplier":  multiplier.String(),
	}).Info("signal accepted")

	return position.ID, nil
}

// GetOpenPositions returns every open paper position.
func (e *Engine) GetOpenPositions(ctx context.Context) ([]model.Position, error) {
	return e.positions.FindByStatus(ctx, model.LedgerPaper, model.PositionStatusOpen)
}

// ForceClose fully closes a paper position on operator request. Closing an
// already-closed position is a no-op. Live rows are rejected: they are only
// ever reduced through the exchange by the sync bridge, never settled at a
// cached price.
func (e *Engine) ForceClose(ctx context.Context, positionID uint, reason string) error {
	position, err := e.positions.FindByID(ctx, positionID)
	if err != nil {
		return err
	}
	if position == nil {
		return fmt.Errorf("position %d not found", positionID)
	}
	if position.Ledger != model.LedgerPaper {
		return &RejectionError{Reason: fmt.Sprintf("position %d is on the %s ledger, only paper positions can be force-closed", positionID, position.Ledger)}
	}

	if reason == "" {
		reason = "force_close"
	}

	return e.closer.Close(ctx, position, 1.0, reason)
}

// DefaultPlan exposes the engine's standard entry plan.
func DefaultPlan() model.BatchPlan {
	return batch.DefaultPlan()
}
