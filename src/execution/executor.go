package execution

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"positionengine/src/metrics"
	"positionengine/src/model"
)

// fullCloseEpsilon treats ratios within float noise of 1.0 as a full close.
const fullCloseEpsilon = 1e-9

// Closer applies a close decision to a ledger. PaperCloser and LiveCloser
// are the only components that mutate persisted quantity and margin; the
// decision layers above never double-apply a reduction themselves.
type Closer interface {
	Close(ctx context.Context, position *model.Position, ratio float64, reason string) error
}

type positionStore interface {
	Reduce(ctx context.Context, positionID uint, expectedQuantity, newQuantity, newMargin, realizedPnl float64, syncEventID string) error
	Close(ctx context.Context, positionID uint, expectedQuantity, exitPrice, realizedPnl float64, reason string, closeTime time.Time, syncEventID string) error
}

type eventStore interface {
	Create(ctx context.Context, event *model.CloseEvent) error
}

type priceSource interface {
	GetPrice(symbol string) float64
}

// Notifier delivers best-effort close notifications. Failures never block a
// close.
type Notifier interface {
	PositionClosed(position *model.Position, ratio, fillPrice float64, reason string)
}

// realizedDelta is the P&L closed out by this fill, signed by direction.
func realizedDelta(position *model.Position, closedQuantity, fillPrice float64) float64 {
	delta := closedQuantity * (fillPrice - position.EntryPrice)
	if position.Side == model.SideShort {
		delta = -delta
	}
	return delta
}

// closeParts normalizes the ratio and splits the current quantity into the
// closed and remaining parts.
func closeParts(position *model.Position, ratio float64) (normalized, closedQty, remainingQty float64, full bool) {
	if ratio <= 0 {
		return 0, 0, position.Quantity, false
	}
	if ratio >= 1-fullCloseEpsilon {
		return 1, position.Quantity, 0, true
	}
	closed := position.Quantity * ratio
	return ratio, closed, position.Quantity - closed, false
}

// PaperCloser executes closes against the paper ledger at cached prices and
// records a close event after each durable write.
type PaperCloser struct {
	positions positionStore
	events    eventStore
	prices    priceSource
	notifier  Notifier
	now       func() time.Time
}

// NewPaperCloser wires the paper close executor.
func NewPaperCloser(positions positionStore, events eventStore, prices priceSource, notifier Notifier) *PaperCloser {
	return &PaperCloser{
		positions: positions,
		events:    events,
		prices:    prices,
		notifier:  notifier,
		now:       time.Now,
	}
}

// Close applies a full or partial close to a paper position. A close against
// an already-closed or empty position is a logged no-op, never a negative
// quantity.
func (c *PaperCloser) Close(ctx context.Context, position *model.Position, ratio float64, reason string) error {
	if position.Status != model.PositionStatusOpen || position.Quantity <= 0 {
		logger.WithFields(map[string]interface{}{
			"position_id": position.ID,
			"status":      position.Status,
			"quantity":    position.Quantity,
		}).Info("paper close skipped, position not open")
		return nil
	}

	normalized, closedQty, remainingQty, full := closeParts(position, ratio)
	if normalized == 0 {
		return fmt.Errorf("invalid close ratio %f for position %d", ratio, position.ID)
	}

	fillPrice := c.prices.GetPrice(position.Symbol)
	if fillPrice <= 0 {
		return fmt.Errorf("no price for %s, close deferred to next tick", position.Symbol)
	}

	now := c.now().UTC()
	realized := position.RealizedPnl + realizedDelta(position, closedQty, fillPrice)

	var err error
	if full {
		err = c.positions.Close(ctx, position.ID, position.Quantity, fillPrice, realized, reason, now, "")
	} else {
		remainingMargin := position.Margin * (1 - normalized)
		err = c.positions.Reduce(ctx, position.ID, position.Quantity, remainingQty, remainingMargin, realized, "")
	}
	if err != nil {
		return err
	}

	position.RealizedPnl = realized
	position.Quantity = remainingQty
	if full {
		position.Status = model.PositionStatusClosed
		position.Margin = 0
		position.CloseTime = &now
		position.CloseReason = reason
	} else {
		position.Margin = position.Margin * (1 - normalized)
	}

	metrics.ClosesTotal.WithLabelValues(model.LedgerPaper, reason).Inc()

	// The close is durable; everything after is best-effort.
	event := &model.CloseEvent{
		EventID:    uuid.NewString(),
		PositionID: position.ID,
		AccountID:  position.AccountID,
		Symbol:     position.Symbol,
		Side:       position.Side,
		Ratio:      normalized,
		FillPrice:  fillPrice,
		Reason:     reason,
	}
	if err := c.events.Create(ctx, event); err != nil {
		logger.WithError(err).
			WithField("position_id", position.ID).
			Error("failed to record close event, live mirror will lag")
	}

	if c.notifier != nil {
		c.notifier.PositionClosed(position, normalized, fillPrice, reason)
	}

	logger.WithFields(map[string]interface{}{
		"position_id": position.ID,
		"ratio":       normalized,
		"fill_price":  fillPrice,
		"remaining":   remainingQty,
		"reason":      reason,
	}).Info("paper close applied")

	return nil
}

// ReduceOrderPlacer submits a reduce-only order to the real exchange.
type ReduceOrderPlacer interface {
	PlaceReduceOnlyOrder(ctx context.Context, symbol, orderSide string, quantity float64) (fillPrice, fillQuantity float64, err error)
}

// LiveCloser mirrors closes onto the live ledger: the reduce-only order goes
// to the exchange first, and the row is updated only with what actually
// filled.
type LiveCloser struct {
	exchange  ReduceOrderPlacer
	positions positionStore
	notifier  Notifier
	now       func() time.Time
}

// NewLiveCloser wires the live close executor.
func NewLiveCloser(exchange ReduceOrderPlacer, positions positionStore, notifier Notifier) *LiveCloser {
	return &LiveCloser{
		exchange:  exchange,
		positions: positions,
		notifier:  notifier,
		now:       time.Now,
	}
}

// reduceSide maps a position direction to the closing order side.
func reduceSide(side string) string {
	if side == model.SideShort {
		return "buy"
	}
	return "sell"
}

// Close applies a close to a live position via the exchange. An exchange
// failure leaves the row untouched; the replay loop retries on its next
// iteration.
func (c *LiveCloser) Close(ctx context.Context, position *model.Position, ratio float64, reason string) error {
	return c.close(ctx, position, ratio, reason, "")
}

// CloseForEvent is Close with the originating close-event ID stamped onto the
// row in the same guarded write, making a replayed event recognizable as
// already applied.
func (c *LiveCloser) CloseForEvent(ctx context.Context, position *model.Position, ratio float64, reason, eventID string) error {
	return c.close(ctx, position, ratio, reason, eventID)
}

func (c *LiveCloser) close(ctx context.Context, position *model.Position, ratio float64, reason, syncEventID string) error {
	if position.Status != model.PositionStatusOpen || position.Quantity <= 0 {
		logger.WithFields(map[string]interface{}{
			"position_id": position.ID,
			"status":      position.Status,
		}).Info("live close skipped, position not open")
		return nil
	}

	normalized, closedQty, remainingQty, full := closeParts(position, ratio)
	if normalized == 0 {
		return fmt.Errorf("invalid close ratio %f for live position %d", ratio, position.ID)
	}

	fillPrice, fillQty, err := c.exchange.PlaceReduceOnlyOrder(ctx, position.Symbol, reduceSide(position.Side), closedQty)
	if err != nil {
		logger.WithError(err).WithFields(map[string]interface{}{
			"position_id": position.ID,
			"symbol":      position.Symbol,
			"quantity":    closedQty,
		}).Error("reduce-only order failed, live position unchanged")
		return err
	}

	// The exchange may fill less than requested; trust the fill.
	if fillQty > 0 && math.Abs(fillQty-closedQty) > fullCloseEpsilon {
		closedQty = fillQty
		remainingQty = position.Quantity - fillQty
		full = remainingQty <= fullCloseEpsilon
		normalized = fillQty / position.Quantity
	}

	now := c.now().UTC()
	realized := position.RealizedPnl + realizedDelta(position, closedQty, fillPrice)

	if full {
		err = c.positions.Close(ctx, position.ID, position.Quantity, fillPrice, realized, reason, now, syncEventID)
	} else {
		remainingMargin := position.Margin * (1 - normalized)
		err = c.positions.Reduce(ctx, position.ID, position.Quantity, remainingQty, remainingMargin, realized, syncEventID)
	}
	if err != nil {
		return err
	}

	position.RealizedPnl = realized
	position.Quantity = remainingQty
	if syncEventID != "" {
		position.LastSyncEventID = syncEventID
	}
	if full {
		position.Status = model.PositionStatusClosed
		position.Margin = 0
		position.CloseTime = &now
		position.CloseReason = reason
	} else {
		position.Margin = position.Margin * (1 - normalized)
	}

	metrics.ClosesTotal.WithLabelValues(model.LedgerLive, reason).Inc()

	if c.notifier != nil {
		c.notifier.PositionClosed(position, normalized, fillPrice, reason)
	}

	logger.WithFields(map[string]interface{}{
		"position_id": position.ID,
		"ratio":       normalized,
		"fill_price":  fillPrice,
		"reason":      reason,
	}).Info("live close applied")

	return nil
}
