package livesync

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"positionengine/src/metrics"
	"positionengine/src/model"
)

type eventStore interface {
	FindUnreplayed(ctx context.Context, limit int) ([]model.CloseEvent, error)
	MarkReplayed(ctx context.Context, eventID string, replayedAt time.Time) (bool, error)
}

type positionStore interface {
	FindOpenBySymbolSide(ctx context.Context, ledger, symbol, side string) ([]model.Position, error)
	FindBySyncEvent(ctx context.Context, ledger, eventID string) (*model.Position, error)
}

type accountStore interface {
	FindByID(ctx context.Context, id uint) (*model.Account, error)
}

// eventCloser applies a mirrored close and records the originating event ID
// on the live row in the same guarded write.
type eventCloser interface {
	CloseForEvent(ctx context.Context, position *model.Position, ratio float64, reason, eventID string) error
}

// Bridge replays paper-ledger close events onto the live ledger. Replay is
// at-least-once and idempotent: events carry a unique ID, the applied event
// ID is stamped onto the live row atomically with the reduction, and a
// re-drained event that already left its stamp is retired without a second
// application. Matching is by symbol+direction because the live ledger is an
// independently opened set of positions. Events are only ever created after
// the paper close is durable, so the paper ledger stays authoritative.
type Bridge struct {
	events    eventStore
	positions positionStore
	accounts  accountStore
	closer    eventCloser
	config    Config
	now       func() time.Time
}

// NewBridge wires the paper→live sync bridge.
func NewBridge(
	events eventStore,
	positions positionStore,
	accounts accountStore,
	closer eventCloser,
	config Config,
) *Bridge {
	return &Bridge{
		events:    events,
		positions: positions,
		accounts:  accounts,
		closer:    closer,
		config:    config,
		now:       time.Now,
	}
}

// ReplayOnce drains one batch of unreplayed close events.
func (b *Bridge) ReplayOnce(ctx context.Context) error {
	events, err := b.events.FindUnreplayed(ctx, b.config.ReplayBatchSize)
	if err != nil {
		return err
	}

	for i := range events {
		if err := b.replay(ctx, &events[i]); err != nil {
			logger.WithError(err).
				WithField("event_id", events[i].EventID).
				Error("close event replay failed, will retry next pass")
		}
	}

	return nil
}

func (b *Bridge) replay(ctx context.Context, event *model.CloseEvent) error {
	account, err := b.accounts.FindByID(ctx, event.AccountID)
	if err != nil {
		return err
	}
	if account == nil || !account.LiveSyncEnabled {
		// Mirroring is off for this account; retire the event so it is not
		// rescanned forever.
		if _, err := b.events.MarkReplayed(ctx, event.EventID, b.now().UTC()); err != nil {
			return err
		}
		metrics.SyncReplaysTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	// A prior pass may have applied this event and then crashed (or failed
	// the mark). The live row carries the stamp, so the event is only
	// retired here, never applied twice.
	prior, err := b.positions.FindBySyncEvent(ctx, model.LedgerLive, event.EventID)
	if err != nil {
		return err
	}
	if prior != nil {
		logger.WithFields(map[string]interface{}{
			"event_id":    event.EventID,
			"position_id": prior.ID,
		}).Info("close event already applied to live position, retiring")

		if _, err := b.events.MarkReplayed(ctx, event.EventID, b.now().UTC()); err != nil {
			return err
		}
		metrics.SyncReplaysTotal.WithLabelValues("duplicate").Inc()
		return nil
	}

	matches, err := b.positions.FindOpenBySymbolSide(ctx, model.LedgerLive, event.Symbol, event.Side)
	if err != nil {
		return err
	}

	if len(matches) == 0 {
		// The live account may simply not hold this position. A no-op, not
		// an error.
		logger.WithFields(map[string]interface{}{
			"event_id": event.EventID,
			"symbol":   event.Symbol,
			"side":     event.Side,
		}).Info("no matching live position, close replay is a no-op")

		if _, err := b.events.MarkReplayed(ctx, event.EventID, b.now().UTC()); err != nil {
			return err
		}
		metrics.SyncReplaysTotal.WithLabelValues("no_match").Inc()
		return nil
	}

	if len(matches) > 1 {
		logger.WithFields(map[string]interface{}{
			"event_id": event.EventID,
			"symbol":   event.Symbol,
			"side":     event.Side,
			"matches":  len(matches),
		}).Warn("multiple live positions match, replaying onto the earliest opened")
	}

	target := &matches[0]

	if err := b.closer.CloseForEvent(ctx, target, event.Ratio, event.Reason, event.EventID); err != nil {
		metrics.SyncReplaysTotal.WithLabelValues("failed").Inc()
		return err
	}

	applied, err := b.events.MarkReplayed(ctx, event.EventID, b.now().UTC())
	if err != nil {
		return err
	}
	if !applied {
		// A concurrent replayer marked it first; the guarded close update
		// already kept the live row consistent.
		logger.WithField("event_id", event.EventID).
			Warn("close event already marked replayed")
		return nil
	}

	metrics.SyncReplaysTotal.WithLabelValues("applied").Inc()

	logger.WithFields(map[string]interface{}{
		"event_id":    event.EventID,
		"position_id": target.ID,
		"ratio":       event.Ratio,
	}).Info("paper close mirrored onto live position")

	return nil
}

// Run drains close events on the configured interval until the context is
// cancelled.
func (b *Bridge) Run(ctx context.Context) {
	ticker := time.NewTicker(b.config.ReplayInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("live sync bridge stopped")
			return
		case <-ticker.C:
			if err := b.ReplayOnce(ctx); err != nil {
				logger.WithError(err).Error("close event replay pass failed")
			}
		}
	}
}
