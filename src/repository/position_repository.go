package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"positionengine/src/database"
	"positionengine/src/model"
)

// ErrStaleUpdate is returned when a guarded update matched no row because the
// position's status or quantity changed underneath the caller. The operation
// must be abandoned and re-evaluated from persisted state on the next tick.
var ErrStaleUpdate = errors.New("position was modified concurrently, update aborted")

// PositionRepository handles read/write operations for positions.
// Every mutation of quantity or status goes through a guarded UPDATE
// conditioned on the current status (and quantity where it matters), so two
// concurrent writers can never both apply a reduction to the same row.
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new repository instance using the main
// read/write database.
func NewPositionRepository() *PositionRepository {
	logger.WithField("component", "PositionRepository").
		Info("Creating new PositionRepository with MainDB")

	return &PositionRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	logger.WithField("component", "PositionRepository").
		Debug("Creating PositionRepository with custom DB instance")

	return &PositionRepository{db: db}
}

// Create inserts a new position row, normally in `building` status.
func (r *PositionRepository) Create(
	ctx context.Context,
	position *model.Position,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":   "PositionRepository",
		"op":     "Create",
		"symbol": position.Symbol,
		"side":   position.Side,
		"ledger": position.Ledger,
	}).Debug("Creating new position")

	err := r.db.WithContext(ctx).Create(position).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to create position")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "Create",
		"position_id": position.ID,
	}).Info("Position created successfully")

	return nil
}

// FindByID fetches a single position by its primary ID.
// Returns (nil, nil) if the position is not found.
func (r *PositionRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.Position, error) {

	logger.WithFields(map[string]interface{}{
		"repo": "PositionRepository",
		"op":   "FindByID",
		"id":   id,
	}).Debug("Fetching position by ID")

	var position model.Position

	err := r.db.WithContext(ctx).First(&position, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "PositionRepository",
				"op":   "FindByID",
				"id":   id,
			}).Info("Position not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch position by ID")

		return nil, err
	}

	return &position, nil
}

// FindByStatus returns all positions on a ledger in the given status, oldest
// first.
func (r *PositionRepository) FindByStatus(
	ctx context.Context,
	ledger string,
	status string,
) ([]model.Position, error) {

	logger.WithFields(map[string]interface{}{
		"repo":   "PositionRepository",
		"op":     "FindByStatus",
		"ledger": ledger,
		"status": status,
	}).Debug("Fetching positions by status")

	var positions []model.Position

	err := r.db.WithContext(ctx).
		Where("ledger = ? AND status = ?", ledger, status).
		Order("id ASC").
		Find(&positions).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "PositionRepository",
			"op":     "FindByStatus",
			"ledger": ledger,
			"status": status,
		}).WithError(err).Error("Failed to fetch positions by status")

		return nil, err
	}

	return positions, nil
}

// FindOpenBySymbolSide returns open positions on a ledger matching
// symbol+side, earliest open first. The live sync bridge uses this to locate
// the mirror target.
func (r *PositionRepository) FindOpenBySymbolSide(
	ctx context.Context,
	ledger string,
	symbol string,
	side string,
) ([]model.Position, error) {

	logger.WithFields(map[string]interface{}{
		"repo":   "PositionRepository",
		"op":     "FindOpenBySymbolSide",
		"ledger": ledger,
		"symbol": symbol,
		"side":   side,
	}).Debug("Fetching open positions by symbol and side")

	var positions []model.Position

	err := r.db.WithContext(ctx).
		Where("ledger = ? AND status = ? AND symbol = ? AND side = ?",
			ledger, model.PositionStatusOpen, symbol, side).
		Order("open_time ASC").
		Find(&positions).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "PositionRepository",
			"op":     "FindOpenBySymbolSide",
			"symbol": symbol,
		}).WithError(err).Error("Failed to fetch open positions by symbol and side")

		return nil, err
	}

	return positions, nil
}

// FindBySyncEvent returns the position on a ledger that recorded the given
// close-event ID, regardless of status. Returns (nil, nil) when no row has
// recorded it. The sync bridge uses this to recognize an already-applied
// event after a crash or a failed replay mark.
func (r *PositionRepository) FindBySyncEvent(
	ctx context.Context,
	ledger string,
	eventID string,
) (*model.Position, error) {

	logger.WithFields(map[string]interface{}{
		"repo":     "PositionRepository",
		"op":       "FindBySyncEvent",
		"ledger":   ledger,
		"event_id": eventID,
	}).Debug("Fetching position by sync event ID")

	var position model.Position

	err := r.db.WithContext(ctx).
		Where("ledger = ? AND last_sync_event_id = ?", ledger, eventID).
		First(&position).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":     "PositionRepository",
			"op":       "FindBySyncEvent",
			"event_id": eventID,
		}).WithError(err).Error("Failed to fetch position by sync event ID")

		return nil, err
	}

	return &position, nil
}

// ApplyFill persists a tranche fill. The update is guarded on the current
// status and quantity, so a concurrent fill or close aborts with
// ErrStaleUpdate instead of double-applying.
func (r *PositionRepository) ApplyFill(
	ctx context.Context,
	position *model.Position,
	expectedQuantity float64,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":         "PositionRepository",
		"op":           "ApplyFill",
		"position_id":  position.ID,
		"batch_filled": len(position.BatchFilled),
	}).Debug("Applying tranche fill")

	result := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ? AND status = ? AND quantity = ?",
			position.ID, model.PositionStatusBuilding, expectedQuantity).
		Updates(map[string]interface{}{
			"batch_filled": position.BatchFilled,
			"quantity":     position.Quantity,
			"entry_price":  position.EntryPrice,
			"margin":       position.Margin,
			"updated_at":   time.Now().UTC(),
		})

	if result.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "PositionRepository",
			"op":          "ApplyFill",
			"position_id": position.ID,
		}).WithError(result.Error).Error("Failed to apply tranche fill")

		return result.Error
	}

	if result.RowsAffected == 0 {
		logger.WithFields(map[string]interface{}{
			"repo":        "PositionRepository",
			"op":          "ApplyFill",
			"position_id": position.ID,
		}).Warn("Tranche fill aborted, position changed concurrently")

		return ErrStaleUpdate
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "ApplyFill",
		"position_id": position.ID,
		"quantity":    position.Quantity,
	}).Info("Tranche fill applied")

	return nil
}

// Promote transitions a building position to open. Guarded on the building
// status so a double promotion is a clean no-op error.
func (r *PositionRepository) Promote(
	ctx context.Context,
	positionID uint,
	openTime time.Time,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "Promote",
		"position_id": positionID,
	}).Debug("Promoting position to open")

	result := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ? AND status = ?", positionID, model.PositionStatusBuilding).
		Updates(map[string]interface{}{
			"status":     model.PositionStatusOpen,
			"open_time":  openTime,
			"updated_at": time.Now().UTC(),
		})

	if result.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "PositionRepository",
			"op":          "Promote",
			"position_id": positionID,
		}).WithError(result.Error).Error("Failed to promote position")

		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrStaleUpdate
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "Promote",
		"position_id": positionID,
	}).Info("Position promoted to open")

	return nil
}

// Reduce applies a partial close: the new quantity, margin and realized P&L
// are written only if the row still carries the expected quantity in open
// status. A non-empty syncEventID is recorded in the same guarded write, so
// applying a mirrored close and remembering its event ID is atomic.
func (r *PositionRepository) Reduce(
	ctx context.Context,
	positionID uint,
	expectedQuantity float64,
	newQuantity float64,
	newMargin float64,
	realizedPnl float64,
	syncEventID string,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":         "PositionRepository",
		"op":           "Reduce",
		"position_id":  positionID,
		"expected_qty": expectedQuantity,
		"new_qty":      newQuantity,
	}).Debug("Reducing position quantity")

	updates := map[string]interface{}{
		"quantity":     newQuantity,
		"margin":       newMargin,
		"realized_pnl": realizedPnl,
		"updated_at":   time.Now().UTC(),
	}
	if syncEventID != "" {
		updates["last_sync_event_id"] = syncEventID
	}

	result := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ? AND status = ? AND quantity = ?",
			positionID, model.PositionStatusOpen, expectedQuantity).
		Updates(updates)

	if result.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "PositionRepository",
			"op":          "Reduce",
			"position_id": positionID,
		}).WithError(result.Error).Error("Failed to reduce position")

		return result.Error
	}

	if result.RowsAffected == 0 {
		logger.WithFields(map[string]interface{}{
			"repo":        "PositionRepository",
			"op":          "Reduce",
			"position_id": positionID,
		}).Warn("Reduce aborted, position changed concurrently")

		return ErrStaleUpdate
	}

	return nil
}

// Close fully closes a position. Guarded on open status and the expected
// quantity; a second close attempt returns ErrStaleUpdate and changes
// nothing. A non-empty syncEventID is recorded in the same guarded write.
func (r *PositionRepository) Close(
	ctx context.Context,
	positionID uint,
	expectedQuantity float64,
	exitPrice float64,
	realizedPnl float64,
	reason string,
	closeTime time.Time,
	syncEventID string,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "Close",
		"position_id": positionID,
		"reason":      reason,
	}).Debug("Closing position")

	updates := map[string]interface{}{
		"status":         model.PositionStatusClosed,
		"quantity":       0.0,
		"margin":         0.0,
		"realized_pnl":   realizedPnl,
		"unrealized_pnl": 0.0,
		"close_time":     closeTime,
		"close_reason":   reason,
		"updated_at":     time.Now().UTC(),
	}
	if syncEventID != "" {
		updates["last_sync_event_id"] = syncEventID
	}

	result := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ? AND status = ? AND quantity = ?",
			positionID, model.PositionStatusOpen, expectedQuantity).
		Updates(updates)

	if result.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "PositionRepository",
			"op":          "Close",
			"position_id": positionID,
		}).WithError(result.Error).Error("Failed to close position")

		return result.Error
	}

	if result.RowsAffected == 0 {
		logger.WithFields(map[string]interface{}{
			"repo":        "PositionRepository",
			"op":          "Close",
			"position_id": positionID,
		}).Warn("Close aborted, position changed concurrently")

		return ErrStaleUpdate
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "Close",
		"position_id": positionID,
		"exit_price":  exitPrice,
		"reason":      reason,
	}).Info("Position closed")

	return nil
}

// TouchLastChecked persists the monitor tick timestamp and the latest
// unrealized P&L reading. Guarded on open status so a tick racing a close
// cannot overwrite the settled row; a skipped touch is not an error, the
// position simply stops being ticked.
func (r *PositionRepository) TouchLastChecked(
	ctx context.Context,
	positionID uint,
	checkedAt time.Time,
	unrealizedPnl float64,
) error {

	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ? AND status = ?", positionID, model.PositionStatusOpen).
		Updates(map[string]interface{}{
			"last_checked_at": checkedAt,
			"unrealized_pnl":  unrealizedPnl,
		}).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "PositionRepository",
			"op":          "TouchLastChecked",
			"position_id": positionID,
		}).WithError(err).Error("Failed to persist tick timestamp")
	}

	return err
}
