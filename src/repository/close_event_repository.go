package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"positionengine/src/database"
	"positionengine/src/model"
)

// CloseEventRepository persists paper-ledger close events and tracks which
// ones the live sync bridge has already replayed.
type CloseEventRepository struct {
	db *gorm.DB
}

// NewCloseEventRepository creates a new repository instance using the main
// read/write database.
func NewCloseEventRepository() *CloseEventRepository {
	logger.WithField("component", "CloseEventRepository").
		Info("Creating new CloseEventRepository with MainDB")

	return &CloseEventRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *CloseEventRepository) WithDB(db *gorm.DB) *CloseEventRepository {
	return &CloseEventRepository{db: db}
}

// Create records a close event. Called only after the paper close has been
// durably applied, so a crash in between leaves the paper ledger
// authoritative and the live ledger merely lagging.
func (r *CloseEventRepository) Create(
	ctx context.Context,
	event *model.CloseEvent,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":        "CloseEventRepository",
		"op":          "Create",
		"event_id":    event.EventID,
		"position_id": event.PositionID,
		"ratio":       event.Ratio,
	}).Debug("Recording close event")

	err := r.db.WithContext(ctx).Create(event).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "CloseEventRepository",
			"op":       "Create",
			"event_id": event.EventID,
		}).WithError(err).Error("Failed to record close event")

		return err
	}

	return nil
}

// FindUnreplayed returns close events not yet mirrored onto the live ledger,
// in creation order.
func (r *CloseEventRepository) FindUnreplayed(
	ctx context.Context,
	limit int,
) ([]model.CloseEvent, error) {

	if limit <= 0 {
		limit = 50
	}

	var events []model.CloseEvent

	err := r.db.WithContext(ctx).
		Where("replayed_at IS NULL").
		Order("id ASC").
		Limit(limit).
		Find(&events).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "CloseEventRepository",
			"op":   "FindUnreplayed",
		}).WithError(err).Error("Failed to fetch unreplayed close events")

		return nil, err
	}

	return events, nil
}

// MarkReplayed stamps an event as mirrored. Guarded on replayed_at being
// still NULL so a concurrent replayer cannot double-mark; the returned bool
// reports whether this caller won.
func (r *CloseEventRepository) MarkReplayed(
	ctx context.Context,
	eventID string,
	replayedAt time.Time,
) (bool, error) {

	result := r.db.WithContext(ctx).
		Model(&model.CloseEvent{}).
		Where("event_id = ? AND replayed_at IS NULL", eventID).
		Update("replayed_at", replayedAt)

	if result.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "CloseEventRepository",
			"op":       "MarkReplayed",
			"event_id": eventID,
		}).WithError(result.Error).Error("Failed to mark close event replayed")

		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}
