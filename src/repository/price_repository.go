package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"positionengine/src/database"
	"positionengine/src/model"
)

// PriceRepository handles price snapshot rows: one row per symbol, upserted
// by the price feed and batch-read by the in-memory cache.
type PriceRepository struct {
	db *gorm.DB
}

// NewPriceRepository creates a new repository instance using the main
// read/write database.
func NewPriceRepository() *PriceRepository {
	logger.WithField("component", "PriceRepository").
		Info("Creating new PriceRepository with MainDB")

	return &PriceRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *PriceRepository) WithDB(db *gorm.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

// FindAll returns every price snapshot in a single batch query, avoiding a
// per-symbol round trip on the cache refresh path.
func (r *PriceRepository) FindAll(
	ctx context.Context,
) ([]model.PriceSnapshot, error) {

	var snapshots []model.PriceSnapshot

	err := r.db.WithContext(ctx).
		Find(&snapshots).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PriceRepository",
			"op":   "FindAll",
		}).WithError(err).Error("Failed to fetch price snapshots")

		return nil, err
	}

	return snapshots, nil
}

// Upsert writes the latest quote for a symbol, overwriting any previous row.
func (r *PriceRepository) Upsert(
	ctx context.Context,
	snapshot *model.PriceSnapshot,
) error {

	snapshot.UpdatedAt = time.Now().UTC()

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{"price", "bid", "ask", "updated_at"}),
		}).
		Create(snapshot).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "PriceRepository",
			"op":     "Upsert",
			"symbol": snapshot.Symbol,
		}).WithError(err).Error("Failed to upsert price snapshot")

		return err
	}

	return nil
}
