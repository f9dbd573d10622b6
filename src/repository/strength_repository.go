package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"positionengine/src/database"
	"positionengine/src/externalmodel"
)

// StrengthRepository reads precomputed K-line strength readings from the
// read-only analytics database.
type StrengthRepository struct {
	db *gorm.DB
}

// NewStrengthRepository creates a new repository instance.
// It uses the ReadOnlyDB connection by default.
func NewStrengthRepository() *StrengthRepository {
	logger.WithField("component", "StrengthRepository").
		Info("Creating new StrengthRepository with ReadOnlyDB")

	return &StrengthRepository{
		db: database.ReadOnlyDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *StrengthRepository) WithDB(db *gorm.DB) *StrengthRepository {
	return &StrengthRepository{db: db}
}

// Latest fetches the most recent strength reading for a symbol and timeframe
// computed within the lookback window. Returns (nil, nil) when no reading is
// fresh enough.
func (r *StrengthRepository) Latest(
	ctx context.Context,
	symbol string,
	timeframe string,
	lookbackHours int,
) (*externalmodel.KlineStrength, error) {

	if lookbackHours <= 0 {
		lookbackHours = 24
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "StrengthRepository",
		"op":        "Latest",
		"symbol":    symbol,
		"timeframe": timeframe,
	}).Debug("Fetching latest strength reading")

	since := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	var strength externalmodel.KlineStrength

	err := r.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ? AND computed_at >= ?", symbol, timeframe, since).
		Order("computed_at DESC").
		First(&strength).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo":      "StrengthRepository",
				"op":        "Latest",
				"symbol":    symbol,
				"timeframe": timeframe,
			}).Info("No fresh strength reading found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":      "StrengthRepository",
			"op":        "Latest",
			"symbol":    symbol,
			"timeframe": timeframe,
		}).WithError(err).Error("Failed to fetch strength reading")

		return nil, err
	}

	return &strength, nil
}
