package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"positionengine/src/database"
	"positionengine/src/model"
)

// BlacklistRepository handles read operations for signal blacklist entries.
// Entries are operator-maintained; the engine only ever reads them.
type BlacklistRepository struct {
	db *gorm.DB
}

// NewBlacklistRepository creates a new repository instance using the main
// read/write database.
func NewBlacklistRepository() *BlacklistRepository {
	logger.WithField("component", "BlacklistRepository").
		Info("Creating new BlacklistRepository with MainDB")

	return &BlacklistRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *BlacklistRepository) WithDB(db *gorm.DB) *BlacklistRepository {
	return &BlacklistRepository{db: db}
}

// FindAll returns every blacklist entry. The checker loads the full set in
// one query and indexes it in memory.
func (r *BlacklistRepository) FindAll(
	ctx context.Context,
) ([]model.BlacklistEntry, error) {

	logger.WithFields(map[string]interface{}{
		"repo": "BlacklistRepository",
		"op":   "FindAll",
	}).Debug("Fetching all blacklist entries")

	var entries []model.BlacklistEntry

	err := r.db.WithContext(ctx).
		Order("id ASC").
		Find(&entries).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "BlacklistRepository",
			"op":   "FindAll",
		}).WithError(err).Error("Failed to fetch blacklist entries")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "BlacklistRepository",
		"op":          "FindAll",
		"rows_return": len(entries),
	}).Debug("Blacklist entries fetched")

	return entries, nil
}
