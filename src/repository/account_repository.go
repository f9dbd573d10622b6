package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"positionengine/src/database"
	"positionengine/src/model"
)

// AccountRepository handles read operations for engine accounts.
type AccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new repository instance using the main
// read/write database.
func NewAccountRepository() *AccountRepository {
	logger.WithField("component", "AccountRepository").
		Info("Creating new AccountRepository with MainDB")

	return &AccountRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *AccountRepository) WithDB(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// FindByID fetches a single account by its primary ID.
// Returns (nil, nil) if the account is not found.
func (r *AccountRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.Account, error) {

	logger.WithFields(map[string]interface{}{
		"repo": "AccountRepository",
		"op":   "FindByID",
		"id":   id,
	}).Debug("Fetching account by ID")

	var account model.Account

	err := r.db.WithContext(ctx).First(&account, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "AccountRepository",
				"op":   "FindByID",
				"id":   id,
			}).Info("Account not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "AccountRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch account by ID")

		return nil, err
	}

	return &account, nil
}

// FindByAPIKeyID fetches an active account by its API key identifier.
// Returns (nil, nil) if not found.
func (r *AccountRepository) FindByAPIKeyID(
	ctx context.Context,
	apiKeyID string,
) (*model.Account, error) {

	var account model.Account

	err := r.db.WithContext(ctx).
		Where("api_key_id = ? AND active = ?", apiKeyID, true).
		First(&account).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":       "AccountRepository",
			"op":         "FindByAPIKeyID",
			"api_key_id": apiKeyID,
		}).WithError(err).Error("Failed to fetch account by API key ID")

		return nil, err
	}

	return &account, nil
}
