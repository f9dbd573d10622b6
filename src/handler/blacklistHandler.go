package handler

import (
	"context"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"positionengine/src/auth"
)

type blacklistReloader interface {
	Reload(ctx context.Context) error
}

// ReloadBlacklistHandler forces a blacklist snapshot refresh outside the
// periodic schedule, for use after manual table edits.
func ReloadBlacklistHandler(checker blacklistReloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, ok := auth.GetAccountFromContext(r.Context())
		if !ok || account == nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if err := checker.Reload(r.Context()); err != nil {
			logger.WithError(err).Error("manual blacklist reload failed")
			http.Error(w, "Unable to reload blacklist", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
