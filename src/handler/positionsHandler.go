package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"positionengine/src/auth"
	"positionengine/src/engine"
	"positionengine/src/model"
)

type positionReader interface {
	GetOpenPositions(ctx context.Context) ([]model.Position, error)
}

type positionCloser interface {
	ForceClose(ctx context.Context, positionID uint, reason string) error
}

// ListPositionsHandler returns every open paper position.
func ListPositionsHandler(eng positionReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, ok := auth.GetAccountFromContext(r.Context())
		if !ok || account == nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		positions, err := eng.GetOpenPositions(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to list open positions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(positions); err != nil {
			logger.WithError(err).Error("failed to encode positions response")
		}
	}
}

type forceClosePayload struct {
	Reason string `json:"reason"`
}

// ForceCloseHandler fully closes a position on operator request.
func ForceCloseHandler(eng positionCloser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, ok := auth.GetAccountFromContext(r.Context())
		if !ok || account == nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid position id", http.StatusBadRequest)
			return
		}

		var payload forceClosePayload
		if r.Body != nil {
			// Body is optional; a bare POST closes with the default reason.
			_ = json.NewDecoder(r.Body).Decode(&payload)
		}

		if err := eng.ForceClose(r.Context(), uint(id), payload.Reason); err != nil {
			if engine.IsRejection(err) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnprocessableEntity)
				if encodeErr := json.NewEncoder(w).Encode(map[string]string{"error": err.Error()}); encodeErr != nil {
					logger.WithError(encodeErr).Error("failed to encode rejection response")
				}
				return
			}

			logger.WithError(err).WithField("position_id", id).Error("force close failed")
			http.Error(w, "Unable to close position", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
