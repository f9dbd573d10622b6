package handler

import (
	"context"
	"encoding/json"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"positionengine/src/auth"
	"positionengine/src/engine"
	"positionengine/src/model"
)

type signalSubmitter interface {
	SubmitSignal(ctx context.Context, signal *model.Signal) (uint, error)
}

type submitResponse struct {
	PositionID uint   `json:"position_id"`
	Status     string `json:"status"`
}

// SubmitSignalHandler accepts an entry signal for the authenticated account.
// Rejections come back as 422 with the reason; malformed payloads as 400.
func SubmitSignalHandler(eng signalSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, ok := auth.GetAccountFromContext(r.Context())
		if !ok || account == nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var signal model.Signal
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&signal); err != nil {
			logger.WithError(err).Warn("invalid signal payload")
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		signal.AccountID = account.ID
		if signal.Margin <= 0 {
			signal.Margin = account.BaseMargin
		}
		if signal.Leverage <= 0 || signal.Leverage > account.MaxLeverage {
			signal.Leverage = account.MaxLeverage
		}

		positionID, err := eng.SubmitSignal(r.Context(), &signal)
		if err != nil {
			if engine.IsRejection(err) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnprocessableEntity)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}
			logger.WithError(err).Error("failed to submit signal")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(submitResponse{PositionID: positionID, Status: "accepted"}); err != nil {
			logger.WithError(err).Error("failed to encode submit response")
		}
	}
}
