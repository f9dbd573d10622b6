package auth

import (
	"context"
	"net/http"
	"strings"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"positionengine/src/model"
)

type accountLookup interface {
	FindByAPIKeyID(ctx context.Context, apiKeyID string) (*model.Account, error)
}

// Middleware authenticates requests with "Authorization: Bearer <keyID>.<token>"
// against the bcrypt-hashed account token and drops the account into the
// request context.
func Middleware(accounts accountLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			keyID, token, ok := strings.Cut(strings.TrimPrefix(header, "Bearer "), ".")
			if !ok || keyID == "" || token == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			account, err := accounts.FindByAPIKeyID(r.Context(), keyID)
			if err != nil {
				logger.WithError(err).Error("failed to look up api key")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if account == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if err := bcrypt.CompareHashAndPassword([]byte(account.APITokenHash), []byte(token)); err != nil {
				logger.WithField("api_key_id", keyID).Warn("invalid api token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), AccountKey, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
