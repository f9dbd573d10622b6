package auth

import (
	"context"

	"positionengine/src/model"
)

type contextKey string

const AccountKey contextKey = "account"

func GetAccountFromContext(ctx context.Context) (*model.Account, bool) {
	account, ok := ctx.Value(AccountKey).(*model.Account)
	return account, ok
}
