package auth

import (
	"context"
	"errors"

	"github.com/mirroros/gateway/pkg/users"
)

type contextKey string

const accountKey contextKey = "account"

// ErrNoAccount is returned when the context carries no authenticated
// account.
var ErrNoAccount = errors.New("auth: no account in context")

// WithAccount attaches the authenticated account to the context.
func WithAccount(ctx context.Context, acct users.Account) context.Context {
	return context.WithValue(ctx, accountKey, acct)
}

// GetAccount retrieves the authenticated account from the context.
func GetAccount(ctx context.Context) (users.Account, error) {
	acct, ok := ctx.Value(accountKey).(users.Account)
	if !ok {
		return nil, ErrNoAccount
	}
	return acct, nil
}

// MustGetAccount panics when no account is present. Use only behind the
// authentication middleware.
func MustGetAccount(ctx context.Context) users.Account {
	acct, err := GetAccount(ctx)
	if err != nil {
		panic(err)
	}
	return acct
}
