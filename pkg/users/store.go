package users

import (
	"context"

	"github.com/mirroros/gateway/pkg/tiers"
)

// Store persists registered users. The same users table carries the daily
// quota counters consumed by the quota package.
type Store interface {
	Create(ctx context.Context, u *User) error
	ByID(ctx context.Context, id string) (*User, error)
	ByEmail(ctx context.Context, email string) (*User, error)
	RecordLogin(ctx context.Context, id string) error
}

// tiersID parses a stored tier column, treating unknown values as free.
func tiersID(s string) tiers.TierID {
	id := tiers.TierID(s)
	if tiers.Get(id) == nil {
		return tiers.TierFree
	}
	return id
}
