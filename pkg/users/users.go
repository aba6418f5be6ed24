// Package users holds account identity for the public API: registered users
// backed by the users table, plus the shared demo account that exists only
// in memory.
package users

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mirroros/gateway/pkg/tiers"
)

// ErrNotFound is returned when no user matches the lookup.
var ErrNotFound = errors.New("users: not found")

// Account is the identity attached to an authenticated request. The demo
// account and registered users both satisfy it; callers branch on IsDemo
// when the two need different handling (quota for the demo account is
// process-local and never persisted).
type Account interface {
	AccountID() string
	TierID() tiers.TierID
	Limits() tiers.Limits
	IsDemo() bool
}

// User is a registered account row.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FullName     string
	Tier         tiers.TierID
	Active       bool
	Verified     bool

	PredictionsUsedToday int64
	LastResetDate        string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt *time.Time
}

// NewUser creates a user with a hashed password. The email is normalized to
// lowercase.
func NewUser(email, password, fullName string) (*User, error) {
	u := &User{
		Email:    strings.ToLower(strings.TrimSpace(email)),
		FullName: strings.TrimSpace(fullName),
		Tier:     tiers.TierFree,
		Active:   true,
	}
	if err := u.SetPassword(password); err != nil {
		return nil, err
	}
	return u, nil
}

// SetPassword hashes and stores the password.
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errors.New("users: hash password: " + err.Error())
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword reports whether the password matches the stored hash.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

func (u *User) AccountID() string    { return u.ID }
func (u *User) TierID() tiers.TierID { return u.Tier }
func (u *User) Limits() tiers.Limits { return tiers.LimitsFor(u.Tier) }
func (u *User) IsDemo() bool         { return false }

// DemoSubject is the fixed identity of the shared demo account.
const DemoSubject = "demo-user-12345"

// DemoAccount is the shared, unregistered trial identity. Its quota lives in
// process memory and resets on restart.
type DemoAccount struct{}

func (DemoAccount) AccountID() string    { return DemoSubject }
func (DemoAccount) TierID() tiers.TierID { return tiers.TierFree }
func (DemoAccount) Limits() tiers.Limits { return tiers.Demo }
func (DemoAccount) IsDemo() bool         { return true }
