// Package auth issues and validates the JWT bearer tokens accepted at the
// public edge, and carries the authenticated account through the request
// context. A token whose subject is the demo identity maps to the shared
// demo account without touching the user store.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mirroros/gateway/pkg/users"
)

// DefaultTokenTTL is the lifetime of issued access tokens.
const DefaultTokenTTL = 24 * time.Hour

var (
	// ErrEmptySecret is returned when the authenticator is built without a
	// signing secret.
	ErrEmptySecret = errors.New("auth: jwt secret must not be empty")

	// ErrInvalidToken covers every token rejection: bad signature, expired,
	// wrong algorithm, missing subject.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Claims are the registered claims plus the tier recorded at issue time.
// The tier claim is advisory; the authoritative tier is reloaded from the
// user store on every request.
type Claims struct {
	jwt.RegisteredClaims
	Tier string `json:"tier,omitempty"`
}

// Authenticator signs and verifies HS256 access tokens.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthenticator creates an authenticator with the given shared secret.
func NewAuthenticator(secret string, ttl time.Duration) (*Authenticator, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// WithClock overrides the authenticator's clock. Test hook.
func (a *Authenticator) WithClock(now func() time.Time) *Authenticator {
	a.now = now
	return a
}

// IssueToken mints a token for a registered user.
func (a *Authenticator) IssueToken(u *users.User) (string, error) {
	return a.issue(u.ID, string(u.Tier))
}

// IssueDemoToken mints a token for the shared demo identity.
func (a *Authenticator) IssueDemoToken() (string, error) {
	return a.issue(users.DemoSubject, "")
}

func (a *Authenticator) issue(subject, tier string) (string, error) {
	now := a.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
		Tier: tier,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token string, returning its claims.
func (a *Authenticator) Validate(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(t *jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
