package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirroros/gateway/pkg/auth"
	"github.com/mirroros/gateway/pkg/tiers"
	"github.com/mirroros/gateway/pkg/users"
)

func newAuthenticator(t *testing.T) *auth.Authenticator {
	t.Helper()
	a, err := auth.NewAuthenticator("test-jwt-secret", time.Hour)
	require.NoError(t, err)
	return a
}

func TestNewAuthenticator_RejectsEmptySecret(t *testing.T) {
	_, err := auth.NewAuthenticator("", time.Hour)
	assert.ErrorIs(t, err, auth.ErrEmptySecret)
}

func TestAuthenticator_IssueAndValidate(t *testing.T) {
	a := newAuthenticator(t)
	u, err := users.NewUser("alice@example.com", "s3cret-pass", "")
	require.NoError(t, err)
	u.ID = "user-1"
	u.Tier = tiers.TierPro

	token, err := a.IssueToken(u)
	require.NoError(t, err)

	claims, err := a.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "pro", claims.Tier)
}

func TestAuthenticator_RejectsWrongSecret(t *testing.T) {
	a := newAuthenticator(t)
	other, err := auth.NewAuthenticator("different-secret", time.Hour)
	require.NoError(t, err)

	u, err := users.NewUser("alice@example.com", "s3cret-pass", "")
	require.NoError(t, err)
	u.ID = "user-1"
	token, err := other.IssueToken(u)
	require.NoError(t, err)

	_, err = a.Validate(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestAuthenticator_RejectsExpiredToken(t *testing.T) {
	issued := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	a := newAuthenticator(t).WithClock(func() time.Time { return issued })

	u, err := users.NewUser("alice@example.com", "s3cret-pass", "")
	require.NoError(t, err)
	u.ID = "user-1"
	token, err := a.IssueToken(u)
	require.NoError(t, err)

	// Still valid just before expiry, rejected just after.
	a.WithClock(func() time.Time { return issued.Add(59 * time.Minute) })
	_, err = a.Validate(token)
	require.NoError(t, err)

	a.WithClock(func() time.Time { return issued.Add(61 * time.Minute) })
	_, err = a.Validate(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestAuthenticator_RejectsGarbage(t *testing.T) {
	a := newAuthenticator(t)
	_, err := a.Validate("not.a.token")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestAuthenticator_DemoToken(t *testing.T) {
	a := newAuthenticator(t)
	token, err := a.IssueDemoToken()
	require.NoError(t, err)

	claims, err := a.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, users.DemoSubject, claims.Subject)
}

func TestAccountContext(t *testing.T) {
	ctx := context.Background()
	_, err := auth.GetAccount(ctx)
	assert.ErrorIs(t, err, auth.ErrNoAccount)

	ctx = auth.WithAccount(ctx, users.DemoAccount{})
	acct, err := auth.GetAccount(ctx)
	require.NoError(t, err)
	assert.True(t, acct.IsDemo())
}

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	var seen string
	handler := auth.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = auth.GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}

func TestRequestID_ReusesClientID(t *testing.T) {
	handler := auth.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-id-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "client-id-1", rec.Header().Get("X-Request-ID"))
}

func TestCORS_Preflight(t *testing.T) {
	handler := auth.CORS([]string{"https://app.mirroros.com"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("preflight must not reach the handler")
		}))

	req := httptest.NewRequest(http.MethodOptions, "/v1/predict", nil)
	req.Header.Set("Origin", "https://app.mirroros.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.mirroros.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	handler := auth.CORS([]string{"https://app.mirroros.com"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest(http.MethodGet, "/v1/predict", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
