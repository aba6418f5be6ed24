package observability_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirroros/gateway/pkg/observability"
)

func TestDisabledProviderIsInert(t *testing.T) {
	p, err := observability.New(context.Background(), &observability.Config{Enabled: false})
	require.NoError(t, err)

	// Recording on a disabled provider must not panic.
	p.RecordRequest(context.Background(), "/predict", 200, "")
	p.RecordRequest(context.Background(), "/predict", 504, "timeout")
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNilProviderIsInert(t *testing.T) {
	var p *observability.Provider
	p.RecordRequest(context.Background(), "/predict", 200, "")
	assert.NoError(t, p.Shutdown(context.Background()))

	handler := p.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDefaultConfig(t *testing.T) {
	cfg := observability.DefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "mirroros-gateway", cfg.ServiceName)
}
