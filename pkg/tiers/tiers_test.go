package tiers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mirroros/gateway/pkg/tiers"
)

func TestTiers_Get(t *testing.T) {
	tests := []struct {
		id       tiers.TierID
		expected string
	}{
		{tiers.TierFree, "Free"},
		{tiers.TierPro, "Pro"},
		{tiers.TierEnterprise, "Enterprise"},
	}

	for _, tt := range tests {
		tier := tiers.Get(tt.id)
		assert.NotNil(t, tier)
		assert.Equal(t, tt.expected, tier.Name)
	}
}

func TestTiers_GetUnknown(t *testing.T) {
	assert.Nil(t, tiers.Get("unknown-tier"))
}

func TestTiers_FreeLimits(t *testing.T) {
	limits := tiers.Free.Limits
	assert.Equal(t, int64(3), limits.PredictionsPerDay)
	assert.Equal(t, 30, limits.RequestsPerMinute)
	assert.Equal(t, 500, limits.RequestsPerHour)
}

func TestTiers_ProLimits(t *testing.T) {
	limits := tiers.Pro.Limits
	assert.Equal(t, int64(50), limits.PredictionsPerDay)
	assert.Equal(t, 200, limits.RequestsPerMinute)
	assert.Equal(t, 5000, limits.RequestsPerHour)
}

func TestTiers_EnterpriseUnlimitedPredictions(t *testing.T) {
	assert.True(t, tiers.IsUnlimited(tiers.Enterprise.Limits.PredictionsPerDay))
	assert.False(t, tiers.IsUnlimited(int64(tiers.Enterprise.Limits.RequestsPerMinute)))
}

func TestTiers_LimitsForUnknownFallsBackToFree(t *testing.T) {
	assert.Equal(t, tiers.Free.Limits, tiers.LimitsFor("mystery"))
	assert.Equal(t, tiers.Pro.Limits, tiers.LimitsFor(tiers.TierPro))
}

func TestTiers_Override(t *testing.T) {
	original := tiers.LimitsFor(tiers.TierFree)
	defer tiers.Override(tiers.TierFree, original)

	changed := tiers.Limits{PredictionsPerDay: 5, RequestsPerMinute: 60, RequestsPerHour: 1000}
	assert.True(t, tiers.Override(tiers.TierFree, changed))
	assert.Equal(t, changed, tiers.LimitsFor(tiers.TierFree))

	assert.False(t, tiers.Override("unknown-tier", changed))
}

func TestTiers_AnonymousFallback(t *testing.T) {
	assert.Equal(t, int64(3), tiers.Anonymous.PredictionsPerDay)
	assert.Greater(t, tiers.Anonymous.RequestsPerMinute, 0)
}
