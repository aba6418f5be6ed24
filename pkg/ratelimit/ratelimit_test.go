package ratelimit_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirroros/gateway/pkg/ratelimit"
	"github.com/mirroros/gateway/pkg/tiers"
)

func memLimiter(t *testing.T, now *time.Time) *ratelimit.Limiter {
	t.Helper()
	l := ratelimit.NewLimiter(nil, ratelimit.NewMemoryWindowStore(), slog.Default())
	return l.WithClock(func() time.Time { return *now })
}

func TestLimiter_AllowsUpToMax(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	limiter := memLimiter(t, &now)
	ctx := context.Background()
	limits := map[string]ratelimit.Limit{"minute": {Max: 3, Window: time.Minute}}

	for i := 0; i < 3; i++ {
		res := limiter.Check(ctx, "user:1", limits)
		require.True(t, res.Allowed, "request %d should pass", i+1)
		now = now.Add(time.Second)
	}

	res := limiter.Check(ctx, "user:1", limits)
	assert.False(t, res.Allowed)
	assert.Equal(t, "minute", res.Exceeded)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, res.RetryAfter, time.Minute)
}

func TestLimiter_WindowSlides(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	limiter := memLimiter(t, &now)
	ctx := context.Background()
	limits := map[string]ratelimit.Limit{"minute": {Max: 2, Window: time.Minute}}

	require.True(t, limiter.Check(ctx, "user:1", limits).Allowed)
	require.True(t, limiter.Check(ctx, "user:1", limits).Allowed)
	require.False(t, limiter.Check(ctx, "user:1", limits).Allowed)

	// After the window passes, the oldest events expire and room returns.
	now = now.Add(61 * time.Second)
	assert.True(t, limiter.Check(ctx, "user:1", limits).Allowed)
}

func TestLimiter_DenialStillCountsTowardOtherWindows(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	limiter := memLimiter(t, &now)
	ctx := context.Background()
	limits := map[string]ratelimit.Limit{
		"minute": {Max: 1, Window: time.Minute},
		"hour":   {Max: 100, Window: time.Hour},
	}

	require.True(t, limiter.Check(ctx, "user:1", limits).Allowed)

	res := limiter.Check(ctx, "user:1", limits)
	require.False(t, res.Allowed)
	assert.Equal(t, "minute", res.Exceeded)
	assert.Equal(t, 2, res.Counts["hour"], "the denied burst still consumed hour capacity")
}

func TestLimiter_ZeroMaxAlwaysDenies(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	limiter := memLimiter(t, &now)
	ctx := context.Background()
	limits := map[string]ratelimit.Limit{"minute": {Max: 0, Window: time.Minute}}

	for i := 0; i < 3; i++ {
		res := limiter.Check(ctx, "user:1", limits)
		require.False(t, res.Allowed, "attempt %d", i+1)
		assert.Equal(t, "minute", res.Exceeded)
		assert.Equal(t, time.Minute, res.RetryAfter, "an empty zero-max window resets a full window away")
	}
}

func TestLimiter_ReportsPerWindowReset(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	limiter := memLimiter(t, &now)
	ctx := context.Background()
	limits := map[string]ratelimit.Limit{
		"minute": {Max: 10, Window: time.Minute},
		"hour":   {Max: 100, Window: time.Hour},
	}

	res := limiter.Check(ctx, "user:1", limits)
	require.True(t, res.Allowed)
	assert.Equal(t, time.Minute, res.Resets["minute"])
	assert.Equal(t, time.Hour, res.Resets["hour"])

	// The oldest event pins the reset as later requests arrive.
	now = now.Add(10 * time.Second)
	res = limiter.Check(ctx, "user:1", limits)
	require.True(t, res.Allowed)
	assert.Equal(t, 50*time.Second, res.Resets["minute"])
}

func TestLimiter_UnlimitedWindowNeverDenies(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	limiter := memLimiter(t, &now)
	ctx := context.Background()
	limits := map[string]ratelimit.Limit{"minute": {Max: -1, Window: time.Minute}}

	for i := 0; i < 100; i++ {
		require.True(t, limiter.Check(ctx, "user:1", limits).Allowed)
	}
}

func TestLimiter_IdentifiersAreIsolated(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	limiter := memLimiter(t, &now)
	ctx := context.Background()
	limits := map[string]ratelimit.Limit{"minute": {Max: 1, Window: time.Minute}}

	require.True(t, limiter.Check(ctx, "user:1", limits).Allowed)
	require.False(t, limiter.Check(ctx, "user:1", limits).Allowed)
	assert.True(t, limiter.Check(ctx, "user:2", limits).Allowed)
}

func TestLimiter_ForgiveReturnsCapacity(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	limiter := memLimiter(t, &now)
	ctx := context.Background()
	limits := map[string]ratelimit.Limit{"minute": {Max: 2, Window: time.Minute}}

	require.True(t, limiter.Check(ctx, "user:1", limits).Allowed)
	require.True(t, limiter.Check(ctx, "user:1", limits).Allowed)
	require.False(t, limiter.Check(ctx, "user:1", limits).Allowed)

	limiter.Forgive(ctx, "user:1", limits)
	assert.True(t, limiter.Check(ctx, "user:1", limits).Allowed)
}

type brokenStore struct{ calls int }

func (b *brokenStore) Slide(context.Context, string, int, time.Duration, time.Time) (int, time.Duration, bool, error) {
	b.calls++
	return 0, 0, false, errors.New("connection refused")
}

func (b *brokenStore) Forgive(context.Context, string, time.Duration, time.Time) error {
	b.calls++
	return errors.New("connection refused")
}

func TestLimiter_FallsBackWhenPrimaryFails(t *testing.T) {
	broken := &brokenStore{}
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	limiter := ratelimit.NewLimiter(broken, ratelimit.NewMemoryWindowStore(), slog.Default()).
		WithClock(func() time.Time { return now })
	ctx := context.Background()
	limits := map[string]ratelimit.Limit{"minute": {Max: 2, Window: time.Minute}}

	require.True(t, limiter.Check(ctx, "user:1", limits).Allowed)
	require.True(t, limiter.Check(ctx, "user:1", limits).Allowed)
	res := limiter.Check(ctx, "user:1", limits)
	assert.False(t, res.Allowed, "fallback store must still enforce the limit")
	assert.Equal(t, 3, broken.calls, "primary is retried on every check")
}

func TestPerTier(t *testing.T) {
	limits := ratelimit.PerTier(tiers.Free.Limits)
	assert.Equal(t, ratelimit.Limit{Max: 30, Window: time.Minute}, limits["minute"])
	assert.Equal(t, ratelimit.Limit{Max: 500, Window: time.Hour}, limits["hour"])
}

func TestKey(t *testing.T) {
	assert.Equal(t, "rate_limit:ip:10.0.0.1:minute", ratelimit.Key("ip:10.0.0.1", "minute"))
}
