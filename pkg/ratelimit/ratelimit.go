// Package ratelimit enforces named sliding-window limits per identifier. An
// identifier is checked against several windows at once ("minute", "hour");
// the request is denied when any window is full. Events are recorded on the
// windows that still have room even when another window denies, so a burst
// that trips the minute limit still counts toward the hour.
//
// The limiter prefers a Redis-backed store so limits hold across instances,
// and falls back to a process-local store when Redis is unreachable. The
// fallback is per check, not sticky.
package ratelimit

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/mirroros/gateway/pkg/tiers"
)

// storeTimeout bounds every store round-trip so a hung backend degrades the
// limiter instead of stalling the request.
const storeTimeout = 500 * time.Millisecond

// Limit is one named window: at most Max events per Window. Max < 0 means
// the window never fills.
type Limit struct {
	Max    int
	Window time.Duration
}

// WindowStore holds sliding-window event sets keyed by string.
type WindowStore interface {
	// Slide purges events older than now-window, then either records a new
	// event (count < max) or refuses. It returns the event count after the
	// call, how long until the oldest remaining event leaves the window
	// (the full window length when no event is held), and whether the
	// event was recorded.
	Slide(ctx context.Context, key string, max int, window time.Duration, now time.Time) (count int, resetIn time.Duration, allowed bool, err error)

	// Forgive removes the newest event inside the window, undoing the most
	// recent Slide for that key.
	Forgive(ctx context.Context, key string, window time.Duration, now time.Time) error
}

// Result is the outcome of checking one identifier against a set of limits.
type Result struct {
	Allowed    bool
	Exceeded   string        // name of the first window that denied
	RetryAfter time.Duration // time until the exceeded window has room again
	Counts     map[string]int
	Resets     map[string]time.Duration // per window, time until its oldest event expires
}

// Limiter checks identifiers against named limits, with an optional shared
// primary store and a mandatory local fallback.
type Limiter struct {
	primary  WindowStore // usually Redis; nil means local-only
	fallback WindowStore
	log      *slog.Logger
	now      func() time.Time
}

// NewLimiter creates a limiter. primary may be nil; fallback must not be.
func NewLimiter(primary, fallback WindowStore, log *slog.Logger) *Limiter {
	if log == nil {
		log = slog.Default()
	}
	return &Limiter{primary: primary, fallback: fallback, log: log, now: time.Now}
}

// WithClock overrides the limiter's clock. Test hook.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Key returns the store key for one named window of an identifier.
func Key(identifier, name string) string {
	return "rate_limit:" + identifier + ":" + name
}

// PerTier maps tier limits onto the minute and hour windows.
func PerTier(t tiers.Limits) map[string]Limit {
	return map[string]Limit{
		"minute": {Max: t.RequestsPerMinute, Window: time.Minute},
		"hour":   {Max: t.RequestsPerHour, Window: time.Hour},
	}
}

// Check evaluates every limit for the identifier. Windows are visited in
// name order so denials are deterministic when several windows are full.
func (l *Limiter) Check(ctx context.Context, identifier string, limits map[string]Limit) Result {
	res := Result{
		Allowed: true,
		Counts:  make(map[string]int, len(limits)),
		Resets:  make(map[string]time.Duration, len(limits)),
	}
	now := l.now()

	for _, name := range sortedNames(limits) {
		limit := limits[name]
		if limit.Max < 0 {
			continue
		}
		count, resetIn, allowed, err := l.slide(ctx, Key(identifier, name), limit, now)
		if err != nil {
			// Both stores failed. Denying here would turn a backend
			// outage into a full outage, so let the request through.
			l.log.Error("rate limit check failed open", "identifier", identifier, "window", name, "error", err)
			continue
		}
		res.Counts[name] = count
		res.Resets[name] = resetIn
		if !allowed && res.Allowed {
			res.Allowed = false
			res.Exceeded = name
			res.RetryAfter = resetIn
		}
	}
	return res
}

// Forgive removes the most recent event from every window of the identifier.
// Used when an upstream rejection should not count against the caller.
func (l *Limiter) Forgive(ctx context.Context, identifier string, limits map[string]Limit) {
	now := l.now()
	for _, name := range sortedNames(limits) {
		limit := limits[name]
		if limit.Max < 0 {
			continue
		}
		key := Key(identifier, name)
		if err := l.forgive(ctx, key, limit.Window, now); err != nil {
			l.log.Warn("rate limit forgive failed", "key", key, "error", err)
		}
	}
}

func (l *Limiter) slide(ctx context.Context, key string, limit Limit, now time.Time) (int, time.Duration, bool, error) {
	if l.primary != nil {
		opCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		count, resetIn, allowed, err := l.primary.Slide(opCtx, key, limit.Max, limit.Window, now)
		cancel()
		if err == nil {
			return count, resetIn, allowed, nil
		}
		l.log.Warn("rate limit store unavailable, using local fallback", "key", key, "error", err)
	}
	return l.fallback.Slide(ctx, key, limit.Max, limit.Window, now)
}

func (l *Limiter) forgive(ctx context.Context, key string, window time.Duration, now time.Time) error {
	if l.primary != nil {
		opCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		err := l.primary.Forgive(opCtx, key, window, now)
		cancel()
		if err == nil {
			return nil
		}
		l.log.Warn("rate limit store unavailable, forgiving locally", "key", key, "error", err)
	}
	return l.fallback.Forgive(ctx, key, window, now)
}

func sortedNames(limits map[string]Limit) []string {
	names := make([]string, 0, len(limits))
	for name := range limits {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
