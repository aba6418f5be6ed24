// Package quota tracks per-user daily prediction counters with fail-closed
// semantics. The counter resets lazily on the first access after the UTC date
// changes; there is no background job. Storage failures mean "cannot
// determine quota" and callers must deny, not allow.
package quota

import (
	"context"
	"errors"
	"time"

	"github.com/mirroros/gateway/pkg/tiers"
)

// ErrNotFound is returned when no quota state exists for a user.
var ErrNotFound = errors.New("quota: user not found")

// DateFormat is the calendar-date encoding used for last_reset_date.
const DateFormat = "2006-01-02"

// Store persists per-user daily counters. Implementations must make
// Increment atomic with respect to concurrent calls for the same user: two
// concurrent predictions at a limit boundary must never be recorded as the
// same count.
type Store interface {
	// UsedToday returns the counter after applying the lazy daily reset:
	// when the stored last_reset_date differs from today, the counter is
	// zeroed and the date advanced before the value is read.
	UsedToday(ctx context.Context, userID, today string) (int64, error)

	// Increment adds one to the user's counter and returns the new value.
	Increment(ctx context.Context, userID string) (int64, error)
}

// Snapshot is the quota position of a user at a point in time.
type Snapshot struct {
	Used      int64
	Limit     int64 // -1 = unlimited
	Remaining int64 // -1 = unlimited, never negative otherwise
}

// Ledger answers quota questions against a Store.
type Ledger struct {
	store Store
	now   func() time.Time
}

// NewLedger creates a ledger over the given store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// WithClock overrides the ledger's clock. Test hook.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) today() string {
	return l.now().UTC().Format(DateFormat)
}

// CanMakePrediction reports whether the user has daily quota left. An
// unlimited tier always allows without touching the counter. A storage error
// is returned as-is; the caller must fail closed.
func (l *Ledger) CanMakePrediction(ctx context.Context, userID string, dailyLimit int64) (bool, error) {
	if tiers.IsUnlimited(dailyLimit) {
		return true, nil
	}
	used, err := l.store.UsedToday(ctx, userID, l.today())
	if err != nil {
		return false, err
	}
	return used < dailyLimit, nil
}

// IncrementUsage records one consumed prediction. It is the only mutator of
// the counter.
func (l *Ledger) IncrementUsage(ctx context.Context, userID string) error {
	// Make sure a rollover right before the increment lands on a fresh
	// counter rather than yesterday's.
	if _, err := l.store.UsedToday(ctx, userID, l.today()); err != nil {
		return err
	}
	_, err := l.store.Increment(ctx, userID)
	return err
}

// Snapshot returns the user's current position against dailyLimit.
func (l *Ledger) Snapshot(ctx context.Context, userID string, dailyLimit int64) (Snapshot, error) {
	if tiers.IsUnlimited(dailyLimit) {
		used, err := l.store.UsedToday(ctx, userID, l.today())
		if err != nil && !errors.Is(err, ErrNotFound) {
			return Snapshot{}, err
		}
		return Snapshot{Used: used, Limit: -1, Remaining: -1}, nil
	}

	used, err := l.store.UsedToday(ctx, userID, l.today())
	if err != nil {
		return Snapshot{}, err
	}
	remaining := dailyLimit - used
	if remaining < 0 {
		remaining = 0
	}
	return Snapshot{Used: used, Limit: dailyLimit, Remaining: remaining}, nil
}
