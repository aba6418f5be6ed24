// Package usagelog records every terminal prediction outcome, success or
// failure, for usage reporting. Bodies are never stored; requests are
// identified by a structural hash computed upstream.
package usagelog

import (
	"context"
	"time"
)

// Record is one logged prediction attempt.
type Record struct {
	ID             string
	UserID         string
	RequestHash    string
	Success        bool
	ErrorCode      string // empty on success
	ResponseTimeMS int64
	CreatedAt      time.Time
}

// Store persists prediction records.
type Store interface {
	// Append writes one record. Exactly one record exists per terminal
	// outcome; callers must not retry a successful append.
	Append(ctx context.Context, rec Record) error

	// Recent returns up to n records for the user, newest first.
	Recent(ctx context.Context, userID string, n int) ([]Record, error)

	// Totals returns the lifetime request count and success count.
	Totals(ctx context.Context, userID string) (total, successful int64, err error)
}
