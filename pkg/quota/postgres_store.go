package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store against the users table in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed quota store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) UsedToday(ctx context.Context, userID, today string) (int64, error) {
	// Lazy reset: zero the counter once per UTC day. The WHERE guard makes
	// concurrent resets idempotent without an explicit lock.
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET predictions_used_today = 0, last_reset_date = $1, updated_at = NOW()
		WHERE id = $2 AND last_reset_date <> $1
	`, today, userID)
	if err != nil {
		return 0, fmt.Errorf("quota: reset counter: %w", err)
	}

	var used int64
	err = s.db.QueryRowContext(ctx,
		`SELECT predictions_used_today FROM users WHERE id = $1`, userID,
	).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("quota: read counter: %w", err)
	}
	return used, nil
}

func (s *PostgresStore) Increment(ctx context.Context, userID string) (int64, error) {
	// Single-statement increment: the database serializes concurrent calls,
	// so no increment is ever lost.
	var used int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE users SET predictions_used_today = predictions_used_today + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING predictions_used_today
	`, userID).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("quota: increment counter: %w", err)
	}
	return used, nil
}
