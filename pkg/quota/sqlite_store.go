package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store against the users table in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed quota store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) UsedToday(ctx context.Context, userID, today string) (int64, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET predictions_used_today = 0, last_reset_date = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND last_reset_date <> ?
	`, today, userID, today)
	if err != nil {
		return 0, fmt.Errorf("quota: reset counter: %w", err)
	}

	var used int64
	err = s.db.QueryRowContext(ctx,
		`SELECT predictions_used_today FROM users WHERE id = ?`, userID,
	).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("quota: read counter: %w", err)
	}
	return used, nil
}

func (s *SQLiteStore) Increment(ctx context.Context, userID string) (int64, error) {
	var used int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE users SET predictions_used_today = predictions_used_today + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
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
