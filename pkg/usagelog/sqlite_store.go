package usagelog

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS prediction_requests (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	request_hash     TEXT NOT NULL,
	success          INTEGER NOT NULL,
	error_code       TEXT NOT NULL DEFAULT '',
	response_time_ms INTEGER NOT NULL,
	created_at       TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_prediction_requests_user
	ON prediction_requests (user_id, created_at DESC);
`

// SQLiteStore implements Store on SQLite for single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the store and ensures the schema exists.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("usagelog: migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prediction_requests
			(id, user_id, request_hash, success, error_code, response_time_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.UserID, rec.RequestHash, rec.Success, rec.ErrorCode, rec.ResponseTimeMS, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("usagelog: append: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, userID string, n int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, request_hash, success, error_code, response_time_ms, created_at
		FROM prediction_requests
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, userID, n)
	if err != nil {
		return nil, fmt.Errorf("usagelog: recent: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *SQLiteStore) Totals(ctx context.Context, userID string) (int64, int64, error) {
	var total, successful int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(success), 0)
		FROM prediction_requests
		WHERE user_id = ?
	`, userID).Scan(&total, &successful)
	if err != nil {
		return 0, 0, fmt.Errorf("usagelog: totals: %w", err)
	}
	return total, successful, nil
}
