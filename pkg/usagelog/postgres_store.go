package usagelog

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS prediction_requests (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	request_hash     TEXT NOT NULL,
	success          BOOLEAN NOT NULL,
	error_code       TEXT NOT NULL DEFAULT '',
	response_time_ms BIGINT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_prediction_requests_user
	ON prediction_requests (user_id, created_at DESC);
`

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates the store and ensures the schema exists.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if _, err := db.Exec(postgresSchema); err != nil {
		return nil, fmt.Errorf("usagelog: migrate: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Append(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prediction_requests
			(id, user_id, request_hash, success, error_code, response_time_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.UserID, rec.RequestHash, rec.Success, rec.ErrorCode, rec.ResponseTimeMS, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("usagelog: append: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, userID string, n int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, request_hash, success, error_code, response_time_ms, created_at
		FROM prediction_requests
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, n)
	if err != nil {
		return nil, fmt.Errorf("usagelog: recent: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *PostgresStore) Totals(ctx context.Context, userID string) (int64, int64, error) {
	var total, successful int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE success)
		FROM prediction_requests
		WHERE user_id = $1
	`, userID).Scan(&total, &successful)
	if err != nil {
		return 0, 0, fmt.Errorf("usagelog: totals: %w", err)
	}
	return total, successful, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.RequestHash, &rec.Success,
			&rec.ErrorCode, &rec.ResponseTimeMS, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("usagelog: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("usagelog: rows: %w", err)
	}
	return out, nil
}
