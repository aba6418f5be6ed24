package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id                     TEXT PRIMARY KEY,
	email                  TEXT NOT NULL UNIQUE,
	password_hash          TEXT NOT NULL,
	full_name              TEXT NOT NULL DEFAULT '',
	tier                   TEXT NOT NULL DEFAULT 'free',
	is_active              INTEGER NOT NULL DEFAULT 1,
	is_verified            INTEGER NOT NULL DEFAULT 0,
	predictions_used_today INTEGER NOT NULL DEFAULT 0,
	last_reset_date        TEXT NOT NULL,
	created_at             TIMESTAMP NOT NULL,
	updated_at             TIMESTAMP NOT NULL,
	last_login_at          TIMESTAMP
);
`

// SQLiteStore implements Store on SQLite for single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the store and ensures the schema exists.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("users: migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	if u.LastResetDate == "" {
		u.LastResetDate = now.Format("2006-01-02")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users
			(id, email, password_hash, full_name, tier, is_active, is_verified,
			 predictions_used_today, last_reset_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.PasswordHash, u.FullName, string(u.Tier), u.Active, u.Verified,
		u.PredictionsUsedToday, u.LastResetDate, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("users: create: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ByID(ctx context.Context, id string) (*User, error) {
	return s.one(ctx, `WHERE id = ?`, id)
}

func (s *SQLiteStore) ByEmail(ctx context.Context, email string) (*User, error) {
	return s.one(ctx, `WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)))
}

func (s *SQLiteStore) RecordLogin(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("users: record login: %w", err)
	}
	return nil
}

func (s *SQLiteStore) one(ctx context.Context, where string, arg any) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, full_name, tier, is_active, is_verified,
		       predictions_used_today, last_reset_date, created_at, updated_at, last_login_at
		FROM users `+where, arg)

	var u User
	var tier string
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &tier, &u.Active,
		&u.Verified, &u.PredictionsUsedToday, &u.LastResetDate,
		&u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("users: load: %w", err)
	}
	u.Tier = tiersID(tier)
	return &u, nil
}
