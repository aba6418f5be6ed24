package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id                     TEXT PRIMARY KEY,
	email                  TEXT NOT NULL UNIQUE,
	password_hash          TEXT NOT NULL,
	full_name              TEXT NOT NULL DEFAULT '',
	tier                   TEXT NOT NULL DEFAULT 'free',
	is_active              BOOLEAN NOT NULL DEFAULT TRUE,
	is_verified            BOOLEAN NOT NULL DEFAULT FALSE,
	predictions_used_today BIGINT NOT NULL DEFAULT 0,
	last_reset_date        TEXT NOT NULL,
	created_at             TIMESTAMPTZ NOT NULL,
	updated_at             TIMESTAMPTZ NOT NULL,
	last_login_at          TIMESTAMPTZ
);
`

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates the store and ensures the schema exists.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if _, err := db.Exec(postgresSchema); err != nil {
		return nil, fmt.Errorf("users: migrate: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Create(ctx context.Context, u *User) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, u.ID, u.Email, u.PasswordHash, u.FullName, string(u.Tier), u.Active, u.Verified,
		u.PredictionsUsedToday, u.LastResetDate, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("users: create: %w", err)
	}
	return nil
}

func (s *PostgresStore) ByID(ctx context.Context, id string) (*User, error) {
	return s.one(ctx, `WHERE id = $1`, id)
}

func (s *PostgresStore) ByEmail(ctx context.Context, email string) (*User, error) {
	return s.one(ctx, `WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
}

func (s *PostgresStore) RecordLogin(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("users: record login: %w", err)
	}
	return nil
}

func (s *PostgresStore) one(ctx context.Context, where string, arg any) (*User, error) {
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
