package usagelog_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirroros/gateway/pkg/usagelog"
)

func rec(i int, userID string, success bool, code string) usagelog.Record {
	return usagelog.Record{
		ID:             fmt.Sprintf("rec-%d", i),
		UserID:         userID,
		RequestHash:    "abc123",
		Success:        success,
		ErrorCode:      code,
		ResponseTimeMS: int64(100 + i),
		CreatedAt:      time.Date(2026, 8, 28, 12, 0, i, 0, time.UTC),
	}
}

func TestMemoryStore_RecentNewestFirst(t *testing.T) {
	store := usagelog.NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		require.NoError(t, store.Append(ctx, rec(i, "u-1", true, "")))
	}

	recent, err := store.Recent(ctx, "u-1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 10)
	assert.Equal(t, "rec-14", recent[0].ID)
	assert.Equal(t, "rec-5", recent[9].ID)
}

func TestMemoryStore_Totals(t *testing.T) {
	store := usagelog.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, rec(0, "u-1", true, "")))
	require.NoError(t, store.Append(ctx, rec(1, "u-1", false, "timeout")))
	require.NoError(t, store.Append(ctx, rec(2, "u-1", true, "")))
	require.NoError(t, store.Append(ctx, rec(3, "other", true, "")))

	total, successful, err := store.Totals(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, int64(2), successful)
}

func TestMemoryStore_EmptyUser(t *testing.T) {
	store := usagelog.NewMemoryStore()
	ctx := context.Background()

	recent, err := store.Recent(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, recent)

	total, successful, err := store.Totals(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Zero(t, successful)
}

func TestPostgresStore_AppendAndTotals(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS prediction_requests`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := usagelog.NewPostgresStore(db)
	require.NoError(t, err)

	r := rec(1, "u-1", false, "connection_error")
	mock.ExpectExec(`INSERT INTO prediction_requests`).
		WithArgs(r.ID, r.UserID, r.RequestHash, r.Success, r.ErrorCode, r.ResponseTimeMS, r.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.Append(context.Background(), r))

	mock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\(\*\) FILTER`).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"count", "count"}).AddRow(5, 4))
	total, successful, err := store.Totals(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Equal(t, int64(4), successful)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Recent(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS prediction_requests`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := usagelog.NewPostgresStore(db)
	require.NoError(t, err)

	created := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, user_id, request_hash, success, error_code, response_time_ms, created_at`).
		WithArgs("u-1", 10).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "request_hash", "success", "error_code", "response_time_ms", "created_at",
		}).AddRow("rec-2", "u-1", "abc123", true, "", 120, created).
			AddRow("rec-1", "u-1", "abc123", false, "timeout", 30000, created.Add(-time.Minute)))

	recent, err := store.Recent(context.Background(), "u-1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "rec-2", recent[0].ID)
	assert.True(t, recent[0].Success)
	assert.Equal(t, "timeout", recent[1].ErrorCode)

	assert.NoError(t, mock.ExpectationsWereMet())
}
