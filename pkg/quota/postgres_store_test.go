package quota_test

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirroros/gateway/pkg/quota"
)

func TestPostgresStore_UsedTodayResetsStaleCounter(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE users SET predictions_used_today = 0`).
		WithArgs("2026-08-28", "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT predictions_used_today FROM users`).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"predictions_used_today"}).AddRow(0))

	store := quota.NewPostgresStore(db)
	used, err := store.UsedToday(context.Background(), "u-1", "2026-08-28")
	require.NoError(t, err)
	assert.Equal(t, int64(0), used)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UsedTodayUnknownUser(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE users SET predictions_used_today = 0`).
		WithArgs("2026-08-28", "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT predictions_used_today FROM users`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"predictions_used_today"}))

	store := quota.NewPostgresStore(db)
	_, err = store.UsedToday(context.Background(), "ghost", "2026-08-28")
	assert.ErrorIs(t, err, quota.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_IncrementReturnsNewCount(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`UPDATE users SET predictions_used_today = predictions_used_today \+ 1`).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"predictions_used_today"}).AddRow(3))

	store := quota.NewPostgresStore(db)
	used, err := store.Increment(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), used)
	assert.NoError(t, mock.ExpectationsWereMet())
}
