package profile

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &PGStore{DB: db}, mock
}

func TestPGStoreGet(t *testing.T) {
	store, mock := newMockStore(t)
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM profiles`)).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"uid", "email", "display_name", "photo_url", "created_at", "updated_at"}).
			AddRow("u1", "ada@example.com", "Ada", "", ts, ts))

	p, err := store.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", p.DisplayName)
	assert.Equal(t, ts, p.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreGetMissing(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM profiles`)).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPGStorePatchOnlySetsGivenFields(t *testing.T) {
	store, mock := newMockStore(t)
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	name := "Ada L."

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE profiles SET`)).
		WithArgs("u1", "Ada L.", nil, ts).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Patch(context.Background(), "u1", Update{DisplayName: &name}, ts))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStorePatchMissing(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE profiles SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	url := "https://img"
	err := store.Patch(context.Background(), "ghost", Update{PhotoURL: &url}, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}
