package docstore_test

import (
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/htkfoods/storefront/internal/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChannel = "documents"

func setupPostgres(t *testing.T) (*docstore.PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := docstore.NewPostgresStore(db, testChannel, nil)
	require.NoError(t, err)

	return store, mock
}

var (
	selectDocument = regexp.QuoteMeta("SELECT data, version FROM documents WHERE path = $1")
	upsertReplace  = regexp.QuoteMeta("DO UPDATE SET data = EXCLUDED.data")
	upsertMerge    = regexp.QuoteMeta("DO UPDATE SET data = documents.data || EXCLUDED.data")
	insertAbsent   = regexp.QuoteMeta("ON CONFLICT (path) DO NOTHING")
	updateVersion  = regexp.QuoteMeta("WHERE path = $1 AND version = $3")
	notifyChange   = regexp.QuoteMeta("SELECT pg_notify($1, $2)")
)

func TestPostgresStore_Get(t *testing.T) {
	ctx := t.Context()
	path := docstore.CartPath("u1")

	t.Run("Success", func(t *testing.T) {
		// Arrange
		store, mock := setupPostgres(t)
		rows := sqlmock.NewRows([]string{"data", "version"}).AddRow([]byte(`{"items":[]}`), 3)
		mock.ExpectQuery(selectDocument).WithArgs(path).WillReturnRows(rows)

		// Act
		doc, err := store.Get(ctx, path)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, path, doc.Path)
		assert.Equal(t, int64(3), doc.Version)
		assert.JSONEq(t, `{"items":[]}`, string(doc.Data))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Found", func(t *testing.T) {
		store, mock := setupPostgres(t)
		mock.ExpectQuery(selectDocument).WithArgs(path).WillReturnError(sql.ErrNoRows)

		doc, err := store.Get(ctx, path)

		assert.Nil(t, doc)
		assert.ErrorIs(t, err, docstore.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database Error", func(t *testing.T) {
		store, mock := setupPostgres(t)
		dbErr := errors.New("connection refused")
		mock.ExpectQuery(selectDocument).WithArgs(path).WillReturnError(dbErr)

		doc, err := store.Get(ctx, path)

		assert.Nil(t, doc)
		assert.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), "failed to get document "+path)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_Set(t *testing.T) {
	ctx := t.Context()
	path := docstore.RewardsPath("u1")

	t.Run("Replace", func(t *testing.T) {
		// Arrange
		store, mock := setupPostgres(t)
		mock.ExpectQuery(upsertReplace).
			WithArgs(path, `{"points":10}`).
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
		mock.ExpectExec(notifyChange).WithArgs(testChannel, path).WillReturnResult(sqlmock.NewResult(0, 1))

		// Act
		err := store.Set(ctx, path, json.RawMessage(`{"points":10}`), docstore.SetOptions{})

		// Assert
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Merge", func(t *testing.T) {
		store, mock := setupPostgres(t)
		mock.ExpectQuery(upsertMerge).
			WithArgs(path, `{"tier":"Gold"}`).
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(4))
		mock.ExpectExec(notifyChange).WithArgs(testChannel, path).WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.Set(ctx, path, json.RawMessage(`{"tier":"Gold"}`), docstore.SetOptions{Merge: true})

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Write Error", func(t *testing.T) {
		store, mock := setupPostgres(t)
		dbErr := errors.New("disk full")
		mock.ExpectQuery(upsertReplace).WithArgs(path, `{"points":10}`).WillReturnError(dbErr)

		err := store.Set(ctx, path, json.RawMessage(`{"points":10}`), docstore.SetOptions{})

		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_CompareAndSet(t *testing.T) {
	ctx := t.Context()
	path := docstore.RewardsPath("u1")
	body := json.RawMessage(`{"points":0}`)

	t.Run("Insert when absent", func(t *testing.T) {
		store, mock := setupPostgres(t)
		mock.ExpectExec(insertAbsent).WithArgs(path, string(body)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(notifyChange).WithArgs(testChannel, path).WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.CompareAndSet(ctx, path, 0, body)

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Insert conflicts when present", func(t *testing.T) {
		store, mock := setupPostgres(t)
		mock.ExpectExec(insertAbsent).WithArgs(path, string(body)).WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.CompareAndSet(ctx, path, 0, body)

		assert.ErrorIs(t, err, docstore.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Versioned update", func(t *testing.T) {
		store, mock := setupPostgres(t)
		mock.ExpectExec(updateVersion).WithArgs(path, string(body), int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(notifyChange).WithArgs(testChannel, path).WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.CompareAndSet(ctx, path, 7, body)

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Stale version", func(t *testing.T) {
		store, mock := setupPostgres(t)
		mock.ExpectExec(updateVersion).WithArgs(path, string(body), int64(7)).WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.CompareAndSet(ctx, path, 7, body)

		assert.ErrorIs(t, err, docstore.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_Subscribe(t *testing.T) {
	ctx := t.Context()
	path := docstore.CartPath("u1")

	// Arrange
	store, mock := setupPostgres(t)
	mock.ExpectQuery(selectDocument).WithArgs(path).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(upsertReplace).
		WithArgs(path, `{"items":[]}`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
	mock.ExpectExec(notifyChange).WithArgs(testChannel, path).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(selectDocument).WithArgs(path).
		WillReturnRows(sqlmock.NewRows([]string{"data", "version"}).AddRow([]byte(`{"items":[]}`), 1))

	var seen []*docstore.Document

	// Act
	unsubscribe, err := store.Subscribe(ctx, path, func(doc *docstore.Document) {
		seen = append(seen, doc)
	})
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, path, json.RawMessage(`{"items":[]}`), docstore.SetOptions{}))
	unsubscribe()

	// Assert
	require.Len(t, seen, 2)
	assert.Nil(t, seen[0])
	assert.Equal(t, int64(1), seen[1].Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}
