package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/sunup/pkg/apperr"
	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/storage"
	"github.com/platinummonkey/sunup/pkg/storage/storagetest"
)

func newMockStore(t *testing.T, maxRetries int) (*storage.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return storage.New(db, storage.Options{Driver: storage.DriverPostgres, MaxRetries: maxRetries}), mock
}

func TestWithTxRetriesSerializationFailure(t *testing.T) {
	store, mock := newMockStore(t, 2)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE pipeline_stages").WillReturnError(&pq.Error{Code: "40001"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE pipeline_stages").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	attempts := 0
	committed := 0
	err := store.WithTx(context.Background(), func(tx *storage.Tx) error {
		attempts++
		tx.AfterCommit(func() { committed++ })
		return tx.SetStageActive(context.Background(), "stage-1", false)
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, committed, "after-commit hooks of the failed attempt are discarded")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxGivesUpAfterMaxRetries(t *testing.T) {
	store, mock := newMockStore(t, 1)

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE pipeline_stages").WillReturnError(&pq.Error{Code: "40P01"})
		mock.ExpectRollback()
	}

	err := store.WithTx(context.Background(), func(tx *storage.Tx) error {
		return tx.SetStageActive(context.Background(), "stage-1", false)
	})

	require.Error(t, err)
	assert.True(t, storage.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxDoesNotRetryOtherErrors(t *testing.T) {
	store, mock := newMockStore(t, 3)

	mock.ExpectBegin()
	mock.ExpectRollback()

	attempts := 0
	err := store.WithTx(context.Background(), func(tx *storage.Tx) error {
		attempts++
		return apperr.Validation("bad input")
	})

	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Equal(t, 1, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	store, mock := newMockStore(t, 0)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = store.WithTx(context.Background(), func(tx *storage.Tx) error {
			panic("boom")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxCommitFailure(t *testing.T) {
	store, mock := newMockStore(t, 0)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("connection reset"))

	hookRan := false
	err := store.WithTx(context.Background(), func(tx *storage.Tx) error {
		tx.AfterCommit(func() { hookRan = true })
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to commit transaction")
	assert.False(t, hookRan)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, storage.IsRetryable(&pq.Error{Code: "40001"}))
	assert.True(t, storage.IsRetryable(&pq.Error{Code: "40P01"}))
	assert.False(t, storage.IsRetryable(&pq.Error{Code: "23505"}))
	assert.False(t, storage.IsRetryable(errors.New("plain")))
	assert.False(t, storage.IsRetryable(nil))
}

func TestSavepointKeepsOuterTransaction(t *testing.T) {
	store := storagetest.NewStore(t)
	ctx := context.Background()
	tenant := storagetest.Tenant(t, store, "Acme Solar")

	var person *models.Person
	err := store.WithTx(ctx, func(tx *storage.Tx) error {
		person = &models.Person{FirstName: "A", LastName: "B", Email: "a@example.com", TenantID: tenant.ID}
		if err := tx.CreatePerson(ctx, person); err != nil {
			return err
		}

		spErr := tx.Savepoint(ctx, "dup_person", func() error {
			dup := &models.Person{FirstName: "C", LastName: "D", Email: "a@example.com", TenantID: tenant.ID}
			return tx.CreatePerson(ctx, dup)
		})
		assert.ErrorIs(t, spErr, storage.ErrDuplicate)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, store.View(ctx, func(tx *storage.Tx) error {
		got, err := tx.GetPerson(ctx, person.ID)
		require.NoError(t, err)
		assert.Equal(t, "a@example.com", got.Email)
		return nil
	}))
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := storagetest.NewDB(t)
	require.NoError(t, storage.Migrate(context.Background(), db, nil))

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n))
	assert.Equal(t, len(storage.Migrations()), n)
}

func TestPendingMigrations(t *testing.T) {
	db := storagetest.NewDB(t)

	pending, err := storage.PendingMigrations(context.Background(), db)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = db.Exec("DELETE FROM schema_migrations WHERE version = 5")
	require.NoError(t, err)
	pending, err = storage.PendingMigrations(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, []int{5}, pending)
}
