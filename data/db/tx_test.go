package db_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gqm/data/db"
	"gqm/data/db/basic"
	gqmerrors "gqm/errors"
)

func newMock(t *testing.T) (db.IDatabase, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return basic.Wrap(conn, "sqlite"), mock
}

func TestInTransaction_Commit(t *testing.T) {
	database, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO person").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := db.InTransaction(context.Background(), database, func(ctx context.Context) error {
		tx, ok := db.TxFrom(ctx)
		require.True(t, ok)
		_, err := tx.Exec(ctx, "INSERT INTO person (id) VALUES (?)", 1)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTransaction_RollbackOnError(t *testing.T) {
	database, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := db.InTransaction(context.Background(), database, func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTransaction_BeginAndCommitFailures(t *testing.T) {
	t.Run("begin", func(t *testing.T) {
		database, mock := newMock(t)
		refused := errors.New("connection refused")
		mock.ExpectBegin().WillReturnError(refused)

		called := false
		err := db.InTransaction(context.Background(), database, func(ctx context.Context) error {
			called = true
			return nil
		})
		assert.False(t, called)
		assert.ErrorIs(t, err, refused)
		assert.True(t, gqmerrors.IsDatabase(err))
		assert.Contains(t, err.Error(), "begin transaction")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("commit", func(t *testing.T) {
		database, mock := newMock(t)
		busy := errors.New("database is locked")
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO person").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit().WillReturnError(busy)

		err := db.InTransaction(context.Background(), database, func(ctx context.Context) error {
			_, err := db.Conn(ctx, database).Exec(ctx, "INSERT INTO person (id) VALUES (?)", 1)
			return err
		})
		assert.ErrorIs(t, err, busy)
		assert.True(t, gqmerrors.IsDatabase(err))
		assert.Equal(t, gqmerrors.ErrCodeDatabase, gqmerrors.GetErrorCode(err))
		assert.Contains(t, err.Error(), "commit transaction")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestInTransaction_RollbackOnPanic(t *testing.T) {
	database, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = db.InTransaction(context.Background(), database, func(ctx context.Context) error {
			panic("kaboom")
		})
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTransaction_NestedJoinsOuter(t *testing.T) {
	database, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE person").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := db.InTransaction(context.Background(), database, func(ctx context.Context) error {
		outer, _ := db.TxFrom(ctx)
		return db.InTransaction(ctx, database, func(inner context.Context) error {
			tx, _ := db.TxFrom(inner)
			assert.Same(t, outer, tx)
			_, err := db.Conn(inner, database).Exec(inner, "UPDATE person SET name = ?", "x")
			return err
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDetachAndConn(t *testing.T) {
	database, mock := newMock(t)
	mock.ExpectBegin()
	tx, err := database.Begin(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(db.WithTx(context.Background(), tx))
	assert.Same(t, tx, db.Conn(ctx, database))

	detached := db.Detach(ctx)
	cancel()
	assert.NoError(t, detached.Err())
	_, ok := db.TxFrom(detached)
	assert.False(t, ok)
	assert.Same(t, database, db.Conn(detached, database))
}
