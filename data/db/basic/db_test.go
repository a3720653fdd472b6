package basic

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "gqm/data/db"
	"gqm/data/db/dialect"
	"gqm/errors"
)

func TestOpen_SQLiteMemory(t *testing.T) {
	d, err := Open(core.DBConfig{Driver: "sqlite", Database: ":memory:"})
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, "sqlite", d.GetDialectName())
	assert.Equal(t, dialect.NameSQLite, d.Dialect().Name())

	ctx := context.Background()
	_, err = d.Exec(ctx, "CREATE TABLE person (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)

	tx, err := d.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, "INSERT INTO person (id, name) VALUES (?, ?)", 1, "Alice")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	var n int
	require.NoError(t, d.QueryRow(ctx, "SELECT COUNT(*) FROM person").Scan(&n))
	assert.Equal(t, 0, n)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(core.DBConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestTx_NestedBeginUsesSavepoint(t *testing.T) {
	d, err := Open(core.DBConfig{Database: ":memory:"})
	require.NoError(t, err)
	defer d.Close()

	ctx := context.Background()
	_, err = d.Exec(ctx, "CREATE TABLE person (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)

	tx, err := d.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, "INSERT INTO person (id, name) VALUES (?, ?)", 1, "Alice")
	require.NoError(t, err)

	sp, err := tx.Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gqm_sp_1", sp.(*Tx).Savepoint())
	_, err = sp.Exec(ctx, "INSERT INTO person (id, name) VALUES (?, ?)", 1, "duplicate")
	require.Error(t, err)
	require.NoError(t, sp.Rollback())
	assert.ErrorIs(t, sp.Rollback(), sql.ErrTxDone)

	sp2, err := tx.Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gqm_sp_2", sp2.(*Tx).Savepoint())
	_, err = sp2.Exec(ctx, "INSERT INTO person (id, name) VALUES (?, ?)", 2, "Bob")
	require.NoError(t, err)
	require.NoError(t, sp2.Commit())
	require.NoError(t, tx.Commit())

	_, err = tx.Begin(ctx)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeDatabase))

	var n int
	require.NoError(t, d.QueryRow(ctx, "SELECT COUNT(*) FROM person").Scan(&n))
	assert.Equal(t, 2, n)
}

func TestDataSourceName(t *testing.T) {
	pg := dataSourceName(dialect.New("postgres"), core.DBConfig{
		Host: "localhost", Port: 5432, Database: "gqm", Username: "u", Password: "p",
	})
	assert.Equal(t, "postgres://u:p@localhost:5432/gqm?sslmode=disable", pg)

	my := dataSourceName(dialect.New("mysql"), core.DBConfig{
		Host: "db", Port: 3306, Database: "gqm", Username: "root", Password: "secret", ParseTime: true,
	})
	assert.Contains(t, my, "root:secret@tcp(db:3306)/gqm")
	assert.Contains(t, my, "parseTime=true")

	assert.Equal(t, ":memory:", dataSourceName(dialect.New("sqlite"), core.DBConfig{}))
	assert.Equal(t, "app.db?_pragma=foreign_keys(1)", dataSourceName(dialect.New("sqlite"), core.DBConfig{Database: "app.db"}))
}
