package sql

import (
	"context"
	"database/sql"

	core "gqm/data/db"
	"gqm/errors"
)

var errNoDatabase = errors.NewError(errors.ErrCodeConfiguration, "sql: builder is not bound to a database")

func exec(ctx context.Context, db core.IDatabase, query string, args []any) (sql.Result, error) {
	if db == nil {
		return nil, errNoDatabase
	}
	return db.Exec(ctx, query, args...)
}

type errRow struct{ err error }

func (r errRow) Scan(dest ...any) error { return r.err }
func (r errRow) Err() error             { return r.err }
