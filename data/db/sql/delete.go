package sql

import (
	"context"
	"database/sql"
	"strings"

	core "gqm/data/db"
	"gqm/data/db/dialect"
)

type deleteBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	table string
	where []string
	args  []any
	limit int
}

func (b *deleteBuilder) Where(cond string, args ...any) IDeleteBuilder {
	if cond != "" {
		b.where = append(b.where, cond)
		b.args = append(b.args, args...)
	}
	return b
}

// Limit 只在支持 DELETE ... LIMIT 的方言上生效
func (b *deleteBuilder) Limit(n int) IDeleteBuilder {
	b.limit = n
	return b
}

func (b *deleteBuilder) Build() (string, []any) {
	return mustBuild(b.build())
}

func (b *deleteBuilder) build() (string, []any, error) {
	if err := CheckIdentifier("table", b.table); err != nil {
		return "", nil, err
	}

	q := "DELETE FROM " + b.dialect.QuoteIdentifier(b.table)
	args := append(make([]any, 0, len(b.args)+1), b.args...)
	if len(b.where) > 0 {
		q += " WHERE " + strings.Join(b.where, " AND ")
	}
	if b.limit > 0 && b.dialect.SupportsDeleteLimit() {
		q += " LIMIT ?"
		args = append(args, b.limit)
	}
	return q, args, nil
}

func (b *deleteBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args, err := b.build()
	if err != nil {
		return nil, err
	}
	return exec(ctx, b.db, q, args)
}
