package sql

import (
	"context"
	"database/sql"
	"strings"

	core "gqm/data/db"
	"gqm/data/db/dialect"
	"gqm/errors"
)

type insertBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	table   string
	columns []string
	rows    [][]any
}

func (b *insertBuilder) Columns(cols ...string) IInsertBuilder {
	b.columns = cols
	return b
}

func (b *insertBuilder) Values(vals ...any) IInsertBuilder {
	if len(vals) > 0 {
		b.rows = append(b.rows, vals)
	}
	return b
}

// Set 追加一列及其值，只用于单行插入
func (b *insertBuilder) Set(col string, val any) IInsertBuilder {
	b.columns = append(b.columns, col)
	if len(b.rows) == 0 {
		b.rows = append(b.rows, nil)
	}
	b.rows[0] = append(b.rows[0], val)
	return b
}

func (b *insertBuilder) Build() (string, []any) {
	return mustBuild(b.build())
}

func (b *insertBuilder) build() (string, []any, error) {
	if err := CheckIdentifier("table", b.table); err != nil {
		return "", nil, err
	}
	if len(b.columns) == 0 {
		return "", nil, errors.Newf(errors.ErrCodeInvalidInput, "sql: insert into %s without columns", b.table)
	}
	if len(b.rows) == 0 {
		return "", nil, errors.Newf(errors.ErrCodeInvalidInput, "sql: insert into %s without values", b.table)
	}
	if err := checkIdentifiers("column", b.columns); err != nil {
		return "", nil, err
	}

	quoted := make([]string, len(b.columns))
	for i, col := range b.columns {
		quoted[i] = b.dialect.QuoteIdentifier(col)
	}
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(b.columns)), ", ") + ")"

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(b.dialect.QuoteIdentifier(b.table))
	sb.WriteString(" (")
	sb.WriteString(strings.Join(quoted, ", "))
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(b.rows)*len(b.columns))
	for i, vals := range b.rows {
		if len(vals) != len(b.columns) {
			return "", nil, errors.Newf(errors.ErrCodeInvalidInput,
				"sql: insert into %s row %d has %d values for %d columns", b.table, i, len(vals), len(b.columns))
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(row)
		args = append(args, vals...)
	}
	return sb.String(), args, nil
}

func (b *insertBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args, err := b.build()
	if err != nil {
		return nil, err
	}
	return exec(ctx, b.db, q, args)
}
