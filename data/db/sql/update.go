package sql

import (
	"context"
	"database/sql"
	"strings"

	core "gqm/data/db"
	"gqm/data/db/dialect"
	"gqm/errors"
)

// assignment SET 子句的一项：列赋值或原始表达式
type assignment struct {
	column string
	expr   string
	args   []any
}

type updateBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	table     string
	sets      []assignment
	whereExpr []string
	whereArgs []any
}

func (b *updateBuilder) Set(col string, val any) IUpdateBuilder {
	if col != "" {
		b.sets = append(b.sets, assignment{column: col, args: []any{val}})
	}
	return b
}

func (b *updateBuilder) SetExpr(expr string, args ...any) IUpdateBuilder {
	if expr != "" {
		b.sets = append(b.sets, assignment{expr: expr, args: args})
	}
	return b
}

func (b *updateBuilder) Where(cond string, args ...any) IUpdateBuilder {
	if cond != "" {
		b.whereExpr = append(b.whereExpr, cond)
		b.whereArgs = append(b.whereArgs, args...)
	}
	return b
}

func (b *updateBuilder) Build() (string, []any) {
	return mustBuild(b.build())
}

// build 按调用顺序输出 SET 项，参数顺序与占位符一致
func (b *updateBuilder) build() (string, []any, error) {
	if err := CheckIdentifier("table", b.table); err != nil {
		return "", nil, err
	}
	if len(b.sets) == 0 {
		return "", nil, errors.Newf(errors.ErrCodeInvalidInput, "sql: update %s without assignments", b.table)
	}

	var sb strings.Builder
	args := make([]any, 0, len(b.sets)+len(b.whereArgs))

	sb.WriteString("UPDATE ")
	sb.WriteString(b.dialect.QuoteIdentifier(b.table))
	sb.WriteString(" SET ")
	for i, s := range b.sets {
		if i > 0 {
			sb.WriteString(", ")
		}
		if s.column != "" {
			if err := CheckIdentifier("column", s.column); err != nil {
				return "", nil, err
			}
			sb.WriteString(b.dialect.QuoteIdentifier(s.column))
			sb.WriteString(" = ?")
		} else {
			sb.WriteString(s.expr)
		}
		args = append(args, s.args...)
	}

	if len(b.whereExpr) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.whereExpr, " AND "))
		args = append(args, b.whereArgs...)
	}
	return sb.String(), args, nil
}

func (b *updateBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args, err := b.build()
	if err != nil {
		return nil, err
	}
	return exec(ctx, b.db, q, args)
}
