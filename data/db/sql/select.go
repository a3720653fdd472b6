package sql

import (
	"context"
	"math"
	"strings"

	core "gqm/data/db"
	"gqm/data/db/dialect"
)

// JoinKind 连接类型
type JoinKind string

const (
	JoinInner JoinKind = "INNER JOIN"
	JoinLeft  JoinKind = "LEFT JOIN"
)

type join struct {
	kind  JoinKind
	table string
	on    string
	args  []any
}

type selectBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	cols     []string
	distinct bool
	table    string
	joins    []join
	where    []string
	args     []any
	groupBy  []string
	orderBy  string
	limit    int
	offset   int
}

func (b *selectBuilder) Distinct() ISelectBuilder {
	b.distinct = true
	return b
}

func (b *selectBuilder) From(table string) ISelectBuilder {
	b.table = table
	return b
}

func (b *selectBuilder) Join(kind JoinKind, table string, on string, args ...any) ISelectBuilder {
	if table == "" {
		return b
	}
	b.joins = append(b.joins, join{kind: kind, table: table, on: on, args: args})
	return b
}

func (b *selectBuilder) InnerJoin(table string, on string, args ...any) ISelectBuilder {
	return b.Join(JoinInner, table, on, args...)
}

func (b *selectBuilder) LeftJoin(table string, on string, args ...any) ISelectBuilder {
	return b.Join(JoinLeft, table, on, args...)
}

func (b *selectBuilder) Where(cond string, args ...any) ISelectBuilder {
	if cond != "" {
		b.where = append(b.where, cond)
		b.args = append(b.args, args...)
	}
	return b
}

func (b *selectBuilder) And(cond string, args ...any) ISelectBuilder {
	return b.Where(cond, args...)
}

func (b *selectBuilder) Or(cond string, args ...any) ISelectBuilder {
	if cond == "" {
		return b
	}
	if len(b.where) == 0 {
		return b.Where(cond, args...)
	}
	last := b.where[len(b.where)-1]
	b.where[len(b.where)-1] = "(" + last + " OR " + cond + ")"
	b.args = append(b.args, args...)
	return b
}

func (b *selectBuilder) GroupBy(cols ...string) ISelectBuilder {
	if len(cols) > 0 {
		b.groupBy = append(b.groupBy, cols...)
	}
	return b
}

func (b *selectBuilder) OrderBy(expr string) ISelectBuilder {
	if expr != "" {
		b.orderBy = expr
	}
	return b
}

func (b *selectBuilder) Limit(n int) ISelectBuilder {
	b.limit = n
	return b
}

func (b *selectBuilder) Offset(n int) ISelectBuilder {
	b.offset = n
	return b
}

func (b *selectBuilder) Build() (string, []any) {
	return mustBuild(b.build())
}

func (b *selectBuilder) build() (string, []any, error) {
	if err := CheckIdentifier("table", b.table); err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if b.distinct {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(strings.Join(b.cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(b.dialect.QuoteIdentifier(b.table))

	// 使用局部 args 副本，避免在多次 Build 调用之间污染 builder 状态。
	args := make([]any, 0, len(b.args)+2)

	for _, j := range b.joins {
		if err := CheckIdentifier("join table", j.table); err != nil {
			return "", nil, err
		}
		sb.WriteString(" ")
		sb.WriteString(string(j.kind))
		sb.WriteString(" ")
		sb.WriteString(b.dialect.QuoteIdentifier(j.table))
		if j.on != "" {
			sb.WriteString(" ON ")
			sb.WriteString(j.on)
		}
		args = append(args, j.args...)
	}

	if len(b.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.where, " AND "))
		args = append(args, b.args...)
	}
	if len(b.groupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(b.groupBy, ", "))
	}
	if b.orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(b.orderBy)
	}
	if b.limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, b.limit)
	}
	if b.offset > 0 {
		// MySQL/SQLite 的 OFFSET 必须跟在 LIMIT 之后
		if b.limit <= 0 && b.dialect.Name() != dialect.NamePostgres {
			sb.WriteString(" LIMIT ?")
			args = append(args, math.MaxInt32)
		}
		sb.WriteString(" OFFSET ?")
		args = append(args, b.offset)
	}
	return sb.String(), args, nil
}

func (b *selectBuilder) Query(ctx context.Context) (core.IRows, error) {
	if b.db == nil {
		return nil, errNoDatabase
	}
	q, args, err := b.build()
	if err != nil {
		return nil, err
	}
	return b.db.Query(ctx, q, args...)
}

func (b *selectBuilder) QueryRow(ctx context.Context) core.IRow {
	if b.db == nil {
		return errRow{err: errNoDatabase}
	}
	q, args, err := b.build()
	if err != nil {
		return errRow{err: err}
	}
	return b.db.QueryRow(ctx, q, args...)
}
