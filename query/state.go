// Package query 提供管理器使用的查询委托
//
// RestoreQuery / CountQuery / DeleteQuery 包装一个基础查询（通常只限定了表名），
// 在其上以流式方式追加条件。Clear 将委托恢复为基础查询，Clone 返回独立副本。
// 语句在执行时按方言生成，同一个委托可以在不同数据库上使用。
package query

import (
	"slices"
	"strings"

	"gqm/data/db/dialect"
	dbsql "gqm/data/db/sql"
)

type condition struct {
	column string // 非空时为结构化条件，生成时按方言转义
	op     string
	raw    string
	args   []any
}

func (c condition) expr(d dialect.Dialect) string {
	if c.column == "" {
		return c.raw
	}
	col := d.QuoteIdentifier(c.column)
	switch c.op {
	case "IN":
		if len(c.args) == 0 {
			return "1 = 0"
		}
		return col + " IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(c.args)), ", ") + ")"
	case "IS NULL", "IS NOT NULL":
		return col + " " + c.op
	default:
		return col + " " + c.op + " ?"
	}
}

type joinClause struct {
	kind  dbsql.JoinKind
	table string
	on    string
	args  []any
}

type order struct {
	column string
	desc   bool
}

// state 查询的可变部分
type state struct {
	table    string
	fields   []string
	distinct bool
	joins    []joinClause
	where    []condition
	orders   []order
	limit    int
	offset   int
}

func (s state) clone() state {
	c := s
	c.fields = slices.Clone(s.fields)
	c.joins = slices.Clone(s.joins)
	c.where = slices.Clone(s.where)
	c.orders = slices.Clone(s.orders)
	return c
}

func (s *state) addWhere(raw string, args []any) {
	if raw == "" {
		return
	}
	s.where = append(s.where, condition{raw: raw, args: args})
}

func (s *state) addCondition(column, op string, args []any) {
	s.where = append(s.where, condition{column: column, op: op, args: args})
}

func (s state) applyWhere(d dialect.Dialect, add func(cond string, args ...any)) {
	for _, c := range s.where {
		add(c.expr(d), c.args...)
	}
}

func (s state) orderExpr(d dialect.Dialect) string {
	if len(s.orders) == 0 {
		return ""
	}
	parts := make([]string, 0, len(s.orders))
	for _, o := range s.orders {
		part := d.QuoteIdentifier(o.column)
		if o.desc {
			part += " DESC"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ", ")
}

func (s state) selectBuilder(d dialect.Dialect, cols ...string) dbsql.ISelectBuilder {
	b := dbsql.NewBuilder(d).Select(cols...).From(s.table)
	for _, j := range s.joins {
		b.Join(j.kind, j.table, j.on, j.args...)
	}
	s.applyWhere(d, func(cond string, args ...any) { b.Where(cond, args...) })
	return b
}
