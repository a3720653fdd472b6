package query

import (
	"gqm/data/db/dialect"
	dbsql "gqm/data/db/sql"
)

// CountQuery 计数查询委托
type CountQuery struct {
	base    state
	current state
}

// NewCountQuery 创建以 table 为基础的计数查询
func NewCountQuery(table string) *CountQuery {
	s := state{table: table}
	return &CountQuery{base: s, current: s.clone()}
}

func (q *CountQuery) Table() string { return q.current.table }

// Distinct 计数时按 column 去重
func (q *CountQuery) Distinct(column string) *CountQuery {
	q.current.distinct = true
	q.current.fields = []string{column}
	return q
}

func (q *CountQuery) InnerJoin(table, on string, args ...any) *CountQuery {
	q.current.joins = append(q.current.joins, joinClause{kind: dbsql.JoinInner, table: table, on: on, args: args})
	return q
}

func (q *CountQuery) Where(cond string, args ...any) *CountQuery {
	q.current.addWhere(cond, args)
	return q
}

func (q *CountQuery) WhereEq(column string, value any) *CountQuery {
	if value == nil {
		q.current.addCondition(column, "IS NULL", nil)
		return q
	}
	q.current.addCondition(column, "=", []any{value})
	return q
}

func (q *CountQuery) WhereOp(column, op string, value any) *CountQuery {
	q.current.addCondition(column, op, []any{value})
	return q
}

func (q *CountQuery) WhereIn(column string, values ...any) *CountQuery {
	q.current.addCondition(column, "IN", values)
	return q
}

func (q *CountQuery) Clear() *CountQuery {
	q.current = q.base.clone()
	return q
}

func (q *CountQuery) Clone() *CountQuery {
	return &CountQuery{base: q.base.clone(), current: q.current.clone()}
}

// Build 按方言生成 SELECT COUNT 语句
func (q *CountQuery) Build(d dialect.Dialect) (string, []any) {
	s := q.current
	expr := "COUNT(*)"
	if s.distinct && len(s.fields) == 1 {
		expr = "COUNT(DISTINCT " + d.QuoteIdentifier(s.fields[0]) + ")"
	}
	return s.selectBuilder(d, expr).Build()
}
