package query

import (
	"gqm/data/db/dialect"
	dbsql "gqm/data/db/sql"
)

// DeleteQuery 删除查询委托
type DeleteQuery struct {
	base    state
	current state
}

// NewDeleteQuery 创建以 table 为基础的删除查询
func NewDeleteQuery(table string) *DeleteQuery {
	s := state{table: table}
	return &DeleteQuery{base: s, current: s.clone()}
}

func (q *DeleteQuery) Table() string { return q.current.table }

func (q *DeleteQuery) Where(cond string, args ...any) *DeleteQuery {
	q.current.addWhere(cond, args)
	return q
}

func (q *DeleteQuery) WhereEq(column string, value any) *DeleteQuery {
	if value == nil {
		q.current.addCondition(column, "IS NULL", nil)
		return q
	}
	q.current.addCondition(column, "=", []any{value})
	return q
}

func (q *DeleteQuery) WhereOp(column, op string, value any) *DeleteQuery {
	q.current.addCondition(column, op, []any{value})
	return q
}

func (q *DeleteQuery) WhereIn(column string, values ...any) *DeleteQuery {
	q.current.addCondition(column, "IN", values)
	return q
}

func (q *DeleteQuery) Clear() *DeleteQuery {
	q.current = q.base.clone()
	return q
}

func (q *DeleteQuery) Clone() *DeleteQuery {
	return &DeleteQuery{base: q.base.clone(), current: q.current.clone()}
}

// Build 按方言生成 DELETE 语句
func (q *DeleteQuery) Build(d dialect.Dialect) (string, []any) {
	b := dbsql.NewBuilder(d).DeleteFrom(q.current.table)
	q.current.applyWhere(d, func(cond string, args ...any) { b.Where(cond, args...) })
	return b.Build()
}
