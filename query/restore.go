package query

import (
	"gqm/data/db/dialect"
	dbsql "gqm/data/db/sql"
)

// RestoreQuery 读取 bean 的查询委托
type RestoreQuery struct {
	base    state
	current state
}

// NewRestoreQuery 创建以 table 为基础的读取查询
func NewRestoreQuery(table string) *RestoreQuery {
	s := state{table: table}
	return &RestoreQuery{base: s, current: s.clone()}
}

// Table 返回主表
func (q *RestoreQuery) Table() string { return q.current.table }

// Fields 设置读取的列；为空时读取主表全部列
func (q *RestoreQuery) Fields(columns ...string) *RestoreQuery {
	q.current.fields = append(q.current.fields, columns...)
	return q
}

// Distinct 去重
func (q *RestoreQuery) Distinct() *RestoreQuery {
	q.current.distinct = true
	return q
}

// InnerJoin 内连接
func (q *RestoreQuery) InnerJoin(table, on string, args ...any) *RestoreQuery {
	q.current.joins = append(q.current.joins, joinClause{kind: dbsql.JoinInner, table: table, on: on, args: args})
	return q
}

// LeftJoin 左连接
func (q *RestoreQuery) LeftJoin(table, on string, args ...any) *RestoreQuery {
	q.current.joins = append(q.current.joins, joinClause{kind: dbsql.JoinLeft, table: table, on: on, args: args})
	return q
}

// Where 追加原始条件，多个条件以 AND 连接
func (q *RestoreQuery) Where(cond string, args ...any) *RestoreQuery {
	q.current.addWhere(cond, args)
	return q
}

// WhereEq 追加 column = value；value 为 nil 时生成 IS NULL
func (q *RestoreQuery) WhereEq(column string, value any) *RestoreQuery {
	if value == nil {
		q.current.addCondition(column, "IS NULL", nil)
		return q
	}
	q.current.addCondition(column, "=", []any{value})
	return q
}

// WhereOp 追加 column op value（op 如 <>、<、>=、LIKE）
func (q *RestoreQuery) WhereOp(column, op string, value any) *RestoreQuery {
	q.current.addCondition(column, op, []any{value})
	return q
}

// WhereIn 追加 column IN (...)；值为空时条件恒假
func (q *RestoreQuery) WhereIn(column string, values ...any) *RestoreQuery {
	q.current.addCondition(column, "IN", values)
	return q
}

// OrderBy 追加排序列
func (q *RestoreQuery) OrderBy(column string, desc bool) *RestoreQuery {
	q.current.orders = append(q.current.orders, order{column: column, desc: desc})
	return q
}

// Limit 限制行数，0 表示不限制
func (q *RestoreQuery) Limit(n int) *RestoreQuery {
	q.current.limit = n
	return q
}

// Offset 跳过行数
func (q *RestoreQuery) Offset(n int) *RestoreQuery {
	q.current.offset = n
	return q
}

// Clear 恢复为基础查询
func (q *RestoreQuery) Clear() *RestoreQuery {
	q.current = q.base.clone()
	return q
}

// Clone 返回独立副本（基础查询与当前状态都被复制）
func (q *RestoreQuery) Clone() *RestoreQuery {
	return &RestoreQuery{base: q.base.clone(), current: q.current.clone()}
}

// Build 按方言生成 SELECT 语句
func (q *RestoreQuery) Build(d dialect.Dialect) (string, []any) {
	s := q.current
	cols := s.fields
	if len(cols) == 0 {
		cols = []string{d.QuoteIdentifier(s.table) + ".*"}
	}
	b := s.selectBuilder(d, cols...)
	if s.distinct {
		b.Distinct()
	}
	b.OrderBy(s.orderExpr(d))
	if s.limit > 0 {
		b.Limit(s.limit)
	}
	if s.offset > 0 {
		b.Offset(s.offset)
	}
	return b.Build()
}

// CountQuery 返回条件相同的计数查询
func (q *RestoreQuery) CountQuery() *CountQuery {
	c := &CountQuery{base: q.base.clone(), current: q.current.clone()}
	c.current.orders = nil
	c.current.limit, c.current.offset = 0, 0
	return c
}
