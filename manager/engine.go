package manager

import (
	"context"
	"reflect"
	"sync"

	core "gqm/data/db"
	dbsql "gqm/data/db/sql"
	"gqm/errors"
	"gqm/logging"
	"gqm/query"
	"gqm/relation"
	"gqm/schema"
)

// engine 一个 (bean 类型, 表) 的非泛型实现，Manager[T] 与 Dynamic 都委托给它
//
// bean 在内部始终以 *T 的 reflect.Value 传递。
type engine struct {
	registry *Registry
	bean     *schema.Bean
	decls    *relation.Declarations
	logger   logging.Logger

	mu        sync.RWMutex
	hooks     hookSet
	listeners []EventListener
}

// nilBean 没有 bean 的事件（installed / removed / deleted）
var nilBean reflect.Value

func newEngine(r *Registry, bean *schema.Bean, decls *relation.Declarations) *engine {
	return &engine{
		registry: r,
		bean:     bean,
		decls:    decls,
		logger:   r.logger.WithFields(logging.String("table", bean.Table)),
		hooks:    noHooks{},
	}
}

func (e *engine) setHooks(h hookSet) {
	e.mu.Lock()
	e.hooks = h
	e.mu.Unlock()
}

func (e *engine) callbacks() hookSet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.hooks
}

func (e *engine) addListener(l EventListener) {
	if l == nil {
		return
	}
	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	e.mu.Unlock()
}

func (e *engine) removeListeners() {
	e.mu.Lock()
	e.listeners = nil
	e.mu.Unlock()
}

// fire 按注册顺序通知管理器的监听器，然后是注册表级监听器
func (e *engine) fire(ctx context.Context, kind EventKind, id int64, bean reflect.Value) {
	e.mu.RLock()
	listeners := append([]EventListener(nil), e.listeners...)
	e.mu.RUnlock()

	event := Event{Kind: kind, Table: e.bean.Table, Type: e.bean.Type, ID: id}
	if bean.IsValid() {
		event.Bean = bean.Interface()
	}
	for _, l := range listeners {
		l.OnEvent(ctx, event)
	}
	for _, l := range e.registry.observers {
		l.OnEvent(ctx, event)
	}
}

// conn 返回 context 中的事务，没有事务时返回注册表的数据库
func (e *engine) conn(ctx context.Context) core.IDatabase {
	return core.Conn(ctx, e.registry.db)
}

func (e *engine) sql(ctx context.Context) dbsql.ISql {
	return dbsql.NewWithDialect(e.conn(ctx), e.registry.dialect)
}

func (e *engine) quote(name string) string {
	return e.registry.dialect.QuoteIdentifier(name)
}

func (e *engine) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return core.InTransaction(ctx, e.registry.db, fn)
}

func (e *engine) related(t reflect.Type, table string) (*engine, error) {
	return e.registry.engine(t, table)
}

func (e *engine) idColumn() string {
	return e.bean.Identifier.Column
}

// qualified 带表名的列，连接查询中使用
func (e *engine) qualified(column string) string {
	return e.bean.Table + "." + column
}

// unassigned 标识是否表示尚未保存：负数，或非 sparse 时的 0
func (e *engine) unassigned(id int64) bool {
	return id < 0 || (id == 0 && !e.bean.Sparse())
}

func (e *engine) identifierOf(ptr reflect.Value) int64 {
	return e.bean.IdentifierOf(ptr)
}

// checkBean 检查 v 是否为本引擎类型的非空 *T
func (e *engine) checkBean(v any) (reflect.Value, error) {
	ptr := reflect.ValueOf(v)
	if !ptr.IsValid() || ptr.Kind() != reflect.Pointer || ptr.IsNil() || ptr.Elem().Type() != e.bean.Type {
		return reflect.Value{}, errors.Newf(errors.ErrCodeInvalidInput, "manager %s: expected non-nil *%s, got %T",
			e.bean.Table, e.bean.Type.Name(), v)
	}
	return ptr, nil
}

// columnValue 读取 bean 上映射到 column 的属性值
func columnValue(bean *schema.Bean, ptr reflect.Value, column string) (any, bool) {
	for _, p := range bean.Properties {
		if p.Column == column && (p.Relation == schema.RelationNone || p.IsBasic()) {
			return schema.Value(p.Field(ptr.Elem())), true
		}
	}
	return nil, false
}

// referenceValue 其他表引用本 bean 时使用的值：column 为标识列时直接取标识
func (e *engine) referenceValue(ptr reflect.Value, column string) any {
	if column == e.idColumn() {
		return e.identifierOf(ptr)
	}
	v, _ := columnValue(e.bean, ptr, column)
	return v
}

func (e *engine) count(ctx context.Context, q *query.CountQuery) (int64, error) {
	text, args := q.Build(e.registry.dialect)
	var n int64
	if err := e.conn(ctx).QueryRow(ctx, text, args...).Scan(&n); err != nil {
		return 0, errors.WrapDatabaseError(ctx, err, "count "+q.Table())
	}
	return n, nil
}

func (e *engine) restoreQuery() *query.RestoreQuery {
	return query.NewRestoreQuery(e.bean.Table)
}

func (e *engine) restoreQueryByID(id int64) *query.RestoreQuery {
	return e.restoreQuery().WhereEq(e.qualified(e.idColumn()), id)
}

func (e *engine) countQuery() *query.CountQuery {
	return query.NewCountQuery(e.bean.Table)
}

func (e *engine) deleteQuery() *query.DeleteQuery {
	return query.NewDeleteQuery(e.bean.Table)
}

func (e *engine) deleteQueryByID(id int64) *query.DeleteQuery {
	return e.deleteQuery().WhereEq(e.idColumn(), id)
}
