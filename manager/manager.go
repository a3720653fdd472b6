// Package manager 实现泛型查询管理器
//
// 管理器把结构体（bean）映射到关系表，负责插入、更新、保存、删除、读取与计数，
// 并按属性上的关系声明级联处理 many-to-one、many-to-many 与 many-to-one-association：
//
//	reg, _ := manager.NewRegistry(db)
//	people, _ := manager.Of[Person](reg)
//	_ = people.Install(ctx)
//	id, _ := people.Save(ctx, &Person{Name: "Alice"})
//	p, _ := people.Restore(ctx, id)
//
// 每个多步操作在一个事务中完成；context 中已有事务（db.WithTx）时加入该事务。
// 操作结果使用约定值表示“未完成”：标识为 -1、删除为 false、读取为 nil；
// 只有配置、关系声明与数据库执行失败才返回 error。
package manager

import (
	"context"
	"reflect"

	"go.opentelemetry.io/otel/attribute"

	"gqm/errors"
	"gqm/query"
	"gqm/schema"
)

// Unassigned 未保存 bean 的标识，也是插入/更新/保存未完成时的返回值
const Unassigned int64 = -1

// GenericQueryManager 单个 bean 类型在一张表上的管理器
type GenericQueryManager[T any] interface {
	Install(ctx context.Context) error
	Remove(ctx context.Context) error

	Save(ctx context.Context, bean *T) (int64, error)
	Insert(ctx context.Context, bean *T) (int64, error)
	Update(ctx context.Context, bean *T) (int64, error)

	Delete(ctx context.Context, id int64) (bool, error)
	DeleteQuery(ctx context.Context, q *query.DeleteQuery) (bool, error)

	Restore(ctx context.Context, id int64) (*T, error)
	RestoreFirst(ctx context.Context, q *query.RestoreQuery) (*T, error)
	RestoreAll(ctx context.Context) ([]*T, error)
	RestoreQuery(ctx context.Context, q *query.RestoreQuery) ([]*T, error)
	RestoreEach(ctx context.Context, q *query.RestoreQuery, fn func(bean *T) bool) error

	Count(ctx context.Context) (int64, error)
	CountQuery(ctx context.Context, q *query.CountQuery) (int64, error)

	Validate(ctx context.Context, bean *T) (bool, error)

	GetRestoreQuery() *query.RestoreQuery
	GetRestoreQueryByID(id int64) *query.RestoreQuery
	GetCountQuery() *query.CountQuery
	GetDeleteQuery() *query.DeleteQuery
	GetDeleteQueryByID(id int64) *query.DeleteQuery

	AddListener(l Listener[T])
	RemoveListeners()

	CreateNewManager(t reflect.Type) (*Dynamic, error)

	Table() string
	IdentifierName() string
	IdentifierColumn() string
	Schema() *schema.Bean
}

// Manager GenericQueryManager 的实现，通过 Register / Of 获得
type Manager[T any] struct {
	e *engine
}

var _ GenericQueryManager[struct{ ID int64 }] = (*Manager[struct{ ID int64 }])(nil)

// Install 创建表、关联表与标识序列
func (m *Manager[T]) Install(ctx context.Context) (err error) {
	ctx, span := m.e.startSpan(ctx, "install")
	defer func() { m.e.endSpan(ctx, span, err) }()
	return m.e.install(ctx)
}

// Remove 删除表、关联表与标识序列
func (m *Manager[T]) Remove(ctx context.Context) (err error) {
	ctx, span := m.e.startSpan(ctx, "remove")
	defer func() { m.e.endSpan(ctx, span, err) }()
	return m.e.remove(ctx)
}

// Save 更新已存在的 bean，否则插入
//
// sparse 标识的 bean 先尝试插入（执行失败视为已存在），再更新。
func (m *Manager[T]) Save(ctx context.Context, bean *T) (id int64, err error) {
	ctx, span := m.e.startSpan(ctx, "save")
	defer func() { m.e.endSpan(ctx, span, err) }()
	ptr, err := m.e.checkBean(bean)
	if err != nil {
		return Unassigned, err
	}
	return m.e.save(ctx, ptr)
}

// Insert 插入 bean 并写回标识
func (m *Manager[T]) Insert(ctx context.Context, bean *T) (id int64, err error) {
	ctx, span := m.e.startSpan(ctx, "insert")
	defer func() { m.e.endSpan(ctx, span, err) }()
	ptr, err := m.e.checkBean(bean)
	if err != nil {
		return Unassigned, err
	}
	id, _, err = m.e.insertChain(ctx, ptr)
	return id, err
}

// Update 按标识更新；没有对应行时返回 -1
func (m *Manager[T]) Update(ctx context.Context, bean *T) (id int64, err error) {
	ctx, span := m.e.startSpan(ctx, "update")
	defer func() { m.e.endSpan(ctx, span, err) }()
	ptr, err := m.e.checkBean(bean)
	if err != nil {
		return Unassigned, err
	}
	id, _, err = m.e.updateChain(ctx, ptr)
	return id, err
}

// Delete 删除标识为 id 的行及其关联行，解除其他表对它的引用
func (m *Manager[T]) Delete(ctx context.Context, id int64) (deleted bool, err error) {
	ctx, span := m.e.startSpan(ctx, "delete", attribute.Int64("gqm.id", id))
	defer func() { m.e.endSpan(ctx, span, err) }()
	return m.e.delete(ctx, id)
}

// DeleteQuery 按查询删除，不级联、不调用钩子
func (m *Manager[T]) DeleteQuery(ctx context.Context, q *query.DeleteQuery) (deleted bool, err error) {
	ctx, span := m.e.startSpan(ctx, "delete_query")
	defer func() { m.e.endSpan(ctx, span, err) }()
	if q == nil {
		return false, errors.NewError(errors.ErrCodeInvalidInput, "manager: nil delete query")
	}
	return m.e.deleteByQuery(ctx, q)
}

// Restore 读取标识为 id 的 bean；不存在或被 afterRestore 排除时返回 nil
func (m *Manager[T]) Restore(ctx context.Context, id int64) (bean *T, err error) {
	ctx, span := m.e.startSpan(ctx, "restore", attribute.Int64("gqm.id", id))
	defer func() { m.e.endSpan(ctx, span, err) }()
	return m.one(m.e.first(ctx, m.e.restoreQueryByID(id)))
}

// RestoreFirst 读取查询的第一个 bean
func (m *Manager[T]) RestoreFirst(ctx context.Context, q *query.RestoreQuery) (bean *T, err error) {
	ctx, span := m.e.startSpan(ctx, "restore_first")
	defer func() { m.e.endSpan(ctx, span, err) }()
	return m.one(m.e.first(ctx, m.orAll(q)))
}

// RestoreAll 按标识顺序读取全部 bean
func (m *Manager[T]) RestoreAll(ctx context.Context) (beans []*T, err error) {
	ctx, span := m.e.startSpan(ctx, "restore_all")
	defer func() { m.e.endSpan(ctx, span, err) }()
	return m.many(m.e.all(ctx))
}

// RestoreQuery 读取查询的全部 bean
func (m *Manager[T]) RestoreQuery(ctx context.Context, q *query.RestoreQuery) (beans []*T, err error) {
	ctx, span := m.e.startSpan(ctx, "restore_query")
	defer func() { m.e.endSpan(ctx, span, err) }()
	return m.many(m.e.list(ctx, m.orAll(q)))
}

// RestoreEach 逐个处理读取到的 bean，fn 返回 false 时停止；q 为 nil 时读取全部
func (m *Manager[T]) RestoreEach(ctx context.Context, q *query.RestoreQuery, fn func(bean *T) bool) (err error) {
	ctx, span := m.e.startSpan(ctx, "restore_each")
	defer func() { m.e.endSpan(ctx, span, err) }()
	return m.e.each(ctx, m.orAll(q), func(ptr reflect.Value) bool {
		return fn(ptr.Interface().(*T))
	})
}

// Count 行数
func (m *Manager[T]) Count(ctx context.Context) (n int64, err error) {
	ctx, span := m.e.startSpan(ctx, "count")
	defer func() { m.e.endSpan(ctx, span, err) }()
	return m.e.count(ctx, m.e.countQuery())
}

// CountQuery 满足查询条件的行数
func (m *Manager[T]) CountQuery(ctx context.Context, q *query.CountQuery) (n int64, err error) {
	ctx, span := m.e.startSpan(ctx, "count_query")
	defer func() { m.e.endSpan(ctx, span, err) }()
	if q == nil {
		q = m.e.countQuery()
	}
	return m.e.count(ctx, q)
}

// Validate 检查 bean，验证错误记录在 bean 上（bean 需实现 validation.Validated）
func (m *Manager[T]) Validate(ctx context.Context, bean *T) (valid bool, err error) {
	ctx, span := m.e.startSpan(ctx, "validate")
	defer func() { m.e.endSpan(ctx, span, err) }()
	ptr, err := m.e.checkBean(bean)
	if err != nil {
		return false, err
	}
	return m.e.validate(ctx, ptr)
}

func (m *Manager[T]) GetRestoreQuery() *query.RestoreQuery { return m.e.restoreQuery() }

func (m *Manager[T]) GetRestoreQueryByID(id int64) *query.RestoreQuery {
	return m.e.restoreQueryByID(id)
}

func (m *Manager[T]) GetCountQuery() *query.CountQuery { return m.e.countQuery() }

func (m *Manager[T]) GetDeleteQuery() *query.DeleteQuery { return m.e.deleteQuery() }

func (m *Manager[T]) GetDeleteQueryByID(id int64) *query.DeleteQuery {
	return m.e.deleteQueryByID(id)
}

// AddListener 追加监听器，按添加顺序通知
func (m *Manager[T]) AddListener(l Listener[T]) {
	if l == nil {
		return
	}
	m.e.addListener(listenerAdapter[T]{l: l})
}

// AddEventListener 追加非泛型监听器
func (m *Manager[T]) AddEventListener(l EventListener) {
	m.e.addListener(l)
}

// RemoveListeners 移除本管理器的全部监听器（注册表级监听器不受影响）
func (m *Manager[T]) RemoveListeners() {
	m.e.removeListeners()
}

// CreateNewManager 同一注册表中另一个 bean 类型的管理器
func (m *Manager[T]) CreateNewManager(t reflect.Type) (*Dynamic, error) {
	return m.e.registry.Dynamic(t, "")
}

func (m *Manager[T]) Table() string            { return m.e.bean.Table }
func (m *Manager[T]) IdentifierName() string   { return m.e.bean.Identifier.Name }
func (m *Manager[T]) IdentifierColumn() string { return m.e.idColumn() }
func (m *Manager[T]) Schema() *schema.Bean     { return m.e.bean }

// Registry 管理器所属的注册表
func (m *Manager[T]) Registry() *Registry { return m.e.registry }

func (m *Manager[T]) orAll(q *query.RestoreQuery) *query.RestoreQuery {
	if q == nil {
		return m.e.restoreQuery().OrderBy(m.e.qualified(m.e.idColumn()), false)
	}
	return q
}

func (m *Manager[T]) one(v reflect.Value, err error) (*T, error) {
	if err != nil || !v.IsValid() {
		return nil, err
	}
	return v.Interface().(*T), nil
}

func (m *Manager[T]) many(values []reflect.Value, err error) ([]*T, error) {
	if err != nil {
		return nil, err
	}
	out := make([]*T, len(values))
	for i, v := range values {
		out[i] = v.Interface().(*T)
	}
	return out, nil
}
