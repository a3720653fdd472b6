package manager

import (
	"context"
	"reflect"

	"gqm/query"
	"gqm/schema"
)

// Dynamic 运行时才知道 bean 类型的管理器；bean 以 *T 形式的 any 传入和返回
//
// 与同一 (类型, 表) 的 Manager[T] 共享引擎、钩子与监听器。
type Dynamic struct {
	e *engine
}

func (d *Dynamic) Install(ctx context.Context) (err error) {
	ctx, span := d.e.startSpan(ctx, "install")
	defer func() { d.e.endSpan(ctx, span, err) }()
	return d.e.install(ctx)
}

func (d *Dynamic) Remove(ctx context.Context) (err error) {
	ctx, span := d.e.startSpan(ctx, "remove")
	defer func() { d.e.endSpan(ctx, span, err) }()
	return d.e.remove(ctx)
}

func (d *Dynamic) Save(ctx context.Context, bean any) (id int64, err error) {
	ctx, span := d.e.startSpan(ctx, "save")
	defer func() { d.e.endSpan(ctx, span, err) }()
	ptr, err := d.e.checkBean(bean)
	if err != nil {
		return Unassigned, err
	}
	return d.e.save(ctx, ptr)
}

func (d *Dynamic) Insert(ctx context.Context, bean any) (id int64, err error) {
	ctx, span := d.e.startSpan(ctx, "insert")
	defer func() { d.e.endSpan(ctx, span, err) }()
	ptr, err := d.e.checkBean(bean)
	if err != nil {
		return Unassigned, err
	}
	id, _, err = d.e.insertChain(ctx, ptr)
	return id, err
}

func (d *Dynamic) Update(ctx context.Context, bean any) (id int64, err error) {
	ctx, span := d.e.startSpan(ctx, "update")
	defer func() { d.e.endSpan(ctx, span, err) }()
	ptr, err := d.e.checkBean(bean)
	if err != nil {
		return Unassigned, err
	}
	id, _, err = d.e.updateChain(ctx, ptr)
	return id, err
}

func (d *Dynamic) Delete(ctx context.Context, id int64) (deleted bool, err error) {
	ctx, span := d.e.startSpan(ctx, "delete")
	defer func() { d.e.endSpan(ctx, span, err) }()
	return d.e.delete(ctx, id)
}

// Restore 返回 *T 或 nil
func (d *Dynamic) Restore(ctx context.Context, id int64) (bean any, err error) {
	ctx, span := d.e.startSpan(ctx, "restore")
	defer func() { d.e.endSpan(ctx, span, err) }()
	v, err := d.e.first(ctx, d.e.restoreQueryByID(id))
	if err != nil || !v.IsValid() {
		return nil, err
	}
	return v.Interface(), nil
}

func (d *Dynamic) RestoreQuery(ctx context.Context, q *query.RestoreQuery) (beans []any, err error) {
	ctx, span := d.e.startSpan(ctx, "restore_query")
	defer func() { d.e.endSpan(ctx, span, err) }()
	if q == nil {
		q = d.e.restoreQuery().OrderBy(d.e.qualified(d.e.idColumn()), false)
	}
	return d.e.restoreAny(ctx, q)
}

func (d *Dynamic) Count(ctx context.Context) (n int64, err error) {
	ctx, span := d.e.startSpan(ctx, "count")
	defer func() { d.e.endSpan(ctx, span, err) }()
	return d.e.count(ctx, d.e.countQuery())
}

func (d *Dynamic) Validate(ctx context.Context, bean any) (valid bool, err error) {
	ctx, span := d.e.startSpan(ctx, "validate")
	defer func() { d.e.endSpan(ctx, span, err) }()
	ptr, err := d.e.checkBean(bean)
	if err != nil {
		return false, err
	}
	return d.e.validate(ctx, ptr)
}

func (d *Dynamic) GetRestoreQuery() *query.RestoreQuery { return d.e.restoreQuery() }
func (d *Dynamic) GetCountQuery() *query.CountQuery     { return d.e.countQuery() }
func (d *Dynamic) GetDeleteQuery() *query.DeleteQuery   { return d.e.deleteQuery() }

func (d *Dynamic) AddEventListener(l EventListener) { d.e.addListener(l) }
func (d *Dynamic) RemoveListeners()                 { d.e.removeListeners() }

func (d *Dynamic) Type() reflect.Type   { return d.e.bean.Type }
func (d *Dynamic) Table() string        { return d.e.bean.Table }
func (d *Dynamic) Schema() *schema.Bean { return d.e.bean }

// New 返回新的 *T
func (d *Dynamic) New() any { return reflect.New(d.e.bean.Type).Interface() }
