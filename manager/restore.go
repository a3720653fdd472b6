package manager

import (
	"context"
	"reflect"
	"strconv"
	"strings"

	"gqm/collection"
	core "gqm/data/db"
	"gqm/errors"
	"gqm/lazy"
	"gqm/query"
	"gqm/relation"
	"gqm/schema"
)

type restoreScopeKey struct{}

type scopeKey struct {
	table string
	id    int64
}

// restoreScope 一次 restore 调用中已读取的 bean，many-to-one 环路指回同一个实例
type restoreScope map[scopeKey]reflect.Value

func scopeOf(ctx context.Context) restoreScope {
	s, _ := ctx.Value(restoreScopeKey{}).(restoreScope)
	return s
}

func ensureScope(ctx context.Context) context.Context {
	if scopeOf(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, restoreScopeKey{}, restoreScope{})
}

func withoutScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, restoreScopeKey{}, restoreScope(nil))
}

// fetched 读取到的一行：已填充标量列的 bean 与对象 many-to-one 的外键（NULL 不记录）
type fetched struct {
	ptr reflect.Value
	fks map[*relation.ManyToOneDeclaration]any
}

// fetch 执行查询并读取全部行；随后的关联加载需要在结果集关闭之后进行
func (e *engine) fetch(ctx context.Context, q *query.RestoreQuery) ([]fetched, error) {
	text, args := q.Build(e.registry.dialect)
	rows, err := e.conn(ctx).Query(ctx, text, args...)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "restore "+e.bean.Table)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "restore "+e.bean.Table)
	}

	props := make(map[string]*schema.Property)
	for _, p := range e.bean.Columns() {
		props[strings.ToLower(p.Column)] = p
	}
	fkCols := make(map[string]*relation.ManyToOneDeclaration)
	for _, decl := range e.decls.ManyToOne {
		if !decl.Basic {
			fkCols[strings.ToLower(decl.ForeignKeyColumn)] = decl
		}
	}

	var out []fetched
	for rows.Next() {
		ptr := reflect.New(e.bean.Type)
		raws := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i, c := range cols {
			if p, ok := props[strings.ToLower(c)]; ok {
				dest[i] = schema.Scanner(p.Field(ptr.Elem()))
				continue
			}
			dest[i] = &raws[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.WrapDatabaseError(ctx, err, "scan "+e.bean.Table)
		}

		f := fetched{ptr: ptr, fks: make(map[*relation.ManyToOneDeclaration]any)}
		for i, c := range cols {
			if decl, ok := fkCols[strings.ToLower(c)]; ok && raws[i] != nil {
				if b, isBytes := raws[i].([]byte); isBytes {
					raws[i] = string(b)
				}
				f.fks[decl] = raws[i]
			}
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "restore "+e.bean.Table)
	}
	return out, nil
}

// populate 填充关系属性：many-to-one 立即加载或安装加载函数，集合属性安装代理
func (e *engine) populate(ctx context.Context, f fetched) error {
	id := e.identifierOf(f.ptr)
	if scope := scopeOf(ctx); scope != nil {
		scope[scopeKey{table: e.bean.Table, id: id}] = f.ptr
	}
	elem := f.ptr.Elem()

	for _, decl := range e.decls.ManyToOne {
		if decl.Basic {
			continue
		}
		raw, ok := f.fks[decl]
		if !ok {
			continue
		}
		assoc, err := e.related(decl.AssociationType, decl.AssociationTable)
		if err != nil {
			return err
		}
		field := decl.Property.Field(elem)

		if decl.Lazy {
			acc, _ := lazy.AccessorOf(field)
			if fk, isInt := toInt64(raw); isInt && e.registry.lazyManyToOne {
				column := decl.AssociationColumn
				acc.SetLoader(fk, func(ctx context.Context, _ int64) (any, error) {
					v, err := assoc.restoreReference(withoutScope(ctx), column, raw)
					if err != nil || !v.IsValid() {
						return nil, err
					}
					return v.Interface(), nil
				})
				continue
			}
			v, err := assoc.restoreReference(ctx, decl.AssociationColumn, raw)
			if err != nil {
				return err
			}
			if v.IsValid() {
				acc.SetAny(v.Interface())
			}
			continue
		}

		v, err := assoc.restoreReference(ctx, decl.AssociationColumn, raw)
		if err != nil {
			return err
		}
		if v.IsValid() {
			field.Set(v)
		}
	}

	// 代理在访问时才查询，此时事务通常已经结束
	detached := withoutScope(core.Detach(ctx))

	for _, decl := range e.decls.ManyToMany {
		assoc, err := e.related(decl.AssociationType, decl.AssociationTable)
		if err != nil {
			return err
		}
		acc, ok := collection.AccessorOf(decl.Property.Field(elem))
		if !ok {
			continue
		}
		assocID := assoc.qualified(assoc.idColumn())
		on := assoc.quote(decl.JoinTable+"."+decl.AssociationJoinColumn) + " = " + assoc.quote(assocID)
		q := assoc.restoreQuery().
			InnerJoin(decl.JoinTable, on).
			WhereEq(decl.JoinTable+"."+decl.JoinColumn, id).
			OrderBy(assocID, false)
		acc.SetLoader(detached, func(ctx context.Context) ([]any, error) {
			return assoc.restoreAny(ctx, q)
		})
	}

	for _, decl := range e.decls.ManyToOneAssociation {
		main, err := e.related(decl.MainType, decl.MainBean.Table)
		if err != nil {
			return err
		}
		acc, ok := collection.AccessorOf(decl.Property.Field(elem))
		if !ok {
			continue
		}
		md := decl.MainDeclaration
		q := main.restoreQuery().
			WhereEq(main.qualified(md.ForeignKeyColumn), e.referenceValue(f.ptr, md.AssociationColumn)).
			OrderBy(main.qualified(main.idColumn()), false)
		acc.SetLoader(detached, func(ctx context.Context) ([]any, error) {
			return main.restoreAny(ctx, q)
		})
	}
	return nil
}

// restoreReference 读取 column = raw 的第一行；按标识引用且本次已读取时直接复用
func (e *engine) restoreReference(ctx context.Context, column string, raw any) (reflect.Value, error) {
	if column == e.idColumn() {
		if id, ok := toInt64(raw); ok {
			if v, ok := scopeOf(ctx)[scopeKey{table: e.bean.Table, id: id}]; ok {
				return v, nil
			}
		}
	}
	return e.first(ctx, e.restoreQuery().WhereEq(e.qualified(column), raw))
}

// each 读取、填充并逐个交给 fn；afterRestore 返回 false 的实例被跳过，fn 返回 false 时停止
func (e *engine) each(ctx context.Context, q *query.RestoreQuery, fn func(ptr reflect.Value) bool) error {
	ctx = ensureScope(ctx)
	rows, err := e.fetch(ctx, q)
	if err != nil {
		return err
	}
	hooks := e.callbacks()
	for _, f := range rows {
		if err := e.populate(ctx, f); err != nil {
			return err
		}
		e.fire(ctx, EventRestored, e.identifierOf(f.ptr), f.ptr)
		if !hooks.afterRestore(ctx, f.ptr) {
			continue
		}
		if !fn(f.ptr) {
			return nil
		}
	}
	return nil
}

func (e *engine) list(ctx context.Context, q *query.RestoreQuery) ([]reflect.Value, error) {
	var out []reflect.Value
	err := e.each(ctx, q, func(ptr reflect.Value) bool {
		out = append(out, ptr)
		return true
	})
	return out, err
}

func (e *engine) restoreAny(ctx context.Context, q *query.RestoreQuery) ([]any, error) {
	values, err := e.list(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v.Interface()
	}
	return out, nil
}

// first 第一个未被 afterRestore 排除的实例；没有时返回无效值
func (e *engine) first(ctx context.Context, q *query.RestoreQuery) (reflect.Value, error) {
	var found reflect.Value
	err := e.each(ctx, q.Clone().Limit(1), func(ptr reflect.Value) bool {
		found = ptr
		return false
	})
	return found, err
}

func (e *engine) all(ctx context.Context) ([]reflect.Value, error) {
	return e.list(ctx, e.restoreQuery().OrderBy(e.qualified(e.idColumn()), false))
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint32:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
