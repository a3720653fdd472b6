package collection

import (
	"context"
	"reflect"
)

// Accessor 集合属性的非泛型视图
type Accessor interface {
	Kind() Kind
	ElemType() reflect.Type
	ItemsAny() []any
	SetItemsAny(items []any)
	SetLoader(ctx context.Context, load func(ctx context.Context) ([]any, error))
	Populated() bool
	Defined() bool
	Load(ctx context.Context) error
	Err() error
}

var (
	_ Accessor = (*Collection[struct{}])(nil)
	_ Accessor = (*List[struct{}])(nil)
	_ Accessor = (*Set[struct{}])(nil)
)

var pkgPath = reflect.TypeFor[Kind]().PkgPath()

// Describe 如果 t 是 Collection[E] / List[E] / Set[E] 之一则返回其种类与元素类型
func Describe(t reflect.Type) (Kind, reflect.Type, bool) {
	if t == nil || t.Kind() != reflect.Struct || t.PkgPath() != pkgPath {
		return 0, nil, false
	}
	a, ok := reflect.New(t).Interface().(Accessor)
	if !ok {
		return 0, nil, false
	}
	return a.Kind(), a.ElemType(), true
}

// AccessorOf 如果 field 是（可寻址的）集合字段则返回其非泛型视图
func AccessorOf(field reflect.Value) (Accessor, bool) {
	if !field.IsValid() || !field.CanAddr() {
		return nil, false
	}
	a, ok := field.Addr().Interface().(Accessor)
	return a, ok
}
