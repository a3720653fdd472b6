// Package lazy 提供延迟加载的 many-to-one 值
//
// 管理器启用延迟加载时，restore 只记录外键并安装加载函数，
// 第一次 Get 时才查询关联 bean：
//
//	type Employee struct {
//	    ID      int64
//	    Manager lazy.Value[Manager] `gqm:"manytoone"`
//	}
//
//	mgr, err := emp.Manager.Get(ctx)
package lazy

import (
	"context"
	"reflect"
)

// Loader 按标识加载关联 bean
type Loader func(ctx context.Context, id int64) (any, error)

// Value 延迟加载的关联值
//
// 状态：未设置 → 已安装加载函数（仅知道外键）→ 已加载。Set 直接进入已加载状态。
// 不是并发安全的。
type Value[T any] struct {
	id     int64
	hasID  bool
	value  *T
	loaded bool
	loader Loader
}

// Of 创建已加载的值
func Of[T any](v *T) Value[T] {
	return Value[T]{value: v, loaded: true}
}

// Get 返回关联 bean，必要时调用加载函数；外键为空时返回 nil
func (v *Value[T]) Get(ctx context.Context) (*T, error) {
	if v.loaded {
		return v.value, nil
	}
	if !v.hasID || v.loader == nil {
		return nil, nil
	}
	loaded, err := v.loader(ctx, v.id)
	if err != nil {
		return nil, err
	}
	v.loaded = true
	v.loader = nil
	if loaded != nil {
		v.value = loaded.(*T)
	}
	return v.value, nil
}

// Set 设置关联 bean；保存时按该 bean 的标识写入外键
func (v *Value[T]) Set(bean *T) {
	v.value = bean
	v.loaded = true
	v.hasID = false
	v.loader = nil
}

// Loaded 是否已加载（或已 Set）
func (v *Value[T]) Loaded() bool {
	return v.loaded
}

// Peek 返回当前值，不触发加载
func (v *Value[T]) Peek() *T {
	return v.value
}

// ID 返回安装加载函数时记录的外键
func (v *Value[T]) ID() (int64, bool) {
	return v.id, v.hasID
}

// 以下方法供管理器以反射方式操作，业务代码一般不需要调用。

// SetLoader 记录外键并安装加载函数
func (v *Value[T]) SetLoader(id int64, loader Loader) {
	v.id = id
	v.hasID = true
	v.value = nil
	v.loaded = false
	v.loader = loader
}

// AnyValue 返回当前值（*T 或 nil），不触发加载
func (v *Value[T]) AnyValue() any {
	if v.value == nil {
		return nil
	}
	return v.value
}

// SetAny 以 *T 设置值
func (v *Value[T]) SetAny(bean any) {
	if bean == nil {
		v.Set(nil)
		return
	}
	v.Set(bean.(*T))
}

// TargetType 返回关联 bean 的结构体类型
func (v *Value[T]) TargetType() reflect.Type {
	return reflect.TypeFor[T]()
}

// Accessor 是 *Value[T] 的非泛型视图
type Accessor interface {
	SetLoader(id int64, loader Loader)
	AnyValue() any
	SetAny(bean any)
	TargetType() reflect.Type
	ID() (int64, bool)
	Loaded() bool
}

var _ Accessor = (*Value[struct{}])(nil)

// AccessorOf 如果 field 是 Value[T] 字段（可寻址）则返回其非泛型视图
func AccessorOf(field reflect.Value) (Accessor, bool) {
	if !field.CanAddr() {
		return nil, false
	}
	a, ok := field.Addr().Interface().(Accessor)
	return a, ok
}

// TargetOf 如果 t 是 Value[T] 类型则返回 T
func TargetOf(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() != reflect.Struct {
		return nil, false
	}
	a, ok := reflect.New(t).Interface().(Accessor)
	if !ok {
		return nil, false
	}
	return a.TargetType(), true
}
