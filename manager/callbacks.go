package manager

import (
	"context"
	"reflect"
)

// Callbacks 围绕每个操作的钩子
//
// before 钩子返回 false 时放弃当前操作及其嵌套的级联；after 钩子返回 false 时
// 停止本次调用链上后续的钩子，已完成的工作不会撤销。
type Callbacks[T any] interface {
	BeforeValidate(ctx context.Context, bean *T) bool
	BeforeInsert(ctx context.Context, bean *T) bool
	BeforeDelete(ctx context.Context, id int64) bool
	BeforeSave(ctx context.Context, bean *T) bool
	BeforeUpdate(ctx context.Context, bean *T) bool

	AfterValidate(ctx context.Context, bean *T) bool
	AfterInsert(ctx context.Context, bean *T, success bool) bool
	AfterDelete(ctx context.Context, id int64, success bool) bool
	AfterSave(ctx context.Context, bean *T, success bool) bool
	AfterUpdate(ctx context.Context, bean *T, success bool) bool
	AfterRestore(ctx context.Context, bean *T) bool
}

// CallbacksProvider bean 通过方法提供 Callbacks，而不是自己实现
type CallbacksProvider[T any] interface {
	Callbacks() Callbacks[T]
}

// BaseCallbacks 所有钩子都返回 true，嵌入后只覆盖需要的方法
type BaseCallbacks[T any] struct{}

func (BaseCallbacks[T]) BeforeValidate(context.Context, *T) bool       { return true }
func (BaseCallbacks[T]) BeforeInsert(context.Context, *T) bool         { return true }
func (BaseCallbacks[T]) BeforeDelete(context.Context, int64) bool      { return true }
func (BaseCallbacks[T]) BeforeSave(context.Context, *T) bool           { return true }
func (BaseCallbacks[T]) BeforeUpdate(context.Context, *T) bool         { return true }
func (BaseCallbacks[T]) AfterValidate(context.Context, *T) bool        { return true }
func (BaseCallbacks[T]) AfterInsert(context.Context, *T, bool) bool    { return true }
func (BaseCallbacks[T]) AfterDelete(context.Context, int64, bool) bool { return true }
func (BaseCallbacks[T]) AfterSave(context.Context, *T, bool) bool      { return true }
func (BaseCallbacks[T]) AfterUpdate(context.Context, *T, bool) bool    { return true }
func (BaseCallbacks[T]) AfterRestore(context.Context, *T) bool         { return true }

var _ Callbacks[struct{}] = BaseCallbacks[struct{}]{}

// hookSet 引擎使用的非泛型钩子，bean 以 *T 的 reflect.Value 传入
type hookSet interface {
	beforeValidate(ctx context.Context, bean reflect.Value) bool
	beforeInsert(ctx context.Context, bean reflect.Value) bool
	beforeDelete(ctx context.Context, id int64) bool
	beforeSave(ctx context.Context, bean reflect.Value) bool
	beforeUpdate(ctx context.Context, bean reflect.Value) bool
	afterValidate(ctx context.Context, bean reflect.Value) bool
	afterInsert(ctx context.Context, bean reflect.Value, success bool) bool
	afterDelete(ctx context.Context, id int64, success bool) bool
	afterSave(ctx context.Context, bean reflect.Value, success bool) bool
	afterUpdate(ctx context.Context, bean reflect.Value, success bool) bool
	afterRestore(ctx context.Context, bean reflect.Value) bool
}

type noHooks struct{}

func (noHooks) beforeValidate(context.Context, reflect.Value) bool    { return true }
func (noHooks) beforeInsert(context.Context, reflect.Value) bool      { return true }
func (noHooks) beforeDelete(context.Context, int64) bool              { return true }
func (noHooks) beforeSave(context.Context, reflect.Value) bool        { return true }
func (noHooks) beforeUpdate(context.Context, reflect.Value) bool      { return true }
func (noHooks) afterValidate(context.Context, reflect.Value) bool     { return true }
func (noHooks) afterInsert(context.Context, reflect.Value, bool) bool { return true }
func (noHooks) afterDelete(context.Context, int64, bool) bool         { return true }
func (noHooks) afterSave(context.Context, reflect.Value, bool) bool   { return true }
func (noHooks) afterUpdate(context.Context, reflect.Value, bool) bool { return true }
func (noHooks) afterRestore(context.Context, reflect.Value) bool      { return true }

type hookSource int

const (
	hooksFixed    hookSource = iota // 管理器级 WithCallbacks
	hooksBean                       // *T 实现 Callbacks[T]
	hooksProvider                   // *T 实现 CallbacksProvider[T]
)

// typedHooks 将 Callbacks[T] 适配为 hookSet；来源在注册时确定一次
type typedHooks[T any] struct {
	source hookSource
	fixed  Callbacks[T]
}

// resolveHooks 按 WithCallbacks > Callbacks[T] > CallbacksProvider[T] 的顺序确定钩子来源
func resolveHooks[T any](override Callbacks[T]) hookSet {
	if override != nil {
		return typedHooks[T]{source: hooksFixed, fixed: override}
	}
	switch any(new(T)).(type) {
	case Callbacks[T]:
		return typedHooks[T]{source: hooksBean}
	case CallbacksProvider[T]:
		return typedHooks[T]{source: hooksProvider}
	default:
		return noHooks{}
	}
}

func (h typedHooks[T]) of(bean *T) Callbacks[T] {
	switch h.source {
	case hooksFixed:
		return h.fixed
	case hooksBean:
		return any(bean).(Callbacks[T])
	default:
		if cb := any(bean).(CallbacksProvider[T]).Callbacks(); cb != nil {
			return cb
		}
		return BaseCallbacks[T]{}
	}
}

func (h typedHooks[T]) bean(v reflect.Value) *T { return v.Interface().(*T) }

func (h typedHooks[T]) beforeValidate(ctx context.Context, v reflect.Value) bool {
	b := h.bean(v)
	return h.of(b).BeforeValidate(ctx, b)
}

func (h typedHooks[T]) beforeInsert(ctx context.Context, v reflect.Value) bool {
	b := h.bean(v)
	return h.of(b).BeforeInsert(ctx, b)
}

// 删除只有标识，钩子在一个新实例上调用
func (h typedHooks[T]) beforeDelete(ctx context.Context, id int64) bool {
	return h.of(new(T)).BeforeDelete(ctx, id)
}

func (h typedHooks[T]) beforeSave(ctx context.Context, v reflect.Value) bool {
	b := h.bean(v)
	return h.of(b).BeforeSave(ctx, b)
}

func (h typedHooks[T]) beforeUpdate(ctx context.Context, v reflect.Value) bool {
	b := h.bean(v)
	return h.of(b).BeforeUpdate(ctx, b)
}

func (h typedHooks[T]) afterValidate(ctx context.Context, v reflect.Value) bool {
	b := h.bean(v)
	return h.of(b).AfterValidate(ctx, b)
}

func (h typedHooks[T]) afterInsert(ctx context.Context, v reflect.Value, success bool) bool {
	b := h.bean(v)
	return h.of(b).AfterInsert(ctx, b, success)
}

func (h typedHooks[T]) afterDelete(ctx context.Context, id int64, success bool) bool {
	return h.of(new(T)).AfterDelete(ctx, id, success)
}

func (h typedHooks[T]) afterSave(ctx context.Context, v reflect.Value, success bool) bool {
	b := h.bean(v)
	return h.of(b).AfterSave(ctx, b, success)
}

func (h typedHooks[T]) afterUpdate(ctx context.Context, v reflect.Value, success bool) bool {
	b := h.bean(v)
	return h.of(b).AfterUpdate(ctx, b, success)
}

func (h typedHooks[T]) afterRestore(ctx context.Context, v reflect.Value) bool {
	b := h.bean(v)
	return h.of(b).AfterRestore(ctx, b)
}

// chain 一次调用链上的钩子状态
type chain struct {
	vetoed  bool // before 钩子放弃了操作
	stopped bool // after 钩子要求停止后续钩子
}
