// Package collection 提供 many-to-many / many-to-one-association 属性使用的集合类型
//
// 属性类型只能是 Collection[*U]、List[*U] 或 Set[*U] 之一：
//
//	type Order struct {
//	    ID    int64
//	    Items collection.List[*Item] `gqm:"manytomany"`
//	}
//
// 零值是未赋值的空集合，保存时不会改动关联。restore 时管理器在属性上安装代理：
// 第一次访问时执行一次查询并缓存结果，之后的所有操作只作用于内存，不会写回数据库；
// 需要持久化修改时重新保存所属 bean。
package collection

import (
	"context"
	"iter"
	"reflect"
	"slices"
)

// Kind 集合种类
type Kind int

const (
	KindCollection Kind = iota
	KindList
	KindSet
)

func (k Kind) String() string {
	switch k {
	case KindList:
		return "List"
	case KindSet:
		return "Set"
	default:
		return "Collection"
	}
}

// Loader 查询关系的当前行
type Loader[T any] func(ctx context.Context) ([]T, error)

// store 三种集合共用的存储与代理状态
//
// 状态：pending（已安装加载函数，未访问）→ populated。加载使用安装时捕获的 context，
// 失败时集合保持为空，错误通过 Err 读取；带加载错误的集合不能用于保存关联，
// Clear 或 SetItemsAny 之后错误被清除。
type store[T any] struct {
	items   []T
	defined bool
	pending bool
	ctx     context.Context
	load    Loader[T]
	err     error
}

func (s *store[T]) ensure() {
	if !s.pending {
		return
	}
	s.pending = false
	s.defined = true
	load, ctx := s.load, s.ctx
	s.load, s.ctx = nil, nil
	items, err := load(ctx)
	if err != nil {
		s.err = err
		return
	}
	s.items = items
}

func (s *store[T]) touch() {
	s.ensure()
	s.defined = true
}

func (s *store[T]) Len() int             { s.ensure(); return len(s.items) }
func (s *store[T]) Items() []T           { s.ensure(); return slices.Clone(s.items) }
func (s *store[T]) All() iter.Seq[T]     { s.ensure(); return slices.Values(slices.Clone(s.items)) }
func (s *store[T]) Contains(item T) bool { s.ensure(); return s.index(item) >= 0 }

func (s *store[T]) index(item T) int {
	return slices.IndexFunc(s.items, func(x T) bool { return equal(x, item) })
}

// Add 追加元素
func (s *store[T]) Add(items ...T) {
	s.touch()
	s.items = append(s.items, items...)
}

// Remove 删除第一个相等的元素
func (s *store[T]) Remove(item T) bool {
	s.touch()
	i := s.index(item)
	if i < 0 {
		return false
	}
	s.items = slices.Delete(s.items, i, i+1)
	return true
}

// Clear 清空；清空后的集合在保存时会删除全部关联
func (s *store[T]) Clear() {
	if s.pending {
		s.pending, s.load, s.ctx = false, nil, nil
	}
	s.defined = true
	s.items, s.err = nil, nil
}

// Populated 是否已填充（普通集合总是已填充）
func (s *store[T]) Populated() bool { return !s.pending }

// Defined 是否被赋值过：构造、修改或代理加载之后为 true，零值为 false
func (s *store[T]) Defined() bool { return s.defined || s.pending }

// Load 立即填充；已填充时返回上次的加载错误
func (s *store[T]) Load(ctx context.Context) error {
	if s.pending && ctx != nil {
		s.ctx = ctx
	}
	s.ensure()
	return s.err
}

// Err 返回代理的加载错误
func (s *store[T]) Err() error { return s.err }

// 以下方法供管理器以反射方式操作。

func (s *store[T]) ItemsAny() []any {
	s.ensure()
	out := make([]any, len(s.items))
	for i, v := range s.items {
		out[i] = v
	}
	return out
}

func (s *store[T]) SetItemsAny(items []any) {
	typed := make([]T, 0, len(items))
	for _, item := range items {
		typed = append(typed, item.(T))
	}
	s.pending, s.load, s.ctx, s.err = false, nil, nil, nil
	s.defined = true
	s.items = typed
}

func (s *store[T]) SetLoader(ctx context.Context, load func(ctx context.Context) ([]any, error)) {
	s.setLoader(ctx, func(ctx context.Context) ([]T, error) {
		raw, err := load(ctx)
		if err != nil {
			return nil, err
		}
		typed := make([]T, 0, len(raw))
		for _, item := range raw {
			typed = append(typed, item.(T))
		}
		return typed, nil
	})
}

func (s *store[T]) setLoader(ctx context.Context, load Loader[T]) {
	s.items, s.err = nil, nil
	s.defined = false
	s.pending = true
	s.ctx = ctx
	s.load = load
}

func (s *store[T]) ElemType() reflect.Type { return reflect.TypeFor[T]() }

func equal[T any](a, b T) bool {
	av, bv := any(a), any(b)
	at := reflect.TypeOf(av)
	if at == nil || !at.Comparable() {
		return reflect.DeepEqual(av, bv)
	}
	return av == bv
}

// Collection 通用集合（列表语义）
type Collection[T any] struct {
	store[T]
}

func (*Collection[T]) Kind() Kind { return KindCollection }

// List 保持顺序、允许重复的集合
type List[T any] struct {
	store[T]
}

func (*List[T]) Kind() Kind { return KindList }

// At 返回第 i 个元素
func (l *List[T]) At(i int) T {
	l.ensure()
	return l.items[i]
}

// Set 替换第 i 个元素
func (l *List[T]) Set(i int, item T) {
	l.touch()
	l.items[i] = item
}

// Set 不含重复元素（按 == 比较）的集合，保持插入顺序
type Set[T any] struct {
	store[T]
}

func (*Set[T]) Kind() Kind { return KindSet }

// Add 追加尚不存在的元素
func (s *Set[T]) Add(items ...T) {
	s.touch()
	for _, item := range items {
		if s.index(item) < 0 {
			s.items = append(s.items, item)
		}
	}
}

// NewList 创建列表
func NewList[T any](items ...T) List[T] {
	var l List[T]
	l.Add(items...)
	return l
}

// NewSet 创建集合
func NewSet[T any](items ...T) Set[T] {
	var s Set[T]
	s.Add(items...)
	return s
}

// NewCollection 创建通用集合
func NewCollection[T any](items ...T) Collection[T] {
	var c Collection[T]
	c.Add(items...)
	return c
}

// NewListProxy 创建第一次访问时才填充的列表
func NewListProxy[T any](ctx context.Context, load Loader[T]) List[T] {
	var l List[T]
	l.setLoader(ctx, load)
	return l
}

// NewSetProxy 创建第一次访问时才填充的集合
func NewSetProxy[T any](ctx context.Context, load Loader[T]) Set[T] {
	var s Set[T]
	s.setLoader(ctx, load)
	return s
}

// NewCollectionProxy 创建第一次访问时才填充的通用集合
func NewCollectionProxy[T any](ctx context.Context, load Loader[T]) Collection[T] {
	var c Collection[T]
	c.setLoader(ctx, load)
	return c
}
