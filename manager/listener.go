package manager

import (
	"context"
	"reflect"
)

// EventKind 管理器事件种类
type EventKind string

const (
	EventInstalled EventKind = "installed"
	EventRemoved   EventKind = "removed"
	EventInserted  EventKind = "inserted"
	EventUpdated   EventKind = "updated"
	EventRestored  EventKind = "restored"
	EventDeleted   EventKind = "deleted"
)

// Event 成功完成的操作
//
// Bean 为 *T（installed/removed/deleted 时为 nil），ID 为 bean 的标识。
type Event struct {
	Kind  EventKind
	Table string
	Type  reflect.Type
	ID    int64
	Bean  any
}

// EventListener 非泛型监听器，通常在 Registry 上注册以观察所有管理器
type EventListener interface {
	OnEvent(ctx context.Context, event Event)
}

// EventListenerFunc 函数形式的 EventListener
type EventListenerFunc func(ctx context.Context, event Event)

func (f EventListenerFunc) OnEvent(ctx context.Context, event Event) { f(ctx, event) }

// Listener 单个管理器的监听器；只观察，不能否决操作
type Listener[T any] interface {
	Installed(ctx context.Context)
	Removed(ctx context.Context)
	Inserted(ctx context.Context, bean *T)
	Updated(ctx context.Context, bean *T)
	Restored(ctx context.Context, bean *T)
	Deleted(ctx context.Context, id int64)
}

// BaseListener 空实现，嵌入后只覆盖需要的方法
type BaseListener[T any] struct{}

func (BaseListener[T]) Installed(context.Context)      {}
func (BaseListener[T]) Removed(context.Context)        {}
func (BaseListener[T]) Inserted(context.Context, *T)   {}
func (BaseListener[T]) Updated(context.Context, *T)    {}
func (BaseListener[T]) Restored(context.Context, *T)   {}
func (BaseListener[T]) Deleted(context.Context, int64) {}

var _ Listener[struct{}] = BaseListener[struct{}]{}

type listenerAdapter[T any] struct {
	l Listener[T]
}

func (a listenerAdapter[T]) OnEvent(ctx context.Context, e Event) {
	switch e.Kind {
	case EventInstalled:
		a.l.Installed(ctx)
	case EventRemoved:
		a.l.Removed(ctx)
	case EventInserted:
		a.l.Inserted(ctx, e.Bean.(*T))
	case EventUpdated:
		a.l.Updated(ctx, e.Bean.(*T))
	case EventRestored:
		a.l.Restored(ctx, e.Bean.(*T))
	case EventDeleted:
		a.l.Deleted(ctx, e.ID)
	}
}
