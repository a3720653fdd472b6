package manager

import (
	"go.opentelemetry.io/otel/trace"

	"gqm/logging"
	"gqm/validation"
)

// Option 注册表选项
type Option func(*Registry)

// WithLogger 设置日志器，默认 logging.GetLogger()
func WithLogger(logger logging.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithLazyManyToOne 启用 lazy.Value 属性的延迟加载
//
// 未启用时 lazy.Value 属性与指针属性一样在 restore 时立即加载。
func WithLazyManyToOne(enabled bool) Option {
	return func(r *Registry) {
		r.lazyManyToOne = enabled
	}
}

// WithIdentifierGenerator 设置非 sparse 标识的生成器，默认 SequenceGenerator
func WithIdentifierGenerator(g IdentifierGenerator) Option {
	return func(r *Registry) {
		if g != nil {
			r.idgen = g
		}
	}
}

// WithValidator 设置 Validate 使用的字段校验器，默认 validation.Default()
func WithValidator(v validation.IValidator) Option {
	return func(r *Registry) {
		if v != nil {
			r.validator = v
		}
	}
}

// WithTracerProvider 设置追踪使用的 TracerProvider，默认 otel 全局 provider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Registry) {
		if tp != nil {
			r.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithEventListener 注册观察所有管理器的监听器；RemoveListeners 不会移除它
func WithEventListener(l EventListener) Option {
	return func(r *Registry) {
		if l != nil {
			r.observers = append(r.observers, l)
		}
	}
}

// ManagerOption 单个管理器的选项
type ManagerOption[T any] func(*managerConfig[T])

type managerConfig[T any] struct {
	table     string
	callbacks Callbacks[T]
}

// WithTable 使用另一张表保存同一个 bean 类型
func WithTable[T any](table string) ManagerOption[T] {
	return func(c *managerConfig[T]) {
		c.table = table
	}
}

// WithCallbacks 管理器级钩子，优先于 bean 自身实现的 Callbacks / CallbacksProvider
func WithCallbacks[T any](cb Callbacks[T]) ManagerOption[T] {
	return func(c *managerConfig[T]) {
		c.callbacks = cb
	}
}
