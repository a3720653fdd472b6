package manager

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	core "gqm/data/db"
	"gqm/data/db/dialect"
	dbsql "gqm/data/db/sql"
	"gqm/errors"
	"gqm/logging"
	"gqm/relation"
	"gqm/schema"
	"gqm/validation"
)

type engineKey struct {
	typ   reflect.Type
	table string
}

// Registry 管理器注册表
//
// 每个 (bean 类型, 表) 只有一个管理器。注册表由应用在启动时按数据源创建并传递，
// 关系级联需要的关联管理器也从同一个注册表取得。
type Registry struct {
	db       core.IDatabase
	dialect  dialect.Dialect
	resolver *schema.Resolver
	graph    *relation.Graph

	logger        logging.Logger
	lazyManyToOne bool
	idgen         IdentifierGenerator
	validator     validation.IValidator
	tracer        trace.Tracer
	observers     []EventListener

	mu      sync.RWMutex
	engines map[engineKey]*engine
	facades map[engineKey]any
	group   singleflight.Group
}

// NewRegistry 创建注册表；无法识别数据库方言时返回配置错误
func NewRegistry(database core.IDatabase, opts ...Option) (*Registry, error) {
	if database == nil {
		return nil, errors.NewConfigurationError("manager: nil database")
	}
	d := dialect.FromDatabase(database)
	if !d.Known() {
		return nil, errors.NewConfigurationError("manager: unsupported database driver")
	}

	resolver := schema.NewResolver()
	r := &Registry{
		db:        database,
		dialect:   d,
		resolver:  resolver,
		graph:     relation.NewGraph(resolver),
		logger:    logging.GetLogger(),
		idgen:     SequenceGenerator{},
		validator: validation.Default(),
		tracer:    otel.Tracer(tracerName),
		engines:   make(map[engineKey]*engine),
		facades:   make(map[engineKey]any),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Database 返回注册表使用的数据库
func (r *Registry) Database() core.IDatabase { return r.db }

// Dialect 返回数据库方言
func (r *Registry) Dialect() dialect.Dialect { return r.dialect }

// Resolver 返回 schema 解析器
func (r *Registry) Resolver() *schema.Resolver { return r.resolver }

// engine 返回 (类型, 表) 对应的引擎，不存在时创建；table 为空表示类型的默认表
//
// 并发的首次创建由 singleflight 合并。
func (r *Registry) engine(t reflect.Type, table string) (*engine, error) {
	bean, err := r.resolver.Resolve(t)
	if err != nil {
		return nil, err
	}
	bean = bean.WithTable(table)
	if !dbsql.ValidIdentifier(bean.Table) {
		return nil, errors.NewConfigurationError("manager: invalid table name %q", bean.Table)
	}
	key := engineKey{typ: bean.Type, table: bean.Table}

	r.mu.RLock()
	e, ok := r.engines[key]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}

	v, err, _ := r.group.Do(fmt.Sprintf("%p#%s", bean.Type, bean.Table), func() (any, error) {
		r.mu.RLock()
		existing, ok := r.engines[key]
		r.mu.RUnlock()
		if ok {
			return existing, nil
		}

		decls, err := r.graph.Of(bean)
		if err != nil {
			return nil, err
		}
		created := newEngine(r, bean, decls)

		r.mu.Lock()
		r.engines[key] = created
		r.mu.Unlock()

		r.logger.Debug(context.Background(), "manager created",
			logging.String("type", bean.Type.String()),
			logging.String("table", bean.Table))
		return created, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*engine), nil
}

// Register 注册 T 的管理器并返回它
//
// 重复注册返回同一个管理器，钩子按本次的选项重新确定。
func Register[T any](r *Registry, opts ...ManagerOption[T]) (*Manager[T], error) {
	var cfg managerConfig[T]
	for _, opt := range opts {
		opt(&cfg)
	}

	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Struct {
		return nil, errors.NewConfigurationError("manager: bean type %s is not a struct", t)
	}
	e, err := r.engine(t, cfg.table)
	if err != nil {
		return nil, err
	}
	e.setHooks(resolveHooks[T](cfg.callbacks))

	key := engineKey{typ: e.bean.Type, table: e.bean.Table}
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.facades[key].(*Manager[T]); ok {
		return m, nil
	}
	m := &Manager[T]{e: e}
	r.facades[key] = m
	return m, nil
}

// Of 返回 T 在默认表上的管理器，未注册时注册
func Of[T any](r *Registry) (*Manager[T], error) {
	return OfTable[T](r, "")
}

// OfTable 返回 T 在 table 上的管理器，未注册时注册
func OfTable[T any](r *Registry, table string) (*Manager[T], error) {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Struct {
		if bean, err := r.resolver.Resolve(t); err == nil {
			key := engineKey{typ: t, table: bean.WithTable(table).Table}
			r.mu.RLock()
			m, ok := r.facades[key].(*Manager[T])
			r.mu.RUnlock()
			if ok {
				return m, nil
			}
		}
	}
	return Register[T](r, WithTable[T](table))
}

// Dynamic 返回任意 bean 类型的非泛型管理器
func (r *Registry) Dynamic(t reflect.Type, table string) (*Dynamic, error) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, errors.NewConfigurationError("manager: bean type %v is not a struct", t)
	}
	e, err := r.engine(t, table)
	if err != nil {
		return nil, err
	}
	return &Dynamic{e: e}, nil
}
