package relation

import (
	"reflect"

	"gqm/cache"
	"gqm/schema"
)

type graphKey struct {
	typ   reflect.Type
	table string
}

// Graph 按 (bean 类型, 表名) 缓存关系声明
type Graph struct {
	resolver *schema.Resolver
	entries  *cache.Cache[graphKey, *Declarations]
}

// NewGraph 创建关系图
func NewGraph(resolver *schema.Resolver) *Graph {
	return &Graph{
		resolver: resolver,
		entries: cache.New[graphKey, *Declarations](cache.Config{
			Name: "relation",
		}),
	}
}

// Resolver 返回关系图使用的 schema 解析器
func (g *Graph) Resolver() *schema.Resolver {
	return g.resolver
}

// Of 返回 bean 的全部关系声明，第一次调用时计算
func (g *Graph) Of(bean *schema.Bean) (*Declarations, error) {
	return g.entries.GetOrLoad(graphKey{typ: bean.Type, table: bean.Table}, func() (*Declarations, error) {
		return g.build(bean)
	})
}

func (g *Graph) build(bean *schema.Bean) (*Declarations, error) {
	m2o, err := ObtainManyToOneDeclarations(g.resolver, bean, "", nil)
	if err != nil {
		return nil, err
	}
	m2m, err := ObtainManyToManyDeclarations(g.resolver, bean, true)
	if err != nil {
		return nil, err
	}
	assoc, err := ObtainManyToOneAssociationDeclarations(g.resolver, bean)
	if err != nil {
		return nil, err
	}
	return &Declarations{ManyToOne: m2o, ManyToMany: m2m, ManyToOneAssociation: assoc}, nil
}
