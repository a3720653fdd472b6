package schema

import (
	"reflect"
	"time"

	"github.com/go-openapi/inflect"

	"gqm/cache"
	dbsql "gqm/data/db/sql"
	"gqm/errors"
)

// Resolver 解析并缓存 bean 描述
type Resolver struct {
	beans *cache.Cache[reflect.Type, *Bean]
}

// NewResolver 创建解析器
func NewResolver() *Resolver {
	return &Resolver{
		beans: cache.New[reflect.Type, *Bean](cache.Config{
			Name: "schema",
		}),
	}
}

var defaultResolver = NewResolver()

// Of 使用默认解析器解析类型
func Of(t reflect.Type) (*Bean, error) {
	return defaultResolver.Resolve(t)
}

// For 使用默认解析器解析类型参数
func For[T any]() (*Bean, error) {
	return defaultResolver.Resolve(reflect.TypeFor[T]())
}

// Resolve 解析 bean 类型；t 可以是结构体或结构体指针
func (r *Resolver) Resolve(t reflect.Type) (*Bean, error) {
	if t == nil {
		return nil, errors.NewConfigurationError("schema: nil type")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return r.beans.GetOrLoad(t, func() (*Bean, error) {
		return build(t)
	})
}

// WithTable 返回使用另一张表的 bean 描述副本
func (b *Bean) WithTable(table string) *Bean {
	if table == "" || table == b.Table {
		return b
	}
	clone := *b
	clone.Table = table
	return &clone
}

func build(t reflect.Type) (*Bean, error) {
	if t.Kind() != reflect.Struct {
		return nil, errors.NewConfigurationError("schema: %s is not a struct", t)
	}

	b := &Bean{
		Type:   t,
		Table:  tableName(t),
		byName: make(map[string]*Property),
	}

	var fallbackID *Property
	var walk func(cur reflect.Type, prefix []int) error
	walk = func(cur reflect.Type, prefix []int) error {
		for i := 0; i < cur.NumField(); i++ {
			f := cur.Field(i)
			index := append(append([]int(nil), prefix...), i)

			opts, err := parseTag(t, f)
			if err != nil {
				return err
			}
			if opts.flags["-"] {
				continue
			}

			if f.Anonymous && f.Type.Kind() == reflect.Struct && !isTimeType(f.Type) {
				if err := walk(f.Type, index); err != nil {
					return err
				}
				continue
			}
			if !f.IsExported() {
				continue
			}

			p, err := buildProperty(t, f, index, opts)
			if err != nil {
				return err
			}
			if p == nil {
				continue
			}
			if _, dup := b.byName[p.Name]; dup {
				continue
			}
			if p.Identifier {
				if b.Identifier != nil {
					return errors.NewConfigurationError("%s: more than one identifier property", t.Name())
				}
				b.Identifier = p
			} else if fallbackID == nil && (f.Name == "ID" || f.Name == "Id") && p.Relation == RelationNone {
				fallbackID = p
			}
			b.Properties = append(b.Properties, p)
			b.byName[p.Name] = p
		}
		return nil
	}
	if err := walk(t, nil); err != nil {
		return nil, err
	}

	if b.Identifier == nil {
		if fallbackID == nil {
			return nil, errors.NewConfigurationError("%s: missing identifier property", t.Name())
		}
		fallbackID.Identifier = true
		b.Identifier = fallbackID
	}
	if !isIntegerKind(b.Identifier.Type.Kind()) {
		return nil, errors.NewConfigurationError("%s.%s: identifier must be an integer, got %s",
			t.Name(), b.Identifier.Name, b.Identifier.Type)
	}
	for _, p := range b.Properties {
		if p.Sparse && !p.Identifier {
			return nil, errors.NewConfigurationError("%s.%s: sparse only applies to the identifier", t.Name(), p.Name)
		}
	}

	if err := checkNames(b); err != nil {
		return nil, err
	}

	if g, ok := reflect.New(t).Interface().(UniqueGrouper); ok {
		for _, group := range g.UniqueGroups() {
			for _, name := range group {
				if _, ok := b.byName[name]; !ok {
					return nil, errors.NewConfigurationError("%s: unique group names unknown property %q", t.Name(), name)
				}
			}
			b.UniqueGroups = append(b.UniqueGroups, append([]string(nil), group...))
		}
	}

	return b, nil
}

// checkNames 拒绝不能拼入 SQL 的表名和列名
func checkNames(b *Bean) error {
	if !dbsql.ValidIdentifier(b.Table) {
		return errors.NewConfigurationError("%s: invalid table name %q", b.Type.Name(), b.Table)
	}
	for _, p := range b.Properties {
		names := []string{p.Column}
		if p.AssociationTable != "" {
			names = append(names, p.AssociationTable)
		}
		if p.AssociationColumn != "" {
			names = append(names, p.AssociationColumn)
		}
		for _, n := range names {
			if !dbsql.ValidIdentifier(n) {
				return errors.NewConfigurationError("%s.%s: invalid column or table name %q", b.Type.Name(), p.Name, n)
			}
		}
	}
	return nil
}

func buildProperty(t reflect.Type, f reflect.StructField, index []int, opts tagOptions) (*Property, error) {
	p := &Property{
		Name:              f.Name,
		Column:            opts.values["column"],
		Type:              f.Type,
		Index:             index,
		Identifier:        opts.flags["id"],
		Sparse:            opts.flags["sparse"],
		Unique:            opts.flags["unique"],
		NotNull:           opts.flags["notnull"],
		AssociationTable:  opts.values["table"],
		AssociationColumn: opts.values["ref"],
		OnDelete:          opts.values["ondelete"],
		MainProperty:      opts.values["property"],
	}
	if p.Column == "" {
		p.Column = ToSnakeCase(f.Name)
	}

	relations := 0
	for flag, rel := range map[string]Relation{
		"manytoone":             RelationManyToOne,
		"manytomany":            RelationManyToMany,
		"manytomanyassociation": RelationManyToManyAssociation,
		"manytooneassociation":  RelationManyToOneAssociation,
	} {
		if opts.flags[flag] {
			p.Relation = rel
			relations++
		}
	}
	if relations > 1 {
		return nil, errors.NewConfigurationError("%s.%s: more than one relationship constraint", t.Name(), f.Name)
	}
	if p.Identifier && p.Relation != RelationNone {
		return nil, errors.NewConfigurationError("%s.%s: identifier cannot be a relationship", t.Name(), f.Name)
	}

	// 未声明关系的非标量字段不参与持久化
	if p.Relation == RelationNone && !IsScalarType(f.Type) {
		if p.Identifier {
			return nil, errors.NewConfigurationError("%s.%s: identifier must be an integer, got %s", t.Name(), f.Name, f.Type)
		}
		return nil, nil
	}
	return p, nil
}

func tableName(t reflect.Type) string {
	if tn, ok := reflect.New(t).Interface().(TableNamer); ok {
		if name := tn.TableName(); name != "" {
			return name
		}
	}
	return inflect.Underscore(t.Name())
}

var timeType = reflect.TypeOf(time.Time{})

func isTimeType(t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t == timeType
}

func isIntegerKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}

// IsScalarType 是否为可直接存储到单列的类型（指针视为可空列）
func IsScalarType(t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if isTimeType(t) {
		return true
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return true
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Uint8
	default:
		return false
	}
}
