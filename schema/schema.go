// Package schema 从结构体标签解析 bean 的持久化描述
//
// 一个 bean 类型只解析一次，结果缓存在 Resolver 中。标签格式：
//
//	type Employee struct {
//	    ID      int64    `gqm:"id"`
//	    Name    string   `gqm:"unique;notnull"`
//	    Manager *Manager `gqm:"manytoone;ondelete:setnull"`
//	    Skills  collection.Set[*Skill] `gqm:"manytomany"`
//	}
//
// 选项以 ";" 分隔，带值的选项写作 key:value。
package schema

import (
	"reflect"
	"strings"
	"unicode"

	"gqm/errors"
)

// TagName 结构体标签名
const TagName = "gqm"

// Relation 属性的关系种类
type Relation int

const (
	RelationNone Relation = iota
	RelationManyToOne
	RelationManyToMany
	RelationManyToManyAssociation
	RelationManyToOneAssociation
)

func (r Relation) String() string {
	switch r {
	case RelationManyToOne:
		return "manytoone"
	case RelationManyToMany:
		return "manytomany"
	case RelationManyToManyAssociation:
		return "manytomanyassociation"
	case RelationManyToOneAssociation:
		return "manytooneassociation"
	default:
		return "none"
	}
}

// TableNamer bean 可实现该接口自定义表名
type TableNamer interface {
	TableName() string
}

// UniqueGrouper bean 可实现该接口声明组合唯一约束（属性名）
type UniqueGrouper interface {
	UniqueGroups() [][]string
}

// Property 受约束属性
type Property struct {
	Name   string
	Column string
	Type   reflect.Type
	Index  []int

	Identifier bool
	Sparse     bool
	Unique     bool
	NotNull    bool

	Relation Relation

	// many-to-one：table 为关联表（基本类型外键必填），ref 为关联列
	AssociationTable  string
	AssociationColumn string
	OnDelete          string

	// many-to-one-association：主类型上指回本类型的 many-to-one 属性名
	MainProperty string
}

// Field 返回 bean 结构体值上该属性对应的字段
func (p *Property) Field(bean reflect.Value) reflect.Value {
	return bean.FieldByIndex(p.Index)
}

// IsBasic 是否为基本（标量）类型属性
func (p *Property) IsBasic() bool {
	return IsScalarType(p.Type)
}

// Bean bean 类型的持久化描述
type Bean struct {
	Type         reflect.Type
	Table        string
	Identifier   *Property
	Properties   []*Property
	UniqueGroups [][]string

	byName map[string]*Property
}

// Property 按属性名查找
func (b *Bean) Property(name string) (*Property, bool) {
	p, ok := b.byName[name]
	return p, ok
}

// Sparse 标识是否由调用方提供
func (b *Bean) Sparse() bool {
	return b.Identifier.Sparse
}

// Columns 返回直接存储在本表中的标量列属性（含标识与基本类型外键），按声明顺序
func (b *Bean) Columns() []*Property {
	out := make([]*Property, 0, len(b.Properties))
	for _, p := range b.Properties {
		if p.Relation == RelationNone || (p.Relation == RelationManyToOne && p.IsBasic()) {
			out = append(out, p)
		}
	}
	return out
}

// WithRelation 返回指定关系种类的属性，按声明顺序
func (b *Bean) WithRelation(r Relation) []*Property {
	var out []*Property
	for _, p := range b.Properties {
		if p.Relation == r {
			out = append(out, p)
		}
	}
	return out
}

// IdentifierOf 读取 bean 的标识值；v 可以是 *T 或 T
func (b *Bean) IdentifierOf(v reflect.Value) int64 {
	v = reflect.Indirect(v)
	f := b.Identifier.Field(v)
	switch f.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(f.Uint())
	default:
		return f.Int()
	}
}

// SetIdentifier 写入 bean 的标识值；无符号标识不接受负数
func (b *Bean) SetIdentifier(v reflect.Value, id int64) {
	v = reflect.Indirect(v)
	f := b.Identifier.Field(v)
	switch f.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if id < 0 {
			id = 0
		}
		f.SetUint(uint64(id))
	default:
		f.SetInt(id)
	}
}

// ToSnakeCase 将 Go 标识符转换为列名，连续大写视为缩写（ManagerID → manager_id）
func ToSnakeCase(s string) string {
	runes := []rune(s)
	out := make([]rune, 0, len(runes)+4)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					out = append(out, '_')
				}
			}
			out = append(out, unicode.ToLower(r))
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

type tagOptions struct {
	flags  map[string]bool
	values map[string]string
}

var (
	knownFlags = map[string]bool{
		"-": true, "id": true, "sparse": true, "unique": true, "notnull": true,
		"manytoone": true, "manytomany": true, "manytomanyassociation": true, "manytooneassociation": true,
	}
	knownValues = map[string]bool{
		"column": true, "table": true, "ref": true, "ondelete": true, "property": true,
	}
)

func parseTag(t reflect.Type, f reflect.StructField) (tagOptions, error) {
	opts := tagOptions{flags: map[string]bool{}, values: map[string]string{}}
	tag, ok := f.Tag.Lookup(TagName)
	if !ok {
		return opts, nil
	}
	for _, part := range strings.Split(tag, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if k, v, hasValue := strings.Cut(part, ":"); hasValue {
			k = strings.ToLower(strings.TrimSpace(k))
			if !knownValues[k] {
				return opts, errors.NewConfigurationError("%s.%s: unknown tag option %q", t.Name(), f.Name, k)
			}
			opts.values[k] = strings.TrimSpace(v)
			continue
		}
		flag := strings.ToLower(part)
		if !knownFlags[flag] {
			return opts, errors.NewConfigurationError("%s.%s: unknown tag option %q", t.Name(), f.Name, part)
		}
		opts.flags[flag] = true
	}
	return opts, nil
}
