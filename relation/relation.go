package relation

import (
	"reflect"

	"gqm/collection"
	"gqm/errors"
	"gqm/lazy"
	"gqm/schema"
)

// AssociationTarget 返回对象 many-to-one 属性指向的结构体类型，以及是否为 lazy.Value
//
// 支持 *U 与 lazy.Value[U]，其余类型返回 nil。
func AssociationTarget(t reflect.Type) (target reflect.Type, isLazy bool) {
	if u, ok := lazy.TargetOf(t); ok {
		return u, true
	}
	if t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct && !schema.IsScalarType(t) {
		return t.Elem(), false
	}
	return nil, false
}

// CreateManyToOneDeclaration 为带 manytoone 约束的属性创建声明
//
// associationType 为期望的关联结构体类型；为 nil 时从属性类型推导。
// 给定的类型与属性的静态类型不兼容时返回关系声明错误。
func CreateManyToOneDeclaration(r *schema.Resolver, owner *schema.Bean, p *schema.Property, associationType reflect.Type) (*ManyToOneDeclaration, error) {
	if p.Relation != schema.RelationManyToOne {
		return nil, errors.NewRelationshipError("%s.%s: not a many-to-one property", owner.Type.Name(), p.Name)
	}

	decl := &ManyToOneDeclaration{
		Property: p,
		OnDelete: p.OnDelete,
	}

	if p.IsBasic() {
		if associationType != nil {
			return nil, errors.NewRelationshipError("%s.%s: basic many-to-one property %s is incompatible with %s",
				owner.Type.Name(), p.Name, p.Type, associationType)
		}
		if p.AssociationTable == "" {
			return nil, errors.NewRelationshipError("%s.%s: basic many-to-one property requires the table option",
				owner.Type.Name(), p.Name)
		}
		decl.Basic = true
		decl.AssociationTable = p.AssociationTable
		decl.AssociationColumn = p.AssociationColumn
		if decl.AssociationColumn == "" {
			decl.AssociationColumn = "id"
		}
		decl.ForeignKeyColumn = p.Column
		return decl, nil
	}

	target, isLazy := AssociationTarget(p.Type)
	if target == nil {
		return nil, errors.NewRelationshipError("%s.%s: unsupported many-to-one property type %s",
			owner.Type.Name(), p.Name, p.Type)
	}
	if associationType != nil {
		for associationType.Kind() == reflect.Pointer {
			associationType = associationType.Elem()
		}
		if associationType != target {
			return nil, errors.NewRelationshipError("%s.%s: associated type %s is incompatible with property type %s",
				owner.Type.Name(), p.Name, associationType, p.Type)
		}
	}

	bean, err := r.Resolve(target)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeRelationship, owner.Type.Name()+"."+p.Name+": cannot resolve associated bean")
	}
	bean = bean.WithTable(p.AssociationTable)

	decl.Lazy = isLazy
	decl.AssociationType = target
	decl.AssociationBean = bean
	decl.AssociationTable = bean.Table
	decl.AssociationColumn = p.AssociationColumn
	if decl.AssociationColumn == "" {
		decl.AssociationColumn = bean.Identifier.Column
	} else if _, ok := columnProperty(bean, decl.AssociationColumn); !ok {
		return nil, errors.NewRelationshipError("%s.%s: associated column %q not found on %s",
			owner.Type.Name(), p.Name, decl.AssociationColumn, bean.Table)
	}
	decl.ForeignKeyColumn = ForeignKeyColumnName(p.Column, decl.AssociationColumn)
	return decl, nil
}

// ObtainManyToOneDeclarations 扫描 many-to-one 属性
//
// fixedMainProperty 非空时只考虑该属性；fixedAssociation 非空时只保留指向该 bean 的声明
// （按关联表名匹配）。没有匹配时返回 nil。
func ObtainManyToOneDeclarations(r *schema.Resolver, owner *schema.Bean, fixedMainProperty string, fixedAssociation *schema.Bean) ([]*ManyToOneDeclaration, error) {
	var out []*ManyToOneDeclaration
	for _, p := range owner.WithRelation(schema.RelationManyToOne) {
		if fixedMainProperty != "" && p.Name != fixedMainProperty {
			continue
		}
		decl, err := CreateManyToOneDeclaration(r, owner, p, nil)
		if err != nil {
			return nil, err
		}
		if fixedAssociation != nil && !decl.pointsAt(fixedAssociation) {
			continue
		}
		out = append(out, decl)
	}
	return out, nil
}

// pointsAt 按表名匹配，同一张表可以由不同的 bean 类型映射
func (d *ManyToOneDeclaration) pointsAt(bean *schema.Bean) bool {
	return d.AssociationTable == bean.Table
}

// ObtainManyToManyDeclarations 扫描 many-to-many 属性
//
// includeAssociations 为 true 时同时包含反向声明（manytomanyassociation）。
func ObtainManyToManyDeclarations(r *schema.Resolver, owner *schema.Bean, includeAssociations bool) ([]*ManyToManyDeclaration, error) {
	var out []*ManyToManyDeclaration
	for _, p := range owner.Properties {
		reversed := false
		switch p.Relation {
		case schema.RelationManyToMany:
		case schema.RelationManyToManyAssociation:
			if !includeAssociations {
				continue
			}
			reversed = true
		default:
			continue
		}

		kind, elem, err := CheckCollectionType(owner, p)
		if err != nil {
			return nil, err
		}
		bean, err := r.Resolve(elem.Elem())
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeRelationship, owner.Type.Name()+"."+p.Name+": cannot resolve associated bean")
		}
		bean = bean.WithTable(p.AssociationTable)
		if bean.Table == owner.Table {
			return nil, errors.NewRelationshipError("%s.%s: many-to-many association with the same table is not supported",
				owner.Type.Name(), p.Name)
		}

		out = append(out, &ManyToManyDeclaration{
			Property:              p,
			AssociationType:       bean.Type,
			ElemType:              elem,
			AssociationBean:       bean,
			AssociationTable:      bean.Table,
			CollectionKind:        kind,
			Reversed:              reversed,
			JoinTable:             JoinTableName(owner.Table, bean.Table, reversed),
			JoinColumn:            JoinColumnName(owner.Table, owner.Identifier.Column),
			AssociationJoinColumn: JoinColumnName(bean.Table, bean.Identifier.Column),
			OnDelete:              p.OnDelete,
		})
	}
	return out, nil
}

// ObtainManyToOneAssociationDeclarations 扫描 many-to-one-association 属性
//
// 主类型为集合元素指向的类型；主属性取 property 选项，缺省时取主类型上唯一一个
// 指回本类型的 many-to-one 属性。找不到对应的主属性时返回关系声明错误。
func ObtainManyToOneAssociationDeclarations(r *schema.Resolver, owner *schema.Bean) ([]*ManyToOneAssociationDeclaration, error) {
	var out []*ManyToOneAssociationDeclaration
	for _, p := range owner.WithRelation(schema.RelationManyToOneAssociation) {
		kind, elem, err := CheckCollectionType(owner, p)
		if err != nil {
			return nil, err
		}
		main, err := r.Resolve(elem.Elem())
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeRelationship, owner.Type.Name()+"."+p.Name+": cannot resolve main bean")
		}
		main = main.WithTable(p.AssociationTable)

		decls, err := ObtainManyToOneDeclarations(r, main, p.MainProperty, owner)
		if err != nil {
			return nil, err
		}
		switch {
		case len(decls) == 0 && p.MainProperty != "":
			return nil, errors.NewRelationshipError("%s.%s: main property %s.%s is not a many-to-one to %s",
				owner.Type.Name(), p.Name, main.Type.Name(), p.MainProperty, owner.Table)
		case len(decls) == 0:
			return nil, errors.NewRelationshipError("%s.%s: %s has no many-to-one property referring to %s",
				owner.Type.Name(), p.Name, main.Type.Name(), owner.Table)
		case len(decls) > 1:
			return nil, errors.NewRelationshipError("%s.%s: %s has several many-to-one properties referring to %s, set the property option",
				owner.Type.Name(), p.Name, main.Type.Name(), owner.Table)
		}

		out = append(out, &ManyToOneAssociationDeclaration{
			Property:        p,
			MainType:        main.Type,
			MainBean:        main,
			MainProperty:    decls[0].Property.Name,
			ElemType:        elem,
			CollectionKind:  kind,
			MainDeclaration: decls[0],
		})
	}
	return out, nil
}

// CheckCollectionType 检查集合属性的静态类型
//
// 类型只能是 collection.Collection / List / Set，元素必须是结构体指针。
func CheckCollectionType(owner *schema.Bean, p *schema.Property) (collection.Kind, reflect.Type, error) {
	kind, elem, ok := collection.Describe(p.Type)
	if !ok {
		return 0, nil, errors.NewRelationshipError("%s.%s: unsupported collection property type %s, expected Collection, List or Set",
			owner.Type.Name(), p.Name, p.Type)
	}
	if elem.Kind() != reflect.Pointer || elem.Elem().Kind() != reflect.Struct {
		return 0, nil, errors.NewRelationshipError("%s.%s: cannot determine the associated type of %s",
			owner.Type.Name(), p.Name, p.Type)
	}
	return kind, elem, nil
}

// CheckCollectionValue 读取集合属性的当前值
//
// 未赋值的集合与尚未访问过的代理返回 (nil, false, nil)，保存时不改动关联；
// 值不是集合或包含 nil 元素时返回关系声明错误。代理加载失败时返回加载错误，
// 内容不完整的集合不能用来重写关联。field 必须可寻址。
func CheckCollectionValue(owner *schema.Bean, p *schema.Property, field reflect.Value) ([]any, bool, error) {
	a, ok := collection.AccessorOf(field)
	if !ok {
		return nil, false, errors.NewRelationshipError("%s.%s: value of type %s is not a collection",
			owner.Type.Name(), p.Name, field.Type())
	}
	if !a.Defined() || !a.Populated() {
		return nil, false, nil
	}
	if err := a.Err(); err != nil {
		code := errors.GetErrorCode(err)
		if code == errors.ErrCodeInternal {
			code = errors.ErrCodeDatabase
		}
		return nil, false, errors.WrapError(err, code, owner.Type.Name()+"."+p.Name+": collection failed to load")
	}
	items := a.ItemsAny()
	for _, item := range items {
		v := reflect.ValueOf(item)
		if !v.IsValid() || (v.Kind() == reflect.Pointer && v.IsNil()) {
			return nil, false, errors.NewRelationshipError("%s.%s: collection contains a nil element", owner.Type.Name(), p.Name)
		}
	}
	return items, true, nil
}

func columnProperty(b *schema.Bean, column string) (*schema.Property, bool) {
	for _, p := range b.Properties {
		if p.Column == column {
			return p, true
		}
	}
	return nil, false
}
