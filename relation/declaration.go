// Package relation 发现 bean 之间的关系声明并提供关联表的命名规则
//
// 三种声明：
//   - ManyToOne：本表的外键指向另一个 bean（或基本类型外键直接指向一张表）；
//   - ManyToMany：通过关联表连接两张表，Reversed 表示从被关联的一侧声明；
//   - ManyToOneAssociation：ManyToOne 的反向视图，列出所有指向本 bean 的主 bean。
//
// 声明只依赖 schema 描述，按 bean 类型与表名计算一次后缓存在 Graph 中。
package relation

import (
	"reflect"

	"gqm/collection"
	"gqm/schema"
)

// ManyToOneDeclaration many-to-one 关系
type ManyToOneDeclaration struct {
	Property *schema.Property

	// Basic 为 true 时属性本身就是外键列（标量），AssociationType/AssociationBean 为空
	Basic bool
	// Lazy 属性类型为 lazy.Value[U]
	Lazy bool

	AssociationType   reflect.Type // 关联 bean 的结构体类型
	AssociationBean   *schema.Bean
	AssociationTable  string
	AssociationColumn string

	// ForeignKeyColumn 本表中存储外键的列
	ForeignKeyColumn string
	OnDelete         string
}

// ManyToManyDeclaration many-to-many 关系
type ManyToManyDeclaration struct {
	Property *schema.Property

	AssociationType  reflect.Type // 元素指向的结构体类型
	ElemType         reflect.Type // 集合元素类型（*U）
	AssociationBean  *schema.Bean
	AssociationTable string
	CollectionKind   collection.Kind

	// Reversed 从被关联的一侧声明（manytomanyassociation），关联表名反向
	Reversed bool

	JoinTable             string
	JoinColumn            string // 指向本表的列
	AssociationJoinColumn string // 指向关联表的列
	OnDelete              string
}

// ManyToOneAssociationDeclaration many-to-one 的反向视图
type ManyToOneAssociationDeclaration struct {
	Property *schema.Property

	MainType       reflect.Type
	MainBean       *schema.Bean
	MainProperty   string
	ElemType       reflect.Type
	CollectionKind collection.Kind

	// MainDeclaration 主类型上指回本类型的 many-to-one 声明
	MainDeclaration *ManyToOneDeclaration
}

// Declarations 一个 bean 的全部关系声明，按属性声明顺序排列
type Declarations struct {
	ManyToOne            []*ManyToOneDeclaration
	ManyToMany           []*ManyToManyDeclaration
	ManyToOneAssociation []*ManyToOneAssociationDeclaration
}

// ManyToOneFor 按属性名查找 many-to-one 声明
func (d *Declarations) ManyToOneFor(property string) (*ManyToOneDeclaration, bool) {
	for _, decl := range d.ManyToOne {
		if decl.Property.Name == property {
			return decl, true
		}
	}
	return nil, false
}

// Empty 是否没有任何关系
func (d *Declarations) Empty() bool {
	return len(d.ManyToOne) == 0 && len(d.ManyToMany) == 0 && len(d.ManyToOneAssociation) == 0
}
