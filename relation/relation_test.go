package relation

import (
	"context"
	stdErrors "errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gqm/collection"
	"gqm/errors"
	"gqm/lazy"
	"gqm/schema"
)

type boss struct {
	ID        int64
	Name      string
	Employees collection.List[*employee] `gqm:"manytooneassociation"`
}

type employee struct {
	ID     int64
	Name   string
	Boss   *boss `gqm:"manytoone;ondelete:setnull"`
	DeptID int64 `gqm:"manytoone;table:department"`
}

type lazyEmployee struct {
	ID   int64
	Boss lazy.Value[boss] `gqm:"manytoone;column:chief"`
}

func (lazyEmployee) TableName() string { return "employee" }

type item struct {
	ID     int64
	Orders collection.Set[*order] `gqm:"manytomanyassociation"`
}

type order struct {
	ID    int64
	Items collection.List[*item] `gqm:"manytomany;ondelete:cascade"`
}

type badCollection struct {
	ID    int64
	Items []*item `gqm:"manytomany"`
}

type orphan struct {
	ID      int64
	Workers collection.Set[*item] `gqm:"manytooneassociation"`
}

type twoBosses struct {
	ID     int64
	First  *boss `gqm:"manytoone"`
	Second *boss `gqm:"manytoone"`
}

type ambiguousBoss struct {
	ID   int64
	Subs collection.Set[*twoBosses] `gqm:"manytooneassociation"`
}

func (ambiguousBoss) TableName() string { return "boss" }

type namedBoss struct {
	ID   int64
	Subs collection.Set[*twoBosses] `gqm:"manytooneassociation;property:Second"`
}

func (namedBoss) TableName() string { return "boss" }

func resolve(t *testing.T, r *schema.Resolver, v any) *schema.Bean {
	t.Helper()
	b, err := r.Resolve(reflect.TypeOf(v))
	require.NoError(t, err)
	return b
}

func TestNaming(t *testing.T) {
	assert.Equal(t, "order_item", JoinTableName("order", "item", false))
	assert.Equal(t, "order_item", JoinTableName("item", "order", true))
	assert.Equal(t, "order_id", JoinColumnName("order", "id"))
	assert.Equal(t, "boss_id", ForeignKeyColumnName("boss", "id"))
}

func TestObtainManyToOneDeclarations(t *testing.T) {
	r := schema.NewResolver()
	emp := resolve(t, r, employee{})

	decls, err := ObtainManyToOneDeclarations(r, emp, "", nil)
	require.NoError(t, err)
	require.Len(t, decls, 2)

	obj := decls[0]
	assert.Equal(t, "Boss", obj.Property.Name)
	assert.False(t, obj.Basic)
	assert.False(t, obj.Lazy)
	assert.Equal(t, reflect.TypeOf(boss{}), obj.AssociationType)
	assert.Equal(t, "boss", obj.AssociationTable)
	assert.Equal(t, "id", obj.AssociationColumn)
	assert.Equal(t, "boss_id", obj.ForeignKeyColumn)
	assert.Equal(t, "setnull", obj.OnDelete)

	basic := decls[1]
	assert.True(t, basic.Basic)
	assert.Equal(t, "department", basic.AssociationTable)
	assert.Equal(t, "id", basic.AssociationColumn)
	assert.Equal(t, "dept_id", basic.ForeignKeyColumn)

	// 固定属性与关联类型
	only, err := ObtainManyToOneDeclarations(r, emp, "Boss", nil)
	require.NoError(t, err)
	assert.Len(t, only, 1)

	toBoss, err := ObtainManyToOneDeclarations(r, emp, "", resolve(t, r, boss{}))
	require.NoError(t, err)
	require.Len(t, toBoss, 1)
	assert.Equal(t, "Boss", toBoss[0].Property.Name)

	none, err := ObtainManyToOneDeclarations(r, resolve(t, r, boss{}), "", nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestCreateManyToOneDeclaration_Lazy(t *testing.T) {
	r := schema.NewResolver()
	b := resolve(t, r, lazyEmployee{})
	p, ok := b.Property("Boss")
	require.True(t, ok)

	decl, err := CreateManyToOneDeclaration(r, b, p, nil)
	require.NoError(t, err)
	assert.True(t, decl.Lazy)
	assert.Equal(t, "chief_id", decl.ForeignKeyColumn)
}

func TestCreateManyToOneDeclaration_Incompatible(t *testing.T) {
	r := schema.NewResolver()
	emp := resolve(t, r, employee{})
	p, _ := emp.Property("Boss")

	_, err := CreateManyToOneDeclaration(r, emp, p, reflect.TypeOf(item{}))
	require.Error(t, err)
	assert.True(t, errors.IsRelationship(err))

	decl, err := CreateManyToOneDeclaration(r, emp, p, reflect.TypeOf(&boss{}))
	require.NoError(t, err)
	assert.Equal(t, "boss", decl.AssociationTable)

	name, _ := emp.Property("Name")
	_, err = CreateManyToOneDeclaration(r, emp, name, nil)
	assert.True(t, errors.IsRelationship(err))
}

func TestObtainManyToManyDeclarations(t *testing.T) {
	r := schema.NewResolver()
	o := resolve(t, r, order{})

	decls, err := ObtainManyToManyDeclarations(r, o, false)
	require.NoError(t, err)
	require.Len(t, decls, 1)
	d := decls[0]
	assert.Equal(t, collection.KindList, d.CollectionKind)
	assert.Equal(t, reflect.TypeOf(&item{}), d.ElemType)
	assert.Equal(t, "order_item", d.JoinTable)
	assert.Equal(t, "order_id", d.JoinColumn)
	assert.Equal(t, "item_id", d.AssociationJoinColumn)
	assert.False(t, d.Reversed)

	i := resolve(t, r, item{})
	decls, err = ObtainManyToManyDeclarations(r, i, false)
	require.NoError(t, err)
	assert.Empty(t, decls)

	decls, err = ObtainManyToManyDeclarations(r, i, true)
	require.NoError(t, err)
	require.Len(t, decls, 1)
	assert.True(t, decls[0].Reversed)
	assert.Equal(t, collection.KindSet, decls[0].CollectionKind)
	assert.Equal(t, "order_item", decls[0].JoinTable)
	assert.Equal(t, "item_id", decls[0].JoinColumn)
}

func TestObtainManyToManyDeclarations_UnsupportedType(t *testing.T) {
	r := schema.NewResolver()
	_, err := ObtainManyToManyDeclarations(r, resolve(t, r, badCollection{}), false)
	require.Error(t, err)
	assert.True(t, errors.IsRelationship(err))
}

func TestObtainManyToOneAssociationDeclarations(t *testing.T) {
	r := schema.NewResolver()
	decls, err := ObtainManyToOneAssociationDeclarations(r, resolve(t, r, boss{}))
	require.NoError(t, err)
	require.Len(t, decls, 1)
	d := decls[0]
	assert.Equal(t, reflect.TypeOf(employee{}), d.MainType)
	assert.Equal(t, "Boss", d.MainProperty)
	assert.Equal(t, collection.KindList, d.CollectionKind)
	assert.Equal(t, "boss_id", d.MainDeclaration.ForeignKeyColumn)

	_, err = ObtainManyToOneAssociationDeclarations(r, resolve(t, r, orphan{}))
	assert.True(t, errors.IsRelationship(err))

	_, err = ObtainManyToOneAssociationDeclarations(r, resolve(t, r, ambiguousBoss{}))
	assert.True(t, errors.IsRelationship(err))

	named, err := ObtainManyToOneAssociationDeclarations(r, resolve(t, r, namedBoss{}))
	require.NoError(t, err)
	require.Len(t, named, 1)
	assert.Equal(t, "Second", named[0].MainProperty)
	assert.Equal(t, "second_id", named[0].MainDeclaration.ForeignKeyColumn)
}

func TestCheckCollectionValue(t *testing.T) {
	r := schema.NewResolver()
	o := resolve(t, r, order{})
	p, _ := o.Property("Items")

	var bean order
	field := p.Field(reflect.ValueOf(&bean).Elem())
	items, ok, err := CheckCollectionValue(o, p, field)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, items)

	bean.Items = collection.NewList(&item{ID: 1}, &item{ID: 2})
	items, ok, err = CheckCollectionValue(o, p, field)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, items, 2)

	bean.Items = collection.NewList[*item](nil)
	_, _, err = CheckCollectionValue(o, p, field)
	assert.True(t, errors.IsRelationship(err))

	// 加载失败的代理内容不完整，不能当作空集合
	reset := stdErrors.New("connection reset")
	bean.Items = collection.NewListProxy(context.Background(), func(ctx context.Context) ([]*item, error) {
		return nil, reset
	})
	assert.Equal(t, 0, bean.Items.Len())
	items, ok, err = CheckCollectionValue(o, p, field)
	assert.ErrorIs(t, err, reset)
	assert.True(t, errors.IsDatabase(err))
	assert.False(t, ok)
	assert.Nil(t, items)

	bean.Items.Clear()
	items, ok, err = CheckCollectionValue(o, p, field)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, items)
}

func TestGraph_CachesPerTypeAndTable(t *testing.T) {
	g := NewGraph(schema.NewResolver())
	b := resolve(t, g.Resolver(), order{})

	first, err := g.Of(b)
	require.NoError(t, err)
	second, err := g.Of(b)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.False(t, first.Empty())

	other, err := g.Of(b.WithTable("archived_order"))
	require.NoError(t, err)
	assert.NotSame(t, first, other)
	assert.Equal(t, "archived_order_item", other.ManyToMany[0].JoinTable)
}
