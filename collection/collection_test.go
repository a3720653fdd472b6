package collection

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID   int64
	Name string
}

func TestList(t *testing.T) {
	a, b := &item{ID: 1}, &item{ID: 2}
	l := NewList(a, b, a)

	assert.Equal(t, 3, l.Len())
	assert.Equal(t, KindList, l.Kind())
	assert.Same(t, b, l.At(1))
	assert.True(t, l.Remove(a))
	assert.Equal(t, []*item{b, a}, l.Items())

	l.Set(0, a)
	assert.Equal(t, []*item{a, a}, slices.Collect(l.All()))

	l.Clear()
	assert.Equal(t, 0, l.Len())
	assert.True(t, l.Populated())
	assert.True(t, l.Defined())
}

func TestSet(t *testing.T) {
	a, b := &item{ID: 1}, &item{ID: 2}
	s := NewSet(a, b, a)

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, KindSet, s.Kind())
	assert.True(t, s.Contains(b))
	assert.False(t, s.Contains(&item{ID: 2}))

	s.Add(b)
	assert.Equal(t, 2, s.Len())
}

func TestZeroValue(t *testing.T) {
	var c Collection[*item]
	assert.False(t, c.Defined())
	assert.True(t, c.Populated())
	assert.Equal(t, 0, c.Len())
	assert.False(t, c.Defined())

	c.Add(&item{ID: 1})
	assert.True(t, c.Defined())
	assert.Equal(t, KindCollection, c.Kind())
}

func TestProxy_LoadsOnceOnFirstAccess(t *testing.T) {
	calls := 0
	l := NewListProxy(context.Background(), func(ctx context.Context) ([]*item, error) {
		calls++
		return []*item{{ID: 1}, {ID: 2}}, nil
	})

	assert.False(t, l.Populated())
	assert.True(t, l.Defined())
	assert.Equal(t, 0, calls)

	assert.Equal(t, 2, l.Len())
	assert.True(t, l.Populated())

	// 修改只作用于内存，不会再次加载
	l.Add(&item{ID: 3})
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, int64(3), l.At(2).ID)
	assert.Equal(t, 1, calls)
}

func TestProxy_LoadError(t *testing.T) {
	boom := errors.New("boom")
	s := NewSetProxy(context.Background(), func(ctx context.Context) ([]*item, error) {
		return nil, boom
	})

	assert.Equal(t, 0, s.Len())
	assert.ErrorIs(t, s.Err(), boom)
	assert.ErrorIs(t, s.Load(context.Background()), boom)
	assert.True(t, s.Populated())

	s.Clear()
	assert.NoError(t, s.Err())
	assert.True(t, s.Defined())
}

func TestProxy_ClearSkipsLoad(t *testing.T) {
	calls := 0
	c := NewCollectionProxy(context.Background(), func(ctx context.Context) ([]*item, error) {
		calls++
		return []*item{{ID: 1}}, nil
	})
	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, calls)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		typ  reflect.Type
		kind Kind
		ok   bool
	}{
		{reflect.TypeFor[List[*item]](), KindList, true},
		{reflect.TypeFor[Set[*item]](), KindSet, true},
		{reflect.TypeFor[Collection[*item]](), KindCollection, true},
		{reflect.TypeFor[[]*item](), 0, false},
		{reflect.TypeFor[item](), 0, false},
	}
	for _, tt := range tests {
		kind, elem, ok := Describe(tt.typ)
		assert.Equal(t, tt.ok, ok, tt.typ.String())
		if tt.ok {
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, reflect.TypeFor[*item](), elem)
		}
	}
}

func TestAccessor(t *testing.T) {
	type holder struct {
		Items Set[*item]
	}
	var h holder
	field := reflect.ValueOf(&h).Elem().Field(0)

	a, ok := AccessorOf(field)
	require.True(t, ok)
	assert.False(t, a.Defined())

	one := &item{ID: 1}
	a.SetLoader(context.Background(), func(ctx context.Context) ([]any, error) {
		return []any{one}, nil
	})
	assert.False(t, h.Items.Populated())
	assert.True(t, h.Items.Contains(one))
	assert.True(t, a.Populated())

	a.SetItemsAny([]any{&item{ID: 2}, &item{ID: 3}})
	assert.Equal(t, 2, h.Items.Len())
	assert.Len(t, a.ItemsAny(), 2)

	_, ok = AccessorOf(reflect.ValueOf(h.Items))
	assert.False(t, ok)
}
