package cache

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type person struct{ ID int64 }

type address struct{ ID int64 }

func TestCache_GetSetDelete(t *testing.T) {
	c := New[reflect.Type, string](Config{Name: "schema"})

	_, ok := c.Get(reflect.TypeFor[person]())
	assert.False(t, ok)

	c.Set(reflect.TypeFor[person](), "person")
	v, ok := c.Get(reflect.TypeFor[person]())
	require.True(t, ok)
	assert.Equal(t, "person", v)

	assert.True(t, c.Delete(reflect.TypeFor[person]()))
	assert.False(t, c.Delete(reflect.TypeFor[person]()))
	assert.Equal(t, 0, c.Size())

	s := c.Stats()
	assert.Equal(t, int64(1), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
}

func TestCache_LRUEviction(t *testing.T) {
	var evicted []any
	c := New[string, int](Config{
		MaxSize: 2,
		OnEvict: func(key, _ any) { evicted = append(evicted, key) },
	})
	c.Set("person", 1)
	c.Set("address", 2)
	_, _ = c.Get("person")
	c.Set("parcel", 3)

	_, ok := c.Get("address")
	assert.False(t, ok)
	assert.Equal(t, []any{"address"}, evicted)
	assert.Equal(t, 2, c.Size())
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestCache_GetOrLoad(t *testing.T) {
	c := New[reflect.Type, string](Config{Name: "relation"})
	calls := 0
	load := func() (string, error) {
		calls++
		return "address", nil
	}

	v, err := c.GetOrLoad(reflect.TypeFor[address](), load)
	require.NoError(t, err)
	assert.Equal(t, "address", v)
	v, err = c.GetOrLoad(reflect.TypeFor[address](), load)
	require.NoError(t, err)
	assert.Equal(t, "address", v)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(1), c.Stats().Loads)
}

func TestCache_GetOrLoad_ErrorNotCached(t *testing.T) {
	c := New[string, int](Config{})
	boom := errors.New("boom")

	_, err := c.GetOrLoad("person", func() (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Size())

	v, err := c.GetOrLoad("person", func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestCache_GetOrLoad_Concurrent(t *testing.T) {
	c := New[string, int](Config{})
	var calls atomic.Int32
	release := make(chan struct{})

	const n = 16
	var wg sync.WaitGroup
	results := make([]int, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrLoad("person", func() (int, error) {
				calls.Add(1)
				<-release
				return 42, nil
			})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestCache_Clear(t *testing.T) {
	c := New[string, int](Config{Name: "schema"})
	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()
	assert.Equal(t, 0, c.Size())
	assert.Contains(t, c.String(), "Cache[schema]{size=0")
}
