// Package cache 元数据缓存
//
// schema 解析和关系图计算都只依赖类型本身，结果在进程内不会变化。Cache 在
// hashicorp/golang-lru 之上增加按键合并的加载：同一个键的并发未命中只调用一次 load。
package cache

import (
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxSize 未指定容量时的条目上限
const DefaultMaxSize = 4096

// Config 缓存配置
type Config struct {
	// Name 缓存名称，出现在 String() 中
	Name string

	// MaxSize 最大条目数，<= 0 时使用 DefaultMaxSize
	MaxSize int

	// OnEvict 条目离开缓存时的回调（可选），Delete 和 Clear 同样触发
	OnEvict func(key, value any)
}

// Stats 统计信息；Evictions 包含 Delete 和 Clear 移除的条目
type Stats struct {
	Hits      int64
	Misses    int64
	Loads     int64
	Evictions int64
	Size      int
}

// call 正在进行的一次加载
type call[V any] struct {
	wg    sync.WaitGroup
	value V
	err   error
}

// Cache 并发安全的 LRU 缓存
type Cache[K comparable, V any] struct {
	name  string
	items *lru.Cache[K, V]

	mu       sync.Mutex
	inflight map[K]*call[V]

	hits      atomic.Int64
	misses    atomic.Int64
	loads     atomic.Int64
	evictions atomic.Int64
}

// New 创建缓存
func New[K comparable, V any](config Config) *Cache[K, V] {
	if config.Name == "" {
		config.Name = "unnamed"
	}
	size := config.MaxSize
	if size <= 0 {
		size = DefaultMaxSize
	}

	c := &Cache[K, V]{
		name:     config.Name,
		inflight: make(map[K]*call[V]),
	}
	onEvict := config.OnEvict
	items, err := lru.NewWithEvict[K, V](size, func(key K, value V) {
		c.evictions.Add(1)
		if onEvict != nil {
			onEvict(key, value)
		}
	})
	if err != nil {
		// 只有 size <= 0 时才会失败
		panic(err)
	}
	c.items = items
	return c
}

// Get 获取缓存值
func (c *Cache[K, V]) Get(key K) (V, bool) {
	v, ok := c.items.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set 写入缓存值
func (c *Cache[K, V]) Set(key K, value V) {
	c.items.Add(key, value)
}

// GetOrLoad 获取缓存值，未命中时调用 load 加载并写入
//
// 同一个键的并发未命中共享一次 load 的结果；load 返回错误时不写入缓存。
func (c *Cache[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	c.mu.Lock()
	if cl, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		cl.wg.Wait()
		return cl.value, cl.err
	}
	// 等待锁期间另一个加载可能已经完成
	if v, ok := c.items.Get(key); ok {
		c.mu.Unlock()
		return v, nil
	}
	cl := &call[V]{}
	cl.wg.Add(1)
	c.inflight[key] = cl
	c.mu.Unlock()

	c.loads.Add(1)
	cl.value, cl.err = load()
	if cl.err == nil {
		c.items.Add(key, cl.value)
	}

	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()
	cl.wg.Done()

	return cl.value, cl.err
}

// Delete 删除条目，返回是否存在
func (c *Cache[K, V]) Delete(key K) bool {
	return c.items.Remove(key)
}

// Clear 清空缓存
func (c *Cache[K, V]) Clear() {
	c.items.Purge()
}

// Size 当前条目数
func (c *Cache[K, V]) Size() int {
	return c.items.Len()
}

// Stats 返回统计快照
func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Loads:     c.loads.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.items.Len(),
	}
}

func (c *Cache[K, V]) String() string {
	s := c.Stats()
	return fmt.Sprintf("Cache[%s]{size=%d, hits=%d, misses=%d, loads=%d, evictions=%d}",
		c.name, s.Size, s.Hits, s.Misses, s.Loads, s.Evictions)
}
