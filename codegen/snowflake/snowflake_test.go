package snowflake

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gqm/errors"
)

// TestNewGenerator 测试生成器创建
func TestNewGenerator(t *testing.T) {
	tests := []struct {
		name         string
		datacenterID int64
		workerID     int64
		expectError  bool
	}{
		{"有效的datacenterID和workerID", 1, 1, false},
		{"datacenterID超出范围-负数", -1, 1, true},
		{"datacenterID超出范围-超过最大值", 32, 1, true},
		{"workerID超出范围-负数", 1, -1, true},
		{"workerID超出范围-超过最大值", 1, 32, true},
		{"边界值-最大", 31, 31, false},
		{"边界值-最小", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, err := NewGenerator(tt.datacenterID, tt.workerID)
			if tt.expectError {
				require.Error(t, err)
				assert.True(t, errors.IsConfiguration(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.datacenterID, gen.datacenterID)
			assert.Equal(t, tt.workerID, gen.workerID)
		})
	}
}

// TestNextID_Uniqueness 测试标识唯一且为正数
func TestNextID_Uniqueness(t *testing.T) {
	gen, err := NewGenerator(1, 1)
	require.NoError(t, err)

	const count = 10000
	ids := make(map[int64]struct{}, count)
	for i := 0; i < count; i++ {
		id, err := gen.NextID()
		require.NoError(t, err)
		require.Positive(t, id)
		_, dup := ids[id]
		require.False(t, dup, "重复的标识 %d", id)
		ids[id] = struct{}{}
	}
}

// TestNextID_Concurrent 测试并发安全性
func TestNextID_Concurrent(t *testing.T) {
	gen, err := NewGenerator(1, 1)
	require.NoError(t, err)

	const goroutines = 10
	const perG = 1000

	var mu sync.Mutex
	var wg sync.WaitGroup
	ids := make(map[int64]struct{}, goroutines*perG)

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, perG)
			for i := 0; i < perG; i++ {
				id, err := gen.NextID()
				if err != nil {
					t.Error(err)
					return
				}
				local = append(local, id)
			}
			mu.Lock()
			for _, id := range local {
				ids[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, ids, goroutines*perG)
}

// TestNextID_ClockBackwards 测试时钟回拨
func TestNextID_ClockBackwards(t *testing.T) {
	gen, err := NewGenerator(0, 0)
	require.NoError(t, err)

	now := DefaultEpoch + 1000
	gen.now = func() int64 { return now }

	_, err = gen.NextID()
	require.NoError(t, err)

	now -= 5
	_, err = gen.NextID()
	assert.Error(t, err)
}

// TestNextID_SequenceOverflow 测试同一毫秒内序列号用完后等待下一毫秒
func TestNextID_SequenceOverflow(t *testing.T) {
	gen, err := NewGenerator(1, 1)
	require.NoError(t, err)

	calls := 0
	base := DefaultEpoch + 10
	gen.now = func() int64 {
		calls++
		// 前 4097 次调用停留在同一毫秒
		if calls <= maxSequence+2 {
			return base
		}
		return base + 1
	}

	var last int64
	for i := 0; i <= maxSequence+1; i++ {
		id, err := gen.NextID()
		require.NoError(t, err)
		require.Greater(t, id, last)
		last = id
	}
	assert.Equal(t, base+1, gen.Parse(last).Timestamp.UnixMilli())
	assert.Equal(t, int64(0), gen.Parse(last).Sequence)
}

// TestParse 测试拆解标识
func TestParse(t *testing.T) {
	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	gen, err := New(Config{DatacenterID: 5, WorkerID: 10, Epoch: epoch})
	require.NoError(t, err)

	before := time.Now().UnixMilli()
	id, err := gen.NextID()
	require.NoError(t, err)
	after := time.Now().UnixMilli()

	parts := gen.Parse(id)
	assert.Equal(t, int64(5), parts.DatacenterID)
	assert.Equal(t, int64(10), parts.WorkerID)
	assert.Equal(t, int64(0), parts.Sequence)
	assert.GreaterOrEqual(t, parts.Timestamp.UnixMilli(), before)
	assert.LessOrEqual(t, parts.Timestamp.UnixMilli(), after)
}

// BenchmarkNextID 基准测试：单线程生成标识
func BenchmarkNextID(b *testing.B) {
	gen, err := NewGenerator(1, 1)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = gen.NextID()
	}
}
