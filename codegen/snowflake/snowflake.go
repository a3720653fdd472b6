// Package snowflake 雪花算法标识生成器
//
// 生成的标识为正的 int64，可作为管理器的标识生成器使用（manager.SnowflakeGenerator），
// 此时不需要数据库序列。位布局：41 位毫秒时间戳 | 5 位数据中心 | 5 位节点 | 12 位序列。
package snowflake

import (
	"sync"
	"time"

	"gqm/errors"
)

// DefaultEpoch 默认起始时间 2023-01-01 00:00:00 UTC（毫秒）
const DefaultEpoch int64 = 1672531200000

const (
	workerIDBits     = 5
	datacenterIDBits = 5
	sequenceBits     = 12

	MaxWorkerID     = -1 ^ (-1 << workerIDBits)
	MaxDatacenterID = -1 ^ (-1 << datacenterIDBits)
	maxSequence     = -1 ^ (-1 << sequenceBits)

	workerIDShift      = sequenceBits
	datacenterIDShift  = sequenceBits + workerIDBits
	timestampLeftShift = sequenceBits + workerIDBits + datacenterIDBits
)

// Config 生成器配置
type Config struct {
	DatacenterID int64 `yaml:"datacenter_id" validate:"gte=0,lte=31"`
	WorkerID     int64 `yaml:"worker_id" validate:"gte=0,lte=31"`
	// Epoch 起始时间（毫秒），0 表示 DefaultEpoch
	Epoch int64 `yaml:"epoch" validate:"gte=0"`
}

// Generator 并发安全的标识生成器
type Generator struct {
	mu            sync.Mutex
	epoch         int64
	datacenterID  int64
	workerID      int64
	sequence      int64
	lastTimestamp int64

	now func() int64
}

// NewGenerator 创建生成器；数据中心或节点超出 [0, 31] 时返回配置错误
func NewGenerator(datacenterID, workerID int64) (*Generator, error) {
	return New(Config{DatacenterID: datacenterID, WorkerID: workerID})
}

// New 按配置创建生成器
func New(cfg Config) (*Generator, error) {
	if cfg.DatacenterID < 0 || cfg.DatacenterID > MaxDatacenterID {
		return nil, errors.NewConfigurationError("snowflake: datacenter id %d out of range [0, %d]", cfg.DatacenterID, MaxDatacenterID)
	}
	if cfg.WorkerID < 0 || cfg.WorkerID > MaxWorkerID {
		return nil, errors.NewConfigurationError("snowflake: worker id %d out of range [0, %d]", cfg.WorkerID, MaxWorkerID)
	}
	epoch := cfg.Epoch
	if epoch == 0 {
		epoch = DefaultEpoch
	}
	return &Generator{
		epoch:         epoch,
		datacenterID:  cfg.DatacenterID,
		workerID:      cfg.WorkerID,
		lastTimestamp: -1,
		now:           func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// NextID 生成下一个标识；时钟回拨时返回错误
func (g *Generator) NextID() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now < g.lastTimestamp {
		return 0, errors.Newf(errors.ErrCodeInternal, "snowflake: clock moved backwards by %dms", g.lastTimestamp-now)
	}

	if now == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			for now <= g.lastTimestamp {
				now = g.now()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastTimestamp = now

	return ((now - g.epoch) << timestampLeftShift) |
		(g.datacenterID << datacenterIDShift) |
		(g.workerID << workerIDShift) |
		g.sequence, nil
}

// Parts 标识的组成部分
type Parts struct {
	Timestamp    time.Time
	DatacenterID int64
	WorkerID     int64
	Sequence     int64
}

// Parse 拆解由本生成器生成的标识
func (g *Generator) Parse(id int64) Parts {
	return Parts{
		Timestamp:    time.UnixMilli((id >> timestampLeftShift) + g.epoch).UTC(),
		DatacenterID: (id >> datacenterIDShift) & MaxDatacenterID,
		WorkerID:     (id >> workerIDShift) & MaxWorkerID,
		Sequence:     id & maxSequence,
	}
}
