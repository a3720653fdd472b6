package outbox

import (
	"context"
	"sync"
	"time"

	"gqm/logging"
	"gqm/notify"
)

// Sender 发布一条通知；notify.Publisher 与 notify.Transport 都满足
type Sender interface {
	Publish(ctx context.Context, msg *notify.Message) error
}

// RelayConfig 中继配置
type RelayConfig struct {
	Interval      time.Duration `yaml:"interval"`
	BatchSize     int           `yaml:"batch_size" validate:"gte=0"`
	MaxRetries    int           `yaml:"max_retries" validate:"gte=0"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	// Retention 已发布记录的保留时长，0 表示不清理
	Retention time.Duration `yaml:"retention"`
}

// DefaultRelayConfig 默认中继配置
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		Interval:      time.Second,
		BatchSize:     100,
		MaxRetries:    5,
		RetryInterval: 10 * time.Second,
		Retention:     24 * time.Hour,
	}
}

// Relay 周期性地把待发布记录交给 Sender
type Relay struct {
	outbox *Outbox
	sender Sender
	cfg    RelayConfig
	logger logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRelay 创建中继；cfg 中的零值取默认值
func NewRelay(o *Outbox, sender Sender, cfg RelayConfig) *Relay {
	def := DefaultRelayConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	return &Relay{outbox: o, sender: sender, cfg: cfg, logger: o.logger}
}

// Start 启动后台循环；重复调用无效
func (r *Relay) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx, r.done)
}

// Stop 停止后台循环并等待本轮结束
func (r *Relay) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (r *Relay) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.PublishPending(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error(ctx, "outbox relay round failed", logging.Error(err))
			}
			if r.cfg.Retention > 0 {
				if _, err := r.outbox.DeletePublished(ctx, time.Now().Add(-r.cfg.Retention)); err != nil && ctx.Err() == nil {
					r.logger.Warn(ctx, "outbox cleanup failed", logging.Error(err))
				}
			}
		}
	}
}

// PublishPending 发布一批待发布记录，返回成功发布的条数
//
// 单条发布失败只标记为 failed 等待重试；读取或更新发件箱失败时返回错误。
func (r *Relay) PublishPending(ctx context.Context) (int, error) {
	entries, err := r.outbox.Pending(ctx, r.cfg.BatchSize, r.cfg.MaxRetries)
	if err != nil {
		return 0, err
	}

	published := 0
	for i := range entries {
		e := &entries[i]
		msg, err := e.Message()
		if err == nil {
			err = r.sender.Publish(ctx, msg)
		}
		if err != nil {
			r.logger.Warn(ctx, "outbox publish failed",
				logging.String("entry", e.ID),
				logging.String("subject", e.Subject),
				logging.Int("retry_count", e.RetryCount),
				logging.Error(err))
			if markErr := r.outbox.MarkFailed(ctx, e.ID, err.Error(), e.NextRetry(r.outbox.now(), r.cfg.RetryInterval)); markErr != nil {
				return published, markErr
			}
			continue
		}
		if err := r.outbox.MarkPublished(ctx, e.ID); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}
