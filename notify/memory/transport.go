// Package memory 基于内存队列的通知传输，适用于单机部署和测试
package memory

import (
	"context"
	"sync"

	"gqm/errors"
	"gqm/logging"
	"gqm/notify"
)

// Config 内存传输配置
type Config struct {
	// QueueSize 队列容量，<=0 时为 1000
	QueueSize int `yaml:"queue_size"`
	// Workers 处理协程数，<=0 时为 4
	Workers int            `yaml:"workers"`
	Logger  logging.Logger `yaml:"-"`
}

// Transport 内存通知传输
//
// Publish 只入队，由 worker 池异步分发；队列满时返回 QUEUE_ERROR。
// 支持 notify.Wildcard 订阅。
type Transport struct {
	handlers map[string][]notify.Handler
	queue    chan *notify.Message
	cfg      Config
	logger   logging.Logger

	running bool
	mu      sync.RWMutex
	wg      sync.WaitGroup
}

var _ notify.Transport = (*Transport)(nil)

// NewTransport 创建内存传输
func NewTransport(cfg Config) *Transport {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetLogger().WithFields(logging.String("component", "notify.memory"))
	}
	return &Transport{
		handlers: make(map[string][]notify.Handler),
		queue:    make(chan *notify.Message, cfg.QueueSize),
		cfg:      cfg,
		logger:   logger,
	}
}

func (t *Transport) Publish(ctx context.Context, msg *notify.Message) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.running {
		return errors.NewError(errors.ErrCodeQueue, "memory transport is not running")
	}

	select {
	case t.queue <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.NewError(errors.ErrCodeQueue, "notification queue is full")
	}
}

func (t *Transport) Subscribe(subject string, handler notify.Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[subject] = append(t.handlers[subject], handler)
	return nil
}

// Start 启动 worker 池
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return errors.NewError(errors.ErrCodeQueue, "memory transport is already running")
	}
	t.running = true
	for i := 0; i < t.cfg.Workers; i++ {
		t.wg.Add(1)
		go t.worker(ctx)
	}
	return nil
}

// Close 关闭队列，等待已入队的消息分发完毕
func (t *Transport) Close() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	close(t.queue)
	t.mu.Unlock()

	t.wg.Wait()
	return nil
}

func (t *Transport) Stats() notify.Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	stats := notify.Stats{
		Running:     t.running,
		Subjects:    make([]string, 0, len(t.handlers)),
		QueueSize:   t.cfg.QueueSize,
		QueueDepth:  len(t.queue),
		WorkerCount: t.cfg.Workers,
	}
	for subject, hs := range t.handlers {
		stats.Subjects = append(stats.Subjects, subject)
		stats.HandlerCount += len(hs)
	}
	return stats
}

func (t *Transport) worker(ctx context.Context) {
	defer t.wg.Done()
	for {
		select {
		case msg, ok := <-t.queue:
			if !ok {
				return
			}
			t.dispatch(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

// dispatch 先精确匹配，再通配订阅；处理器错误只记录
func (t *Transport) dispatch(ctx context.Context, msg *notify.Message) {
	subject := msg.Subject()
	t.mu.RLock()
	exact := t.handlers[subject]
	wildcard := t.handlers[notify.Wildcard]
	handlers := make([]notify.Handler, 0, len(exact)+len(wildcard))
	handlers = append(handlers, exact...)
	handlers = append(handlers, wildcard...)
	t.mu.RUnlock()

	for _, h := range handlers {
		if err := h.Handle(ctx, msg); err != nil {
			t.logger.Warn(ctx, "notification handler failed",
				logging.String("subject", subject),
				logging.String("message_id", msg.ID),
				logging.Error(err))
		}
	}
}
