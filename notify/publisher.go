package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"gqm/errors"
	"gqm/logging"
	"gqm/manager"
)

// Recorder 接收每次发布的结果，metrics.Collector 实现了它
type Recorder interface {
	RecordPublish(subject string, err error)
}

// BreakerConfig 发布熔断配置
type BreakerConfig struct {
	// MaxRequests 半开状态允许通过的请求数
	MaxRequests uint32 `yaml:"max_requests"`
	// Interval 闭合状态下清零计数的周期，0 表示不清零
	Interval time.Duration `yaml:"interval"`
	// Timeout 打开状态持续多久后进入半开
	Timeout time.Duration `yaml:"timeout"`
	// ConsecutiveFailures 连续失败多少次后打开
	ConsecutiveFailures uint32 `yaml:"consecutive_failures"`
}

// DefaultBreakerConfig 默认熔断配置
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// PublisherOption Publisher 选项
type PublisherOption func(*Publisher)

// WithKinds 只发布指定种类的事件，默认发布除 restored 外的所有事件
func WithKinds(kinds ...manager.EventKind) PublisherOption {
	return func(p *Publisher) {
		p.kinds = make(map[manager.EventKind]bool, len(kinds))
		for _, k := range kinds {
			p.kinds[k] = true
		}
	}
}

// WithBreaker 设置熔断配置
func WithBreaker(cfg BreakerConfig) PublisherOption {
	return func(p *Publisher) {
		p.breakerCfg = cfg
	}
}

// WithRetry 设置发布重试，默认不重试
func WithRetry(cfg RetryConfig) PublisherOption {
	return func(p *Publisher) {
		p.retry = cfg
	}
}

// WithRecorder 设置发布结果的记录器
func WithRecorder(r Recorder) PublisherOption {
	return func(p *Publisher) {
		p.recorder = r
	}
}

// WithPublisherLogger 设置日志器
func WithPublisherLogger(logger logging.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetadata 为每条消息附加固定元数据（例如服务名）
func WithMetadata(md map[string]string) PublisherOption {
	return func(p *Publisher) {
		p.metadata = md
	}
}

// Publisher 把管理器事件转换为 Message 并发布
//
// 监听器不能否决操作，发布失败只记录日志；传输连续失败时熔断，打开期间直接丢弃通知。
type Publisher struct {
	transport  Transport
	breaker    *gobreaker.CircuitBreaker
	breakerCfg BreakerConfig
	retry      RetryConfig
	kinds      map[manager.EventKind]bool
	metadata   map[string]string
	recorder   Recorder
	logger     logging.Logger
	now        func() time.Time
}

var _ manager.EventListener = (*Publisher)(nil)

// NewPublisher 创建发布器
func NewPublisher(transport Transport, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		transport:  transport,
		breakerCfg: DefaultBreakerConfig(),
		retry:      RetryConfig{MaxAttempts: 1},
		kinds: map[manager.EventKind]bool{
			manager.EventInstalled: true,
			manager.EventRemoved:   true,
			manager.EventInserted:  true,
			manager.EventUpdated:   true,
			manager.EventDeleted:   true,
		},
		logger: logging.GetLogger().WithFields(logging.String("component", "notify.publisher")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	cfg := p.breakerCfg
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gqm.notify",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn(context.Background(), "notify breaker state changed",
				logging.String("breaker", name),
				logging.String("from", from.String()),
				logging.String("to", to.String()))
		},
	})
	return p
}

// State 熔断器当前状态
func (p *Publisher) State() gobreaker.State {
	return p.breaker.State()
}

// OnEvent 实现 manager.EventListener
func (p *Publisher) OnEvent(ctx context.Context, event manager.Event) {
	if !p.kinds[event.Kind] {
		return
	}
	msg := p.message(event)
	if err := p.Publish(ctx, msg); err != nil {
		p.logger.Warn(ctx, "publish change notification failed",
			logging.String("subject", msg.Subject()),
			logging.Int64("bean_id", msg.BeanID),
			logging.Error(err))
	}
}

// Publish 经过熔断器发布一条消息
func (p *Publisher) Publish(ctx context.Context, msg *Message) error {
	_, err := p.breaker.Execute(func() (any, error) {
		return nil, retry(ctx, p.retry, func(ctx context.Context) error {
			return p.transport.Publish(ctx, msg)
		})
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		err = errors.WrapError(err, errors.ErrCodeQueue, "notify: publishing suspended")
	}
	if p.recorder != nil {
		p.recorder.RecordPublish(msg.Subject(), err)
	}
	return err
}

func (p *Publisher) message(event manager.Event) *Message {
	msg := &Message{
		ID:        uuid.NewString(),
		Kind:      string(event.Kind),
		Table:     event.Table,
		BeanID:    event.ID,
		Timestamp: p.now().UTC(),
	}
	if event.Type != nil {
		msg.Type = event.Type.String()
	}
	if len(p.metadata) > 0 {
		msg.Metadata = make(map[string]string, len(p.metadata))
		for k, v := range p.metadata {
			msg.Metadata[k] = v
		}
	}
	return msg
}
