// Package redisstreams 基于 Redis Streams 消费组的通知传输
package redisstreams

import (
	"context"
	stdErrors "errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"gqm/errors"
	"gqm/logging"
	"gqm/notify"
)

// client go-redis 中用到的命令
type client interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	Close() error
}

// Config Redis Streams 传输配置
type Config struct {
	Client       redis.UniversalClient `yaml:"-"`
	Addr         string                `yaml:"addr"`
	Username     string                `yaml:"username"`
	Password     string                `yaml:"password"`
	DB           int                   `yaml:"db"`
	StreamPrefix string                `yaml:"stream_prefix"`
	GroupName    string                `yaml:"group"`
	ConsumerName string                `yaml:"consumer"`
	BlockTimeout time.Duration         `yaml:"block_timeout"`
	ReadCount    int64                 `yaml:"read_count"`
	// MaxLen 每个流保留的近似最大长度，0 表示不裁剪
	MaxLen int64          `yaml:"max_len"`
	Codec  notify.Codec   `yaml:"-"`
	Logger logging.Logger `yaml:"-"`

	MinReadBackoff time.Duration `yaml:"min_read_backoff"`
	MaxReadBackoff time.Duration `yaml:"max_read_backoff"`
}

// Transport 每个主题一个流，每个订阅的主题一个读协程
//
// 不支持 notify.Wildcard。
type Transport struct {
	cfg       Config
	client    client
	ownClient bool
	logger    logging.Logger

	handlers map[string][]notify.Handler
	readers  map[string]bool

	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ notify.Transport = (*Transport)(nil)

// NewTransport 创建传输；cfg.Client 为空时按地址创建并在 Close 时关闭
func NewTransport(cfg Config) *Transport {
	var cl client
	own := false
	if cfg.Client != nil {
		cl = cfg.Client
	} else {
		cl = redis.NewClient(&redis.Options{Addr: cfg.Addr, Username: cfg.Username, Password: cfg.Password, DB: cfg.DB})
		own = true
	}
	return newTransport(cfg, cl, own)
}

func newTransport(cfg Config, cl client, own bool) *Transport {
	if cfg.StreamPrefix == "" {
		cfg.StreamPrefix = "gqm:"
	}
	if cfg.GroupName == "" {
		cfg.GroupName = "gqm"
	}
	if cfg.ConsumerName == "" {
		cfg.ConsumerName = "consumer-" + uuid.NewString()
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ReadCount <= 0 {
		cfg.ReadCount = 10
	}
	if cfg.MinReadBackoff <= 0 {
		cfg.MinReadBackoff = 100 * time.Millisecond
	}
	if cfg.MaxReadBackoff <= 0 {
		cfg.MaxReadBackoff = 5 * time.Second
	}
	if cfg.Codec == nil {
		cfg.Codec = notify.JSON
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetLogger().WithFields(logging.String("component", "notify.redisstreams"))
	}
	return &Transport{
		cfg:       cfg,
		client:    cl,
		ownClient: own,
		logger:    cfg.Logger,
		handlers:  make(map[string][]notify.Handler),
		readers:   make(map[string]bool),
	}
}

func (t *Transport) Publish(ctx context.Context, msg *notify.Message) error {
	values, err := t.encode(msg)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{Stream: t.streamName(msg.Subject()), Values: values}
	if t.cfg.MaxLen > 0 {
		args.MaxLen = t.cfg.MaxLen
		args.Approx = true
	}
	if err := t.client.XAdd(ctx, args).Err(); err != nil {
		return errors.WrapError(err, errors.ErrCodeQueue, "xadd "+args.Stream)
	}
	return nil
}

func (t *Transport) Subscribe(subject string, handler notify.Handler) error {
	if subject == notify.Wildcard {
		return errors.NewError(errors.ErrCodeUnsupported, "redis streams transport does not support wildcard subscriptions")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[subject] = append(t.handlers[subject], handler)
	if t.running {
		t.startReaderLocked(subject)
	}
	return nil
}

func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return errors.NewError(errors.ErrCodeQueue, "redis streams transport already running")
	}
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.running = true
	for subject := range t.handlers {
		t.startReaderLocked(subject)
	}
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	cancel := t.cancel
	t.running = false
	t.cancel = nil
	t.readers = make(map[string]bool)
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
	if t.ownClient {
		return t.client.Close()
	}
	return nil
}

func (t *Transport) Stats() notify.Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	stats := notify.Stats{Running: t.running, Subjects: make([]string, 0, len(t.handlers))}
	for subject, hs := range t.handlers {
		stats.HandlerCount += len(hs)
		stats.Subjects = append(stats.Subjects, subject)
	}
	return stats
}

func (t *Transport) startReaderLocked(subject string) {
	if t.readers[subject] {
		return
	}
	t.readers[subject] = true
	t.wg.Add(1)
	go t.readLoop(t.ctx, subject)
}

func (t *Transport) readLoop(ctx context.Context, subject string) {
	defer t.wg.Done()
	stream := t.streamName(subject)
	if err := t.ensureGroup(ctx, stream); err != nil {
		t.logger.Warn(ctx, "ensure consumer group failed", logging.String("stream", stream), logging.Error(err))
	}
	args := &redis.XReadGroupArgs{
		Group:    t.cfg.GroupName,
		Consumer: t.cfg.ConsumerName,
		Streams:  []string{stream, ">"},
		Count:    t.cfg.ReadCount,
		Block:    t.cfg.BlockTimeout,
	}
	backoff := t.cfg.MinReadBackoff
	for ctx.Err() == nil {
		res, err := t.client.XReadGroup(ctx, args).Result()
		if err != nil {
			if stdErrors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			t.logger.Warn(ctx, "xreadgroup failed", logging.Duration("backoff", backoff), logging.Error(err))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			backoff = min(backoff*2, t.cfg.MaxReadBackoff)
			continue
		}
		backoff = t.cfg.MinReadBackoff
		for _, sr := range res {
			for _, entry := range sr.Messages {
				t.consume(ctx, sr.Stream, entry)
			}
		}
	}
}

// consume 分发一条记录并确认；无法解码的记录也确认，避免反复投递
func (t *Transport) consume(ctx context.Context, stream string, entry redis.XMessage) {
	msg, err := t.decode(entry)
	if err != nil {
		t.logger.Warn(ctx, "decode stream entry failed", logging.String("entry", entry.ID), logging.Error(err))
	} else {
		t.dispatch(ctx, msg)
	}
	if err := t.client.XAck(ctx, stream, t.cfg.GroupName, entry.ID).Err(); err != nil {
		t.logger.Warn(ctx, "xack failed", logging.String("entry", entry.ID), logging.Error(err))
	}
}

func (t *Transport) ensureGroup(ctx context.Context, stream string) error {
	err := t.client.XGroupCreateMkStream(ctx, stream, t.cfg.GroupName, "0").Err()
	if err == nil || strings.Contains(strings.ToUpper(err.Error()), "BUSYGROUP") {
		return nil
	}
	return err
}

func (t *Transport) dispatch(ctx context.Context, msg *notify.Message) {
	t.mu.RLock()
	handlers := append([]notify.Handler(nil), t.handlers[msg.Subject()]...)
	t.mu.RUnlock()

	for _, h := range handlers {
		if err := h.Handle(ctx, msg); err != nil {
			t.logger.Warn(ctx, "notification handler failed",
				logging.String("subject", msg.Subject()),
				logging.String("message_id", msg.ID),
				logging.Error(err))
		}
	}
}

func (t *Transport) streamName(subject string) string {
	return t.cfg.StreamPrefix + subject
}

func (t *Transport) encode(msg *notify.Message) (map[string]any, error) {
	data, err := t.cfg.Codec.Marshal(msg)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeQueue, "encode notification")
	}
	return map[string]any{
		"codec": t.cfg.Codec.Name(),
		"data":  string(data),
	}, nil
}

func (t *Transport) decode(entry redis.XMessage) (*notify.Message, error) {
	name, _ := entry.Values["codec"].(string)
	codec, err := notify.CodecByName(name)
	if err != nil {
		return nil, err
	}
	data, ok := entry.Values["data"].(string)
	if !ok {
		return nil, errors.Newf(errors.ErrCodeQueue, "stream entry %s has no data", entry.ID)
	}
	return codec.Unmarshal([]byte(data))
}
