// Package natsjetstream 基于 NATS JetStream 的通知传输
package natsjetstream

import (
	"context"
	stdErrors "errors"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"gqm/errors"
	"gqm/logging"
	"gqm/notify"
)

// Config JetStream 传输配置
type Config struct {
	URL           string        `yaml:"url"`
	Stream        string        `yaml:"stream"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	DurablePrefix string        `yaml:"durable_prefix"`
	AckWait       time.Duration `yaml:"ack_wait"`
	MaxAckPending int           `yaml:"max_ack_pending"`
	// Retention limits|interest|workqueue，默认 limits
	Retention string `yaml:"retention" validate:"omitempty,oneof=limits interest workqueue"`
	MaxBytes  int64  `yaml:"max_bytes"`
	Replicas  int    `yaml:"replicas"`

	Conn   *nats.Conn     `yaml:"-"`
	Codec  notify.Codec   `yaml:"-"`
	Logger logging.Logger `yaml:"-"`
}

// Transport 所有主题写入同一个流，订阅使用持久化队列消费者
//
// notify.Wildcard 订阅映射为前缀下的 ">"。
type Transport struct {
	cfg      Config
	logger   logging.Logger
	conn     *nats.Conn
	js       nats.JetStreamContext
	ownsConn bool

	handlers map[string][]notify.Handler
	subs     map[string]*nats.Subscription

	mu      sync.RWMutex
	running bool
}

var _ notify.Transport = (*Transport)(nil)

// NewTransport 创建传输；Start 时才建立连接
func NewTransport(cfg Config) *Transport {
	if cfg.Stream == "" {
		cfg.Stream = "GQM"
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "gqm."
	}
	if cfg.DurablePrefix == "" {
		cfg.DurablePrefix = "gqm-"
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}
	if cfg.MaxAckPending <= 0 {
		cfg.MaxAckPending = 1024
	}
	if cfg.Codec == nil {
		cfg.Codec = notify.JSON
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetLogger().WithFields(logging.String("component", "notify.nats"))
	}
	return &Transport{
		cfg:      cfg,
		logger:   cfg.Logger,
		handlers: make(map[string][]notify.Handler),
		subs:     make(map[string]*nats.Subscription),
	}
}

func (t *Transport) Publish(ctx context.Context, msg *notify.Message) error {
	t.mu.RLock()
	js := t.js
	t.mu.RUnlock()
	if js == nil {
		return errors.NewError(errors.ErrCodeQueue, "nats transport not running")
	}
	data, err := t.cfg.Codec.Marshal(msg)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeQueue, "encode notification")
	}
	out := nats.NewMsg(t.subjectName(msg.Subject()))
	out.Data = data
	out.Header.Set(nats.MsgIdHdr, msg.ID)
	out.Header.Set("Gqm-Codec", t.cfg.Codec.Name())
	if _, err := js.PublishMsg(out, nats.Context(ctx)); err != nil {
		return errors.WrapError(err, errors.ErrCodeQueue, "publish "+out.Subject)
	}
	return nil
}

func (t *Transport) Subscribe(subject string, handler notify.Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[subject] = append(t.handlers[subject], handler)
	if t.running {
		return t.subscribeLocked(subject)
	}
	return nil
}

func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return errors.NewError(errors.ErrCodeQueue, "nats transport already running")
	}
	if err := t.connectLocked(); err != nil {
		return errors.WrapError(err, errors.ErrCodeQueue, "connect nats")
	}
	if err := t.ensureStreamLocked(); err != nil {
		return errors.WrapError(err, errors.ErrCodeQueue, "ensure stream "+t.cfg.Stream)
	}
	for subject := range t.handlers {
		if err := t.subscribeLocked(subject); err != nil {
			return err
		}
	}
	t.running = true
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for subject, sub := range t.subs {
		_ = sub.Drain()
		delete(t.subs, subject)
	}
	if t.ownsConn && t.conn != nil {
		t.conn.Close()
	}
	t.running = false
	t.conn = nil
	t.js = nil
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

func (t *Transport) connectLocked() error {
	if t.cfg.Conn != nil {
		t.conn = t.cfg.Conn
	} else {
		url := t.cfg.URL
		if url == "" {
			url = nats.DefaultURL
		}
		conn, err := nats.Connect(url, nats.Name("gqm-notify"))
		if err != nil {
			return err
		}
		t.conn = conn
		t.ownsConn = true
	}
	js, err := t.conn.JetStream()
	if err != nil {
		return err
	}
	t.js = js
	return nil
}

func (t *Transport) ensureStreamLocked() error {
	_, err := t.js.StreamInfo(t.cfg.Stream)
	if err == nil {
		return nil
	}
	if !stdErrors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = t.js.AddStream(t.streamConfig())
	return err
}

func (t *Transport) streamConfig() *nats.StreamConfig {
	retention := nats.LimitsPolicy
	switch strings.ToLower(t.cfg.Retention) {
	case "interest":
		retention = nats.InterestPolicy
	case "workqueue":
		retention = nats.WorkQueuePolicy
	}
	sc := &nats.StreamConfig{
		Name:      t.cfg.Stream,
		Subjects:  []string{t.cfg.SubjectPrefix + ">"},
		Retention: retention,
	}
	if t.cfg.MaxBytes > 0 {
		sc.MaxBytes = t.cfg.MaxBytes
	}
	if t.cfg.Replicas > 0 {
		sc.Replicas = t.cfg.Replicas
	}
	return sc
}

func (t *Transport) subscribeLocked(subject string) error {
	if _, ok := t.subs[subject]; ok {
		return nil
	}
	durable := t.durableName(subject)
	sub, err := t.js.QueueSubscribe(t.subjectName(subject), durable, t.handle(subject),
		nats.ManualAck(),
		nats.Durable(durable),
		nats.AckWait(t.cfg.AckWait),
		nats.MaxAckPending(t.cfg.MaxAckPending))
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeQueue, "subscribe "+subject)
	}
	t.subs[subject] = sub
	return nil
}

func (t *Transport) handle(subject string) nats.MsgHandler {
	return func(in *nats.Msg) {
		ctx := context.Background()
		codec, err := notify.CodecByName(in.Header.Get("Gqm-Codec"))
		if err != nil {
			codec = t.cfg.Codec
		}
		msg, err := codec.Unmarshal(in.Data)
		if err != nil {
			t.logger.Warn(ctx, "decode nats message failed", logging.String("subject", in.Subject), logging.Error(err))
			_ = in.Term()
			return
		}

		t.mu.RLock()
		handlers := append([]notify.Handler(nil), t.handlers[subject]...)
		t.mu.RUnlock()
		for _, h := range handlers {
			if err := h.Handle(ctx, msg); err != nil {
				t.logger.Warn(ctx, "notification handler failed",
					logging.String("subject", msg.Subject()),
					logging.String("message_id", msg.ID),
					logging.Error(err))
			}
		}
		if err := in.Ack(); err != nil {
			t.logger.Warn(ctx, "nats ack failed", logging.Error(err))
		}
	}
}

// subjectName notify 主题映射为 NATS 主题；通配订阅映射为 ">"
func (t *Transport) subjectName(subject string) string {
	if subject == notify.Wildcard {
		return t.cfg.SubjectPrefix + ">"
	}
	return t.cfg.SubjectPrefix + subject
}

// durableName 持久化消费者名不能包含 "." "*" ">"
func (t *Transport) durableName(subject string) string {
	if subject == notify.Wildcard {
		subject = "all"
	}
	return t.cfg.DurablePrefix + strings.NewReplacer(".", "_", "*", "_", ">", "_").Replace(subject)
}
