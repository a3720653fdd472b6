// Package notify 把管理器事件作为变更通知发布到消息系统
//
// Publisher 实现 manager.EventListener，可注册在 Registry 上观察所有管理器：
//
//	transport := memory.NewTransport(memory.Config{})
//	publisher := notify.NewPublisher(transport)
//	reg, _ := manager.NewRegistry(db, manager.WithEventListener(publisher))
//
// 通知在事件触发时同步发布，即仍处于写操作的事务中；事务随后回滚时通知不会撤回。
package notify

import (
	"context"
	"strconv"
	"time"
)

// Wildcard 订阅所有主题
const Wildcard = "*"

// Message 一次 bean 变更通知
type Message struct {
	ID        string            `json:"id" msgpack:"id"`
	Kind      string            `json:"kind" msgpack:"kind"`
	Table     string            `json:"table" msgpack:"table"`
	Type      string            `json:"type" msgpack:"type"`
	BeanID    int64             `json:"bean_id" msgpack:"bean_id"`
	Timestamp time.Time         `json:"timestamp" msgpack:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty" msgpack:"metadata,omitempty"`
}

// Subject 消息主题：<表>.<事件种类>
func (m *Message) Subject() string {
	return Subject(m.Table, m.Kind)
}

// Subject 拼接主题
func Subject(table, kind string) string {
	return table + "." + kind
}

func (m *Message) String() string {
	return m.Subject() + "#" + strconv.FormatInt(m.BeanID, 10)
}

// Handler 消息处理器
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc 函数形式的 Handler
type HandlerFunc func(ctx context.Context, msg *Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error { return f(ctx, msg) }

// Transport 消息传输
//
// subject 为 Subject 拼出的主题；是否支持 Wildcard 由具体实现说明。
type Transport interface {
	Publish(ctx context.Context, msg *Message) error
	Subscribe(subject string, handler Handler) error
	Start(ctx context.Context) error
	Close() error
	Stats() Stats
}

// Stats 传输层统计
type Stats struct {
	Running      bool     `json:"running"`
	HandlerCount int      `json:"handler_count"`
	Subjects     []string `json:"subjects"`
	QueueSize    int      `json:"queue_size,omitempty"`
	QueueDepth   int      `json:"queue_depth,omitempty"`
	WorkerCount  int      `json:"worker_count,omitempty"`
}
