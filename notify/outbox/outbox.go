// Package outbox 事务性通知发件箱
//
// Outbox 作为 manager.EventListener 注册时，把通知写入与写操作相同的事务，
// 事务回滚时通知一并撤销；Relay 在后台读取待发布记录并发布。
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"

	core "gqm/data/db"
	"gqm/data/db/dialect"
	dbsql "gqm/data/db/sql"
	"gqm/errors"
	"gqm/logging"
	"gqm/manager"
	"gqm/notify"
)

// Status 记录状态
type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

// DefaultTable 默认表名
const DefaultTable = "gqm_outbox"

// Entry 发件箱中的一条记录
type Entry struct {
	ID          string
	Subject     string
	Payload     string
	Status      Status
	CreatedAt   time.Time
	RetryCount  int
	LastError   string
	NextRetryAt time.Time
}

// Message 解码记录中的通知
func (e *Entry) Message() (*notify.Message, error) {
	return notify.JSON.Unmarshal([]byte(e.Payload))
}

// NextRetry 指数退避的下次重试时间，倍数最多 32
func (e *Entry) NextRetry(now time.Time, base time.Duration) time.Time {
	n := min(max(e.RetryCount, 0), 5)
	return now.Add(base * time.Duration(1<<n))
}

// Option Outbox 选项
type Option func(*Outbox)

// WithTable 使用另一张表
func WithTable(table string) Option {
	return func(o *Outbox) {
		if table != "" {
			o.table = table
		}
	}
}

// WithKinds 只记录指定种类的事件，默认与 notify.Publisher 相同
func WithKinds(kinds ...manager.EventKind) Option {
	return func(o *Outbox) {
		o.kinds = make(map[manager.EventKind]bool, len(kinds))
		for _, k := range kinds {
			o.kinds[k] = true
		}
	}
}

// WithLogger 设置日志器
func WithLogger(logger logging.Logger) Option {
	return func(o *Outbox) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Outbox 发件箱表的读写
type Outbox struct {
	db      core.IDatabase
	dialect dialect.Dialect
	table   string
	kinds   map[manager.EventKind]bool
	logger  logging.Logger
	now     func() time.Time
}

var _ manager.EventListener = (*Outbox)(nil)

// New 创建发件箱；表需要先 Install
func New(db core.IDatabase, opts ...Option) (*Outbox, error) {
	if db == nil {
		return nil, errors.NewConfigurationError("outbox: nil database")
	}
	d := dialect.FromDatabase(db)
	if !d.Known() {
		return nil, errors.NewConfigurationError("outbox: unsupported database driver")
	}
	o := &Outbox{
		db:      db,
		dialect: d,
		table:   DefaultTable,
		kinds: map[manager.EventKind]bool{
			manager.EventInstalled: true,
			manager.EventRemoved:   true,
			manager.EventInserted:  true,
			manager.EventUpdated:   true,
			manager.EventDeleted:   true,
		},
		logger: logging.GetLogger().WithFields(logging.String("component", "notify.outbox")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Table 表名
func (o *Outbox) Table() string { return o.table }

func (o *Outbox) sql(ctx context.Context) dbsql.ISql {
	return dbsql.NewWithDialect(core.Conn(ctx, o.db), o.dialect)
}

// Install 创建发件箱表
func (o *Outbox) Install(ctx context.Context) error {
	_, err := o.sql(ctx).CreateTable(o.table).IfNotExists().
		Column("id", "VARCHAR(64)", "NOT NULL").
		Column("subject", "VARCHAR(255)", "NOT NULL").
		Column("payload", "TEXT", "NOT NULL").
		Column("status", "VARCHAR(16)", "NOT NULL").
		Column("created_at", "BIGINT", "NOT NULL").
		Column("retry_count", "INTEGER", "NOT NULL").
		Column("last_error", "TEXT").
		Column("next_retry_at", "BIGINT", "NOT NULL").
		PrimaryKey("id").
		Exec(ctx)
	return errors.WrapDatabaseError(ctx, err, "create "+o.table)
}

// Remove 删除发件箱表
func (o *Outbox) Remove(ctx context.Context) error {
	_, err := o.sql(ctx).DropTable(o.table).IfExists().Exec(ctx)
	return errors.WrapDatabaseError(ctx, err, "drop "+o.table)
}

// OnEvent 实现 manager.EventListener；写入当前事务，失败只记录日志
func (o *Outbox) OnEvent(ctx context.Context, event manager.Event) {
	if !o.kinds[event.Kind] {
		return
	}
	msg := &notify.Message{
		ID:        uuid.NewString(),
		Kind:      string(event.Kind),
		Table:     event.Table,
		BeanID:    event.ID,
		Timestamp: o.now().UTC(),
	}
	if event.Type != nil {
		msg.Type = event.Type.String()
	}
	if err := o.Add(ctx, msg); err != nil {
		o.logger.Error(ctx, "outbox append failed",
			logging.String("subject", msg.Subject()),
			logging.Int64("bean_id", msg.BeanID),
			logging.Error(err))
	}
}

// Add 写入一条待发布记录；ctx 携带事务时加入该事务
func (o *Outbox) Add(ctx context.Context, msg *notify.Message) error {
	payload, err := notify.JSON.Marshal(msg)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeQueue, "outbox: encode message")
	}
	now := o.now()
	_, err = o.sql(ctx).InsertInto(o.table).
		Columns("id", "subject", "payload", "status", "created_at", "retry_count", "next_retry_at").
		Values(msg.ID, msg.Subject(), string(payload), string(StatusPending), now.UnixNano(), 0, now.UnixNano()).
		Exec(ctx)
	return errors.WrapDatabaseError(ctx, err, "insert into "+o.table)
}

// Pending 待发布记录：pending，或到达重试时间且未超过 maxRetries 的 failed，按写入顺序
func (o *Outbox) Pending(ctx context.Context, limit, maxRetries int) ([]Entry, error) {
	rows, err := o.sql(ctx).
		Select("id", "subject", "payload", "status", "created_at", "retry_count", "last_error", "next_retry_at").
		From(o.table).
		Where("status = ?", string(StatusPending)).
		Or("(status = ? AND retry_count < ? AND next_retry_at <= ?)", string(StatusFailed), maxRetries, o.now().UnixNano()).
		OrderBy("created_at, id").
		Limit(limit).
		Query(ctx)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "select from "+o.table)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                  Entry
			status             string
			lastError          *string
			createdAt, retryAt int64
		)
		if err := rows.Scan(&e.ID, &e.Subject, &e.Payload, &status, &createdAt, &e.RetryCount, &lastError, &retryAt); err != nil {
			return nil, errors.WrapDatabaseError(ctx, err, "scan "+o.table)
		}
		e.Status = Status(status)
		if lastError != nil {
			e.LastError = *lastError
		}
		e.CreatedAt = time.Unix(0, createdAt)
		e.NextRetryAt = time.Unix(0, retryAt)
		entries = append(entries, e)
	}
	return entries, errors.WrapDatabaseError(ctx, rows.Err(), "read "+o.table)
}

// MarkPublished 标记已发布
func (o *Outbox) MarkPublished(ctx context.Context, id string) error {
	_, err := o.sql(ctx).Update(o.table).
		Set("status", string(StatusPublished)).
		Where("id = ?", id).
		Exec(ctx)
	return errors.WrapDatabaseError(ctx, err, "update "+o.table)
}

// MarkFailed 标记失败并累计重试次数
func (o *Outbox) MarkFailed(ctx context.Context, id, reason string, nextRetry time.Time) error {
	_, err := o.sql(ctx).Update(o.table).
		Set("status", string(StatusFailed)).
		Set("last_error", reason).
		SetExpr("retry_count = retry_count + 1").
		Set("next_retry_at", nextRetry.UnixNano()).
		Where("id = ?", id).
		Exec(ctx)
	return errors.WrapDatabaseError(ctx, err, "update "+o.table)
}

// DeletePublished 删除 before 之前写入且已发布的记录
func (o *Outbox) DeletePublished(ctx context.Context, before time.Time) (int64, error) {
	res, err := o.sql(ctx).DeleteFrom(o.table).
		Where("status = ?", string(StatusPublished)).
		Where("created_at < ?", before.UnixNano()).
		Exec(ctx)
	if err != nil {
		return 0, errors.WrapDatabaseError(ctx, err, "delete from "+o.table)
	}
	n, err := res.RowsAffected()
	return n, errors.WrapDatabaseError(ctx, err, "delete from "+o.table)
}
