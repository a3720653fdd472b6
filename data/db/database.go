// Package db 提供通用的数据库抽象接口
//
// 设计目标：
//  1. 隔离具体的 driver，映射引擎只依赖 IDatabase
//  2. 支持事务操作，事务可通过 context 在多步级联之间传递
//  3. 便于单元测试（sqlmock / sqlite 内存库）
package db

import (
	"context"
	"database/sql"
)

// IDatabase 通用数据库接口
type IDatabase interface {
	// 查询操作
	Query(ctx context.Context, query string, args ...any) (IRows, error)
	QueryRow(ctx context.Context, query string, args ...any) IRow

	// 执行操作
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)

	// 事务操作
	Begin(ctx context.Context) (ITransaction, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (ITransaction, error)

	// 连接管理
	Ping(ctx context.Context) error
	Close() error

	// 获取原始连接（用于特殊场景）
	Raw() any
}

// IDialectNameProvider 可选接口：提供底层数据库方言名称
//
// 实现方应返回诸如 "mysql"、"sqlite"、"postgres" 等 driver/dialect 名，
// 供 dialect 包推断方言能力（如序列、DELETE LIMIT、唯一键错误识别等）。
type IDialectNameProvider interface {
	GetDialectName() string
}

// ITransaction 事务接口
//
// 事务本身也是 IDatabase；在事务上 Begin 得到嵌套在其中的保存点（basic.Tx 的实现），
// sparse 插入依赖它在失败后只回滚插入本身。
type ITransaction interface {
	IDatabase

	Commit() error
	Rollback() error
}

// IRows 查询结果集接口
type IRows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error

	Columns() ([]string, error)
	ColumnTypes() ([]*sql.ColumnType, error)
}

// IRow 单行结果接口
type IRow interface {
	Scan(dest ...any) error
	Err() error
}

// DBConfig 数据库配置
type DBConfig struct {
	Driver   string `yaml:"driver" validate:"omitempty,oneof=mysql postgres sqlite"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"gte=0,lte=65535"`
	Database string `yaml:"database"` // sqlite 下为文件路径或 ":memory:"
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// 连接池配置
	MaxOpenConns    int `yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int `yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime int `yaml:"conn_max_lifetime" validate:"gte=0"`  // 秒
	ConnMaxIdleTime int `yaml:"conn_max_idle_time" validate:"gte=0"` // 秒

	// 驱动选项：Charset / ParseTime / Location 只用于 mysql，SSLMode 只用于 postgres
	Charset   string `yaml:"charset"`
	ParseTime bool   `yaml:"parse_time"`
	Location  string `yaml:"location"`
	SSLMode   string `yaml:"ssl_mode"`
}
