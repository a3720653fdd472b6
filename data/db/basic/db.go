package basic

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	core "gqm/data/db"
	"gqm/data/db/dialect"
)

// DB 基于 database/sql 的最小实现，满足 core.IDatabase 抽象
type DB struct {
	db      *sql.DB
	dialect dialect.Dialect
}

// New 根据 core.DBConfig 创建基础数据库实例
//
// sqlite / postgres / mysql 驱动已在本包注册；Driver 为空时默认 sqlite。
func New(config core.DBConfig) (core.IDatabase, error) {
	d, err := Open(config)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Open 与 New 相同，但返回具体类型
func Open(config core.DBConfig) (*DB, error) {
	driver := config.Driver
	if driver == "" {
		driver = "sqlite"
	}
	dial := dialect.New(driver)
	if !dial.Known() {
		return nil, fmt.Errorf("basic: unsupported driver %q", config.Driver)
	}

	db, err := sql.Open(dial.DriverName(), dataSourceName(dial, config))
	if err != nil {
		return nil, err
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(config.ConnMaxLifetime) * time.Second)
	}
	if config.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(time.Duration(config.ConnMaxIdleTime) * time.Second)
	}
	// sqlite 内存库每个连接是独立的数据库，必须固定为单连接
	if dial.Name() == dialect.NameSQLite && isMemory(config.Database) {
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if dial.Name() == dialect.NameSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &DB{db: db, dialect: dial}, nil
}

// Wrap 包装已打开的 *sql.DB（例如 sqlmock 创建的连接）
func Wrap(db *sql.DB, driver string) *DB {
	return &DB{db: db, dialect: dialect.New(driver)}
}

func isMemory(dsn string) bool {
	return dsn == "" || dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

// dataSourceName 根据配置拼装 DSN；sqlite 直接使用 Database
func dataSourceName(d dialect.Dialect, config core.DBConfig) string {
	switch d.Name() {
	case dialect.NameMySQL:
		cfg := mysql.NewConfig()
		cfg.User = config.Username
		cfg.Passwd = config.Password
		cfg.Net = "tcp"
		cfg.Addr = config.Host
		if config.Port > 0 {
			cfg.Addr += ":" + strconv.Itoa(config.Port)
		}
		cfg.DBName = config.Database
		cfg.ParseTime = config.ParseTime
		// UPDATE 的影响行数按匹配行计算，值未变化时也不为 0
		cfg.ClientFoundRows = true
		if config.Charset != "" {
			cfg.Params = map[string]string{"charset": config.Charset}
		}
		if config.Location != "" {
			if loc, err := time.LoadLocation(config.Location); err == nil {
				cfg.Loc = loc
			}
		}
		return cfg.FormatDSN()
	case dialect.NamePostgres:
		u := url.URL{
			Scheme: "postgres",
			Host:   config.Host,
			Path:   "/" + config.Database,
		}
		if config.Port > 0 {
			u.Host += ":" + strconv.Itoa(config.Port)
		}
		if config.Username != "" {
			u.User = url.UserPassword(config.Username, config.Password)
		}
		q := url.Values{}
		sslMode := config.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		q.Set("sslmode", sslMode)
		u.RawQuery = q.Encode()
		return u.String()
	default:
		if config.Database == "" {
			return ":memory:"
		}
		if isMemory(config.Database) || strings.Contains(config.Database, "_pragma=") {
			return config.Database
		}
		sep := "?"
		if strings.Contains(config.Database, "?") {
			sep = "&"
		}
		return config.Database + sep + "_pragma=foreign_keys(1)"
	}
}

func (d *DB) Query(ctx context.Context, query string, args ...any) (core.IRows, error) {
	rows, err := d.db.QueryContext(ctx, d.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return &Rows{rows: rows}, nil
}

func (d *DB) QueryRow(ctx context.Context, query string, args ...any) core.IRow {
	return &Row{row: d.db.QueryRowContext(ctx, d.dialect.Rebind(query), args...)}
}

func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ctx, d.dialect.Rebind(query), args...)
}

func (d *DB) Begin(ctx context.Context) (core.ITransaction, error) {
	return d.BeginTx(ctx, nil)
}

func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (core.ITransaction, error) {
	tx, err := d.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return newTx(d.db, tx, d.dialect), nil
}

func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }
func (d *DB) Close() error                   { return d.db.Close() }
func (d *DB) Raw() any                       { return d.db }

// GetDialectName 实现 core.IDialectNameProvider 接口
func (d *DB) GetDialectName() string {
	return string(d.dialect.Name())
}

// Dialect 返回方言
func (d *DB) Dialect() dialect.Dialect {
	return d.dialect
}
