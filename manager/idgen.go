package manager

import (
	"context"

	"gqm/codegen/snowflake"
	core "gqm/data/db"
	"gqm/data/db/dialect"
	dbsql "gqm/data/db/sql"
	"gqm/errors"
)

// IdentifierGenerator 为非 sparse 的 bean 生成标识
//
// conn 是当前操作使用的连接（事务中为事务本身）。Install/Remove 随表一起调用。
type IdentifierGenerator interface {
	Install(ctx context.Context, conn core.IDatabase, d dialect.Dialect, table string) error
	Remove(ctx context.Context, conn core.IDatabase, d dialect.Dialect, table string) error
	Next(ctx context.Context, conn core.IDatabase, d dialect.Dialect, table string) (int64, error)
}

// SequenceName 表对应的序列名
func SequenceName(table string) string {
	return table + "_seq"
}

const counterColumn = "value"

// SequenceGenerator 原生序列（Postgres）或单行计数表（其他方言），标识从 1 开始
type SequenceGenerator struct{}

var _ IdentifierGenerator = SequenceGenerator{}

func (SequenceGenerator) Install(ctx context.Context, conn core.IDatabase, d dialect.Dialect, table string) error {
	s := dbsql.NewWithDialect(conn, d)
	name := SequenceName(table)
	if d.SupportsSequences() {
		_, err := s.CreateSequence(name).IfExists().Exec(ctx)
		return errors.WrapDatabaseError(ctx, err, "create sequence "+name)
	}

	if _, err := s.CreateTable(name).IfNotExists().Column(counterColumn, "BIGINT", "NOT NULL").Exec(ctx); err != nil {
		return errors.WrapDatabaseError(ctx, err, "create counter "+name)
	}
	var n int64
	if err := s.Select("COUNT(*)").From(name).QueryRow(ctx).Scan(&n); err != nil {
		return errors.WrapDatabaseError(ctx, err, "check counter "+name)
	}
	if n == 0 {
		if _, err := s.InsertInto(name).Columns(counterColumn).Values(0).Exec(ctx); err != nil {
			return errors.WrapDatabaseError(ctx, err, "seed counter "+name)
		}
	}
	return nil
}

func (SequenceGenerator) Remove(ctx context.Context, conn core.IDatabase, d dialect.Dialect, table string) error {
	s := dbsql.NewWithDialect(conn, d)
	name := SequenceName(table)
	if d.SupportsSequences() {
		_, err := s.DropSequence(name).IfExists().Exec(ctx)
		return errors.WrapDatabaseError(ctx, err, "drop sequence "+name)
	}
	_, err := s.DropTable(name).IfExists().Exec(ctx)
	return errors.WrapDatabaseError(ctx, err, "drop counter "+name)
}

// Next 计数表的递增与读取应在同一事务中执行，管理器总是这样调用
func (SequenceGenerator) Next(ctx context.Context, conn core.IDatabase, d dialect.Dialect, table string) (int64, error) {
	name := SequenceName(table)
	var id int64
	if d.SupportsSequences() {
		if err := conn.QueryRow(ctx, d.NextSequenceValue(name)).Scan(&id); err != nil {
			return -1, errors.WrapDatabaseError(ctx, err, "next value of "+name)
		}
		return id, nil
	}

	s := dbsql.NewWithDialect(conn, d)
	col := d.QuoteIdentifier(counterColumn)
	if _, err := s.Update(name).SetExpr(col + " = " + col + " + 1").Exec(ctx); err != nil {
		return -1, errors.WrapDatabaseError(ctx, err, "increment "+name)
	}
	if err := s.Select(col).From(name).QueryRow(ctx).Scan(&id); err != nil {
		return -1, errors.WrapDatabaseError(ctx, err, "read "+name)
	}
	return id, nil
}

// SnowflakeGenerator 不依赖数据库的雪花标识
type SnowflakeGenerator struct {
	gen *snowflake.Generator
}

var _ IdentifierGenerator = (*SnowflakeGenerator)(nil)

// NewSnowflakeGenerator 按配置创建
func NewSnowflakeGenerator(cfg snowflake.Config) (*SnowflakeGenerator, error) {
	gen, err := snowflake.New(cfg)
	if err != nil {
		return nil, err
	}
	return &SnowflakeGenerator{gen: gen}, nil
}

func (g *SnowflakeGenerator) Install(context.Context, core.IDatabase, dialect.Dialect, string) error {
	return nil
}

func (g *SnowflakeGenerator) Remove(context.Context, core.IDatabase, dialect.Dialect, string) error {
	return nil
}

func (g *SnowflakeGenerator) Next(context.Context, core.IDatabase, dialect.Dialect, string) (int64, error) {
	return g.gen.NextID()
}

// Generator 返回底层生成器，用于拆解标识
func (g *SnowflakeGenerator) Generator() *snowflake.Generator {
	return g.gen
}
