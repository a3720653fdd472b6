// Package sql 提供方言感知的流式 SQL 构建器
//
// 构建器既可以绑定 IDatabase 直接执行（New），也可以只用于生成语句（NewBuilder），
// 后者供查询委托在执行前保存与复制查询状态。
package sql

import (
	"context"
	"database/sql"

	core "gqm/data/db"
	"gqm/data/db/dialect"
)

// ISql 提供统一的 SQL 构建与执行接口。
type ISql interface {
	Select(columns ...string) ISelectBuilder
	InsertInto(table string) IInsertBuilder
	Update(table string) IUpdateBuilder
	DeleteFrom(table string) IDeleteBuilder
	CreateTable(table string) ICreateTableBuilder
	DropTable(table string) IDropBuilder
	CreateSequence(name string) IDropBuilder
	DropSequence(name string) IDropBuilder

	Dialect() dialect.Dialect
	GetDB() core.IDatabase
}

// ISelectBuilder 构建 SELECT 语句。
type ISelectBuilder interface {
	Distinct() ISelectBuilder
	From(table string) ISelectBuilder
	Join(kind JoinKind, table string, on string, args ...any) ISelectBuilder
	InnerJoin(table string, on string, args ...any) ISelectBuilder
	LeftJoin(table string, on string, args ...any) ISelectBuilder
	Where(cond string, args ...any) ISelectBuilder
	And(cond string, args ...any) ISelectBuilder
	Or(cond string, args ...any) ISelectBuilder
	GroupBy(cols ...string) ISelectBuilder
	OrderBy(expr string) ISelectBuilder
	Limit(n int) ISelectBuilder
	Offset(n int) ISelectBuilder
	Build() (query string, args []any)
	Query(ctx context.Context) (core.IRows, error)
	QueryRow(ctx context.Context) core.IRow
}

// IInsertBuilder 构建 INSERT 语句。
type IInsertBuilder interface {
	Columns(cols ...string) IInsertBuilder
	Values(vals ...any) IInsertBuilder
	// Set 追加一列及其值，只用于单行插入，不能与 Columns/Values 混用
	Set(column string, val any) IInsertBuilder
	Build() (query string, args []any)
	Exec(ctx context.Context) (sql.Result, error)
}

// IUpdateBuilder 构建 UPDATE 语句。
type IUpdateBuilder interface {
	Set(column string, val any) IUpdateBuilder
	// SetExpr 直接追加原始 SET 片段，由调用方保证表达式合法性与参数顺序。
	SetExpr(expr string, args ...any) IUpdateBuilder
	Where(cond string, args ...any) IUpdateBuilder
	Build() (query string, args []any)
	Exec(ctx context.Context) (sql.Result, error)
}

// IDeleteBuilder 构建 DELETE 语句。
type IDeleteBuilder interface {
	Where(cond string, args ...any) IDeleteBuilder
	Limit(n int) IDeleteBuilder
	Build() (query string, args []any)
	Exec(ctx context.Context) (sql.Result, error)
}

// ICreateTableBuilder 构建 CREATE TABLE 语句。
type ICreateTableBuilder interface {
	IfNotExists() ICreateTableBuilder
	Column(name, typ string, constraints ...string) ICreateTableBuilder
	PrimaryKey(cols ...string) ICreateTableBuilder
	Unique(cols ...string) ICreateTableBuilder
	ForeignKey(col, refTable, refCol string, onDelete Action) ICreateTableBuilder
	Build() string
	Exec(ctx context.Context) (sql.Result, error)
}

// IDropBuilder 构建 DROP TABLE / CREATE SEQUENCE / DROP SEQUENCE 等单条 DDL。
type IDropBuilder interface {
	IfExists() IDropBuilder
	Build() string
	Exec(ctx context.Context) (sql.Result, error)
}

type sqlImpl struct {
	db      core.IDatabase
	dialect dialect.Dialect
}

// New 创建绑定数据库的 ISql 实例，方言从 db 推断。
func New(db core.IDatabase) ISql {
	return &sqlImpl{
		db:      db,
		dialect: dialect.FromDatabase(db),
	}
}

// NewWithDialect 创建绑定数据库的 ISql 实例并显式指定方言。
//
// 事务对象未必实现 IDialectNameProvider，此时由调用方传入已知方言。
func NewWithDialect(db core.IDatabase, d dialect.Dialect) ISql {
	return &sqlImpl{db: db, dialect: d}
}

// NewBuilder 创建仅用于生成语句的 ISql 实例；在其构建器上调用 Exec/Query 会返回错误。
func NewBuilder(d dialect.Dialect) ISql {
	return &sqlImpl{db: nil, dialect: d}
}

func (s *sqlImpl) Select(columns ...string) ISelectBuilder {
	if len(columns) == 0 {
		columns = []string{"*"}
	}
	return &selectBuilder{
		db:      s.db,
		dialect: s.dialect,
		cols:    columns,
	}
}

func (s *sqlImpl) InsertInto(table string) IInsertBuilder {
	return &insertBuilder{
		db:      s.db,
		dialect: s.dialect,
		table:   table,
	}
}

func (s *sqlImpl) Update(table string) IUpdateBuilder {
	return &updateBuilder{
		db:      s.db,
		dialect: s.dialect,
		table:   table,
	}
}

func (s *sqlImpl) DeleteFrom(table string) IDeleteBuilder {
	return &deleteBuilder{
		db:      s.db,
		dialect: s.dialect,
		table:   table,
	}
}

func (s *sqlImpl) CreateTable(table string) ICreateTableBuilder {
	return &createTableBuilder{
		db:      s.db,
		dialect: s.dialect,
		table:   table,
	}
}

func (s *sqlImpl) DropTable(table string) IDropBuilder {
	return &ddlBuilder{db: s.db, dialect: s.dialect, verb: "DROP TABLE", name: table}
}

func (s *sqlImpl) CreateSequence(name string) IDropBuilder {
	return &ddlBuilder{db: s.db, dialect: s.dialect, verb: "CREATE SEQUENCE", name: name, suffix: " START WITH 1"}
}

func (s *sqlImpl) DropSequence(name string) IDropBuilder {
	return &ddlBuilder{db: s.db, dialect: s.dialect, verb: "DROP SEQUENCE", name: name}
}

func (s *sqlImpl) Dialect() dialect.Dialect {
	return s.dialect
}

func (s *sqlImpl) GetDB() core.IDatabase {
	return s.db
}
