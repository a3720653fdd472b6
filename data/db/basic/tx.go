package basic

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	core "gqm/data/db"
	"gqm/data/db/dialect"
	"gqm/errors"
)

// Tx 事务，同时实现 core.IDatabase，可以放进 context 供级联操作复用
//
// 在 Tx 上再次 Begin 得到一个保存点：Commit 释放保存点，Rollback 只撤销保存点之后的语句，
// 外层事务不受影响。
type Tx struct {
	db      *sql.DB
	tx      *sql.Tx
	dialect dialect.Dialect

	// savepoint 非空表示这是嵌套在 tx 中的保存点
	savepoint string
	seq       *atomic.Uint64
	done      atomic.Bool
}

func newTx(db *sql.DB, tx *sql.Tx, d dialect.Dialect) *Tx {
	return &Tx{db: db, tx: tx, dialect: d, seq: new(atomic.Uint64)}
}

func (t *Tx) Query(ctx context.Context, query string, args ...any) (core.IRows, error) {
	rows, err := t.tx.QueryContext(ctx, t.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return &Rows{rows: rows}, nil
}

func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) core.IRow {
	return &Row{row: t.tx.QueryRowContext(ctx, t.dialect.Rebind(query), args...)}
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.Rebind(query), args...)
}

// Begin 在当前事务中建立保存点
func (t *Tx) Begin(ctx context.Context) (core.ITransaction, error) {
	if t.done.Load() {
		return nil, errors.NewError(errors.ErrCodeDatabase, "basic.Tx: transaction already finished")
	}
	name := fmt.Sprintf("gqm_sp_%d", t.seq.Add(1))
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return nil, err
	}
	return &Tx{db: t.db, tx: t.tx, dialect: t.dialect, savepoint: name, seq: t.seq}, nil
}

// BeginTx 与 Begin 相同；保存点不接受独立的隔离级别，opts 被忽略
func (t *Tx) BeginTx(ctx context.Context, _ *sql.TxOptions) (core.ITransaction, error) {
	return t.Begin(ctx)
}

func (t *Tx) Ping(ctx context.Context) error { return t.db.PingContext(ctx) }
func (t *Tx) Close() error                   { return nil }
func (t *Tx) Raw() any                       { return t.tx }

// Savepoint 返回保存点名称，顶层事务为空
func (t *Tx) Savepoint() string { return t.savepoint }

func (t *Tx) Commit() error {
	if !t.done.CompareAndSwap(false, true) {
		return sql.ErrTxDone
	}
	if t.savepoint == "" {
		return t.tx.Commit()
	}
	_, err := t.tx.Exec("RELEASE SAVEPOINT " + t.savepoint)
	return err
}

func (t *Tx) Rollback() error {
	if !t.done.CompareAndSwap(false, true) {
		return sql.ErrTxDone
	}
	if t.savepoint == "" {
		return t.tx.Rollback()
	}
	_, err := t.tx.Exec("ROLLBACK TO SAVEPOINT " + t.savepoint)
	return err
}

// GetDialectName 实现 core.IDialectNameProvider
func (t *Tx) GetDialectName() string {
	return string(t.dialect.Name())
}
