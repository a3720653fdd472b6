package db

import (
	"context"

	"gqm/errors"
)

type txKey struct{}

// WithTx 将事务放入 context，后续操作通过 Conn 取用
func WithTx(ctx context.Context, tx ITransaction) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFrom 从 context 中取出事务
func TxFrom(ctx context.Context) (ITransaction, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(txKey{}).(ITransaction)
	return tx, ok && tx != nil
}

// Conn 返回 context 中的事务；没有事务时返回 fallback
func Conn(ctx context.Context, fallback IDatabase) IDatabase {
	if tx, ok := TxFrom(ctx); ok {
		return tx
	}
	return fallback
}

// Detach 返回一个不携带事务、不会被取消的 context
//
// 延迟加载的集合/值在事务结束之后才会被访问，必须脱离原事务。
func Detach(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithValue(context.WithoutCancel(ctx), txKey{}, nil)
}

// InTransaction 在事务中执行 fn
//
// 约定：
//   - context 中已有事务时直接复用（嵌套调用加入外层事务，由外层负责提交/回滚）；
//   - 否则开启新事务，fn 返回错误或 panic 时回滚，成功时提交；
//   - 开启与提交失败按 errors.WrapDatabaseError 归类。
func InTransaction(ctx context.Context, database IDatabase, fn func(ctx context.Context) error) (err error) {
	if _, ok := TxFrom(ctx); ok {
		return fn(ctx)
	}

	tx, err := database.Begin(ctx)
	if err != nil {
		return errors.WrapDatabaseError(ctx, err, "begin transaction")
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
		_ = tx.Rollback()
	}()

	if err = fn(WithTx(ctx, tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.WrapDatabaseError(ctx, err, "commit transaction")
	}
	committed = true
	return nil
}
