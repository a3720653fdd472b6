package errors

import (
	"context"
	"database/sql"
	stdErrors "errors"
)

// WrapDatabaseError 把一次数据库操作的失败归类为 AppError
//
//   - sql.ErrNoRows → NOT_FOUND
//   - context 取消或超时 → CANCELED，不属于执行错误，不会触发 sparse 插入的降级
//   - 已是 AppError 的错误原样返回
//   - 其余（驱动错误、事务或连接已结束）→ DATABASE_ERROR
//
// 不写日志，由调用方用自己的 logger 记录。
func WrapDatabaseError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	switch {
	case stdErrors.Is(err, sql.ErrNoRows):
		return WrapError(err, ErrCodeNotFound, operation)
	case stdErrors.Is(err, context.Canceled), stdErrors.Is(err, context.DeadlineExceeded):
		return WrapError(err, ErrCodeCanceled, operation)
	}

	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return err
	}

	return WrapError(err, ErrCodeDatabase, "database operation failed: "+operation)
}

// NewConfigurationError 创建配置错误
func NewConfigurationError(format string, args ...any) error {
	return Newf(ErrCodeConfiguration, format, args...)
}

// NewRelationshipError 创建关系声明错误
func NewRelationshipError(format string, args ...any) error {
	return Newf(ErrCodeRelationship, format, args...)
}
