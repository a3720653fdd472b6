// Package errors 提供 gqm 统一的错误码体系
//
// 错误分类：
//   - 配置错误（CONFIGURATION_ERROR）：构造管理器时发现，属于编程错误，直接返回；
//   - 关系声明错误（RELATIONSHIP_ERROR）：解析 many-to-one / many-to-many 声明时发现；
//   - 验证错误（VALIDATION_ERROR）：一般累积到 Validated bean 上，而非作为 error 返回；
//   - 执行错误（DATABASE_ERROR）：数据库执行失败，终止外层事务；
//   - 取消（CANCELED）：context 取消或超时，同样终止事务，但不视为执行错误。
package errors

import (
	stdErrors "errors"
	"fmt"
	"maps"
	"runtime"
	"strings"
)

// ErrorCode 错误代码类型
type ErrorCode string

const (
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeCanceled     ErrorCode = "CANCELED"

	// 映射引擎
	ErrCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeRelationship  ErrorCode = "RELATIONSHIP_ERROR"
	ErrCodeUnsupported   ErrorCode = "UNSUPPORTED_ERROR"

	// 基础设施
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeQueue    ErrorCode = "QUEUE_ERROR"
)

// IError 带错误码的错误
type IError interface {
	error

	Code() ErrorCode
	Message() string
	Cause() error
	Details() map[string]any
	Stack() string
	Is(target error) bool

	// WithContext 返回附加了一项详情的副本
	WithContext(key string, value any) IError
}

// AppError IError 的实现
type AppError struct {
	code    ErrorCode
	message string
	cause   error
	details map[string]any
	stack   string
}

func newAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		code:    code,
		message: message,
		cause:   cause,
		stack:   captureStack(4),
	}
}

// NewError 创建新错误
func NewError(code ErrorCode, message string) IError {
	return newAppError(code, message, nil)
}

// Newf 以格式化消息创建新错误
func Newf(code ErrorCode, format string, args ...any) IError {
	return newAppError(code, fmt.Sprintf(format, args...), nil)
}

// WrapError 包装错误；err 为 nil 时返回 nil
func WrapError(err error, code ErrorCode, message string) IError {
	if err == nil {
		return nil
	}
	return newAppError(code, message, err)
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *AppError) Code() ErrorCode { return e.code }
func (e *AppError) Message() string { return e.message }
func (e *AppError) Cause() error    { return e.cause }
func (e *AppError) Unwrap() error   { return e.cause }

// Stack 创建位置的调用栈，每帧一行
func (e *AppError) Stack() string { return e.stack }

// Details 返回详情的副本
func (e *AppError) Details() map[string]any {
	out := make(map[string]any, len(e.details))
	maps.Copy(out, e.details)
	return out
}

// Is 错误码相同的 AppError 视为同一错误，否则比较 cause
func (e *AppError) Is(target error) bool {
	if target == nil {
		return false
	}
	if other, ok := target.(*AppError); ok {
		return e.code == other.code
	}
	return e.cause != nil && stdErrors.Is(e.cause, target)
}

func (e *AppError) WithContext(key string, value any) IError {
	details := make(map[string]any, len(e.details)+1)
	maps.Copy(details, e.details)
	details[key] = value

	clone := *e
	clone.details = details
	return &clone
}

// GetErrorCode 返回错误链中第一个 AppError 的错误码；普通错误为 INTERNAL_ERROR
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code
	}
	return ErrCodeInternal
}

// IsErrorCode 检查错误链中的 AppError 是否为指定错误码
func IsErrorCode(err error, code ErrorCode) bool {
	return err != nil && GetErrorCode(err) == code
}

func IsConfiguration(err error) bool { return IsErrorCode(err, ErrCodeConfiguration) }
func IsRelationship(err error) bool  { return IsErrorCode(err, ErrCodeRelationship) }
func IsDatabase(err error) bool      { return IsErrorCode(err, ErrCodeDatabase) }
func IsNotFound(err error) bool      { return IsErrorCode(err, ErrCodeNotFound) }
func IsCanceled(err error) bool      { return IsErrorCode(err, ErrCodeCanceled) }

// captureStack 从 skip 层调用者开始记录，最多 32 帧
func captureStack(skip int) string {
	var pcs [32]uintptr
	n := runtime.Callers(skip, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s:%d %s\n", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return b.String()
}
