package dialect

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	gqmerrors "gqm/errors"
)

// 约束冲突错误码
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	mysqlDuplicateEntry   = 1062
	mysqlForeignKeyParent = 1451
	mysqlForeignKeyChild  = 1452
)

// IsUniqueViolation 判断错误是否为唯一键/主键冲突
//
// 优先识别驱动的错误类型（pq.Error、mysql.MySQLError、sqlite.Error），
// 其余情况退化为错误消息关键字匹配。
func (d Dialect) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
			strings.Contains(strings.ToLower(liteErr.Error()), "unique constraint failed")
	}

	msg := strings.ToLower(err.Error())
	switch d.name {
	case NameMySQL:
		return strings.Contains(msg, "duplicate entry") ||
			strings.Contains(msg, "duplicate key")
	case NameSQLite:
		return strings.Contains(msg, "unique constraint failed")
	default:
		return strings.Contains(msg, "duplicate key") ||
			strings.Contains(msg, "unique constraint")
	}
}

// IsForeignKeyViolation 判断错误是否为外键约束冲突
func (d Dialect) IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgForeignKeyViolation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlForeignKeyParent || myErr.Number == mysqlForeignKeyChild
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY ||
			strings.Contains(strings.ToLower(liteErr.Error()), "foreign key constraint failed")
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "foreign key constraint")
}

// IsExecutionError 判断错误是否来自语句执行（驱动错误或已包装的 DATABASE_ERROR）
//
// 配置错误、关系声明错误以及 context 取消不属于执行错误。
func IsExecutionError(err error) bool {
	if err == nil {
		return false
	}
	if gqmerrors.IsDatabase(err) {
		return true
	}
	if gqmerrors.GetErrorCode(err) != gqmerrors.ErrCodeInternal {
		return false
	}

	var pqErr *pq.Error
	var myErr *mysql.MySQLError
	var liteErr *sqlite.Error
	return errors.As(err, &pqErr) || errors.As(err, &myErr) || errors.As(err, &liteErr)
}
