package sql

import (
	"gqm/errors"
)

// ValidIdentifier 判断 name 能否安全地作为表名、列名或序列名拼入语句
//
// 接受单个标识符或以点分隔的限定名（schema.table），每段以字母或下划线开头，
// 其余为字母、数字或下划线。
func ValidIdentifier(name string) bool {
	if name == "" {
		return false
	}
	start := true
	for i := 0; i < len(name); i++ {
		ch := name[i]
		switch {
		case ch == '.':
			if start {
				return false
			}
			start = true
			continue
		case ch == '_' || (ch|0x20 >= 'a' && ch|0x20 <= 'z'):
		case ch >= '0' && ch <= '9':
			if start {
				return false
			}
		default:
			return false
		}
		start = false
	}
	return !start
}

// CheckIdentifier 校验标识符，非法时返回 INVALID_INPUT 错误；what 描述标识符的用途
func CheckIdentifier(what, name string) error {
	if ValidIdentifier(name) {
		return nil
	}
	return errors.Newf(errors.ErrCodeInvalidInput, "sql: invalid %s %q", what, name)
}

func checkIdentifiers(what string, names []string) error {
	for _, n := range names {
		if err := CheckIdentifier(what, n); err != nil {
			return err
		}
	}
	return nil
}

// mustBuild 把构建错误转换为 panic，供只返回语句的 Build 使用
func mustBuild(query string, args []any, err error) (string, []any) {
	if err != nil {
		panic(err)
	}
	return query, args
}
