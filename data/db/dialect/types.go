package dialect

import (
	"reflect"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

// ColumnType 返回 Go 类型对应的列类型
//
// 指针类型按其元素类型处理（可空列）。未支持的类型返回空串。
func (d Dialect) ColumnType(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType {
		if d.name == NameMySQL {
			return "DATETIME"
		}
		return "TIMESTAMP"
	}

	switch t.Kind() {
	case reflect.Int64, reflect.Uint64, reflect.Uint32:
		return "BIGINT"
	case reflect.Int, reflect.Int32, reflect.Int16, reflect.Int8,
		reflect.Uint, reflect.Uint16, reflect.Uint8:
		if d.name == NameSQLite {
			return "INTEGER"
		}
		if t.Kind() == reflect.Int || t.Kind() == reflect.Uint {
			return "BIGINT"
		}
		return "INTEGER"
	case reflect.Bool:
		return "BOOLEAN"
	case reflect.Float32, reflect.Float64:
		switch d.name {
		case NameMySQL:
			return "DOUBLE"
		case NameSQLite:
			return "REAL"
		default:
			return "DOUBLE PRECISION"
		}
	case reflect.String:
		return "VARCHAR(255)"
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			switch d.name {
			case NamePostgres:
				return "BYTEA"
			default:
				return "BLOB"
			}
		}
	}
	return ""
}

// IdentifierType 主键/外键列类型
func (d Dialect) IdentifierType() string {
	if d.name == NameSQLite {
		return "INTEGER"
	}
	return "BIGINT"
}
