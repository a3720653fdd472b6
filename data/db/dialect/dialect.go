package dialect

import (
	"strconv"
	"strings"

	core "gqm/data/db"
)

// Name 标准化的数据库方言名称
type Name string

const (
	NameMySQL    Name = "mysql"
	NameSQLite   Name = "sqlite"
	NamePostgres Name = "postgres"
	NameUnknown  Name = ""
)

// Dialect 表示当前数据库的方言能力
//
// 只抽象映射引擎实际用到的能力：
//   - Rebind / QuoteIdentifier: 占位符与标识符转义
//   - Sequences: 是否有原生序列（主键生成）
//   - ColumnType: Go 类型到列类型的映射（建表）
//   - UniqueViolation / ForeignKeyViolation: 驱动错误识别（见 errors.go）
type Dialect struct {
	name Name
}

// New 根据字符串构造方言（大小写不敏感）
func New(name string) Dialect {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mysql":
		return Dialect{name: NameMySQL}
	case "sqlite", "sqlite3":
		return Dialect{name: NameSQLite}
	case "postgres", "postgresql", "pq":
		return Dialect{name: NamePostgres}
	default:
		return Dialect{name: NameUnknown}
	}
}

// FromDatabase 从 IDatabase 实例推断方言
//
// 需要 IDatabase 可选实现 IDialectNameProvider 接口；否则返回 Unknown。
func FromDatabase(db core.IDatabase) Dialect {
	if db == nil {
		return Dialect{name: NameUnknown}
	}
	if p, ok := db.(core.IDialectNameProvider); ok {
		return New(p.GetDialectName())
	}
	return Dialect{name: NameUnknown}
}

// Name 返回标准化方言名
func (d Dialect) Name() Name {
	return d.name
}

// Known 是否为已支持的方言
func (d Dialect) Known() bool {
	return d.name != NameUnknown
}

// DriverName 返回 database/sql 注册的 driver 名
func (d Dialect) DriverName() string {
	switch d.name {
	case NameMySQL:
		return "mysql"
	case NameSQLite:
		return "sqlite"
	case NamePostgres:
		return "postgres"
	default:
		return ""
	}
}

// QuoteIdentifier 根据方言对标识符进行转义（如表名/列名）。
//
// 约定：
//   - 支持 schema.table、table.column 等带点形式，会对每一段分别加引号；
//   - MySQL 使用反引号 `name`，Postgres/SQLite 使用双引号 "name"；
//   - Unknown 方言返回原始字符串，不做修改。
func (d Dialect) QuoteIdentifier(name string) string {
	if name == "" {
		return ""
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p == "" {
			continue
		}
		switch d.name {
		case NameMySQL:
			parts[i] = "`" + p + "`"
		case NameSQLite, NamePostgres:
			parts[i] = `"` + p + `"`
		}
	}
	return strings.Join(parts, ".")
}

// Rebind 将通用占位符 ? 转换为方言特定形式。
//
// 目前仅对 Postgres 做替换，将 ? 依次替换为 $1、$2...；其他方言保持原样。
// 实现为简单字符扫描，字符串字面量中的 ? 也会被替换，调用方应始终使用参数绑定。
func (d Dialect) Rebind(query string) string {
	if query == "" {
		return query
	}
	switch d.name {
	case NamePostgres:
		var sb strings.Builder
		sb.Grow(len(query) + 4)
		argIndex := 1
		for i := 0; i < len(query); i++ {
			ch := query[i]
			if ch == '?' {
				sb.WriteByte('$')
				sb.WriteString(strconv.Itoa(argIndex))
				argIndex++
			} else {
				sb.WriteByte(ch)
			}
		}
		return sb.String()
	default:
		return query
	}
}

// SupportsDeleteLimit 当前方言是否支持 DELETE ... LIMIT 语法
func (d Dialect) SupportsDeleteLimit() bool {
	switch d.name {
	case NameMySQL, NameSQLite:
		return true
	default:
		return false
	}
}

// SupportsSequences 当前方言是否有原生 SEQUENCE
func (d Dialect) SupportsSequences() bool {
	return d.name == NamePostgres
}

// NextSequenceValue 返回取下一个序列值的查询
func (d Dialect) NextSequenceValue(sequence string) string {
	return "SELECT nextval('" + sequence + "')"
}

// SupportsIfExists 是否支持 CREATE TABLE IF NOT EXISTS / DROP ... IF EXISTS
func (d Dialect) SupportsIfExists() bool {
	return d.name != NameUnknown
}
