package sql

import (
	"context"
	"database/sql"
	"strings"

	core "gqm/data/db"
	"gqm/data/db/dialect"
	"gqm/errors"
)

// Action 外键违约动作
type Action string

const (
	NoAction Action = "NO ACTION"
	Restrict Action = "RESTRICT"
	Cascade  Action = "CASCADE"
	SetNull  Action = "SET NULL"
)

// ParseAction 解析外键违约动作（cascade / setnull / restrict / noaction），未知值返回空
func ParseAction(s string) Action {
	switch strings.ToLower(strings.ReplaceAll(strings.ReplaceAll(s, "_", ""), " ", "")) {
	case "cascade":
		return Cascade
	case "setnull":
		return SetNull
	case "restrict":
		return Restrict
	case "noaction":
		return NoAction
	default:
		return ""
	}
}

type columnDef struct {
	name        string
	typ         string
	constraints []string
}

type foreignKey struct {
	col      string
	refTable string
	refCol   string
	onDelete Action
}

type createTableBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	table       string
	ifNotExists bool
	columns     []columnDef
	primaryKey  []string
	uniques     [][]string
	foreignKeys []foreignKey
}

func (b *createTableBuilder) IfNotExists() ICreateTableBuilder {
	b.ifNotExists = true
	return b
}

func (b *createTableBuilder) Column(name, typ string, constraints ...string) ICreateTableBuilder {
	b.columns = append(b.columns, columnDef{name: name, typ: typ, constraints: constraints})
	return b
}

func (b *createTableBuilder) PrimaryKey(cols ...string) ICreateTableBuilder {
	b.primaryKey = cols
	return b
}

func (b *createTableBuilder) Unique(cols ...string) ICreateTableBuilder {
	if len(cols) > 0 {
		b.uniques = append(b.uniques, cols)
	}
	return b
}

func (b *createTableBuilder) ForeignKey(col, refTable, refCol string, onDelete Action) ICreateTableBuilder {
	b.foreignKeys = append(b.foreignKeys, foreignKey{col: col, refTable: refTable, refCol: refCol, onDelete: onDelete})
	return b
}

func (b *createTableBuilder) quoteList(cols []string) (string, error) {
	if err := checkIdentifiers("column", cols); err != nil {
		return "", err
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = b.dialect.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", "), nil
}

func (b *createTableBuilder) Build() string {
	q, _ := mustBuild(b.build())
	return q
}

func (b *createTableBuilder) build() (string, []any, error) {
	if err := CheckIdentifier("table", b.table); err != nil {
		return "", nil, err
	}
	if len(b.columns) == 0 {
		return "", nil, errors.Newf(errors.ErrCodeInvalidInput, "sql: create table %s without columns", b.table)
	}

	defs := make([]string, 0, len(b.columns)+len(b.uniques)+len(b.foreignKeys)+1)
	for _, c := range b.columns {
		if err := CheckIdentifier("column", c.name); err != nil {
			return "", nil, err
		}
		def := b.dialect.QuoteIdentifier(c.name) + " " + c.typ
		if len(c.constraints) > 0 {
			def += " " + strings.Join(c.constraints, " ")
		}
		defs = append(defs, def)
	}
	if len(b.primaryKey) > 0 {
		cols, err := b.quoteList(b.primaryKey)
		if err != nil {
			return "", nil, err
		}
		defs = append(defs, "PRIMARY KEY ("+cols+")")
	}
	for _, u := range b.uniques {
		cols, err := b.quoteList(u)
		if err != nil {
			return "", nil, err
		}
		defs = append(defs, "UNIQUE ("+cols+")")
	}
	for _, fk := range b.foreignKeys {
		if err := checkIdentifiers("foreign key", []string{fk.col, fk.refTable, fk.refCol}); err != nil {
			return "", nil, err
		}
		def := "FOREIGN KEY (" + b.dialect.QuoteIdentifier(fk.col) + ") REFERENCES " +
			b.dialect.QuoteIdentifier(fk.refTable) + " (" + b.dialect.QuoteIdentifier(fk.refCol) + ")"
		if fk.onDelete != "" {
			def += " ON DELETE " + string(fk.onDelete)
		}
		defs = append(defs, def)
	}

	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	if b.ifNotExists && b.dialect.SupportsIfExists() {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(b.dialect.QuoteIdentifier(b.table))
	sb.WriteString(" (")
	sb.WriteString(strings.Join(defs, ", "))
	sb.WriteString(")")
	return sb.String(), nil, nil
}

func (b *createTableBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, _, err := b.build()
	if err != nil {
		return nil, err
	}
	return exec(ctx, b.db, q, nil)
}

// ddlBuilder 单对象 DDL：DROP TABLE / CREATE SEQUENCE / DROP SEQUENCE
type ddlBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	verb     string
	name     string
	suffix   string
	ifExists bool
}

func (b *ddlBuilder) IfExists() IDropBuilder {
	b.ifExists = true
	return b
}

func (b *ddlBuilder) Build() string {
	q, _ := mustBuild(b.build())
	return q
}

func (b *ddlBuilder) build() (string, []any, error) {
	if err := CheckIdentifier("name", b.name); err != nil {
		return "", nil, err
	}
	var sb strings.Builder
	sb.WriteString(b.verb)
	sb.WriteString(" ")
	if b.ifExists && b.dialect.SupportsIfExists() {
		if strings.HasPrefix(b.verb, "CREATE") {
			sb.WriteString("IF NOT EXISTS ")
		} else {
			sb.WriteString("IF EXISTS ")
		}
	}
	sb.WriteString(b.dialect.QuoteIdentifier(b.name))
	sb.WriteString(b.suffix)
	return sb.String(), nil, nil
}

func (b *ddlBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, _, err := b.build()
	if err != nil {
		return nil, err
	}
	return exec(ctx, b.db, q, nil)
}
