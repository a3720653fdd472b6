package manager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"gqm/collection"
	core "gqm/data/db"
	"gqm/data/db/basic"
	"gqm/lazy"
	"gqm/logging"
	"gqm/validation"
)

type person struct {
	validation.Validation

	ID   int64
	Name string `gqm:"unique;notnull" validate:"required,max=64"`
	Age  int    `validate:"gte=0"`
}

type item struct {
	ID   int64
	Name string
}

type order struct {
	ID     int64
	Number string
	Items  collection.List[*item] `gqm:"manytomany"`
}

func (order) TableName() string { return "orders" }

type boss struct {
	ID    int64
	Name  string
	Staff collection.List[*employee] `gqm:"manytooneassociation"`
}

type employee struct {
	validation.Validation

	ID   int64
	Name string
	Boss *boss `gqm:"manytoone"`
}

// lazyEmployee 与 employee 共用一张表，上级延迟加载
type lazyEmployee struct {
	ID   int64
	Name string
	Boss lazy.Value[boss] `gqm:"manytoone"`
}

func (lazyEmployee) TableName() string { return "employee" }

type token struct {
	ID    int64 `gqm:"id;sparse"`
	Value string
}

type agent struct {
	ID   int64
	Name string
}

// ticket 使用 sparse 标识并引用 agent
type ticket struct {
	ID      int64 `gqm:"id;sparse"`
	Subject string
	Owner   *agent `gqm:"manytoone"`
}

// seat 组合唯一：同一场次的同一座位只能出现一次
type seat struct {
	validation.Validation

	ID     int64
	Show   string
	Number int
}

func (seat) UniqueGroups() [][]string { return [][]string{{"Show", "Number"}} }

func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	database, err := basic.New(core.DBConfig{Driver: "sqlite", Database: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	reg, err := NewRegistry(database, append([]Option{WithLogger(logging.NewNoopLogger())}, opts...)...)
	require.NoError(t, err)
	return reg
}

func install[T any](t *testing.T, reg *Registry) *Manager[T] {
	t.Helper()
	m, err := Of[T](reg)
	require.NoError(t, err)
	require.NoError(t, m.Install(context.Background()))
	return m
}

// countRows 直接统计表中满足条件的行数
func countRows(t *testing.T, reg *Registry, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, reg.Database().QueryRow(context.Background(), query, args...).Scan(&n))
	return n
}
