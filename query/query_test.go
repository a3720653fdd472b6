package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gqm/data/db/dialect"
)

var sqlite = dialect.New("sqlite")

func TestRestoreQuery_Build(t *testing.T) {
	q := NewRestoreQuery("person")
	sql, args := q.Build(sqlite)
	assert.Equal(t, `SELECT "person".* FROM "person"`, sql)
	assert.Empty(t, args)

	q.WhereEq("name", "ann").WhereOp("age", ">=", 18).OrderBy("name", false).OrderBy("id", true).Limit(10).Offset(5)
	sql, args = q.Build(sqlite)
	assert.Equal(t, `SELECT "person".* FROM "person" WHERE "name" = ? AND "age" >= ? ORDER BY "name", "id" DESC LIMIT ? OFFSET ?`, sql)
	assert.Equal(t, []any{"ann", 18, 10, 5}, args)
}

func TestRestoreQuery_JoinDistinct(t *testing.T) {
	q := NewRestoreQuery("item").
		Distinct().
		InnerJoin("order_item", `"order_item"."item_id" = "item"."id"`).
		WhereEq("order_item.order_id", int64(7))

	sql, args := q.Build(sqlite)
	assert.Equal(t, `SELECT DISTINCT "item".* FROM "item" INNER JOIN "order_item" ON "order_item"."item_id" = "item"."id" WHERE "order_item"."order_id" = ?`, sql)
	assert.Equal(t, []any{int64(7)}, args)
}

func TestRestoreQuery_WhereInAndNull(t *testing.T) {
	q := NewRestoreQuery("person").WhereIn("id", 1, 2, 3).WhereEq("owner_id", nil)
	sql, args := q.Build(dialect.New("postgres"))
	assert.Equal(t, `SELECT "person".* FROM "person" WHERE "id" IN (?, ?, ?) AND "owner_id" IS NULL`, sql)
	assert.Equal(t, []any{1, 2, 3}, args)

	empty := NewRestoreQuery("person").WhereIn("id")
	sql, args = empty.Build(sqlite)
	assert.Equal(t, `SELECT "person".* FROM "person" WHERE 1 = 0`, sql)
	assert.Empty(t, args)
}

func TestRestoreQuery_ClearAndClone(t *testing.T) {
	q := NewRestoreQuery("person").WhereEq("name", "ann")
	c := q.Clone()

	q.Clear()
	sql, _ := q.Build(sqlite)
	assert.Equal(t, `SELECT "person".* FROM "person"`, sql)

	// 副本不受原查询影响
	sql, args := c.Build(sqlite)
	assert.Equal(t, `SELECT "person".* FROM "person" WHERE "name" = ?`, sql)
	assert.Equal(t, []any{"ann"}, args)

	c.WhereEq("age", 3)
	_, args = c.Build(sqlite)
	assert.Len(t, args, 2)
	sql, _ = q.Build(sqlite)
	assert.NotContains(t, sql, "WHERE")
}

func TestRestoreQuery_MySQLQuoting(t *testing.T) {
	q := NewRestoreQuery("person").Fields("`person`.`id`").WhereEq("name", "x")
	sql, _ := q.Build(dialect.New("mysql"))
	assert.Equal(t, "SELECT `person`.`id` FROM `person` WHERE `name` = ?", sql)
}

func TestCountQuery(t *testing.T) {
	q := NewCountQuery("person").WhereEq("age", 3)
	sql, args := q.Build(sqlite)
	assert.Equal(t, `SELECT COUNT(*) FROM "person" WHERE "age" = ?`, sql)
	assert.Equal(t, []any{3}, args)

	q.Distinct("person.name")
	sql, _ = q.Build(sqlite)
	assert.Equal(t, `SELECT COUNT(DISTINCT "person"."name") FROM "person" WHERE "age" = ?`, sql)

	q.Clear()
	sql, args = q.Build(sqlite)
	assert.Equal(t, `SELECT COUNT(*) FROM "person"`, sql)
	assert.Empty(t, args)
}

func TestRestoreQuery_CountQuery(t *testing.T) {
	r := NewRestoreQuery("person").WhereEq("age", 3).OrderBy("name", false).Limit(2)
	sql, args := r.CountQuery().Build(sqlite)
	assert.Equal(t, `SELECT COUNT(*) FROM "person" WHERE "age" = ?`, sql)
	assert.Equal(t, []any{3}, args)
}

func TestDeleteQuery(t *testing.T) {
	q := NewDeleteQuery("person")
	sql, args := q.Build(sqlite)
	assert.Equal(t, `DELETE FROM "person"`, sql)
	assert.Empty(t, args)

	q.WhereEq("id", int64(4)).Where(`"age" < ?`, 10)
	sql, args = q.Build(sqlite)
	assert.Equal(t, `DELETE FROM "person" WHERE "id" = ? AND "age" < ?`, sql)
	assert.Equal(t, []any{int64(4), 10}, args)

	c := q.Clone().Clear()
	sql, _ = c.Build(sqlite)
	assert.Equal(t, `DELETE FROM "person"`, sql)
	sql, _ = q.Build(sqlite)
	assert.Contains(t, sql, "WHERE")
}
