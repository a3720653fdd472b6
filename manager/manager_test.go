package manager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gqm/errors"
	"gqm/validation"
)

func TestManager_InstallRemove(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	people := install[person](t, reg)

	n, err := people.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Equal(t, int64(1), countRows(t, reg, `SELECT COUNT(*) FROM sqlite_master WHERE name = 'person_seq'`))

	require.NoError(t, people.Remove(ctx))
	assert.Equal(t, int64(0), countRows(t, reg, `SELECT COUNT(*) FROM sqlite_master WHERE name IN ('person', 'person_seq')`))

	_, err = people.Count(ctx)
	assert.True(t, errors.IsDatabase(err))
}

func TestManager_SaveInsertsThenUpdates(t *testing.T) {
	ctx := context.Background()
	people := install[person](t, newTestRegistry(t))

	p := &person{ID: Unassigned, Name: "Alice", Age: 30}
	id, err := people.Save(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, id, p.ID)

	p.Name = "Alicia"
	again, err := people.Save(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	n, err := people.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	restored, err := people.Restore(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, "Alicia", restored.Name)
}

func TestManager_SaveUnknownIdentifierInserts(t *testing.T) {
	ctx := context.Background()
	people := install[person](t, newTestRegistry(t))

	// 标识 ≥ 0 但没有对应行：更新返回 -1，随后插入并分配新标识
	p := &person{ID: 42, Name: "Bob"}
	id, err := people.Save(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, int64(1), p.ID)
}

func TestManager_RoundTrip(t *testing.T) {
	ctx := context.Background()
	people := install[person](t, newTestRegistry(t))

	p := &person{Name: "Carol", Age: 41}
	id, err := people.Insert(ctx, p)
	require.NoError(t, err)

	restored, err := people.Restore(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, p.ID, restored.ID)
	assert.Equal(t, p.Name, restored.Name)
	assert.Equal(t, p.Age, restored.Age)
}

func TestManager_UpdateMissingRow(t *testing.T) {
	ctx := context.Background()
	people := install[person](t, newTestRegistry(t))

	id, err := people.Update(ctx, &person{ID: 7, Name: "Nobody"})
	require.NoError(t, err)
	assert.Equal(t, Unassigned, id)

	id, err = people.Update(ctx, &person{Name: "Unsaved"})
	require.NoError(t, err)
	assert.Equal(t, Unassigned, id)
}

func TestManager_DeleteThenRestore(t *testing.T) {
	ctx := context.Background()
	people := install[person](t, newTestRegistry(t))

	id, err := people.Insert(ctx, &person{Name: "Dave"})
	require.NoError(t, err)

	deleted, err := people.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, deleted)

	restored, err := people.Restore(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, restored)

	deleted, err = people.Delete(ctx, id)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestManager_Queries(t *testing.T) {
	ctx := context.Background()
	people := install[person](t, newTestRegistry(t))

	for i, name := range []string{"Ann", "Ben", "Cid", "Dan"} {
		_, err := people.Insert(ctx, &person{Name: name, Age: 20 + i*10})
		require.NoError(t, err)
	}

	older, err := people.RestoreQuery(ctx, people.GetRestoreQuery().WhereOp("age", ">=", 40).OrderBy("age", true))
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, "Dan", older[0].Name)
	assert.Equal(t, "Cid", older[1].Name)

	first, err := people.RestoreFirst(ctx, people.GetRestoreQuery().OrderBy("name", true))
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "Dan", first.Name)

	none, err := people.RestoreFirst(ctx, people.GetRestoreQuery().WhereEq("name", "Zed"))
	require.NoError(t, err)
	assert.Nil(t, none)

	all, err := people.RestoreAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "Ann", all[0].Name)

	var seen []string
	err = people.RestoreEach(ctx, nil, func(p *person) bool {
		seen = append(seen, p.Name)
		return len(seen) < 2
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ann", "Ben"}, seen)

	n, err := people.CountQuery(ctx, people.GetCountQuery().WhereOp("age", "<", 40))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	byID, err := people.RestoreFirst(ctx, people.GetRestoreQueryByID(3))
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "Cid", byID.Name)

	deleted, err := people.DeleteQuery(ctx, people.GetDeleteQuery().WhereOp("age", ">", 35))
	require.NoError(t, err)
	assert.True(t, deleted)
	n, err = people.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	deleted, err = people.DeleteQuery(ctx, people.GetDeleteQueryByID(99))
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = people.DeleteQuery(ctx, nil)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidInput))
}

func TestManager_QueryDelegateClear(t *testing.T) {
	ctx := context.Background()
	people := install[person](t, newTestRegistry(t))
	for _, name := range []string{"Eve", "Fay"} {
		_, err := people.Insert(ctx, &person{Name: name})
		require.NoError(t, err)
	}

	q := people.GetRestoreQuery().WhereEq("name", "Eve")
	filtered, err := people.RestoreQuery(ctx, q)
	require.NoError(t, err)
	assert.Len(t, filtered, 1)

	all, err := people.RestoreQuery(ctx, q.Clear())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestManager_NilBean(t *testing.T) {
	ctx := context.Background()
	people := install[person](t, newTestRegistry(t))

	id, err := people.Save(ctx, nil)
	assert.Equal(t, Unassigned, id)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidInput))

	_, err = people.Validate(ctx, nil)
	assert.Error(t, err)
}

func TestManager_Accessors(t *testing.T) {
	people := install[person](t, newTestRegistry(t))

	assert.Equal(t, "person", people.Table())
	assert.Equal(t, "ID", people.IdentifierName())
	assert.Equal(t, "id", people.IdentifierColumn())
	require.NotNil(t, people.Schema())
	assert.Len(t, people.Schema().Columns(), 3)
}

// 唯一约束：先验证再插入时记录 UNIQUENESS；跳过验证直接插入时由表上的 UNIQUE 约束拒绝
func TestManager_UniqueNameScenario(t *testing.T) {
	ctx := context.Background()
	people := install[person](t, newTestRegistry(t))

	first := &person{Name: "Alice"}
	id, err := people.Insert(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	t.Run("先验证", func(t *testing.T) {
		second := &person{Name: "Alice"}
		valid, err := people.Validate(ctx, second)
		require.NoError(t, err)
		assert.False(t, valid)
		assert.Equal(t, []validation.ValidationError{validation.Uniqueness("Name")}, second.ValidationErrors())
		assert.False(t, second.IsSubjectValid("Name"))

		// 自身不算重复
		valid, err = people.Validate(ctx, first)
		require.NoError(t, err)
		assert.True(t, valid)
		assert.Empty(t, first.ValidationErrors())
	})

	t.Run("跳过验证", func(t *testing.T) {
		second := &person{Name: "Alice"}
		id, err := people.Insert(ctx, second)
		assert.Equal(t, Unassigned, id)
		assert.True(t, errors.IsDatabase(err))
		assert.Equal(t, int64(0), second.ID)

		n, err := people.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func TestManager_ValidateFieldRules(t *testing.T) {
	ctx := context.Background()
	people := install[person](t, newTestRegistry(t))

	p := &person{Age: -1}
	valid, err := people.Validate(ctx, p)
	require.NoError(t, err)
	assert.False(t, valid)
	assert.ElementsMatch(t, []validation.ValidationError{
		validation.Mandatory("Name"),
		validation.Invalid("Age", "gte=0"),
	}, p.ValidationErrors())

	// 再次验证前清空上次的结果
	p.Name, p.Age = "Zoe", 3
	valid, err = people.Validate(ctx, p)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Empty(t, p.ValidationErrors())
}

func TestManager_ValidateUniqueGroup(t *testing.T) {
	ctx := context.Background()
	seats := install[seat](t, newTestRegistry(t))

	_, err := seats.Insert(ctx, &seat{Show: "matinee", Number: 7})
	require.NoError(t, err)

	dup := &seat{Show: "matinee", Number: 7}
	valid, err := seats.Validate(ctx, dup)
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Equal(t, []validation.ValidationError{validation.Uniqueness("Show,Number")}, dup.ValidationErrors())

	other := &seat{Show: "evening", Number: 7}
	valid, err = seats.Validate(ctx, other)
	require.NoError(t, err)
	assert.True(t, valid)

	_, err = seats.Insert(ctx, dup)
	assert.True(t, errors.IsDatabase(err))
}
