package manager

import (
	"context"
	"reflect"
	"strings"

	core "gqm/data/db"
	"gqm/data/db/dialect"
	"gqm/errors"
	"gqm/lazy"
	"gqm/logging"
	"gqm/relation"
	"gqm/schema"
)

type columnSet struct {
	columns []string
	values  []any
}

func (c *columnSet) add(column string, value any) {
	c.columns = append(c.columns, column)
	c.values = append(c.values, value)
}

func (c *columnSet) merge(other columnSet) {
	c.columns = append(c.columns, other.columns...)
	c.values = append(c.values, other.values...)
}

// columnValues 本表的标量列；值为零的基本类型外键写入 NULL
func (e *engine) columnValues(ptr reflect.Value, withID bool, id int64) columnSet {
	var cs columnSet
	elem := ptr.Elem()
	for _, p := range e.bean.Columns() {
		if p.Identifier {
			if withID {
				cs.add(p.Column, id)
			}
			continue
		}
		field := p.Field(elem)
		if p.Relation == schema.RelationManyToOne && field.IsZero() {
			cs.add(p.Column, nil)
			continue
		}
		cs.add(p.Column, schema.Value(field))
	}
	return cs
}

// manyToOneTarget 读取对象 many-to-one 字段
//
// 返回已赋值的目标 *U；延迟值尚未加载时 pending 为 true，fk 为加载函数记录的外键。
func manyToOneTarget(decl *relation.ManyToOneDeclaration, field reflect.Value) (target reflect.Value, pending bool, fk int64) {
	if decl.Lazy {
		acc, ok := lazy.AccessorOf(field)
		if !ok {
			return reflect.Value{}, false, 0
		}
		if !acc.Loaded() {
			if id, has := acc.ID(); has {
				return reflect.Value{}, true, id
			}
			return reflect.Value{}, false, 0
		}
		if v := acc.AnyValue(); v != nil {
			return reflect.ValueOf(v), false, 0
		}
		return reflect.Value{}, false, 0
	}
	if field.IsNil() {
		return reflect.Value{}, false, 0
	}
	return field, false, 0
}

// storeManyToOne 保存尚未保存的 many-to-one 目标，返回外键列
//
// 已有标识的目标不会被改动。目标的插入被否决时 ok 为 false。
func (e *engine) storeManyToOne(ctx context.Context, ptr reflect.Value) (fks columnSet, ok bool, err error) {
	elem := ptr.Elem()
	for _, decl := range e.decls.ManyToOne {
		if decl.Basic {
			continue
		}
		target, pending, pendingID := manyToOneTarget(decl, decl.Property.Field(elem))
		if pending {
			fks.add(decl.ForeignKeyColumn, pendingID)
			continue
		}
		if !target.IsValid() {
			fks.add(decl.ForeignKeyColumn, nil)
			continue
		}

		assoc, err := e.related(decl.AssociationType, decl.AssociationTable)
		if err != nil {
			return fks, false, err
		}
		if assoc.unassigned(assoc.identifierOf(target)) {
			id, _, err := assoc.insertChain(ctx, target)
			if err != nil {
				return fks, false, err
			}
			if id == -1 {
				return fks, false, nil
			}
		}
		fks.add(decl.ForeignKeyColumn, assoc.referenceValue(target, decl.AssociationColumn))
	}
	return fks, true, nil
}

func (e *engine) insertWithoutCallbacks(ctx context.Context, ptr reflect.Value) (int64, error) {
	fks, ok, err := e.storeManyToOne(ctx, ptr)
	if err != nil || !ok {
		return -1, err
	}

	var id int64
	if e.bean.Sparse() {
		id = e.identifierOf(ptr)
		if id < 0 {
			return -1, nil
		}
	} else {
		id, err = e.registry.idgen.Next(ctx, e.conn(ctx), e.registry.dialect, e.bean.Table)
		if err != nil {
			return -1, err
		}
	}

	cs := e.columnValues(ptr, true, id)
	cs.merge(fks)
	if _, err := e.sql(ctx).InsertInto(e.bean.Table).Columns(cs.columns...).Values(cs.values...).Exec(ctx); err != nil {
		return -1, errors.WrapDatabaseError(ctx, err, "insert into "+e.bean.Table)
	}

	previous := e.identifierOf(ptr)
	e.assignIdentifier(ctx, ptr, id)
	if err := e.storeAssociations(ctx, ptr, id, false); err != nil {
		e.bean.SetIdentifier(ptr, previous)
		return -1, err
	}

	e.logger.Debug(ctx, "bean inserted", logging.Int64("id", id))
	e.fire(ctx, EventInserted, id, ptr)
	return id, nil
}

func (e *engine) updateWithoutCallbacks(ctx context.Context, ptr reflect.Value) (int64, error) {
	id := e.identifierOf(ptr)
	if e.unassigned(id) {
		return -1, nil
	}

	fks, ok, err := e.storeManyToOne(ctx, ptr)
	if err != nil || !ok {
		return -1, err
	}

	cs := e.columnValues(ptr, false, id)
	cs.merge(fks)
	if len(cs.columns) == 0 {
		// 只有标识列，确认行存在即可
		n, err := e.count(ctx, e.countQuery().WhereEq(e.idColumn(), id))
		if err != nil {
			return -1, err
		}
		if n == 0 {
			return -1, nil
		}
	} else {
		ub := e.sql(ctx).Update(e.bean.Table)
		for i, col := range cs.columns {
			ub.Set(col, cs.values[i])
		}
		res, err := ub.Where(e.quote(e.idColumn())+" = ?", id).Exec(ctx)
		if err != nil {
			return -1, errors.WrapDatabaseError(ctx, err, "update "+e.bean.Table)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return -1, errors.WrapDatabaseError(ctx, err, "update "+e.bean.Table)
		}
		if n == 0 {
			return -1, nil
		}
	}

	if err := e.storeAssociations(ctx, ptr, id, true); err != nil {
		return -1, err
	}

	e.logger.Debug(ctx, "bean updated", logging.Int64("id", id))
	e.fire(ctx, EventUpdated, id, ptr)
	return id, nil
}

func (e *engine) storeAssociations(ctx context.Context, ptr reflect.Value, id int64, existing bool) error {
	if err := e.storeManyToOneAssociations(ctx, ptr, existing); err != nil {
		return err
	}
	return e.storeManyToMany(ctx, ptr, id)
}

// storeManyToOneAssociations 保存反向集合中的主 bean，使其外键指向本 bean
//
// 更新时，原本指向本 bean 但已不在集合中的行外键置空。
func (e *engine) storeManyToOneAssociations(ctx context.Context, ptr reflect.Value, existing bool) error {
	elem := ptr.Elem()
	for _, decl := range e.decls.ManyToOneAssociation {
		items, defined, err := relation.CheckCollectionValue(e.bean, decl.Property, decl.Property.Field(elem))
		if err != nil {
			return err
		}
		if !defined {
			continue
		}
		main, err := e.related(decl.MainType, decl.MainBean.Table)
		if err != nil {
			return err
		}
		md := decl.MainDeclaration
		ref := e.referenceValue(ptr, md.AssociationColumn)

		kept := make([]any, 0, len(items))
		for _, item := range items {
			iv := reflect.ValueOf(item)
			linked := pointBack(md, iv.Elem(), ptr, ref)
			mid, err := main.save(ctx, iv)
			if err != nil {
				return err
			}
			if mid == -1 {
				continue
			}
			kept = append(kept, mid)
			if linked {
				continue
			}
			// 主属性是同一张表的另一个类型，直接写外键
			ub := main.sql(ctx).Update(main.bean.Table).
				Set(md.ForeignKeyColumn, ref).
				Where(main.quote(main.idColumn())+" = ?", mid)
			if _, err := ub.Exec(ctx); err != nil {
				return errors.WrapDatabaseError(ctx, err, "link "+main.bean.Table)
			}
		}

		if !existing {
			continue
		}
		ub := main.sql(ctx).Update(main.bean.Table).
			Set(md.ForeignKeyColumn, nil).
			Where(main.quote(md.ForeignKeyColumn)+" = ?", ref)
		if len(kept) > 0 {
			ub.Where(main.quote(main.idColumn())+" NOT IN ("+placeholders(len(kept))+")", kept...)
		}
		if _, err := ub.Exec(ctx); err != nil {
			return errors.WrapDatabaseError(ctx, err, "unlink "+main.bean.Table)
		}
	}
	return nil
}

// pointBack 让主 bean 的 many-to-one 属性指向 owner；类型不匹配时返回 false
func pointBack(md *relation.ManyToOneDeclaration, mainElem, owner reflect.Value, ref any) bool {
	field := md.Property.Field(mainElem)
	switch {
	case md.Basic:
		return schema.Assign(field, ref) == nil
	case md.Lazy:
		acc, ok := lazy.AccessorOf(field)
		if !ok || acc.TargetType() != owner.Elem().Type() {
			return false
		}
		acc.SetAny(owner.Interface())
		return true
	case field.Type() == owner.Type():
		field.Set(owner)
		return true
	default:
		return false
	}
}

// storeManyToMany 按集合的当前内容重建关联行，尚未保存的元素先插入
func (e *engine) storeManyToMany(ctx context.Context, ptr reflect.Value, id int64) error {
	elem := ptr.Elem()
	for _, decl := range e.decls.ManyToMany {
		items, defined, err := relation.CheckCollectionValue(e.bean, decl.Property, decl.Property.Field(elem))
		if err != nil {
			return err
		}
		if !defined {
			continue
		}
		assoc, err := e.related(decl.AssociationType, decl.AssociationTable)
		if err != nil {
			return err
		}

		s := e.sql(ctx)
		if _, err := s.DeleteFrom(decl.JoinTable).Where(e.quote(decl.JoinColumn)+" = ?", id).Exec(ctx); err != nil {
			return errors.WrapDatabaseError(ctx, err, "clear "+decl.JoinTable)
		}

		seen := make(map[int64]struct{}, len(items))
		for _, item := range items {
			iv := reflect.ValueOf(item)
			aid := assoc.identifierOf(iv)
			if assoc.unassigned(aid) {
				aid, _, err = assoc.insertChain(ctx, iv)
				if err != nil {
					return err
				}
				if aid == -1 {
					continue
				}
			}
			if _, dup := seen[aid]; dup {
				continue
			}
			seen[aid] = struct{}{}
			ib := s.InsertInto(decl.JoinTable).
				Columns(decl.JoinColumn, decl.AssociationJoinColumn).
				Values(id, aid)
			if _, err := ib.Exec(ctx); err != nil {
				return errors.WrapDatabaseError(ctx, err, "insert into "+decl.JoinTable)
			}
		}
	}
	return nil
}

// insertChain beforeInsert → 插入 → afterInsert
func (e *engine) insertChain(ctx context.Context, ptr reflect.Value) (int64, chain, error) {
	hooks := e.callbacks()
	if !hooks.beforeInsert(ctx, ptr) {
		return -1, chain{vetoed: true}, nil
	}
	id := int64(-1)
	err := e.inTx(ctx, func(ctx context.Context) error {
		var err error
		id, err = e.insertWithoutCallbacks(ctx, ptr)
		return err
	})
	if err != nil {
		return -1, chain{}, err
	}
	return id, chain{stopped: !hooks.afterInsert(ctx, ptr, id != -1)}, nil
}

// updateChain beforeUpdate → 更新 → afterUpdate
func (e *engine) updateChain(ctx context.Context, ptr reflect.Value) (int64, chain, error) {
	hooks := e.callbacks()
	if !hooks.beforeUpdate(ctx, ptr) {
		return -1, chain{vetoed: true}, nil
	}
	id := int64(-1)
	err := e.inTx(ctx, func(ctx context.Context) error {
		var err error
		id, err = e.updateWithoutCallbacks(ctx, ptr)
		return err
	})
	if err != nil {
		return -1, chain{}, err
	}
	return id, chain{stopped: !hooks.afterUpdate(ctx, ptr, id != -1)}, nil
}

// save 在一个事务中先更新后插入（sparse 标识时先插入后更新）
//
// 非 sparse 标识为 0 或负数时不尝试更新，直接插入。
// 否决返回 -1 且不调用 afterSave；after 钩子返回 false 时保留已得到的结果，
// 不再尝试另一种写法，也不调用 afterSave。
func (e *engine) save(ctx context.Context, ptr reflect.Value) (int64, error) {
	hooks := e.callbacks()
	if !hooks.beforeSave(ctx, ptr) {
		return -1, nil
	}

	result := int64(-1)
	var ch chain
	err := e.inTx(ctx, func(ctx context.Context) error {
		var err error
		if e.bean.Sparse() {
			result, ch, err = e.sparseInsert(ctx, ptr)
			if err != nil || result != -1 || ch.vetoed || ch.stopped {
				return err
			}
			result, ch, err = e.updateChain(ctx, ptr)
			return err
		}

		if !e.unassigned(e.identifierOf(ptr)) {
			result, ch, err = e.updateChain(ctx, ptr)
			if err != nil || result != -1 || ch.vetoed || ch.stopped {
				return err
			}
		}
		result, ch, err = e.insertChain(ctx, ptr)
		return err
	})
	switch {
	case err != nil:
		return -1, err
	case ch.vetoed:
		return -1, nil
	case ch.stopped:
		return result, nil
	}
	hooks.afterSave(ctx, ptr, result != -1)
	return result, nil
}

// sparseInsert 在保存点内插入；执行错误回滚到保存点并视为插入失败，其他错误照常返回
//
// 回滚保存点时，级联插入写到各 bean 上的标识一并恢复。
func (e *engine) sparseInsert(ctx context.Context, ptr reflect.Value) (int64, chain, error) {
	sp, err := e.conn(ctx).Begin(ctx)
	if err != nil {
		return -1, chain{}, errors.WrapDatabaseError(ctx, err, "savepoint")
	}

	spCtx, journal := withJournal(core.WithTx(ctx, sp))
	id, ch, err := e.insertChain(spCtx, ptr)
	if err != nil {
		journal.revert()
		if !dialect.IsExecutionError(err) {
			_ = sp.Rollback()
			return -1, ch, err
		}
		if rbErr := sp.Rollback(); rbErr != nil {
			return -1, ch, errors.WrapDatabaseError(ctx, rbErr, "rollback to savepoint")
		}
		e.logger.Warn(ctx, "sparse insert failed, trying update",
			logging.String("table", e.bean.Table),
			logging.Int64("id", e.identifierOf(ptr)),
			logging.Error(err))
		return -1, chain{}, nil
	}

	if err := sp.Commit(); err != nil {
		journal.revert()
		return -1, ch, errors.WrapDatabaseError(ctx, err, "release savepoint")
	}
	journal.promote(ctx)
	return id, ch, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
