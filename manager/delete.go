package manager

import (
	"context"
	"database/sql"
	stdErrors "errors"

	"gqm/errors"
	"gqm/logging"
	"gqm/query"
)

// delete 删除一行及其关联
//
// 在一个事务中：反向关联的外键置空，删除 many-to-many 关联行，删除本行。
// beforeDelete 否决时不调用 afterDelete；否则 afterDelete 总会执行。
func (e *engine) delete(ctx context.Context, id int64) (bool, error) {
	hooks := e.callbacks()
	if !hooks.beforeDelete(ctx, id) {
		return false, nil
	}

	deleted := false
	err := e.inTx(ctx, func(ctx context.Context) error {
		if err := e.unlinkReferences(ctx, id); err != nil {
			return err
		}
		s := e.sql(ctx)
		for _, decl := range e.decls.ManyToMany {
			if _, err := s.DeleteFrom(decl.JoinTable).Where(e.quote(decl.JoinColumn)+" = ?", id).Exec(ctx); err != nil {
				return errors.WrapDatabaseError(ctx, err, "delete from "+decl.JoinTable)
			}
		}
		res, err := s.DeleteFrom(e.bean.Table).Where(e.quote(e.idColumn())+" = ?", id).Exec(ctx)
		if err != nil {
			return errors.WrapDatabaseError(ctx, err, "delete from "+e.bean.Table)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.WrapDatabaseError(ctx, err, "delete from "+e.bean.Table)
		}
		deleted = n > 0
		if deleted {
			e.fire(ctx, EventDeleted, id, nilBean)
		}
		return nil
	})
	if err != nil {
		deleted = false
	}

	hooks.afterDelete(ctx, id, deleted)
	if deleted {
		e.logger.Debug(ctx, "bean deleted", logging.Int64("id", id))
	}
	return deleted, err
}

// unlinkReferences 将反向关联中指向本行的外键置空
func (e *engine) unlinkReferences(ctx context.Context, id int64) error {
	for _, decl := range e.decls.ManyToOneAssociation {
		main, err := e.related(decl.MainType, decl.MainBean.Table)
		if err != nil {
			return err
		}
		md := decl.MainDeclaration

		var ref any = id
		if md.AssociationColumn != e.idColumn() {
			row := e.sql(ctx).Select(e.quote(md.AssociationColumn)).
				From(e.bean.Table).
				Where(e.quote(e.idColumn())+" = ?", id).
				QueryRow(ctx)
			if err := row.Scan(&ref); err != nil {
				if stdErrors.Is(err, sql.ErrNoRows) {
					continue
				}
				return errors.WrapDatabaseError(ctx, err, "read "+e.bean.Table)
			}
		}

		ub := main.sql(ctx).Update(main.bean.Table).
			Set(md.ForeignKeyColumn, nil).
			Where(main.quote(md.ForeignKeyColumn)+" = ?", ref)
		if _, err := ub.Exec(ctx); err != nil {
			return errors.WrapDatabaseError(ctx, err, "unlink "+main.bean.Table)
		}
	}
	return nil
}

// deleteByQuery 按任意条件删除，不做级联，不调用钩子
func (e *engine) deleteByQuery(ctx context.Context, q *query.DeleteQuery) (bool, error) {
	text, args := q.Build(e.registry.dialect)
	res, err := e.conn(ctx).Exec(ctx, text, args...)
	if err != nil {
		return false, errors.WrapDatabaseError(ctx, err, "delete from "+q.Table())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.WrapDatabaseError(ctx, err, "delete from "+q.Table())
	}
	return n > 0, nil
}
