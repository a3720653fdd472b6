package manager

import (
	"context"

	"gqm/data/db/dialect"
	dbsql "gqm/data/db/sql"
	"gqm/errors"
	"gqm/relation"
	"gqm/schema"
)

// install 在一个事务中创建标识生成器（sparse 除外）、表与 many-to-many 关联表
func (e *engine) install(ctx context.Context) error {
	err := e.inTx(ctx, func(ctx context.Context) error {
		if !e.bean.Sparse() {
			if err := e.registry.idgen.Install(ctx, e.conn(ctx), e.registry.dialect, e.bean.Table); err != nil {
				return err
			}
		}
		if err := e.createTable(ctx); err != nil {
			return err
		}
		for _, decl := range e.decls.ManyToMany {
			if decl.Reversed {
				continue
			}
			if err := e.createJoinTable(ctx, decl); err != nil {
				return err
			}
		}
		e.fire(ctx, EventInstalled, 0, nilBean)
		return nil
	})
	if err == nil {
		e.logger.Debug(ctx, "table installed")
	}
	return err
}

func (e *engine) createTable(ctx context.Context) error {
	d := e.registry.dialect
	b := e.sql(ctx).CreateTable(e.bean.Table).
		Column(e.idColumn(), d.IdentifierType(), "NOT NULL").
		PrimaryKey(e.idColumn())

	for _, p := range e.bean.Properties {
		if p.Identifier {
			continue
		}
		switch {
		case p.Relation == schema.RelationNone:
			typ := d.ColumnType(p.Type)
			if typ == "" {
				return errors.NewConfigurationError("%s.%s: no column type for %s", e.bean.Type.Name(), p.Name, p.Type)
			}
			b.Column(p.Column, typ, columnConstraints(p)...)

		case p.Relation == schema.RelationManyToOne:
			decl, ok := e.decls.ManyToOneFor(p.Name)
			if !ok {
				continue
			}
			typ, err := e.foreignKeyType(d, decl)
			if err != nil {
				return err
			}
			b.Column(decl.ForeignKeyColumn, typ, columnConstraints(p)...)
			b.ForeignKey(decl.ForeignKeyColumn, decl.AssociationTable, decl.AssociationColumn, dbsql.ParseAction(decl.OnDelete))
		}
	}

	for _, group := range e.bean.UniqueGroups {
		cols := make([]string, 0, len(group))
		for _, name := range group {
			p, ok := e.bean.Property(name)
			if !ok {
				return errors.NewConfigurationError("%s: unique group references unknown property %s", e.bean.Type.Name(), name)
			}
			col := p.Column
			if decl, isM2O := e.decls.ManyToOneFor(name); isM2O {
				col = decl.ForeignKeyColumn
			}
			cols = append(cols, col)
		}
		b.Unique(cols...)
	}

	if _, err := b.Exec(ctx); err != nil {
		return errors.WrapDatabaseError(ctx, err, "create table "+e.bean.Table)
	}
	return nil
}

func columnConstraints(p *schema.Property) []string {
	var out []string
	if p.NotNull {
		out = append(out, "NOT NULL")
	}
	if p.Unique {
		out = append(out, "UNIQUE")
	}
	return out
}

// foreignKeyType 外键列类型：引用标识列时与标识列一致，否则取被引用列的类型
func (e *engine) foreignKeyType(d dialect.Dialect, decl *relation.ManyToOneDeclaration) (string, error) {
	if decl.Basic {
		if typ := d.ColumnType(decl.Property.Type); typ != "" {
			return typ, nil
		}
		return "", errors.NewConfigurationError("%s.%s: no column type for %s",
			e.bean.Type.Name(), decl.Property.Name, decl.Property.Type)
	}
	ref := decl.AssociationBean
	if decl.AssociationColumn == ref.Identifier.Column {
		return d.IdentifierType(), nil
	}
	for _, p := range ref.Columns() {
		if p.Column == decl.AssociationColumn {
			if typ := d.ColumnType(p.Type); typ != "" {
				return typ, nil
			}
		}
	}
	return "", errors.NewConfigurationError("%s.%s: no column type for reference %s.%s",
		e.bean.Type.Name(), decl.Property.Name, decl.AssociationTable, decl.AssociationColumn)
}

// createJoinTable 关联表：两列外键组成主键，删除任一端时默认级联
func (e *engine) createJoinTable(ctx context.Context, decl *relation.ManyToManyDeclaration) error {
	d := e.registry.dialect
	action := dbsql.ParseAction(decl.OnDelete)
	if action == "" {
		action = dbsql.Cascade
	}
	_, err := e.sql(ctx).CreateTable(decl.JoinTable).IfNotExists().
		Column(decl.JoinColumn, d.IdentifierType(), "NOT NULL").
		Column(decl.AssociationJoinColumn, d.IdentifierType(), "NOT NULL").
		PrimaryKey(decl.JoinColumn, decl.AssociationJoinColumn).
		ForeignKey(decl.JoinColumn, e.bean.Table, e.idColumn(), action).
		ForeignKey(decl.AssociationJoinColumn, decl.AssociationTable, decl.AssociationBean.Identifier.Column, action).
		Exec(ctx)
	return errors.WrapDatabaseError(ctx, err, "create join table "+decl.JoinTable)
}

// remove 删除关联表、表与标识生成器
func (e *engine) remove(ctx context.Context) error {
	err := e.inTx(ctx, func(ctx context.Context) error {
		s := e.sql(ctx)
		for _, decl := range e.decls.ManyToMany {
			if decl.Reversed {
				continue
			}
			if _, err := s.DropTable(decl.JoinTable).IfExists().Exec(ctx); err != nil {
				return errors.WrapDatabaseError(ctx, err, "drop join table "+decl.JoinTable)
			}
		}
		if _, err := s.DropTable(e.bean.Table).Exec(ctx); err != nil {
			return errors.WrapDatabaseError(ctx, err, "drop table "+e.bean.Table)
		}
		if !e.bean.Sparse() {
			if err := e.registry.idgen.Remove(ctx, e.conn(ctx), e.registry.dialect, e.bean.Table); err != nil {
				return err
			}
		}
		e.fire(ctx, EventRemoved, 0, nilBean)
		return nil
	})
	if err == nil {
		e.logger.Debug(ctx, "table removed")
	}
	return err
}
