package manager

import (
	"context"
	"reflect"
	"strings"

	"gqm/errors"
	"gqm/query"
	"gqm/relation"
	"gqm/schema"
	"gqm/validation"
)

// validate 检查 bean 并把验证错误记录到 bean 上（需实现 validation.Validated）
//
// 返回 bean 是否通过全部检查；beforeValidate 否决时返回 false。数据库错误通过 error 返回。
func (e *engine) validate(ctx context.Context, ptr reflect.Value) (bool, error) {
	hooks := e.callbacks()
	target, _ := ptr.Interface().(validation.Validated)
	if target != nil {
		target.ResetValidation()
	}
	if !hooks.beforeValidate(ctx, ptr) {
		return false, nil
	}

	failed := false
	report := func(ve validation.ValidationError) {
		failed = true
		if target != nil {
			target.AddValidationError(ve)
		}
	}

	fieldErrs, err := e.registry.validator.Check(ptr.Interface())
	if err != nil {
		return false, err
	}
	for _, ve := range fieldErrs {
		report(ve)
	}

	id := e.identifierOf(ptr)
	assigned := !e.unassigned(id)

	for _, p := range e.bean.Properties {
		if !p.Unique || p.Identifier {
			continue
		}
		column, value, ok, err := e.uniqueValue(ptr, p)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		q := e.countQuery().WhereEq(column, value)
		if assigned {
			q.WhereOp(e.idColumn(), "<>", id)
		}
		n, err := e.count(ctx, q)
		if err != nil {
			return false, err
		}
		if n > 0 {
			report(validation.Uniqueness(p.Name))
		}
	}

	if err := e.validateManyToOne(ctx, ptr, report); err != nil {
		return false, err
	}
	if err := e.validateCollections(ctx, ptr, report); err != nil {
		return false, err
	}

	for _, group := range e.bean.UniqueGroups {
		q := e.countQuery()
		complete := true
		for _, name := range group {
			p, found := e.bean.Property(name)
			if !found {
				complete = false
				break
			}
			column, value, ok, err := e.uniqueValue(ptr, p)
			if err != nil {
				return false, err
			}
			if !ok {
				complete = false
				break
			}
			q.WhereEq(column, value)
		}
		if !complete {
			continue
		}
		if assigned {
			q.WhereOp(e.idColumn(), "<>", id)
		}
		n, err := e.count(ctx, q)
		if err != nil {
			return false, err
		}
		if n > 0 {
			report(validation.Uniqueness(strings.Join(group, ",")))
		}
	}

	hooks.afterValidate(ctx, ptr)
	return !failed, nil
}

// uniqueValue 属性在本表中的列与值；对象 many-to-one 取外键。值为 NULL 或关联尚未保存时 ok 为 false
func (e *engine) uniqueValue(ptr reflect.Value, p *schema.Property) (column string, value any, ok bool, err error) {
	if p.Relation != schema.RelationManyToOne || p.IsBasic() {
		value = schema.Value(p.Field(ptr.Elem()))
		return p.Column, value, value != nil, nil
	}
	decl, found := e.decls.ManyToOneFor(p.Name)
	if !found {
		return "", nil, false, nil
	}
	value, ok, err = e.foreignKeyOf(ptr, decl)
	return decl.ForeignKeyColumn, value, ok, err
}

// foreignKeyOf 对象 many-to-one 当前对应的外键值
func (e *engine) foreignKeyOf(ptr reflect.Value, decl *relation.ManyToOneDeclaration) (any, bool, error) {
	target, pending, fk := manyToOneTarget(decl, decl.Property.Field(ptr.Elem()))
	if pending {
		return fk, true, nil
	}
	if !target.IsValid() {
		return nil, false, nil
	}
	assoc, err := e.related(decl.AssociationType, decl.AssociationTable)
	if err != nil {
		return nil, false, err
	}
	if assoc.unassigned(assoc.identifierOf(target)) {
		return nil, false, nil
	}
	return assoc.referenceValue(target, decl.AssociationColumn), true, nil
}

// validateManyToOne 引用的行必须存在；尚未保存的关联会在保存时插入，不检查
func (e *engine) validateManyToOne(ctx context.Context, ptr reflect.Value, report func(validation.ValidationError)) error {
	for _, decl := range e.decls.ManyToOne {
		var value any
		if decl.Basic {
			value = schema.Value(decl.Property.Field(ptr.Elem()))
			if value == nil || reflect.ValueOf(value).IsZero() {
				continue
			}
		} else {
			v, ok, err := e.foreignKeyOf(ptr, decl)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			value = v
		}
		n, err := e.count(ctx, query.NewCountQuery(decl.AssociationTable).WhereEq(decl.AssociationColumn, value))
		if err != nil {
			return err
		}
		if n == 0 {
			report(validation.Invalid(decl.Property.Name, "referenced "+decl.AssociationTable+" does not exist"))
		}
	}
	return nil
}

// validateCollections 集合中已保存的元素必须全部存在
func (e *engine) validateCollections(ctx context.Context, ptr reflect.Value, report func(validation.ValidationError)) error {
	elem := ptr.Elem()
	check := func(p *schema.Property, assoc *engine) error {
		items, defined, err := relation.CheckCollectionValue(e.bean, p, p.Field(elem))
		if err != nil {
			if !errors.IsRelationship(err) {
				return err
			}
			report(validation.WrongType(p.Name, err.Error()))
			return nil
		}
		if !defined {
			return nil
		}
		seen := make(map[int64]struct{}, len(items))
		ids := make([]any, 0, len(items))
		for _, item := range items {
			iv := reflect.ValueOf(item)
			id := assoc.identifierOf(iv)
			if assoc.unassigned(id) {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			return nil
		}
		n, err := assoc.count(ctx, assoc.countQuery().WhereIn(assoc.idColumn(), ids...))
		if err != nil {
			return err
		}
		if n != int64(len(ids)) {
			report(validation.Invalid(p.Name, "collection references missing "+assoc.bean.Table+" rows"))
		}
		return nil
	}

	for _, decl := range e.decls.ManyToMany {
		assoc, err := e.related(decl.AssociationType, decl.AssociationTable)
		if err != nil {
			return err
		}
		if err := check(decl.Property, assoc); err != nil {
			return err
		}
	}
	for _, decl := range e.decls.ManyToOneAssociation {
		main, err := e.related(decl.MainType, decl.MainBean.Table)
		if err != nil {
			return err
		}
		if err := check(decl.Property, main); err != nil {
			return err
		}
	}
	return nil
}
