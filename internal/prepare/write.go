// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package prepare

import (
	"strconv"
	"strings"

	"github.com/canonical/ecsql/internal/dbmap"
	"github.com/canonical/ecsql/internal/expr"
	"github.com/canonical/ecsql/internal/schema"
)

// assignment is a native column and the SQL of the value written to it.
type assignment struct {
	col   *dbmap.Column
	value string
}

// assign renders the values written to the columns of pe.
func assign(r *renderer, pe *expr.PropertyExp, value expr.Exp) ([]assignment, error) {
	cols, err := r.writableColumns(pe)
	if err != nil {
		return nil, err
	}
	values, err := r.values(value, len(cols))
	if err != nil {
		return nil, err
	}
	as := make([]assignment, len(cols))
	for i, c := range cols {
		as[i] = assignment{col: c, value: values[i]}
	}
	return as, nil
}

func written(as []assignment, c *dbmap.Column) bool {
	for _, a := range as {
		if a.col == c {
			return true
		}
	}
	return false
}

func classIDValue(id schema.ClassID) string {
	return strconv.FormatUint(uint64(id), 10)
}

// prepareInsert returns the native SQL of s. Columns the statement does not
// write but the mapping requires, such as the class id of a shared table,
// are filled in. New instances take their id from the instance id sequence.
func prepareInsert(ctx *Context, s *expr.InsertStatement) (string, error) {
	cm, err := ctx.classMap(s.Into)
	if err != nil {
		return "", err
	}
	if cm.Type == dbmap.MapRelationshipEndTable {
		return prepareEndTableInsert(ctx, cm, s)
	}
	part := cm.Storage().NonPolymorphic
	if part == nil {
		return "", invalidf("cannot INSERT into %s: class has no table", cm.Class.FullName())
	}
	r := newRenderer(ctx, part, "")

	var as []assignment
	for i, pe := range s.Props {
		a, err := assign(r, pe, s.Values[i])
		if err != nil {
			return "", err
		}
		as = append(as, a...)
	}
	t := part.Table
	if col := t.ClassIDColumn(); col != nil && !written(as, col) {
		as = append(as, assignment{col: col, value: classIDValue(cm.Class.ID)})
	}
	switch cm.Type {
	case dbmap.MapSecondaryTable:
		if col, ok := t.SystemColumn(dbmap.ColumnECPropertyPathId); ok && !written(as, col) {
			as = append(as, assignment{col: col, value: "0"})
		}
	case dbmap.MapRelationshipLinkTable:
		for _, end := range []struct {
			kind       dbmap.ColumnKind
			constraint schema.Constraint
		}{
			{dbmap.ColumnSourceECClassId, cm.Class.Source},
			{dbmap.ColumnTargetECClassId, cm.Class.Target},
		} {
			col, ok := t.SystemColumn(end.kind)
			if ok && !written(as, col) && len(end.constraint.Classes) > 0 {
				as = append(as, assignment{col: col, value: classIDValue(end.constraint.Classes[0].ID)})
			}
		}
	}
	if col := t.IDColumn(); col != nil && !written(as, col) {
		as = append(as, assignment{col: col, value: dbmap.NextInstanceIDSQL})
	}

	names := make([]string, len(as))
	values := make([]string, len(as))
	for i, a := range as {
		names[i] = quote(a.col.Name)
		values[i] = a.value
	}
	return "INSERT INTO " + quote(t.Name) + " (" + strings.Join(names, ", ") + ") VALUES (" + strings.Join(values, ", ") + ")", nil
}

// prepareEndTableInsert sets the foreign key of an existing row: inserting
// a relationship stored as a foreign key updates the row of the end holding
// the navigation property.
func prepareEndTableInsert(ctx *Context, cm *dbmap.ClassMap, s *expr.InsertStatement) (string, error) {
	if cm.Storage().HasMultiplePartitions() {
		return "", invalidf("cannot INSERT into %s: foreign key is stored in %d tables", cm.Class.FullName(), len(cm.Storage().Polymorphic))
	}
	nav := cm.OtherEnd()
	r := newRenderer(ctx, cm.Storage().NonPolymorphic, "")
	var otherEnd, thisEnd string
	for i, pe := range s.Props {
		pm, err := r.propertyMap(pe)
		if err != nil {
			return "", err
		}
		cols := pm.Columns()
		if len(cols) != 1 || pm.Property().SystemKind() == schema.SystemECClassId {
			continue
		}
		switch cols[0] {
		case nav.ID:
			if otherEnd, err = r.exp(s.Values[i]); err != nil {
				return "", err
			}
		case cm.Table.IDColumn():
			if thisEnd, err = r.exp(s.Values[i]); err != nil {
				return "", err
			}
		}
	}
	if otherEnd == "" || thisEnd == "" {
		return "", invalidf("INSERT into %s needs %s and %s", cm.Class.FullName(), schema.SourceECInstanceId, schema.TargetECInstanceId)
	}
	return "UPDATE " + quote(cm.Table.Name) +
		" SET " + quote(nav.ID.Name) + "=" + otherEnd + ", " + quote(nav.RelClassID.Name) + "=" + classIDValue(cm.Class.ID) +
		" WHERE " + quote(cm.Table.IDColumn().Name) + "=" + thisEnd, nil
}

// writeWhere returns the WHERE clause of an UPDATE or DELETE of cm.
func writeWhere(ctx *Context, r *renderer, cm *dbmap.ClassMap, part *dbmap.HorizontalPartition, kind expr.StatementKind, ref *expr.ClassRef, where expr.Exp) (string, error) {
	w := &Where{}
	if where != nil {
		sql, err := r.exp(where)
		if err != nil {
			return "", err
		}
		w.And(sql)
	}
	if err := ctx.Preparers.For(cm.Type).AppendWhereClause(w, cm, part, kind, ref.Polymorphic, ""); err != nil {
		return "", err
	}
	return w.Clause(), nil
}

func prepareUpdate(ctx *Context, s *expr.UpdateStatement) (string, error) {
	cm, err := ctx.classMap(s.Target)
	if err != nil {
		return "", err
	}
	// The polymorphism check comes first so that it reports statements
	// spanning several tables.
	if err := ctx.Preparers.For(cm.Type).AppendWhereClause(&Where{}, cm, nil, expr.KindUpdate, s.Target.Polymorphic, ""); err != nil {
		return "", err
	}
	part, err := singlePartition(cm, expr.KindUpdate, s.Target.Polymorphic)
	if err != nil {
		return "", err
	}
	r := newRenderer(ctx, part, "")
	var set []string
	for _, a := range s.Set {
		if isSystemTarget(a.Prop) {
			return "", invalidf("cannot UPDATE system property %s", a.Prop)
		}
		as, err := assign(r, a.Prop, a.Value)
		if err != nil {
			return "", err
		}
		for _, a := range as {
			set = append(set, quote(a.col.Name)+"="+a.value)
		}
	}
	where, err := writeWhere(ctx, r, cm, part, expr.KindUpdate, s.Target, s.Where)
	if err != nil {
		return "", err
	}
	return "UPDATE " + quote(part.Table.Name) + " SET " + strings.Join(set, ", ") + where, nil
}

// prepareDelete returns the native SQL of s. Deleting relationships stored
// as foreign keys clears the foreign key.
func prepareDelete(ctx *Context, s *expr.DeleteStatement) (string, error) {
	cm, err := ctx.classMap(s.From)
	if err != nil {
		return "", err
	}
	if err := ctx.Preparers.For(cm.Type).AppendWhereClause(&Where{}, cm, nil, expr.KindDelete, s.From.Polymorphic, ""); err != nil {
		return "", err
	}
	part, err := singlePartition(cm, expr.KindDelete, s.From.Polymorphic)
	if err != nil {
		return "", err
	}
	r := newRenderer(ctx, part, "")
	where, err := writeWhere(ctx, r, cm, part, expr.KindDelete, s.From, s.Where)
	if err != nil {
		return "", err
	}
	if cm.Type == dbmap.MapRelationshipEndTable {
		nav := part.ClassMap.OtherEnd()
		return "UPDATE " + quote(part.Table.Name) + " SET " + quote(nav.ID.Name) + "=NULL, " + quote(nav.RelClassID.Name) + "=NULL" + where, nil
	}
	return "DELETE FROM " + quote(part.Table.Name) + where, nil
}
