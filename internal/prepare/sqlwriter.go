// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package prepare

import (
	"strings"

	"github.com/samber/lo"

	"github.com/canonical/ecsql/internal/dbmap"
	"github.com/canonical/ecsql/internal/expr"
	"github.com/canonical/ecsql/internal/schema"
)

// renderer writes the native SQL of ECSql expressions for one partition.
type renderer struct {
	ctx *Context
	// cm maps the properties of the statement's class onto the partition's
	// table.
	cm    *dbmap.ClassMap
	alias string
}

func newRenderer(ctx *Context, part *dbmap.HorizontalPartition, alias string) *renderer {
	return &renderer{ctx: ctx, cm: part.ClassMap, alias: alias}
}

// propertyMap returns the map of the property pe refers to.
func (r *renderer) propertyMap(pe *expr.PropertyExp) (dbmap.PropertyMap, error) {
	pm, ok := r.cm.PropertyMap(pe.AccessString())
	if !ok {
		return nil, r.ctx.internalf("no property map for %s in %s", pe.AccessString(), r.cm.Class.FullName())
	}
	return pm, nil
}

// columns returns the SQL expressions reading the columns of pe.
func (r *renderer) columns(pe *expr.PropertyExp) ([]string, error) {
	pm, err := r.propertyMap(pe)
	if err != nil {
		return nil, err
	}
	return dbmap.ColumnSQL(pm, r.alias), nil
}

// exp renders a scalar expression. Navigation properties stand for the id
// of the instance they reference.
func (r *renderer) exp(e expr.Exp) (string, error) {
	switch e := e.(type) {
	case *expr.PropertyExp:
		cols, err := r.columns(e)
		if err != nil {
			return "", err
		}
		if len(cols) == 1 || e.TypeInfo().Kind == expr.TypeNavigation && len(cols) > 0 {
			return cols[0], nil
		}
		return "", invalidf("%s of type %s cannot be used in an expression", e, e.TypeInfo())

	case *expr.LiteralExp:
		if e.Kind == expr.LiteralBoolean {
			if e.Value().(bool) {
				return "1", nil
			}
			return "0", nil
		}
		return e.Raw, nil

	case *expr.ParameterExp:
		return r.ctx.params.scalarSQL(e)

	case *expr.BinaryExp:
		l, err := r.exp(e.Left)
		if err != nil {
			return "", err
		}
		rhs, err := r.exp(e.Right)
		if err != nil {
			return "", err
		}
		return l + " " + e.Op + " " + rhs, nil

	case *expr.UnaryExp:
		operand, err := r.exp(e.Operand)
		if err != nil {
			return "", err
		}
		if e.Op == "NOT" {
			return "NOT " + operand, nil
		}
		return e.Op + operand, nil

	case *expr.IsNullExp:
		return r.isNull(e)

	case *expr.InExp:
		operand, err := r.exp(e.Operand)
		if err != nil {
			return "", err
		}
		items := make([]string, len(e.List))
		for i, item := range e.List {
			if items[i], err = r.exp(item); err != nil {
				return "", err
			}
		}
		op := " IN ("
		if e.Not {
			op = " NOT IN ("
		}
		return operand + op + strings.Join(items, ", ") + ")", nil

	case *expr.ParenExp:
		inner, err := r.exp(e.Inner)
		if err != nil {
			return "", err
		}
		return "(" + inner + ")", nil

	case *expr.FuncExp:
		if e.Star {
			return e.Name + "(*)", nil
		}
		args := make([]string, len(e.Args))
		for i, arg := range e.Args {
			var err error
			if args[i], err = r.exp(arg); err != nil {
				return "", err
			}
		}
		return e.Name + "(" + strings.Join(args, ", ") + ")", nil

	case *expr.ExtractExp:
		col, err := r.exp(e.Prop)
		if err != nil {
			return "", err
		}
		return "json_extract(" + col + ", " + r.ctx.anchor(e).name + ")", nil
	}
	return "", r.ctx.internalf("cannot render expression %s of type %T", e, e)
}

// isNull tests all columns of multi column values. Navigation values are
// NULL when their id is.
func (r *renderer) isNull(e *expr.IsNullExp) (string, error) {
	pe, ok := e.Operand.(*expr.PropertyExp)
	if !ok || e.Operand.TypeInfo().Kind == expr.TypeNavigation {
		operand, err := r.exp(e.Operand)
		if err != nil {
			return "", err
		}
		if e.Not {
			return operand + " IS NOT NULL", nil
		}
		return operand + " IS NULL", nil
	}
	cols, err := r.columns(pe)
	if err != nil {
		return "", err
	}
	if len(cols) == 1 {
		if e.Not {
			return cols[0] + " IS NOT NULL", nil
		}
		return cols[0] + " IS NULL", nil
	}
	if e.Not {
		return "(" + strings.Join(lo.Map(cols, func(c string, _ int) string { return c + " IS NOT NULL" }), " OR ") + ")", nil
	}
	return "(" + strings.Join(lo.Map(cols, func(c string, _ int) string { return c + " IS NULL" }), " AND ") + ")", nil
}

// selectItem renders the columns of a select clause item, as many as its
// field reads.
func (r *renderer) selectItem(dp *expr.DerivedProperty) ([]string, error) {
	if pe, ok := dp.Exp.(*expr.PropertyExp); ok {
		return r.columns(pe)
	}
	ti := dp.Exp.TypeInfo()
	if ti.IsScalar() {
		sql, err := r.exp(dp.Exp)
		if err != nil {
			return nil, err
		}
		return []string{sql}, nil
	}
	if p, ok := dp.Exp.(*expr.ParameterExp); ok && ti.Kind == expr.TypeNavigation {
		return r.ctx.params.valuesSQL(p, 2)
	}
	return nil, invalidf("select clause item %s of type %s must be a property", dp, ti)
}

// values renders the n column values written from e.
func (r *renderer) values(e expr.Exp, n int) ([]string, error) {
	switch e := e.(type) {
	case *expr.ParameterExp:
		return r.ctx.params.valuesSQL(e, n)
	case *expr.LiteralExp:
		if e.Kind == expr.LiteralNull {
			return lo.Times(n, func(int) string { return "NULL" }), nil
		}
	case *expr.PropertyExp:
		cols, err := r.columns(e)
		if err != nil {
			return nil, err
		}
		if len(cols) == n {
			return cols, nil
		}
	}
	if n == 1 {
		sql, err := r.exp(e)
		if err != nil {
			return nil, err
		}
		return []string{sql}, nil
	}
	return nil, invalidf("%s cannot be written to %d columns", e, n)
}

// writableColumns returns the columns written when assigning pe.
func (r *renderer) writableColumns(pe *expr.PropertyExp) ([]*dbmap.Column, error) {
	pm, err := r.propertyMap(pe)
	if err != nil {
		return nil, err
	}
	cols := pm.Columns()
	if len(cols) == 0 {
		return nil, invalidf("cannot write %s: it is not stored in %s", pe, r.cm.Table.Name)
	}
	return cols, nil
}

func quote(name string) string {
	return "[" + name + "]"
}

func fromClause(t *dbmap.Table, alias string) string {
	if alias == "" {
		return " FROM " + quote(t.Name)
	}
	return " FROM " + quote(t.Name) + " AS " + quote(alias)
}

// isSystemTarget reports whether pe writes a system property.
func isSystemTarget(pe *expr.PropertyExp) bool {
	return len(pe.Props) > 0 && schema.IsSystemProperty(pe.Props[0])
}
