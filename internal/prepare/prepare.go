// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package prepare

import (
	"github.com/pkg/errors"

	"github.com/canonical/ecsql/internal/dbmap"
	"github.com/canonical/ecsql/internal/expr"
	"github.com/canonical/ecsql/internal/field"
	"github.com/canonical/ecsql/internal/schema"
)

// Prepared is a resolved ECSql statement translated to native SQL, with the
// fields reading its result columns and the binders of its parameters.
type Prepared struct {
	Kind  expr.StatementKind
	Class *schema.Class
	// NativeSQL numbers its parameters: ?1, ?2, ...
	NativeSQL string
	// Fields holds one field per select clause item.
	Fields []field.Field
	// NumNativeParams is the number of arguments Args returns.
	NumNativeParams int
	// InsertsRow is set for INSERTs that add a row, so that the id of the
	// row is the id of the new instance.
	InsertsRow bool

	params *params
	fixed  map[int]any
}

// Prepare translates stmt, which must have been resolved. The write policy
// is checked before any native SQL is generated.
func Prepare(ctx *Context, stmt expr.Statement) (p *Prepared, err error) {
	defer func() {
		if err != nil {
			err = errors.WithMessage(err, "cannot prepare statement")
		}
	}()

	ctx.fields = nil
	ctx.anchors = map[*expr.ExtractExp]*anchor{}
	cm, err := ctx.classMap(stmt.Class())
	if err != nil {
		return nil, err
	}
	if err := CheckPolicy(ctx.Policy, stmt.Kind(), cm); err != nil {
		return nil, err
	}
	ctx.params = newParams(ctx.Issues, stmt)

	var sql string
	switch s := stmt.(type) {
	case *expr.SelectStatement:
		sql, err = prepareSelect(ctx, s)
	case *expr.InsertStatement:
		sql, err = prepareInsert(ctx, s)
	case *expr.UpdateStatement:
		sql, err = prepareUpdate(ctx, s)
	case *expr.DeleteStatement:
		sql, err = prepareDelete(ctx, s)
	default:
		err = ctx.internalf("unknown statement type %T", stmt)
	}
	if err != nil {
		return nil, err
	}

	sql, fixed, last := ctx.backfillAnchors(sql, len(ctx.params.values))
	n := ctx.params.maxRef
	if len(fixed) > 0 {
		n = last
	}
	ctx.Issues.Logger().Debug().Str("ecsql", stmt.String()).Str("sql", sql).Msg("prepared statement")
	return &Prepared{
		Kind:            stmt.Kind(),
		Class:           cm.Class,
		NativeSQL:       sql,
		Fields:          ctx.fields,
		NumNativeParams: n,
		InsertsRow:      stmt.Kind() == expr.KindInsert && cm.Type != dbmap.MapRelationshipEndTable,
		params:          ctx.params,
		fixed:           fixed,
	}, nil
}

// NumParams returns the number of ECSql parameters.
func (p *Prepared) NumParams() int {
	return len(p.params.binders)
}

// Binder returns the binder of the 1-based parameter index. Out of range
// indexes get a binder whose methods all fail.
func (p *Prepared) Binder(index int) Binder {
	return p.params.binder(index)
}

// BinderIndex returns the index of the parameter called name, with or
// without the leading colon, or 0 if there is none.
func (p *Prepared) BinderIndex(name string) int {
	return p.params.index(name)
}

// Args returns the native parameter values to execute NativeSQL with.
func (p *Prepared) Args() []any {
	return p.params.args(p.fixed, p.NumNativeParams)
}

// ClearBindings sets all parameters to NULL.
func (p *Prepared) ClearBindings() {
	p.params.clear()
}
