// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package prepare

import (
	"github.com/canonical/ecsql/internal/expr"
	"github.com/canonical/ecsql/internal/field"
	"github.com/canonical/ecsql/internal/issue"
	"github.com/canonical/ecsql/internal/schema"
)

// CreateField builds the field of select clause item dp, reading native
// columns from start on, and appends it to the fields of the statement. It
// returns the index of the first column after the field.
func CreateField(ctx *Context, dp *expr.DerivedProperty, start int) (int, error) {
	info := columnInfo(ctx, dp)
	f, next, err := BuildField(ctx.Issues, info, ctx.Row, start)
	if err != nil {
		return 0, err
	}
	ctx.fields = append(ctx.fields, f)
	return next, nil
}

// columnInfo returns the ColumnInfo of a select clause item. Aliased items
// and items other than plain property references get a generated property,
// which takes precedence over the property they refer to.
func columnInfo(ctx *Context, dp *expr.DerivedProperty) field.ColumnInfo {
	var root field.RootClass
	var prop *schema.Property
	var props []*schema.Property
	if pe, ok := dp.Exp.(*expr.PropertyExp); ok {
		props = pe.Props
		prop = pe.Property()
		root = rootClass(pe.Class)
	}
	flags := field.Flags{}

	if ex, ok := dp.Exp.(*expr.ExtractExp); ok {
		ctx.anchor(ex)
		root = rootClass(ex.Prop.Class)
		gen := schema.NewGeneratedPrimitive(dp.ColumnName(), schema.PrimitiveString)
		return field.NewPropertyColumnInfo(ctx.Issues, gen, field.NewPropertyPath(gen), root, field.Flags{Generated: true, Dynamic: true})
	}

	switch {
	case prop != nil && dp.Alias == "":
		return field.NewPropertyColumnInfo(ctx.Issues, prop, field.NewPropertyPath(props...), root, flags)
	case prop != nil:
		gen := schema.NewGeneratedProperty(dp.Alias, prop)
		flags.Generated = true
		// Aliased system properties stay system properties.
		flags.System = schema.IsSystemProperty(prop)
		return field.NewPropertyColumnInfo(ctx.Issues, gen, field.NewPropertyPath(gen), root, flags)
	}

	ti := dp.Exp.TypeInfo()
	if ti.Kind == expr.TypeNavigation {
		gen := schema.NewGeneratedProperty(dp.ColumnName(), ti.Navigation)
		return field.NewPropertyColumnInfo(ctx.Issues, gen, field.NewPropertyPath(gen), root, field.Flags{Generated: true})
	}
	gen := schema.NewGeneratedPrimitive(dp.ColumnName(), ti.Primitive)
	if ti.Kind != expr.TypePrimitive {
		gen = schema.NewGeneratedPrimitive(dp.ColumnName(), schema.PrimitiveUnknown)
	}
	return field.NewPropertyColumnInfo(ctx.Issues, gen, field.NewPropertyPath(gen), root, field.Flags{Generated: true})
}

func rootClass(ref *expr.ClassRef) field.RootClass {
	if ref == nil {
		return field.RootClass{}
	}
	return field.RootClass{Class: ref.Resolved, TableSpace: "main", Alias: ref.Alias}
}

// BuildField builds the field described by info, reading native columns of
// row from start on. It returns the field and the index of the first column
// after it: start+1 for most primitives and arrays, start+2 for Point2d and
// navigation properties, start+3 for Point3d, and the sum over the members
// for structs.
func BuildField(issues *issue.Reporter, info field.ColumnInfo, row field.Row, start int) (field.Field, int, error) {
	dt := info.DataType()
	switch dt.Kind {
	case field.DataPrimitive:
		if dt.Primitive.IsPoint() {
			f := field.NewPoint(issues, info, row, start)
			return f, start + dt.Primitive.ColumnCount(), nil
		}
		return field.NewPrimitive(issues, info, row, start), start + 1, nil

	case field.DataStruct:
		if dt.Struct == nil {
			break
		}
		next := start
		var members []field.Field
		for _, m := range dt.Struct.Properties(true) {
			f, n, err := BuildField(issues, info.Member(issues, m), row, next)
			if err != nil {
				return nil, 0, err
			}
			members = append(members, f)
			next = n
		}
		return field.NewStruct(issues, info, members), next, nil

	case field.DataPrimitiveArray, field.DataStructArray:
		return field.NewArray(issues, info, row, start), start + 1, nil

	case field.DataNavigation:
		id, next, err := BuildField(issues, info.Member(issues, schema.SystemProperty(schema.SystemNavigationId)), row, start)
		if err != nil {
			return nil, 0, err
		}
		rel, next, err := BuildField(issues, info.Member(issues, schema.SystemProperty(schema.SystemNavigationRelECClassId)), row, next)
		if err != nil {
			return nil, 0, err
		}
		return field.NewNavigation(issues, info, id, rel), next, nil
	}
	return nil, 0, internalError(issues, "cannot create field for %s of type %s", info.Name(), dt)
}
