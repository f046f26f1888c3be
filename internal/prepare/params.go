// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package prepare

import (
	"strconv"
	"strings"

	"github.com/canonical/ecsql/internal/expr"
	"github.com/canonical/ecsql/internal/field"
	"github.com/canonical/ecsql/internal/issue"
	"github.com/canonical/ecsql/internal/schema"
)

// params allocates the native parameters of a statement's ECSql
// parameters and holds their values. Native parameters are numbered from 1
// in the order of the ECSql parameters; each ECSql parameter takes as many
// as its value has columns.
type params struct {
	issues  *issue.Reporter
	binders []binder
	// names maps lower case parameter names to 1-based indexes.
	names  map[string]int
	values []any
	// maxRef is the highest native parameter the SQL refers to.
	maxRef int
}

func newParams(issues *issue.Reporter, stmt expr.Statement) *params {
	ps := &params{issues: issues, names: map[string]int{}}
	n := expr.NumParameters(stmt)
	typed := make([]*expr.ParameterExp, n)
	expr.Walk(stmt, func(e expr.Exp) {
		p, ok := e.(*expr.ParameterExp)
		if !ok || p.Index < 1 {
			return
		}
		if cur := typed[p.Index-1]; cur == nil || cur.Type.Kind == expr.TypeNull && p.Type.Kind != expr.TypeNull {
			typed[p.Index-1] = p
		}
		if p.Name != "" {
			ps.names[strings.ToLower(p.Name)] = p.Index
		}
	})
	for i, p := range typed {
		name := "parameter " + strconv.Itoa(i+1)
		if p == nil {
			ps.binders = append(ps.binders, ps.newBinder(name, field.NewExpressionColumnInfo(field.PrimitiveType(schema.PrimitiveUnknown), field.RootClass{})))
			continue
		}
		if p.Name != "" {
			name = "parameter :" + p.Name
		}
		ps.binders = append(ps.binders, ps.newBinder(name, parameterInfo(issues, p)))
	}
	return ps
}

// parameterInfo describes the values a parameter takes: those of the
// property it is compared with or assigned to, if any.
func parameterInfo(issues *issue.Reporter, p *expr.ParameterExp) field.ColumnInfo {
	if p.Target != nil {
		return field.NewPropertyColumnInfo(issues, p.Target, field.NewPropertyPath(p.Target), field.RootClass{}, field.Flags{})
	}
	ti := p.Type
	var dt field.DataType
	switch ti.Kind {
	case expr.TypePrimitive:
		dt = field.PrimitiveType(ti.Primitive)
	case expr.TypeStruct:
		dt = field.DataType{Kind: field.DataStruct, Struct: ti.Struct}
	case expr.TypePrimitiveArray:
		dt = field.DataType{Kind: field.DataPrimitiveArray, Primitive: ti.Primitive}
	case expr.TypeStructArray:
		dt = field.DataType{Kind: field.DataStructArray, Struct: ti.Struct}
	case expr.TypeNavigation:
		return field.NewPropertyColumnInfo(issues, ti.Navigation, field.NewPropertyPath(ti.Navigation), field.RootClass{}, field.Flags{})
	default:
		dt = field.PrimitiveType(schema.PrimitiveUnknown)
	}
	return field.NewExpressionColumnInfo(dt, field.RootClass{})
}

// alloc allocates the next native parameter.
func (ps *params) alloc() int {
	ps.values = append(ps.values, nil)
	return len(ps.values)
}

func (ps *params) setter(slot int) func(any) {
	return func(v any) {
		ps.values[slot-1] = v
	}
}

func (ps *params) scalar(info field.ColumnInfo, name string) *scalarBinder {
	slot := ps.alloc()
	return &scalarBinder{binderBase: binderBase{issues: ps.issues, info: info, name: name}, set: ps.setter(slot), slot: slot}
}

// newBinder builds the binder of a value described by info, allocating its
// native parameters depth first.
func (ps *params) newBinder(name string, info field.ColumnInfo) binder {
	base := binderBase{issues: ps.issues, info: info, name: name}
	dt := info.DataType()
	switch dt.Kind {
	case field.DataPrimitive:
		if !dt.Primitive.IsPoint() {
			return ps.scalar(info, name)
		}
		slots := make([]int, dt.Primitive.ColumnCount())
		for i := range slots {
			slots[i] = ps.alloc()
		}
		return &pointBinder{binderBase: base, native: slots, set: func(coords []float64) {
			for i, slot := range slots {
				if coords == nil {
					ps.values[slot-1] = nil
				} else {
					ps.values[slot-1] = coords[i]
				}
			}
		}}

	case field.DataStruct:
		sb := &structBinder{binderBase: base}
		for _, m := range dt.Struct.Properties(true) {
			sb.names = append(sb.names, m.Name)
			sb.members = append(sb.members, ps.newBinder(name+"."+m.Name, info.Member(ps.issues, m)))
		}
		return sb

	case field.DataPrimitiveArray, field.DataStructArray:
		slot := ps.alloc()
		return &arrayBinder{binderBase: base, slot: slot, set: func(elems []any) {
			if elems == nil {
				ps.values[slot-1] = nil
				return
			}
			text, err := field.JSON.MarshalToString(elems)
			if err != nil {
				ps.issues.ReportError(err, "cannot encode %s", name)
				ps.values[slot-1] = nil
				return
			}
			ps.values[slot-1] = text
		}}

	case field.DataNavigation:
		nb := &navigationBinder{binderBase: base}
		nb.id = ps.scalar(info.Member(ps.issues, schema.SystemProperty(schema.SystemNavigationId)), name+"."+schema.NavigationId)
		nb.rel = ps.scalar(info.Member(ps.issues, schema.SystemProperty(schema.SystemNavigationRelECClassId)), name+"."+schema.NavigationRelECClassId)
		if p := info.Property(); p != nil && p.Relationship != nil {
			nb.defaultRel = p.Relationship.ID
		}
		return nb
	}
	return ps.scalar(info, name)
}

// binder returns the binder of the 1-based ECSql parameter index.
func (ps *params) binder(index int) Binder {
	if index < 1 || index > len(ps.binders) {
		ps.issues.Report("parameter index %d out of range [1, %d]", index, len(ps.binders))
		return newNoopBinder(ps.issues, "parameter "+strconv.Itoa(index))
	}
	return ps.binders[index-1]
}

// index returns the index of a named parameter, or 0.
func (ps *params) index(name string) int {
	return ps.names[strings.ToLower(strings.TrimPrefix(name, ":"))]
}

func (ps *params) ref(slot int) string {
	if slot > ps.maxRef {
		ps.maxRef = slot
	}
	return "?" + strconv.Itoa(slot)
}

// scalarSQL returns the native parameter standing for p inside an
// expression. Navigation parameters stand for their id.
func (ps *params) scalarSQL(p *expr.ParameterExp) (string, error) {
	b := ps.binders[p.Index-1]
	slots := b.slots()
	if _, ok := b.(*navigationBinder); ok {
		slots = slots[:1]
	}
	if len(slots) != 1 {
		return "", invalidf("parameter %s of type %s cannot be used in an expression", p, p.Type)
	}
	return ps.ref(slots[0]), nil
}

// valuesSQL returns the native parameters standing for the value of p
// written to n columns.
func (ps *params) valuesSQL(p *expr.ParameterExp, n int) ([]string, error) {
	slots := ps.binders[p.Index-1].slots()
	if len(slots) != n {
		return nil, invalidf("parameter %s has %d values where %d are needed", p, len(slots), n)
	}
	refs := make([]string, n)
	for i, slot := range slots {
		refs[i] = ps.ref(slot)
	}
	return refs, nil
}

// args returns the values of the native parameters 1 to n. fixed holds
// values of native parameters not allocated to ECSql parameters.
func (ps *params) args(fixed map[int]any, n int) []any {
	args := make([]any, n)
	copy(args, ps.values)
	for num, v := range fixed {
		if num <= n {
			args[num-1] = v
		}
	}
	return args
}

// clear sets all parameters to NULL.
func (ps *params) clear() {
	for i := range ps.values {
		ps.values[i] = nil
	}
	for _, b := range ps.binders {
		b.reset()
	}
}
