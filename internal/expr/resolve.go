// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"strings"

	"github.com/canonical/ecsql/internal/schema"
)

type resolver struct {
	reg   *schema.Registry
	scope *ClassRef
	// named maps lower case parameter names to their index.
	named     map[string]int
	numParams int
}

// Resolve binds the class and property names in stmt to the classes of reg.
// It expands "*" select items, numbers the parameters and infers the type of
// each parameter from the property it is compared with or assigned to.
func Resolve(reg *schema.Registry, stmt Statement) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot resolve statement: %s", err)
		}
	}()

	r := &resolver{reg: reg, named: map[string]int{}}
	ref := stmt.Class()
	if err := r.resolveClass(ref); err != nil {
		return err
	}
	r.scope = ref

	switch s := stmt.(type) {
	case *SelectStatement:
		return r.resolveSelect(s)
	case *InsertStatement:
		return r.resolveInsert(s)
	case *UpdateStatement:
		for _, a := range s.Set {
			if err := r.resolveTarget(a.Prop); err != nil {
				return err
			}
			if err := r.resolveExp(a.Value); err != nil {
				return err
			}
			inferParameter(a.Value, a.Prop)
		}
		return r.resolveWhere(s.Where)
	case *DeleteStatement:
		return r.resolveWhere(s.Where)
	}
	return fmt.Errorf("internal error: unknown statement type %T", stmt)
}

// NumParameters returns the number of distinct parameters in a resolved
// statement.
func NumParameters(stmt Statement) int {
	n := 0
	Walk(stmt, func(e Exp) {
		if p, ok := e.(*ParameterExp); ok && p.Index > n {
			n = p.Index
		}
	})
	return n
}

func (r *resolver) resolveClass(ref *ClassRef) error {
	if ref.SchemaName != "" {
		c, ok := r.reg.FindClass(ref.SchemaName, ref.ClassName)
		if !ok {
			return fmt.Errorf("class %s.%s not found", ref.SchemaName, ref.ClassName)
		}
		ref.Resolved = c
		return nil
	}
	found := r.reg.ClassesNamed(ref.ClassName)
	switch len(found) {
	case 0:
		return fmt.Errorf("class %s not found", ref.ClassName)
	case 1:
		ref.Resolved = found[0]
		return nil
	}
	names := make([]string, len(found))
	for i, c := range found {
		names[i] = c.FullName()
	}
	return fmt.Errorf("class name %s is ambiguous: %s", ref.ClassName, strings.Join(names, ", "))
}

func (r *resolver) resolveSelect(s *SelectStatement) error {
	var items []*DerivedProperty
	for _, item := range s.Items {
		if _, ok := item.Exp.(starExp); ok {
			items = append(items, r.expandStar()...)
			continue
		}
		if err := r.resolveExp(item.Exp); err != nil {
			return err
		}
		items = append(items, item)
	}
	s.Items = items

	if err := r.resolveWhere(s.Where); err != nil {
		return err
	}

	for _, o := range s.OrderBy {
		if pe, ok := o.Exp.(*PropertyExp); ok && len(pe.Path) == 1 {
			if item := itemByAlias(s.Items, pe.Path[0]); item != nil {
				o.SelectItem = item
				continue
			}
		}
		if err := r.resolveExp(o.Exp); err != nil {
			return err
		}
	}

	long := PrimitiveTypeInfo(schema.PrimitiveLong)
	for _, e := range []Exp{s.Limit, s.Offset} {
		if e == nil {
			continue
		}
		if err := r.resolveExp(e); err != nil {
			return err
		}
		if p, ok := unparen(e).(*ParameterExp); ok {
			p.Type = long
		}
	}
	return nil
}

func itemByAlias(items []*DerivedProperty, name string) *DerivedProperty {
	for _, item := range items {
		if item.Alias != "" && strings.EqualFold(item.Alias, name) {
			return item
		}
	}
	return nil
}

// expandStar returns the items "*" stands for: the system properties of the
// class followed by all its properties.
func (r *resolver) expandStar() []*DerivedProperty {
	class := r.scope.Resolved
	names := []string{schema.ECInstanceId, schema.ECClassId}
	if class.IsRelationship() {
		names = append(names, schema.SourceECInstanceId, schema.SourceECClassId, schema.TargetECInstanceId, schema.TargetECClassId)
	}
	var props []*schema.Property
	for _, name := range names {
		p, _ := schema.ClassSystemProperty(class, name)
		props = append(props, p)
	}
	props = append(props, class.Properties(true)...)

	items := make([]*DerivedProperty, len(props))
	for i, p := range props {
		items[i] = &DerivedProperty{Exp: &PropertyExp{
			Path:  []string{p.Name},
			Props: []*schema.Property{p},
			Class: r.scope,
		}}
	}
	return items
}

func (r *resolver) resolveInsert(s *InsertStatement) error {
	for i, prop := range s.Props {
		if err := r.resolveTarget(prop); err != nil {
			return err
		}
		if err := r.resolveExp(s.Values[i]); err != nil {
			return err
		}
		inferParameter(s.Values[i], prop)
	}
	return nil
}

// resolveTarget resolves a property written by an INSERT or UPDATE.
func (r *resolver) resolveTarget(pe *PropertyExp) error {
	if err := r.resolveProperty(pe); err != nil {
		return err
	}
	if p := pe.Props[0]; p.SystemKind() == schema.SystemECClassId {
		return fmt.Errorf("cannot write %s", p.Name)
	}
	return nil
}

func (r *resolver) resolveWhere(where Exp) error {
	if where == nil {
		return nil
	}
	return r.resolveExp(where)
}

// resolveProperty binds the names of pe to properties, starting from the
// class in scope. A leading name matching the class alias, or the class name
// when there is no alias, is taken as a class qualifier.
func (r *resolver) resolveProperty(pe *PropertyExp) error {
	pe.Class = r.scope
	qualifier := r.scope.Alias
	if qualifier == "" {
		qualifier = r.scope.ClassName
	}
	if len(pe.Path) > 1 && strings.EqualFold(pe.Path[0], qualifier) {
		pe.ClassAlias = pe.Path[0]
		pe.Path = pe.Path[1:]
	}

	class := r.scope.Resolved
	first := pe.Path[0]
	p, ok := schema.ClassSystemProperty(class, first)
	if !ok {
		if p, ok = class.Property(first); !ok {
			return fmt.Errorf("property %s not found in class %s", first, class.FullName())
		}
	}
	props := []*schema.Property{p}
	for _, name := range pe.Path[1:] {
		parent := props[len(props)-1]
		var member *schema.Property
		switch {
		case parent.Kind == schema.KindStruct:
			member, ok = parent.StructClass.Property(name)
		case parent.Kind == schema.KindNavigation || parent.IsPrimitive():
			member, ok = schema.MemberSystemProperty(parent, name)
		default:
			ok = false
		}
		if !ok {
			return fmt.Errorf("%s has no member %s", strings.Join(pe.Path[:len(props)], "."), name)
		}
		props = append(props, member)
	}
	pe.Props = props
	return nil
}

func (r *resolver) resolveExp(e Exp) error {
	switch e := e.(type) {
	case *PropertyExp:
		return r.resolveProperty(e)
	case *ParameterExp:
		r.indexParameter(e)
	case *LiteralExp:
	case *BinaryExp:
		if err := r.resolveExp(e.Left); err != nil {
			return err
		}
		if err := r.resolveExp(e.Right); err != nil {
			return err
		}
		if e.IsComparison() {
			inferParameter(e.Left, e.Right)
			inferParameter(e.Right, e.Left)
		}
	case *UnaryExp:
		return r.resolveExp(e.Operand)
	case *IsNullExp:
		return r.resolveExp(e.Operand)
	case *ParenExp:
		return r.resolveExp(e.Inner)
	case *InExp:
		if err := r.resolveExp(e.Operand); err != nil {
			return err
		}
		for _, item := range e.List {
			if err := r.resolveExp(item); err != nil {
				return err
			}
			inferParameter(item, e.Operand)
		}
	case *FuncExp:
		for _, arg := range e.Args {
			if err := r.resolveExp(arg); err != nil {
				return err
			}
		}
	case *ExtractExp:
		if err := r.resolveProperty(e.Prop); err != nil {
			return err
		}
		if ti := e.Prop.TypeInfo(); ti.Kind != TypePrimitive || ti.Primitive != schema.PrimitiveString {
			return fmt.Errorf("cannot EXTRACT from %s: not a string property", e.Prop)
		}
	case starExp:
		return fmt.Errorf("* is only allowed as a select clause item")
	default:
		return fmt.Errorf("internal error: unknown expression type %T", e)
	}
	return nil
}

func (r *resolver) indexParameter(p *ParameterExp) {
	if p.Name != "" {
		key := strings.ToLower(p.Name)
		if i, ok := r.named[key]; ok {
			p.Index = i
			return
		}
		r.numParams++
		r.named[key] = r.numParams
		p.Index = r.numParams
		return
	}
	r.numParams++
	p.Index = r.numParams
}

func unparen(e Exp) Exp {
	for {
		p, ok := e.(*ParenExp)
		if !ok {
			return e
		}
		e = p.Inner
	}
}

// inferParameter types e from other if e is a parameter without a type.
func inferParameter(e Exp, other Exp) {
	p, ok := unparen(e).(*ParameterExp)
	if !ok || p.Type.Kind != TypeNull {
		return
	}
	switch o := unparen(other).(type) {
	case *ParameterExp:
	case *PropertyExp:
		p.Target = o.Property()
		p.Type = o.TypeInfo()
	default:
		p.Type = other.TypeInfo()
	}
}

// Walk calls fn for every expression of stmt, depth first in textual order.
func Walk(stmt Statement, fn func(Exp)) {
	var walk func(e Exp)
	walk = func(e Exp) {
		if e == nil {
			return
		}
		fn(e)
		switch e := e.(type) {
		case *BinaryExp:
			walk(e.Left)
			walk(e.Right)
		case *UnaryExp:
			walk(e.Operand)
		case *IsNullExp:
			walk(e.Operand)
		case *ParenExp:
			walk(e.Inner)
		case *InExp:
			walk(e.Operand)
			for _, item := range e.List {
				walk(item)
			}
		case *FuncExp:
			for _, arg := range e.Args {
				walk(arg)
			}
		case *ExtractExp:
			walk(e.Prop)
		}
	}
	switch s := stmt.(type) {
	case *SelectStatement:
		for _, item := range s.Items {
			walk(item.Exp)
		}
		walk(s.Where)
		for _, o := range s.OrderBy {
			walk(o.Exp)
		}
		walk(s.Limit)
		walk(s.Offset)
	case *InsertStatement:
		for i, p := range s.Props {
			walk(p)
			walk(s.Values[i])
		}
	case *UpdateStatement:
		for _, a := range s.Set {
			walk(a.Prop)
			walk(a.Value)
		}
		walk(s.Where)
	case *DeleteStatement:
		walk(s.Where)
	}
}
