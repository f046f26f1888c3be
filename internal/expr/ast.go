// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"strconv"
	"strings"

	"github.com/canonical/ecsql/internal/schema"
)

// StatementKind is the top level kind of an ECSql statement.
type StatementKind int

const (
	KindSelect StatementKind = iota
	KindInsert
	KindUpdate
	KindDelete
)

func (k StatementKind) String() string {
	switch k {
	case KindSelect:
		return "SELECT"
	case KindInsert:
		return "INSERT"
	case KindUpdate:
		return "UPDATE"
	case KindDelete:
		return "DELETE"
	}
	return "unknown"
}

// Statement is a parsed ECSql statement.
type Statement interface {
	Kind() StatementKind
	// Class returns the class the statement reads or writes.
	Class() *ClassRef
	String() string
}

// Exp is a value expression.
type Exp interface {
	// TypeInfo returns the type of the expression. It is only valid once
	// the statement has been resolved.
	TypeInfo() TypeInfo
	String() string
}

// ClassRef is a class reference in a FROM, INTO, UPDATE or DELETE clause.
type ClassRef struct {
	SchemaName string
	ClassName  string
	Alias      string
	// Polymorphic is false for ONLY references.
	Polymorphic bool

	// Resolved is set by Resolve.
	Resolved *schema.Class
}

func (c *ClassRef) String() string {
	var b strings.Builder
	if !c.Polymorphic {
		b.WriteString("ONLY ")
	}
	if c.SchemaName != "" {
		b.WriteString(c.SchemaName + ".")
	}
	b.WriteString(c.ClassName)
	if c.Alias != "" {
		b.WriteString(" " + c.Alias)
	}
	return b.String()
}

// PropertyExp references a property or a member of one, e.g. "w.Location.X".
type PropertyExp struct {
	// Path is the dotted name as written, without the class alias.
	Path []string
	// ClassAlias is the alias or class name prefix, if one was written.
	ClassAlias string

	// Props are the properties the path goes through, set by Resolve.
	Props []*schema.Property
	// Class is the class the path starts from, set by Resolve.
	Class *ClassRef
}

// Property returns the property the expression ends at.
func (e *PropertyExp) Property() *schema.Property {
	if len(e.Props) == 0 {
		return nil
	}
	return e.Props[len(e.Props)-1]
}

// AccessString returns the resolved path, e.g. "Location.X".
func (e *PropertyExp) AccessString() string {
	names := make([]string, len(e.Props))
	for i, p := range e.Props {
		names[i] = p.Name
	}
	return strings.Join(names, ".")
}

func (e *PropertyExp) TypeInfo() TypeInfo {
	if p := e.Property(); p != nil {
		return PropertyTypeInfo(p)
	}
	return TypeInfo{}
}

func (e *PropertyExp) String() string {
	s := strings.Join(e.Path, ".")
	if e.ClassAlias != "" {
		return e.ClassAlias + "." + s
	}
	return s
}

// LiteralKind is the kind of a literal value.
type LiteralKind int

const (
	LiteralNull LiteralKind = iota
	LiteralInteger
	LiteralReal
	LiteralString
	LiteralBoolean
)

// LiteralExp is a constant.
type LiteralExp struct {
	Kind LiteralKind
	// Raw is the literal as written; string literals keep their quotes.
	Raw string
}

// Value returns the Go value of the literal.
func (e *LiteralExp) Value() any {
	switch e.Kind {
	case LiteralInteger:
		i, _ := strconv.ParseInt(e.Raw, 0, 64)
		return i
	case LiteralReal:
		f, _ := strconv.ParseFloat(e.Raw, 64)
		return f
	case LiteralString:
		return unquote(e.Raw)
	case LiteralBoolean:
		return strings.EqualFold(e.Raw, "TRUE")
	}
	return nil
}

func (e *LiteralExp) TypeInfo() TypeInfo {
	switch e.Kind {
	case LiteralInteger:
		return PrimitiveTypeInfo(schema.PrimitiveLong)
	case LiteralReal:
		return PrimitiveTypeInfo(schema.PrimitiveDouble)
	case LiteralString:
		return PrimitiveTypeInfo(schema.PrimitiveString)
	case LiteralBoolean:
		return PrimitiveTypeInfo(schema.PrimitiveBoolean)
	}
	return TypeInfo{Kind: TypeNull}
}

func (e *LiteralExp) String() string {
	return e.Raw
}

// unquote removes the quotes of a string literal and unescapes doubled
// quotes.
func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	q := s[:1]
	return strings.ReplaceAll(s[1:len(s)-1], q+q, q)
}

// ParameterExp is a positional (?) or named (:name) parameter.
type ParameterExp struct {
	Name string

	// Index is the 1-based parameter index, set by Resolve. Named
	// parameters share the index of their first occurrence.
	Index int
	// Target is the property the parameter value is compared with or
	// assigned to, if any, set by Resolve.
	Target *schema.Property
	// Type is the inferred type of the parameter.
	Type TypeInfo
}

func (e *ParameterExp) TypeInfo() TypeInfo {
	return e.Type
}

func (e *ParameterExp) String() string {
	if e.Name != "" {
		return ":" + e.Name
	}
	return "?"
}

// BinaryExp is an infix operation: arithmetic, comparison, LIKE, AND, OR or
// string concatenation.
type BinaryExp struct {
	Op          string
	Left, Right Exp
}

// IsComparison reports whether the operator compares its operands.
func (e *BinaryExp) IsComparison() bool {
	switch e.Op {
	case "=", "<>", "!=", "<", "<=", ">", ">=", "LIKE", "NOT LIKE":
		return true
	}
	return false
}

// IsBoolean reports whether the operation yields a boolean.
func (e *BinaryExp) IsBoolean() bool {
	return e.IsComparison() || e.Op == "AND" || e.Op == "OR"
}

func (e *BinaryExp) TypeInfo() TypeInfo {
	switch {
	case e.IsBoolean():
		return PrimitiveTypeInfo(schema.PrimitiveBoolean)
	case e.Op == "||":
		return PrimitiveTypeInfo(schema.PrimitiveString)
	}
	l, r := e.Left.TypeInfo(), e.Right.TypeInfo()
	if l.Primitive == schema.PrimitiveDouble || r.Primitive == schema.PrimitiveDouble || e.Op == "/" {
		return PrimitiveTypeInfo(schema.PrimitiveDouble)
	}
	return PrimitiveTypeInfo(schema.PrimitiveLong)
}

func (e *BinaryExp) String() string {
	return e.Left.String() + " " + e.Op + " " + e.Right.String()
}

// UnaryExp is NOT or a sign.
type UnaryExp struct {
	Op      string
	Operand Exp
}

func (e *UnaryExp) TypeInfo() TypeInfo {
	if e.Op == "NOT" {
		return PrimitiveTypeInfo(schema.PrimitiveBoolean)
	}
	return e.Operand.TypeInfo()
}

func (e *UnaryExp) String() string {
	if e.Op == "NOT" {
		return "NOT " + e.Operand.String()
	}
	return e.Op + e.Operand.String()
}

// IsNullExp is "x IS NULL" or "x IS NOT NULL".
type IsNullExp struct {
	Operand Exp
	Not     bool
}

func (e *IsNullExp) TypeInfo() TypeInfo {
	return PrimitiveTypeInfo(schema.PrimitiveBoolean)
}

func (e *IsNullExp) String() string {
	if e.Not {
		return e.Operand.String() + " IS NOT NULL"
	}
	return e.Operand.String() + " IS NULL"
}

// InExp is "x [NOT] IN (a, b, ...)".
type InExp struct {
	Operand Exp
	List    []Exp
	Not     bool
}

func (e *InExp) TypeInfo() TypeInfo {
	return PrimitiveTypeInfo(schema.PrimitiveBoolean)
}

func (e *InExp) String() string {
	op := " IN ("
	if e.Not {
		op = " NOT IN ("
	}
	return e.Operand.String() + op + joinExps(e.List) + ")"
}

// ParenExp is an expression in parentheses.
type ParenExp struct {
	Inner Exp
}

func (e *ParenExp) TypeInfo() TypeInfo {
	return e.Inner.TypeInfo()
}

func (e *ParenExp) String() string {
	return "(" + e.Inner.String() + ")"
}

// FuncExp is a function call. Star is set for COUNT(*).
type FuncExp struct {
	Name string
	Args []Exp
	Star bool
}

var functionTypes = map[string]schema.PrimitiveType{
	"count":  schema.PrimitiveLong,
	"length": schema.PrimitiveLong,
	"sum":    schema.PrimitiveDouble,
	"avg":    schema.PrimitiveDouble,
	"total":  schema.PrimitiveDouble,
	"lower":  schema.PrimitiveString,
	"upper":  schema.PrimitiveString,
	"trim":   schema.PrimitiveString,
	"substr": schema.PrimitiveString,
	"typeof": schema.PrimitiveString,
}

func (e *FuncExp) TypeInfo() TypeInfo {
	if t, ok := functionTypes[strings.ToLower(e.Name)]; ok {
		return PrimitiveTypeInfo(t)
	}
	// min, max, abs, coalesce and friends return the type of their first
	// argument.
	if len(e.Args) > 0 {
		if ti := e.Args[0].TypeInfo(); ti.Kind == TypePrimitive && !ti.Primitive.IsPoint() {
			return ti
		}
	}
	return TypeInfo{Kind: TypeNull}
}

func (e *FuncExp) String() string {
	if e.Star {
		return e.Name + "(*)"
	}
	return e.Name + "(" + joinExps(e.Args) + ")"
}

// ExtractExp is EXTRACT(prop, 'path'): the value at a JSON path inside a
// property holding JSON.
type ExtractExp struct {
	Prop *PropertyExp
	Path string
}

func (e *ExtractExp) TypeInfo() TypeInfo {
	return PrimitiveTypeInfo(schema.PrimitiveString)
}

// JSONPath returns the path in SQLite's JSON path syntax.
func (e *ExtractExp) JSONPath() string {
	if strings.HasPrefix(e.Path, "$") {
		return e.Path
	}
	if strings.HasPrefix(e.Path, "[") {
		return "$" + e.Path
	}
	return "$." + e.Path
}

func (e *ExtractExp) String() string {
	return "EXTRACT(" + e.Prop.String() + ", '" + strings.ReplaceAll(e.Path, "'", "''") + "')"
}

func joinExps(exps []Exp) string {
	s := make([]string, len(exps))
	for i, e := range exps {
		s[i] = e.String()
	}
	return strings.Join(s, ", ")
}

// DerivedProperty is a select clause item.
type DerivedProperty struct {
	Exp   Exp
	Alias string
}

// IsExtract reports whether the item is an EXTRACT call.
func (d *DerivedProperty) IsExtract() bool {
	_, ok := d.Exp.(*ExtractExp)
	return ok
}

// ColumnName returns the name of the result column: the alias, the
// property name or the expression text.
func (d *DerivedProperty) ColumnName() string {
	if d.Alias != "" {
		return d.Alias
	}
	if pe, ok := d.Exp.(*PropertyExp); ok && len(pe.Props) > 0 {
		return pe.AccessString()
	}
	return d.Exp.String()
}

func (d *DerivedProperty) String() string {
	if d.Alias != "" {
		return d.Exp.String() + " AS " + d.Alias
	}
	return d.Exp.String()
}

// starExp stands for "*" in a select clause until Resolve expands it.
type starExp struct{}

func (starExp) TypeInfo() TypeInfo {
	return TypeInfo{}
}

func (starExp) String() string {
	return "*"
}

// OrderItem is an ORDER BY term.
type OrderItem struct {
	Exp  Exp
	Desc bool

	// SelectItem is the select clause item the term names by alias, set
	// by Resolve.
	SelectItem *DerivedProperty
}

// SelectStatement is a SELECT.
type SelectStatement struct {
	Distinct bool
	Items    []*DerivedProperty
	From     *ClassRef
	Where    Exp
	OrderBy  []*OrderItem
	Limit    Exp
	Offset   Exp
}

func (s *SelectStatement) Kind() StatementKind {
	return KindSelect
}

func (s *SelectStatement) Class() *ClassRef {
	return s.From
}

func (s *SelectStatement) String() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if s.Distinct {
		b.WriteString("DISTINCT ")
	}
	items := make([]string, len(s.Items))
	for i, item := range s.Items {
		items[i] = item.String()
	}
	b.WriteString(strings.Join(items, ", "))
	b.WriteString(" FROM " + s.From.String())
	if s.Where != nil {
		b.WriteString(" WHERE " + s.Where.String())
	}
	if len(s.OrderBy) > 0 {
		terms := make([]string, len(s.OrderBy))
		for i, o := range s.OrderBy {
			terms[i] = o.Exp.String()
			if o.Desc {
				terms[i] += " DESC"
			}
		}
		b.WriteString(" ORDER BY " + strings.Join(terms, ", "))
	}
	if s.Limit != nil {
		b.WriteString(" LIMIT " + s.Limit.String())
		if s.Offset != nil {
			b.WriteString(" OFFSET " + s.Offset.String())
		}
	}
	return b.String()
}

// InsertStatement is an INSERT.
type InsertStatement struct {
	Into   *ClassRef
	Props  []*PropertyExp
	Values []Exp
}

func (s *InsertStatement) Kind() StatementKind {
	return KindInsert
}

func (s *InsertStatement) Class() *ClassRef {
	return s.Into
}

func (s *InsertStatement) String() string {
	props := make([]string, len(s.Props))
	for i, p := range s.Props {
		props[i] = p.String()
	}
	return "INSERT INTO " + s.Into.String() + " (" + strings.Join(props, ", ") + ") VALUES (" + joinExps(s.Values) + ")"
}

// Assignment is a "prop = value" term of an UPDATE.
type Assignment struct {
	Prop  *PropertyExp
	Value Exp
}

// UpdateStatement is an UPDATE.
type UpdateStatement struct {
	Target *ClassRef
	Set    []*Assignment
	Where  Exp
}

func (s *UpdateStatement) Kind() StatementKind {
	return KindUpdate
}

func (s *UpdateStatement) Class() *ClassRef {
	return s.Target
}

func (s *UpdateStatement) String() string {
	set := make([]string, len(s.Set))
	for i, a := range s.Set {
		set[i] = a.Prop.String() + " = " + a.Value.String()
	}
	str := "UPDATE " + s.Target.String() + " SET " + strings.Join(set, ", ")
	if s.Where != nil {
		str += " WHERE " + s.Where.String()
	}
	return str
}

// DeleteStatement is a DELETE.
type DeleteStatement struct {
	From  *ClassRef
	Where Exp
}

func (s *DeleteStatement) Kind() StatementKind {
	return KindDelete
}

func (s *DeleteStatement) Class() *ClassRef {
	return s.From
}

func (s *DeleteStatement) String() string {
	str := "DELETE FROM " + s.From.String()
	if s.Where != nil {
		str += " WHERE " + s.Where.String()
	}
	return str
}
