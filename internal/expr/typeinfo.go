// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"github.com/canonical/ecsql/internal/schema"
)

// TypeKind is the kind of value an expression yields.
type TypeKind int

const (
	TypeNull TypeKind = iota
	TypePrimitive
	TypeStruct
	TypePrimitiveArray
	TypeStructArray
	TypeNavigation
)

func (k TypeKind) String() string {
	switch k {
	case TypeNull:
		return "null"
	case TypePrimitive:
		return "primitive"
	case TypeStruct:
		return "struct"
	case TypePrimitiveArray:
		return "primitive array"
	case TypeStructArray:
		return "struct array"
	case TypeNavigation:
		return "navigation"
	}
	return "unknown"
}

// TypeInfo is the type of an expression. Primitive is set for primitives
// and primitive arrays, Struct for structs and struct arrays, Navigation
// for navigation properties.
type TypeInfo struct {
	Kind       TypeKind
	Primitive  schema.PrimitiveType
	Struct     *schema.Class
	Navigation *schema.Property
}

func PrimitiveTypeInfo(t schema.PrimitiveType) TypeInfo {
	return TypeInfo{Kind: TypePrimitive, Primitive: t}
}

// PropertyTypeInfo returns the type of values of p.
func PropertyTypeInfo(p *schema.Property) TypeInfo {
	switch p.Kind {
	case schema.KindStruct:
		return TypeInfo{Kind: TypeStruct, Struct: p.StructClass}
	case schema.KindPrimitiveArray:
		return TypeInfo{Kind: TypePrimitiveArray, Primitive: p.PrimitiveType}
	case schema.KindStructArray:
		return TypeInfo{Kind: TypeStructArray, Struct: p.StructClass}
	case schema.KindNavigation:
		return TypeInfo{Kind: TypeNavigation, Navigation: p}
	}
	return PrimitiveTypeInfo(p.PrimitiveType)
}

// IsScalar reports whether a value of the type fits one native column.
func (t TypeInfo) IsScalar() bool {
	switch t.Kind {
	case TypeNull, TypePrimitiveArray, TypeStructArray:
		return true
	case TypePrimitive:
		return !t.Primitive.IsPoint()
	}
	return false
}

func (t TypeInfo) String() string {
	switch t.Kind {
	case TypePrimitive:
		return t.Primitive.String()
	case TypePrimitiveArray:
		return t.Primitive.String() + "[]"
	case TypeStruct:
		return t.Struct.FullName()
	case TypeStructArray:
		return t.Struct.FullName() + "[]"
	case TypeNavigation:
		return "navigation " + t.Navigation.Relationship.FullName()
	}
	return t.Kind.String()
}
