// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package schema

// PropertyKind is the kind of value an EC property holds.
type PropertyKind int

const (
	KindPrimitive PropertyKind = iota
	KindStruct
	KindPrimitiveArray
	KindStructArray
	KindNavigation
)

func (k PropertyKind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindStruct:
		return "struct"
	case KindPrimitiveArray:
		return "primitive array"
	case KindStructArray:
		return "struct array"
	case KindNavigation:
		return "navigation"
	}
	return "unknown"
}

// Direction is the direction in which a navigation property traverses its
// relationship.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// PropertyID identifies a property within a Registry.
type PropertyID uint64

// Property is a property of an EC class.
type Property struct {
	ID   PropertyID
	Name string
	Kind PropertyKind

	// PrimitiveType is set for primitive and primitive array properties.
	PrimitiveType PrimitiveType

	// StructClass is set for struct and struct array properties.
	StructClass *Class

	// Relationship and Direction are set for navigation properties.
	Relationship *Class
	Direction    Direction

	// ExtendedType refines the meaning of a primitive type, for example
	// "Json" on a string property.
	ExtendedType string

	class            *Class
	system           SystemKind
	customAttributes map[string]map[string]any
}

// Class returns the class declaring the property.
func (p *Property) Class() *Class {
	return p.class
}

// FullName returns "Schema.Class.Property".
func (p *Property) FullName() string {
	if p.class == nil {
		return p.Name
	}
	return p.class.FullName() + "." + p.Name
}

// SetCustomAttribute attaches a custom attribute instance to the property.
func (p *Property) SetCustomAttribute(name string, values map[string]any) *Property {
	if p.customAttributes == nil {
		p.customAttributes = map[string]map[string]any{}
	}
	p.customAttributes[name] = values
	return p
}

// CustomAttribute returns the custom attribute instance called name.
func (p *Property) CustomAttribute(name string) (map[string]any, bool) {
	ca, ok := p.customAttributes[name]
	return ca, ok
}

func (p *Property) IsPrimitive() bool {
	return p.Kind == KindPrimitive
}

func (p *Property) IsStruct() bool {
	return p.Kind == KindStruct
}

func (p *Property) IsArray() bool {
	return p.Kind == KindPrimitiveArray || p.Kind == KindStructArray
}

func (p *Property) IsNavigation() bool {
	return p.Kind == KindNavigation
}
