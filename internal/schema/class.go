// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package schema

import (
	"strings"
)

// ClassID identifies a class within a Registry.
type ClassID uint64

type ClassType int

const (
	ClassEntity ClassType = iota
	ClassStruct
	ClassRelationship
)

func (t ClassType) String() string {
	switch t {
	case ClassEntity:
		return "entity"
	case ClassStruct:
		return "struct"
	case ClassRelationship:
		return "relationship"
	}
	return "unknown"
}

type ClassModifier int

const (
	ModifierNone ClassModifier = iota
	ModifierAbstract
	ModifierSealed
)

// MapStrategy controls how a class is stored in tables.
type MapStrategy int

const (
	// MapDefault lets the mapper decide: entities get their own table unless
	// a base class maps its hierarchy into one table.
	MapDefault MapStrategy = iota
	MapOwnTable
	MapTablePerHierarchy
	MapNotMapped
	// MapSecondaryTable stores struct instances in a table shared by all
	// owners, keyed by property path and array index.
	MapSecondaryTable
	// MapLinkTable stores relationship instances in their own table.
	MapLinkTable
	// MapForeignKey stores relationship instances as a foreign key on the
	// constrained end, the navigation property's table.
	MapForeignKey
)

// Constraint is one end of a relationship class.
type Constraint struct {
	Classes []*Class
}

// Class is an EC class.
type Class struct {
	ID       ClassID
	Name     string
	Type     ClassType
	Modifier ClassModifier
	Strategy MapStrategy

	// Source and Target are set for relationship classes.
	Source Constraint
	Target Constraint

	schema *Schema
	bases  []*Class
	props  []*Property
}

// ClassOption configures a class as it is added to a schema.
type ClassOption func(*Class)

// Abstract makes the class abstract.
func Abstract() ClassOption {
	return func(c *Class) { c.Modifier = ModifierAbstract }
}

// Sealed makes the class sealed.
func Sealed() ClassOption {
	return func(c *Class) { c.Modifier = ModifierSealed }
}

// WithBase adds a base class.
func WithBase(base *Class) ClassOption {
	return func(c *Class) { c.bases = append(c.bases, base) }
}

// WithStrategy sets the map strategy.
func WithStrategy(s MapStrategy) ClassOption {
	return func(c *Class) { c.Strategy = s }
}

// Schema returns the schema the class belongs to.
func (c *Class) Schema() *Schema {
	return c.schema
}

// FullName returns "Schema.Class".
func (c *Class) FullName() string {
	if c.schema == nil {
		return c.Name
	}
	return c.schema.Name + "." + c.Name
}

// Bases returns the direct base classes.
func (c *Class) Bases() []*Class {
	return c.bases
}

func (c *Class) IsAbstract() bool {
	return c.Modifier == ModifierAbstract
}

func (c *Class) IsEntity() bool {
	return c.Type == ClassEntity
}

func (c *Class) IsStruct() bool {
	return c.Type == ClassStruct
}

func (c *Class) IsRelationship() bool {
	return c.Type == ClassRelationship
}

// Is reports whether c is other or derives from it.
func (c *Class) Is(other *Class) bool {
	if c == other {
		return true
	}
	for _, b := range c.bases {
		if b.Is(other) {
			return true
		}
	}
	return false
}

// Properties returns the properties of the class in declaration order. When
// includeInherited is true the properties of the base classes come first and
// properties overridden in c keep the position of the base declaration.
func (c *Class) Properties(includeInherited bool) []*Property {
	if !includeInherited {
		return c.props
	}
	var props []*Property
	index := map[string]int{}
	add := func(p *Property) {
		key := strings.ToLower(p.Name)
		if i, ok := index[key]; ok {
			props[i] = p
			return
		}
		index[key] = len(props)
		props = append(props, p)
	}
	for _, b := range c.bases {
		for _, p := range b.Properties(true) {
			add(p)
		}
	}
	for _, p := range c.props {
		add(p)
	}
	return props
}

// Property finds a property of c, including inherited ones, by name,
// ignoring case.
func (c *Class) Property(name string) (*Property, bool) {
	for _, p := range c.props {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	for _, b := range c.bases {
		if p, ok := b.Property(name); ok {
			return p, true
		}
	}
	return nil, false
}

func (c *Class) addProperty(p *Property) *Property {
	p.class = c
	c.props = append(c.props, p)
	return p
}

// AddPrimitive adds a primitive property.
func (c *Class) AddPrimitive(name string, t PrimitiveType) *Property {
	return c.addProperty(&Property{Name: name, Kind: KindPrimitive, PrimitiveType: t})
}

// AddStruct adds a struct property of type structClass.
func (c *Class) AddStruct(name string, structClass *Class) *Property {
	return c.addProperty(&Property{Name: name, Kind: KindStruct, StructClass: structClass})
}

// AddPrimitiveArray adds an array property with elements of type t.
func (c *Class) AddPrimitiveArray(name string, t PrimitiveType) *Property {
	return c.addProperty(&Property{Name: name, Kind: KindPrimitiveArray, PrimitiveType: t})
}

// AddStructArray adds an array property with elements of type structClass.
func (c *Class) AddStructArray(name string, structClass *Class) *Property {
	return c.addProperty(&Property{Name: name, Kind: KindStructArray, StructClass: structClass})
}

// AddNavigation adds a navigation property over the relationship rel.
func (c *Class) AddNavigation(name string, rel *Class, dir Direction) *Property {
	return c.addProperty(&Property{Name: name, Kind: KindNavigation, Relationship: rel, Direction: dir})
}
