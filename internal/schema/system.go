// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package schema

import "strings"

// SystemKind identifies the system properties ECSql exposes on top of the
// properties declared in schemas.
type SystemKind int

const (
	SystemNone SystemKind = iota
	SystemECInstanceId
	SystemECClassId
	SystemSourceECInstanceId
	SystemSourceECClassId
	SystemTargetECInstanceId
	SystemTargetECClassId
	SystemNavigationId
	SystemNavigationRelECClassId
	SystemPointX
	SystemPointY
	SystemPointZ
)

// System property names.
const (
	ECInstanceId           = "ECInstanceId"
	ECClassId              = "ECClassId"
	SourceECInstanceId     = "SourceECInstanceId"
	SourceECClassId        = "SourceECClassId"
	TargetECInstanceId     = "TargetECInstanceId"
	TargetECClassId        = "TargetECClassId"
	NavigationId           = "Id"
	NavigationRelECClassId = "RelECClassId"
)

// The system schema holds the classes declaring system properties. It is
// never registered.
var (
	systemSchema     = NewSchema("ECDbSystem", "ecdbsys")
	instanceSysClass = systemSchema.AddStructClass("ClassECSqlSystemProperties")
	navSysClass      = systemSchema.AddStructClass("NavigationECSqlSystemProperties")
	pointSysClass    = systemSchema.AddStructClass("PointECSqlSystemProperties")
	systemProps      = map[SystemKind]*Property{}
)

func init() {
	add := func(c *Class, kind SystemKind, name string, t PrimitiveType) {
		p := c.AddPrimitive(name, t)
		p.system = kind
		systemProps[kind] = p
	}
	add(instanceSysClass, SystemECInstanceId, ECInstanceId, PrimitiveLong)
	add(instanceSysClass, SystemECClassId, ECClassId, PrimitiveLong)
	add(instanceSysClass, SystemSourceECInstanceId, SourceECInstanceId, PrimitiveLong)
	add(instanceSysClass, SystemSourceECClassId, SourceECClassId, PrimitiveLong)
	add(instanceSysClass, SystemTargetECInstanceId, TargetECInstanceId, PrimitiveLong)
	add(instanceSysClass, SystemTargetECClassId, TargetECClassId, PrimitiveLong)
	add(navSysClass, SystemNavigationId, NavigationId, PrimitiveLong)
	add(navSysClass, SystemNavigationRelECClassId, NavigationRelECClassId, PrimitiveLong)
	add(pointSysClass, SystemPointX, "X", PrimitiveDouble)
	add(pointSysClass, SystemPointY, "Y", PrimitiveDouble)
	add(pointSysClass, SystemPointZ, "Z", PrimitiveDouble)
	for i, p := range instanceSysClass.props {
		p.ID = PropertyID(i + 1)
	}
}

// SystemProperty returns the property object standing for a system property.
func SystemProperty(kind SystemKind) *Property {
	return systemProps[kind]
}

// SystemKind returns which system property p is, or SystemNone.
func (p *Property) SystemKind() SystemKind {
	return p.system
}

// IsSystemProperty reports whether p is one of the ECSql system properties.
func IsSystemProperty(p *Property) bool {
	return p != nil && p.system != SystemNone
}

// ClassSystemProperty resolves name to a system property of class c.
// Relationship classes additionally expose their source and target ends.
func ClassSystemProperty(c *Class, name string) (*Property, bool) {
	kinds := []SystemKind{SystemECInstanceId, SystemECClassId}
	if c.IsRelationship() {
		kinds = append(kinds, SystemSourceECInstanceId, SystemSourceECClassId, SystemTargetECInstanceId, SystemTargetECClassId)
	}
	for _, k := range kinds {
		if p := systemProps[k]; strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return nil, false
}

// MemberSystemProperty resolves a member of a navigation or point property.
func MemberSystemProperty(parent *Property, member string) (*Property, bool) {
	var kinds []SystemKind
	switch {
	case parent.IsNavigation():
		kinds = []SystemKind{SystemNavigationId, SystemNavigationRelECClassId}
	case parent.IsPrimitive() && parent.PrimitiveType == PrimitivePoint2d:
		kinds = []SystemKind{SystemPointX, SystemPointY}
	case parent.IsPrimitive() && parent.PrimitiveType == PrimitivePoint3d:
		kinds = []SystemKind{SystemPointX, SystemPointY, SystemPointZ}
	}
	for _, k := range kinds {
		if p := systemProps[k]; strings.EqualFold(p.Name, member) {
			return p, true
		}
	}
	return nil, false
}

// generatedClass declares the properties synthesized for computed or aliased
// select clause items. Generated properties are never added to its property
// list.
var generatedClass = systemSchema.AddStructClass("DynamicECSqlSelectClause")

// NewGeneratedProperty returns a property named name with the same type and
// custom attributes as like. It is used for aliased property references.
func NewGeneratedProperty(name string, like *Property) *Property {
	return &Property{
		Name:             name,
		Kind:             like.Kind,
		PrimitiveType:    like.PrimitiveType,
		StructClass:      like.StructClass,
		Relationship:     like.Relationship,
		Direction:        like.Direction,
		ExtendedType:     like.ExtendedType,
		class:            generatedClass,
		customAttributes: like.customAttributes,
	}
}

// NewGeneratedPrimitive returns a generated primitive property, used for
// select clause items that are not property references.
func NewGeneratedPrimitive(name string, t PrimitiveType) *Property {
	return &Property{Name: name, Kind: KindPrimitive, PrimitiveType: t, class: generatedClass}
}

// IsGenerated reports whether p was synthesized for a select clause item.
func (p *Property) IsGenerated() bool {
	return p.class == generatedClass
}
