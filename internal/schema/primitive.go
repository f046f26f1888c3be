// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package schema

import "strings"

// PrimitiveType is the type of a primitive EC property or of the elements of
// a primitive array property.
type PrimitiveType int

const (
	PrimitiveUnknown PrimitiveType = iota
	PrimitiveBinary
	PrimitiveBoolean
	PrimitiveDateTime
	PrimitiveDouble
	PrimitiveInteger
	PrimitiveLong
	PrimitivePoint2d
	PrimitivePoint3d
	PrimitiveString
	PrimitiveGeometry
	PrimitiveGuid
)

var primitiveNames = map[PrimitiveType]string{
	PrimitiveUnknown:  "unknown",
	PrimitiveBinary:   "binary",
	PrimitiveBoolean:  "boolean",
	PrimitiveDateTime: "dateTime",
	PrimitiveDouble:   "double",
	PrimitiveInteger:  "int",
	PrimitiveLong:     "long",
	PrimitivePoint2d:  "point2d",
	PrimitivePoint3d:  "point3d",
	PrimitiveString:   "string",
	PrimitiveGeometry: "Bentley.Geometry.Common.IGeometry",
	PrimitiveGuid:     "guid",
}

func (t PrimitiveType) String() string {
	if s, ok := primitiveNames[t]; ok {
		return s
	}
	return "unknown"
}

// ParsePrimitiveType returns the primitive type named s, matching the names
// returned by String case-insensitively.
func ParsePrimitiveType(s string) (PrimitiveType, bool) {
	for t, name := range primitiveNames {
		if t != PrimitiveUnknown && strings.EqualFold(name, s) {
			return t, true
		}
	}
	return PrimitiveUnknown, false
}

// ColumnCount is the number of table columns a value of this type occupies.
func (t PrimitiveType) ColumnCount() int {
	switch t {
	case PrimitivePoint2d:
		return 2
	case PrimitivePoint3d:
		return 3
	}
	return 1
}

// IsPoint reports whether t is one of the point types.
func (t PrimitiveType) IsPoint() bool {
	return t == PrimitivePoint2d || t == PrimitivePoint3d
}
