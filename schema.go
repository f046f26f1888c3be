// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package ecsql

import (
	"github.com/canonical/ecsql/internal/schema"
)

// The schema model. Schemas are built with NewSchema and the Add methods of
// Schema and Class, then imported with DB.ImportSchemas.
type (
	Schema        = schema.Schema
	Class         = schema.Class
	ClassID       = schema.ClassID
	ClassOption   = schema.ClassOption
	Property      = schema.Property
	PrimitiveType = schema.PrimitiveType
	MapStrategy   = schema.MapStrategy
	Direction     = schema.Direction
)

// NewSchema returns an empty schema. Its classes can be named
// "name.Class", "name:Class" or "alias.Class".
func NewSchema(name, alias string) *Schema {
	return schema.NewSchema(name, alias)
}

var (
	Abstract     = schema.Abstract
	Sealed       = schema.Sealed
	WithBase     = schema.WithBase
	WithStrategy = schema.WithStrategy
)

const (
	PrimitiveBinary   = schema.PrimitiveBinary
	PrimitiveBoolean  = schema.PrimitiveBoolean
	PrimitiveDateTime = schema.PrimitiveDateTime
	PrimitiveDouble   = schema.PrimitiveDouble
	PrimitiveInteger  = schema.PrimitiveInteger
	PrimitiveLong     = schema.PrimitiveLong
	PrimitivePoint2d  = schema.PrimitivePoint2d
	PrimitivePoint3d  = schema.PrimitivePoint3d
	PrimitiveString   = schema.PrimitiveString
	PrimitiveGeometry = schema.PrimitiveGeometry
	PrimitiveGuid     = schema.PrimitiveGuid
)

const (
	MapOwnTable          = schema.MapOwnTable
	MapTablePerHierarchy = schema.MapTablePerHierarchy
	MapNotMapped         = schema.MapNotMapped
	MapSecondaryTable    = schema.MapSecondaryTable
	MapLinkTable         = schema.MapLinkTable
	MapForeignKey        = schema.MapForeignKey
)

const (
	Forward  = schema.Forward
	Backward = schema.Backward
)

// DateTimeInfoCA is the custom attribute setting the kind and component of
// DateTime properties.
const DateTimeInfoCA = schema.DateTimeInfoCA
