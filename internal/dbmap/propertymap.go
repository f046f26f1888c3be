// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package dbmap

import (
	"strconv"

	"github.com/canonical/ecsql/internal/schema"
)

// PropertyMap maps a property, identified by its access string, to the
// columns holding its value.
type PropertyMap interface {
	Property() *schema.Property
	// AccessString is the dot separated path from the class to the
	// property, e.g. "Location.X".
	AccessString() string
	// Columns returns the columns holding the value in the order the value
	// is read: X, Y, Z for points, members in declaration order for
	// structs, Id then RelECClassId for navigation properties.
	Columns() []*Column
}

type basePropertyMap struct {
	prop   *schema.Property
	access string
}

func (m *basePropertyMap) Property() *schema.Property {
	return m.prop
}

func (m *basePropertyMap) AccessString() string {
	return m.access
}

// SingleColumnPropertyMap maps a non point primitive property or an array
// property to one column.
type SingleColumnPropertyMap struct {
	basePropertyMap
	Column *Column
}

func (m *SingleColumnPropertyMap) Columns() []*Column {
	return []*Column{m.Column}
}

// PointPropertyMap maps a Point2d or Point3d property. Z is nil for
// Point2d.
type PointPropertyMap struct {
	basePropertyMap
	X, Y, Z *Column
}

func (m *PointPropertyMap) Columns() []*Column {
	if m.Z == nil {
		return []*Column{m.X, m.Y}
	}
	return []*Column{m.X, m.Y, m.Z}
}

// StructPropertyMap maps a struct property to the maps of its members.
type StructPropertyMap struct {
	basePropertyMap
	Members []PropertyMap
}

func (m *StructPropertyMap) Columns() []*Column {
	var cols []*Column
	for _, member := range m.Members {
		cols = append(cols, member.Columns()...)
	}
	return cols
}

// NavigationPropertyMap maps a navigation property to the foreign key
// column and the column holding the relationship class id.
type NavigationPropertyMap struct {
	basePropertyMap
	ID         *Column
	RelClassID *Column
}

func (m *NavigationPropertyMap) Columns() []*Column {
	return []*Column{m.ID, m.RelClassID}
}

// SystemPropertyMap maps a system property. When Column is nil the value is
// the constant ClassID, used for class ids of tables without a
// discriminator column.
type SystemPropertyMap struct {
	basePropertyMap
	Column  *Column
	ClassID schema.ClassID
}

func (m *SystemPropertyMap) Columns() []*Column {
	if m.Column == nil {
		return nil
	}
	return []*Column{m.Column}
}

// SQL returns the column reference or the constant.
func (m *SystemPropertyMap) SQL(alias string) string {
	if m.Column == nil {
		return strconv.FormatUint(uint64(m.ClassID), 10)
	}
	return m.Column.QualifiedName(alias)
}

// ColumnSQL returns the SQL expressions reading the value of pm, one per
// column, qualified with alias.
func ColumnSQL(pm PropertyMap, alias string) []string {
	if sm, ok := pm.(*SystemPropertyMap); ok {
		return []string{sm.SQL(alias)}
	}
	var exprs []string
	for _, c := range pm.Columns() {
		exprs = append(exprs, c.QualifiedName(alias))
	}
	return exprs
}

// walk calls fn for pm and, depth first, for the maps nested in it.
func walk(pm PropertyMap, fn func(PropertyMap)) {
	fn(pm)
	if sm, ok := pm.(*StructPropertyMap); ok {
		for _, m := range sm.Members {
			walk(m, fn)
		}
	}
}
