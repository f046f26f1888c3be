// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package dbmap

import (
	"strconv"
	"strings"

	"github.com/canonical/ecsql/internal/schema"
)

// MapType says how a class is stored.
type MapType int

const (
	MapNotMapped MapType = iota
	// MapRegular classes are stored one row per instance in their own or a
	// shared table. Abstract classes without a table of their own are
	// regular classes with a nil Table.
	MapRegular
	MapRelationshipEndTable
	MapRelationshipLinkTable
	MapSecondaryTable
)

func (t MapType) String() string {
	switch t {
	case MapNotMapped:
		return "not mapped"
	case MapRegular:
		return "regular"
	case MapRelationshipEndTable:
		return "end table relationship"
	case MapRelationshipLinkTable:
		return "link table relationship"
	case MapSecondaryTable:
		return "secondary table"
	}
	return "unknown"
}

// ClassMap describes how one class is stored.
type ClassMap struct {
	Class *schema.Class
	Type  MapType
	// Table is the table holding instances of exactly this class. It is nil
	// for not mapped classes and for abstract classes that are only stored
	// through their subclasses.
	Table *Table

	propertyMaps []PropertyMap
	byAccess     map[string]PropertyMap
	storage      *StorageDescription

	// otherEnd is set on end table relationship maps: the map of the
	// foreign key navigation property.
	otherEnd *NavigationPropertyMap
}

func newClassMap(c *schema.Class, typ MapType, table *Table) *ClassMap {
	return &ClassMap{Class: c, Type: typ, Table: table, byAccess: map[string]PropertyMap{}}
}

// IsMapped reports whether instances of the class can be stored.
func (m *ClassMap) IsMapped() bool {
	return m.Type != MapNotMapped
}

// PropertyMaps returns the maps of the top level properties, system
// properties first.
func (m *ClassMap) PropertyMaps() []PropertyMap {
	return m.propertyMaps
}

// PropertyMap finds the map of a property or nested member by access
// string, ignoring case.
func (m *ClassMap) PropertyMap(accessString string) (PropertyMap, bool) {
	pm, ok := m.byAccess[strings.ToLower(accessString)]
	return pm, ok
}

// Storage returns the horizontal partitions of the class.
func (m *ClassMap) Storage() *StorageDescription {
	return m.storage
}

// OtherEnd returns the navigation property map holding the foreign key of an
// end table relationship.
func (m *ClassMap) OtherEnd() *NavigationPropertyMap {
	return m.otherEnd
}

func (m *ClassMap) addPropertyMap(pm PropertyMap) {
	m.propertyMaps = append(m.propertyMaps, pm)
	m.index(pm)
}

// index registers pm and everything nested in it under their access strings.
func (m *ClassMap) index(pm PropertyMap) {
	walk(pm, func(pm PropertyMap) {
		m.byAccess[strings.ToLower(pm.AccessString())] = pm
		switch pm := pm.(type) {
		case *PointPropertyMap:
			kinds := []schema.SystemKind{schema.SystemPointX, schema.SystemPointY, schema.SystemPointZ}
			for i, c := range pm.Columns() {
				sys := schema.SystemProperty(kinds[i])
				m.byAccess[strings.ToLower(pm.AccessString()+"."+sys.Name)] = &SingleColumnPropertyMap{
					basePropertyMap: basePropertyMap{prop: sys, access: pm.AccessString() + "." + sys.Name},
					Column:          c,
				}
			}
		case *NavigationPropertyMap:
			id := schema.SystemProperty(schema.SystemNavigationId)
			rel := schema.SystemProperty(schema.SystemNavigationRelECClassId)
			m.byAccess[strings.ToLower(pm.AccessString()+"."+id.Name)] = &SingleColumnPropertyMap{
				basePropertyMap: basePropertyMap{prop: id, access: pm.AccessString() + "." + id.Name},
				Column:          pm.ID,
			}
			m.byAccess[strings.ToLower(pm.AccessString()+"."+rel.Name)] = &SingleColumnPropertyMap{
				basePropertyMap: basePropertyMap{prop: rel, access: pm.AccessString() + "." + rel.Name},
				Column:          pm.RelClassID,
			}
		}
	})
}

// HorizontalPartition is the slice of a class's polymorphic instances held
// by one table.
type HorizontalPartition struct {
	Table *Table
	// ClassIDs are the classes whose instances the partition returns.
	ClassIDs []schema.ClassID
	// NeedsClassIDFilter is true when the table holds instances of classes
	// not in ClassIDs.
	NeedsClassIDFilter bool
	// ClassMap maps the properties of the partitioned class onto the
	// partition's table.
	ClassMap *ClassMap
}

// ClassIDFilter returns the SQL expression restricting the table's rows to
// the partition's classes, or "" if no restriction is needed.
func (p *HorizontalPartition) ClassIDFilter(alias string) string {
	col := p.Table.ClassIDColumn()
	if !p.NeedsClassIDFilter || col == nil {
		return ""
	}
	if len(p.ClassIDs) == 1 {
		return col.QualifiedName(alias) + "=" + strconv.FormatUint(uint64(p.ClassIDs[0]), 10)
	}
	ids := make([]string, len(p.ClassIDs))
	for i, id := range p.ClassIDs {
		ids[i] = strconv.FormatUint(uint64(id), 10)
	}
	return col.QualifiedName(alias) + " IN (" + strings.Join(ids, ",") + ")"
}

// StorageDescription lists where the instances of a class are stored.
type StorageDescription struct {
	// Polymorphic partitions hold the instances of the class and all its
	// subclasses. Virtual tables contribute no partition.
	Polymorphic []*HorizontalPartition
	// NonPolymorphic holds only instances of exactly the class. It is nil
	// for classes without a table.
	NonPolymorphic *HorizontalPartition
}

// HasMultiplePartitions reports whether a polymorphic query spans more than
// one table.
func (s *StorageDescription) HasMultiplePartitions() bool {
	return len(s.Polymorphic) > 1
}

// Partitions returns the partitions to query.
func (s *StorageDescription) Partitions(polymorphic bool) []*HorizontalPartition {
	if polymorphic {
		return s.Polymorphic
	}
	if s.NonPolymorphic == nil {
		return nil
	}
	return []*HorizontalPartition{s.NonPolymorphic}
}
