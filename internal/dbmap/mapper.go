// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package dbmap maps EC classes onto tables.

Each class gets a ClassMap saying which table holds its instances and which
columns hold each of its properties. Primitive properties take one column,
points take one column per coordinate, structs are flattened into their
members, arrays are stored as JSON text and navigation properties take a
foreign key column plus the id of the relationship class.
*/
package dbmap

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/canonical/ecsql/internal/schema"
)

// Maps holds the class maps of every class of a registry.
type Maps struct {
	reg          *schema.Registry
	classMaps    map[schema.ClassID]*ClassMap
	tables       []*Table
	tableClasses map[*Table][]schema.ClassID
	nextColumnID ColumnID
}

// Map computes the class maps of all classes in reg.
func Map(reg *schema.Registry) (m *Maps, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot map schemas: %s", err)
		}
	}()
	m = &Maps{
		reg:          reg,
		classMaps:    map[schema.ClassID]*ClassMap{},
		tableClasses: map[*Table][]schema.ClassID{},
	}
	classes := reg.Classes()
	for _, c := range classes {
		if c.IsRelationship() && c.Strategy == schema.MapForeignKey {
			continue
		}
		if err := m.mapClass(c); err != nil {
			return nil, err
		}
	}
	for _, c := range classes {
		if c.IsRelationship() && c.Strategy == schema.MapForeignKey {
			if err := m.mapEndTable(c); err != nil {
				return nil, err
			}
		}
	}
	for _, c := range classes {
		cm := m.classMaps[c.ID]
		if cm.storage == nil {
			cm.storage = m.storageFor(cm)
		}
	}
	return m, nil
}

// Registry returns the schemas the maps were computed from.
func (m *Maps) Registry() *schema.Registry {
	return m.reg
}

// ClassMap returns the map of the class with the given id.
func (m *Maps) ClassMap(id schema.ClassID) (*ClassMap, bool) {
	cm, ok := m.classMaps[id]
	return cm, ok
}

// Tables returns all tables in creation order.
func (m *Maps) Tables() []*Table {
	return m.tables
}

// DDL returns the statements creating the instance id sequence and all
// tables.
func (m *Maps) DDL() []string {
	ddl := SequenceDDL()
	for _, t := range m.tables {
		ddl = append(ddl, t.DDL()...)
	}
	return ddl
}

func (m *Maps) newTable(c *schema.Class, typ TableType) *Table {
	prefix := c.Schema().Alias
	if prefix == "" {
		prefix = c.Schema().Name
	}
	name := prefix + "_" + c.Name
	taken := func(n string) bool {
		return lo.ContainsBy(m.tables, func(t *Table) bool { return strings.EqualFold(t.Name, n) })
	}
	unique := name
	for i := 2; taken(unique); i++ {
		unique = fmt.Sprintf("%s_%d", name, i)
	}
	t := &Table{ID: len(m.tables) + 1, Name: unique, Type: typ, names: map[string]bool{}}
	m.tables = append(m.tables, t)
	return t
}

func systemMap(kind schema.SystemKind, col *Column, classID schema.ClassID) *SystemPropertyMap {
	p := schema.SystemProperty(kind)
	return &SystemPropertyMap{basePropertyMap: basePropertyMap{prop: p, access: p.Name}, Column: col, ClassID: classID}
}

// tphRoot returns the root-most class of c's base chain that maps its
// hierarchy into a single table.
func tphRoot(c *schema.Class) *schema.Class {
	var root *schema.Class
	for cur := c; cur != nil; {
		if cur.Strategy == schema.MapTablePerHierarchy {
			root = cur
		}
		if len(cur.Bases()) == 0 {
			break
		}
		cur = cur.Bases()[0]
	}
	return root
}

func (m *Maps) register(cm *ClassMap) {
	m.classMaps[cm.Class.ID] = cm
	if cm.Table != nil {
		m.tableClasses[cm.Table] = append(m.tableClasses[cm.Table], cm.Class.ID)
	}
}

func (m *Maps) mapClass(c *schema.Class) error {
	switch {
	case c.IsStruct():
		if c.Strategy != schema.MapSecondaryTable {
			m.register(newClassMap(c, MapNotMapped, nil))
			return nil
		}
		t := m.newTable(c, TableSecondary)
		id := t.addColumn(m, "Id", ColumnInteger, ColumnECInstanceId)
		t.addColumn(m, "ParentECInstanceId", ColumnInteger, ColumnParentECInstanceId)
		t.addColumn(m, "ECPropertyPathId", ColumnInteger, ColumnECPropertyPathId)
		t.addColumn(m, "ECArrayIndex", ColumnInteger, ColumnECArrayIndex)
		cm := newClassMap(c, MapSecondaryTable, t)
		cm.addPropertyMap(systemMap(schema.SystemECInstanceId, id, 0))
		cm.addPropertyMap(systemMap(schema.SystemECClassId, nil, c.ID))
		if err := m.addDataProperties(cm, c.Properties(true)); err != nil {
			return err
		}
		m.register(cm)
		return nil

	case c.IsRelationship():
		t := m.newTable(c, TablePrimary)
		cm := newClassMap(c, MapRelationshipLinkTable, t)
		cm.addPropertyMap(systemMap(schema.SystemECInstanceId, t.addColumn(m, "Id", ColumnInteger, ColumnECInstanceId), 0))
		cm.addPropertyMap(systemMap(schema.SystemECClassId, nil, c.ID))
		cm.addPropertyMap(systemMap(schema.SystemSourceECInstanceId, t.addColumn(m, "SourceId", ColumnInteger, ColumnSourceECInstanceId), 0))
		cm.addPropertyMap(systemMap(schema.SystemSourceECClassId, t.addColumn(m, "SourceECClassId", ColumnInteger, ColumnSourceECClassId), 0))
		cm.addPropertyMap(systemMap(schema.SystemTargetECInstanceId, t.addColumn(m, "TargetId", ColumnInteger, ColumnTargetECInstanceId), 0))
		cm.addPropertyMap(systemMap(schema.SystemTargetECClassId, t.addColumn(m, "TargetECClassId", ColumnInteger, ColumnTargetECClassId), 0))
		if err := m.addDataProperties(cm, c.Properties(true)); err != nil {
			return err
		}
		m.register(cm)
		return nil
	}

	if c.Strategy == schema.MapNotMapped {
		m.register(newClassMap(c, MapNotMapped, nil))
		return nil
	}

	root := tphRoot(c)
	switch {
	case root != nil && root != c:
		base, ok := m.classMaps[c.Bases()[0].ID]
		if !ok || base.Table == nil {
			return fmt.Errorf("base class of %s is not mapped to a table", c.FullName())
		}
		cm := newClassMap(c, MapRegular, base.Table)
		for _, pm := range base.propertyMaps {
			cm.addPropertyMap(pm)
		}
		var own []*schema.Property
		for _, p := range c.Properties(true) {
			if _, ok := cm.PropertyMap(p.Name); !ok {
				own = append(own, p)
			}
		}
		if err := m.addDataProperties(cm, own); err != nil {
			return err
		}
		m.register(cm)

	case root == c:
		t := m.newTable(c, TablePrimary)
		cm := newClassMap(c, MapRegular, t)
		cm.addPropertyMap(systemMap(schema.SystemECInstanceId, t.addColumn(m, "Id", ColumnInteger, ColumnECInstanceId), 0))
		cm.addPropertyMap(systemMap(schema.SystemECClassId, t.addColumn(m, "ECClassId", ColumnInteger, ColumnECClassId), 0))
		if err := m.addDataProperties(cm, c.Properties(true)); err != nil {
			return err
		}
		m.register(cm)

	case c.IsAbstract():
		// Only the subclasses have tables.
		m.register(newClassMap(c, MapRegular, nil))

	default:
		t := m.newTable(c, TablePrimary)
		cm := newClassMap(c, MapRegular, t)
		cm.addPropertyMap(systemMap(schema.SystemECInstanceId, t.addColumn(m, "Id", ColumnInteger, ColumnECInstanceId), 0))
		cm.addPropertyMap(systemMap(schema.SystemECClassId, nil, c.ID))
		if err := m.addDataProperties(cm, c.Properties(true)); err != nil {
			return err
		}
		m.register(cm)
	}
	return nil
}

func (m *Maps) addDataProperties(cm *ClassMap, props []*schema.Property) error {
	for _, p := range props {
		pm, err := m.newPropertyMap(cm.Table, p, p.Name, p.Name)
		if err != nil {
			return err
		}
		cm.addPropertyMap(pm)
	}
	return nil
}

func columnType(t schema.PrimitiveType) ColumnType {
	switch t {
	case schema.PrimitiveBinary, schema.PrimitiveGeometry, schema.PrimitiveGuid:
		return ColumnBlob
	case schema.PrimitiveBoolean, schema.PrimitiveInteger, schema.PrimitiveLong:
		return ColumnInteger
	case schema.PrimitiveDouble, schema.PrimitiveDateTime:
		return ColumnReal
	case schema.PrimitiveString:
		return ColumnText
	}
	return ColumnAny
}

func (m *Maps) newPropertyMap(t *Table, p *schema.Property, access, colName string) (PropertyMap, error) {
	base := basePropertyMap{prop: p, access: access}
	switch p.Kind {
	case schema.KindPrimitive:
		if p.PrimitiveType.IsPoint() {
			pm := &PointPropertyMap{
				basePropertyMap: base,
				X:               t.addColumn(m, colName+"_X", ColumnReal, ColumnData),
				Y:               t.addColumn(m, colName+"_Y", ColumnReal, ColumnData),
			}
			if p.PrimitiveType == schema.PrimitivePoint3d {
				pm.Z = t.addColumn(m, colName+"_Z", ColumnReal, ColumnData)
			}
			return pm, nil
		}
		return &SingleColumnPropertyMap{basePropertyMap: base, Column: t.addColumn(m, colName, columnType(p.PrimitiveType), ColumnData)}, nil
	case schema.KindPrimitiveArray, schema.KindStructArray:
		return &SingleColumnPropertyMap{basePropertyMap: base, Column: t.addColumn(m, colName, ColumnText, ColumnData)}, nil
	case schema.KindStruct:
		pm := &StructPropertyMap{basePropertyMap: base}
		for _, member := range p.StructClass.Properties(true) {
			if member.IsNavigation() {
				return nil, fmt.Errorf("struct %s cannot have navigation property %s", p.StructClass.FullName(), member.Name)
			}
			mm, err := m.newPropertyMap(t, member, access+"."+member.Name, colName+"_"+member.Name)
			if err != nil {
				return nil, err
			}
			pm.Members = append(pm.Members, mm)
		}
		return pm, nil
	case schema.KindNavigation:
		return &NavigationPropertyMap{
			basePropertyMap: base,
			ID:              t.addColumn(m, colName+"_Id", ColumnInteger, ColumnData),
			RelClassID:      t.addColumn(m, colName+"_RelECClassId", ColumnInteger, ColumnData),
		}, nil
	}
	return nil, fmt.Errorf("internal error: unknown property kind %s", p.Kind)
}

// mapEndTable maps a foreign key relationship onto the tables holding the
// navigation property that references it.
func (m *Maps) mapEndTable(rel *schema.Class) error {
	if len(rel.Properties(true)) > 0 {
		return fmt.Errorf("foreign key relationship %s cannot have properties", rel.FullName())
	}
	var nav *schema.Property
	for _, c := range m.reg.Classes() {
		for _, p := range c.Properties(false) {
			if p.IsNavigation() && p.Relationship == rel {
				nav = p
			}
		}
	}
	if nav == nil {
		return fmt.Errorf("foreign key relationship %s is not referenced by any navigation property", rel.FullName())
	}

	var partitions []*HorizontalPartition
	for _, c := range m.reg.Classes() {
		cm := m.classMaps[c.ID]
		if cm == nil || cm.Table == nil || !c.IsEntity() {
			continue
		}
		pm, ok := cm.PropertyMap(nav.Name)
		if !ok || pm.Property() != nav {
			continue
		}
		if lo.ContainsBy(partitions, func(p *HorizontalPartition) bool { return p.Table == cm.Table }) {
			continue
		}
		navMap := pm.(*NavigationPropertyMap)
		end := newClassMap(rel, MapRelationshipEndTable, cm.Table)
		end.otherEnd = navMap
		thisID := systemMap(schema.SystemECInstanceId, cm.Table.IDColumn(), 0)
		thisClass := systemMap(schema.SystemECClassId, cm.Table.ClassIDColumn(), c.ID)
		var other *schema.Class
		if nav.Direction == schema.Forward {
			other = rel.Target.Classes[0]
		} else {
			other = rel.Source.Classes[0]
		}
		otherID := &SingleColumnPropertyMap{Column: navMap.ID}
		otherClass := systemMap(schema.SystemECClassId, nil, other.ID)

		end.addPropertyMap(systemMap(schema.SystemECInstanceId, cm.Table.IDColumn(), 0))
		end.addPropertyMap(systemMap(schema.SystemECClassId, navMap.RelClassID, 0))
		source, sourceClass, target, targetClass := thisID.Column, thisClass, otherID.Column, otherClass
		if nav.Direction == schema.Backward {
			source, sourceClass, target, targetClass = otherID.Column, otherClass, thisID.Column, thisClass
		}
		end.addPropertyMap(systemMap(schema.SystemSourceECInstanceId, source, 0))
		end.addPropertyMap(systemMap(schema.SystemSourceECClassId, sourceClass.Column, sourceClass.ClassID))
		end.addPropertyMap(systemMap(schema.SystemTargetECInstanceId, target, 0))
		end.addPropertyMap(systemMap(schema.SystemTargetECClassId, targetClass.Column, targetClass.ClassID))
		partitions = append(partitions, &HorizontalPartition{
			Table:    cm.Table,
			ClassIDs: []schema.ClassID{rel.ID},
			ClassMap: end,
		})
	}
	if len(partitions) == 0 {
		return fmt.Errorf("navigation property %s is not mapped to a table", nav.FullName())
	}
	cm := partitions[0].ClassMap
	cm.storage = &StorageDescription{Polymorphic: partitions, NonPolymorphic: partitions[0]}
	m.classMaps[rel.ID] = cm
	return nil
}

func (m *Maps) storageFor(cm *ClassMap) *StorageDescription {
	sd := &StorageDescription{}
	if !cm.IsMapped() {
		return sd
	}
	set := append([]*schema.Class{cm.Class}, m.reg.AllDerivedClasses(cm.Class)...)
	byTable := map[*Table]*HorizontalPartition{}
	for _, c := range set {
		dm := m.classMaps[c.ID]
		if dm == nil || dm.Table == nil || dm.Type != cm.Type {
			continue
		}
		p, ok := byTable[dm.Table]
		if !ok {
			p = &HorizontalPartition{Table: dm.Table, ClassMap: dm}
			byTable[dm.Table] = p
			sd.Polymorphic = append(sd.Polymorphic, p)
		}
		p.ClassIDs = append(p.ClassIDs, c.ID)
	}
	for _, p := range sd.Polymorphic {
		p.NeedsClassIDFilter = len(m.tableClasses[p.Table]) != len(p.ClassIDs)
	}
	if cm.Table != nil {
		sd.NonPolymorphic = &HorizontalPartition{
			Table:              cm.Table,
			ClassIDs:           []schema.ClassID{cm.Class.ID},
			NeedsClassIDFilter: len(m.tableClasses[cm.Table]) > 1,
			ClassMap:           cm,
		}
	}
	return sd
}
