// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package reader

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/canonical/ecsql/internal/dbmap"
	"github.com/canonical/ecsql/internal/field"
	"github.com/canonical/ecsql/internal/issue"
	"github.com/canonical/ecsql/internal/prepare"
	"github.com/canonical/ecsql/internal/schema"
)

// Property is a property of a Class together with the view its field reads
// from.
type Property struct {
	View  *TableView
	Field field.Field
}

// Class holds the fields reading the instances of one class, in property
// map order, system properties first.
type Class struct {
	Map        *dbmap.ClassMap
	Properties []*Property
	// views are the tables the class touches. The first holds the row
	// the instance id refers to.
	views []*TableView
	// byAccess caches the properties built for single property seeks.
	byAccess map[string]*Property
}

// constRow is a one column row. It serves class ids that are not stored
// in a column.
type constRow struct {
	value any
}

func (r constRow) ColumnCount() int {
	return 1
}

func (r constRow) ColumnValue(int) any {
	return r.value
}

// newClass builds the fields of cm. view returns the view of a table,
// building it if need be.
func newClass(issues *issue.Reporter, cm *dbmap.ClassMap, view func(*dbmap.Table) *TableView) (*Class, error) {
	if cm.Table == nil || !cm.IsMapped() {
		return nil, errors.Wrapf(ErrNotReadable, "%s is %s without a table", cm.Class.FullName(), cm.Type)
	}
	c := &Class{
		Map:      cm,
		views:    []*TableView{view(cm.Table)},
		byAccess: map[string]*Property{},
	}
	for _, pm := range cm.PropertyMaps() {
		p, err := c.newProperty(issues, pm, view)
		if err != nil {
			return nil, err
		}
		c.Properties = append(c.Properties, p)
	}
	return c, nil
}

// newProperty builds the field of pm. The columns of a property are
// consecutive in the rows of its table view.
func (c *Class) newProperty(issues *issue.Reporter, pm dbmap.PropertyMap, view func(*dbmap.Table) *TableView) (*Property, error) {
	props, err := propertyPath(c.Map.Class, pm.AccessString())
	if err != nil {
		return nil, err
	}
	prop := props[len(props)-1]
	root := field.RootClass{Class: c.Map.Class, TableSpace: "main"}
	info := field.NewPropertyColumnInfo(issues, prop, field.NewPropertyPath(props...), root, field.Flags{System: schema.IsSystemProperty(props[0])})

	cols := pm.Columns()
	if len(cols) == 0 {
		sm, ok := pm.(*dbmap.SystemPropertyMap)
		if !ok {
			return nil, errors.Errorf("internal error: property %s of %s has no columns", pm.AccessString(), c.Map.Class.FullName())
		}
		f, _, err := prepare.BuildField(issues, info, constRow{value: int64(sm.ClassID)}, 0)
		if err != nil {
			return nil, err
		}
		return &Property{View: c.views[0], Field: f}, nil
	}

	v := view(cols[0].Table())
	start, ok := v.ColumnIndex(cols[0])
	if !ok {
		return nil, errors.Errorf("internal error: column %s not in view of %s", cols[0].Name, v.table.Name)
	}
	for i, col := range cols {
		if idx, ok := v.ColumnIndex(col); !ok || idx != start+i {
			return nil, errors.Errorf("internal error: columns of %s are not consecutive in %s", pm.AccessString(), v.table.Name)
		}
	}
	f, _, err := prepare.BuildField(issues, info, v, start)
	if err != nil {
		return nil, err
	}
	if !containsView(c.views, v) {
		c.views = append(c.views, v)
	}
	return &Property{View: v, Field: f}, nil
}

func containsView(views []*TableView, v *TableView) bool {
	for _, w := range views {
		if w == v {
			return true
		}
	}
	return false
}

// property returns the property with the given access string, building it
// on first use. It returns nil if the class has no such property.
func (c *Class) property(issues *issue.Reporter, access string, view func(*dbmap.Table) *TableView) (*Property, bool, error) {
	key := strings.ToLower(access)
	if p, ok := c.byAccess[key]; ok {
		return p, false, nil
	}
	pm, ok := c.Map.PropertyMap(access)
	if !ok {
		return nil, false, nil
	}
	p, err := c.newProperty(issues, pm, view)
	if err != nil {
		return nil, false, err
	}
	c.byAccess[key] = p
	return p, true, nil
}

// propertyPath resolves a dot separated access string to the properties it
// goes through.
func propertyPath(c *schema.Class, access string) ([]*schema.Property, error) {
	names := strings.Split(access, ".")
	first, ok := schema.ClassSystemProperty(c, names[0])
	if !ok {
		if first, ok = c.Property(names[0]); !ok {
			return nil, errors.Errorf("internal error: %s has no property %s", c.FullName(), names[0])
		}
	}
	props := []*schema.Property{first}
	for _, name := range names[1:] {
		parent := props[len(props)-1]
		var member *schema.Property
		if parent.IsStruct() {
			member, ok = parent.StructClass.Property(name)
		} else {
			member, ok = schema.MemberSystemProperty(parent, name)
		}
		if !ok {
			return nil, errors.Errorf("internal error: %s has no member %s", parent.FullName(), name)
		}
		props = append(props, member)
	}
	return props, nil
}
