// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package schema contains the EC schema object model: schemas, classes and their
properties. Schemas are built in memory with the Add* methods and then
registered in a Registry, which assigns ids and validates references between
classes.
*/
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Schema is a named collection of classes.
type Schema struct {
	Name  string
	Alias string

	classes []*Class
}

// NewSchema returns an empty schema.
func NewSchema(name, alias string) *Schema {
	return &Schema{Name: name, Alias: alias}
}

// Classes returns the classes of the schema in declaration order.
func (s *Schema) Classes() []*Class {
	return s.classes
}

// Class looks up a class of the schema ignoring case.
func (s *Schema) Class(name string) (*Class, bool) {
	for _, c := range s.classes {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return nil, false
}

func (s *Schema) addClass(c *Class, opts []ClassOption) *Class {
	c.schema = s
	for _, o := range opts {
		o(c)
	}
	s.classes = append(s.classes, c)
	return c
}

// AddEntityClass adds an entity class.
func (s *Schema) AddEntityClass(name string, opts ...ClassOption) *Class {
	return s.addClass(&Class{Name: name, Type: ClassEntity}, opts)
}

// AddStructClass adds a struct class.
func (s *Schema) AddStructClass(name string, opts ...ClassOption) *Class {
	return s.addClass(&Class{Name: name, Type: ClassStruct}, opts)
}

// AddRelationshipClass adds a relationship class between source and target.
// The strategy must be MapLinkTable or MapForeignKey.
func (s *Schema) AddRelationshipClass(name string, strategy MapStrategy, source, target *Class, opts ...ClassOption) *Class {
	c := &Class{
		Name:     name,
		Type:     ClassRelationship,
		Strategy: strategy,
		Source:   Constraint{Classes: []*Class{source}},
		Target:   Constraint{Classes: []*Class{target}},
	}
	return s.addClass(c, opts)
}

// Registry holds the schemas known to a connection.
type Registry struct {
	schemas []*Schema
	byID    map[ClassID]*Class
	byName  map[string]*Class
	derived map[ClassID][]*Class

	nextClassID    ClassID
	nextPropertyID PropertyID
}

// firstClassID leaves room below for well known ids.
const firstClassID ClassID = 0x10

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:           map[ClassID]*Class{},
		byName:         map[string]*Class{},
		derived:        map[ClassID][]*Class{},
		nextClassID:    firstClassID,
		nextPropertyID: 1,
	}
}

// Add validates s and assigns ids to its classes and properties.
func (r *Registry) Add(s *Schema) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot add schema %s: %s", s.Name, err)
		}
	}()
	for _, existing := range r.schemas {
		if strings.EqualFold(existing.Name, s.Name) {
			return fmt.Errorf("schema already registered")
		}
	}
	known := func(c *Class) bool {
		return c != nil && (c.schema == s || r.byID[c.ID] == c)
	}
	for _, c := range s.classes {
		for _, b := range c.bases {
			if !known(b) {
				return fmt.Errorf("base class of %s is not known", c.Name)
			}
			if b.Type != c.Type {
				return fmt.Errorf("class %s cannot derive from %s class %s", c.Name, b.Type, b.Name)
			}
		}
		for _, p := range c.props {
			switch p.Kind {
			case KindStruct, KindStructArray:
				if !known(p.StructClass) || !p.StructClass.IsStruct() {
					return fmt.Errorf("property %s.%s must reference a known struct class", c.Name, p.Name)
				}
			case KindNavigation:
				if !known(p.Relationship) || !p.Relationship.IsRelationship() {
					return fmt.Errorf("navigation property %s.%s must reference a known relationship class", c.Name, p.Name)
				}
			case KindPrimitive, KindPrimitiveArray:
				if p.PrimitiveType == PrimitiveUnknown {
					return fmt.Errorf("property %s.%s has no primitive type", c.Name, p.Name)
				}
			}
		}
		if c.IsRelationship() {
			if c.Strategy != MapLinkTable && c.Strategy != MapForeignKey {
				return fmt.Errorf("relationship %s must be mapped to a link table or a foreign key", c.Name)
			}
			if len(c.Source.Classes) == 0 || len(c.Target.Classes) == 0 {
				return fmt.Errorf("relationship %s needs source and target constraints", c.Name)
			}
		}
	}

	for _, c := range s.classes {
		c.ID = r.nextClassID
		r.nextClassID++
		r.byID[c.ID] = c
		r.byName[strings.ToLower(s.Name+"."+c.Name)] = c
		if s.Alias != "" {
			r.byName[strings.ToLower(s.Alias+"."+c.Name)] = c
		}
		for _, b := range c.bases {
			r.derived[b.ID] = append(r.derived[b.ID], c)
		}
		for _, p := range c.props {
			p.ID = r.nextPropertyID
			r.nextPropertyID++
		}
	}
	r.schemas = append(r.schemas, s)
	return nil
}

// Schemas returns the registered schemas.
func (r *Registry) Schemas() []*Schema {
	return r.schemas
}

// ClassByID returns the class with the given id.
func (r *Registry) ClassByID(id ClassID) (*Class, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// ClassByName resolves "Schema.Class", "Schema:Class" or "Alias.Class",
// ignoring case.
func (r *Registry) ClassByName(name string) (*Class, bool) {
	name = strings.ReplaceAll(name, ":", ".")
	c, ok := r.byName[strings.ToLower(name)]
	return c, ok
}

// FindClass resolves a class from its schema name or alias and class name.
func (r *Registry) FindClass(schemaName, className string) (*Class, bool) {
	return r.ClassByName(schemaName + "." + className)
}

// ClassesNamed returns the classes called name in any schema, ignoring case.
func (r *Registry) ClassesNamed(name string) []*Class {
	var found []*Class
	for _, c := range r.Classes() {
		if strings.EqualFold(c.Name, name) {
			found = append(found, c)
		}
	}
	return found
}

// Classes returns all registered classes ordered by id.
func (r *Registry) Classes() []*Class {
	classes := make([]*Class, 0, len(r.byID))
	for _, c := range r.byID {
		classes = append(classes, c)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].ID < classes[j].ID })
	return classes
}

// DerivedClasses returns the classes directly derived from c.
func (r *Registry) DerivedClasses(c *Class) []*Class {
	return r.derived[c.ID]
}

// AllDerivedClasses returns every class deriving from c, directly or not,
// in breadth first order. c itself is not included.
func (r *Registry) AllDerivedClasses(c *Class) []*Class {
	var all []*Class
	seen := map[ClassID]bool{}
	queue := r.derived[c.ID]
	for len(queue) > 0 {
		d := queue[0]
		queue = queue[1:]
		if seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		all = append(all, d)
		queue = append(queue, r.derived[d.ID]...)
	}
	return all
}
