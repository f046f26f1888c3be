// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package testschema builds the schema used throughout the tests.
package testschema

import (
	"github.com/canonical/ecsql/internal/schema"
)

// Name and Alias of the test schema.
const (
	Name  = "TestSchema"
	Alias = "ts"
)

// New returns a fresh copy of the test schema. Every call returns new class
// objects so tests can register it in separate registries.
//
//	Widget           own table, every kind of property
//	Owner, Gadget    Gadget.Owner navigates OwnerOwnsGadgets (foreign key)
//	Element          abstract, table per hierarchy
//	  PhysicalElement
//	    Light
//	Vehicle          own table
//	  Car            own table, so Vehicle spans two tables
//	Shape            abstract without a table
//	  Circle, Square
//	WidgetRefersToWidget  link table relationship with a property
//	Reading          struct in a secondary table
func New() *schema.Schema {
	s := schema.NewSchema(Name, Alias)

	address := s.AddStructClass("Address")
	address.AddPrimitive("Street", schema.PrimitiveString)
	address.AddPrimitive("Zip", schema.PrimitiveInteger)
	address.AddPrimitive("Position", schema.PrimitivePoint2d)

	widget := s.AddEntityClass("Widget")
	widget.AddPrimitive("MyID", schema.PrimitiveString)
	widget.AddPrimitive("Location", schema.PrimitivePoint2d)
	widget.AddPrimitive("Origin", schema.PrimitivePoint3d)
	widget.AddPrimitive("Created", schema.PrimitiveDateTime).
		SetCustomAttribute(schema.DateTimeInfoCA, map[string]any{"DateTimeKind": "Utc"})
	widget.AddPrimitive("Weight", schema.PrimitiveDouble)
	widget.AddPrimitive("Count", schema.PrimitiveInteger)
	widget.AddPrimitive("Active", schema.PrimitiveBoolean)
	widget.AddPrimitive("Token", schema.PrimitiveGuid)
	widget.AddPrimitive("Data", schema.PrimitiveBinary)
	widget.AddStruct("Home", address)
	widget.AddPrimitiveArray("Tags", schema.PrimitiveString)
	widget.AddStructArray("Addresses", address)
	widget.AddPrimitive("Props", schema.PrimitiveString).ExtendedType = "Json"

	owner := s.AddEntityClass("Owner")
	owner.AddPrimitive("Name", schema.PrimitiveString)
	gadget := s.AddEntityClass("Gadget")
	gadget.AddPrimitive("Name", schema.PrimitiveString)
	ownsGadgets := s.AddRelationshipClass("OwnerOwnsGadgets", schema.MapForeignKey, owner, gadget)
	gadget.AddNavigation("Owner", ownsGadgets, schema.Backward)

	element := s.AddEntityClass("Element", schema.Abstract(), schema.WithStrategy(schema.MapTablePerHierarchy))
	element.AddPrimitive("Code", schema.PrimitiveString)
	physical := s.AddEntityClass("PhysicalElement", schema.WithBase(element))
	physical.AddPrimitive("Mass", schema.PrimitiveDouble)
	light := s.AddEntityClass("Light", schema.WithBase(physical))
	light.AddPrimitive("Watts", schema.PrimitiveInteger)

	vehicle := s.AddEntityClass("Vehicle")
	vehicle.AddPrimitive("Wheels", schema.PrimitiveInteger)
	car := s.AddEntityClass("Car", schema.WithBase(vehicle))
	car.AddPrimitive("Doors", schema.PrimitiveInteger)

	shape := s.AddEntityClass("Shape", schema.Abstract())
	shape.AddPrimitive("Color", schema.PrimitiveString)
	circle := s.AddEntityClass("Circle", schema.WithBase(shape))
	circle.AddPrimitive("Radius", schema.PrimitiveDouble)
	square := s.AddEntityClass("Square", schema.WithBase(shape))
	square.AddPrimitive("Side", schema.PrimitiveDouble)

	refers := s.AddRelationshipClass("WidgetRefersToWidget", schema.MapLinkTable, widget, widget)
	refers.AddPrimitive("Note", schema.PrimitiveString)

	reading := s.AddStructClass("Reading", schema.WithStrategy(schema.MapSecondaryTable))
	reading.AddPrimitive("Value", schema.PrimitiveDouble)

	return s
}

// Registry returns a registry holding a fresh test schema.
func Registry() *schema.Registry {
	reg := schema.NewRegistry()
	if err := reg.Add(New()); err != nil {
		panic(err)
	}
	return reg
}

// Class returns the test schema class called name from reg.
func Class(reg *schema.Registry, name string) *schema.Class {
	c, ok := reg.FindClass(Name, name)
	if !ok {
		panic("no test class " + name)
	}
	return c
}
