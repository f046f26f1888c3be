// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr_test

import (
	"regexp"

	. "gopkg.in/check.v1"

	"github.com/canonical/ecsql/internal/expr"
	"github.com/canonical/ecsql/internal/schema"
	"github.com/canonical/ecsql/internal/testschema"
)

type ResolveSuite struct {
	reg *schema.Registry
}

var _ = Suite(&ResolveSuite{})

func (s *ResolveSuite) SetUpTest(c *C) {
	s.reg = testschema.Registry()
}

func (s *ResolveSuite) resolve(c *C, ecsql string) expr.Statement {
	stmt, err := expr.NewParser().Parse(ecsql)
	c.Assert(err, IsNil)
	c.Assert(expr.Resolve(s.reg, stmt), IsNil)
	return stmt
}

func itemNames(stmt expr.Statement) []string {
	var names []string
	for _, item := range stmt.(*expr.SelectStatement).Items {
		names = append(names, item.ColumnName())
	}
	return names
}

func (s *ResolveSuite) TestExpandStar(c *C) {
	stmt := s.resolve(c, "SELECT * FROM Widget")
	c.Assert(itemNames(stmt), DeepEquals, []string{
		"ECInstanceId", "ECClassId", "MyID", "Location", "Origin", "Created", "Weight",
		"Count", "Active", "Token", "Data", "Home", "Tags", "Addresses", "Props",
	})

	stmt = s.resolve(c, "SELECT * FROM ts.WidgetRefersToWidget")
	c.Assert(itemNames(stmt), DeepEquals, []string{
		"ECInstanceId", "ECClassId", "SourceECInstanceId", "SourceECClassId",
		"TargetECInstanceId", "TargetECClassId", "Note",
	})

	stmt = s.resolve(c, "SELECT * FROM Light")
	c.Assert(itemNames(stmt), DeepEquals, []string{"ECInstanceId", "ECClassId", "Code", "Mass", "Watts"})
}

func (s *ResolveSuite) TestPropertyPaths(c *C) {
	tests := []struct {
		ecsql        string
		accessString string
		typeInfo     string
	}{
		{"SELECT w.Location.X FROM Widget w", "Location.X", "double"},
		{"SELECT Widget.Home.Zip FROM ts.Widget", "Home.Zip", "int"},
		{"SELECT Home FROM Widget", "Home", "TestSchema.Address"},
		{"SELECT Addresses FROM Widget", "Addresses", "TestSchema.Address[]"},
		{"SELECT Tags FROM Widget", "Tags", "string[]"},
		{"SELECT g.Owner FROM Gadget g", "Owner", "navigation TestSchema.OwnerOwnsGadgets"},
		{"SELECT g.Owner.RelECClassId FROM Gadget g", "Owner.RelECClassId", "long"},
		{"SELECT ecinstanceid FROM Widget", "ECInstanceId", "long"},
		{"SELECT SourceECClassId FROM WidgetRefersToWidget", "SourceECClassId", "long"},
	}
	for _, t := range tests {
		stmt := s.resolve(c, t.ecsql)
		pe, ok := stmt.(*expr.SelectStatement).Items[0].Exp.(*expr.PropertyExp)
		c.Assert(ok, Equals, true)
		c.Check(pe.AccessString(), Equals, t.accessString, Commentf("ecsql: %s", t.ecsql))
		c.Check(pe.TypeInfo().String(), Equals, t.typeInfo, Commentf("ecsql: %s", t.ecsql))
	}
}

func (s *ResolveSuite) TestParameters(c *C) {
	stmt := s.resolve(c, "SELECT MyID FROM Widget WHERE Count = :n OR Weight > ? OR (:N) < Count LIMIT ?")

	var params []*expr.ParameterExp
	expr.Walk(stmt, func(e expr.Exp) {
		if p, ok := e.(*expr.ParameterExp); ok {
			params = append(params, p)
		}
	})
	c.Assert(params, HasLen, 4)
	c.Assert(expr.NumParameters(stmt), Equals, 3)

	indexes := []int{1, 2, 1, 3}
	types := []string{"int", "double", "int", "long"}
	for i, p := range params {
		c.Check(p.Index, Equals, indexes[i])
		c.Check(p.Type.String(), Equals, types[i])
	}
	c.Assert(params[0].Target.Name, Equals, "Count")
}

func (s *ResolveSuite) TestWriteTargets(c *C) {
	stmt := s.resolve(c, "INSERT INTO Gadget (Name, Owner) VALUES (?, ?)")
	ins := stmt.(*expr.InsertStatement)
	nav := ins.Values[1].(*expr.ParameterExp)
	c.Assert(nav.Type.Kind, Equals, expr.TypeNavigation)
	c.Assert(nav.Target.Name, Equals, "Owner")

	stmt = s.resolve(c, "UPDATE Widget SET Location = ?, Count = Count + 1 WHERE ECInstanceId = ?")
	upd := stmt.(*expr.UpdateStatement)
	c.Assert(upd.Set[0].Value.TypeInfo().String(), Equals, "point2d")
	c.Assert(expr.NumParameters(stmt), Equals, 2)
}

func (s *ResolveSuite) TestOrderByAlias(c *C) {
	stmt := s.resolve(c, "SELECT Count AS c, MyID FROM Widget ORDER BY c, MyID")
	sel := stmt.(*expr.SelectStatement)
	c.Assert(sel.OrderBy[0].SelectItem, Equals, sel.Items[0])
	c.Assert(sel.OrderBy[1].SelectItem, IsNil)
	c.Assert(sel.OrderBy[1].Exp.(*expr.PropertyExp).Property().Name, Equals, "MyID")
}

func (s *ResolveSuite) TestResolveErrors(c *C) {
	tests := []struct {
		ecsql string
		err   string
	}{{
		ecsql: "SELECT Nope FROM Widget",
		err:   "cannot resolve statement: property Nope not found in class TestSchema.Widget",
	}, {
		ecsql: "SELECT MyID FROM Nope",
		err:   "cannot resolve statement: class Nope not found",
	}, {
		ecsql: "SELECT MyID FROM xx.Widget",
		err:   "cannot resolve statement: class xx.Widget not found",
	}, {
		ecsql: "SELECT Home.Nope FROM Widget",
		err:   "cannot resolve statement: Home has no member Nope",
	}, {
		ecsql: "SELECT Addresses.Zip FROM Widget",
		err:   "cannot resolve statement: Addresses has no member Zip",
	}, {
		ecsql: "SELECT EXTRACT(Count, '$.a') FROM Widget",
		err:   "cannot resolve statement: cannot EXTRACT from Count: not a string property",
	}, {
		ecsql: "UPDATE Widget SET ECClassId = 1",
		err:   "cannot resolve statement: cannot write ECClassId",
	}}
	for _, t := range tests {
		stmt, err := expr.NewParser().Parse(t.ecsql)
		c.Assert(err, IsNil)
		err = expr.Resolve(s.reg, stmt)
		c.Check(err, ErrorMatches, regexp.QuoteMeta(t.err), Commentf("ecsql: %s", t.ecsql))
	}
}

func (s *ResolveSuite) TestAmbiguousClass(c *C) {
	other := schema.NewSchema("Other", "o")
	other.AddEntityClass("Widget")
	c.Assert(s.reg.Add(other), IsNil)

	stmt, err := expr.NewParser().Parse("SELECT ECInstanceId FROM Widget")
	c.Assert(err, IsNil)
	err = expr.Resolve(s.reg, stmt)
	c.Assert(err, ErrorMatches, "cannot resolve statement: class name Widget is ambiguous: TestSchema.Widget, Other.Widget")

	stmt, err = expr.NewParser().Parse("SELECT ECInstanceId FROM o.Widget")
	c.Assert(err, IsNil)
	c.Assert(expr.Resolve(s.reg, stmt), IsNil)
	c.Assert(stmt.Class().Resolved.Schema().Name, Equals, "Other")
}
