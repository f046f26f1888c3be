// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package prepare_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/ecsql/internal/dbmap"
	"github.com/canonical/ecsql/internal/expr"
	"github.com/canonical/ecsql/internal/field"
	"github.com/canonical/ecsql/internal/issue"
	"github.com/canonical/ecsql/internal/prepare"
	"github.com/canonical/ecsql/internal/schema"
	"github.com/canonical/ecsql/internal/testschema"
)

type row []any

func (r row) ColumnCount() int {
	return len(r)
}

func (r row) ColumnValue(i int) any {
	return r[i]
}

// fixture prepares statements against the test schema.
type fixture struct {
	reg    *schema.Registry
	maps   *dbmap.Maps
	issues *issue.Reporter
	msgs   *[]string
	ctx    *prepare.Context
}

func newFixture(t *testing.T, policy prepare.Policy, r row) *fixture {
	reg := testschema.Registry()
	maps, err := dbmap.Map(reg)
	require.NoError(t, err)
	issues := issue.Nop()
	var msgs []string
	issues.AddListener(func(msg string) { msgs = append(msgs, msg) })
	return &fixture{
		reg:    reg,
		maps:   maps,
		issues: issues,
		msgs:   &msgs,
		ctx:    prepare.NewContext(maps, issues, prepare.NewSystemColumnPreparers(), r, policy),
	}
}

func (f *fixture) prepare(t *testing.T, ecsql string) (*prepare.Prepared, error) {
	stmt, err := expr.NewParser().Parse(ecsql)
	require.NoError(t, err)
	require.NoError(t, expr.Resolve(f.reg, stmt))
	return prepare.Prepare(f.ctx, stmt)
}

func (f *fixture) mustPrepare(t *testing.T, ecsql string) *prepare.Prepared {
	p, err := f.prepare(t, ecsql)
	require.NoError(t, err, ecsql)
	return p
}

func (f *fixture) classID(name string) schema.ClassID {
	return testschema.Class(f.reg, name).ID
}

func TestSelectPrimitiveAndPoint(t *testing.T) {
	f := newFixture(t, prepare.Policy{}, row{"W1", 3.0, 4.0})
	p := f.mustPrepare(t, "SELECT MyID, Location FROM Widget")

	assert.Equal(t, "SELECT [ts_Widget].[MyID], [ts_Widget].[Location_X], [ts_Widget].[Location_Y] FROM [ts_Widget]", p.NativeSQL)
	require.Len(t, p.Fields, 2)
	assert.Equal(t, []int{0}, p.Fields[0].Columns())
	assert.Equal(t, []int{1, 2}, p.Fields[1].Columns())
	assert.Equal(t, "W1", p.Fields[0].Text())
	assert.Equal(t, field.Point2d{X: 3, Y: 4}, p.Fields[1].Point2d())
	assert.Equal(t, 0, p.NumNativeParams)
	assert.Empty(t, p.Args())
}

func TestFieldColumnCounts(t *testing.T) {
	f := newFixture(t, prepare.Policy{}, row{})
	p := f.mustPrepare(t, "SELECT MyID, Location, Origin, Home, Tags, Addresses, Created FROM Widget")

	expected := [][]int{
		{0},
		{1, 2},
		{3, 4, 5},
		// Street, Zip, Position.X, Position.Y
		{6, 7, 8, 9},
		{10},
		{11},
		{12},
	}
	require.Len(t, p.Fields, len(expected))
	for i, cols := range expected {
		assert.Equal(t, cols, p.Fields[i].Columns(), "field %d", i)
	}

	g := f.mustPrepare(t, "SELECT Name, Owner FROM Gadget")
	require.Len(t, g.Fields, 2)
	assert.Equal(t, []int{1, 2}, g.Fields[1].Columns())
	children := g.Fields[1].Children()
	require.Len(t, children, 2)
	assert.Equal(t, schema.NavigationId, children[0].ColumnInfo().Name())
	assert.Equal(t, schema.NavigationRelECClassId, children[1].ColumnInfo().Name())
	assert.Equal(t, "SELECT [ts_Gadget].[Name], [ts_Gadget].[Owner_Id], [ts_Gadget].[Owner_RelECClassId] FROM [ts_Gadget]", g.NativeSQL)
}

func TestStructMemberOrderAndIdempotence(t *testing.T) {
	f := newFixture(t, prepare.Policy{}, row{})
	p := f.mustPrepare(t, "SELECT Home FROM Widget")
	home := p.Fields[0]

	names := []string{}
	for _, c := range home.Children() {
		names = append(names, c.ColumnInfo().Name())
	}
	assert.Equal(t, []string{"Street", "Zip", "Position"}, names)

	again, next, err := prepare.BuildField(f.issues, home.ColumnInfo(), row{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, next)
	require.Len(t, again.Children(), 3)
	for i, c := range again.Children() {
		assert.True(t, c.ColumnInfo().Equal(home.Children()[i].ColumnInfo()), "member %d", i)
	}
}

func TestAliasedItemsGetGeneratedProperties(t *testing.T) {
	f := newFixture(t, prepare.Policy{}, row{})
	p := f.mustPrepare(t, "SELECT Location AS Loc, ECInstanceId AS Id, Count + 1 AS Bumped, EXTRACT(Props, 'color') FROM Widget")

	loc := p.Fields[0].ColumnInfo()
	assert.Equal(t, "Loc", loc.Name())
	assert.True(t, loc.IsGenerated())
	assert.Equal(t, schema.PrimitivePoint2d, loc.DataType().Primitive)
	assert.Equal(t, []int{0, 1}, p.Fields[0].Columns())

	id := p.Fields[1].ColumnInfo()
	assert.True(t, id.IsGenerated())
	assert.True(t, id.IsSystem())

	next := p.Fields[2].ColumnInfo()
	assert.True(t, next.IsGenerated())
	assert.Equal(t, schema.PrimitiveLong, next.DataType().Primitive)

	extract := p.Fields[3].ColumnInfo()
	assert.True(t, extract.IsDynamic())
	assert.Equal(t, schema.PrimitiveString, extract.DataType().Primitive)
}

func TestExtractAnchorsAreBackfilled(t *testing.T) {
	f := newFixture(t, prepare.Policy{}, row{})
	p := f.mustPrepare(t, "SELECT EXTRACT(Props, 'color') FROM Widget WHERE Count = ?")

	assert.Equal(t, "SELECT json_extract([ts_Widget].[Props], ?2) FROM [ts_Widget] WHERE [ts_Widget].[Count] = ?1", p.NativeSQL)
	assert.Equal(t, 2, p.NumNativeParams)
	require.NoError(t, p.Binder(1).BindInt(5))
	assert.Equal(t, []any{int64(5), "$.color"}, p.Args())
}

func TestRegularPolymorphicSelectBecomesUnion(t *testing.T) {
	f := newFixture(t, prepare.Policy{}, row{})
	p := f.mustPrepare(t, "SELECT Wheels FROM Vehicle ORDER BY Wheels DESC")
	assert.Equal(t, "SELECT [ts_Vehicle].[Wheels] FROM [ts_Vehicle] UNION ALL SELECT [ts_Car].[Wheels] FROM [ts_Car] ORDER BY 1 DESC", p.NativeSQL)

	_, err := f.prepare(t, "SELECT Wheels FROM Vehicle ORDER BY ECInstanceId")
	assert.True(t, errors.Is(err, prepare.ErrInvalidECSql), "%v", err)

	p = f.mustPrepare(t, "SELECT Wheels FROM ONLY Vehicle ORDER BY ECInstanceId")
	assert.Equal(t, "SELECT [ts_Vehicle].[Wheels] FROM [ts_Vehicle] ORDER BY [ts_Vehicle].[Id]", p.NativeSQL)
}

func TestPolymorphicWriteAcrossTablesIsInvalid(t *testing.T) {
	f := newFixture(t, prepare.Policy{}, row{})
	for _, ecsql := range []string{
		"DELETE FROM Vehicle",
		"UPDATE Vehicle SET Wheels = 4",
	} {
		_, err := f.prepare(t, ecsql)
		assert.True(t, errors.Is(err, prepare.ErrInvalidECSql), "%s: %v", ecsql, err)
	}

	p := f.mustPrepare(t, "DELETE FROM ONLY Vehicle WHERE Wheels > 2")
	assert.Equal(t, "DELETE FROM [ts_Vehicle] WHERE [ts_Vehicle].[Wheels] > 2", p.NativeSQL)
}

func TestDiscriminatorFilters(t *testing.T) {
	f := newFixture(t, prepare.Policy{}, row{})

	p := f.mustPrepare(t, "SELECT Code FROM ONLY PhysicalElement")
	assert.Equal(t, fmt.Sprintf("SELECT [ts_Element].[Code] FROM [ts_Element] WHERE [ts_Element].[ECClassId]=%d", f.classID("PhysicalElement")), p.NativeSQL)

	p = f.mustPrepare(t, "SELECT Code FROM PhysicalElement e WHERE e.Mass > 1")
	assert.Equal(t, fmt.Sprintf("SELECT [e].[Code] FROM [ts_Element] AS [e] WHERE ([e].[Mass] > 1) AND ([e].[ECClassId] IN (%d,%d))",
		f.classID("PhysicalElement"), f.classID("Light")), p.NativeSQL)

	p = f.mustPrepare(t, "SELECT Code FROM Element")
	assert.Equal(t, "SELECT [ts_Element].[Code] FROM [ts_Element]", p.NativeSQL)

	p = f.mustPrepare(t, "DELETE FROM ONLY Light")
	assert.Equal(t, fmt.Sprintf("DELETE FROM [ts_Element] WHERE [ts_Element].[ECClassId]=%d", f.classID("Light")), p.NativeSQL)
}

func TestEndTableRelationship(t *testing.T) {
	f := newFixture(t, prepare.Policy{}, row{})
	relID := f.classID("OwnerOwnsGadgets")

	p := f.mustPrepare(t, "SELECT ECInstanceId, SourceECInstanceId, TargetECInstanceId, ECClassId FROM OwnerOwnsGadgets")
	assert.Equal(t, "SELECT [ts_Gadget].[Id], [ts_Gadget].[Owner_Id], [ts_Gadget].[Id], [ts_Gadget].[Owner_RelECClassId] FROM [ts_Gadget] WHERE [ts_Gadget].[Owner_Id] IS NOT NULL", p.NativeSQL)

	p = f.mustPrepare(t, "INSERT INTO OwnerOwnsGadgets (SourceECInstanceId, TargetECInstanceId) VALUES (?, ?)")
	assert.Equal(t, fmt.Sprintf("UPDATE [ts_Gadget] SET [Owner_Id]=?1, [Owner_RelECClassId]=%d WHERE [Id]=?2", relID), p.NativeSQL)
	assert.False(t, p.InsertsRow)

	p = f.mustPrepare(t, "DELETE FROM OwnerOwnsGadgets WHERE TargetECInstanceId = ?")
	assert.Equal(t, "UPDATE [ts_Gadget] SET [Owner_Id]=NULL, [Owner_RelECClassId]=NULL WHERE ([ts_Gadget].[Id] = ?1) AND ([ts_Gadget].[Owner_Id] IS NOT NULL)", p.NativeSQL)
}

func TestSecondaryTableFilter(t *testing.T) {
	f := newFixture(t, prepare.Policy{}, row{})
	p := f.mustPrepare(t, "SELECT Value FROM Reading")
	assert.Equal(t, "SELECT [ts_Reading].[Value] FROM [ts_Reading] WHERE ([ts_Reading].[ECPropertyPathId] IS NOT NULL) AND ([ts_Reading].[ECArrayIndex] IS NULL)", p.NativeSQL)

	p = f.mustPrepare(t, "INSERT INTO Reading (Value) VALUES (?)")
	assert.Equal(t, "INSERT INTO [ts_Reading] ([Value], [ECPropertyPathId], [Id]) VALUES (?1, 0, "+dbmap.NextInstanceIDSQL+")", p.NativeSQL)
}

func TestVirtualClassWithoutPartitions(t *testing.T) {
	f := newFixture(t, prepare.Policy{}, row{})
	p := f.mustPrepare(t, "SELECT Color FROM Shape")
	assert.Equal(t, "SELECT [ts_Circle].[Color] FROM [ts_Circle] UNION ALL SELECT [ts_Square].[Color] FROM [ts_Square]", p.NativeSQL)

	p = f.mustPrepare(t, "SELECT Color, Radius FROM ONLY Circle")
	assert.Equal(t, "SELECT [ts_Circle].[Color], [ts_Circle].[Radius] FROM [ts_Circle]", p.NativeSQL)

	p = f.mustPrepare(t, "SELECT Color FROM ONLY Shape")
	assert.Equal(t, "SELECT NULL WHERE 0", p.NativeSQL)
}

func TestInsertFillsSystemColumns(t *testing.T) {
	f := newFixture(t, prepare.Policy{}, row{})

	p := f.mustPrepare(t, "INSERT INTO Light (Code, Watts) VALUES ('L1', 60)")
	assert.Equal(t, fmt.Sprintf("INSERT INTO [ts_Element] ([Code], [Watts], [ECClassId], [Id]) VALUES ('L1', 60, %d, %s)", f.classID("Light"), dbmap.NextInstanceIDSQL), p.NativeSQL)
	assert.True(t, p.InsertsRow)

	// An explicit id is kept.
	p = f.mustPrepare(t, "INSERT INTO Owner (ECInstanceId, Name) VALUES (7, 'Ann')")
	assert.Equal(t, "INSERT INTO [ts_Owner] ([Id], [Name]) VALUES (7, 'Ann')", p.NativeSQL)
}

func TestInsertLinkTableDefaultsEndClasses(t *testing.T) {
	f := newFixture(t, prepare.Policy{}, row{})
	widget := f.classID("Widget")
	p := f.mustPrepare(t, "INSERT INTO WidgetRefersToWidget (SourceECInstanceId, TargetECInstanceId, Note) VALUES (?, ?, :note)")
	assert.Equal(t, fmt.Sprintf("INSERT INTO [ts_WidgetRefersToWidget] ([SourceId], [TargetId], [Note], [SourceECClassId], [TargetECClassId], [Id]) VALUES (?1, ?2, ?3, %d, %d, %s)", widget, widget, dbmap.NextInstanceIDSQL), p.NativeSQL)
	assert.Equal(t, 3, p.BinderIndex(":note"))
	assert.Equal(t, 3, p.BinderIndex("NOTE"))
	assert.Equal(t, 0, p.BinderIndex("missing"))
}

func TestUpdate(t *testing.T) {
	f := newFixture(t, prepare.Policy{}, row{})
	p := f.mustPrepare(t, "UPDATE Widget SET Location = ?, Count = Count + 1 WHERE ECInstanceId = ?")
	assert.Equal(t, "UPDATE [ts_Widget] SET [Location_X]=?1, [Location_Y]=?2, [Count]=[ts_Widget].[Count] + 1 WHERE [ts_Widget].[Id] = ?3", p.NativeSQL)

	_, err := f.prepare(t, "UPDATE Widget SET ECInstanceId = 1")
	assert.True(t, errors.Is(err, prepare.ErrInvalidECSql), "%v", err)
}

func TestPolicy(t *testing.T) {
	tests := []struct {
		summary string
		policy  prepare.Policy
		ecsql   string
	}{{
		summary: "read-only database",
		policy:  prepare.Policy{ReadOnly: true},
		ecsql:   "DELETE FROM Widget",
	}, {
		summary: "missing write token",
		policy:  prepare.Policy{RequireWriteToken: true},
		ecsql:   "INSERT INTO Widget (MyID) VALUES ('x')",
	}, {
		summary: "abstract class",
		ecsql:   "INSERT INTO Shape (Color) VALUES ('red')",
	}, {
		summary: "abstract class with table",
		ecsql:   "INSERT INTO Element (Code) VALUES ('e')",
	}, {
		summary: "struct class",
		ecsql:   "DELETE FROM Address",
	}, {
		summary: "foreign key relationship update",
		ecsql:   "UPDATE OwnerOwnsGadgets SET TargetECInstanceId = 1",
	}}
	for _, test := range tests {
		f := newFixture(t, test.policy, row{})
		p, err := f.prepare(t, test.ecsql)
		assert.Nil(t, p, test.summary)
		assert.True(t, errors.Is(err, prepare.ErrPolicyDenied), "%s: %v", test.summary, err)
		// The policy is checked before any SQL is generated.
		assert.Equal(t, 0, f.ctx.Preparers.Created(), test.summary)
	}

	f := newFixture(t, prepare.Policy{ReadOnly: true}, row{})
	f.mustPrepare(t, "SELECT MyID FROM Widget")
	f = newFixture(t, prepare.Policy{RequireWriteToken: true, HasValidToken: true}, row{})
	f.mustPrepare(t, "INSERT INTO Widget (MyID) VALUES ('x')")
}

func TestInvalidStatements(t *testing.T) {
	f := newFixture(t, prepare.Policy{}, row{})
	for _, ecsql := range []string{
		"SELECT Location FROM Widget WHERE Location = ?",
		"SELECT Street FROM Address",
		"INSERT INTO Widget (Location) VALUES (1)",
		"SELECT ? + Home FROM Widget",
	} {
		_, err := f.prepare(t, ecsql)
		assert.True(t, errors.Is(err, prepare.ErrInvalidECSql), "%s: %v", ecsql, err)
		assert.Contains(t, err.Error(), "cannot prepare statement")
	}
}

func TestSystemColumnPreparersAreCached(t *testing.T) {
	f := newFixture(t, prepare.Policy{}, row{})
	f.mustPrepare(t, "SELECT MyID FROM Widget")
	f.mustPrepare(t, "SELECT Count FROM Widget")
	f.mustPrepare(t, "SELECT Name FROM Owner")
	assert.Equal(t, 1, f.ctx.Preparers.Created())
	f.mustPrepare(t, "SELECT SourceECInstanceId FROM OwnerOwnsGadgets")
	assert.Equal(t, 2, f.ctx.Preparers.Created())

	f.ctx.Preparers.Clear()
	assert.Equal(t, 0, f.ctx.Preparers.Created())
}

func TestWhereBuilder(t *testing.T) {
	w := &prepare.Where{}
	assert.Equal(t, "", w.Clause())
	w.And("a = 1")
	w.And("")
	assert.Equal(t, " WHERE a = 1", w.Clause())
	w.And("b OR c")
	assert.Equal(t, "(a = 1) AND (b OR c)", w.String())
}

func TestBindInsertValues(t *testing.T) {
	f := newFixture(t, prepare.Policy{}, row{})
	p := f.mustPrepare(t, "INSERT INTO Widget (MyID, Location, Home, Tags) VALUES (?, ?, ?, ?)")
	assert.Equal(t, "INSERT INTO [ts_Widget] ([MyID], [Location_X], [Location_Y], [Home_Street], [Home_Zip], [Home_Position_X], [Home_Position_Y], [Tags], [Id]) VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, "+dbmap.NextInstanceIDSQL+")", p.NativeSQL)
	assert.Equal(t, 4, p.NumParams())
	assert.Equal(t, 8, p.NumNativeParams)

	require.NoError(t, p.Binder(1).BindText("W1"))
	require.NoError(t, p.Binder(2).BindPoint2d(1, 2))
	home := p.Binder(3)
	require.NoError(t, home.StructMember("street").BindText("Main"))
	require.NoError(t, home.StructMember("Zip").BindInt(42))
	require.NoError(t, home.StructMember("Position").BindPoint2d(5, 6))
	tags := p.Binder(4)
	require.NoError(t, tags.AddArrayElement().BindText("a"))
	require.NoError(t, tags.AddArrayElement().BindText("b"))

	assert.Equal(t, []any{"W1", 1.0, 2.0, "Main", int64(42), 5.0, 6.0, `["a","b"]`}, p.Args())

	p.ClearBindings()
	assert.Equal(t, make([]any, 8), p.Args())
}

func TestBindStructArrayElements(t *testing.T) {
	f := newFixture(t, prepare.Policy{}, row{})
	p := f.mustPrepare(t, "UPDATE Widget SET Addresses = ? WHERE ECInstanceId = 1")
	assert.Equal(t, "UPDATE [ts_Widget] SET [Addresses]=?1 WHERE [ts_Widget].[Id] = 1", p.NativeSQL)

	elem := p.Binder(1).AddArrayElement()
	require.NoError(t, elem.StructMember("Street").BindText("Main"))
	require.NoError(t, elem.StructMember("Position").BindPoint2d(1, 2))
	assert.Equal(t, []any{`[{"Position":{"X":1,"Y":2},"Street":"Main"}]`}, p.Args())
}

func TestBindNavigation(t *testing.T) {
	f := newFixture(t, prepare.Policy{}, row{})
	p := f.mustPrepare(t, "UPDATE Gadget SET Owner = ? WHERE ECInstanceId = ?")
	assert.Equal(t, "UPDATE [ts_Gadget] SET [Owner_Id]=?1, [Owner_RelECClassId]=?2 WHERE [ts_Gadget].[Id] = ?3", p.NativeSQL)

	require.NoError(t, p.Binder(1).BindInt64(7))
	require.NoError(t, p.Binder(2).BindInt(9))
	assert.Equal(t, []any{int64(7), int64(f.classID("OwnerOwnsGadgets")), int64(9)}, p.Args())

	require.NoError(t, p.Binder(1).StructMember("RelECClassId").BindInt64(99))
	assert.Equal(t, int64(99), p.Args()[1])

	p = f.mustPrepare(t, "SELECT Name FROM Gadget WHERE Owner = ?")
	assert.Equal(t, "SELECT [ts_Gadget].[Name] FROM [ts_Gadget] WHERE [ts_Gadget].[Owner_Id] = ?1", p.NativeSQL)
	assert.Equal(t, 1, p.NumNativeParams)
}

func TestBindMismatch(t *testing.T) {
	f := newFixture(t, prepare.Policy{}, row{})
	p := f.mustPrepare(t, "INSERT INTO Widget (MyID, Location, Created, Origin) VALUES (?, ?, ?, ?)")
	*f.msgs = nil

	err := p.Binder(2).BindText("x")
	assert.True(t, errors.Is(err, prepare.ErrBindMismatch), "%v", err)
	err = p.Binder(2).BindPoint3d(1, 2, 3)
	assert.True(t, errors.Is(err, prepare.ErrBindMismatch), "%v", err)
	err = p.Binder(1).BindDateTime(time.Now())
	assert.True(t, errors.Is(err, prepare.ErrBindMismatch), "%v", err)
	err = p.Binder(1).BindGuid(uuid.New())
	assert.True(t, errors.Is(err, prepare.ErrBindMismatch), "%v", err)
	assert.Len(t, *f.msgs, 4)

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, p.Binder(3).BindDateTime(created))
	require.NoError(t, p.Binder(4).BindPoint3d(1, 2, 3))
	args := p.Args()
	assert.InDelta(t, 2460311.627835648, args[3], 1e-6)
	assert.Equal(t, []any{1.0, 2.0, 3.0}, args[4:7])
}

func TestBindOutOfRange(t *testing.T) {
	f := newFixture(t, prepare.Policy{}, row{})
	p := f.mustPrepare(t, "SELECT MyID FROM Widget WHERE Count = ?")

	b := p.Binder(2)
	err := b.BindInt(1)
	assert.True(t, errors.Is(err, prepare.ErrBindMismatch), "%v", err)
	assert.Contains(t, err.Error(), "no such parameter")
	assert.NotNil(t, b.StructMember("x"))
	assert.NotNil(t, b.AddArrayElement())
	assert.Equal(t, []any{nil}, p.Args())
}

func TestNamedParametersShareIndex(t *testing.T) {
	f := newFixture(t, prepare.Policy{}, row{})
	p := f.mustPrepare(t, "SELECT MyID FROM Widget WHERE Count > :n AND Weight < :n OR MyID = ?")

	assert.Equal(t, 2, p.NumParams())
	assert.Equal(t, 1, p.BinderIndex(":n"))
	assert.Equal(t, "SELECT [ts_Widget].[MyID] FROM [ts_Widget] WHERE [ts_Widget].[Count] > ?1 AND [ts_Widget].[Weight] < ?1 OR [ts_Widget].[MyID] = ?2", p.NativeSQL)
	require.NoError(t, p.Binder(1).BindInt(3))
	require.NoError(t, p.Binder(2).BindText("W"))
	assert.Equal(t, []any{int64(3), "W"}, p.Args())
}
