// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package ecsql_test

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	. "gopkg.in/check.v1"

	"github.com/canonical/ecsql"
	"github.com/canonical/ecsql/internal/testschema"
)

type PackageSuite struct{}

var _ = Suite(&PackageSuite{})

// openTestDB returns a DB holding the test schema, with the given
// settings. Issues are collected in *issues.
func openTestDB(c *C, cfg ecsql.Config, issues *[]string) *ecsql.DB {
	sqldb, err := sql.Open("sqlite3", ":memory:")
	c.Assert(err, IsNil)
	db, err := ecsql.NewDB(context.Background(), sqldb, cfg)
	c.Assert(err, IsNil)
	err = db.ImportSchemas(context.Background(), db.WriteToken(), testschema.New())
	c.Assert(err, IsNil)
	if issues != nil {
		db.AddIssueListener(func(msg string) {
			*issues = append(*issues, msg)
		})
	}
	return db
}

func mustExec(c *C, db *ecsql.DB, text string, bind func(*ecsql.Statement)) ecsql.InstanceKey {
	ctx := context.Background()
	stmt, err := db.Prepare(ctx, text, db.WriteToken())
	c.Assert(err, IsNil)
	defer stmt.Finalize()
	if bind != nil {
		bind(stmt)
	}
	ok, err := stmt.Step(ctx)
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, false)
	return stmt.InsertedKey()
}

func columns(v ecsql.Value) []int {
	return v.(interface{ Columns() []int }).Columns()
}

func (s *PackageSuite) TestSelectPrimitiveAndPoint(c *C) {
	db := openTestDB(c, ecsql.DefaultConfig(), nil)
	defer db.Close()
	ctx := context.Background()

	mustExec(c, db, "INSERT INTO Widget (MyID, Location) VALUES (?, ?)", func(stmt *ecsql.Statement) {
		c.Assert(stmt.Binder(1).BindText("W1"), IsNil)
		c.Assert(stmt.Binder(2).BindPoint2d(3.0, 4.0), IsNil)
	})

	stmt, err := db.Prepare(ctx, "SELECT MyID, Location FROM Widget", nil)
	c.Assert(err, IsNil)
	defer stmt.Finalize()
	c.Assert(stmt.ColumnCount(), Equals, 2)

	ok, err := stmt.Step(ctx)
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
	c.Check(columns(stmt.Value(0)), DeepEquals, []int{0})
	c.Check(columns(stmt.Value(1)), DeepEquals, []int{1, 2})
	c.Check(stmt.Value(0).Text(), Equals, "W1")
	c.Check(stmt.Value(1).Point2d(), Equals, ecsql.Point2d{X: 3.0, Y: 4.0})

	ok, err = stmt.Step(ctx)
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, false)
}

func (s *PackageSuite) TestPoint3dRoundTrip(c *C) {
	db := openTestDB(c, ecsql.DefaultConfig(), nil)
	defer db.Close()
	ctx := context.Background()

	key := mustExec(c, db, "INSERT INTO Widget (MyID, Origin) VALUES ('W1', ?)", func(stmt *ecsql.Statement) {
		c.Assert(stmt.Binder(1).BindPoint3d(1.5, -2.25, 0.0), IsNil)
	})

	stmt, err := db.Prepare(ctx, "SELECT Origin, Origin.Y FROM Widget WHERE ECInstanceId = ?", nil)
	c.Assert(err, IsNil)
	defer stmt.Finalize()
	c.Assert(stmt.Binder(1).BindInt64(key.InstanceID), IsNil)
	ok, err := stmt.Step(ctx)
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)

	p := stmt.Value(0).Point3d()
	c.Check(math.Float64bits(p.X), Equals, math.Float64bits(1.5))
	c.Check(math.Float64bits(p.Y), Equals, math.Float64bits(-2.25))
	c.Check(math.Float64bits(p.Z), Equals, math.Float64bits(0.0))
	c.Check(stmt.Value(1).Double(), Equals, -2.25)
}

func (s *PackageSuite) TestStructAndArrayValues(c *C) {
	db := openTestDB(c, ecsql.DefaultConfig(), nil)
	defer db.Close()
	ctx := context.Background()

	mustExec(c, db, "INSERT INTO Widget (MyID, Home, Tags) VALUES ('W1', ?, ?)", func(stmt *ecsql.Statement) {
		home := stmt.Binder(1)
		c.Assert(home.StructMember("Street").BindText("Main"), IsNil)
		c.Assert(home.StructMember("Position").BindPoint2d(5, 6), IsNil)
		tags := stmt.Binder(2)
		c.Assert(tags.AddArrayElement().BindText("a"), IsNil)
		c.Assert(tags.AddArrayElement().BindText("b"), IsNil)
	})

	stmt, err := db.Prepare(ctx, "SELECT Home, Tags FROM Widget", nil)
	c.Assert(err, IsNil)
	defer stmt.Finalize()
	ok, err := stmt.Step(ctx)
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)

	home := stmt.Value(0)
	c.Check(columns(home), DeepEquals, []int{0, 1, 2, 3})
	c.Check(home.StructMember("street").Text(), Equals, "Main")
	c.Check(home.StructMember("Zip").IsNull(), Equals, true)
	c.Check(home.StructMember("Position").Point2d(), Equals, ecsql.Point2d{X: 5, Y: 6})

	tags := stmt.Value(1)
	c.Assert(tags.ArrayLength(), Equals, 2)
	c.Check(tags.ArrayElements()[1].Text(), Equals, "b")
}

func (s *PackageSuite) TestNavigationThroughForeignKeyRelationship(c *C) {
	db := openTestDB(c, ecsql.DefaultConfig(), nil)
	defer db.Close()
	ctx := context.Background()

	owner := mustExec(c, db, "INSERT INTO Owner (Name) VALUES ('Ann')", nil)
	gadget := mustExec(c, db, "INSERT INTO Gadget (Name) VALUES ('G')", nil)
	rel := mustExec(c, db, "INSERT INTO OwnerOwnsGadgets (SourceECInstanceId, TargetECInstanceId) VALUES (?, ?)", func(stmt *ecsql.Statement) {
		c.Assert(stmt.Binder(1).BindInt64(owner.InstanceID), IsNil)
		c.Assert(stmt.Binder(2).BindInt64(gadget.InstanceID), IsNil)
	})
	// The relationship is a foreign key of an existing row.
	c.Check(rel, Equals, ecsql.InstanceKey{})

	relClass, ok := db.FindClass("ts.OwnerOwnsGadgets")
	c.Assert(ok, Equals, true)

	stmt, err := db.Prepare(ctx, "SELECT Owner FROM Gadget", nil)
	c.Assert(err, IsNil)
	defer stmt.Finalize()
	ok, err = stmt.Step(ctx)
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
	id, relClassID := stmt.Value(0).Navigation()
	c.Check(id, Equals, owner.InstanceID)
	c.Check(relClassID, Equals, relClass.ID)

	mustExec(c, db, "DELETE FROM OwnerOwnsGadgets", nil)
	c.Assert(stmt.Reset(), IsNil)
	ok, err = stmt.Step(ctx)
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
	c.Check(stmt.Value(0).IsNull(), Equals, true)
}

func (s *PackageSuite) TestPolymorphicSelect(c *C) {
	db := openTestDB(c, ecsql.DefaultConfig(), nil)
	defer db.Close()
	ctx := context.Background()

	mustExec(c, db, "INSERT INTO Circle (Color, Radius) VALUES ('red', 1)", nil)
	mustExec(c, db, "INSERT INTO Square (Color, Side) VALUES ('blue', 2)", nil)
	mustExec(c, db, "INSERT INTO Light (Code, Watts) VALUES ('L1', 60)", nil)
	mustExec(c, db, "INSERT INTO PhysicalElement (Code) VALUES ('P1')", nil)

	var colors []string
	stmt, err := db.Prepare(ctx, "SELECT Color FROM Shape ORDER BY Color", nil)
	c.Assert(err, IsNil)
	defer stmt.Finalize()
	for {
		ok, err := stmt.Step(ctx)
		c.Assert(err, IsNil)
		if !ok {
			break
		}
		colors = append(colors, stmt.Value(0).Text())
	}
	c.Check(colors, DeepEquals, []string{"blue", "red"})

	physical, ok := db.FindClass("TestSchema:PhysicalElement")
	c.Assert(ok, Equals, true)
	only, err := db.Prepare(ctx, "SELECT ECClassId, Code FROM ONLY PhysicalElement", nil)
	c.Assert(err, IsNil)
	defer only.Finalize()
	ok, err = only.Step(ctx)
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
	c.Check(only.Value(1).Text(), Equals, "P1")
	c.Check(only.Value(0).Int64(), Equals, int64(physical.ID))
	ok, err = only.Step(ctx)
	c.Assert(err, IsNil)
	c.Check(ok, Equals, false)
}

func (s *PackageSuite) TestAbstractInsertIsDenied(c *C) {
	db := openTestDB(c, ecsql.DefaultConfig(), nil)
	defer db.Close()
	ctx := context.Background()

	stmt := ecsql.NewStatement()
	err := stmt.Prepare(ctx, db, "INSERT INTO Element (Code) VALUES ('E1')", db.WriteToken())
	c.Assert(errors.Is(err, ecsql.ErrPolicyDenied), Equals, true, Commentf("%v", err))
	c.Check(stmt.NativeSQL(), Equals, "")
	c.Check(stmt.IsPrepared(), Equals, false)

	// A failed Prepare finalizes the statement.
	_, err = stmt.Step(ctx)
	c.Check(err, Equals, ecsql.ErrFinalized)
	err = stmt.Prepare(ctx, db, "SELECT Code FROM Element", nil)
	c.Check(err, Equals, ecsql.ErrFinalized)
}

func (s *PackageSuite) TestStatementStates(c *C) {
	var issues []string
	db := openTestDB(c, ecsql.DefaultConfig(), &issues)
	defer db.Close()
	ctx := context.Background()

	stmt := ecsql.NewStatement()
	_, err := stmt.Step(ctx)
	c.Check(err, Equals, ecsql.ErrNotPrepared)
	c.Check(stmt.Reset(), Equals, ecsql.ErrNotPrepared)
	c.Check(stmt.ClearBindings(), Equals, ecsql.ErrNotPrepared)
	c.Check(stmt.ColumnCount(), Equals, 0)
	c.Check(stmt.Value(0).Text(), Equals, "")
	c.Check(errors.Is(stmt.Binder(1).BindInt(1), ecsql.ErrBindMismatch), Equals, true)

	c.Assert(stmt.Prepare(ctx, db, "SELECT MyID FROM Widget", nil), IsNil)
	c.Check(stmt.Prepare(ctx, db, "SELECT MyID FROM Widget", nil), Equals, ecsql.ErrAlreadyPrepared)
	// The failed second Prepare leaves the statement usable.
	_, err = stmt.Step(ctx)
	c.Check(err, IsNil)

	c.Assert(stmt.Finalize(), IsNil)
	c.Assert(stmt.Finalize(), IsNil)
	_, err = stmt.Step(ctx)
	c.Check(err, Equals, ecsql.ErrFinalized)
	c.Check(stmt.Value(0).IsNull(), Equals, true)
}

func (s *PackageSuite) TestInvalidECSql(c *C) {
	db := openTestDB(c, ecsql.DefaultConfig(), nil)
	defer db.Close()
	ctx := context.Background()

	tests := []string{
		"",
		"   ",
		"SELEC MyID FROM Widget",
		"SELECT Missing FROM Widget",
		"SELECT MyID FROM NoSuchClass",
		"DELETE FROM Vehicle",
		"SELECT no_such_function(MyID) FROM Widget",
	}
	for _, ecsqlText := range tests {
		stmt := ecsql.NewStatement()
		err := stmt.Prepare(ctx, db, ecsqlText, db.WriteToken())
		c.Check(errors.Is(err, ecsql.ErrInvalidECSql), Equals, true, Commentf("%q: %v", ecsqlText, err))
		c.Check(stmt.IsPrepared(), Equals, false)
	}
}

func (s *PackageSuite) TestResetAndClearBindings(c *C) {
	db := openTestDB(c, ecsql.DefaultConfig(), nil)
	defer db.Close()
	ctx := context.Background()

	for _, id := range []string{"W1", "W2"} {
		mustExec(c, db, fmt.Sprintf("INSERT INTO Widget (MyID) VALUES ('%s')", id), nil)
	}

	stmt, err := db.Prepare(ctx, "SELECT ECInstanceId FROM Widget WHERE MyID = :id", nil)
	c.Assert(err, IsNil)
	defer stmt.Finalize()
	c.Assert(stmt.ParameterCount(), Equals, 1)
	c.Assert(stmt.BinderByName("id").BindText("W2"), IsNil)

	for i := 0; i < 2; i++ {
		ok, err := stmt.Step(ctx)
		c.Assert(err, IsNil)
		c.Assert(ok, Equals, true)
		c.Check(stmt.Value(0).Int64(), Equals, int64(2))
		ok, err = stmt.Step(ctx)
		c.Assert(err, IsNil)
		c.Assert(ok, Equals, false)
		// Stepping past the end stays there until Reset.
		ok, err = stmt.Step(ctx)
		c.Assert(err, IsNil)
		c.Assert(ok, Equals, false)
		c.Assert(stmt.Reset(), IsNil)
	}

	c.Assert(stmt.ClearBindings(), IsNil)
	ok, err := stmt.Step(ctx)
	c.Assert(err, IsNil)
	c.Check(ok, Equals, false)
}

func (s *PackageSuite) TestUpdateAndDelete(c *C) {
	db := openTestDB(c, ecsql.DefaultConfig(), nil)
	defer db.Close()
	ctx := context.Background()

	key := mustExec(c, db, "INSERT INTO Widget (MyID, Count) VALUES ('W1', 1)", nil)
	mustExec(c, db, "UPDATE Widget SET Count = Count + 1, Location = ? WHERE ECInstanceId = ?", func(stmt *ecsql.Statement) {
		c.Assert(stmt.Binder(1).BindPoint2d(7, 8), IsNil)
		c.Assert(stmt.Binder(2).BindInt64(key.InstanceID), IsNil)
	})

	stmt, err := db.Prepare(ctx, "SELECT Count, Location FROM Widget", nil)
	c.Assert(err, IsNil)
	defer stmt.Finalize()
	ok, err := stmt.Step(ctx)
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
	c.Check(stmt.Value(0).Int(), Equals, 2)
	c.Check(stmt.Value(1).Point2d(), Equals, ecsql.Point2d{X: 7, Y: 8})

	mustExec(c, db, "DELETE FROM Widget WHERE MyID = 'W1'", nil)
	c.Assert(stmt.Reset(), IsNil)
	ok, err = stmt.Step(ctx)
	c.Assert(err, IsNil)
	c.Check(ok, Equals, false)
}

func (s *PackageSuite) TestValueMisuseReportsIssues(c *C) {
	var issues []string
	db := openTestDB(c, ecsql.DefaultConfig(), &issues)
	defer db.Close()
	ctx := context.Background()

	mustExec(c, db, "INSERT INTO Widget (MyID) VALUES ('W1')", nil)
	stmt, err := db.Prepare(ctx, "SELECT MyID FROM Widget", nil)
	c.Assert(err, IsNil)
	defer stmt.Finalize()

	// No current row yet.
	c.Check(stmt.Value(0).Text(), Equals, "")
	c.Check(issues, HasLen, 2)

	ok, err := stmt.Step(ctx)
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
	issues = nil
	c.Check(stmt.Value(1).Text(), Equals, "")
	c.Check(stmt.Value(-1).IsNull(), Equals, true)
	c.Check(stmt.Value(0).Point2d(), Equals, ecsql.Point2d{})
	c.Check(errors.Is(stmt.Binder(1).BindText("x"), ecsql.ErrBindMismatch), Equals, true)
	c.Check(len(issues) >= 4, Equals, true, Commentf("%q", issues))
	c.Check(stmt.Value(0).Text(), Equals, "W1")
}

func (s *PackageSuite) TestWritePolicy(c *C) {
	ctx := context.Background()

	cfg := ecsql.DefaultConfig()
	cfg.RequireWriteToken = true
	db := openTestDB(c, cfg, nil)
	defer db.Close()

	_, err := db.Prepare(ctx, "INSERT INTO Widget (MyID) VALUES ('W1')", nil)
	c.Check(errors.Is(err, ecsql.ErrPolicyDenied), Equals, true, Commentf("%v", err))
	_, err = db.Prepare(ctx, "SELECT MyID FROM Widget", nil)
	c.Check(err, IsNil)
	mustExec(c, db, "INSERT INTO Widget (MyID) VALUES ('W1')", nil)

	err = db.ImportSchemas(ctx, nil, ecsql.NewSchema("Other", "o"))
	c.Check(errors.Is(err, ecsql.ErrPolicyDenied), Equals, true, Commentf("%v", err))

	cfg = ecsql.DefaultConfig()
	sqldb, err := sql.Open("sqlite3", ":memory:")
	c.Assert(err, IsNil)
	cfg.ReadOnly = true
	ro, err := ecsql.NewDB(ctx, sqldb, cfg)
	c.Assert(err, IsNil)
	defer ro.Close()
	err = ro.ImportSchemas(ctx, ro.WriteToken(), testschema.New())
	c.Check(errors.Is(err, ecsql.ErrPolicyDenied), Equals, true, Commentf("%v", err))
}

func (s *PackageSuite) TestImportSchemasCreatesOnlyNewTables(c *C) {
	db := openTestDB(c, ecsql.DefaultConfig(), nil)
	defer db.Close()
	ctx := context.Background()

	other := ecsql.NewSchema("Other", "o")
	thing := other.AddEntityClass("Thing")
	thing.AddPrimitive("Size", ecsql.PrimitiveDouble)
	c.Assert(db.ImportSchemas(ctx, nil, other), IsNil)

	mustExec(c, db, "INSERT INTO o.Thing (Size) VALUES (2.5)", nil)
	stmt, err := db.Prepare(ctx, "SELECT Size FROM Other.Thing", nil)
	c.Assert(err, IsNil)
	defer stmt.Finalize()
	ok, err := stmt.Step(ctx)
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
	c.Check(stmt.Value(0).Double(), Equals, 2.5)

	// A schema is imported once.
	err = db.ImportSchemas(ctx, nil, other)
	c.Check(err, ErrorMatches, "cannot import schemas: .*")
}

func (s *PackageSuite) TestSchemaCacheClearListeners(c *C) {
	db := openTestDB(c, ecsql.DefaultConfig(), nil)
	defer db.Close()

	var calls []string
	db.OnSchemaCacheCleared(func() { calls = append(calls, "first") })
	remove := db.OnSchemaCacheCleared(func() { calls = append(calls, "second") })

	c.Assert(db.ClearSchemaCache(), IsNil)
	c.Check(calls, DeepEquals, []string{"first", "second"})

	remove()
	calls = nil
	c.Assert(db.ClearSchemaCache(), IsNil)
	c.Check(calls, DeepEquals, []string{"first"})

	c.Assert(db.Close(), IsNil)
	c.Check(db.ClearSchemaCache(), Equals, ecsql.ErrClosed)
	_, err := db.Prepare(context.Background(), "SELECT MyID FROM Widget", nil)
	c.Check(err, Equals, ecsql.ErrClosed)
}

func (s *PackageSuite) TestInstanceIDsAreUniqueAcrossTables(c *C) {
	db := openTestDB(c, ecsql.DefaultConfig(), nil)
	defer db.Close()
	ctx := context.Background()

	vehicle := mustExec(c, db, "INSERT INTO Vehicle (Wheels) VALUES (2)", nil)
	car := mustExec(c, db, "INSERT INTO Car (Wheels, Doors) VALUES (4, 5)", nil)
	c.Assert(car.InstanceID, Not(Equals), vehicle.InstanceID)
	// An explicit id moves the sequence past it.
	owner := mustExec(c, db, "INSERT INTO Owner (ECInstanceId, Name) VALUES (100, 'Ann')", nil)
	c.Assert(owner.InstanceID, Equals, int64(100))
	gadget := mustExec(c, db, "INSERT INTO Gadget (Name) VALUES ('G')", nil)
	c.Assert(gadget.InstanceID, Equals, int64(101))

	stmt, err := db.Prepare(ctx, "SELECT ECInstanceId, ECClassId FROM Vehicle", nil)
	c.Assert(err, IsNil)
	defer stmt.Finalize()
	classes := map[int64]ecsql.ClassID{}
	for {
		ok, err := stmt.Step(ctx)
		c.Assert(err, IsNil)
		if !ok {
			break
		}
		classes[stmt.Value(0).Int64()] = ecsql.ClassID(stmt.Value(1).Int64())
	}
	c.Check(classes, DeepEquals, map[int64]ecsql.ClassID{
		vehicle.InstanceID: vehicle.ClassID,
		car.InstanceID:     car.ClassID,
	})

	seekWheels := func(pos ecsql.Position) (int64, ecsql.ClassID, bool) {
		var wheels int64
		var rowClass ecsql.ClassID
		found, err := db.Seek(ctx, pos, func(row *ecsql.RowContext) error {
			wheels = row.Value(2).Int64()
			rowClass = row.RowClassID()
			return nil
		}, ecsql.SeekOptions{})
		c.Assert(err, IsNil)
		return wheels, rowClass, found
	}
	wheels, rowClass, found := seekWheels(ecsql.Position{ClassID: car.ClassID, InstanceID: car.InstanceID})
	c.Check(found, Equals, true)
	c.Check(rowClass, Equals, car.ClassID)
	c.Check(wheels, Equals, int64(4))

	// The Vehicle row is not found under the id of the Car.
	_, rowClass, found = seekWheels(ecsql.Position{ClassID: vehicle.ClassID, InstanceID: car.InstanceID})
	c.Check(found && rowClass == vehicle.ClassID, Equals, false)

	wheels, rowClass, found = seekWheels(ecsql.Position{ClassID: vehicle.ClassID, InstanceID: vehicle.InstanceID})
	c.Check(found, Equals, true)
	c.Check(rowClass, Equals, vehicle.ClassID)
	c.Check(wheels, Equals, int64(2))
}
