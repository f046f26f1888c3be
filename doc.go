/*
Package ecsql runs ECSql, a SQL dialect over the classes and properties of EC
schemas, on a sqlite or dqlite database.

# Basics

Schemas describe classes with typed properties. Importing a schema into a
[DB] creates the tables its classes map to:

	s := ecsql.NewSchema("Inventory", "inv")
	widget := s.AddEntityClass("Widget")
	widget.AddPrimitive("MyID", ecsql.PrimitiveString)
	widget.AddPrimitive("Location", ecsql.PrimitivePoint2d)

	db, err := ecsql.Open(ctx, ecsql.DefaultConfig())
	...
	err = db.ImportSchemas(ctx, db.WriteToken(), s)

ECSql names classes and properties instead of tables and columns. A
statement is translated to native SQL once, when it is prepared:

	stmt, err := db.Prepare(ctx, "SELECT MyID, Location FROM inv.Widget WHERE MyID = ?", nil)
	...
	err = stmt.Binder(1).BindText("W1")
	for {
		ok, err := stmt.Step(ctx)
		if err != nil || !ok {
			break
		}
		id := stmt.Value(0).Text()
		loc := stmt.Value(1).Point2d()
	}

Every select clause item is read through one [Value], whatever the number
of native columns the property is stored in: a Point2d property spans two
columns, a struct property one column per member.

# Errors

Prepare fails with an error wrapping [ErrInvalidECSql] for statements that
cannot be translated and [ErrPolicyDenied] for writes the database does
not allow. A statement whose Prepare failed is finalized.

Reading a value with an accessor that does not apply, or asking for a
column or parameter that does not exist, does not fail. The problem is
reported as an issue, which is logged and passed to the listeners
registered with [DB.AddIssueListener], and the zero value is returned.

# Reading single instances

[DB.Seek] reads one instance by id without preparing a statement. It
caches what it builds per class, so reading many instances of the same
classes runs a single indexed native query each.
*/
package ecsql
