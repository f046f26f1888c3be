// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package ecsql

import (
	"context"
	"database/sql"
	"runtime"
	"testing"
	"time"

	. "gopkg.in/check.v1"

	"github.com/canonical/ecsql/internal/testschema"
)

// Hook up gocheck into the "go test" runner.
func TestPackage(t *testing.T) { TestingT(t) }

type CacheSuite struct{}

var _ = Suite(&CacheSuite{})

func (s *CacheSuite) TearDownSuite(_ *C) {
	stmtRegistryMutex.Lock()
	defer stmtRegistryMutex.Unlock()

	// Reset prepared statements trackers.
	closedStmts = map[string]map[uintptr]bool{}
	openedStmts = map[string]map[uintptr]string{}

	queriesRunMutex.Lock()
	defer queriesRunMutex.Unlock()
	stmtQueriesRun = map[string]int{}
}

func (s *CacheSuite) TestNativeStatementReuse(c *C) {
	db := s.openDB(c)
	defer db.Close()
	ctx := context.Background()

	stmt1, err := db.Prepare(ctx, "SELECT MyID FROM Widget", nil)
	c.Assert(err, IsNil)
	stmt2, err := db.Prepare(ctx, "SELECT MyID FROM ts.Widget", nil)
	c.Assert(err, IsNil)

	// Both translate to the same native SQL but own their statements.
	c.Assert(stmt1.NativeSQL(), Equals, stmt2.NativeSQL())
	c.Check(db.stmts.len(), Equals, 2)
	s.checkDriverStmtsOpened(c, 2)

	for _, stmt := range []*Statement{stmt1, stmt2, stmt1} {
		ok, err := stmt.Step(ctx)
		c.Assert(err, IsNil)
		c.Assert(ok, Equals, false)
		c.Assert(stmt.Reset(), IsNil)
	}
	s.checkDriverStmtsOpened(c, 2)
	s.checkQueriesRun(c, 3)

	c.Assert(stmt2.Finalize(), IsNil)
	c.Check(db.stmts.len(), Equals, 1)
}

func (s *CacheSuite) TestNestedLoopsOverSameECSql(c *C) {
	db := s.openDB(c)
	defer db.Close()
	ctx := context.Background()
	s.insertWidgets(c, db, "W1", "W2", "W3")

	outer, err := db.Prepare(ctx, "SELECT MyID FROM Widget", nil)
	c.Assert(err, IsNil)
	inner, err := db.Prepare(ctx, "SELECT MyID FROM Widget", nil)
	c.Assert(err, IsNil)

	var pairs []string
	for {
		ok, err := outer.Step(ctx)
		c.Assert(err, IsNil)
		if !ok {
			break
		}
		c.Assert(len(pairs) < 9, Equals, true)
		for {
			ok, err := inner.Step(ctx)
			c.Assert(err, IsNil)
			if !ok {
				break
			}
			pairs = append(pairs, outer.Value(0).Text()+inner.Value(0).Text())
		}
		c.Assert(inner.Reset(), IsNil)
	}
	c.Check(pairs, DeepEquals, []string{
		"W1W1", "W1W2", "W1W3",
		"W2W1", "W2W2", "W2W3",
		"W3W1", "W3W2", "W3W3",
	})
}

func (s *CacheSuite) TestSchemaCacheClearDuringIteration(c *C) {
	db := s.openDB(c)
	defer db.Close()
	ctx := context.Background()
	s.insertWidgets(c, db, "W1", "W2", "W3")

	stmt, err := db.Prepare(ctx, "SELECT MyID FROM Widget", nil)
	c.Assert(err, IsNil)
	ok, err := stmt.Step(ctx)
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
	ids := []string{stmt.Value(0).Text()}

	c.Assert(db.ClearSchemaCache(), IsNil)
	// The statement is still reading its result set.
	c.Check(db.stmts.len(), Equals, 1)
	for {
		ok, err := stmt.Step(ctx)
		c.Assert(err, IsNil)
		if !ok {
			break
		}
		ids = append(ids, stmt.Value(0).Text())
	}
	c.Check(ids, DeepEquals, []string{"W1", "W2", "W3"})
	c.Check(db.stmts.len(), Equals, 0)
	s.checkDriverStmtsAllClosed(c)

	// The next run prepares the native statement again.
	c.Assert(stmt.Reset(), IsNil)
	ok, err = stmt.Step(ctx)
	c.Assert(err, IsNil)
	c.Check(ok, Equals, true)
	s.checkDriverStmtsOpened(c, 2)
}

func (s *CacheSuite) TestSchemaCacheClearClosesStatements(c *C) {
	db := s.openDB(c)
	defer db.Close()
	ctx := context.Background()

	stmt, err := db.Prepare(ctx, "INSERT INTO Widget (MyID) VALUES ('W1')", nil)
	c.Assert(err, IsNil)
	s.checkDriverStmtsOpened(c, 1)

	c.Assert(db.ClearSchemaCache(), IsNil)
	c.Check(db.stmts.len(), Equals, 0)
	s.checkDriverStmtsAllClosed(c)

	// The statement prepares its native statement again.
	_, err = stmt.Step(ctx)
	c.Assert(err, IsNil)
	c.Check(stmt.InsertedKey().InstanceID, Equals, int64(1))
	c.Check(db.stmts.len(), Equals, 1)
	s.checkDriverStmtsOpened(c, 2)
}

func (s *CacheSuite) TestCloseReleasesEverything(c *C) {
	db := s.openDB(c)
	ctx := context.Background()

	insert, err := db.Prepare(ctx, "INSERT INTO Widget (MyID) VALUES (?)", db.WriteToken())
	c.Assert(err, IsNil)
	for _, id := range []string{"W1", "W2"} {
		c.Assert(insert.Binder(1).BindText(id), IsNil)
		_, err := insert.Step(ctx)
		c.Assert(err, IsNil)
		c.Assert(insert.Reset(), IsNil)
	}

	stmt, err := db.Prepare(ctx, "SELECT MyID FROM Widget", nil)
	c.Assert(err, IsNil)
	ok, err := stmt.Step(ctx)
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
	c.Check(db.openRows, HasLen, 1)

	// The result set is still open.
	c.Assert(db.Close(), IsNil)
	c.Check(db.openRows, HasLen, 0)
	s.checkDriverStmtsAllClosed(c)

	_, err = stmt.Step(ctx)
	c.Assert(err, Equals, ErrClosed)
	c.Assert(db.Close(), IsNil)
}

func (s *CacheSuite) TestFinalizerClosesResultSets(c *C) {
	db := s.openDB(c)
	defer db.Close()
	ctx := context.Background()

	_, err := db.conn.ExecContext(ctx, "INSERT INTO ts_Widget (Id, MyID) VALUES (1, 'W1'), (2, 'W2')")
	c.Assert(err, IsNil)

	// For a Statement to be finalized it needs to go out of scope and be
	// garbage collected. A function is used to "forget" the statement.
	func() {
		stmt, err := db.Prepare(ctx, "SELECT MyID FROM Widget", nil)
		c.Assert(err, IsNil)
		ok, err := stmt.Step(ctx)
		c.Assert(err, IsNil)
		c.Assert(ok, Equals, true)
		c.Check(db.openRows, HasLen, 1)
	}()

	s.triggerFinalizers()
	db.rowsMutex.Lock()
	c.Check(db.openRows, HasLen, 0)
	db.rowsMutex.Unlock()
}

func (s *CacheSuite) openDB(c *C) *DB {
	sqldb, err := sql.Open("sqlite3_stmtChecked", "file:"+c.TestName()+"?mode=memory&testName="+c.TestName())
	c.Assert(err, IsNil)
	db, err := NewDB(context.Background(), sqldb, DefaultConfig())
	c.Assert(err, IsNil)
	err = db.ImportSchemas(context.Background(), nil, testschema.New())
	c.Assert(err, IsNil)
	return db
}

func (s *CacheSuite) insertWidgets(c *C, db *DB, ids ...string) {
	for i, id := range ids {
		_, err := db.conn.ExecContext(context.Background(), "INSERT INTO ts_Widget (Id, MyID) VALUES (?, ?)", i+1, id)
		c.Assert(err, IsNil)
	}
}

func (s *CacheSuite) triggerFinalizers() {
	// Try to run finalizers by calling GC several times.
	for i := 0; i <= 10; i++ {
		runtime.GC()
		time.Sleep(0)
	}
}

func (s *CacheSuite) checkDriverStmtsOpened(c *C, n int) {
	stmtRegistryMutex.RLock()
	defer stmtRegistryMutex.RUnlock()
	c.Check(openedStmts[c.TestName()], HasLen, n)
}

func (s *CacheSuite) checkDriverStmtsAllClosed(c *C) {
	stmtRegistryMutex.RLock()
	defer stmtRegistryMutex.RUnlock()
	for sPtr, query := range openedStmts[c.TestName()] {
		if !closedStmts[c.TestName()][sPtr] {
			c.Errorf("statement %q was not closed", query)
		}
	}
}

func (s *CacheSuite) checkQueriesRun(c *C, n int) {
	queriesRunMutex.RLock()
	defer queriesRunMutex.RUnlock()
	c.Check(stmtQueriesRun[c.TestName()], Equals, n)
}
