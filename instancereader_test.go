// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package ecsql_test

import (
	"context"

	. "gopkg.in/check.v1"

	"github.com/canonical/ecsql"
)

type InstanceReaderSuite struct {
	db      *ecsql.DB
	widget  ecsql.ClassID
	light   ecsql.ClassID
	widgets []int64
}

var _ = Suite(&InstanceReaderSuite{})

func (s *InstanceReaderSuite) SetUpTest(c *C) {
	s.db = openTestDB(c, ecsql.DefaultConfig(), nil)
	s.widgets = nil
	for _, id := range []string{"W1", "W2"} {
		key := mustExec(c, s.db, "INSERT INTO Widget (MyID, Location) VALUES ('"+id+"', ?)", func(stmt *ecsql.Statement) {
			c.Assert(stmt.Binder(1).BindPoint2d(3, 4), IsNil)
		})
		s.widgets = append(s.widgets, key.InstanceID)
	}
	key := mustExec(c, s.db, "INSERT INTO Light (Code, Watts) VALUES ('L1', 60)", nil)
	s.widgets = append(s.widgets, key.InstanceID)

	widget, ok := s.db.FindClass("ts.Widget")
	c.Assert(ok, Equals, true)
	s.widget = widget.ID
	light, ok := s.db.FindClass("ts.Light")
	c.Assert(ok, Equals, true)
	s.light = light.ID
}

func (s *InstanceReaderSuite) TearDownTest(c *C) {
	c.Assert(s.db.Close(), IsNil)
}

func (s *InstanceReaderSuite) seek(c *C, pos ecsql.Position) string {
	var myID string
	found, err := s.db.Seek(context.Background(), pos, func(row *ecsql.RowContext) error {
		myID = row.Value(2).Text()
		return nil
	}, ecsql.SeekOptions{})
	c.Assert(err, IsNil)
	c.Assert(found, Equals, true)
	return myID
}

func (s *InstanceReaderSuite) TestSeekTiering(c *C) {
	first := ecsql.Position{ClassID: s.widget, InstanceID: s.widgets[0]}
	c.Check(s.seek(c, first), Equals, "W1")
	stats := s.db.ReaderStats()
	c.Check(stats.ClassBuilds, Equals, 1)
	c.Check(stats.NativeSeeks, Equals, 1)

	// Same instance: nothing is rebuilt or read.
	c.Check(s.seek(c, first), Equals, "W1")
	c.Check(s.db.ReaderStats().ClassBuilds, Equals, 1)
	c.Check(s.db.ReaderStats().NativeSeeks, Equals, 1)

	// Same class: one native seek.
	c.Check(s.seek(c, ecsql.Position{ClassName: "TestSchema.Widget", InstanceID: s.widgets[1]}), Equals, "W2")
	c.Check(s.db.ReaderStats().ClassBuilds, Equals, 1)
	c.Check(s.db.ReaderStats().NativeSeeks, Equals, 2)

	// Another class: one rebuild.
	found, err := s.db.Seek(context.Background(), ecsql.Position{ClassID: s.light, InstanceID: s.widgets[2]}, func(row *ecsql.RowContext) error {
		c.Check(row.RowClassID(), Equals, s.light)
		return nil
	}, ecsql.SeekOptions{})
	c.Assert(err, IsNil)
	c.Check(found, Equals, true)
	c.Check(s.db.ReaderStats().ClassBuilds, Equals, 2)
	c.Check(s.db.ReaderStats().NativeSeeks > 2, Equals, true)
}

func (s *InstanceReaderSuite) TestSeekAfterWrite(c *C) {
	pos := ecsql.Position{ClassID: s.widget, InstanceID: s.widgets[0]}
	c.Check(s.seek(c, pos), Equals, "W1")

	mustExec(c, s.db, "UPDATE Widget SET MyID = 'W1b' WHERE MyID = 'W1'", nil)
	// The row is cached until invalidated.
	c.Check(s.seek(c, pos), Equals, "W1")
	c.Check(s.db.InvalidateSeekPos(ecsql.InstanceKey{InstanceID: s.widgets[0]}), Equals, true)
	c.Check(s.seek(c, pos), Equals, "W1b")
	c.Check(s.db.ReaderStats().ClassBuilds, Equals, 1)
}

func (s *InstanceReaderSuite) TestSchemaCacheClearDropsReaderCaches(c *C) {
	pos := ecsql.Position{ClassID: s.widget, InstanceID: s.widgets[0]}
	s.seek(c, pos)
	before := s.db.ReaderStats()
	c.Assert(s.db.ClearSchemaCache(), IsNil)
	s.seek(c, pos)
	after := s.db.ReaderStats()
	c.Check(after.ClassBuilds, Equals, 2)
	c.Check(after.TableViewBuilds, Equals, 2*before.TableViewBuilds)
	c.Check(after.NativeSeeks, Equals, 2*before.NativeSeeks)
}

func (s *InstanceReaderSuite) TestSeekFromCallback(c *C) {
	ctx := context.Background()
	pos := ecsql.Position{ClassID: s.widget, InstanceID: s.widgets[0]}
	found, err := s.db.Seek(ctx, pos, func(row *ecsql.RowContext) error {
		_, err := s.db.Seek(ctx, pos, nil, ecsql.SeekOptions{})
		c.Check(err, Equals, ecsql.ErrReentrantSeek)
		c.Check(s.db.PropertyExists(s.widget, "location.x"), Equals, true)
		return nil
	}, ecsql.SeekOptions{})
	c.Assert(err, IsNil)
	c.Check(found, Equals, true)
}

func (s *InstanceReaderSuite) TestSeekJSON(c *C) {
	pos := ecsql.Position{ClassID: s.widget, InstanceID: s.widgets[0], AccessString: "Location"}
	found, err := s.db.Seek(context.Background(), pos, func(row *ecsql.RowContext) error {
		c.Check(row.ColumnCount(), Equals, 1)
		c.Check(row.PropertyJSON(), DeepEquals, map[string]any{"X": 3.0, "Y": 4.0})
		return nil
	}, ecsql.SeekOptions{})
	c.Assert(err, IsNil)
	c.Check(found, Equals, true)

	found, err = s.db.Seek(context.Background(), ecsql.Position{ClassID: s.widget, InstanceID: 999}, nil, ecsql.SeekOptions{})
	c.Assert(err, IsNil)
	c.Check(found, Equals, false)
}
