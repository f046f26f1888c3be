// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package reader

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/canonical/ecsql/internal/dbmap"
	"github.com/canonical/ecsql/internal/schema"
)

// Conn is a native connection statements can be prepared on, e.g. a sql.DB
// or sql.Conn.
type Conn interface {
	PrepareContext(context.Context, string) (*sql.Stmt, error)
}

// TableView reads single rows of one table by id. It selects every column
// of the table and keeps the values of the last row read, serving them as
// a field.Row to the fields of all classes stored in the table.
type TableView struct {
	table *dbmap.Table
	query string
	// index maps columns to their position in the select clause.
	index map[*dbmap.Column]int
	// classIDIndex is the position of the discriminator column, or -1.
	classIDIndex int

	stmt   *sql.Stmt
	values []any
}

func newTableView(t *dbmap.Table) *TableView {
	cols := t.Columns()
	v := &TableView{
		table:        t,
		index:        make(map[*dbmap.Column]int, len(cols)),
		classIDIndex: -1,
	}
	for i, c := range cols {
		v.index[c] = i
		if c == t.ClassIDColumn() {
			v.classIDIndex = i
		}
	}
	names := lo.Map(cols, func(c *dbmap.Column, _ int) string { return "[" + c.Name + "]" })
	v.query = "SELECT " + strings.Join(names, ", ") + " FROM [" + t.Name + "] WHERE [" + t.IDColumn().Name + "]=?"
	return v
}

// Table returns the table the view reads.
func (v *TableView) Table() *dbmap.Table {
	return v.table
}

// SQL returns the native statement reading a row.
func (v *TableView) SQL() string {
	return v.query
}

// ColumnIndex returns the position of c in the rows read by the view.
func (v *TableView) ColumnIndex(c *dbmap.Column) (int, bool) {
	i, ok := v.index[c]
	return i, ok
}

// seek reads the row with the given id. It returns false when there is no
// such row, in which case the values of the previous row are dropped.
func (v *TableView) seek(ctx context.Context, conn Conn, id int64) (bool, error) {
	if v.stmt == nil {
		stmt, err := conn.PrepareContext(ctx, v.query)
		if err != nil {
			return false, errors.Wrapf(err, "cannot prepare seek on %s", v.table.Name)
		}
		v.stmt = stmt
	}
	rows, err := v.stmt.QueryContext(ctx, id)
	if err != nil {
		return false, errors.Wrapf(err, "cannot seek %s to %d", v.table.Name, id)
	}
	defer rows.Close()

	v.values = nil
	if !rows.Next() {
		return false, errors.Wrapf(rows.Err(), "cannot seek %s to %d", v.table.Name, id)
	}
	values := make([]any, len(v.index))
	ptrs := make([]any, len(values))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return false, errors.Wrapf(err, "cannot read row %d of %s", id, v.table.Name)
	}
	v.values = values
	return true, nil
}

// rowClassID returns the class id stored in the discriminator column of the
// current row.
func (v *TableView) rowClassID() (schema.ClassID, bool) {
	if v.classIDIndex < 0 || v.values == nil {
		return 0, false
	}
	switch id := v.values[v.classIDIndex].(type) {
	case int64:
		return schema.ClassID(id), true
	}
	return 0, false
}

// ColumnCount is the number of columns of the current row, 0 when there is
// none.
func (v *TableView) ColumnCount() int {
	return len(v.values)
}

func (v *TableView) ColumnValue(i int) any {
	return v.values[i]
}

func (v *TableView) close() {
	if v.stmt != nil {
		v.stmt.Close()
		v.stmt = nil
	}
	v.values = nil
}
