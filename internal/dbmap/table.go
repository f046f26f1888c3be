// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package dbmap

import (
	"bytes"
	"strconv"
	"strings"
)

// ColumnType is the declared SQLite type of a column.
type ColumnType int

const (
	ColumnAny ColumnType = iota
	ColumnInteger
	ColumnReal
	ColumnText
	ColumnBlob
)

func (t ColumnType) String() string {
	switch t {
	case ColumnInteger:
		return "INTEGER"
	case ColumnReal:
		return "REAL"
	case ColumnText:
		return "TEXT"
	case ColumnBlob:
		return "BLOB"
	}
	return "ANY"
}

// ColumnKind says what a column stores. Everything but ColumnData is a
// system column.
type ColumnKind int

const (
	ColumnData ColumnKind = iota
	ColumnECInstanceId
	ColumnECClassId
	ColumnSourceECInstanceId
	ColumnSourceECClassId
	ColumnTargetECInstanceId
	ColumnTargetECClassId
	ColumnParentECInstanceId
	ColumnECPropertyPathId
	ColumnECArrayIndex
)

// ColumnID identifies a column within a Maps.
type ColumnID int

// Column is a physical table column.
type Column struct {
	ID      ColumnID
	Name    string
	Type    ColumnType
	Kind    ColumnKind
	NotNull bool

	table *Table
}

// Table returns the table the column belongs to.
func (c *Column) Table() *Table {
	return c.table
}

// QualifiedName returns the column name quoted and prefixed with alias, or
// with the table name if alias is empty.
func (c *Column) QualifiedName(alias string) string {
	if alias == "" {
		alias = c.table.Name
	}
	return "[" + alias + "].[" + c.Name + "]"
}

// TableType says how a table relates to the classes stored in it.
type TableType int

const (
	TablePrimary TableType = iota
	TableSecondary
)

// Table is a physical table.
type Table struct {
	ID   int
	Name string
	Type TableType

	columns []*Column
	names   map[string]bool
	id      *Column
	classID *Column
}

// Columns returns the table's columns in creation order.
func (t *Table) Columns() []*Column {
	return t.columns
}

// Column finds a column by name ignoring case.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return nil, false
}

// IDColumn returns the column holding ECInstanceIds.
func (t *Table) IDColumn() *Column {
	return t.id
}

// ClassIDColumn returns the discriminator column, or nil if all rows of the
// table belong to the same class.
func (t *Table) ClassIDColumn() *Column {
	return t.classID
}

// SystemColumn returns the first column of the given kind.
func (t *Table) SystemColumn(kind ColumnKind) (*Column, bool) {
	for _, c := range t.columns {
		if c.Kind == kind {
			return c, true
		}
	}
	return nil, false
}

// addColumn adds a column. The name is made unique within the table.
func (t *Table) addColumn(m *Maps, name string, typ ColumnType, kind ColumnKind) *Column {
	unique := name
	for i := 2; t.names[strings.ToLower(unique)]; i++ {
		unique = name + "_" + strconv.Itoa(i)
	}
	t.names[strings.ToLower(unique)] = true
	m.nextColumnID++
	c := &Column{ID: m.nextColumnID, Name: unique, Type: typ, Kind: kind, table: t}
	switch kind {
	case ColumnECInstanceId:
		t.id = c
	case ColumnECClassId:
		t.classID = c
		c.NotNull = true
	}
	t.columns = append(t.columns, c)
	return c
}

// DDL returns the statements creating the table and its indexes.
func (t *Table) DDL() []string {
	var b bytes.Buffer
	b.WriteString("CREATE TABLE [")
	b.WriteString(t.Name)
	b.WriteString("] (")
	for i, c := range t.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("[" + c.Name + "] " + c.Type.String())
		if c == t.id {
			b.WriteString(" PRIMARY KEY")
		} else if c.NotNull {
			b.WriteString(" NOT NULL")
		}
	}
	b.WriteString(")")
	ddl := []string{b.String()}
	if t.classID != nil {
		ddl = append(ddl, "CREATE INDEX [ix_"+t.Name+"_ecclassid] ON ["+t.Name+"] (["+t.classID.Name+"])")
	}
	if t.id != nil {
		// Rows inserted with an explicit id move the sequence past it.
		ddl = append(ddl, "CREATE TRIGGER [tr_"+t.Name+"_ecinstanceid] AFTER INSERT ON ["+t.Name+"] BEGIN "+
			"UPDATE ["+SequenceTable+"] SET [Val]=NEW.["+t.id.Name+"] WHERE [Val]<NEW.["+t.id.Name+"]; END")
	}
	return ddl
}

// SequenceTable holds the last instance id handed out. Instance ids are
// unique across all tables, so that a class stored in several tables never
// yields two instances with the same id.
const SequenceTable = "ec_InstanceIdSequence"

// NextInstanceIDSQL is the native SQL of the next instance id. An INSERT
// writing it to the id column moves the sequence through the table's
// trigger.
const NextInstanceIDSQL = "(SELECT [Val]+1 FROM [" + SequenceTable + "])"

// SequenceDDL returns the statements creating and seeding the instance id
// sequence. They can be run more than once.
func SequenceDDL() []string {
	return []string{
		"CREATE TABLE IF NOT EXISTS [" + SequenceTable + "] ([Val] INTEGER NOT NULL)",
		"INSERT INTO [" + SequenceTable + "] ([Val]) SELECT 0 WHERE NOT EXISTS (SELECT 1 FROM [" + SequenceTable + "])",
	}
}
