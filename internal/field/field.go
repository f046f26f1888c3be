// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package field holds the typed accessors of a prepared statement's result
columns.

A Field reads its value lazily from a Row by native column index. Points
span two or three consecutive columns, structs span the columns of their
members and navigation properties span two columns (Id, RelECClassId).
Arrays are read from a single column holding JSON.
*/
package field

import (
	"github.com/canonical/ecsql/internal/issue"
	"github.com/canonical/ecsql/internal/schema"
)

// Row is the current row of a native statement.
type Row interface {
	ColumnCount() int
	// ColumnValue returns the raw value of native column i, nil for NULL.
	ColumnValue(i int) any
}

// Field is the accessor of one select clause item or of a member of one.
type Field interface {
	Value
	// Columns returns the native column indexes read by the field, in
	// order.
	Columns() []int
	// Children returns the member fields of struct and navigation fields.
	Children() []Field
}

func readColumn(issues *issue.Reporter, row Row, i int) any {
	if i < 0 || i >= row.ColumnCount() {
		issues.Internal("native column index %d out of range [0, %d)", i, row.ColumnCount())
		return nil
	}
	return row.ColumnValue(i)
}

// Primitive reads a non point primitive value from one column.
type Primitive struct {
	scalar
	index int
}

// NewPrimitive returns the field reading column index of row.
func NewPrimitive(issues *issue.Reporter, info ColumnInfo, row Row, index int) *Primitive {
	f := &Primitive{index: index}
	f.scalar = scalar{
		base: base{info: info, issues: issues},
		get:  func() any { return readColumn(issues, row, index) },
	}
	return f
}

func (f *Primitive) Columns() []int {
	return []int{f.index}
}

func (f *Primitive) Children() []Field {
	return nil
}

// Point reads a Point2d or Point3d from two or three consecutive columns.
type Point struct {
	base
	row  Row
	cols []int
}

// NewPoint returns the field reading a point starting at column first.
func NewPoint(issues *issue.Reporter, info ColumnInfo, row Row, first int) *Point {
	n := info.DataType().Primitive.ColumnCount()
	cols := make([]int, n)
	for i := range cols {
		cols[i] = first + i
	}
	return &Point{base: base{info: info, issues: issues}, row: row, cols: cols}
}

func (f *Point) Columns() []int {
	return f.cols
}

func (f *Point) Children() []Field {
	return nil
}

func (f *Point) IsNull() bool {
	for _, c := range f.cols {
		if readColumn(f.issues, f.row, c) != nil {
			return false
		}
	}
	return true
}

func (f *Point) coord(i int) float64 {
	v := readColumn(f.issues, f.row, f.cols[i])
	d, ok := toDouble(v)
	if !ok {
		f.issues.Report("cannot read coordinate %d of %s: %T value", i, f.describe(), v)
	}
	return d
}

func (f *Point) Point2d() Point2d {
	if len(f.cols) != 2 {
		return f.base.Point2d()
	}
	return Point2d{X: f.coord(0), Y: f.coord(1)}
}

func (f *Point) Point3d() Point3d {
	if len(f.cols) != 3 {
		return f.base.Point3d()
	}
	return Point3d{X: f.coord(0), Y: f.coord(1), Z: f.coord(2)}
}

// Struct groups the fields of a struct's members.
type Struct struct {
	base
	members []Field
}

// NewStruct returns a struct field over members, which must be in the
// struct's property order.
func NewStruct(issues *issue.Reporter, info ColumnInfo, members []Field) *Struct {
	return &Struct{base: base{info: info, issues: issues}, members: members}
}

func (f *Struct) Columns() []int {
	var cols []int
	for _, m := range f.members {
		cols = append(cols, m.Columns()...)
	}
	return cols
}

func (f *Struct) Children() []Field {
	return f.members
}

// IsNull reports whether all members are null.
func (f *Struct) IsNull() bool {
	for _, m := range f.members {
		if !m.IsNull() {
			return false
		}
	}
	return true
}

func (f *Struct) StructMember(name string) Value {
	if m, ok := memberByName(f.StructMembers(), name); ok {
		return m
	}
	f.issues.Report("struct %s has no member %s", f.describe(), name)
	return NewNoop(f.issues)
}

func (f *Struct) StructMembers() []Value {
	values := make([]Value, len(f.members))
	for i, m := range f.members {
		values[i] = m
	}
	return values
}

// Navigation reads a navigation property through its Id and RelECClassId
// member fields.
type Navigation struct {
	base
	id         Field
	relClassID Field
}

// NewNavigation returns a navigation field over its two member fields.
func NewNavigation(issues *issue.Reporter, info ColumnInfo, id, relClassID Field) *Navigation {
	return &Navigation{base: base{info: info, issues: issues}, id: id, relClassID: relClassID}
}

func (f *Navigation) Columns() []int {
	return append(append([]int{}, f.id.Columns()...), f.relClassID.Columns()...)
}

func (f *Navigation) Children() []Field {
	return []Field{f.id, f.relClassID}
}

func (f *Navigation) IsNull() bool {
	return f.id.IsNull()
}

func (f *Navigation) Navigation() (int64, schema.ClassID) {
	return f.id.Int64(), schema.ClassID(f.relClassID.Int64())
}

// Int64 returns the id of the referenced instance.
func (f *Navigation) Int64() int64 {
	return f.id.Int64()
}

func (f *Navigation) StructMember(name string) Value {
	if m, ok := memberByName([]Value{f.id, f.relClassID}, name); ok {
		return m
	}
	f.issues.Report("navigation property %s has no member %s", f.describe(), name)
	return NewNoop(f.issues)
}

func (f *Navigation) StructMembers() []Value {
	return []Value{f.id, f.relClassID}
}

// Array reads a primitive or struct array from a column holding JSON.
type Array struct {
	array
	index int
}

// NewArray returns the field reading the array in column index of row.
func NewArray(issues *issue.Reporter, info ColumnInfo, row Row, index int) *Array {
	f := &Array{index: index}
	f.array = array{
		base: base{info: info, issues: issues},
		load: func() any { return readColumn(issues, row, index) },
	}
	return f
}

func (f *Array) Columns() []int {
	return []int{f.index}
}

func (f *Array) Children() []Field {
	return nil
}
