// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package field

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/canonical/ecsql/internal/issue"
	"github.com/canonical/ecsql/internal/schema"
)

type Point2d struct {
	X, Y float64
}

type Point3d struct {
	X, Y, Z float64
}

// Value gives typed access to a column value. Accessors that do not apply
// to the value's type report an issue and return the zero value.
type Value interface {
	ColumnInfo() ColumnInfo
	IsNull() bool

	Blob() []byte
	Bool() bool
	Int() int
	Int64() int64
	Double() float64
	Text() string
	DateTime() time.Time
	Point2d() Point2d
	Point3d() Point3d
	Geometry() []byte
	Guid() uuid.UUID
	// Enum returns the integer value of an enumeration.
	Enum() int64
	// Navigation returns the id of the referenced instance and the id of
	// the relationship class.
	Navigation() (id int64, relClassID schema.ClassID)

	// StructMember returns the member called name, ignoring case.
	StructMember(name string) Value
	StructMembers() []Value
	ArrayLength() int
	ArrayElements() []Value
}

// base implements every accessor of Value as a type mismatch. Concrete
// values embed it and override what applies to them.
type base struct {
	info   ColumnInfo
	issues *issue.Reporter
	noop   bool
}

func (b *base) ColumnInfo() ColumnInfo {
	return b.info
}

func (b *base) describe() string {
	if name := b.info.Path().String(); name != "" {
		return name
	}
	return "expression"
}

func (b *base) wrongType(accessor string) {
	if b.noop {
		b.issues.Report("cannot call %s: value is not available", accessor)
		return
	}
	b.issues.Report("cannot call %s on %s value %s", accessor, b.info.DataType(), b.describe())
}

func (b *base) IsNull() bool {
	return true
}

func (b *base) Blob() []byte {
	b.wrongType("Blob")
	return nil
}

func (b *base) Bool() bool {
	b.wrongType("Bool")
	return false
}

func (b *base) Int() int {
	b.wrongType("Int")
	return 0
}

func (b *base) Int64() int64 {
	b.wrongType("Int64")
	return 0
}

func (b *base) Double() float64 {
	b.wrongType("Double")
	return 0
}

func (b *base) Text() string {
	b.wrongType("Text")
	return ""
}

func (b *base) DateTime() time.Time {
	b.wrongType("DateTime")
	return time.Time{}
}

func (b *base) Point2d() Point2d {
	b.wrongType("Point2d")
	return Point2d{}
}

func (b *base) Point3d() Point3d {
	b.wrongType("Point3d")
	return Point3d{}
}

func (b *base) Geometry() []byte {
	b.wrongType("Geometry")
	return nil
}

func (b *base) Guid() uuid.UUID {
	b.wrongType("Guid")
	return uuid.Nil
}

func (b *base) Enum() int64 {
	b.wrongType("Enum")
	return 0
}

func (b *base) Navigation() (int64, schema.ClassID) {
	b.wrongType("Navigation")
	return 0, 0
}

func (b *base) StructMember(name string) Value {
	b.wrongType("StructMember")
	return NewNoop(b.issues)
}

func (b *base) StructMembers() []Value {
	b.wrongType("StructMembers")
	return nil
}

func (b *base) ArrayLength() int {
	b.wrongType("ArrayLength")
	return 0
}

func (b *base) ArrayElements() []Value {
	b.wrongType("ArrayElements")
	return nil
}

// Noop is handed out in place of a value that does not exist, such as a
// column index out of range. It is null and every accessor reports an
// issue.
type Noop struct {
	base
}

// NewNoop returns a Noop value reporting to issues.
func NewNoop(issues *issue.Reporter) *Noop {
	return &Noop{base: base{issues: issues, noop: true}}
}

func (n *Noop) Columns() []int {
	return nil
}

func (n *Noop) Children() []Field {
	return nil
}

// scalar reads a single primitive value from get.
type scalar struct {
	base
	get func() any
}

func (s *scalar) primitive() schema.PrimitiveType {
	return s.info.DataType().Primitive
}

func (s *scalar) convertFailed(accessor string, v any) {
	s.issues.Report("cannot call %s on %s: %T value cannot be converted", accessor, s.describe(), v)
}

func (s *scalar) IsNull() bool {
	return s.get() == nil
}

func (s *scalar) Blob() []byte {
	v := s.get()
	b, ok := toBlob(v)
	if !ok {
		s.convertFailed("Blob", v)
	}
	return b
}

func (s *scalar) Bool() bool {
	v := s.get()
	b, ok := toBool(v)
	if !ok {
		s.convertFailed("Bool", v)
	}
	return b
}

func (s *scalar) Int() int {
	return int(s.Int64())
}

func (s *scalar) Int64() int64 {
	v := s.get()
	i, ok := toInt64(v)
	if !ok {
		s.convertFailed("Int64", v)
	}
	return i
}

func (s *scalar) Double() float64 {
	v := s.get()
	f, ok := toDouble(v)
	if !ok {
		s.convertFailed("Double", v)
	}
	return f
}

func (s *scalar) Text() string {
	v := s.get()
	t, ok := toText(v)
	if !ok {
		s.convertFailed("Text", v)
	}
	return t
}

func (s *scalar) DateTime() time.Time {
	switch s.primitive() {
	case schema.PrimitiveDateTime, schema.PrimitiveUnknown, schema.PrimitiveString, schema.PrimitiveDouble:
	default:
		return s.base.DateTime()
	}
	v := s.get()
	t, ok := toDateTime(v, s.info.DateTimeInfo())
	if !ok {
		s.convertFailed("DateTime", v)
	}
	return t
}

func (s *scalar) Geometry() []byte {
	switch s.primitive() {
	case schema.PrimitiveGeometry, schema.PrimitiveBinary, schema.PrimitiveUnknown:
		return s.Blob()
	}
	return s.base.Geometry()
}

func (s *scalar) Guid() uuid.UUID {
	switch s.primitive() {
	case schema.PrimitiveGuid, schema.PrimitiveBinary, schema.PrimitiveString, schema.PrimitiveUnknown:
	default:
		return s.base.Guid()
	}
	v := s.get()
	id, ok := toGuid(v)
	if !ok {
		s.convertFailed("Guid", v)
	}
	return id
}

func (s *scalar) Enum() int64 {
	switch s.primitive() {
	case schema.PrimitiveInteger, schema.PrimitiveLong, schema.PrimitiveString, schema.PrimitiveUnknown:
		return s.Int64()
	}
	return s.base.Enum()
}

// memberByName finds a value by property name, ignoring case.
func memberByName(members []Value, name string) (Value, bool) {
	for _, m := range members {
		if strings.EqualFold(m.ColumnInfo().Name(), name) {
			return m, true
		}
	}
	return nil, false
}
