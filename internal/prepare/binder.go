// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package prepare

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/canonical/ecsql/internal/field"
	"github.com/canonical/ecsql/internal/issue"
	"github.com/canonical/ecsql/internal/schema"
)

// Binder sets the value of an ECSql parameter, of a struct member of one or
// of an array element. Methods that do not apply to the parameter's type
// report an issue and return an error wrapping ErrBindMismatch.
type Binder interface {
	BindNull() error
	BindBool(v bool) error
	BindInt(v int) error
	BindInt64(v int64) error
	BindDouble(v float64) error
	BindText(v string) error
	BindBlob(v []byte) error
	BindGeometry(v []byte) error
	BindDateTime(v time.Time) error
	BindGuid(v uuid.UUID) error
	BindPoint2d(x, y float64) error
	BindPoint3d(x, y, z float64) error
	// BindNavigation binds the id of the referenced instance and the
	// relationship class. A zero relClassID binds the relationship the
	// navigation property is declared with.
	BindNavigation(id int64, relClassID schema.ClassID) error

	// StructMember returns the binder of a struct member, ignoring case.
	StructMember(name string) Binder
	// AddArrayElement appends an element to an array parameter and returns
	// its binder.
	AddArrayElement() Binder
}

// binder is implemented by all binders of this package.
type binder interface {
	Binder
	// slots returns the native parameters the binder sets, in column
	// order. Binders of array elements have none.
	slots() []int
	// reset forgets state kept besides the native parameter values.
	reset()
}

// binderBase answers every method with a mismatch. Binders embed it and
// override what applies to them.
type binderBase struct {
	issues  *issue.Reporter
	info    field.ColumnInfo
	name    string
	missing bool
}

func (b *binderBase) mismatch(method string) error {
	msg := "cannot " + method + " " + b.name + " of type " + b.info.DataType().String()
	if b.missing {
		msg = "cannot " + method + " " + b.name + ": no such parameter"
	}
	b.issues.Report("%s", msg)
	return errors.Wrap(ErrBindMismatch, msg)
}

func (b *binderBase) BindNull() error                   { return b.mismatch("bind NULL to") }
func (b *binderBase) BindBool(bool) error               { return b.mismatch("bind boolean to") }
func (b *binderBase) BindInt(int) error                 { return b.mismatch("bind integer to") }
func (b *binderBase) BindInt64(int64) error             { return b.mismatch("bind integer to") }
func (b *binderBase) BindDouble(float64) error          { return b.mismatch("bind double to") }
func (b *binderBase) BindText(string) error             { return b.mismatch("bind text to") }
func (b *binderBase) BindBlob([]byte) error             { return b.mismatch("bind blob to") }
func (b *binderBase) BindGeometry([]byte) error         { return b.mismatch("bind geometry to") }
func (b *binderBase) BindDateTime(time.Time) error      { return b.mismatch("bind DateTime to") }
func (b *binderBase) BindGuid(uuid.UUID) error          { return b.mismatch("bind Guid to") }
func (b *binderBase) BindPoint2d(_, _ float64) error    { return b.mismatch("bind Point2d to") }
func (b *binderBase) BindPoint3d(_, _, _ float64) error { return b.mismatch("bind Point3d to") }

func (b *binderBase) BindNavigation(int64, schema.ClassID) error {
	return b.mismatch("bind navigation value to")
}

func (b *binderBase) StructMember(name string) Binder {
	b.mismatch("get member " + name + " of")
	return newNoopBinder(b.issues, b.name+"."+name)
}

func (b *binderBase) AddArrayElement() Binder {
	b.mismatch("add array element to")
	return newNoopBinder(b.issues, b.name+"[]")
}

func (b *binderBase) slots() []int {
	return nil
}

func (b *binderBase) reset() {}

// newNoopBinder returns the binder handed out for parameters that do not
// exist. All its methods fail.
func newNoopBinder(issues *issue.Reporter, name string) *binderBase {
	return &binderBase{issues: issues, name: name, missing: true}
}

// NoopBinder returns a binder whose methods all fail with ErrBindMismatch.
// It stands in for the binders of statements that are not prepared.
func NoopBinder(issues *issue.Reporter, name string) Binder {
	return newNoopBinder(issues, name)
}

// scalarBinder binds a non point primitive value, or a value of any type to
// an untyped parameter. Values of array elements are kept in their JSON
// form.
type scalarBinder struct {
	binderBase
	set  func(any)
	slot int
	json bool
}

func (b *scalarBinder) primitive() schema.PrimitiveType {
	return b.info.DataType().Primitive
}

func (b *scalarBinder) accepts(types ...schema.PrimitiveType) bool {
	p := b.primitive()
	if p == schema.PrimitiveUnknown {
		return true
	}
	for _, t := range types {
		if p == t {
			return true
		}
	}
	return false
}

func (b *scalarBinder) BindNull() error {
	b.set(nil)
	return nil
}

func (b *scalarBinder) BindBool(v bool) error {
	b.set(v)
	return nil
}

func (b *scalarBinder) BindInt(v int) error {
	b.set(int64(v))
	return nil
}

func (b *scalarBinder) BindInt64(v int64) error {
	b.set(v)
	return nil
}

func (b *scalarBinder) BindDouble(v float64) error {
	b.set(v)
	return nil
}

func (b *scalarBinder) BindText(v string) error {
	b.set(v)
	return nil
}

func (b *scalarBinder) BindBlob(v []byte) error {
	if !b.accepts(schema.PrimitiveBinary, schema.PrimitiveGeometry, schema.PrimitiveGuid, schema.PrimitiveString) {
		return b.binderBase.BindBlob(v)
	}
	b.set(v)
	return nil
}

func (b *scalarBinder) BindGeometry(v []byte) error {
	if !b.accepts(schema.PrimitiveGeometry, schema.PrimitiveBinary) {
		return b.binderBase.BindGeometry(v)
	}
	b.set(v)
	return nil
}

func (b *scalarBinder) BindDateTime(v time.Time) error {
	if !b.accepts(schema.PrimitiveDateTime) {
		return b.binderBase.BindDateTime(v)
	}
	b.set(field.JulianDay(v, b.info.DateTimeInfo()))
	return nil
}

// BindGuid binds the 16 bytes of v, or its text form inside arrays.
func (b *scalarBinder) BindGuid(v uuid.UUID) error {
	if !b.accepts(schema.PrimitiveGuid, schema.PrimitiveBinary) {
		return b.binderBase.BindGuid(v)
	}
	if b.json {
		b.set(v.String())
		return nil
	}
	b.set(v[:])
	return nil
}

func (b *scalarBinder) slots() []int {
	if b.json {
		return nil
	}
	return []int{b.slot}
}

// pointBinder binds the coordinates of a Point2d or Point3d value.
type pointBinder struct {
	binderBase
	// set receives the coordinates, or nil for NULL.
	set    func(coords []float64)
	native []int
}

func (b *pointBinder) dims() int {
	return b.info.DataType().Primitive.ColumnCount()
}

func (b *pointBinder) BindNull() error {
	b.set(nil)
	return nil
}

func (b *pointBinder) BindPoint2d(x, y float64) error {
	if b.dims() != 2 {
		return b.binderBase.BindPoint2d(x, y)
	}
	b.set([]float64{x, y})
	return nil
}

func (b *pointBinder) BindPoint3d(x, y, z float64) error {
	if b.dims() != 3 {
		return b.binderBase.BindPoint3d(x, y, z)
	}
	b.set([]float64{x, y, z})
	return nil
}

func (b *pointBinder) slots() []int {
	return b.native
}

// structBinder binds a struct value member by member.
type structBinder struct {
	binderBase
	members []binder
	names   []string
}

func (b *structBinder) BindNull() error {
	for _, m := range b.members {
		if err := m.BindNull(); err != nil {
			return err
		}
	}
	return nil
}

func (b *structBinder) StructMember(name string) Binder {
	for i, n := range b.names {
		if strings.EqualFold(n, name) {
			return b.members[i]
		}
	}
	b.issues.Report("struct %s has no member %s", b.name, name)
	return newNoopBinder(b.issues, b.name+"."+name)
}

func (b *structBinder) slots() []int {
	var slots []int
	for _, m := range b.members {
		slots = append(slots, m.slots()...)
	}
	return slots
}

func (b *structBinder) reset() {
	for _, m := range b.members {
		m.reset()
	}
}

// arrayBinder collects array elements. set receives the elements in their
// JSON form after every change.
type arrayBinder struct {
	binderBase
	set   func(elems []any)
	slot  int
	elems []any
}

func (b *arrayBinder) BindNull() error {
	b.elems = nil
	b.set(nil)
	return nil
}

func (b *arrayBinder) AddArrayElement() Binder {
	if b.elems == nil {
		b.elems = []any{}
	}
	i := len(b.elems)
	b.elems = append(b.elems, nil)
	b.set(b.elems)
	return newElementBinder(b.issues, b.info.Element(i), b.name+"["+strconv.Itoa(i)+"]", func(v any) {
		b.elems[i] = v
		b.set(b.elems)
	})
}

func (b *arrayBinder) slots() []int {
	if b.slot == 0 {
		return nil
	}
	return []int{b.slot}
}

func (b *arrayBinder) reset() {
	b.elems = nil
}

// navigationBinder binds the id and relationship class of a navigation
// value. Binding a plain integer binds the id.
type navigationBinder struct {
	binderBase
	id, rel    *scalarBinder
	defaultRel schema.ClassID
}

func (b *navigationBinder) BindNull() error {
	b.id.set(nil)
	b.rel.set(nil)
	return nil
}

func (b *navigationBinder) BindNavigation(id int64, relClassID schema.ClassID) error {
	if relClassID == 0 {
		relClassID = b.defaultRel
	}
	b.id.set(id)
	b.rel.set(int64(relClassID))
	return nil
}

func (b *navigationBinder) BindInt64(v int64) error {
	return b.BindNavigation(v, 0)
}

func (b *navigationBinder) BindInt(v int) error {
	return b.BindNavigation(int64(v), 0)
}

func (b *navigationBinder) StructMember(name string) Binder {
	switch {
	case strings.EqualFold(name, schema.NavigationId):
		return b.id
	case strings.EqualFold(name, schema.NavigationRelECClassId):
		return b.rel
	}
	return b.binderBase.StructMember(name)
}

func (b *navigationBinder) slots() []int {
	return []int{b.id.slot, b.rel.slot}
}

// newElementBinder returns the binder of an array element or of a member of
// one. set receives the element in its JSON form.
func newElementBinder(issues *issue.Reporter, info field.ColumnInfo, name string, set func(any)) binder {
	base := binderBase{issues: issues, info: info, name: name}
	dt := info.DataType()
	switch dt.Kind {
	case field.DataPrimitive:
		if dt.Primitive.IsPoint() {
			return &pointBinder{binderBase: base, set: func(coords []float64) {
				if coords == nil {
					set(nil)
					return
				}
				m := map[string]any{"X": coords[0], "Y": coords[1]}
				if len(coords) == 3 {
					m["Z"] = coords[2]
				}
				set(m)
			}}
		}
		return &scalarBinder{binderBase: base, set: set, json: true}
	case field.DataStruct:
		values := map[string]any{}
		sb := &structBinder{binderBase: base}
		for _, m := range dt.Struct.Properties(true) {
			m := m
			sb.names = append(sb.names, m.Name)
			sb.members = append(sb.members, newElementBinder(issues, info.Member(issues, m), name+"."+m.Name, func(v any) {
				values[m.Name] = v
				set(values)
			}))
		}
		return sb
	case field.DataPrimitiveArray, field.DataStructArray:
		return &arrayBinder{binderBase: base, set: func(elems []any) {
			if elems == nil {
				set(nil)
				return
			}
			set(elems)
		}}
	}
	return &binderBase{issues: issues, info: info, name: name}
}
