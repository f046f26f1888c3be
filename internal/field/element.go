// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package field

import (
	"encoding/base64"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/canonical/ecsql/internal/schema"
)

// JSON is the codec of array columns. Numbers decode as json.Number so that
// 64 bit ids survive.
var JSON = jsoniter.Config{
	UseNumber:   true,
	SortMapKeys: true,
	EscapeHTML:  false,
}.Froze()

// array decodes its elements from the value returned by load: JSON text as
// stored in a column, or a slice already decoded as part of an enclosing
// array element.
type array struct {
	base
	load func() any
}

func (a *array) IsNull() bool {
	return a.load() == nil
}

func (a *array) decode() []any {
	var text string
	switch v := a.load().(type) {
	case nil:
		return nil
	case []any:
		return v
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		a.issues.Report("cannot read array %s: %T value", a.describe(), v)
		return nil
	}
	var elems []any
	if err := JSON.UnmarshalFromString(text, &elems); err != nil {
		a.issues.ReportError(err, "cannot decode array %s", a.describe())
		return nil
	}
	return elems
}

func (a *array) ArrayLength() int {
	return len(a.decode())
}

func (a *array) ArrayElements() []Value {
	elems := a.decode()
	values := make([]Value, len(elems))
	for i, e := range elems {
		values[i] = newElement(a.base, a.info.Element(i), e)
	}
	return values
}

// newElement returns an in-memory value for v, decoded from JSON, described
// by info.
func newElement(parent base, info ColumnInfo, v any) Value {
	b := base{info: info, issues: parent.issues}
	switch info.DataType().Kind {
	case DataStruct:
		members, _ := v.(map[string]any)
		if v != nil && members == nil {
			b.issues.Report("cannot read struct %s: %T value", b.describe(), v)
		}
		return &structElement{base: b, members: members}
	case DataPrimitiveArray, DataStructArray:
		return &array{base: b, load: func() any {
			if elems, ok := v.([]any); ok {
				return elems
			}
			return nil
		}}
	}
	return &element{scalar: scalar{base: b, get: func() any { return v }}}
}

// element is a primitive array element or struct member decoded from JSON.
type element struct {
	scalar
}

func (e *element) coords() map[string]any {
	m, _ := e.get().(map[string]any)
	return m
}

func (e *element) coord(m map[string]any, name string) float64 {
	for k, v := range m {
		if strings.EqualFold(k, name) {
			d, _ := toDouble(v)
			return d
		}
	}
	return 0
}

func (e *element) Point2d() Point2d {
	if e.primitive() != schema.PrimitivePoint2d {
		return e.base.Point2d()
	}
	m := e.coords()
	return Point2d{X: e.coord(m, "X"), Y: e.coord(m, "Y")}
}

func (e *element) Point3d() Point3d {
	if e.primitive() != schema.PrimitivePoint3d {
		return e.base.Point3d()
	}
	m := e.coords()
	return Point3d{X: e.coord(m, "X"), Y: e.coord(m, "Y"), Z: e.coord(m, "Z")}
}

// Blob decodes binary elements, which JSON holds as base64 text.
func (e *element) Blob() []byte {
	switch e.primitive() {
	case schema.PrimitiveBinary, schema.PrimitiveGeometry:
		if s, ok := e.get().(string); ok {
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				e.issues.ReportError(err, "cannot decode binary element %s", e.describe())
			}
			return b
		}
	}
	return e.scalar.Blob()
}

func (e *element) Geometry() []byte {
	if e.primitive() != schema.PrimitiveGeometry && e.primitive() != schema.PrimitiveBinary {
		return e.base.Geometry()
	}
	return e.Blob()
}

// structElement is a struct array element or a struct member of one.
type structElement struct {
	base
	members map[string]any
}

func (s *structElement) IsNull() bool {
	for _, v := range s.members {
		if v != nil {
			return false
		}
	}
	return true
}

func (s *structElement) member(p *schema.Property) any {
	for k, v := range s.members {
		if strings.EqualFold(k, p.Name) {
			return v
		}
	}
	return nil
}

func (s *structElement) StructMembers() []Value {
	props := s.info.StructType().Properties(true)
	values := make([]Value, len(props))
	for i, p := range props {
		values[i] = newElement(s.base, s.info.Member(s.issues, p), s.member(p))
	}
	return values
}

func (s *structElement) StructMember(name string) Value {
	p, ok := s.info.StructType().Property(name)
	if !ok {
		s.issues.Report("struct %s has no member %s", s.describe(), name)
		return NewNoop(s.issues)
	}
	return newElement(s.base, s.info.Member(s.issues, p), s.member(p))
}
