// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package field

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/canonical/ecsql/internal/schema"
)

// JSONOptions control how values are rendered as JSON.
type JSONOptions struct {
	// ClassName resolves class ids. When set, class ids are rendered as
	// "Schema.Class" names.
	ClassName func(schema.ClassID) (string, bool)
	// AbbreviateBlobs renders binary values as {"bytes":N}.
	AbbreviateBlobs bool
	// UseJSNames renders member names the way JavaScript clients expect
	// them: "id", "className", lower camel case property names.
	UseJSNames bool
}

var jsSystemNames = map[schema.SystemKind]string{
	schema.SystemECInstanceId:           "id",
	schema.SystemECClassId:              "className",
	schema.SystemSourceECInstanceId:     "sourceId",
	schema.SystemSourceECClassId:        "sourceClassName",
	schema.SystemTargetECInstanceId:     "targetId",
	schema.SystemTargetECClassId:        "targetClassName",
	schema.SystemNavigationId:           "id",
	schema.SystemNavigationRelECClassId: "relClassName",
}

// MemberName returns the JSON member name of a value of property p.
func (o JSONOptions) MemberName(p *schema.Property) string {
	if p == nil {
		return ""
	}
	if !o.UseJSNames {
		return p.Name
	}
	if name, ok := jsSystemNames[p.SystemKind()]; ok {
		return name
	}
	r, size := utf8.DecodeRuneInString(p.Name)
	return string(unicode.ToLower(r)) + p.Name[size:]
}

func isClassID(p *schema.Property) bool {
	switch p.SystemKind() {
	case schema.SystemECClassId, schema.SystemSourceECClassId, schema.SystemTargetECClassId, schema.SystemNavigationRelECClassId:
		return true
	}
	return false
}

func isInstanceID(p *schema.Property) bool {
	switch p.SystemKind() {
	case schema.SystemECInstanceId, schema.SystemSourceECInstanceId, schema.SystemTargetECInstanceId, schema.SystemNavigationId:
		return true
	}
	return false
}

// FormatID renders an id the way ECSql JSON does, as hexadecimal text.
func FormatID(id uint64) string {
	return fmt.Sprintf("0x%x", id)
}

// ToJSON converts v into a value ready to be marshalled. Nulls are
// returned as nil; null struct members are left out.
func ToJSON(v Value, opts JSONOptions) any {
	if v.IsNull() {
		return nil
	}
	info := v.ColumnInfo()
	switch info.DataType().Kind {
	case DataStruct:
		return membersJSON(v.StructMembers(), opts)
	case DataPrimitiveArray, DataStructArray:
		elems := v.ArrayElements()
		out := make([]any, len(elems))
		for i, e := range elems {
			out[i] = ToJSON(e, opts)
		}
		return out
	case DataNavigation:
		return membersJSON(v.StructMembers(), opts)
	}
	return primitiveJSON(v, opts)
}

func membersJSON(members []Value, opts JSONOptions) map[string]any {
	out := map[string]any{}
	for _, m := range members {
		if j := ToJSON(m, opts); j != nil {
			out[opts.MemberName(m.ColumnInfo().Property())] = j
		}
	}
	return out
}

func primitiveJSON(v Value, opts JSONOptions) any {
	info := v.ColumnInfo()
	if p := info.Property(); p != nil && info.IsSystem() {
		switch {
		case isClassID(p):
			id := schema.ClassID(v.Int64())
			if opts.ClassName != nil {
				if name, ok := opts.ClassName(id); ok {
					return name
				}
			}
			return FormatID(uint64(id))
		case isInstanceID(p):
			return FormatID(uint64(v.Int64()))
		}
	}
	coordName := func(n string) string {
		if opts.UseJSNames {
			return strings.ToLower(n)
		}
		return n
	}
	switch info.DataType().Primitive {
	case schema.PrimitiveBinary, schema.PrimitiveGeometry:
		b := v.Blob()
		if opts.AbbreviateBlobs {
			return map[string]any{"bytes": len(b)}
		}
		return base64.StdEncoding.EncodeToString(b)
	case schema.PrimitiveBoolean:
		return v.Bool()
	case schema.PrimitiveDateTime:
		t := v.DateTime()
		switch info.DateTimeInfo().Component {
		case schema.DateTimeComponentDate:
			return t.Format("2006-01-02")
		case schema.DateTimeComponentTimeOfDay:
			return t.Format("15:04:05.000")
		}
		if info.DateTimeInfo().Kind == schema.DateTimeKindUtc {
			return t.Format("2006-01-02T15:04:05.000Z")
		}
		return t.Format("2006-01-02T15:04:05.000")
	case schema.PrimitiveDouble:
		return v.Double()
	case schema.PrimitiveInteger, schema.PrimitiveLong:
		return v.Int64()
	case schema.PrimitivePoint2d:
		p := v.Point2d()
		return map[string]any{coordName("X"): p.X, coordName("Y"): p.Y}
	case schema.PrimitivePoint3d:
		p := v.Point3d()
		return map[string]any{coordName("X"): p.X, coordName("Y"): p.Y, coordName("Z"): p.Z}
	case schema.PrimitiveGuid:
		return v.Guid().String()
	case schema.PrimitiveString:
		return v.Text()
	}
	// Computed values without a known type keep the type SQLite gave them.
	if s, ok := v.(*Primitive); ok {
		switch raw := s.get().(type) {
		case int64, float64, string:
			return raw
		}
	}
	return v.Text()
}

// RowJSON renders values as one JSON object keyed by member name.
func RowJSON(values []Value, opts JSONOptions) map[string]any {
	return membersJSON(values, opts)
}
