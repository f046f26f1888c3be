// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package field

import (
	"github.com/canonical/ecsql/internal/issue"
	"github.com/canonical/ecsql/internal/schema"
)

// DataKind is the shape of a column value.
type DataKind int

const (
	DataPrimitive DataKind = iota
	DataStruct
	DataPrimitiveArray
	DataStructArray
	DataNavigation
)

func (k DataKind) String() string {
	switch k {
	case DataPrimitive:
		return "primitive"
	case DataStruct:
		return "struct"
	case DataPrimitiveArray:
		return "primitive array"
	case DataStructArray:
		return "struct array"
	case DataNavigation:
		return "navigation"
	}
	return "unknown"
}

// DataType describes a column value. Primitive is meaningful for primitives
// and primitive arrays, Struct for structs and struct arrays.
type DataType struct {
	Kind      DataKind
	Primitive schema.PrimitiveType
	Struct    *schema.Class
}

// PrimitiveType returns the data type of a primitive value.
func PrimitiveType(t schema.PrimitiveType) DataType {
	return DataType{Kind: DataPrimitive, Primitive: t}
}

// PropertyDataType returns the data type of values of p.
func PropertyDataType(p *schema.Property) DataType {
	switch p.Kind {
	case schema.KindStruct:
		return DataType{Kind: DataStruct, Struct: p.StructClass}
	case schema.KindPrimitiveArray:
		return DataType{Kind: DataPrimitiveArray, Primitive: p.PrimitiveType}
	case schema.KindStructArray:
		return DataType{Kind: DataStructArray, Struct: p.StructClass}
	case schema.KindNavigation:
		return DataType{Kind: DataNavigation, Primitive: schema.PrimitiveLong}
	}
	return PrimitiveType(p.PrimitiveType)
}

// IsArray reports whether the value is an array.
func (t DataType) IsArray() bool {
	return t.Kind == DataPrimitiveArray || t.Kind == DataStructArray
}

// Element returns the data type of the elements of an array type.
func (t DataType) Element() DataType {
	switch t.Kind {
	case DataPrimitiveArray:
		return PrimitiveType(t.Primitive)
	case DataStructArray:
		return DataType{Kind: DataStruct, Struct: t.Struct}
	}
	return t
}

// ColumnCount returns the number of native columns holding a value of the
// type. Arrays are stored in one column.
func (t DataType) ColumnCount() int {
	switch t.Kind {
	case DataPrimitive:
		return t.Primitive.ColumnCount()
	case DataStruct:
		n := 0
		for _, m := range t.Struct.Properties(true) {
			n += PropertyDataType(m).ColumnCount()
		}
		return n
	case DataNavigation:
		return 2
	}
	return 1
}

func (t DataType) String() string {
	switch t.Kind {
	case DataPrimitive, DataPrimitiveArray:
		if t.Kind == DataPrimitiveArray {
			return t.Primitive.String() + "[]"
		}
		return t.Primitive.String()
	case DataStruct:
		return t.Struct.FullName()
	case DataStructArray:
		return t.Struct.FullName() + "[]"
	}
	return t.Kind.String()
}

// RootClass is the class a column's property path starts from, as written in
// the statement.
type RootClass struct {
	Class      *schema.Class
	TableSpace string
	Alias      string
}

// Flags qualify where a column value comes from.
type Flags struct {
	// System is set for ECSql system properties and their members.
	System bool
	// Generated is set for computed and aliased select clause items.
	Generated bool
	// Dynamic is set for values whose shape is not described by the schema.
	Dynamic bool
}

// ColumnInfo describes how to interpret the value of a column. It is a value
// type and is never modified once built.
type ColumnInfo struct {
	dataType DataType
	dateTime schema.DateTimeInfo
	property *schema.Property
	flags    Flags
	path     PropertyPath
	root     RootClass
}

// NewPropertyColumnInfo returns the ColumnInfo of a property reached through
// path from root. The System flag is also set when prop is a system property.
// DateTime metadata that cannot be read is reported to issues and left
// unspecified.
func NewPropertyColumnInfo(issues *issue.Reporter, prop *schema.Property, path PropertyPath, root RootClass, flags Flags) ColumnInfo {
	if schema.IsSystemProperty(prop) {
		flags.System = true
	}
	ci := ColumnInfo{
		dataType: PropertyDataType(prop),
		property: prop,
		flags:    flags,
		path:     path,
		root:     root,
	}
	ci.dateTime = dateTimeInfo(issues, prop)
	return ci
}

// NewExpressionColumnInfo returns the ColumnInfo of a computed value that has
// no property.
func NewExpressionColumnInfo(dt DataType, root RootClass) ColumnInfo {
	return ColumnInfo{dataType: dt, flags: Flags{Generated: true}, root: root}
}

func dateTimeInfo(issues *issue.Reporter, prop *schema.Property) schema.DateTimeInfo {
	if prop == nil || prop.PrimitiveType != schema.PrimitiveDateTime {
		return schema.DateTimeInfo{}
	}
	info, err := prop.DateTimeInfo()
	if err != nil {
		issues.ReportError(err, "cannot read DateTime metadata of %s, using unspecified", prop.FullName())
		return schema.DateTimeInfo{}
	}
	return info
}

// Member returns the ColumnInfo of a struct, point or navigation member. The
// flags are those of ci; the data type and DateTime metadata come from member.
func (ci ColumnInfo) Member(issues *issue.Reporter, member *schema.Property) ColumnInfo {
	return ColumnInfo{
		dataType: PropertyDataType(member),
		dateTime: dateTimeInfo(issues, member),
		property: member,
		flags:    ci.flags,
		path:     ci.path.Append(member),
		root:     ci.root,
	}
}

// Element returns the ColumnInfo of element index of an array column.
func (ci ColumnInfo) Element(index int) ColumnInfo {
	elem := ci
	elem.dataType = ci.dataType.Element()
	elem.path = ci.path.AppendIndex(index)
	return elem
}

// DataType returns the type of the value.
func (ci ColumnInfo) DataType() DataType {
	return ci.dataType
}

// DateTimeInfo returns the DateTime metadata of DateTime values.
func (ci ColumnInfo) DateTimeInfo() schema.DateTimeInfo {
	return ci.dateTime
}

// StructType returns the struct class of struct and struct array values.
func (ci ColumnInfo) StructType() *schema.Class {
	return ci.dataType.Struct
}

// Property returns the property the value belongs to. It is nil for computed
// values without a generated property.
func (ci ColumnInfo) Property() *schema.Property {
	return ci.property
}

func (ci ColumnInfo) IsSystem() bool {
	return ci.flags.System
}

func (ci ColumnInfo) IsGenerated() bool {
	return ci.flags.Generated
}

func (ci ColumnInfo) IsDynamic() bool {
	return ci.flags.Dynamic
}

// Flags returns the flags of the column.
func (ci ColumnInfo) Flags() Flags {
	return ci.flags
}

// Path returns the property path of the value.
func (ci ColumnInfo) Path() PropertyPath {
	return ci.path
}

// RootClass returns the class the path starts from.
func (ci ColumnInfo) RootClass() RootClass {
	return ci.root
}

// Name returns the name of the column: the property name or "" for computed
// values.
func (ci ColumnInfo) Name() string {
	if ci.property == nil {
		return ""
	}
	return ci.property.Name
}

// Equal reports whether two ColumnInfos describe the same column.
func (ci ColumnInfo) Equal(other ColumnInfo) bool {
	return ci.dataType == other.dataType &&
		ci.dateTime == other.dateTime &&
		ci.property == other.property &&
		ci.flags == other.flags &&
		ci.root == other.root &&
		ci.path.Equal(other.path)
}
