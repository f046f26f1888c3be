// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package reader

import (
	"github.com/canonical/ecsql/internal/field"
	"github.com/canonical/ecsql/internal/issue"
	"github.com/canonical/ecsql/internal/schema"
)

// Options control a Seek.
type Options struct {
	// ForceSeek reads the row from the table even when the cursor is
	// already on it.
	ForceSeek bool
	// ClassIDToClassNames renders class ids as "Schema.Class" in JSON.
	ClassIDToClassNames bool
	// AbbreviateBlobs renders binary values as their length in JSON.
	AbbreviateBlobs bool
	// UseJSPropertyNames renders JSON member names the way JavaScript
	// clients expect them.
	UseJSPropertyNames bool
}

// Position names the instance, and optionally the single property, a Seek
// reads. ClassName is used when ClassID is zero.
type Position struct {
	ClassID      schema.ClassID
	ClassName    string
	InstanceID   int64
	AccessString string
}

// RowContext is the row a Seek callback reads. It is only valid during the
// callback.
type RowContext struct {
	issues     *issue.Reporter
	values     []field.Value
	rowClassID schema.ClassID
	jsonOpts   field.JSONOptions
}

// ColumnCount returns the number of values: one per property, or one for a
// single property seek.
func (r *RowContext) ColumnCount() int {
	return len(r.values)
}

// Value returns value i. Out of range indexes get a value whose accessors
// all report an issue.
func (r *RowContext) Value(i int) field.Value {
	if i < 0 || i >= len(r.values) {
		r.issues.Report("column index %d out of range [0, %d)", i, len(r.values))
		return field.NewNoop(r.issues)
	}
	return r.values[i]
}

// RowClassID returns the class of the row as stored, which is the
// requested class or one derived from it.
func (r *RowContext) RowClassID() schema.ClassID {
	return r.rowClassID
}

// JSON renders all values as one object.
func (r *RowContext) JSON() map[string]any {
	return field.RowJSON(r.values, r.jsonOpts)
}

// PropertyJSON renders the first value, the property of a single property
// seek.
func (r *RowContext) PropertyJSON() any {
	if len(r.values) == 0 {
		return nil
	}
	return field.ToJSON(r.values[0], r.jsonOpts)
}
