// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package reader

import (
	"github.com/canonical/ecsql/internal/schema"
)

// match is the outcome of comparing a SeekPos with a requested position.
type match int

const (
	// matchNone means the requested class or property differs: the fields
	// to read are different ones.
	matchNone match = iota
	// matchShape means the same fields read a different row.
	matchShape
	// matchRow means the current row is the requested one.
	matchRow
)

// SeekPos is the reader's cursor: the class and property last read and the
// row the table views hold.
type SeekPos struct {
	class      *Class
	property   *Property
	instanceID int64
	rowClassID schema.ClassID
	hasRow     bool
}

// HasRow reports whether the cursor is on a row.
func (p *SeekPos) HasRow() bool {
	return p.hasRow
}

func (p *SeekPos) compare(class *Class, property *Property, instanceID int64) match {
	if p.class != class || p.property != property {
		return matchNone
	}
	if !p.hasRow || p.instanceID != instanceID {
		return matchShape
	}
	return matchRow
}

// moveTo points the cursor at fields of class, and property if it is not
// nil. The row is unknown until setRow.
func (p *SeekPos) moveTo(class *Class, property *Property) {
	*p = SeekPos{class: class, property: property}
}

func (p *SeekPos) setRow(instanceID int64, rowClassID schema.ClassID) {
	p.instanceID = instanceID
	p.rowClassID = rowClassID
	p.hasRow = true
}

func (p *SeekPos) dropRow() {
	p.hasRow = false
	p.instanceID = 0
	p.rowClassID = 0
}

func (p *SeekPos) reset() {
	*p = SeekPos{}
}
