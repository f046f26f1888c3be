// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package field

import (
	"strconv"
	"strings"

	"github.com/canonical/ecsql/internal/schema"
)

// NoArrayIndex marks a path entry that does not index into an array.
const NoArrayIndex = -1

// PathEntry is one step of a PropertyPath.
type PathEntry struct {
	Property   *schema.Property
	ArrayIndex int
}

// PropertyPath is the path from a class to a property, a struct member or an
// array element. Paths are immutable: Append and AppendIndex return new paths.
type PropertyPath struct {
	entries []PathEntry
}

// NewPropertyPath returns the path through props.
func NewPropertyPath(props ...*schema.Property) PropertyPath {
	var p PropertyPath
	for _, prop := range props {
		p = p.Append(prop)
	}
	return p
}

// Append returns the path extended with a member property.
func (p PropertyPath) Append(prop *schema.Property) PropertyPath {
	entries := make([]PathEntry, len(p.entries), len(p.entries)+1)
	copy(entries, p.entries)
	return PropertyPath{entries: append(entries, PathEntry{Property: prop, ArrayIndex: NoArrayIndex})}
}

// AppendIndex returns the path extended with an array element index.
func (p PropertyPath) AppendIndex(index int) PropertyPath {
	entries := make([]PathEntry, len(p.entries), len(p.entries)+1)
	copy(entries, p.entries)
	return PropertyPath{entries: append(entries, PathEntry{ArrayIndex: index})}
}

// Len returns the number of entries.
func (p PropertyPath) Len() int {
	return len(p.entries)
}

// Entry returns entry i.
func (p PropertyPath) Entry(i int) PathEntry {
	return p.entries[i]
}

// Leaf returns the last property of the path, skipping array indexes.
func (p PropertyPath) Leaf() *schema.Property {
	for i := len(p.entries) - 1; i >= 0; i-- {
		if p.entries[i].Property != nil {
			return p.entries[i].Property
		}
	}
	return nil
}

// Equal reports whether both paths go through the same properties and
// indexes.
func (p PropertyPath) Equal(other PropertyPath) bool {
	if len(p.entries) != len(other.entries) {
		return false
	}
	for i, e := range p.entries {
		if e != other.entries[i] {
			return false
		}
	}
	return true
}

// String renders the path as an access string, e.g. "Addresses[1].Zip".
func (p PropertyPath) String() string {
	var b strings.Builder
	for _, e := range p.entries {
		if e.Property == nil {
			b.WriteString("[" + strconv.Itoa(e.ArrayIndex) + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteString(".")
		}
		b.WriteString(e.Property.Name)
	}
	return b.String()
}
