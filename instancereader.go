// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package ecsql

import (
	"context"

	"github.com/canonical/ecsql/internal/reader"
)

type (
	// Position names the instance, and optionally the single property, a
	// Seek reads.
	Position = reader.Position
	// SeekOptions control a Seek.
	SeekOptions = reader.Options
	// RowContext is the row a Seek callback reads. It is only valid during
	// the callback.
	RowContext = reader.RowContext
	// InstanceKey identifies an instance.
	InstanceKey = reader.InstanceKey
	// ReaderStats count the work done by the instance reader of a DB.
	ReaderStats = reader.Stats
)

// Seek reads the instance at pos without preparing a statement and calls
// fn with it. It reports whether the instance exists; fn is only called
// when it does. fn must not call Seek.
//
// Seeking the same instance again reads nothing, seeking another instance
// of the same class runs a single native query.
func (db *DB) Seek(ctx context.Context, pos Position, fn func(*RowContext) error, opts SeekOptions) (bool, error) {
	if db.isClosed() {
		return false, ErrClosed
	}
	return db.reader.Seek(ctx, pos, fn, opts)
}

// InvalidateSeekPos makes the next Seek of key read the instance again. Call
// it after writing to an instance that may have been sought. It reports
// whether key was the current instance.
func (db *DB) InvalidateSeekPos(key InstanceKey) bool {
	return db.reader.InvalidateSeekPos(key)
}

// PropertyExists reports whether the class has a property with the access
// string, ignoring case. An empty access string asks whether the class has
// any data property.
func (db *DB) PropertyExists(classID ClassID, access string) bool {
	return db.reader.PropertyExists(classID, access)
}

// ReaderStats returns the counters of the instance reader.
func (db *DB) ReaderStats() ReaderStats {
	return db.reader.Stats()
}
